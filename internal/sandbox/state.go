package sandbox

import (
	"fmt"

	"execbox/internal/sandbox/result"
)

var transitions = map[result.State][]result.State{
	result.StateReceived:      {result.StateValidated, result.StateRejected},
	result.StateValidated:     {result.StateSourceWritten},
	result.StateSourceWritten: {result.StateCompiled, result.StateCompileFailed},
	result.StateCompiled:      {result.StateExecuted},
	result.StateExecuted: {
		result.StateSucceeded,
		result.StateRuntimeFailed,
		result.StatePolicyKilled,
		result.StateCrashed,
		result.StateTimedOut,
	},
}

// canTransition reports whether from → to is part of the request lifecycle.
// Every non-terminal state may fall into SupervisorError.
func canTransition(from, to result.State) bool {
	if from.Terminal() {
		return false
	}
	if to == result.StateSupervisorError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type illegalTransition struct {
	from, to result.State
}

func (e illegalTransition) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.from, e.to)
}
