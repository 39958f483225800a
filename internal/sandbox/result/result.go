// Package result defines compile and run results and the terminal report.
package result

import (
	"fmt"
	"strings"

	appErr "execbox/pkg/errors"
)

// TerminationKind classifies how a program ended.
type TerminationKind string

const (
	TerminationNormal          TerminationKind = "Normal"
	TerminationPolicyKilled    TerminationKind = "PolicyKilled"
	TerminationCrashed         TerminationKind = "Crashed"
	TerminationCompileFailed   TerminationKind = "CompileFailed"
	TerminationSupervisorError TerminationKind = "SupervisorError"
)

// RunResult captures raw execution data. Output is only populated after the
// process has been reaped and its pipes drained.
type RunResult struct {
	ExitCode        int
	Signal          string
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	Termination     TerminationKind
	// Isolated is set once the program acknowledged policy activation.
	Isolated bool
	TimedOut bool
	// OomKilled is set when the run cgroup recorded an OOM kill.
	OomKilled bool
	// Reason is an internal explanation for SupervisorError, never shown
	// to the submitter.
	Reason     string
	WallTimeMs int64
	TimeMs     int64
	MemoryKB   int64
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK         bool
	ExitCode   int
	TimeMs     int64
	TimedOut   bool
	Diagnostic string
}

// State is the per-request pipeline state.
type State string

const (
	StateReceived        State = "Received"
	StateValidated       State = "Validated"
	StateSourceWritten   State = "SourceWritten"
	StateCompiled        State = "Compiled"
	StateExecuted        State = "Executed"
	StateRejected        State = "Rejected"
	StateCompileFailed   State = "CompileFailed"
	StateSucceeded       State = "Succeeded"
	StateRuntimeFailed   State = "RuntimeFailed"
	StatePolicyKilled    State = "PolicyKilled"
	StateCrashed         State = "Crashed"
	StateTimedOut        State = "TimedOut"
	StateSupervisorError State = "SupervisorError"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCompileFailed, StateSucceeded, StateRuntimeFailed,
		StatePolicyKilled, StateCrashed, StateTimedOut, StateSupervisorError:
		return true
	}
	return false
}

// Code maps a terminal state onto its error code.
func (s State) Code() appErr.ErrorCode {
	switch s {
	case StateSucceeded:
		return appErr.Success
	case StateRejected:
		return appErr.ValidationRejected
	case StateCompileFailed:
		return appErr.CompileFailed
	case StateRuntimeFailed:
		return appErr.ExecutionFailed
	case StatePolicyKilled:
		return appErr.PolicyViolationKilled
	case StateCrashed:
		return appErr.ExecutionCrashed
	case StateTimedOut:
		return appErr.ExecutionTimeout
	default:
		return appErr.SupervisorInternalError
	}
}

// Timestamps captures request lifecycle timestamps in unix milliseconds.
type Timestamps struct {
	ReceivedAt int64 `json:"receivedAt"`
	FinishedAt int64 `json:"finishedAt"`
}

// Report is the single terminal outcome of one request. Every field is safe
// to show to the submitter.
type Report struct {
	SubmissionID string           `json:"submissionId"`
	Profile      string           `json:"profile"`
	State        State            `json:"state"`
	Code         appErr.ErrorCode `json:"code"`
	// Reason is the rejection reason or a short notice for failures.
	Reason     string `json:"reason,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exitCode"`
	Signal     string `json:"signal,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	// Isolated is true when the program ran under an acknowledged policy.
	Isolated      bool       `json:"isolated"`
	CompileTimeMs int64      `json:"compileTimeMs"`
	RunTimeMs     int64      `json:"runTimeMs"`
	Timestamps    Timestamps `json:"timestamps"`
}

// Succeeded reports whether the program ran and exited 0.
func (r Report) Succeeded() bool {
	return r.State == StateSucceeded
}

// Text renders the report the way the one-shot channel prints it.
func (r Report) Text() string {
	switch r.State {
	case StateSucceeded:
		return r.Stdout
	case StateRejected:
		return "rejected: " + r.Reason
	case StateCompileFailed:
		return "compile failed: " + strings.TrimRight(r.Diagnostic, "\n")
	case StateRuntimeFailed:
		detail := strings.TrimRight(r.Stderr, "\n")
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", r.ExitCode)
		}
		return r.Stdout + "run failed: " + detail
	case StatePolicyKilled:
		return r.Stdout + "run failed: killed by syscall policy"
	case StateCrashed:
		return r.Stdout + "run failed: crashed with " + r.Signal
	case StateTimedOut:
		return r.Stdout + "run failed: time limit exceeded"
	default:
		if r.Reason != "" {
			return "internal error: " + r.Reason
		}
		return "internal error"
	}
}
