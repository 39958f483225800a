package sandbox

import (
	"context"

	"execbox/internal/sandbox/result"
)

// StatusUpdate carries one pipeline state transition.
type StatusUpdate struct {
	SubmissionID string
	Profile      string
	From         result.State
	To           result.State
	At           int64
}

// StatusReporter observes state transitions. It must not block.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate)
}
