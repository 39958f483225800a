// Package sandbox runs one untrusted snippet through validation, compilation
// and isolated execution, and guarantees its artifacts are removed.
package sandbox

import (
	"context"

	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/submission"
)

// Service is the high-level entrypoint used by the transports.
type Service interface {
	// Run returns exactly one terminal report. Errors are reserved for
	// requests that never entered the pipeline: unknown profile or a full
	// admission queue.
	Run(ctx context.Context, req Request) (result.Report, error)
}

// Request is one submission for one profile.
type Request struct {
	// Profile selects the profile; empty selects the default.
	Profile    string
	Submission submission.Submission
}
