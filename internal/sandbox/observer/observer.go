// Package observer defines metrics hooks for pipeline runs.
package observer

import (
	"context"
	"time"
)

// MetricsRecorder records pipeline metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, profile string, ok bool, elapsed time.Duration)
	ObserveRun(ctx context.Context, profile string, state string, elapsed time.Duration)
	ObserveRejected(ctx context.Context, profile string)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, profile string, ok bool, elapsed time.Duration) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, profile string, state string, elapsed time.Duration) {
}

func (NoopMetricsRecorder) ObserveRejected(ctx context.Context, profile string) {}
