//go:build !linux

package engine

import (
	"context"

	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
)

type stubEngine struct{}

// NewEngine returns an engine that refuses every run.
func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.New(appErr.IsolationUnavailable).WithMessage("sandbox engine is only supported on linux")
}
