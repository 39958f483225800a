// Package spec defines the compile and run specifications and resource limits.
package spec

import (
	"time"

	"execbox/internal/sandbox/security"
)

// ResourceLimit describes hard limits applied to the program.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs" json:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs" json:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB" json:"memoryMB"`
	StackMB    int64 `yaml:"stackMB" json:"stackMB"`
	OutputMB   int64 `yaml:"outputMB" json:"outputMB"`
	PIDs       int64 `yaml:"pids" json:"pids"`
	OpenFiles  int64 `yaml:"openFiles" json:"openFiles"`
}

// Merge returns base with every positive field of override applied.
func (base ResourceLimit) Merge(override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	if override.OpenFiles > 0 {
		base.OpenFiles = override.OpenFiles
	}
	return base
}

// WallTime returns the wall-clock cap, zero meaning none.
func (base ResourceLimit) WallTime() time.Duration {
	if base.WallTimeMs <= 0 {
		return 0
	}
	return time.Duration(base.WallTimeMs) * time.Millisecond
}

// CompileSpec describes one compiler invocation.
type CompileSpec struct {
	SubmissionID string
	Profile      string
	// Command is the fixed template with {src} and {bin} placeholders.
	Command string
	Source  string
	Binary  string
	// WorkDir is the request directory; diagnostics never mention it.
	WorkDir string
	Env     []string
	Timeout time.Duration
}

// RunSpec is the unified execution specification for one program run.
type RunSpec struct {
	SubmissionID string
	Profile      string
	Binary       string
	WorkDir      string
	Env          []string
	Stdin        []byte
	// Policy is the full policy the program activates itself; the engine
	// derives the pre-exec filter from it.
	Policy security.Policy
	Limits ResourceLimit
}
