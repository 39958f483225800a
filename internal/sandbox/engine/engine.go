// Package engine runs a compiled program under the sandbox-init helper.
package engine

import (
	"context"
	"time"

	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/spec"
)

const (
	defaultMaxOutputBytes = 4 << 20
	defaultWaitDelay      = time.Second
	defaultHelperPath     = "sandbox-init"
	defaultCgroupRoot     = "/sys/fs/cgroup/execbox"
)

// Engine executes a RunSpec inside an isolated child process.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	HelperPath string `yaml:"helperPath"`
	// MaxOutputBytes caps each captured stream; zero uses the default.
	MaxOutputBytes int `yaml:"maxOutputBytes"`
	// WaitDelay bounds how long pipes held by escaped descendants may keep
	// a finished run open.
	WaitDelay time.Duration `yaml:"waitDelay"`
	// EnableCgroup runs every program in its own cgroup v2 group under
	// CgroupRoot. The group carries pids.max and memory.max, and a kill
	// through cgroup.kill also reaches descendants that called setsid.
	EnableCgroup bool   `yaml:"enableCgroup"`
	CgroupRoot   string `yaml:"cgroupRoot"`
}

func (c Config) withDefaults() Config {
	if c.HelperPath == "" {
		c.HelperPath = defaultHelperPath
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultWaitDelay
	}
	if c.EnableCgroup && c.CgroupRoot == "" {
		c.CgroupRoot = defaultCgroupRoot
	}
	return c
}
