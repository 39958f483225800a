// Package profile describes how one kind of submission is validated, wrapped,
// compiled and confined.
package profile

import (
	"time"

	"execbox/internal/sandbox/harness"
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/spec"
	"execbox/internal/sandbox/validate"
)

// DefaultCompileCommand links libseccomp for the isolation prologue and turns
// warnings into errors.
const DefaultCompileCommand = "gcc -std=gnu11 -O0 -Werror -o {bin} {src} -lseccomp"

const (
	defaultCompileTimeout = 10 * time.Second
	defaultSourceExt      = ".c"
)

// DefaultLimits apply when a profile leaves a limit unset.
var DefaultLimits = spec.ResourceLimit{
	CPUTimeMs:  2000,
	WallTimeMs: 5000,
	MemoryMB:   256,
	StackMB:    8,
	OutputMB:   4,
	PIDs:       16,
	OpenFiles:  64,
}

// Config is one profile as written in the configuration file.
type Config struct {
	Name      string          `yaml:"name"`
	Validator validate.Config `yaml:"validator"`
	// Hole is the syntactic context of the fragment: expression or statements.
	Hole harness.Context `yaml:"hole"`
	// Harness is template text; empty selects the built-in harness for Hole.
	Harness          string                `yaml:"harness"`
	CompileCommand   string                `yaml:"compileCommand"`
	CompileTimeoutMs int64                 `yaml:"compileTimeoutMs"`
	SourceExt        string                `yaml:"sourceExt"`
	Env              []string              `yaml:"env"`
	Policy           security.PolicyConfig `yaml:"policy"`
	Limits           spec.ResourceLimit    `yaml:"limits"`
}

// Profile is a compiled, immutable profile.
type Profile struct {
	Name           string
	Validator      *validate.Validator
	Harness        *harness.Harness
	Policy         security.Policy
	Prologue       string
	CompileCommand string
	CompileTimeout time.Duration
	SourceExt      string
	Env            []string
	Limits         spec.ResourceLimit
}

// DefaultConfigs are the two shipped profiles.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:      "expr",
			Validator: validate.Config{Mode: validate.ModeAllowlist, Allowed: validate.DefaultAllowed},
			Hole:      harness.ContextExpression,
			Policy:    security.DefaultPolicyConfig(),
		},
		{
			Name:      "stmt",
			Validator: validate.Config{Mode: validate.ModeDenylist, Denied: validate.DefaultDenied},
			Hole:      harness.ContextStatements,
			Policy:    security.DefaultPolicyConfig(),
		},
	}
}
