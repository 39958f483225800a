// Package security builds the syscall policy that confines compiled programs.
package security

import (
	"fmt"
	"regexp"

	appErr "execbox/pkg/errors"
)

// Action is what the kernel does when a filtered syscall is made.
type Action string

const (
	ActionAllow Action = "allow"
	// ActionKill kills the whole process with SIGSYS.
	ActionKill Action = "kill"
	// ActionErrno fails the syscall with EPERM.
	ActionErrno Action = "errno"
)

func (a Action) valid() bool {
	return a == ActionAllow || a == ActionKill || a == ActionErrno
}

// Rule applies Action to one syscall.
type Rule struct {
	Syscall string `yaml:"syscall" json:"syscall"`
	Action  Action `yaml:"action" json:"action"`
}

// PolicyConfig is the user-facing policy description.
type PolicyConfig struct {
	DefaultAction Action `yaml:"defaultAction"`
	Rules         []Rule `yaml:"rules"`
}

// Policy is a validated rule set. Build is the only constructor that
// guarantees the exec family is denied.
type Policy struct {
	DefaultAction Action `json:"defaultAction"`
	Rules         []Rule `json:"rules"`
}

// ExecFamily lists the syscalls that replace the process image.
var ExecFamily = []string{"execve", "execveat"}

var syscallName = regexp.MustCompile(`^[a-z0-9_]+$`)

// DefaultPolicyConfig allows everything except launching another program.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		DefaultAction: ActionAllow,
		Rules: []Rule{
			{Syscall: "execve", Action: ActionKill},
			{Syscall: "execveat", Action: ActionKill},
		},
	}
}

// Build validates cfg. Under a default-allow policy every exec-family syscall
// missing from the rules gets a kill rule; an allow rule for any of them is
// refused under either default.
func Build(cfg PolicyConfig) (Policy, error) {
	def := cfg.DefaultAction
	if def == "" {
		def = ActionAllow
	}
	if !def.valid() {
		return Policy{}, invalidPolicy("unknown default action %q", def)
	}

	seen := make(map[string]bool, len(cfg.Rules))
	rules := make([]Rule, 0, len(cfg.Rules)+len(ExecFamily))
	for _, r := range cfg.Rules {
		if !syscallName.MatchString(r.Syscall) {
			return Policy{}, invalidPolicy("invalid syscall name %q", r.Syscall)
		}
		if !r.Action.valid() {
			return Policy{}, invalidPolicy("unknown action %q for %s", r.Action, r.Syscall)
		}
		if seen[r.Syscall] {
			return Policy{}, invalidPolicy("duplicate rule for %s", r.Syscall)
		}
		if IsExec(r.Syscall) && r.Action == ActionAllow {
			return Policy{}, invalidPolicy("policy must not allow %s", r.Syscall)
		}
		seen[r.Syscall] = true
		rules = append(rules, r)
	}
	if def == ActionAllow {
		for _, name := range ExecFamily {
			if !seen[name] {
				rules = append(rules, Rule{Syscall: name, Action: ActionKill})
			}
		}
	}
	return Policy{DefaultAction: def, Rules: rules}, nil
}

// IsExec reports whether name is an exec-family syscall.
func IsExec(name string) bool {
	for _, e := range ExecFamily {
		if name == e {
			return true
		}
	}
	return false
}

// ActionFor returns the action the policy applies to name.
func (p Policy) ActionFor(name string) Action {
	for _, r := range p.Rules {
		if r.Syscall == name {
			return r.Action
		}
	}
	return p.DefaultAction
}

// DeniesExec reports whether every exec-family syscall is refused.
func (p Policy) DeniesExec() bool {
	for _, name := range ExecFamily {
		if p.ActionFor(name) == ActionAllow {
			return false
		}
	}
	return true
}

// Empty reports whether the policy filters nothing.
func (p Policy) Empty() bool {
	return p.DefaultAction == ActionAllow && len(p.Rules) == 0
}

// PreExecFilter is the subset of p that can be loaded before exec: the
// explicit deny rules without the exec family, over a default-allow base.
// The program's own prologue stacks the full policy on top of it.
func PreExecFilter(p Policy) Policy {
	out := Policy{DefaultAction: ActionAllow}
	for _, r := range p.Rules {
		if r.Action == ActionAllow || IsExec(r.Syscall) {
			continue
		}
		out.Rules = append(out.Rules, r)
	}
	return out
}

func invalidPolicy(format string, args ...interface{}) error {
	return appErr.New(appErr.InvalidParams).WithMessage(fmt.Sprintf("syscall policy: "+format, args...))
}
