package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"execbox/internal/sandbox/harness"
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/validate"
	appErr "execbox/pkg/errors"

	"github.com/google/shlex"
)

// LocalRepository holds compiled profiles in memory.
type LocalRepository struct {
	profiles map[string]*Profile
	fallback string
}

// NewLocalRepository compiles every config. Any invalid profile fails the
// whole repository; the first profile is the default.
func NewLocalRepository(configs []Config) (*LocalRepository, error) {
	if len(configs) == 0 {
		return nil, appErr.ValidationError("profiles", "required")
	}
	repo := &LocalRepository{profiles: make(map[string]*Profile, len(configs))}
	for _, cfg := range configs {
		prof, err := Compile(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := repo.profiles[prof.Name]; dup {
			return nil, appErr.Newf(appErr.InvalidParams, "duplicate profile %q", prof.Name)
		}
		repo.profiles[prof.Name] = prof
		if repo.fallback == "" {
			repo.fallback = prof.Name
		}
	}
	return repo, nil
}

// Get returns a profile by name. Empty selects the default profile.
func (r *LocalRepository) Get(ctx context.Context, name string) (*Profile, error) {
	if name == "" {
		name = r.fallback
	}
	prof, ok := r.profiles[name]
	if !ok {
		return nil, appErr.Newf(appErr.ProfileNotFound, "profile %q not found", name)
	}
	return prof, nil
}

// Default returns the default profile name.
func (r *LocalRepository) Default() string {
	return r.fallback
}

// Names lists profile names in sorted order.
func (r *LocalRepository) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile validates cfg and builds its runtime parts.
func Compile(cfg Config) (*Profile, error) {
	if cfg.Name == "" {
		return nil, appErr.ValidationError("profile.name", "required")
	}
	fail := func(err error) error {
		return appErr.Wrapf(err, appErr.InvalidParams, "profile %s: %v", cfg.Name, err)
	}

	validator, err := validate.New(cfg.Validator)
	if err != nil {
		return nil, fail(err)
	}

	var h *harness.Harness
	if cfg.Harness == "" {
		builtin, ok := harness.Builtin(cfg.Hole)
		if !ok {
			return nil, fail(fmt.Errorf("unknown hole context %q", cfg.Hole))
		}
		h = builtin
	} else {
		h, err = harness.Parse(cfg.Name, cfg.Harness, cfg.Hole)
		if err != nil {
			return nil, fail(err)
		}
	}

	policy, err := security.Build(cfg.Policy)
	if err != nil {
		return nil, fail(err)
	}

	command := cfg.CompileCommand
	if command == "" {
		command = DefaultCompileCommand
	}
	if err := checkCommand(command); err != nil {
		return nil, fail(err)
	}

	timeout := defaultCompileTimeout
	if cfg.CompileTimeoutMs > 0 {
		timeout = time.Duration(cfg.CompileTimeoutMs) * time.Millisecond
	}
	ext := cfg.SourceExt
	if ext == "" {
		ext = defaultSourceExt
	}

	return &Profile{
		Name:           cfg.Name,
		Validator:      validator,
		Harness:        h,
		Policy:         policy,
		Prologue:       security.RenderPrologue(policy),
		CompileCommand: command,
		CompileTimeout: timeout,
		SourceExt:      ext,
		Env:            append([]string(nil), cfg.Env...),
		Limits:         DefaultLimits.Merge(cfg.Limits),
	}, nil
}

func checkCommand(command string) error {
	fields, err := shlex.Split(command)
	if err != nil {
		return fmt.Errorf("parse compile command: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("compile command is empty")
	}
	var src, bin bool
	for _, f := range fields {
		src = src || f == "{src}"
		bin = bin || f == "{bin}"
	}
	if !src || !bin {
		return fmt.Errorf("compile command needs standalone {src} and {bin} arguments")
	}
	return nil
}
