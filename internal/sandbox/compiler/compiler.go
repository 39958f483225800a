// Package compiler runs the external compiler against a written source file.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"execbox/internal/sandbox/capture"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	defaultDiagnosticBytes = 16 * 1024
	defaultPath            = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	waitDelay              = time.Second

	// ScratchPlaceholder replaces the request directory in diagnostics.
	ScratchPlaceholder = "<scratch>"
)

// Compiler turns a source artifact into a binary or a diagnostic.
type Compiler interface {
	Compile(ctx context.Context, cs spec.CompileSpec) (result.CompileResult, error)
}

// Config controls compiler invocations.
type Config struct {
	MaxDiagnosticBytes int `yaml:"maxDiagnosticBytes"`
}

// ProcessCompiler runs the compiler as a child process in its own group.
type ProcessCompiler struct {
	cfg Config
}

// New creates a ProcessCompiler.
func New(cfg Config) *ProcessCompiler {
	if cfg.MaxDiagnosticBytes <= 0 {
		cfg.MaxDiagnosticBytes = defaultDiagnosticBytes
	}
	return &ProcessCompiler{cfg: cfg}
}

// Compile runs cs. A nonzero exit or a timeout is a failed CompileResult, not
// an error; errors are reserved for supervisor faults.
func (c *ProcessCompiler) Compile(ctx context.Context, cs spec.CompileSpec) (result.CompileResult, error) {
	argv, err := BuildCommand(cs.Command, cs.Source, cs.Binary)
	if err != nil {
		return result.CompileResult{}, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cs.WorkDir
	cmd.Env = buildEnv(cs.Env, cs.WorkDir)
	cmd.SysProcAttr = groupAttr()
	cmd.WaitDelay = waitDelay
	stdout := capture.NewBuffer(c.cfg.MaxDiagnosticBytes)
	stderr := capture.NewBuffer(c.cfg.MaxDiagnosticBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.CompileResult{}, appErr.Wrapf(err, appErr.SupervisorInternalError, "start compiler")
	}

	var timer <-chan time.Time
	if cs.Timeout > 0 {
		t := time.NewTimer(cs.Timeout)
		defer t.Stop()
		timer = t.C
	}
	done := make(chan struct{})
	outcome := make(chan string, 1)
	go func() {
		select {
		case <-done:
			outcome <- ""
		case <-timer:
			killGroup(cmd.Process.Pid)
			outcome <- "timeout"
		case <-ctx.Done():
			killGroup(cmd.Process.Pid)
			outcome <- "canceled"
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Stragglers that kept the group alive past the compiler itself.
	killGroup(cmd.Process.Pid)
	elapsed := time.Since(start)

	res := result.CompileResult{
		ExitCode: exitCode(waitErr, cmd.ProcessState),
		TimeMs:   elapsed.Milliseconds(),
	}
	switch <-outcome {
	case "timeout":
		res.TimedOut = true
		res.Diagnostic = fmt.Sprintf("compilation exceeded %s", cs.Timeout)
		logger.Warn(ctx, "compiler timed out", zap.Duration("timeout", cs.Timeout))
		return res, nil
	case "canceled":
		return res, appErr.Wrapf(ctx.Err(), appErr.SupervisorInternalError, "compilation canceled")
	}

	if waitErr != nil || res.ExitCode != 0 {
		diag := stderr.String()
		if strings.TrimSpace(diag) == "" {
			diag = stdout.String()
		}
		if strings.TrimSpace(diag) == "" {
			diag = fmt.Sprintf("compiler exited with status %d", res.ExitCode)
		}
		res.Diagnostic = Redact(diag, cs)
		return res, nil
	}
	if _, err := os.Stat(cs.Binary); err != nil {
		res.Diagnostic = "compiler produced no binary"
		return res, nil
	}
	res.OK = true
	return res, nil
}

// BuildCommand splits tpl and substitutes the {src} and {bin} arguments.
// Substitution happens after splitting, so paths are never re-parsed.
func BuildCommand(tpl, src, bin string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	for i, f := range fields {
		switch f {
		case "{src}":
			fields[i] = src
		case "{bin}":
			fields[i] = bin
		}
	}
	return fields, nil
}

// Probe checks that the compiler named by tpl can be found.
func Probe(tpl string) error {
	argv, err := BuildCommand(tpl, "", "")
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "compiler %s not found", argv[0])
	}
	return nil
}

// Redact removes request paths from compiler output.
func Redact(diag string, cs spec.CompileSpec) string {
	if cs.Source != "" {
		diag = strings.ReplaceAll(diag, cs.Source, "submission"+extOf(cs.Source))
	}
	if cs.Binary != "" {
		diag = strings.ReplaceAll(diag, cs.Binary, "submission")
	}
	if cs.WorkDir != "" {
		diag = strings.ReplaceAll(diag, cs.WorkDir, ScratchPlaceholder)
	}
	return diag
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[i:]
	}
	return ""
}

func buildEnv(env []string, workDir string) []string {
	out := make([]string, 0, len(env)+2)
	hasPath := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "TMPDIR=") {
			continue
		}
		hasPath = hasPath || strings.HasPrefix(kv, "PATH=")
		out = append(out, kv)
	}
	if !hasPath {
		out = append(out, "PATH="+defaultPath)
	}
	// Compiler temporaries land in the request directory and are swept with it.
	return append(out, "TMPDIR="+workDir)
}

func exitCode(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
