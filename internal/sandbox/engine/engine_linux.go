//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"execbox/internal/sandbox/capture"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const statusMaxBytes = 4096

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine. The helper must be resolvable.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	path, err := exec.LookPath(cfg.HelperPath)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.IsolationUnavailable, "sandbox helper %s not found", cfg.HelperPath)
	}
	cfg.HelperPath = path
	if cfg.EnableCgroup {
		if err := prepareCgroupRoot(cfg.CgroupRoot); err != nil {
			return nil, appErr.Wrapf(err, appErr.IsolationUnavailable, "prepare cgroup root %s", cfg.CgroupRoot)
		}
	}
	return &linuxEngine{cfg: cfg}, nil
}

// pipes holds both ends of the three helper descriptors.
type pipes struct {
	initR, initW     *os.File
	statusR, statusW *os.File
	ackR, ackW       *os.File
}

func openPipes() (*pipes, error) {
	p := &pipes{}
	var err error
	if p.initR, p.initW, err = os.Pipe(); err != nil {
		return nil, err
	}
	if p.statusR, p.statusW, err = os.Pipe(); err != nil {
		p.close()
		return nil, err
	}
	if p.ackR, p.ackW, err = os.Pipe(); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// closeChildEnds drops the parent's copies of the descriptors the child owns.
func (p *pipes) closeChildEnds() {
	for _, f := range []*os.File{p.initR, p.statusW, p.ackW} {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (p *pipes) close() {
	for _, f := range []*os.File{p.initR, p.initW, p.statusR, p.statusW, p.ackR, p.ackW} {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	payload, err := json.Marshal(newInitRequest(runSpec))
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SupervisorInternalError, "encode init request")
	}

	p, err := openPipes()
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SupervisorInternalError, "create helper pipes")
	}
	defer p.close()

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		cgroupPath, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID)
		if err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.IsolationUnavailable, "create cgroup")
		}
		defer func() {
			if err := removeCgroup(cgroupPath, e.cfg.WaitDelay); err != nil {
				logger.Warn(ctx, "remove cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
			}
		}()
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.IsolationUnavailable, "apply cgroup limits")
		}
	}

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.Dir = runSpec.WorkDir
	cmd.Env = []string{}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	// ExtraFiles[i] becomes descriptor 3+i.
	cmd.ExtraFiles = []*os.File{p.initR, p.statusW, p.ackW}
	if len(runSpec.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(runSpec.Stdin)
	}
	stdout := capture.NewBuffer(e.cfg.MaxOutputBytes)
	stderr := capture.NewBuffer(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.cfg.WaitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SupervisorInternalError, "start helper")
	}
	p.closeChildEnds()
	pid := cmd.Process.Pid

	// The helper blocks on the init request, so nothing runs before it
	// joins the group.
	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			killProcessGroup(pid)
			_ = cmd.Wait()
			return result.RunResult{}, appErr.Wrapf(err, appErr.IsolationUnavailable, "add helper to cgroup")
		}
	}

	go func() {
		_, _ = p.initW.Write(payload)
		_ = p.initW.Close()
	}()
	statusCh := readAll(p.statusR, statusMaxBytes)
	ackCh := readAll(p.ackR, 1)

	var timer <-chan time.Time
	wallLimit := runSpec.Limits.WallTime()
	if wallLimit > 0 {
		t := time.NewTimer(wallLimit)
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
			e.killRun(ctx, cgroupPath, pid)
			outcome <- "timeout"
		case <-ctx.Done():
			e.killRun(ctx, cgroupPath, pid)
			outcome <- "canceled"
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	e.killRun(ctx, cgroupPath, pid)
	wall := time.Since(start)

	// Descendants that left the group can hold the pipes open.
	status := collect(statusCh, p.statusR, e.cfg.WaitDelay)
	ack := collect(ackCh, p.ackR, e.cfg.WaitDelay)

	if waitErr != nil && !isExitOrDelay(waitErr) {
		return result.RunResult{}, appErr.Wrapf(waitErr, appErr.SupervisorInternalError, "wait for helper")
	}

	res := result.RunResult{
		ExitCode:        cmd.ProcessState.ExitCode(),
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Isolated:        len(ack) == 1 && ack[0] == security.AckByte,
		WallTimeMs:      wall.Milliseconds(),
		TimeMs:          cpuTimeMs(cmd.ProcessState),
		MemoryKB:        memoryPeakKB(cgroupPath, cmd.ProcessState),
		OomKilled:       wasOomKilled(cgroupPath),
	}
	if res.OomKilled {
		logger.Warn(ctx, "program hit the cgroup memory limit", zap.Int64("memory_mb", runSpec.Limits.MemoryMB))
	}

	switch <-outcome {
	case "timeout":
		res.TimedOut = true
		res.Termination = result.TerminationSupervisorError
		res.Reason = fmt.Sprintf("execution exceeded %s", wallLimit)
		logger.Warn(ctx, "program timed out", zap.Duration("limit", wallLimit))
		return res, nil
	case "canceled":
		return res, appErr.Wrapf(ctx.Err(), appErr.SupervisorInternalError, "run canceled")
	}

	classify(&res, cmd.ProcessState, strings.TrimSpace(string(status)))
	if res.Termination == result.TerminationSupervisorError {
		logger.Warn(ctx, "sandbox run not trusted",
			zap.String("reason", res.Reason),
			zap.Int("exit_code", res.ExitCode),
			zap.String("signal", res.Signal),
		)
	}
	return res, nil
}

// classify maps the wait status onto a termination kind. A run whose policy
// was never acknowledged is never reported as a program outcome.
func classify(res *result.RunResult, state *os.ProcessState, status string) {
	ws, _ := state.Sys().(syscall.WaitStatus)
	if status != "" {
		res.Termination = result.TerminationSupervisorError
		res.Reason = "sandbox-init: " + status
		return
	}
	if ws.Signaled() {
		res.Signal = unix.SignalName(ws.Signal())
		if res.Signal == "" {
			res.Signal = fmt.Sprintf("signal %d", int(ws.Signal()))
		}
	}
	switch {
	case ws.Signaled() && ws.Signal() == syscall.SIGSYS && res.Isolated:
		res.Termination = result.TerminationPolicyKilled
	case !res.Isolated:
		res.Termination = result.TerminationSupervisorError
		res.Reason = "isolation not confirmed"
		if ws.Exited() && ws.ExitStatus() == security.ActivationFailedExit {
			res.Reason = "isolation activation failed"
		}
	case ws.Signaled() && ws.Signal() == syscall.SIGXCPU:
		res.TimedOut = true
		res.Termination = result.TerminationSupervisorError
		res.Reason = "cpu time limit exceeded"
	case ws.Signaled():
		res.Termination = result.TerminationCrashed
	default:
		res.Termination = result.TerminationNormal
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	switch {
	case runSpec.SubmissionID == "":
		return appErr.New(appErr.SupervisorInternalError).WithMessage("submission id is required")
	case runSpec.Binary == "":
		return appErr.New(appErr.SupervisorInternalError).WithMessage("binary is required")
	case runSpec.WorkDir == "":
		return appErr.New(appErr.SupervisorInternalError).WithMessage("work dir is required")
	case !runSpec.Policy.DeniesExec():
		return appErr.New(appErr.SupervisorInternalError).WithMessage("policy does not deny the exec family")
	}
	return nil
}

func readAll(r io.Reader, limit int64) <-chan []byte {
	ch := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(io.LimitReader(r, limit))
		ch <- data
	}()
	return ch
}

// collect waits up to delay for a reader, then closes f to release it.
func collect(ch <-chan []byte, f *os.File, delay time.Duration) []byte {
	select {
	case data := <-ch:
		return data
	case <-time.After(delay):
		_ = f.Close()
		return <-ch
	}
}

func isExitOrDelay(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay)
}

// killRun kills the run cgroup when there is one, then the helper's process
// group. Kernels without cgroup.kill fall back to the group kill alone.
func (e *linuxEngine) killRun(ctx context.Context, cgroupPath string, pid int) {
	if cgroupPath != "" {
		if err := killCgroup(cgroupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	killProcessGroup(pid)
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}
