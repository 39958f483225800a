//go:build linux

// Command sandbox-init prepares the process that runs a compiled submission.
// It reads an engine.InitRequest from fd 3, reports setup failures on fd 4
// and hands fd 5 to the program as the activation-ack descriptor.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/spec"
)

const (
	defaultPath  = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	initMaxBytes = 1 << 20
)

func main() {
	if err := run(); err != nil {
		msg := []byte(err.Error() + "\n")
		if _, werr := unix.Write(engine.StatusFD, msg); werr != nil {
			_, _ = os.Stderr.Write(msg)
		}
		os.Exit(engine.HelperFailedExit)
	}
}

func run() error {
	// The status pipe must vanish at exec so the engine sees EOF only.
	if _, err := unix.FcntlInt(uintptr(engine.StatusFD), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return fmt.Errorf("status descriptor: %w", err)
	}
	req, err := readRequest(engine.InitFD)
	if err != nil {
		return err
	}
	if req.Binary == "" || req.WorkDir == "" {
		return fmt.Errorf("binary and work dir are required")
	}
	if err := os.Chdir(req.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}
	// Replaces the init descriptor atomically; no other fd can land on 3.
	if err := unix.Dup3(engine.AckPipeFD, security.AckFD, 0); err != nil {
		return fmt.Errorf("move ack descriptor: %w", err)
	}
	if err := unix.Close(engine.AckPipeFD); err != nil {
		return fmt.Errorf("close ack pipe: %w", err)
	}

	if req.PreExec.Empty() {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return fmt.Errorf("set no new privs: %w", err)
		}
	} else if err := security.Load(req.PreExec); err != nil {
		return err
	}

	env := req.Env
	if len(env) == 0 {
		env = []string{"PATH=" + defaultPath}
	}
	// The Go runtime may still map memory or start threads until exec.
	if err := applyLateLimits(req.Limits); err != nil {
		return err
	}
	if err := unix.Exec(req.Binary, []string{req.Binary}, env); err != nil {
		return fmt.Errorf("exec binary: %w", err)
	}
	return nil
}

// readRequest reads the raw descriptor without wrapping it in an *os.File,
// whose finalizer could later close whatever then occupies that number.
func readRequest(fd int) (engine.InitRequest, error) {
	var (
		data []byte
		buf  = make([]byte, 32*1024)
	)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if len(data) > initMaxBytes {
				return engine.InitRequest{}, fmt.Errorf("init request too large")
			}
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return engine.InitRequest{}, fmt.Errorf("read init request: %w", err)
		}
		if n == 0 {
			break
		}
	}
	var req engine.InitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return engine.InitRequest{}, fmt.Errorf("decode init request: %w", err)
	}
	return req, nil
}

func applyRlimits(limits spec.ResourceLimit) error {
	if limits.CPUTimeMs > 0 {
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		bytes := uint64(limits.OutputMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackMB > 0 {
		bytes := uint64(limits.StackMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if limits.OpenFiles > 0 {
		val := uint64(limits.OpenFiles)
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nofile: %w", err)
		}
	}
	return nil
}

func applyLateLimits(limits spec.ResourceLimit) error {
	if limits.PIDs > 0 {
		val := uint64(limits.PIDs)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	if limits.MemoryMB > 0 {
		bytes := uint64(limits.MemoryMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	return nil
}
