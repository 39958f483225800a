//go:build linux

package compiler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
)

func newSpec(t *testing.T, command string, timeout time.Duration) spec.CompileSpec {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "req.c")
	if err := os.WriteFile(src, []byte("int main(void) { return 0; }\n"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return spec.CompileSpec{
		Profile: "test",
		Command: command,
		Source:  src,
		Binary:  filepath.Join(dir, "req.bin"),
		WorkDir: dir,
		Timeout: timeout,
	}
}

func TestCompileScripted(t *testing.T) {
	cases := []struct {
		name    string
		command string
		ok      bool
		diag    string
	}{
		{name: "success", command: `/bin/sh -c 'cp "$0" "$1"' {src} {bin}`, ok: true},
		{name: "stderr_diagnostic", command: `/bin/sh -c 'echo "$0:1:1: error: boom" >&2; exit 1' {src} {bin}`, diag: "submission.c:1:1: error: boom"},
		{name: "stdout_fallback", command: `/bin/sh -c 'echo "only stdout"; exit 2' {src} {bin}`, diag: "only stdout"},
		{name: "silent_failure", command: `/bin/sh -c 'exit 4' {src} {bin}`, diag: "status 4"},
		{name: "no_binary", command: `/bin/sh -c 'exit 0' {src} {bin}`, diag: "no binary"},
		{name: "tmpdir_is_request_dir", command: `/bin/sh -c 'test "$TMPDIR" = "$(dirname "$0")" && cp "$0" "$1"' {src} {bin}`, ok: true},
	}
	c := New(Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newSpec(t, tc.command, 5*time.Second)
			res, err := c.Compile(context.Background(), cs)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if res.OK != tc.ok {
				t.Fatalf("ok = %v, want %v (diag %q)", res.OK, tc.ok, res.Diagnostic)
			}
			if !strings.Contains(res.Diagnostic, tc.diag) {
				t.Fatalf("diagnostic = %q, want substring %q", res.Diagnostic, tc.diag)
			}
			if strings.Contains(res.Diagnostic, cs.WorkDir) {
				t.Fatalf("diagnostic leaks request dir: %q", res.Diagnostic)
			}
		})
	}
}

func TestCompileTimeoutKillsGroup(t *testing.T) {
	cs := newSpec(t, `/bin/sh -c 'sleep 30 & echo $! > "$1.pid"; wait' {src} {bin}`, 300*time.Millisecond)
	start := time.Now()
	res, err := New(Config{}).Compile(context.Background(), cs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.TimedOut || res.OK {
		t.Fatalf("result = %+v, want timed out", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(start))
	}
	assertDead(t, readPID(t, cs.Binary+".pid"))
}

func TestCompileCanceled(t *testing.T) {
	cs := newSpec(t, `/bin/sh -c 'sleep 30' {src} {bin}`, 0)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err := New(Config{}).Compile(ctx, cs)
	if appErr.GetCode(err) != appErr.SupervisorInternalError {
		t.Fatalf("error = %v, want SupervisorInternalError", err)
	}
}

func TestCompileMissingCompiler(t *testing.T) {
	cs := newSpec(t, "/nonexistent/cc -o {bin} {src}", time.Second)
	if _, err := New(Config{}).Compile(context.Background(), cs); appErr.GetCode(err) != appErr.SupervisorInternalError {
		t.Fatalf("error = %v, want SupervisorInternalError", err)
	}
}

func TestCompileGCCSyntaxError(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available")
	}
	cs := newSpec(t, "gcc -std=gnu11 -O0 -Werror -o {bin} {src}", 30*time.Second)
	if err := os.WriteFile(cs.Source, []byte("int main(void) { return }\n"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	res, err := New(Config{}).Compile(context.Background(), cs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.OK || !strings.Contains(res.Diagnostic, "error") {
		t.Fatalf("result = %+v, want failure with diagnostic", res)
	}
	if strings.Contains(res.Diagnostic, cs.WorkDir) {
		t.Fatalf("diagnostic leaks request dir: %q", res.Diagnostic)
	}
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				t.Fatalf("parse pid: %v", err)
			}
			return pid
		}
		if time.Now().After(deadline) {
			t.Fatalf("pid file %s not written", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// assertDead waits for pid to disappear or become a zombie.
func assertDead(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
			return
		}
		if stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat"); err == nil {
			fields := strings.Fields(string(stat))
			if len(fields) > 2 && fields[2] == "Z" {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("process %d still alive", pid)
}
