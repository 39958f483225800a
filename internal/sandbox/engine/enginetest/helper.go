// Package enginetest builds the sandbox-init helper for tests.
package enginetest

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	buildDir  string
	buildErr  error
	buildOut  []byte
)

// Helper builds cmd/sandbox-init once per test binary and returns its path.
// The test is skipped when the helper cannot be built, for example when the
// libseccomp development headers are missing.
func Helper(t testing.TB) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available to build sandbox-init")
	}
	buildOnce.Do(func() {
		// Shared by every test in the binary; left to the OS temp cleaner.
		dir, err := os.MkdirTemp("", "execbox-helper-")
		if err != nil {
			buildErr = err
			return
		}
		buildDir = dir
		cmd := exec.Command("go", "build", "-o", filepath.Join(dir, "sandbox-init"), "execbox/cmd/sandbox-init")
		buildOut, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Skipf("build sandbox-init: %v: %s", buildErr, buildOut)
	}
	return filepath.Join(buildDir, "sandbox-init")
}
