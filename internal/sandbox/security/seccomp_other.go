//go:build !linux

package security

import (
	"fmt"

	appErr "execbox/pkg/errors"
)

// Probe always fails: seccomp is linux-only.
func Probe(p Policy) error {
	return appErr.New(appErr.IsolationUnavailable).WithMessage("isolation unavailable: seccomp is only supported on linux")
}

// Load always fails: seccomp is linux-only.
func Load(p Policy) error {
	return fmt.Errorf("seccomp is only supported on linux")
}
