//go:build linux

package security

import (
	"fmt"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	appErr "execbox/pkg/errors"
)

// Probe checks that the kernel and libseccomp can enforce p on this machine.
func Probe(p Policy) error {
	if _, err := unix.PrctlRetInt(unix.PR_GET_SECCOMP, 0, 0, 0, 0); err != nil {
		return unavailable("kernel does not support seccomp: %v", err)
	}
	api, err := seccomp.GetAPI()
	if err != nil {
		return unavailable("libseccomp API level: %v", err)
	}
	if api < 1 {
		return unavailable("libseccomp API level %d", api)
	}
	major, minor, _ := seccomp.GetLibraryVersion()
	if major < 2 || (major == 2 && minor < 4) {
		return unavailable("libseccomp %d.%d lacks process-wide kill", major, minor)
	}
	for _, r := range p.Rules {
		if _, err := seccomp.GetSyscallFromName(r.Syscall); err != nil {
			return unavailable("syscall %s is unknown on this architecture", r.Syscall)
		}
	}
	if !p.DeniesExec() {
		return unavailable("policy does not deny the exec family")
	}
	return nil
}

// Load sets no_new_privs and installs p on the calling thread group. It is
// irreversible for the rest of the process lifetime.
func Load(p Policy) error {
	def, err := scmpAction(p.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(def)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	for _, r := range p.Rules {
		sc, err := seccomp.GetSyscallFromName(r.Syscall)
		if err != nil {
			return fmt.Errorf("resolve syscall %s: %w", r.Syscall, err)
		}
		act, err := scmpAction(r.Action)
		if err != nil {
			return err
		}
		if err := filter.AddRuleExact(sc, act); err != nil {
			return fmt.Errorf("add seccomp rule %s: %w", r.Syscall, err)
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func scmpAction(a Action) (seccomp.ScmpAction, error) {
	switch a {
	case ActionAllow:
		return seccomp.ActAllow, nil
	case ActionKill:
		return seccomp.ActKillProcess, nil
	case ActionErrno:
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", a)
	}
}

func unavailable(format string, args ...interface{}) error {
	return appErr.Newf(appErr.IsolationUnavailable, "isolation unavailable: "+format, args...)
}
