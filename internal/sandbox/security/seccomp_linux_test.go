//go:build linux

package security

import (
	"testing"

	appErr "execbox/pkg/errors"
)

func TestProbe(t *testing.T) {
	p := mustBuild(t, DefaultPolicyConfig())
	if err := Probe(p); err != nil {
		if appErr.GetCode(err) != appErr.IsolationUnavailable {
			t.Fatalf("probe error code = %d, want IsolationUnavailable", appErr.GetCode(err))
		}
		t.Skipf("seccomp unavailable: %v", err)
	}

	bogus := mustBuild(t, PolicyConfig{Rules: []Rule{{Syscall: "not_a_syscall", Action: ActionKill}}})
	if err := Probe(bogus); appErr.GetCode(err) != appErr.IsolationUnavailable {
		t.Fatalf("probe with unknown syscall = %v, want IsolationUnavailable", err)
	}

	// Policies built elsewhere are checked too.
	open := Policy{DefaultAction: ActionAllow}
	if err := Probe(open); appErr.GetCode(err) != appErr.IsolationUnavailable {
		t.Fatalf("probe with exec allowed = %v, want IsolationUnavailable", err)
	}
}
