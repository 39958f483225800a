package engine

import (
	"testing"

	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/spec"
)

func TestNewInitRequestRelaxesExecOnly(t *testing.T) {
	policy, err := security.Build(security.PolicyConfig{Rules: []security.Rule{
		{Syscall: "socket", Action: security.ActionErrno},
	}})
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	req := newInitRequest(spec.RunSpec{Binary: "/w/a.bin", WorkDir: "/w", Policy: policy})
	for _, name := range security.ExecFamily {
		if req.PreExec.ActionFor(name) != security.ActionAllow {
			t.Fatalf("helper must be able to exec, %s = %s", name, req.PreExec.ActionFor(name))
		}
	}
	if req.PreExec.ActionFor("socket") != security.ActionErrno {
		t.Fatalf("pre-exec filter lost socket rule: %+v", req.PreExec)
	}
	if req.Binary != "/w/a.bin" || req.WorkDir != "/w" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.HelperPath != defaultHelperPath || cfg.MaxOutputBytes != defaultMaxOutputBytes || cfg.WaitDelay != defaultWaitDelay {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	cfg = Config{HelperPath: "/x", MaxOutputBytes: 7}.withDefaults()
	if cfg.HelperPath != "/x" || cfg.MaxOutputBytes != 7 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}
