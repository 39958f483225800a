package validate

import (
	"strings"
	"testing"
)

func mustValidator(t *testing.T, cfg Config) *Validator {
	t.Helper()
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func TestAllowlistDefaultClass(t *testing.T) {
	v := mustValidator(t, Config{Mode: ModeAllowlist})

	cases := []struct {
		name   string
		in     string
		accept bool
	}{
		{name: "sum", in: "2+3", accept: true},
		{name: "all_symbols", in: "a.b&c^d*e+f-g~h/i<j>k:l%m", accept: true},
		{name: "printf_call", in: `printf("hi\n");`, accept: false},
		{name: "space", in: "2 + 3", accept: false},
		{name: "semicolon", in: "1;", accept: false},
		{name: "hash", in: "#include", accept: false},
		{name: "non_ascii", in: "2×3", accept: false},
		{name: "empty", in: "", accept: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := v.Validate([]byte(tc.in))
			if verdict.Accepted != tc.accept {
				t.Fatalf("Validate(%q) accepted=%v, want %v (reason %q)", tc.in, verdict.Accepted, tc.accept, verdict.Reason)
			}
			if !verdict.Accepted && verdict.Reason == "" {
				t.Fatal("rejection must carry a reason")
			}
		})
	}
}

func TestAllowlistRejectsParensFirst(t *testing.T) {
	v := mustValidator(t, Config{Mode: ModeAllowlist})
	verdict := v.Validate([]byte(`printf("hi\n");`))
	if !verdict.Rejected() {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(verdict.Reason, "'('") || !strings.Contains(verdict.Reason, "offset 6") {
		t.Fatalf("unexpected reason: %q", verdict.Reason)
	}
}

func TestAllowlistCustomClass(t *testing.T) {
	v := mustValidator(t, Config{Mode: ModeAllowlist, Allowed: `0-9\-`})
	if !v.Validate([]byte("10-2")).Accepted {
		t.Fatal("expected digits and minus to be accepted")
	}
	if v.Validate([]byte("1+2")).Accepted {
		t.Fatal("plus is outside the custom class")
	}
}

func TestAllowlistClassErrors(t *testing.T) {
	for _, class := range []string{`a\`, `z-a`, "a\tb", "é"} {
		if _, err := New(Config{Mode: ModeAllowlist, Allowed: class}); err == nil {
			t.Fatalf("expected error for class %q", class)
		}
	}
}

func TestDenylistDefaultSet(t *testing.T) {
	v := mustValidator(t, Config{Mode: ModeDenylist})

	cases := []struct {
		in     string
		accept bool
	}{
		{in: "int x = 40 + 2; return x;", accept: true},
		{in: `puts("hi");`, accept: false},
		{in: "if 1 { return 0; }", accept: false},
		{in: "#define X 1", accept: false},
		{in: "return 5 % 2;", accept: false},
		{in: "return 1 ? 2 : 3;", accept: false},
		{in: "<% %>", accept: false},
		{in: "??<", accept: false},
	}
	for _, tc := range cases {
		verdict := v.Validate([]byte(tc.in))
		if verdict.Accepted != tc.accept {
			t.Fatalf("Validate(%q) accepted=%v, want %v (reason %q)", tc.in, verdict.Accepted, tc.accept, verdict.Reason)
		}
	}
}

// The two modes give different guarantees; both directions are pinned here so
// switching a profile's mode is a visible decision.
func TestModeTradeoff(t *testing.T) {
	allow := mustValidator(t, Config{Mode: ModeAllowlist})
	deny := mustValidator(t, Config{Mode: ModeDenylist})

	statement := []byte("int x = 40 + 2; return x;")
	if !deny.Validate(statement).Accepted {
		t.Fatal("denylist should accept statement-level code")
	}
	if allow.Validate(statement).Accepted {
		t.Fatal("allowlist should reject statement-level code")
	}

	modulo := []byte("7%4")
	if !allow.Validate(modulo).Accepted {
		t.Fatal("allowlist should accept modulo expressions")
	}
	if deny.Validate(modulo).Accepted {
		t.Fatal("denylist should reject percent")
	}
}

// The denylist only sees literal characters. Escape sequences that spell a
// forbidden character pass; the harness structure check is what keeps the
// fragment inside its hole.
func TestDenylistIsIncomplete(t *testing.T) {
	deny := mustValidator(t, Config{Mode: ModeDenylist})
	escaped := []byte(`char s[] = "\x28\x29\x7b"; return s[0];`)
	if !deny.Validate(escaped).Accepted {
		t.Fatal("denylist is expected to accept escaped forbidden characters")
	}
}

func TestDenylistRejectsEmptyEntry(t *testing.T) {
	if _, err := New(Config{Mode: ModeDenylist, Denied: []string{"(", ""}}); err == nil {
		t.Fatal("expected error for empty denylist entry")
	}
}

func TestUnknownMode(t *testing.T) {
	if _, err := New(Config{Mode: "regex"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
