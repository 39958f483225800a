// Package validate classifies raw submissions against a configured
// character allowlist or substring denylist.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Mode selects the validation strategy.
type Mode string

const (
	// ModeAllowlist accepts only submissions made entirely of allowed characters.
	ModeAllowlist Mode = "allowlist"
	// ModeDenylist accepts any submission containing none of the denied substrings.
	ModeDenylist Mode = "denylist"
)

// DefaultAllowed is the minimal-expression character class.
const DefaultAllowed = `A-Za-z0-9.&^*+\-~/<>:%`

// DefaultDenied blocks block structure, calls, preprocessor and format tricks.
var DefaultDenied = []string{"{", "}", "(", ")", "#", "%", "?"}

// Config describes one validator.
type Config struct {
	Mode Mode `yaml:"mode"`
	// Allowed is a character class body (ranges like a-z, backslash escapes).
	Allowed string `yaml:"allowed"`
	// Denied lists forbidden substrings.
	Denied []string `yaml:"denied"`
}

// Verdict is the outcome of one classification.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Rejected reports whether the verdict is terminal.
func (v Verdict) Rejected() bool {
	return !v.Accepted
}

func accept() Verdict {
	return Verdict{Accepted: true}
}

func reject(format string, args ...interface{}) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Validator is a compiled, immutable validation policy. Safe for concurrent use.
type Validator struct {
	mode    Mode
	allowed [utf8.RuneSelf]bool
	denied  []string
}

// New compiles cfg. Empty allow/deny sets fall back to the defaults.
func New(cfg Config) (*Validator, error) {
	v := &Validator{mode: cfg.Mode}
	switch cfg.Mode {
	case ModeAllowlist:
		class := cfg.Allowed
		if class == "" {
			class = DefaultAllowed
		}
		table, err := parseClass(class)
		if err != nil {
			return nil, err
		}
		v.allowed = table
	case ModeDenylist:
		denied := cfg.Denied
		if len(denied) == 0 {
			denied = DefaultDenied
		}
		for _, d := range denied {
			if d == "" {
				return nil, fmt.Errorf("denylist contains an empty entry")
			}
		}
		v.denied = append([]string(nil), denied...)
	default:
		return nil, fmt.Errorf("unsupported validator mode %q", cfg.Mode)
	}
	return v, nil
}

// Mode returns the configured mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// Validate classifies raw. It never panics and has no side effects.
func (v *Validator) Validate(raw []byte) Verdict {
	if len(raw) == 0 {
		return reject("submission is empty")
	}
	switch v.mode {
	case ModeAllowlist:
		for i := 0; i < len(raw); i++ {
			c := raw[i]
			if c >= utf8.RuneSelf || !v.allowed[c] {
				return reject("character %s at offset %d is not allowed", describeByte(c), i)
			}
		}
		return accept()
	case ModeDenylist:
		text := string(raw)
		for _, d := range v.denied {
			if idx := strings.Index(text, d); idx >= 0 {
				return reject("%q at offset %d is not allowed", d, idx)
			}
		}
		return accept()
	default:
		return reject("validator is not configured")
	}
}

func describeByte(c byte) string {
	if c >= 0x20 && c < 0x7f {
		return fmt.Sprintf("%q", rune(c))
	}
	return fmt.Sprintf("0x%02x", c)
}

// parseClass expands a class body such as `A-Za-z0-9.\-` into a lookup table.
func parseClass(class string) ([utf8.RuneSelf]bool, error) {
	var table [utf8.RuneSelf]bool
	var members []byte
	for i := 0; i < len(class); i++ {
		c := class[i]
		if c == '\\' {
			if i+1 >= len(class) {
				return table, fmt.Errorf("allowlist class ends with a dangling escape")
			}
			i++
			members = append(members, class[i])
			continue
		}
		if c == '-' && len(members) > 0 && i+1 < len(class) {
			lo := members[len(members)-1]
			hi := class[i+1]
			if hi == '\\' {
				if i+2 >= len(class) {
					return table, fmt.Errorf("allowlist class ends with a dangling escape")
				}
				hi = class[i+2]
				i++
			}
			i++
			if hi < lo {
				return table, fmt.Errorf("allowlist range %c-%c is reversed", lo, hi)
			}
			for b := int(lo) + 1; b <= int(hi); b++ {
				members = append(members, byte(b))
			}
			continue
		}
		members = append(members, c)
	}
	if len(members) == 0 {
		return table, fmt.Errorf("allowlist class is empty")
	}
	for _, m := range members {
		if m >= utf8.RuneSelf {
			return table, fmt.Errorf("allowlist class must be ASCII")
		}
		if m < 0x20 || m == 0x7f {
			return table, fmt.Errorf("allowlist class must not contain control characters")
		}
		table[m] = true
	}
	return table, nil
}
