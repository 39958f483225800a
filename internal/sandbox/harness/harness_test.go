package harness

import (
	"errors"
	"strings"
	"testing"
)

func TestParseHoles(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr string
	}{
		{name: "ok", text: "{{.Isolation}}\nint f(void) {\n{{.Fragment}}\n}\n"},
		{name: "missing_fragment", text: "{{.Isolation}}\nint x;\n", wantErr: "missing {{.Fragment}}"},
		{name: "missing_isolation", text: "int f(void) {\n{{.Fragment}}\n}\n", wantErr: "missing {{.Isolation}}"},
		{name: "duplicate_fragment", text: "{{.Isolation}}\n{{.Fragment}}\n{{.Fragment}}\n", wantErr: "appears 2 times"},
		{name: "unknown_field", text: "{{.Isolation}}\n{{.Fragment}}\n{{.Secret}}\n", wantErr: "unknown hole"},
		{name: "range", text: "{{.Isolation}}\n{{range .Fragment}}{{end}}\n{{.Fragment}}\n", wantErr: "unsupported template construct"},
		{name: "pipeline", text: "{{.Isolation}}\n{{.Fragment | printf \"%s\"}}\n", wantErr: "unsupported template action"},
		{name: "inline_fragment", text: "{{.Isolation}}\nint x = {{.Fragment}};\n", wantErr: "line of its own"},
		{name: "trimmed_fragment", text: "{{.Isolation}}\nint x = (\n{{- .Fragment -}}\n);\n", wantErr: "line of its own"},
		{name: "define", text: "{{define \"x\"}}y{{end}}{{.Isolation}}\n{{.Fragment}}\n", wantErr: "nested template"},
		{name: "syntax", text: "{{.Isolation}\n", wantErr: "harness"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.name, tc.text, ContextStatements)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("parse: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("parse error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseRejectsUnknownContext(t *testing.T) {
	if _, err := Parse("x", ExpressionSource, Context("block")); err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestBuiltinHarnessesParse(t *testing.T) {
	for _, ctx := range []Context{ContextExpression, ContextStatements} {
		h, ok := Builtin(ctx)
		if !ok || h.Context() != ctx {
			t.Fatalf("builtin harness for %s missing", ctx)
		}
	}
	if _, ok := Builtin(Context("other")); ok {
		t.Fatal("unexpected builtin for unknown context")
	}
}

func TestRenderExpression(t *testing.T) {
	h, _ := Builtin(ContextExpression)
	frag, err := NewFragment([]byte("2+3"), ContextExpression)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	out, err := h.Render(frag, "/* prologue */")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	src := string(out)
	if !strings.Contains(src, "long long result = (\n2+3\n\t);") {
		t.Fatalf("fragment not placed in hole:\n%s", src)
	}
	if strings.Index(src, "/* prologue */") > strings.Index(src, "int main") {
		t.Fatalf("prologue must precede main:\n%s", src)
	}
}

func TestRenderRejectsContextMismatch(t *testing.T) {
	h, _ := Builtin(ContextExpression)
	frag, err := NewFragment([]byte("return 1;"), ContextStatements)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if _, err := h.Render(frag, ""); err == nil {
		t.Fatal("expected context mismatch error")
	}
	if _, err := h.Render(Fragment{}, ""); err == nil {
		t.Fatal("expected error for zero fragment")
	}
}

func TestRenderDoesNotInterpretFragment(t *testing.T) {
	h, _ := Builtin(ContextStatements)
	frag, err := NewFragment([]byte(`puts("{{.Isolation}}");`), ContextStatements)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	out, err := h.Render(frag, "PROLOGUE")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Count(string(out), "PROLOGUE") != 1 {
		t.Fatal("fragment text must be inserted literally")
	}
	if !strings.Contains(string(out), `puts("{{.Isolation}}");`) {
		t.Fatal("fragment text missing")
	}
}

func TestNewFragment(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		ctx    Context
		reason string
	}{
		{name: "sum", code: "2+3", ctx: ContextExpression},
		{name: "digraph_subscript", code: "\"ab\"<:1:>", ctx: ContextExpression},
		{name: "shift_then_colon", code: "1<<2", ctx: ContextExpression},
		{name: "ternary_in_statements", code: "int x = 1 ? 2 : 3; return x;", ctx: ContextStatements},
		{name: "braces_in_statements", code: "if (1) { return 2; }", ctx: ContextStatements},
		{name: "comment_brace", code: "1 /* } */", ctx: ContextExpression},
		{name: "literal_brace", code: `puts("}");`, ctx: ContextStatements},
		{name: "char_literal", code: `return '}';`, ctx: ContextStatements},
		{name: "line_comment", code: "return 1; // }", ctx: ContextStatements},

		{name: "empty", code: "", ctx: ContextExpression, reason: "empty"},
		{name: "newline", code: "1\n}", ctx: ContextStatements, reason: "line break"},
		{name: "carriage_return", code: "1\r", ctx: ContextExpression, reason: "line break"},
		{name: "nul", code: "1\x00", ctx: ContextExpression, reason: "NUL"},
		{name: "invalid_utf8", code: "1\xff", ctx: ContextExpression, reason: "UTF-8"},
		{name: "directive", code: "  #include <x>", ctx: ContextStatements, reason: "preprocessor"},
		{name: "digraph_directive", code: "%:define X", ctx: ContextStatements, reason: "preprocessor"},
		{name: "trigraph", code: "??< return 1; ??>", ctx: ContextStatements, reason: "trigraph"},
		{name: "escape_function", code: "return 0; } int evil(void) { return 1;", ctx: ContextStatements, reason: "unbalanced"},
		{name: "escape_function_digraph", code: "return 0; %> int evil(void) <% return 1;", ctx: ContextStatements, reason: "unbalanced"},
		{name: "unclosed", code: "if (1) {", ctx: ContextStatements, reason: "unclosed"},
		{name: "mismatched", code: "(1]", ctx: ContextExpression, reason: "unbalanced"},
		{name: "leave_expression", code: "1; exit", ctx: ContextExpression, reason: "statement separator"},
		{name: "leave_expression_paren", code: "1) + (2", ctx: ContextExpression, reason: "unbalanced"},
		{name: "statement_expression", code: "({ 1; })", ctx: ContextExpression, reason: "brace"},
		{name: "digraph_brace_expression", code: "(<% 1 %>)", ctx: ContextExpression, reason: "brace"},
		{name: "unterminated_string", code: `puts("x);`, ctx: ContextStatements, reason: "unterminated string"},
		{name: "unterminated_char", code: `'x`, ctx: ContextExpression, reason: "unterminated character"},
		{name: "unterminated_comment", code: "1 /* x", ctx: ContextExpression, reason: "unterminated comment"},
		{name: "stray_backslash", code: "1 \\", ctx: ContextExpression, reason: "stray backslash"},
		{name: "continued_comment", code: "1 // x \\", ctx: ContextExpression, reason: "line continuation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frag, err := NewFragment([]byte(tc.code), tc.ctx)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("NewFragment(%q): %v", tc.code, err)
				}
				if frag.Code() != tc.code || frag.Context() != tc.ctx {
					t.Fatalf("fragment = %+v", frag)
				}
				return
			}
			if err == nil {
				t.Fatalf("NewFragment(%q) accepted, want %q", tc.code, tc.reason)
			}
			var se *StructureError
			if !errors.As(err, &se) {
				t.Fatalf("error type = %T, want *StructureError", err)
			}
			if !strings.Contains(err.Error(), tc.reason) {
				t.Fatalf("error = %q, want substring %q", err, tc.reason)
			}
		})
	}
}

func TestNewFragmentUnknownContext(t *testing.T) {
	if _, err := NewFragment([]byte("1"), Context("")); err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestNewFragmentRejectsSectionHooks(t *testing.T) {
	preinit := `__asm__(".pushsection .preinit_array,\"aw\"\n.quad 0\n.popsection");`
	cases := []struct {
		name   string
		code   string
		reason string
	}{
		{name: "gnu_asm", code: preinit, reason: "__asm__ is not allowed"},
		{name: "asm_keyword", code: `asm("nop");`, reason: "asm is not allowed"},
		{name: "short_asm", code: `__asm volatile("nop");`, reason: "__asm is not allowed"},
		{name: "pragma_operator", code: `_Pragma("GCC optimize(0)") 1;`, reason: "_Pragma is not allowed"},
		{name: "glibc_pragma_macro", code: `__glibc_macro_warning1(weak x) 1;`, reason: "__glibc_macro_warning1 is not allowed"},
		{name: "section_attribute", code: `static int x __attribute__((section(".preinit_array"))) = 0;`, reason: "__attribute__ is not allowed"},
		{name: "short_attribute", code: `static int x __attribute((used)) = 0;`, reason: "__attribute is not allowed"},
		{name: "attribute_after_space", code: `1+ __asm__`, reason: "__asm__ is not allowed"},
		{name: "standard_attribute", code: `static int x [[gnu::used]] = 0;`, reason: "attribute specifier"},
		{name: "standard_attribute_spaced", code: `static int x [ /* */ [gnu::used]] = 0;`, reason: "attribute specifier"},
		{name: "standard_attribute_digraph", code: `static int x <:<:gnu::used:>:> = 0;`, reason: "attribute specifier"},

		{name: "asm_in_string", code: `"__asm__ asm _Pragma"[0]`},
		{name: "asm_in_char", code: `'a'+sizeof "asm"`},
		{name: "asm_in_comment", code: `1 /* __attribute__ asm */`},
		{name: "asm_in_line_comment", code: `1 // asm("nop")`},
		{name: "numbers_and_types", code: `sizeof(int (*)[2]) + 0x1f + 1.5e-3 + 'x'`},
		{name: "embedded_word", code: `(int)sizeof(char[2][3])`},
	}
	for _, ctx := range []Context{ContextExpression, ContextStatements} {
		for _, tc := range cases {
			t.Run(string(ctx)+"/"+tc.name, func(t *testing.T) {
				_, err := NewFragment([]byte(tc.code), ctx)
				if tc.reason == "" {
					if err != nil {
						t.Fatalf("NewFragment(%q): %v", tc.code, err)
					}
					return
				}
				if err == nil || !strings.Contains(err.Error(), tc.reason) {
					t.Fatalf("NewFragment(%q) error = %v, want %q", tc.code, err, tc.reason)
				}
			})
		}
	}
}

func TestNewFragmentAcceptsIdentifiersContainingAsm(t *testing.T) {
	for _, code := range []string{"asmx + my_asm + __asm__x", "sizeof(long) * attribute", "Pragma + pragma"} {
		if _, err := NewFragment([]byte(code), ContextExpression); err != nil {
			t.Fatalf("NewFragment(%q): %v", code, err)
		}
	}
}
