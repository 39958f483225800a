package harness

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Context is the syntactic position of the fragment hole.
type Context string

const (
	// ContextExpression places the fragment inside a parenthesized expression.
	ContextExpression Context = "expression"
	// ContextStatements places the fragment inside a function body.
	ContextStatements Context = "statements"
)

// Valid reports whether c is a known hole context.
func (c Context) Valid() bool {
	return c == ContextExpression || c == ContextStatements
}

// Fragment is validated user code that is structurally confined to one hole
// context. The zero value is unusable; build fragments with NewFragment.
type Fragment struct {
	code    string
	context Context
}

// Code returns the fragment text.
func (f Fragment) Code() string {
	return f.code
}

// Context returns the hole context the fragment was checked against.
func (f Fragment) Context() Context {
	return f.context
}

// StructureError describes why a fragment cannot be confined to its hole.
type StructureError struct {
	Offset int
	Reason string
}

func (e *StructureError) Error() string {
	if e.Offset < 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s at offset %d", e.Reason, e.Offset)
}

func structureErr(offset int, format string, args ...interface{}) *StructureError {
	return &StructureError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// NewFragment checks code against the lexical rules of ctx.
func NewFragment(code []byte, ctx Context) (Fragment, error) {
	if !ctx.Valid() {
		return Fragment{}, fmt.Errorf("unknown hole context %q", ctx)
	}
	if len(code) == 0 {
		return Fragment{}, structureErr(-1, "fragment is empty")
	}
	if !utf8.Valid(code) {
		return Fragment{}, structureErr(-1, "fragment is not valid UTF-8")
	}
	for i, c := range code {
		switch c {
		case 0:
			return Fragment{}, structureErr(i, "NUL byte")
		case '\r', '\n':
			return Fragment{}, structureErr(i, "line break")
		}
	}
	text := string(code)
	if idx := strings.Index(text, "??"); idx >= 0 {
		return Fragment{}, structureErr(idx, "trigraph introducer")
	}
	trimmed := strings.TrimLeft(text, " \t\v\f")
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "%:") {
		return Fragment{}, structureErr(len(text)-len(trimmed), "preprocessor directive")
	}
	if err := scan(text, ctx); err != nil {
		return Fragment{}, err
	}
	return Fragment{code: text, context: ctx}, nil
}

// forbiddenIdents place code or data outside the hole: inline assembly can
// push sections such as .preinit_array, which run before the isolation
// constructor, and attributes or pragmas can do the same through section,
// constructor and similar hooks. The glibc warning macros expand to _Pragma.
var forbiddenIdents = map[string]bool{
	"asm":                    true,
	"__asm":                  true,
	"__asm__":                true,
	"_Pragma":                true,
	"__attribute":            true,
	"__attribute__":          true,
	"__glibc_macro_warning":  true,
	"__glibc_macro_warning1": true,
}

type bracket struct {
	open   byte
	offset int
}

// scan is a small C tokenizer: it tracks literals, comments, identifiers and
// brackets (digraphs included) and enforces the token bans.
func scan(text string, ctx Context) error {
	var stack []bracket
	// afterSquare is set while the last token was '[', so "[ [" is caught
	// whatever sits between the two.
	afterSquare := false
	push := func(open byte, at int) {
		stack = append(stack, bracket{open: open, offset: at})
	}
	pop := func(open byte, at int) error {
		if len(stack) == 0 || stack[len(stack)-1].open != open {
			return structureErr(at, "unbalanced %q", closerOf(open))
		}
		stack = stack[:len(stack)-1]
		return nil
	}

	for i := 0; i < len(text); {
		c := text[i]
		next := byte(0)
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch {
		case c == ' ' || c == '\t' || c == '\v' || c == '\f':
			i++
			continue
		case c == '"' || c == '\'':
			end, err := skipLiteral(text, i)
			if err != nil {
				return err
			}
			i = end
			afterSquare = false
			continue
		case c == '/' && next == '/':
			// Runs to the end of the fragment, which sits on its own line.
			if strings.HasSuffix(text, "\\") {
				return structureErr(len(text)-1, "line continuation")
			}
			i = len(text)
			continue
		case c == '/' && next == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return structureErr(i, "unterminated comment")
			}
			i += 2 + end + 2
			continue
		case c == '\\':
			return structureErr(i, "stray backslash")
		case isIdentStart(c):
			end := i
			for end < len(text) && isIdentChar(text[end]) {
				end++
			}
			if word := text[i:end]; forbiddenIdents[word] {
				return structureErr(i, "%s is not allowed", word)
			}
			i = end
			afterSquare = false
			continue
		case isDigit(c) || (c == '.' && isDigit(next)):
			// pp-number, so suffixes and exponents are not read as identifiers.
			end := i + 1
			for end < len(text) {
				d := text[end]
				if (d == '+' || d == '-') && strings.ContainsRune("eEpP", rune(text[end-1])) {
					end++
					continue
				}
				if !isIdentChar(d) && d != '.' {
					break
				}
				end++
			}
			i = end
			afterSquare = false
			continue
		}

		width := 1
		var open, shut byte
		switch {
		case c == '<' && next == '<':
			width = 2
		case c == '-' && next == '>':
			width = 2
		case c == '<' && next == '%':
			open, width = '{', 2
		case c == '%' && next == '>':
			shut, width = '{', 2
		case c == '<' && next == ':':
			open, width = '[', 2
		case c == ':' && next == '>':
			shut, width = '[', 2
		case c == '%' && next == ':':
			width = 2
		case c == '(' || c == '[' || c == '{':
			open = c
		case c == ')':
			shut = '('
		case c == ']':
			shut = '['
		case c == '}':
			shut = '{'
		}

		if ctx == ContextExpression {
			if c == ';' {
				return structureErr(i, "statement separator in expression")
			}
			if open == '{' || shut == '{' {
				return structureErr(i, "brace in expression")
			}
		}
		if open == '[' && afterSquare {
			return structureErr(i, "attribute specifier")
		}
		afterSquare = open == '['
		if open != 0 {
			push(open, i)
		}
		if shut != 0 {
			if err := pop(shut, i); err != nil {
				return err
			}
		}
		i += width
	}

	if len(stack) > 0 {
		last := stack[len(stack)-1]
		return structureErr(last.offset, "unclosed %q", last.open)
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// skipLiteral returns the offset just past the literal starting at start.
func skipLiteral(text string, start int) (int, error) {
	quote := text[start]
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case quote:
			return i + 1, nil
		}
	}
	if quote == '"' {
		return 0, structureErr(start, "unterminated string literal")
	}
	return 0, structureErr(start, "unterminated character literal")
}

func closerOf(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}
