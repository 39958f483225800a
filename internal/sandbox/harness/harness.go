// Package harness renders user fragments into fixed compilation units.
//
// A harness is a text/template with exactly two holes: {{.Isolation}} for the
// syscall-policy prologue and {{.Fragment}} for user code. The fragment hole
// must sit on a line of its own so that nothing the fragment does can reach
// the template text around it.
package harness

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

const (
	holeIsolation = "Isolation"
	holeFragment  = "Fragment"
)

// Harness is a parsed, immutable harness template.
type Harness struct {
	name    string
	context Context
	tmpl    *template.Template
}

type renderData struct {
	Isolation string
	Fragment  string
}

// Parse validates text and returns a Harness whose fragment hole has the given
// syntactic context.
func Parse(name, text string, ctx Context) (*Harness, error) {
	if !ctx.Valid() {
		return nil, fmt.Errorf("harness %s: unknown hole context %q", name, ctx)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("harness %s: %w", name, err)
	}
	if tmpl.Tree == nil || tmpl.Tree.Root == nil {
		return nil, fmt.Errorf("harness %s: template is empty", name)
	}
	if len(tmpl.Templates()) != 1 {
		return nil, fmt.Errorf("harness %s: nested template definitions are not allowed", name)
	}
	if err := checkHoles(tmpl.Tree.Root); err != nil {
		return nil, fmt.Errorf("harness %s: %w", name, err)
	}
	return &Harness{name: name, context: ctx, tmpl: tmpl}, nil
}

// MustParse is Parse for built-in templates.
func MustParse(name, text string, ctx Context) *Harness {
	h, err := Parse(name, text, ctx)
	if err != nil {
		panic(err)
	}
	return h
}

// Name returns the harness name.
func (h *Harness) Name() string {
	return h.name
}

// Context returns the syntactic context of the fragment hole.
func (h *Harness) Context() Context {
	return h.context
}

// Render produces the compilation unit. The fragment must have been checked
// against this harness's context.
func (h *Harness) Render(fragment Fragment, prologue string) ([]byte, error) {
	if fragment.code == "" {
		return nil, fmt.Errorf("harness %s: empty fragment", h.name)
	}
	if fragment.context != h.context {
		return nil, fmt.Errorf("harness %s: fragment checked for %s context, hole is %s", h.name, fragment.context, h.context)
	}
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, renderData{Isolation: prologue, Fragment: fragment.code}); err != nil {
		return nil, fmt.Errorf("harness %s: %w", h.name, err)
	}
	return buf.Bytes(), nil
}

func checkHoles(root *parse.ListNode) error {
	counts := map[string]int{}
	nodes := root.Nodes
	for i, node := range nodes {
		switch n := node.(type) {
		case *parse.TextNode:
		case *parse.ActionNode:
			hole, err := holeName(n)
			if err != nil {
				return err
			}
			counts[hole]++
			if hole == holeFragment && !ownLine(nodes, i) {
				return fmt.Errorf("{{.%s}} must be on a line of its own", holeFragment)
			}
		default:
			return fmt.Errorf("unsupported template construct %q", node.String())
		}
	}
	for _, hole := range []string{holeIsolation, holeFragment} {
		switch counts[hole] {
		case 1:
		case 0:
			return fmt.Errorf("missing {{.%s}} hole", hole)
		default:
			return fmt.Errorf("{{.%s}} appears %d times", hole, counts[hole])
		}
	}
	return nil
}

func holeName(n *parse.ActionNode) (string, error) {
	pipe := n.Pipe
	if pipe == nil || len(pipe.Decl) > 0 || len(pipe.Cmds) != 1 || len(pipe.Cmds[0].Args) != 1 {
		return "", fmt.Errorf("unsupported template action %q", n.String())
	}
	field, ok := pipe.Cmds[0].Args[0].(*parse.FieldNode)
	if !ok || len(field.Ident) != 1 {
		return "", fmt.Errorf("unsupported template action %q", n.String())
	}
	switch name := field.Ident[0]; name {
	case holeIsolation, holeFragment:
		return name, nil
	default:
		return "", fmt.Errorf("unknown hole {{.%s}}", name)
	}
}

func ownLine(nodes []parse.Node, i int) bool {
	if i == 0 {
		return false
	}
	before, ok := nodes[i-1].(*parse.TextNode)
	if !ok || !bytes.HasSuffix(before.Text, []byte("\n")) {
		return false
	}
	if i+1 >= len(nodes) {
		return false
	}
	after, ok := nodes[i+1].(*parse.TextNode)
	return ok && strings.HasPrefix(string(after.Text), "\n")
}
