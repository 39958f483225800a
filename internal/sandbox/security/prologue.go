package security

import (
	"fmt"
	"strings"
)

const (
	// AckFD is the descriptor the program writes its activation ack to.
	AckFD = 3
	// AckByte is the single byte written once the policy is active.
	AckByte = '1'
	// ActivationFailedExit is the exit status when the prologue cannot
	// activate the policy or report it.
	ActivationFailedExit = 125
)

// RenderPrologue returns C source that activates p in a constructor, before
// main and before any user code, then acknowledges on AckFD and closes it.
// It requires linking with -lseccomp.
func RenderPrologue(p Policy) string {
	var b strings.Builder
	b.WriteString("#include <errno.h>\n#include <seccomp.h>\n#include <unistd.h>\n\n")
	b.WriteString("__attribute__((constructor)) static void execbox_isolate(void)\n{\n")
	fmt.Fprintf(&b, "\tscmp_filter_ctx ctx = seccomp_init(%s);\n", cAction(p.DefaultAction))
	fmt.Fprintf(&b, "\tif (ctx == NULL)\n\t\t_exit(%d);\n", ActivationFailedExit)
	for _, r := range p.Rules {
		fmt.Fprintf(&b, "\tif (seccomp_rule_add(ctx, %s, SCMP_SYS(%s), 0) < 0)\n\t\t_exit(%d);\n",
			cAction(r.Action), r.Syscall, ActivationFailedExit)
	}
	fmt.Fprintf(&b, "\tif (seccomp_load(ctx) < 0)\n\t\t_exit(%d);\n", ActivationFailedExit)
	b.WriteString("\tseccomp_release(ctx);\n")
	fmt.Fprintf(&b, "\tif (write(%d, \"%c\", 1) != 1)\n\t\t_exit(%d);\n", AckFD, AckByte, ActivationFailedExit)
	fmt.Fprintf(&b, "\tclose(%d);\n}\n", AckFD)
	return b.String()
}

func cAction(a Action) string {
	switch a {
	case ActionAllow:
		return "SCMP_ACT_ALLOW"
	case ActionErrno:
		return "SCMP_ACT_ERRNO(EPERM)"
	default:
		return "SCMP_ACT_KILL_PROCESS"
	}
}
