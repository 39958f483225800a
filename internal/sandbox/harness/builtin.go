package harness

// ExpressionSource wraps an arithmetic expression and prints its value.
const ExpressionSource = `#include <stdio.h>
#include <stdlib.h>
{{.Isolation}}
int main(void) {
	long long result = (
{{.Fragment}}
	);
	printf("%lld\n", result);
	return 0;
}
`

// StatementsSource runs the fragment as the body of sandbox().
const StatementsSource = `#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <unistd.h>
{{.Isolation}}
static int sandbox(void) {
{{.Fragment}}
	return 0;
}

int main(void) {
	int code = sandbox();
	fflush(stdout);
	return code;
}
`

// Builtin returns the shipped harness for ctx.
func Builtin(ctx Context) (*Harness, bool) {
	switch ctx {
	case ContextExpression:
		return MustParse("expression", ExpressionSource, ContextExpression), true
	case ContextStatements:
		return MustParse("statements", StatementsSource, ContextStatements), true
	default:
		return nil, false
	}
}
