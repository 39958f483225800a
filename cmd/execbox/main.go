// Command execbox compiles and runs untrusted C snippets under a syscall
// policy that forbids spawning programs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "execbox",
	Short: "Compile and run untrusted C snippets in isolation",
	Long: `execbox validates a C fragment, wraps it in a harness, compiles it and
runs the binary under a seccomp policy that kills any attempt to exec.
Every artifact is removed before the result is reported.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (built-in profiles when empty)")
}

// exitStatus ends the process with a status and no message.
type exitStatus int

func (e exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	_ = logger.Sync()
	if err == nil {
		return
	}
	var status exitStatus
	if errors.As(err, &status) {
		os.Exit(int(status))
	}
	code := appErr.GetCode(err)
	fmt.Fprintf(os.Stderr, "execbox: %v (code %d)\n", err, int(code))
	os.Exit(1)
}
