package main

import (
	"fmt"
	"os"
	"path/filepath"

	"execbox/internal/cli/repl"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replProfileFlag string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run submissions interactively, one per line",
	Long: `Start an interactive session. Every line is compiled and run as one
submission with empty input. Type :help for session commands.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replProfileFlag, "profile", "", "Initial profile (default: first configured profile)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configFlag)
	if err != nil {
		return err
	}
	profile := replProfileFlag
	if profile == "" {
		profile = a.profiles.Default()
	}
	if _, err := a.profiles.Get(ctx, profile); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	return repl.New(a.pipeline, rl, rl.Stdout(), profile, a.profiles.Names()).Run(ctx)
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "execbox_history")
}
