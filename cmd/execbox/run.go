package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"execbox/internal/sandbox"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/submission"
	appErr "execbox/pkg/errors"

	"github.com/spf13/cobra"
)

// maxForwardedStdin caps what run forwards to the program.
const maxForwardedStdin = 16 << 20

var (
	runProfileFlag  string
	runEncodingFlag string
	runJSONFlag     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one submission read from the first line of stdin",
	Long: `Read exactly one line from stdin as the submission and forward the rest
of stdin to the program. Exits 0 when the program ran and exited 0.

Examples:
  echo '2+3' | execbox run
  echo 'int x = 6 * 7; return x - 42;' | execbox run --profile stmt
  echo 'aW50IG4gPSA0OyByZXR1cm4gbiAqIDI7' | execbox run --profile stmt --encoding base64`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runProfileFlag, "profile", "", "Profile name (default: first configured profile)")
	runCmd.Flags().StringVar(&runEncodingFlag, "encoding", "plain", "Submission encoding: plain, base64 or zstd")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "Print the full report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	enc, err := submission.ParseEncoding(runEncodingFlag)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFlag)
	if err != nil {
		return err
	}
	code, stdin, err := readSubmission(cmd.InOrStdin(), maxForwardedStdin)
	if err != nil {
		return err
	}
	rep, err := a.pipeline.Run(ctx, sandbox.Request{
		Profile:    runProfileFlag,
		Submission: submission.Submission{Code: code, Encoding: enc, Stdin: stdin},
	})
	if err != nil {
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), rep, runJSONFlag); err != nil {
		return err
	}
	if !rep.Succeeded() {
		return exitStatus(1)
	}
	return nil
}

// readSubmission splits r into the first line and everything after it.
func readSubmission(r io.Reader, limit int64) (string, []byte, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", nil, appErr.Wrapf(err, appErr.InvalidParams, "read submission failed")
	}
	line = strings.TrimSuffix(line, "\n")
	if err == io.EOF {
		return line, nil, nil
	}
	rest, err := io.ReadAll(io.LimitReader(br, limit+1))
	if err != nil {
		return "", nil, appErr.Wrapf(err, appErr.InvalidParams, "read program input failed")
	}
	if int64(len(rest)) > limit {
		return "", nil, appErr.Newf(appErr.InvalidParams, "program input exceeds %d bytes", limit)
	}
	if len(rest) == 0 {
		rest = nil
	}
	return line, rest, nil
}

func writeReport(w io.Writer, rep result.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	text := rep.Text()
	if !rep.Succeeded() && text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(w, text); err != nil {
		return err
	}
	if rep.Truncated {
		_, _ = fmt.Fprintln(os.Stderr, "execbox: output truncated")
	}
	return nil
}
