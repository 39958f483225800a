package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"execbox/internal/sandbox/harness"
	"execbox/internal/sandbox/profile"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/submission"
	appErr "execbox/pkg/errors"

	"github.com/google/shlex"
)

func TestReadSubmission(t *testing.T) {
	cases := []struct {
		name      string
		input     string
		wantCode  string
		wantStdin string
		nilStdin  bool
	}{
		{name: "line_and_input", input: "2+3\nfirst\nsecond\n", wantCode: "2+3", wantStdin: "first\nsecond\n"},
		{name: "line_only", input: "2+3\n", wantCode: "2+3", nilStdin: true},
		{name: "no_newline", input: "2+3", wantCode: "2+3", nilStdin: true},
		{name: "crlf_kept_for_decoder", input: "2+3\r\nx", wantCode: "2+3\r", wantStdin: "x"},
		{name: "empty", input: "", wantCode: "", nilStdin: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, stdin, err := readSubmission(strings.NewReader(tc.input), 1024)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
			if tc.nilStdin && stdin != nil {
				t.Fatalf("stdin = %q, want nil", stdin)
			}
			if !tc.nilStdin && string(stdin) != tc.wantStdin {
				t.Fatalf("stdin = %q, want %q", stdin, tc.wantStdin)
			}
		})
	}
}

func TestReadSubmissionInputLimit(t *testing.T) {
	_, _, err := readSubmission(strings.NewReader("1\n"+strings.Repeat("x", 20)), 10)
	if appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("error = %v, want InvalidParams", err)
	}
}

func TestWriteReport(t *testing.T) {
	cases := []struct {
		name string
		rep  result.Report
		json bool
		want string
	}{
		{
			name: "success_verbatim",
			rep:  result.Report{State: result.StateSucceeded, Stdout: "no newline"},
			want: "no newline",
		},
		{
			name: "failure_terminated",
			rep:  result.Report{State: result.StateCompileFailed, Diagnostic: "submission.c:3: error: x\n"},
			want: "compile failed: submission.c:3: error: x\n",
		},
		{
			name: "json",
			rep:  result.Report{SubmissionID: "abc", State: result.StateTimedOut},
			json: true,
			want: `"state": "TimedOut"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeReport(&buf, tc.rep, tc.json); err != nil {
				t.Fatalf("write: %v", err)
			}
			if tc.json {
				if !strings.Contains(buf.String(), tc.want) {
					t.Fatalf("output %q missing %q", buf.String(), tc.want)
				}
				return
			}
			if buf.String() != tc.want {
				t.Fatalf("output = %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestExitStatus(t *testing.T) {
	if exitStatus(1).Error() != "exit status 1" {
		t.Fatalf("message = %q", exitStatus(1).Error())
	}
}

// The usage text must only advertise submissions the shipped profiles accept.
func TestRunUsageExamplesAreAccepted(t *testing.T) {
	repo, err := profile.NewLocalRepository(profile.DefaultConfigs())
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	checked := 0
	for _, line := range strings.Split(runCmd.Long, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "echo ") {
			continue
		}
		fields, err := shlex.Split(line)
		if err != nil {
			t.Fatalf("split %q: %v", line, err)
		}
		code, name, enc := fields[1], "", "plain"
		for i := 2; i+1 < len(fields); i++ {
			switch fields[i] {
			case "--profile":
				name = fields[i+1]
			case "--encoding":
				enc = fields[i+1]
			}
		}
		t.Run(line, func(t *testing.T) {
			prof, err := repo.Get(context.Background(), name)
			if err != nil {
				t.Fatalf("profile %q: %v", name, err)
			}
			src, err := submission.Decode(submission.Submission{Code: code, Encoding: submission.Encoding(enc)}, 0)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if v := prof.Validator.Validate(src); v.Rejected() {
				t.Fatalf("validator rejected %q: %s", src, v.Reason)
			}
			if _, err := harness.NewFragment(src, prof.Harness.Context()); err != nil {
				t.Fatalf("fragment %q: %v", src, err)
			}
		})
		checked++
	}
	if checked != 3 {
		t.Fatalf("checked %d examples, want 3", checked)
	}
}
