// Package repl is the interactive channel: each input line is one submission.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"execbox/internal/sandbox"
	"execbox/internal/sandbox/submission"
	pkgerrors "execbox/pkg/errors"

	"github.com/chzyer/readline"
)

// LineReader is the subset of *readline.Instance the session needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	service  sandbox.Service
	reader   LineReader
	out      io.Writer
	profile  string
	profiles []string
	encoding submission.Encoding
}

// New creates a session. profile is the initial profile and profiles lists
// the names accepted by ":profile".
func New(service sandbox.Service, reader LineReader, out io.Writer, profile string, profiles []string) *Session {
	s := &Session{
		service:  service,
		reader:   reader,
		out:      out,
		profile:  profile,
		profiles: profiles,
		encoding: submission.EncodingPlain,
	}
	s.reader.SetPrompt(s.prompt())
	return s
}

// Run reads lines until EOF, an interrupt on an empty line, ":quit", or ctx
// cancellation.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				s.printLine("bye")
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			s.printLine("bye")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if quit := s.handleSystemCommand(strings.TrimSpace(line)); quit {
				return nil
			}
			continue
		}
		s.submit(ctx, line)
	}
}

func (s *Session) submit(ctx context.Context, line string) {
	rep, err := s.service.Run(ctx, sandbox.Request{
		Profile:    s.profile,
		Submission: submission.Submission{Code: line, Encoding: s.encoding},
	})
	if err != nil {
		s.printLine("error: %s", pkgerrors.GetError(err).Error())
		return
	}
	text := rep.Text()
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, _ = io.WriteString(s.out, text)
	if rep.Truncated {
		s.printLine("(output truncated)")
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit":
		s.printLine("bye")
		return true
	case ":help":
		s.printHelp()
	case ":profiles":
		for _, name := range s.profiles {
			marker := " "
			if name == s.profile {
				marker = "*"
			}
			s.printLine("%s %s", marker, name)
		}
	case ":profile":
		if len(fields) < 2 {
			s.printLine("usage: :profile <name>")
			return false
		}
		if !s.knownProfile(fields[1]) {
			s.printLine("unknown profile %q", fields[1])
			return false
		}
		s.profile = fields[1]
		s.reader.SetPrompt(s.prompt())
	case ":encoding":
		if len(fields) < 2 {
			s.printLine("usage: :encoding plain|base64|zstd")
			return false
		}
		enc, err := submission.ParseEncoding(fields[1])
		if err != nil {
			s.printLine("%v", err)
			return false
		}
		s.encoding = enc
	default:
		s.printLine("unknown command %s, try :help", fields[0])
	}
	return false
}

func (s *Session) knownProfile(name string) bool {
	for _, p := range s.profiles {
		if p == name {
			return true
		}
	}
	return false
}

func (s *Session) prompt() string {
	return s.profile + "> "
}

func (s *Session) printHelp() {
	s.printLine("Each line is compiled and run as one submission.")
	s.printLine(":profile <name>     switch profile")
	s.printLine(":profiles           list profiles")
	s.printLine(":encoding <name>    plain, base64 or zstd")
	s.printLine(":quit               leave")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
