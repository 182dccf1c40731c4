// Package repl is Flume's interactive shell: line editing, history and tab
// completion on top of a flume.Runtime.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/sambeau/flume/pkg/flume/engine"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/flume"
	"github.com/sambeau/flume/pkg/flume/lexer"
)

const (
	defaultPrompt      = "flume> "
	continuationPrompt = "  ...> "
)

const logo = `
█▀▀ █░░ █░█ █▀▄▀█ █▀▀
█▀░ █▄▄ █▄█ █░▀░█ ██▄`

// keywords completed alongside command, function and table names.
var keywords = []string{
	"AND", "AS", "ASC", "BY", "DESC", "FROM", "INTO", "KEEP", "NOT", "NULL",
	"ON", "OR", "TO", "WITH", "HEADER", "NO", "CSV", "TSV", "JSON", "YAML",
	"MARKDOWN", "HTML", "TEXT", "SQL", "AWK",
}

// Options configure a REPL session.
type Options struct {
	Runtime *flume.Runtime
	Out     io.Writer
	// Prompt defaults to "flume> ".
	Prompt string
	// HistoryFile is read at start and written at exit; empty disables
	// history.
	HistoryFile string
	Version     string
	// Args become $1, $2, … in the session.
	Args []string
	// Color styles errors.
	Color bool
}

// lineReader is the part of liner the session loop uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// session holds the state of one interactive run.
type session struct {
	opts   Options
	rt     *flume.Runtime
	out    io.Writer
	env    *engine.Env
	errorc *color.Color
	buf    strings.Builder
}

func newSession(opts Options) *session {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}
	s := &session{
		opts:   opts,
		rt:     opts.Runtime,
		out:    opts.Out,
		errorc: color.New(color.FgRed),
	}
	if !opts.Color {
		s.errorc.DisableColor()
	}
	s.reset()
	return s
}

// reset replaces the environment with an empty one.
func (s *session) reset() {
	if s.env != nil {
		s.env.Close()
	}
	args := []any{"repl"}
	for _, a := range s.opts.Args {
		args = append(args, a)
	}
	s.env = s.rt.NewEnv(args...)
}

// Start runs the REPL until the user quits. It owns the terminal while it
// runs.
func Start(ctx context.Context, opts Options) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s := newSession(opts)
	defer s.env.Close()
	line.SetCompleter(s.complete)

	if opts.HistoryFile != "" {
		if f, err := os.Open(opts.HistoryFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(opts.HistoryFile); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Fprintln(s.out, logo)
	fmt.Fprintln(s.out, "v", opts.Version)
	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, "Type QUIT or Ctrl+D to quit")
	fmt.Fprintln(s.out, "Use Tab for completion, ↑↓ for history")
	fmt.Fprintln(s.out, "Type HELP for commands and ':help' for REPL commands")
	fmt.Fprintln(s.out, "")

	return s.loop(ctx, line)
}

func (s *session) loop(ctx context.Context, lr lineReader) error {
	for {
		prompt := s.opts.Prompt
		if s.buf.Len() > 0 {
			prompt = continuationPrompt
		}
		input, err := lr.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			if s.buf.Len() > 0 {
				fmt.Fprintln(s.out, "^C (cleared)")
			} else {
				fmt.Fprintln(s.out, "^C")
			}
			s.buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(input)
		if s.buf.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ":") {
				if s.command(trimmed) {
					return nil
				}
				continue
			}
		}

		if s.buf.Len() > 0 {
			s.buf.WriteString("\n")
		}
		s.buf.WriteString(input)
		src := s.buf.String()
		if needsMoreInput(src) {
			continue
		}
		s.buf.Reset()
		lr.AppendHistory(src)

		if s.eval(ctx, src) {
			return nil
		}
	}
}

// eval runs one complete input and prints its table. It reports whether
// the input was QUIT.
func (s *session) eval(ctx context.Context, src string) bool {
	env, out, quit, err := s.rt.Exec(ctx, s.env, src, "")
	s.env = env
	if err != nil {
		s.printError(err)
		return false
	}
	if out != nil {
		if err := s.rt.Print(ctx, out); err != nil {
			s.printError(err)
		}
	}
	return quit
}

func (s *session) printError(err error) {
	if fe, ok := ferrors.As(err); ok {
		s.errorc.Fprintln(s.out, fe.PrettyString())
		return
	}
	s.errorc.Fprintln(s.out, "Error:", err)
}

// command handles REPL meta-commands that start with ':'. It reports
// whether the session should end.
func (s *session) command(cmd string) bool {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(s.out, "REPL Commands:")
		fmt.Fprintln(s.out, "  :help, :h, :?   Show this help")
		fmt.Fprintln(s.out, "  :env            Show tables and sources in scope")
		fmt.Fprintln(s.out, "  :clear          Drop all tables and close sources")
		fmt.Fprintln(s.out, "  :quit, :q       Exit the REPL")
		fmt.Fprintln(s.out, "")
		fmt.Fprintln(s.out, "Statements end at the end of a line. Open strings, brackets and")
		fmt.Fprintln(s.out, "<< blocks continue on the next line. HELP lists the commands.")
	case ":env":
		s.printEnv()
	case ":clear":
		s.reset()
		fmt.Fprintln(s.out, "Environment cleared")
	case ":quit", ":q":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
	return false
}

func (s *session) printEnv() {
	names := s.env.Names()
	sources := s.env.SourceNames()
	if len(names) == 0 && len(sources) == 0 && !s.env.HasIt() {
		fmt.Fprintln(s.out, "(no tables)")
		return
	}
	for _, name := range names {
		t, err := s.env.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(s.out, "  %s: %s\n", name, describe(t.Len(), t.Names()))
	}
	if it, err := s.env.It(); err == nil {
		fmt.Fprintf(s.out, "  it: %s\n", describe(it.Len(), it.Names()))
	}
	for _, name := range sources {
		fmt.Fprintf(s.out, "  %s: source\n", name)
	}
}

func describe(rows int, columns []string) string {
	list := strings.Join(columns, ", ")
	if len(list) > 60 {
		list = list[:57] + "..."
	}
	noun := "rows"
	if rows == 1 {
		noun = "row"
	}
	return fmt.Sprintf("%d %s (%s)", rows, noun, list)
}

// complete returns the line with its last word completed. Commands and
// keywords match case-insensitively and complete in upper case.
func (s *session) complete(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if last := line[len(line)-1]; last == ' ' || last == '\t' {
		return nil
	}
	start := strings.LastIndexAny(line, " \t,(") + 1
	prefix, word := line[:start], line[start:]
	upper := strings.ToUpper(word)

	var words []string
	words = append(words, s.rt.Engine().Commands().Names()...)
	words = append(words, keywords...)
	var matches []string
	for _, w := range words {
		if strings.HasPrefix(w, upper) {
			matches = append(matches, prefix+w)
		}
	}

	names := append(s.env.Names(), s.env.SourceNames()...)
	names = append(names, s.rt.Engine().Functions().Names()...)
	for _, n := range names {
		if strings.HasPrefix(n, word) {
			matches = append(matches, prefix+n)
		}
	}
	sort.Strings(matches)
	return dedupe(matches)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// needsMoreInput reports whether input ends inside a string, a << block or
// an open bracket.
func needsMoreInput(input string) bool {
	l := lexer.New(input)
	depth := 0
	for {
		tok := l.NextToken()
		switch tok.Type {
		case lexer.EOF:
			return depth > 0
		case lexer.ILLEGAL:
			return strings.HasPrefix(l.Error, "unterminated")
		case lexer.LPAREN, lexer.LBRACKET:
			depth++
		case lexer.RPAREN, lexer.RBRACKET:
			depth--
		}
	}
}
