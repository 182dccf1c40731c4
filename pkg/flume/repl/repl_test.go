package repl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/flume/pkg/flume/flume"
)

// scriptedReader replays lines, then reports EOF.
type scriptedReader struct {
	lines   []string
	prompts []string
	history []string
}

func (r *scriptedReader) Prompt(prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	if line == "^C" {
		return "", liner.ErrPromptAborted
	}
	return line, nil
}

func (r *scriptedReader) AppendHistory(item string) {
	r.history = append(r.history, item)
}

func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	rt := flume.New(flume.Options{Stdout: &out, Logger: flume.WriterLogger(&out)})
	t.Cleanup(func() { rt.Close() })
	return newSession(Options{Runtime: rt, Out: &out}), &out
}

func run(t *testing.T, s *session, lines ...string) *scriptedReader {
	t.Helper()
	r := &scriptedReader{lines: lines}
	require.NoError(t, s.loop(context.Background(), r))
	return r
}

func TestNeedsMoreInput(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"SORT people", false},
		{`PRINT "open`, true},
		{`PRINT "closed"`, false},
		{"CREATE t AS CSV << END\nx\n1", true},
		{"CREATE t AS CSV << END\nx\n1\nEND", false},
		{"SELECT f(a,", true},
		{"SELECT f(a, b)", false},
		{"SELECT [1, 2", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, needsMoreInput(tt.input))
		})
	}
}

func TestEvalPrintsTables(t *testing.T) {
	s, out := newTestSession(t)
	r := run(t, s,
		"CREATE t AS CSV << END",
		"name,n",
		"a,1",
		"END",
		"PRINT \"hello\"",
	)

	assert.Contains(t, out.String(), "name")
	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, out.String(), "Goodbye!")
	assert.Equal(t, []string{"CREATE t AS CSV << END\nname,n\na,1\nEND", "PRINT \"hello\""}, r.history)
	assert.Equal(t, defaultPrompt, r.prompts[0])
	assert.Equal(t, continuationPrompt, r.prompts[1])

	names := s.env.Names()
	assert.Equal(t, []string{"t"}, names)
}

func TestErrorsKeepEnv(t *testing.T) {
	s, out := newTestSession(t)
	run(t, s, `CREATE t AS CSV "x\n1"`, "SORT missing", "TAKE 1 FROM t")

	assert.Contains(t, out.String(), "Runtime error")
	assert.Contains(t, out.String(), "missing")
	assert.Equal(t, []string{"t"}, s.env.Names())
	assert.True(t, s.env.HasIt())
}

func TestQuit(t *testing.T) {
	s, out := newTestSession(t)
	r := run(t, s, "QUIT", "PRINT \"after\"")
	assert.NotContains(t, out.String(), "after")
	assert.Len(t, r.lines, 1)
}

func TestCtrlCClearsBuffer(t *testing.T) {
	s, out := newTestSession(t)
	r := run(t, s, `PRINT "open`, "^C", `PRINT "ok"`)
	assert.Contains(t, out.String(), "^C (cleared)")
	assert.Contains(t, out.String(), "ok")
	assert.Equal(t, []string{`PRINT "ok"`}, r.history)
}

func TestMetaCommands(t *testing.T) {
	s, out := newTestSession(t)
	run(t, s, ":env", `CREATE t AS CSV "x,y\n1,2"`, ":env", ":clear", ":env", ":bogus", ":help")

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "(no tables)"))
	assert.Contains(t, text, "t: 1 row (x, y)")
	assert.Contains(t, text, "Environment cleared")
	assert.Contains(t, text, "Unknown command: :bogus")
	assert.Contains(t, text, "REPL Commands:")
	assert.Empty(t, s.env.Names())

	out.Reset()
	r := run(t, s, ":q", "PRINT 1")
	assert.Contains(t, out.String(), "Goodbye!")
	assert.Len(t, r.lines, 1)
}

func TestComplete(t *testing.T) {
	s, _ := newTestSession(t)
	run(t, s, `CREATE people AS CSV "name\nA"`)

	assert.Contains(t, s.complete("so"), "SORT")
	assert.Contains(t, s.complete("SORT peo"), "SORT people")
	assert.Contains(t, s.complete("TAKE 1 FR"), "TAKE 1 FROM")
	assert.Nil(t, s.complete("SORT "))
	assert.Nil(t, s.complete(""))

	for _, m := range s.complete("S") {
		assert.True(t, strings.HasPrefix(m, "S"), m)
	}
}
