package flume

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sambeau/flume/pkg/flume/engine"
)

// Logger receives PRINT and HELP output.
type Logger = engine.Logger

// StdoutLogger returns a logger that writes to standard output, the
// default for the CLI and REPL.
func StdoutLogger() Logger {
	return WriterLogger(os.Stdout)
}

// writerLogger writes to an io.Writer.
type writerLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *writerLogger) Log(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, formatLogValues(values...))
}

func (l *writerLogger) LogLine(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, formatLogValues(values...))
}

// WriterLogger returns a logger that writes to w.
func WriterLogger(w io.Writer) Logger {
	return &writerLogger{w: w}
}

// BufferedLogger captures output for later retrieval. Tests and embedders
// use it to collect PRINT output.
type BufferedLogger struct {
	mu    sync.Mutex
	lines []string
	buf   strings.Builder
}

// NewBufferedLogger creates an empty BufferedLogger.
func NewBufferedLogger() *BufferedLogger {
	return &BufferedLogger{}
}

func (l *BufferedLogger) Log(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(formatLogValues(values...))
}

func (l *BufferedLogger) LogLine(values ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Pending Log output starts the line.
	l.lines = append(l.lines, l.buf.String()+formatLogValues(values...))
	l.buf.Reset()
}

// String returns everything captured, one line per LogLine call.
func (l *BufferedLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	for _, line := range l.lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(l.buf.String())
	return sb.String()
}

// Lines returns a copy of the completed lines.
func (l *BufferedLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Reset clears everything captured.
func (l *BufferedLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = l.lines[:0]
	l.buf.Reset()
}

type nullLogger struct{}

func (nullLogger) Log(...any)     {}
func (nullLogger) LogLine(...any) {}

// NullLogger returns a logger that discards all output.
func NullLogger() Logger {
	return nullLogger{}
}

// formatLogValues joins values with spaces.
func formatLogValues(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}
