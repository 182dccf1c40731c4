package flume

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/flume/pkg/flume/engine"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

func newTestRuntime(t *testing.T) (*Runtime, *BufferedLogger, *bytes.Buffer) {
	t.Helper()
	logger := NewBufferedLogger()
	var stdout bytes.Buffer
	rt := New(Options{Logger: logger, Stdout: &stdout, Stdin: strings.NewReader("")})
	t.Cleanup(func() { rt.Close() })
	return rt, logger, &stdout
}

func execScript(t *testing.T, rt *Runtime, env *engine.Env, src string) (*engine.Env, *table.Table) {
	t.Helper()
	if env == nil {
		env = rt.NewEnv()
	}
	env, out, _, err := rt.Exec(context.Background(), env, src, "test.flume")
	require.NoError(t, err)
	return env, out
}

func values(t *testing.T, tbl *table.Table, name string) []table.Value {
	t.Helper()
	c, err := tbl.Lookup(name)
	require.NoError(t, err)
	return c.Values()
}

func quote(path string) string { return `"` + path + `"` }

func TestBufferedLogger(t *testing.T) {
	l := NewBufferedLogger()
	l.Log("a", 1)
	l.LogLine(" b")
	l.LogLine("c", "d")
	assert.Equal(t, []string{"a 1 b", "c d"}, l.Lines())
	assert.Equal(t, "a 1 b\nc d\n", l.String())

	l.Reset()
	assert.Empty(t, l.Lines())
	assert.Equal(t, "", l.String())
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := WriterLogger(&buf)
	l.Log("x")
	l.LogLine("y", 2)
	assert.Equal(t, "xy 2\n", buf.String())

	NullLogger().LogLine("ignored")
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rt, _, _ := newTestRuntime(t)

	env, _ := execScript(t, rt, nil, `CREATE people AS CSV << END
name,salary
A,10
B,30
END
`)
	for _, name := range []string{"people.csv", "people.json", "people.yaml", "people.tsv.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			execScript(t, rt, env, "WRITE people TO "+quote(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			_, out := execScript(t, rt, env, "READ "+quote(path))
			assert.Equal(t, []string{"name", "salary"}, out.Names())
			assert.Equal(t, []table.Value{"A", "B"}, values(t, out, "name"))
			assert.Equal(t, []table.Value{int64(10), int64(30)}, values(t, out, "salary"))
		})
	}
}

func TestWriteStdout(t *testing.T) {
	rt, _, stdout := newTestRuntime(t)
	execScript(t, rt, nil, "CREATE t AS CSV \"x,y\n1,a\"\nWRITE t AS CSV")
	assert.Equal(t, "x,y\n1,a\n", stdout.String())

	stdout.Reset()
	execScript(t, rt, nil, "CREATE t AS CSV \"x\n1\"\nWRITE t")
	assert.Contains(t, stdout.String(), "x")
	assert.Contains(t, stdout.String(), "1")
}

func TestUnknownExtension(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	_, _, _, err := rt.Exec(context.Background(), rt.NewEnv(), `READ "data.unknown"`, "")
	require.Error(t, err)
	fe, ok := ferrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "FORMAT-0003", fe.Code)
}

func TestPrint(t *testing.T) {
	rt, logger, _ := newTestRuntime(t)
	execScript(t, rt, nil, "CREATE t AS CSV \"n\n1\n2\"\nPRINT \"n=$n\" FROM t")
	assert.Equal(t, []string{"n=1", "n=2"}, logger.Lines())
}

func TestQuit(t *testing.T) {
	rt, logger, _ := newTestRuntime(t)
	_, _, quit, err := rt.Exec(context.Background(), rt.NewEnv(), "PRINT 1\nQUIT\nPRINT 2", "")
	require.NoError(t, err)
	assert.True(t, quit)
	assert.Equal(t, []string{"1"}, logger.Lines())
}

func TestRunChildScript(t *testing.T) {
	dir := t.TempDir()
	child := filepath.Join(dir, "child.flume")
	require.NoError(t, os.WriteFile(child, []byte("PRINT \"$1-$2\"\nTAKE 1 FROM people\n"), 0o644))

	rt, logger, _ := newTestRuntime(t)
	env, _ := execScript(t, rt, nil, "CREATE people AS CSV \"name\nA\nB\"")
	after, out := execScript(t, rt, env, "RUN "+quote(child)+", \"x\", 7")

	assert.Equal(t, []string{"x-7"}, logger.Lines())
	assert.Equal(t, []table.Value{"A"}, values(t, out, "name"))
	// Bindings made by the child stay in the child.
	assert.ElementsMatch(t, []string{"people"}, after.Names())
}

func TestRunChildScriptEndingInQuit(t *testing.T) {
	dir := t.TempDir()
	child := filepath.Join(dir, "child.flume")
	require.NoError(t, os.WriteFile(child, []byte("TAKE LAST 1 FROM people\nQUIT\nPRINT \"after\"\n"), 0o644))

	rt, logger, _ := newTestRuntime(t)
	env, _ := execScript(t, rt, nil, "CREATE people AS CSV \"name\nA\nB\"")
	_, out := execScript(t, rt, env, "RUN "+quote(child))

	require.NotNil(t, out)
	assert.Equal(t, []table.Value{"B"}, values(t, out, "name"))
	assert.Empty(t, logger.Lines())
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.flume")
	require.NoError(t, os.WriteFile(path, []byte("PRINT \"$0 $1\"\n"), 0o644))

	rt, logger, _ := newTestRuntime(t)
	_, _, err := rt.RunFile(context.Background(), path, "arg")
	require.NoError(t, err)
	assert.Equal(t, []string{path + " arg"}, logger.Lines())
}

func TestRunErrorsCarryFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.flume")
	require.NoError(t, os.WriteFile(bad, []byte("SORT nothing\n"), 0o644))

	rt, _, _ := newTestRuntime(t)
	_, _, _, err := rt.Exec(context.Background(), rt.NewEnv(), "RUN "+quote(bad), "")
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
	assert.Contains(t, err.Error(), "nothing")
}

func TestRunDepthLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.flume")
	require.NoError(t, os.WriteFile(path, []byte("RUN \"$0\"\n"), 0o644))

	rt, _, _ := newTestRuntime(t)
	_, _, err := rt.RunFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindIO))
	assert.Contains(t, err.Error(), "nested")
}

func TestShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	rt, _, _ := newTestRuntime(t)

	_, out := execScript(t, rt, nil, `SH "printf 'x,y\n1,2\n'"`)
	assert.Equal(t, []table.Value{int64(1)}, values(t, out, "x"))

	_, out = execScript(t, rt, nil, `SH "printf 'a\nb\n'" AS TEXT`)
	assert.Equal(t, []table.Value{"a", "b"}, values(t, out, "_0"))

	_, _, _, err := rt.Exec(context.Background(), rt.NewEnv(), `SH "exit 3"`, "")
	require.Error(t, err)
	fe, ok := ferrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "IO-0004", fe.Code)
}

func TestPermissionsOption(t *testing.T) {
	perms := engine.Permissions{Read: true}
	rt := New(Options{Permissions: &perms, Logger: NullLogger(), Stdout: &bytes.Buffer{}})
	defer rt.Close()

	_, _, _, err := rt.Exec(context.Background(), rt.NewEnv(), `SH "ls"`, "")
	assert.True(t, ferrors.Is(err, ferrors.KindSecurity))
}

func TestCheck(t *testing.T) {
	_, err := ParseScript("PRINT \"unterminated", "bad.flume")
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindParse))

	script, err := ParseScript("PRINT 1\nPRINT 2", "ok.flume")
	require.NoError(t, err)
	assert.Len(t, script.Statements, 2)
}
