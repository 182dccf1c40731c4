package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

func TestEnvIsPersistent(t *testing.T) {
	a := table.MustNew(table.NewColumn("x", []table.Value{int64(1)}))
	b := table.MustNew(table.NewColumn("y", []table.Value{int64(2)}))

	base := NewEnv(nil, nil)
	one := base.Bind("a", a)
	two := one.Bind("b", b).WithIt(b)

	assert.Empty(t, base.Names())
	assert.Equal(t, []string{"a"}, one.Names())
	assert.Equal(t, []string{"a", "b"}, two.Names())
	assert.False(t, one.HasIt())

	it, err := two.Get("it")
	require.NoError(t, err)
	assert.Same(t, b, it)

	viaBind := base.Bind("it", a)
	assert.Empty(t, viaBind.Names())
	it, err = viaBind.It()
	require.NoError(t, err)
	assert.Same(t, a, it)
}

func TestEnvErrors(t *testing.T) {
	env := NewEnv(nil, nil).Bind("people", table.Empty())

	_, err := env.It()
	assert.True(t, ferrors.Is(err, ferrors.KindEmpty))

	_, err = env.Get("peeple")
	fe, ok := ferrors.As(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindNotFound, fe.Kind)
	require.NotEmpty(t, fe.Hints)
	assert.Contains(t, fe.Hints[0], "people")

	_, err = env.Source("db")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
}

func TestEnvVars(t *testing.T) {
	getenv := func(name string) string {
		if name == "HOME" {
			return "/home/flume"
		}
		return ""
	}
	env := NewEnv([]table.Value{"script.flume", 3, "x"}, getenv)

	tests := []struct {
		name string
		want table.Value
		ok   bool
	}{
		{"0", "script.flume", true},
		{"1", int64(3), true},
		{"2", "x", true},
		{"ARGC", int64(3), true},
		{"HOME", "/home/flume", true},
		{"3", nil, false},
		{"NOPE", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := env.Var(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	child := env.Bind("t", table.Empty()).Child([]table.Value{"child.flume"})
	v, _ := child.Var("0")
	assert.Equal(t, "child.flume", v)
	v, _ = child.Var("ARGC")
	assert.Equal(t, int64(1), v)
	_, err := child.Get("t")
	assert.NoError(t, err)
}

func TestEnvSourcesClose(t *testing.T) {
	s1, s2 := &fakeSource{}, &fakeSource{}
	base := NewEnv(nil, nil)
	env := base.WithSource("b", s2).WithSource("a", s1)

	assert.Empty(t, base.SourceNames())
	assert.Equal(t, []string{"a", "b"}, env.SourceNames())

	got, err := env.Source("a")
	require.NoError(t, err)
	assert.Same(t, s1, got)

	require.NoError(t, env.Close())
	assert.True(t, s1.closed.Load())
	assert.True(t, s2.closed.Load())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Len(t, r.Names(), int(opCount))

	cmd, err := r.Lookup("sort")
	require.NoError(t, err)
	assert.Equal(t, OpSort, cmd.Kind)

	_, err = NewRegistry(&Command{Kind: OpSort, Name: "SORT", Handler: opSort}, &Command{Kind: OpSort, Name: "ORDER", Handler: opSort})
	assert.Error(t, err)

	_, err = NewRegistry(&Command{Kind: OpSort, Name: "SORT"})
	assert.Error(t, err)
}
