package engine

import (
	"sort"
	"strconv"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Env is the persistent environment a script runs in: named tables, the
// implicit result `it`, connected data sources and script variables.
//
// An Env is never modified. Every update returns a new Env and leaves the
// receiver untouched, so a failed statement can simply discard its result.
type Env struct {
	bindings map[string]*table.Table
	it       *table.Table
	sources  map[string]DataSource
	vars     map[string]table.Value
	getenv   func(string) string
}

// NewEnv creates an empty environment. args become the script variables
// $0, $1, … and $ARGC. getenv resolves any other $name; it may be nil.
func NewEnv(args []table.Value, getenv func(string) string) *Env {
	env := &Env{
		bindings: map[string]*table.Table{},
		sources:  map[string]DataSource{},
		getenv:   getenv,
	}
	env.vars = argVars(args)
	return env
}

func argVars(args []table.Value) map[string]table.Value {
	vars := make(map[string]table.Value, len(args)+1)
	for i, a := range args {
		vars[strconv.Itoa(i)] = table.Normalize(a)
	}
	vars["ARGC"] = int64(len(args))
	return vars
}

func (e *Env) clone() *Env {
	c := *e
	return &c
}

// Get returns the table bound to name. "it" is the implicit result.
func (e *Env) Get(name string) (*table.Table, error) {
	if name == ast.ImplicitName {
		return e.It()
	}
	if t, ok := e.bindings[name]; ok {
		return t, nil
	}
	return nil, ferrors.NewTableNotFound(name, e.Names())
}

// Lookup is Get; it lets an Env serve as an expression scope.
func (e *Env) Lookup(name string) (*table.Table, error) {
	return e.Get(name)
}

// It returns the most recently produced table.
func (e *Env) It() (*table.Table, error) {
	if e.it == nil {
		return nil, ferrors.New("EMPTY-0001", nil)
	}
	return e.it, nil
}

// HasIt reports whether any statement has produced a table yet.
func (e *Env) HasIt() bool { return e.it != nil }

// Bind returns an environment with name bound to t.
func (e *Env) Bind(name string, t *table.Table) *Env {
	if name == ast.ImplicitName {
		return e.WithIt(t)
	}
	c := e.clone()
	c.bindings = make(map[string]*table.Table, len(e.bindings)+1)
	for k, v := range e.bindings {
		c.bindings[k] = v
	}
	c.bindings[name] = t
	return c
}

// WithIt returns an environment whose implicit result is t.
func (e *Env) WithIt(t *table.Table) *Env {
	c := e.clone()
	c.it = t
	return c
}

// Names returns the bound table names, sorted.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.bindings))
	for name := range e.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the data source registered under name.
func (e *Env) Source(name string) (DataSource, error) {
	if s, ok := e.sources[name]; ok {
		return s, nil
	}
	return nil, ferrors.New("NOTFOUND-0002", map[string]any{"Name": name})
}

// WithSource returns an environment with a data source registered.
func (e *Env) WithSource(name string, s DataSource) *Env {
	c := e.clone()
	c.sources = make(map[string]DataSource, len(e.sources)+1)
	for k, v := range e.sources {
		c.sources[k] = v
	}
	c.sources[name] = s
	return c
}

// SourceNames returns the registered data source names, sorted.
func (e *Env) SourceNames() []string {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Var resolves $name: script arguments first, then the process
// environment.
func (e *Env) Var(name string) (table.Value, bool) {
	if v, ok := e.vars[name]; ok {
		return v, true
	}
	if e.getenv != nil {
		if v := e.getenv(name); v != "" {
			return v, true
		}
	}
	return nil, false
}

// Child returns the environment a RUN script executes in. It sees the
// parent's tables and sources but has its own arguments.
func (e *Env) Child(args []table.Value) *Env {
	c := e.clone()
	c.vars = argVars(args)
	return c
}

// Close closes every registered data source and returns the first error.
func (e *Env) Close() error {
	var first error
	for _, name := range e.SourceNames() {
		if err := e.sources[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
