package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// OpKind enumerates the operations the engine knows how to run.
type OpKind int

const (
	OpSelect OpKind = iota
	OpFilter
	OpSort
	OpTake
	OpJoin
	OpCross
	OpUnion
	OpDistinct
	OpDrop
	OpRename
	OpReverse
	OpTranspose
	OpExplode
	OpCreate
	OpPut
	OpRead
	OpWrite
	OpConnect
	OpQuery
	OpRun
	OpShell
	OpPrint
	OpHelp
	OpQuit
	opCount
)

// InputMode says how a command's source tables are resolved.
type InputMode int

const (
	// InputTable commands operate on their sources, which must exist.
	InputTable InputMode = iota
	// InputArgs commands only evaluate their arguments against the source;
	// before any table exists arguments are evaluated against an empty table.
	InputArgs
	// InputNone commands have no source.
	InputNone
)

// Permission is the switch a command requires.
type Permission int

const (
	PermNone Permission = iota
	PermRead
	PermWrite
	PermConnect
	PermRun
)

func (p Permission) String() string {
	switch p {
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermConnect:
		return "connect"
	case PermRun:
		return "run"
	}
	return "none"
}

func (p Permission) allowed(perms Permissions) bool {
	switch p {
	case PermRead:
		return perms.Read
	case PermWrite:
		return perms.Write
	case PermConnect:
		return perms.Connect
	case PermRun:
		return perms.Run
	}
	return true
}

// ParamKind is the type a positional argument must have.
type ParamKind int

const (
	ParamAny ParamKind = iota
	ParamString
	ParamInt
)

// Param declares one positional argument.
type Param struct {
	Name     string
	Kind     ParamKind
	Optional bool
	Variadic bool // the last parameter may repeat
}

func (p Param) check(v table.Value) error {
	switch p.Kind {
	case ParamString:
		if _, ok := v.(string); !ok {
			return ferrors.New("TYPE-0001", map[string]any{"Param": p.Name, "Expected": "a string", "Got": table.TypeName(v)})
		}
	case ParamInt:
		if !table.IsIntegral(v) {
			return ferrors.New("TYPE-0001", map[string]any{"Param": p.Name, "Expected": "an integer", "Got": table.TypeName(v)})
		}
	}
	return nil
}

// Handler runs one invocation of a command. Vectorized statements call
// their handler once per broadcast row.
type Handler func(ctx context.Context, c *Call) (*table.Table, error)

// Command declares a statement the engine can execute.
type Command struct {
	Kind     OpKind
	Name     string
	Syntax   string
	Summary  string
	Examples []string

	Params     []Param
	Input      InputMode
	Effect     bool // produces no table; bindings are left unchanged
	Parallel   bool // invocations may run concurrently
	Permission Permission
	Handler    Handler
}

func (c *Command) arity() (min, max int) {
	for _, p := range c.Params {
		if !p.Optional && !p.Variadic {
			min++
		}
		if p.Variadic {
			return min, -1
		}
		max++
	}
	return min, max
}

// param returns the declaration covering argument i.
func (c *Command) param(i int) Param {
	if i < len(c.Params) {
		return c.Params[i]
	}
	return c.Params[len(c.Params)-1]
}

func (c *Command) validate() error {
	if c.Name == "" || c.Name != strings.ToUpper(c.Name) {
		return fmt.Errorf("command name %q must be upper case", c.Name)
	}
	if c.Handler == nil {
		return fmt.Errorf("command %s has no handler", c.Name)
	}
	if c.Kind < 0 || c.Kind >= opCount {
		return fmt.Errorf("command %s has unknown kind %d", c.Name, c.Kind)
	}
	optional := false
	for i, p := range c.Params {
		if p.Variadic && i != len(c.Params)-1 {
			return fmt.Errorf("command %s: only the last parameter may be variadic", c.Name)
		}
		if p.Optional {
			optional = true
		} else if optional && !p.Variadic {
			return fmt.Errorf("command %s: required parameter %s follows an optional one", c.Name, p.Name)
		}
	}
	return nil
}

// Registry holds the commands an engine dispatches to.
type Registry struct {
	commands map[string]*Command
	kinds    map[OpKind]*Command
}

// NewRegistry validates and registers commands. Names and kinds must be
// unique.
func NewRegistry(commands ...*Command) (*Registry, error) {
	r := &Registry{commands: map[string]*Command{}, kinds: map[OpKind]*Command{}}
	for _, c := range commands {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a command.
func (r *Registry) Register(c *Command) error {
	if err := c.validate(); err != nil {
		return err
	}
	if _, dup := r.commands[c.Name]; dup {
		return fmt.Errorf("command %s registered twice", c.Name)
	}
	if _, dup := r.kinds[c.Kind]; dup {
		return fmt.Errorf("command %s reuses the handler kind of %s", c.Name, r.kinds[c.Kind].Name)
	}
	r.commands[c.Name] = c
	r.kinds[c.Kind] = c
	return nil
}

// Lookup returns the named command or an unknown-command error.
func (r *Registry) Lookup(name string) (*Command, error) {
	if c, ok := r.commands[strings.ToUpper(name)]; ok {
		return c, nil
	}
	return nil, ferrors.NewUnknownCommand(name, r.Names())
}

// Names returns the command names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commands returns the commands in alphabetical order.
func (r *Registry) Commands() []*Command {
	names := r.Names()
	out := make([]*Command, len(names))
	for i, name := range names {
		out[i] = r.commands[name]
	}
	return out
}

// DefaultRegistry returns a registry holding every builtin command.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinCommands()...)
	if err != nil {
		panic(err)
	}
	return r
}
