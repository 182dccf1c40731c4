// Package engine executes parsed Flume statements.
//
// Statements run one at a time against a persistent Env. Each statement is
// dispatched through the command Registry: its sources are resolved, its
// scalar arguments are evaluated and broadcast, and the command's handler
// runs once per broadcast row. A statement either commits a new Env or fails
// and leaves the Env it was given untouched.
package engine

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/expr"
	"github.com/sambeau/flume/pkg/flume/table"
	"github.com/sambeau/flume/pkg/flume/vector"
)

// ErrQuit is returned by Run and Exec when a QUIT statement executes.
var ErrQuit = goerrors.New("quit")

// Engine executes statements.
type Engine struct {
	host     Host
	commands *Registry
	funcs    *expr.Registry
	workers  int
	trace    Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many invocations of a parallel-safe command may run
// at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTrace logs one line per executed statement.
func WithTrace(l Logger) Option {
	return func(e *Engine) { e.trace = l }
}

// WithFunctions replaces the expression function registry.
func WithFunctions(r *expr.Registry) Option {
	return func(e *Engine) { e.funcs = r }
}

// WithCommands replaces the command registry.
func WithCommands(r *Registry) Option {
	return func(e *Engine) { e.commands = r }
}

// New creates an engine using host for I/O.
func New(host Host, opts ...Option) *Engine {
	e := &Engine{
		host:     host,
		commands: DefaultRegistry(),
		funcs:    expr.Builtins(),
		workers:  1,
	}
	if e.host.Logger == nil {
		e.host.Logger = nullLogger{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commands returns the engine's command registry.
func (e *Engine) Commands() *Registry { return e.commands }

// Functions returns the engine's function registry.
func (e *Engine) Functions() *expr.Registry { return e.funcs }

// Host returns the engine's collaborators.
func (e *Engine) Host() Host { return e.host }

// Run executes statements in order. It returns the final environment and
// the table produced by the last statement, which is nil when that
// statement produced none. On error the environment as it was before the
// failing statement is returned. QUIT stops with ErrQuit and keeps the
// table of the statement before it.
func (e *Engine) Run(ctx context.Context, env *Env, stmts []*ast.Statement) (*Env, *table.Table, error) {
	var last *table.Table
	for _, stmt := range stmts {
		next, out, err := e.Exec(ctx, env, stmt)
		if goerrors.Is(err, ErrQuit) {
			return env, last, err
		}
		if err != nil {
			return env, nil, err
		}
		env, last = next, out
	}
	return env, last, nil
}

// Exec executes one statement.
func (e *Engine) Exec(ctx context.Context, env *Env, stmt *ast.Statement) (*Env, *table.Table, error) {
	if err := ctx.Err(); err != nil {
		return env, nil, statementError(stmt, ferrors.Wrap("CANCEL-0001", err, nil))
	}

	start := time.Now()
	next, out, err := e.exec(ctx, env, stmt)
	if err != nil {
		if goerrors.Is(err, ErrQuit) {
			return env, nil, ErrQuit
		}
		return env, nil, statementError(stmt, err)
	}

	if e.trace != nil {
		rows := "no table"
		if out != nil {
			rows = fmt.Sprintf("%d rows", out.Len())
		}
		e.trace.LogLine(fmt.Sprintf("line %d: %s -> %s (%s)", stmt.Pos.Line, stmt.Command, rows, time.Since(start).Round(time.Microsecond)))
	}
	return next, out, nil
}

func statementError(stmt *ast.Statement, err error) error {
	fe, ok := ferrors.As(err)
	if !ok {
		if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
			fe = ferrors.Wrap("CANCEL-0001", err, nil)
		} else {
			fe = ferrors.NewSimple(ferrors.KindIO, err.Error())
		}
	}
	return fe.WithStatement(stmt.Command, stmt.Pos.Line, stmt.Pos.Column)
}

func (e *Engine) exec(ctx context.Context, env *Env, stmt *ast.Statement) (*Env, *table.Table, error) {
	cmd, err := e.commands.Lookup(stmt.Command)
	if err != nil {
		return nil, nil, err
	}
	if !cmd.Permission.allowed(e.host.Permissions) {
		return nil, nil, ferrors.New("SEC-0001", map[string]any{"Operation": cmd.Name, "Switch": cmd.Permission.String()})
	}
	if err := checkArity(cmd, len(stmt.Args)); err != nil {
		return nil, nil, err
	}

	inputs, err := e.resolveSources(ctx, env, cmd, stmt)
	if err != nil {
		return nil, nil, err
	}

	argTable := table.Empty()
	if len(inputs) > 0 {
		argTable = inputs[0]
	}
	ev := expr.New(argTable, env, e.funcs)
	args := make([]vector.Arg, len(stmt.Args))
	for i, a := range stmt.Args {
		if _, star := a.(*ast.Star); star {
			args[i] = vector.Scalar("*")
			continue
		}
		if args[i], err = ev.Eval(ctx, a); err != nil {
			return nil, nil, err
		}
	}

	plan, err := vector.Broadcast(args...)
	if err != nil {
		return nil, nil, err
	}

	workers := 1
	if cmd.Parallel {
		workers = e.workers
	}
	calls := make([]*Call, plan.Len())
	results, err := vector.Map(ctx, plan, workers, func(ctx context.Context, i int, tuple []table.Value) (*table.Table, error) {
		for j, v := range tuple {
			if err := cmd.param(j).check(v); err != nil {
				return nil, err
			}
		}
		c := &Call{Stmt: stmt, Env: env, Inputs: inputs, Args: tuple, Index: i, engine: e, evaluator: ev}
		calls[i] = c
		return cmd.Handler(ctx, c)
	})
	if err != nil {
		discardPending(calls)
		return nil, nil, err
	}

	next := env
	for _, c := range calls {
		if c == nil {
			continue
		}
		for _, p := range c.pending {
			next = next.WithSource(p.name, p.source)
		}
	}
	if cmd.Effect {
		return next, nil, nil
	}

	tables := make([]*table.Table, 0, len(results))
	for _, t := range results {
		if t != nil {
			tables = append(tables, t)
		}
	}
	var out *table.Table
	if len(tables) == 0 {
		out = table.Empty()
	} else if out, err = table.Concat(tables...); err != nil {
		discardPending(calls)
		return nil, nil, err
	}

	next = next.WithIt(out)
	if stmt.Into != "" {
		next = next.Bind(stmt.Into, out)
	}
	return next, out, nil
}

func checkArity(cmd *Command, n int) error {
	min, max := cmd.arity()
	if n >= min && (max < 0 || n <= max) {
		return nil
	}
	want := fmt.Sprint(min)
	switch {
	case max < 0:
		want += "+"
	case max != min:
		want = fmt.Sprintf("%d-%d", min, max)
	}
	return ferrors.New("ARITY-0002", map[string]any{"Command": cmd.Name, "Got": n, "Want": want, "Syntax": cmd.Syntax})
}

func (e *Engine) resolveSources(ctx context.Context, env *Env, cmd *Command, stmt *ast.Statement) ([]*table.Table, error) {
	if cmd.Input == InputNone {
		return nil, nil
	}
	inputs := make([]*table.Table, len(stmt.Sources))
	for i, ref := range stmt.Sources {
		t, err := e.resolve(ctx, env, ref)
		if err != nil {
			if cmd.Input == InputArgs && ref.Implicit && ferrors.Is(err, ferrors.KindEmpty) {
				inputs[i] = table.Empty()
				continue
			}
			if fe, ok := ferrors.As(err); ok && fe.Line == 0 && ref.Pos.Line > 0 {
				err = fe.WithPosition(ref.Pos.Line, ref.Pos.Column)
			}
			return nil, err
		}
		inputs[i] = t
	}
	return inputs, nil
}

func (e *Engine) resolve(ctx context.Context, env *Env, ref ast.TableRef) (*table.Table, error) {
	switch {
	case ref.Inline != nil:
		if e.host.Loader == nil {
			return nil, ferrors.NewSimple(ferrors.KindIO, "no loader configured for inline tables")
		}
		return e.host.Loader.Decode(ctx, ref.Inline.Text, ref.Inline.Format)
	case ref.Implicit:
		return env.It()
	default:
		return env.Get(ref.Name)
	}
}

type pendingSource struct {
	name   string
	source DataSource
}

func discardPending(calls []*Call) {
	for _, c := range calls {
		if c == nil {
			continue
		}
		for _, p := range c.pending {
			p.source.Close()
		}
	}
}

// Call is one invocation of a command handler.
type Call struct {
	Stmt   *ast.Statement
	Env    *Env
	Inputs []*table.Table
	// Args holds this invocation's value for every positional argument.
	Args  []table.Value
	Index int

	engine    *Engine
	evaluator *expr.Evaluator
	pending   []pendingSource
}

// Input returns the first source table.
func (c *Call) Input() *table.Table {
	if len(c.Inputs) == 0 {
		return table.Empty()
	}
	return c.Inputs[0]
}

// Arg returns the i-th argument, or nil when it was not supplied.
func (c *Call) Arg(i int) table.Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return nil
}

// StringArg returns the i-th argument as a string, or "" when absent.
func (c *Call) StringArg(i int) string {
	s, _ := c.Arg(i).(string)
	return s
}

// Host returns the engine's collaborators.
func (c *Call) Host() Host { return c.engine.host }

// Logger returns the output logger.
func (c *Call) Logger() Logger { return c.engine.host.Logger }

// Engine returns the executing engine.
func (c *Call) Engine() *Engine { return c.engine }

// Evaluator returns an expression evaluator over t. Expressions over the
// first input reuse the statement's evaluator.
func (c *Call) Evaluator(t *table.Table) *expr.Evaluator {
	if c.evaluator != nil && t == c.evaluator.Table() {
		return c.evaluator
	}
	return expr.New(t, c.Env, c.engine.funcs)
}

// Register records a data source to add to the environment once the
// statement succeeds.
func (c *Call) Register(name string, s DataSource) {
	c.pending = append(c.pending, pendingSource{name: name, source: s})
}
