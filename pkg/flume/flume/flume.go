// Package flume provides the public API for embedding the Flume engine. A
// Runtime wires the engine to real collaborators: files and URLs through
// fetch and codec, data sources through source, and RUN and SH through the
// runtime itself.
package flume

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/codec"
	"github.com/sambeau/flume/pkg/flume/engine"
	"github.com/sambeau/flume/pkg/flume/fetch"
	"github.com/sambeau/flume/pkg/flume/parser"
	"github.com/sambeau/flume/pkg/flume/printer"
	"github.com/sambeau/flume/pkg/flume/source"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Options configure a Runtime. The zero value reads and writes the local
// system with every permission granted.
type Options struct {
	// Permissions switch off classes of commands. Nil grants everything.
	Permissions *engine.Permissions
	// Logger receives PRINT and HELP output; nil writes to Stdout.
	Logger Logger
	// Trace, when set, receives one line per executed statement.
	Trace Logger
	// Workers is the parallelism of broadcast READ, QUERY and SH.
	Workers int

	// Stdin and Stdout back the "-" location and unnamed WRITEs.
	Stdin  io.Reader
	Stdout io.Writer
	// OutputFormat is used by WRITE without a location; empty means TEXT.
	OutputFormat string
	// Printer styles TEXT output.
	Printer printer.Options

	Fetch   fetch.Options
	Sources source.Options
	// Shell runs SH commands; empty means "sh".
	Shell string
	// Getenv resolves $name variables that are not script arguments.
	Getenv func(string) string
}

// Runtime runs Flume scripts.
type Runtime struct {
	opts      Options
	engine    *engine.Engine
	opener    *fetch.Opener
	connector *source.Connector
}

// New creates a Runtime.
func New(opts Options) *Runtime {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = WriterLogger(opts.Stdout)
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = codec.Text
	}
	if opts.Shell == "" {
		opts.Shell = "sh"
	}
	perms := engine.AllowAll()
	if opts.Permissions != nil {
		perms = *opts.Permissions
	}
	opts.Fetch.Stdin = opts.Stdin
	opts.Fetch.Stdout = opts.Stdout

	rt := &Runtime{
		opts:      opts,
		opener:    fetch.New(opts.Fetch),
		connector: source.NewConnector(opts.Sources),
	}
	tio := &tableIO{
		opener:  rt.opener,
		stdout:  opts.Stdout,
		format:  opts.OutputFormat,
		printer: printer.New(opts.Printer),
	}
	host := engine.Host{
		Loader:      tio,
		Writer:      tio,
		Connector:   rt.connector,
		Runner:      &runner{rt: rt, shell: opts.Shell},
		Logger:      opts.Logger,
		Permissions: perms,
	}
	engineOpts := []engine.Option{engine.WithWorkers(opts.Workers)}
	if opts.Trace != nil {
		engineOpts = append(engineOpts, engine.WithTrace(opts.Trace))
	}
	rt.engine = engine.New(host, engineOpts...)
	return rt
}

// Engine returns the underlying engine.
func (rt *Runtime) Engine() *engine.Engine { return rt.engine }

// NewEnv creates an empty environment whose $0, $1, … are args.
func (rt *Runtime) NewEnv(args ...table.Value) *engine.Env {
	return engine.NewEnv(args, rt.opts.Getenv)
}

// ParseScript parses source text. The error, if any, is the first syntax
// error as a *errors.FlumeError.
func ParseScript(src, filename string) (*ast.Script, error) {
	return parser.Parse(src, filename)
}

// Exec parses and runs src in env. It returns the resulting environment and
// the last statement's table, or nil when the last statement produced none.
// A QUIT statement stops execution without an error; the returned bool
// reports it.
func (rt *Runtime) Exec(ctx context.Context, env *engine.Env, src, filename string) (*engine.Env, *table.Table, bool, error) {
	script, err := ParseScript(src, filename)
	if err != nil {
		return env, nil, false, err
	}
	return rt.run(ctx, env, script.Statements)
}

func (rt *Runtime) run(ctx context.Context, env *engine.Env, stmts []*ast.Statement) (*engine.Env, *table.Table, bool, error) {
	var last *table.Table
	for _, stmt := range stmts {
		next, out, err := rt.engine.Exec(ctx, env, stmt)
		if errors.Is(err, engine.ErrQuit) {
			return env, last, true, nil
		}
		if err != nil {
			return env, nil, false, err
		}
		env, last = next, out
	}
	return env, last, false, nil
}

// RunFile runs the script at location, a path or URL, with args as $1, $2,
// …; $0 is the location.
func (rt *Runtime) RunFile(ctx context.Context, location string, args ...table.Value) (*engine.Env, *table.Table, error) {
	src, err := rt.opener.ReadAll(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	env := rt.NewEnv(append([]table.Value{location}, args...)...)
	env, last, _, err := rt.Exec(ctx, env, string(src), location)
	return env, last, err
}

// Print writes t to standard output the way an unnamed WRITE does.
func (rt *Runtime) Print(ctx context.Context, t *table.Table) error {
	return rt.engine.Host().Writer.Write(ctx, t, "", nil)
}

// Close closes cached database and SFTP connections.
func (rt *Runtime) Close() error {
	err := rt.connector.Close()
	if ferr := rt.opener.Close(); err == nil {
		err = ferr
	}
	return err
}
