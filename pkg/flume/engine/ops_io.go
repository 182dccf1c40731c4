package engine

import (
	"context"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

func missing(collaborator string) error {
	return ferrors.NewSimple(ferrors.KindIO, "no "+collaborator+" configured")
}

// opCreate returns the decoded inline table; the parser binds it to the
// CREATE name.
func opCreate(_ context.Context, c *Call) (*table.Table, error) {
	return c.Input(), nil
}

func opRead(ctx context.Context, c *Call) (*table.Table, error) {
	loader := c.Host().Loader
	if loader == nil {
		return nil, missing("loader")
	}
	return loader.Load(ctx, c.StringArg(0), c.Stmt.Format)
}

func opWrite(ctx context.Context, c *Call) (*table.Table, error) {
	writer := c.Host().Writer
	if writer == nil {
		return nil, missing("writer")
	}
	return nil, writer.Write(ctx, c.Input(), c.StringArg(0), c.Stmt.Format)
}

func opConnect(ctx context.Context, c *Call) (*table.Table, error) {
	connector := c.Host().Connector
	if connector == nil {
		return nil, missing("connector")
	}
	source, err := connector.Connect(ctx, c.Stmt.Name, c.Stmt.Kind, c.StringArg(0))
	if err != nil {
		return nil, err
	}
	c.Register(c.Stmt.Name, source)
	return nil, nil
}

func opQuery(ctx context.Context, c *Call) (*table.Table, error) {
	source, err := c.Env.Source(c.Stmt.Target.Source)
	if err != nil {
		return nil, err
	}
	return source.Query(ctx, c.Arg(0), c.Stmt.Target.Table)
}

// opRun runs a child script. Its arguments, location first, become the
// child's $0, $1, ….
func opRun(ctx context.Context, c *Call) (*table.Table, error) {
	runner := c.Host().Runner
	if runner == nil {
		return nil, missing("runner")
	}
	return runner.Run(ctx, c.StringArg(0), c.Args, c.Env)
}

func opShell(ctx context.Context, c *Call) (*table.Table, error) {
	runner := c.Host().Runner
	if runner == nil {
		return nil, missing("runner")
	}
	return runner.Shell(ctx, c.StringArg(0), c.Stmt.Format)
}

func opQuit(context.Context, *Call) (*table.Table, error) {
	return nil, ErrQuit
}
