package flume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/codec"
	"github.com/sambeau/flume/pkg/flume/engine"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// maxRunDepth bounds RUN nesting so a script that runs itself fails
// instead of exhausting the stack.
const maxRunDepth = 32

type runDepthKey struct{}

func runDepth(ctx context.Context) int {
	d, _ := ctx.Value(runDepthKey{}).(int)
	return d
}

// runner executes RUN scripts with the runtime's engine and SH commands
// with the system shell.
type runner struct {
	rt    *Runtime
	shell string
}

func (r *runner) Run(ctx context.Context, location string, args []table.Value, parent *engine.Env) (*table.Table, error) {
	depth := runDepth(ctx)
	if depth >= maxRunDepth {
		return nil, ferrors.NewSimple(ferrors.KindIO, fmt.Sprintf("RUN nested more than %d deep", maxRunDepth))
	}
	src, err := r.rt.opener.ReadAll(ctx, location)
	if err != nil {
		return nil, err
	}
	script, err := ParseScript(string(src), location)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, runDepthKey{}, depth+1)
	_, last, err := r.rt.engine.Run(ctx, parent.Child(args), script.Statements)
	if errors.Is(err, engine.ErrQuit) {
		return last, nil
	}
	if err != nil {
		if fe, ok := ferrors.As(err); ok && fe.File == "" {
			return nil, fe.WithFile(location)
		}
		return nil, err
	}
	return last, nil
}

// Shell runs command with the shell and decodes its standard output, as
// CSV unless a format is given.
func (r *runner) Shell(ctx context.Context, command string, format *ast.Format) (*table.Table, error) {
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ferrors.Wrap("CANCEL-0001", ctx.Err(), nil)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, ferrors.Wrap("IO-0004", err, map[string]any{"Command": command})
	}

	f := ast.Format{Kind: codec.CSV}
	if format != nil {
		f = *format
	}
	return codec.Decode(&stdout, f)
}
