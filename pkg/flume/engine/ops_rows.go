package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/expr"
	"github.com/sambeau/flume/pkg/flume/table"
	"github.com/sambeau/flume/pkg/flume/vector"
)

// opSelect builds one output column per term.
func opSelect(ctx context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	ev := c.Evaluator(in)

	var args []vector.Arg
	var names []string
	star := false
	for _, term := range c.Stmt.Terms {
		if _, ok := term.Expr.(*ast.Star); ok {
			star = true
			for _, col := range in.Columns() {
				args = append(args, vector.Column(col))
				names = append(names, col.Name())
			}
			continue
		}

		arg, err := ev.Eval(ctx, term.Expr)
		if err != nil {
			return nil, err
		}
		name := term.Alias
		if name == "" {
			if _, ok := term.Expr.(*ast.ColumnRef); ok && arg.IsColumn() {
				name = arg.Col().Name()
			} else {
				name = "_" + strconv.Itoa(len(names))
			}
		}
		args = append(args, arg)
		names = append(names, name)
	}

	if len(args) == 0 && star {
		return table.Sized(in.Len())
	}

	plan, err := vector.Broadcast(args...)
	if err != nil {
		return nil, err
	}
	cols := make([]*table.Column, len(args))
	for i, arg := range args {
		if arg.IsColumn() {
			cols[i] = arg.Col().Rename(names[i])
		} else {
			cols[i] = table.Repeat(names[i], arg.Value(), plan.Len())
		}
	}
	return table.Sized(plan.Len(), cols...)
}

// opFilter keeps the rows whose predicate is true.
func opFilter(ctx context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	pred, err := c.Evaluator(in).Eval(ctx, c.Stmt.Terms[0].Expr)
	if err != nil {
		return nil, err
	}

	if !pred.IsColumn() {
		keep, err := predicate(pred.Value())
		if err != nil {
			return nil, err
		}
		if keep {
			return in.Gather(allRows(in.Len())), nil
		}
		return in.Gather(nil), nil
	}

	col := pred.Col()
	if col.Len() != in.Len() {
		return nil, ferrors.New("SHAPE-0001", map[string]any{"Lengths": fmt.Sprint([]int{in.Len(), col.Len()})})
	}
	idx := make([]int, 0, in.Len())
	for i := 0; i < col.Len(); i++ {
		keep, err := predicate(col.At(i))
		if err != nil {
			return nil, err
		}
		if keep {
			idx = append(idx, i)
		}
	}
	return in.Gather(idx), nil
}

func predicate(v table.Value) (bool, error) {
	if table.IsNull(v) {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, ferrors.New("TYPE-0001", map[string]any{"Param": "predicate", "Expected": "a boolean", "Got": table.TypeName(v)})
	}
	return b, nil
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// opSort is a stable multi-key sort. Nulls sort last in both directions.
func opSort(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	if in.Width() == 0 {
		return in.Gather(allRows(in.Len())), nil
	}

	type key struct {
		col  *table.Column
		desc bool
	}
	var keys []key
	for _, k := range c.Stmt.Order {
		col, err := expr.Resolve(in, k.Column)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key{col: col, desc: k.Desc})
	}
	if len(keys) == 0 {
		keys = []key{{col: in.ColumnAt(0)}}
	}

	idx := allRows(in.Len())
	slices.SortStableFunc(idx, func(a, b int) int {
		for _, k := range keys {
			va, vb := k.col.At(a), k.col.At(b)
			cmp := table.Order(va, vb)
			if k.desc && !table.IsNull(va) && !table.IsNull(vb) {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	})
	return in.Gather(idx), nil
}

// opTake keeps the first (or last) n rows.
func opTake(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	rows := in.Len()
	count := rows
	// Integral floats beyond int64 range only reach here unconverted.
	arg := c.Arg(0)
	if n, ok := table.AsInt(arg); ok {
		if n < 0 {
			return nil, ferrors.New("TYPE-0001", map[string]any{"Param": "n", "Expected": "a non-negative integer", "Got": n})
		}
		if int64(rows) > n {
			count = int(n)
		}
	} else if f, _ := table.AsFloat(arg); f < 0 {
		return nil, ferrors.New("TYPE-0001", map[string]any{"Param": "n", "Expected": "a non-negative integer", "Got": arg})
	}
	start := 0
	if c.Stmt.Last {
		start = rows - count
	}
	idx := make([]int, count)
	for i := range idx {
		idx[i] = start + i
	}
	return in.Gather(idx), nil
}

// opDistinct removes rows that duplicate another row on the key columns,
// keeping the first (or last) occurrence in original order.
func opDistinct(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	keys := in.Columns()
	if len(c.Stmt.Columns) > 0 {
		keys = keys[:0]
		for _, ref := range c.Stmt.Columns {
			col, err := expr.Resolve(in, ref)
			if err != nil {
				return nil, err
			}
			keys = append(keys, col)
		}
	}

	n := in.Len()
	keep := make([]bool, n)
	seen := map[uint64][]int{}
	visit := func(i int) {
		h := table.HashRow(keys, i)
		for _, j := range seen[h] {
			if table.RowsEqual(keys, i, keys, j) {
				return
			}
		}
		seen[h] = append(seen[h], i)
		keep[i] = true
	}
	if c.Stmt.Last {
		for i := n - 1; i >= 0; i-- {
			visit(i)
		}
	} else {
		for i := 0; i < n; i++ {
			visit(i)
		}
	}

	idx := make([]int, 0, n)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return in.Gather(idx), nil
}

func opReverse(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	idx := make([]int, in.Len())
	for i := range idx {
		idx[i] = len(idx) - 1 - i
	}
	return in.Gather(idx), nil
}

// opPut returns its source, so `PUT it INTO x` rebinds.
func opPut(_ context.Context, c *Call) (*table.Table, error) {
	return c.Input(), nil
}

// opPrint writes one line per row; multiple terms are space separated.
func opPrint(ctx context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	ev := c.Evaluator(in)
	args := make([]vector.Arg, len(c.Stmt.Terms))
	for i, term := range c.Stmt.Terms {
		if _, ok := term.Expr.(*ast.Star); ok {
			return nil, ferrors.NewSimple(ferrors.KindType, "PRINT does not accept `*`; use WRITE to print a table")
		}
		arg, err := ev.Eval(ctx, term.Expr)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	plan, err := vector.Broadcast(args...)
	if err != nil {
		return nil, err
	}
	log := c.Logger()
	for i := 0; i < plan.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, ferrors.Wrap("CANCEL-0001", err, nil)
		}
		tuple := plan.Tuple(i)
		parts := make([]string, len(tuple))
		for j, v := range tuple {
			parts[j] = table.Format(v)
		}
		log.LogLine(strings.Join(parts, " "))
	}
	return nil, nil
}
