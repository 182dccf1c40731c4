package engine

import (
	"context"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/expr"
	"github.com/sambeau/flume/pkg/flume/table"
)

func opDrop(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	drop := map[string]bool{}
	for _, ref := range c.Stmt.Columns {
		name, err := expr.ResolveName(in, ref)
		if err != nil {
			return nil, err
		}
		drop[name] = true
	}
	var keep []string
	for _, name := range in.Names() {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	return in.Project(keep...)
}

func opRename(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	from, err := expr.ResolveName(in, c.Stmt.Columns[0])
	if err != nil {
		return nil, err
	}
	to := c.Stmt.Columns[1]
	if to.Index >= 0 {
		return nil, ferrors.NewSimple(ferrors.KindType, "RENAME needs a column name after TO, not a position")
	}
	if to.Name != from && in.Has(to.Name) {
		return nil, ferrors.New("NAME-0001", map[string]any{"Name": to.Name})
	}
	cols := in.Columns()
	for i, col := range cols {
		if col.Name() == from {
			cols[i] = col.Rename(to.Name)
		}
	}
	return table.Sized(in.Len(), cols...)
}

// opTranspose turns rows into columns. The key column's values become the
// header and the first output column lists the other original column names.
func opTranspose(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	if in.Width() == 0 {
		return in, nil
	}
	key := in.ColumnAt(0)
	if len(c.Stmt.Columns) > 0 {
		var err error
		if key, err = expr.Resolve(in, c.Stmt.Columns[0]); err != nil {
			return nil, err
		}
	}

	var rest []*table.Column
	var restNames []table.Value
	for _, col := range in.Columns() {
		if col.Name() != key.Name() {
			rest = append(rest, col)
			restNames = append(restNames, col.Name())
		}
	}

	cols := []*table.Column{table.NewColumn(key.Name(), restNames)}
	for i := 0; i < in.Len(); i++ {
		v := key.At(i)
		if table.IsNull(v) {
			return nil, ferrors.New("NAME-0004", map[string]any{"Value": "null"})
		}
		values := make([]table.Value, len(rest))
		for j, col := range rest {
			values[j] = col.At(i)
		}
		cols = append(cols, table.NewColumn(table.Format(v), values))
	}
	return table.Sized(len(rest), cols...)
}

// opExplode emits one row per element of a list cell. Rows holding an
// empty list are dropped; rows holding a non-list value are kept as is.
func opExplode(_ context.Context, c *Call) (*table.Table, error) {
	in := c.Input()
	target, err := expr.Resolve(in, c.Stmt.Columns[0])
	if err != nil {
		return nil, err
	}

	var idx []int
	var values []table.Value
	for i := 0; i < in.Len(); i++ {
		v := target.At(i)
		list, ok := v.([]table.Value)
		if !ok {
			idx = append(idx, i)
			values = append(values, v)
			continue
		}
		for _, e := range list {
			idx = append(idx, i)
			values = append(values, e)
		}
	}

	cols := in.Columns()
	for j, col := range cols {
		if col.Name() == target.Name() {
			cols[j] = table.NewColumn(col.Name(), values)
		} else {
			cols[j] = col.Take(idx)
		}
	}
	return table.Sized(len(idx), cols...)
}
