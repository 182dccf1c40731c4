package engine

import (
	"context"
	"strings"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// pair is one output row of a join: a left and a right row index, -1 for
// a missing side.
type pair struct{ left, right int }

// opJoin hash-joins two tables on key columns.
func opJoin(_ context.Context, c *Call) (*table.Table, error) {
	left, right := c.Inputs[0], c.Inputs[1]

	keys, err := joinKeys(c, left, right)
	if err != nil {
		return nil, err
	}
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	for _, name := range right.Names() {
		if !isKey[name] && left.Has(name) {
			return nil, ferrors.New("NAME-0001", map[string]any{"Name": name})
		}
	}

	leftKeys := keyColumns(left, keys)
	rightKeys := keyColumns(right, keys)

	var pairs []pair
	switch c.Stmt.How {
	case "RIGHT":
		index := hashKeys(leftKeys, left.Len())
		for j := 0; j < right.Len(); j++ {
			matches := probe(index, leftKeys, rightKeys, j)
			if len(matches) == 0 {
				pairs = append(pairs, pair{-1, j})
			}
			for _, i := range matches {
				pairs = append(pairs, pair{i, j})
			}
		}
	default:
		index := hashKeys(rightKeys, right.Len())
		matched := make([]bool, right.Len())
		for i := 0; i < left.Len(); i++ {
			matches := probe(index, rightKeys, leftKeys, i)
			if len(matches) == 0 && c.Stmt.How != "INNER" && c.Stmt.How != "" {
				pairs = append(pairs, pair{i, -1})
			}
			for _, j := range matches {
				pairs = append(pairs, pair{i, j})
				matched[j] = true
			}
		}
		if c.Stmt.How == "OUTER" {
			for j, m := range matched {
				if !m {
					pairs = append(pairs, pair{-1, j})
				}
			}
		}
	}

	return assemble(left, right, pairs, isKey)
}

func joinKeys(c *Call, left, right *table.Table) ([]string, error) {
	var keys []string
	if len(c.Stmt.Columns) > 0 {
		for _, ref := range c.Stmt.Columns {
			name := ref.Name
			if ref.Index >= 0 {
				if ref.Index >= left.Width() {
					return nil, ferrors.New("NAME-0003", map[string]any{"Index": ref.Index, "Width": left.Width()})
				}
				name = left.ColumnAt(ref.Index).Name()
			}
			if _, err := left.Lookup(name); err != nil {
				return nil, err
			}
			if _, err := right.Lookup(name); err != nil {
				return nil, err
			}
			keys = append(keys, name)
		}
		return keys, nil
	}
	for _, name := range left.Names() {
		if right.Has(name) {
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		return nil, ferrors.New("SCHEMA-0002", map[string]any{
			"Left":  c.Stmt.Source(0).String(),
			"Right": c.Stmt.Source(1).String(),
		})
	}
	return keys, nil
}

func keyColumns(t *table.Table, keys []string) []*table.Column {
	cols := make([]*table.Column, len(keys))
	for i, k := range keys {
		cols[i], _ = t.Column(k)
	}
	return cols
}

func hasNullKey(cols []*table.Column, i int) bool {
	for _, c := range cols {
		if table.IsNull(c.At(i)) {
			return true
		}
	}
	return false
}

// hashKeys indexes rows by the hash of their key values. Rows with a null
// key are left out: null keys never match.
func hashKeys(cols []*table.Column, n int) map[uint64][]int {
	index := make(map[uint64][]int, n)
	for i := 0; i < n; i++ {
		if hasNullKey(cols, i) {
			continue
		}
		h := table.HashRow(cols, i)
		index[h] = append(index[h], i)
	}
	return index
}

// probe returns the indexed rows whose keys equal row i of probeCols, in
// index order.
func probe(index map[uint64][]int, indexCols, probeCols []*table.Column, i int) []int {
	if hasNullKey(probeCols, i) {
		return nil
	}
	var out []int
	for _, j := range index[table.HashRow(probeCols, i)] {
		if table.RowsEqual(probeCols, i, indexCols, j) {
			out = append(out, j)
		}
	}
	return out
}

// assemble builds the joined table: the left columns, with key values taken
// from the right side for right-only rows, then the right non-key columns.
func assemble(left, right *table.Table, pairs []pair, isKey map[string]bool) (*table.Table, error) {
	li := make([]int, len(pairs))
	ri := make([]int, len(pairs))
	for k, p := range pairs {
		li[k], ri[k] = p.left, p.right
	}

	var cols []*table.Column
	for _, col := range left.Columns() {
		if !isKey[col.Name()] {
			cols = append(cols, col.Take(li))
			continue
		}
		rcol, _ := right.Column(col.Name())
		values := make([]table.Value, len(pairs))
		for k, p := range pairs {
			if p.left >= 0 {
				values[k] = col.At(p.left)
			} else {
				values[k] = rcol.At(p.right)
			}
		}
		cols = append(cols, table.NewColumn(col.Name(), values))
	}
	for _, col := range right.Columns() {
		if !isKey[col.Name()] {
			cols = append(cols, col.Take(ri))
		}
	}
	return table.Sized(len(pairs), cols...)
}

// opCross is the cartesian product, left-major.
func opCross(_ context.Context, c *Call) (*table.Table, error) {
	left, right := c.Inputs[0], c.Inputs[1]
	for _, name := range right.Names() {
		if left.Has(name) {
			return nil, ferrors.New("NAME-0001", map[string]any{"Name": name})
		}
	}
	pairs := make([]pair, 0, left.Len()*right.Len())
	for i := 0; i < left.Len(); i++ {
		for j := 0; j < right.Len(); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	return assemble(left, right, pairs, nil)
}

// opUnion stacks tables that share a column set.
func opUnion(_ context.Context, c *Call) (*table.Table, error) {
	for i, t := range c.Inputs[1:] {
		if !table.SameNames(c.Inputs[0], t) {
			return nil, ferrors.New("SCHEMA-0001", map[string]any{
				"Left":  strings.Join(c.Inputs[0].Names(), ", "),
				"Right": strings.Join(t.Names(), ", "),
			}).WithPosition(c.Stmt.Sources[i+1].Pos.Line, c.Stmt.Sources[i+1].Pos.Column)
		}
	}
	if len(c.Inputs) == 1 {
		return c.Inputs[0].Gather(allRows(c.Inputs[0].Len())), nil
	}
	return table.Concat(c.Inputs...)
}
