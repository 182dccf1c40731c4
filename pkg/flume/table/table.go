// Package table implements the immutable columnar tables that flow between
// Flume statements.
//
// A Table is never modified after construction. Operations that produce a new
// table share unchanged columns with their input.
package table

import (
	"strings"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
)

// Column is a named, typed, immutable sequence of values.
type Column struct {
	name   string
	typ    Type
	values []Value
}

// NewColumn creates a column from a copy of values. Values are normalized
// and the column type is inferred from them.
func NewColumn(name string, values []Value) *Column {
	owned := make([]Value, len(values))
	for i, v := range values {
		owned[i] = Normalize(v)
	}
	return newColumn(name, owned)
}

// newColumn takes ownership of values, which must already be normalized.
func newColumn(name string, values []Value) *Column {
	typ := TypeNull
	for _, v := range values {
		typ = unify(typ, TypeOf(v))
		if typ == TypeAny {
			break
		}
	}
	return &Column{name: name, typ: typ, values: values}
}

// Repeat creates a column holding n copies of v.
func Repeat(name string, v Value, n int) *Column {
	values := make([]Value, n)
	v = Normalize(v)
	for i := range values {
		values[i] = v
	}
	return newColumn(name, values)
}

func (c *Column) Name() string { return c.name }
func (c *Column) Type() Type   { return c.typ }
func (c *Column) Len() int     { return len(c.values) }

// At returns the i-th value.
func (c *Column) At(i int) Value { return c.values[i] }

// Values returns a copy of the column's values.
func (c *Column) Values() []Value {
	out := make([]Value, len(c.values))
	copy(out, c.values)
	return out
}

// Rename returns a column with the same values under a new name.
func (c *Column) Rename(name string) *Column {
	return &Column{name: name, typ: c.typ, values: c.values}
}

// Take returns a column made of the values at idx, in that order.
// An index of -1 yields null.
func (c *Column) Take(idx []int) *Column {
	values := make([]Value, len(idx))
	for i, j := range idx {
		if j >= 0 {
			values[i] = c.values[j]
		}
	}
	return newColumn(c.name, values)
}

// Table is an ordered collection of uniquely named columns of equal length.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates a table from columns. All columns must have the same length
// and distinct names.
func New(cols ...*Column) (*Table, error) {
	rows := 0
	if len(cols) > 0 {
		rows = cols[0].Len()
	}
	return Sized(rows, cols...)
}

// Sized creates a table with an explicit row count, which allows tables with
// rows but no columns.
func Sized(rows int, cols ...*Column) (*Table, error) {
	t := &Table{
		cols:  make([]*Column, len(cols)),
		index: make(map[string]int, len(cols)),
		rows:  rows,
	}
	for i, c := range cols {
		if c.Len() != rows {
			return nil, ferrors.New("SHAPE-0002", map[string]any{"Name": c.Name(), "Got": c.Len(), "Want": rows})
		}
		if _, dup := t.index[c.Name()]; dup {
			return nil, ferrors.New("NAME-0001", map[string]any{"Name": c.Name()})
		}
		t.index[c.Name()] = i
		t.cols[i] = c
	}
	return t, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with no columns and no rows.
func Empty() *Table {
	return &Table{index: map[string]int{}}
}

// FromRows builds a table from row-major data. Short rows are padded with
// nulls.
func FromRows(names []string, rows [][]Value) (*Table, error) {
	cols := make([]*Column, len(names))
	for j, name := range names {
		values := make([]Value, len(rows))
		for i, row := range rows {
			if j < len(row) {
				values[i] = Normalize(row[j])
			}
		}
		cols[j] = newColumn(name, values)
	}
	return Sized(len(rows), cols...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Columns returns the table's columns in order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name()
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// ColumnAt returns the i-th column.
func (t *Table) ColumnAt(i int) *Column { return t.cols[i] }

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Lookup returns the named column or a NameNotFound error with a hint.
func (t *Table) Lookup(name string) (*Column, error) {
	if c, ok := t.Column(name); ok {
		return c, nil
	}
	return nil, ferrors.NewColumnNotFound(name, t.Names())
}

// Row returns a copy of the i-th row.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.values[i]
	}
	return row
}

// Gather returns a table made of the rows at idx, in that order.
func (t *Table) Gather(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		cols[j] = c.Take(idx)
	}
	out, _ := Sized(len(idx), cols...)
	return out
}

// Project returns a table with the given columns of t, sharing storage.
func (t *Table) Project(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, err := t.Lookup(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return Sized(t.rows, cols...)
}

// Concat stacks tables row-wise. Every table must have the same set of
// column names; the output uses the first table's column order.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return Empty(), nil
	}
	first := tables[0]
	if len(tables) == 1 {
		return first, nil
	}

	total := 0
	for _, t := range tables {
		if !SameNames(first, t) {
			return nil, SchemaError(first, t)
		}
		total += t.Len()
	}

	cols := make([]*Column, first.Width())
	for j, c := range first.cols {
		values := make([]Value, 0, total)
		for _, t := range tables {
			values = append(values, t.cols[t.index[c.name]].values...)
		}
		cols[j] = newColumn(c.name, values)
	}
	return Sized(total, cols...)
}

// SameNames reports whether a and b have the same set of column names.
func SameNames(a, b *Table) bool {
	if a.Width() != b.Width() {
		return false
	}
	for name := range a.index {
		if _, ok := b.index[name]; !ok {
			return false
		}
	}
	return true
}

// SchemaError describes two tables whose column sets differ.
func SchemaError(a, b *Table) error {
	return ferrors.New("SCHEMA-0001", map[string]any{
		"Left":  strings.Join(a.Names(), ", "),
		"Right": strings.Join(b.Names(), ", "),
	})
}

// Equal reports whether two tables have the same columns, in the same order,
// holding equal values.
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.cols) != len(o.cols) {
		return false
	}
	for j, c := range t.cols {
		oc := o.cols[j]
		if c.name != oc.name {
			return false
		}
		for i := range c.values {
			if !Equal(c.values[i], oc.values[i]) {
				return false
			}
		}
	}
	return true
}
