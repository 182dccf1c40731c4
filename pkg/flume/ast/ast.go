// Package ast defines the parsed form of Flume scripts: statements, the
// expressions they carry, and references to tables and formats.
package ast

import (
	"strconv"
	"strings"

	"github.com/sambeau/flume/pkg/flume/table"
)

// Pos is a 1-based source position.
type Pos struct {
	Line   int
	Column int
}

// Expr is any expression node.
type Expr interface {
	exprNode()
	Position() Pos
	String() string
}

// Literal is a constant scalar or list.
type Literal struct {
	Pos   Pos
	Value table.Value
}

func (l *Literal) exprNode()     {}
func (l *Literal) Position() Pos { return l.Pos }
func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(v)
	default:
		return table.Format(v)
	}
}

// ColumnRef names a column by name, by position (:N) or qualified by a
// table binding (table.column).
type ColumnRef struct {
	Pos   Pos
	Table string
	Name  string
	Index int // -1 unless positional
}

func (c *ColumnRef) exprNode()     {}
func (c *ColumnRef) Position() Pos { return c.Pos }
func (c *ColumnRef) String() string {
	if c.Index >= 0 {
		return ":" + strconv.Itoa(c.Index)
	}
	name := c.Name
	if !isPlainIdent(name) {
		name = "`" + name + "`"
	}
	if c.Table != "" {
		return c.Table + "." + name
	}
	return name
}

// Variable is a script argument or environment variable ($name).
type Variable struct {
	Pos  Pos
	Name string
}

func (v *Variable) exprNode()      {}
func (v *Variable) Position() Pos  { return v.Pos }
func (v *Variable) String() string { return "$" + v.Name }

// TemplatePart is either literal text or a $placeholder.
type TemplatePart struct {
	Text        string
	Placeholder string
}

// Template is a string literal containing $placeholders, resolved from the
// current row, then script variables, then the environment.
type Template struct {
	Pos   Pos
	Raw   string
	Parts []TemplatePart
}

func (t *Template) exprNode()      {}
func (t *Template) Position() Pos  { return t.Pos }
func (t *Template) String() string { return strconv.Quote(t.Raw) }

// List is a list literal.
type List struct {
	Pos   Pos
	Items []Expr
}

func (l *List) exprNode()     {}
func (l *List) Position() Pos { return l.Pos }
func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Unary is a prefix operator: - or NOT.
type Unary struct {
	Pos      Pos
	Operator string
	Operand  Expr
}

func (u *Unary) exprNode()     {}
func (u *Unary) Position() Pos { return u.Pos }
func (u *Unary) String() string {
	if u.Operator == "NOT" {
		return "(NOT " + u.Operand.String() + ")"
	}
	return "(" + u.Operator + u.Operand.String() + ")"
}

// Binary is an infix operator. Operators are normalized to upper case.
type Binary struct {
	Pos      Pos
	Operator string
	Left     Expr
	Right    Expr
}

func (b *Binary) exprNode()     {}
func (b *Binary) Position() Pos { return b.Pos }
func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Operator + " " + b.Right.String() + ")"
}

// IsNull tests for null: x IS NULL, x IS NOT NULL.
type IsNull struct {
	Pos     Pos
	Operand Expr
	Negate  bool
}

func (n *IsNull) exprNode()     {}
func (n *IsNull) Position() Pos { return n.Pos }
func (n *IsNull) String() string {
	if n.Negate {
		return "(" + n.Operand.String() + " IS NOT NULL)"
	}
	return "(" + n.Operand.String() + " IS NULL)"
}

// Call is a function call. Names are normalized to lower case.
type Call struct {
	Pos  Pos
	Name string
	Args []Expr
}

func (c *Call) exprNode()     {}
func (c *Call) Position() Pos { return c.Pos }
func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Index is x[i].
type Index struct {
	Pos   Pos
	Left  Expr
	Index Expr
}

func (x *Index) exprNode()      {}
func (x *Index) Position() Pos  { return x.Pos }
func (x *Index) String() string { return x.Left.String() + "[" + x.Index.String() + "]" }

// Star is `*`: every column in SELECT, every row in QUERY.
type Star struct {
	Pos Pos
}

func (s *Star) exprNode()      {}
func (s *Star) Position() Pos  { return s.Pos }
func (s *Star) String() string { return "*" }

// Term is an expression with an optional output name.
type Term struct {
	Expr  Expr
	Alias string
}

func (t Term) String() string {
	if t.Alias != "" {
		return t.Expr.String() + " AS " + t.Alias
	}
	return t.Expr.String()
}

// SortKey is one key of a SORT statement.
type SortKey struct {
	Column *ColumnRef
	Desc   bool
}

// Format describes how tabular data is encoded.
type Format struct {
	Kind          string // CSV, TSV, JSON, JSONL, YAML, MARKDOWN, HTML, TEXT
	NoHeader      bool
	Delimiter     string
	LineDelimiter string
	Quote         string
}

func (f Format) String() string {
	var sb strings.Builder
	sb.WriteString(f.Kind)
	if f.NoHeader {
		sb.WriteString(" NO HEADER")
	}
	if f.Delimiter != "" {
		sb.WriteString(" FIELD DELIMITER " + strconv.Quote(f.Delimiter))
	}
	if f.LineDelimiter != "" {
		sb.WriteString(" LINE DELIMITER " + strconv.Quote(f.LineDelimiter))
	}
	if f.Quote != "" {
		sb.WriteString(" QUOTE " + strconv.Quote(f.Quote))
	}
	return sb.String()
}

// Inline is literal table data embedded in a script.
type Inline struct {
	Format Format
	Text   string
}

// ImplicitName is the reserved name of the implicit result binding.
const ImplicitName = "it"

// TableRef names an input table: a binding, the implicit result, or inline
// data.
type TableRef struct {
	Pos      Pos
	Name     string
	Inline   *Inline
	Implicit bool // no table was named; Name is "it"
}

func (r TableRef) String() string {
	if r.Inline != nil {
		return "(AS " + r.Inline.Format.String() + " " + strconv.Quote(r.Inline.Text) + ")"
	}
	return r.Name
}

// Implicit returns a reference to the implicit result.
func Implicit(pos Pos) TableRef {
	return TableRef{Pos: pos, Name: ImplicitName, Implicit: true}
}

// Target names a data source and an optional table within it.
type Target struct {
	Source string
	Table  string
}

// Statement is one parsed command. Fields not used by a command are zero.
type Statement struct {
	Pos     Pos
	Command string // upper-case command name

	// Args are the vectorizable scalar arguments, in positional order.
	Args []Expr
	// Terms are row-wise expressions for SELECT, FILTER and PRINT.
	Terms []Term
	// Columns are column operands (DROP, EXPLODE, RENAME, DISTINCT BY,
	// JOIN ON, TRANSPOSE BY).
	Columns []*ColumnRef
	Order   []SortKey
	// Sources are the input tables. Commands with a default input receive
	// an Implicit reference.
	Sources []TableRef

	Last   bool    // TAKE LAST, DISTINCT KEEP LAST
	How    string  // JOIN kind: INNER, LEFT, RIGHT, OUTER
	Name   string  // CONNECT alias
	Kind   string  // CONNECT source kind
	Target *Target // QUERY ... FROM source[.table]
	Topic  string  // HELP topic
	Format *Format // AS clause
	Into   string  // destination binding, "" for it only
}

// Source returns the i-th source or an implicit reference when absent.
func (s *Statement) Source(i int) TableRef {
	if i < len(s.Sources) {
		return s.Sources[i]
	}
	return Implicit(s.Pos)
}

func (s *Statement) String() string {
	var sb strings.Builder
	sb.WriteString(s.Command)
	for _, t := range s.Terms {
		sb.WriteString(" ")
		sb.WriteString(t.String())
	}
	for _, a := range s.Args {
		sb.WriteString(" ")
		sb.WriteString(a.String())
	}
	for _, src := range s.Sources {
		if !src.Implicit {
			sb.WriteString(" ")
			sb.WriteString(src.String())
		}
	}
	if s.Into != "" {
		sb.WriteString(" INTO ")
		sb.WriteString(s.Into)
	}
	return sb.String()
}

// Script is a parsed file or inline program.
type Script struct {
	File       string
	Statements []*Statement
}

func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
