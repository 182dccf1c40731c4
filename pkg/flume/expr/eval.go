// Package expr evaluates row-wise expressions against a table.
//
// Every expression evaluates to a vector.Arg: a column when it depends on
// the rows of the table, a scalar otherwise. Operators and functions are
// applied through the vectorization engine, so scalars broadcast against
// columns and columns of unequal length fail with a shape error.
package expr

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
	"github.com/sambeau/flume/pkg/flume/vector"
)

// Scope resolves names that are not columns of the current table.
type Scope interface {
	// Lookup returns a bound table for qualified references (t.column).
	Lookup(name string) (*table.Table, error)
	// Var returns a script variable or environment value.
	Var(name string) (table.Value, bool)
}

// Evaluator evaluates expressions against one table.
type Evaluator struct {
	table *table.Table
	scope Scope
	funcs *Registry

	mu      sync.Mutex
	regexps map[string]*regexp.Regexp
}

// New creates an evaluator over t. A nil scope resolves nothing; a nil
// registry uses the builtin functions.
func New(t *table.Table, scope Scope, funcs *Registry) *Evaluator {
	if t == nil {
		t = table.Empty()
	}
	if funcs == nil {
		funcs = Builtins()
	}
	return &Evaluator{table: t, scope: scope, funcs: funcs, regexps: map[string]*regexp.Regexp{}}
}

// Eval is a convenience wrapper evaluating one expression with the builtins.
func Eval(ctx context.Context, e ast.Expr, t *table.Table, scope Scope) (vector.Arg, error) {
	return New(t, scope, nil).Eval(ctx, e)
}

// Table returns the table expressions are evaluated against.
func (ev *Evaluator) Table() *table.Table { return ev.table }

// Eval evaluates e.
func (ev *Evaluator) Eval(ctx context.Context, e ast.Expr) (vector.Arg, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return vector.Scalar(n.Value), nil
	case *ast.ColumnRef:
		c, err := ev.Column(n)
		if err != nil {
			return vector.Arg{}, err
		}
		return vector.Column(c), nil
	case *ast.Variable:
		if ev.scope != nil {
			if v, ok := ev.scope.Var(n.Name); ok {
				return vector.Scalar(v), nil
			}
		}
		return vector.Scalar(nil), nil
	case *ast.Template:
		return ev.evalTemplate(ctx, n)
	case *ast.List:
		return ev.evalList(ctx, n)
	case *ast.Unary:
		return ev.evalUnary(ctx, n)
	case *ast.Binary:
		return ev.evalBinary(ctx, n)
	case *ast.IsNull:
		return ev.evalIsNull(ctx, n)
	case *ast.Index:
		return ev.evalIndex(ctx, n)
	case *ast.Call:
		return ev.evalCall(ctx, n)
	case *ast.Star:
		return vector.Arg{}, ferrors.NewSimple(ferrors.KindType, "`*` is only valid in SELECT, DISTINCT BY and QUERY")
	default:
		return vector.Arg{}, ferrors.NewSimple(ferrors.KindType, "unsupported expression "+e.String())
	}
}

// Column resolves a column reference against the table or, when qualified,
// against a bound table.
func (ev *Evaluator) Column(ref *ast.ColumnRef) (*table.Column, error) {
	t := ev.table
	if ref.Table != "" {
		if ev.scope == nil {
			return nil, ferrors.NewTableNotFound(ref.Table, nil)
		}
		other, err := ev.scope.Lookup(ref.Table)
		if err != nil {
			return nil, err
		}
		t = other
	}
	return Resolve(t, ref)
}

// Resolve finds the column a reference names in t.
func Resolve(t *table.Table, ref *ast.ColumnRef) (*table.Column, error) {
	if ref.Index >= 0 {
		if ref.Index >= t.Width() {
			return nil, ferrors.New("NAME-0003", map[string]any{"Index": ref.Index, "Width": t.Width()})
		}
		return t.ColumnAt(ref.Index), nil
	}
	return t.Lookup(ref.Name)
}

// ResolveName returns the name of the column a reference names in t.
func ResolveName(t *table.Table, ref *ast.ColumnRef) (string, error) {
	c, err := Resolve(t, ref)
	if err != nil {
		return "", err
	}
	return c.Name(), nil
}

// apply broadcasts args and applies fn to every tuple.
func apply(ctx context.Context, fn func(tuple []table.Value) (table.Value, error), args ...vector.Arg) (vector.Arg, error) {
	plan, err := vector.Broadcast(args...)
	if err != nil {
		return vector.Arg{}, err
	}
	results, err := vector.Map(ctx, plan, 1, func(_ context.Context, _ int, tuple []table.Value) (table.Value, error) {
		return fn(tuple)
	})
	if err != nil {
		return vector.Arg{}, err
	}
	return plan.Collect("", results), nil
}

func (ev *Evaluator) evalAll(ctx context.Context, exprs []ast.Expr) ([]vector.Arg, error) {
	args := make([]vector.Arg, len(exprs))
	for i, e := range exprs {
		a, err := ev.Eval(ctx, e)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// evalTemplate resolves placeholders from the row's columns, then from
// the scope's variables. Unknown placeholders are left as written.
func (ev *Evaluator) evalTemplate(ctx context.Context, n *ast.Template) (vector.Arg, error) {
	args := make([]vector.Arg, len(n.Parts))
	for i, part := range n.Parts {
		switch {
		case part.Placeholder == "":
			args[i] = vector.Scalar(part.Text)
		case ev.table.Has(part.Placeholder):
			c, _ := ev.table.Column(part.Placeholder)
			args[i] = vector.Column(c)
		default:
			if ev.scope != nil {
				if v, ok := ev.scope.Var(part.Placeholder); ok {
					args[i] = vector.Scalar(table.Format(v))
					continue
				}
			}
			args[i] = vector.Scalar("$" + part.Placeholder)
		}
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		var sb strings.Builder
		for _, v := range tuple {
			sb.WriteString(table.Format(v))
		}
		return sb.String(), nil
	}, args...)
}

func (ev *Evaluator) evalList(ctx context.Context, n *ast.List) (vector.Arg, error) {
	args, err := ev.evalAll(ctx, n.Items)
	if err != nil {
		return vector.Arg{}, err
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		list := make([]table.Value, len(tuple))
		copy(list, tuple)
		return list, nil
	}, args...)
}

func (ev *Evaluator) evalUnary(ctx context.Context, n *ast.Unary) (vector.Arg, error) {
	operand, err := ev.Eval(ctx, n.Operand)
	if err != nil {
		return vector.Arg{}, err
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		return unaryOp(n.Operator, tuple[0])
	}, operand)
}

func (ev *Evaluator) evalBinary(ctx context.Context, n *ast.Binary) (vector.Arg, error) {
	left, err := ev.Eval(ctx, n.Left)
	if err != nil {
		return vector.Arg{}, err
	}
	right, err := ev.Eval(ctx, n.Right)
	if err != nil {
		return vector.Arg{}, err
	}
	if n.Operator == "LIKE" {
		return apply(ctx, func(tuple []table.Value) (table.Value, error) {
			return ev.like(tuple[0], tuple[1])
		}, left, right)
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		return binaryOp(n.Operator, tuple[0], tuple[1])
	}, left, right)
}

func (ev *Evaluator) evalIsNull(ctx context.Context, n *ast.IsNull) (vector.Arg, error) {
	operand, err := ev.Eval(ctx, n.Operand)
	if err != nil {
		return vector.Arg{}, err
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		return table.IsNull(tuple[0]) != n.Negate, nil
	}, operand)
}

func (ev *Evaluator) evalIndex(ctx context.Context, n *ast.Index) (vector.Arg, error) {
	left, err := ev.Eval(ctx, n.Left)
	if err != nil {
		return vector.Arg{}, err
	}
	idx, err := ev.Eval(ctx, n.Index)
	if err != nil {
		return vector.Arg{}, err
	}
	return apply(ctx, func(tuple []table.Value) (table.Value, error) {
		return indexOp(tuple[0], tuple[1])
	}, left, idx)
}

func (ev *Evaluator) evalCall(ctx context.Context, n *ast.Call) (vector.Arg, error) {
	fn, err := ev.funcs.Lookup(n.Name)
	if err != nil {
		return vector.Arg{}, err
	}
	if len(n.Args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(n.Args) > fn.MaxArgs) {
		want := fn.MinArgs
		if fn.MaxArgs > want {
			want = fn.MaxArgs
		}
		return vector.Arg{}, ferrors.New("ARITY-0003", map[string]any{"Function": n.Name, "Got": len(n.Args), "Want": want})
	}

	if fn.Aggregate != nil {
		return ev.evalAggregate(ctx, fn, n)
	}

	args, err := ev.evalAll(ctx, n.Args)
	if err != nil {
		return vector.Arg{}, err
	}

	if fn.Volatile && ev.table.Width() > 0 {
		// a fresh value per row even without column arguments
		args = append(args, vector.Column(table.Repeat("", nil, ev.table.Len())))
		return apply(ctx, func(tuple []table.Value) (table.Value, error) {
			return fn.Call(tuple[:len(tuple)-1])
		}, args...)
	}
	return apply(ctx, fn.Call, args...)
}

func (ev *Evaluator) evalAggregate(ctx context.Context, fn *Function, n *ast.Call) (vector.Arg, error) {
	if len(n.Args) == 1 {
		if _, star := n.Args[0].(*ast.Star); star {
			values := make([]table.Value, ev.table.Len())
			for i := range values {
				values[i] = int64(1)
			}
			v, err := fn.Aggregate(values)
			return vector.Scalar(v), err
		}
	}
	a, err := ev.Eval(ctx, n.Args[0])
	if err != nil {
		return vector.Arg{}, err
	}
	var values []table.Value
	if a.IsColumn() {
		values = a.Col().Values()
	} else if list, ok := a.Value().([]table.Value); ok {
		values = list
	} else {
		values = []table.Value{a.Value()}
	}
	v, err := fn.Aggregate(values)
	if err != nil {
		return vector.Arg{}, err
	}
	return vector.Scalar(v), nil
}

// like reports whether s contains a match of the case-insensitive regular
// expression pattern.
func (ev *Evaluator) like(s, pattern table.Value) (table.Value, error) {
	if table.IsNull(s) || table.IsNull(pattern) {
		return false, nil
	}
	str, ok1 := s.(string)
	pat, ok2 := pattern.(string)
	if !ok1 || !ok2 {
		return nil, ferrors.New("TYPE-0002", map[string]any{"Operator": "LIKE", "Left": table.TypeName(s), "Right": table.TypeName(pattern)})
	}

	ev.mu.Lock()
	re, ok := ev.regexps[pat]
	if !ok {
		var err error
		re, err = regexp.Compile("(?i)" + pat)
		if err != nil {
			ev.mu.Unlock()
			return nil, ferrors.New("TYPE-0006", map[string]any{"Value": pat, "Expected": "regular expression"})
		}
		ev.regexps[pat] = re
	}
	ev.mu.Unlock()

	return re.MatchString(str), nil
}
