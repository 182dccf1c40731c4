package expr

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// ScalarFunc computes one result from one tuple of arguments.
type ScalarFunc func(args []table.Value) (table.Value, error)

// AggregateFunc reduces a whole column to one value.
type AggregateFunc func(values []table.Value) (table.Value, error)

// Function describes a callable function.
type Function struct {
	Name        string
	Arity       string // for HELP, e.g. "1", "1-2", "1+"
	Description string
	MinArgs     int
	MaxArgs     int // -1 for variadic

	Volatile  bool // evaluated once per row even with scalar arguments
	Call      ScalarFunc
	Aggregate AggregateFunc
}

// Registry maps lower-case function names to functions.
type Registry struct {
	funcs map[string]*Function
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]*Function{}}
}

// Register adds or replaces a function.
func (r *Registry) Register(fn *Function) {
	r.funcs[strings.ToLower(fn.Name)] = fn
}

// Lookup returns the named function or an unknown-function error with a
// suggestion.
func (r *Registry) Lookup(name string) (*Function, error) {
	if fn, ok := r.funcs[strings.ToLower(name)]; ok {
		return fn, nil
	}
	return nil, ferrors.NewUnknownFunction(name, r.Names())
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a registry holding every builtin function.
func Builtins() *Registry {
	r := NewRegistry()
	for _, fn := range builtinFunctions {
		r.Register(fn)
	}
	return r
}

func argError(fn string, expected string, got table.Value) error {
	return ferrors.New("TYPE-0003", map[string]any{"Function": fn, "Expected": expected, "Got": table.TypeName(got)})
}

// math1 lifts a float function. Null in gives null out.
func math1(name string, f func(float64) float64) ScalarFunc {
	return func(args []table.Value) (table.Value, error) {
		if table.IsNull(args[0]) {
			return nil, nil
		}
		x, ok := table.AsFloat(args[0])
		if !ok {
			return nil, argError(name, "a number", args[0])
		}
		return f(x), nil
	}
}

// string1 lifts a string function. Null in gives null out.
func string1(name string, f func(string) table.Value) ScalarFunc {
	return func(args []table.Value) (table.Value, error) {
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, argError(name, "a string", args[0])
		}
		return f(s), nil
	}
}

var builtinFunctions = []*Function{
	// Numbers
	{Name: "exp", Arity: "1", Description: "e^x", MinArgs: 1, MaxArgs: 1, Call: math1("exp", math.Exp)},
	{Name: "log", Arity: "1", Description: "Natural logarithm", MinArgs: 1, MaxArgs: 1, Call: math1("log", math.Log)},
	{Name: "log10", Arity: "1", Description: "Base-10 logarithm", MinArgs: 1, MaxArgs: 1, Call: math1("log10", math.Log10)},
	{Name: "sqrt", Arity: "1", Description: "Square root", MinArgs: 1, MaxArgs: 1, Call: math1("sqrt", math.Sqrt)},
	{Name: "abs", Arity: "1", Description: "Absolute value", MinArgs: 1, MaxArgs: 1, Call: builtinAbs},
	{Name: "round", Arity: "1-2", Description: "Round to nearest (decimals?)", MinArgs: 1, MaxArgs: 2, Call: builtinRound},
	{Name: "int", Arity: "1", Description: "Convert to integer (truncates)", MinArgs: 1, MaxArgs: 1, Call: builtinInt},
	{Name: "float", Arity: "1", Description: "Convert to float", MinArgs: 1, MaxArgs: 1, Call: builtinFloat},
	{Name: "iota", Arity: "1", Description: "List of integers 0..n-1", MinArgs: 1, MaxArgs: 1, Call: builtinIota},

	// Strings
	{Name: "upper", Arity: "1", Description: "Upper-case a string", MinArgs: 1, MaxArgs: 1,
		Call: string1("upper", func(s string) table.Value { return strings.ToUpper(s) })},
	{Name: "lower", Arity: "1", Description: "Lower-case a string", MinArgs: 1, MaxArgs: 1,
		Call: string1("lower", func(s string) table.Value { return strings.ToLower(s) })},
	{Name: "trim", Arity: "1", Description: "Strip surrounding whitespace", MinArgs: 1, MaxArgs: 1,
		Call: string1("trim", func(s string) table.Value { return strings.TrimSpace(s) })},
	{Name: "str", Arity: "1", Description: "Convert to string", MinArgs: 1, MaxArgs: 1, Call: builtinStr},
	{Name: "len", Arity: "1", Description: "Length of a string or list", MinArgs: 1, MaxArgs: 1, Call: builtinLen},
	{Name: "split", Arity: "1-2", Description: "Split a string into a list (sep defaults to whitespace)", MinArgs: 1, MaxArgs: 2, Call: builtinSplit},

	// Nulls and conditionals
	{Name: "if", Arity: "3", Description: "then if cond is true, else otherwise", MinArgs: 3, MaxArgs: 3, Call: builtinIf},
	{Name: "ifnull", Arity: "2", Description: "alt when x is null or NaN", MinArgs: 2, MaxArgs: 2, Call: builtinIfNull},
	{Name: "coalesce", Arity: "1+", Description: "First non-null argument", MinArgs: 1, MaxArgs: -1, Call: builtinCoalesce},

	// Identifiers
	{Name: "uuid", Arity: "0", Description: "Random UUID (one per row)", MinArgs: 0, MaxArgs: 0, Volatile: true,
		Call: func([]table.Value) (table.Value, error) { return uuid.NewString(), nil }},

	// Dates
	{Name: "date", Arity: "1", Description: "Parse a date in any common layout", MinArgs: 1, MaxArgs: 1, Call: builtinDate},
	{Name: "year", Arity: "1", Description: "Year of a date", MinArgs: 1, MaxArgs: 1, Call: datePart("year", func(t time.Time) int { return t.Year() })},
	{Name: "month", Arity: "1", Description: "Month of a date (1-12)", MinArgs: 1, MaxArgs: 1, Call: datePart("month", func(t time.Time) int { return int(t.Month()) })},
	{Name: "day", Arity: "1", Description: "Day of the month", MinArgs: 1, MaxArgs: 1, Call: datePart("day", func(t time.Time) int { return t.Day() })},

	// Aggregates
	{Name: "count", Arity: "1", Description: "Number of non-null values", MinArgs: 1, MaxArgs: 1, Aggregate: aggregateCount},
	{Name: "sum", Arity: "1", Description: "Sum of a column", MinArgs: 1, MaxArgs: 1, Aggregate: aggregateSum},
	{Name: "min", Arity: "1", Description: "Smallest value of a column", MinArgs: 1, MaxArgs: 1, Aggregate: aggregateExtreme(-1)},
	{Name: "max", Arity: "1", Description: "Largest value of a column", MinArgs: 1, MaxArgs: 1, Aggregate: aggregateExtreme(1)},
	{Name: "mean", Arity: "1", Description: "Arithmetic mean of a column", MinArgs: 1, MaxArgs: 1, Aggregate: aggregateMean},
}

func builtinAbs(args []table.Value) (table.Value, error) {
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, argError("abs", "a number", args[0])
}

func builtinRound(args []table.Value) (table.Value, error) {
	if table.IsNull(args[0]) {
		return nil, nil
	}
	if i, ok := args[0].(int64); ok && len(args) == 1 {
		return i, nil
	}
	x, ok := table.AsFloat(args[0])
	if !ok {
		return nil, argError("round", "a number", args[0])
	}
	if len(args) == 1 {
		return int64(math.Round(x)), nil
	}
	places, ok := table.AsInt(args[1])
	if !ok {
		return nil, argError("round", "an integer", args[1])
	}
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale, nil
}

func builtinInt(args []table.Value) (table.Value, error) {
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return x, nil
	case float64:
		if math.IsNaN(x) {
			return nil, nil
		}
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		v, _ := table.ParseNumber(strings.TrimSpace(x))
		if n, ok := v.(int64); ok {
			return n, nil
		}
		if f, ok := v.(float64); ok {
			return int64(f), nil
		}
		return nil, ferrors.New("TYPE-0006", map[string]any{"Value": x, "Expected": "integer"})
	}
	return nil, argError("int", "a number or string", args[0])
}

func builtinFloat(args []table.Value) (table.Value, error) {
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		v, _ := table.ParseNumber(strings.TrimSpace(x))
		if f, ok := table.AsFloat(v); ok {
			return f, nil
		}
		return nil, ferrors.New("TYPE-0006", map[string]any{"Value": x, "Expected": "float"})
	}
	return nil, argError("float", "a number or string", args[0])
}

func builtinIota(args []table.Value) (table.Value, error) {
	n, ok := args[0].(int64)
	if !ok || n < 0 {
		return nil, argError("iota", "a non-negative integer", args[0])
	}
	out := make([]table.Value, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out, nil
}

func builtinStr(args []table.Value) (table.Value, error) {
	if args[0] == nil {
		return nil, nil
	}
	return table.Format(args[0]), nil
}

func builtinLen(args []table.Value) (table.Value, error) {
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return int64(len([]rune(x))), nil
	case []table.Value:
		return int64(len(x)), nil
	}
	return nil, argError("len", "a string or list", args[0])
}

func builtinSplit(args []table.Value) (table.Value, error) {
	if args[0] == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, argError("split", "a string", args[0])
	}
	var parts []string
	if len(args) == 1 || args[1] == nil {
		parts = strings.Fields(s)
	} else {
		sep, ok := args[1].(string)
		if !ok {
			return nil, argError("split", "a string separator", args[1])
		}
		parts = strings.Split(s, sep)
	}
	out := make([]table.Value, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func builtinIf(args []table.Value) (table.Value, error) {
	if table.Truthy(args[0]) {
		return args[1], nil
	}
	return args[2], nil
}

func builtinIfNull(args []table.Value) (table.Value, error) {
	if table.IsNull(args[0]) {
		return args[1], nil
	}
	return args[0], nil
}

func builtinCoalesce(args []table.Value) (table.Value, error) {
	for _, v := range args {
		if !table.IsNull(v) {
			return v, nil
		}
	}
	return nil, nil
}

// ParseDate parses a date in any layout dateparse understands, preferring
// month-first for ambiguous numeric dates.
func ParseDate(s string) (time.Time, error) {
	return dateparse.ParseIn(strings.TrimSpace(s), time.UTC, dateparse.PreferMonthFirst(true))
}

func builtinDate(args []table.Value) (table.Value, error) {
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x, nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case string:
		t, err := ParseDate(x)
		if err != nil {
			return nil, ferrors.New("TYPE-0006", map[string]any{"Value": x, "Expected": "date"})
		}
		return t, nil
	}
	return nil, argError("date", "a string or date", args[0])
}

func datePart(name string, part func(time.Time) int) ScalarFunc {
	return func(args []table.Value) (table.Value, error) {
		v := args[0]
		if v == nil {
			return nil, nil
		}
		if s, ok := v.(string); ok {
			t, err := ParseDate(s)
			if err != nil {
				return nil, ferrors.New("TYPE-0006", map[string]any{"Value": s, "Expected": "date"})
			}
			v = t
		}
		t, ok := v.(time.Time)
		if !ok {
			return nil, argError(name, "a date", args[0])
		}
		return int64(part(t)), nil
	}
}

func aggregateCount(values []table.Value) (table.Value, error) {
	n := int64(0)
	for _, v := range values {
		if !table.IsNull(v) {
			n++
		}
	}
	return n, nil
}

func aggregateSum(values []table.Value) (table.Value, error) {
	var isum int64
	var fsum float64
	float := false
	for _, v := range values {
		switch x := v.(type) {
		case nil:
		case int64:
			isum += x
		case float64:
			if math.IsNaN(x) {
				continue
			}
			fsum += x
			float = true
		default:
			return nil, argError("sum", "a numeric column", v)
		}
	}
	if float {
		return fsum + float64(isum), nil
	}
	return isum, nil
}

func aggregateMean(values []table.Value) (table.Value, error) {
	var sum float64
	n := 0
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		x, ok := table.AsFloat(v)
		if !ok {
			return nil, argError("mean", "a numeric column", v)
		}
		sum += x
		n++
	}
	if n == 0 {
		return nil, nil
	}
	return sum / float64(n), nil
}

// aggregateExtreme returns min (sign -1) or max (sign 1), ignoring nulls.
func aggregateExtreme(sign int) AggregateFunc {
	name := "max"
	if sign < 0 {
		name = "min"
	}
	return func(values []table.Value) (table.Value, error) {
		var best table.Value
		for _, v := range values {
			if table.IsNull(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, ok := table.Compare(v, best)
			if !ok {
				return nil, argError(name, "comparable values", v)
			}
			if c*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}
