package expr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/parser"
	"github.com/sambeau/flume/pkg/flume/table"
)

type testScope struct {
	tables map[string]*table.Table
	vars   map[string]table.Value
}

func (s testScope) Lookup(name string) (*table.Table, error) {
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	return nil, ferrors.NewTableNotFound(name, nil)
}

func (s testScope) Var(name string) (table.Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func people() *table.Table {
	return table.MustNew(
		table.NewColumn("name", []table.Value{"A", "B", "C"}),
		table.NewColumn("salary", []table.Value{int64(10), int64(30), int64(20)}),
		table.NewColumn("tags", []table.Value{[]table.Value{"x", "y"}, []table.Value{}, nil}),
	)
}

// parseExpr parses the predicate of a FILTER statement.
func parseExpr(t *testing.T, src string) ast.Expr {
	t.Helper()
	script, err := parser.Parse("FILTER "+src, "")
	require.NoError(t, err)
	return script.Statements[0].Terms[0].Expr
}

func evalString(t *testing.T, src string, tbl *table.Table, scope Scope) ([]table.Value, bool, error) {
	t.Helper()
	arg, err := Eval(context.Background(), parseExpr(t, src), tbl, scope)
	if err != nil {
		return nil, false, err
	}
	if arg.IsColumn() {
		return arg.Col().Values(), true, nil
	}
	return []table.Value{arg.Value()}, false, nil
}

func TestScalarExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected table.Value
	}{
		{"1 + 2 * 3", int64(7)},
		{"7 / 2", 3.5},
		{"7 % 3", int64(1)},
		{"7 % 0", nil},
		{"2 ^ 10", int64(1024)},
		{"2 ^ -1", 0.5},
		{"1.5 + 1", 2.5},
		{"'a' + 'b'", "ab"},
		{"NULL + 1", nil},
		{"1 = 1.0", true},
		{"1 <> 2", true},
		{"'a' = 1", false},
		{"NULL = NULL", true},
		{"NULL < 1", false},
		{"true AND NULL", false},
		{"false OR true", true},
		{"NOT false", true},
		{"2 IN [1, 2, 3]", true},
		{"'OB' IN 'bob'", true},
		{"4 NOT IN [1, 2]", true},
		{"'hello' LIKE '^H.l'", true},
		{"NULL LIKE 'x'", false},
		{"NULL IS NULL", true},
		{"NAN IS NULL", true},
		{"1 IS NOT NULL", true},
		{"[1, 2, 3][-1]", int64(3)},
		{"[1, 2][5]", nil},
		{"'abc'[1]", "b"},
		{"upper('bob')", "BOB"},
		{"len(split('a,b,c', ','))", int64(3)},
		{"iota(3)", []table.Value{int64(0), int64(1), int64(2)}},
		{"if(1 < 2, 'yes', 'no')", "yes"},
		{"ifnull(NULL, 0)", int64(0)},
		{"coalesce(NULL, NULL, 3)", int64(3)},
		{"int('42')", int64(42)},
		{"float(2)", 2.0},
		{"round(2.567, 2)", 2.57},
		{"round(2.5)", int64(3)},
		{"abs(-4)", int64(4)},
		{"str(12)", "12"},
		{"year(date('2024-03-05'))", int64(2024)},
		{"month('2024-03-05')", int64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			values, vectorized, err := evalString(t, tt.input, nil, nil)
			require.NoError(t, err)
			assert.False(t, vectorized)
			assert.Equal(t, tt.expected, values[0])
		})
	}
}

func TestColumnExpressions(t *testing.T) {
	tbl := people()
	tests := []struct {
		input    string
		expected []table.Value
	}{
		{"salary * 2", []table.Value{int64(20), int64(60), int64(40)}},
		{"salary > 15", []table.Value{false, true, true}},
		{":0 + '!'", []table.Value{"A!", "B!", "C!"}},
		{"salary > mean(salary)", []table.Value{false, true, false}},
		{"len(tags)", []table.Value{int64(2), int64(0), nil}},
		{"tags[0]", []table.Value{"x", nil, nil}},
		{"[name, salary][0]", []table.Value{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			values, vectorized, err := evalString(t, tt.input, tbl, nil)
			require.NoError(t, err)
			assert.True(t, vectorized)
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestAggregates(t *testing.T) {
	tbl := people()
	tests := []struct {
		input    string
		expected table.Value
	}{
		{"count(name)", int64(3)},
		{"count(*)", int64(3)},
		{"sum(salary)", int64(60)},
		{"min(salary)", int64(10)},
		{"max(name)", "C"},
		{"mean(salary)", 20.0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			values, vectorized, err := evalString(t, tt.input, tbl, nil)
			require.NoError(t, err)
			assert.False(t, vectorized)
			assert.Equal(t, tt.expected, values[0])
		})
	}
}

func TestTemplatesAndVariables(t *testing.T) {
	tbl := table.MustNew(table.NewColumn("_0", []table.Value{"a", "b"}))
	scope := testScope{vars: map[string]table.Value{"1": "first", "HOME": "/home/me"}}

	values, vectorized, err := evalString(t, `"$_0/data.csv"`, tbl, scope)
	require.NoError(t, err)
	assert.True(t, vectorized)
	assert.Equal(t, []table.Value{"a/data.csv", "b/data.csv"}, values)

	values, vectorized, err = evalString(t, `"$HOME/$missing"`, tbl, scope)
	require.NoError(t, err)
	assert.False(t, vectorized)
	assert.Equal(t, "/home/me/$missing", values[0])

	values, _, err = evalString(t, "$1", tbl, scope)
	require.NoError(t, err)
	assert.Equal(t, "first", values[0])

	values, _, err = evalString(t, "$2", tbl, scope)
	require.NoError(t, err)
	assert.Nil(t, values[0])
}

func TestQualifiedColumns(t *testing.T) {
	scope := testScope{tables: map[string]*table.Table{"people": people()}}
	values, vectorized, err := evalString(t, "people.name", nil, scope)
	require.NoError(t, err)
	assert.True(t, vectorized)
	assert.Equal(t, []table.Value{"A", "B", "C"}, values)

	_, _, err = evalString(t, "nobody.name", nil, scope)
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
}

func TestUUIDPerRow(t *testing.T) {
	values, vectorized, err := evalString(t, "uuid()", people(), nil)
	require.NoError(t, err)
	assert.True(t, vectorized)
	require.Len(t, values, 3)
	assert.NotEqual(t, values[0], values[1])

	values, vectorized, err = evalString(t, "uuid()", nil, nil)
	require.NoError(t, err)
	assert.False(t, vectorized)
	assert.Len(t, values[0], 36)
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  ferrors.Kind
	}{
		{"nosuch + 1", ferrors.KindNameNotFound},
		{":9", ferrors.KindNameNotFound},
		{"'a' < 1", ferrors.KindType},
		{"'a' - 'b'", ferrors.KindType},
		{"1 AND true", ferrors.KindType},
		{"-'x'", ferrors.KindType},
		{"1[0]", ferrors.KindType},
		{"upper(1)", ferrors.KindType},
		{"frobnicate(1)", ferrors.KindArity},
		{"upper(1, 2)", ferrors.KindArity},
		{"name LIKE '('", ferrors.KindType},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, _, err := evalString(t, tt.input, people(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, ferrors.KindOf(err), err.Error())
		})
	}
}

func TestShapeMismatch(t *testing.T) {
	other := table.MustNew(table.NewColumn("x", []table.Value{int64(1), int64(2)}))
	scope := testScope{tables: map[string]*table.Table{"other": other}}
	_, _, err := evalString(t, "salary + other.x", people(), scope)
	assert.True(t, ferrors.Is(err, ferrors.KindShape))
}

func TestUnknownFunctionSuggestion(t *testing.T) {
	_, _, err := evalString(t, "uper(name)", people(), nil)
	fe, ok := ferrors.As(err)
	require.True(t, ok)
	require.NotEmpty(t, fe.Hints)
	assert.Contains(t, fe.Hints[0], "upper")
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("March 5, 2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)
}
