package parser

import (
	"strings"
	"testing"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
)

func parseOne(t *testing.T, input string) *ast.Statement {
	t.Helper()
	script, err := Parse(input, "")
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", input, err)
	}
	if len(script.Statements) != 1 {
		t.Fatalf("Parse(%q) returned %d statements, want 1", input, len(script.Statements))
	}
	return script.Statements[0]
}

func TestParseScriptSplitsStatements(t *testing.T) {
	input := `
# load and rank
READ "people.csv" INTO people; SORT people BY salary DESC

TAKE 2
`
	script, err := Parse(input, "rank.flume")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	var commands []string
	for _, s := range script.Statements {
		commands = append(commands, s.Command)
	}
	if got := strings.Join(commands, ","); got != "READ,SORT,TAKE" {
		t.Errorf("commands = %s", got)
	}
	if script.Statements[0].Into != "people" {
		t.Errorf("Into = %q, want people", script.Statements[0].Into)
	}
	if script.Statements[2].Pos.Line != 5 {
		t.Errorf("TAKE line = %d, want 5", script.Statements[2].Pos.Line)
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"FILTER a + b * c", "(a + (b * c))"},
		{"FILTER (a + b) * c", "((a + b) * c)"},
		{"FILTER a > 1 AND b < 2 OR c", "(((a > 1) AND (b < 2)) OR c)"},
		{"FILTER NOT a = 1", "(NOT (a = 1))"},
		{"FILTER a NOT IN [1, 2]", "(NOT (a IN [1, 2]))"},
		{"FILTER name like 'a.*'", `(name LIKE "a.*")`},
		{"FILTER x IS NOT NULL", "(x IS NOT NULL)"},
		{"FILTER 2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"FILTER -x + 1", "((-x) + 1)"},
		{"FILTER -3", "-3"},
		{"FILTER upper(name) = 'BOB'", `(upper(name) = "BOB")`},
		{"FILTER people.age >= :1", "(people.age >= :1)"},
		{"FILTER tags[0] = $1", "(tags[0] = $1)"},
		{"FILTER `first name` <> NULL", "(`first name` <> NULL)"},
		{"FILTER flag = true", "(flag = true)"},
		{"FILTER r * PI", "(r * 3.141592653589793)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			stmt := parseOne(t, tt.input)
			if got := stmt.Terms[0].Expr.String(); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseSelect(t *testing.T) {
	stmt := parseOne(t, "SELECT *, salary * 2 AS double, name FROM people INTO out")
	if len(stmt.Terms) != 3 {
		t.Fatalf("terms = %d, want 3", len(stmt.Terms))
	}
	if _, ok := stmt.Terms[0].Expr.(*ast.Star); !ok {
		t.Errorf("first term = %T, want *ast.Star", stmt.Terms[0].Expr)
	}
	if stmt.Terms[1].Alias != "double" {
		t.Errorf("alias = %q, want double", stmt.Terms[1].Alias)
	}
	if stmt.Sources[0].Name != "people" || stmt.Sources[0].Implicit {
		t.Errorf("source = %+v", stmt.Sources[0])
	}
	if stmt.Into != "out" {
		t.Errorf("Into = %q", stmt.Into)
	}
}

func TestParseTemplates(t *testing.T) {
	stmt := parseOne(t, `READ "$_0/data.csv" FROM dirs AS CSV NO HEADER`)
	tmpl, ok := stmt.Args[0].(*ast.Template)
	if !ok {
		t.Fatalf("arg = %T, want *ast.Template", stmt.Args[0])
	}
	if len(tmpl.Parts) != 2 || tmpl.Parts[0].Placeholder != "_0" || tmpl.Parts[1].Text != "/data.csv" {
		t.Errorf("parts = %+v", tmpl.Parts)
	}
	if stmt.Sources[0].Name != "dirs" {
		t.Errorf("source = %q", stmt.Sources[0].Name)
	}
	if stmt.Format == nil || stmt.Format.Kind != "CSV" || !stmt.Format.NoHeader {
		t.Errorf("format = %+v", stmt.Format)
	}

	parts, templated := ParseTemplate("costs $$5 for ${user}")
	if !templated || parts[0].Text != "costs $5 for " || parts[1].Placeholder != "user" {
		t.Errorf("parts = %+v", parts)
	}
	parts, templated = ParseTemplate("price: $$3")
	if templated || parts[0].Text != "price: $3" {
		t.Errorf("parts = %+v, templated = %v", parts, templated)
	}
}

func TestParseSortAndTake(t *testing.T) {
	stmt := parseOne(t, "SORT people BY salary DESC, name ASC, :2")
	if stmt.Sources[0].Name != "people" {
		t.Errorf("source = %q", stmt.Sources[0].Name)
	}
	if len(stmt.Order) != 3 || !stmt.Order[0].Desc || stmt.Order[1].Desc || stmt.Order[2].Column.Index != 2 {
		t.Errorf("order = %+v", stmt.Order)
	}

	stmt = parseOne(t, "SORT")
	if !stmt.Sources[0].Implicit || len(stmt.Order) != 0 {
		t.Errorf("bare SORT = %+v", stmt)
	}

	stmt = parseOne(t, "TAKE LAST n FROM people")
	if !stmt.Last || stmt.Args[0].String() != "n" || stmt.Sources[0].Name != "people" {
		t.Errorf("TAKE = %+v", stmt)
	}
}

func TestParseJoins(t *testing.T) {
	stmt := parseOne(t, "LEFT JOIN people WITH orders ON id INTO joined")
	if stmt.Command != "JOIN" || stmt.How != "LEFT" {
		t.Errorf("command = %s %s", stmt.How, stmt.Command)
	}
	if len(stmt.Sources) != 2 || stmt.Sources[0].Name != "people" || stmt.Sources[1].Name != "orders" {
		t.Errorf("sources = %+v", stmt.Sources)
	}
	if len(stmt.Columns) != 1 || stmt.Columns[0].Name != "id" {
		t.Errorf("columns = %+v", stmt.Columns)
	}

	stmt = parseOne(t, "JOIN WITH orders")
	if stmt.How != "INNER" || !stmt.Sources[0].Implicit {
		t.Errorf("JOIN = %+v", stmt)
	}

	stmt = parseOne(t, "CROSS JOIN sizes WITH colors")
	if stmt.Command != "CROSS" || len(stmt.Sources) != 2 {
		t.Errorf("CROSS = %+v", stmt)
	}

	stmt = parseOne(t, "UNION a WITH b, c")
	if len(stmt.Sources) != 3 {
		t.Errorf("UNION sources = %+v", stmt.Sources)
	}
}

func TestParseInlineTables(t *testing.T) {
	input := "UNION WITH (AS CSV << END\nname,salary\nD,5\nEND\n)"
	stmt := parseOne(t, input)
	inline := stmt.Sources[1].Inline
	if inline == nil || inline.Format.Kind != "CSV" || inline.Text != "name,salary\nD,5\n" {
		t.Fatalf("inline = %+v", inline)
	}

	stmt = parseOne(t, `CREATE ids AS CSV "id\n1\n2\n3"`)
	if stmt.Into != "ids" || stmt.Sources[0].Inline.Text != "id\n1\n2\n3" {
		t.Errorf("CREATE = %+v", stmt)
	}

	stmt = parseOne(t, `CREATE t AS CSV TAB NO HEADER "a"`)
	f := stmt.Sources[0].Inline.Format
	if f.Delimiter != "\t" || !f.NoHeader {
		t.Errorf("format = %+v", f)
	}
}

func TestParseOtherStatements(t *testing.T) {
	tests := []struct {
		input string
		check func(*ast.Statement) bool
	}{
		{"DISTINCT people BY name, age KEEP LAST", func(s *ast.Statement) bool {
			return s.Sources[0].Name == "people" && len(s.Columns) == 2 && s.Last
		}},
		{"DISTINCT BY *", func(s *ast.Statement) bool { return s.Columns == nil && !s.Last }},
		{"DROP a, b FROM t", func(s *ast.Statement) bool { return len(s.Columns) == 2 && s.Sources[0].Name == "t" }},
		{"RENAME a TO b", func(s *ast.Statement) bool { return s.Columns[0].Name == "a" && s.Columns[1].Name == "b" }},
		{"TRANSPOSE t BY key", func(s *ast.Statement) bool { return s.Columns[0].Name == "key" }},
		{"EXPLODE tags", func(s *ast.Statement) bool { return s.Columns[0].Name == "tags" && s.Sources[0].Implicit }},
		{"PUT people INTO copy", func(s *ast.Statement) bool { return s.Sources[0].Name == "people" && s.Into == "copy" }},
		{`WRITE people TO "out.json" AS JSON LINES`, func(s *ast.Statement) bool {
			return s.Format.Kind == "JSONL" && s.Args[0].String() == `"out.json"`
		}},
		{`CONNECT db TO "sqlite::memory:" AS sql`, func(s *ast.Statement) bool { return s.Name == "db" && s.Kind == "SQL" }},
		{`QUERY "amount > 10" FROM db.orders`, func(s *ast.Statement) bool {
			return s.Target.Source == "db" && s.Target.Table == "orders"
		}},
		{"QUERY * FROM logs", func(s *ast.Statement) bool {
			_, star := s.Args[0].(*ast.Star)
			return star && s.Target.Table == ""
		}},
		{`RUN "child.flume", 1, name FROM t`, func(s *ast.Statement) bool { return len(s.Args) == 3 }},
		{`SH "ls -1" AS CSV NO HEADER`, func(s *ast.Statement) bool { return s.Format.NoHeader }},
		{"HELP sort", func(s *ast.Statement) bool { return s.Topic == "SORT" }},
		{"QUIT", func(s *ast.Statement) bool { return s.Command == "QUIT" }},
		{"FROBNICATE 1, 2", func(s *ast.Statement) bool { return s.Command == "FROBNICATE" && len(s.Args) == 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if stmt := parseOne(t, tt.input); !tt.check(stmt) {
				t.Errorf("unexpected statement: %+v", stmt)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		code  string
		line  int
	}{
		{"SORT people BY", "PARSE-0001", 1},
		{"TAKE 2 3", "PARSE-0001", 1},
		{"REVERSE\nFILTER )", "PARSE-0002", 2},
		{`PRINT "open`, "PARSE-0003", 1},
		{"CREATE t AS CSV << END\na\n", "PARSE-0004", 1},
		{"READ 'x' AS XLS", "PARSE-0006", 1},
		{"SELECT a FROM", "PARSE-0001", 1},
		{"CREATE t AS CSV 'a' INTO u", "PARSE-0002", 1},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input, "bad.flume")
			if err == nil {
				t.Fatal("expected an error")
			}
			fe, ok := ferrors.As(err)
			if !ok {
				t.Fatalf("error %T is not a FlumeError", err)
			}
			if fe.Code != tt.code {
				t.Errorf("code = %s (%s), want %s", fe.Code, fe.Message, tt.code)
			}
			if fe.Kind != ferrors.KindParse {
				t.Errorf("kind = %s", fe.Kind)
			}
			if fe.Line != tt.line {
				t.Errorf("line = %d, want %d", fe.Line, tt.line)
			}
			if fe.File != "bad.flume" {
				t.Errorf("file = %q", fe.File)
			}
		})
	}
}
