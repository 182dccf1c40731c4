package lexer

import (
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `SORT people BY salary DESC INTO ranked
FILTER age >= 21 AND name <> "bob" # adults
SELECT :0, ` + "`full name`" + `, 1.5e3, $1, 'raw $x'`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "SORT"},
		{IDENT, "people"},
		{IDENT, "BY"},
		{IDENT, "salary"},
		{IDENT, "DESC"},
		{IDENT, "INTO"},
		{IDENT, "ranked"},
		{NEWLINE, "\n"},
		{IDENT, "FILTER"},
		{IDENT, "age"},
		{GT_EQ, ">="},
		{INT, "21"},
		{IDENT, "AND"},
		{IDENT, "name"},
		{NOT_EQ, "<>"},
		{STRING, "bob"},
		{NEWLINE, "\n"},
		{IDENT, "SELECT"},
		{COLINDEX, "0"},
		{COMMA, ","},
		{QIDENT, "full name"},
		{COMMA, ","},
		{FLOAT, "1.5e3"},
		{COMMA, ","},
		{VAR, "1"},
		{COMMA, ","},
		{RAWSTRING, "raw $x"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestPositions(t *testing.T) {
	l := New("TAKE 2\n  REVERSE")
	want := []struct {
		line, column int
	}{
		{1, 1}, {1, 6}, {1, 7}, {2, 3},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Line != w.line || tok.Column != w.column {
			t.Errorf("token %d (%q) at %d:%d, want %d:%d", i, tok.Literal, tok.Line, tok.Column, w.line, w.column)
		}
	}
}

func TestNewlinesInsideBrackets(t *testing.T) {
	tokens := Tokenize("SELECT [1,\n 2]\nREVERSE")
	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	want := []TokenType{IDENT, LBRACKET, INT, COMMA, INT, RBRACKET, NEWLINE, IDENT, EOF}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestLineContinuation(t *testing.T) {
	tokens := Tokenize("JOIN a \\\n  WITH b")
	for _, tok := range tokens {
		if tok.Type == NEWLINE {
			t.Fatal("escaped newline produced a NEWLINE token")
		}
	}
}

func TestHeredoc(t *testing.T) {
	input := "CREATE people AS CSV << END\nname,salary\nA,10\nEND\nREVERSE"
	l := New(input)
	for _, want := range []string{"CREATE", "people", "AS", "CSV"} {
		if tok := l.NextToken(); tok.Literal != want {
			t.Fatalf("got %q, want %q", tok.Literal, want)
		}
	}
	tok := l.NextToken()
	if tok.Type != HEREDOC {
		t.Fatalf("type = %s, want HEREDOC (%s)", tok.Type, l.Error)
	}
	if tok.Literal != "name,salary\nA,10\n" {
		t.Errorf("body = %q", tok.Literal)
	}
	if tok := l.NextToken(); tok.Type != NEWLINE {
		t.Errorf("after heredoc got %s", tok.Type)
	}
	if tok := l.NextToken(); tok.Literal != "REVERSE" {
		t.Errorf("got %q, want REVERSE", tok.Literal)
	}
}

func TestUnterminated(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"string", `PRINT "oops`},
		{"heredoc", "CREATE x AS CSV << END\na,b\n"},
		{"quoted ident", "SELECT `abc"},
		{"illegal char", "SELECT @"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := false
			for _, tok := range Tokenize(tt.input) {
				if tok.Type == ILLEGAL {
					found = true
				}
			}
			if !found {
				t.Errorf("no ILLEGAL token for %q", tt.input)
			}
		})
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{`"a\tb"`, STRING, "a\tb"},
		{`"say \"hi\""`, STRING, `say "hi"`},
		{`'it\'s'`, RAWSTRING, "it's"},
		{`'c:\temp'`, RAWSTRING, `c:\temp`},
	}
	for _, tt := range tests {
		tok := New(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.want {
			t.Errorf("%s: got %s %q, want %s %q", tt.input, tok.Type, tok.Literal, tt.typ, tt.want)
		}
	}
}

func TestTokenIs(t *testing.T) {
	tok := Token{Type: IDENT, Literal: "from"}
	if !tok.Is("FROM") {
		t.Error("keywords should match case-insensitively")
	}
	if (Token{Type: QIDENT, Literal: "FROM"}).Is("FROM") {
		t.Error("quoted identifiers are never keywords")
	}
}
