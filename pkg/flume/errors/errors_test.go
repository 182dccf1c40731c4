package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestFlumeError_String(t *testing.T) {
	tests := []struct {
		name     string
		err      *FlumeError
		expected string
	}{
		{
			name:     "message only",
			err:      &FlumeError{Message: "something went wrong"},
			expected: "something went wrong",
		},
		{
			name: "with line and column",
			err: &FlumeError{
				Message: "unexpected token",
				Line:    5,
				Column:  10,
			},
			expected: "line 5, column 10: unexpected token",
		},
		{
			name: "with file and command",
			err: &FlumeError{
				Message: "column `age` not found",
				Command: "SORT",
				File:    "people.flume",
				Line:    3,
				Column:  1,
			},
			expected: "people.flume: line 3, column 1: SORT: column `age` not found",
		},
		{
			name: "with hints",
			err: &FlumeError{
				Message: "table `peple` not found",
				Hints:   []string{"Did you mean `people`?"},
			},
			expected: "table `peple` not found\n  Did you mean `people`?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.String()
			if got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFlumeError_PrettyString(t *testing.T) {
	tests := []struct {
		name     string
		err      *FlumeError
		contains []string
	}{
		{
			name: "parser error",
			err: &FlumeError{
				Kind:    KindParse,
				Message: "unexpected token ')'",
				Line:    2,
				Column:  7,
			},
			contains: []string{"Parser error", "line 2, column 7", "unexpected token"},
		},
		{
			name: "runtime error with file and hints",
			err: &FlumeError{
				Kind:    KindShape,
				Message: "vectorized arguments have different lengths: [2 3]",
				File:    "script.flume",
				Line:    4,
				Column:  1,
				Hints:   []string{"first hint", "second hint"},
			},
			contains: []string{"Runtime error", "in: script.flume", "at: line 4", "Use: first hint", " or: second hint"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.PrettyString()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("PrettyString() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		data    map[string]any
		kind    Kind
		message string
		hints   []string
	}{
		{
			name:    "shape mismatch",
			code:    "SHAPE-0001",
			data:    map[string]any{"Lengths": "[2 3]"},
			kind:    KindShape,
			message: "vectorized arguments have different lengths: [2 3]",
			hints:   []string{"only scalars broadcast; columns must all have the same number of rows"},
		},
		{
			name:    "arity with syntax hint",
			code:    "ARITY-0002",
			data:    map[string]any{"Command": "TAKE", "Got": 0, "Want": 1, "Syntax": "TAKE [LAST] n [FROM table]"},
			kind:    KindArity,
			message: "wrong number of arguments to TAKE. got=0, want=1",
			hints:   []string{"TAKE [LAST] n [FROM table]"},
		},
		{
			name:    "unknown code",
			code:    "NOPE-9999",
			kind:    KindType,
			message: "unknown error code: NOPE-9999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.data)
			if err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.kind)
			}
			if err.Message != tt.message {
				t.Errorf("Message = %q, want %q", err.Message, tt.message)
			}
			if len(err.Hints) != len(tt.hints) {
				t.Fatalf("Hints = %v, want %v", err.Hints, tt.hints)
			}
			for i := range tt.hints {
				if err.Hints[i] != tt.hints[i] {
					t.Errorf("Hints[%d] = %q, want %q", i, err.Hints[i], tt.hints[i])
				}
			}
		})
	}
}

func TestCatalogCodesMatchKinds(t *testing.T) {
	prefixes := map[string]Kind{
		"NOTFOUND": KindNotFound,
		"EMPTY":    KindEmpty,
		"TYPE":     KindType,
		"SHAPE":    KindShape,
		"SCHEMA":   KindSchema,
		"ARITY":    KindArity,
		"PARSE":    KindParse,
		"IO":       KindIO,
		"FORMAT":   KindFormat,
		"DB":       KindDatabase,
		"SEC":      KindSecurity,
		"CANCEL":   KindCancelled,
	}
	for code, def := range ErrorCatalog {
		prefix := code[:strings.Index(code, "-")]
		if prefix == "NAME" {
			if def.Kind != KindCollision && def.Kind != KindNameNotFound {
				t.Errorf("%s has kind %q", code, def.Kind)
			}
			continue
		}
		want, ok := prefixes[prefix]
		if !ok {
			t.Errorf("%s has unknown prefix", code)
			continue
		}
		if def.Kind != want {
			t.Errorf("%s has kind %q, want %q", code, def.Kind, want)
		}
	}
}

func TestWrapAndKindOf(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap("DB-0001", cause, map[string]any{"Source": "sales"})

	if err.Message != "cannot connect to sales: connection refused" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() did not return the cause")
	}

	wrapped := fmt.Errorf("running script: %w", err)
	if got := KindOf(wrapped); got != KindDatabase {
		t.Errorf("KindOf() = %q, want %q", got, KindDatabase)
	}
	if !Is(wrapped, KindDatabase) {
		t.Error("Is() = false, want true")
	}
	if Is(fmt.Errorf("plain"), KindDatabase) {
		t.Error("Is() matched a plain error")
	}
	if Is(nil, KindDatabase) {
		t.Error("Is() matched nil")
	}
}

func TestWithStatementKeepsPosition(t *testing.T) {
	err := NewWithPosition("PARSE-0002", 2, 5, map[string]any{"Token": ")"})
	got := err.WithStatement("SORT", 9, 1)

	if got.Line != 2 || got.Column != 5 {
		t.Errorf("position = %d:%d, want 2:5", got.Line, got.Column)
	}
	if got.Command != "SORT" {
		t.Errorf("Command = %q, want SORT", got.Command)
	}
	if err.Command != "" {
		t.Error("WithStatement modified the receiver")
	}
}

func TestToJSON(t *testing.T) {
	err := New("NAME-0001", map[string]any{"Name": "id"}).WithStatement("RENAME", 1, 1)
	b, jerr := err.ToJSON()
	if jerr != nil {
		t.Fatalf("ToJSON() error: %v", jerr)
	}
	var decoded map[string]any
	if jerr := json.Unmarshal(b, &decoded); jerr != nil {
		t.Fatalf("invalid JSON: %v", jerr)
	}
	if decoded["kind"] != string(KindCollision) {
		t.Errorf("kind = %v", decoded["kind"])
	}
	if decoded["command"] != "RENAME" {
		t.Errorf("command = %v", decoded["command"])
	}
}

func TestFindClosestMatch(t *testing.T) {
	candidates := []string{"SELECT", "SORT", "FILTER", "DISTINCT", "TRANSPOSE"}
	tests := []struct {
		input string
		want  string
	}{
		{"SORTT", "SORT"},
		{"filtr", "FILTER"},
		{"DISTNCT", "DISTINCT"},
		{"SORT", ""},
		{"XYZZY", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FindClosestMatch(tt.input, candidates); got != tt.want {
				t.Errorf("FindClosestMatch(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFindTopMatches(t *testing.T) {
	got := FindTopMatches("nme", []string{"name", "names", "age", "id"}, 2)
	if len(got) == 0 || got[0] != "name" {
		t.Errorf("FindTopMatches() = %v, want name first", got)
	}
}

func TestSuggestionHelpers(t *testing.T) {
	err := NewTableNotFound("peple", []string{"people", "orders"})
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %q", err.Kind)
	}
	if len(err.Hints) != 1 || err.Hints[0] != "Did you mean `people`?" {
		t.Errorf("Hints = %v", err.Hints)
	}

	err = NewColumnNotFound("zzz", []string{"name"})
	if len(err.Hints) != 0 {
		t.Errorf("Hints = %v, want none", err.Hints)
	}
}
