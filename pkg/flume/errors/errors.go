// Package errors provides structured error types for the Flume language.
//
// FlumeError is the single error type produced by the lexer, parser and
// engine. Every error has a Kind that callers can switch on, a catalog code,
// a rendered message and optional hints, plus the command and position of the
// statement that failed.
package errors

import (
	"bytes"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Kind categorizes errors so callers can react to them programmatically.
type Kind string

const (
	KindNotFound     Kind = "not-found"      // Unbound table name
	KindEmpty        Kind = "empty"          // Implicit `it` used before any table exists
	KindType         Kind = "type"           // Argument or operand of the wrong type
	KindShape        Kind = "shape"          // Vectorized arguments of unequal length
	KindSchema       Kind = "schema"         // Incompatible column sets
	KindCollision    Kind = "name-collision" // Column name already present
	KindNameNotFound Kind = "name-not-found" // Column name absent
	KindArity        Kind = "arity"          // Unknown command or wrong argument count
	KindParse        Kind = "parse"          // Syntax errors
	KindIO           Kind = "io"             // Files, HTTP, SFTP, processes
	KindFormat       Kind = "format"         // Decoding or encoding data
	KindDatabase     Kind = "database"       // Data source failures
	KindSecurity     Kind = "security"       // Operation not permitted
	KindCancelled    Kind = "cancelled"      // Context cancelled
)

// FlumeError represents any error from parsing or execution.
type FlumeError struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`              // Catalog code (e.g., "SHAPE-0001")
	Message string         `json:"message"`           // Human-readable message
	Hints   []string       `json:"hints,omitempty"`   // Suggestions for fixing
	Command string         `json:"command,omitempty"` // Statement command (e.g., "SORT")
	Line    int            `json:"line"`              // 1-based line (0 if unknown)
	Column  int            `json:"column"`            // 1-based column (0 if unknown)
	File    string         `json:"file,omitempty"`
	Data    map[string]any `json:"data,omitempty"` // Template variables

	cause error
}

// Error implements the error interface.
func (e *FlumeError) Error() string {
	return e.String()
}

// Unwrap returns the library error this error was built from, if any.
func (e *FlumeError) Unwrap() error {
	return e.cause
}

// String returns a formatted string representation of the error.
func (e *FlumeError) String() string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}
	if e.Command != "" {
		sb.WriteString(e.Command)
		sb.WriteString(": ")
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// PrettyString returns a multi-line formatted string for display.
func (e *FlumeError) PrettyString() string {
	var sb strings.Builder

	switch e.Kind {
	case KindParse:
		sb.WriteString("Parser error")
	default:
		sb.WriteString("Runtime error")
	}

	if e.File != "" {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.File)
		if e.Line > 0 {
			sb.WriteString(fmt.Sprintf("\n  at: line %d, column %d", e.Line, e.Column))
		}
		sb.WriteString("\n  ")
	} else if e.Line > 0 {
		sb.WriteString(fmt.Sprintf(": line %d, column %d\n  ", e.Line, e.Column))
	} else {
		sb.WriteString(":\n  ")
	}

	if e.Command != "" {
		sb.WriteString(e.Command)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)

	for i, hint := range e.Hints {
		sb.WriteString("\n  ")
		if i == 0 {
			sb.WriteString("Use: ")
		} else {
			sb.WriteString(" or: ")
		}
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *FlumeError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithFile returns a copy of the error with the file path set.
func (e *FlumeError) WithFile(file string) *FlumeError {
	copy := *e
	copy.File = file
	return &copy
}

// WithPosition returns a copy of the error with line and column set.
func (e *FlumeError) WithPosition(line, column int) *FlumeError {
	copy := *e
	copy.Line = line
	copy.Column = column
	return &copy
}

// WithStatement returns a copy of the error attributed to a statement.
// Position information already present is kept.
func (e *FlumeError) WithStatement(command string, line, column int) *FlumeError {
	copy := *e
	if copy.Command == "" {
		copy.Command = command
	}
	if copy.Line == 0 {
		copy.Line = line
		copy.Column = column
	}
	return &copy
}

// IsParseError returns true if this is a parser error.
func (e *FlumeError) IsParseError() bool {
	return e.Kind == KindParse
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Kind     Kind
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Bindings (NOTFOUND-0xxx, EMPTY-0xxx)
	// ========================================
	"NOTFOUND-0001": {
		Kind:     KindNotFound,
		Template: "table `{{.Name}}` not found",
	},
	"NOTFOUND-0002": {
		Kind:     KindNotFound,
		Template: "data source `{{.Name}}` not found",
		Hints:    []string{"CONNECT {{.Name}} TO <url> AS SQL"},
	},
	"EMPTY-0001": {
		Kind:     KindEmpty,
		Template: "no current table: `it` is empty",
		Hints:    []string{"name a source table with FROM, or load one first with READ or CREATE"},
	},

	// ========================================
	// Type errors (TYPE-0xxx)
	// ========================================
	"TYPE-0001": {
		Kind:     KindType,
		Template: "{{.Param}} must be {{.Expected}}, got {{.Got}}",
	},
	"TYPE-0002": {
		Kind:     KindType,
		Template: "operator {{.Operator}} not supported between {{.Left}} and {{.Right}}",
	},
	"TYPE-0003": {
		Kind:     KindType,
		Template: "argument to `{{.Function}}` must be {{.Expected}}, got {{.Got}}",
	},
	"TYPE-0004": {
		Kind:     KindType,
		Template: "cannot index {{.Got}} with {{.IndexType}}",
	},
	"TYPE-0005": {
		Kind:     KindType,
		Template: "operator {{.Operator}} not supported for {{.Got}}",
	},
	"TYPE-0006": {
		Kind:     KindType,
		Template: "cannot convert {{.Value}} to {{.Expected}}",
	},

	// ========================================
	// Shape errors (SHAPE-0xxx)
	// ========================================
	"SHAPE-0001": {
		Kind:     KindShape,
		Template: "vectorized arguments have different lengths: {{.Lengths}}",
		Hints:    []string{"only scalars broadcast; columns must all have the same number of rows"},
	},
	"SHAPE-0002": {
		Kind:     KindShape,
		Template: "column `{{.Name}}` has {{.Got}} rows, expected {{.Want}}",
	},

	// ========================================
	// Schema errors (SCHEMA-0xxx)
	// ========================================
	"SCHEMA-0001": {
		Kind:     KindSchema,
		Template: "tables have different columns: [{{.Left}}] and [{{.Right}}]",
	},
	"SCHEMA-0002": {
		Kind:     KindSchema,
		Template: "no common columns to join on",
		Hints:    []string{"JOIN {{.Left}} WITH {{.Right}} ON <column>"},
	},

	// ========================================
	// Column names (NAME-0xxx)
	// ========================================
	"NAME-0001": {
		Kind:     KindCollision,
		Template: "column `{{.Name}}` already exists",
	},
	"NAME-0002": {
		Kind:     KindNameNotFound,
		Template: "column `{{.Name}}` not found",
	},
	"NAME-0003": {
		Kind:     KindNameNotFound,
		Template: "column index {{.Index}} out of range ({{.Width}} columns)",
	},
	"NAME-0004": {
		Kind:     KindCollision,
		Template: "value {{.Value}} cannot be used as a column name",
	},

	// ========================================
	// Arity errors (ARITY-0xxx)
	// ========================================
	"ARITY-0001": {
		Kind:     KindArity,
		Template: "unknown command `{{.Name}}`",
	},
	"ARITY-0002": {
		Kind:     KindArity,
		Template: "wrong number of arguments to {{.Command}}. got={{.Got}}, want={{.Want}}",
		Hints:    []string{"{{.Syntax}}"},
	},
	"ARITY-0003": {
		Kind:     KindArity,
		Template: "wrong number of arguments to `{{.Function}}`. got={{.Got}}, want={{.Want}}",
	},
	"ARITY-0004": {
		Kind:     KindArity,
		Template: "unknown function `{{.Name}}`",
	},

	// ========================================
	// Parse errors (PARSE-0xxx)
	// ========================================
	"PARSE-0001": {
		Kind:     KindParse,
		Template: "expected {{.Expected}}, got '{{.Got}}'",
	},
	"PARSE-0002": {
		Kind:     KindParse,
		Template: "unexpected token '{{.Token}}'",
	},
	"PARSE-0003": {
		Kind:     KindParse,
		Template: "unterminated string",
	},
	"PARSE-0004": {
		Kind:     KindParse,
		Template: "unterminated block, expected {{.Marker}}",
	},
	"PARSE-0005": {
		Kind:     KindParse,
		Template: "invalid number literal: {{.Literal}}",
	},
	"PARSE-0006": {
		Kind:     KindParse,
		Template: "unknown format `{{.Format}}`",
		Hints:    []string{"formats: CSV, TSV, JSON, JSON LINES, YAML, MARKDOWN, HTML, TEXT"},
	},
	"PARSE-0007": {
		Kind:     KindParse,
		Template: "illegal character '{{.Char}}'",
	},

	// ========================================
	// I/O errors (IO-0xxx)
	// ========================================
	"IO-0001": {
		Kind:     KindIO,
		Template: "cannot open {{.Location}}: {{.GoError}}",
	},
	"IO-0002": {
		Kind:     KindIO,
		Template: "cannot write {{.Location}}: {{.GoError}}",
	},
	"IO-0003": {
		Kind:     KindIO,
		Template: "unsupported location scheme `{{.Scheme}}`",
	},
	"IO-0004": {
		Kind:     KindIO,
		Template: "command `{{.Command}}` failed: {{.GoError}}",
	},
	"IO-0005": {
		Kind:     KindIO,
		Template: "HTTP {{.Status}} fetching {{.Location}}",
	},

	// ========================================
	// Format errors (FORMAT-0xxx)
	// ========================================
	"FORMAT-0001": {
		Kind:     KindFormat,
		Template: "cannot decode {{.Format}}: {{.GoError}}",
	},
	"FORMAT-0002": {
		Kind:     KindFormat,
		Template: "cannot encode {{.Format}}: {{.GoError}}",
	},
	"FORMAT-0003": {
		Kind:     KindFormat,
		Template: "cannot infer format for {{.Location}}",
		Hints:    []string{"add an AS clause, e.g. AS CSV"},
	},
	"FORMAT-0004": {
		Kind:     KindFormat,
		Template: "invalid {{.Option}}: {{.Reason}}",
	},
	"FORMAT-0005": {
		Kind:     KindFormat,
		Template: "{{.Format}} is an output-only format",
	},

	// ========================================
	// Data source errors (DB-0xxx)
	// ========================================
	"DB-0001": {
		Kind:     KindDatabase,
		Template: "cannot connect to {{.Source}}: {{.GoError}}",
	},
	"DB-0002": {
		Kind:     KindDatabase,
		Template: "query failed: {{.GoError}}",
	},
	"DB-0003": {
		Kind:     KindDatabase,
		Template: "unknown source kind `{{.Kind}}`",
		Hints:    []string{"CONNECT <name> TO <url> AS SQL", "CONNECT <name> TO <file> AS AWK"},
	},
	"DB-0004": {
		Kind:     KindDatabase,
		Template: "invalid table name `{{.Name}}`",
	},
	"DB-0005": {
		Kind:     KindDatabase,
		Template: "unsupported database URL scheme `{{.Scheme}}`",
		Hints:    []string{"sqlite:path, postgres://…, mysql://…"},
	},

	// ========================================
	// Security errors (SEC-0xxx)
	// ========================================
	"SEC-0001": {
		Kind:     KindSecurity,
		Template: "{{.Operation}} is not permitted",
		Hints:    []string{"set security.allow_{{.Switch}}: true in flume.yaml"},
	},

	// ========================================
	// Cancellation (CANCEL-0xxx)
	// ========================================
	"CANCEL-0001": {
		Kind:     KindCancelled,
		Template: "execution cancelled: {{.GoError}}",
	},
}

// New creates a FlumeError from a catalog code and template data.
func New(code string, data map[string]any) *FlumeError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := fmt.Sprintf("unknown error code: %s", code)
		return &FlumeError{
			Kind:    KindType,
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &FlumeError{
		Kind:    def.Kind,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
}

// NewWithPosition creates a FlumeError with position information.
func NewWithPosition(code string, line, column int, data map[string]any) *FlumeError {
	err := New(code, data)
	err.Line = line
	err.Column = column
	return err
}

// Wrap creates a catalog error caused by a library error. The cause's text
// is available to the template as {{.GoError}}.
func Wrap(code string, cause error, data map[string]any) *FlumeError {
	if data == nil {
		data = map[string]any{}
	}
	if cause != nil {
		data["GoError"] = cause.Error()
	}
	err := New(code, data)
	err.cause = cause
	return err
}

// NewSimple creates a simple error without using the catalog.
func NewSimple(kind Kind, message string) *FlumeError {
	return &FlumeError{
		Kind:    kind,
		Message: message,
	}
}

// NewSimpleWithHints creates a simple error with hints.
func NewSimpleWithHints(kind Kind, message string, hints ...string) *FlumeError {
	return &FlumeError{
		Kind:    kind,
		Message: message,
		Hints:   hints,
	}
}

// KindOf reports the kind of err, or "" if err is not a FlumeError.
func KindOf(err error) Kind {
	var fe *FlumeError
	if goerrors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is a FlumeError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the FlumeError from err.
func As(err error) (*FlumeError, bool) {
	var fe *FlumeError
	ok := goerrors.As(err, &fe)
	return fe, ok
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FuzzyMatch represents a fuzzy match result with its distance.
type FuzzyMatch struct {
	Value    string
	Distance int
}

// threshold returns the largest edit distance worth suggesting for input.
// Short words (1-3) allow 1 edit, medium (4-6) 2 and longer words 3.
func threshold(input string) int {
	switch {
	case len(input) >= 7:
		return 3
	case len(input) >= 4:
		return 2
	default:
		return 1
	}
}

// FindClosestMatch finds the closest match to the given string from candidates.
// Returns "" when nothing is within the length-dependent threshold.
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	var bestMatch string
	bestDistance := -1

	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	if bestDistance <= 0 || bestDistance > threshold(input) {
		return ""
	}

	return bestMatch
}

// FindTopMatches returns up to n candidates within the threshold, closest first.
func FindTopMatches(input string, candidates []string, n int) []string {
	if len(input) == 0 || len(candidates) == 0 || n <= 0 {
		return nil
	}

	inputLower := strings.ToLower(input)

	var matches []FuzzyMatch
	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if dist > 0 {
			matches = append(matches, FuzzyMatch{Value: candidate, Distance: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	limit := threshold(input)
	var result []string
	for i := 0; i < len(matches) && len(result) < n; i++ {
		if matches[i].Distance <= limit {
			result = append(result, matches[i].Value)
		}
	}

	return result
}

// withSuggestion appends a "Did you mean" hint when a close candidate exists.
func withSuggestion(err *FlumeError, name string, candidates []string) *FlumeError {
	if suggestion := FindClosestMatch(name, candidates); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// NewTableNotFound creates a NotFound error with optional fuzzy matching
// against the bound table names.
func NewTableNotFound(name string, bound []string) *FlumeError {
	return withSuggestion(New("NOTFOUND-0001", map[string]any{"Name": name}), name, bound)
}

// NewColumnNotFound creates a NameNotFound error with optional fuzzy matching
// against the table's column names.
func NewColumnNotFound(name string, columns []string) *FlumeError {
	return withSuggestion(New("NAME-0002", map[string]any{"Name": name}), name, columns)
}

// NewUnknownCommand creates an arity error for an unregistered command.
func NewUnknownCommand(name string, commands []string) *FlumeError {
	return withSuggestion(New("ARITY-0001", map[string]any{"Name": name}), name, commands)
}

// NewUnknownFunction creates an arity error for an unregistered function.
func NewUnknownFunction(name string, functions []string) *FlumeError {
	return withSuggestion(New("ARITY-0004", map[string]any{"Name": name}), name, functions)
}

// Keywords are the reserved words of the language, used for typo hints.
var Keywords = []string{
	"FROM", "INTO", "AS", "BY", "WITH", "TO", "ON", "KEEP", "FIRST", "LAST",
	"ASC", "DESC", "AND", "OR", "NOT", "IN", "LIKE", "IS", "NULL", "TRUE", "FALSE",
	"INNER", "LEFT", "RIGHT", "OUTER", "HEADER", "NO", "DELIMITER", "QUOTE",
}
