package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF
	NEWLINE   // end of statement
	SEMICOLON // ;

	// Identifiers and literals
	IDENT     // select, people, salary
	QIDENT    // `quoted identifier`
	INT       // 1343456
	FLOAT     // 3.14159, 1e6
	STRING    // "double quoted, may hold $placeholders"
	RAWSTRING // 'single quoted, never templated'
	VAR       // $name, $1, ${name}
	COLINDEX  // :0
	HEREDOC   // << END ... END

	// Operators
	PLUS     // +
	MINUS    // -
	ASTERISK // *
	SLASH    // /
	PERCENT  // %
	CARET    // ^
	EQ       // =
	NOT_EQ   // <> or !=
	LT       // <
	LT_EQ    // <=
	GT       // >
	GT_EQ    // >=

	// Delimiters
	COMMA    // ,
	DOT      // .
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
)

var tokenNames = map[TokenType]string{
	ILLEGAL:   "ILLEGAL",
	EOF:       "EOF",
	NEWLINE:   "NEWLINE",
	SEMICOLON: ";",
	IDENT:     "IDENT",
	QIDENT:    "QIDENT",
	INT:       "INT",
	FLOAT:     "FLOAT",
	STRING:    "STRING",
	RAWSTRING: "RAWSTRING",
	VAR:       "VAR",
	COLINDEX:  "COLINDEX",
	HEREDOC:   "HEREDOC",
	PLUS:      "+",
	MINUS:     "-",
	ASTERISK:  "*",
	SLASH:     "/",
	PERCENT:   "%",
	CARET:     "^",
	EQ:        "=",
	NOT_EQ:    "<>",
	LT:        "<",
	LT_EQ:     "<=",
	GT:        ">",
	GT_EQ:     ">=",
	COMMA:     ",",
	DOT:       ".",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACKET:  "[",
	RBRACKET:  "]",
}

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Line: %d, Column: %d}",
		t.Type.String(), t.Literal, t.Line, t.Column)
}

// Is reports whether the token is the given keyword. Keywords are
// case-insensitive identifiers; quoted identifiers never match.
func (t Token) Is(keyword string) bool {
	return t.Type == IDENT && strings.EqualFold(t.Literal, keyword)
}

// Lexer turns Flume source into tokens. Newlines end statements except
// inside parentheses and brackets.
type Lexer struct {
	filename     string
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
	depth        int // open ( and [

	// Error holds the message for the most recent ILLEGAL token.
	Error string
}

// New creates a new lexer instance
func New(input string) *Lexer {
	return NewWithFilename(input, "<input>")
}

// NewWithFilename creates a new lexer instance with a specific filename
func NewWithFilename(input string, filename string) *Lexer {
	l := &Lexer{
		filename: filename,
		input:    input,
		line:     1,
		column:   0,
	}
	l.readChar()
	return l
}

// Filename returns the name used in error messages.
func (l *Lexer) Filename() string { return l.filename }

// readChar reads the next byte and advances position.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // ASCII NUL character represents EOF
		l.position = l.readPosition
		return
	}
	if l.position < len(l.input) && l.readPosition > 0 && l.input[l.position] == '\n' {
		l.line++
		l.column = 0
	}
	l.ch = l.input[l.readPosition]
	l.position = l.readPosition
	l.readPosition++
	if l.ch < utf8.RuneSelf || utf8.RuneStart(l.ch) {
		l.column++
	}
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken scans the input and returns the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	line, column := l.line, l.column
	tok := func(tt TokenType, literal string) Token {
		return Token{Type: tt, Literal: literal, Line: line, Column: column}
	}

	switch l.ch {
	case 0:
		return tok(EOF, "")
	case '\n':
		l.readChar()
		return tok(NEWLINE, "\n")
	case ';':
		l.readChar()
		return tok(SEMICOLON, ";")
	case '+':
		l.readChar()
		return tok(PLUS, "+")
	case '-':
		l.readChar()
		return tok(MINUS, "-")
	case '*':
		l.readChar()
		return tok(ASTERISK, "*")
	case '/':
		l.readChar()
		return tok(SLASH, "/")
	case '%':
		l.readChar()
		return tok(PERCENT, "%")
	case '^':
		l.readChar()
		return tok(CARET, "^")
	case ',':
		l.readChar()
		return tok(COMMA, ",")
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber(line, column)
		}
		l.readChar()
		return tok(DOT, ".")
	case '(':
		l.depth++
		l.readChar()
		return tok(LPAREN, "(")
	case ')':
		if l.depth > 0 {
			l.depth--
		}
		l.readChar()
		return tok(RPAREN, ")")
	case '[':
		l.depth++
		l.readChar()
		return tok(LBRACKET, "[")
	case ']':
		if l.depth > 0 {
			l.depth--
		}
		l.readChar()
		return tok(RBRACKET, "]")
	case '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
		}
		return tok(EQ, "=")
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return tok(NOT_EQ, "<>")
		}
	case '<':
		l.readChar()
		switch l.ch {
		case '=':
			l.readChar()
			return tok(LT_EQ, "<=")
		case '>':
			l.readChar()
			return tok(NOT_EQ, "<>")
		case '<':
			l.readChar()
			return l.readHeredoc(line, column)
		}
		return tok(LT, "<")
	case '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return tok(GT_EQ, ">=")
		}
		return tok(GT, ">")
	case '"':
		s, ok := l.readString('"')
		if !ok {
			l.Error = "unterminated string"
			return tok(ILLEGAL, s)
		}
		return tok(STRING, s)
	case '\'':
		s, ok := l.readString('\'')
		if !ok {
			l.Error = "unterminated string"
			return tok(ILLEGAL, s)
		}
		return tok(RAWSTRING, s)
	case '`':
		s, ok := l.readQuotedIdent()
		if !ok {
			l.Error = "unterminated quoted identifier"
			return tok(ILLEGAL, s)
		}
		return tok(QIDENT, s)
	case '$':
		return l.readVariable(line, column)
	case ':':
		if isDigit(l.peekChar()) {
			l.readChar()
			start := l.position
			for isDigit(l.ch) {
				l.readChar()
			}
			return tok(COLINDEX, l.input[start:l.position])
		}
	default:
		if isDigit(l.ch) {
			return l.readNumber(line, column)
		}
		if r, _ := utf8.DecodeRuneInString(l.input[l.position:]); isLetterRune(r) {
			return tok(IDENT, l.readIdentifier())
		}
	}

	r, size := utf8.DecodeRuneInString(l.input[l.position:])
	for i := 0; i < size; i++ {
		l.readChar()
	}
	l.Error = fmt.Sprintf("illegal character '%c'", r)
	return tok(ILLEGAL, string(r))
}

// skipWhitespace skips spaces and comments. Newlines are skipped only inside
// parentheses or brackets, or when escaped with a trailing backslash.
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '\n' && l.depth > 0:
			l.readChar()
		case l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r'):
			l.readChar()
			for l.ch == '\r' {
				l.readChar()
			}
			l.readChar()
		case l.ch == '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for {
		r, size := utf8.DecodeRuneInString(l.input[l.position:])
		if size == 0 || !(isLetterRune(r) || unicode.IsDigit(r)) {
			break
		}
		for i := 0; i < size; i++ {
			l.readChar()
		}
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber(line, column int) Token {
	start := l.position
	tt := INT
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		tt = FLOAT
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			tt = FLOAT
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	literal := strings.ReplaceAll(l.input[start:l.position], "_", "")
	if isLetter(l.ch) {
		// 12abc is not a number
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		l.Error = "invalid number literal"
		return Token{Type: ILLEGAL, Literal: l.input[start:l.position], Line: line, Column: column}
	}
	return Token{Type: tt, Literal: literal, Line: line, Column: column}
}

// readString reads a quoted string. Double-quoted strings process escapes;
// single-quoted strings only process \' and \\.
func (l *Lexer) readString(quote byte) (string, bool) {
	var result []byte
	l.readChar() // skip opening quote

	for l.ch != quote && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch {
			case quote == '\'' && (l.ch == '\'' || l.ch == '\\'):
				result = append(result, l.ch)
			case quote == '\'':
				result = append(result, '\\', l.ch)
			case l.ch == 'n':
				result = append(result, '\n')
			case l.ch == 't':
				result = append(result, '\t')
			case l.ch == 'r':
				result = append(result, '\r')
			case l.ch == '\\' || l.ch == '"':
				result = append(result, l.ch)
			default:
				// Unknown escape, keep as-is
				result = append(result, '\\', l.ch)
			}
		} else {
			result = append(result, l.ch)
		}
		l.readChar()
	}

	terminated := l.ch == quote
	if terminated {
		l.readChar()
	}
	return string(result), terminated
}

func (l *Lexer) readQuotedIdent() (string, bool) {
	l.readChar() // skip opening backtick
	start := l.position
	for l.ch != '`' && l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	s := l.input[start:l.position]
	if l.ch != '`' {
		return s, false
	}
	l.readChar()
	return s, true
}

// readVariable reads $name, $1 or ${name}.
func (l *Lexer) readVariable(line, column int) Token {
	l.readChar() // skip $
	if l.ch == '{' {
		l.readChar()
		start := l.position
		for l.ch != '}' && l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
		name := l.input[start:l.position]
		if l.ch != '}' || name == "" {
			l.Error = "unterminated ${...}"
			return Token{Type: ILLEGAL, Literal: "${" + name, Line: line, Column: column}
		}
		l.readChar()
		return Token{Type: VAR, Literal: name, Line: line, Column: column}
	}
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	if start == l.position {
		l.Error = "expected a variable name after $"
		return Token{Type: ILLEGAL, Literal: "$", Line: line, Column: column}
	}
	return Token{Type: VAR, Literal: l.input[start:l.position], Line: line, Column: column}
}

// readHeredoc reads `<< MARKER` followed by every line up to a line holding
// only MARKER. The literal is the block's text, each line ending in "\n".
func (l *Lexer) readHeredoc(line, column int) Token {
	for l.ch == ' ' || l.ch == '\t' {
		l.readChar()
	}
	marker := l.readIdentifier()
	if marker == "" {
		l.Error = "expected a marker after <<"
		return Token{Type: ILLEGAL, Literal: "<<", Line: line, Column: column}
	}
	for l.ch != '\n' && l.ch != 0 {
		if l.ch != ' ' && l.ch != '\t' && l.ch != '\r' {
			l.Error = "unexpected text after heredoc marker " + marker
			return Token{Type: ILLEGAL, Literal: marker, Line: line, Column: column}
		}
		l.readChar()
	}
	if l.ch == '\n' {
		l.readChar()
	}

	var body strings.Builder
	for l.ch != 0 {
		start := l.position
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
		text := l.input[start:l.position]
		if strings.TrimSpace(text) == marker {
			return Token{Type: HEREDOC, Literal: body.String(), Line: line, Column: column}
		}
		body.WriteString(strings.TrimSuffix(text, "\r"))
		body.WriteByte('\n')
		if l.ch == '\n' {
			l.readChar()
		}
	}
	l.Error = "unterminated block, expected " + marker
	return Token{Type: ILLEGAL, Literal: marker, Line: line, Column: column}
}

// isLetter checks if a byte represents a letter (ASCII fast-path).
func isLetter(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isLetterRune checks if a rune is a valid identifier character (letter or underscore).
func isLetterRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// isDigit checks if the character is a digit
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// Tokenize returns every token up to and including EOF.
func Tokenize(input string) []Token {
	l := New(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}
