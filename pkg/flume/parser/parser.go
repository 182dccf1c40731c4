package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sambeau/flume/pkg/flume/ast"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/lexer"
)

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	LOGIC_OR    // OR
	LOGIC_AND   // AND
	LOGIC_NOT   // NOT x
	COMPARE     // = <> < <= > >= IN LIKE IS
	SUM         // + -
	PRODUCT     // * / %
	POWER       // ^
	PREFIX      // -X
	INDEX       // list[index]
)

// precedences maps operator tokens to their precedence
var precedences = map[lexer.TokenType]int{
	lexer.EQ:       COMPARE,
	lexer.NOT_EQ:   COMPARE,
	lexer.LT:       COMPARE,
	lexer.LT_EQ:    COMPARE,
	lexer.GT:       COMPARE,
	lexer.GT_EQ:    COMPARE,
	lexer.PLUS:     SUM,
	lexer.MINUS:    SUM,
	lexer.ASTERISK: PRODUCT,
	lexer.SLASH:    PRODUCT,
	lexer.PERCENT:  PRODUCT,
	lexer.CARET:    POWER,
	lexer.LBRACKET: INDEX,
}

// keywordPrecedences maps operator keywords to their precedence
var keywordPrecedences = map[string]int{
	"OR":   LOGIC_OR,
	"AND":  LOGIC_AND,
	"IN":   COMPARE,
	"LIKE": COMPARE,
	"IS":   COMPARE,
	"NOT":  COMPARE, // NOT IN, NOT LIKE
}

// reserved words that end an expression and cannot name a column unquoted
var reserved = map[string]bool{
	"FROM": true, "INTO": true, "AS": true, "BY": true, "WITH": true,
	"TO": true, "ON": true, "KEEP": true, "ASC": true, "DESC": true,
	"AND": true, "OR": true, "NOT": true, "IN": true, "LIKE": true, "IS": true,
}

type (
	prefixParseFn    func() ast.Expr
	infixParseFn     func(ast.Expr) ast.Expr
	statementParseFn func(stmt *ast.Statement)
)

// Parser turns tokens into statements.
type Parser struct {
	tokens   []lexer.Token
	illegal  map[int]string // token index -> lexer message
	pos      int
	curToken lexer.Token
	filename string

	structuredErrors []*ferrors.FlumeError

	prefixParseFns    map[lexer.TokenType]prefixParseFn
	infixParseFns     map[lexer.TokenType]infixParseFn
	statementParseFns map[string]statementParseFn
}

// New creates a new parser instance
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		illegal:  map[int]string{},
		filename: l.Filename(),
	}
	for {
		tok := l.NextToken()
		if tok.Type == lexer.ILLEGAL {
			p.illegal[len(p.tokens)] = l.Error
		}
		p.tokens = append(p.tokens, tok)
		if tok.Type == lexer.EOF {
			break
		}
	}
	p.curToken = p.tokens[0]

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.registerPrefix(lexer.IDENT, p.parseIdentifier)
	p.registerPrefix(lexer.QIDENT, p.parseIdentifier)
	p.registerPrefix(lexer.INT, p.parseIntegerLiteral)
	p.registerPrefix(lexer.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(lexer.STRING, p.parseStringLiteral)
	p.registerPrefix(lexer.RAWSTRING, p.parseRawStringLiteral)
	p.registerPrefix(lexer.VAR, p.parseVariable)
	p.registerPrefix(lexer.COLINDEX, p.parseColumnIndex)
	p.registerPrefix(lexer.MINUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.PLUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(lexer.LBRACKET, p.parseListLiteral)
	p.registerPrefix(lexer.ASTERISK, p.parseStar)

	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	for _, tt := range []lexer.TokenType{
		lexer.EQ, lexer.NOT_EQ, lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ,
		lexer.PLUS, lexer.MINUS, lexer.ASTERISK, lexer.SLASH, lexer.PERCENT, lexer.CARET,
	} {
		p.registerInfix(tt, p.parseInfixExpression)
	}
	p.registerInfix(lexer.LBRACKET, p.parseIndexExpression)

	p.registerStatements()
	return p
}

// Parse parses a whole script. The returned error is the first parse error.
func Parse(input, filename string) (*ast.Script, error) {
	p := New(lexer.NewWithFilename(input, filename))
	script := p.ParseScript()
	if errs := p.StructuredErrors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return script, nil
}

// Errors returns parser errors as strings (convenience method for tests).
func (p *Parser) Errors() []string {
	result := make([]string, len(p.structuredErrors))
	for i, err := range p.structuredErrors {
		if err.Line > 0 {
			result[i] = fmt.Sprintf("line %d, column %d: %s", err.Line, err.Column, err.Message)
		} else {
			result[i] = err.Message
		}
	}
	return result
}

// StructuredErrors returns parser errors as structured FlumeError objects.
func (p *Parser) StructuredErrors() []*ferrors.FlumeError {
	return p.structuredErrors
}

// addStructuredError adds an error from the catalog.
// Only the first error is recorded - subsequent errors are usually cascading noise.
func (p *Parser) addStructuredError(code string, tok lexer.Token, data map[string]any) {
	if len(p.structuredErrors) > 0 {
		return
	}
	err := ferrors.NewWithPosition(code, tok.Line, tok.Column, data)
	if p.filename != "" && p.filename != "<input>" {
		err = err.WithFile(p.filename)
	}
	p.structuredErrors = append(p.structuredErrors, err)
}

func (p *Parser) failed() bool {
	return len(p.structuredErrors) > 0
}

// registerPrefix registers a prefix parse function
func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

// registerInfix registers an infix parse function
func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

// nextToken advances to the next token. EOF repeats forever.
func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.curToken = p.tokens[p.pos]
	if msg, ok := p.illegal[p.pos]; ok {
		p.illegalError(msg)
	}
}

// peek returns the token n positions ahead of the current one.
func (p *Parser) peek(n int) lexer.Token {
	i := p.pos + n
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) curKeyword(keywords ...string) bool {
	for _, k := range keywords {
		if p.curToken.Is(k) {
			return true
		}
	}
	return false
}

func (p *Parser) atStatementEnd() bool {
	switch p.curToken.Type {
	case lexer.NEWLINE, lexer.SEMICOLON, lexer.EOF:
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, what string) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.expectedError(what)
	return false
}

func (p *Parser) expectKeyword(keyword string) bool {
	if p.curToken.Is(keyword) {
		p.nextToken()
		return true
	}
	p.expectedError(keyword)
	return false
}

func (p *Parser) expectedError(what string) {
	got := p.curToken.Literal
	switch p.curToken.Type {
	case lexer.EOF:
		got = "end of input"
	case lexer.NEWLINE:
		got = "end of line"
	}
	p.addStructuredError("PARSE-0001", p.curToken, map[string]any{"Expected": what, "Got": got})
}

func (p *Parser) illegalError(msg string) {
	tok := p.curToken
	switch {
	case strings.HasPrefix(msg, "unterminated string"):
		p.addStructuredError("PARSE-0003", tok, nil)
	case strings.HasPrefix(msg, "unterminated block"):
		p.addStructuredError("PARSE-0004", tok, map[string]any{"Marker": tok.Literal})
	case strings.HasPrefix(msg, "invalid number"):
		p.addStructuredError("PARSE-0005", tok, map[string]any{"Literal": tok.Literal})
	case strings.HasPrefix(msg, "illegal character"):
		p.addStructuredError("PARSE-0007", tok, map[string]any{"Char": tok.Literal})
	default:
		if len(p.structuredErrors) == 0 {
			err := ferrors.NewSimple(ferrors.KindParse, msg).WithPosition(tok.Line, tok.Column)
			if p.filename != "<input>" {
				err = err.WithFile(p.filename)
			}
			p.structuredErrors = append(p.structuredErrors, err)
		}
	}
}

// ParseScript parses every statement up to EOF.
func (p *Parser) ParseScript() *ast.Script {
	script := &ast.Script{File: p.filename}
	if msg, ok := p.illegal[0]; ok {
		p.illegalError(msg)
	}

	for !p.curTokenIs(lexer.EOF) && !p.failed() {
		if p.curTokenIs(lexer.NEWLINE) || p.curTokenIs(lexer.SEMICOLON) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if p.failed() {
			break
		}
		if !p.atStatementEnd() {
			p.expectedError("end of statement")
			break
		}
		script.Statements = append(script.Statements, stmt)
	}
	return script
}

// parseStatement parses one statement starting at a command word.
func (p *Parser) parseStatement() *ast.Statement {
	tok := p.curToken
	if tok.Type != lexer.IDENT {
		p.expectedError("a command")
		return nil
	}

	stmt := &ast.Statement{
		Pos:     ast.Pos{Line: tok.Line, Column: tok.Column},
		Command: strings.ToUpper(tok.Literal),
	}
	p.nextToken()

	if fn, ok := p.statementParseFns[stmt.Command]; ok {
		fn(stmt)
	} else {
		p.parseGenericStatement(stmt)
	}
	if p.failed() {
		return nil
	}
	p.parseInto(stmt)
	return stmt
}

// ============================================================================
// Expressions
// ============================================================================

// parseExpression parses expressions using Pratt parsing. On return the
// current token is the first token after the expression.
func (p *Parser) parseExpression(precedence int) ast.Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError()
		return nil
	}

	left := prefix()
	for left != nil && !p.failed() && precedence < p.curPrecedence() {
		if p.curTokenIs(lexer.IDENT) {
			left = p.parseKeywordInfix(left)
			continue
		}
		infix := p.infixParseFns[p.curToken.Type]
		if infix == nil {
			return left
		}
		left = infix(left)
	}
	if p.failed() {
		return nil
	}
	return left
}

func (p *Parser) curPrecedence() int {
	if p.curTokenIs(lexer.IDENT) {
		kw := strings.ToUpper(p.curToken.Literal)
		if kw == "NOT" && !(p.peek(1).Is("IN") || p.peek(1).Is("LIKE")) {
			return LOWEST
		}
		if prec, ok := keywordPrecedences[kw]; ok {
			return prec
		}
		return LOWEST
	}
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) noPrefixParseFnError() {
	switch p.curToken.Type {
	case lexer.EOF, lexer.NEWLINE, lexer.SEMICOLON:
		p.expectedError("an expression")
	default:
		p.addStructuredError("PARSE-0002", p.curToken, map[string]any{"Token": p.curToken.Literal})
	}
}

func (p *Parser) pos0() ast.Pos {
	return ast.Pos{Line: p.curToken.Line, Column: p.curToken.Column}
}

// constants recognized regardless of case
var constants = map[string]any{
	"TRUE":  true,
	"FALSE": false,
	"NULL":  nil,
	"NA":    nil,
	"NAN":   nil,
}

// mathConstants are recognized only when written in upper case, so that
// columns named e or pi remain usable.
var mathConstants = map[string]float64{
	"PI":  3.141592653589793,
	"E":   2.718281828459045,
	"TAU": 6.283185307179586,
}

func (p *Parser) parseIdentifier() ast.Expr {
	tok := p.curToken
	pos := p.pos0()

	if tok.Type == lexer.IDENT {
		upper := strings.ToUpper(tok.Literal)
		if upper == "NOT" {
			p.nextToken()
			operand := p.parseExpression(LOGIC_NOT)
			if operand == nil {
				return nil
			}
			return &ast.Unary{Pos: pos, Operator: "NOT", Operand: operand}
		}
		if v, ok := constants[upper]; ok {
			p.nextToken()
			return &ast.Literal{Pos: pos, Value: v}
		}
		if v, ok := mathConstants[tok.Literal]; ok {
			p.nextToken()
			return &ast.Literal{Pos: pos, Value: v}
		}
		if reserved[upper] {
			p.addStructuredError("PARSE-0002", tok, map[string]any{"Token": tok.Literal})
			return nil
		}
		if p.peek(1).Type == lexer.LPAREN {
			return p.parseCall()
		}
	}

	p.nextToken()
	if p.curTokenIs(lexer.DOT) && (p.peek(1).Type == lexer.IDENT || p.peek(1).Type == lexer.QIDENT) {
		p.nextToken()
		name := p.curToken.Literal
		p.nextToken()
		return &ast.ColumnRef{Pos: pos, Table: tok.Literal, Name: name, Index: -1}
	}
	return &ast.ColumnRef{Pos: pos, Name: tok.Literal, Index: -1}
}

func (p *Parser) parseCall() ast.Expr {
	call := &ast.Call{Pos: p.pos0(), Name: strings.ToLower(p.curToken.Literal)}
	p.nextToken() // name
	p.nextToken() // (
	if p.curTokenIs(lexer.RPAREN) {
		p.nextToken()
		return call
	}
	for {
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if !p.curTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expect(lexer.RPAREN, ")") {
		return nil
	}
	return call
}

func (p *Parser) parseIntegerLiteral() ast.Expr {
	tok := p.curToken
	v, err := strconv.ParseInt(tok.Literal, 10, 64)
	if err != nil {
		// too large for int64; keep as float
		f, ferr := strconv.ParseFloat(tok.Literal, 64)
		if ferr != nil {
			p.addStructuredError("PARSE-0005", tok, map[string]any{"Literal": tok.Literal})
			return nil
		}
		p.nextToken()
		return &ast.Literal{Pos: ast.Pos{Line: tok.Line, Column: tok.Column}, Value: f}
	}
	p.nextToken()
	return &ast.Literal{Pos: ast.Pos{Line: tok.Line, Column: tok.Column}, Value: v}
}

func (p *Parser) parseFloatLiteral() ast.Expr {
	tok := p.curToken
	v, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.addStructuredError("PARSE-0005", tok, map[string]any{"Literal": tok.Literal})
		return nil
	}
	p.nextToken()
	return &ast.Literal{Pos: ast.Pos{Line: tok.Line, Column: tok.Column}, Value: v}
}

func (p *Parser) parseStringLiteral() ast.Expr {
	tok := p.curToken
	pos := p.pos0()
	p.nextToken()
	parts, templated := ParseTemplate(tok.Literal)
	if !templated {
		return &ast.Literal{Pos: pos, Value: parts[0].Text}
	}
	return &ast.Template{Pos: pos, Raw: tok.Literal, Parts: parts}
}

func (p *Parser) parseRawStringLiteral() ast.Expr {
	lit := &ast.Literal{Pos: p.pos0(), Value: p.curToken.Literal}
	p.nextToken()
	return lit
}

func (p *Parser) parseVariable() ast.Expr {
	v := &ast.Variable{Pos: p.pos0(), Name: p.curToken.Literal}
	p.nextToken()
	return v
}

func (p *Parser) parseColumnIndex() ast.Expr {
	tok := p.curToken
	idx, err := strconv.Atoi(tok.Literal)
	if err != nil {
		p.addStructuredError("PARSE-0005", tok, map[string]any{"Literal": tok.Literal})
		return nil
	}
	p.nextToken()
	return &ast.ColumnRef{Pos: ast.Pos{Line: tok.Line, Column: tok.Column}, Index: idx}
}

func (p *Parser) parsePrefixExpression() ast.Expr {
	pos := p.pos0()
	op := p.curToken.Literal
	p.nextToken()
	operand := p.parseExpression(PREFIX)
	if operand == nil {
		return nil
	}
	if op == "+" {
		return operand
	}
	if lit, ok := operand.(*ast.Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			return &ast.Literal{Pos: pos, Value: -v}
		case float64:
			return &ast.Literal{Pos: pos, Value: -v}
		}
	}
	return &ast.Unary{Pos: pos, Operator: op, Operand: operand}
}

func (p *Parser) parseGroupedExpression() ast.Expr {
	p.nextToken()
	exp := p.parseExpression(LOWEST)
	if exp == nil {
		return nil
	}
	if !p.expect(lexer.RPAREN, ")") {
		return nil
	}
	return exp
}

func (p *Parser) parseListLiteral() ast.Expr {
	list := &ast.List{Pos: p.pos0()}
	p.nextToken()
	if p.curTokenIs(lexer.RBRACKET) {
		p.nextToken()
		return list
	}
	for {
		item := p.parseExpression(LOWEST)
		if item == nil {
			return nil
		}
		list.Items = append(list.Items, item)
		if !p.curTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expect(lexer.RBRACKET, "]") {
		return nil
	}
	return list
}

func (p *Parser) parseStar() ast.Expr {
	s := &ast.Star{Pos: p.pos0()}
	p.nextToken()
	return s
}

func (p *Parser) parseInfixExpression(left ast.Expr) ast.Expr {
	tok := p.curToken
	op := tok.Literal
	prec := p.curPrecedence()
	p.nextToken()
	if op == "^" {
		// right associative
		prec--
	}
	right := p.parseExpression(prec)
	if right == nil {
		return nil
	}
	return &ast.Binary{Pos: ast.Pos{Line: tok.Line, Column: tok.Column}, Operator: op, Left: left, Right: right}
}

func (p *Parser) parseIndexExpression(left ast.Expr) ast.Expr {
	pos := p.pos0()
	p.nextToken()
	index := p.parseExpression(LOWEST)
	if index == nil {
		return nil
	}
	if !p.expect(lexer.RBRACKET, "]") {
		return nil
	}
	return &ast.Index{Pos: pos, Left: left, Index: index}
}

// parseKeywordInfix handles AND, OR, IN, NOT IN, LIKE, NOT LIKE and IS [NOT] NULL.
func (p *Parser) parseKeywordInfix(left ast.Expr) ast.Expr {
	tok := p.curToken
	pos := ast.Pos{Line: tok.Line, Column: tok.Column}
	kw := strings.ToUpper(tok.Literal)
	prec := p.curPrecedence()
	p.nextToken()

	switch kw {
	case "IS":
		negate := false
		if p.curKeyword("NOT") {
			negate = true
			p.nextToken()
		}
		if !p.curKeyword("NULL", "NA", "NAN") {
			p.expectedError("NULL")
			return nil
		}
		p.nextToken()
		return &ast.IsNull{Pos: pos, Operand: left, Negate: negate}
	case "NOT":
		op := strings.ToUpper(p.curToken.Literal) // IN or LIKE
		p.nextToken()
		right := p.parseExpression(prec)
		if right == nil {
			return nil
		}
		return &ast.Unary{Pos: pos, Operator: "NOT", Operand: &ast.Binary{Pos: pos, Operator: op, Left: left, Right: right}}
	default:
		right := p.parseExpression(prec)
		if right == nil {
			return nil
		}
		return &ast.Binary{Pos: pos, Operator: kw, Left: left, Right: right}
	}
}

// ParseTemplate splits a string into literal text and $placeholders.
// $$ is a literal dollar sign. It reports whether any placeholder was found;
// without one the result is a single text part.
func ParseTemplate(s string) ([]ast.TemplatePart, bool) {
	var parts []ast.TemplatePart
	var text strings.Builder
	templated := false

	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, ast.TemplatePart{Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 >= len(s) {
			text.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch {
		case next == '$':
			text.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end <= 0 {
				text.WriteByte(c)
				continue
			}
			flush()
			parts = append(parts, ast.TemplatePart{Placeholder: s[i+2 : i+2+end]})
			templated = true
			i += end + 2
		case isNameByte(next):
			j := i + 1
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			flush()
			parts = append(parts, ast.TemplatePart{Placeholder: s[i+1 : j]})
			templated = true
			i = j - 1
		default:
			text.WriteByte(c)
		}
	}
	flush()

	if !templated {
		if len(parts) == 0 {
			parts = []ast.TemplatePart{{}}
		}
		return parts, false
	}
	return parts, true
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
