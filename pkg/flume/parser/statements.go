package parser

import (
	"strings"

	"github.com/sambeau/flume/pkg/flume/ast"
	"github.com/sambeau/flume/pkg/flume/lexer"
)

func (p *Parser) registerStatements() {
	p.statementParseFns = map[string]statementParseFn{
		"SELECT":    p.parseSelect,
		"FILTER":    p.parseFilter,
		"PRINT":     p.parsePrint,
		"SORT":      p.parseSort,
		"TAKE":      p.parseTake,
		"REVERSE":   p.parseOptionalSource,
		"PUT":       p.parseOptionalSource,
		"DISTINCT":  p.parseDistinct,
		"DROP":      p.parseDrop,
		"RENAME":    p.parseRename,
		"TRANSPOSE": p.parseTranspose,
		"EXPLODE":   p.parseExplode,
		"JOIN":      p.parseJoin,
		"INNER":     p.parseJoinKind,
		"LEFT":      p.parseJoinKind,
		"RIGHT":     p.parseJoinKind,
		"OUTER":     p.parseJoinKind,
		"CROSS":     p.parseCross,
		"UNION":     p.parseUnion,
		"CREATE":    p.parseCreate,
		"READ":      p.parseRead,
		"WRITE":     p.parseWrite,
		"CONNECT":   p.parseConnect,
		"QUERY":     p.parseQuery,
		"RUN":       p.parseRun,
		"SH":        p.parseShell,
		"HELP":      p.parseHelp,
		"QUIT":      func(*ast.Statement) {},
	}
}

// parseGenericStatement parses an unknown command as a comma-separated
// argument list so the dispatcher can report it.
func (p *Parser) parseGenericStatement(stmt *ast.Statement) {
	for !p.atStatementEnd() && !p.curKeyword("INTO", "FROM") && !p.failed() {
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return
		}
		stmt.Args = append(stmt.Args, arg)
		if !p.curTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
	}
	p.parseFrom(stmt)
}

// parseInto parses an optional trailing INTO name.
func (p *Parser) parseInto(stmt *ast.Statement) {
	if !p.curKeyword("INTO") {
		return
	}
	p.nextToken()
	name, ok := p.parseName("a table name after INTO")
	if !ok {
		return
	}
	if stmt.Command == "CREATE" {
		p.addStructuredError("PARSE-0002", p.curToken, map[string]any{"Token": "INTO"})
		return
	}
	stmt.Into = name
}

// parseName parses an identifier or quoted identifier.
func (p *Parser) parseName(what string) (string, bool) {
	if p.curTokenIs(lexer.QIDENT) || (p.curTokenIs(lexer.IDENT) && !reserved[strings.ToUpper(p.curToken.Literal)]) {
		name := p.curToken.Literal
		p.nextToken()
		return name, true
	}
	p.expectedError(what)
	return "", false
}

// startsTableRef reports whether the current token can begin a table
// reference rather than a clause keyword.
func (p *Parser) startsTableRef() bool {
	switch p.curToken.Type {
	case lexer.QIDENT, lexer.LPAREN:
		return true
	case lexer.IDENT:
		return !reserved[strings.ToUpper(p.curToken.Literal)] && !p.curKeyword("KEEP", "LAST", "FIRST")
	}
	return false
}

// parseTableRef parses a binding name or inline data: (AS CSV "...").
func (p *Parser) parseTableRef() (ast.TableRef, bool) {
	pos := p.pos0()
	if p.curTokenIs(lexer.LPAREN) {
		p.nextToken()
		if !p.expectKeyword("AS") {
			return ast.TableRef{}, false
		}
		format, ok := p.parseFormat()
		if !ok {
			return ast.TableRef{}, false
		}
		text, ok := p.parseText()
		if !ok {
			return ast.TableRef{}, false
		}
		// a heredoc consumes its line; allow the closing paren on the next
		for p.curTokenIs(lexer.NEWLINE) {
			p.nextToken()
		}
		if !p.expect(lexer.RPAREN, ")") {
			return ast.TableRef{}, false
		}
		return ast.TableRef{Pos: pos, Inline: &ast.Inline{Format: format, Text: text}}, true
	}
	name, ok := p.parseName("a table name")
	if !ok {
		return ast.TableRef{}, false
	}
	return ast.TableRef{Pos: pos, Name: name}, true
}

// parseText parses a string literal or heredoc block.
func (p *Parser) parseText() (string, bool) {
	switch p.curToken.Type {
	case lexer.STRING, lexer.RAWSTRING, lexer.HEREDOC:
		text := p.curToken.Literal
		p.nextToken()
		return text, true
	}
	p.expectedError("a string or << block")
	return "", false
}

// parseFrom parses an optional FROM table clause into Sources[0].
func (p *Parser) parseFrom(stmt *ast.Statement) {
	if !p.curKeyword("FROM") {
		stmt.Sources = []ast.TableRef{ast.Implicit(stmt.Pos)}
		return
	}
	p.nextToken()
	ref, ok := p.parseTableRef()
	if !ok {
		return
	}
	stmt.Sources = []ast.TableRef{ref}
}

// parseLeadingSource parses an optional table reference that directly
// follows the command word.
func (p *Parser) parseLeadingSource(stmt *ast.Statement) {
	if p.startsTableRef() {
		ref, ok := p.parseTableRef()
		if !ok {
			return
		}
		stmt.Sources = []ast.TableRef{ref}
		return
	}
	stmt.Sources = []ast.TableRef{ast.Implicit(stmt.Pos)}
}

func (p *Parser) parseColumnRef() *ast.ColumnRef {
	pos := p.pos0()
	switch p.curToken.Type {
	case lexer.COLINDEX:
		if ref, ok := p.parseColumnIndex().(*ast.ColumnRef); ok {
			return ref
		}
		return nil
	case lexer.IDENT, lexer.QIDENT:
		name, ok := p.parseName("a column name")
		if !ok {
			return nil
		}
		return &ast.ColumnRef{Pos: pos, Name: name, Index: -1}
	}
	p.expectedError("a column name")
	return nil
}

func (p *Parser) parseColumnList() []*ast.ColumnRef {
	var cols []*ast.ColumnRef
	for {
		col := p.parseColumnRef()
		if col == nil {
			return nil
		}
		cols = append(cols, col)
		if !p.curTokenIs(lexer.COMMA) {
			return cols
		}
		p.nextToken()
	}
}

// parseTerms parses `term [AS name], ...`.
func (p *Parser) parseTerms(stmt *ast.Statement) {
	for {
		expr := p.parseExpression(LOWEST)
		if expr == nil {
			return
		}
		term := ast.Term{Expr: expr}
		if p.curKeyword("AS") {
			p.nextToken()
			name, ok := p.parseName("a column name after AS")
			if !ok {
				return
			}
			term.Alias = name
		}
		stmt.Terms = append(stmt.Terms, term)
		if !p.curTokenIs(lexer.COMMA) {
			return
		}
		p.nextToken()
	}
}

// ============================================================================
// Statements
// ============================================================================

// SELECT (* | term [AS name]), ... [FROM table]
func (p *Parser) parseSelect(stmt *ast.Statement) {
	p.parseTerms(stmt)
	if p.failed() {
		return
	}
	p.parseFrom(stmt)
}

// FILTER term [FROM table]
func (p *Parser) parseFilter(stmt *ast.Statement) {
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return
	}
	stmt.Terms = []ast.Term{{Expr: expr}}
	p.parseFrom(stmt)
}

// PRINT term, ... [FROM table]
func (p *Parser) parsePrint(stmt *ast.Statement) {
	p.parseTerms(stmt)
	if p.failed() {
		return
	}
	p.parseFrom(stmt)
}

// SORT [table] [BY column [ASC|DESC], ...]
func (p *Parser) parseSort(stmt *ast.Statement) {
	p.parseLeadingSource(stmt)
	if p.failed() || !p.curKeyword("BY") {
		return
	}
	p.nextToken()
	for {
		col := p.parseColumnRef()
		if col == nil {
			return
		}
		key := ast.SortKey{Column: col}
		if p.curKeyword("DESC") {
			key.Desc = true
			p.nextToken()
		} else if p.curKeyword("ASC") {
			p.nextToken()
		}
		stmt.Order = append(stmt.Order, key)
		if !p.curTokenIs(lexer.COMMA) {
			return
		}
		p.nextToken()
	}
}

// TAKE [LAST] n [FROM table]
func (p *Parser) parseTake(stmt *ast.Statement) {
	if p.curKeyword("LAST") {
		stmt.Last = true
		p.nextToken()
	} else if p.curKeyword("FIRST") {
		p.nextToken()
	}
	n := p.parseExpression(LOWEST)
	if n == nil {
		return
	}
	stmt.Args = []ast.Expr{n}
	p.parseFrom(stmt)
}

// REVERSE [table], PUT [table]
func (p *Parser) parseOptionalSource(stmt *ast.Statement) {
	p.parseLeadingSource(stmt)
}

// DISTINCT [table] [BY (* | column, ...)] [KEEP FIRST|LAST]
func (p *Parser) parseDistinct(stmt *ast.Statement) {
	p.parseLeadingSource(stmt)
	if p.failed() {
		return
	}
	if p.curKeyword("BY") {
		p.nextToken()
		if p.curTokenIs(lexer.ASTERISK) {
			p.nextToken()
		} else if stmt.Columns = p.parseColumnList(); stmt.Columns == nil {
			return
		}
	}
	if p.curKeyword("KEEP") {
		p.nextToken()
		switch {
		case p.curKeyword("FIRST"):
		case p.curKeyword("LAST"):
			stmt.Last = true
		default:
			p.expectedError("FIRST or LAST")
			return
		}
		p.nextToken()
	}
}

// DROP column, ... [FROM table]
func (p *Parser) parseDrop(stmt *ast.Statement) {
	if stmt.Columns = p.parseColumnList(); stmt.Columns == nil {
		return
	}
	p.parseFrom(stmt)
}

// RENAME column TO column [FROM table]
func (p *Parser) parseRename(stmt *ast.Statement) {
	from := p.parseColumnRef()
	if from == nil || !p.expectKeyword("TO") {
		return
	}
	to := p.parseColumnRef()
	if to == nil {
		return
	}
	stmt.Columns = []*ast.ColumnRef{from, to}
	p.parseFrom(stmt)
}

// TRANSPOSE [table] [BY column]
func (p *Parser) parseTranspose(stmt *ast.Statement) {
	p.parseLeadingSource(stmt)
	if p.failed() || !p.curKeyword("BY") {
		return
	}
	p.nextToken()
	if col := p.parseColumnRef(); col != nil {
		stmt.Columns = []*ast.ColumnRef{col}
	}
}

// EXPLODE column [FROM table]
func (p *Parser) parseExplode(stmt *ast.Statement) {
	col := p.parseColumnRef()
	if col == nil {
		return
	}
	stmt.Columns = []*ast.ColumnRef{col}
	p.parseFrom(stmt)
}

// INNER|LEFT|RIGHT|OUTER JOIN ...
func (p *Parser) parseJoinKind(stmt *ast.Statement) {
	how := stmt.Command
	if !p.expectKeyword("JOIN") {
		return
	}
	stmt.Command = "JOIN"
	stmt.How = how
	p.parseJoinBody(stmt)
}

// JOIN [left] WITH right [ON column, ...]
func (p *Parser) parseJoin(stmt *ast.Statement) {
	stmt.How = "INNER"
	p.parseJoinBody(stmt)
}

func (p *Parser) parseJoinBody(stmt *ast.Statement) {
	p.parseWithSources(stmt, false)
	if p.failed() || !p.curKeyword("ON") {
		return
	}
	p.nextToken()
	stmt.Columns = p.parseColumnList()
}

// CROSS [JOIN] [left] WITH right
func (p *Parser) parseCross(stmt *ast.Statement) {
	if p.curKeyword("JOIN") {
		p.nextToken()
	}
	p.parseWithSources(stmt, false)
}

// UNION [first] WITH table, ...
func (p *Parser) parseUnion(stmt *ast.Statement) {
	p.parseWithSources(stmt, true)
}

// parseWithSources parses `[left] WITH right[, more...]`.
func (p *Parser) parseWithSources(stmt *ast.Statement, many bool) {
	p.parseLeadingSource(stmt)
	if p.failed() || !p.expectKeyword("WITH") {
		return
	}
	for {
		ref, ok := p.parseTableRef()
		if !ok {
			return
		}
		stmt.Sources = append(stmt.Sources, ref)
		if !many || !p.curTokenIs(lexer.COMMA) {
			return
		}
		p.nextToken()
	}
}

// CREATE name AS format (string | << END ... END)
func (p *Parser) parseCreate(stmt *ast.Statement) {
	pos := p.pos0()
	name, ok := p.parseName("a table name")
	if !ok || !p.expectKeyword("AS") {
		return
	}
	format, ok := p.parseFormat()
	if !ok {
		return
	}
	text, ok := p.parseText()
	if !ok {
		return
	}
	stmt.Into = name
	stmt.Sources = []ast.TableRef{{Pos: pos, Inline: &ast.Inline{Format: format, Text: text}}}
}

// READ location [FROM table] [AS format]
func (p *Parser) parseRead(stmt *ast.Statement) {
	loc := p.parseExpression(LOWEST)
	if loc == nil {
		return
	}
	stmt.Args = []ast.Expr{loc}
	p.parseFromAndFormat(stmt)
}

// SH command [FROM table] [AS format]
func (p *Parser) parseShell(stmt *ast.Statement) {
	p.parseRead(stmt)
}

func (p *Parser) parseFromAndFormat(stmt *ast.Statement) {
	stmt.Sources = []ast.TableRef{ast.Implicit(stmt.Pos)}
	for !p.failed() {
		switch {
		case p.curKeyword("FROM"):
			p.parseFrom(stmt)
		case p.curKeyword("AS"):
			p.nextToken()
			format, ok := p.parseFormat()
			if !ok {
				return
			}
			stmt.Format = &format
		default:
			return
		}
	}
}

// WRITE [table] [TO location] [AS format]
func (p *Parser) parseWrite(stmt *ast.Statement) {
	p.parseLeadingSource(stmt)
	for !p.failed() {
		switch {
		case p.curKeyword("TO"):
			p.nextToken()
			loc := p.parseExpression(LOWEST)
			if loc == nil {
				return
			}
			stmt.Args = []ast.Expr{loc}
		case p.curKeyword("AS"):
			p.nextToken()
			format, ok := p.parseFormat()
			if !ok {
				return
			}
			stmt.Format = &format
		default:
			return
		}
	}
}

// CONNECT name [TO url] [AS kind]
func (p *Parser) parseConnect(stmt *ast.Statement) {
	name, ok := p.parseName("a source name")
	if !ok {
		return
	}
	stmt.Name = name
	stmt.Sources = []ast.TableRef{ast.Implicit(stmt.Pos)}
	if p.curKeyword("TO") {
		p.nextToken()
		url := p.parseExpression(LOWEST)
		if url == nil {
			return
		}
		stmt.Args = []ast.Expr{url}
	}
	if p.curKeyword("AS") {
		p.nextToken()
		kind, ok := p.parseName("a source kind")
		if !ok {
			return
		}
		stmt.Kind = strings.ToUpper(kind)
	}
}

// QUERY (term | *) FROM source[.table]
func (p *Parser) parseQuery(stmt *ast.Statement) {
	term := p.parseExpression(LOWEST)
	if term == nil || !p.expectKeyword("FROM") {
		return
	}
	stmt.Args = []ast.Expr{term}
	source, ok := p.parseName("a source name")
	if !ok {
		return
	}
	stmt.Target = &ast.Target{Source: source}
	if p.curTokenIs(lexer.DOT) {
		p.nextToken()
		tbl, ok := p.parseName("a table name")
		if !ok {
			return
		}
		stmt.Target.Table = tbl
	}
	stmt.Sources = []ast.TableRef{ast.Implicit(stmt.Pos)}
}

// RUN location [, arg, ...] [FROM table]
func (p *Parser) parseRun(stmt *ast.Statement) {
	for {
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return
		}
		stmt.Args = append(stmt.Args, arg)
		if !p.curTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
	}
	p.parseFrom(stmt)
}

// HELP [command]
func (p *Parser) parseHelp(stmt *ast.Statement) {
	if p.curTokenIs(lexer.IDENT) {
		stmt.Topic = strings.ToUpper(p.curToken.Literal)
		p.nextToken()
	}
}

// ============================================================================
// Formats
// ============================================================================

var formatNames = map[string]string{
	"CSV":      "CSV",
	"TSV":      "TSV",
	"JSON":     "JSON",
	"JSONL":    "JSONL",
	"NDJSON":   "JSONL",
	"YAML":     "YAML",
	"YML":      "YAML",
	"MARKDOWN": "MARKDOWN",
	"MD":       "MARKDOWN",
	"HTML":     "HTML",
	"TEXT":     "TEXT",
	"TXT":      "TEXT",
}

// parseFormat parses a format name and its options:
// [WITH|NO] HEADER, [FIELD] DELIMITER s, LINE DELIMITER s, QUOTE s, TAB.
func (p *Parser) parseFormat() (ast.Format, bool) {
	tok := p.curToken
	if tok.Type != lexer.IDENT {
		p.expectedError("a format")
		return ast.Format{}, false
	}
	kind, ok := formatNames[strings.ToUpper(tok.Literal)]
	if !ok {
		p.addStructuredError("PARSE-0006", tok, map[string]any{"Format": tok.Literal})
		return ast.Format{}, false
	}
	p.nextToken()
	format := ast.Format{Kind: kind}
	if kind == "JSON" && p.curKeyword("LINES") {
		format.Kind = "JSONL"
		p.nextToken()
	}

	for !p.failed() {
		switch {
		case p.curKeyword("WITH") && p.peek(1).Is("HEADER"):
			p.nextToken()
			p.nextToken()
		case p.curKeyword("NO") && p.peek(1).Is("HEADER"):
			format.NoHeader = true
			p.nextToken()
			p.nextToken()
		case p.curKeyword("TAB"):
			format.Delimiter = "\t"
			p.nextToken()
		case p.curKeyword("FIELD") || p.curKeyword("DELIMITER"):
			if p.curKeyword("FIELD") {
				p.nextToken()
			}
			if !p.expectKeyword("DELIMITER") {
				return format, false
			}
			s, ok := p.parseText()
			if !ok {
				return format, false
			}
			format.Delimiter = s
		case p.curKeyword("LINE"):
			p.nextToken()
			if !p.expectKeyword("DELIMITER") {
				return format, false
			}
			s, ok := p.parseText()
			if !ok {
				return format, false
			}
			format.LineDelimiter = s
		case p.curKeyword("QUOTE"):
			p.nextToken()
			s, ok := p.parseText()
			if !ok {
				return format, false
			}
			format.Quote = s
		default:
			return format, true
		}
	}
	return format, false
}
