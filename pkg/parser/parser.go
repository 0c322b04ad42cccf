// Package parser implements tug's recursive-descent, precedence-climbing
// parser.
//
// Parser Architecture:
//
// The parser holds a two-token lookahead window (cur, peek) over the
// lexer's token stream. Statements parse a leading expression and then
// look at cur for ":=" or "="; peek is consulted where one token is not
// enough, e.g. to tell a "name = expr" table entry from a positional one.
//
// Operator precedence, low to high (see spec §4.2):
//
//	or
//	and
//	comparison   > < >= <= == !=
//	additive     + -
//	multiplicative * / %
//	unary prefix + - not
//	postfix      ( call   [ index   . field
//	primary
//
// There is no error recovery: the first parse error aborts with a
// *ParseError carrying the offending line.
package parser

import (
	"fmt"
	"strconv"

	"github.com/huywallz/tug/pkg/ast"
	"github.com/huywallz/tug/pkg/lexer"
)

// ParseError is returned by Parse on the first syntax error encountered.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d: %s", e.Line, e.Message)
}

// Parser turns a token stream into a *ast.Program.
type Parser struct {
	l    *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token

	loopDepth int
}

// New creates a Parser over src.
func New(src string) *Parser {
	p := &Parser{l: lexer.New(src)}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) errf(format string, args ...interface{}) *ParseError {
	return &ParseError{Line: p.cur.Line, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	if p.cur.Type != tt {
		return lexer.Token{}, p.errf("expected %s", what)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

// Parse parses the whole token stream into a Program. The first error
// aborts parsing immediately (no error recovery).
func Parse(src string) (*ast.Program, error) {
	p := New(src)
	return p.parseProgram()
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{Base: ast.NewBase(p.cur.Line)}
	for p.cur.Type != lexer.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

// parseBlock parses statements until one of the given terminator keywords
// is seen (without consuming the terminator).
func (p *Parser) parseBlock(terminators ...lexer.TokenType) ([]ast.Stmt, error) {
	var stmts []ast.Stmt
	for !p.atAny(terminators) {
		if p.cur.Type == lexer.EOF {
			return nil, p.errf("unexpected end of input")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) atAny(types []lexer.TokenType) bool {
	for _, t := range types {
		if p.cur.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch p.cur.Type {
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.FUNC:
		return p.parseFuncDecl()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.BREAK:
		if p.loopDepth == 0 {
			return nil, p.errf("'break' outside loop")
		}
		line := p.cur.Line
		p.advance()
		return &ast.BreakStmt{Base: ast.NewBase(line)}, nil
	case lexer.CONTINUE:
		if p.loopDepth == 0 {
			return nil, p.errf("'continue' outside loop")
		}
		line := p.cur.Line
		p.advance()
		return &ast.ContinueStmt{Base: ast.NewBase(line)}, nil
	default:
		return p.parseSimpleStatement()
	}
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	line := p.cur.Line
	stmt := &ast.IfStmt{Base: ast.NewBase(line)}
	p.advance() // if
	for {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.THEN, "'then'"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock(lexer.ELSEIF, lexer.ELSE, lexer.END)
		if err != nil {
			return nil, err
		}
		stmt.Clauses = append(stmt.Clauses, ast.IfClause{Cond: cond, Body: body})
		if p.cur.Type == lexer.ELSEIF {
			p.advance()
			continue
		}
		break
	}
	if p.cur.Type == lexer.ELSE {
		p.advance()
		elseBody, err := p.parseBlock(lexer.END)
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBody
	}
	if _, err := p.expect(lexer.END, "'end'"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	line := p.cur.Line
	p.advance() // while
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.DO, "'do'"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.parseBlock(lexer.END)
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.END, "'end'"); err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Base: ast.NewBase(line), Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	line := p.cur.Line
	p.advance() // for
	var names []string
	for {
		name, err := p.expect(lexer.IDENT, "name")
		if err != nil {
			return nil, err
		}
		names = append(names, name.Literal)
		if p.cur.Type == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.IN, "'in'"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.DO, "'do'"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.parseBlock(lexer.END)
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.END, "'end'"); err != nil {
		return nil, err
	}
	return &ast.ForStmt{Base: ast.NewBase(line), Names: names, Iter: iter, Body: body}, nil
}

func (p *Parser) parseFuncDecl() (ast.Stmt, error) {
	line := p.cur.Line
	p.advance() // func
	first, err := p.expect(lexer.IDENT, "function name")
	if err != nil {
		return nil, err
	}
	path := []string{first.Literal}
	for p.cur.Type == lexer.DOT {
		p.advance()
		part, err := p.expect(lexer.IDENT, "name after '.'")
		if err != nil {
			return nil, err
		}
		path = append(path, part.Literal)
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	saved := p.loopDepth
	p.loopDepth = 0
	body, err := p.parseBlock(lexer.END)
	p.loopDepth = saved
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.END, "'end'"); err != nil {
		return nil, err
	}
	return &ast.FuncDeclStmt{Base: ast.NewBase(line), Path: path, Params: params, Body: body}, nil
}

func (p *Parser) parseParamList() ([]string, error) {
	if _, err := p.expect(lexer.LPAREN, "'('"); err != nil {
		return nil, err
	}
	var params []string
	for p.cur.Type != lexer.RPAREN {
		name, err := p.expect(lexer.IDENT, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, name.Literal)
		if p.cur.Type == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RPAREN, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	line := p.cur.Line
	p.advance() // return
	stmt := &ast.ReturnStmt{Base: ast.NewBase(line)}
	if p.startsExpr() {
		for {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.Values = append(stmt.Values, v)
			if p.cur.Type == lexer.COMMA {
				p.advance()
				continue
			}
			break
		}
	}
	return stmt, nil
}

// startsExpr reports whether cur could begin an expression, used to
// decide whether a bare "return" has a value list.
func (p *Parser) startsExpr() bool {
	switch p.cur.Type {
	case lexer.NUMBER, lexer.STRING, lexer.IDENT, lexer.TRUE, lexer.FALSE,
		lexer.NIL, lexer.LPAREN, lexer.LBRACE, lexer.LBRACKET, lexer.FUNC,
		lexer.MINUS, lexer.PLUS, lexer.NOT:
		return true
	default:
		return false
	}
}

// parseSimpleStatement parses an assignment or a bare expression
// statement: a comma-separated target list followed by ":=" or "=" and a
// comma-separated value list, or just an expression.
func (p *Parser) parseSimpleStatement() (ast.Stmt, error) {
	line := p.cur.Line
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.cur.Type != lexer.ASSIGN && p.cur.Type != lexer.DECLARE && p.cur.Type != lexer.COMMA {
		return &ast.ExprStmt{Base: ast.NewBase(line), X: first}, nil
	}

	targets := []ast.Expr{first}
	for p.cur.Type == lexer.COMMA {
		p.advance()
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		targets = append(targets, next)
	}

	declare := p.cur.Type == lexer.DECLARE
	if p.cur.Type != lexer.ASSIGN && p.cur.Type != lexer.DECLARE {
		return nil, p.errf("expected '=' or ':=' after target list")
	}
	p.advance()

	astTargets, err := toAssignTargets(targets, declare)
	if err != nil {
		return nil, err
	}

	var values []ast.Expr
	for {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.cur.Type == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}

	return &ast.AssignStmt{Base: ast.NewBase(line), Declare: declare, Targets: astTargets, Values: values}, nil
}

func toAssignTargets(exprs []ast.Expr, declare bool) ([]ast.AssignTarget, error) {
	out := make([]ast.AssignTarget, 0, len(exprs))
	for _, e := range exprs {
		switch t := e.(type) {
		case *ast.Identifier:
			out = append(out, ast.AssignTarget{Name: t.Name})
		case *ast.IndexExpr:
			if declare {
				return nil, &ParseError{Line: e.Line(), Message: "invalid assignment target"}
			}
			out = append(out, ast.AssignTarget{Index: t})
		case *ast.FieldExpr:
			if declare {
				return nil, &ParseError{Line: e.Line(), Message: "invalid assignment target"}
			}
			out = append(out, ast.AssignTarget{Index: &ast.IndexExpr{
				Base:     ast.NewBase(t.Line()),
				Receiver: t.Receiver,
				Index:    &ast.StringLit{Base: ast.NewBase(t.Line()), Value: []byte(t.Name)},
			}})
		default:
			return nil, &ParseError{Line: e.Line(), Message: "invalid assignment target"}
		}
	}
	return out, nil
}

// ---- expressions, precedence climbing ----

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.OR {
		line := p.cur.Line
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.OrExpr{Base: ast.NewBase(line), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.AND {
		line := p.cur.Line
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.AndExpr{Base: ast.NewBase(line), Left: left, Right: right}
	}
	return left, nil
}

var comparisonOps = map[lexer.TokenType]string{
	lexer.GT: ">", lexer.LT: "<", lexer.GE: ">=", lexer.LE: "<=",
	lexer.EQ: "==", lexer.NE: "!=",
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := comparisonOps[p.cur.Type]
		if !ok {
			return left, nil
		}
		line := p.cur.Line
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(line), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.PLUS || p.cur.Type == lexer.MINUS {
		op := p.cur.Literal
		line := p.cur.Line
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(line), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.STAR || p.cur.Type == lexer.SLASH || p.cur.Type == lexer.PERCENT {
		op := p.cur.Literal
		line := p.cur.Line
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(line), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur.Type {
	case lexer.PLUS, lexer.MINUS, lexer.NOT:
		op := p.cur.Literal
		if p.cur.Type == lexer.NOT {
			op = "not"
		}
		line := p.cur.Line
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Base: ast.NewBase(line), Op: op, Operand: operand}, nil
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case lexer.LPAREN:
			line := p.cur.Line
			p.advance()
			var args []ast.Expr
			for p.cur.Type != lexer.RPAREN {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.cur.Type == lexer.COMMA {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(lexer.RPAREN, "')'"); err != nil {
				return nil, err
			}
			expr = &ast.CallExpr{Base: ast.NewBase(line), Callee: expr, Args: args}
		case lexer.LBRACKET:
			line := p.cur.Line
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBRACKET, "']'"); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Base: ast.NewBase(line), Receiver: expr, Index: idx}
		case lexer.DOT:
			line := p.cur.Line
			p.advance()
			name, err := p.expect(lexer.IDENT, "field name")
			if err != nil {
				return nil, err
			}
			expr = &ast.FieldExpr{Base: ast.NewBase(line), Receiver: expr, Name: name.Literal}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	line := p.cur.Line
	switch p.cur.Type {
	case lexer.NUMBER:
		v, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.errf("malformed number")
		}
		p.advance()
		return &ast.NumberLit{Base: ast.NewBase(line), Value: v}, nil
	case lexer.STRING:
		s := p.cur.Literal
		p.advance()
		return &ast.StringLit{Base: ast.NewBase(line), Value: []byte(s)}, nil
	case lexer.TRUE:
		p.advance()
		return &ast.BoolLit{Base: ast.NewBase(line), Value: true}, nil
	case lexer.FALSE:
		p.advance()
		return &ast.BoolLit{Base: ast.NewBase(line), Value: false}, nil
	case lexer.NIL:
		p.advance()
		return &ast.NilLit{Base: ast.NewBase(line)}, nil
	case lexer.IDENT:
		name := p.cur.Literal
		p.advance()
		return &ast.Identifier{Base: ast.NewBase(line), Name: name}, nil
	case lexer.LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.LBRACE:
		return p.parseTableLit()
	case lexer.LBRACKET:
		return p.parseListLit()
	case lexer.FUNC:
		return p.parseFuncLit()
	default:
		return nil, p.errf("unexpected token %s", p.cur.Type)
	}
}

func (p *Parser) parseTableLit() (ast.Expr, error) {
	line := p.cur.Line
	p.advance() // {
	lit := &ast.TableLit{Base: ast.NewBase(line)}
	for p.cur.Type != lexer.RBRACE {
		entry, err := p.parseTableEntry()
		if err != nil {
			return nil, err
		}
		lit.Entries = append(lit.Entries, entry)
		if p.cur.Type == lexer.COMMA {
			p.advance()
			if p.cur.Type == lexer.RBRACE {
				break // trailing comma
			}
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseTableEntry handles the three entry shapes: "[expr] = expr",
// "name = expr", and a bare "expr" (positional).
func (p *Parser) parseTableEntry() (ast.TableEntry, error) {
	if p.cur.Type == lexer.LBRACKET {
		p.advance()
		key, err := p.parseExpr()
		if err != nil {
			return ast.TableEntry{}, err
		}
		if _, err := p.expect(lexer.RBRACKET, "']'"); err != nil {
			return ast.TableEntry{}, err
		}
		if _, err := p.expect(lexer.ASSIGN, "'='"); err != nil {
			return ast.TableEntry{}, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return ast.TableEntry{}, err
		}
		return ast.TableEntry{Key: key, Value: val}, nil
	}
	if p.cur.Type == lexer.IDENT && p.peek.Type == lexer.ASSIGN {
		name := p.cur.Literal
		p.advance()
		p.advance() // =
		val, err := p.parseExpr()
		if err != nil {
			return ast.TableEntry{}, err
		}
		return ast.TableEntry{Name: name, Value: val}, nil
	}
	val, err := p.parseExpr()
	if err != nil {
		return ast.TableEntry{}, err
	}
	return ast.TableEntry{Value: val}, nil
}

func (p *Parser) parseListLit() (ast.Expr, error) {
	line := p.cur.Line
	p.advance() // [
	lit := &ast.ListLit{Base: ast.NewBase(line)}
	for p.cur.Type != lexer.RBRACKET {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, e)
		if p.cur.Type == lexer.COMMA {
			p.advance()
			if p.cur.Type == lexer.RBRACKET {
				break
			}
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACKET, "']'"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseFuncLit() (ast.Expr, error) {
	line := p.cur.Line
	p.advance() // func
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	saved := p.loopDepth
	p.loopDepth = 0
	body, err := p.parseBlock(lexer.END)
	p.loopDepth = saved
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.END, "'end'"); err != nil {
		return nil, err
	}
	return &ast.FuncLit{Base: ast.NewBase(line), Params: params, Body: body}, nil
}
