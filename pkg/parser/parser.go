package parser

import (
	"errors"
	"strconv"
	"strings"

	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
}

// bailout unwinds the recursive descent on the first syntax error.
type bailout struct{ err error }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, cfg *config.Config) *Parser {
	p := &Parser{tokens: tokens, pos: 0, cfg: cfg}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse parses a translation unit into a Block node of external
// declarations and function definitions.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()
	if len(p.tokens) == 0 {
		return nil, errors.New("empty token stream")
	}
	tok := p.current
	var decls []*ast.Node
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		decls = append(decls, p.parseExternalDecl())
	}
	return ast.NewBlock(tok, decls), nil
}

// ParseExpr parses a single expression; used by tests and tooling.
func (p *Parser) ParseExpr() (expr *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			expr, err = nil, b.err
		}
	}()
	expr = p.parseExpr()
	p.expect(token.EOF, "unexpected token after expression")
	return expr, nil
}

func (p *Parser) errorf(tok token.Token, format string, args ...interface{}) {
	panic(bailout{util.NewError(util.ErrSyntax, tok, format, args...)})
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	p.errorf(p.current, "%s (found '%s')", message, describe(p.current))
}

func describe(tok token.Token) string {
	if tok.Value != "" {
		return tok.Value
	}
	return tok.Type.String()
}

func isLValue(node *ast.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case ast.Ident, ast.Indirection, ast.Subscript, ast.MemberAccess:
		return true
	default:
		return false
	}
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 13
	case token.Plus, token.Minus:
		return 12
	case token.Shl, token.Shr:
		return 11
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 10
	case token.EqEq, token.Neq:
		return 9
	case token.And:
		return 8
	case token.Xor:
		return 7
	case token.Or:
		return 6
	case token.AndAnd:
		return 5
	case token.OrOr:
		return 4
	default:
		return -1
	}
}

func (p *Parser) parseNumber(tok token.Token) *ast.Node {
	spelling := tok.Value
	digits := strings.TrimRight(spelling, "uUlL")
	suffix := strings.ToLower(spelling[len(digits):])
	unsigned := strings.Contains(suffix, "u")
	long := strings.Contains(suffix, "l")
	if strings.Count(suffix, "u") > 1 || strings.Count(suffix, "l") > 2 {
		p.errorf(tok, "invalid suffix '%s' on integer constant", spelling[len(digits):])
	}
	if len(digits) > 1 && digits[0] == '0' && digits[1] >= '0' && digits[1] <= '9' {
		// C octal; Go wants the 0o prefix to reject 8 and 9
		digits = "0o" + digits[1:]
	}
	val, err := strconv.ParseUint(digits, 0, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			util.Warn(p.cfg, config.WarnOverflow, tok, "integer constant is too large for its type")
		} else {
			p.errorf(tok, "invalid integer constant '%s'", spelling)
		}
	}
	return ast.NewNumber(tok, int64(val), unsigned, long)
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		return p.parseNumber(tok)
	case p.match(token.CharLit):
		val, _ := strconv.ParseInt(tok.Value, 10, 64)
		return ast.NewNumber(tok, val, false, false)
	case p.match(token.String):
		var sb strings.Builder
		sb.WriteString(tok.Value)
		for p.check(token.String) {
			sb.WriteString(p.current.Value)
			p.advance()
		}
		return ast.NewString(tok, sb.String())
	case p.match(token.Ident):
		return ast.NewIdent(tok, tok.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		return expr
	}
	p.errorf(tok, "expected an expression (found '%s')", describe(tok))
	return nil
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.LParen):
			var args []*ast.Node
			if !p.check(token.RParen) {
				for {
					args = append(args, p.parseAssignmentExpr())
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "expected ')' after function arguments")
			expr = ast.NewFuncCall(tok, expr, args)
		case p.match(token.LBracket):
			index := p.parseExpr()
			p.expect(token.RBracket, "expected ']' after array index")
			expr = ast.NewSubscript(tok, expr, index)
		case p.match(token.Dot), p.match(token.Arrow):
			arrow := p.previous.Type == token.Arrow
			p.expect(token.Ident, "expected member name")
			expr = ast.NewMemberAccess(tok, expr, p.previous.Value, arrow)
		case p.match(token.Inc), p.match(token.Dec):
			if !isLValue(expr) {
				p.errorf(p.previous, "postfix '%s' requires an l-value", p.previous.Type)
			}
			expr = ast.NewPostfixOp(p.previous, p.previous.Type, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) startsTypeName() bool {
	return p.check(token.LParen) && p.peek().Type.IsTypeSpecifier()
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.startsTypeName() {
		p.advance()
		target := p.parseTypeName()
		p.expect(token.RParen, "expected ')' after type name")
		return ast.NewCast(tok, target, p.parseUnaryExpr())
	}
	if p.match(token.Sizeof) {
		if p.startsTypeName() {
			p.advance()
			target := p.parseTypeName()
			p.expect(token.RParen, "expected ')' after type name")
			return ast.NewSizeof(tok, target, nil)
		}
		return ast.NewSizeof(tok, nil, p.parseUnaryExpr())
	}
	if p.match(token.Not) || p.match(token.Complement) || p.match(token.Minus) ||
		p.match(token.Plus) || p.match(token.Inc) || p.match(token.Dec) ||
		p.match(token.Star) || p.match(token.And) {
		op := p.previous.Type
		opToken := p.previous
		operand := p.parseUnaryExpr()

		switch op {
		case token.Star:
			return ast.NewIndirection(tok, operand)
		case token.And:
			if !isLValue(operand) {
				p.errorf(opToken, "address-of operator '&' requires an l-value")
			}
			return ast.NewAddressOf(tok, operand)
		case token.Inc, token.Dec:
			if !isLValue(operand) {
				p.errorf(opToken, "prefix '%s' requires an l-value", op)
			}
		}
		return ast.NewUnaryOp(tok, op, operand)
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parseTernaryExpr() *ast.Node {
	cond := p.parseBinaryExpr(0)
	if p.match(token.Question) {
		tok := p.previous
		thenExpr := p.parseExpr()
		p.expect(token.Colon, "expected ':' in conditional expression")
		elseExpr := p.parseTernaryExpr()
		return ast.NewTernary(tok, cond, thenExpr, elseExpr)
	}
	return cond
}

func isAssignmentOp(op token.Type) bool {
	return op >= token.Eq && op <= token.ShrEq
}

func (p *Parser) parseAssignmentExpr() *ast.Node {
	left := p.parseTernaryExpr()
	if isAssignmentOp(p.current.Type) {
		if !isLValue(left) {
			p.errorf(p.current, "invalid target for assignment")
		}
		op := p.current.Type
		tok := p.current
		p.advance()
		right := p.parseAssignmentExpr()
		return ast.NewAssign(tok, op, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseAssignmentExpr()
}
