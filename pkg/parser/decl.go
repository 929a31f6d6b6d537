package parser

import (
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/token"
)

// Declaration Parsing

func (p *Parser) parseDeclSpecs() ast.DeclSpecs {
	specs := ast.DeclSpecs{Tok: p.current}
	for p.current.Type.IsTypeSpecifier() {
		tok := p.current
		p.advance()
		switch tok.Type {
		case token.Const:
			specs.Const = true
		case token.Volatile:
			specs.Volatile = true
		case token.Restrict, token.Inline:
		case token.Extern, token.Static, token.Auto, token.Register, token.Typedef:
			specs.Storage = append(specs.Storage, tok.Type)
		case token.Struct, token.Union, token.Enum:
			if specs.TagKind != 0 {
				p.errorf(tok, "multiple tagged types in one declaration")
			}
			specs.TagKind = tok.Type
			if p.match(token.Ident) {
				specs.Tag = p.previous.Value
			}
			if p.check(token.LBrace) {
				specs.Members = p.parseTagBody(tok.Type)
			} else if specs.Tag == "" {
				p.errorf(tok, "expected a tag name or '{' after '%s'", tok.Type)
			}
		default:
			specs.Specifiers = append(specs.Specifiers, tok.Type)
		}
	}
	if len(specs.Specifiers) == 0 && specs.TagKind == 0 {
		p.errorf(specs.Tok, "expected a type specifier (found '%s')", describe(specs.Tok))
	}
	return specs
}

// parseTagBody parses the member list of a struct/union, or the
// enumerator list of an enum.
func (p *Parser) parseTagBody(kind token.Type) []*ast.Node {
	p.expect(token.LBrace, "expected '{'")
	var members []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if kind == token.Enum {
			p.expect(token.Ident, "expected enumerator name")
			name := p.previous
			var value *ast.Node
			if p.match(token.Eq) {
				value = p.parseTernaryExpr()
			}
			members = append(members, ast.NewAssign(name, token.Eq, ast.NewIdent(name, name.Value), value))
			if !p.match(token.Comma) {
				break
			}
			continue
		}
		members = append(members, p.parseDeclaration())
	}
	p.expect(token.RBrace, "expected '}' after member list")
	return members
}

func (p *Parser) parseDeclarator(abstract bool) *ast.Declarator {
	d := &ast.Declarator{Tok: p.current}
	for p.match(token.Star) {
		ptr := ast.Pointer{}
		for p.check(token.Const) || p.check(token.Volatile) || p.check(token.Restrict) {
			if p.current.Type == token.Const {
				ptr.Const = true
			}
			p.advance()
		}
		d.Pointers = append(d.Pointers, ptr)
	}

	switch {
	case p.match(token.Ident):
		d.Tok, d.Name = p.previous, p.previous.Value
	case p.check(token.LParen) && (p.peek().Type == token.Star || p.peek().Type == token.LParen):
		p.errorf(p.current, "parenthesized declarators are not supported")
	case !abstract:
		p.errorf(p.current, "expected an identifier in declarator (found '%s')", describe(p.current))
	}

	for {
		switch {
		case p.match(token.LBracket):
			s := ast.DeclSuffix{Kind: ast.SuffixArray}
			if !p.check(token.RBracket) {
				s.Len = p.parseTernaryExpr()
			}
			p.expect(token.RBracket, "expected ']' after array size")
			d.Suffixes = append(d.Suffixes, s)
		case p.match(token.LParen):
			d.Suffixes = append(d.Suffixes, p.parseParams())
		default:
			return d
		}
	}
}

func (p *Parser) parseParams() ast.DeclSuffix {
	s := ast.DeclSuffix{Kind: ast.SuffixFunc}
	if p.check(token.Void) && p.peek().Type == token.RParen {
		p.advance()
	}
	for !p.check(token.RParen) && !p.check(token.EOF) {
		if p.match(token.Dots) {
			s.Variadic = true
			break
		}
		specs := p.parseDeclSpecs()
		s.Params = append(s.Params, &ast.ParamDecl{Specs: specs, Decl: p.parseDeclarator(true)})
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "expected ')' after parameter list")
	return s
}

func (p *Parser) parseTypeName() *ast.TypeName {
	specs := p.parseDeclSpecs()
	return &ast.TypeName{Specs: specs, Decl: p.parseDeclarator(true)}
}

func (p *Parser) parseInitializer() *ast.Node {
	if !p.check(token.LBrace) {
		return p.parseAssignmentExpr()
	}
	tok := p.current
	p.advance()
	var items []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		items = append(items, p.parseInitializer())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "expected '}' after initializer list")
	return ast.NewInitList(tok, items)
}

// parseInitDeclarators parses the comma separated declarators after the
// first one and the terminating ';'.
func (p *Parser) parseInitDeclarators(tok token.Token, specs ast.DeclSpecs, first *ast.Declarator) *ast.Node {
	var inits []ast.InitDeclarator
	decl := first
	for {
		in := ast.InitDeclarator{Decl: decl}
		if p.match(token.Eq) {
			in.Init = p.parseInitializer()
		}
		inits = append(inits, in)
		if !p.match(token.Comma) {
			break
		}
		decl = p.parseDeclarator(false)
	}
	p.expect(token.Semi, "expected ';' after declaration")
	return ast.NewDecl(tok, specs, inits)
}

func (p *Parser) parseDeclaration() *ast.Node {
	tok := p.current
	specs := p.parseDeclSpecs()
	if p.match(token.Semi) {
		return ast.NewDecl(tok, specs, nil)
	}
	return p.parseInitDeclarators(tok, specs, p.parseDeclarator(false))
}

// Top-Level Parsing

func (p *Parser) parseExternalDecl() *ast.Node {
	tok := p.current
	specs := p.parseDeclSpecs()
	if p.match(token.Semi) {
		return ast.NewDecl(tok, specs, nil)
	}
	decl := p.parseDeclarator(false)
	if n := len(decl.Suffixes); n > 0 && decl.Suffixes[n-1].Kind == ast.SuffixFunc && p.check(token.LBrace) {
		for _, param := range decl.Suffixes[n-1].Params {
			if param.Decl.Name == "" {
				p.errorf(param.Specs.Tok, "parameter name omitted in function definition")
			}
		}
		body := p.parseBlockStmt()
		return ast.NewFuncDef(decl.Tok, specs, decl, body)
	}
	return p.parseInitDeclarators(tok, specs, decl)
}

// Statement Parsing

func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "expected '{' to start a block")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseBlockItem())
	}
	p.expect(token.RBrace, "expected '}' after block")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseBlockItem() *ast.Node {
	if p.current.Type.IsTypeSpecifier() {
		return p.parseDeclaration()
	}
	return p.parseStmt()
}

func (p *Parser) parseParenExpr(after string) *ast.Node {
	p.expect(token.LParen, "expected '(' after '"+after+"'")
	expr := p.parseExpr()
	p.expect(token.RParen, "expected ')' after "+after+" condition")
	return expr
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	if p.check(token.Ident) && p.peek().Type == token.Colon {
		p.advance()
		p.advance()
		if p.check(token.RBrace) {
			return ast.NewLabel(tok, tok.Value, ast.NewEmpty(p.current))
		}
		return ast.NewLabel(tok, tok.Value, p.parseStmt())
	}

	switch {
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	case p.match(token.If):
		cond := p.parseParenExpr("if")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case p.match(token.For):
		return p.parseFor(tok)
	case p.match(token.While):
		cond := p.parseParenExpr("while")
		return ast.NewWhile(tok, cond, p.parseStmt())
	case p.match(token.Do):
		body := p.parseStmt()
		p.expect(token.While, "expected 'while' after do-while body")
		cond := p.parseParenExpr("while")
		p.expect(token.Semi, "expected ';' after do-while statement")
		return ast.NewDoWhile(tok, body, cond)
	case p.match(token.Switch):
		expr := p.parseParenExpr("switch")
		return ast.NewSwitch(tok, expr, p.parseStmt())
	case p.match(token.Case):
		value := p.parseTernaryExpr()
		p.expect(token.Colon, "expected ':' after case value")
		return ast.NewCase(tok, value, p.parseStmt())
	case p.match(token.Default):
		p.expect(token.Colon, "expected ':' after 'default'")
		return ast.NewDefault(tok, p.parseStmt())
	case p.match(token.Goto):
		p.expect(token.Ident, "expected label name after 'goto'")
		node := ast.NewGoto(tok, p.previous.Value)
		p.expect(token.Semi, "expected ';' after goto statement")
		return node
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after return statement")
		return ast.NewReturn(tok, expr)
	case p.match(token.Break):
		p.expect(token.Semi, "expected ';' after 'break'")
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		p.expect(token.Semi, "expected ';' after 'continue'")
		return ast.NewContinue(tok)
	case p.match(token.Semi):
		return ast.NewEmpty(tok)
	default:
		expr := p.parseExpr()
		p.expect(token.Semi, "expected ';' after expression statement")
		return ast.NewExprStmt(tok, expr)
	}
}

func (p *Parser) parseFor(tok token.Token) *ast.Node {
	p.expect(token.LParen, "expected '(' after 'for'")
	var init, cond, post *ast.Node
	switch {
	case p.current.Type.IsTypeSpecifier():
		init = p.parseDeclaration()
	case p.match(token.Semi):
	default:
		init = ast.NewExprStmt(p.current, p.parseExpr())
		p.expect(token.Semi, "expected ';' after for-loop initializer")
	}
	if !p.check(token.Semi) {
		cond = p.parseExpr()
	}
	p.expect(token.Semi, "expected ';' after for-loop condition")
	if !p.check(token.RParen) {
		post = p.parseExpr()
	}
	p.expect(token.RParen, "expected ')' after for-loop clauses")
	return ast.NewFor(tok, init, cond, post, p.parseStmt())
}
