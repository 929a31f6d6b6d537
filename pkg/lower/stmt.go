package lower

import (
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

func (c *funcCtx) stmts(list []*ast.Node) error {
	for _, s := range list {
		if s == nil {
			continue
		}
		if c.block().Exit {
			c.warn(config.WarnUnreachableCode, s.Tok, "unreachable code")
			return nil
		}
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *funcCtx) stmt(n *ast.Node) error {
	switch n.Type {
	case ast.Block:
		c.l.scope.Enter()
		err := c.stmts(n.Data.(ast.BlockNode).Stmts)
		c.exitScope()
		return err
	case ast.Empty:
		return nil
	case ast.Decl:
		return c.localDecl(n)
	case ast.ExprStmt:
		return c.effect(n.Data.(ast.ExprStmtNode).Expr)
	case ast.If:
		return c.ifStmt(n)
	case ast.For:
		return c.forStmt(n)
	case ast.Return:
		return c.returnStmt(n)
	}
	return unsupported(n)
}

func (c *funcCtx) localDecl(n *ast.Node) error {
	d := n.Data.(ast.DeclNode)
	for _, st := range []token.Type{token.Typedef, token.Static, token.Extern} {
		if d.Specs.HasStorage(st) {
			return util.NewError(util.ErrUnsupported, d.Specs.Tok, "'%s' declarations inside functions are not supported", st)
		}
	}
	if len(d.Inits) == 0 {
		return util.NewError(util.ErrUnsupported, n.Tok, "local tag declarations are not supported")
	}
	for _, in := range d.Inits {
		t, err := c.l.types.Resolve(d.Specs, in.Decl)
		if err != nil {
			return err
		}
		if t.IsFunction() {
			return util.NewError(util.ErrUnsupported, in.Decl.Tok, "block-scope function declaration '%s' is not supported", in.Decl.Name)
		}
		mt, ok := mirType(t)
		if !ok || mt == mir.Void {
			return util.NewError(util.ErrUnsupported, in.Decl.Tok, "local variable of type '%s' is not supported", t)
		}
		if in.Init != nil && in.Init.Type == ast.InitList {
			return unsupported(in.Init)
		}
		if err := c.declareLocal(in.Decl.Tok, in.Decl.Name, t, mt); err != nil {
			return err
		}
		if in.Init == nil {
			continue
		}
		// The name is in scope inside its own initializer.
		sym, _ := c.l.scope.Resolve(in.Decl.Name)
		sym.Uses--
		v, err := c.store(in.Init, t, mt)
		if err != nil {
			return err
		}
		if err := c.fn.WriteLocal(c.cur, sym.Local, v); err != nil {
			return internal(in.Decl.Tok, err)
		}
	}
	return nil
}

// effect lowers an expression evaluated only for its side effects.
func (c *funcCtx) effect(n *ast.Node) error {
	switch n.Type {
	case ast.Assign:
		_, _, err := c.assign(n, false)
		return err
	case ast.UnaryOp, ast.PostfixOp:
		if op := incDecOp(n); op != 0 {
			_, _, err := c.incDec(n, op, false)
			return err
		}
	}
	if n.Type != ast.FuncCall && n.Type != ast.Cast {
		c.warn(config.WarnType, n.Tok, "expression result unused")
	}
	_, err := c.expr(n, mir.Void)
	return err
}

func (c *funcCtx) ifStmt(n *ast.Node) error {
	d := n.Data.(ast.IfNode)
	cond, err := c.cond(d.Cond)
	if err != nil {
		return err
	}
	split := c.cur
	then := c.fn.NewBlock()
	els := mir.BlockID(-1)
	if d.ElseBody != nil {
		els = c.fn.NewBlock()
	}
	merge := c.fn.NewBlock()
	def := merge
	if els >= 0 {
		def = els
	}
	br := &mir.Branch{Cond: cond, Edges: []mir.Edge{{Conditional: true, Target: then}, {Target: def}}}
	if err := c.fn.SetBranch(split, br); err != nil {
		return internal(n.Tok, err)
	}

	arms := []struct {
		entry mir.BlockID
		body  *ast.Node
	}{{then, d.ThenBody}, {els, d.ElseBody}}
	for _, arm := range arms {
		if arm.body == nil {
			continue
		}
		c.cur = arm.entry
		if err := c.stmt(arm.body); err != nil {
			return err
		}
		if !c.block().Terminated() {
			if err := c.fn.Jump(c.cur, merge); err != nil {
				return internal(arm.body.Tok, err)
			}
		}
	}
	c.cur = merge
	return nil
}

func (c *funcCtx) forStmt(n *ast.Node) error {
	d := n.Data.(ast.ForNode)
	c.l.scope.Enter()
	defer c.exitScope()

	if d.Init != nil {
		if err := c.stmt(d.Init); err != nil {
			return err
		}
	}
	header := c.fn.NewBlock()
	end := c.fn.NewBlock()
	body := c.fn.NewBlock()
	if err := c.fn.Jump(c.cur, header); err != nil {
		return internal(n.Tok, err)
	}

	c.cur = header
	if d.Cond != nil {
		cond, err := c.cond(d.Cond)
		if err != nil {
			return err
		}
		br := &mir.Branch{Cond: cond, Edges: []mir.Edge{{Conditional: true, Target: body}, {Target: end}}}
		if err := c.fn.SetBranch(c.cur, br); err != nil {
			return internal(d.Cond.Tok, err)
		}
	} else if err := c.fn.Jump(c.cur, body); err != nil {
		return internal(n.Tok, err)
	}

	c.cur = body
	if err := c.stmt(d.Body); err != nil {
		return err
	}
	last := c.cur
	switch {
	case c.block().Exit:
		if d.Post != nil {
			c.warn(config.WarnUnreachableCode, d.Post.Tok, "loop increment is never executed")
		}
	default:
		if err := c.fn.Jump(last, header); err != nil {
			return internal(n.Tok, err)
		}
		// The increment lands after the back-edge in the same block.
		if d.Post != nil {
			if err := c.effect(d.Post); err != nil {
				return err
			}
		}
	}
	c.cur = end
	return nil
}

func (c *funcCtx) returnStmt(n *ast.Node) error {
	d := n.Data.(ast.ReturnNode)
	if d.Expr == nil {
		if c.ret == mir.Void {
			return c.ret0(n.Tok, mir.NoValue)
		}
		c.warn(config.WarnReturnType, n.Tok, "non-void function '%s' should return a value", c.name)
		zero, err := c.fn.Const(c.cur, c.ret, 0)
		if err != nil {
			return internal(n.Tok, err)
		}
		return c.ret0(n.Tok, zero)
	}
	if c.ret == mir.Void {
		v, err := c.expr(d.Expr, mir.Void)
		if err != nil {
			return err
		}
		if v != mir.NoValue {
			return util.NewError(util.ErrTypeMismatch, d.Expr.Tok, "void function '%s' should not return a value", c.name)
		}
		return c.ret0(n.Tok, mir.NoValue)
	}
	v, err := c.expr(d.Expr, c.ret)
	if err != nil {
		return err
	}
	return c.ret0(n.Tok, v)
}

func (c *funcCtx) ret0(tok token.Token, v mir.Value) error {
	if err := c.fn.Return(c.cur, v); err != nil {
		return internal(tok, err)
	}
	return nil
}

// cond lowers a controlling expression to a value that is non-zero when
// the expression is true.
func (c *funcCtx) cond(n *ast.Node) (mir.Value, error) {
	if n.Type == ast.BinaryOp {
		if _, ok := compareOps[n.Data.(ast.BinaryOpNode).Op]; ok {
			return c.expr(n, mir.I32)
		}
	}
	if n.Type == ast.UnaryOp && n.Data.(ast.UnaryOpNode).Op == token.Not {
		return c.expr(n, mir.I32)
	}
	v, _, err := c.natural(n)
	if err != nil {
		return mir.NoValue, err
	}
	if v == mir.NoValue {
		return mir.NoValue, util.NewError(util.ErrTypeMismatch, n.Tok, "void value used as a condition")
	}
	t, _ := c.fn.TypeOf(v)
	zero, err := c.fn.Const(c.cur, t, 0)
	if err != nil {
		return mir.NoValue, internal(n.Tok, err)
	}
	ne, err := c.fn.Binary(c.cur, mir.OpCNe, t, v, zero)
	if err != nil {
		return mir.NoValue, internal(n.Tok, err)
	}
	return ne, nil
}
