package lower

import (
	"fortio.org/safecast"
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/scope"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/types"
	"github.com/xplshn/jcc/pkg/util"
)

var arithOps = map[token.Type]mir.Op{
	token.Plus: mir.OpAdd, token.Minus: mir.OpSub, token.Star: mir.OpMul,
	token.Slash: mir.OpDiv, token.Rem: mir.OpRem,
}

var compareOps = map[token.Type]mir.Op{
	token.EqEq: mir.OpCEq, token.Neq: mir.OpCNe, token.Lt: mir.OpCLt,
	token.Lte: mir.OpCLe, token.Gt: mir.OpCGt, token.Gte: mir.OpCGe,
}

var compoundOps = map[token.Type]token.Type{
	token.PlusEq: token.Plus, token.MinusEq: token.Minus, token.StarEq: token.Star,
	token.SlashEq: token.Slash, token.RemEq: token.Rem,
}

// expr lowers n and converts the result to want. A void want discards
// the value and accepts any type.
func (c *funcCtx) expr(n *ast.Node, want mir.Type) (mir.Value, error) {
	v, _, err := c.typedExpr(n, want)
	return v, err
}

// typedExpr is expr that also reports the source type of n.
func (c *funcCtx) typedExpr(n *ast.Node, want mir.Type) (mir.Value, *types.Type, error) {
	if n.Type == ast.Number && want != mir.Void {
		d := n.Data.(ast.NumberNode)
		if !d.Long && !d.Unsigned {
			v, err := c.constant(n.Tok, want, d.Value)
			return v, types.IntType, err
		}
	}
	v, t, err := c.natural(n)
	if err != nil {
		return mir.NoValue, nil, err
	}
	v, err = c.coerce(n.Tok, v, t, want)
	return v, t, err
}

// store lowers n as the value written into a slot of type dst. Pointers
// and longs share I64, so an integer stored into a pointer is caught here.
func (c *funcCtx) store(n *ast.Node, dst *types.Type, want mir.Type) (mir.Value, error) {
	v, t, err := c.typedExpr(n, want)
	if err != nil {
		return mir.NoValue, err
	}
	if dst.IsPointer() && t != nil && t.IsInteger() && !nullConstant(n) {
		c.warn(config.WarnType, n.Tok, "integer converted to pointer '%s' without a cast", dst)
	}
	return v, nil
}

func nullConstant(n *ast.Node) bool {
	return n.Type == ast.Number && n.Data.(ast.NumberNode).Value == 0
}

func (c *funcCtx) coerce(tok token.Token, v mir.Value, t *types.Type, want mir.Type) (mir.Value, error) {
	if want == mir.Void {
		if v != mir.NoValue {
			log.Debugf("%d:%d: discarding value of type %s", tok.Line, tok.Column, t)
		}
		return v, nil
	}
	if v == mir.NoValue {
		return mir.NoValue, util.NewError(util.ErrTypeMismatch, tok, "void value not ignored as it ought to be")
	}
	have, _ := c.fn.TypeOf(v)
	if have == want {
		return v, nil
	}
	if t.IsPointer() && want != mir.I64 {
		c.warn(config.WarnType, tok, "pointer converted to %s", want)
	}
	out, err := c.fn.Convert(c.cur, want, v)
	if err != nil {
		return mir.NoValue, internal(tok, err)
	}
	return out, nil
}

// constant emits imm as a t, warning when it does not fit.
func (c *funcCtx) constant(tok token.Token, t mir.Type, imm int64) (mir.Value, error) {
	if !fits(t, imm) {
		c.warn(config.WarnOverflow, tok, "integer constant %d overflows %s", imm, t)
	}
	v, err := c.fn.Const(c.cur, t, imm)
	if err != nil {
		return mir.NoValue, internal(tok, err)
	}
	return v, nil
}

func fits(t mir.Type, imm int64) bool {
	var err error
	switch t {
	case mir.I8:
		_, err = safecast.Conv[int8](imm)
	case mir.U8:
		// char literals such as '\xff' wrap by convention
		if _, err = safecast.Conv[uint8](imm); err != nil {
			_, err = safecast.Conv[int8](imm)
		}
	case mir.I16:
		_, err = safecast.Conv[int16](imm)
	case mir.U16:
		_, err = safecast.Conv[uint16](imm)
	case mir.I32:
		_, err = safecast.Conv[int32](imm)
	case mir.U32:
		if _, err = safecast.Conv[uint32](imm); err != nil {
			_, err = safecast.Conv[int32](imm)
		}
	}
	return err == nil
}

// natural lowers n at its own C type. The value is NoValue for calls to
// void functions and void casts.
func (c *funcCtx) natural(n *ast.Node) (mir.Value, *types.Type, error) {
	switch n.Type {
	case ast.Number:
		return c.number(n)
	case ast.String:
		d := n.Data.(ast.StringNode)
		data := c.fn.InsertData(append([]byte(d.Value), 0))
		v, err := c.fn.DataPtr(c.cur, data)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		return v, types.PointerTo(types.CharType), nil
	case ast.Ident:
		sym, err := c.variable(n)
		if err != nil {
			return mir.NoValue, nil, err
		}
		v, err := c.fn.ReadLocal(c.cur, sym.Local)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		return v, sym.Type, nil
	case ast.Assign:
		return c.assign(n, true)
	case ast.UnaryOp:
		return c.unary(n)
	case ast.PostfixOp:
		return c.incDec(n, incDecOp(n), true)
	case ast.BinaryOp:
		return c.binary(n)
	case ast.FuncCall:
		return c.call(n)
	case ast.Cast:
		return c.cast(n)
	case ast.Sizeof:
		return c.sizeof(n)
	}
	return mir.NoValue, nil, unsupported(n)
}

func (c *funcCtx) number(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.NumberNode)
	t := types.IntType
	switch {
	case d.Long && d.Unsigned:
		t = types.SizeType
	case d.Long:
		t = types.LongType
	case d.Unsigned:
		t = types.UIntType
		if !fits(mir.U32, d.Value) {
			t = types.SizeType
		}
	case !fits(mir.I32, d.Value):
		t = types.LongType
	}
	mt, _ := mirType(t)
	v, err := c.constant(n.Tok, mt, d.Value)
	return v, t, err
}

// variable resolves an identifier that must name a local variable.
func (c *funcCtx) variable(n *ast.Node) (*scope.Symbol, error) {
	name := n.Data.(ast.IdentNode).Name
	sym, ok := c.l.scope.Resolve(name)
	if !ok {
		return nil, util.NewError(util.ErrUnresolved, n.Tok, "'%s' undeclared", name)
	}
	if sym.Kind != scope.Var {
		return nil, util.NewError(util.ErrUnsupported, n.Tok, "function '%s' used as a value is not supported", name)
	}
	return sym, nil
}

// assign lowers `x = e` and `x op= e`. The stored value is read back only
// when the assignment is itself used as a value.
func (c *funcCtx) assign(n *ast.Node, used bool) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.AssignNode)
	if d.Lhs.Type != ast.Ident {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, d.Lhs.Tok, "assignment to %s is not supported", d.Lhs.Type)
	}
	sym, err := c.variable(d.Lhs)
	if err != nil {
		return mir.NoValue, nil, err
	}
	mt := c.fn.LocalTypes[sym.Local]

	var v mir.Value
	if d.Op == token.Eq {
		// A plain store is not a use.
		sym.Uses--
		if v, err = c.store(d.Rhs, sym.Type, mt); err != nil {
			return mir.NoValue, nil, err
		}
	} else {
		op, ok := compoundOps[d.Op]
		if !ok {
			return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "'%s' assignment is not supported", d.Op)
		}
		if sym.Type.IsPointer() {
			return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "pointer arithmetic is not supported")
		}
		cur, err := c.fn.ReadLocal(c.cur, sym.Local)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		rhs, rt, err := c.natural(d.Rhs)
		if err != nil {
			return mir.NoValue, nil, err
		}
		res, _, err := c.arith(n.Tok, arithOps[op], cur, sym.Type, rhs, rt)
		if err != nil {
			return mir.NoValue, nil, err
		}
		if v, err = c.coerce(n.Tok, res, sym.Type, mt); err != nil {
			return mir.NoValue, nil, err
		}
	}
	if err := c.fn.WriteLocal(c.cur, sym.Local, v); err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	if !used {
		return mir.NoValue, sym.Type, nil
	}
	out, err := c.fn.ReadLocal(c.cur, sym.Local)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	return out, sym.Type, nil
}

func incDecOp(n *ast.Node) mir.Op {
	var op token.Type
	switch d := n.Data.(type) {
	case ast.UnaryOpNode:
		op = d.Op
	case ast.PostfixOpNode:
		op = d.Op
	}
	switch op {
	case token.Inc:
		return mir.OpAdd
	case token.Dec:
		return mir.OpSub
	}
	return 0
}

// incDec lowers ++ and --. Prefix forms yield the new value, postfix
// forms the old one.
func (c *funcCtx) incDec(n *ast.Node, op mir.Op, used bool) (mir.Value, *types.Type, error) {
	var target *ast.Node
	postfix := n.Type == ast.PostfixOp
	if postfix {
		target = n.Data.(ast.PostfixOpNode).Expr
	} else {
		target = n.Data.(ast.UnaryOpNode).Expr
	}
	if target.Type != ast.Ident {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, target.Tok, "increment of %s is not supported", target.Type)
	}
	sym, err := c.variable(target)
	if err != nil {
		return mir.NoValue, nil, err
	}
	if sym.Type.IsPointer() {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "pointer arithmetic is not supported")
	}
	mt := c.fn.LocalTypes[sym.Local]
	old, err := c.fn.ReadLocal(c.cur, sym.Local)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	one, err := c.fn.Const(c.cur, mt, 1)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	updated, err := c.fn.Binary(c.cur, op, mt, old, one)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	if err := c.fn.WriteLocal(c.cur, sym.Local, updated); err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	switch {
	case !used:
		return mir.NoValue, sym.Type, nil
	case postfix:
		return old, sym.Type, nil
	}
	return updated, sym.Type, nil
}

func (c *funcCtx) unary(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.UnaryOpNode)
	switch d.Op {
	case token.Inc, token.Dec:
		return c.incDec(n, incDecOp(n), true)
	case token.Plus:
		v, t, err := c.natural(d.Expr)
		if err == nil && v == mir.NoValue {
			err = util.NewError(util.ErrTypeMismatch, d.Expr.Tok, "invalid operand to unary '+'")
		}
		return v, t, err
	case token.Minus:
		zero, err := c.fn.Const(c.cur, mir.I32, 0)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		x, t, err := c.natural(d.Expr)
		if err != nil {
			return mir.NoValue, nil, err
		}
		return c.arith(n.Tok, mir.OpSub, zero, types.IntType, x, t)
	case token.Not:
		x, _, err := c.natural(d.Expr)
		if err != nil {
			return mir.NoValue, nil, err
		}
		if x == mir.NoValue {
			return mir.NoValue, nil, util.NewError(util.ErrTypeMismatch, d.Expr.Tok, "invalid operand to '!'")
		}
		mt, _ := c.fn.TypeOf(x)
		zero, err := c.fn.Const(c.cur, mt, 0)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		v, err := c.fn.Binary(c.cur, mir.OpCEq, mt, x, zero)
		if err != nil {
			return mir.NoValue, nil, internal(n.Tok, err)
		}
		return v, types.IntType, nil
	}
	return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "unary '%s' is not supported", d.Op)
}

func (c *funcCtx) binary(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.BinaryOpNode)
	op, ok := arithOps[d.Op]
	if !ok {
		if op, ok = compareOps[d.Op]; !ok {
			return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "operator '%s' is not supported", d.Op)
		}
	}
	x, xt, err := c.natural(d.Left)
	if err != nil {
		return mir.NoValue, nil, err
	}
	y, yt, err := c.natural(d.Right)
	if err != nil {
		return mir.NoValue, nil, err
	}
	if x == mir.NoValue || y == mir.NoValue {
		return mir.NoValue, nil, util.NewError(util.ErrTypeMismatch, n.Tok, "void operand to '%s'", d.Op)
	}
	if op.IsArithmetic() && (xt.IsPointer() || yt.IsPointer()) {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "pointer arithmetic is not supported")
	}
	return c.arith(n.Tok, op, x, xt, y, yt)
}

// arithType applies the usual arithmetic conversion: unsigned only when
// both sides are unsigned, as wide as the wider side.
func arithType(x, y mir.Type) mir.Type {
	return mir.IntType(x.Signed() || y.Signed(), max(x.Bits(), y.Bits())/8)
}

// arith converts both operands to their common type unless they already
// agree, then emits op.
func (c *funcCtx) arith(tok token.Token, op mir.Op, x mir.Value, xt *types.Type, y mir.Value, yt *types.Type) (mir.Value, *types.Type, error) {
	mx, _ := c.fn.TypeOf(x)
	my, _ := c.fn.TypeOf(y)
	t := mx
	if mx != my {
		t = arithType(mx, my)
		var err error
		if x, err = c.fn.Convert(c.cur, t, x); err != nil {
			return mir.NoValue, nil, internal(tok, err)
		}
		if y, err = c.fn.Convert(c.cur, t, y); err != nil {
			return mir.NoValue, nil, internal(tok, err)
		}
	}
	v, err := c.fn.Binary(c.cur, op, t, x, y)
	if err != nil {
		return mir.NoValue, nil, internal(tok, err)
	}
	if op.IsCompare() {
		return v, types.IntType, nil
	}
	if mx == my && xt.IsInteger() {
		return v, xt, nil
	}
	return v, semType(t), nil
}

func (c *funcCtx) call(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.FuncCallNode)
	if d.FuncExpr.Type != ast.Ident {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "indirect calls are not supported")
	}
	name := d.FuncExpr.Data.(ast.IdentNode).Name
	sym, ok := c.l.scope.Resolve(name)
	if !ok {
		return mir.NoValue, nil, util.NewError(util.ErrUnresolved, d.FuncExpr.Tok, "implicit declaration of function '%s'", name)
	}
	if sym.Kind != scope.Func {
		return mir.NoValue, nil, util.NewError(util.ErrTypeMismatch, d.FuncExpr.Tok, "called object '%s' is not a function", name)
	}
	ft := sym.Type
	sig, err := c.l.signature(d.FuncExpr.Tok, ft)
	if err != nil {
		return mir.NoValue, nil, err
	}
	fixed := len(ft.Params)
	if len(d.Args) < fixed || (!ft.Variadic && len(d.Args) > fixed) {
		return mir.NoValue, nil, util.NewError(util.ErrTypeMismatch, n.Tok,
			"function '%s' expects %d arguments, got %d", name, fixed, len(d.Args))
	}

	args := make([]mir.Value, 0, len(d.Args))
	for i, a := range d.Args {
		var v mir.Value
		if i < fixed {
			v, err = c.store(a, ft.Params[i].Type, sig.Params[i])
		} else {
			v, err = c.vararg(a)
		}
		if err != nil {
			return mir.NoValue, nil, err
		}
		args = append(args, v)
	}
	v, err := c.fn.Call(c.cur, name, sig, args)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	return v, ft.Return, nil
}

// vararg lowers an argument matched by `...`. It keeps its own type
// except that sub-int values are promoted to int.
func (c *funcCtx) vararg(n *ast.Node) (mir.Value, error) {
	v, t, err := c.natural(n)
	if err != nil {
		return mir.NoValue, err
	}
	if v == mir.NoValue {
		return mir.NoValue, util.NewError(util.ErrTypeMismatch, n.Tok, "void value passed as a variadic argument")
	}
	if mt, _ := c.fn.TypeOf(v); mt.Bits() < 32 {
		return c.coerce(n.Tok, v, t, mir.I32)
	}
	return v, nil
}

func (c *funcCtx) typeName(tn *ast.TypeName) (*types.Type, error) {
	return c.l.types.Resolve(tn.Specs, tn.Decl)
}

func (c *funcCtx) cast(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.CastNode)
	t, err := c.typeName(d.Target)
	if err != nil {
		return mir.NoValue, nil, err
	}
	mt, ok := mirType(t)
	if !ok {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "cast to '%s' is not supported", t)
	}
	if mt == mir.Void {
		_, err := c.expr(d.Expr, mir.Void)
		return mir.NoValue, t, err
	}
	v, err := c.expr(d.Expr, mt)
	return v, t, err
}

func (c *funcCtx) sizeof(n *ast.Node) (mir.Value, *types.Type, error) {
	d := n.Data.(ast.SizeofNode)
	if d.Target == nil {
		return mir.NoValue, nil, util.NewError(util.ErrUnsupported, n.Tok, "sizeof applied to an expression is not supported")
	}
	t, err := c.typeName(d.Target)
	if err != nil {
		return mir.NoValue, nil, err
	}
	size, ok := t.Sizeof()
	if !ok {
		return mir.NoValue, nil, util.NewError(util.ErrTypeMismatch, n.Tok, "invalid application of 'sizeof' to incomplete type '%s'", t)
	}
	v, err := c.fn.Const(c.cur, mir.U64, size)
	if err != nil {
		return mir.NoValue, nil, internal(n.Tok, err)
	}
	return v, types.SizeType, nil
}

// semType recovers the C integer type a MIR type stands for.
func semType(t mir.Type) *types.Type {
	if t == mir.Void {
		return types.VoidType
	}
	return types.NewInt(t.Signed(), t.Bits()/8)
}
