// Package lower turns the parsed translation unit into MIR. Every function
// definition becomes a mir.Function whose blocks are joined by explicit
// branch sets, and every referenced function becomes a mir.Global.
package lower

import (
	"fmt"

	"github.com/tliron/commonlog"
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/scope"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/types"
	"github.com/xplshn/jcc/pkg/util"
)

var log = commonlog.GetLogger("jcc.lower")

// Lowerer holds the state shared by all functions of a translation unit.
type Lowerer struct {
	cfg   *config.Config
	types *types.Resolver
	scope *scope.Table
}

func New(cfg *config.Config) *Lowerer {
	return &Lowerer{cfg: cfg, types: types.NewResolver(cfg), scope: scope.NewTable()}
}

// Program lowers a translation unit as returned by the parser.
func Program(root *ast.Node, cfg *config.Config) (*mir.Program, error) {
	return New(cfg).Program(root)
}

func (l *Lowerer) Program(root *ast.Node) (*mir.Program, error) {
	prog := &mir.Program{}
	var decls []*ast.Node
	if root != nil {
		decls = root.Data.(ast.BlockNode).Stmts
	}
	for _, n := range decls {
		switch n.Type {
		case ast.FuncDef:
			fn, err := l.LowerFunction(n)
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
		case ast.Decl:
			if err := l.fileScopeDecl(n); err != nil {
				return nil, err
			}
		default:
			return nil, unsupported(n)
		}
	}

	for _, sym := range l.scope.Globals() {
		if sym.Kind == scope.Func && (sym.Defined || sym.Uses > 0) {
			prog.Globals = append(prog.Globals, mir.Global{Name: sym.Name, Extern: !sym.Defined})
		}
	}
	return prog, nil
}

func (l *Lowerer) fileScopeDecl(n *ast.Node) error {
	d := n.Data.(ast.DeclNode)
	if d.Specs.HasStorage(token.Typedef) {
		return util.NewError(util.ErrUnsupported, d.Specs.Tok, "typedef is not supported")
	}
	if len(d.Inits) == 0 {
		// tag declarations such as `struct s { ... };`
		_, err := l.types.Base(d.Specs)
		return err
	}
	for _, in := range d.Inits {
		t, err := l.types.Resolve(d.Specs, in.Decl)
		if err != nil {
			return err
		}
		if !t.IsFunction() {
			return util.NewError(util.ErrUnsupported, in.Decl.Tok, "file-scope variable '%s' is not supported", in.Decl.Name)
		}
		if _, err := l.declareFunc(in.Decl.Tok, in.Decl.Name, t, false); err != nil {
			return err
		}
	}
	return nil
}

// declareFunc binds a function name at file scope. Redeclarations must
// agree on the type.
func (l *Lowerer) declareFunc(tok token.Token, name string, t *types.Type, define bool) (*scope.Symbol, error) {
	sym, fresh := l.scope.Declare(&scope.Symbol{Name: name, Kind: scope.Func, Type: t, Tok: tok})
	if !fresh {
		if sym.Kind != scope.Func || !types.Equal(sym.Type, t) {
			return nil, util.NewError(util.ErrTypeMismatch, tok, "conflicting types for '%s'", name)
		}
		if define && sym.Defined {
			return nil, util.NewError(util.ErrTypeMismatch, tok, "redefinition of '%s'", name)
		}
	}
	if define {
		sym.Defined = true
		sym.Tok = tok
	}
	return sym, nil
}

// mirType projects a semantic type onto the MIR scalar types.
func mirType(t *types.Type) (mir.Type, bool) {
	switch t.Kind {
	case types.Void:
		return mir.Void, true
	case types.Int:
		return mir.IntType(t.Signed, t.Size), true
	case types.Pointer:
		return mir.I64, true
	}
	return mir.Void, false
}

func (l *Lowerer) signature(tok token.Token, ft *types.Type) (*mir.Signature, error) {
	sig := &mir.Signature{Variadic: ft.Variadic}
	for _, p := range ft.Params {
		mt, ok := mirType(p.Type)
		if !ok {
			return nil, util.NewError(util.ErrUnsupported, tok, "parameter of type '%s' is not supported", p.Type)
		}
		sig.Params = append(sig.Params, mt)
	}
	ret, ok := mirType(ft.Return)
	if !ok {
		return nil, util.NewError(util.ErrUnsupported, tok, "return type '%s' is not supported", ft.Return)
	}
	sig.Return = ret
	return sig, nil
}

// LowerFunction lowers one function definition.
func (l *Lowerer) LowerFunction(n *ast.Node) (*mir.Function, error) {
	d := n.Data.(ast.FuncDefNode)
	if d.Specs.HasStorage(token.Typedef) {
		return nil, util.NewError(util.ErrUnsupported, d.Specs.Tok, "typedef is not supported")
	}
	ft, err := l.types.Resolve(d.Specs, d.Decl)
	if err != nil {
		return nil, err
	}
	if _, err := l.declareFunc(d.Decl.Tok, d.Decl.Name, ft, true); err != nil {
		return nil, err
	}
	sig, err := l.signature(d.Decl.Tok, ft)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(ft.Params))
	for i, p := range ft.Params {
		names[i] = p.Name
	}
	c := &funcCtx{
		l:    l,
		fn:   mir.NewFunction(d.Decl.Name, *sig, names),
		name: d.Decl.Name,
		ret:  sig.Return,
	}

	l.scope.Enter()
	params := d.Decl.Suffixes[len(d.Decl.Suffixes)-1].Params
	for i, p := range ft.Params {
		tok := d.Decl.Tok
		if i < len(params) && params[i].Decl != nil {
			tok = params[i].Decl.Tok
		}
		if err := c.declareLocal(tok, p.Name, p.Type, sig.Params[i]); err != nil {
			l.scope.Exit()
			return nil, err
		}
	}
	// Parameters and the outermost block share one scope.
	err = c.stmts(d.Body.Data.(ast.BlockNode).Stmts)
	c.exitScope()
	if err != nil {
		return nil, err
	}
	if err := c.finish(d.Body.Tok); err != nil {
		return nil, err
	}
	log.Debugf("lowered %s: %d blocks, %d values", c.name, len(c.fn.Blocks), c.fn.IDs.NextValue)
	return c.fn, nil
}

// funcCtx is the per-function lowering state. cur is the block that
// receives new instructions.
type funcCtx struct {
	l    *Lowerer
	fn   *mir.Function
	name string
	ret  mir.Type
	cur  mir.BlockID
}

func (c *funcCtx) warn(w config.Warning, tok token.Token, format string, args ...any) {
	util.Warn(c.l.cfg, w, tok, format, args...)
}

func (c *funcCtx) block() *mir.Block { return c.fn.Blocks[c.cur] }

// finish terminates every block that neither returned nor branched.
func (c *funcCtx) finish(tok token.Token) error {
	preds := c.fn.Predecessors()
	for i, b := range c.fn.Blocks {
		if b.Terminated() {
			continue
		}
		id := mir.BlockID(i)
		if c.ret == mir.Void {
			if err := c.fn.Return(id, mir.NoValue); err != nil {
				return internal(tok, err)
			}
			continue
		}
		reachable := i == 0 || preds[i] > 0
		if reachable && c.name != "main" {
			if c.l.cfg == nil || c.l.cfg.IsFeatureEnabled(config.FeatImplicitReturn) {
				c.warn(config.WarnReturnType, tok, "control reaches end of non-void function '%s'", c.name)
			} else {
				return util.NewError(util.ErrTypeMismatch, tok, "control reaches end of non-void function '%s'", c.name)
			}
		}
		zero, err := c.fn.Const(id, c.ret, 0)
		if err != nil {
			return internal(tok, err)
		}
		if err := c.fn.Return(id, zero); err != nil {
			return internal(tok, err)
		}
	}
	return nil
}

// declareLocal binds name in the innermost scope to a fresh Local. Names
// shadowing an outer local get a numeric suffix in the MIR.
func (c *funcCtx) declareLocal(tok token.Token, name string, t *types.Type, mt mir.Type) error {
	local := name
	for k := 1; ; k++ {
		if _, taken := c.fn.LocalByName(local); !taken {
			break
		}
		local = fmt.Sprintf("%s.%d", name, k)
	}
	l, err := c.fn.InsertLocal(local, mt)
	if err != nil {
		return internal(tok, err)
	}
	sym := &scope.Symbol{Name: name, Kind: scope.Var, Type: t, Local: l, Tok: tok, Defined: true}
	if _, fresh := c.l.scope.Declare(sym); !fresh {
		return util.NewError(util.ErrTypeMismatch, tok, "redeclaration of '%s'", name)
	}
	return nil
}

func (c *funcCtx) exitScope() {
	for _, sym := range c.l.scope.Exit() {
		if sym.Kind == scope.Var && sym.Uses == 0 {
			c.warn(config.WarnUnusedVariable, sym.Tok, "unused variable '%s'", sym.Name)
		}
	}
}

func unsupported(n *ast.Node) error {
	return util.NewError(util.ErrUnsupported, n.Tok, "%s is not supported", n.Type)
}

// internal reports a broken MIR invariant. It never stems from user input.
func internal(tok token.Token, err error) error {
	return util.NewError(util.ErrInternal, tok, "%v", err)
}
