// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/jcc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	String
	Ident
	Assign
	BinaryOp
	UnaryOp
	PostfixOp
	FuncCall
	Indirection
	AddressOf
	Ternary
	Subscript
	MemberAccess
	Cast
	Sizeof
	InitList

	// Statements
	FuncDef
	Decl
	ExprStmt
	If
	For
	While
	DoWhile
	Return
	Block
	Goto
	Switch
	Case
	Default
	Break
	Continue
	Label
	Empty
)

var nodeNames = map[NodeType]string{
	Number: "integer constant", String: "string literal", Ident: "identifier", Assign: "assignment",
	BinaryOp: "binary expression", UnaryOp: "unary expression", PostfixOp: "postfix expression",
	FuncCall: "function call", Indirection: "pointer dereference", AddressOf: "address-of",
	Ternary: "conditional expression", Subscript: "array subscript", MemberAccess: "member access",
	Cast: "cast", Sizeof: "sizeof", InitList: "compound initializer",
	FuncDef: "function definition", Decl: "declaration", ExprStmt: "expression statement",
	If: "if statement", For: "for loop", While: "while loop", DoWhile: "do-while loop",
	Return: "return statement", Block: "compound statement", Goto: "goto statement",
	Switch: "switch statement", Case: "case label", Default: "default label",
	Break: "break statement", Continue: "continue statement", Label: "label", Empty: "empty statement",
}

func (t NodeType) String() string {
	if s, ok := nodeNames[t]; ok {
		return s
	}
	return "node"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// DeclSpecs is the specifier/qualifier list that starts a declaration.
type DeclSpecs struct {
	Tok        token.Token
	Specifiers []token.Type // void, char, int, long, unsigned, ...
	Storage    []token.Type // extern, static, typedef, ...
	Const      bool
	Volatile   bool
	Tag        string // struct/union/enum tag
	TagKind    token.Type
	Members    []*Node // member Decls, or enumerators as Assign nodes
}

func (s DeclSpecs) HasStorage(t token.Type) bool {
	for _, st := range s.Storage {
		if st == t {
			return true
		}
	}
	return false
}

// SuffixKind distinguishes the array and function suffixes of a declarator.
type SuffixKind int

const (
	SuffixArray SuffixKind = iota
	SuffixFunc
)

// DeclSuffix is one `[n]` or `(params)` suffix, in source order.
type DeclSuffix struct {
	Kind     SuffixKind
	Len      *Node
	Params   []*ParamDecl
	Variadic bool
}

// Pointer is one `*` in a declarator, with its qualifiers.
type Pointer struct {
	Const bool
}

// Declarator names an entity and derives its type from the specifiers.
// Name is empty for abstract declarators.
type Declarator struct {
	Tok      token.Token
	Name     string
	Pointers []Pointer
	Suffixes []DeclSuffix
}

type ParamDecl struct {
	Specs DeclSpecs
	Decl  *Declarator
}

type InitDeclarator struct {
	Decl *Declarator
	Init *Node
}

// TypeName is the specifier list and abstract declarator of a cast or sizeof.
type TypeName struct {
	Specs DeclSpecs
	Decl  *Declarator
}

// --- Node Data Structs ---
type NumberNode struct {
	Value    int64
	Unsigned bool
	Long     bool
}
type StringNode struct{ Value string }
type IdentNode struct{ Name string }
type AssignNode struct{ Op token.Type; Lhs, Rhs *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type PostfixOpNode struct{ Op token.Type; Expr *Node }
type IndirectionNode struct{ Expr *Node }
type AddressOfNode struct{ LValue *Node }
type TernaryNode struct{ Cond, ThenExpr, ElseExpr *Node }
type SubscriptNode struct{ Array, Index *Node }
type MemberAccessNode struct{ Expr *Node; Member string; Arrow bool }
type CastNode struct{ Target *TypeName; Expr *Node }
type SizeofNode struct{ Target *TypeName; Expr *Node }
type InitListNode struct{ Items []*Node }
type FuncCallNode struct{ FuncExpr *Node; Args []*Node }
type FuncDefNode struct {
	Specs DeclSpecs
	Decl  *Declarator
	Body  *Node
}
type DeclNode struct {
	Specs DeclSpecs
	Inits []InitDeclarator
}
type ExprStmtNode struct{ Expr *Node }
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type ForNode struct{ Init, Cond, Post, Body *Node }
type WhileNode struct{ Cond, Body *Node }
type ReturnNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type GotoNode struct{ Label string }
type SwitchNode struct{ Expr, Body *Node }
type CaseNode struct{ Value, Body *Node }
type DefaultNode struct{ Body *Node }
type BreakNode struct{}
type ContinueNode struct{}
type LabelNode struct{ Name string; Stmt *Node }
type EmptyNode struct{}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64, unsigned, long bool) *Node {
	return newNode(tok, Number, NumberNode{Value: value, Unsigned: unsigned, Long: long})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewAssign(tok token.Token, op token.Type, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewPostfixOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, PostfixOp, PostfixOpNode{Op: op, Expr: expr}, expr)
}
func NewIndirection(tok token.Token, expr *Node) *Node {
	return newNode(tok, Indirection, IndirectionNode{Expr: expr}, expr)
}
func NewAddressOf(tok token.Token, lvalue *Node) *Node {
	return newNode(tok, AddressOf, AddressOfNode{LValue: lvalue}, lvalue)
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, ThenExpr: thenExpr, ElseExpr: elseExpr}, cond, thenExpr, elseExpr)
}
func NewSubscript(tok token.Token, array, index *Node) *Node {
	return newNode(tok, Subscript, SubscriptNode{Array: array, Index: index}, array, index)
}
func NewMemberAccess(tok token.Token, expr *Node, member string, arrow bool) *Node {
	return newNode(tok, MemberAccess, MemberAccessNode{Expr: expr, Member: member, Arrow: arrow}, expr)
}
func NewCast(tok token.Token, target *TypeName, expr *Node) *Node {
	return newNode(tok, Cast, CastNode{Target: target, Expr: expr}, expr)
}
func NewSizeof(tok token.Token, target *TypeName, expr *Node) *Node {
	return newNode(tok, Sizeof, SizeofNode{Target: target, Expr: expr}, expr)
}
func NewInitList(tok token.Token, items []*Node) *Node {
	node := newNode(tok, InitList, InitListNode{Items: items})
	for _, it := range items {
		it.Parent = node
	}
	return node
}
func NewFuncCall(tok token.Token, funcExpr *Node, args []*Node) *Node {
	node := newNode(tok, FuncCall, FuncCallNode{FuncExpr: funcExpr, Args: args}, funcExpr)
	for _, arg := range args {
		arg.Parent = node
	}
	return node
}
func NewFuncDef(tok token.Token, specs DeclSpecs, decl *Declarator, body *Node) *Node {
	return newNode(tok, FuncDef, FuncDefNode{Specs: specs, Decl: decl, Body: body}, body)
}
func NewDecl(tok token.Token, specs DeclSpecs, inits []InitDeclarator) *Node {
	node := newNode(tok, Decl, DeclNode{Specs: specs, Inits: inits})
	for _, in := range inits {
		if in.Init != nil {
			in.Init.Parent = node
		}
	}
	return node
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewFor(tok token.Token, init, cond, post, body *Node) *Node {
	return newNode(tok, For, ForNode{Init: init, Cond: cond, Post: post, Body: body}, init, cond, post, body)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewDoWhile(tok token.Token, body, cond *Node) *Node {
	return newNode(tok, DoWhile, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	node := newNode(tok, Block, BlockNode{Stmts: stmts})
	for _, s := range stmts {
		if s != nil {
			s.Parent = node
		}
	}
	return node
}
func NewGoto(tok token.Token, label string) *Node {
	return newNode(tok, Goto, GotoNode{Label: label})
}
func NewSwitch(tok token.Token, expr, body *Node) *Node {
	return newNode(tok, Switch, SwitchNode{Expr: expr, Body: body}, expr, body)
}
func NewCase(tok token.Token, value, body *Node) *Node {
	return newNode(tok, Case, CaseNode{Value: value, Body: body}, value, body)
}
func NewDefault(tok token.Token, body *Node) *Node {
	return newNode(tok, Default, DefaultNode{Body: body}, body)
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}
func NewLabel(tok token.Token, name string, stmt *Node) *Node {
	return newNode(tok, Label, LabelNode{Name: name, Stmt: stmt}, stmt)
}
func NewEmpty(tok token.Token) *Node {
	return newNode(tok, Empty, EmptyNode{})
}

// EvalConst evaluates an integer constant expression such as an array
// length. It reports false for anything that is not a compile-time constant.
func EvalConst(node *Node) (int64, bool) {
	if node == nil {
		return 0, false
	}
	switch d := node.Data.(type) {
	case NumberNode:
		return d.Value, true
	case UnaryOpNode:
		val, ok := EvalConst(d.Expr)
		if !ok {
			return 0, false
		}
		switch d.Op {
		case token.Minus: return -val, true
		case token.Plus: return val, true
		case token.Complement: return ^val, true
		case token.Not: return b2i(val == 0), true
		}
	case BinaryOpNode:
		l, okL := EvalConst(d.Left)
		r, okR := EvalConst(d.Right)
		if !okL || !okR {
			return 0, false
		}
		switch d.Op {
		case token.Plus: return l + r, true
		case token.Minus: return l - r, true
		case token.Star: return l * r, true
		case token.And: return l & r, true
		case token.Or: return l | r, true
		case token.Xor: return l ^ r, true
		case token.Shl: return l << uint64(r), true
		case token.Shr: return l >> uint64(r), true
		case token.EqEq: return b2i(l == r), true
		case token.Neq: return b2i(l != r), true
		case token.Lt: return b2i(l < r), true
		case token.Gt: return b2i(l > r), true
		case token.Lte: return b2i(l <= r), true
		case token.Gte: return b2i(l >= r), true
		case token.Slash:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case token.Rem:
			if r == 0 {
				return 0, false
			}
			return l % r, true
		}
	case TernaryNode:
		c, ok := EvalConst(d.Cond)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return EvalConst(d.ThenExpr)
		}
		return EvalConst(d.ElseExpr)
	}
	return 0, false
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
