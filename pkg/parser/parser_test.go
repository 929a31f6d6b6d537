package parser

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/lexer"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

func tokens(t *testing.T, src string) []token.Token {
	t.Helper()
	util.Output = io.Discard
	toks, err := lexer.Tokenize([]rune(src), 0, config.NewConfig())
	require.NoError(t, err)
	return toks
}

func parse(t *testing.T, src string) []*ast.Node {
	t.Helper()
	root, err := NewParser(tokens(t, src), config.NewConfig()).Parse()
	require.NoError(t, err)
	require.Equal(t, ast.Block, root.Type)
	return root.Data.(ast.BlockNode).Stmts
}

func expr(t *testing.T, src string) *ast.Node {
	t.Helper()
	n, err := NewParser(tokens(t, src), config.NewConfig()).ParseExpr()
	require.NoError(t, err)
	return n
}

// sexpr renders an expression tree with explicit grouping.
func sexpr(n *ast.Node) string {
	switch d := n.Data.(type) {
	case ast.NumberNode:
		return itoa(d.Value)
	case ast.IdentNode:
		return d.Name
	case ast.BinaryOpNode:
		return "(" + sexpr(d.Left) + " " + d.Op.String() + " " + sexpr(d.Right) + ")"
	case ast.AssignNode:
		return "(" + sexpr(d.Lhs) + " " + d.Op.String() + " " + sexpr(d.Rhs) + ")"
	case ast.UnaryOpNode:
		return "(" + d.Op.String() + sexpr(d.Expr) + ")"
	case ast.PostfixOpNode:
		return "(" + sexpr(d.Expr) + d.Op.String() + ")"
	case ast.TernaryNode:
		return "(" + sexpr(d.Cond) + " ? " + sexpr(d.ThenExpr) + " : " + sexpr(d.ElseExpr) + ")"
	case ast.FuncCallNode:
		s := sexpr(d.FuncExpr) + "("
		for i, a := range d.Args {
			if i > 0 {
				s += ", "
			}
			s += sexpr(a)
		}
		return s + ")"
	case ast.CastNode:
		return "(cast " + sexpr(d.Expr) + ")"
	}
	return n.Type.String()
}

func itoa(v int64) string {
	if v < 0 {
		return "-" + itoa(-v)
	}
	if v < 10 {
		return string(rune('0' + v))
	}
	return itoa(v/10) + string(rune('0'+v%10))
}

func TestPrecedence(t *testing.T) {
	tests := map[string]string{
		"a + b * c":         "(a + (b * c))",
		"a - b - c":         "((a - b) - c)",
		"a = b = c":         "(a = (b = c))",
		"a < b == c > d":    "((a < b) == (c > d))",
		"a || b && c":       "(a || (b && c))",
		"-a * !b":           "((-a) * (!b))",
		"x += y++ * ++z":    "(x += ((y++) * (++z)))",
		"c ? a : b ? d : e": "(c ? a : (b ? d : e))",
		"f(a, b + 1)(c)":    "f(a, (b + 1))(c)",
		"(long)a + 1":       "((cast a) + 1)",
		"a % b / c":         "((a % b) / c)",
	}
	for src, want := range tests {
		assert.Equal(t, want, sexpr(expr(t, src)), src)
	}
}

func TestNumberSuffixes(t *testing.T) {
	tests := []struct {
		src            string
		value          int64
		unsigned, long bool
	}{
		{"42", 42, false, false},
		{"0x10", 16, false, false},
		{"010", 8, false, false},
		{"7u", 7, true, false},
		{"9L", 9, false, true},
		{"3ull", 3, true, true},
		{"'A'", 65, false, false},
	}
	for _, tt := range tests {
		n := expr(t, tt.src).Data.(ast.NumberNode)
		assert.Equal(t, ast.NumberNode{Value: tt.value, Unsigned: tt.unsigned, Long: tt.long}, n, tt.src)
	}
}

func TestAdjacentStringsConcatenate(t *testing.T) {
	n := expr(t, `"ab" "cd"`)
	assert.Equal(t, "abcd", n.Data.(ast.StringNode).Value)
}

func TestFunctionDeclarations(t *testing.T) {
	decls := parse(t, `
int printf(const char *fmt, ...);
static unsigned long count(void);
int add(int a, int b) { return a + b; }
`)
	require.Len(t, decls, 3)

	printf := decls[0].Data.(ast.DeclNode)
	require.Len(t, printf.Inits, 1)
	d := printf.Inits[0].Decl
	assert.Equal(t, "printf", d.Name)
	require.Len(t, d.Suffixes, 1)
	assert.True(t, d.Suffixes[0].Variadic)
	require.Len(t, d.Suffixes[0].Params, 1)
	param := d.Suffixes[0].Params[0]
	assert.True(t, param.Specs.Const)
	assert.Len(t, param.Decl.Pointers, 1)

	count := decls[1].Data.(ast.DeclNode)
	assert.True(t, count.Specs.HasStorage(token.Static))
	assert.Empty(t, count.Inits[0].Decl.Suffixes[0].Params, "(void) declares no parameters")

	require.Equal(t, ast.FuncDef, decls[2].Type)
	add := decls[2].Data.(ast.FuncDefNode)
	assert.Equal(t, "add", add.Decl.Name)
	assert.Len(t, add.Decl.Suffixes[0].Params, 2)
	body := add.Body.Data.(ast.BlockNode)
	require.Len(t, body.Stmts, 1)
	assert.Equal(t, ast.Return, body.Stmts[0].Type)
}

func TestStatements(t *testing.T) {
	decls := parse(t, `
int f(int n) {
	int i, s = 0;
	for (i = 0; i < n; i++) s += i;
	for (int j = 0; ; ) break;
	while (n) n--;
	do { n++; } while (n < 3);
	if (n) ; else return 1;
	switch (n) { case 1: s = 2; default: break; }
	goto out;
out:
	return s;
}`)
	body := decls[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts
	var got []ast.NodeType
	for _, s := range body {
		got = append(got, s.Type)
	}
	assert.Equal(t, []ast.NodeType{
		ast.Decl, ast.For, ast.For, ast.While, ast.DoWhile, ast.If, ast.Switch, ast.Goto, ast.Label,
	}, got)

	decl := body[0].Data.(ast.DeclNode)
	require.Len(t, decl.Inits, 2)
	assert.Nil(t, decl.Inits[0].Init)
	assert.NotNil(t, decl.Inits[1].Init)

	loop := body[2].Data.(ast.ForNode)
	assert.Equal(t, ast.Decl, loop.Init.Type)
	assert.Nil(t, loop.Cond)
	assert.Nil(t, loop.Post)

	ifn := body[5].Data.(ast.IfNode)
	assert.Equal(t, ast.Empty, ifn.ThenBody.Type)
	assert.Equal(t, ast.Return, ifn.ElseBody.Type)
}

func TestDanglingElseBindsToInnerIf(t *testing.T) {
	decls := parse(t, "void f(int a, int b) { if (a) if (b) a = 1; else a = 2; }")
	body := decls[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts
	outer := body[0].Data.(ast.IfNode)
	assert.Nil(t, outer.ElseBody)
	inner := outer.ThenBody.Data.(ast.IfNode)
	assert.NotNil(t, inner.ElseBody)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct{ name, src string }{
		{"missing semicolon", "int f(void) { return 1 }"},
		{"missing type", "f(void) { return 1; }"},
		{"assign to rvalue", "int f(void) { 1 = 2; return 0; }"},
		{"unnamed parameter in definition", "int f(int) { return 0; }"},
		{"unbalanced paren", "int f(void) { return (1; }"},
		{"bad suffix", "int f(void) { return 1uu; }"},
		{"octal digit", "int f(void) { return 09; }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tokens(t, tt.src), config.NewConfig()).Parse()
			require.Error(t, err)
			assert.True(t, util.IsKind(err, util.ErrSyntax), "got %v", err)
		})
	}
}
