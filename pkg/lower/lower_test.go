package lower

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/lexer"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/parser"
	"github.com/xplshn/jcc/pkg/util"
)

func lowerSource(t *testing.T, src string) (*mir.Program, error) {
	t.Helper()
	util.Output = io.Discard
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	require.NoError(t, err)
	root, err := parser.NewParser(toks, cfg).Parse()
	require.NoError(t, err)
	return Program(root, cfg)
}

func mustLower(t *testing.T, src string) *mir.Program {
	t.Helper()
	prog, err := lowerSource(t, src)
	require.NoError(t, err)
	require.NoError(t, prog.Verify())
	return prog
}

func ops(b *mir.Block) []mir.Op {
	var out []mir.Op
	for _, ins := range b.Instructions {
		out = append(out, ins.Op)
	}
	return out
}

func count(fn *mir.Function, op mir.Op) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, ins := range b.Instructions {
			if ins.Op == op {
				n++
			}
		}
	}
	return n
}

func TestAddLowersToOneBlock(t *testing.T) {
	prog := mustLower(t, "int add(int a, int b) { return a + b; }")
	fn := prog.Function("add")
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 1)

	want := []mir.Op{mir.OpReadLocal, mir.OpReadLocal, mir.OpAdd, mir.OpReturn}
	if diff := cmp.Diff(want, ops(fn.Blocks[0])); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, fn.Blocks[0].Exit)
	assert.Equal(t, []string{"a", "b"}, fn.ParamNames)
	assert.Equal(t, []mir.Global{{Name: "add"}}, prog.Globals)
}

func TestIfWithoutElseAddsTwoBlocks(t *testing.T) {
	fn := mustLower(t, "int f(int c) { if (c) c = 1; return c; }").Function("f")
	require.Len(t, fn.Blocks, 3)

	br := fn.Blocks[0].Branch
	require.NotNil(t, br)
	assert.Equal(t, []mir.Edge{{Conditional: true, Target: 1}, {Target: 2}}, br.Edges)
	assert.NotEqual(t, mir.NoValue, br.Cond)

	require.NotNil(t, fn.Blocks[1].Branch)
	assert.Equal(t, []mir.Edge{{Target: 2}}, fn.Blocks[1].Branch.Edges)
	assert.True(t, fn.Blocks[2].Exit)
}

func TestIfElseDefaultEdgeGoesToElse(t *testing.T) {
	fn := mustLower(t, "int f(int c) { int r; if (c > 0) r = 1; else r = 2; return r; }").Function("f")
	require.Len(t, fn.Blocks, 4)
	assert.Equal(t, []mir.Edge{{Conditional: true, Target: 1}, {Target: 2}}, fn.Blocks[0].Branch.Edges)
	assert.Equal(t, []mir.Edge{{Target: 3}}, fn.Blocks[1].Branch.Edges)
	assert.Equal(t, []mir.Edge{{Target: 3}}, fn.Blocks[2].Branch.Edges)

	// A comparison feeds the branch directly.
	last := fn.Blocks[0].Instructions[len(fn.Blocks[0].Instructions)-1]
	assert.Equal(t, mir.OpCGt, last.Op)
	assert.Equal(t, last.Result, fn.Blocks[0].Branch.Cond)
}

func TestForLoopBlockOrder(t *testing.T) {
	fn := mustLower(t, `
int sum(void) {
	int s = 0;
	for (int i = 0; i < 5; i++)
		s += i;
	return s;
}`).Function("sum")
	require.Len(t, fn.Blocks, 4)
	const header, end, body = 1, 2, 3

	assert.Equal(t, []mir.Edge{{Target: header}}, fn.Blocks[0].Branch.Edges)
	assert.Equal(t, []mir.Edge{{Conditional: true, Target: body}, {Target: end}}, fn.Blocks[header].Branch.Edges)
	assert.Equal(t, []mir.Edge{{Target: header}}, fn.Blocks[body].Branch.Edges, "the only back-edge")
	assert.True(t, fn.Blocks[end].Exit)
	assert.Equal(t, []int{0, 2, 1, 1}, fn.Predecessors())

	// i++ follows the loop body in the body block.
	bodyOps := ops(fn.Blocks[body])
	assert.Equal(t, mir.OpWriteLocal, bodyOps[len(bodyOps)-1])
	i, ok := fn.LocalByName("i")
	require.True(t, ok)
	assert.Equal(t, i, fn.Blocks[body].Instructions[len(bodyOps)-1].Local)
}

func TestExitBlocksNeverBranch(t *testing.T) {
	srcs := []string{
		"int f(int c) { if (c) return 1; else return 2; }",
		"int f(int c) { if (c) return 1; return 2; }",
		"int f(int c) { if (c) { if (c > 1) return 3; else return 4; } else return 2; }",
		"int f(int c) { if (c) { if (c > 1) return 3; c = 0; } return c; }",
		"int f(int c) { for (;;) { return c; } }",
	}
	for _, src := range srcs {
		fn := mustLower(t, src).Function("f")
		for i, b := range fn.Blocks {
			assert.True(t, b.Terminated(), "%s: b%d", src, i)
			if b.Exit {
				assert.Nil(t, b.Branch, "%s: b%d", src, i)
			}
		}
	}
}

func TestValuesAreUnique(t *testing.T) {
	prog := mustLower(t, `
int printf(const char *fmt, ...);
int fib(int n) {
	int a = 0;
	int b = 1;
	for (int i = 0; i < n; i++) {
		int t = a + b;
		a = b;
		b = t;
	}
	return a;
}
int main(void) {
	for (int i = 0; i < 10; ++i)
		printf("%d\n", fib(i));
	return 0;
}`)
	for _, fn := range prog.Functions {
		seen := make(map[mir.Value]bool)
		for _, b := range fn.Blocks {
			for _, ins := range b.Instructions {
				if !ins.HasResult() {
					continue
				}
				assert.False(t, seen[ins.Result], "%s: v%d defined twice", fn.Name, ins.Result)
				seen[ins.Result] = true
			}
		}
		assert.Len(t, seen, len(fn.ValueTypes))
	}
}

func TestMismatchedUnsignedOperandsConvertBoth(t *testing.T) {
	fn := mustLower(t, "unsigned f(unsigned char a, unsigned int b) { return a + b; }").Function("f")
	require.Equal(t, 2, count(fn, mir.OpConvert))
	for _, ins := range fn.Blocks[0].Instructions {
		if ins.Op == mir.OpConvert {
			assert.Equal(t, mir.U32, ins.Typ)
		}
	}

	fn = mustLower(t, "int g(int a, int b) { return a * b; }").Function("g")
	assert.Zero(t, count(fn, mir.OpConvert))
}

func TestStringLiteral(t *testing.T) {
	prog := mustLower(t, `int puts(const char *s); int main(void) { puts("hi"); return 0; }`)
	fn := prog.Function("main")
	require.Len(t, fn.Data, 1)
	for _, b := range fn.Data {
		assert.Equal(t, []byte("hi\x00"), b)
	}
	assert.Equal(t, 1, count(fn, mir.OpDataPtr))
	assert.Equal(t, []mir.Global{{Name: "puts", Extern: true}, {Name: "main"}}, prog.Globals)
}

func TestVariadicCallKeepsArgumentTypes(t *testing.T) {
	fn := mustLower(t, `
int printf(const char *fmt, ...);
int main(void) {
	char c = 'a';
	long n = 7;
	printf("%d %c %ld\n", 42, c, n);
	return 0;
}`).Function("main")

	var call *mir.Instruction
	for _, ins := range fn.Blocks[0].Instructions {
		if ins.Op == mir.OpCall {
			call = ins
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "printf", call.Callee)
	assert.Equal(t, &mir.Signature{Params: []mir.Type{mir.I64}, Return: mir.I32, Variadic: true}, call.Sig)

	var got []mir.Type
	for _, a := range call.Args {
		typ, ok := fn.TypeOf(a)
		require.True(t, ok)
		got = append(got, typ)
	}
	assert.Equal(t, []mir.Type{mir.I64, mir.I32, mir.I32, mir.I64}, got, "char is promoted to int")
}

func TestBareReturnInNonVoidFunction(t *testing.T) {
	fn := mustLower(t, "int f(void) { return; }").Function("f")
	assert.Equal(t, []mir.Op{mir.OpConst, mir.OpReturn}, ops(fn.Blocks[0]))
	assert.Equal(t, int64(0), fn.Blocks[0].Instructions[0].Imm)
	assert.Equal(t, mir.I32, fn.Blocks[0].Instructions[0].Typ)
}

func TestImplicitReturns(t *testing.T) {
	prog := mustLower(t, "void v(void) { } int main(void) { v(); }")
	assert.Equal(t, []mir.Op{mir.OpReturn}, ops(prog.Function("v").Blocks[0]))
	assert.Equal(t, []mir.Op{mir.OpCall, mir.OpConst, mir.OpReturn}, ops(prog.Function("main").Blocks[0]))
}

func TestShadowedLocalsGetDistinctSlots(t *testing.T) {
	fn := mustLower(t, "int f(int x) { { int x = 2; x = x + 1; } return x; }").Function("f")
	outer, ok := fn.LocalByName("x")
	require.True(t, ok)
	inner, ok := fn.LocalByName("x.1")
	require.True(t, ok)
	assert.NotEqual(t, outer, inner)

	ins := fn.Blocks[0].Instructions
	ret := ins[len(ins)-1]
	read := ins[len(ins)-2]
	require.Equal(t, mir.OpReturn, ret.Op)
	assert.Equal(t, outer, read.Local)
}

func TestLoweringErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind util.ErrorKind
	}{
		{"while", "int f(void) { while (1) {} return 0; }", util.ErrUnsupported},
		{"switch", "int f(int x) { switch (x) { default: return 1; } }", util.ErrUnsupported},
		{"pointer arithmetic", `int f(void) { char *p = "ab"; p = p + 1; return 0; }`, util.ErrUnsupported},
		{"logical and", "int f(int a, int b) { return a && b; }", util.ErrUnsupported},
		{"file-scope variable", "int g; int f(void) { return 0; }", util.ErrUnsupported},
		{"undeclared variable", "int f(void) { return x; }", util.ErrUnresolved},
		{"undeclared callee", "int f(void) { return g(); }", util.ErrUnresolved},
		{"void value", "void g(void); int f(void) { return g(); }", util.ErrTypeMismatch},
		{"argument count", "int g(int a); int f(void) { return g(); }", util.ErrTypeMismatch},
		{"redefinition", "int f(void) { return 0; } int f(void) { return 1; }", util.ErrTypeMismatch},
		{"conflicting types", "long f(void); int f(void) { return 0; }", util.ErrTypeMismatch},
		{"value from void function", "void f(int x) { return x; }", util.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lowerSource(t, tt.src)
			require.Error(t, err)
			assert.True(t, util.IsKind(err, tt.kind), "got %v", err)
			assert.False(t, util.IsKind(err, util.ErrInternal))
		})
	}
}

func TestVoidContextToleratesValues(t *testing.T) {
	fn := mustLower(t, "int g(void); void f(void) { g(); (void)g(); }").Function("f")
	assert.Equal(t, 2, count(fn, mir.OpCall))
	assert.Zero(t, count(fn, mir.OpConvert))
}

func TestIntegerStoredIntoPointerWarns(t *testing.T) {
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(`
int puts(const char *s);
void f(int n) {
	char *p = 5;
	char *q = 0;
	char *r = "x";
	p = n;
	puts(7);
	puts(r);
	q = r;
}`), 0, cfg)
	require.NoError(t, err)
	root, err := parser.NewParser(toks, cfg).Parse()
	require.NoError(t, err)

	var out bytes.Buffer
	util.Output = &out
	t.Cleanup(func() { util.Output = io.Discard })
	prog, err := Program(root, cfg)
	require.NoError(t, err)
	require.NoError(t, prog.Verify())

	assert.Equal(t, 3, strings.Count(out.String(), "without a cast [-Wtype]"), out.String())
	assert.Contains(t, out.String(), "integer converted to pointer 'char *'")
	assert.Contains(t, out.String(), "integer converted to pointer 'const char *'")
	assert.Contains(t, out.String(), ":4:12:", "points at the initializer")
}

func TestSideEffectStatements(t *testing.T) {
	fn := mustLower(t, "int f(int n) { int s = 1; s += n; s *= 2; s++; --s; n--; return s; }").Function("f")
	require.Len(t, fn.Blocks, 1)
	assert.Equal(t, 2, count(fn, mir.OpAdd))
	assert.Equal(t, 2, count(fn, mir.OpSub))
	assert.Equal(t, 1, count(fn, mir.OpMul))
	assert.Equal(t, 6, count(fn, mir.OpWriteLocal), "one initializer and five updates")
}
