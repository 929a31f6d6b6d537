package codegen

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/lexer"
	"github.com/xplshn/jcc/pkg/lower"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/parser"
	"github.com/xplshn/jcc/pkg/qbe"
	"github.com/xplshn/jcc/pkg/util"
)

const testTarget = "amd64_sysv"

func lowerSource(t *testing.T, src string) *mir.Program {
	t.Helper()
	util.Output = io.Discard
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	require.NoError(t, err)
	root, err := parser.NewParser(toks, cfg).Parse()
	require.NoError(t, err)
	prog, err := lower.Program(root, cfg)
	require.NoError(t, err)
	return prog
}

func machine(t *testing.T, src string) (*qbe.Machine, string) {
	t.Helper()
	m, err := Translate(lowerSource(t, src), testTarget)
	require.NoError(t, err)
	il, err := m.IL()
	require.NoError(t, err)
	return qbe.NewMachine(m), il
}

func call(t *testing.T, mach *qbe.Machine, name string, args ...int64) int64 {
	t.Helper()
	got, err := mach.Call(name, args...)
	require.NoError(t, err)
	return got
}

func TestAddRoundTrip(t *testing.T) {
	mach, il := machine(t, "int add(int a, int b) { return a + b; }")
	assert.Contains(t, il, "export function w $add(w %v0, w %v1) {")
	assert.Equal(t, int64(4777), call(t, mach, "add", 4000, 777))
}

func TestLoopMutatingOuterVariable(t *testing.T) {
	mach, il := machine(t, `
int sum(void) {
	int s = 0;
	for (int i = 0; i < 5; i++)
		s += i;
	return s;
}`)
	assert.Contains(t, il, "phi")
	assert.Equal(t, int64(10), call(t, mach, "sum"))
}

func TestNestedLoops(t *testing.T) {
	mach, _ := machine(t, `
int mul(int a, int b) {
	int r = 0;
	for (int i = 0; i < a; i++)
		for (int j = 0; j < b; j++)
			r++;
	return r;
}`)
	assert.Equal(t, int64(12), call(t, mach, "mul", 3, 4))
	assert.Equal(t, int64(0), call(t, mach, "mul", 0, 4))
}

func TestRecursion(t *testing.T) {
	mach, _ := machine(t, `
int fib(int n) {
	if (n < 2)
		return n;
	return fib(n - 1) + fib(n - 2);
}`)
	assert.Equal(t, int64(55), call(t, mach, "fib", 10))
}

func TestIfElseChain(t *testing.T) {
	mach, _ := machine(t, `
int sign(int x) {
	if (x < 0)
		return -1;
	else if (x > 0)
		return 1;
	return 0;
}`)
	assert.Equal(t, int64(-1), call(t, mach, "sign", -5))
	assert.Equal(t, int64(0), call(t, mach, "sign", 0))
	assert.Equal(t, int64(1), call(t, mach, "sign", 7))
}

func TestIntegerWidths(t *testing.T) {
	mach, _ := machine(t, `
unsigned widen(unsigned char a, unsigned b) { return a + b; }
unsigned udiv(unsigned a, unsigned b) { return a / b; }
int sdiv(int a, int b) { return a / b; }
int schar(void) { char c = 200; return c; }
long big(void) { long x = 3000000000; return x + 1; }
int truth(int x) { return !x; }
`)
	assert.Equal(t, int64(300), call(t, mach, "widen", 200, 100))
	assert.Equal(t, int64(2147483647), call(t, mach, "udiv", 4294967294, 2))
	assert.Equal(t, int64(-1), call(t, mach, "sdiv", -2, 2))
	assert.Equal(t, int64(-56), call(t, mach, "schar"))
	assert.Equal(t, int64(3000000001), call(t, mach, "big"))
	assert.Equal(t, int64(1), call(t, mach, "truth", 0))
	assert.Equal(t, int64(0), call(t, mach, "truth", 9))
}

func TestHelloWorld(t *testing.T) {
	mach, il := machine(t, `
int puts(const char *s);
int main(void) {
	puts("hello");
	puts("hello");
	return 0;
}`)
	assert.Contains(t, il, "data $anon.0 = { b 104, b 101, b 108, b 108, b 111, b 0 }")
	assert.NotContains(t, il, "$anon.1 =")

	var out []string
	mach.Register("puts", func(m *qbe.Machine, args []int64) int64 {
		s, err := m.CString(args[0])
		require.NoError(t, err)
		out = append(out, s)
		return 0
	})
	assert.Equal(t, int64(0), call(t, mach, "main"))
	assert.Equal(t, []string{"hello", "hello"}, out)
}

func TestVariadicCallSite(t *testing.T) {
	mach, il := machine(t, `
int printf(const char *fmt, ...);
int main(void) {
	printf("%d %s\n", 42, "x");
	return 0;
}`)
	assert.Regexp(t, `call \$printf\(l %v\d+, \.\.\., w %v\d+, l %v\d+\)`, il)

	var got []int64
	mach.Register("printf", func(m *qbe.Machine, args []int64) int64 {
		got = append(got, args...)
		return int64(len(args))
	})
	call(t, mach, "main")
	require.Len(t, got, 3)
	assert.Equal(t, int64(42), got[1])
	s, err := mach.CString(got[2])
	require.NoError(t, err)
	assert.Equal(t, "x", s)
}

var corpus = []string{
	"int add(int a, int b) { return a + b; }",
	"void nothing(void) { }",
	"int f(int c) { if (c) return 1; else return 2; }",
	"int f(int c) { if (c) { if (c > 1) return 3; c = 0; } return c; }",
	"int f(int c) { for (;;) { return c; } }",
	"int f(void) { return; }",
	"int f(int x) { { int x = 2; x = x + 1; } return x; }",
	"int f(int x) { int y = x++; ++x; x -= 2; return x * y % 7; }",
	"long f(short a, unsigned char b) { return a - b; }",
	"int f(int a) { int b; if (a >= 0) b = a; else b = -a; return b; }",
	`int puts(const char *s); int main(void) { for (int i = 0; i < 3; i++) puts("again"); }`,
	"int g(int x) { return x; } int f(void) { return g(1) + g(2); }",
	"int f(void) { return (int)sizeof(long) + (char)300; }",
	"unsigned long f(unsigned long n) { unsigned long acc = 1; for (; n > 1; n--) acc *= n; return acc; }",
}

func TestCorpusTranslatesCleanly(t *testing.T) {
	for _, src := range corpus {
		prog := lowerSource(t, src)
		require.NoError(t, prog.Verify(), src)

		m, err := Translate(prog, testTarget)
		require.NoError(t, err, src)
		_, err = m.IL()
		assert.NoError(t, err, src)

		_, err = TranslateLLVM(prog, "x86_64-unknown-linux-gnu")
		assert.NoError(t, err, src)
		assert.False(t, util.IsKind(err, util.ErrInternal), src)
	}
}

func TestFactorialUnsignedLong(t *testing.T) {
	mach, _ := machine(t, corpus[len(corpus)-1])
	assert.Equal(t, int64(3628800), call(t, mach, "f", 10))
}

func TestLLVMText(t *testing.T) {
	mod, err := TranslateLLVM(lowerSource(t, `
int printf(const char *fmt, ...);
int add(int a, int b) { return a + b; }
int main(void) {
	for (int i = 0; i < 3; i++)
		printf("%d\n", add(i, 1));
	return 0;
}`), "x86_64-unknown-linux-gnu")
	require.NoError(t, err)
	text := mod.String()

	assert.Contains(t, text, `target triple = "x86_64-unknown-linux-gnu"`)
	assert.Regexp(t, `define (external )?i32 @add\(i32 %a, i32 %b\)`, text)
	assert.Regexp(t, `declare (external )?i32 @printf\(`, text)
	assert.Contains(t, text, "...)")
	assert.Contains(t, text, "icmp slt i32")
	assert.Contains(t, text, "zext i1")
	assert.Contains(t, text, "ptrtoint")
	assert.Contains(t, text, `c"%d\0A\00"`)
}

func TestSelectBackend(t *testing.T) {
	b, err := Select("qbe")
	require.NoError(t, err)
	assert.Equal(t, ".s", b.OutputExt())
	_, err = Select("llvm")
	assert.NoError(t, err)
	_, err = Select("gcc")
	assert.Error(t, err)
}
