package mir

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAdd(t *testing.T) *Function {
	t.Helper()
	f := NewFunction("add", Signature{Params: []Type{I32, I32}, Return: I32}, []string{"a", "b"})
	a, err := f.InsertLocal("a", I32)
	require.NoError(t, err)
	b, err := f.InsertLocal("b", I32)
	require.NoError(t, err)

	x, err := f.ReadLocal(0, a)
	require.NoError(t, err)
	y, err := f.ReadLocal(0, b)
	require.NoError(t, err)
	sum, err := f.Binary(0, OpAdd, I32, x, y)
	require.NoError(t, err)
	require.NoError(t, f.Return(0, sum))
	return f
}

func TestExitBlockRejectsAppends(t *testing.T) {
	f := buildAdd(t)
	before := len(f.Blocks[0].Instructions)
	next := f.IDs.NextValue

	_, err := f.Const(0, I32, 1)
	assert.ErrorIs(t, err, ErrExitBlock)
	assert.ErrorIs(t, f.Return(0, NoValue), ErrExitBlock)
	assert.ErrorIs(t, f.Jump(0, 0), ErrExitBlock)

	assert.Len(t, f.Blocks[0].Instructions, before)
	assert.Equal(t, next, f.IDs.NextValue, "failed appends must not consume values")
	assert.NoError(t, f.Verify())
}

func TestBranchSetOnlyOnce(t *testing.T) {
	f := NewFunction("f", Signature{Return: Void}, nil)
	b1 := f.NewBlock()
	require.NoError(t, f.Jump(0, b1))
	assert.ErrorIs(t, f.Jump(0, b1), ErrTerminated)
	assert.ErrorIs(t, f.Return(0, NoValue), ErrTerminated)
	assert.ErrorIs(t, f.Jump(b1, 42), ErrUnknownBlock)

	// Instructions may still be appended to a block that only branches.
	_, err := f.Const(0, I32, 7)
	assert.NoError(t, err)
}

func TestConditionalEdgeNeedsCondition(t *testing.T) {
	f := NewFunction("f", Signature{Return: Void}, nil)
	b1 := f.NewBlock()
	err := f.SetBranch(0, &Branch{Cond: NoValue, Edges: []Edge{{Conditional: true, Target: b1}}})
	assert.Error(t, err)
}

func TestDuplicateLocal(t *testing.T) {
	f := NewFunction("f", Signature{Return: Void}, nil)
	_, err := f.InsertLocal("x", I32)
	require.NoError(t, err)
	_, err = f.InsertLocal("x", I64)
	assert.ErrorIs(t, err, ErrDuplicateLocal)
}

func TestUnknownOperands(t *testing.T) {
	f := NewFunction("f", Signature{Return: I32}, nil)
	_, err := f.Binary(0, OpAdd, I32, 3, 4)
	assert.ErrorIs(t, err, ErrUnknownValue)
	_, err = f.ReadLocal(0, 9)
	assert.ErrorIs(t, err, ErrUnknownLocal)
	_, err = f.DataPtr(0, 0)
	assert.ErrorIs(t, err, ErrUnknownData)
}

func TestComparisonIsI32(t *testing.T) {
	f := NewFunction("f", Signature{Return: I32}, nil)
	x, _ := f.Const(0, I64, 1)
	y, _ := f.Const(0, I64, 2)
	c, err := f.Binary(0, OpCLt, I64, x, y)
	require.NoError(t, err)
	ty, _ := f.TypeOf(c)
	assert.Equal(t, I32, ty)
	assert.Equal(t, I64, f.Blocks[0].Instructions[2].OperandType)
}

func TestValuesAreUnique(t *testing.T) {
	f := buildAdd(t)
	seen := map[Value]bool{}
	for _, b := range f.Blocks {
		for _, ins := range b.Instructions {
			if !ins.HasResult() {
				continue
			}
			assert.False(t, seen[ins.Result], "%s defined twice", ins.Result)
			seen[ins.Result] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestPredecessors(t *testing.T) {
	f := NewFunction("f", Signature{Return: Void}, nil)
	a, b, m := f.NewBlock(), f.NewBlock(), f.NewBlock()
	c, _ := f.Const(0, I32, 1)
	require.NoError(t, f.SetBranch(0, &Branch{Cond: c, Edges: []Edge{{Conditional: true, Target: a}, {Target: b}}}))
	require.NoError(t, f.Jump(a, m))
	require.NoError(t, f.Jump(b, m))
	assert.Equal(t, []int{0, 1, 1, 2}, f.Predecessors())
}

func TestVerifyCatchesBrokenFunction(t *testing.T) {
	f := buildAdd(t)
	f.Blocks[0].Instructions[2].Result = f.Blocks[0].Instructions[0].Result
	f.LocalNames[5] = "ghost"
	err := f.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined in b0 and b0")
	assert.Contains(t, err.Error(), "bijection")
}

func TestPrint(t *testing.T) {
	f := buildAdd(t)
	want := `func add(i32 a, i32 b) i32 {
  local l0 a: i32
  local l1 b: i32
b0:
  v0:i32 = read l0
  v1:i32 = read l1
  v2:i32 = add i32 v0, v1
  ret v2
}
`
	if diff := cmp.Diff(want, f.String()); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	f := buildAdd(t)
	d := f.InsertData([]byte("hi\x00"))
	_, err := f.DataPtr(f.NewBlock(), d)
	require.NoError(t, err)
	p := &Program{Functions: []*Function{f}, Globals: []Global{{Name: "add"}, {Name: "puts", Extern: true}}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))
	got, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0xc0}))
	assert.Error(t, err)
}
