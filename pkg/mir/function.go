package mir

import (
	"errors"
	"fmt"
)

var (
	ErrExitBlock      = errors.New("block has already returned")
	ErrTerminated     = errors.New("block already has a branch set")
	ErrDuplicateLocal = errors.New("local name already in use")
	ErrUnknownValue   = errors.New("value is not defined in this function")
	ErrUnknownLocal   = errors.New("local is not defined in this function")
	ErrUnknownBlock   = errors.New("block index out of range")
	ErrUnknownData    = errors.New("data constant is not defined in this function")
)

// Function is one lowered function definition. Block 0 is the entry.
type Function struct {
	Name       string
	Sig        Signature
	ParamNames []string

	LocalIDs   map[string]Local
	LocalNames map[Local]string
	LocalTypes map[Local]Type
	Data       map[DataConstant][]byte
	ValueTypes map[Value]Type

	Blocks []*Block
	IDs    IDGen
}

// NewFunction returns a function with an empty entry block.
func NewFunction(name string, sig Signature, paramNames []string) *Function {
	return &Function{
		Name:       name,
		Sig:        sig,
		ParamNames: paramNames,
		LocalIDs:   make(map[string]Local),
		LocalNames: make(map[Local]string),
		LocalTypes: make(map[Local]Type),
		Data:       make(map[DataConstant][]byte),
		ValueTypes: make(map[Value]Type),
		Blocks:     []*Block{{}},
	}
}

// NewBlock appends an empty block and returns its index.
func (f *Function) NewBlock() BlockID {
	f.Blocks = append(f.Blocks, &Block{})
	return BlockID(len(f.Blocks) - 1)
}

// Block returns the block at id, or nil.
func (f *Function) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

// InsertLocal allocates a Local bound to name.
func (f *Function) InsertLocal(name string, t Type) (Local, error) {
	if _, ok := f.LocalIDs[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateLocal, name)
	}
	l := f.IDs.NextLocal
	f.IDs.NextLocal++
	f.LocalIDs[name] = l
	f.LocalNames[l] = name
	f.LocalTypes[l] = t
	return l, nil
}

func (f *Function) LocalByName(name string) (Local, bool) {
	l, ok := f.LocalIDs[name]
	return l, ok
}

// InsertData interns a byte string as a constant of this function.
func (f *Function) InsertData(b []byte) DataConstant {
	d := f.IDs.NextData
	f.IDs.NextData++
	f.Data[d] = b
	return d
}

func (f *Function) newValue(t Type) Value {
	v := f.IDs.NextValue
	f.IDs.NextValue++
	f.ValueTypes[v] = t
	return v
}

// TypeOf returns the type of v.
func (f *Function) TypeOf(v Value) (Type, bool) {
	t, ok := f.ValueTypes[v]
	return t, ok
}

func (f *Function) appendable(id BlockID) (*Block, error) {
	b := f.Block(id)
	if b == nil {
		return nil, fmt.Errorf("%w: b%d", ErrUnknownBlock, id)
	}
	if b.Exit {
		return nil, fmt.Errorf("%w: b%d", ErrExitBlock, id)
	}
	return b, nil
}

func (f *Function) checkValues(vs ...Value) error {
	for _, v := range vs {
		if _, ok := f.ValueTypes[v]; !ok {
			return fmt.Errorf("%w: v%d", ErrUnknownValue, v)
		}
	}
	return nil
}

// emit appends ins to block id and gives it a fresh result of type res
// unless res is Void. No Value is allocated when the append fails.
func (f *Function) emit(id BlockID, ins *Instruction, res Type) (Value, error) {
	b, err := f.appendable(id)
	if err != nil {
		return NoValue, err
	}
	if err := f.checkValues(ins.Args...); err != nil {
		return NoValue, err
	}
	ins.Result = NoValue
	if res != Void {
		ins.Result = f.newValue(res)
	}
	b.Instructions = append(b.Instructions, ins)
	return ins.Result, nil
}

func (f *Function) Const(id BlockID, t Type, imm int64) (Value, error) {
	return f.emit(id, &Instruction{Op: OpConst, Typ: t, Imm: imm}, t)
}

// DataPtr yields the address of d as an I64.
func (f *Function) DataPtr(id BlockID, d DataConstant) (Value, error) {
	if _, ok := f.Data[d]; !ok {
		return NoValue, fmt.Errorf("%w: d%d", ErrUnknownData, d)
	}
	return f.emit(id, &Instruction{Op: OpDataPtr, Typ: I64, Data: d}, I64)
}

func (f *Function) ReadLocal(id BlockID, l Local) (Value, error) {
	t, ok := f.LocalTypes[l]
	if !ok {
		return NoValue, fmt.Errorf("%w: l%d", ErrUnknownLocal, l)
	}
	return f.emit(id, &Instruction{Op: OpReadLocal, Typ: t, Local: l}, t)
}

func (f *Function) WriteLocal(id BlockID, l Local, v Value) error {
	t, ok := f.LocalTypes[l]
	if !ok {
		return fmt.Errorf("%w: l%d", ErrUnknownLocal, l)
	}
	_, err := f.emit(id, &Instruction{Op: OpWriteLocal, Typ: t, Local: l, Args: []Value{v}}, Void)
	return err
}

// Binary appends an arithmetic op or comparison on operands of type t.
// Comparisons always produce an I32 0 or 1.
func (f *Function) Binary(id BlockID, op Op, t Type, x, y Value) (Value, error) {
	if !op.IsArithmetic() && !op.IsCompare() {
		return NoValue, fmt.Errorf("mir: %s is not a binary op", op)
	}
	res := t
	if op.IsCompare() {
		res = I32
	}
	return f.emit(id, &Instruction{Op: op, Typ: res, OperandType: t, Args: []Value{x, y}}, res)
}

// Convert appends a conversion of v to type to. The source type is v's own.
func (f *Function) Convert(id BlockID, to Type, v Value) (Value, error) {
	from, ok := f.ValueTypes[v]
	if !ok {
		return NoValue, fmt.Errorf("%w: v%d", ErrUnknownValue, v)
	}
	return f.emit(id, &Instruction{Op: OpConvert, Typ: to, OperandType: from, Args: []Value{v}}, to)
}

// Call appends a call to callee. The result is NoValue for void callees.
func (f *Function) Call(id BlockID, callee string, sig *Signature, args []Value) (Value, error) {
	return f.emit(id, &Instruction{Op: OpCall, Typ: sig.Return, Callee: callee, Sig: sig, Args: args}, sig.Return)
}

// Return appends a return and marks the block as an exit. v is NoValue
// for a bare return.
func (f *Function) Return(id BlockID, v Value) error {
	ins := &Instruction{Op: OpReturn, Typ: Void}
	if v != NoValue {
		ins.Args = []Value{v}
		ins.Typ = f.ValueTypes[v]
	}
	if f.Block(id) != nil && f.Blocks[id].Branch != nil {
		return fmt.Errorf("%w: b%d", ErrTerminated, id)
	}
	if _, err := f.emit(id, ins, Void); err != nil {
		return err
	}
	f.Blocks[id].Exit = true
	return nil
}

// SetBranch attaches the branch set of block id. A block gets at most one
// branch set and never one after it returned.
func (f *Function) SetBranch(id BlockID, br *Branch) error {
	b, err := f.appendable(id)
	if err != nil {
		return err
	}
	if b.Branch != nil {
		return fmt.Errorf("%w: b%d", ErrTerminated, id)
	}
	if br.Cond != NoValue {
		if err := f.checkValues(br.Cond); err != nil {
			return err
		}
	}
	for _, e := range br.Edges {
		if f.Block(e.Target) == nil {
			return fmt.Errorf("%w: b%d -> b%d", ErrUnknownBlock, id, e.Target)
		}
		if e.Conditional && br.Cond == NoValue {
			return fmt.Errorf("mir: conditional edge b%d -> b%d without a condition", id, e.Target)
		}
	}
	b.Branch = br
	return nil
}

// Jump sets an unconditional branch from id to target.
func (f *Function) Jump(id, target BlockID) error {
	return f.SetBranch(id, &Branch{Cond: NoValue, Edges: []Edge{{Target: target}}})
}

// Predecessors counts the incoming edges of every block.
func (f *Function) Predecessors() []int {
	preds := make([]int, len(f.Blocks))
	for _, b := range f.Blocks {
		if b.Branch == nil {
			continue
		}
		for _, e := range b.Branch.Edges {
			preds[e.Target]++
		}
	}
	return preds
}
