package qbe

import (
	"fmt"
)

type opcode uint8

const (
	opIconst opcode = iota
	opSymbol
	opAdd
	opSub
	opMul
	opSdiv
	opUdiv
	opSrem
	opUrem
	opIcmp
	opSextend
	opUextend
	opIreduce
	opCall
)

type instr struct {
	op   opcode
	typ  Type
	res  Value
	args []Value
	imm  int64
	cc   IntCC
	sym  string
	sig  *Signature
	rets []Value
}

type phiArg struct {
	pred Block
	val  Value
}

type phi struct {
	res      Value
	typ      Type
	block    Block
	args     []phiArg
	complete bool
	dead     bool
}

type termKind uint8

const (
	termJump termKind = iota
	termBrnz
	termReturn
)

type terminator struct {
	kind termKind
	cond Value
	then Block
	els  Block
	vals []Value
}

type pendingPhi struct {
	v Variable
	p *phi
}

type blockData struct {
	params  []Value
	phis    []*phi
	insts   []*instr
	term    *terminator
	preds   []Block
	sealed  bool
	pending []pendingPhi
	defs    map[Variable]Value
}

// Context holds the finalized function between FunctionBuilder.Finalize
// and Module.DefineFunction. One Context is reused for every function.
type Context struct {
	fn *function
}

func NewContext() *Context { return &Context{} }

// FunctionBuilder builds one function. The first error is sticky: every
// later call is a no-op and Finalize reports it.
type FunctionBuilder struct {
	m       *Module
	ctx     *Context
	sig     *Signature
	blocks  []*blockData
	cur     Block
	values  []Type
	alias   map[Value]Value
	vars    map[Variable]Type
	imports []*Signature
	names   []string
	insts   []*instr
	err     error
}

// NewFunctionBuilder starts a function with signature sig. The entry
// block is created, sealed and selected.
func (m *Module) NewFunctionBuilder(ctx *Context, sig *Signature) *FunctionBuilder {
	ctx.fn = nil
	fb := &FunctionBuilder{
		m:     m,
		ctx:   ctx,
		sig:   sig,
		alias: make(map[Value]Value),
		vars:  make(map[Variable]Type),
	}
	entry := fb.CreateBlock()
	fb.blocks[entry].sealed = true
	return fb
}

// Err returns the first error recorded by the builder.
func (fb *FunctionBuilder) Err() error { return fb.err }

func (fb *FunctionBuilder) fail(err error) {
	if fb.err == nil {
		fb.err = err
	}
}

func (fb *FunctionBuilder) newValue(t Type) Value {
	fb.values = append(fb.values, t)
	return Value(len(fb.values) - 1)
}

func (fb *FunctionBuilder) typeOf(v Value) (Type, bool) {
	v = fb.resolve(v)
	if int(v) >= len(fb.values) {
		fb.fail(fmt.Errorf("qbe: unknown value %%v%d", v))
		return 0, false
	}
	return fb.values[v], true
}

// TypeOf reports the type of v.
func (fb *FunctionBuilder) TypeOf(v Value) Type {
	t, _ := fb.typeOf(v)
	return t
}

func (fb *FunctionBuilder) resolve(v Value) Value {
	for {
		a, ok := fb.alias[v]
		if !ok {
			return v
		}
		v = a
	}
}

func (fb *FunctionBuilder) EntryBlock() Block { return 0 }

func (fb *FunctionBuilder) CurrentBlock() Block { return fb.cur }

func (fb *FunctionBuilder) CreateBlock() Block {
	fb.blocks = append(fb.blocks, &blockData{defs: make(map[Variable]Value)})
	return Block(len(fb.blocks) - 1)
}

func (fb *FunctionBuilder) block(b Block) *blockData {
	if b < 0 || int(b) >= len(fb.blocks) {
		fb.fail(fmt.Errorf("qbe: unknown block @b%d", b))
		return nil
	}
	return fb.blocks[b]
}

// AppendBlockParamsForFunctionParams gives b one parameter per signature
// parameter. Only the entry block takes parameters.
func (fb *FunctionBuilder) AppendBlockParamsForFunctionParams(b Block) {
	if b != fb.EntryBlock() {
		fb.fail(fmt.Errorf("qbe: only the entry block has parameters"))
		return
	}
	blk := fb.blocks[b]
	if len(blk.params) > 0 {
		return
	}
	for _, p := range fb.sig.Params {
		blk.params = append(blk.params, fb.newValue(p.Type))
	}
}

func (fb *FunctionBuilder) BlockParams(b Block) []Value {
	if blk := fb.block(b); blk != nil {
		return blk.params
	}
	return nil
}

func (fb *FunctionBuilder) SwitchToBlock(b Block) {
	if fb.block(b) != nil {
		fb.cur = b
	}
}

// SealBlock declares that b gets no further predecessors and completes
// the phis of variables read in b so far.
func (fb *FunctionBuilder) SealBlock(b Block) {
	blk := fb.block(b)
	if blk == nil || blk.sealed {
		return
	}
	// Completing one phi may read through b again and queue another.
	for i := 0; i < len(blk.pending); i++ {
		pp := blk.pending[i]
		fb.addPhiOperands(pp.v, pp.p)
	}
	blk.pending = nil
	blk.sealed = true
}

func (fb *FunctionBuilder) SealAllBlocks() {
	for i := range fb.blocks {
		fb.SealBlock(Block(i))
	}
}

func (fb *FunctionBuilder) addEdge(from, to Block) bool {
	blk := fb.block(to)
	if blk == nil {
		return false
	}
	if blk.sealed {
		fb.fail(fmt.Errorf("%w: edge @b%d -> @b%d", ErrSealed, from, to))
		return false
	}
	blk.preds = append(blk.preds, from)
	return true
}

// DeclareVar introduces a mutable variable of type t.
func (fb *FunctionBuilder) DeclareVar(v Variable, t Type) {
	if prev, ok := fb.vars[v]; ok && prev != t {
		fb.fail(fmt.Errorf("%w: variable %d redeclared as %s, was %s", ErrType, v, t, prev))
		return
	}
	fb.vars[v] = t
}

// DefVar assigns val to v in the current block.
func (fb *FunctionBuilder) DefVar(v Variable, val Value) {
	if fb.err != nil {
		return
	}
	vt, ok := fb.vars[v]
	if !ok {
		fb.fail(fmt.Errorf("%w: %d", ErrUndeclared, v))
		return
	}
	if t, ok := fb.typeOf(val); ok && t != vt {
		fb.fail(fmt.Errorf("%w: variable %d is %s, value is %s", ErrType, v, vt, t))
		return
	}
	fb.blocks[fb.cur].defs[v] = val
}

// UseVar returns the value of v reaching the current block.
func (fb *FunctionBuilder) UseVar(v Variable) Value {
	if fb.err != nil {
		return NoValue
	}
	if _, ok := fb.vars[v]; !ok {
		fb.fail(fmt.Errorf("%w: %d", ErrUndeclared, v))
		return NoValue
	}
	return fb.resolve(fb.readVariable(v, fb.cur))
}

func (fb *FunctionBuilder) readVariable(v Variable, b Block) Value {
	if val, ok := fb.blocks[b].defs[v]; ok {
		return val
	}
	blk := fb.blocks[b]
	t := fb.vars[v]
	var val Value
	switch {
	case !blk.sealed:
		p := fb.newPhi(b, t)
		blk.pending = append(blk.pending, pendingPhi{v: v, p: p})
		val = p.res
	case len(blk.preds) == 0:
		// read before any definition
		val = fb.zero(t)
	case len(blk.preds) == 1:
		val = fb.readVariable(v, blk.preds[0])
	default:
		p := fb.newPhi(b, t)
		blk.defs[v] = p.res
		val = fb.addPhiOperands(v, p)
	}
	blk.defs[v] = val
	return val
}

func (fb *FunctionBuilder) newPhi(b Block, t Type) *phi {
	p := &phi{res: fb.newValue(t), typ: t, block: b}
	fb.blocks[b].phis = append(fb.blocks[b].phis, p)
	return p
}

func (fb *FunctionBuilder) addPhiOperands(v Variable, p *phi) Value {
	for _, pred := range fb.blocks[p.block].preds {
		p.args = append(p.args, phiArg{pred: pred, val: fb.readVariable(v, pred)})
	}
	p.complete = true
	if fb.removeIfTrivial(p) {
		fb.simplifyPhis()
	}
	return fb.resolve(p.res)
}

// removeIfTrivial aliases p away when all its operands are p itself or
// one other value.
func (fb *FunctionBuilder) removeIfTrivial(p *phi) bool {
	same := NoValue
	for _, a := range p.args {
		v := fb.resolve(a.val)
		if v == same || v == p.res {
			continue
		}
		if same != NoValue {
			return false
		}
		same = v
	}
	if same == NoValue {
		same = fb.zero(p.typ)
	}
	p.dead = true
	fb.alias[p.res] = same
	return true
}

func (fb *FunctionBuilder) simplifyPhis() {
	for changed := true; changed; {
		changed = false
		for _, blk := range fb.blocks {
			for _, p := range blk.phis {
				if p.complete && !p.dead && fb.removeIfTrivial(p) {
					changed = true
				}
			}
		}
	}
}

// zero materializes an undefined read at the top of the entry block.
func (fb *FunctionBuilder) zero(t Type) Value {
	in := &instr{op: opIconst, typ: t, res: fb.newValue(t)}
	entry := fb.blocks[fb.EntryBlock()]
	entry.insts = append([]*instr{in}, entry.insts...)
	return in.res
}

func (fb *FunctionBuilder) emit(in *instr) Value {
	if fb.err != nil {
		return NoValue
	}
	blk := fb.blocks[fb.cur]
	if blk.term != nil {
		fb.fail(fmt.Errorf("%w: @b%d", ErrTerminated, fb.cur))
		return NoValue
	}
	in.res = NoValue
	if in.typ != 0 {
		in.res = fb.newValue(in.typ)
	}
	blk.insts = append(blk.insts, in)
	return in.res
}

// canon truncates imm to t's width and sign-extends it back.
func canon(t Type, imm int64) int64 {
	switch t {
	case I8:
		return int64(int8(imm))
	case I16:
		return int64(int16(imm))
	case I32:
		return int64(int32(imm))
	}
	return imm
}

func (fb *FunctionBuilder) Iconst(t Type, imm int64) Value {
	if t.Bits() == 0 {
		fb.fail(fmt.Errorf("%w: iconst of invalid type", ErrType))
		return NoValue
	}
	return fb.emit(&instr{op: opIconst, typ: t, imm: canon(t, imm)})
}

func (fb *FunctionBuilder) operands(x, y Value) (Type, bool) {
	tx, ok1 := fb.typeOf(x)
	ty, ok2 := fb.typeOf(y)
	if !ok1 || !ok2 {
		return 0, false
	}
	if tx != ty {
		fb.fail(fmt.Errorf("%w: %s and %s", ErrType, tx, ty))
		return 0, false
	}
	return tx, true
}

func (fb *FunctionBuilder) binary(op opcode, x, y Value) Value {
	t, ok := fb.operands(x, y)
	if !ok {
		return NoValue
	}
	return fb.emit(&instr{op: op, typ: t, args: []Value{x, y}})
}

func (fb *FunctionBuilder) Iadd(x, y Value) Value { return fb.binary(opAdd, x, y) }
func (fb *FunctionBuilder) Isub(x, y Value) Value { return fb.binary(opSub, x, y) }
func (fb *FunctionBuilder) Imul(x, y Value) Value { return fb.binary(opMul, x, y) }
func (fb *FunctionBuilder) Sdiv(x, y Value) Value { return fb.binary(opSdiv, x, y) }
func (fb *FunctionBuilder) Udiv(x, y Value) Value { return fb.binary(opUdiv, x, y) }
func (fb *FunctionBuilder) Srem(x, y Value) Value { return fb.binary(opSrem, x, y) }
func (fb *FunctionBuilder) Urem(x, y Value) Value { return fb.binary(opUrem, x, y) }

// Icmp compares x and y and yields an I8 holding 0 or 1.
func (fb *FunctionBuilder) Icmp(cc IntCC, x, y Value) Value {
	if _, ok := fb.operands(x, y); !ok {
		return NoValue
	}
	return fb.emit(&instr{op: opIcmp, typ: I8, cc: cc, args: []Value{x, y}})
}

func (fb *FunctionBuilder) resize(op opcode, t Type, x Value) Value {
	from, ok := fb.typeOf(x)
	if !ok {
		return NoValue
	}
	widen := op != opIreduce
	if t.Bits() == 0 || (widen && t.Bits() <= from.Bits()) || (!widen && t.Bits() >= from.Bits()) {
		fb.fail(fmt.Errorf("%w: cannot %s %s to %s", ErrType, opNames[op], from, t))
		return NoValue
	}
	return fb.emit(&instr{op: op, typ: t, args: []Value{x}})
}

func (fb *FunctionBuilder) Sextend(t Type, x Value) Value { return fb.resize(opSextend, t, x) }
func (fb *FunctionBuilder) Uextend(t Type, x Value) Value { return fb.resize(opUextend, t, x) }
func (fb *FunctionBuilder) Ireduce(t Type, x Value) Value { return fb.resize(opIreduce, t, x) }

// SymbolValue yields the address of a defined data object.
func (fb *FunctionBuilder) SymbolValue(d DataID) Value {
	name, err := fb.m.dataSymbol(d)
	if err != nil {
		fb.fail(err)
		return NoValue
	}
	return fb.emit(&instr{op: opSymbol, typ: I64, sym: name})
}

// ImportFunction makes a declared function callable from this function.
// sig is the call-site signature; nil uses the declared one.
func (fb *FunctionBuilder) ImportFunction(id FuncID, sig *Signature) FuncRef {
	decl, err := fb.m.decl(id)
	if err != nil {
		fb.fail(err)
		return -1
	}
	if sig == nil {
		sig = decl.sig
	}
	fb.imports = append(fb.imports, sig)
	fb.names = append(fb.names, decl.name)
	return FuncRef(len(fb.imports) - 1)
}

// Call emits a call through ref and returns the call instruction.
func (fb *FunctionBuilder) Call(ref FuncRef, args []Value) Inst {
	if fb.err != nil {
		return -1
	}
	if ref < 0 || int(ref) >= len(fb.imports) {
		fb.fail(fmt.Errorf("qbe: unknown function reference %d", ref))
		return -1
	}
	sig := fb.imports[ref]
	if len(args) != len(sig.Params) {
		fb.fail(fmt.Errorf("%w: %s takes %d arguments, got %d", ErrType, fb.names[ref], len(sig.Params), len(args)))
		return -1
	}
	for i, a := range args {
		if t, ok := fb.typeOf(a); !ok || t != sig.Params[i].Type {
			fb.fail(fmt.Errorf("%w: argument %d of %s is %s, want %s", ErrType, i, fb.names[ref], t, sig.Params[i].Type))
			return -1
		}
	}
	in := &instr{op: opCall, sym: fb.names[ref], sig: sig, args: append([]Value(nil), args...)}
	fb.emit(in)
	if fb.err != nil {
		return -1
	}
	for _, r := range sig.Returns {
		in.rets = append(in.rets, fb.newValue(r.Type))
	}
	fb.insts = append(fb.insts, in)
	return Inst(len(fb.insts) - 1)
}

// InstResults returns the values defined by a call.
func (fb *FunctionBuilder) InstResults(i Inst) []Value {
	if i < 0 || int(i) >= len(fb.insts) {
		return nil
	}
	return fb.insts[i].rets
}

// open reports whether the current block can still take instructions.
func (fb *FunctionBuilder) open() bool {
	if fb.err != nil {
		return false
	}
	if fb.blocks[fb.cur].term != nil {
		fb.fail(fmt.Errorf("%w: @b%d", ErrTerminated, fb.cur))
		return false
	}
	return true
}

func (fb *FunctionBuilder) Jump(target Block) {
	if fb.open() && fb.addEdge(fb.cur, target) {
		fb.blocks[fb.cur].term = &terminator{kind: termJump, then: target}
	}
}

// Brnz branches to target when cond is nonzero. Emission continues in a
// fresh sealed block reached when cond is zero.
func (fb *FunctionBuilder) Brnz(cond Value, target Block) {
	if _, ok := fb.typeOf(cond); !ok || !fb.open() || !fb.addEdge(fb.cur, target) {
		return
	}
	from := fb.cur
	cont := fb.CreateBlock()
	fb.blocks[cont].preds = []Block{from}
	fb.blocks[cont].sealed = true
	fb.blocks[from].term = &terminator{kind: termBrnz, cond: cond, then: target, els: cont}
	fb.cur = cont
}

func (fb *FunctionBuilder) Return(vals ...Value) {
	if !fb.open() {
		return
	}
	if len(vals) != len(fb.sig.Returns) {
		fb.fail(fmt.Errorf("%w: returning %d values, signature has %d", ErrType, len(vals), len(fb.sig.Returns)))
		return
	}
	for i, v := range vals {
		if t, ok := fb.typeOf(v); !ok || t != fb.sig.Returns[i].Type {
			fb.fail(fmt.Errorf("%w: return value is %s, want %s", ErrType, t, fb.sig.Returns[i].Type))
			return
		}
	}
	fb.blocks[fb.cur].term = &terminator{kind: termReturn, vals: append([]Value(nil), vals...)}
}

// Finalize checks that every block is sealed and terminated, resolves
// removed phis and hands the function to the context.
func (fb *FunctionBuilder) Finalize() error {
	if fb.err != nil {
		return fb.err
	}
	for i, blk := range fb.blocks {
		if !blk.sealed {
			return fmt.Errorf("%w: @b%d", ErrUnsealed, i)
		}
		if blk.term == nil {
			return fmt.Errorf("%w: @b%d", ErrUnterminated, i)
		}
	}
	fn := &function{sig: fb.sig, values: fb.values}
	for _, blk := range fb.blocks {
		out := &blockData{params: blk.params, preds: blk.preds, sealed: true}
		for _, p := range blk.phis {
			if p.dead {
				continue
			}
			for i := range p.args {
				p.args[i].val = fb.resolve(p.args[i].val)
			}
			out.phis = append(out.phis, p)
		}
		for _, in := range blk.insts {
			for i := range in.args {
				in.args[i] = fb.resolve(in.args[i])
			}
			out.insts = append(out.insts, in)
		}
		t := *blk.term
		t.cond = fb.resolve(t.cond)
		for i := range t.vals {
			t.vals[i] = fb.resolve(t.vals[i])
		}
		out.term = &t
		fn.blocks = append(fn.blocks, out)
	}
	fb.ctx.fn = fn
	return nil
}

var opNames = [...]string{
	opIconst: "iconst", opSymbol: "symbol", opAdd: "iadd", opSub: "isub", opMul: "imul",
	opSdiv: "sdiv", opUdiv: "udiv", opSrem: "srem", opUrem: "urem", opIcmp: "icmp",
	opSextend: "sextend", opUextend: "uextend", opIreduce: "ireduce", opCall: "call",
}
