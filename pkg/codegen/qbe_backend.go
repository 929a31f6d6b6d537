package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/qbe"
)

type qbeBackend struct{}

func NewQBEBackend() Backend { return &qbeBackend{} }

func (b *qbeBackend) OutputExt() string { return ".s" }

func (b *qbeBackend) GenerateIR(prog *mir.Program, cfg *config.Config) (string, error) {
	m, err := Translate(prog, cfg.BackendTarget)
	if err != nil {
		return "", err
	}
	return m.IL()
}

func (b *qbeBackend) Generate(prog *mir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	m, err := Translate(prog, cfg.BackendTarget)
	if err != nil {
		return nil, err
	}
	obj, err := m.Finish()
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(obj.Asm), nil
}

// Translate drives the qbe toolkit over every function of prog and
// returns the populated module.
func Translate(prog *mir.Program, target string) (*qbe.Module, error) {
	m := qbe.NewModule(target)
	ctx := qbe.NewContext()
	for _, fn := range prog.Functions {
		if err := translateFunction(m, ctx, fn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func qbeType(t mir.Type) qbe.Type {
	switch t.Bits() {
	case 8:
		return qbe.I8
	case 16:
		return qbe.I16
	case 32:
		return qbe.I32
	}
	return qbe.I64
}

func abiParam(t mir.Type) qbe.AbiParam {
	p := qbe.Param(qbeType(t))
	if t.Bits() < 32 {
		p.Ext = qbe.ExtUnsigned
		if t.Signed() {
			p.Ext = qbe.ExtSigned
		}
	}
	return p
}

// qbeSignature converts a declared signature. Variadic signatures only
// describe their named parameters.
func qbeSignature(sig *mir.Signature) *qbe.Signature {
	out := &qbe.Signature{Variadic: sig.Variadic, Fixed: len(sig.Params)}
	for _, p := range sig.Params {
		out.Params = append(out.Params, abiParam(p))
	}
	if sig.Return != mir.Void {
		out.Returns = []qbe.AbiParam{abiParam(sig.Return)}
	}
	return out
}

var intCCs = map[mir.Op][2]qbe.IntCC{
	mir.OpCEq: {qbe.Equal, qbe.Equal},
	mir.OpCNe: {qbe.NotEqual, qbe.NotEqual},
	mir.OpCLt: {qbe.SignedLessThan, qbe.UnsignedLessThan},
	mir.OpCLe: {qbe.SignedLessThanOrEqual, qbe.UnsignedLessThanOrEqual},
	mir.OpCGt: {qbe.SignedGreaterThan, qbe.UnsignedGreaterThan},
	mir.OpCGe: {qbe.SignedGreaterThanOrEqual, qbe.UnsignedGreaterThanOrEqual},
}

type qbeTranslator struct {
	m      *qbe.Module
	fn     *mir.Function
	fb     *qbe.FunctionBuilder
	blocks []qbe.Block
	values map[mir.Value]qbe.Value
}

func translateFunction(m *qbe.Module, ctx *qbe.Context, fn *mir.Function) error {
	log.Debugf("qbe: translating %s (%d blocks)", fn.Name, len(fn.Blocks))
	sig := qbeSignature(&fn.Sig)
	id, err := m.DeclareFunction(fn.Name, qbe.Export, sig)
	if err != nil {
		return err
	}
	t := &qbeTranslator{
		m:      m,
		fn:     fn,
		fb:     m.NewFunctionBuilder(ctx, sig),
		values: make(map[mir.Value]qbe.Value),
	}
	fb := t.fb

	// MIR block 0 reuses the entry block.
	t.blocks = make([]qbe.Block, len(fn.Blocks))
	t.blocks[0] = fb.EntryBlock()
	for i := 1; i < len(fn.Blocks); i++ {
		t.blocks[i] = fb.CreateBlock()
	}

	for l, lt := range fn.LocalTypes {
		fb.DeclareVar(qbe.Variable(l), qbeType(lt))
	}
	fb.AppendBlockParamsForFunctionParams(fb.EntryBlock())
	params := fb.BlockParams(fb.EntryBlock())
	for i, name := range fn.ParamNames {
		l, ok := fn.LocalIDs[name]
		if !ok || i >= len(params) {
			return internal(fn, "no local for parameter %q", name)
		}
		fb.DefVar(qbe.Variable(l), params[i])
	}

	// A block is sealed once every edge into it has been emitted.
	remaining := fn.Predecessors()
	for i, blk := range fn.Blocks {
		fb.SwitchToBlock(t.blocks[i])
		if i > 0 && remaining[i] == 0 {
			fb.SealBlock(t.blocks[i])
		}
		for _, ins := range blk.Instructions {
			if err := t.instruction(ins); err != nil {
				return err
			}
		}
		if blk.Branch == nil {
			continue
		}
		if err := t.branch(blk.Branch); err != nil {
			return err
		}
		for _, e := range blk.Branch.Edges {
			if remaining[e.Target]--; remaining[e.Target] == 0 {
				fb.SealBlock(t.blocks[e.Target])
			}
		}
	}

	if err := fb.Finalize(); err != nil {
		return fmt.Errorf("translating %s: %w", fn.Name, err)
	}
	if err := m.DefineFunction(id, ctx); err != nil {
		return err
	}
	m.ClearContext(ctx)
	return nil
}

func (t *qbeTranslator) value(v mir.Value) (qbe.Value, error) {
	qv, ok := t.values[v]
	if !ok {
		return qbe.NoValue, internal(t.fn, "value v%d used before it was translated", v)
	}
	return qv, nil
}

func (t *qbeTranslator) args(ins *mir.Instruction) ([]qbe.Value, error) {
	out := make([]qbe.Value, len(ins.Args))
	for i, a := range ins.Args {
		v, err := t.value(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *qbeTranslator) instruction(ins *mir.Instruction) error {
	fb := t.fb
	args, err := t.args(ins)
	if err != nil {
		return err
	}

	var res qbe.Value
	switch op := ins.Op; {
	case op == mir.OpConst:
		res = fb.Iconst(qbeType(ins.Typ), ins.Imm)
	case op == mir.OpDataPtr:
		blob, ok := t.fn.Data[ins.Data]
		if !ok {
			return internal(t.fn, "unknown data constant d%d", ins.Data)
		}
		d := t.m.DeclareAnonymousData()
		if err := t.m.DefineData(d, blob); err != nil {
			return err
		}
		res = fb.SymbolValue(d)
	case op == mir.OpReadLocal:
		if _, ok := t.fn.LocalTypes[ins.Local]; !ok {
			return internal(t.fn, "unknown local l%d", ins.Local)
		}
		res = fb.UseVar(qbe.Variable(ins.Local))
	case op == mir.OpWriteLocal:
		if _, ok := t.fn.LocalTypes[ins.Local]; !ok {
			return internal(t.fn, "unknown local l%d", ins.Local)
		}
		fb.DefVar(qbe.Variable(ins.Local), args[0])
	case op.IsArithmetic():
		res = t.arith(op, ins.OperandType.Signed(), args[0], args[1])
	case op.IsCompare():
		cc := intCCs[op][1]
		if ins.OperandType.Signed() {
			cc = intCCs[op][0]
		}
		res = fb.Uextend(qbe.I32, fb.Icmp(cc, args[0], args[1]))
	case op == mir.OpConvert:
		res = t.convert(ins.OperandType, ins.Typ, args[0])
	case op == mir.OpCall:
		res, err = t.call(ins, args)
		if err != nil {
			return err
		}
	case op == mir.OpReturn:
		fb.Return(args...)
	default:
		return internal(t.fn, "unknown instruction %s", op)
	}

	if err := fb.Err(); err != nil {
		return fmt.Errorf("translating %s: %s: %w", t.fn.Name, ins, err)
	}
	if ins.HasResult() {
		t.values[ins.Result] = res
	}
	return nil
}

func (t *qbeTranslator) arith(op mir.Op, signed bool, x, y qbe.Value) qbe.Value {
	fb := t.fb
	switch op {
	case mir.OpAdd:
		return fb.Iadd(x, y)
	case mir.OpSub:
		return fb.Isub(x, y)
	case mir.OpMul:
		return fb.Imul(x, y)
	case mir.OpDiv:
		if signed {
			return fb.Sdiv(x, y)
		}
		return fb.Udiv(x, y)
	}
	if signed {
		return fb.Srem(x, y)
	}
	return fb.Urem(x, y)
}

// convert widens by the source's signedness and narrows by truncation.
// Conversions between types of one width reuse the value.
func (t *qbeTranslator) convert(from, to mir.Type, v qbe.Value) qbe.Value {
	switch {
	case to.Bits() > from.Bits() && from.Signed():
		return t.fb.Sextend(qbeType(to), v)
	case to.Bits() > from.Bits():
		return t.fb.Uextend(qbeType(to), v)
	case to.Bits() < from.Bits():
		return t.fb.Ireduce(qbeType(to), v)
	}
	return v
}

func (t *qbeTranslator) call(ins *mir.Instruction, args []qbe.Value) (qbe.Value, error) {
	if ins.Sig == nil {
		return qbe.NoValue, internal(t.fn, "call to %s has no signature", ins.Callee)
	}
	id, err := t.m.DeclareFunction(ins.Callee, qbe.Import, qbeSignature(ins.Sig))
	if err != nil {
		return qbe.NoValue, err
	}

	var site *qbe.Signature
	if ins.Sig.Variadic {
		// Every passed argument is described by its own type.
		site = qbeSignature(ins.Sig)
		site.Params = site.Params[:0:0]
		for _, a := range ins.Args {
			at, ok := t.fn.TypeOf(a)
			if !ok {
				return qbe.NoValue, internal(t.fn, "untyped argument v%d", a)
			}
			site.Params = append(site.Params, abiParam(at))
		}
	}
	inst := t.fb.Call(t.fb.ImportFunction(id, site), args)
	if ins.Sig.Return == mir.Void {
		return qbe.NoValue, nil
	}
	rets := t.fb.InstResults(inst)
	if len(rets) == 0 {
		return qbe.NoValue, t.fb.Err()
	}
	return rets[0], nil
}

// branch emits one brnz per conditional edge and ends with a jump to
// the default edge.
func (t *qbeTranslator) branch(br *mir.Branch) error {
	cond := qbe.NoValue
	if br.Cond != mir.NoValue {
		v, err := t.value(br.Cond)
		if err != nil {
			return err
		}
		cond = v
	}
	for _, e := range br.Edges {
		if !e.Conditional {
			t.fb.Jump(t.blocks[e.Target])
			break
		}
		t.fb.Brnz(cond, t.blocks[e.Target])
	}
	if err := t.fb.Err(); err != nil {
		return fmt.Errorf("translating %s: %w", t.fn.Name, err)
	}
	return nil
}
