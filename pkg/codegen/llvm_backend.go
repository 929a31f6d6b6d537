package codegen

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/mir"
)

type llvmBackend struct{}

func NewLLVMBackend() Backend { return &llvmBackend{} }

func (b *llvmBackend) OutputExt() string { return ".s" }

func (b *llvmBackend) GenerateIR(prog *mir.Program, cfg *config.Config) (string, error) {
	mod, err := TranslateLLVM(prog, cfg.BackendTarget)
	if err != nil {
		return "", err
	}
	return mod.String(), nil
}

// Generate hands the module to llc, which must be on PATH.
func (b *llvmBackend) Generate(prog *mir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	llvmIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("llc"); err != nil {
		return nil, fmt.Errorf("llc not found in PATH: %w", err)
	}

	in, err := os.CreateTemp("", "jcc-*.ll")
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())
	if _, err := in.WriteString(llvmIR); err != nil {
		in.Close()
		return nil, err
	}
	in.Close()

	var asm, stderr bytes.Buffer
	cmd := exec.Command("llc", "-O2", "-mtriple="+cfg.BackendTarget, "-o", "-", in.Name())
	cmd.Stdout, cmd.Stderr = &asm, &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("\n--- LLVM Compilation Failed ---\nGenerated IR:\n%s\n\nllc: %w\n%s", llvmIR, err, stderr.String())
	}
	return &asm, nil
}

func llvmType(t mir.Type) types.Type {
	switch t.Bits() {
	case 0:
		return types.Void
	case 8:
		return types.I8
	case 16:
		return types.I16
	case 32:
		return types.I32
	}
	return types.I64
}

var icmpPreds = map[mir.Op][2]enum.IPred{
	mir.OpCEq: {enum.IPredEQ, enum.IPredEQ},
	mir.OpCNe: {enum.IPredNE, enum.IPredNE},
	mir.OpCLt: {enum.IPredSLT, enum.IPredULT},
	mir.OpCLe: {enum.IPredSLE, enum.IPredULE},
	mir.OpCGt: {enum.IPredSGT, enum.IPredUGT},
	mir.OpCGe: {enum.IPredSGE, enum.IPredUGE},
}

type llvmModule struct {
	mod     *ir.Module
	funcs   map[string]*ir.Func
	strings map[uint64][]*ir.Global
}

// TranslateLLVM builds an LLVM module for prog. Locals live in entry
// block allocas and are left for mem2reg to promote.
func TranslateLLVM(prog *mir.Program, triple string) (*ir.Module, error) {
	lm := &llvmModule{
		mod:     ir.NewModule(),
		funcs:   make(map[string]*ir.Func),
		strings: make(map[uint64][]*ir.Global),
	}
	lm.mod.TargetTriple = triple

	for _, fn := range prog.Functions {
		lm.declare(fn.Name, &fn.Sig, fn.ParamNames)
	}
	for _, fn := range prog.Functions {
		if err := lm.define(fn); err != nil {
			return nil, err
		}
	}
	return lm.mod, nil
}

func (lm *llvmModule) declare(name string, sig *mir.Signature, paramNames []string) *ir.Func {
	if f, ok := lm.funcs[name]; ok {
		return f
	}
	params := make([]*ir.Param, len(sig.Params))
	for i, p := range sig.Params {
		pname := ""
		if i < len(paramNames) {
			pname = paramNames[i]
		}
		params[i] = ir.NewParam(pname, llvmType(p))
	}
	f := lm.mod.NewFunc(name, llvmType(sig.Return), params...)
	f.Sig.Variadic = sig.Variadic
	f.Linkage = enum.LinkageExternal
	lm.funcs[name] = f
	return f
}

// cstring returns a private constant holding b, shared between uses.
func (lm *llvmModule) cstring(b []byte) *ir.Global {
	h := xxhash.Sum64(b)
	for _, g := range lm.strings[h] {
		if bytes.Equal(g.Init.(*constant.CharArray).X, b) {
			return g
		}
	}
	g := lm.mod.NewGlobalDef(fmt.Sprintf(".str.%d", len(lm.mod.Globals)), constant.NewCharArray(b))
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	lm.strings[h] = append(lm.strings[h], g)
	return g
}

type llvmFunc struct {
	lm     *llvmModule
	fn     *mir.Function
	f      *ir.Func
	blocks []*ir.Block
	locals map[mir.Local]*ir.InstAlloca
	values map[mir.Value]value.Value
}

func (lm *llvmModule) define(fn *mir.Function) error {
	log.Debugf("llvm: translating %s (%d blocks)", fn.Name, len(fn.Blocks))
	f := lm.funcs[fn.Name]
	g := &llvmFunc{
		lm:     lm,
		fn:     fn,
		f:      f,
		locals: make(map[mir.Local]*ir.InstAlloca),
		values: make(map[mir.Value]value.Value),
	}
	for i := range fn.Blocks {
		g.blocks = append(g.blocks, f.NewBlock(fmt.Sprintf("b.%d", i)))
	}

	// Allocas go first so every later block can address them.
	entry := g.blocks[0]
	ids := make([]int, 0, len(fn.LocalTypes))
	for l := range fn.LocalTypes {
		ids = append(ids, int(l))
	}
	sort.Ints(ids)
	for _, id := range ids {
		l := mir.Local(id)
		slot := entry.NewAlloca(llvmType(fn.LocalTypes[l]))
		slot.SetName(fn.LocalNames[l] + ".addr")
		g.locals[l] = slot
	}
	for i, name := range fn.ParamNames {
		l, ok := fn.LocalIDs[name]
		if !ok || i >= len(f.Params) {
			return internal(fn, "no local for parameter %q", name)
		}
		entry.NewStore(f.Params[i], g.locals[l])
	}

	for i, blk := range fn.Blocks {
		b := g.blocks[i]
		for _, ins := range blk.Instructions {
			var err error
			if b, err = g.instruction(b, ins); err != nil {
				return err
			}
		}
		if blk.Branch != nil {
			if err := g.branch(b, i, blk.Branch); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *llvmFunc) value(v mir.Value) (value.Value, error) {
	lv, ok := g.values[v]
	if !ok {
		return nil, internal(g.fn, "value v%d used before it was translated", v)
	}
	return lv, nil
}

func (g *llvmFunc) instruction(b *ir.Block, ins *mir.Instruction) (*ir.Block, error) {
	args := make([]value.Value, len(ins.Args))
	for i, a := range ins.Args {
		v, err := g.value(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	var res value.Value
	switch op := ins.Op; {
	case op == mir.OpConst:
		res = constant.NewInt(llvmType(ins.Typ).(*types.IntType), ins.Imm)
	case op == mir.OpDataPtr:
		blob, ok := g.fn.Data[ins.Data]
		if !ok {
			return nil, internal(g.fn, "unknown data constant d%d", ins.Data)
		}
		str := g.lm.cstring(blob)
		zero := constant.NewInt(types.I64, 0)
		ptr := b.NewGetElementPtr(str.ContentType, str, zero, zero)
		res = b.NewPtrToInt(ptr, types.I64)
	case op == mir.OpReadLocal:
		slot, ok := g.locals[ins.Local]
		if !ok {
			return nil, internal(g.fn, "unknown local l%d", ins.Local)
		}
		res = b.NewLoad(slot.ElemType, slot)
	case op == mir.OpWriteLocal:
		slot, ok := g.locals[ins.Local]
		if !ok {
			return nil, internal(g.fn, "unknown local l%d", ins.Local)
		}
		b.NewStore(args[0], slot)
	case op.IsArithmetic():
		res = arithLLVM(b, op, ins.OperandType.Signed(), args[0], args[1])
	case op.IsCompare():
		pred := icmpPreds[op][1]
		if ins.OperandType.Signed() {
			pred = icmpPreds[op][0]
		}
		res = b.NewZExt(b.NewICmp(pred, args[0], args[1]), types.I32)
	case op == mir.OpConvert:
		from, to := ins.OperandType, ins.Typ
		switch {
		case to.Bits() > from.Bits() && from.Signed():
			res = b.NewSExt(args[0], llvmType(to))
		case to.Bits() > from.Bits():
			res = b.NewZExt(args[0], llvmType(to))
		case to.Bits() < from.Bits():
			res = b.NewTrunc(args[0], llvmType(to))
		default:
			res = args[0]
		}
	case op == mir.OpCall:
		if ins.Sig == nil {
			return nil, internal(g.fn, "call to %s has no signature", ins.Callee)
		}
		call := b.NewCall(g.lm.declare(ins.Callee, ins.Sig, nil), args...)
		if ins.Sig.Return != mir.Void {
			res = call
		}
	case op == mir.OpReturn:
		if len(args) == 0 {
			b.NewRet(nil)
		} else {
			b.NewRet(args[0])
		}
	default:
		return nil, internal(g.fn, "unknown instruction %s", op)
	}
	if ins.HasResult() {
		if res == nil {
			return nil, internal(g.fn, "%s produced no value", ins)
		}
		g.values[ins.Result] = res
	}
	return b, nil
}

func arithLLVM(b *ir.Block, op mir.Op, signed bool, x, y value.Value) value.Value {
	switch op {
	case mir.OpAdd:
		return b.NewAdd(x, y)
	case mir.OpSub:
		return b.NewSub(x, y)
	case mir.OpMul:
		return b.NewMul(x, y)
	case mir.OpDiv:
		if signed {
			return b.NewSDiv(x, y)
		}
		return b.NewUDiv(x, y)
	}
	if signed {
		return b.NewSRem(x, y)
	}
	return b.NewURem(x, y)
}

// branch lowers a branch set into a chain of conditional branches, one
// per conditional edge, ending at the default edge.
func (g *llvmFunc) branch(b *ir.Block, id int, br *mir.Branch) error {
	var cond value.Value
	if br.Cond != mir.NoValue {
		v, err := g.value(br.Cond)
		if err != nil {
			return err
		}
		cond = b.NewICmp(enum.IPredNE, v, constant.NewInt(v.Type().(*types.IntType), 0))
	}
	for i, e := range br.Edges {
		target := g.blocks[e.Target]
		if !e.Conditional {
			b.NewBr(target)
			return nil
		}
		next := g.f.NewBlock(fmt.Sprintf("b.%d.%d", id, i))
		b.NewCondBr(cond, target, next)
		b = next
	}
	b.NewUnreachable()
	return nil
}
