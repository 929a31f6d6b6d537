package qbe

import (
	"fmt"
	"strings"
)

// function is a finalized function as stored in the module.
type function struct {
	name    string
	linkage Linkage
	sig     *Signature
	values  []Type
	blocks  []*blockData
}

func (f *function) params() []Value { return f.blocks[0].params }

type writer struct {
	sb  strings.Builder
	f   *function
	tmp int
}

func (w *writer) line(format string, args ...any) {
	w.sb.WriteByte('\t')
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func val(v Value) string { return fmt.Sprintf("%%v%d", v) }

func label(b Block) string { return fmt.Sprintf("@b%d", b) }

// normalized returns an operand holding v with its sub-word bits
// extended to the full w register.
func (w *writer) normalized(v Value, signed bool) string {
	t := w.f.values[v]
	if t != I8 && t != I16 {
		return val(v)
	}
	op := "extu"
	if signed {
		op = "exts"
	}
	op += map[Type]string{I8: "b", I16: "h"}[t]
	w.tmp++
	name := fmt.Sprintf("%%n%d", w.tmp)
	w.line("%s =w %s %s", name, op, val(v))
	return name
}

func (w *writer) abiOperand(v Value, p AbiParam) string {
	if p.Ext == ExtNone {
		return val(v)
	}
	return w.normalized(v, p.Ext == ExtSigned)
}

var binOps = map[opcode]string{
	opAdd: "add", opSub: "sub", opMul: "mul",
	opSdiv: "div", opUdiv: "udiv", opSrem: "rem", opUrem: "urem",
}

func (w *writer) instr(in *instr) {
	switch in.op {
	case opIconst:
		w.line("%s =%s copy %d", val(in.res), in.typ.class(), in.imm)
	case opSymbol:
		w.line("%s =l copy $%s", val(in.res), in.sym)
	case opAdd, opSub, opMul:
		w.line("%s =%s %s %s, %s", val(in.res), in.typ.class(), binOps[in.op], val(in.args[0]), val(in.args[1]))
	case opSdiv, opSrem, opUdiv, opUrem:
		signed := in.op == opSdiv || in.op == opSrem
		x := w.normalized(in.args[0], signed)
		y := w.normalized(in.args[1], signed)
		w.line("%s =%s %s %s, %s", val(in.res), in.typ.class(), binOps[in.op], x, y)
	case opIcmp:
		t := w.f.values[in.args[0]]
		x := w.normalized(in.args[0], in.cc.signed())
		y := w.normalized(in.args[1], in.cc.signed())
		w.line("%s =w c%s%s %s, %s", val(in.res), in.cc, t.class(), x, y)
	case opSextend, opUextend:
		from := w.f.values[in.args[0]]
		op := "extu"
		if in.op == opSextend {
			op = "exts"
		}
		op += map[Type]string{I8: "b", I16: "h", I32: "w"}[from]
		w.line("%s =%s %s %s", val(in.res), in.typ.class(), op, val(in.args[0]))
	case opIreduce:
		w.line("%s =%s copy %s", val(in.res), in.typ.class(), val(in.args[0]))
	case opCall:
		args := make([]string, 0, len(in.args)+1)
		for i, a := range in.args {
			if in.sig.Variadic && i == in.sig.Fixed {
				args = append(args, "...")
			}
			p := in.sig.Params[i]
			args = append(args, p.Type.class()+" "+w.abiOperand(a, p))
		}
		if in.sig.Variadic && in.sig.Fixed >= len(in.args) {
			args = append(args, "...")
		}
		call := fmt.Sprintf("call $%s(%s)", in.sym, strings.Join(args, ", "))
		if len(in.rets) > 0 {
			w.line("%s =%s %s", val(in.rets[0]), w.f.values[in.rets[0]].class(), call)
		} else {
			w.line("%s", call)
		}
	}
}

func (w *writer) term(t *terminator) {
	switch t.kind {
	case termJump:
		w.line("jmp %s", label(t.then))
	case termBrnz:
		cond := w.normalized(t.cond, false)
		if w.f.values[t.cond] == I64 {
			w.tmp++
			cond = fmt.Sprintf("%%n%d", w.tmp)
			w.line("%s =w cnel %s, 0", cond, val(t.cond))
		}
		w.line("jnz %s, %s, %s", cond, label(t.then), label(t.els))
	case termReturn:
		if len(t.vals) == 0 {
			w.line("ret")
			return
		}
		w.line("ret %s", w.abiOperand(t.vals[0], w.f.sig.Returns[0]))
	}
}

func (f *function) render() string {
	w := &writer{f: f}
	if f.linkage == Export {
		w.sb.WriteString("export ")
	}
	w.sb.WriteString("function ")
	if len(f.sig.Returns) > 0 {
		w.sb.WriteString(f.sig.Returns[0].Type.class() + " ")
	}
	params := make([]string, len(f.params()))
	for i, p := range f.params() {
		params[i] = f.values[p].class() + " " + val(p)
	}
	fmt.Fprintf(&w.sb, "$%s(%s) {\n", f.name, strings.Join(params, ", "))

	for i, b := range f.blocks {
		w.sb.WriteString(label(Block(i)) + "\n")
		for _, p := range b.phis {
			args := make([]string, len(p.args))
			for j, a := range p.args {
				args[j] = label(a.pred) + " " + val(a.val)
			}
			w.line("%s =%s phi %s", val(p.res), p.typ.class(), strings.Join(args, ", "))
		}
		for _, in := range b.insts {
			w.instr(in)
		}
		w.term(b.term)
	}
	w.sb.WriteString("}\n")
	return w.sb.String()
}

func renderData(name string, b []byte) string {
	if len(b) == 0 {
		return fmt.Sprintf("data $%s = { z 1 }\n", name)
	}
	items := make([]string, len(b))
	for i, c := range b {
		items[i] = fmt.Sprintf("b %d", c)
	}
	return fmt.Sprintf("data $%s = { %s }\n", name, strings.Join(items, ", "))
}
