package mir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func (s *Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	if s.Variadic {
		params = append(params, "...")
	}
	return fmt.Sprintf("(%s) %s", strings.Join(params, ", "), s.Return)
}

func (v Value) String() string {
	if v == NoValue {
		return "_"
	}
	return "v" + strconv.FormatUint(uint64(v), 10)
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	if ins.HasResult() {
		fmt.Fprintf(&sb, "%s:%s = ", ins.Result, ins.Typ)
	}
	sb.WriteString(ins.Op.String())
	switch ins.Op {
	case OpConst:
		fmt.Fprintf(&sb, " %d", ins.Imm)
	case OpDataPtr:
		fmt.Fprintf(&sb, " d%d", ins.Data)
	case OpReadLocal:
		fmt.Fprintf(&sb, " l%d", ins.Local)
	case OpWriteLocal:
		fmt.Fprintf(&sb, " l%d, %s", ins.Local, ins.Args[0])
	case OpConvert:
		fmt.Fprintf(&sb, " %s %s", ins.OperandType, ins.Args[0])
	case OpCall:
		fmt.Fprintf(&sb, " %s%s", ins.Callee, ins.Sig)
		fallthrough
	default:
		if ins.Op.IsArithmetic() || ins.Op.IsCompare() {
			sb.WriteString(" " + ins.OperandType.String())
		}
		for i, a := range ins.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(" " + a.String())
		}
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Sig.Params))
	for i, p := range f.Sig.Params {
		name := ""
		if i < len(f.ParamNames) {
			name = f.ParamNames[i]
		}
		params[i] = strings.TrimSpace(p.String() + " " + name)
	}
	if f.Sig.Variadic {
		params = append(params, "...")
	}
	fmt.Fprintf(&sb, "func %s(%s) %s {\n", f.Name, strings.Join(params, ", "), f.Sig.Return)

	locals := make([]Local, 0, len(f.LocalNames))
	for l := range f.LocalNames {
		locals = append(locals, l)
	}
	sort.Slice(locals, func(i, j int) bool { return locals[i] < locals[j] })
	for _, l := range locals {
		fmt.Fprintf(&sb, "  local l%d %s: %s\n", l, f.LocalNames[l], f.LocalTypes[l])
	}
	for d := DataConstant(0); d < f.IDs.NextData; d++ {
		fmt.Fprintf(&sb, "  data d%d = %q\n", d, f.Data[d])
	}

	for i, b := range f.Blocks {
		fmt.Fprintf(&sb, "b%d:\n", i)
		for _, ins := range b.Instructions {
			sb.WriteString("  " + ins.String() + "\n")
		}
		if b.Branch != nil {
			sb.WriteString("  br")
			if b.Branch.Cond != NoValue {
				sb.WriteString(" " + b.Branch.Cond.String())
			}
			for _, e := range b.Branch.Edges {
				if e.Conditional {
					fmt.Fprintf(&sb, " ?b%d", e.Target)
				} else {
					fmt.Fprintf(&sb, " b%d", e.Target)
				}
			}
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, g := range p.Globals {
		if g.Extern {
			fmt.Fprintf(&sb, "extern %s\n", g.Name)
		} else {
			fmt.Fprintf(&sb, "global %s\n", g.Name)
		}
	}
	for _, f := range p.Functions {
		sb.WriteByte('\n')
		sb.WriteString(f.String())
	}
	return sb.String()
}
