package qbe

import (
	"errors"
	"fmt"
)

// HostFunc implements an imported function for the Machine.
type HostFunc func(m *Machine, args []int64) int64

var (
	ErrStepLimit     = errors.New("step limit exceeded")
	ErrDivideByZero  = errors.New("integer division by zero")
	ErrStackOverflow = errors.New("call depth exceeded")
)

const (
	memBase  = 0x10000
	maxDepth = 4096
)

// Machine executes the functions defined in a module. Data symbols are
// laid out in a flat memory starting at memBase and imported functions
// are served by registered host functions.
type Machine struct {
	MaxSteps int

	mod     *Module
	hosts   map[string]HostFunc
	mem     []byte
	symbols map[string]int64
	steps   int
	depth   int
}

func NewMachine(mod *Module) *Machine {
	m := &Machine{
		MaxSteps: 10_000_000,
		mod:      mod,
		hosts:    make(map[string]HostFunc),
		symbols:  make(map[string]int64),
	}
	for _, d := range mod.data {
		if !d.defined || d.alias >= 0 {
			continue
		}
		m.symbols[d.name] = memBase + int64(len(m.mem))
		m.mem = append(m.mem, d.bytes...)
		for len(m.mem)%8 != 0 {
			m.mem = append(m.mem, 0)
		}
	}
	return m
}

func (m *Machine) Register(name string, fn HostFunc) { m.hosts[name] = fn }

// CString reads a NUL-terminated string from machine memory.
func (m *Machine) CString(addr int64) (string, error) {
	start := addr - memBase
	if start < 0 || start >= int64(len(m.mem)) {
		return "", fmt.Errorf("qbe: address %#x is outside machine memory", addr)
	}
	for i := start; i < int64(len(m.mem)); i++ {
		if m.mem[i] == 0 {
			return string(m.mem[start:i]), nil
		}
	}
	return "", fmt.Errorf("qbe: string at %#x is not terminated", addr)
}

// Call runs the named function with the given arguments.
func (m *Machine) Call(name string, args ...int64) (int64, error) {
	m.steps = 0
	return m.call(name, args)
}

func (m *Machine) call(name string, args []int64) (int64, error) {
	if id, ok := m.mod.byName[name]; ok && m.mod.funcs[id].fn != nil {
		fn := m.mod.funcs[id].fn
		if len(args) != len(fn.params()) {
			return 0, fmt.Errorf("qbe: %s takes %d arguments, got %d", name, len(fn.params()), len(args))
		}
		if m.depth >= maxDepth {
			return 0, ErrStackOverflow
		}
		m.depth++
		defer func() { m.depth-- }()
		return m.run(fn, args)
	}
	if host, ok := m.hosts[name]; ok {
		return host(m, args), nil
	}
	return 0, fmt.Errorf("%w: function %s", ErrUndefined, name)
}

func unsigned(t Type, x int64) uint64 {
	if t == I64 {
		return uint64(x)
	}
	return uint64(x) & (1<<t.Bits() - 1)
}

func (m *Machine) run(fn *function, args []int64) (int64, error) {
	regs := make([]int64, len(fn.values))
	for i, p := range fn.params() {
		regs[p] = canon(fn.values[p], args[i])
	}

	prev, cur := Block(-1), Block(0)
	for {
		blk := fn.blocks[cur]
		if len(blk.phis) > 0 {
			incoming := make([]int64, len(blk.phis))
			for i, p := range blk.phis {
				found := false
				for _, a := range p.args {
					if a.pred == prev {
						incoming[i], found = regs[a.val], true
						break
					}
				}
				if !found {
					return 0, fmt.Errorf("qbe: %s: phi in @b%d has no operand for @b%d", fn.name, cur, prev)
				}
			}
			for i, p := range blk.phis {
				regs[p.res] = incoming[i]
			}
		}

		for _, in := range blk.insts {
			m.steps++
			if m.steps > m.MaxSteps {
				return 0, ErrStepLimit
			}
			if err := m.exec(fn, in, regs); err != nil {
				return 0, fmt.Errorf("%s: %w", fn.name, err)
			}
		}

		t := blk.term
		switch t.kind {
		case termJump:
			prev, cur = cur, t.then
		case termBrnz:
			next := t.els
			if regs[t.cond] != 0 {
				next = t.then
			}
			prev, cur = cur, next
		case termReturn:
			if len(t.vals) == 0 {
				return 0, nil
			}
			return regs[t.vals[0]], nil
		}
	}
}

func (m *Machine) exec(fn *function, in *instr, regs []int64) error {
	var x, y int64
	if len(in.args) > 0 {
		x = regs[in.args[0]]
	}
	if len(in.args) > 1 {
		y = regs[in.args[1]]
	}
	var r int64
	switch in.op {
	case opIconst:
		r = in.imm
	case opSymbol:
		addr, ok := m.symbols[in.sym]
		if !ok {
			return fmt.Errorf("%w: data %s", ErrUndefined, in.sym)
		}
		r = addr
	case opAdd:
		r = x + y
	case opSub:
		r = x - y
	case opMul:
		r = x * y
	case opSdiv, opSrem, opUdiv, opUrem:
		if y == 0 {
			return ErrDivideByZero
		}
		t := fn.values[in.args[0]]
		switch in.op {
		case opSdiv:
			r = x / y
		case opSrem:
			r = x % y
		case opUdiv:
			r = int64(unsigned(t, x) / unsigned(t, y))
		case opUrem:
			r = int64(unsigned(t, x) % unsigned(t, y))
		}
	case opIcmp:
		t := fn.values[in.args[0]]
		ux, uy := unsigned(t, x), unsigned(t, y)
		var b bool
		switch in.cc {
		case Equal:
			b = x == y
		case NotEqual:
			b = x != y
		case SignedLessThan:
			b = x < y
		case SignedLessThanOrEqual:
			b = x <= y
		case SignedGreaterThan:
			b = x > y
		case SignedGreaterThanOrEqual:
			b = x >= y
		case UnsignedLessThan:
			b = ux < uy
		case UnsignedLessThanOrEqual:
			b = ux <= uy
		case UnsignedGreaterThan:
			b = ux > uy
		case UnsignedGreaterThanOrEqual:
			b = ux >= uy
		}
		if b {
			r = 1
		}
	case opSextend, opIreduce:
		r = x
	case opUextend:
		r = int64(unsigned(fn.values[in.args[0]], x))
	case opCall:
		args := make([]int64, len(in.args))
		for i, a := range in.args {
			args[i] = regs[a]
		}
		ret, err := m.call(in.sym, args)
		if err != nil {
			return err
		}
		if len(in.rets) > 0 {
			regs[in.rets[0]] = canon(fn.values[in.rets[0]], ret)
		}
		return nil
	}
	if in.res != NoValue {
		regs[in.res] = canon(in.typ, r)
	}
	return nil
}
