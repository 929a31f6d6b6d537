package mir

import (
	"errors"
	"fmt"
)

// Verify checks the structural invariants of f and reports every violation.
func (f *Function) Verify() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: "+format, append([]any{f.Name}, args...)...))
	}

	if len(f.Blocks) == 0 {
		fail("no entry block")
	}
	if len(f.LocalIDs) != len(f.LocalNames) {
		fail("local name map is not a bijection")
	}
	for name, l := range f.LocalIDs {
		if f.LocalNames[l] != name {
			fail("local %q maps to l%d which is named %q", name, l, f.LocalNames[l])
		}
		if _, ok := f.LocalTypes[l]; !ok {
			fail("local %q has no type", name)
		}
	}

	defined := make(map[Value]BlockID)
	for bi, b := range f.Blocks {
		id := BlockID(bi)
		if b.Exit && b.Branch != nil {
			fail("b%d both returns and branches", id)
		}
		for ii, ins := range b.Instructions {
			if ins.Op == OpReturn && (ii != len(b.Instructions)-1 || !b.Exit) {
				fail("b%d: return is not the final instruction of an exit block", id)
			}
			if !ins.HasResult() {
				continue
			}
			if prev, dup := defined[ins.Result]; dup {
				fail("%s defined in b%d and b%d", ins.Result, prev, id)
			}
			defined[ins.Result] = id
			if t, ok := f.ValueTypes[ins.Result]; !ok || t != ins.Typ {
				fail("%s has type %s, instruction says %s", ins.Result, t, ins.Typ)
			}
			if ins.Op.IsCompare() && ins.Typ != I32 {
				fail("b%d: comparison %s does not produce i32", id, ins.Result)
			}
		}
		if b.Exit {
			if n := len(b.Instructions); n == 0 || b.Instructions[n-1].Op != OpReturn {
				fail("exit block b%d does not end in a return", id)
			}
		}
		if b.Branch != nil {
			for _, e := range b.Branch.Edges {
				if f.Block(e.Target) == nil {
					fail("b%d branches to missing b%d", id, e.Target)
				}
			}
		}
	}

	for _, b := range f.Blocks {
		for _, ins := range b.Instructions {
			for _, a := range ins.Args {
				if _, ok := defined[a]; !ok {
					fail("%s used but never defined", a)
				}
			}
		}
		if b.Branch != nil && b.Branch.Cond != NoValue {
			if _, ok := defined[b.Branch.Cond]; !ok {
				fail("branch condition %s never defined", b.Branch.Cond)
			}
		}
	}
	return errors.Join(errs...)
}

// Verify checks every function of p.
func (p *Program) Verify() error {
	var errs []error
	for _, f := range p.Functions {
		if err := f.Verify(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
