// Package scope implements the nested lexical symbol table.
package scope

import (
	"github.com/xplshn/jcc/pkg/mir"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/types"
)

type Kind int

const (
	Var Kind = iota
	Func
)

// Symbol is one name binding. Local is only meaningful for Var symbols
// declared inside a function.
type Symbol struct {
	Name    string
	Kind    Kind
	Type    *types.Type
	Local   mir.Local
	Tok     token.Token
	Defined bool
	Uses    int
	Next    *Symbol
}

type scope struct {
	symbols *Symbol
	parent  *scope
}

// Table is a stack of scopes. The outermost scope is file scope.
type Table struct {
	current *scope
	depth   int
}

func NewTable() *Table {
	return &Table{current: &scope{}}
}

func (t *Table) Enter() {
	t.current = &scope{parent: t.current}
	t.depth++
}

// Exit pops the innermost scope and returns its symbols, most recent first.
func (t *Table) Exit() []*Symbol {
	if t.current.parent == nil {
		return nil
	}
	var syms []*Symbol
	for s := t.current.symbols; s != nil; s = s.Next {
		syms = append(syms, s)
	}
	t.current = t.current.parent
	t.depth--
	return syms
}

// AtFileScope reports whether no block scope is open.
func (t *Table) AtFileScope() bool { return t.depth == 0 }

// Declare binds sym in the innermost scope. It returns the existing
// symbol and false if the name is already bound there.
func (t *Table) Declare(sym *Symbol) (*Symbol, bool) {
	if prev := t.lookupIn(t.current, sym.Name); prev != nil {
		return prev, false
	}
	sym.Next = t.current.symbols
	t.current.symbols = sym
	return sym, true
}

// Resolve finds the innermost binding of name and counts the use.
func (t *Table) Resolve(name string) (*Symbol, bool) {
	for s := t.current; s != nil; s = s.parent {
		if sym := t.lookupIn(s, name); sym != nil {
			sym.Uses++
			return sym, true
		}
	}
	return nil, false
}

// Shadows reports whether name is bound in any enclosing scope.
func (t *Table) Shadows(name string) bool {
	for s := t.current; s != nil; s = s.parent {
		if t.lookupIn(s, name) != nil {
			return true
		}
	}
	return false
}

func (t *Table) lookupIn(s *scope, name string) *Symbol {
	for sym := s.symbols; sym != nil; sym = sym.Next {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

// Globals returns the file-scope symbols in declaration order.
func (t *Table) Globals() []*Symbol {
	root := t.current
	for root.parent != nil {
		root = root.parent
	}
	var syms []*Symbol
	for s := root.symbols; s != nil; s = s.Next {
		syms = append([]*Symbol{s}, syms...)
	}
	return syms
}
