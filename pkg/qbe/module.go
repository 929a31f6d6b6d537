package qbe

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jcc.qbe")

type funcDecl struct {
	name    string
	linkage Linkage
	sig     *Signature
	fn      *function
}

type dataDecl struct {
	name    string
	bytes   []byte
	defined bool
	alias   DataID
}

// Object is the result of finishing a module.
type Object struct {
	IL  string
	Asm []byte
}

// Module collects declarations and definitions for one compilation unit.
type Module struct {
	target  string
	funcs   []*funcDecl
	byName  map[string]FuncID
	data    []*dataDecl
	pool    map[uint64][]DataID
	defined []FuncID
}

// NewModule returns an empty module for a QBE target such as "amd64_sysv".
func NewModule(target string) *Module {
	return &Module{
		target: target,
		byName: make(map[string]FuncID),
		pool:   make(map[uint64][]DataID),
	}
}

func (m *Module) Target() string { return m.target }

// DeclareFunction declares name or returns its existing id. Declaring an
// imported function again with Export or Local linkage upgrades it.
func (m *Module) DeclareFunction(name string, linkage Linkage, sig *Signature) (FuncID, error) {
	if id, ok := m.byName[name]; ok {
		decl := m.funcs[id]
		if !decl.sig.compatible(sig) {
			return id, fmt.Errorf("%w: function %s", ErrIncompatible, name)
		}
		if linkage > decl.linkage {
			decl.linkage = linkage
		}
		return id, nil
	}
	id := FuncID(len(m.funcs))
	m.funcs = append(m.funcs, &funcDecl{name: name, linkage: linkage, sig: sig})
	m.byName[name] = id
	return id, nil
}

func (m *Module) decl(id FuncID) (*funcDecl, error) {
	if id < 0 || int(id) >= len(m.funcs) {
		return nil, fmt.Errorf("qbe: unknown function id %d", id)
	}
	return m.funcs[id], nil
}

// DefineFunction takes the function finalized in ctx as the body of id.
func (m *Module) DefineFunction(id FuncID, ctx *Context) error {
	decl, err := m.decl(id)
	if err != nil {
		return err
	}
	if ctx.fn == nil {
		return fmt.Errorf("qbe: defining %s: no finalized function in context", decl.name)
	}
	if decl.linkage == Import {
		return fmt.Errorf("qbe: cannot define imported function %s", decl.name)
	}
	if decl.fn != nil {
		return fmt.Errorf("qbe: duplicate definition of %s", decl.name)
	}
	fn := ctx.fn
	fn.name = decl.name
	fn.linkage = decl.linkage
	decl.fn = fn
	m.defined = append(m.defined, id)
	log.Debugf("defined %s with %d blocks", decl.name, len(fn.blocks))
	return nil
}

// ClearContext makes ctx ready for the next function.
func (m *Module) ClearContext(ctx *Context) { ctx.fn = nil }

func (m *Module) DeclareAnonymousData() DataID {
	id := DataID(len(m.data))
	m.data = append(m.data, &dataDecl{name: fmt.Sprintf("anon.%d", id), alias: -1})
	return id
}

// DefineData sets the contents of d. Identical contents share one symbol.
func (m *Module) DefineData(d DataID, b []byte) error {
	if d < 0 || int(d) >= len(m.data) {
		return fmt.Errorf("qbe: unknown data id %d", d)
	}
	decl := m.data[d]
	if decl.defined {
		return fmt.Errorf("qbe: data %s defined twice", decl.name)
	}
	decl.bytes = append([]byte(nil), b...)
	decl.defined = true

	h := xxhash.Sum64(b)
	for _, other := range m.pool[h] {
		if bytes.Equal(m.data[other].bytes, b) {
			decl.alias = other
			return nil
		}
	}
	m.pool[h] = append(m.pool[h], d)
	return nil
}

func (m *Module) dataSymbol(d DataID) (string, error) {
	if d < 0 || int(d) >= len(m.data) {
		return "", fmt.Errorf("qbe: unknown data id %d", d)
	}
	decl := m.data[d]
	if !decl.defined {
		return "", fmt.Errorf("%w: data %s", ErrUndefined, decl.name)
	}
	if decl.alias >= 0 {
		return m.data[decl.alias].name, nil
	}
	return decl.name, nil
}

// IL renders the module as QBE IL.
func (m *Module) IL() (string, error) {
	var sb strings.Builder
	for _, d := range m.data {
		if d.defined && d.alias < 0 {
			sb.WriteString(renderData(d.name, d.bytes))
		}
	}
	for _, decl := range m.funcs {
		if decl.linkage != Import && decl.fn == nil {
			return "", fmt.Errorf("%w: function %s", ErrUndefined, decl.name)
		}
	}
	for _, id := range m.defined {
		sb.WriteByte('\n')
		sb.WriteString(m.funcs[id].fn.render())
	}
	return sb.String(), nil
}

// Finish renders the module and assembles it for the module's target.
func (m *Module) Finish() (*Object, error) {
	il, err := m.IL()
	if err != nil {
		return nil, err
	}
	asm, err := assemble(m.target, il)
	if err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nerror: %w", il, err)
	}
	return &Object{IL: il, Asm: asm}, nil
}
