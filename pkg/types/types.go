// Package types resolves C declaration syntax into semantic type descriptors.
package types

import (
	"fmt"
	"strings"

	"github.com/xplshn/jcc/pkg/ast"
	"github.com/xplshn/jcc/pkg/config"
	"github.com/xplshn/jcc/pkg/token"
	"github.com/xplshn/jcc/pkg/util"
)

type Kind int

const (
	Void Kind = iota
	Int
	Pointer
	Array
	Function
	Struct
	Union
)

// PointerSize is the width of a pointer on every supported target.
const PointerSize = 8

type Param struct {
	Name string
	Type *Type
}

type Member struct {
	Name string
	Type *Type
}

// Type is a resolved, declarator-free type descriptor.
type Type struct {
	Kind     Kind
	Signed   bool
	Size     int // in bytes, for Int
	Const    bool
	Elem     *Type // Pointer and Array
	Len      int64 // Array; -1 when unspecified
	Params   []Param
	Return   *Type
	Variadic bool
	Tag      string
	Members  []Member
}

var (
	VoidType = &Type{Kind: Void}
	CharType = &Type{Kind: Int, Signed: true, Size: 1}
	IntType  = &Type{Kind: Int, Signed: true, Size: 4}
	UIntType = &Type{Kind: Int, Size: 4}
	LongType = &Type{Kind: Int, Signed: true, Size: 8}
	SizeType = &Type{Kind: Int, Size: 8}
)

func NewInt(signed bool, size int) *Type { return &Type{Kind: Int, Signed: signed, Size: size} }

func PointerTo(t *Type) *Type { return &Type{Kind: Pointer, Elem: t} }

func (t *Type) IsVoid() bool     { return t.Kind == Void }
func (t *Type) IsInteger() bool  { return t.Kind == Int }
func (t *Type) IsPointer() bool  { return t.Kind == Pointer }
func (t *Type) IsFunction() bool { return t.Kind == Function }

// Sizeof reports the storage size of t, or false for incomplete types.
func (t *Type) Sizeof() (int64, bool) {
	switch t.Kind {
	case Int:
		return int64(t.Size), true
	case Pointer:
		return PointerSize, true
	case Array:
		if t.Len < 0 {
			return 0, false
		}
		n, ok := t.Elem.Sizeof()
		return n * t.Len, ok
	case Struct, Union:
		if t.Members == nil {
			return 0, false
		}
		var total, largest int64
		for _, m := range t.Members {
			n, ok := m.Type.Sizeof()
			if !ok {
				return 0, false
			}
			total += n
			largest = max(largest, n)
		}
		if t.Kind == Union {
			return largest, true
		}
		return total, true
	}
	return 0, false
}

func (t *Type) String() string {
	var sb strings.Builder
	if t.Const {
		sb.WriteString("const ")
	}
	switch t.Kind {
	case Void:
		sb.WriteString("void")
	case Int:
		if !t.Signed {
			sb.WriteString("unsigned ")
		}
		sb.WriteString(map[int]string{1: "char", 2: "short", 4: "int", 8: "long"}[t.Size])
	case Pointer:
		sb.WriteString(t.Elem.String() + " *")
	case Array:
		if t.Len < 0 {
			fmt.Fprintf(&sb, "%s[]", t.Elem)
		} else {
			fmt.Fprintf(&sb, "%s[%d]", t.Elem, t.Len)
		}
	case Function:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.Type.String()
		}
		if t.Variadic {
			params = append(params, "...")
		}
		fmt.Fprintf(&sb, "%s (%s)", t.Return, strings.Join(params, ", "))
	case Struct:
		sb.WriteString("struct " + t.Tag)
	case Union:
		sb.WriteString("union " + t.Tag)
	}
	return sb.String()
}

// Equal compares two types structurally, ignoring qualifiers and parameter names.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Int:
		return a.Signed == b.Signed && a.Size == b.Size
	case Pointer:
		return Equal(a.Elem, b.Elem)
	case Array:
		return a.Len == b.Len && Equal(a.Elem, b.Elem)
	case Function:
		if a.Variadic != b.Variadic || len(a.Params) != len(b.Params) || !Equal(a.Return, b.Return) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i].Type, b.Params[i].Type) {
				return false
			}
		}
		return true
	case Struct, Union:
		return a.Tag == b.Tag
	}
	return true
}

// Resolver turns declaration specifiers and declarators into Types. Tagged
// types declared with a body are remembered so later references by tag
// resolve to the same members.
type Resolver struct {
	cfg  *config.Config
	tags map[string]*Type
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg, tags: make(map[string]*Type)}
}

// Resolve builds the type of the entity declared by d with the given specifiers.
func (r *Resolver) Resolve(specs ast.DeclSpecs, d *ast.Declarator) (*Type, error) {
	t, err := r.Base(specs)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return t, nil
	}
	for _, ptr := range d.Pointers {
		t = PointerTo(t)
		t.Const = ptr.Const
	}
	// The suffix closest to the name binds loosest.
	for i := len(d.Suffixes) - 1; i >= 0; i-- {
		s := d.Suffixes[i]
		switch s.Kind {
		case ast.SuffixArray:
			if t.Kind == Function {
				return nil, util.NewError(util.ErrTypeMismatch, d.Tok, "array of functions is not allowed")
			}
			length := int64(-1)
			if s.Len != nil {
				n, ok := ast.EvalConst(s.Len)
				if !ok || n < 0 {
					return nil, util.NewError(util.ErrUnsupported, s.Len.Tok, "array size must be a non-negative integer constant")
				}
				length = n
			}
			t = &Type{Kind: Array, Elem: t, Len: length}
		case ast.SuffixFunc:
			if t.Kind == Function || t.Kind == Array {
				return nil, util.NewError(util.ErrTypeMismatch, d.Tok, "function cannot return %s", t)
			}
			fn := &Type{Kind: Function, Return: t, Variadic: s.Variadic}
			for _, p := range s.Params {
				pt, err := r.Resolve(p.Specs, p.Decl)
				if err != nil {
					return nil, err
				}
				switch pt.Kind {
				case Array:
					pt = PointerTo(pt.Elem)
				case Function:
					pt = PointerTo(pt)
				case Void:
					return nil, util.NewError(util.ErrTypeMismatch, p.Specs.Tok, "parameter has type 'void'")
				}
				name := ""
				if p.Decl != nil {
					name = p.Decl.Name
				}
				fn.Params = append(fn.Params, Param{Name: name, Type: pt})
			}
			t = fn
		}
	}
	return t, nil
}

// Base resolves the specifier list alone.
func (r *Resolver) Base(specs ast.DeclSpecs) (*Type, error) {
	if specs.TagKind != 0 {
		t, err := r.tagged(specs)
		if err != nil {
			return nil, err
		}
		if specs.Const {
			c := *t
			c.Const = true
			return &c, nil
		}
		return t, nil
	}

	counts := make(map[token.Type]int)
	for _, s := range specs.Specifiers {
		counts[s]++
	}
	bad := func() (*Type, error) {
		return nil, util.NewError(util.ErrSyntax, specs.Tok, "invalid combination of type specifiers")
	}
	if counts[token.Signed] > 0 && counts[token.Unsigned] > 0 {
		return bad()
	}
	if counts[token.Float] > 0 || counts[token.Double] > 0 {
		return nil, util.NewError(util.ErrUnsupported, specs.Tok, "floating-point types are not supported")
	}
	signed := counts[token.Unsigned] == 0

	var t *Type
	switch {
	case counts[token.Void] == 1 && len(specs.Specifiers) == 1:
		t = &Type{Kind: Void}
	case counts[token.Bool] == 1 && len(specs.Specifiers) == 1:
		t = NewInt(false, 1)
	case counts[token.Char] == 1:
		if counts[token.Short]+counts[token.Long]+counts[token.Int] > 0 {
			return bad()
		}
		if counts[token.Signed]+counts[token.Unsigned] == 0 {
			signed = r.cfg == nil || r.cfg.IsFeatureEnabled(config.FeatSignedChar)
		}
		t = NewInt(signed, 1)
	case counts[token.Short] == 1:
		if counts[token.Long] > 0 {
			return bad()
		}
		t = NewInt(signed, 2)
	case counts[token.Long] == 1 || counts[token.Long] == 2:
		t = NewInt(signed, 8)
	case counts[token.Int] == 1 || counts[token.Signed]+counts[token.Unsigned] > 0:
		t = NewInt(signed, 4)
	default:
		return bad()
	}
	if counts[token.Int] > 1 || counts[token.Char] > 1 || counts[token.Short] > 1 || counts[token.Long] > 2 {
		return bad()
	}
	t.Const = specs.Const
	return t, nil
}

func (r *Resolver) tagged(specs ast.DeclSpecs) (*Type, error) {
	if specs.TagKind == token.Enum {
		// enum types are int-sized
		return NewInt(true, 4), nil
	}
	kind := Struct
	if specs.TagKind == token.Union {
		kind = Union
	}
	key := specs.TagKind.String() + " " + specs.Tag
	if specs.Members == nil {
		if t, ok := r.tags[key]; ok && specs.Tag != "" {
			return t, nil
		}
		t := &Type{Kind: kind, Tag: specs.Tag}
		if specs.Tag != "" {
			r.tags[key] = t
		}
		return t, nil
	}
	t := &Type{Kind: kind, Tag: specs.Tag, Members: []Member{}}
	for _, m := range specs.Members {
		decl := m.Data.(ast.DeclNode)
		for _, in := range decl.Inits {
			mt, err := r.Resolve(decl.Specs, in.Decl)
			if err != nil {
				return nil, err
			}
			t.Members = append(t.Members, Member{Name: in.Decl.Name, Type: mt})
		}
	}
	if specs.Tag != "" {
		if prev, ok := r.tags[key]; ok && prev.Members == nil {
			*prev = *t
			return prev, nil
		}
		r.tags[key] = t
	}
	return t, nil
}
