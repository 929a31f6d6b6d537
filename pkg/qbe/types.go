// Package qbe is a small code-generation toolkit on top of the QBE
// compiler backend. Functions are built block by block with mutable
// variables that are turned into SSA form as blocks get sealed, then
// rendered as QBE IL and assembled with libqbe.
package qbe

import (
	"errors"
	"fmt"
)

// Type is a signless integer type. Sub-word types live in w temporaries.
type Type uint8

const (
	I8 Type = iota + 1
	I16
	I32
	I64
)

func (t Type) Bits() int {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	}
	return 0
}

func (t Type) String() string {
	if t.Bits() == 0 {
		return "invalid"
	}
	return fmt.Sprintf("i%d", t.Bits())
}

// class is the QBE base class holding values of t.
func (t Type) class() string {
	if t == I64 {
		return "l"
	}
	return "w"
}

// Ext says how a sub-word parameter or return value is widened at the
// ABI boundary.
type Ext uint8

const (
	ExtNone Ext = iota
	ExtSigned
	ExtUnsigned
)

type AbiParam struct {
	Type Type
	Ext  Ext
}

func Param(t Type) AbiParam { return AbiParam{Type: t} }

// Signature is a function type. For variadic signatures built at a call
// site, Fixed is the number of leading named parameters and Params holds
// every argument actually passed.
type Signature struct {
	Params   []AbiParam
	Returns  []AbiParam
	Variadic bool
	Fixed    int
}

func (s *Signature) compatible(o *Signature) bool {
	if s.Variadic != o.Variadic {
		return false
	}
	if s.Variadic {
		return true
	}
	if len(s.Params) != len(o.Params) || len(s.Returns) != len(o.Returns) {
		return false
	}
	for i := range s.Params {
		if s.Params[i].Type != o.Params[i].Type {
			return false
		}
	}
	for i := range s.Returns {
		if s.Returns[i].Type != o.Returns[i].Type {
			return false
		}
	}
	return true
}

// IntCC is an integer comparison condition.
type IntCC uint8

const (
	Equal IntCC = iota
	NotEqual
	SignedLessThan
	SignedLessThanOrEqual
	SignedGreaterThan
	SignedGreaterThanOrEqual
	UnsignedLessThan
	UnsignedLessThanOrEqual
	UnsignedGreaterThan
	UnsignedGreaterThanOrEqual
)

var ccNames = [...]string{"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "ule", "ugt", "uge"}

func (cc IntCC) String() string { return ccNames[cc] }

func (cc IntCC) signed() bool { return cc >= SignedLessThan && cc <= SignedGreaterThanOrEqual }

type Linkage uint8

const (
	Import Linkage = iota
	Local
	Export
)

type (
	Value    uint32
	Block    int
	Variable uint32
	FuncID   int
	DataID   int
	FuncRef  int
	Inst     int
)

// NoValue is returned by builder methods that failed or produce nothing.
const NoValue = ^Value(0)

var (
	ErrSealed       = errors.New("block is already sealed")
	ErrUnsealed     = errors.New("block was never sealed")
	ErrTerminated   = errors.New("block is already terminated")
	ErrUnterminated = errors.New("block has no terminator")
	ErrUndeclared   = errors.New("variable was not declared")
	ErrType         = errors.New("operand type mismatch")
	ErrIncompatible = errors.New("incompatible redeclaration")
	ErrUndefined    = errors.New("symbol is not defined")
)
