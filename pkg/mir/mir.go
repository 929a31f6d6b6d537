// Package mir is the mid-level IR: typed values, mutable locals, constant
// data and basic blocks joined by explicit branch sets.
package mir

import (
	"math"
)

// Type is the scalar type of a Value or Local. Pointers are I64. Void
// only appears as a signature's return type.
type Type uint8

const (
	Void Type = iota
	I8
	U8
	I16
	U16
	I32
	U32
	I64
	U64
)

var typeNames = [...]string{"void", "i8", "u8", "i16", "u16", "i32", "u32", "i64", "u64"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "?"
}

// IntType returns the integer type of the given signedness and byte size.
func IntType(signed bool, size int) Type {
	var t Type
	switch size {
	case 1:
		t = I8
	case 2:
		t = I16
	case 4:
		t = I32
	default:
		t = I64
	}
	if !signed {
		t++
	}
	return t
}

func (t Type) Signed() bool { return t == I8 || t == I16 || t == I32 || t == I64 }

// Bits is the width of t, 0 for Void.
func (t Type) Bits() int {
	switch t {
	case I8, U8:
		return 8
	case I16, U16:
		return 16
	case I32, U32:
		return 32
	case I64, U64:
		return 64
	}
	return 0
}

type (
	Value        uint32
	Local        uint32
	DataConstant uint32
	BlockID      int
)

// NoValue marks an instruction without a result.
const NoValue Value = math.MaxUint32

type Op uint8

const (
	OpConst     Op = iota // Result = Imm
	OpDataPtr             // Result = address of Data
	OpReadLocal           // Result = Local
	OpWriteLocal          // Local = Args[0]
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpCEq
	OpCNe
	OpCLt
	OpCLe
	OpCGt
	OpCGe
	OpConvert // Result = Args[0] converted from OperandType to Typ
	OpCall
	OpReturn // Args is empty for a bare return
)

var opNames = [...]string{
	"const", "dataptr", "read", "write", "add", "sub", "mul", "div", "rem",
	"ceq", "cne", "clt", "cle", "cgt", "cge", "convert", "call", "ret",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

func (op Op) IsArithmetic() bool { return op >= OpAdd && op <= OpRem }
func (op Op) IsCompare() bool    { return op >= OpCEq && op <= OpCGe }

// Instruction is a single MIR operation. Only the fields its Op uses are set.
type Instruction struct {
	Op          Op
	Typ         Type // result type, or the written Local's type
	OperandType Type // operand type of arithmetic and comparisons, source type of conversions
	Result      Value
	Args        []Value
	Imm         int64
	Local       Local
	Data        DataConstant
	Callee      string
	Sig         *Signature
}

// HasResult reports whether the instruction defines a Value.
func (ins *Instruction) HasResult() bool { return ins.Result != NoValue }

type Signature struct {
	Params   []Type
	Return   Type
	Variadic bool
}

// Edge is one outgoing edge of a branch set. The default edge is taken
// when no conditional edge before it was.
type Edge struct {
	Conditional bool
	Target      BlockID
}

// Branch terminates a block. Cond is NoValue for purely unconditional sets.
type Branch struct {
	Cond  Value
	Edges []Edge
}

type Block struct {
	Instructions []*Instruction
	Branch       *Branch
	Exit         bool
}

// Terminated reports whether the block already has a branch set or returned.
func (b *Block) Terminated() bool { return b.Exit || b.Branch != nil }

// IDGen hands out the per-function identifiers. It lives in the Function
// so that every lowering step draws from the same counters.
type IDGen struct {
	NextValue Value
	NextLocal Local
	NextData  DataConstant
}

type Global struct {
	Name   string
	Extern bool
}

type Program struct {
	Functions []*Function
	Globals   []Global
}

// Function looks up a function by name.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
