package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	CharLit
	String
	// Keywords
	Void
	Char
	Short
	Int
	Long
	Signed
	Unsigned
	Bool
	Float
	Double
	Const
	Volatile
	Restrict
	Extern
	Static
	Auto
	Register
	Inline
	Typedef
	Struct
	Union
	Enum
	If
	Else
	For
	While
	Do
	Switch
	Case
	Default
	Break
	Continue
	Goto
	Return
	Sizeof
	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Question
	Dots
	Dot
	Arrow
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"void":     Void,
	"char":     Char,
	"short":    Short,
	"int":      Int,
	"long":     Long,
	"signed":   Signed,
	"unsigned": Unsigned,
	"_Bool":    Bool,
	"float":    Float,
	"double":   Double,
	"const":    Const,
	"volatile": Volatile,
	"restrict": Restrict,
	"extern":   Extern,
	"static":   Static,
	"auto":     Auto,
	"register": Register,
	"inline":   Inline,
	"typedef":  Typedef,
	"struct":   Struct,
	"union":    Union,
	"enum":     Enum,
	"if":       If,
	"else":     Else,
	"for":      For,
	"while":    While,
	"do":       Do,
	"switch":   Switch,
	"case":     Case,
	"default":  Default,
	"break":    Break,
	"continue": Continue,
	"goto":     Goto,
	"return":   Return,
	"sizeof":   Sizeof,
}

var punctStrings = map[Type]string{
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Question: "?", Dots: "...", Dot: ".", Arrow: "->",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Shl: "<<", Shr: ">>", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to the keyword or punctuator spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
	TypeStrings[EOF] = "end of file"
	TypeStrings[Ident] = "identifier"
	TypeStrings[Number] = "number"
	TypeStrings[CharLit] = "character constant"
	TypeStrings[String] = "string literal"
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

// IsTypeSpecifier reports whether t can start a declaration's specifier list.
func (t Type) IsTypeSpecifier() bool {
	switch t {
	case Void, Char, Short, Int, Long, Signed, Unsigned, Bool, Float, Double,
		Const, Volatile, Restrict, Extern, Static, Auto, Register, Inline, Typedef,
		Struct, Union, Enum:
		return true
	}
	return false
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
