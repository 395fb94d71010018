// Package lexer implements the UTF-8 aware tokenizer for the embedded
// expression language (spec.md C5).
package lexer

// Type discriminates a Token's lexical class.
type Type int

const (
	Invalid Type = iota
	EndOfFile

	Identifier
	NumberLit
	StringLit
	CharLit
	BooleanLit

	// Keywords
	KwFunction
	KwIf
	KwLet
	KwElse
	KwWhile
	KwReturn
	KwFor

	// Punctuation
	Semicolon
	Dollar
	Colon
	Pipe
	Ampersand
	Period
	Asterisk
	Caret
	Exclamation
	Plus
	Comma
	Minus
	Slash
	LParen
	RParen
	LSquare
	RSquare
	LBrace
	RBrace
	LAngle
	RAngle
	Equal
	Percent
	Tilde
	Question

	// Multi-character operators
	ShiftLeftEquals
	ShiftRightEquals
	Ellipsis
	LogicalAnd
	LogicalOr
	EqualTo
	NotEqual
	LessThanEqual
	GreaterThanEqual
	ShiftLeft
	ShiftRight
	Pipeline
	PlusEquals
	MinusEquals
	TimesEquals
	DivideEquals
	RemainderEquals
	ExponentEquals
	BitwiseAndEquals
	BitwiseOrEquals
	RightArrow
	FatRightArrow
)

var keywords = map[string]Type{
	"fn":     KwFunction,
	"if":     KwIf,
	"let":    KwLet,
	"else":   KwElse,
	"while":  KwWhile,
	"return": KwReturn,
	"for":    KwFor,
	"true":   BooleanLit,
	"false":  BooleanLit,
}

// Token is one lexical unit: its Type and the exact source text it
// was lexed from (Text is reused verbatim by the parser for literal
// values, matching the original's string_view-backed Token).
type Token struct {
	Type Type
	Text string
}

func (t Token) Is(ty Type) bool { return t.Type == ty }
