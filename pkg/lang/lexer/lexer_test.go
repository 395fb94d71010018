package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func typesOf(toks []Token) []Type {
	out := make([]Type, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestLexSimpleExpression(t *testing.T) {
	toks := Lex("1 + 2 * 3")
	require.Equal(t, []Type{NumberLit, Plus, NumberLit, Asterisk, NumberLit, EndOfFile}, typesOf(toks))
}

func TestLexMultiCharOperatorsPreferredOverSingle(t *testing.T) {
	toks := Lex("a <<= b")
	require.Equal(t, []Type{Identifier, ShiftLeftEquals, Identifier, EndOfFile}, typesOf(toks))
}

func TestLexChainedComparisonOperators(t *testing.T) {
	toks := Lex("a <= b >= c")
	require.Equal(t, []Type{Identifier, LessThanEqual, Identifier, GreaterThanEqual, Identifier, EndOfFile}, typesOf(toks))
}

func TestLexStringLiteralRawText(t *testing.T) {
	toks := Lex(`"hello\nworld"`)
	require.Equal(t, StringLit, toks[0].Type)
	require.Equal(t, `hello\nworld`, toks[0].Text)
}

func TestLexCharLiteralUnicode(t *testing.T) {
	toks := Lex(`'世'`)
	require.Equal(t, CharLit, toks[0].Type)
	require.Equal(t, "世", toks[0].Text)
}

func TestLexKeywordsVsIdentifiers(t *testing.T) {
	toks := Lex("fn foo if bar")
	require.Equal(t, []Type{KwFunction, Identifier, KwIf, Identifier, EndOfFile}, typesOf(toks))
}

func TestLexFloatLiteral(t *testing.T) {
	toks := Lex("3.14")
	require.Equal(t, NumberLit, toks[0].Type)
	require.Equal(t, "3.14", toks[0].Text)
}

func TestLexIntegerFollowedByTupleAccessDot(t *testing.T) {
	// x.0.1 -- after the first '.', '0' must lex as an integer, not 0.1,
	// since the previous token is itself a '.'.
	toks := Lex("x.0.1")
	require.Equal(t, []Type{Identifier, Period, NumberLit, Period, NumberLit, EndOfFile}, typesOf(toks))
	require.Equal(t, "0", toks[2].Text)
	require.Equal(t, "1", toks[4].Text)
}

func TestLexHexAndBinaryLiterals(t *testing.T) {
	toks := Lex("0xFF 0b101")
	require.Equal(t, []Type{NumberLit, NumberLit, EndOfFile}, typesOf(toks))
	require.Equal(t, "0xFF", toks[0].Text)
	require.Equal(t, "0b101", toks[1].Text)
}

func TestLexIdentifierWithUnicodeContinuation(t *testing.T) {
	toks := Lex("café")
	require.Equal(t, []Type{Identifier, EndOfFile}, typesOf(toks))
	require.Equal(t, "café", toks[0].Text)
}

func TestLexBooleanLiterals(t *testing.T) {
	toks := Lex("true false")
	require.Equal(t, []Type{BooleanLit, BooleanLit, EndOfFile}, typesOf(toks))
}

func TestLexEllipsisVsPeriod(t *testing.T) {
	toks := Lex("a... b.c")
	require.Equal(t, []Type{Identifier, Ellipsis, Identifier, Period, Identifier, EndOfFile}, typesOf(toks))
}

func TestLexPipelineOperator(t *testing.T) {
	toks := Lex("a |> b")
	require.Equal(t, []Type{Identifier, Pipeline, Identifier, EndOfFile}, typesOf(toks))
}

func TestLexWhitespaceOnlyProducesEOF(t *testing.T) {
	toks := Lex("   \t\n  ")
	require.Equal(t, []Type{EndOfFile}, typesOf(toks))
}
