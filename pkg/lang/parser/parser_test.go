package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/lang/ast"
)

func TestParseArithmeticPrecedence(t *testing.T) {
	e, err := ParseExpr("1 + 2 * 3")
	require.NoError(t, err)
	bin, ok := e.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "+", bin.Text)
	require.IsType(t, &ast.LitInteger{}, bin.Lhs)
	rhs, ok := bin.Rhs.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "*", rhs.Text)
}

func TestParseExponentIsRightAssociative(t *testing.T) {
	e, err := ParseExpr("2 ^ 3 ^ 2")
	require.NoError(t, err)
	top, ok := e.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "^", top.Text)
	require.IsType(t, &ast.LitInteger{}, top.Lhs)
	rhs, ok := top.Rhs.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "^", rhs.Text)
}

func TestParseChainedComparisonCollapses(t *testing.T) {
	e, err := ParseExpr("a < b < c")
	require.NoError(t, err)
	cmp, ok := e.(*ast.ComparisonOp)
	require.True(t, ok)
	require.Len(t, cmp.Exprs, 3)
	require.Equal(t, []string{"<", "<"}, cmp.Texts)
}

func TestParseTernary(t *testing.T) {
	e, err := ParseExpr("a ? b : c")
	require.NoError(t, err)
	tern, ok := e.(*ast.TernaryOp)
	require.True(t, ok)
	require.IsType(t, &ast.Ident{}, tern.Cond)
	require.IsType(t, &ast.Ident{}, tern.Then)
	require.IsType(t, &ast.Ident{}, tern.Else)
}

func TestParseAssignmentRequiresLvalue(t *testing.T) {
	e, err := ParseExpr("x = 1 + 2")
	require.NoError(t, err)
	assign, ok := e.(*ast.AssignOp)
	require.True(t, ok)
	require.Equal(t, "=", assign.Text)
	require.IsType(t, &ast.Ident{}, assign.Lhs)
}

func TestParseCompoundAssignment(t *testing.T) {
	e, err := ParseExpr("x += 1")
	require.NoError(t, err)
	assign, ok := e.(*ast.AssignOp)
	require.True(t, ok)
	require.Equal(t, "+=", assign.Text)
}

func TestParseFunctionCall(t *testing.T) {
	e, err := ParseExpr("foo(1, 2, 3)")
	require.NoError(t, err)
	call, ok := e.(*ast.FunctionCall)
	require.True(t, ok)
	require.IsType(t, &ast.Ident{}, call.Callee)
	require.Len(t, call.Args, 3)
}

func TestParseSubscript(t *testing.T) {
	e, err := ParseExpr("xs[0]")
	require.NoError(t, err)
	sub, ok := e.(*ast.SubscriptOp)
	require.True(t, ok)
	require.IsType(t, &ast.Ident{}, sub.Lhs)
	require.IsType(t, &ast.LitInteger{}, sub.Index)
}

func TestParseSliceBothBounds(t *testing.T) {
	e, err := ParseExpr("xs[1:3]")
	require.NoError(t, err)
	sl, ok := e.(*ast.SliceOp)
	require.True(t, ok)
	require.NotNil(t, sl.Start)
	require.NotNil(t, sl.End)
}

func TestParseSliceOpenStart(t *testing.T) {
	e, err := ParseExpr("xs[:3]")
	require.NoError(t, err)
	sl, ok := e.(*ast.SliceOp)
	require.True(t, ok)
	require.Nil(t, sl.Start)
	require.NotNil(t, sl.End)
}

func TestParseSliceOpenEnd(t *testing.T) {
	e, err := ParseExpr("xs[1:]")
	require.NoError(t, err)
	sl, ok := e.(*ast.SliceOp)
	require.True(t, ok)
	require.NotNil(t, sl.Start)
	require.Nil(t, sl.End)
}

func TestParseSliceFullyOpen(t *testing.T) {
	e, err := ParseExpr("xs[:]")
	require.NoError(t, err)
	sl, ok := e.(*ast.SliceOp)
	require.True(t, ok)
	require.Nil(t, sl.Start)
	require.Nil(t, sl.End)
}

func TestParseSplat(t *testing.T) {
	e, err := ParseExpr("xs...")
	require.NoError(t, err)
	sp, ok := e.(*ast.SplatOp)
	require.True(t, ok)
	require.IsType(t, &ast.Ident{}, sp.Expr)
}

func TestParseDotAccessAndTupleIndex(t *testing.T) {
	e, err := ParseExpr("x.0")
	require.NoError(t, err)
	dot, ok := e.(*ast.DotOp)
	require.True(t, ok)
	require.IsType(t, &ast.Ident{}, dot.Lhs)
	require.IsType(t, &ast.LitInteger{}, dot.Rhs)
}

func TestParseDollarVariable(t *testing.T) {
	e, err := ParseExpr("$1")
	require.NoError(t, err)
	d, ok := e.(*ast.Dollar)
	require.True(t, ok)
	require.Equal(t, "1", d.Name)
}

func TestParseListLiteral(t *testing.T) {
	e, err := ParseExpr("[1, 2, 3]")
	require.NoError(t, err)
	l, ok := e.(*ast.LitList)
	require.True(t, ok)
	require.Len(t, l.Elems, 3)
}

func TestParseStringEscapes(t *testing.T) {
	e, err := ParseExpr(`"a\nb\tc"`)
	require.NoError(t, err)
	s, ok := e.(*ast.LitString)
	require.True(t, ok)
	require.Equal(t, "a\nb\tc", s.Value)
}

func TestParseUnknownEscapePassesThrough(t *testing.T) {
	e, err := ParseExpr(`"a\qb"`)
	require.NoError(t, err)
	s, ok := e.(*ast.LitString)
	require.True(t, ok)
	require.Equal(t, `a\qb`, s.Value)
}

func TestParseImaginaryIntegerSuffix(t *testing.T) {
	e, err := ParseExpr("3i")
	require.NoError(t, err)
	n, ok := e.(*ast.LitInteger)
	require.True(t, ok)
	require.EqualValues(t, 3, n.Value)
	require.True(t, n.Imag)
}

func TestParseImaginaryDoubleSuffix(t *testing.T) {
	e, err := ParseExpr("2.5i")
	require.NoError(t, err)
	n, ok := e.(*ast.LitDouble)
	require.True(t, ok)
	require.InDelta(t, 2.5, n.Value, 1e-9)
	require.True(t, n.Imag)
}

func TestParseHexAndBinaryLiterals(t *testing.T) {
	e, err := ParseExpr("0xFF")
	require.NoError(t, err)
	n, ok := e.(*ast.LitInteger)
	require.True(t, ok)
	require.EqualValues(t, 255, n.Value)

	e, err = ParseExpr("0b101")
	require.NoError(t, err)
	n, ok = e.(*ast.LitInteger)
	require.True(t, ok)
	require.EqualValues(t, 5, n.Value)
}

func TestParseUnaryOperators(t *testing.T) {
	e, err := ParseExpr("!x")
	require.NoError(t, err)
	u, ok := e.(*ast.UnaryOp)
	require.True(t, ok)
	require.Equal(t, "!", u.Text)

	e, err = ParseExpr("-x")
	require.NoError(t, err)
	u, ok = e.(*ast.UnaryOp)
	require.True(t, ok)
	require.Equal(t, "-", u.Text)
}

func TestParseParenthesizedExpression(t *testing.T) {
	e, err := ParseExpr("(1 + 2) * 3")
	require.NoError(t, err)
	top, ok := e.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "*", top.Text)
	require.IsType(t, &ast.BinaryOp{}, top.Lhs)
}

func TestParsePipelineOperator(t *testing.T) {
	e, err := ParseExpr("a |> b")
	require.NoError(t, err)
	bin, ok := e.(*ast.BinaryOp)
	require.True(t, ok)
	require.Equal(t, "|>", bin.Text)
}

func TestParseChainedCallAndSubscript(t *testing.T) {
	e, err := ParseExpr("foo()[0]")
	require.NoError(t, err)
	sub, ok := e.(*ast.SubscriptOp)
	require.True(t, ok)
	require.IsType(t, &ast.FunctionCall{}, sub.Lhs)
}

func TestParseTrailingGarbageErrors(t *testing.T) {
	_, err := ParseExpr("1 + )")
	require.Error(t, err)
}

func TestParseUnterminatedCallErrors(t *testing.T) {
	_, err := ParseExpr("foo(1, 2")
	require.Error(t, err)
}
