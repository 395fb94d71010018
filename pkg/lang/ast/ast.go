// Package ast defines the expression-language's syntax tree, produced
// by pkg/lang/parser and walked by pkg/lang/eval (spec.md C5/C6).
package ast

import "github.com/zhiayang/ikura/pkg/lang/lexer"

// Expr is implemented by every expression node. It carries no
// evaluation logic itself (that lives in pkg/lang/eval, which
// type-switches over concrete node types) to keep the tree a pure
// data structure, matching the original's AST-then-interpret split.
type Expr interface {
	exprNode()
}

type (
	// LitVoid is the literal `void`.
	LitVoid struct{}

	// LitBool is a boolean literal (`true`/`false`).
	LitBool struct{ Value bool }

	// LitChar is a single-codepoint character literal.
	LitChar struct{ Value rune }

	// LitInteger is an integer literal; Imag marks a trailing `i`
	// suffix (an imaginary-part literal combined at eval time).
	LitInteger struct {
		Value int64
		Imag  bool
	}

	// LitDouble is a floating-point literal; Imag as above.
	LitDouble struct {
		Value float64
		Imag  bool
	}

	// LitString is a string literal with escapes already resolved.
	LitString struct{ Value string }

	// LitList is a list literal `[e1, e2, ...]`.
	LitList struct{ Elems []Expr }

	// Ident is a bare (non-`$`) name reference: a local, a global, or a
	// builtin function or user command name (pkg/lang/eval's
	// variable-resolution order decides which).
	Ident struct{ Name string }

	// Dollar is `$name` distinguished from a bare Ident so the
	// evaluator can apply spec.md §4.6's positional/context lookup
	// order instead of ordinary global/command lookup.
	Dollar struct{ Name string }

	// UnaryOp is a prefix operator (`!`, unary `-`/`+`, `~`).
	UnaryOp struct {
		Op   lexer.Type
		Text string
		Expr Expr
	}

	// BinaryOp is an ordinary left-to-right binary operator.
	BinaryOp struct {
		Op       lexer.Type
		Text     string
		Lhs, Rhs Expr
	}

	// ComparisonOp is a chained comparison `a < b < c`, collapsed into
	// one n-ary node: Exprs has len(Ops)+1 elements.
	ComparisonOp struct {
		Exprs []Expr
		Ops   []lexer.Type
		Texts []string
	}

	// AssignOp is `lhs op= rhs` (plain `=` included); Lhs must resolve
	// to a Place at eval time.
	AssignOp struct {
		Op       lexer.Type
		Text     string
		Lhs, Rhs Expr
	}

	// TernaryOp is `cond ? then : else`.
	TernaryOp struct {
		Cond, Then, Else Expr
	}

	// DotOp is `lhs.rhs` (field/tuple access).
	DotOp struct{ Lhs, Rhs Expr }

	// FunctionCall is `callee(args...)`.
	FunctionCall struct {
		Callee Expr
		Args   []Expr
	}

	// SubscriptOp is `lhs[index]`.
	SubscriptOp struct{ Lhs, Index Expr }

	// SliceOp is `lhs[start:end]`, either bound optional.
	SliceOp struct {
		Lhs, Start, End Expr
	}

	// SplatOp is a postfix `expr...` splat argument.
	SplatOp struct{ Expr Expr }
)

func (*LitVoid) exprNode()      {}
func (*LitBool) exprNode()      {}
func (*LitChar) exprNode()      {}
func (*LitInteger) exprNode()   {}
func (*LitDouble) exprNode()    {}
func (*LitString) exprNode()    {}
func (*LitList) exprNode()      {}
func (*Ident) exprNode()        {}
func (*Dollar) exprNode()       {}
func (*UnaryOp) exprNode()      {}
func (*BinaryOp) exprNode()     {}
func (*ComparisonOp) exprNode() {}
func (*AssignOp) exprNode()     {}
func (*TernaryOp) exprNode()    {}
func (*DotOp) exprNode()        {}
func (*FunctionCall) exprNode() {}
func (*SubscriptOp) exprNode()  {}
func (*SliceOp) exprNode()      {}
func (*SplatOp) exprNode()      {}
