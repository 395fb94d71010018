// Package parser implements the Pratt-style expression parser
// (spec.md C5): precedence-climbing over the lexer's token stream,
// producing a pkg/lang/ast tree.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zhiayang/ikura/pkg/lang/ast"
	"github.com/zhiayang/ikura/pkg/lang/lexer"
)

// state walks a token slice one token at a time; it never backtracks
// beyond the normal recursive-descent call stack.
type state struct {
	toks []lexer.Token
	pos  int
}

func (s *state) peek() lexer.Token {
	if s.pos >= len(s.toks) {
		return lexer.Token{Type: lexer.EndOfFile}
	}
	return s.toks[s.pos]
}

func (s *state) pop() lexer.Token {
	t := s.peek()
	if s.pos < len(s.toks) {
		s.pos++
	}
	return t
}

func (s *state) match(t lexer.Type) bool {
	if s.peek().Type != t {
		return false
	}
	s.pop()
	return true
}

func (s *state) empty() bool { return s.peek().Type == lexer.EndOfFile }

// ParseExpr parses src as a single expression and returns its AST.
func ParseExpr(src string) (ast.Expr, error) {
	toks := lexer.Lex(src)
	st := &state{toks: toks}
	e, err := parseExpr(st)
	if err != nil {
		return nil, err
	}
	if !st.empty() {
		return nil, fmt.Errorf("unexpected trailing input at %q", st.peek().Text)
	}
	return e, nil
}

func isComparisonOp(t lexer.Type) bool {
	switch t {
	case lexer.EqualTo, lexer.NotEqual, lexer.LAngle, lexer.LessThanEqual, lexer.RAngle, lexer.GreaterThanEqual:
		return true
	}
	return false
}

func isPostfixOp(t lexer.Type) bool {
	switch t {
	case lexer.LSquare, lexer.LParen, lexer.Ellipsis:
		return true
	}
	return false
}

func isAssignmentOp(t lexer.Type) bool {
	switch t {
	case lexer.Equal, lexer.PlusEquals, lexer.MinusEquals, lexer.TimesEquals, lexer.DivideEquals,
		lexer.RemainderEquals, lexer.ShiftLeftEquals, lexer.ShiftRightEquals, lexer.BitwiseAndEquals,
		lexer.BitwiseOrEquals, lexer.ExponentEquals:
		return true
	}
	return false
}

func isRightAssociative(t lexer.Type) bool { return t == lexer.Caret }

// binaryPrecedence is the Pratt precedence table (spec.md §4.5): 8000
// for `.` down to 1 for `|>`. -1 means "not a binary/postfix operator".
func binaryPrecedence(t lexer.Type) int {
	switch t {
	case lexer.Period:
		return 8000
	case lexer.LParen, lexer.Ellipsis:
		return 3000
	case lexer.LSquare:
		return 2800
	case lexer.Caret:
		return 2600
	case lexer.Asterisk:
		return 2400
	case lexer.Slash:
		return 2200
	case lexer.Percent:
		return 2000
	case lexer.Plus, lexer.Minus:
		return 1800
	case lexer.ShiftLeft, lexer.ShiftRight:
		return 1600
	case lexer.Ampersand:
		return 1400
	case lexer.Pipe:
		return 1000
	case lexer.EqualTo, lexer.NotEqual, lexer.LAngle, lexer.RAngle, lexer.LessThanEqual, lexer.GreaterThanEqual:
		return 800
	case lexer.LogicalAnd:
		return 600
	case lexer.LogicalOr:
		return 400
	case lexer.Equal, lexer.PlusEquals, lexer.MinusEquals, lexer.TimesEquals, lexer.DivideEquals,
		lexer.RemainderEquals, lexer.ShiftLeftEquals, lexer.ShiftRightEquals, lexer.BitwiseAndEquals,
		lexer.BitwiseOrEquals, lexer.ExponentEquals:
		return 200
	case lexer.Question:
		return 10
	case lexer.Pipeline:
		return 1
	default:
		return -1
	}
}

func parseExpr(st *state) (ast.Expr, error) {
	lhs, err := parseUnary(st)
	if err != nil {
		return nil, err
	}
	return parseRhs(st, lhs, 0)
}

func parseUnary(st *state) (ast.Expr, error) {
	switch {
	case st.match(lexer.Exclamation):
		e, err := parseUnary(st)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: lexer.Exclamation, Text: "!", Expr: e}, nil
	case st.match(lexer.Minus):
		e, err := parseUnary(st)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: lexer.Minus, Text: "-", Expr: e}, nil
	case st.match(lexer.Plus):
		e, err := parseUnary(st)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: lexer.Plus, Text: "+", Expr: e}, nil
	case st.match(lexer.Tilde):
		e, err := parseUnary(st)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: lexer.Tilde, Text: "~", Expr: e}, nil
	default:
		return parsePrimary(st)
	}
}

func parseRhs(st *state, lhs ast.Expr, prio int) (ast.Expr, error) {
	for {
		if st.empty() {
			return lhs, nil
		}
		oper := st.peek()
		prec := binaryPrecedence(oper.Type)
		if prec < prio && !isRightAssociative(oper.Type) && !isPostfixOp(oper.Type) {
			return lhs, nil
		}
		if prec < 0 {
			return lhs, nil
		}
		st.pop()

		if isPostfixOp(oper.Type) {
			var err error
			lhs, err = parsePostfix(st, lhs, oper.Type)
			if err != nil {
				return nil, err
			}
			continue
		}

		rhs, err := parseUnary(st)
		if err != nil {
			return nil, err
		}

		next := binaryPrecedence(st.peek().Type)
		if next > prec || isRightAssociative(st.peek().Type) {
			rhs, err = parseRhs(st, rhs, prec+1)
			if err != nil {
				return nil, err
			}
		}

		switch {
		case isAssignmentOp(oper.Type):
			lhs = &ast.AssignOp{Op: oper.Type, Text: oper.Text, Lhs: lhs, Rhs: rhs}
		case oper.Type == lexer.Question:
			if !st.match(lexer.Colon) {
				return nil, fmt.Errorf("expected ':' after '?'")
			}
			elseExpr, err := parseExpr(st)
			if err != nil {
				return nil, err
			}
			lhs = &ast.TernaryOp{Cond: lhs, Then: rhs, Else: elseExpr}
		case isComparisonOp(oper.Type):
			if cmp, ok := lhs.(*ast.ComparisonOp); ok {
				cmp.Exprs = append(cmp.Exprs, rhs)
				cmp.Ops = append(cmp.Ops, oper.Type)
				cmp.Texts = append(cmp.Texts, oper.Text)
			} else {
				lhs = &ast.ComparisonOp{
					Exprs: []ast.Expr{lhs, rhs},
					Ops:   []lexer.Type{oper.Type},
					Texts: []string{oper.Text},
				}
			}
		case oper.Type == lexer.Period:
			lhs = &ast.DotOp{Lhs: lhs, Rhs: rhs}
		default:
			lhs = &ast.BinaryOp{Op: oper.Type, Text: oper.Text, Lhs: lhs, Rhs: rhs}
		}
	}
}

func parsePostfix(st *state, lhs ast.Expr, op lexer.Type) (ast.Expr, error) {
	switch op {
	case lexer.Ellipsis:
		return &ast.SplatOp{Expr: lhs}, nil

	case lexer.LParen:
		var args []ast.Expr
		for st.peek().Type != lexer.RParen {
			a, err := parseExpr(st)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if st.match(lexer.Comma) {
				continue
			}
			if st.peek().Type == lexer.RParen {
				break
			}
			return nil, fmt.Errorf("expected ',' or ')' in argument list")
		}
		if !st.match(lexer.RParen) {
			return nil, fmt.Errorf("expected ')'")
		}
		return &ast.FunctionCall{Callee: lhs, Args: args}, nil

	case lexer.LSquare:
		if st.match(lexer.Colon) {
			if st.match(lexer.RSquare) {
				return &ast.SliceOp{Lhs: lhs}, nil
			}
			end, err := parseExpr(st)
			if err != nil {
				return nil, err
			}
			if !st.match(lexer.RSquare) {
				return nil, fmt.Errorf("expected ']'")
			}
			return &ast.SliceOp{Lhs: lhs, End: end}, nil
		}

		idx, err := parseExpr(st)
		if err != nil {
			return nil, err
		}
		if st.match(lexer.Colon) {
			if st.match(lexer.RSquare) {
				return &ast.SliceOp{Lhs: lhs, Start: idx}, nil
			}
			end, err := parseExpr(st)
			if err != nil {
				return nil, err
			}
			if !st.match(lexer.RSquare) {
				return nil, fmt.Errorf("expected ']'")
			}
			return &ast.SliceOp{Lhs: lhs, Start: idx, End: end}, nil
		}
		if st.match(lexer.RSquare) {
			return &ast.SubscriptOp{Lhs: lhs, Index: idx}, nil
		}
		return nil, fmt.Errorf("expected ']' or ':'")

	default:
		return nil, fmt.Errorf("invalid postfix operator")
	}
}

func parsePrimary(st *state) (ast.Expr, error) {
	switch st.peek().Type {
	case lexer.StringLit:
		return parseString(st), nil
	case lexer.CharLit:
		return parseChar(st)
	case lexer.NumberLit:
		return parseNumber(st)
	case lexer.BooleanLit:
		return parseBool(st), nil
	case lexer.LParen:
		st.pop()
		inner, err := parseExpr(st)
		if err != nil {
			return nil, err
		}
		if !st.match(lexer.RParen) {
			return nil, fmt.Errorf("expected ')'")
		}
		return inner, nil
	case lexer.LSquare:
		return parseList(st)
	case lexer.Dollar:
		return parseDollar(st)
	case lexer.Identifier:
		t := st.pop()
		return &ast.Ident{Name: t.Text}, nil
	case lexer.EndOfFile:
		return nil, fmt.Errorf("unexpected end of input")
	default:
		return nil, fmt.Errorf("unexpected token %q", st.peek().Text)
	}
}

func parseDollar(st *state) (ast.Expr, error) {
	st.pop()
	t := st.peek()
	if t.Type != lexer.Identifier && t.Type != lexer.NumberLit {
		return nil, fmt.Errorf("expected identifier or number after '$'")
	}
	st.pop()
	return &ast.Dollar{Name: t.Text}, nil
}

func parseList(st *state) (ast.Expr, error) {
	st.pop() // '['
	var elems []ast.Expr
	for !st.empty() && st.peek().Type != lexer.RSquare {
		e, err := parseExpr(st)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if st.peek().Type == lexer.Comma {
			st.pop()
		} else if st.peek().Type == lexer.RSquare {
			break
		} else {
			return nil, fmt.Errorf("expected ',' or ']' in list literal")
		}
	}
	if !st.match(lexer.RSquare) {
		return nil, fmt.Errorf("expected ']'")
	}
	return &ast.LitList{Elems: elems}, nil
}

func parseBool(st *state) ast.Expr {
	t := st.pop()
	return &ast.LitBool{Value: t.Text == "true"}
}

func parseChar(st *state) (ast.Expr, error) {
	t := st.pop()
	r := []rune(t.Text)
	if len(r) != 1 {
		return nil, fmt.Errorf("invalid character literal %q", t.Text)
	}
	return &ast.LitChar{Value: r[0]}, nil
}

// unescapeString matches the original's parseString: recognised
// escapes are \n \b \r \t \" \\; any other escape sequence passes
// through literally as the backslash plus the following character.
func unescapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'b':
				sb.WriteByte('\b')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func parseString(st *state) ast.Expr {
	t := st.pop()
	return &ast.LitString{Value: unescapeString(t.Text)}
}

func parseNumber(st *state) (ast.Expr, error) {
	t := st.pop()
	num := t.Text

	base := 10
	switch {
	case strings.HasPrefix(num, "0b") || strings.HasPrefix(num, "0B"):
		base = 2
		num = num[2:]
	case strings.HasPrefix(num, "0x") || strings.HasPrefix(num, "0X"):
		base = 16
		num = num[2:]
	}

	isFloat := base == 10 && (strings.ContainsAny(num, ".") ||
		strings.ContainsAny(num, "eE"))

	imag := false
	if st.peek().Type == lexer.Identifier && st.peek().Text == "i" {
		imag = true
		st.pop()
	}

	if isFloat {
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal %q: %w", t.Text, err)
		}
		return &ast.LitDouble{Value: v, Imag: imag}, nil
	}

	v, err := strconv.ParseInt(num, base, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer literal %q: %w", t.Text, err)
	}
	return &ast.LitInteger{Value: v, Imag: imag}, nil
}
