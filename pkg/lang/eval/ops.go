package eval

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/zhiayang/ikura/pkg/lang/lexer"
	"github.com/zhiayang/ikura/pkg/value"
)

// binaryOp implements spec.md §4.6's operator table for every binary
// operator except `.` (DotOp), `|>` (handled specially since it needs a
// Context to perform a call), chained comparisons, and assignment
// (each has its own evaluation path).
func binaryOp(op lexer.Type, text string, l, r value.Value) (value.Value, error) {
	switch op {
	case lexer.Plus:
		return addOp(l, r)
	case lexer.Minus:
		return numericOp(l, r, func(a, b float64) float64 { return a - b },
			func(a, b int64) int64 { return a - b },
			func(a, b complex128) complex128 { return a - b })
	case lexer.Asterisk:
		return mulOp(l, r)
	case lexer.Slash:
		return divOp(l, r)
	case lexer.Percent:
		return modOp(l, r)
	case lexer.Caret:
		return powOp(l, r)
	case lexer.Ampersand:
		return intBinOp(text, l, r, func(a, b int64) int64 { return a & b })
	case lexer.Pipe:
		return intBinOp(text, l, r, func(a, b int64) int64 { return a | b })
	case lexer.ShiftLeft:
		return intBinOp(text, l, r, func(a, b int64) int64 { return a << uint64(b) })
	case lexer.ShiftRight:
		return intBinOp(text, l, r, func(a, b int64) int64 { return a >> uint64(b) })
	case lexer.LogicalAnd:
		return boolOp(text, l, r, func(a, b bool) bool { return a && b })
	case lexer.LogicalOr:
		return boolOp(text, l, r, func(a, b bool) bool { return a || b })
	default:
		return value.Value{}, fmt.Errorf("unsupported operator %q", text)
	}
}

// addOp implements `+`: numeric addition, list concatenation, and
// list-plus-scalar append (spec.md §4.6).
func addOp(l, r value.Value) (value.Value, error) {
	if l.Type().Kind == value.KindList && r.Type().Kind == value.KindList {
		if l.Type().IsString() && r.Type().IsString() {
			return value.NewString(l.AsString() + r.AsString()), nil
		}
		elem := l.Type().Elem
		if l.Type().IsVoidList() {
			elem = r.Type().Elem
		}
		merged := append(append([]value.Value{}, l.AsList()...), r.AsList()...)
		return value.NewList(elem, merged), nil
	}
	if l.Type().Kind == value.KindList {
		appended := append(append([]value.Value{}, l.AsList()...), r)
		return value.NewList(l.Type().Elem, appended), nil
	}
	if r.Type().Kind == value.KindList {
		prepended := append([]value.Value{l}, r.AsList()...)
		return value.NewList(r.Type().Elem, prepended), nil
	}
	return numericOp(l, r, func(a, b float64) float64 { return a + b },
		func(a, b int64) int64 { return a + b },
		func(a, b complex128) complex128 { return a + b })
}

// mulOp implements `*`: numeric multiplication, or (int, string) repeat.
func mulOp(l, r value.Value) (value.Value, error) {
	if l.Type().IsString() && r.Type().Kind == value.KindInt {
		return value.NewString(strings.Repeat(l.AsString(), int(r.AsInt()))), nil
	}
	if r.Type().IsString() && l.Type().Kind == value.KindInt {
		return value.NewString(strings.Repeat(r.AsString(), int(l.AsInt()))), nil
	}
	return numericOp(l, r, func(a, b float64) float64 { return a * b },
		func(a, b int64) int64 { return a * b },
		func(a, b complex128) complex128 { return a * b })
}

func divOp(l, r value.Value) (value.Value, error) {
	if l.Type().Kind == value.KindInt && r.Type().Kind == value.KindInt {
		if r.AsInt() == 0 {
			return value.Value{}, fmt.Errorf("division by zero")
		}
		return value.NewInt(l.AsInt() / r.AsInt()), nil
	}
	return numericOp(l, r, func(a, b float64) float64 { return a / b },
		func(a, b int64) int64 { return a / b },
		func(a, b complex128) complex128 { return a / b })
}

func modOp(l, r value.Value) (value.Value, error) {
	if l.Type().Kind != value.KindInt || r.Type().Kind != value.KindInt {
		return value.Value{}, fmt.Errorf("'%%' requires int operands, got %s and %s", l.Type(), r.Type())
	}
	if r.AsInt() == 0 {
		return value.Value{}, fmt.Errorf("division by zero")
	}
	return value.NewInt(l.AsInt() % r.AsInt()), nil
}

func powOp(l, r value.Value) (value.Value, error) {
	if l.Type().Kind == value.KindComplex || r.Type().Kind == value.KindComplex {
		return value.NewComplex(cmplx.Pow(toComplex(l), toComplex(r))), nil
	}
	if l.Type().Kind == value.KindInt && r.Type().Kind == value.KindInt && r.AsInt() >= 0 {
		res := int64(1)
		base := l.AsInt()
		for i := int64(0); i < r.AsInt(); i++ {
			res *= base
		}
		return value.NewInt(res), nil
	}
	if !isNumeric(l) || !isNumeric(r) {
		return value.Value{}, fmt.Errorf("'^' requires numeric operands, got %s and %s", l.Type(), r.Type())
	}
	return value.NewDouble(math.Pow(l.NumericToFloat(), r.NumericToFloat())), nil
}

func intBinOp(text string, l, r value.Value, f func(int64, int64) int64) (value.Value, error) {
	if l.Type().Kind != value.KindInt || r.Type().Kind != value.KindInt {
		return value.Value{}, fmt.Errorf("'%s' requires int operands, got %s and %s", text, l.Type(), r.Type())
	}
	return value.NewInt(f(l.AsInt(), r.AsInt())), nil
}

func boolOp(text string, l, r value.Value, f func(bool, bool) bool) (value.Value, error) {
	if l.Type().Kind != value.KindBool || r.Type().Kind != value.KindBool {
		return value.Value{}, fmt.Errorf("'%s' requires bool operands, got %s and %s", text, l.Type(), r.Type())
	}
	return value.NewBool(f(l.AsBool(), r.AsBool())), nil
}

func numericOp(l, r value.Value, fd func(float64, float64) float64, fi func(int64, int64) int64, fc func(complex128, complex128) complex128) (value.Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return value.Value{}, fmt.Errorf("incompatible operand types %s and %s", l.Type(), r.Type())
	}
	if l.Type().Kind == value.KindComplex || r.Type().Kind == value.KindComplex {
		return value.NewComplex(fc(toComplex(l), toComplex(r))), nil
	}
	if l.Type().Kind == value.KindDouble || r.Type().Kind == value.KindDouble {
		return value.NewDouble(fd(l.NumericToFloat(), r.NumericToFloat())), nil
	}
	return value.NewInt(fi(l.AsInt(), r.AsInt())), nil
}

func isNumeric(v value.Value) bool {
	switch v.Type().Kind {
	case value.KindInt, value.KindDouble, value.KindComplex, value.KindChar:
		return true
	}
	return false
}

func toComplex(v value.Value) complex128 {
	switch v.Type().Kind {
	case value.KindComplex:
		return v.AsComplex()
	default:
		return complex(v.NumericToFloat(), 0)
	}
}

func unaryOp(op lexer.Type, v value.Value) (value.Value, error) {
	switch op {
	case lexer.Exclamation:
		if v.Type().Kind != value.KindBool {
			return value.Value{}, fmt.Errorf("'!' requires a bool operand, got %s", v.Type())
		}
		return value.NewBool(!v.AsBool()), nil
	case lexer.Minus:
		switch v.Type().Kind {
		case value.KindInt:
			return value.NewInt(-v.AsInt()), nil
		case value.KindDouble:
			return value.NewDouble(-v.AsDouble()), nil
		case value.KindComplex:
			return value.NewComplex(-v.AsComplex()), nil
		}
		return value.Value{}, fmt.Errorf("unary '-' requires a numeric operand, got %s", v.Type())
	case lexer.Plus:
		if isNumeric(v) {
			return v, nil
		}
		return value.Value{}, fmt.Errorf("unary '+' requires a numeric operand, got %s", v.Type())
	case lexer.Tilde:
		if v.Type().Kind != value.KindInt {
			return value.Value{}, fmt.Errorf("'~' requires an int operand, got %s", v.Type())
		}
		return value.NewInt(^v.AsInt()), nil
	}
	return value.Value{}, fmt.Errorf("unsupported unary operator")
}

// compareOp implements a single comparison step of a (possibly
// chained) ComparisonOp node.
func compareOp(op lexer.Type, l, r value.Value) (bool, error) {
	switch {
	case isNumeric(l) && isNumeric(r):
		return compareNumeric(op, l, r)
	case l.Type().IsString() && r.Type().IsString():
		return compareString(op, l.AsString(), r.AsString()), nil
	case op == lexer.EqualTo || op == lexer.NotEqual:
		eq := value.TypesEqual(l.Type(), r.Type()) && value.Equal(l, r)
		if op == lexer.NotEqual {
			return !eq, nil
		}
		return eq, nil
	default:
		return false, fmt.Errorf("incomparable types %s and %s", l.Type(), r.Type())
	}
}

func compareNumeric(op lexer.Type, l, r value.Value) (bool, error) {
	if l.Type().Kind == value.KindComplex || r.Type().Kind == value.KindComplex {
		if op != lexer.EqualTo && op != lexer.NotEqual {
			return false, fmt.Errorf("ordering is not defined for complex numbers")
		}
		eq := toComplex(l) == toComplex(r)
		if op == lexer.NotEqual {
			return !eq, nil
		}
		return eq, nil
	}
	lf, rf := l.NumericToFloat(), r.NumericToFloat()
	switch op {
	case lexer.EqualTo:
		return lf == rf, nil
	case lexer.NotEqual:
		return lf != rf, nil
	case lexer.LAngle:
		return lf < rf, nil
	case lexer.RAngle:
		return lf > rf, nil
	case lexer.LessThanEqual:
		return lf <= rf, nil
	case lexer.GreaterThanEqual:
		return lf >= rf, nil
	}
	return false, fmt.Errorf("unknown comparison operator")
}

func compareString(op lexer.Type, l, r string) bool {
	switch op {
	case lexer.EqualTo:
		return l == r
	case lexer.NotEqual:
		return l != r
	case lexer.LAngle:
		return l < r
	case lexer.RAngle:
		return l > r
	case lexer.LessThanEqual:
		return l <= r
	case lexer.GreaterThanEqual:
		return l >= r
	}
	return false
}

// resolveIndex applies Python-style negative indexing (index from the
// end of a length-n sequence); the caller still bounds-checks the
// result.
func resolveIndex(n int, idx int64) int {
	i := int(idx)
	if i < 0 {
		i += n
	}
	return i
}

func evalSubscript(lhs, idxV value.Value) (value.Value, error) {
	switch lhs.Type().Kind {
	case value.KindMap:
		for _, e := range lhs.AsMap() {
			if value.Equal(e.Key, idxV) {
				return e.Val, nil
			}
		}
		return value.NewVoid(), nil
	case value.KindList:
		if idxV.Type().Kind != value.KindInt {
			return value.Value{}, fmt.Errorf("list index must be int, got %s", idxV.Type())
		}
		elems := lhs.AsList()
		i := resolveIndex(len(elems), idxV.AsInt())
		if i < 0 || i >= len(elems) {
			return value.Value{}, fmt.Errorf("index %d out of range (len %d)", idxV.AsInt(), len(elems))
		}
		return elems[i], nil
	}
	return value.Value{}, fmt.Errorf("cannot subscript a value of type %s", lhs.Type())
}

// evalSlice implements spec.md §8's slice boundary rules: an
// out-of-range bound clamps to the nearest valid end rather than
// erroring, and start >= end yields an empty result.
func evalSlice(lhs value.Value, start, end *int64) (value.Value, error) {
	if lhs.Type().Kind != value.KindList {
		return value.Value{}, fmt.Errorf("cannot slice a value of type %s", lhs.Type())
	}
	elems := lhs.AsList()
	n := len(elems)

	s := 0
	if start != nil {
		s = clampIndex(*start, n)
	}
	e := n
	if end != nil {
		e = clampIndex(*end, n)
	}

	if s >= e {
		if lhs.Type().IsString() {
			return value.NewString(""), nil
		}
		return value.NewList(lhs.Type().Elem, nil), nil
	}

	sub := append([]value.Value{}, elems[s:e]...)
	if lhs.Type().IsString() {
		var sb strings.Builder
		for _, c := range sub {
			sb.WriteRune(c.AsChar())
		}
		return value.NewString(sb.String()), nil
	}
	return value.NewList(lhs.Type().Elem, sub), nil
}

func clampIndex(idx int64, n int) int {
	i := int(idx)
	if i < 0 {
		i += n
	}
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}
