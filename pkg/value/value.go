package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Callable is the minimal surface value needs from a function value; the
// evaluator package defines the concrete callable types (closures over
// parsed ASTs, builtins, overload sets) and type-asserts to its own
// richer interface when it actually invokes one. This keeps pkg/value
// free of a dependency on the evaluator.
type Callable interface {
	Type() *Type
	String() string
}

// MapEntry is one (key, value) pair of a Value map, kept in insertion
// order so `map<K,V>` round-trips its iteration order the way an
// "ordered" section of the database does (spec.md §4.1).
type MapEntry struct {
	Key, Val Value
}

// Value is a dynamically tagged, owned sum type (spec.md §4.4). Lists
// and maps are represented as Go slices (copy-on-write is the caller's
// responsibility; mutation goes through a Place, see place.go).
type Value struct {
	typ *Type

	b  bool
	ch rune
	i  int64
	d  float64
	cx complex128

	str  string     // populated when typ.IsString()
	list []Value    // populated for non-string lists
	m    []MapEntry // populated for maps

	fn Callable
}

func NewVoid() Value                { return Value{typ: Void()} }
func NewBool(b bool) Value          { return Value{typ: Bool(), b: b} }
func NewChar(r rune) Value          { return Value{typ: Char(), ch: r} }
func NewInt(i int64) Value          { return Value{typ: Int(), i: i} }
func NewDouble(d float64) Value     { return Value{typ: Double(), d: d} }
func NewComplex(c complex128) Value { return Value{typ: Complex(), cx: c} }
func NewString(s string) Value      { return Value{typ: String(), str: s} }
func NewFunc(c Callable) Value      { return Value{typ: c.Type(), fn: c} }

// NewList builds a list<elem> value from items. elem == nil produces the
// anonymous list<void> used by empty list literals (spec.md §4.4's
// void-acts-as-anonymous rule).
func NewList(elem *Type, items []Value) Value {
	if elem == nil {
		elem = Void()
	}
	return Value{typ: ListType(elem), list: items}
}

// NewMap builds a map<key,val> value from entries, preserving order.
func NewMap(key, val *Type, entries []MapEntry) Value {
	if key == nil {
		key = Void()
	}
	if val == nil {
		val = Void()
	}
	return Value{typ: MapType(key, val), m: entries}
}

func (v Value) Type() *Type        { return v.typ }
func (v Value) IsVoid() bool       { return v.typ == nil || v.typ.Kind == KindVoid }
func (v Value) AsBool() bool       { return v.b }
func (v Value) AsChar() rune       { return v.ch }
func (v Value) AsInt() int64       { return v.i }
func (v Value) AsDouble() float64  { return v.d }
func (v Value) AsComplex() complex128 { return v.cx }
func (v Value) AsFunc() Callable   { return v.fn }

// AsString returns the string contents of a list<char> value.
func (v Value) AsString() string {
	if v.typ != nil && v.typ.IsString() {
		return v.str
	}
	// Fall back to element-wise char extraction for non-optimised lists.
	var sb strings.Builder
	for _, e := range v.list {
		sb.WriteRune(e.ch)
	}
	return sb.String()
}

// AsList returns the element slice of a list value, materialising a
// char-list view when the value is the optimised string representation.
func (v Value) AsList() []Value {
	if v.typ != nil && v.typ.IsString() {
		runes := []rune(v.str)
		out := make([]Value, len(runes))
		for i, r := range runes {
			out[i] = NewChar(r)
		}
		return out
	}
	return v.list
}

// AsMap returns the entry slice of a map value.
func (v Value) AsMap() []MapEntry { return v.m }

// Len reports the length of a list or map-kinded value.
func (v Value) Len() int {
	switch v.typ.Kind {
	case KindList:
		if v.typ.IsString() {
			return len([]rune(v.str))
		}
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// NumericToFloat widens an int/double/char value to float64 for use in
// arithmetic; callers must have already checked the Kind.
func (v Value) NumericToFloat() float64 {
	switch v.typ.Kind {
	case KindInt:
		return float64(v.i)
	case KindDouble:
		return v.d
	case KindChar:
		return float64(v.ch)
	default:
		return 0
	}
}

// Equal performs structural equality, matching spec.md's testable
// property that equality is a pure function of the operands. Exact
// type equality is required (an int and a double never compare equal
// here); the evaluator casts operands before comparing when the
// language semantics call for numeric coercion.
func Equal(a, b Value) bool {
	return valueEqual(a, b)
}

func valueEqual(a, b Value) bool {
	if !TypesEqual(a.typ, b.typ) {
		return false
	}
	switch a.typ.Kind {
	case KindVoid:
		return true
	case KindBool:
		return a.b == b.b
	case KindChar:
		return a.ch == b.ch
	case KindInt:
		return a.i == b.i
	case KindDouble:
		return a.d == b.d
	case KindComplex:
		return a.cx == b.cx
	case KindList:
		if a.typ.IsString() {
			return a.str == b.str
		}
		al, bl := a.AsList(), b.AsList()
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !valueEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for _, ea := range a.m {
			found := false
			for _, eb := range b.m {
				if valueEqual(ea.Key, eb.Key) {
					found = valueEqual(ea.Val, eb.Val)
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindFunction:
		return a.fn == b.fn
	default:
		return false
	}
}

// Render converts a Value to its canonical raw-string form, used by
// macro word substitution (spec.md §4.6) and the `str()` builtin.
func Render(v Value) string {
	switch v.typ.Kind {
	case KindVoid:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindChar:
		return string(v.ch)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.d, 'f', 3, 64)
	case KindComplex:
		return renderComplex(v.cx)
	case KindList:
		if v.typ.IsString() {
			return v.str
		}
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = renderElement(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, len(v.m))
		for i, e := range v.m {
			parts[i] = renderElement(e.Key) + ": " + renderElement(e.Val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return v.fn.String()
	default:
		return ""
	}
}

// renderElement quotes strings/chars when nested inside a list/map
// rendering, matching how the original's `str()` prints containers.
func renderElement(v Value) string {
	switch v.typ.Kind {
	case KindChar:
		return "'" + string(v.ch) + "'"
	case KindList:
		if v.typ.IsString() {
			return strconv.Quote(v.str)
		}
	}
	return Render(v)
}

func renderComplex(c complex128) string {
	re, im := real(c), imag(c)
	sign := "+"
	if im < 0 {
		sign = "-"
		im = -im
	}
	return fmt.Sprintf("%s%s%si", strconv.FormatFloat(re, 'f', 3, 64), sign, strconv.FormatFloat(im, 'f', 3, 64))
}
