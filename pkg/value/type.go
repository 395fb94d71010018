// Package value implements the dynamically tagged value and type system
// (spec.md C4): a Type describes the shape of a Value, and Values are
// compared, cast, and indexed according to that shape.
package value

import "strings"

// Kind is the discriminant of both Type and Value: every operation's
// result type is decidable from its operands' Kinds (spec.md §3
// invariant "every Value carries a Type").
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindChar
	KindInt
	KindDouble
	KindComplex
	KindList
	KindMap
	KindFunction
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindComplex:
		return "complex"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindFunction:
		return "function"
	case KindGeneric:
		return "generic"
	default:
		return "?"
	}
}

// Type is a structurally compared, immutable description of a Value's
// shape. `string` is represented as `list<char>` (spec.md §4.4), so
// there is no separate KindString.
type Type struct {
	Kind Kind

	// KindList
	Elem     *Type
	Variadic bool

	// KindMap
	Key, Val *Type

	// KindFunction
	Ret    *Type
	Params []*Type

	// KindGeneric
	GenericName  string
	GenericGroup int
}

func Void() *Type   { return &Type{Kind: KindVoid} }
func Bool() *Type   { return &Type{Kind: KindBool} }
func Char() *Type   { return &Type{Kind: KindChar} }
func Int() *Type    { return &Type{Kind: KindInt} }
func Double() *Type { return &Type{Kind: KindDouble} }
func Complex() *Type{ return &Type{Kind: KindComplex} }

// String is list<char>.
func String() *Type { return ListType(Char()) }

func ListType(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

func VariadicList(elem *Type) *Type {
	return &Type{Kind: KindList, Elem: elem, Variadic: true}
}

func MapType(key, val *Type) *Type { return &Type{Kind: KindMap, Key: key, Val: val} }

func Function(ret *Type, params ...*Type) *Type {
	return &Type{Kind: KindFunction, Ret: ret, Params: params}
}

func Generic(name string, group int) *Type {
	return &Type{Kind: KindGeneric, GenericName: name, GenericGroup: group}
}

// IsString reports whether t is list<char> (i.e. the `string` type).
func (t *Type) IsString() bool {
	return t != nil && t.Kind == KindList && t.Elem != nil && t.Elem.Kind == KindChar
}

// IsVoidList reports whether t is list<void>, the "anonymous" empty list
// literal type used by cast-distance rule §4.4.
func (t *Type) IsVoidList() bool {
	return t != nil && t.Kind == KindList && t.Elem != nil && t.Elem.Kind == KindVoid
}

// IsVoidMap reports whether t is map<void,void>.
func (t *Type) IsVoidMap() bool {
	return t != nil && t.Kind == KindMap &&
		t.Key != nil && t.Key.Kind == KindVoid &&
		t.Val != nil && t.Val.Kind == KindVoid
}

// TypesEqual performs structural type comparison; function types compare
// by arity and element-wise identity of argument and return types.
func TypesEqual(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindList:
		return a.Variadic == b.Variadic && TypesEqual(a.Elem, b.Elem)
	case KindMap:
		return TypesEqual(a.Key, b.Key) && TypesEqual(a.Val, b.Val)
	case KindFunction:
		if len(a.Params) != len(b.Params) || !TypesEqual(a.Ret, b.Ret) {
			return false
		}
		for i := range a.Params {
			if !TypesEqual(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case KindGeneric:
		return a.GenericName == b.GenericName && a.GenericGroup == b.GenericGroup
	default:
		return true
	}
}

// String renders a human-readable type name, used in error messages the
// evaluator must produce deterministically (spec.md §7).
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case KindList:
		if t.IsString() {
			return "string"
		}
		prefix := "list"
		if t.Variadic {
			prefix = "variadic_list"
		}
		return prefix + "<" + t.Elem.String() + ">"
	case KindMap:
		return "map<" + t.Key.String() + ", " + t.Val.String() + ">"
	case KindFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return "function(" + t.Ret.String() + "; " + strings.Join(parts, ", ") + ")"
	case KindGeneric:
		return t.GenericName
	default:
		return t.Kind.String()
	}
}
