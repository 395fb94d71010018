package value

import "fmt"

// Place is an assignable location: the lvalue half of the language.
// The original implementation represented lvalues as tagged pointers
// into the interpreter's value storage; here a Place is instead a pair
// of closures over whatever storage actually owns the Value, so a
// variable slot, a list index, and a map key can all satisfy the same
// interface without the evaluator needing raw pointers into Go slices
// (spec.md §9 Design Notes: "re-architect as a sum type of owned values
// plus a separate Place abstraction").
type Place interface {
	// Get returns the current Value held at this location.
	Get() Value
	// Set replaces the Value held at this location. It returns an
	// error if the new value isn't castable to whatever type the
	// location requires (e.g. a typed list element).
	Set(Value) error
}

// VarPlace is a Place backed by a named variable slot, e.g. one entry
// of an evaluator scope's variable map.
type VarPlace struct {
	slot *Value
}

// NewVarPlace wraps a pointer to a variable's storage cell.
func NewVarPlace(slot *Value) *VarPlace { return &VarPlace{slot: slot} }

func (p *VarPlace) Get() Value { return *p.slot }

func (p *VarPlace) Set(v Value) error {
	*p.slot = v
	return nil
}

// ListIndexPlace is a Place addressing one element of a list value held
// by some other Place (typically a VarPlace).
type ListIndexPlace struct {
	parent Place
	index  int
}

// NewListIndexPlace builds a Place for parent[index]. index must
// already be bounds-checked by the caller (the evaluator raises the
// language-level "index out of range" error itself).
func NewListIndexPlace(parent Place, index int) *ListIndexPlace {
	return &ListIndexPlace{parent: parent, index: index}
}

func (p *ListIndexPlace) Get() Value {
	return p.parent.Get().AsList()[p.index]
}

func (p *ListIndexPlace) Set(v Value) error {
	list := p.parent.Get()
	elems := append([]Value(nil), list.AsList()...)
	if p.index < 0 || p.index >= len(elems) {
		return fmt.Errorf("index %d out of range (len %d)", p.index, len(elems))
	}
	dist := CastDistance(v.Type(), list.Type().Elem)
	if dist < 0 {
		return fmt.Errorf("cannot assign %s into list<%s>", v.Type(), list.Type().Elem)
	}
	elems[p.index] = v
	return p.parent.Set(NewList(list.Type().Elem, elems))
}

// MapKeyPlace is a Place addressing one entry of a map value held by
// some other Place. Assigning to a key that doesn't exist yet inserts
// it at the end, preserving insertion order.
type MapKeyPlace struct {
	parent Place
	key    Value
}

// NewMapKeyPlace builds a Place for parent[key].
func NewMapKeyPlace(parent Place, key Value) *MapKeyPlace {
	return &MapKeyPlace{parent: parent, key: key}
}

func (p *MapKeyPlace) Get() Value {
	m := p.parent.Get()
	for _, e := range m.AsMap() {
		if Equal(e.Key, p.key) {
			return e.Val
		}
	}
	return NewVoid()
}

func (p *MapKeyPlace) Set(v Value) error {
	m := p.parent.Get()
	entries := append([]MapEntry(nil), m.AsMap()...)
	for i, e := range entries {
		if Equal(e.Key, p.key) {
			entries[i].Val = v
			return p.parent.Set(NewMap(m.Type().Key, m.Type().Val, entries))
		}
	}
	entries = append(entries, MapEntry{Key: p.key, Val: v})
	return p.parent.Set(NewMap(m.Type().Key, m.Type().Val, entries))
}
