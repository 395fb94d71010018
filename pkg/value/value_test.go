package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringIsListOfChar(t *testing.T) {
	require.True(t, String().IsString())
	require.Equal(t, "string", String().String())
}

func TestEqualRequiresExactType(t *testing.T) {
	i := NewInt(3)
	d := NewDouble(3)
	require.False(t, Equal(i, d), "int and double must not compare equal even with the same numeric value")
	require.True(t, Equal(NewInt(3), NewInt(3)))
}

func TestEqualLists(t *testing.T) {
	a := NewList(Int(), []Value{NewInt(1), NewInt(2)})
	b := NewList(Int(), []Value{NewInt(1), NewInt(2)})
	c := NewList(Int(), []Value{NewInt(2), NewInt(1)})
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))
}

func TestEqualMapsIgnoreOrder(t *testing.T) {
	a := NewMap(String(), Int(), []MapEntry{
		{Key: NewString("x"), Val: NewInt(1)},
		{Key: NewString("y"), Val: NewInt(2)},
	})
	b := NewMap(String(), Int(), []MapEntry{
		{Key: NewString("y"), Val: NewInt(2)},
		{Key: NewString("x"), Val: NewInt(1)},
	})
	require.True(t, Equal(a, b))
}

func TestAsListMaterialisesStringChars(t *testing.T) {
	s := NewString("ab")
	chars := s.AsList()
	require.Len(t, chars, 2)
	require.Equal(t, 'a', chars[0].AsChar())
	require.Equal(t, 'b', chars[1].AsChar())
}

func TestRenderScalars(t *testing.T) {
	require.Equal(t, "true", Render(NewBool(true)))
	require.Equal(t, "42", Render(NewInt(42)))
	require.Equal(t, "", Render(NewVoid()))
	require.Equal(t, "hello", Render(NewString("hello")))
}

func TestRenderListAndMap(t *testing.T) {
	l := NewList(Int(), []Value{NewInt(1), NewInt(2)})
	require.Equal(t, "[1, 2]", Render(l))

	m := NewMap(String(), Int(), []MapEntry{
		{Key: NewString("a"), Val: NewInt(1)},
	})
	require.Equal(t, `{"a": 1}`, Render(m))
}

func TestCastDistanceTable(t *testing.T) {
	cases := []struct {
		name     string
		from, to *Type
		want     int
	}{
		{"identity", Int(), Int(), 0},
		{"int to double", Int(), Double(), 1},
		{"int to complex", Int(), Complex(), 2},
		{"double to complex", Double(), Complex(), 2},
		{"double to int not castable", Double(), Int(), -1},
		{"void list to typed list", ListType(Void()), ListType(Int()), 2},
		{"void map to typed map", MapType(Void(), Void()), MapType(String(), Int()), 2},
		{"to generic", Int(), Generic("T", 0), 10},
		{"list elem to generic", ListType(Int()), ListType(Generic("T", 0)), 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, CastDistance(c.from, c.to))
		})
	}
}

func TestCastableMatchesNonNegativeDistance(t *testing.T) {
	require.True(t, Castable(Int(), Double()))
	require.False(t, Castable(Bool(), Int()))
}

func TestFunctionCastDistanceSumsArgs(t *testing.T) {
	from := Function(Int(), Int(), Int())
	to := Function(Double(), Double(), Complex())
	require.Equal(t, 1+2, CastDistance(from, to))
}

func TestFunctionCastDistanceArityMismatch(t *testing.T) {
	from := Function(Int(), Int())
	to := Function(Int(), Int(), Int())
	require.Equal(t, -1, CastDistance(from, to))
}

func TestVarPlaceGetSet(t *testing.T) {
	slot := NewInt(1)
	p := NewVarPlace(&slot)
	require.Equal(t, int64(1), p.Get().AsInt())
	require.NoError(t, p.Set(NewInt(2)))
	require.Equal(t, int64(2), slot.AsInt())
}

func TestListIndexPlace(t *testing.T) {
	slot := NewList(Int(), []Value{NewInt(1), NewInt(2), NewInt(3)})
	parent := NewVarPlace(&slot)
	idx := NewListIndexPlace(parent, 1)
	require.Equal(t, int64(2), idx.Get().AsInt())

	require.NoError(t, idx.Set(NewInt(9)))
	require.Equal(t, int64(9), slot.AsList()[1].AsInt())
	// original list elements either side are untouched
	require.Equal(t, int64(1), slot.AsList()[0].AsInt())
	require.Equal(t, int64(3), slot.AsList()[2].AsInt())
}

func TestListIndexPlaceOutOfRange(t *testing.T) {
	slot := NewList(Int(), []Value{NewInt(1)})
	parent := NewVarPlace(&slot)
	idx := NewListIndexPlace(parent, 5)
	require.Error(t, idx.Set(NewInt(1)))
}

func TestMapKeyPlaceInsertAndUpdate(t *testing.T) {
	slot := NewMap(String(), Int(), nil)
	parent := NewVarPlace(&slot)
	k := NewMapKeyPlace(parent, NewString("a"))

	require.True(t, k.Get().IsVoid())
	require.NoError(t, k.Set(NewInt(1)))
	require.Equal(t, int64(1), k.Get().AsInt())

	require.NoError(t, k.Set(NewInt(2)))
	require.Equal(t, int64(2), k.Get().AsInt())
	require.Len(t, slot.AsMap(), 1)
}
