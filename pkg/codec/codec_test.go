package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	w := NewWriter()
	w.WriteU64(0)
	w.WriteU64(255)
	w.WriteU64(70000)
	w.WriteU64(1 << 40)
	w.WriteS64(-1)
	w.WriteS64(-40000)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteFloat64(3.14159)
	w.WriteString("hello, 世界")
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())

	u, err := r.ReadU64()
	require.NoError(t, err)
	require.EqualValues(t, 0, u)

	u, err = r.ReadU64()
	require.NoError(t, err)
	require.EqualValues(t, 255, u)

	u, err = r.ReadU64()
	require.NoError(t, err)
	require.EqualValues(t, 70000, u)

	u, err = r.ReadU64()
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, u)

	s, err := r.ReadS64()
	require.NoError(t, err)
	require.EqualValues(t, -1, s)

	s, err = r.ReadS64()
	require.NoError(t, err)
	require.EqualValues(t, -40000, s)

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	b, err = r.ReadBool()
	require.NoError(t, err)
	require.False(t, b)

	f, err := r.ReadFloat64()
	require.NoError(t, err)
	require.InDelta(t, 3.14159, f, 1e-12)

	str, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello, 世界", str)

	by, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, by)

	require.Zero(t, r.Remaining())
}

func TestRoundTripListAndMap(t *testing.T) {
	w := NewWriter()
	w.WriteListHeader(3)
	for i := 0; i < 3; i++ {
		w.WriteU64(uint64(i))
	}
	w.WriteOrderedMapHeader(2)
	w.WriteString("a")
	w.WriteU64(1)
	w.WriteString("b")
	w.WriteU64(2)

	r := NewReader(w.Bytes())
	n, err := r.ReadListHeader()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadU64()
		require.NoError(t, err)
		require.EqualValues(t, i, v)
	}

	count, ordered, err := r.ReadMapHeader()
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.True(t, ordered)
}

func TestTagMismatchReturnsDeserialiseError(t *testing.T) {
	w := NewWriter()
	w.WriteString("not a number")
	r := NewReader(w.Bytes())

	_, err := r.ReadU64()
	require.ErrorIs(t, err, ErrDeserialise)
}

func TestTruncatedInputReturnsDeserialiseError(t *testing.T) {
	w := NewWriter()
	w.WriteString("hello")
	truncated := w.Bytes()[:len(w.Bytes())-2]

	r := NewReader(truncated)
	_, err := r.ReadString()
	require.ErrorIs(t, err, ErrDeserialise)
}
