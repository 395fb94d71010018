package codec

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates a little-endian, tagged binary encoding. The zero
// value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns a ready-to-use Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteTag writes a single raw tag byte, used by polymorphic encoders
// (AST nodes, Commands, Values) that need their own leading discriminant.
func (w *Writer) WriteTag(t Tag) { w.buf.WriteByte(byte(t)) }

// WriteU64 writes a tagged u64, compacting to the smallest width that
// losslessly represents the value (spec.md §4.1 "smaller-integer
// compaction").
func (w *Writer) WriteU64(v uint64) {
	switch {
	case v <= math.MaxUint8:
		w.buf.WriteByte(byte(TagU8))
		w.buf.WriteByte(byte(v))
	case v <= math.MaxUint16:
		w.buf.WriteByte(byte(TagU16))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.buf.Write(b[:])
	case v <= math.MaxUint32:
		w.buf.WriteByte(byte(TagU32))
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		w.buf.Write(b[:])
	default:
		w.buf.WriteByte(byte(TagU64))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		w.buf.Write(b[:])
	}
}

// WriteS64 writes a tagged, sign-aware integer using the same
// smaller-width-if-possible compaction as WriteU64.
func (w *Writer) WriteS64(v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		w.buf.WriteByte(byte(TagS8))
		w.buf.WriteByte(byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		w.buf.WriteByte(byte(TagS16))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v)))
		w.buf.Write(b[:])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		w.buf.WriteByte(byte(TagS32))
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		w.buf.Write(b[:])
	default:
		w.buf.WriteByte(byte(TagS64))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		w.buf.Write(b[:])
	}
}

// WriteBool writes a tagged boolean.
func (w *Writer) WriteBool(v bool) {
	w.buf.WriteByte(byte(TagBool))
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteFloat64 writes a tagged IEEE-754 double.
func (w *Writer) WriteFloat64(v float64) {
	w.buf.WriteByte(byte(TagFloat64))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// WriteString writes a tagged, length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.buf.WriteByte(byte(TagString))
	w.writeRawU64(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes a tagged, length-prefixed opaque byte slice (used for
// the message-log interned arena and similar raw spans).
func (w *Writer) WriteBytes(b []byte) {
	w.buf.WriteByte(byte(TagBytes))
	w.writeRawU64(uint64(len(b)))
	w.buf.Write(b)
}

// WriteListHeader writes the LIST tag and element count; callers then
// write `count` elements themselves so this package never needs to know
// the element type.
func (w *Writer) WriteListHeader(count int) {
	w.buf.WriteByte(byte(TagList))
	w.writeRawU64(uint64(count))
}

// WriteMapHeader writes the MAP tag and entry count; callers then write
// `count` (key, value) pairs.
func (w *Writer) WriteMapHeader(count int) {
	w.buf.WriteByte(byte(TagMap))
	w.writeRawU64(uint64(count))
}

// WriteOrderedMapHeader is identical to WriteMapHeader but tags the
// section as insertion-ordered, so the reader does not need to
// re-sort entries to recover the original order (spec.md §4.1 "MAP
// (hashed or ordered)").
func (w *Writer) WriteOrderedMapHeader(count int) {
	w.buf.WriteByte(byte(TagOrderedMap))
	w.writeRawU64(uint64(count))
}

// writeRawU64 writes an untagged, fixed-width u64 length prefix (the
// count fields of STRING/MAP/LIST are not themselves re-tagged).
func (w *Writer) writeRawU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}
