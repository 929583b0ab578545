package bio

import (
	"encoding/binary"
	"math"
)

// Writer accumulates big-endian encoded fields into a growing buffer.
// It mirrors Reader field-for-field so that encode/decode stay in lock
// step without a separate schema.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap pre-allocated.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() uint32 { return uint32(len(w.buf)) }

// Bytes returns the accumulated buffer. The caller must not retain it
// across further writes.
func (w *Writer) Bytes() []byte { return w.buf }

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Pad appends n zero bytes.
func (w *Writer) Pad(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// U8 appends a single byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U16 appends a big-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U24 appends a big-endian 24-bit unsigned integer.
func (w *Writer) U24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

// U32 appends a big-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U64 appends a big-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// F32 appends a big-endian IEEE-754 float32.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 appends a big-endian IEEE-754 float64.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// PutU32At overwrites 4 bytes at offset with a big-endian uint32; used
// to back-patch size fields once the total length is known.
func (w *Writer) PutU32At(offset uint32, v uint32) {
	binary.BigEndian.PutUint32(w.buf[offset:offset+4], v)
}

// CString appends s followed by a NUL terminator.
func (w *Writer) CString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// AlignTo8 pads the buffer up to the next 8-byte boundary relative to
// base, returning the number of padding bytes written.
func (w *Writer) AlignTo8(base uint32) uint32 {
	rem := (w.Len() - base) % 8
	if rem == 0 {
		return 0
	}
	pad := 8 - rem
	w.Pad(pad)
	return pad
}
