// Package bio provides bounds-checked, big-endian primitive I/O over a
// byte slice, with zero-copy slicing. It is the lowest-level component
// shared by the chunk framer and the UTF table codec.
package bio

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrOutsideBoundary is returned whenever a read or slice would cross
// the end of the underlying buffer.
var ErrOutsideBoundary = errors.New("bio: read outside buffer boundary")

// Reader is a cursor over a byte slice. It never copies the underlying
// data; every read either advances a fixed-width field out of the
// slice or returns a subslice view.
type Reader struct {
	data []byte
	pos  uint32
}

// NewReader wraps data in a Reader starting at offset zero.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total size of the underlying buffer.
func (r *Reader) Len() uint32 { return uint32(len(r.data)) }

// Pos returns the current cursor offset.
func (r *Reader) Pos() uint32 { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() uint32 { return r.Len() - r.pos }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset uint32) error {
	if offset > r.Len() {
		return ErrOutsideBoundary
	}
	r.pos = offset
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n uint32) error {
	return r.Seek(r.pos + n)
}

// Slice returns a zero-copy view of length n starting at the current
// cursor, and advances past it.
func (r *Reader) Slice(n uint32) ([]byte, error) {
	end := r.pos + n
	if end < r.pos || end > r.Len() {
		return nil, ErrOutsideBoundary
	}
	b := r.data[r.pos:end]
	r.pos = end
	return b, nil
}

// SliceAt returns a zero-copy view of length n at an absolute offset;
// it does not move the cursor.
func (r *Reader) SliceAt(offset, n uint32) ([]byte, error) {
	end := offset + n
	if end < offset || end > r.Len() {
		return nil, ErrOutsideBoundary
	}
	return r.data[offset:end], nil
}

// U8 reads one byte and advances.
func (r *Reader) U8() (uint8, error) {
	b, err := r.Slice(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a big-endian uint16 and advances.
func (r *Reader) U16() (uint16, error) {
	b, err := r.Slice(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// U24 reads a big-endian 24-bit unsigned integer and advances.
func (r *Reader) U24() (uint32, error) {
	b, err := r.Slice(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// U32 reads a big-endian uint32 and advances.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Slice(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// U64 reads a big-endian uint64 and advances.
func (r *Reader) U64() (uint64, error) {
	b, err := r.Slice(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// F32 reads a big-endian IEEE-754 float32 and advances.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// F64 reads a big-endian IEEE-754 float64 and advances.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadUint8At reads a byte at an absolute offset without moving the cursor.
func (r *Reader) ReadUint8At(offset uint32) (uint8, error) {
	b, err := r.SliceAt(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16At reads a big-endian uint16 at an absolute offset.
func (r *Reader) ReadUint16At(offset uint32) (uint16, error) {
	b, err := r.SliceAt(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32At reads a big-endian uint32 at an absolute offset.
func (r *Reader) ReadUint32At(offset uint32) (uint32, error) {
	b, err := r.SliceAt(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64At reads a big-endian uint64 at an absolute offset.
func (r *Reader) ReadUint64At(offset uint32) (uint64, error) {
	b, err := r.SliceAt(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// CString reads a NUL-terminated byte string at an absolute offset
// and returns it without the terminator. Used for string-pool lookups.
func (r *Reader) CString(offset uint32) ([]byte, error) {
	if offset > r.Len() {
		return nil, ErrOutsideBoundary
	}
	end := offset
	for end < r.Len() && r.data[end] != 0 {
		end++
	}
	if end >= r.Len() {
		return nil, ErrOutsideBoundary
	}
	return r.data[offset:end], nil
}
