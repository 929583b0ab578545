// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package utf implements the @UTF columnar metadata-table codec: the
// format behind the CRID, @SFV and @SFA stream header tables, with
// typed columns, three storage modes, and a shared string/byte pool.
//
// This mirrors, in shape, how the teacher's dotnet_metadata_tables.go
// reads typed rows out of named streams (#Strings, #GUID, #Blob) with
// per-row index widths computed from a stream-header bitmask; here the
// "streams" collapse to a single string pool and a single byte pool,
// and the per-column width is fixed by its type tag rather than a
// runtime index-size computation.
package utf

import (
	"fmt"
)

// Signature is the 4-byte magic every @UTF table begins with.
const Signature = "@UTF"

const headerSize = 24 // rowsOffset, stringsOffset, bytesOffset, nameOffset, colCount, rowStride, rowCount

// TypeTag is the low nibble of a column descriptor byte.
type TypeTag uint8

// Recognized column type tags.
const (
	TypeU8 TypeTag = iota
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeF32
	TypeF64
	TypeString
	TypeBytes
)

func (t TypeTag) valid() bool { return t <= TypeBytes }

func (t TypeTag) width() (uint32, error) {
	switch t {
	case TypeU8, TypeI8:
		return 1, nil
	case TypeU16, TypeI16:
		return 2, nil
	case TypeU32, TypeI32, TypeF32, TypeString:
		return 4, nil
	case TypeU64, TypeI64, TypeF64:
		return 8, nil
	case TypeBytes:
		return 8, nil // u32 offset + u32 length
	default:
		return 0, fmt.Errorf("utf: unknown type tag %d", t)
	}
}

// StorageMode is the high nibble of a column descriptor byte.
type StorageMode uint8

// Recognized storage modes. Values match the on-disk convention used
// by the CRI @UTF format.
const (
	StorageZero     StorageMode = 0x1
	StorageConstant StorageMode = 0x3
	StoragePerRow   StorageMode = 0x5
)

func (m StorageMode) valid() bool {
	return m == StorageZero || m == StorageConstant || m == StoragePerRow
}

// Value is a tagged variant holding one column's value: one of the
// numeric types, a string, or an opaque byte blob.
type Value struct {
	Type TypeTag
	bits uint64
	str  string
	blob []byte
}

// ValueU8 builds a u8 Value.
func ValueU8(v uint8) Value { return Value{Type: TypeU8, bits: uint64(v)} }

// ValueI8 builds an i8 Value.
func ValueI8(v int8) Value { return Value{Type: TypeI8, bits: uint64(uint8(v))} }

// ValueU16 builds a u16 Value.
func ValueU16(v uint16) Value { return Value{Type: TypeU16, bits: uint64(v)} }

// ValueI16 builds an i16 Value.
func ValueI16(v int16) Value { return Value{Type: TypeI16, bits: uint64(uint16(v))} }

// ValueU32 builds a u32 Value.
func ValueU32(v uint32) Value { return Value{Type: TypeU32, bits: uint64(v)} }

// ValueI32 builds an i32 Value.
func ValueI32(v int32) Value { return Value{Type: TypeI32, bits: uint64(uint32(v))} }

// ValueU64 builds a u64 Value.
func ValueU64(v uint64) Value { return Value{Type: TypeU64, bits: v} }

// ValueI64 builds an i64 Value.
func ValueI64(v int64) Value { return Value{Type: TypeI64, bits: uint64(v)} }

// ValueF32 builds an f32 Value.
func ValueF32(v float32) Value { return Value{Type: TypeF32, bits: uint64(f32bits(v))} }

// ValueF64 builds an f64 Value.
func ValueF64(v float64) Value { return Value{Type: TypeF64, bits: f64bits(v)} }

// ValueString builds a string Value.
func ValueString(s string) Value { return Value{Type: TypeString, str: s} }

// ValueBytes builds a bytes Value.
func ValueBytes(b []byte) Value { return Value{Type: TypeBytes, blob: b} }

// U8 returns v's value as a uint8.
func (v Value) U8() uint8 { return uint8(v.bits) }

// I8 returns v's value as an int8.
func (v Value) I8() int8 { return int8(uint8(v.bits)) }

// U16 returns v's value as a uint16.
func (v Value) U16() uint16 { return uint16(v.bits) }

// I16 returns v's value as an int16.
func (v Value) I16() int16 { return int16(uint16(v.bits)) }

// U32 returns v's value as a uint32.
func (v Value) U32() uint32 { return uint32(v.bits) }

// I32 returns v's value as an int32.
func (v Value) I32() int32 { return int32(uint32(v.bits)) }

// U64 returns v's value as a uint64.
func (v Value) U64() uint64 { return v.bits }

// I64 returns v's value as an int64.
func (v Value) I64() int64 { return int64(v.bits) }

// F32 returns v's value as a float32.
func (v Value) F32() float32 { return f32frombits(uint32(v.bits)) }

// F64 returns v's value as a float64.
func (v Value) F64() float64 { return f64frombits(v.bits) }

// Str returns v's value as a string.
func (v Value) Str() string { return v.str }

// Bytes returns v's value as a byte blob.
func (v Value) Bytes() []byte { return v.blob }

// Equal reports whether v and other hold the same type and value.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeString:
		return v.str == other.str
	case TypeBytes:
		return string(v.blob) == string(other.blob)
	default:
		return v.bits == other.bits
	}
}

// Column describes one @UTF column: its name, type, storage mode, and
// (for StorageConstant) its shared value.
type Column struct {
	Name     string
	Type     TypeTag
	Storage  StorageMode
	Constant Value // meaningful only when Storage == StorageConstant
}

// Table is a decoded (or freshly built) @UTF metadata table.
type Table struct {
	Name     string
	Columns  []Column
	RowCount uint32
	// Rows holds every column's resolved value for every row,
	// including StorageZero/StorageConstant columns, so callers never
	// need to special-case storage mode when reading. len(Rows) ==
	// RowCount; len(Rows[i]) == len(Columns).
	Rows [][]Value
}

// NewTable builds an empty table ready for AddColumn/AddRow.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// AddColumn appends a PER_ROW column. Use AddConstantColumn for a
// column whose value is shared by every row.
func (t *Table) AddColumn(name string, typ TypeTag) {
	t.Columns = append(t.Columns, Column{Name: name, Type: typ, Storage: StoragePerRow})
}

// AddConstantColumn appends a column whose value is identical for
// every row and stored once in the column descriptor.
func (t *Table) AddConstantColumn(name string, value Value) {
	t.Columns = append(t.Columns, Column{Name: name, Type: value.Type, Storage: StorageConstant, Constant: value})
}

// AddZeroColumn appends a column whose value is the type's zero value
// for every row, stored nowhere.
func (t *Table) AddZeroColumn(name string, typ TypeTag) {
	t.Columns = append(t.Columns, Column{Name: name, Type: typ, Storage: StorageZero})
}

// AddRow appends one row of PER_ROW values, in column order. Only
// values for StoragePerRow columns are read from values; pass a zero
// Value for any other column's slot.
func (t *Table) AddRow(values ...Value) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("utf: AddRow got %d values, table has %d columns", len(values), len(t.Columns))
	}
	row := make([]Value, len(t.Columns))
	for i, col := range t.Columns {
		switch col.Storage {
		case StorageZero:
			row[i] = zeroValue(col.Type)
		case StorageConstant:
			row[i] = col.Constant
		case StoragePerRow:
			row[i] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
	t.RowCount++
	return nil
}

func zeroValue(t TypeTag) Value {
	switch t {
	case TypeString:
		return ValueString("")
	case TypeBytes:
		return ValueBytes(nil)
	default:
		return Value{Type: t}
	}
}

// Get returns the value of column name in row r.
func (t *Table) Get(r int, name string) (Value, error) {
	for i, col := range t.Columns {
		if col.Name == name {
			return t.Rows[r][i], nil
		}
	}
	return Value{}, fmt.Errorf("utf: no such column %q", name)
}
