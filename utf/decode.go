package utf

import (
	"fmt"

	"golang.org/x/text/encoding"

	"github.com/usmkit/usmkit/internal/bio"
)

// Decode parses one @UTF table from data. Payload string values (row
// and constant string columns) are transcoded through enc if non-nil;
// structural names (table name, column names) are always read as raw
// ASCII, matching spec's distinction between structural and payload
// strings. Pass a nil enc to treat payload strings as already UTF-8.
func Decode(data []byte, enc encoding.Encoding) (*Table, error) {
	if len(data) < 8 || string(data[0:4]) != Signature {
		return nil, malformed("missing @UTF signature")
	}

	tableSize := beU32(data[4:8])
	if uint64(8)+uint64(tableSize) > uint64(len(data)) {
		return nil, malformed("table size exceeds buffer length")
	}
	body := data[8 : 8+tableSize]

	r := bio.NewReader(body)

	rowsOffset, err := r.U32()
	if err != nil {
		return nil, malformed("truncated header")
	}
	stringsOffset, err := r.U32()
	if err != nil {
		return nil, malformed("truncated header")
	}
	bytesOffset, err := r.U32()
	if err != nil {
		return nil, malformed("truncated header")
	}
	tableNameOffset, err := r.U32()
	if err != nil {
		return nil, malformed("truncated header")
	}
	columnCount, err := r.U16()
	if err != nil {
		return nil, malformed("truncated header")
	}
	rowStride, err := r.U16()
	if err != nil {
		return nil, malformed("truncated header")
	}
	rowCount, err := r.U32()
	if err != nil {
		return nil, malformed("truncated header")
	}

	if stringsOffset > r.Len() || bytesOffset > r.Len() {
		return nil, malformed("pool offset out of range")
	}

	readStructuralString := func(offset uint32) (string, error) {
		abs := stringsOffset + offset
		b, err := r.CString(abs)
		if err != nil {
			return "", malformed("string pool offset out of range")
		}
		return string(b), nil
	}

	readPayloadString := func(offset uint32) (string, error) {
		abs := stringsOffset + offset
		b, err := r.CString(abs)
		if err != nil {
			return "", malformed("string pool offset out of range")
		}
		if enc == nil {
			return string(b), nil
		}
		decoded, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", malformed(fmt.Sprintf("string pool decode: %v", err))
		}
		return string(decoded), nil
	}

	readBytesValue := func(offset, length uint32) ([]byte, error) {
		b, err := r.SliceAt(bytesOffset+offset, length)
		if err != nil {
			return nil, malformed("byte pool range out of range")
		}
		return b, nil
	}

	tableName, err := readStructuralString(tableNameOffset)
	if err != nil {
		return nil, err
	}

	columns := make([]Column, 0, columnCount)
	for i := uint16(0); i < columnCount; i++ {
		descByte, err := r.U8()
		if err != nil {
			return nil, malformed("truncated column descriptor")
		}
		storage := StorageMode(descByte >> 4)
		typ := TypeTag(descByte & 0x0F)
		if !storage.valid() {
			return nil, malformed(fmt.Sprintf("unknown storage mode %#x", storage))
		}
		if !typ.valid() {
			return nil, malformed(fmt.Sprintf("unknown type tag %d", typ))
		}

		nameOffset, err := r.U32()
		if err != nil {
			return nil, malformed("truncated column descriptor")
		}
		name, err := readStructuralString(nameOffset)
		if err != nil {
			return nil, err
		}

		col := Column{Name: name, Type: typ, Storage: storage}
		if storage == StorageConstant {
			val, err := readInlineValue(r, typ, readPayloadString, readBytesValue)
			if err != nil {
				return nil, err
			}
			col.Constant = val
		}
		columns = append(columns, col)
	}

	expectedStride, err := computeStride(columns)
	if err != nil {
		return nil, err
	}
	if expectedStride != uint32(rowStride) {
		return nil, malformed(fmt.Sprintf("row stride mismatch: header says %d, columns need %d", rowStride, expectedStride))
	}
	if uint64(rowsOffset)+uint64(rowStride)*uint64(rowCount) > uint64(stringsOffset) {
		return nil, malformed("row area overruns string pool")
	}

	table := &Table{Name: tableName, Columns: columns, RowCount: rowCount}
	table.Rows = make([][]Value, rowCount)

	rowPos := rowsOffset
	rr := bio.NewReader(body)
	for ri := uint32(0); ri < rowCount; ri++ {
		row := make([]Value, len(columns))
		for ci, col := range columns {
			switch col.Storage {
			case StorageZero:
				row[ci] = zeroValue(col.Type)
			case StorageConstant:
				row[ci] = col.Constant
			case StoragePerRow:
				if err := rr.Seek(rowPos); err != nil {
					return nil, malformed("row area out of range")
				}
				val, err := readInlineValue(rr, col.Type, readPayloadString, readBytesValue)
				if err != nil {
					return nil, err
				}
				row[ci] = val
				w, _ := col.Type.width()
				rowPos += w
			}
		}
		table.Rows[ri] = row
	}

	return table, nil
}

// computeStride sums the on-disk width of every PER_ROW column; ZERO
// and CONSTANT columns contribute nothing to the row stride.
func computeStride(columns []Column) (uint32, error) {
	var stride uint32
	for _, col := range columns {
		if col.Storage != StoragePerRow {
			continue
		}
		w, err := col.Type.width()
		if err != nil {
			return 0, malformed(err.Error())
		}
		stride += w
	}
	return stride, nil
}

// readInlineValue reads one value of typ from r's current position,
// advancing past it. Used both for CONSTANT column descriptors and
// for PER_ROW row-area fields, which share the same wire shape.
func readInlineValue(r *bio.Reader, typ TypeTag, readStr func(uint32) (string, error), readBytes func(uint32, uint32) ([]byte, error)) (Value, error) {
	switch typ {
	case TypeU8:
		v, err := r.U8()
		return ValueU8(v), wrapTruncated(err)
	case TypeI8:
		v, err := r.U8()
		return ValueI8(int8(v)), wrapTruncated(err)
	case TypeU16:
		v, err := r.U16()
		return ValueU16(v), wrapTruncated(err)
	case TypeI16:
		v, err := r.U16()
		return ValueI16(int16(v)), wrapTruncated(err)
	case TypeU32:
		v, err := r.U32()
		return ValueU32(v), wrapTruncated(err)
	case TypeI32:
		v, err := r.U32()
		return ValueI32(int32(v)), wrapTruncated(err)
	case TypeU64:
		v, err := r.U64()
		return ValueU64(v), wrapTruncated(err)
	case TypeI64:
		v, err := r.U64()
		return ValueI64(int64(v)), wrapTruncated(err)
	case TypeF32:
		v, err := r.F32()
		return ValueF32(v), wrapTruncated(err)
	case TypeF64:
		v, err := r.F64()
		return ValueF64(v), wrapTruncated(err)
	case TypeString:
		off, err := r.U32()
		if err != nil {
			return Value{}, wrapTruncated(err)
		}
		s, err := readStr(off)
		if err != nil {
			return Value{}, err
		}
		return ValueString(s), nil
	case TypeBytes:
		off, err := r.U32()
		if err != nil {
			return Value{}, wrapTruncated(err)
		}
		length, err := r.U32()
		if err != nil {
			return Value{}, wrapTruncated(err)
		}
		b, err := readBytes(off, length)
		if err != nil {
			return Value{}, err
		}
		return ValueBytes(b), nil
	default:
		return Value{}, malformed(fmt.Sprintf("unknown type tag %d", typ))
	}
}

func wrapTruncated(err error) error {
	if err == nil {
		return nil
	}
	return malformed("truncated value")
}

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func malformed(reason string) error {
	return &MalformedTableError{Reason: reason}
}

// MalformedTableError reports an @UTF decoding failure.
type MalformedTableError struct {
	Reason string
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("utf: malformed table: %s", e.Reason)
}
