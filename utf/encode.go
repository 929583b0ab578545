package utf

import (
	"golang.org/x/text/encoding"

	"github.com/usmkit/usmkit/internal/bio"
)

// pool accumulates unique NUL-terminated strings (or raw byte blobs)
// and hands back the offset of each, deduplicating by exact content so
// that repeated values (e.g. the same extension string across many
// rows) are interned once, as the real format does.
type stringPool struct {
	buf     []byte
	offsets map[string]uint32
}

func newStringPool() *stringPool {
	return &stringPool{offsets: make(map[string]uint32)}
}

func (p *stringPool) intern(s string) uint32 {
	if off, ok := p.offsets[s]; ok {
		return off
	}
	off := uint32(len(p.buf))
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
	p.offsets[s] = off
	return off
}

type bytePool struct {
	buf     []byte
	offsets map[string]uint32
}

func newBytePool() *bytePool {
	return &bytePool{offsets: make(map[string]uint32)}
}

func (p *bytePool) intern(b []byte) (offset, length uint32) {
	key := string(b)
	if off, ok := p.offsets[key]; ok {
		return off, uint32(len(b))
	}
	off := uint32(len(p.buf))
	p.buf = append(p.buf, b...)
	p.offsets[key] = off
	return off, uint32(len(b))
}

// Encode serializes t into a complete @UTF byte sequence, including
// the leading signature and size field. Payload string values are
// transcoded through enc if non-nil.
func Encode(t *Table, enc encoding.Encoding) ([]byte, error) {
	strs := newStringPool()
	bytesPool := newBytePool()

	encodeStr := func(s string) (string, error) {
		if enc == nil {
			return s, nil
		}
		b, err := enc.NewEncoder().String(s)
		if err != nil {
			return "", malformed("string pool encode: " + err.Error())
		}
		return b, nil
	}

	tableNameOffset := strs.intern(t.Name)

	columnNameOffsets := make([]uint32, len(t.Columns))
	for i, col := range t.Columns {
		columnNameOffsets[i] = strs.intern(col.Name)
	}

	// Pre-size the column descriptor area and row stride.
	stride, err := computeStride(t.Columns)
	if err != nil {
		return nil, err
	}

	inlineValueBytes := func(w *bio.Writer, typ TypeTag, v Value) error {
		switch typ {
		case TypeU8:
			w.U8(v.U8())
		case TypeI8:
			w.U8(uint8(v.I8()))
		case TypeU16:
			w.U16(v.U16())
		case TypeI16:
			w.U16(uint16(v.I16()))
		case TypeU32:
			w.U32(v.U32())
		case TypeI32:
			w.U32(uint32(v.I32()))
		case TypeU64:
			w.U64(v.U64())
		case TypeI64:
			w.U64(uint64(v.I64()))
		case TypeF32:
			w.F32(v.F32())
		case TypeF64:
			w.F64(v.F64())
		case TypeString:
			encoded, err := encodeStr(v.Str())
			if err != nil {
				return err
			}
			w.U32(strs.intern(encoded))
		case TypeBytes:
			off, length := bytesPool.intern(v.Bytes())
			w.U32(off)
			w.U32(length)
		default:
			return malformed("unknown type tag in encode")
		}
		return nil
	}

	// Row-value area, built before we know the final header offsets
	// (string/byte pools grow as we intern row values).
	rowsWriter := bio.NewWriter(int(stride) * int(t.RowCount))
	for _, row := range t.Rows {
		for ci, col := range t.Columns {
			if col.Storage != StoragePerRow {
				continue
			}
			if err := inlineValueBytes(rowsWriter, col.Type, row[ci]); err != nil {
				return nil, err
			}
		}
	}

	// Column descriptors. Constant string/byte values are interned
	// here, after the row values, so they follow them in the pools.
	colsWriter := bio.NewWriter(len(t.Columns) * 5)
	for i, col := range t.Columns {
		colsWriter.U8(byte(col.Storage)<<4 | byte(col.Type))
		colsWriter.U32(columnNameOffsets[i])
		if col.Storage == StorageConstant {
			if err := inlineValueBytes(colsWriter, col.Type, col.Constant); err != nil {
				return nil, err
			}
		}
	}

	rowsOffset := uint32(headerSize) + colsWriter.Len()
	stringsOffset := rowsOffset + rowsWriter.Len()
	bytesOffset := stringsOffset + uint32(len(strs.buf))

	body := bio.NewWriter(int(bytesOffset) + len(bytesPool.buf))
	body.U32(rowsOffset)
	body.U32(stringsOffset)
	body.U32(bytesOffset)
	body.U32(tableNameOffset)
	body.U16(uint16(len(t.Columns)))
	body.U16(uint16(stride))
	body.U32(t.RowCount)
	body.Raw(colsWriter.Bytes())
	body.Raw(rowsWriter.Bytes())
	body.Raw(strs.buf)
	body.Raw(bytesPool.buf)

	out := bio.NewWriter(8 + int(body.Len()))
	out.Raw([]byte(Signature))
	out.U32(body.Len())
	out.Raw(body.Bytes())
	return out.Bytes(), nil
}
