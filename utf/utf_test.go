package utf

import (
	"testing"
)

func buildSampleTable() *Table {
	t := NewTable("<NULL>")
	t.AddColumn("fmtver", TypeU32)
	t.AddColumn("filename", TypeString)
	t.AddConstantColumn("stmid", ValueU32(0x40534656)) // "@SFV"
	t.AddRow(ValueU32(1), ValueString("movie.ivf"), Value{})
	t.AddRow(ValueU32(2), ValueString("movie2.ivf"), Value{})
	return t
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	table := buildSampleTable()

	encoded, err := Encode(table, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := Decode(encoded, nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if decoded.Name != table.Name {
		t.Errorf("Name = %q, want %q", decoded.Name, table.Name)
	}
	if decoded.RowCount != table.RowCount {
		t.Errorf("RowCount = %d, want %d", decoded.RowCount, table.RowCount)
	}
	for i := range table.Rows {
		for j, col := range table.Columns {
			got := decoded.Rows[i][j]
			want := table.Rows[i][j]
			if !got.Equal(want) {
				t.Errorf("row %d col %q = %+v, want %+v", i, col.Name, got, want)
			}
		}
	}

	// Idempotency: re-encoding the decoded table must produce the
	// identical byte sequence, since our canonical encoder always lays
	// out pools the same deterministic way (table name, then column
	// names, then row values, then constants, in that order). This is
	// a canonical-form round trip, not the stronger encode(decode(b))
	// == b for an arbitrary third-party @UTF buffer b: a table built by
	// another encoder may order or dedupe its string/byte pools
	// differently, and nothing here re-encodes byte-for-byte against
	// that original layout.
	reencoded, err := Encode(decoded, nil)
	if err != nil {
		t.Fatalf("second Encode() failed: %v", err)
	}
	if string(reencoded) != string(encoded) {
		t.Errorf("re-encoding a decoded table is not idempotent")
	}
}

func TestZeroRowConstantTable(t *testing.T) {
	// S3: row count 0 and three CONSTANT columns round-trips to an
	// identical table object.
	table := NewTable("<NULL>")
	table.AddConstantColumn("a", ValueU32(1))
	table.AddConstantColumn("b", ValueU16(2))
	table.AddConstantColumn("c", ValueString("hello"))

	encoded, err := Encode(table, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := Decode(encoded, nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if decoded.RowCount != 0 {
		t.Fatalf("RowCount = %d, want 0", decoded.RowCount)
	}
	if len(decoded.Columns) != 3 {
		t.Fatalf("len(Columns) = %d, want 3", len(decoded.Columns))
	}
	if !decoded.Columns[0].Constant.Equal(ValueU32(1)) {
		t.Errorf("column a constant = %+v", decoded.Columns[0].Constant)
	}
	if !decoded.Columns[2].Constant.Equal(ValueString("hello")) {
		t.Errorf("column c constant = %+v", decoded.Columns[2].Constant)
	}
}

func TestDecodeMalformedSignature(t *testing.T) {
	if _, err := Decode([]byte("XXXX\x00\x00\x00\x00"), nil); err == nil {
		t.Fatal("Decode() with bad signature succeeded, want error")
	}
}

func TestDecodeMalformedStringsOffsetBeyondSize(t *testing.T) {
	// S4: strings_offset > size must fail MalformedTable.
	table := buildSampleTable()
	encoded, err := Encode(table, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	// Corrupt the strings-offset header field (bytes 4..8 of body,
	// i.e. offset 8+4=12 in the full buffer) to point past the table.
	corrupted := append([]byte(nil), encoded...)
	corrupted[12] = 0xFF
	corrupted[13] = 0xFF
	corrupted[14] = 0xFF
	corrupted[15] = 0xFF

	if _, err := Decode(corrupted, nil); err == nil {
		t.Fatal("Decode() with out-of-range strings offset succeeded, want MalformedTableError")
	} else if _, ok := err.(*MalformedTableError); !ok {
		t.Fatalf("Decode() error type = %T, want *MalformedTableError", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	table := buildSampleTable()
	encoded, err := Encode(table, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	if _, err := Decode(encoded[:len(encoded)-10], nil); err == nil {
		t.Fatal("Decode() on truncated buffer succeeded, want error")
	}
}

func TestZeroStorageColumn(t *testing.T) {
	table := NewTable("<NULL>")
	table.AddZeroColumn("reserved", TypeU32)
	table.AddColumn("value", TypeU16)
	if err := table.AddRow(Value{}, ValueU16(7)); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}

	encoded, err := Encode(table, nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	decoded, err := Decode(encoded, nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if decoded.Rows[0][0].U32() != 0 {
		t.Errorf("zero column value = %d, want 0", decoded.Rows[0][0].U32())
	}
	if decoded.Rows[0][1].U16() != 7 {
		t.Errorf("per-row column value = %d, want 7", decoded.Rows[0][1].U16())
	}
}
