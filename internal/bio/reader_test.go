package bio

import "testing"

func TestReaderPrimitives(t *testing.T) {
	data := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a,
	}

	r := NewReader(data)

	u8, err := r.U8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("U8() = %v, %v; want 0x01, nil", u8, err)
	}

	u16, err := r.U16()
	if err != nil || u16 != 0x0203 {
		t.Fatalf("U16() = %#x, %v; want 0x0203, nil", u16, err)
	}

	u24, err := r.U24()
	if err != nil || u24 != 0x040506 {
		t.Fatalf("U24() = %#x, %v; want 0x040506, nil", u24, err)
	}

	u32, err := r.U32()
	if err != nil || u32 != 0x0708090a {
		t.Fatalf("U32() = %#x, %v; want 0x0708090a, nil", u32, err)
	}

	if r.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestReaderOutOfBounds(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})

	if _, err := r.U32(); err != ErrOutsideBoundary {
		t.Fatalf("U32() on short buffer = %v, want ErrOutsideBoundary", err)
	}
}

func TestReaderCString(t *testing.T) {
	data := append([]byte("hello\x00"), "world\x00"...)
	r := NewReader(data)

	s, err := r.CString(0)
	if err != nil || string(s) != "hello" {
		t.Fatalf("CString(0) = %q, %v; want %q, nil", s, err, "hello")
	}

	s, err = r.CString(6)
	if err != nil || string(s) != "world" {
		t.Fatalf("CString(6) = %q, %v; want %q, nil", s, err, "world")
	}

	if _, err := r.CString(1000); err != ErrOutsideBoundary {
		t.Fatalf("CString(1000) = %v, want ErrOutsideBoundary", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(16)
	w.U8(0x01)
	w.U16(0x0203)
	w.U24(0x040506)
	w.U32(0x0708090a)
	w.F32(1.5)
	w.F64(2.5)

	r := NewReader(w.Bytes())
	u8, _ := r.U8()
	u16, _ := r.U16()
	u24, _ := r.U24()
	u32, _ := r.U32()
	f32, _ := r.F32()
	f64, _ := r.F64()

	if u8 != 0x01 || u16 != 0x0203 || u24 != 0x040506 || u32 != 0x0708090a {
		t.Fatalf("integer round-trip mismatch: %#x %#x %#x %#x", u8, u16, u24, u32)
	}
	if f32 != 1.5 || f64 != 2.5 {
		t.Fatalf("float round-trip mismatch: %v %v", f32, f64)
	}
}

func TestWriterAlignTo8(t *testing.T) {
	w := NewWriter(16)
	w.Raw([]byte{1, 2, 3})
	pad := w.AlignTo8(0)
	if pad != 5 {
		t.Fatalf("AlignTo8() padding = %d, want 5", pad)
	}
	if w.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", w.Len())
	}
}
