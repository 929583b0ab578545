package cipher

import (
	"bytes"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	a := Derive(Key(0x0123456789ABCDEF))
	b := Derive(Key(0x0123456789ABCDEF))
	if a.VideoMask() != b.VideoMask() {
		t.Fatalf("Derive(k) produced different masks for the same key")
	}
	if a.AudioKeyPair() != b.AudioKeyPair() {
		t.Fatalf("Derive(k) produced different audio key pairs for the same key")
	}
}

func TestDeriveDistinctKeysDiffer(t *testing.T) {
	a := Derive(Key(1))
	b := Derive(Key(2))
	if a.VideoMask() == b.VideoMask() {
		t.Fatalf("Derive(1) and Derive(2) produced the same video mask")
	}
}

func TestAudioKeyPairSplit(t *testing.T) {
	m := Derive(Key(0x00000002_00000001))
	got := m.AudioKeyPair()
	if got.A != 1 || got.B != 2 {
		t.Fatalf("AudioKeyPair() = %+v, want {A:1 B:2}", got)
	}
}

func TestMaskVideoInvolution(t *testing.T) {
	m := Derive(Key(0xDEADBEEFCAFEBABE))

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	original := append([]byte(nil), payload...)

	m.MaskVideo(payload)
	if bytes.Equal(payload, original) {
		t.Fatalf("MaskVideo() left payload unchanged")
	}

	m.MaskVideo(payload)
	if !bytes.Equal(payload, original) {
		t.Fatalf("MaskVideo(MaskVideo(p)) != p, cipher is not an involution")
	}
}

func TestMaskVideoPrefixUntouched(t *testing.T) {
	m := Derive(Key(42))

	payload := make([]byte, unmaskedPrefix+16)
	for i := range payload {
		payload[i] = 0xAB
	}
	m.MaskVideo(payload)

	for i := 0; i < unmaskedPrefix; i++ {
		if payload[i] != 0xAB {
			t.Fatalf("byte %d in unmasked prefix was modified", i)
		}
	}
}

func TestMaskVideoShortPayloadNoPanic(t *testing.T) {
	m := Derive(Key(7))
	short := make([]byte, 10)
	m.MaskVideo(short) // entirely within the unmasked prefix; must be a no-op
	for _, b := range short {
		if b != 0 {
			t.Fatalf("short payload modified: %v", short)
		}
	}
}
