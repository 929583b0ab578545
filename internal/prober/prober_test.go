package prober

import "testing"

func TestParseRational(t *testing.T) {
	num, den, err := parseRational("24000/1001")
	if err != nil {
		t.Fatalf("parseRational: %v", err)
	}
	if num != 24000 || den != 1001 {
		t.Fatalf("got %d/%d, want 24000/1001", num, den)
	}
}

func TestParseRationalMalformed(t *testing.T) {
	if _, _, err := parseRational("not-a-rate"); err == nil {
		t.Fatal("expected error for malformed frame rate")
	}
}

func TestParsePTSFrames(t *testing.T) {
	got, err := parsePTSFrames("1.500000")
	if err != nil {
		t.Fatalf("parsePTSFrames: %v", err)
	}
	if got != 1500 {
		t.Fatalf("got %d, want 1500", got)
	}

	if got, err := parsePTSFrames("N/A"); err != nil || got != 0 {
		t.Fatalf("parsePTSFrames(N/A) = %d, %v; want 0, nil", got, err)
	}
}

func TestSliceFramesH264(t *testing.T) {
	raw := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	packets := []ffprobePacket{
		{PTSTime: "0.000000", Pos: "0", Size: "4", Flags: "K_"},
		{PTSTime: "0.040000", Pos: "4", Size: "6", Flags: "__"},
	}
	frames, err := sliceFrames(raw, packets)
	if err != nil {
		t.Fatalf("sliceFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !frames[0].IsKeyframe {
		t.Fatal("first frame should be flagged as keyframe")
	}
	if frames[1].IsKeyframe {
		t.Fatal("second frame should not be flagged as keyframe")
	}
	if string(frames[0].Payload) != string(raw[0:4]) {
		t.Fatalf("frame 0 payload = %v, want %v", frames[0].Payload, raw[0:4])
	}
	if string(frames[1].Payload) != string(raw[4:10]) {
		t.Fatalf("frame 1 payload = %v, want %v", frames[1].Payload, raw[4:10])
	}
}

func TestSliceFramesIVF(t *testing.T) {
	raw := make([]byte, 32+12+2+12+3)
	copy(raw, "DKIF")
	copy(raw[32+12:32+12+2], []byte{0xAA, 0xBB})
	copy(raw[32+12+2+12:], []byte{0x01, 0x02, 0x03})

	packets := []ffprobePacket{
		{PTSTime: "0.000000", Size: "2", Flags: "K_"},
		{PTSTime: "0.040000", Size: "3", Flags: "__"},
	}
	frames, err := sliceFrames(raw, packets)
	if err != nil {
		t.Fatalf("sliceFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if string(frames[0].Payload) != string([]byte{0xAA, 0xBB}) {
		t.Fatalf("frame 0 payload = %v", frames[0].Payload)
	}
	if string(frames[1].Payload) != string([]byte{0x01, 0x02, 0x03}) {
		t.Fatalf("frame 1 payload = %v", frames[1].Payload)
	}
}

func TestSliceBlocksTruncated(t *testing.T) {
	raw := []byte{1, 2, 3}
	packets := []ffprobePacket{{PTSTime: "0", Size: "16"}}
	if _, err := sliceBlocks(raw, packets); err == nil {
		t.Fatal("expected error when packet size exceeds extracted buffer")
	}
}
