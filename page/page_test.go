package page

import (
	"bytes"
	"testing"

	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/cipher"
	"github.com/usmkit/usmkit/utf"
)

func sfvHeader() *utf.Table {
	t := utf.NewTable("@SFV")
	t.AddConstantColumn("stmid", utf.ValueU32(0x40534656))
	return t
}

func TestDemuxerHeaderFirstRequired(t *testing.T) {
	d := NewDemuxer(nil, nil)
	payload, err := utf.Encode(sfvHeader(), nil)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	// A STREAM chunk before any HEADER for this channel must fail.
	streamChunk := chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 0, 0, 30, 0, false, []byte("frame"))
	if err := d.Feed(streamChunk); err == nil {
		t.Fatal("Feed() of STREAM chunk with no prior HEADER succeeded, want StreamOrderingError")
	} else if _, ok := err.(*StreamOrderingError); !ok {
		t.Fatalf("error type = %T, want *StreamOrderingError", err)
	}

	headerChunk := chunk.NewChunk(chunk.SigSFV, chunk.PayloadHeader, 0, 0, 30, 0, false, payload)
	if err := d.Feed(headerChunk); err != nil {
		t.Fatalf("Feed(header) failed: %v", err)
	}
}

func TestDemuxerReassemblesPayload(t *testing.T) {
	d := NewDemuxer(nil, nil)
	hdrPayload, _ := utf.Encode(sfvHeader(), nil)

	chunks := []*chunk.Chunk{
		chunk.NewChunk(chunk.SigSFV, chunk.PayloadHeader, 2, 0, 30, 0, false, hdrPayload),
		chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 2, 0, 30, 0, false, []byte("abcd")),
		chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 2, 33, 30, 1, false, []byte("efg")),
		chunk.NewChunk(chunk.SigSFV, chunk.PayloadSectionEnd, 2, 66, 30, 2, false, nil),
	}
	for _, c := range chunks {
		if err := d.Feed(c); err != nil {
			t.Fatalf("Feed() failed: %v", err)
		}
	}

	key := chunk.Key{Signature: chunk.SigSFV, Channel: 2}
	p, ok := d.Page(key)
	if !ok {
		t.Fatalf("Page(%v) not found", key)
	}
	if !bytes.Equal(p.Body, []byte("abcdefg")) {
		t.Fatalf("Body = %q, want %q", p.Body, "abcdefg")
	}
	if p.Phase != PhaseFinalized {
		t.Fatalf("Phase = %v, want PhaseFinalized", p.Phase)
	}
	if err := d.RequireFinalized(key); err != nil {
		t.Fatalf("RequireFinalized() failed: %v", err)
	}
}

func TestDemuxerRejectsChunkAfterSectionEnd(t *testing.T) {
	d := NewDemuxer(nil, nil)
	hdrPayload, _ := utf.Encode(sfvHeader(), nil)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Feed() failed: %v", err)
		}
	}
	must(d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadHeader, 0, 0, 30, 0, false, hdrPayload)))
	must(d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadSectionEnd, 0, 0, 30, 0, false, nil)))

	err := d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 0, 1, 30, 1, false, []byte("late")))
	if err == nil {
		t.Fatal("Feed() after SECTION_END succeeded, want StreamOrderingError")
	}
}

func TestDemuxerDecryptionRequired(t *testing.T) {
	d := NewDemuxer(nil, nil)
	hdrPayload, _ := utf.Encode(sfvHeader(), nil)
	if err := d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadHeader, 0, 0, 30, 0, false, hdrPayload)); err != nil {
		t.Fatalf("Feed(header) failed: %v", err)
	}

	encChunk := chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 0, 0, 30, 0, true, []byte("cipherbytes"))
	if err := d.Feed(encChunk); err != ErrDecryptionRequired {
		t.Fatalf("Feed(encrypted, no masks) error = %v, want ErrDecryptionRequired", err)
	}
}

func TestDemuxerDecryptsVideoPayload(t *testing.T) {
	masks := cipher.Derive(cipher.Key(0x0123456789ABCDEF))
	plain := make([]byte, 96)
	for i := range plain {
		plain[i] = byte(i)
	}
	cipherBytes := append([]byte(nil), plain...)
	masks.MaskVideo(cipherBytes)

	d := NewDemuxer(masks, nil)
	hdrPayload, _ := utf.Encode(sfvHeader(), nil)
	if err := d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadHeader, 0, 0, 30, 0, false, hdrPayload)); err != nil {
		t.Fatalf("Feed(header) failed: %v", err)
	}
	if err := d.Feed(chunk.NewChunk(chunk.SigSFV, chunk.PayloadStream, 0, 0, 30, 0, true, cipherBytes)); err != nil {
		t.Fatalf("Feed(encrypted stream) failed: %v", err)
	}

	p, _ := d.Page(chunk.Key{Signature: chunk.SigSFV, Channel: 0})
	if !bytes.Equal(p.Body, plain) {
		t.Fatalf("decrypted body mismatch")
	}
}

func TestMuxInterleavesByFrameTimeThenSignature(t *testing.T) {
	crid := utf.NewTable("CRID")
	video := ChannelSpec{
		Signature: chunk.SigSFV,
		Channel:   0,
		FrameRate: 24,
		Header:    sfvHeader(),
		Frames: []Frame{
			{Payload: []byte("v0"), FrameTime: 0},
			{Payload: []byte("v1"), FrameTime: 100},
		},
	}
	audio := ChannelSpec{
		Signature: chunk.SigSFA,
		Channel:   0,
		FrameRate: 0,
		Header:    utf.NewTable("@SFA"),
		Frames: []Frame{
			{Payload: []byte("a0"), FrameTime: 0},
			{Payload: []byte("a1"), FrameTime: 50},
		},
	}

	chunks, err := Mux(crid, []ChannelSpec{video, audio}, nil, nil)
	if err != nil {
		t.Fatalf("Mux() failed: %v", err)
	}

	// Expect: CRID header, @SFV header, @SFA header, then STREAM chunks
	// ordered v0(t=0) before a0(t=0) (tie broken by signature order),
	// then a1(t=50), then v1(t=100), then two SECTION_END chunks.
	var streamOrder []string
	for _, c := range chunks {
		if c.PayloadType == chunk.PayloadStream {
			streamOrder = append(streamOrder, string(c.Payload))
		}
	}
	want := []string{"v0", "a0", "a1", "v1"}
	if len(streamOrder) != len(want) {
		t.Fatalf("stream order = %v, want %v", streamOrder, want)
	}
	for i := range want {
		if streamOrder[i] != want[i] {
			t.Fatalf("stream order = %v, want %v", streamOrder, want)
		}
	}
}

func TestMuxFrameNumbersStrictlyIncreasing(t *testing.T) {
	crid := utf.NewTable("CRID")
	var frames []Frame
	for i := 0; i < 60; i++ {
		frames = append(frames, Frame{Payload: []byte{byte(i)}, FrameTime: uint32(i * 1001 * 1000 / 24000)})
	}
	video := ChannelSpec{Signature: chunk.SigSFV, Channel: 0, Header: sfvHeader(), Frames: frames}

	chunks, err := Mux(crid, []ChannelSpec{video}, nil, nil)
	if err != nil {
		t.Fatalf("Mux() failed: %v", err)
	}

	var got uint32
	for _, c := range chunks {
		if c.PayloadType != chunk.PayloadStream {
			continue
		}
		if c.FrameNumber != got {
			t.Fatalf("frame number = %d, want %d", c.FrameNumber, got)
		}
		got++
	}
	if got != 60 {
		t.Fatalf("saw %d stream chunks, want 60", got)
	}
}

func TestMuxEncryptsVideoStreamChunks(t *testing.T) {
	crid := utf.NewTable("CRID")
	plain := []byte("0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdef")
	video := ChannelSpec{
		Signature: chunk.SigSFV,
		Channel:   0,
		Header:    sfvHeader(),
		Frames:    []Frame{{Payload: plain, FrameTime: 0}},
	}
	masks := cipher.Derive(cipher.Key(99))

	chunks, err := Mux(crid, []ChannelSpec{video}, masks, nil)
	if err != nil {
		t.Fatalf("Mux() failed: %v", err)
	}

	for _, c := range chunks {
		if c.PayloadType == chunk.PayloadStream {
			if !c.Encrypted() {
				t.Fatalf("STREAM chunk not marked encrypted")
			}
			if bytes.Equal(c.Payload, plain) {
				t.Fatalf("STREAM payload not masked")
			}
			undo := append([]byte(nil), c.Payload...)
			masks.MaskVideo(undo)
			if !bytes.Equal(undo, plain) {
				t.Fatalf("masked payload does not invert back to plaintext")
			}
		}
	}
}
