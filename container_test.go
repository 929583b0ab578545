// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package usm

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/utf"
)

// memSink is an in-memory usm.Sink used by the round-trip tests below,
// playing the role fsSink plays for the CLI but without touching disk.
type memSink struct {
	video map[uint8][]byte
	audio map[uint8][]byte
	pages [][]byte
}

func newMemSink() *memSink {
	return &memSink{video: make(map[uint8][]byte), audio: make(map[uint8][]byte)}
}

func (s *memSink) WriteVideo(channel uint8, data []byte) (string, error) {
	s.video[channel] = append([]byte(nil), data...)
	return fmt.Sprintf("video-%d", channel), nil
}

func (s *memSink) WriteAudio(channel uint8, data []byte) (string, error) {
	s.audio[channel] = append([]byte(nil), data...)
	return fmt.Sprintf("audio-%d", channel), nil
}

func (s *memSink) WritePage(index int, key chunk.Key, payload []byte) error {
	s.pages = append(s.pages, append([]byte(nil), payload...))
	return nil
}

// buildFreshContainer assembles a from-scratch container with one VP9
// video channel and one HCA audio channel, mirroring what cmd/usmctl's
// create command builds from prober output.
func buildFreshContainer(t *testing.T, key *Key) (*UsmContainer, [][]byte, [][]byte) {
	t.Helper()

	vs := NewVideoStream(0, CodecVP9, 640, 480, 24000, 1001)
	var videoFrames [][]byte
	for i := 0; i < 5; i++ {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 80)
		vs.AddFrame(payload, uint32(i*1001*1000/24000), i == 0)
		videoFrames = append(videoFrames, payload)
	}

	as := NewAudioStream(0, CodecHCA, 48000, 2)
	var audioBlocks [][]byte
	for i := 0; i < 3; i++ {
		payload := bytes.Repeat([]byte{byte(0x10 + i)}, 32)
		as.AddBlock(payload, uint32(i*512))
		audioBlocks = append(audioBlocks, payload)
	}

	crid := BuildCRID([]*VideoStream{vs}, []*AudioStream{as})
	c := NewContainer(crid, Options{Key: key})
	c.VideoStreams = []*VideoStream{vs}
	c.AudioStreams = []*AudioStream{as}
	return c, videoFrames, audioBlocks
}

func drain(t *testing.T, cursor *StreamCursor) []byte {
	t.Helper()
	var buf bytes.Buffer
	for {
		data, ok := cursor.Next()
		if !ok {
			break
		}
		buf.Write(data)
	}
	return buf.Bytes()
}

// S1: a plain (unencrypted) USM built from VP9 video + HCA audio frames
// round-trips through Stream -> NewBytes -> Demux byte-identically.
func TestS1PlainRoundTrip(t *testing.T) {
	c, videoFrames, audioBlocks := buildFreshContainer(t, nil)

	cursor, err := c.Stream(StreamNone, nil)
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}
	data := drain(t, cursor)

	reopened, err := NewBytes(data, Options{})
	if err != nil {
		t.Fatalf("NewBytes() failed: %v", err)
	}
	defer reopened.Close()

	sink := newMemSink()
	videoPaths, audioPaths, err := reopened.Demux(sink, DemuxOptions{SaveVideo: true, SaveAudio: true})
	if err != nil {
		t.Fatalf("Demux() failed: %v", err)
	}
	if len(videoPaths) != 1 || len(audioPaths) != 1 {
		t.Fatalf("got %d video path(s), %d audio path(s), want 1 each", len(videoPaths), len(audioPaths))
	}

	wantVideo := bytes.Join(videoFrames, nil)
	if !bytes.Equal(sink.video[0], wantVideo) {
		t.Fatalf("demuxed video elementary bytes mismatch")
	}
	wantAudio := bytes.Join(audioBlocks, nil)
	if !bytes.Equal(sink.audio[0], wantAudio) {
		t.Fatalf("demuxed audio elementary bytes mismatch")
	}
}

// S2: an encrypted USM opened without a key fails parsing with
// ErrDecryptionRequired rather than silently handing back ciphertext.
func TestS2EncryptedWithoutKeyFails(t *testing.T) {
	key := Key(0xCAFEBABEDEADBEEF)
	c, _, _ := buildFreshContainer(t, &key)

	cursor, err := c.Stream(StreamEncrypt, nil)
	if err != nil {
		t.Fatalf("Stream(StreamEncrypt) failed: %v", err)
	}
	data := drain(t, cursor)

	if _, err := NewBytes(data, Options{}); err != ErrDecryptionRequired {
		t.Fatalf("NewBytes(no key) error = %v, want ErrDecryptionRequired", err)
	}
}

// S4: a CRID table whose row enumerates a channel that never shows up
// in the chunk stream fails with a stream-ordering error instead of
// silently truncating the output.
func TestS4MissingEnumeratedChannelFails(t *testing.T) {
	c, _, _ := buildFreshContainer(t, nil)
	// Enumerate a second video channel that is never actually muxed.
	if err := c.CRID.AddRow(
		utf.ValueU32(u32FromSignature(chunk.SigSFV)),
		utf.ValueU8(1),
		utf.ValueU8(1),
		utf.ValueU32(0),
		utf.ValueU32(0),
	); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}

	cursor, err := c.Stream(StreamNone, nil)
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}
	data := drain(t, cursor)

	if _, err := NewBytes(data, Options{}); err == nil {
		t.Fatal("NewBytes() with an unsatisfied enumerated channel succeeded, want error")
	}
}

// S5: muxing 60 frames on a single video channel produces strictly
// increasing, zero-based frame numbers end to end (mirrors
// page.TestMuxFrameNumbersStrictlyIncreasing at the container level).
func TestS5SixtyFrameMuxRoundTrip(t *testing.T) {
	vs := NewVideoStream(0, CodecVP9, 320, 240, 24000, 1001)
	for i := 0; i < 60; i++ {
		vs.AddFrame([]byte{byte(i)}, uint32(i*1001*1000/24000), i == 0)
	}
	crid := BuildCRID([]*VideoStream{vs}, nil)
	c := NewContainer(crid, Options{})
	c.VideoStreams = []*VideoStream{vs}

	cursor, err := c.Stream(StreamNone, nil)
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}
	data := drain(t, cursor)

	reopened, err := NewBytes(data, Options{})
	if err != nil {
		t.Fatalf("NewBytes() failed: %v", err)
	}
	defer reopened.Close()

	if len(reopened.VideoStreams) != 1 || len(reopened.VideoStreams[0].Elementary) != 60 {
		t.Fatalf("reassembled elementary length = %d, want 60", len(reopened.VideoStreams[0].Elementary))
	}
	for i, b := range reopened.VideoStreams[0].Elementary {
		if b != byte(i) {
			t.Fatalf("frame %d byte = %d, want %d", i, b, i)
		}
	}
}

// S6: encrypting a plain container and then reopening it with the
// matching key reproduces byte-identical elementary streams, since the
// video mask is its own inverse.
func TestS6EncryptThenExtractByteIdentical(t *testing.T) {
	key := Key(0x1122334455667788)
	c, videoFrames, audioBlocks := buildFreshContainer(t, &key)

	cursor, err := c.Stream(StreamEncrypt, nil)
	if err != nil {
		t.Fatalf("Stream(StreamEncrypt) failed: %v", err)
	}
	data := drain(t, cursor)

	reopened, err := NewBytes(data, Options{Key: &key})
	if err != nil {
		t.Fatalf("NewBytes(with key) failed: %v", err)
	}
	defer reopened.Close()

	sink := newMemSink()
	if _, _, err := reopened.Demux(sink, DemuxOptions{SaveVideo: true, SaveAudio: true}); err != nil {
		t.Fatalf("Demux() failed: %v", err)
	}

	wantVideo := bytes.Join(videoFrames, nil)
	if !bytes.Equal(sink.video[0], wantVideo) {
		t.Fatalf("decrypted video elementary bytes mismatch")
	}
	wantAudio := bytes.Join(audioBlocks, nil)
	if !bytes.Equal(sink.audio[0], wantAudio) {
		t.Fatalf("audio elementary bytes mismatch (audio passes through untouched)")
	}

	// A second container produced by re-streaming with StreamDecrypt
	// from the still-encrypted source must match as well.
	decryptCursor, err := reopened.Stream(StreamDecrypt, nil)
	if err != nil {
		t.Fatalf("Stream(StreamDecrypt) failed: %v", err)
	}
	plainData := drain(t, decryptCursor)
	plain, err := NewBytes(plainData, Options{})
	if err != nil {
		t.Fatalf("NewBytes(decrypted) failed: %v", err)
	}
	defer plain.Close()
	if !bytes.Equal(plain.VideoStreams[0].Elementary, wantVideo) {
		t.Fatalf("re-streamed decrypted video mismatch")
	}
}
