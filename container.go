// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package usm reads, writes and re-encrypts CRI Sofdec2 USM container
// files: chunk framing, per-channel page reassembly, the columnar
// @UTF metadata codec, and the two-key payload cipher.
//
// The package's shape follows the teacher's file.go: a constructor
// pair (Open/NewBytes) mirroring New/NewBytes, an Options struct
// mirroring pe.Options, and a façade type (UsmContainer, playing
// pe.File's role) that owns everything parsed out of the source and
// exposes read-path (Demux) and write-path (Stream) operations.
package usm

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/text/encoding"

	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/cipher"
	"github.com/usmkit/usmkit/internal/bio"
	"github.com/usmkit/usmkit/internal/log"
	"github.com/usmkit/usmkit/page"
	"github.com/usmkit/usmkit/utf"
)

// Key is a 64-bit master key controlling both the video mask and the
// derived audio key pair. spec.md §9 leaves independent per-stream
// keys as an open question; this implementation resolves it the way
// the source does (wannacri.py's generate_keys returns one value for
// both video_key and audio_key): see GenerateKeys and DESIGN.md.
type Key = cipher.Key

// GenerateKeys derives the (video, audio) key pair installed on a
// container from a single master key.
func GenerateKeys(master Key) (video, audio Key) {
	return master, master
}

// Options configures Open and NewBytes.
type Options struct {
	// Key, if non-nil, is installed before parsing so encrypted STREAM
	// chunks are decrypted as the page assembler reassembles them.
	Key *Key
	// Encoding transcodes payload strings in @UTF tables (structural
	// names are always ASCII). Nil means payload strings are already
	// UTF-8.
	Encoding encoding.Encoding
	// Logger receives diagnostic output; nil discards it.
	Logger log.Logger
}

// UsmContainer is one parsed USM file (or one under construction for
// muxing): its top-level CRID metadata, its video/audio streams, and
// its installed cipher state.
type UsmContainer struct {
	CRID         *utf.Table
	VideoStreams []*VideoStream
	AudioStreams []*AudioStream

	key      *Key
	masks    *cipher.Masks
	encoding encoding.Encoding
	log      *log.Helper

	chunks []*chunk.Chunk // file-order chunk list, retained for save_pages
	mm     mmap.MMap      // non-nil only when opened from a file path
}

// Open memory-maps the USM file at path and parses its page
// structure. The returned container's Close unmaps the file.
func Open(path string, opts Options) (*UsmContainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewIoFailureError("open", err)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, NewIoFailureError("mmap", err)
	}

	c, err := parse(m, opts)
	if err != nil {
		m.Unmap()
		return nil, err
	}
	c.mm = m
	return c, nil
}

// NewBytes parses data as a USM container without requiring a file on
// disk. data is retained; callers must not mutate it afterward.
func NewBytes(data []byte, opts Options) (*UsmContainer, error) {
	return parse(data, opts)
}

// Close releases the memory-mapped file backing c, if Open produced
// it. It is a no-op for containers built via NewBytes or constructed
// fresh for muxing.
func (c *UsmContainer) Close() error {
	if c.mm != nil {
		return c.mm.Unmap()
	}
	return nil
}

// SetVideoKey installs key for video-payload masking. Existing
// Elementary/Frames bytes already held in memory are not re-encrypted
// in place; they are masked the next time Stream(ENCRYPT) runs.
func (c *UsmContainer) SetVideoKey(key Key) {
	c.key = &key
	c.masks = cipher.Derive(key)
}

// SetAudioKey installs key for the audio key pair handed to the HCA
// collaborator. See Key's doc comment for why this shares state with
// SetVideoKey.
func (c *UsmContainer) SetAudioKey(key Key) {
	c.key = &key
	c.masks = cipher.Derive(key)
}

func parse(data []byte, opts Options) (*UsmContainer, error) {
	if len(data) < 4 || chunk.Signature(data[0:4]) != chunk.SigCRID {
		return nil, ErrNotUsm
	}

	var masks *cipher.Masks
	if opts.Key != nil {
		masks = cipher.Derive(*opts.Key)
	}

	dem := page.NewDemuxer(masks, opts.Encoding)
	r := bio.NewReader(data)
	var chunks []*chunk.Chunk
	for r.Remaining() > 0 {
		c, err := chunk.Read(r)
		if err != nil {
			return nil, translateChunkErr(err)
		}
		chunks = append(chunks, c)
		if err := dem.Feed(c); err != nil {
			return nil, translatePageErr(err)
		}
	}

	cridKey := chunk.Key{Signature: chunk.SigCRID, Channel: 0}
	cridPage, ok := dem.Page(cridKey)
	if !ok {
		return nil, ErrNotUsm
	}

	expected, err := parseCridEnumeration(cridPage.Header)
	if err != nil {
		return nil, err
	}
	for _, key := range expected {
		if key == cridKey {
			continue
		}
		if err := dem.RequireFinalized(key); err != nil {
			return nil, translatePageErr(err)
		}
	}

	container := &UsmContainer{
		CRID:     cridPage.Header,
		key:      opts.Key,
		masks:    masks,
		encoding: opts.Encoding,
		log:      log.NewHelper(opts.Logger),
		chunks:   chunks,
	}

	for _, p := range dem.Pages() {
		switch p.Key.Signature {
		case chunk.SigSFV:
			container.VideoStreams = append(container.VideoStreams, &VideoStream{
				Channel:    p.Key.Channel,
				Header:     p.Header,
				Elementary: p.Body,
			})
		case chunk.SigSFA:
			container.AudioStreams = append(container.AudioStreams, &AudioStream{
				Channel:    p.Key.Channel,
				Header:     p.Header,
				Elementary: p.Body,
			})
		}
	}
	if len(container.VideoStreams) == 0 {
		return nil, NewStreamOrderingError("CRID", "no video stream present")
	}
	return container, nil
}

// parseCridEnumeration reads the top-level CRID table's per-stream
// rows, each naming the (channel signature, channel number) one page
// in the file must satisfy.
func parseCridEnumeration(t *utf.Table) ([]chunk.Key, error) {
	keys := make([]chunk.Key, 0, t.RowCount)
	for i := 0; i < int(t.RowCount); i++ {
		stmid, err := t.Get(i, "stmid")
		if err != nil {
			return nil, NewMalformedTableError(err.Error())
		}
		chno, err := t.Get(i, "chno")
		if err != nil {
			return nil, NewMalformedTableError(err.Error())
		}
		keys = append(keys, chunk.Key{Signature: signatureFromU32(stmid.U32()), Channel: chno.U8()})
	}
	return keys, nil
}

func signatureFromU32(v uint32) chunk.Signature {
	return chunk.Signature([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func translateChunkErr(err error) error {
	switch err {
	case chunk.ErrUnknownSignature:
		return NewMalformedChunkError("unknown channel signature")
	case chunk.ErrTruncated:
		return NewMalformedChunkError("truncated chunk")
	default:
		return err
	}
}

func translatePageErr(err error) error {
	if err == page.ErrDecryptionRequired {
		return ErrDecryptionRequired
	}
	switch e := err.(type) {
	case *utf.MalformedTableError:
		return NewMalformedTableError(e.Reason)
	case *page.StreamOrderingError:
		return NewStreamOrderingError(string(e.Key.Signature), e.Reason)
	default:
		return err
	}
}

// DemuxOptions controls which elementary outputs Demux materializes.
type DemuxOptions struct {
	SaveVideo bool
	SaveAudio bool
	SavePages bool
}

// Sink is the injected collaborator Demux writes elementary streams
// (and, when requested, raw per-chunk pages) to. The core never opens
// a file itself; callers supply a Sink backed by a real filesystem, an
// in-memory buffer, or anything else satisfying this interface.
type Sink interface {
	WriteVideo(channel uint8, data []byte) (path string, err error)
	WriteAudio(channel uint8, data []byte) (path string, err error)
	WritePage(index int, key chunk.Key, payload []byte) error
}

// Demux materializes c's elementary streams (and, optionally, raw
// per-chunk pages) through sink. It is idempotent: calling it twice
// against the same sink reproduces the same outputs.
func (c *UsmContainer) Demux(sink Sink, opts DemuxOptions) (videoPaths, audioPaths []string, err error) {
	if opts.SaveVideo {
		for _, vs := range c.VideoStreams {
			p, werr := sink.WriteVideo(vs.Channel, vs.Elementary)
			if werr != nil {
				return nil, nil, NewIoFailureError("write video", werr)
			}
			videoPaths = append(videoPaths, p)
		}
	}
	if opts.SaveAudio {
		for _, as := range c.AudioStreams {
			p, werr := sink.WriteAudio(as.Channel, as.Elementary)
			if werr != nil {
				return nil, nil, NewIoFailureError("write audio", werr)
			}
			audioPaths = append(audioPaths, p)
		}
	}
	if opts.SavePages {
		for i, ch := range c.chunks {
			if werr := sink.WritePage(i, ch.KeyOf(), ch.Payload); werr != nil {
				return nil, nil, NewIoFailureError("write page", werr)
			}
		}
	}
	c.log.Debugf("demux: %d video stream(s), %d audio stream(s)", len(videoPaths), len(audioPaths))
	return videoPaths, audioPaths, nil
}

// StreamMode selects Stream's cipher behavior.
type StreamMode int

// Recognized stream modes.
const (
	StreamNone StreamMode = iota
	StreamEncrypt
	StreamDecrypt
)

// StreamCursor is a restartable, finite lazy sequence of serialized
// chunk byte buffers (spec.md §9's "explicit cursor object" design
// note). Calling UsmContainer.Stream again produces a fresh cursor;
// dropping a cursor mid-iteration is a valid cancellation.
type StreamCursor struct {
	chunks []*chunk.Chunk
	idx    int
}

// Next returns the next chunk's serialized bytes, or ok=false once the
// sequence is exhausted.
func (s *StreamCursor) Next() (data []byte, ok bool) {
	if s.idx >= len(s.chunks) {
		return nil, false
	}
	c := s.chunks[s.idx]
	s.idx++
	w := bio.NewWriter(int(c.Size))
	chunk.Write(w, c)
	return w.Bytes(), true
}

// NewContainer builds an empty container for muxing from scratch: the
// caller populates VideoStreams/AudioStreams (via AddFrame/AddBlock)
// before calling Stream. Unlike Open/NewBytes, there is no pre-existing
// chunk sequence to replay, so Stream always builds one via the page
// assembler's frame interleaving.
func NewContainer(crid *utf.Table, opts Options) *UsmContainer {
	var masks *cipher.Masks
	if opts.Key != nil {
		masks = cipher.Derive(*opts.Key)
	}
	return &UsmContainer{
		CRID:     crid,
		key:      opts.Key,
		masks:    masks,
		encoding: opts.Encoding,
		log:      log.NewHelper(opts.Logger),
	}
}

// Stream produces the serialized USM byte stream for c. NONE
// preserves c's current cipher state; ENCRYPT requires a key to be
// installed; DECRYPT always serializes in plaintext. A container
// obtained via Open/NewBytes replays its original chunk sequence
// (re-masking only STREAM payloads whose encrypt flag must change, so
// NONE reproduces the source byte-identically); a container built via
// NewContainer has no prior chunk sequence and is muxed fresh from its
// streams' frames.
func (c *UsmContainer) Stream(mode StreamMode, enc encoding.Encoding) (*StreamCursor, error) {
	if enc == nil {
		enc = c.encoding
	}
	if c.chunks != nil {
		return c.streamExisting(mode)
	}
	return c.streamFresh(mode, enc)
}

func (c *UsmContainer) streamExisting(mode StreamMode) (*StreamCursor, error) {
	var masks *cipher.Masks
	switch mode {
	case StreamEncrypt:
		if c.key == nil {
			return nil, ErrKeyMissing
		}
		masks = cipher.Derive(*c.key)
	case StreamDecrypt:
		masks = c.masks
	}

	out := make([]*chunk.Chunk, len(c.chunks))
	for i, orig := range c.chunks {
		cc := *orig
		isStream := cc.PayloadType == chunk.PayloadStream
		isVideoStream := isStream && cc.Signature == chunk.SigSFV
		switch mode {
		case StreamEncrypt:
			// Every STREAM chunk advertises the container's encrypted
			// state, but only @SFV payloads are actually masked; audio
			// (and any other) payloads pass through untouched.
			if isStream && !cc.Encrypted() {
				if isVideoStream {
					buf := append([]byte(nil), cc.Payload...)
					masks.MaskVideo(buf)
					cc.Payload = buf
				}
				cc.EncryptFlag = 1
			}
		case StreamDecrypt:
			if isStream && cc.Encrypted() {
				if masks == nil {
					return nil, ErrDecryptionRequired
				}
				if isVideoStream {
					buf := append([]byte(nil), cc.Payload...)
					masks.MaskVideo(buf)
					cc.Payload = buf
				}
				cc.EncryptFlag = 0
			}
		}
		out[i] = &cc
	}
	return &StreamCursor{chunks: out}, nil
}

func (c *UsmContainer) streamFresh(mode StreamMode, enc encoding.Encoding) (*StreamCursor, error) {
	var masks *cipher.Masks
	switch mode {
	case StreamEncrypt:
		if c.key == nil {
			return nil, ErrKeyMissing
		}
		masks = cipher.Derive(*c.key)
	case StreamDecrypt:
		masks = nil
	default:
		masks = c.masks
	}

	channels := make([]page.ChannelSpec, 0, len(c.VideoStreams)+len(c.AudioStreams))
	for _, vs := range c.VideoStreams {
		channels = append(channels, vs.channelSpec())
	}
	for _, as := range c.AudioStreams {
		channels = append(channels, as.channelSpec())
	}

	chunks, err := page.Mux(c.CRID, channels, masks, enc)
	if err != nil {
		return nil, err
	}
	return &StreamCursor{chunks: chunks}, nil
}
