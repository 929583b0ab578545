// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package page implements the per-channel page protocol layered on
// top of chunk framing: reassembling a HEADER → STREAM* → SECTION_END
// chunk sequence into an elementary stream on read, and interleaving
// several channels' frames back into such a sequence on write.
//
// This plays the role the teacher's imports.go/exports_test.go pairing
// plays for the PE import/export directories: imports.go walks a
// directory's descriptor table and resolves each entry into a owned,
// ordered collection, enforcing the directory's internal invariants
// (null-terminator entries, bound thunk/original-thunk agreement)
// exactly once, in one place, so callers never see a partially
// resolved table. Demuxer.Feed plays the same role for the page protocol.
package page

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/encoding"

	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/cipher"
	"github.com/usmkit/usmkit/utf"
)

// ErrDecryptionRequired is returned by Feed when an encrypted chunk is
// encountered and the Demuxer was constructed without cipher masks.
var ErrDecryptionRequired = errors.New("page: encrypted chunk, decryption key required")

// Phase tracks where a page sits in its HEADER → STREAM* → SECTION_END
// lifecycle.
type Phase int

// Recognized phases.
const (
	PhaseOpen Phase = iota
	PhaseFinalized
)

// Page accumulates one channel's chunk sequence into its decoded
// metadata table and elementary payload.
type Page struct {
	Key    chunk.Key
	Header *utf.Table
	Body   []byte
	Phase  Phase
}

// StreamOrderingError reports a page-protocol violation scoped to one
// channel: a missing or duplicate HEADER, a chunk after SECTION_END.
type StreamOrderingError struct {
	Key    chunk.Key
	Reason string
}

func (e *StreamOrderingError) Error() string {
	return fmt.Sprintf("page: stream ordering violation on %s/%d: %s", e.Key.Signature, e.Key.Channel, e.Reason)
}

// Demuxer reassembles a linear, interleaved chunk stream into
// per-channel pages, decrypting video payloads as it goes.
type Demuxer struct {
	masks *cipher.Masks // nil when the container has no installed key
	enc   encoding.Encoding
	pages map[chunk.Key]*Page
	order []chunk.Key
}

// NewDemuxer constructs a Demuxer. masks may be nil; an encrypted
// chunk arriving with masks == nil fails with ErrDecryptionRequired.
// enc transcodes payload strings in decoded HEADER tables; nil leaves
// them as already-UTF-8.
func NewDemuxer(masks *cipher.Masks, enc encoding.Encoding) *Demuxer {
	return &Demuxer{masks: masks, enc: enc, pages: make(map[chunk.Key]*Page)}
}

// Feed processes one chunk in file order, routing it to its channel's
// page.
func (d *Demuxer) Feed(c *chunk.Chunk) error {
	key := c.KeyOf()
	p, ok := d.pages[key]
	if !ok {
		if c.PayloadType != chunk.PayloadHeader {
			return &StreamOrderingError{Key: key, Reason: "first chunk for channel is not HEADER"}
		}
		table, err := utf.Decode(c.Payload, d.enc)
		if err != nil {
			return err
		}
		d.pages[key] = &Page{Key: key, Header: table, Phase: PhaseOpen}
		d.order = append(d.order, key)
		return nil
	}

	if p.Phase == PhaseFinalized {
		return &StreamOrderingError{Key: key, Reason: "chunk received after SECTION_END"}
	}

	switch c.PayloadType {
	case chunk.PayloadHeader:
		return &StreamOrderingError{Key: key, Reason: "duplicate HEADER chunk"}
	case chunk.PayloadStream:
		payload := c.Payload
		if c.Encrypted() {
			if d.masks == nil {
				return ErrDecryptionRequired
			}
			if key.Signature == chunk.SigSFV {
				buf := append([]byte(nil), payload...)
				d.masks.MaskVideo(buf)
				payload = buf
			}
			// Audio (@SFA) decryption is opaque to the core (spec.md
			// §4.2): the HCA key pair is handed to the audio
			// collaborator and the payload passes through untouched.
		}
		p.Body = append(p.Body, payload...)
	case chunk.PayloadSectionEnd:
		p.Phase = PhaseFinalized
	case chunk.PayloadMetadata:
		// Auxiliary tables (e.g. @CUE); not part of the elementary stream.
	}
	return nil
}

// Page returns the page for key, if any chunk referencing it has been
// fed.
func (d *Demuxer) Page(key chunk.Key) (*Page, bool) {
	p, ok := d.pages[key]
	return p, ok
}

// Pages returns every page seen so far, in first-seen order.
func (d *Demuxer) Pages() []*Page {
	out := make([]*Page, len(d.order))
	for i, k := range d.order {
		out[i] = d.pages[k]
	}
	return out
}

// RequireFinalized reports a StreamOrderingError if key was never seen
// or was seen but never finalized by a SECTION_END chunk.
func (d *Demuxer) RequireFinalized(key chunk.Key) error {
	p, ok := d.pages[key]
	if !ok {
		return &StreamOrderingError{Key: key, Reason: "enumerated stream never appeared"}
	}
	if p.Phase != PhaseFinalized {
		return &StreamOrderingError{Key: key, Reason: "enumerated stream missing SECTION_END"}
	}
	return nil
}

// Frame is one elementary-stream unit ready to be chunked: one video
// frame or one audio block, carrying its presentation time.
type Frame struct {
	Payload   []byte
	FrameTime uint32
}

// ChannelSpec describes one output channel for Mux: its signature,
// channel number, HEADER table, frame rate byte, and ordered frames.
type ChannelSpec struct {
	Signature chunk.Signature
	Channel   uint8
	FrameRate uint8
	Header    *utf.Table
	Frames    []Frame
}

// signatureOrder ranks channel signatures for frame-time tie-breaking:
// @SFV sorts before @SFA (spec.md §4.4).
func signatureOrder(s chunk.Signature) int {
	switch s {
	case chunk.SigSFV:
		return 0
	case chunk.SigSFA:
		return 1
	default:
		return 2
	}
}

// Mux builds the full chunk sequence for a container: a CRID HEADER,
// one HEADER per channel, all STREAM chunks interleaved by ascending
// frame time (ties broken by channel number then signature order), and
// one SECTION_END per channel in header order. masks may be nil; if
// non-nil, every STREAM chunk is marked encrypted and video payloads
// are masked in place (a copy, never the caller's buffer). enc
// transcodes payload strings in the HEADER tables; nil leaves them as
// already-UTF-8.
func Mux(crid *utf.Table, channels []ChannelSpec, masks *cipher.Masks, enc encoding.Encoding) ([]*chunk.Chunk, error) {
	var out []*chunk.Chunk

	cridPayload, err := utf.Encode(crid, enc)
	if err != nil {
		return nil, err
	}
	out = append(out, chunk.NewChunk(chunk.SigCRID, chunk.PayloadHeader, 0, 0, 0, 0, false, cridPayload))

	for _, ch := range channels {
		hdrPayload, err := utf.Encode(ch.Header, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk.NewChunk(ch.Signature, chunk.PayloadHeader, ch.Channel, 0, ch.FrameRate, 0, false, hdrPayload))
	}

	type workItem struct {
		channel int
		frame   int
	}
	var items []workItem
	for ci, ch := range channels {
		for fi := range ch.Frames {
			items = append(items, workItem{ci, fi})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		fa := channels[a.channel].Frames[a.frame].FrameTime
		fb := channels[b.channel].Frames[b.frame].FrameTime
		if fa != fb {
			return fa < fb
		}
		ca, cb := channels[a.channel].Channel, channels[b.channel].Channel
		if ca != cb {
			return ca < cb
		}
		return signatureOrder(channels[a.channel].Signature) < signatureOrder(channels[b.channel].Signature)
	})

	encrypted := masks != nil
	frameNumbers := make([]uint32, len(channels))
	for _, it := range items {
		ch := channels[it.channel]
		frame := ch.Frames[it.frame]
		payload := frame.Payload
		if encrypted && ch.Signature == chunk.SigSFV {
			buf := append([]byte(nil), payload...)
			masks.MaskVideo(buf)
			payload = buf
		}
		c := chunk.NewChunk(ch.Signature, chunk.PayloadStream, ch.Channel, frame.FrameTime, ch.FrameRate, frameNumbers[it.channel], encrypted, payload)
		out = append(out, c)
		frameNumbers[it.channel]++
	}

	for _, ch := range channels {
		out = append(out, chunk.NewChunk(ch.Signature, chunk.PayloadSectionEnd, ch.Channel, 0, ch.FrameRate, frameNumbers[indexOf(channels, ch)], false, nil))
	}
	return out, nil
}

func indexOf(channels []ChannelSpec, target ChannelSpec) int {
	for i, ch := range channels {
		if ch.Signature == target.Signature && ch.Channel == target.Channel {
			return i
		}
	}
	return 0
}
