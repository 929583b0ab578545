// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package usm

import (
	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/page"
	"github.com/usmkit/usmkit/utf"
)

// CodecTag identifies a stream's elementary codec, as reported by a
// C7 prober collaborator.
type CodecTag string

// Recognized codec tags.
const (
	CodecVP9  CodecTag = "VP9"
	CodecH264 CodecTag = "H264"
	CodecHCA  CodecTag = "HCA"
	CodecADX  CodecTag = "ADX"
)

// VideoFrame is one elementary video frame ready to be chunked, as
// supplied by a video prober.
type VideoFrame struct {
	Payload    []byte
	PTS        uint32
	IsKeyframe bool
}

// VideoStream owns one video channel: its codec parameters, its
// per-stream @SFV metadata table, and either its reassembled
// elementary bytes (after Demux) or its frame sequence (before Stream).
type VideoStream struct {
	Channel uint8
	Codec   CodecTag
	Width   uint32
	Height  uint32
	FPSNum  uint32
	FPSDen  uint32
	Header  *utf.Table

	// Elementary holds the flat, concatenated payload bytes produced
	// by demuxing an existing container; it has no frame boundaries.
	Elementary []byte

	// Frames holds the per-frame payloads used to build a container
	// for muxing; empty on a stream obtained via Demux.
	Frames []VideoFrame
}

// AddFrame appends one frame to the stream's write-path frame
// sequence and updates the header table's total_frames value, if the
// table has one, to the number of frames added so far.
func (vs *VideoStream) AddFrame(payload []byte, pts uint32, keyframe bool) {
	vs.Frames = append(vs.Frames, VideoFrame{Payload: payload, PTS: pts, IsKeyframe: keyframe})
	if vs.Header == nil || len(vs.Header.Rows) == 0 {
		return
	}
	for i, col := range vs.Header.Columns {
		if col.Name == "total_frames" && col.Storage == utf.StoragePerRow {
			vs.Header.Rows[0][i] = utf.ValueU32(uint32(len(vs.Frames)))
		}
	}
}

func (vs *VideoStream) channelSpec() page.ChannelSpec {
	frames := make([]page.Frame, len(vs.Frames))
	for i, f := range vs.Frames {
		frames[i] = page.Frame{Payload: f.Payload, FrameTime: f.PTS}
	}
	return page.ChannelSpec{
		Signature: chunk.SigSFV,
		Channel:   vs.Channel,
		FrameRate: frameRateByte(vs.FPSNum, vs.FPSDen),
		Header:    vs.Header,
		Frames:    frames,
	}
}

// AudioBlock is one opaque audio sample block ready to be chunked, as
// supplied by the HCA prober collaborator.
type AudioBlock struct {
	Payload []byte
	PTS     uint32
}

// AudioStream owns one audio channel: its codec parameters, its
// per-stream @SFA metadata table, and either its reassembled
// elementary bytes (after Demux) or its block sequence (before Stream).
type AudioStream struct {
	Channel    uint8
	Codec      CodecTag
	SampleRate uint32
	Channels   uint8
	Header     *utf.Table

	Elementary []byte
	Blocks     []AudioBlock
}

// AddBlock appends one sample block to the stream's write-path block
// sequence.
func (as *AudioStream) AddBlock(payload []byte, pts uint32) {
	as.Blocks = append(as.Blocks, AudioBlock{Payload: payload, PTS: pts})
}

func (as *AudioStream) channelSpec() page.ChannelSpec {
	frames := make([]page.Frame, len(as.Blocks))
	for i, b := range as.Blocks {
		frames[i] = page.Frame{Payload: b.Payload, FrameTime: b.PTS}
	}
	return page.ChannelSpec{
		Signature: chunk.SigSFA,
		Channel:   as.Channel,
		Header:    as.Header,
		Frames:    frames,
	}
}

// frameRateByte packs a frame rate into the single byte the chunk
// header carries. The chunk header's frame-rate byte is a coarse hint
// only (exact timing lives in frame_time and in the @SFV table's own
// columns); unrecognized ratios fall back to 0.
func frameRateByte(num, den uint32) uint8 {
	if den == 0 {
		return 0
	}
	switch {
	case num == 24000 && den == 1001:
		return 23 // ~23.976fps
	case num == 30 && den == 1:
		return 30
	case num == 25 && den == 1:
		return 25
	case num == 60 && den == 1:
		return 60
	default:
		return 0
	}
}
