// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package usm

import (
	"github.com/usmkit/usmkit/chunk"
	"github.com/usmkit/usmkit/utf"
)

// NewVideoStream builds a VideoStream ready for AddFrame, with an @SFV
// header table carrying the columns a USM player expects: dimensions,
// frame rate and total frame count. codec is recorded for the CLI's
// own bookkeeping; it is not interpreted by the core.
func NewVideoStream(channel uint8, codecCodec CodecTag, width, height, fpsNum, fpsDen uint32) *VideoStream {
	t := utf.NewTable("VIDEO_HDRINFO")
	t.AddColumn("width", utf.TypeU32)
	t.AddColumn("height", utf.TypeU32)
	t.AddColumn("mat_width", utf.TypeU32)
	t.AddColumn("mat_height", utf.TypeU32)
	t.AddColumn("disp_width", utf.TypeU32)
	t.AddColumn("disp_height", utf.TypeU32)
	t.AddColumn("scrn_width", utf.TypeU32)
	t.AddColumn("mpeg_dmx_stm_id", utf.TypeU32)
	t.AddColumn("total_frames", utf.TypeU32)
	t.AddColumn("framerate_n", utf.TypeU32)
	t.AddColumn("framerate_d", utf.TypeU32)
	_ = t.AddRow(
		utf.ValueU32(width), utf.ValueU32(height),
		utf.ValueU32(width), utf.ValueU32(height),
		utf.ValueU32(width), utf.ValueU32(height),
		utf.ValueU32(width),
		utf.ValueU32(0),
		utf.ValueU32(0),
		utf.ValueU32(fpsNum), utf.ValueU32(fpsDen),
	)
	return &VideoStream{
		Channel: channel,
		Codec:   codecCodec,
		Width:   width,
		Height:  height,
		FPSNum:  fpsNum,
		FPSDen:  fpsDen,
		Header:  t,
	}
}

// NewAudioStream builds an AudioStream ready for AddBlock, with an
// @SFA header table carrying sample rate and channel count.
func NewAudioStream(channel uint8, codec CodecTag, sampleRate uint32, channels uint8) *AudioStream {
	t := utf.NewTable("AUDIO_HDRINFO")
	t.AddColumn("sampling_rate", utf.TypeU32)
	t.AddColumn("num_channels", utf.TypeU8)
	t.AddColumn("total_samples", utf.TypeU32)
	_ = t.AddRow(utf.ValueU32(sampleRate), utf.ValueU8(channels), utf.ValueU32(0))
	return &AudioStream{
		Channel:    channel,
		Codec:      codec,
		SampleRate: sampleRate,
		Channels:   channels,
		Header:     t,
	}
}

// u32FromSignature packs a 4-byte ASCII channel signature into a
// big-endian uint32, the inverse of signatureFromU32.
func u32FromSignature(sig chunk.Signature) uint32 {
	b := []byte(sig)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// BuildCRID constructs the top-level CRID metadata table enumerating
// one (stmid, chno) row per channel, in the shape parseCridEnumeration
// reads back on Open.
func BuildCRID(video []*VideoStream, audio []*AudioStream) *utf.Table {
	t := utf.NewTable("CRIUSF_DIR_STREAM")
	t.AddColumn("stmid", utf.TypeU32)
	t.AddColumn("chno", utf.TypeU8)
	t.AddColumn("minchk", utf.TypeU8)
	t.AddColumn("minbuf", utf.TypeU32)
	t.AddColumn("avbps", utf.TypeU32)

	_ = t.AddRow(utf.ValueU32(u32FromSignature(chunk.SigCRID)), utf.ValueU8(0), utf.ValueU8(1), utf.ValueU32(0), utf.ValueU32(0))
	for _, vs := range video {
		_ = t.AddRow(utf.ValueU32(u32FromSignature(chunk.SigSFV)), utf.ValueU8(vs.Channel), utf.ValueU8(1), utf.ValueU32(0), utf.ValueU32(0))
	}
	for _, as := range audio {
		_ = t.AddRow(utf.ValueU32(u32FromSignature(chunk.SigSFA)), utf.ValueU8(as.Channel), utf.ValueU8(1), utf.ValueU32(0), utf.ValueU32(0))
	}
	return t
}
