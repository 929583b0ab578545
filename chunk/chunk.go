// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package chunk implements the 32-byte chunk header shared by every
// USM channel type (CRID, @SFV, @SFA, @SBT, @ALP): framing only, no
// payload interpretation.
package chunk

import (
	"errors"

	"github.com/usmkit/usmkit/internal/bio"
)

// HeaderSize is the fixed size, in bytes, of a chunk's signature, size
// field and inner header combined — the offset at which the payload
// begins is always HeaderSize when HeaderOffset == innerHeaderSize.
const (
	signatureSize   = 4
	sizeFieldSize   = 4
	innerHeaderSize = 24
	HeaderSize      = signatureSize + sizeFieldSize + innerHeaderSize // 32
	alignment       = 8
)

// PayloadType classifies what a chunk's payload area carries.
type PayloadType uint16

// Recognized payload types.
const (
	PayloadStream     PayloadType = 0
	PayloadHeader     PayloadType = 1
	PayloadSectionEnd PayloadType = 2
	PayloadMetadata   PayloadType = 3
)

func (t PayloadType) String() string {
	switch t {
	case PayloadStream:
		return "STREAM"
	case PayloadHeader:
		return "HEADER"
	case PayloadSectionEnd:
		return "SECTION_END"
	case PayloadMetadata:
		return "METADATA"
	default:
		return "UNKNOWN"
	}
}

// Signature identifies a channel's chunk type.
type Signature string

// Recognized channel signatures.
const (
	SigCRID Signature = "CRID"
	SigSFV  Signature = "@SFV"
	SigSFA  Signature = "@SFA"
	SigSBT  Signature = "@SBT"
	SigALP  Signature = "@ALP"
)

// validSignatures is the closed set the framer accepts.
var validSignatures = map[Signature]bool{
	SigCRID: true,
	SigSFV:  true,
	SigSFA:  true,
	SigSBT:  true,
	SigALP:  true,
}

// IsValidSignature reports whether sig is one of the recognized
// channel signatures.
func IsValidSignature(sig Signature) bool {
	return validSignatures[sig]
}

// ErrUnknownSignature is returned when a chunk's signature is not a
// member of {CRID, @SFV, @SFA, @SBT, @ALP}.
var ErrUnknownSignature = errors.New("chunk: unknown channel signature")

// ErrTruncated is returned when fewer bytes remain than a chunk's
// declared size requires.
var ErrTruncated = errors.New("chunk: truncated chunk")

// Chunk is a transient framing unit: it exists only during
// serialization/deserialization and does not own its payload (the
// payload is a zero-copy view into the source buffer on read).
type Chunk struct {
	Signature     Signature
	Size          uint32 // full chunk size, including the signature and the Size field itself
	HeaderOffset  uint8  // bytes between end of Size and start of payload; always innerHeaderSize
	FooterSize    uint8
	PayloadType   PayloadType
	FrameTime     uint32 // 24-bit value
	FrameRate     uint8
	FrameNumber   uint32
	EncryptFlag   uint8
	ChannelNumber uint8
	Reserved      [10]byte // padding out to innerHeaderSize; preserved verbatim, not otherwise interpreted
	Payload       []byte
}

// Encrypted reports whether the chunk's encrypt flag is set.
func (c *Chunk) Encrypted() bool { return c.EncryptFlag != 0 }

// Key identifies the (signature, channel) page a chunk belongs to.
type Key struct {
	Signature Signature
	Channel   uint8
}

// KeyOf returns the page key for c.
func (c *Chunk) KeyOf() Key { return Key{Signature: c.Signature, Channel: c.ChannelNumber} }

// Read decodes one chunk from r at its current cursor position,
// advancing the cursor past the chunk's declared Size (including its
// footer). It does not interpret the payload.
func Read(r *bio.Reader) (*Chunk, error) {
	start := r.Pos()

	sigBytes, err := r.Slice(signatureSize)
	if err != nil {
		return nil, ErrTruncated
	}
	sig := Signature(sigBytes)
	if !IsValidSignature(sig) {
		return nil, ErrUnknownSignature
	}

	size, err := r.U32()
	if err != nil {
		return nil, ErrTruncated
	}

	// size is the full chunk size, including the 4-byte signature and
	// the 4-byte size field themselves; the chunk spans [start, start+size).
	total := size
	if total < uint32(signatureSize+sizeFieldSize) || start+total > r.Len() {
		return nil, ErrTruncated
	}

	headerOffset, err := r.U8()
	if err != nil {
		return nil, ErrTruncated
	}
	footerSize, err := r.U8()
	if err != nil {
		return nil, ErrTruncated
	}
	payloadTypeRaw, err := r.U16()
	if err != nil {
		return nil, ErrTruncated
	}
	frameTime, err := r.U24()
	if err != nil {
		return nil, ErrTruncated
	}
	frameRate, err := r.U8()
	if err != nil {
		return nil, ErrTruncated
	}
	frameNumber, err := r.U32()
	if err != nil {
		return nil, ErrTruncated
	}
	encryptFlag, err := r.U8()
	if err != nil {
		return nil, ErrTruncated
	}
	channelNumber, err := r.U8()
	if err != nil {
		return nil, ErrTruncated
	}
	reservedBytes, err := r.Slice(innerHeaderSize - 14)
	if err != nil {
		return nil, ErrTruncated
	}

	payloadEnd := start + total - uint32(footerSize)
	payloadLen := int64(size) - int64(headerOffset) - int64(footerSize) - int64(signatureSize+sizeFieldSize)
	if payloadLen < 0 || uint32(payloadLen) != payloadEnd-r.Pos() {
		return nil, ErrTruncated
	}

	payload, err := r.Slice(uint32(payloadLen))
	if err != nil {
		return nil, ErrTruncated
	}
	if _, err := r.Slice(uint32(footerSize)); err != nil {
		return nil, ErrTruncated
	}

	c := &Chunk{
		Signature:     sig,
		Size:          size,
		HeaderOffset:  headerOffset,
		FooterSize:    footerSize,
		PayloadType:   PayloadType(payloadTypeRaw),
		FrameTime:     frameTime,
		FrameRate:     frameRate,
		FrameNumber:   frameNumber,
		EncryptFlag:   encryptFlag,
		ChannelNumber: channelNumber,
		Payload:       payload,
	}
	copy(c.Reserved[:], reservedBytes)
	return c, nil
}

// Write serializes c into w, padding the payload to c's declared Size
// and emitting FooterSize zero bytes, 8-byte aligned overall.
func Write(w *bio.Writer, c *Chunk) {
	w.Raw([]byte(c.Signature))
	w.U32(c.Size)
	w.U8(c.HeaderOffset)
	w.U8(c.FooterSize)
	w.U16(uint16(c.PayloadType))
	w.U24(c.FrameTime)
	w.U8(c.FrameRate)
	w.U32(c.FrameNumber)
	w.U8(c.EncryptFlag)
	w.U8(c.ChannelNumber)
	w.Raw(c.Reserved[:])
	w.Raw(c.Payload)
	w.Pad(uint32(c.FooterSize))
}

// NewChunk builds a Chunk for payload, computing Size and FooterSize
// so that the overall chunk (signature + size field + inner header +
// payload + footer) is 8-byte aligned.
func NewChunk(sig Signature, payloadType PayloadType, channel uint8, frameTime uint32, frameRate uint8, frameNumber uint32, encrypted bool, payload []byte) *Chunk {
	unpadded := uint32(signatureSize+sizeFieldSize) + innerHeaderSize + uint32(len(payload))
	footer := uint8(0)
	if rem := unpadded % alignment; rem != 0 {
		footer = uint8(alignment - rem)
	}
	encryptFlag := uint8(0)
	if encrypted {
		encryptFlag = 1
	}
	return &Chunk{
		Signature:     sig,
		Size:          unpadded + uint32(footer),
		HeaderOffset:  innerHeaderSize,
		FooterSize:    footer,
		PayloadType:   payloadType,
		FrameTime:     frameTime & 0xFFFFFF,
		FrameRate:     frameRate,
		FrameNumber:   frameNumber,
		EncryptFlag:   encryptFlag,
		ChannelNumber: channel,
		Payload:       payload,
	}
}
