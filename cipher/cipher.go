// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package cipher derives the two-key video/audio stream cipher from a
// 64-bit master key and applies/reverts the video-payload mask.
//
// The teacher's one brush with cryptographic material is security.go,
// which derives an Authenticode digest from a WIN_CERTIFICATE blob via
// go.mozilla.org/pkcs7; USM's mask derivation has no certificate or
// PKCS7 structure to parse (see DESIGN.md), so this package instead
// follows the teacher's habit of deriving fixed-size lookup tables
// once from a small seed (compare ParseRichHeader's XOR-key derivation
// in richheader.go) and storing them as an owned value rather than a
// package-level cache, per spec.md §5/§9.
package cipher

// maskSize is the width of the derived video mask and of each of its
// even/odd halves.
const maskSize = 32

// videoFrameWindow is the width, in bytes, of the repeating window the
// even/odd masks are applied over.
const videoFrameWindow = 32

// unmaskedPrefix is the number of leading payload bytes left untouched
// to preserve bitstream startcodes / codec headers.
const unmaskedPrefix = 64

// shiftSchedule maps a position within the 32-byte seed table to the
// key-byte index it draws from; it is applied identically whether
// seeding from the key bytes or from the "URUC" constant, so that both
// derived tables share the same repeating structure before being
// XORed together.
var shiftSchedule = [8]int{0, 3, 1, 4, 2, 5, 7, 6}

// urucSeed is the fixed 8-byte constant seed ("URUC" repeated once)
// the video mask is XORed against after key-seeding.
var urucSeed = [8]byte{'U', 'R', 'U', 'C', 'U', 'R', 'U', 'C'}

// Key is a 64-bit master key. All eight of its bytes seed the video
// mask; its low and high 32-bit halves form the audio key pair.
type Key uint64

// Low32 returns the key's low 32 bits.
func (k Key) Low32() uint32 { return uint32(k) }

// High32 returns the key's high 32 bits.
func (k Key) High32() uint32 { return uint32(k >> 32) }

// bytes returns the 8 bytes of k, most significant first.
func (k Key) bytes() [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(k >> uint(56-8*i))
	}
	return b
}

// AudioKeyPair is the two derived 32-bit values (the key's low and
// high halves) handed to the (opaque, HCA-owned) audio cipher; the
// core never interprets them further.
type AudioKeyPair struct {
	A uint32
	B uint32
}

// Masks holds the derived, per-container cipher state for one master
// key. It is owned by the container that derived it and is never
// shared across containers (spec.md §5).
type Masks struct {
	key       Key
	videoMask [maskSize]byte
	even      [maskSize]byte
	odd       [maskSize]byte
	audio     AudioKeyPair
}

// seedTable builds a 32-byte table from an 8-byte seed by repeating it
// through shiftSchedule.
func seedTable(seed [8]byte) [32]byte {
	var t [32]byte
	for i := 0; i < 32; i++ {
		t[i] = seed[(i+shiftSchedule[i%8])%8]
	}
	return t
}

// Derive computes the video mask and audio key pair for key. This is a
// pure function of key: calling it twice with the same key yields
// byte-identical Masks.
func Derive(key Key) *Masks {
	t1 := seedTable(key.bytes())
	constant := seedTable(urucSeed)

	var t2 [maskSize]byte
	for i := range t2 {
		t2[i] = t1[i] ^ constant[i]
	}

	var even, odd [maskSize]byte
	copy(even[:], t2[:])
	for i := range odd {
		odd[i] = t2[(i+maskSize/2)%maskSize]
	}

	return &Masks{
		key:       key,
		videoMask: t2,
		even:      even,
		odd:       odd,
		audio:     AudioKeyPair{A: key.Low32(), B: key.High32()},
	}
}

// VideoMask returns the raw 32-byte derived mask (T2 in spec.md §4.2).
func (m *Masks) VideoMask() [32]byte { return m.videoMask }

// AudioKeyPair returns the two 32-bit values handed to the HCA collaborator.
func (m *Masks) AudioKeyPair() AudioKeyPair { return m.audio }

// MaskVideo applies (or reverts, since the operation is its own
// inverse) the video-payload mask to payload in place. The first 64
// bytes are left unmodified; from there on, bytes at even positions
// within a 32-byte window are XORed with the even half, odd positions
// with the odd half.
func (m *Masks) MaskVideo(payload []byte) {
	for i := unmaskedPrefix; i < len(payload); i++ {
		p := (i - unmaskedPrefix) % videoFrameWindow
		if p%2 == 0 {
			payload[i] ^= m.even[p]
		} else {
			payload[i] ^= m.odd[p]
		}
	}
}
