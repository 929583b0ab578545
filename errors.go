// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package usm

import "fmt"

// ErrNotUsm is returned when a source's first four bytes are not the
// CRID signature.
var ErrNotUsm = fmt.Errorf("usm: not a USM file, CRID signature not found")

// ErrDecryptionRequired is returned when Open encounters encrypted
// chunks but no key was supplied.
var ErrDecryptionRequired = fmt.Errorf("usm: encrypted content, decryption key required")

// ErrKeyMissing is returned when Stream(ENCRYPT) is requested but no
// key has been installed on the container.
var ErrKeyMissing = fmt.Errorf("usm: encryption requested but no key installed")

// MalformedTableError reports a failure decoding an @UTF metadata table.
type MalformedTableError struct {
	Reason string
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("usm: malformed @UTF table: %s", e.Reason)
}

// NewMalformedTableError builds a MalformedTableError.
func NewMalformedTableError(reason string) error {
	return &MalformedTableError{Reason: reason}
}

// MalformedChunkError reports a chunk-framing failure.
type MalformedChunkError struct {
	Reason string
}

func (e *MalformedChunkError) Error() string {
	return fmt.Sprintf("usm: malformed chunk: %s", e.Reason)
}

// NewMalformedChunkError builds a MalformedChunkError.
func NewMalformedChunkError(reason string) error {
	return &MalformedChunkError{Reason: reason}
}

// UnsupportedCodecError reports a stream codec tag outside the
// implemented set.
type UnsupportedCodecError struct {
	Tag string
}

func (e *UnsupportedCodecError) Error() string {
	return fmt.Sprintf("usm: unsupported codec %q", e.Tag)
}

// NewUnsupportedCodecError builds an UnsupportedCodecError.
func NewUnsupportedCodecError(tag string) error {
	return &UnsupportedCodecError{Tag: tag}
}

// StreamOrderingError reports a page-protocol violation: a duplicate
// header, a missing terminator, or a chunk arriving after its
// channel's SECTION_END.
type StreamOrderingError struct {
	Channel string
	Reason  string
}

func (e *StreamOrderingError) Error() string {
	return fmt.Sprintf("usm: stream ordering violation on channel %s: %s", e.Channel, e.Reason)
}

// NewStreamOrderingError builds a StreamOrderingError.
func NewStreamOrderingError(channel, reason string) error {
	return &StreamOrderingError{Channel: channel, Reason: reason}
}

// IoFailureError wraps an underlying I/O error from an injected
// sink/source or collaborator (e.g. the ffprobe prober).
type IoFailureError struct {
	Context string
	Err     error
}

func (e *IoFailureError) Error() string {
	return fmt.Sprintf("usm: io failure (%s): %v", e.Context, e.Err)
}

func (e *IoFailureError) Unwrap() error { return e.Err }

// NewIoFailureError wraps err with context.
func NewIoFailureError(context string, err error) error {
	return &IoFailureError{Context: context, Err: err}
}
