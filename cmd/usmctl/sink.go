// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/usmkit/usmkit/chunk"
)

// fsSink is the filesystem-backed usm.Sink collaborator Demux writes
// through: the core never opens a file itself (spec.md §5), so the CLI
// owns every path decision here.
type fsSink struct {
	dir  string
	base string
}

func newFSSink(dir, base string) (*fsSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fsSink{dir: dir, base: base}, nil
}

func (s *fsSink) WriteVideo(channel uint8, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_video_%d.ivf", s.base, channel))
	return path, os.WriteFile(path, data, 0o644)
}

func (s *fsSink) WriteAudio(channel uint8, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_audio_%d.hca", s.base, channel))
	return path, os.WriteFile(path, data, 0o644)
}

func (s *fsSink) WritePage(index int, key chunk.Key, payload []byte) error {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_page_%04d_%s_%d.bin", s.base, index, sanitizeSignature(key.Signature), key.Channel))
	return os.WriteFile(path, payload, 0o644)
}

// sanitizeSignature strips the '@' channel-signature prefix so page
// dump filenames stay shell- and path-friendly.
func sanitizeSignature(sig chunk.Signature) string {
	s := string(sig)
	if len(s) > 0 && s[0] == '@' {
		return s[1:]
	}
	return s
}
