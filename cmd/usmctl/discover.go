// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/usmkit/usmkit/chunk"
)

// findUSM walks input the way wannacri.py's find_usm does: a single
// file is returned as-is (after a signature sniff), a directory is
// globbed for *.usm and each candidate sniffed for the CRID signature.
func findUSM(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if ok, err := sniffUSM(input); err != nil {
			return nil, err
		} else if !ok {
			return nil, notUsmError(input)
		}
		return []string{input}, nil
	}

	matches, err := filepath.Glob(filepath.Join(input, "*.usm"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		ok, err := sniffUSM(m)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func sniffUSM(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var sig [4]byte
	n, err := f.Read(sig[:])
	if err != nil || n < 4 {
		return false, nil
	}
	return chunk.Signature(sig[:]) == chunk.SigCRID, nil
}

type usmError struct{ msg string }

func (e *usmError) Error() string { return e.msg }

func notUsmError(path string) error {
	return &usmError{msg: "not a usm file: " + path}
}

// parseKey accepts decimal or 0x-prefixed hex 64-bit keys, exactly as
// spec.md §6 and wannacri.py's key_normalize require.
func parseKey(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	return strconv.ParseUint(s, base, 64)
}

// outputBaseName returns the filename without its extension, used to
// derive per-input output filenames.
func outputBaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
