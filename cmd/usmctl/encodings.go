// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// resolveEncoding maps a named character encoding (as accepted by the
// --encoding flag, e.g. "shift-jis", the original CLI's default) to a
// golang.org/x/text/encoding.Encoding for @UTF payload-string
// transcoding. "utf-8" and "" mean "already UTF-8, no transcoding".
func resolveEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("usmctl: unknown encoding %q", name)
	}
	return enc, nil
}
