// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package usm

// Fuzz is a go-fuzz entry point exercising the full parse path
// (chunk framing, page reassembly, @UTF decoding) against untrusted
// byte sequences.
func Fuzz(data []byte) int {
	c, err := NewBytes(data, Options{})
	if err != nil {
		return 0
	}
	if _, err := c.Stream(StreamNone, nil); err != nil {
		return 0
	}
	return 1
}
