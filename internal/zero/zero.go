// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero provides functions to zero slices before they are reused.
package zero

// Bytes zeroes every byte of b.
func Bytes(b []byte) {
	clear(b)
}

// ByteSlices drops the references held by b so the backing arrays can be
// collected.
func ByteSlices(b [][]byte) {
	clear(b)
}
