// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asset

import (
	"encoding/binary"
	"fmt"
)

// Tag is the four-byte type identifier of an asset, in on-disk byte order
// (for example "txtr").
type Tag [4]byte

// ParseTag converts a four character string into a Tag.
func ParseTag(s string) (Tag, error) {
	var t Tag
	if len(s) != len(t) {
		return t, fmt.Errorf("asset tag %q: want %d bytes, have %d", s, len(t), len(s))
	}
	copy(t[:], s)
	return t, nil
}

// MustTag is ParseTag for constants; it panics on a malformed tag.
func MustTag(s string) Tag {
	t, err := ParseTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TagFromUint32 converts a little-endian on-disk tag.
func TagFromUint32(v uint32) Tag {
	var t Tag
	binary.LittleEndian.PutUint32(t[:], v)
	return t
}

func (t Tag) Uint32() uint32 {
	return binary.LittleEndian.Uint32(t[:])
}

func (t Tag) String() string {
	for _, c := range t {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08X", t.Uint32())
		}
	}
	return string(t[:])
}
