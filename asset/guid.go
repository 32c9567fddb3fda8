// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/rpak/internal/unsafestring"
)

// GUID is the 64-bit identity of an asset.
type GUID uint64

func (g GUID) String() string {
	return fmt.Sprintf("0x%016X", uint64(g))
}

// CanonicalName lower-cases name and normalizes path separators to '/'.
func CanonicalName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), `\`, "/")
}

// GUIDFromName derives the GUID of an asset from its name. Names that
// differ only in case or path separator map to the same GUID.
func GUIDFromName(name string) GUID {
	return GUID(farm.Fingerprint64(unsafestring.ToBytes(CanonicalName(name))))
}

// GUIDFromHalves builds a GUID from the two 32-bit halves of a content
// hash, as stored by bpk containers.
func GUIDFromHalves(lo, hi uint32) GUID {
	return GUID(uint64(hi)<<32 | uint64(lo))
}

// ParseGUID parses a hexadecimal GUID, with or without a 0x prefix.
func ParseGUID(s string) (GUID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("strconv.ParseUint: %w", err)
	}
	return GUID(v), nil
}
