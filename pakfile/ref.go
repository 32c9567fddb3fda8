// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PagePtr is a pointer as stored on disk: an offset within a page.
type PagePtr struct {
	Index  uint32
	Offset uint32
}

func (p PagePtr) IsNull() bool {
	return p.Index == NullIndex
}

func (p PagePtr) String() string {
	if p.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d:0x%x", p.Index, p.Offset)
}

func (p PagePtr) key() uint64 {
	return uint64(p.Index)<<32 | uint64(p.Offset)
}

// Null is the null PagePtr.
var Null = PagePtr{Index: NullIndex}

// Ref is a resolved location in a loaded page. Refs are only produced by a
// Pak once the page they address is resident, so holding one means the
// bytes behind it are readable.
type Ref struct {
	loc  PagePtr
	data []byte
}

func (r Ref) Location() PagePtr { return r.loc }

func (r Ref) IsZero() bool { return r.data == nil && r.loc == PagePtr{} }

// Add returns the Ref n bytes further into the same page.
func (r Ref) Add(n uint32) Ref {
	out := Ref{loc: PagePtr{Index: r.loc.Index, Offset: r.loc.Offset + n}}
	if int(n) <= len(r.data) {
		out.data = r.data[n:]
	}
	return out
}

// Bytes returns the n bytes starting at r. The slice aliases page memory.
func (r Ref) Bytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.data) {
		return nil, fmt.Errorf("%d bytes at %s: %w", n, r.loc, ErrOutOfBounds)
	}
	return r.data[:n:n], nil
}

// Remaining is the number of bytes from r to the end of its page.
func (r Ref) Remaining() int { return len(r.data) }

func (r Ref) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r Ref) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PagePtr reads a raw, unresolved pointer stored at r.
func (r Ref) PagePtr() (PagePtr, error) {
	b, err := r.Bytes(ptrSize)
	if err != nil {
		return PagePtr{}, err
	}
	return readPtr(b), nil
}

// CString reads a NUL terminated string starting at r.
func (r Ref) CString() (string, error) {
	i := bytes.IndexByte(r.data, 0)
	if i < 0 {
		return "", fmt.Errorf("unterminated string at %s: %w", r.loc, ErrOutOfBounds)
	}
	return string(r.data[:i]), nil
}
