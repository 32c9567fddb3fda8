// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bitset tracks membership of small dense integer ranges, such as
// which pages of a container are resident.
package bitset

import "math/bits"

// Bitset is conceptually a []bool of fixed length, packed into words.
type Bitset struct {
	words  []uint64
	length int
	count  int
}

// New returns a bitset able to hold bits [0, length).
func New(length int) *Bitset {
	return &Bitset{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

func offsets(i int) (word int, mask uint64) {
	return i / 64, 1 << (uint(i) % 64)
}

// Set marks bit i, returning false if it was already set or is out of range.
func (b *Bitset) Set(i int) bool {
	if i < 0 || i >= b.length {
		return false
	}
	w, m := offsets(i)
	if b.words[w]&m != 0 {
		return false
	}
	b.words[w] |= m
	b.count++
	return true
}

// Clear unmarks bit i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i >= b.length {
		return
	}
	w, m := offsets(i)
	if b.words[w]&m != 0 {
		b.words[w] &^= m
		b.count--
	}
}

// IsSet reports whether bit i is marked. Out of range bits are never set.
func (b *Bitset) IsSet(i int) bool {
	if i < 0 || i >= b.length {
		return false
	}
	w, m := offsets(i)
	return b.words[w]&m != 0
}

// Len is the number of addressable bits.
func (b *Bitset) Len() int {
	return b.length
}

// Count is the number of set bits.
func (b *Bitset) Count() int {
	return b.count
}

// Full reports whether every bit is set.
func (b *Bitset) Full() bool {
	return b.count == b.length
}

// NextClear returns the first unset bit at or after i, or -1.
func (b *Bitset) NextClear(i int) int {
	for ; i < b.length; i++ {
		w, m := offsets(i)
		if b.words[w] == ^uint64(0) {
			// skip to the next word boundary
			i = (w+1)*64 - 1
			continue
		}
		if b.words[w]&m == 0 {
			return i
		}
	}
	return -1
}

func (b *Bitset) popcount() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
