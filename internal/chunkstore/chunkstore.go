// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chunkstore holds an ordered, randomly indexable sequence of byte
// blocks, each compressed at insertion time so large intermediates do not
// stay resident in decompressed form.
//
// Blocks are only ever appended at the next index. A block that fails to
// compress (or would not get smaller) is stored raw and tagged as such, so
// reads are always "decompress if tagged, else copy".
package chunkstore

import (
	"errors"
	"fmt"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/zero"
)

var (
	ErrNonSequential = errors.New("chunkstore: insertion is only allowed at the end")
	ErrOutOfRange    = errors.New("chunkstore: index out of range")
)

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Chunk describes one stored block.
type Chunk struct {
	Size           int
	CompressedSize int
	Codec          codec.Tag

	checksum uint32
	data     []byte
}

// Compressed reports whether the block is stored in compressed form.
func (c *Chunk) Compressed() bool {
	return c.Codec != codec.None
}

type Option func(*options)

type options struct {
	codec    codec.Tag
	capacity int
}

// WithCodec selects the block codec. The default is LZ4.
func WithCodec(tag codec.Tag) Option {
	return func(o *options) {
		o.codec = tag
	}
}

// WithCapacity preallocates room for n blocks.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// Store is move-only: each chunk owns its storage, so copying a Store would
// alias it.
type Store struct {
	_ noCopy

	codec  codec.Tag
	chunks []Chunk
}

func New(opts ...Option) *Store {
	o := options{codec: codec.LZ4}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		codec:  o.codec,
		chunks: make([]Chunk, 0, max(o.capacity, 0)),
	}
}

// Len is the number of live blocks.
func (s *Store) Len() int {
	return len(s.chunks)
}

// Cap is the number of blocks the store can hold before growing.
func (s *Store) Cap() int {
	return cap(s.chunks)
}

// Append stores a copy of b at index Len() and returns that index.
func (s *Store) Append(b []byte) int {
	if len(s.chunks) == cap(s.chunks) {
		s.grow()
	}
	s.chunks = append(s.chunks, s.encode(b))
	return len(s.chunks) - 1
}

// Insert stores b at index i, which must equal Len().
func (s *Store) Insert(i int, b []byte) error {
	if i != len(s.chunks) {
		return fmt.Errorf("insert at %d with %d chunks: %w", i, len(s.chunks), ErrNonSequential)
	}
	s.Append(b)
	return nil
}

// grow doubles capacity so appends are amortized constant time.
func (s *Store) grow() {
	newCap := max(2*cap(s.chunks), 1)
	grown := make([]Chunk, len(s.chunks), newCap)
	copy(grown, s.chunks)
	s.chunks = grown
}

func (s *Store) encode(b []byte) Chunk {
	c := Chunk{
		Size:     len(b),
		checksum: uint32(farm.Hash64(b)),
	}
	if s.codec != codec.None && len(b) > 0 {
		if packed, err := codec.Compress(b, s.codec); err == nil {
			c.Codec = s.codec
			c.data = packed
			c.CompressedSize = len(packed)
			return c
		}
	}
	c.Codec = codec.None
	c.data = append([]byte(nil), b...)
	c.CompressedSize = len(b)
	return c
}

// Chunk returns the metadata of block i.
func (s *Store) Chunk(i int) (Chunk, error) {
	if i < 0 || i >= len(s.chunks) {
		return Chunk{}, fmt.Errorf("chunk %d of %d: %w", i, len(s.chunks), ErrOutOfRange)
	}
	c := s.chunks[i]
	c.data = nil
	return c, nil
}

// At returns a freshly allocated copy of block i.
func (s *Store) At(i int) ([]byte, error) {
	if i < 0 || i >= len(s.chunks) {
		return nil, fmt.Errorf("chunk %d of %d: %w", i, len(s.chunks), ErrOutOfRange)
	}
	out := make([]byte, s.chunks[i].Size)
	if _, err := s.ReadInto(i, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadInto decompresses block i into dst, which must be at least the
// block's size, and returns the number of bytes written.
func (s *Store) ReadInto(i int, dst []byte) (int, error) {
	if i < 0 || i >= len(s.chunks) {
		return 0, fmt.Errorf("chunk %d of %d: %w", i, len(s.chunks), ErrOutOfRange)
	}
	c := &s.chunks[i]
	if len(dst) < c.Size {
		return 0, fmt.Errorf("chunk %d: destination too short (%d < %d)", i, len(dst), c.Size)
	}
	dst = dst[:c.Size]
	if _, err := codec.DecompressInto(dst, c.data, c.Codec); err != nil {
		return 0, fmt.Errorf("chunk %d: %w", i, err)
	}
	if checksum := uint32(farm.Hash64(dst)); checksum != c.checksum {
		return 0, fmt.Errorf("chunk %d checksum failed (%d != %d): store corrupted", i, c.checksum, checksum)
	}
	return c.Size, nil
}

// Size is the total decompressed size of every live block.
func (s *Store) Size() int64 {
	var n int64
	for i := range s.chunks {
		n += int64(s.chunks[i].Size)
	}
	return n
}

// StoredSize is the number of bytes held in memory for block data.
func (s *Store) StoredSize() int64 {
	var n int64
	for i := range s.chunks {
		n += int64(s.chunks[i].CompressedSize)
	}
	return n
}

// Truncate destroys every block at index n and above. Capacity is kept.
func (s *Store) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(s.chunks) {
		return
	}
	for i := n; i < len(s.chunks); i++ {
		s.chunks[i] = Chunk{}
	}
	s.chunks = s.chunks[:n]
}

// Shrink trims capacity down to the live block count.
func (s *Store) Shrink() {
	if cap(s.chunks) == len(s.chunks) {
		return
	}
	shrunk := make([]Chunk, len(s.chunks))
	copy(shrunk, s.chunks)
	s.chunks = shrunk
}

// Reset destroys every block and releases the backing array.
func (s *Store) Reset() {
	for i := range s.chunks {
		zero.Bytes(s.chunks[i].data)
	}
	s.chunks = nil
}
