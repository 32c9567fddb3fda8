// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bpk reads the XBAR chunked container. All integers are stored
// big-endian. Files are identified by a 64-bit content hash split into two
// halves and stored as a run of independently compressed chunks.
package bpk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/mmap"
)

const (
	// magic is "XBAR" read as a big-endian integer.
	magic   = 0x58424152
	Version = 6

	headerSize      = 8
	tableHeaderSize = 16
	fileRecordSize  = 28
	chunkEntrySize  = 8
)

// FlagSkipHeader marks files whose first two decompressed bytes are a
// header that consumers skip.
const FlagSkipHeader = 1 << 0

// FileType is the asset type given to every file in a bpk.
var FileType = asset.MustTag("bpkf")

var (
	ErrBadMagic           = errors.New("bad magic number: not a bpk file")
	ErrUnsupportedVersion = errors.New("unsupported bpk version")
	ErrTruncated          = errors.New("bpk truncated")
	ErrCorrupt            = errors.New("bpk corrupt")
)

// FileRecord describes one file stored in the container.
type FileRecord struct {
	HashLo           uint32
	HashHi           uint32
	Flags            uint32
	ChunkStart       uint32
	DecompressedSize uint32
	DataStart        uint32
	DataEnd          uint32
}

func (f FileRecord) GUID() asset.GUID {
	return asset.GUIDFromHalves(f.HashLo, f.HashHi)
}

// Compressed reports whether the file's chunks are compressed, which is
// implied by the stored size differing from the decompressed size.
func (f FileRecord) Compressed() bool {
	return f.DecompressedSize != f.DataEnd-f.DataStart
}

func (f FileRecord) chunkCount(maxChunk uint32) uint64 {
	return (uint64(f.DecompressedSize) + uint64(maxChunk) - 1) / uint64(maxChunk)
}

type chunkEntry struct {
	offset         uint32
	compressedSize uint32
}

type tableHeader struct {
	fileCount    uint32
	chunkCount   uint32
	maxChunkSize uint32
	dataOffset   uint32
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets a logger for load diagnostics. If not provided, no
// logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Container is an opened bpk file.
type Container struct {
	path   string
	r      *mmap.ReaderAt
	th     tableHeader
	files  []FileRecord
	chunks []chunkEntry
	logger *slog.Logger
}

var _ asset.Container = (*Container)(nil)

// Open maps the bpk at path and parses its tables.
func Open(path string, opts ...Option) (*Container, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := mmap.Open(path, mmap.RandomAccess)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}
	c := &Container{path: path, r: r, logger: o.logger}
	if err := c.parse(r.Data()); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.logger.Debug("bpk loaded",
		"path", path,
		"files", len(c.files),
		"chunks", len(c.chunks),
		"max_chunk", c.th.maxChunkSize)
	return c, nil
}

func (c *Container) parse(data []byte) error {
	be := binary.BigEndian
	if len(data) < headerSize+tableHeaderSize {
		return fmt.Errorf("header needs %d bytes, have %d: %w", headerSize+tableHeaderSize, len(data), ErrTruncated)
	}
	if m := be.Uint32(data[0:]); m != magic {
		return fmt.Errorf("magic %08x: %w", m, ErrBadMagic)
	}
	if v := be.Uint32(data[4:]); v != Version {
		return fmt.Errorf("this library reads v%d bpk files; found v%d: %w", Version, v, ErrUnsupportedVersion)
	}
	c.th = tableHeader{
		fileCount:    be.Uint32(data[8:]),
		chunkCount:   be.Uint32(data[12:]),
		maxChunkSize: be.Uint32(data[16:]),
		dataOffset:   be.Uint32(data[20:]),
	}
	if c.th.maxChunkSize == 0 {
		return fmt.Errorf("zero max chunk size: %w", ErrCorrupt)
	}

	off := uint64(headerSize + tableHeaderSize)
	tables := off + uint64(c.th.fileCount)*fileRecordSize + uint64(c.th.chunkCount)*chunkEntrySize
	if tables > uint64(len(data)) || uint64(c.th.dataOffset) < tables || uint64(c.th.dataOffset) > uint64(len(data)) {
		return fmt.Errorf("tables end at %d, data at %d, file is %d bytes: %w", tables, c.th.dataOffset, len(data), ErrTruncated)
	}
	c.files = make([]FileRecord, c.th.fileCount)
	for i := range c.files {
		b := data[off:]
		c.files[i] = FileRecord{
			HashLo:           be.Uint32(b[0:]),
			HashHi:           be.Uint32(b[4:]),
			Flags:            be.Uint32(b[8:]),
			ChunkStart:       be.Uint32(b[12:]),
			DecompressedSize: be.Uint32(b[16:]),
			DataStart:        be.Uint32(b[20:]),
			DataEnd:          be.Uint32(b[24:]),
		}
		off += fileRecordSize
	}
	c.chunks = make([]chunkEntry, c.th.chunkCount)
	for i := range c.chunks {
		b := data[off:]
		c.chunks[i] = chunkEntry{offset: be.Uint32(b[0:]), compressedSize: be.Uint32(b[4:])}
		off += chunkEntrySize
	}

	region := uint64(len(data)) - uint64(c.th.dataOffset)
	for i := range c.files {
		f := &c.files[i]
		if f.DataEnd < f.DataStart || uint64(f.DataEnd) > region {
			return fmt.Errorf("file %d data [%d,%d) outside %d byte region: %w", i, f.DataStart, f.DataEnd, region, ErrCorrupt)
		}
		if f.DecompressedSize > 0 && f.DataEnd == f.DataStart {
			return fmt.Errorf("file %d: %d bytes with no stored data: %w", i, f.DecompressedSize, ErrCorrupt)
		}
		if uint64(f.ChunkStart)+f.chunkCount(c.th.maxChunkSize) > uint64(len(c.chunks)) {
			return fmt.Errorf("file %d chunks [%d,+%d) outside %d entries: %w",
				i, f.ChunkStart, f.chunkCount(c.th.maxChunkSize), len(c.chunks), ErrCorrupt)
		}
	}
	return nil
}

func (c *Container) Kind() asset.ContainerKind { return asset.ContainerBPK }

func (c *Container) FileName() string { return filepath.Base(c.path) }

func (c *Container) Close() error { return c.r.Close() }

func (c *Container) Len() int { return len(c.files) }

func (c *Container) File(i int) FileRecord { return c.files[i] }

func (c *Container) MaxChunkSize() int { return int(c.th.maxChunkSize) }

// ReadFile decompresses file i. Files flagged FlagSkipHeader have their
// first two bytes dropped.
func (c *Container) ReadFile(i int) ([]byte, error) {
	if i < 0 || i >= len(c.files) {
		return nil, fmt.Errorf("file %d of %d: %w", i, len(c.files), ErrCorrupt)
	}
	f := &c.files[i]
	data := c.r.Data()
	region := data[c.th.dataOffset:]
	stored := region[f.DataStart:f.DataEnd]
	out := make([]byte, f.DecompressedSize)

	maxChunk := c.th.maxChunkSize
	n := uint32(f.chunkCount(maxChunk))
	for j := uint32(0); j < n; j++ {
		e := c.chunks[f.ChunkStart+j]
		start := j * maxChunk
		size := min(maxChunk, f.DecompressedSize-start)
		if uint64(e.offset)+uint64(e.compressedSize) > uint64(len(stored)) {
			return nil, fmt.Errorf("file %d chunk %d: [%d,+%d) outside %d stored bytes: %w",
				i, j, e.offset, e.compressedSize, len(stored), ErrCorrupt)
		}
		raw := stored[e.offset : e.offset+e.compressedSize]
		tag := codec.None
		if f.Compressed() && e.compressedSize != size {
			tag = codec.LZ4
		}
		if _, err := codec.DecompressInto(out[start:start+size], raw, tag); err != nil {
			return nil, fmt.Errorf("file %d chunk %d: %w: %w", i, j, ErrCorrupt, err)
		}
	}
	if f.Flags&FlagSkipHeader != 0 && len(out) >= 2 {
		out = out[2:]
	}
	return out, nil
}

// Assets builds a registry record for every file.
func (c *Container) Assets() []*asset.Asset {
	out := make([]*asset.Asset, len(c.files))
	for i := range c.files {
		f := &c.files[i]
		out[i] = &asset.Asset{
			GUID:      f.GUID(),
			Type:      FileType,
			Container: c,
			Index:     i,
		}
	}
	return out
}
