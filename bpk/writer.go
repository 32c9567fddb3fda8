// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bpk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bpowers/rpak/internal/codec"
)

// DefaultMaxChunkSize is the chunk size used by NewWriter.
const DefaultMaxChunkSize = 0x10000

type pendingFile struct {
	rec    FileRecord
	chunks []chunkEntry
}

// Writer builds a bpk in memory.
type Writer struct {
	maxChunk uint32
	files    []pendingFile
	data     []byte
	chunks   int
}

// NewWriter returns a Writer splitting files into chunks of at most
// maxChunkSize bytes; zero selects DefaultMaxChunkSize.
func NewWriter(maxChunkSize int) *Writer {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Writer{maxChunk: uint32(maxChunkSize)}
}

// AddFile stores data under the given hash halves. When compress is set,
// each chunk is LZ4 compressed unless that would not shrink it.
func (w *Writer) AddFile(hashLo, hashHi, flags uint32, data []byte, compress bool) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("bpk: %d byte file too large", len(data))
	}
	pf := pendingFile{rec: FileRecord{
		HashLo:           hashLo,
		HashHi:           hashHi,
		Flags:            flags,
		ChunkStart:       uint32(w.chunks),
		DecompressedSize: uint32(len(data)),
		DataStart:        uint32(len(w.data)),
	}}
	var stored []byte
	for start := 0; start < len(data); start += int(w.maxChunk) {
		chunk := data[start:min(len(data), start+int(w.maxChunk))]
		body := chunk
		if compress {
			packed, err := codec.Compress(chunk, codec.LZ4)
			if err == nil {
				body = packed
			} else if !errors.Is(err, codec.ErrIncompressible) {
				return fmt.Errorf("bpk: %w", err)
			}
		}
		pf.chunks = append(pf.chunks, chunkEntry{offset: uint32(len(stored)), compressedSize: uint32(len(body))})
		stored = append(stored, body...)
	}
	w.data = append(w.data, stored...)
	pf.rec.DataEnd = uint32(len(w.data))
	w.chunks += len(pf.chunks)
	w.files = append(w.files, pf)
	return nil
}

// Bytes encodes the container.
func (w *Writer) Bytes() []byte {
	be := binary.BigEndian
	tables := headerSize + tableHeaderSize + len(w.files)*fileRecordSize + w.chunks*chunkEntrySize
	out := make([]byte, 0, tables+len(w.data))
	out = be.AppendUint32(out, magic)
	out = be.AppendUint32(out, Version)
	out = be.AppendUint32(out, uint32(len(w.files)))
	out = be.AppendUint32(out, uint32(w.chunks))
	out = be.AppendUint32(out, w.maxChunk)
	out = be.AppendUint32(out, uint32(tables))
	for _, f := range w.files {
		r := f.rec
		for _, v := range []uint32{r.HashLo, r.HashHi, r.Flags, r.ChunkStart, r.DecompressedSize, r.DataStart, r.DataEnd} {
			out = be.AppendUint32(out, v)
		}
	}
	for _, f := range w.files {
		for _, c := range f.chunks {
			out = be.AppendUint32(out, c.offset)
			out = be.AppendUint32(out, c.compressedSize)
		}
	}
	return append(out, w.data...)
}

// WriteFile writes the container to path through a temporary file in the
// same directory.
func (w *Writer) WriteFile(path string) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "bpk-writer.*.bpk")
	if err != nil {
		return fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	if _, err := f.Write(w.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("f.Write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("f.Close: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}
