// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap maps container files read-only into memory.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 0

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 1
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

var ErrClosed = errors.New("mmap: closed")

// ReaderAt is a read-only view of a whole file.
type ReaderAt struct {
	data   []byte
	mapped bool
	closed atomic.Bool
}

// Open maps the file at path. Empty files produce an empty, unmapped reader.
func Open(path string, opt Options) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := fi.Size()
	if size == 0 {
		return &ReaderAt{}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("file %s too large to map (%d bytes)", path, size)
	}

	data, mapped, err := mmap(f, int(size), opt)
	if err != nil {
		return nil, fmt.Errorf("mmap(%s): %w", path, err)
	}
	return &ReaderAt{data: data, mapped: mapped}, nil
}

// Data returns the mapped bytes. They must not be written to, and must not
// be used after Close.
func (r *ReaderAt) Data() []byte {
	return r.data
}

func (r *ReaderAt) Len() int {
	return len(r.data)
}

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file. It is safe to call more than once.
func (r *ReaderAt) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	data := r.data
	r.data = nil
	if !r.mapped || data == nil {
		return nil
	}
	return munmap(data)
}
