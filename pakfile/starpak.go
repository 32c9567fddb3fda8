// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bpowers/rpak/internal/mmap"
)

const (
	starpakPathBits = 12
	starpakPathMask = 1<<starpakPathBits - 1
	// NoStarpak is the offset of an asset without streamed data.
	NoStarpak = ^uint64(0)
)

// StarpakRef is a decoded starpak offset: the low bits select a path from
// the pak's starpak table and the rest is the byte offset into that file.
type StarpakRef struct {
	PathIndex int
	Offset    uint64
}

// DecodeStarpak splits a packed starpak offset. ok is false for NoStarpak.
func DecodeStarpak(packed uint64) (ref StarpakRef, ok bool) {
	if packed == NoStarpak {
		return StarpakRef{}, false
	}
	return StarpakRef{
		PathIndex: int(packed & starpakPathMask),
		Offset:    packed &^ starpakPathMask,
	}, true
}

// Encode packs r back into a starpak offset. Offset must be aligned to
// 4096 bytes.
func (r StarpakRef) Encode() uint64 {
	return r.Offset&^starpakPathMask | uint64(r.PathIndex)&starpakPathMask
}

// Starpak is a read-only streaming data file referenced by a pak.
type Starpak struct {
	path string
	r    *mmap.ReaderAt
}

// OpenStarpak maps a starpak. Paths recorded in paks are relative to the
// game root; a file with the same base name beside the pak is used when it
// exists at neither location.
func (p *Pak) OpenStarpak(ref StarpakRef, optional bool) (*Starpak, error) {
	paths := p.starpaks
	if optional {
		paths = p.optStarpaks
	}
	if ref.PathIndex >= len(paths) {
		return nil, fmt.Errorf("starpak index %d of %d paths: %w", ref.PathIndex, len(paths), ErrCorruptPointer)
	}
	rel := filepath.FromSlash(strings.ReplaceAll(paths[ref.PathIndex], `\`, "/"))
	dir := filepath.Dir(p.path)
	var lastErr error
	for _, candidate := range []string{rel, filepath.Join(dir, rel), filepath.Join(dir, filepath.Base(rel))} {
		s, err := OpenStarpak(candidate)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// OpenStarpak maps the starpak at path.
func OpenStarpak(path string) (*Starpak, error) {
	r, err := mmap.Open(path, mmap.RandomAccess)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}
	return &Starpak{path: path, r: r}, nil
}

func (s *Starpak) Path() string { return s.path }

func (s *Starpak) Len() int { return s.r.Len() }

// Bytes returns size bytes at off. The slice aliases the mapping.
func (s *Starpak) Bytes(off uint64, size int) ([]byte, error) {
	data := s.r.Data()
	if off > uint64(len(data)) || uint64(size) > uint64(len(data))-off {
		return nil, fmt.Errorf("starpak %s: %d bytes at 0x%x of %d: %w", s.path, size, off, len(data), ErrTruncated)
	}
	return data[off : off+uint64(size)], nil
}

func (s *Starpak) Close() error {
	return s.r.Close()
}

// Starpak returns the streamed data location of asset i.
func (p *Pak) Starpak(i int, optional bool) (StarpakRef, bool) {
	if optional {
		return DecodeStarpak(p.assets[i].OptStarpakOffset)
	}
	return DecodeStarpak(p.assets[i].StarpakOffset)
}
