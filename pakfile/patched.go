// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bpowers/rpak/internal/chunkstore"
	"github.com/bpowers/rpak/internal/scratch"
	"github.com/bpowers/rpak/patch"
)

// applyPatch rebuilds pages [0, firstPageIndex) by replaying cmds over the
// previous revision, feeding the literal stream at literalOff through a
// scratch buffer.
func (p *Pak) applyPatch(ctx context.Context, cmds []patch.Command, literalOff int64) error {
	rev := int(p.hdr.patchIndex)
	basePath := patch.BasePath(p.path, rev)
	store, err := p.loadBase(ctx, basePath)
	if err != nil {
		return fmt.Errorf("base revision %s: %w: %w", basePath, ErrBaseRevision, err)
	}
	defer store.Reset()
	src := newStoreSource(store)
	if src.Size() != int64(p.patch.baseDecompressedSize) {
		return dataErrf(fileHeaderSize+8, patch.ErrSourceExhausted, "patch expects a %d byte base, %s has %d",
			p.patch.baseDecompressedSize, basePath, src.Size())
	}

	first := int(p.patch.firstPageIndex)
	ends := make([]int, first)
	total := 0
	for i := range ends {
		total += int(p.pageHeaders[i].dataSize)
		ends[i] = total
	}
	if patch.OutputSize(cmds) != int64(total) {
		return dataErrf(fileHeaderSize, patch.ErrOverflow, "patch produces %d bytes, patched pages hold %d",
			patch.OutputSize(cmds), total)
	}
	dst := make([]byte, total)

	next := 0
	var pageErr error
	arrive := func(written int) {
		for pageErr == nil && next < first && ends[next] <= written {
			start := ends[next] - int(p.pageHeaders[next].dataSize)
			pageErr = p.addPage(next, dst[start:ends[next]:ends[next]])
			next++
		}
	}
	r := patch.NewReplayer(cmds, src, dst, patch.WithProgress(arrive))

	pool := p.o.scratch
	if pool == nil {
		pool = scratch.New(1, int(min(max(p.patch.literalSize, 4096), scratch.DefaultSize)))
	}
	buf, err := pool.Claim()
	if err != nil {
		return fmt.Errorf("pool.Claim: %w", err)
	}
	defer pool.Release(buf)

	lit := io.NewSectionReader(p.file, literalOff, int64(p.patch.literalSize))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := io.ReadFull(lit, buf.Data)
		if n > 0 {
			if _, err := r.Write(buf.Data[:n]); err != nil {
				return dataErrf(literalOff+r.LiteralConsumed(), err, "patch replay")
			}
			if pageErr != nil {
				return pageErr
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		} else if readErr != nil {
			return fmt.Errorf("read patch literal: %w", readErr)
		}
	}
	if err := r.Close(); err != nil {
		return dataErrf(literalOff+r.LiteralConsumed(), err, "patch replay")
	}
	// zero-sized trailing pages never see a progress callback
	arrive(r.Written())
	if pageErr != nil {
		return pageErr
	}
	if next != first {
		return dataErrf(literalOff, patch.ErrTruncatedPatch, "patch rebuilt %d of %d pages", next, first)
	}
	p.o.logger.Debug("patch applied",
		"path", p.path,
		"base", basePath,
		"commands", len(cmds),
		"literal_bytes", r.LiteralConsumed(),
		"patched_bytes", total)
	return nil
}

// loadBase opens the previous revision and moves its decompressed pages into
// a compressed chunk store, one chunk per page, so the base file can be
// closed while the patch is replayed.
func (p *Pak) loadBase(ctx context.Context, basePath string) (*chunkstore.Store, error) {
	opts := append(append([]Option(nil), p.opts...), WithPageCallback(nil))
	base, err := Open(ctx, basePath, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = base.Close()
	}()
	store := chunkstore.New(chunkstore.WithCodec(p.o.chunkCodec), chunkstore.WithCapacity(base.PageCount()))
	for i := 0; i < base.PageCount(); i++ {
		page, err := base.Page(i)
		if err != nil {
			return nil, err
		}
		if err := store.Insert(i, page); err != nil {
			return nil, fmt.Errorf("store.Insert: %w", err)
		}
	}
	p.o.logger.Debug("base revision staged",
		"path", basePath,
		"pages", store.Len(),
		"bytes", store.Size(),
		"stored_bytes", store.StoredSize())
	return store, nil
}

// storeSource reads a chunk store as one contiguous buffer. It keeps the
// most recently decompressed chunk, since replay reads mostly forward.
type storeSource struct {
	store  *chunkstore.Store
	starts []int64
	size   int64

	cached int
	buf    []byte
}

var _ patch.Source = (*storeSource)(nil)

func newStoreSource(store *chunkstore.Store) *storeSource {
	s := &storeSource{
		store:  store,
		starts: make([]int64, store.Len()),
		cached: -1,
	}
	for i := range s.starts {
		c, err := store.Chunk(i)
		if err != nil {
			panic(fmt.Errorf("invariant broken: %w", err))
		}
		s.starts[i] = s.size
		s.size += int64(c.Size)
	}
	return s
}

func (s *storeSource) Size() int64 { return s.size }

func (s *storeSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("storeSource: negative offset %d", off)
	}
	n := 0
	for n < len(p) {
		if off >= s.size {
			return n, io.EOF
		}
		i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > off }) - 1
		chunk, err := s.chunk(i)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], chunk[off-s.starts[i]:])
		n += c
		off += int64(c)
	}
	return n, nil
}

func (s *storeSource) chunk(i int) ([]byte, error) {
	if i == s.cached {
		return s.buf, nil
	}
	c, err := s.store.Chunk(i)
	if err != nil {
		return nil, err
	}
	if cap(s.buf) < c.Size {
		s.buf = make([]byte, c.Size)
	}
	s.buf = s.buf[:c.Size]
	if _, err := s.store.ReadInto(i, s.buf); err != nil {
		s.cached = -1
		return nil, err
	}
	s.cached = i
	return s.buf, nil
}
