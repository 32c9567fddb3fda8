// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/mmap"
	"github.com/bpowers/rpak/patch"
)

// Pak is an opened rpak container with every page resident and every
// pointer resolved.
type Pak struct {
	path string
	file *mmap.ReaderAt
	opts []Option
	o    options

	hdr   fileHeader
	patch patchHeader

	starpaks    []string
	optStarpaks []string
	pageHeaders []pageHeader
	assets      []AssetHeader
	guidDescs   []PagePtr
	dependents  []uint32

	arena *arena
	reloc *relocator
}

var (
	_ asset.Container        = (*Pak)(nil)
	_ asset.DependencyLister = (*Pak)(nil)
)

// tableReader hands out consecutive regions of the file, failing with
// ErrTruncated when one would run past the end.
type tableReader struct {
	data []byte
	off  int
}

func (r *tableReader) take(n int, what string) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.off {
		return nil, dataErrf(int64(r.off), ErrTruncated, "%s needs %d bytes, %d remain", what, n, len(r.data)-r.off)
	}
	b := r.data[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// Open maps and fully loads the pak at path. A patched pak opens the
// previous revision beside it and replays its delta stream.
func Open(ctx context.Context, path string, opts ...Option) (*Pak, error) {
	f, err := mmap.Open(path, mmap.SequentialAccess)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open: %w", err)
	}
	p := &Pak{
		path: path,
		file: f,
		opts: opts,
		o:    newOptions(opts),
	}
	if err := p.load(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.o.logger.Debug("pak loaded",
		"path", path,
		"pages", len(p.pageHeaders),
		"first_page", p.patch.firstPageIndex,
		"patch", p.hdr.patchIndex,
		"pointers", len(p.reloc.slots),
		"assets", len(p.assets))
	return p, nil
}

func (p *Pak) load(ctx context.Context) error {
	data := p.file.Data()
	if err := p.hdr.UnmarshalBytes(data); err != nil {
		return fmt.Errorf("fileHeader.UnmarshalBytes: %w", err)
	}
	if p.hdr.compressedSize != uint64(len(data)) {
		return dataErrf(24, ErrTruncated, "header records %d bytes, file has %d", p.hdr.compressedSize, len(data))
	}
	if p.hdr.crc != 0 && !p.o.skipCRC {
		if sum := farm.Hash64(data[fileHeaderSize:]); sum != p.hdr.crc {
			return dataErrf(16, ErrChecksum, "crc %016x, computed %016x", p.hdr.crc, sum)
		}
	}

	tr := &tableReader{data: data, off: fileHeaderSize}
	pageCount := int(p.hdr.pageCount)
	if p.hdr.patchIndex > 0 {
		b, err := tr.take(patchHeaderSize, "patch header")
		if err != nil {
			return err
		}
		p.patch.UnmarshalBytes(b)
		if int64(p.patch.firstPageIndex) > int64(pageCount) {
			return dataErrf(fileHeaderSize, nil, "first page %d of %d pages", p.patch.firstPageIndex, pageCount)
		}
	}
	if err := p.readTables(tr); err != nil {
		return err
	}

	var cmds []patch.Command
	var literalOff int64
	if p.hdr.patchIndex > 0 {
		start := int64(tr.off)
		b, err := tr.take(int(p.patch.commandCount)*patch.CommandSize, "patch commands")
		if err != nil {
			return err
		}
		if cmds, err = patch.ParseCommands(b, int(p.patch.commandCount)); err != nil {
			return dataErrf(start, err, "patch commands")
		}
		literalOff = int64(tr.off)
		if _, err := tr.take(int(p.patch.literalSize), "patch literal"); err != nil {
			return err
		}
		if patch.LiteralSize(cmds) != int64(p.patch.literalSize) {
			return dataErrf(literalOff, patch.ErrTrailingLiteral, "commands consume %d literal bytes, header records %d",
				patch.LiteralSize(cmds), p.patch.literalSize)
		}
	}

	first := int(p.patch.firstPageIndex)
	p.arena = newArena(pageCount, first)
	for i := first; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ph := p.pageHeaders[i]
		start := int64(tr.off)
		raw, err := tr.take(int(ph.compressedSize), fmt.Sprintf("page %d", i))
		if err != nil {
			return err
		}
		var page []byte
		if ph.compressed() {
			if page, err = codec.Decompress(raw, codec.Zstd, int(ph.dataSize)); err != nil {
				return dataErrf(start, err, "page %d", i)
			}
		} else {
			if ph.compressedSize != ph.dataSize {
				return dataErrf(start, nil, "raw page %d stores %d of %d bytes", i, ph.compressedSize, ph.dataSize)
			}
			page = raw
		}
		if err := p.addPage(i, page); err != nil {
			return err
		}
	}
	if tr.off != len(data) {
		return dataErrf(int64(tr.off), nil, "%d trailing bytes after page data", len(data)-tr.off)
	}

	if p.hdr.patchIndex > 0 {
		if err := p.applyPatch(ctx, cmds, literalOff); err != nil {
			return err
		}
	}

	if !p.arena.complete() {
		panic("invariant broken: pak load finished with pages missing")
	}
	if !p.reloc.done() {
		return dataErrf(0, ErrCorruptPointer, "%d of %d pointers unresolved after every page loaded",
			len(p.reloc.slots)-p.reloc.cursor, len(p.reloc.slots))
	}
	return nil
}

func (p *Pak) readTables(tr *tableReader) error {
	var err error
	if p.starpaks, err = readPaths(tr, int(p.hdr.starpakPathsSize), "starpak paths"); err != nil {
		return err
	}
	if p.optStarpaks, err = readPaths(tr, int(p.hdr.optStarpakPathsSize), "optional starpak paths"); err != nil {
		return err
	}

	b, err := tr.take(int(p.hdr.pageCount)*pageHeaderSize, "page headers")
	if err != nil {
		return err
	}
	p.pageHeaders = make([]pageHeader, p.hdr.pageCount)
	var decompressed uint64
	for i := range p.pageHeaders {
		p.pageHeaders[i] = readPageHeader(b[i*pageHeaderSize:])
		decompressed += uint64(p.pageHeaders[i].dataSize)
	}
	if decompressed != p.hdr.decompressedSize {
		return dataErrf(32, nil, "header records %d decompressed bytes, pages sum to %d", p.hdr.decompressedSize, decompressed)
	}

	slots, err := readPtrTable(tr, int(p.hdr.pointerCount), "pointer descriptors")
	if err != nil {
		return err
	}
	p.reloc = newRelocator(slots)

	start := int64(tr.off)
	b, err = tr.take(int(p.hdr.assetCount)*assetHeaderSize, "asset headers")
	if err != nil {
		return err
	}
	p.assets = make([]AssetHeader, p.hdr.assetCount)
	for i := range p.assets {
		p.assets[i] = readAssetHeader(b[i*assetHeaderSize:])
	}

	if p.guidDescs, err = readPtrTable(tr, int(p.hdr.guidDescCount), "guid descriptors"); err != nil {
		return err
	}

	b, err = tr.take(int(p.hdr.dependentsCount)*dependentSize, "dependents")
	if err != nil {
		return err
	}
	p.dependents = make([]uint32, p.hdr.dependentsCount)
	for i := range p.dependents {
		p.dependents[i] = binary.LittleEndian.Uint32(b[i*dependentSize:])
	}

	for i := range p.assets {
		h := &p.assets[i]
		if uint64(h.DependenciesIndex)+uint64(h.DependenciesCount) > uint64(len(p.guidDescs)) {
			return dataErrf(start+int64(i*assetHeaderSize), nil, "asset %d dependencies [%d,+%d) outside %d guid descriptors",
				i, h.DependenciesIndex, h.DependenciesCount, len(p.guidDescs))
		}
		if uint64(h.DependentsIndex)+uint64(h.DependentsCount) > uint64(len(p.dependents)) {
			return dataErrf(start+int64(i*assetHeaderSize), nil, "asset %d dependents [%d,+%d) outside %d entries",
				i, h.DependentsIndex, h.DependentsCount, len(p.dependents))
		}
	}
	return nil
}

func readPaths(tr *tableReader, n int, what string) ([]string, error) {
	b, err := tr.take(n, what)
	if err != nil {
		return nil, err
	}
	var out []string
	for len(b) > 0 {
		s, rest, _ := bytes.Cut(b, []byte{0})
		if len(s) > 0 {
			out = append(out, string(s))
		}
		b = rest
	}
	return out, nil
}

func readPtrTable(tr *tableReader, n int, what string) ([]PagePtr, error) {
	b, err := tr.take(n*ptrSize, what)
	if err != nil {
		return nil, err
	}
	out := make([]PagePtr, n)
	for i := range out {
		out[i] = readPtr(b[i*ptrSize:])
	}
	return out, nil
}

// addPage makes page idx resident and resolves every pointer that became
// eligible.
func (p *Pak) addPage(idx int, data []byte) error {
	p.arena.arrive(idx, data)
	if err := p.reloc.resolve(p.arena); err != nil {
		return fmt.Errorf("after page %d: %w", idx, err)
	}
	if p.o.onPage != nil {
		p.o.onPage(p.arena.loaded, p.arena.count())
	}
	return nil
}

// Close releases the mapped file. Refs and asset headers from this pak
// must not be used afterwards.
func (p *Pak) Close() error {
	if p.arena != nil {
		clear(p.arena.pages)
	}
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *Pak) Kind() asset.ContainerKind { return asset.ContainerPak }

func (p *Pak) FileName() string { return filepath.Base(p.path) }

func (p *Pak) Path() string { return p.path }

// CRC is the checksum recorded in the header; zero means none.
func (p *Pak) CRC() uint64 { return p.hdr.crc }

func (p *Pak) PatchIndex() int { return int(p.hdr.patchIndex) }

func (p *Pak) PageCount() int { return len(p.pageHeaders) }

func (p *Pak) FirstPageIndex() int { return int(p.patch.firstPageIndex) }

func (p *Pak) StarpakPaths() []string { return p.starpaks }

func (p *Pak) OptStarpakPaths() []string { return p.optStarpaks }

func (p *Pak) AssetCount() int { return len(p.assets) }

// Header returns the descriptor of asset i.
func (p *Pak) Header(i int) AssetHeader { return p.assets[i] }

// Page returns the decompressed bytes of page i.
func (p *Pak) Page(i int) ([]byte, error) {
	if i < 0 || i >= p.arena.count() || !p.arena.resident.IsSet(i) {
		return nil, fmt.Errorf("page %d: %w", i, ErrUnresolved)
	}
	return p.arena.pages[i], nil
}

// Deref resolves a pointer read from a descriptor table rather than from
// page data.
func (p *Pak) Deref(ptr PagePtr) (Ref, error) {
	return p.arena.ref(ptr)
}

// Pointer returns the resolved target of the pointer stored at slot.
func (p *Pak) Pointer(slot Ref) (Ref, error) {
	return p.reloc.lookup(slot.loc)
}

// CPU resolves the CPU data pointer of asset i.
func (p *Pak) CPU(i int) (Ref, error) {
	return p.Deref(p.assets[i].CPU)
}

// Dependencies implements asset.DependencyLister.
func (p *Pak) Dependencies(a *asset.Asset) ([]asset.GUID, error) {
	if a.Container != asset.Container(p) {
		return nil, fmt.Errorf("asset %s belongs to %s, not %s", a.GUID, a.Container.FileName(), p.FileName())
	}
	return p.DependenciesOf(a.Index)
}

// DependenciesOf reads the GUIDs asset i references.
func (p *Pak) DependenciesOf(i int) ([]asset.GUID, error) {
	h := &p.assets[i]
	if h.DependenciesCount == 0 {
		return nil, nil
	}
	descs := p.guidDescs[h.DependenciesIndex : h.DependenciesIndex+h.DependenciesCount]
	out := make([]asset.GUID, 0, len(descs))
	for _, d := range descs {
		ref, err := p.Deref(d)
		if err != nil {
			return nil, fmt.Errorf("asset %d guid descriptor: %w", i, err)
		}
		g, err := ref.Uint64()
		if err != nil {
			return nil, fmt.Errorf("asset %d guid descriptor: %w", i, err)
		}
		out = append(out, asset.GUID(g))
	}
	return out, nil
}

// Dependents returns the indices of the assets in this pak that reference
// asset i.
func (p *Pak) Dependents(i int) []int {
	h := &p.assets[i]
	out := make([]int, 0, h.DependentsCount)
	for _, d := range p.dependents[h.DependentsIndex : h.DependentsIndex+h.DependentsCount] {
		out = append(out, int(d))
	}
	return out
}

// Assets builds a registry record for every asset in the pak.
func (p *Pak) Assets() ([]*asset.Asset, error) {
	out := make([]*asset.Asset, 0, len(p.assets))
	for i := range p.assets {
		h := &p.assets[i]
		a := &asset.Asset{
			GUID:      asset.GUID(h.GUID),
			Version:   asset.Version{Major: uint32(h.VersionMajor), Minor: uint32(h.VersionMinor)},
			Type:      h.Type,
			Container: p,
			Index:     i,
		}
		if !h.Head.IsNull() {
			head, err := p.Deref(h.Head)
			if err != nil {
				return nil, fmt.Errorf("asset %d header: %w", i, err)
			}
			if a.Header, err = head.Bytes(int(h.HeaderSize)); err != nil {
				return nil, fmt.Errorf("asset %d header: %w", i, err)
			}
		}
		if !h.Name.IsNull() {
			ref, err := p.Deref(h.Name)
			if err != nil {
				return nil, fmt.Errorf("asset %d name: %w", i, err)
			}
			name, err := ref.CString()
			if err != nil {
				return nil, fmt.Errorf("asset %d name: %w", i, err)
			}
			a.Path = name
			a.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
		}
		out = append(out, a)
	}
	return out, nil
}
