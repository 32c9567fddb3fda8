// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/patch"
)

var errFinalized = errors.New("pakfile: writer already finalized")

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	logger      *slog.Logger
	createdTime uint64
	noCRC       bool
}

// WithWriterLogger sets an optional logger for the writer to use for
// progress updates. If not provided, no logging output will be produced.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(o *writerOptions) {
		o.logger = logger
	}
}

// WithCreatedTime sets the creation timestamp recorded in the header.
func WithCreatedTime(t uint64) WriterOption {
	return func(o *writerOptions) {
		o.createdTime = t
	}
}

// WithoutCRC writes a zero CRC, which readers neither verify nor use for
// deduplication.
func WithoutCRC() WriterOption {
	return func(o *writerOptions) {
		o.noCRC = true
	}
}

// AssetSpec describes one asset to be written.
type AssetSpec struct {
	// GUID defaults to the GUID of Name.
	GUID    asset.GUID
	Name    string
	Type    asset.Tag
	Version asset.Version

	Head       PagePtr
	HeaderSize uint32
	CPU        PagePtr

	// StarpakOffset and OptStarpakOffset are packed StarpakRefs; zero
	// means the asset has no streamed data.
	StarpakOffset    uint64
	OptStarpakOffset uint64

	Dependencies []asset.GUID
}

type pageSpec struct {
	data     []byte
	compress bool
	align    uint32
}

type ptrSpec struct {
	slot   PagePtr
	target PagePtr
}

// Writer assembles a pak in memory and writes it out atomically.
type Writer struct {
	o writerOptions

	pages       []pageSpec
	patched     int
	ptrs        []ptrSpec
	assets      []AssetSpec
	starpaks    []string
	optStarpaks []string

	patchIndex int
	base       []byte

	finalized bool
	err       error
	headers   []AssetHeader
	guidDescs []PagePtr
	deps      []uint32
}

func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{}
	w.o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&w.o)
	}
	return w
}

func (w *Writer) mustBeOpen() {
	if w.finalized {
		panic(errFinalized)
	}
}

// AddPage appends a copy of data as a new page and returns its index.
// Compressed pages fall back to raw storage when zstd cannot shrink them.
func (w *Writer) AddPage(data []byte, compress bool) uint32 {
	w.mustBeOpen()
	w.pages = append(w.pages, pageSpec{
		data:     append([]byte(nil), data...),
		compress: compress,
		align:    8,
	})
	return uint32(len(w.pages) - 1)
}

// AddPatchedPage appends a page that a patched pak rebuilds from the
// previous revision instead of storing. Patched pages must precede every
// page added with AddPage.
func (w *Writer) AddPatchedPage(data []byte) (uint32, error) {
	w.mustBeOpen()
	if len(w.pages) != w.patched {
		return 0, errors.New("pakfile: patched pages must be added before stored pages")
	}
	w.pages = append(w.pages, pageSpec{data: append([]byte(nil), data...), align: 8})
	w.patched++
	return uint32(len(w.pages) - 1), nil
}

// SetPatch makes the pak revision rev of a pak whose previous revision
// decompresses to base.
func (w *Writer) SetPatch(rev int, base []byte) error {
	w.mustBeOpen()
	if rev < 1 || rev > math.MaxUint16 {
		return fmt.Errorf("pakfile: patch revision %d out of range", rev)
	}
	w.patchIndex = rev
	w.base = base
	return nil
}

// SetPointer stores target in page data at slot and records slot in the
// pointer table.
func (w *Writer) SetPointer(slot, target PagePtr) error {
	w.mustBeOpen()
	if int(slot.Index) >= len(w.pages) {
		return fmt.Errorf("pakfile: pointer slot %s: no such page", slot)
	}
	page := w.pages[slot.Index].data
	if int64(slot.Offset)+ptrSize > int64(len(page)) {
		return fmt.Errorf("pakfile: pointer slot %s past end of %d byte page", slot, len(page))
	}
	copy(page[slot.Offset:], appendPtr(nil, target))
	w.ptrs = append(w.ptrs, ptrSpec{slot: slot, target: target})
	return nil
}

// AddStarpak records a streaming file path and returns its index.
func (w *Writer) AddStarpak(path string, optional bool) int {
	w.mustBeOpen()
	if optional {
		w.optStarpaks = append(w.optStarpaks, path)
		return len(w.optStarpaks) - 1
	}
	w.starpaks = append(w.starpaks, path)
	return len(w.starpaks) - 1
}

// AddAsset appends an asset and returns its index.
func (w *Writer) AddAsset(s AssetSpec) int {
	w.mustBeOpen()
	if s.GUID == 0 && s.Name != "" {
		s.GUID = asset.GUIDFromName(s.Name)
	}
	w.assets = append(w.assets, s)
	return len(w.assets) - 1
}

// finalize appends the descriptor page holding asset names and dependency
// GUIDs, then freezes the writer. An asset header that does not fit its page
// is recorded in w.err and reported by Bytes.
func (w *Writer) finalize() {
	if w.finalized {
		return
	}
	for i, a := range w.assets {
		if err := w.checkHeader(a); err != nil {
			w.err = fmt.Errorf("pakfile: asset %d (%s): %w", i, a.Type, err)
			break
		}
	}
	var desc []byte
	descIndex := uint32(len(w.pages))
	index := make(map[asset.GUID]int, len(w.assets))
	for i, a := range w.assets {
		index[a.GUID] = i
	}
	dependents := make([][]uint32, len(w.assets))

	w.headers = make([]AssetHeader, len(w.assets))
	for i, a := range w.assets {
		h := AssetHeader{
			GUID:              uint64(a.GUID),
			Name:              Null,
			Head:              a.Head,
			CPU:               a.CPU,
			StarpakOffset:     starpakOrNone(a.StarpakOffset),
			OptStarpakOffset:  starpakOrNone(a.OptStarpakOffset),
			PageEnd:           uint16(len(w.pages)),
			DependenciesIndex: uint32(len(w.guidDescs)),
			DependenciesCount: uint32(len(a.Dependencies)),
			HeaderSize:        a.HeaderSize,
			VersionMajor:      uint16(a.Version.Major),
			VersionMinor:      uint16(a.Version.Minor),
			Type:              a.Type,
		}
		if a.HeaderSize == 0 && a.Head == (PagePtr{}) {
			h.Head = Null
		}
		if a.Name != "" {
			h.Name = PagePtr{Index: descIndex, Offset: uint32(len(desc))}
			desc = append(desc, a.Name...)
			desc = append(desc, 0)
		}
		for _, dep := range a.Dependencies {
			for len(desc)%8 != 0 {
				desc = append(desc, 0)
			}
			w.guidDescs = append(w.guidDescs, PagePtr{Index: descIndex, Offset: uint32(len(desc))})
			desc = appendUint64(desc, uint64(dep))
			if j, ok := index[dep]; ok {
				dependents[j] = append(dependents[j], uint32(i))
			}
			h.RemainingDeps++
		}
		w.headers[i] = h
	}
	for i := range w.headers {
		w.headers[i].DependentsIndex = uint32(len(w.deps))
		w.headers[i].DependentsCount = uint32(len(dependents[i]))
		w.deps = append(w.deps, dependents[i]...)
	}
	if len(desc) > 0 {
		w.pages = append(w.pages, pageSpec{data: desc, align: 8})
	}
	w.finalized = true
}

func (w *Writer) checkHeader(a AssetSpec) error {
	if a.HeaderSize == 0 && (a.Head == PagePtr{} || a.Head.IsNull()) {
		return nil
	}
	if a.Head.IsNull() {
		return fmt.Errorf("%d byte header at null pointer: %w", a.HeaderSize, ErrOutOfBounds)
	}
	if int(a.Head.Index) >= len(w.pages) {
		return fmt.Errorf("header page %d of %d: %w", a.Head.Index, len(w.pages), ErrCorruptPointer)
	}
	if uint64(a.Head.Offset)+uint64(a.HeaderSize) > uint64(len(w.pages[a.Head.Index].data)) {
		return fmt.Errorf("%d byte header at %d:0x%x: %w", a.HeaderSize, a.Head.Index, a.Head.Offset, ErrOutOfBounds)
	}
	return nil
}

func starpakOrNone(packed uint64) uint64 {
	if packed == 0 {
		return NoStarpak
	}
	return packed
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// PageData returns every page concatenated in index order: the
// decompressed image a later revision is patched against.
func (w *Writer) PageData() []byte {
	w.finalize()
	var out []byte
	for _, p := range w.pages {
		out = append(out, p.data...)
	}
	return out
}

// Bytes encodes the pak.
func (w *Writer) Bytes() ([]byte, error) {
	w.finalize()
	if w.err != nil {
		return nil, w.err
	}
	if len(w.pages) > math.MaxUint16 {
		return nil, fmt.Errorf("pakfile: %d pages exceeds format limit", len(w.pages))
	}
	if w.patched > 0 && w.patchIndex == 0 {
		return nil, errors.New("pakfile: patched pages without SetPatch")
	}
	first := 0
	if w.patchIndex > 0 {
		first = w.patched
	}
	count := len(w.pages)

	starpaks := joinPaths(w.starpaks)
	optStarpaks := joinPaths(w.optStarpaks)
	if len(starpaks) > math.MaxUint16 || len(optStarpaks) > math.MaxUint16 {
		return nil, errors.New("pakfile: starpak path table too large")
	}

	// the relocator walks pointers in the order their slot pages load
	ptrs := append([]ptrSpec(nil), w.ptrs...)
	loadPos := func(idx uint32) int { return (int(idx) - first + count) % count }
	sort.SliceStable(ptrs, func(i, j int) bool {
		pi, pj := loadPos(ptrs[i].slot.Index), loadPos(ptrs[j].slot.Index)
		if pi != pj {
			return pi < pj
		}
		return ptrs[i].slot.Offset < ptrs[j].slot.Offset
	})

	var cmds []patch.Command
	var literal []byte
	if w.patchIndex > 0 {
		var target []byte
		for _, p := range w.pages[:first] {
			target = append(target, p.data...)
		}
		cmds, literal = patch.Diff(w.base, target)
	}

	h := fileHeader{
		magic:               magic,
		version:             Version,
		createdTime:         w.o.createdTime,
		starpakPathsSize:    uint16(len(starpaks)),
		optStarpakPathsSize: uint16(len(optStarpaks)),
		pageCount:           uint16(count),
		patchIndex:          uint16(w.patchIndex),
		pointerCount:        uint32(len(ptrs)),
		assetCount:          uint32(len(w.headers)),
		guidDescCount:       uint32(len(w.guidDescs)),
		dependentsCount:     uint32(len(w.deps)),
	}

	out := make([]byte, fileHeaderSize)
	if w.patchIndex > 0 {
		ph := patchHeader{
			firstPageIndex:       uint32(first),
			commandCount:         uint32(len(cmds)),
			baseDecompressedSize: uint64(len(w.base)),
			literalSize:          uint64(len(literal)),
		}
		var b [patchHeaderSize]byte
		ph.MarshalTo(b[:])
		out = append(out, b[:]...)
	}
	out = append(out, starpaks...)
	out = append(out, optStarpaks...)

	stored := make([][]byte, count)
	for i, p := range w.pages {
		ph := pageHeader{alignment: p.align, dataSize: uint32(len(p.data))}
		h.decompressedSize += uint64(len(p.data))
		if i >= first {
			stored[i] = p.data
			if p.compress {
				packed, err := codec.Compress(p.data, codec.Zstd)
				if err == nil {
					ph.flags |= pageFlagCompressed
					stored[i] = packed
				} else if !errors.Is(err, codec.ErrIncompressible) {
					return nil, fmt.Errorf("page %d: %w", i, err)
				}
			}
			ph.compressedSize = uint32(len(stored[i]))
		}
		out = appendPageHeader(out, ph)
	}
	for _, p := range ptrs {
		out = appendPtr(out, p.slot)
	}
	for i := range w.headers {
		out = appendAssetHeader(out, &w.headers[i])
	}
	for _, d := range w.guidDescs {
		out = appendPtr(out, d)
	}
	for _, d := range w.deps {
		out = append(out, byte(d), byte(d>>8), byte(d>>16), byte(d>>24))
	}
	out = patch.AppendCommands(out, cmds)
	out = append(out, literal...)
	for i := first; i < count; i++ {
		out = append(out, stored[i]...)
	}

	h.compressedSize = uint64(len(out))
	if !w.o.noCRC {
		h.crc = farm.Hash64(out[fileHeaderSize:])
	}
	if err := h.MarshalTo(out); err != nil {
		return nil, fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	return out, nil
}

func joinPaths(paths []string) []byte {
	var b []byte
	for _, p := range paths {
		b = append(b, p...)
		b = append(b, 0)
	}
	return b
}

// WriteFile encodes the pak and writes it to path through a temporary file
// in the same directory, renaming it into place once complete.
func (w *Writer) WriteFile(path string) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filepath.Abs: %w", err)
	}
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "rpak-writer.*.rpak")
	if err != nil {
		return fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("f.Write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("f.Close: %w", err)
	}
	// make the file read-only
	if err := os.Chmod(f.Name(), 0444); err != nil {
		return fmt.Errorf("os.Chmod(0444): %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	w.o.logger.Debug("pak written",
		"path", path,
		"bytes", len(data),
		"pages", len(w.pages),
		"patch", w.patchIndex,
		"assets", len(w.headers))
	return nil
}
