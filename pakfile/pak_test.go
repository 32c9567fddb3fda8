// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/scratch"
	"github.com/bpowers/rpak/patch"
)

var (
	txtr = asset.MustTag("txtr")
	matl = asset.MustTag("matl")
)

type fixturePointer struct {
	slot, target PagePtr
}

// fixtureWriter builds a three page pak: a compressible page, a random
// page and a small page, with pointers crossing pages in both directions
// and two assets where the material depends on the texture.
func fixtureWriter(t *testing.T, seed int64) (*Writer, []fixturePointer) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	page0 := bytes.Repeat([]byte("header data "), 200)
	page1 := make([]byte, 3000)
	rng.Read(page1)
	page2 := make([]byte, 256)

	w := NewWriter(WithCreatedTime(42))
	require.Equal(t, uint32(0), w.AddPage(page0, true))
	require.Equal(t, uint32(1), w.AddPage(page1, true))
	require.Equal(t, uint32(2), w.AddPage(page2, false))

	ptrs := []fixturePointer{
		{PagePtr{0, 16}, PagePtr{2, 64}},
		{PagePtr{2, 0}, PagePtr{0, 100}},
		{PagePtr{1, 8}, PagePtr{1, 2000}},
		{PagePtr{2, 8}, PagePtr{1, 0}},
		{PagePtr{0, 0}, PagePtr{2, 256}},
	}
	for _, p := range ptrs {
		require.NoError(t, w.SetPointer(p.slot, p.target))
	}
	w.AddAsset(AssetSpec{
		Name:       "texture/world/rock.rpak",
		Type:       txtr,
		Version:    asset.Version{Major: 8},
		Head:       PagePtr{0, 0},
		HeaderSize: 32,
		CPU:        PagePtr{1, 0},
	})
	w.AddAsset(AssetSpec{
		Name:         "material/world/rock.rpak",
		Type:         matl,
		Version:      asset.Version{Major: 12, Minor: 1},
		Head:         PagePtr{2, 0},
		HeaderSize:   16,
		CPU:          Null,
		Dependencies: []asset.GUID{asset.GUIDFromName("texture/world/rock.rpak"), 0xdead},
	})
	return w, ptrs
}

func writeFixture(t *testing.T, dir, name string, w *Writer) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, w.WriteFile(path))
	return path
}

func TestOpenResolvesEveryPointer(t *testing.T) {
	w, ptrs := fixtureWriter(t, 1)
	path := writeFixture(t, t.TempDir(), "common.rpak", w)

	var arrivals []int
	p, err := Open(context.Background(), path, WithPageCallback(func(loaded, total int) {
		arrivals = append(arrivals, loaded)
		require.Equal(t, 4, total)
	}))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()

	require.Equal(t, []int{1, 2, 3, 4}, arrivals)
	require.Equal(t, 4, p.PageCount())
	require.NotZero(t, p.CRC())
	require.Equal(t, "common.rpak", p.FileName())
	require.Equal(t, asset.ContainerPak, p.Kind())

	for _, ptr := range ptrs {
		slot, err := p.Deref(ptr.slot)
		require.NoError(t, err)
		got, err := p.Pointer(slot)
		require.NoError(t, err)
		require.Equal(t, ptr.target, got.Location())

		page, err := p.Page(int(ptr.target.Index))
		require.NoError(t, err)
		require.Equal(t, len(page)-int(ptr.target.Offset), got.Remaining())
	}

	notSlot, err := p.Deref(PagePtr{0, 40})
	require.NoError(t, err)
	_, err = p.Pointer(notSlot)
	require.ErrorIs(t, err, ErrNotPointer)

	_, err = p.Deref(PagePtr{9, 0})
	require.ErrorIs(t, err, ErrCorruptPointer)
	_, err = p.Deref(PagePtr{2, 257})
	require.ErrorIs(t, err, ErrCorruptPointer)
}

func TestOpenAssets(t *testing.T) {
	w, _ := fixtureWriter(t, 2)
	path := writeFixture(t, t.TempDir(), "common.rpak", w)
	p, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer p.Close()

	assets, err := p.Assets()
	require.NoError(t, err)
	require.Len(t, assets, 2)

	tex, mat := assets[0], assets[1]
	assert.Equal(t, asset.GUIDFromName("texture/world/rock.rpak"), tex.GUID)
	assert.Equal(t, "rock", tex.Name)
	assert.Equal(t, "texture/world/rock.rpak", tex.Path)
	assert.Equal(t, txtr, tex.Type)
	assert.Equal(t, asset.Version{Major: 8}, tex.Version)
	assert.Len(t, tex.Header, 32)
	assert.Equal(t, asset.Version{Major: 12, Minor: 1}, mat.Version)
	assert.Equal(t, 1, mat.Index)

	deps, err := mat.Dependencies()
	require.NoError(t, err)
	require.Equal(t, []asset.GUID{tex.GUID, 0xdead}, deps)

	deps, err = tex.Dependencies()
	require.NoError(t, err)
	require.Empty(t, deps)

	require.Equal(t, []int{1}, p.Dependents(0))
	require.Empty(t, p.Dependents(1))

	cpu, err := p.CPU(0)
	require.NoError(t, err)
	require.Equal(t, PagePtr{1, 0}, cpu.Location())
	_, err = p.CPU(1)
	require.ErrorIs(t, err, ErrCorruptPointer)
}

func TestOpenMalformed(t *testing.T) {
	w, _ := fixtureWriter(t, 3)
	good, err := w.Bytes()
	require.NoError(t, err)
	dir := t.TempDir()

	for _, tt := range []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrBadMagic},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }, ErrUnsupportedVersion},
		{"short header", func(b []byte) []byte { return b[:20] }, ErrTruncated},
		{"truncated", func(b []byte) []byte { return b[:len(b)-10] }, ErrTruncated},
		{"checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }, ErrChecksum},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".rpak")
			data := tt.mutate(append([]byte(nil), good...))
			require.NoError(t, os.WriteFile(path, data, 0o644))
			_, err := Open(context.Background(), path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenCorruptPointer(t *testing.T) {
	for name, target := range map[string]PagePtr{
		"page out of range": {77, 0},
		"offset past end":   {1, 65},
		"null":              Null,
	} {
		t.Run(name, func(t *testing.T) {
			w := NewWriter()
			w.AddPage(make([]byte, 32), false)
			w.AddPage(make([]byte, 64), true)
			require.NoError(t, w.SetPointer(PagePtr{0, 8}, PagePtr{1, 4}))
			require.NoError(t, w.SetPointer(PagePtr{1, 0}, target))
			path := writeFixture(t, t.TempDir(), "bad.rpak", w)

			_, err := Open(context.Background(), path)
			require.ErrorIs(t, err, ErrCorruptPointer)
		})
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.rpak"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriterDeterministicCRC(t *testing.T) {
	a, _ := fixtureWriter(t, 4)
	b, _ := fixtureWriter(t, 4)
	ab, err := a.Bytes()
	require.NoError(t, err)
	bb, err := b.Bytes()
	require.NoError(t, err)
	require.Equal(t, ab, bb)

	c := NewWriter(WithoutCRC())
	c.AddPage([]byte("x"), false)
	cb, err := c.Bytes()
	require.NoError(t, err)
	var h fileHeader
	require.NoError(t, h.UnmarshalBytes(cb))
	require.Zero(t, h.crc)
}

func TestWriterHeaderBounds(t *testing.T) {
	for _, tt := range []struct {
		name string
		head PagePtr
		size uint32
		want error
	}{
		{"past page end", PagePtr{0, 0}, 4096, ErrOutOfBounds},
		{"offset past page end", PagePtr{0, 60}, 8, ErrOutOfBounds},
		{"missing page", PagePtr{3, 0}, 8, ErrCorruptPointer},
		{"null with size", Null, 8, ErrOutOfBounds},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			w.AddPage(make([]byte, 64), false)
			w.AddAsset(AssetSpec{Name: "texture/bad.rpak", Type: txtr, Head: tt.head, HeaderSize: tt.size, CPU: Null})
			_, err := w.Bytes()
			require.ErrorIs(t, err, tt.want)
			require.Error(t, w.WriteFile(filepath.Join(t.TempDir(), "bad.rpak")))
		})
	}

	w := NewWriter()
	w.AddPage(make([]byte, 64), false)
	w.AddAsset(AssetSpec{Name: "texture/fits.rpak", Type: txtr, Head: PagePtr{0, 56}, HeaderSize: 8, CPU: Null})
	w.AddAsset(AssetSpec{Name: "texture/headless.rpak", Type: txtr, CPU: Null})
	_, err := w.Bytes()
	require.NoError(t, err)
}

// patchedRevision derives a revision from base: the first two pages are
// rebuilt by patch, with scattered edits and a new pointer, and one new page
// is stored.
func patchedRevision(t *testing.T, base *Writer, rev int, seed int64) (*Writer, [][]byte) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var pages [][]byte
	for i := 0; i < 2; i++ {
		page := append([]byte(nil), base.pages[i].data...)
		for j := 0; j < 20; j++ {
			off := rng.Intn(len(page))
			page[off] ^= byte(1 + rng.Intn(255))
		}
		// keep the pointer slots intact
		copy(page[0:24], base.pages[i].data[0:24])
		pages = append(pages, page)
	}
	// grow the second page so patch output differs in size from its base
	pages[1] = append(pages[1], []byte("appended by revision")...)

	w := NewWriter()
	for _, p := range pages {
		_, err := w.AddPatchedPage(p)
		require.NoError(t, err)
	}
	fresh := bytes.Repeat([]byte{byte(rev)}, 512)
	idx := w.AddPage(fresh, true)
	require.NoError(t, w.SetPointer(PagePtr{0, 16}, PagePtr{idx, 64}))
	require.NoError(t, w.SetPointer(PagePtr{idx, 0}, PagePtr{1, 3000}))
	require.NoError(t, w.SetPointer(PagePtr{1, 8}, PagePtr{0, 5}))
	w.AddAsset(AssetSpec{
		Name:       "texture/world/rock.rpak",
		Type:       txtr,
		Head:       PagePtr{0, 0},
		HeaderSize: 32,
	})
	require.NoError(t, w.SetPatch(rev, base.PageData()))

	w.finalize()
	var want [][]byte
	for _, p := range w.pages {
		want = append(want, p.data)
	}
	return w, want
}

func TestOpenPatched(t *testing.T) {
	dir := t.TempDir()
	base, _ := fixtureWriter(t, 5)
	writeFixture(t, dir, "common.rpak", base)

	rev1, want1 := patchedRevision(t, base, 1, 6)
	writeFixture(t, dir, "common(01).rpak", rev1)
	rev2, want2 := patchedRevision(t, rev1, 2, 7)
	path2 := writeFixture(t, dir, "common(02).rpak", rev2)

	for name, opts := range map[string][]Option{
		"default":     nil,
		"small reads": {WithScratch(scratch.New(2, 4096))},
		"tiny reads":  {WithScratch(scratch.New(1, 7))},
	} {
		t.Run(name, func(t *testing.T) {
			p, err := Open(context.Background(), path2, opts...)
			require.NoError(t, err)
			defer p.Close()

			require.Equal(t, 2, p.PatchIndex())
			require.Equal(t, 2, p.FirstPageIndex())
			require.Equal(t, len(want2), p.PageCount())
			for i, want := range want2 {
				got, err := p.Page(i)
				require.NoError(t, err)
				require.True(t, bytes.Equal(want, got), "page %d", i)
			}

			slot, err := p.Deref(PagePtr{1, 8})
			require.NoError(t, err)
			target, err := p.Pointer(slot)
			require.NoError(t, err)
			require.Equal(t, PagePtr{0, 5}, target.Location())
		})
	}

	p1, err := Open(context.Background(), filepath.Join(dir, "common(01).rpak"))
	require.NoError(t, err)
	defer p1.Close()
	for i, want := range want1 {
		got, err := p1.Page(i)
		require.NoError(t, err)
		require.True(t, bytes.Equal(want, got), "page %d", i)
	}
}

func TestOpenPatchedMissingBase(t *testing.T) {
	dir := t.TempDir()
	base, _ := fixtureWriter(t, 8)
	rev1, _ := patchedRevision(t, base, 1, 9)
	path := writeFixture(t, dir, "common(01).rpak", rev1)

	_, err := Open(context.Background(), path)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, err, ErrBaseRevision)
}

func TestOpenPatchedWrongBase(t *testing.T) {
	dir := t.TempDir()
	base, _ := fixtureWriter(t, 10)
	rev1, _ := patchedRevision(t, base, 1, 11)
	writeFixture(t, dir, "common(01).rpak", rev1)

	other := NewWriter()
	other.AddPage([]byte("not the base"), false)
	writeFixture(t, dir, "common.rpak", other)

	_, err := Open(context.Background(), filepath.Join(dir, "common(01).rpak"))
	require.ErrorIs(t, err, patch.ErrSourceExhausted)
}

func TestPatchMaster(t *testing.T) {
	dir := t.TempDir()
	w, err := NewPatchMasterWriter([]patch.Entry{{Stem: "common", Revision: 3}, {Stem: "ui", Revision: 12}})
	require.NoError(t, err)
	path := writeFixture(t, dir, patch.MasterName, w)

	p, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer p.Close()

	m := patch.NewManifest()
	require.NoError(t, ReadPatchMaster(p, m))
	require.Equal(t, []patch.Entry{{Stem: "common", Revision: 3}, {Stem: "ui", Revision: 12}}, m.Entries())
	require.Equal(t, filepath.Join(dir, "common(03).rpak"), m.Resolve(filepath.Join(dir, "common.rpak")))

	fixture, _ := fixtureWriter(t, 12)
	other, err := Open(context.Background(), writeFixture(t, dir, "common.rpak", fixture))
	require.NoError(t, err)
	defer other.Close()
	require.ErrorIs(t, ReadPatchMaster(other, m), ErrNotPatchMaster)
}

func TestStarpak(t *testing.T) {
	dir := t.TempDir()
	streamed := bytes.Repeat([]byte("mip"), 3000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.starpak"), streamed, 0o644))

	w := NewWriter()
	w.AddPage(make([]byte, 64), false)
	idx := w.AddStarpak(`paks\Win64\common.starpak`, false)
	w.AddStarpak("paks/Win64/missing.opt.starpak", true)
	w.AddAsset(AssetSpec{
		Name:          "texture/streamed.rpak",
		Type:          txtr,
		Head:          PagePtr{0, 0},
		HeaderSize:    8,
		StarpakOffset: StarpakRef{PathIndex: idx, Offset: 0x1000}.Encode(),
	})
	p, err := Open(context.Background(), writeFixture(t, dir, "streamed.rpak", w))
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, []string{`paks\Win64\common.starpak`}, p.StarpakPaths())
	require.Equal(t, []string{"paks/Win64/missing.opt.starpak"}, p.OptStarpakPaths())

	ref, ok := p.Starpak(0, false)
	require.True(t, ok)
	_, ok = p.Starpak(0, true)
	require.False(t, ok)

	s, err := p.OpenStarpak(ref, false)
	require.NoError(t, err)
	defer s.Close()
	b, err := s.Bytes(ref.Offset, 9)
	require.NoError(t, err)
	require.Equal(t, streamed[0x1000:0x1009], b)
	_, err = s.Bytes(uint64(len(streamed)), 1)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = p.OpenStarpak(StarpakRef{}, true)
	require.Error(t, err)
}
