// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes a small synthetic game directory: a base pak, two
// patched revisions of it, a patch master, a starpak, a bpk and a loose
// model.
package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/bpk"
	"github.com/bpowers/rpak/pakfile"
	"github.com/bpowers/rpak/patch"
)

var (
	txtr = asset.MustTag("txtr")
	matl = asset.MustTag("matl")
	shdr = asset.MustTag("shdr")
)

func main() {
	out := pflag.StringP("out", "o", "testdata", "output directory")
	seed := pflag.Int64("seed", 1, "random seed")
	revisions := pflag.Int("revisions", 2, "number of patched revisions of common.rpak")
	pflag.Parse()

	if err := generate(*out, rand.New(rand.NewSource(*seed)), *revisions); err != nil {
		fmt.Fprintf(os.Stderr, "gen-testdata: %v\n", err)
		os.Exit(1)
	}
}

func generate(dir string, rng *rand.Rand, revisions int) error {
	if err := os.MkdirAll(filepath.Join(dir, "paks", "Win64"), 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}
	paks := filepath.Join(dir, "paks", "Win64")

	streamed := make([]byte, 0x4000)
	rng.Read(streamed)
	if err := os.WriteFile(filepath.Join(paks, "common.starpak"), streamed, 0o644); err != nil {
		return fmt.Errorf("os.WriteFile: %w", err)
	}

	base, err := basePak(rng)
	if err != nil {
		return err
	}
	if err := base.WriteFile(filepath.Join(paks, "common.rpak")); err != nil {
		return err
	}

	prev := base
	for rev := 1; rev <= revisions; rev++ {
		w, err := patchedPak(rng, prev, rev)
		if err != nil {
			return err
		}
		if err := w.WriteFile(filepath.Join(paks, patch.RevisionName("common", rev))); err != nil {
			return err
		}
		prev = w
	}

	master, err := pakfile.NewPatchMasterWriter([]patch.Entry{{Stem: "common", Revision: revisions}})
	if err != nil {
		return err
	}
	if err := master.WriteFile(filepath.Join(paks, patch.MasterName)); err != nil {
		return err
	}

	bw := bpk.NewWriter(0)
	for i := uint32(0); i < 4; i++ {
		data := bytes.Repeat([]byte(fmt.Sprintf("bpk file %d ", i)), 1000+int(i)*700)
		if err := bw.AddFile(0x1000+i, 0x2000+i, 0, data, i%2 == 0); err != nil {
			return err
		}
	}
	if err := bw.WriteFile(filepath.Join(dir, "static.bpk")); err != nil {
		return err
	}

	model := append([]byte("IDST"), bytes.Repeat([]byte{0x31}, 512)...)
	return os.WriteFile(filepath.Join(dir, "crate.mdl"), model, 0o644)
}

// basePak holds a texture, a shader and a material depending on both, with
// pointers between the three pages.
func basePak(rng *rand.Rand) (*pakfile.Writer, error) {
	w := pakfile.NewWriter()
	headers := bytes.Repeat([]byte("hdr "), 64)
	cpu := make([]byte, 2048)
	rng.Read(cpu)
	pages := []uint32{
		w.AddPage(headers, true),
		w.AddPage(cpu, true),
		w.AddPage(make([]byte, 128), false),
	}
	ptrs := [][2]pakfile.PagePtr{
		{{Index: pages[0], Offset: 8}, {Index: pages[1], Offset: 0}},
		{{Index: pages[2], Offset: 0}, {Index: pages[0], Offset: 64}},
		{{Index: pages[1], Offset: 16}, {Index: pages[2], Offset: 32}},
	}
	for _, p := range ptrs {
		if err := w.SetPointer(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	sp := w.AddStarpak("paks/Win64/common.starpak", false)
	w.AddAsset(pakfile.AssetSpec{
		Name:          "texture/world/crate.rpak",
		Type:          txtr,
		Version:       asset.Version{Major: 8},
		Head:          pakfile.PagePtr{Index: pages[0], Offset: 0},
		HeaderSize:    32,
		CPU:           pakfile.PagePtr{Index: pages[1], Offset: 0},
		StarpakOffset: pakfile.StarpakRef{PathIndex: sp, Offset: 0x1000}.Encode(),
	})
	w.AddAsset(pakfile.AssetSpec{
		Name:       "shader/world/crate.rpak",
		Type:       shdr,
		Version:    asset.Version{Major: 12},
		Head:       pakfile.PagePtr{Index: pages[0], Offset: 64},
		HeaderSize: 32,
		CPU:        pakfile.Null,
	})
	w.AddAsset(pakfile.AssetSpec{
		Name:       "material/world/crate.rpak",
		Type:       matl,
		Version:    asset.Version{Major: 15},
		Head:       pakfile.PagePtr{Index: pages[2], Offset: 0},
		HeaderSize: 64,
		CPU:        pakfile.Null,
		Dependencies: []asset.GUID{
			asset.GUIDFromName("texture/world/crate.rpak"),
			asset.GUIDFromName("shader/world/crate.rpak"),
		},
	})
	return w, nil
}

// patchedPak rebuilds the header page of prev with a few bytes changed and
// stores one new page.
func patchedPak(rng *rand.Rand, prev *pakfile.Writer, rev int) (*pakfile.Writer, error) {
	base := prev.PageData()
	page := append([]byte(nil), base[:256]...)
	for i := 0; i < 8; i++ {
		page[32+rng.Intn(len(page)-32)] ^= byte(1 + rng.Intn(255))
	}
	w := pakfile.NewWriter()
	if _, err := w.AddPatchedPage(page); err != nil {
		return nil, err
	}
	fresh := w.AddPage(bytes.Repeat([]byte{byte(rev)}, 256), true)
	if err := w.SetPointer(pakfile.PagePtr{Index: fresh, Offset: 0}, pakfile.PagePtr{Index: 0, Offset: 0}); err != nil {
		return nil, err
	}
	w.AddAsset(pakfile.AssetSpec{
		Name:       "texture/world/crate.rpak",
		Type:       txtr,
		Version:    asset.Version{Major: 8, Minor: uint32(rev)},
		Head:       pakfile.PagePtr{Index: 0, Offset: 0},
		HeaderSize: 32,
		CPU:        pakfile.Null,
	})
	if err := w.SetPatch(rev, base); err != nil {
		return nil, err
	}
	return w, nil
}
