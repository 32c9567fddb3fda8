// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"encoding/binary"
	"fmt"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/patch"
)

// PatchMasterType is the asset type of the patch list in patch_master.rpak.
var PatchMasterType = asset.MustTag("Ptch")

// patch master header: reserved u32, count u32, names ptr, numbers ptr
const (
	ptchCountOff   = 4
	ptchNamesOff   = 8
	ptchNumbersOff = 16
	ptchHeaderSize = 24
)

// ReadPatchMaster adds every entry of the pak's patch list to m.
func ReadPatchMaster(p *Pak, m *patch.Manifest) error {
	for i := range p.assets {
		if p.assets[i].Type != PatchMasterType {
			continue
		}
		return readPatchList(p, i, m)
	}
	return fmt.Errorf("%s: %w", p.FileName(), ErrNotPatchMaster)
}

func readPatchList(p *Pak, i int, m *patch.Manifest) error {
	h := p.assets[i]
	if h.HeaderSize < ptchHeaderSize {
		return dataErrf(0, ErrTruncated, "patch list header is %d bytes", h.HeaderSize)
	}
	hdr, err := p.Deref(h.Head)
	if err != nil {
		return fmt.Errorf("patch list header: %w", err)
	}
	count, err := hdr.Add(ptchCountOff).Uint32()
	if err != nil {
		return err
	}
	names, err := p.Pointer(hdr.Add(ptchNamesOff))
	if err != nil {
		return fmt.Errorf("patch list names: %w", err)
	}
	numbers, err := p.Pointer(hdr.Add(ptchNumbersOff))
	if err != nil {
		return fmt.Errorf("patch list numbers: %w", err)
	}
	revs, err := numbers.Bytes(int(count))
	if err != nil {
		return fmt.Errorf("patch list numbers: %w", err)
	}
	for j := uint32(0); j < count; j++ {
		str, err := p.Pointer(names.Add(j * ptrSize))
		if err != nil {
			return fmt.Errorf("patch list name %d: %w", j, err)
		}
		name, err := str.CString()
		if err != nil {
			return fmt.Errorf("patch list name %d: %w", j, err)
		}
		m.Set(name, int(revs[j]))
	}
	return nil
}

// NewPatchMasterWriter returns a Writer holding a patch list with the given
// entries. Revisions must fit in a byte.
func NewPatchMasterWriter(entries []patch.Entry, opts ...WriterOption) (*Writer, error) {
	count := len(entries)
	namesOff := uint32(ptchHeaderSize)
	numbersOff := namesOff + uint32(count)*ptrSize
	stringsOff := numbersOff + uint32(count)
	page := make([]byte, stringsOff)
	binary.LittleEndian.PutUint32(page[ptchCountOff:], uint32(count))
	strOffs := make([]uint32, count)
	for i, e := range entries {
		if e.Revision < 0 || e.Revision > 0xff {
			return nil, fmt.Errorf("pakfile: patch revision %d for %s out of range", e.Revision, e.Stem)
		}
		page[numbersOff+uint32(i)] = byte(e.Revision)
		strOffs[i] = uint32(len(page))
		page = append(page, patch.RevisionName(e.Stem, 0)...)
		page = append(page, 0)
	}

	w := NewWriter(opts...)
	idx := w.AddPage(page, true)
	ptrs := []struct{ slot, target uint32 }{
		{ptchNamesOff, namesOff},
		{ptchNumbersOff, numbersOff},
	}
	for i := range entries {
		ptrs = append(ptrs, struct{ slot, target uint32 }{namesOff + uint32(i)*ptrSize, strOffs[i]})
	}
	for _, p := range ptrs {
		if err := w.SetPointer(PagePtr{idx, p.slot}, PagePtr{idx, p.target}); err != nil {
			return nil, err
		}
	}
	w.AddAsset(AssetSpec{
		Name:       "patch_master",
		Type:       PatchMasterType,
		Head:       PagePtr{Index: idx},
		HeaderSize: ptchHeaderSize,
		CPU:        Null,
	})
	return w, nil
}
