// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"encoding/binary"
	"fmt"

	"github.com/bpowers/rpak/asset"
)

const (
	// magic is "RPak" in file byte order.
	magic   = 0x6b615052
	Version = 8

	fileHeaderSize    = 0x40
	patchHeaderSize   = 0x20
	pageHeaderSize    = 0x10
	ptrSize           = 8
	assetHeaderSize   = 0x50
	dependentSize     = 4
	pageFlagCompressed = 1 << 0

	// NullIndex marks a PagePtr that points nowhere.
	NullIndex = ^uint32(0)
)

type fileHeader struct {
	magic            uint32
	version          uint16
	flags            uint16
	createdTime      uint64
	crc              uint64
	compressedSize   uint64
	decompressedSize uint64

	starpakPathsSize    uint16
	optStarpakPathsSize uint16
	pageCount           uint16
	patchIndex          uint16

	pointerCount    uint32
	assetCount      uint32
	guidDescCount   uint32
	dependentsCount uint32
}

func (h *fileHeader) MarshalTo(b []byte) error {
	if len(b) < fileHeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), fileHeaderSize)
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.magic)
	le.PutUint16(b[4:], h.version)
	le.PutUint16(b[6:], h.flags)
	le.PutUint64(b[8:], h.createdTime)
	le.PutUint64(b[16:], h.crc)
	le.PutUint64(b[24:], h.compressedSize)
	le.PutUint64(b[32:], h.decompressedSize)
	le.PutUint16(b[40:], h.starpakPathsSize)
	le.PutUint16(b[42:], h.optStarpakPathsSize)
	le.PutUint16(b[44:], h.pageCount)
	le.PutUint16(b[46:], h.patchIndex)
	le.PutUint32(b[48:], h.pointerCount)
	le.PutUint32(b[52:], h.assetCount)
	le.PutUint32(b[56:], h.guidDescCount)
	le.PutUint32(b[60:], h.dependentsCount)
	return nil
}

func (h *fileHeader) UnmarshalBytes(b []byte) error {
	if len(b) < fileHeaderSize {
		return dataErrf(0, ErrTruncated, "file header needs %d bytes, have %d", fileHeaderSize, len(b))
	}
	le := binary.LittleEndian
	h.magic = le.Uint32(b[0:])
	if h.magic != magic {
		return dataErrf(0, ErrBadMagic, "magic %08x", h.magic)
	}
	h.version = le.Uint16(b[4:])
	if h.version != Version {
		return dataErrf(4, ErrUnsupportedVersion, "this library reads v%d paks; found v%d", Version, h.version)
	}
	h.flags = le.Uint16(b[6:])
	h.createdTime = le.Uint64(b[8:])
	h.crc = le.Uint64(b[16:])
	h.compressedSize = le.Uint64(b[24:])
	h.decompressedSize = le.Uint64(b[32:])
	h.starpakPathsSize = le.Uint16(b[40:])
	h.optStarpakPathsSize = le.Uint16(b[42:])
	h.pageCount = le.Uint16(b[44:])
	h.patchIndex = le.Uint16(b[46:])
	h.pointerCount = le.Uint32(b[48:])
	h.assetCount = le.Uint32(b[52:])
	h.guidDescCount = le.Uint32(b[56:])
	h.dependentsCount = le.Uint32(b[60:])
	return nil
}

// patchHeader follows the file header of a pak with a non-zero patch index.
type patchHeader struct {
	firstPageIndex       uint32
	commandCount         uint32
	baseDecompressedSize uint64
	literalSize          uint64
}

func (h *patchHeader) MarshalTo(b []byte) {
	_ = b[patchHeaderSize-1]
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.firstPageIndex)
	le.PutUint32(b[4:], h.commandCount)
	le.PutUint64(b[8:], h.baseDecompressedSize)
	le.PutUint64(b[16:], h.literalSize)
	le.PutUint64(b[24:], 0)
}

func (h *patchHeader) UnmarshalBytes(b []byte) {
	_ = b[patchHeaderSize-1]
	le := binary.LittleEndian
	h.firstPageIndex = le.Uint32(b[0:])
	h.commandCount = le.Uint32(b[4:])
	h.baseDecompressedSize = le.Uint64(b[8:])
	h.literalSize = le.Uint64(b[16:])
}

type pageHeader struct {
	flags          uint32
	alignment      uint32
	dataSize       uint32
	compressedSize uint32
}

func (h pageHeader) compressed() bool {
	return h.flags&pageFlagCompressed != 0
}

func appendPageHeader(b []byte, h pageHeader) []byte {
	le := binary.LittleEndian
	b = le.AppendUint32(b, h.flags)
	b = le.AppendUint32(b, h.alignment)
	b = le.AppendUint32(b, h.dataSize)
	return le.AppendUint32(b, h.compressedSize)
}

func readPageHeader(b []byte) pageHeader {
	_ = b[pageHeaderSize-1]
	le := binary.LittleEndian
	return pageHeader{
		flags:          le.Uint32(b[0:]),
		alignment:      le.Uint32(b[4:]),
		dataSize:       le.Uint32(b[8:]),
		compressedSize: le.Uint32(b[12:]),
	}
}

// AssetHeader is the fixed-size descriptor of one asset.
type AssetHeader struct {
	GUID uint64
	// Name points at a NUL terminated asset name, or is null.
	Name PagePtr
	Head PagePtr
	CPU  PagePtr

	StarpakOffset    uint64
	OptStarpakOffset uint64

	PageEnd       uint16
	RemainingDeps uint16

	DependentsIndex   uint32
	DependenciesIndex uint32
	DependentsCount   uint32
	DependenciesCount uint32

	HeaderSize   uint32
	VersionMajor uint16
	VersionMinor uint16
	Type         asset.Tag
}

func appendAssetHeader(b []byte, h *AssetHeader) []byte {
	le := binary.LittleEndian
	b = le.AppendUint64(b, h.GUID)
	b = appendPtr(b, h.Name)
	b = appendPtr(b, h.Head)
	b = appendPtr(b, h.CPU)
	b = le.AppendUint64(b, h.StarpakOffset)
	b = le.AppendUint64(b, h.OptStarpakOffset)
	b = le.AppendUint16(b, h.PageEnd)
	b = le.AppendUint16(b, h.RemainingDeps)
	b = le.AppendUint32(b, h.DependentsIndex)
	b = le.AppendUint32(b, h.DependenciesIndex)
	b = le.AppendUint32(b, h.DependentsCount)
	b = le.AppendUint32(b, h.DependenciesCount)
	b = le.AppendUint32(b, h.HeaderSize)
	b = le.AppendUint16(b, h.VersionMajor)
	b = le.AppendUint16(b, h.VersionMinor)
	return append(b, h.Type[:]...)
}

func readAssetHeader(b []byte) AssetHeader {
	_ = b[assetHeaderSize-1]
	le := binary.LittleEndian
	h := AssetHeader{
		GUID:              le.Uint64(b[0:]),
		Name:              readPtr(b[8:]),
		Head:              readPtr(b[16:]),
		CPU:               readPtr(b[24:]),
		StarpakOffset:     le.Uint64(b[32:]),
		OptStarpakOffset:  le.Uint64(b[40:]),
		PageEnd:           le.Uint16(b[48:]),
		RemainingDeps:     le.Uint16(b[50:]),
		DependentsIndex:   le.Uint32(b[52:]),
		DependenciesIndex: le.Uint32(b[56:]),
		DependentsCount:   le.Uint32(b[60:]),
		DependenciesCount: le.Uint32(b[64:]),
		HeaderSize:        le.Uint32(b[68:]),
		VersionMajor:      le.Uint16(b[72:]),
		VersionMinor:      le.Uint16(b[74:]),
	}
	copy(h.Type[:], b[76:80])
	return h
}

func appendPtr(b []byte, p PagePtr) []byte {
	b = binary.LittleEndian.AppendUint32(b, p.Index)
	return binary.LittleEndian.AppendUint32(b, p.Offset)
}

func readPtr(b []byte) PagePtr {
	_ = b[ptrSize-1]
	return PagePtr{
		Index:  binary.LittleEndian.Uint32(b[0:]),
		Offset: binary.LittleEndian.Uint32(b[4:]),
	}
}
