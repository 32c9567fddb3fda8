// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/rpak/asset"
)

func TestFileHeader_RoundTrip(t *testing.T) {
	origH := fileHeader{
		magic:               magic,
		version:             Version,
		createdTime:         1234,
		crc:                 0xfeedface,
		compressedSize:      4096,
		decompressedSize:    8192,
		starpakPathsSize:    17,
		optStarpakPathsSize: 3,
		pageCount:           9,
		patchIndex:          2,
		pointerCount:        100,
		assetCount:          7,
		guidDescCount:       12,
		dependentsCount:     4,
	}

	// this should be an error
	assert.Error(t, origH.MarshalTo(nil))

	var newH fileHeader
	headerBytes := make([]byte, fileHeaderSize)
	// missing magic number
	err := newH.UnmarshalBytes(headerBytes)
	require.ErrorIs(t, err, ErrBadMagic)

	require.NoError(t, origH.MarshalTo(headerBytes))
	require.ErrorIs(t, newH.UnmarshalBytes(nil), ErrTruncated)
	require.NoError(t, newH.UnmarshalBytes(headerBytes))
	assert.Equal(t, origH, newH)

	// deserializing an unknown version is an error
	origH.version = 7
	require.NoError(t, origH.MarshalTo(headerBytes))
	err = newH.UnmarshalBytes(headerBytes)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	var de *DataError
	require.True(t, errors.As(err, &de))
	require.Equal(t, int64(4), de.Off)
}

func TestPatchHeader_RoundTrip(t *testing.T) {
	orig := patchHeader{firstPageIndex: 3, commandCount: 40, baseDecompressedSize: 1 << 33, literalSize: 77}
	var b [patchHeaderSize]byte
	orig.MarshalTo(b[:])
	var got patchHeader
	got.UnmarshalBytes(b[:])
	require.Equal(t, orig, got)
}

func TestAssetHeader_RoundTrip(t *testing.T) {
	orig := AssetHeader{
		GUID:              0x0123456789abcdef,
		Name:              PagePtr{4, 16},
		Head:              PagePtr{1, 0},
		CPU:               Null,
		StarpakOffset:     StarpakRef{PathIndex: 2, Offset: 0x3000}.Encode(),
		OptStarpakOffset:  NoStarpak,
		PageEnd:           5,
		RemainingDeps:     2,
		DependentsIndex:   1,
		DependenciesIndex: 3,
		DependentsCount:   4,
		DependenciesCount: 2,
		HeaderSize:        0x68,
		VersionMajor:      9,
		VersionMinor:      1,
		Type:              asset.MustTag("txtr"),
	}
	b := appendAssetHeader(nil, &orig)
	require.Len(t, b, assetHeaderSize)
	require.Equal(t, orig, readAssetHeader(b))
}

func TestStarpakRef(t *testing.T) {
	ref := StarpakRef{PathIndex: 5, Offset: 0x12345000}
	got, ok := DecodeStarpak(ref.Encode())
	require.True(t, ok)
	require.Equal(t, ref, got)

	_, ok = DecodeStarpak(NoStarpak)
	require.False(t, ok)
}
