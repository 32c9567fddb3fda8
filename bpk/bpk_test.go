// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bpk

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/rpak/asset"
)

type testFile struct {
	lo, hi   uint32
	flags    uint32
	data     []byte
	compress bool
}

func testFiles() []testFile {
	noise := make([]byte, 5000)
	rand.New(rand.NewSource(3)).Read(noise)
	mixed := append(bytes.Repeat([]byte("abcd"), 1000), noise...)
	return []testFile{
		{lo: 1, hi: 2, data: bytes.Repeat([]byte("static mesh "), 500), compress: true},
		{lo: 3, hi: 4, data: noise, compress: true},
		{lo: 5, hi: 6, data: mixed, compress: true},
		{lo: 7, hi: 8, data: []byte("raw file"), compress: false},
		{lo: 9, hi: 10, flags: FlagSkipHeader, data: append([]byte{0xde, 0xad}, bytes.Repeat([]byte{1}, 3000)...), compress: true},
		{lo: 11, hi: 12, data: nil},
	}
}

func writeTestBPK(t *testing.T, maxChunk int) string {
	t.Helper()
	w := NewWriter(maxChunk)
	for _, f := range testFiles() {
		require.NoError(t, w.AddFile(f.lo, f.hi, f.flags, f.data, f.compress))
	}
	path := filepath.Join(t.TempDir(), "static.bpk")
	require.NoError(t, w.WriteFile(path))
	return path
}

func TestReadFiles(t *testing.T) {
	for _, maxChunk := range []int{0, 1024, 777} {
		path := writeTestBPK(t, maxChunk)
		c, err := Open(path)
		require.NoError(t, err)

		files := testFiles()
		require.Equal(t, len(files), c.Len())
		for i, f := range files {
			rec := c.File(i)
			require.Equal(t, asset.GUIDFromHalves(f.lo, f.hi), rec.GUID())
			got, err := c.ReadFile(i)
			require.NoError(t, err)
			want := f.data
			if f.flags&FlagSkipHeader != 0 {
				want = want[2:]
			}
			require.True(t, bytes.Equal(want, got), "file %d with %d byte chunks", i, maxChunk)
		}
		require.True(t, c.File(0).Compressed())
		require.False(t, c.File(1).Compressed())
		require.False(t, c.File(3).Compressed())

		_, err = c.ReadFile(len(files))
		require.ErrorIs(t, err, ErrCorrupt)
		require.NoError(t, c.Close())
	}
}

func TestAssets(t *testing.T) {
	c, err := Open(writeTestBPK(t, 0))
	require.NoError(t, err)
	defer c.Close()

	assets := c.Assets()
	require.Len(t, assets, len(testFiles()))
	for i, a := range assets {
		require.Equal(t, FileType, a.Type)
		require.Equal(t, i, a.Index)
		require.Equal(t, asset.Container(c), a.Container)
	}
	require.Equal(t, asset.GUID(0x0000000200000001), assets[0].GUID)
	require.Equal(t, asset.ContainerBPK, c.Kind())
	require.Equal(t, "static.bpk", c.FileName())
}

func TestBigEndianHeader(t *testing.T) {
	w := NewWriter(4096)
	require.NoError(t, w.AddFile(0xaabbccdd, 0x11223344, 0, []byte("x"), false))
	b := w.Bytes()
	require.Equal(t, []byte("XBAR"), b[:4])
	require.Equal(t, []byte{0, 0, 0, 6}, b[4:8])
	require.Equal(t, uint32(4096), binary.BigEndian.Uint32(b[16:]))
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, b[24:28])
}

func TestOpenMalformed(t *testing.T) {
	good := NewWriter(0)
	require.NoError(t, good.AddFile(1, 2, 0, bytes.Repeat([]byte("z"), 100), true))
	data := good.Bytes()
	dir := t.TempDir()

	for _, tt := range []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"magic", func(b []byte) []byte { b[0] = 'Y'; return b }, ErrBadMagic},
		{"version", func(b []byte) []byte { b[7] = 5; return b }, ErrUnsupportedVersion},
		{"short", func(b []byte) []byte { return b[:10] }, ErrTruncated},
		{"data end", func(b []byte) []byte { binary.BigEndian.PutUint32(b[24+24:], 1<<20); return b }, ErrCorrupt},
		{"chunk start", func(b []byte) []byte { binary.BigEndian.PutUint32(b[24+12:], 9); return b }, ErrCorrupt},
		{"zero chunk size", func(b []byte) []byte { binary.BigEndian.PutUint32(b[16:], 0); return b }, ErrCorrupt},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".bpk")
			require.NoError(t, os.WriteFile(path, tt.mutate(append([]byte(nil), data...)), 0o644))
			_, err := Open(path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

// rawBPK builds a single file bpk with no chunk entries around stored.
func rawBPK(decompressed uint32, stored []byte) []byte {
	be := binary.BigEndian
	b := make([]byte, headerSize+tableHeaderSize+fileRecordSize)
	be.PutUint32(b[0:], magic)
	be.PutUint32(b[4:], Version)
	be.PutUint32(b[8:], 1)
	be.PutUint32(b[12:], 0)
	be.PutUint32(b[16:], 0x10000)
	be.PutUint32(b[20:], uint32(len(b)))
	rec := b[headerSize+tableHeaderSize:]
	be.PutUint32(rec[16:], decompressed)
	be.PutUint32(rec[24:], uint32(len(stored)))
	return append(b, stored...)
}

func TestOpenHugeDecompressedSize(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		name   string
		stored []byte
	}{
		{"no stored data", nil},
		{"no chunks", []byte{1, 2, 3, 4}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".bpk")
			require.NoError(t, os.WriteFile(path, rawBPK(0xFFFF0001, tt.stored), 0o644))
			c, err := Open(path)
			if c != nil {
				_ = c.Close()
			}
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}

	// an empty file needs neither chunks nor stored bytes
	path := filepath.Join(dir, "empty.bpk")
	require.NoError(t, os.WriteFile(path, rawBPK(0, nil), 0o644))
	c, err := Open(path)
	require.NoError(t, err)
	got, err := c.ReadFile(0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, c.Close())
}
