// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("rpak page data "), 512)

	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			packed, err := Compress(compressible, tag)
			require.NoError(t, err)
			if tag != None {
				require.Less(t, len(packed), len(compressible))
			}
			out, err := Decompress(packed, tag, len(compressible))
			require.NoError(t, err)
			require.Equal(t, compressible, out)
		})
	}
}

func TestIncompressible(t *testing.T) {
	noise := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(noise)

	for _, tag := range []Tag{LZ4, Zstd} {
		_, err := Compress(noise, tag)
		require.ErrorIs(t, err, ErrIncompressible, tag.String())
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	_, err := Decompress([]byte("abc"), None, 4)
	require.Error(t, err)

	packed, err := Compress(bytes.Repeat([]byte{7}, 1000), LZ4)
	require.NoError(t, err)
	_, err = Decompress(packed, LZ4, 999)
	require.Error(t, err)
}

func TestParseTag(t *testing.T) {
	for _, tag := range []Tag{None, LZ4, Zstd} {
		parsed, err := ParseTag(tag.String())
		require.NoError(t, err)
		require.Equal(t, tag, parsed)
	}
	_, err := ParseTag("oodle")
	require.Error(t, err)
	require.Equal(t, "unknown(9)", Tag(9).String())
}
