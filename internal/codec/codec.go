// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package codec wraps the block compressors used by pak pages, bpk chunks
// and the scratch chunk store.
package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies a block compression algorithm.
type Tag uint8

const (
	None Tag = 0
	LZ4  Tag = 1
	Zstd Tag = 2
)

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseTag parses the String form of a Tag.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// ErrIncompressible is returned when compressed output would not be smaller
// than its input; callers store the block raw instead.
var ErrIncompressible = errors.New("data is incompressible")

// zstd encoders and decoders are safe for concurrent use, so one of each is
// shared by the whole process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with the given algorithm. For None the input is
// returned unchanged.
func Compress(data []byte, tag Tag) ([]byte, error) {
	switch tag {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported codec: %d", tag)
	}
}

// Decompress reverses Compress. The output length must equal size exactly.
func Decompress(compressed []byte, tag Tag, size int) ([]byte, error) {
	return DecompressInto(make([]byte, size), compressed, tag)
}

// DecompressInto decompresses into dst, which must be exactly the
// uncompressed size. It returns dst.
func DecompressInto(dst, compressed []byte, tag Tag) ([]byte, error) {
	switch tag {
	case None:
		if len(compressed) != len(dst) {
			return nil, fmt.Errorf("raw block: size %d does not match expected %d", len(compressed), len(dst))
		}
		copy(dst, compressed)
		return dst, nil
	case LZ4:
		n, err := lz4.UncompressBlock(compressed, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != len(dst) {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, len(dst))
		}
		return dst, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(compressed, dst[:0])
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != len(dst) {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), len(dst))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input
	if n == 0 || n >= len(data) {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, ErrIncompressible
	}
	return out, nil
}
