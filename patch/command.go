// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package patch

import (
	"encoding/binary"
	"fmt"
)

// Kind selects the operation a Command performs.
type Kind uint8

const (
	// CopySource skips Skip source bytes, then copies Count bytes from the
	// source to the destination.
	CopySource Kind = iota
	// SkipSource advances the source cursor by Skip+Count bytes without
	// writing anything.
	SkipSource
	// CopyLiteral discards Skip literal bytes, then copies Count literal
	// bytes to the destination.
	CopyLiteral
	// CopyLiteralChunked is CopyLiteral, with each step additionally bounded
	// by the chunk window.
	CopyLiteralChunked
	// LiteralByteInsert writes one literal byte, then behaves as CopySource.
	LiteralByteInsert
	// LiteralByteReplace writes one literal byte over one source byte, then
	// behaves as CopySource.
	LiteralByteReplace
	// LiteralTwoByte writes two literal bytes over two source bytes, then
	// behaves as CopySource.
	LiteralTwoByte

	numKinds
)

var kindNames = [numKinds]string{
	"copy-source",
	"skip-source",
	"copy-literal",
	"copy-literal-chunked",
	"literal-byte-insert",
	"literal-byte-replace",
	"literal-two-byte",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// CommandSize is the encoded size of a Command.
const CommandSize = 12

// Command is one delta instruction.
type Command struct {
	Kind  Kind
	Skip  uint32
	Count uint32
}

// literalBytes is the number of literal bytes c consumes.
func (c Command) literalBytes() int64 {
	switch c.Kind {
	case CopyLiteral, CopyLiteralChunked:
		return int64(c.Skip) + int64(c.Count)
	case LiteralByteInsert, LiteralByteReplace:
		return 1
	case LiteralTwoByte:
		return 2
	}
	return 0
}

// LiteralSize is the number of literal input bytes cmds consume in total.
func LiteralSize(cmds []Command) int64 {
	var n int64
	for _, c := range cmds {
		n += c.literalBytes()
	}
	return n
}

// OutputSize is the number of destination bytes cmds produce.
func OutputSize(cmds []Command) int64 {
	var n int64
	for _, c := range cmds {
		switch c.Kind {
		case SkipSource:
		case CopyLiteral, CopyLiteralChunked:
			n += int64(c.Count)
		default:
			n += c.literalBytes() + int64(c.Count)
		}
	}
	return n
}

// AppendCommands encodes cmds onto b.
func AppendCommands(b []byte, cmds []Command) []byte {
	for _, c := range cmds {
		b = append(b, byte(c.Kind), 0, 0, 0)
		b = binary.LittleEndian.AppendUint32(b, c.Skip)
		b = binary.LittleEndian.AppendUint32(b, c.Count)
	}
	return b
}

// ParseCommands decodes count commands from b.
func ParseCommands(b []byte, count int) ([]Command, error) {
	if len(b) < count*CommandSize {
		return nil, fmt.Errorf("patch: command table needs %d bytes, have %d: %w", count*CommandSize, len(b), ErrTruncatedPatch)
	}
	cmds := make([]Command, count)
	for i := range cmds {
		rec := b[i*CommandSize : (i+1)*CommandSize]
		k := Kind(rec[0])
		if k >= numKinds {
			return nil, fmt.Errorf("patch: command %d: %w (%d)", i, ErrUnknownCommand, rec[0])
		}
		cmds[i] = Command{
			Kind:  k,
			Skip:  binary.LittleEndian.Uint32(rec[4:8]),
			Count: binary.LittleEndian.Uint32(rec[8:12]),
		}
	}
	return cmds, nil
}
