// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package patch

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrTruncatedPatch   = errors.New("patch stream ended before all commands completed")
	ErrTrailingLiteral  = errors.New("literal bytes remain after the last command")
	ErrUnknownCommand   = errors.New("unknown patch command")
	ErrOverflow         = errors.New("patch writes past the end of the destination")
	ErrSourceExhausted  = errors.New("patch reads past the end of the source")
	ErrReplayerFinished = errors.New("replayer already closed")
)

// ChunkWindow bounds how many literal bytes a CopyLiteralChunked step
// consumes at once.
const ChunkWindow = 4 << 10

// Source is the decompressed previous revision a patch is applied to.
type Source interface {
	io.ReaderAt
	Size() int64
}

type state uint8

const (
	stateIdle state = iota
	stateCopySource
	stateSkipSource
	stateCopyLiteral
	stateCopyLiteralChunked
	stateByteInsert
	stateByteReplace
	stateTwoByte
	stateClosed
)

// cursor tracks the three stream positions and the remaining quota of the
// command in flight.
type cursor struct {
	src   int64
	dst   int
	lit   int64
	skip  uint32
	count uint32
}

// Replayer applies a command list to a Source, writing into a destination
// buffer. Literal bytes are fed through Write in any chunking; the output
// does not depend on how the input is split.
type Replayer struct {
	cmds  []Command
	next  int
	state state
	cur   cursor
	src   Source
	dst   []byte

	onProgress func(written int)
}

// ReplayOption configures a Replayer.
type ReplayOption func(*Replayer)

// WithProgress registers fn to be called with the destination high-water
// mark each time it advances.
func WithProgress(fn func(written int)) ReplayOption {
	return func(r *Replayer) {
		r.onProgress = fn
	}
}

// NewReplayer returns a Replayer that applies cmds to src, writing into dst.
func NewReplayer(cmds []Command, src Source, dst []byte, opts ...ReplayOption) *Replayer {
	r := &Replayer{
		cmds: cmds,
		src:  src,
		dst:  dst,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Written is the number of destination bytes produced so far.
func (r *Replayer) Written() int { return r.cur.dst }

// LiteralConsumed is the number of literal bytes consumed so far.
func (r *Replayer) LiteralConsumed() int64 { return r.cur.lit }

// Write feeds literal bytes to the replayer, running commands until either
// the input is exhausted or every command has completed. Source-only
// commands run without consuming input.
func (r *Replayer) Write(p []byte) (int, error) {
	if r.state == stateClosed {
		return 0, ErrReplayerFinished
	}
	n, err := r.run(p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, fmt.Errorf("patch: %d bytes after command %d: %w", len(p)-n, len(r.cmds), ErrTrailingLiteral)
	}
	return n, nil
}

// Close runs any remaining source-only commands and reports whether the
// patch completed.
func (r *Replayer) Close() error {
	if r.state == stateClosed {
		return nil
	}
	if _, err := r.run(nil); err != nil {
		return err
	}
	if r.state != stateIdle || r.next < len(r.cmds) {
		return fmt.Errorf("patch: stopped in command %d of %d (%s): %w",
			r.next, len(r.cmds), r.current().Kind, ErrTruncatedPatch)
	}
	r.state = stateClosed
	return nil
}

func (r *Replayer) current() Command {
	if r.next == 0 {
		return Command{}
	}
	return r.cmds[r.next-1]
}

func (r *Replayer) run(p []byte) (int, error) {
	consumed := 0
	for {
		if r.state == stateIdle {
			if r.next >= len(r.cmds) {
				return consumed, nil
			}
			r.begin(r.cmds[r.next])
			r.next++
		}
		before := r.cur.dst
		n, done, err := r.step(p[consumed:])
		consumed += n
		if err != nil {
			return consumed, fmt.Errorf("patch: command %d (%s): %w", r.next-1, r.current().Kind, err)
		}
		if r.cur.dst > before && r.onProgress != nil {
			r.onProgress(r.cur.dst)
		}
		if done {
			r.state = stateIdle
			continue
		}
		if consumed == len(p) {
			// starved: wait for the next Write
			return consumed, nil
		}
	}
}

func (r *Replayer) begin(c Command) {
	r.cur.skip = c.Skip
	r.cur.count = c.Count
	switch c.Kind {
	case CopySource:
		r.state = stateCopySource
	case SkipSource:
		r.state = stateSkipSource
	case CopyLiteral:
		r.state = stateCopyLiteral
	case CopyLiteralChunked:
		r.state = stateCopyLiteralChunked
	case LiteralByteInsert:
		r.state = stateByteInsert
	case LiteralByteReplace:
		r.state = stateByteReplace
	case LiteralTwoByte:
		r.state = stateTwoByte
	default:
		panic("invariant broken: unvalidated command kind")
	}
}

// step runs one transition of the current state. It returns the number of
// literal bytes consumed and whether the command completed.
func (r *Replayer) step(input []byte) (int, bool, error) {
	switch r.state {
	case stateCopySource:
		return 0, true, r.stepCopySource()
	case stateSkipSource:
		r.cur.src += int64(r.cur.skip) + int64(r.cur.count)
		r.cur.skip, r.cur.count = 0, 0
		return 0, true, nil
	case stateCopyLiteral:
		return r.stepCopyLiteral(input, len(input))
	case stateCopyLiteralChunked:
		return r.stepCopyLiteral(input, min(len(input), ChunkWindow))
	case stateByteInsert, stateByteReplace:
		return r.stepLiteralByte(input)
	case stateTwoByte:
		return r.stepTwoByte(input)
	}
	panic("invariant broken: step in idle or closed state")
}

func (r *Replayer) stepCopySource() error {
	r.cur.src += int64(r.cur.skip)
	r.cur.skip = 0
	n := int(r.cur.count)
	if n == 0 {
		return nil
	}
	if r.cur.dst+n > len(r.dst) {
		return ErrOverflow
	}
	if r.cur.src+int64(n) > r.src.Size() {
		return ErrSourceExhausted
	}
	if _, err := r.src.ReadAt(r.dst[r.cur.dst:r.cur.dst+n], r.cur.src); err != nil {
		return fmt.Errorf("source.ReadAt(%d): %w", r.cur.src, err)
	}
	r.cur.src += int64(n)
	r.cur.dst += n
	r.cur.count = 0
	return nil
}

func (r *Replayer) stepCopyLiteral(input []byte, avail int) (int, bool, error) {
	used := 0
	if r.cur.skip > 0 {
		n := min(avail, int(r.cur.skip))
		r.cur.skip -= uint32(n)
		used += n
	}
	if r.cur.skip == 0 && r.cur.count > 0 {
		n := min(avail-used, int(r.cur.count))
		if r.cur.dst+n > len(r.dst) {
			return used, false, ErrOverflow
		}
		copy(r.dst[r.cur.dst:], input[used:used+n])
		r.cur.dst += n
		r.cur.count -= uint32(n)
		used += n
	}
	r.cur.lit += int64(used)
	return used, r.cur.skip == 0 && r.cur.count == 0, nil
}

// stepLiteralByte writes a single literal byte and falls through into
// copying from the source.
func (r *Replayer) stepLiteralByte(input []byte) (int, bool, error) {
	if len(input) == 0 {
		return 0, false, nil
	}
	if r.cur.dst >= len(r.dst) {
		return 0, false, ErrOverflow
	}
	r.dst[r.cur.dst] = input[0]
	r.cur.dst++
	r.cur.lit++
	if r.state == stateByteReplace {
		r.cur.src++
	}
	r.state = stateCopySource
	return 1, true, r.stepCopySource()
}

// stepTwoByte writes two literal bytes over two source bytes. When only one
// input byte is available it writes that one and leaves the second to the
// single byte replace state.
func (r *Replayer) stepTwoByte(input []byte) (int, bool, error) {
	switch len(input) {
	case 0:
		return 0, false, nil
	case 1:
		if r.cur.dst >= len(r.dst) {
			return 0, false, ErrOverflow
		}
		r.dst[r.cur.dst] = input[0]
		r.cur.dst++
		r.cur.lit++
		r.cur.src++
		r.state = stateByteReplace
		return 1, false, nil
	}
	if r.cur.dst+2 > len(r.dst) {
		return 0, false, ErrOverflow
	}
	copy(r.dst[r.cur.dst:], input[:2])
	r.cur.dst += 2
	r.cur.lit += 2
	r.cur.src += 2
	r.state = stateCopySource
	return 2, true, r.stepCopySource()
}
