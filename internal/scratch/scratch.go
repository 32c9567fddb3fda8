// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package scratch provides a fixed set of large reusable byte buffers for
// transient I/O such as streaming patch data off disk.
//
// The pool never blocks: it is sized up front for the worst-case number of
// concurrent claims, and running out is reported as ErrExhausted.
package scratch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bpowers/rpak/internal/bitset"
	"github.com/bpowers/rpak/internal/zero"
)

const (
	DefaultCount = 4
	DefaultSize  = 8 * 1024 * 1024
)

var ErrExhausted = errors.New("scratch: every buffer is claimed")

// Buffer is a claimed scratch buffer. Data must not be retained after the
// buffer is released.
type Buffer struct {
	Data  []byte
	index int
}

type Pool struct {
	mu      sync.Mutex
	buffers [][]byte
	free    []int
	claimed *bitset.Bitset
}

// New allocates count buffers of size bytes each.
func New(count, size int) *Pool {
	if count <= 0 {
		count = DefaultCount
	}
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		buffers: make([][]byte, count),
		free:    make([]int, 0, count),
		claimed: bitset.New(count),
	}
	for i := range p.buffers {
		p.buffers[i] = make([]byte, size)
	}
	// push in reverse so buffer 0 is claimed first
	for i := count - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return p
}

// Claim pops a free buffer.
func (p *Pool) Claim() (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return Buffer{}, fmt.Errorf("claim of %d-buffer pool: %w", len(p.buffers), ErrExhausted)
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.claimed.Set(i)
	return Buffer{Data: p.buffers[i], index: i}, nil
}

// Release zeroes the buffer and returns it to the pool.
func (p *Pool) Release(b Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.Data == nil || !p.claimed.IsSet(b.index) {
		panic(fmt.Errorf("invariant broken: release of unclaimed scratch buffer %d", b.index))
	}
	zero.Bytes(p.buffers[b.index])
	p.claimed.Clear(b.index)
	p.free = append(p.free, b.index)
}

// Available reports how many buffers can currently be claimed.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// BufferSize is the length of every buffer in the pool.
func (p *Pool) BufferSize() int {
	return len(p.buffers[0])
}
