// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"io"
	"log/slog"

	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/scratch"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	scratch    *scratch.Pool
	chunkCodec codec.Tag
	skipCRC    bool
	onPage     func(loaded, total int)
}

func newOptions(opts []Option) options {
	o := options{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		chunkCodec: codec.LZ4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets a logger for load diagnostics. If not provided, no
// logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithScratch supplies the buffer pool the patch literal stream is read
// through.
func WithScratch(p *scratch.Pool) Option {
	return func(o *options) {
		o.scratch = p
	}
}

// WithChunkCodec selects how the previous revision's pages are compressed
// while a patch is applied.
func WithChunkCodec(t codec.Tag) Option {
	return func(o *options) {
		o.chunkCodec = t
	}
}

// WithoutChecksum skips CRC verification.
func WithoutChecksum() Option {
	return func(o *options) {
		o.skipCRC = true
	}
}

// WithPageCallback registers fn to be called after every page arrives.
func WithPageCallback(fn func(loaded, total int)) Option {
	return func(o *options) {
		o.onPage = fn
	}
}
