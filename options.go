// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/config"
	"github.com/bpowers/rpak/internal/scratch"
)

// LoaderOption configures a Loader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	logger     *slog.Logger
	scratch    *scratch.Pool
	chunkCodec codec.Tag
}

// WithLogger sets a logger for load diagnostics. If not provided, no
// logging output will be produced.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(o *loaderOptions) {
		o.logger = logger
	}
}

// WithScratch shares p between every pak the loader opens. Without it
// each patched pak reads its literal stream through a buffer of its own.
func WithScratch(p *scratch.Pool) LoaderOption {
	return func(o *loaderOptions) {
		o.scratch = p
	}
}

// WithChunkCodec selects how previous revisions are held in memory while
// a patch is replayed.
func WithChunkCodec(t codec.Tag) LoaderOption {
	return func(o *loaderOptions) {
		o.chunkCodec = t
	}
}

// WithLoaderConfig applies the scratch and codec settings of c.
func WithLoaderConfig(c *config.Config) LoaderOption {
	return func(o *loaderOptions) {
		o.scratch = scratch.New(c.ScratchBuffers, c.ScratchBufferSize)
		if t, err := c.Codec(); err == nil {
			o.chunkCodec = t
		}
	}
}

// ExportOption configures an Exporter.
type ExportOption func(*exportOptions)

type exportOptions struct {
	logger    *slog.Logger
	threads   int
	fullPaths bool
	settings  map[asset.Tag]int
}

func newExportOptions(opts []ExportOption) exportOptions {
	o := exportOptions{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		threads:  runtime.NumCPU(),
		settings: make(map[asset.Tag]int),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.threads < 1 {
		o.threads = 1
	}
	return o
}

// WithExportLogger sets a logger for export progress. If not provided, no
// logging output will be produced.
func WithExportLogger(logger *slog.Logger) ExportOption {
	return func(o *exportOptions) {
		o.logger = logger
	}
}

// WithExportThreads bounds how many assets ExportAll and ExportList write
// concurrently.
func WithExportThreads(n int) ExportOption {
	return func(o *exportOptions) {
		o.threads = n
	}
}

// WithFullPaths lays exported files out by their logical asset path
// instead of by binding prefix.
func WithFullPaths(on bool) ExportOption {
	return func(o *exportOptions) {
		o.fullPaths = on
	}
}

// WithExportSetting overrides the binding's default export setting for t.
func WithExportSetting(t asset.Tag, setting int) ExportOption {
	return func(o *exportOptions) {
		o.settings[t] = setting
	}
}

// WithExportConfig applies the thread count, path layout and per-type
// setting overrides of c.
func WithExportConfig(c *config.Config) ExportOption {
	return func(o *exportOptions) {
		o.threads = c.ExportThreads
		o.fullPaths = c.FullPaths
		for name, setting := range c.ExportSettings {
			t, err := asset.ParseTag(name)
			if err != nil {
				continue
			}
			o.settings[t] = setting
		}
	}
}
