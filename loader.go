// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/bpk"
	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/scratch"
	"github.com/bpowers/rpak/pakfile"
	"github.com/bpowers/rpak/patch"
)

// ContainerLoader opens a file type the loader has no built-in support
// for, such as .mbnk audio banks. The returned container must own the
// returned assets.
type ContainerLoader func(ctx context.Context, path string) (asset.Container, []*asset.Asset, error)

// Loader fills a Registry from container files. Load calls are serialized;
// lookups on the registry stay available while a load runs.
type Loader struct {
	reg     *asset.Registry
	logger  *slog.Logger
	scratch *scratch.Pool
	codec   codec.Tag

	mu      sync.Mutex
	loaders map[string]ContainerLoader

	done  atomic.Int64
	total atomic.Int64
}

func NewLoader(reg *asset.Registry, opts ...LoaderOption) *Loader {
	o := loaderOptions{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		chunkCodec: codec.LZ4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader{
		reg:     reg,
		logger:  o.logger,
		scratch: o.scratch,
		codec:   o.chunkCodec,
		loaders: make(map[string]ContainerLoader),
	}
}

func (l *Loader) Registry() *asset.Registry {
	return l.reg
}

// RegisterContainer routes files with extension ext (".mbnk") to fn.
func (l *Loader) RegisterContainer(ext string, fn ContainerLoader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaders[normalizeExt(ext)] = fn
}

// Progress reports how many files of the current or last batch have been
// processed.
func (l *Loader) Progress() (done, total int) {
	return int(l.done.Load()), int(l.total.Load())
}

// LoadAsync runs Load on a new goroutine. The report is delivered on the
// returned channel, which is then closed.
func (l *Loader) LoadAsync(ctx context.Context, paths []string) <-chan *LoadReport {
	ch := make(chan *LoadReport, 1)
	go func() {
		defer close(ch)
		ch <- l.Load(ctx, paths)
	}()
	return ch
}

// Load opens every file in paths and registers its assets. Failures are
// collected in the report and do not stop the batch. Files load grouped by
// kind: paks, audio banks, models, bpk containers, then registered kinds,
// keeping the requested order within a kind. Binding load
// callbacks run as each container is registered; post-load callbacks run
// once over all assets of the batch at the end.
func (l *Loader) Load(ctx context.Context, paths []string) *LoadReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.done.Store(0)
	l.total.Store(int64(len(paths)))
	report := &LoadReport{}
	paths = partition(paths)

	for _, path := range paths {
		if normalizeExt(filepath.Ext(path)) == ".rpak" {
			l.readPatchMaster(ctx, path, report)
			break
		}
	}

	var batch []*asset.Asset
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.fail(path, err)
			break
		}
		batch = append(batch, l.loadFile(ctx, path, report)...)
		l.done.Add(1)
	}

	for _, a := range batch {
		b, err := l.reg.Binding(a.Type)
		if err != nil {
			continue
		}
		if err := b.Handler.PostLoad(ctx, a); err != nil {
			report.fail(a.Container.FileName(), fmt.Errorf("post-load %s %s: %w", a.Type, a.DisplayName(), err))
		}
	}

	l.logger.Info("load finished",
		"files", len(paths),
		"loaded", len(report.Loaded),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors),
		"assets", report.Assets)
	return report
}

func (l *Loader) loadFile(ctx context.Context, path string, report *LoadReport) []*asset.Asset {
	ext := normalizeExt(filepath.Ext(path))
	switch ext {
	case ".rpak":
		return l.loadPak(ctx, path, report)
	case ".bpk":
		c, err := bpk.Open(path, bpk.WithLogger(l.logger))
		if err != nil {
			report.fail(path, err)
			return nil
		}
		return l.register(ctx, path, c, c.Assets(), report)
	case ".mdl":
		f, err := OpenLoose(path)
		if err != nil {
			report.fail(path, err)
			return nil
		}
		return l.register(ctx, path, f, f.Assets(), report)
	}

	fn, ok := l.loaders[ext]
	if !ok {
		if ext == ".mbnk" {
			report.fail(path, fmt.Errorf("%w for %s", ErrNoLoader, ext))
		} else {
			report.fail(path, fmt.Errorf("%w %q", ErrUnsupportedFile, ext))
		}
		return nil
	}
	c, assets, err := fn(ctx, path)
	if err != nil {
		report.fail(path, err)
		return nil
	}
	return l.register(ctx, path, c, assets, report)
}

func (l *Loader) loadPak(ctx context.Context, path string, report *LoadReport) []*asset.Asset {
	path = l.resolve(path)
	p, err := pakfile.Open(ctx, path, l.pakOptions()...)
	if err != nil {
		report.fail(path, err)
		return nil
	}
	assets, err := p.Assets()
	if err != nil {
		report.fail(path, err)
		if err := p.Close(); err != nil {
			l.logger.Warn("close failed", "path", path, "err", err)
		}
		return nil
	}
	if !l.reg.MarkLoaded(p.CRC()) {
		l.logger.Info("pak already loaded", "path", path, "crc", fmt.Sprintf("%016x", p.CRC()))
		report.Skipped = append(report.Skipped, path)
		if err := p.Close(); err != nil {
			report.fail(path, err)
		}
		return nil
	}
	l.logger.Debug("opened pak",
		"path", path,
		"revision", p.PatchIndex(),
		"pages", p.PageCount(),
		"assets", len(assets))
	return l.register(ctx, path, p, assets, report)
}

func (l *Loader) pakOptions() []pakfile.Option {
	opts := []pakfile.Option{
		pakfile.WithLogger(l.logger),
		pakfile.WithChunkCodec(l.codec),
	}
	if l.scratch != nil {
		opts = append(opts, pakfile.WithScratch(l.scratch))
	}
	return opts
}

// readPatchMaster loads the revision list beside the first pak of a batch,
// replacing the previous batch's list.
func (l *Loader) readPatchMaster(ctx context.Context, firstPak string, report *LoadReport) {
	l.reg.ResetPatches()
	path := filepath.Join(filepath.Dir(firstPak), patch.MasterName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("no patch master", "dir", filepath.Dir(firstPak))
		} else {
			report.fail(path, err)
		}
		return
	}
	p, err := pakfile.Open(ctx, path, l.pakOptions()...)
	if err != nil {
		report.fail(path, err)
		return
	}
	defer func() {
		if err := p.Close(); err != nil {
			l.logger.Warn("close failed", "path", path, "err", err)
		}
	}()
	if err := pakfile.ReadPatchMaster(p, l.reg.Manifest()); err != nil {
		report.fail(path, err)
		return
	}
	l.logger.Debug("read patch master", "path", path, "entries", l.reg.Manifest().Len())
}

// resolve substitutes the newest revision the patch master lists for path.
// A listed revision with no file on disk falls back to path.
func (l *Loader) resolve(path string) string {
	resolved := l.reg.Manifest().Resolve(path)
	if resolved == path {
		return path
	}
	if _, err := os.Stat(resolved); err != nil {
		l.logger.Warn("patch revision missing, loading unpatched pak", "path", path, "revision", resolved)
		return path
	}
	return resolved
}

func (l *Loader) register(ctx context.Context, path string, c asset.Container, assets []*asset.Asset, report *LoadReport) []*asset.Asset {
	l.reg.AddContainer(c)
	added := make([]*asset.Asset, 0, len(assets))
	for _, a := range assets {
		if err := l.reg.Add(a); err != nil {
			report.fail(path, err)
			continue
		}
		added = append(added, a)
	}
	report.Loaded = append(report.Loaded, path)
	report.Assets += len(added)

	for _, a := range added {
		b, err := l.reg.Binding(a.Type)
		if err != nil {
			l.logger.Debug("no binding", "type", a.Type.String(), "asset", a.DisplayName())
			continue
		}
		if err := b.Handler.Load(ctx, a); err != nil {
			report.fail(path, fmt.Errorf("load %s %s: %w", a.Type, a.DisplayName(), err))
		}
	}
	return added
}

// loadOrder ranks the built-in file kinds; every other extension loads
// after them.
var loadOrder = map[string]int{".rpak": 0, ".mbnk": 1, ".mdl": 2, ".bpk": 3}

// partition returns paths grouped by kind in load order, keeping the
// requested order within each kind.
func partition(paths []string) []string {
	rank := func(p string) int {
		if r, ok := loadOrder[normalizeExt(filepath.Ext(p))]; ok {
			return r
		}
		return len(loadOrder)
	}
	out := slices.Clone(paths)
	slices.SortStableFunc(out, func(a, b string) int { return rank(a) - rank(b) })
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return ext
}
