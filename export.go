// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/internal/workpool"
)

var ErrEscapesRoot = errors.New("export path escapes the export directory")

// Exporter writes assets below a root directory through their bindings'
// export callbacks.
type Exporter struct {
	reg    *asset.Registry
	root   string
	o      exportOptions
	logger *slog.Logger

	batchMu sync.Mutex

	dirMu sync.Mutex
	dirs  map[string]struct{}

	manifest manifest
}

func NewExporter(reg *asset.Registry, root string, opts ...ExportOption) *Exporter {
	o := newExportOptions(opts)
	return &Exporter{
		reg:    reg,
		root:   root,
		o:      o,
		logger: o.logger,
		dirs:   make(map[string]struct{}),
	}
}

func (e *Exporter) Root() string {
	return e.root
}

// Dependencies returns a and everything it transitively depends on, each
// asset after its own dependencies and a last. GUIDs that are not loaded
// are skipped, and each asset appears once even when the graph has
// cycles.
func (e *Exporter) Dependencies(a *asset.Asset) ([]*asset.Asset, error) {
	visited := make(map[asset.GUID]struct{})
	var order []*asset.Asset
	if err := e.visit(a, visited, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (e *Exporter) visit(a *asset.Asset, visited map[asset.GUID]struct{}, order *[]*asset.Asset) error {
	visited[a.GUID] = struct{}{}
	deps, err := a.Dependencies()
	if err != nil {
		return fmt.Errorf("dependencies of %s: %w", a.DisplayName(), err)
	}
	for _, g := range deps {
		if _, ok := visited[g]; ok {
			continue
		}
		visited[g] = struct{}{}
		d := e.reg.Get(g)
		if d == nil {
			e.logger.Debug("dependency not loaded", "asset", a.DisplayName(), "guid", g.String())
			continue
		}
		if err := e.visit(d, visited, order); err != nil {
			return err
		}
	}
	*order = append(*order, a)
	return nil
}

// Export writes a alone.
func (e *Exporter) Export(ctx context.Context, a *asset.Asset) error {
	a.MarkExported()
	return e.export(ctx, a)
}

// ExportWithDependencies writes a and every loaded asset it depends on.
// Dependencies already exported in this session are not written again,
// and dependencies without an export callback are skipped.
func (e *Exporter) ExportWithDependencies(ctx context.Context, a *asset.Asset) error {
	order, err := e.Dependencies(a)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range order[:len(order)-1] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.MarkExported() {
			continue
		}
		if err := e.export(ctx, d); err != nil && !e.skippable(d, err) {
			errs = append(errs, err)
		}
	}
	if err := e.Export(ctx, a); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ExportAll writes every registered asset that has an export callback.
func (e *Exporter) ExportAll(ctx context.Context) error {
	return e.ExportList(ctx, e.reg.Assets(), false)
}

// ExportList writes assets, and with withDeps their dependencies, over a
// pool of export threads. Every asset is written at most once per call.
// Assets without an export callback are skipped.
func (e *Exporter) ExportList(ctx context.Context, assets []*asset.Asset, withDeps bool) error {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()

	for _, a := range e.reg.Assets() {
		a.ResetExported()
	}

	var mu sync.Mutex
	var errs []error
	pool := workpool.New(e.o.threads)
	for _, a := range assets {
		a := a // per-iteration copy; go.mod targets go1.21 loop semantics
		err := pool.Add(func() {
			if err := e.exportOnce(ctx, a, withDeps); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
		if err != nil {
			return fmt.Errorf("pool.Add: %w", err)
		}
	}
	e.logger.Info("exporting", "assets", pool.Len(), "threads", e.o.threads, "dependencies", withDeps)
	pool.Execute()
	pool.Wait()
	return errors.Join(errs...)
}

func (e *Exporter) exportOnce(ctx context.Context, a *asset.Asset, withDeps bool) error {
	order := []*asset.Asset{a}
	if withDeps {
		var err error
		if order, err = e.Dependencies(a); err != nil {
			return err
		}
	}
	var errs []error
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.MarkExported() {
			continue
		}
		if err := e.export(ctx, d); err != nil && !e.skippable(d, err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Exporter) skippable(a *asset.Asset, err error) bool {
	if errors.Is(err, asset.ErrUnknownKind) || errors.Is(err, asset.ErrUnsupported) {
		e.logger.Debug("not exportable", "asset", a.DisplayName(), "type", a.Type.String())
		return true
	}
	return false
}

func (e *Exporter) export(ctx context.Context, a *asset.Asset) error {
	b, err := e.reg.Binding(a.Type)
	if err != nil {
		return fmt.Errorf("export %s: %w", a.DisplayName(), err)
	}
	setting, ok := e.o.settings[a.Type]
	if !ok {
		setting = b.DefaultSetting
	}
	w := e.writer(a, b)
	if err := b.Handler.Export(ctx, a, w, setting); err != nil {
		return fmt.Errorf("export %s %s: %w", a.Type, a.DisplayName(), err)
	}
	e.logger.Debug("exported", "asset", a.DisplayName(), "type", a.Type.String(), "setting", b.SettingName(setting))
	return nil
}

// writer places a's files in <root>/<logical dir> when full paths are on
// and a has a logical path, and in <root>/<binding prefix> otherwise.
func (e *Exporter) writer(a *asset.Asset, b *asset.Binding) *ExportContext {
	if e.o.fullPaths && a.Path != "" {
		p := strings.TrimLeft(strings.ReplaceAll(a.Path, "\\", "/"), "/")
		base := path.Base(p)
		return &ExportContext{
			e:     e,
			Asset: a,
			dir:   path.Dir(p),
			base:  strings.TrimSuffix(base, path.Ext(base)),
			ext:   b.Extension,
		}
	}
	return &ExportContext{
		e:     e,
		Asset: a,
		dir:   b.Prefix,
		base:  sanitize(a.DisplayName()),
		ext:   b.Extension,
	}
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}

// ExportContext is the asset.ExportWriter handed to export callbacks.
type ExportContext struct {
	Asset *asset.Asset

	e    *Exporter
	dir  string
	base string
	ext  string
}

// BaseName is the file name stem the asset's primary file should use.
func (w *ExportContext) BaseName() string {
	return w.base
}

// PrimaryName is the file name of the asset's primary file: BaseName plus
// the binding's extension.
func (w *ExportContext) PrimaryName() string {
	return w.base + w.ext
}

// Dir is the slash-separated directory, relative to the export root, that
// WriteFile writes into.
func (w *ExportContext) Dir() string {
	return w.dir
}

// WriteFile atomically writes data to name inside the asset's export
// directory and records it in the export manifest.
func (w *ExportContext) WriteFile(name string, data []byte) error {
	rel := path.Clean(path.Join(w.dir, filepath.ToSlash(name)))
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return fmt.Errorf("%s: %w", rel, ErrEscapesRoot)
	}
	full := filepath.Join(w.e.root, filepath.FromSlash(rel))
	if err := w.e.mkdir(filepath.Dir(full)); err != nil {
		return err
	}
	if err := writeFileAtomic(full, data); err != nil {
		return err
	}
	w.e.manifest.record(rel, w.Asset, data)
	return nil
}

func (e *Exporter) mkdir(dir string) error {
	e.dirMu.Lock()
	defer e.dirMu.Unlock()
	if _, ok := e.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}
	e.dirs[dir] = struct{}{}
	return nil
}

// writeFileAtomic writes to a temporary file in the destination directory
// and renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".rpak-export.*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("f.Write: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("f.Chmod: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("f.Close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}
