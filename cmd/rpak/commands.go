// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/bpowers/rpak"
	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/bindings"
	"github.com/bpowers/rpak/internal/config"
)

// open loads paths into a new registry with the built-in bindings plus a
// raw binding for every other asset type found.
func open(ctx context.Context, logger *slog.Logger, cfg *config.Config, paths []string) (*asset.Registry, error) {
	reg := asset.NewRegistry()
	if err := bindings.Register(reg); err != nil {
		return nil, err
	}
	l := rpak.NewLoader(reg, rpak.WithLogger(logger), rpak.WithLoaderConfig(cfg))
	report := l.Load(ctx, paths)
	for _, e := range report.Errors {
		logger.Error("load failed", "path", e.Path, "kind", e.Kind.String(), "err", e.Err)
	}
	if len(report.Loaded) == 0 && len(report.Errors) > 0 {
		_ = reg.Clear()
		return nil, report.Err()
	}
	for _, a := range reg.Assets() {
		if _, err := reg.Binding(a.Type); errors.Is(err, asset.ErrUnknownKind) {
			if err := reg.Register(bindings.Raw(a.Type, "Raw "+a.Type.String(), a.Type.String())); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func list(ctx context.Context, logger *slog.Logger, cfg *config.Config, paths []string) error {
	reg, err := open(ctx, logger, cfg, paths)
	if err != nil {
		return err
	}
	defer reg.Clear()

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "GUID\tTYPE\tVERSION\tCONTAINER\tNAME")
	for _, a := range reg.Assets() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.GUID, a.Type, a.Version, a.Container.FileName(), displayPath(a))
	}
	return tw.Flush()
}

func export(ctx context.Context, logger *slog.Logger, cfg *config.Config, f *flags, paths []string) error {
	reg, err := open(ctx, logger, cfg, paths)
	if err != nil {
		return err
	}
	defer reg.Clear()

	e := rpak.NewExporter(reg, cfg.ExportDir, rpak.WithExportLogger(logger), rpak.WithExportConfig(cfg))
	if len(f.assets) == 0 {
		err = e.ExportAll(ctx)
	} else {
		var selected []*asset.Asset
		if selected, err = selectAssets(reg, f.assets); err != nil {
			return err
		}
		err = e.ExportList(ctx, selected, f.deps)
	}
	if err != nil {
		return err
	}
	logger.Info("export finished", "dir", cfg.ExportDir, "files", len(e.Manifest()))

	if cfg.WriteManifest {
		if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
			return fmt.Errorf("os.MkdirAll: %w", err)
		}
		out, err := os.Create(filepath.Join(cfg.ExportDir, rpak.ManifestName))
		if err != nil {
			return fmt.Errorf("os.Create: %w", err)
		}
		if err := e.WriteManifest(out); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	}
	return nil
}

func deps(ctx context.Context, logger *slog.Logger, cfg *config.Config, f *flags, paths []string) error {
	if len(f.assets) == 0 {
		return errors.New("deps: select at least one asset with --asset")
	}
	reg, err := open(ctx, logger, cfg, paths)
	if err != nil {
		return err
	}
	defer reg.Clear()

	selected, err := selectAssets(reg, f.assets)
	if err != nil {
		return err
	}
	e := rpak.NewExporter(reg, cfg.ExportDir, rpak.WithExportLogger(logger))
	for _, a := range selected {
		order, err := e.Dependencies(a)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d assets)\n", displayPath(a), len(order))
		for _, d := range order {
			fmt.Printf("  %s %s %s\n", d.GUID, d.Type, displayPath(d))
		}
	}
	return nil
}

// selectAssets looks each argument up first as a GUID, then as a name.
func selectAssets(reg *asset.Registry, args []string) ([]*asset.Asset, error) {
	out := make([]*asset.Asset, 0, len(args))
	for _, arg := range args {
		var a *asset.Asset
		if g, err := asset.ParseGUID(arg); err == nil {
			a = reg.Get(g)
		}
		if a == nil {
			a = reg.ByName(arg)
		}
		if a == nil {
			return nil, fmt.Errorf("no asset %q is loaded", arg)
		}
		out = append(out, a)
	}
	return out, nil
}

func displayPath(a *asset.Asset) string {
	if a.Path != "" {
		return a.Path
	}
	return a.DisplayName()
}
