// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// rpak loads pak, bpk and loose model files and lists or exports the
// assets they hold.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/bpowers/rpak/internal/config"
)

type flags struct {
	configPath string
	logLevel   string
	exportDir  string
	threads    int
	fullPaths  bool
	manifest   bool
	deps       bool
	assets     []string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "rpak: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var f flags
	fs := pflag.NewFlagSet("rpak", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (default $"+config.PathEnv+")")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVarP(&f.exportDir, "out", "o", "", "export directory")
	fs.IntVarP(&f.threads, "threads", "j", 0, "concurrent exports")
	fs.BoolVar(&f.fullPaths, "full-paths", false, "lay exports out by logical asset path")
	fs.BoolVar(&f.manifest, "manifest", false, "write manifest.cbor to the export directory")
	fs.BoolVarP(&f.deps, "deps", "d", false, "export dependencies of the selected assets")
	fs.StringArrayVarP(&f.assets, "asset", "a", nil, "asset name or GUID to select (repeatable)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		usage(fs)
		return pflag.ErrHelp
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(fs, &f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, paths := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return list(ctx, logger, cfg, paths)
	case "export":
		return export(ctx, logger, cfg, &f, paths)
	case "deps":
		return deps(ctx, logger, cfg, &f, paths)
	}
	usage(fs)
	return fmt.Errorf("unknown command %q", cmd)
}

// applyFlags overrides config values with the flags given on the command
// line.
func applyFlags(fs *pflag.FlagSet, f *flags, cfg *config.Config) {
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("out") {
		cfg.ExportDir = f.exportDir
	}
	if fs.Changed("threads") {
		cfg.ExportThreads = f.threads
	}
	if fs.Changed("full-paths") {
		cfg.FullPaths = f.fullPaths
	}
	if fs.Changed("manifest") {
		cfg.WriteManifest = f.manifest
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage:
  rpak [flags] list FILE...
  rpak [flags] export FILE...
  rpak [flags] deps -a ASSET FILE...

FILE may be a .rpak, .bpk or .mdl file. The newest patched revision of each
pak listed by patch_master.rpak is loaded in place of the requested file.

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
