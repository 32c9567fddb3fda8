// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package config loads the settings shared by the rpak commands.
//
// Values come from Default, then an optional YAML file, then RPAK_*
// environment variables. Commands apply their flags last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bpowers/rpak/internal/codec"
	"github.com/bpowers/rpak/internal/scratch"
)

// PathEnv names the environment variable holding the default config file.
const PathEnv = "RPAK_CONFIG"

type Config struct {
	// ExportDir is the root every exported file is written under.
	ExportDir string `yaml:"export_dir" env:"RPAK_EXPORT_DIR"`
	// ExportThreads bounds the export worker pool.
	ExportThreads int `yaml:"export_threads" env:"RPAK_EXPORT_THREADS"`
	// FullPaths exports assets under their logical path instead of a
	// per-type prefix.
	FullPaths bool `yaml:"full_paths" env:"RPAK_FULL_PATHS"`
	// WriteManifest records every exported file in manifest.cbor.
	WriteManifest bool `yaml:"write_manifest" env:"RPAK_WRITE_MANIFEST"`

	ScratchBuffers    int `yaml:"scratch_buffers" env:"RPAK_SCRATCH_BUFFERS"`
	ScratchBufferSize int `yaml:"scratch_buffer_size" env:"RPAK_SCRATCH_BUFFER_SIZE"`

	// ChunkCodec compresses the base revision pages held during patching.
	ChunkCodec string `yaml:"chunk_codec" env:"RPAK_CHUNK_CODEC"`

	// ExportSettings overrides the default export setting per asset tag,
	// e.g. RPAK_EXPORT_SETTINGS=txtr:1,matl:0.
	ExportSettings map[string]int `yaml:"export_settings" env:"RPAK_EXPORT_SETTINGS" envKeyValSeparator:":"`

	LogLevel string `yaml:"log_level" env:"RPAK_LOG_LEVEL"`
}

func Default() *Config {
	return &Config{
		ExportDir:         "exported_files",
		ExportThreads:     runtime.NumCPU(),
		ScratchBuffers:    scratch.DefaultCount,
		ScratchBufferSize: scratch.DefaultSize,
		ChunkCodec:        codec.LZ4.String(),
		ExportSettings:    make(map[string]int),
		LogLevel:          "info",
	}
}

// Load reads the file named by path, or by $RPAK_CONFIG when path is empty,
// and applies environment overrides. With neither set, Load returns the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := c.Decode(data); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Decode overlays YAML data onto c. Unknown keys are an error.
func (c *Config) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

// ApplyEnv overlays RPAK_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ExportDir == "" {
		errs = append(errs, errors.New("export_dir is empty"))
	}
	if c.ExportThreads < 1 {
		errs = append(errs, fmt.Errorf("export_threads must be positive, have %d", c.ExportThreads))
	}
	if c.ScratchBuffers < 1 {
		errs = append(errs, fmt.Errorf("scratch_buffers must be positive, have %d", c.ScratchBuffers))
	}
	if c.ScratchBufferSize < 4096 {
		errs = append(errs, fmt.Errorf("scratch_buffer_size must be at least 4096, have %d", c.ScratchBufferSize))
	}
	if _, err := c.Codec(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	for tag, setting := range c.ExportSettings {
		if len(tag) != 4 {
			errs = append(errs, fmt.Errorf("export_settings: tag %q is not four bytes", tag))
		}
		if setting < 0 {
			errs = append(errs, fmt.Errorf("export_settings: %s setting %d is negative", tag, setting))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Codec is the parsed ChunkCodec.
func (c *Config) Codec() (codec.Tag, error) {
	t, err := codec.ParseTag(c.ChunkCodec)
	if err != nil {
		return 0, fmt.Errorf("chunk_codec: %w", err)
	}
	return t, nil
}

// Level is the parsed LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// ExportSetting returns the configured setting for tag, or def.
func (c *Config) ExportSetting(tag string, def int) int {
	if v, ok := c.ExportSettings[tag]; ok {
		return v
	}
	return def
}
