// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/rpak/internal/codec"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	tag, err := cfg.Codec()
	require.NoError(t, err)
	require.Equal(t, codec.LZ4, tag)
	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
export_dir: out
export_threads: 3
full_paths: true
chunk_codec: zstd
export_settings:
  txtr: 1
log_level: debug
`), 0o644))

	t.Setenv(PathEnv, "")
	t.Setenv("RPAK_EXPORT_THREADS", "7")
	t.Setenv("RPAK_EXPORT_SETTINGS", "matl:2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "out", cfg.ExportDir)
	require.Equal(t, 7, cfg.ExportThreads)
	require.True(t, cfg.FullPaths)
	require.Equal(t, "zstd", cfg.ChunkCodec)
	require.Equal(t, 2, cfg.ExportSetting("matl", 0))
	require.Equal(t, 5, cfg.ExportSetting("shdr", 5))
	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("export_dir: elsewhere\n"), 0o644))
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "elsewhere", cfg.ExportDir)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Decode([]byte("export_dri: typo\n")))
	require.NoError(t, cfg.Decode(nil))
}

func TestValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.ExportDir = "" }},
		{"threads", func(c *Config) { c.ExportThreads = 0 }},
		{"scratch count", func(c *Config) { c.ScratchBuffers = 0 }},
		{"scratch size", func(c *Config) { c.ScratchBufferSize = 16 }},
		{"codec", func(c *Config) { c.ChunkCodec = "brotli" }},
		{"level", func(c *Config) { c.LogLevel = "loud" }},
		{"setting tag", func(c *Config) { c.ExportSettings["texture"] = 1 }},
		{"setting value", func(c *Config) { c.ExportSettings["txtr"] = -1 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
