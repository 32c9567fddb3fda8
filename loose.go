// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bpowers/rpak/asset"
)

// ModelType is the tag of assets loaded from loose .mdl files.
var ModelType = asset.MustTag("mdl_")

// LooseFile is a single file on disk registered as a one-asset container.
type LooseFile struct {
	path string
	data []byte
}

func OpenLoose(path string) (*LooseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}
	return &LooseFile{path: path, data: data}, nil
}

func (f *LooseFile) Kind() asset.ContainerKind { return asset.ContainerLoose }

func (f *LooseFile) FileName() string { return filepath.Base(f.path) }

func (f *LooseFile) Path() string { return f.path }

func (f *LooseFile) Close() error {
	f.data = nil
	return nil
}

// Assets returns the file's single asset. Its GUID is derived from the
// canonical file name, so the same model loaded from two directories
// collides.
func (f *LooseFile) Assets() []*asset.Asset {
	name := filepath.Base(f.path)
	return []*asset.Asset{{
		GUID:      asset.GUIDFromName(name),
		Name:      strings.TrimSuffix(name, filepath.Ext(name)),
		Path:      asset.CanonicalName(name),
		Type:      ModelType,
		Header:    f.data,
		Container: f,
	}}
}
