// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/bpowers/rpak/asset"
)

// ManifestName is the conventional file name of an export manifest.
const ManifestName = "manifest.cbor"

// ManifestEntry describes one exported file.
type ManifestEntry struct {
	// Path is slash-separated and relative to the export root.
	Path   string     `cbor:"path"`
	GUID   asset.GUID `cbor:"guid"`
	Type   string     `cbor:"type"`
	Size   int64      `cbor:"size"`
	BLAKE3 []byte     `cbor:"blake3"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("rpak: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("rpak: CBOR decoder initialization failed: " + err.Error())
	}
}

type manifest struct {
	mu      sync.Mutex
	entries map[string]ManifestEntry
}

func (m *manifest) record(rel string, a *asset.Asset, data []byte) {
	sum := blake3.Sum256(data)
	e := ManifestEntry{
		Path:   rel,
		GUID:   a.GUID,
		Type:   a.Type.String(),
		Size:   int64(len(data)),
		BLAKE3: sum[:],
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]ManifestEntry)
	}
	m.entries[rel] = e
}

func (m *manifest) sorted() []ManifestEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManifestEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Manifest returns every file written so far, ordered by path. A file
// written twice is listed once with its latest contents.
func (e *Exporter) Manifest() []ManifestEntry {
	return e.manifest.sorted()
}

// WriteManifest encodes Manifest as deterministic CBOR.
func (e *Exporter) WriteManifest(w io.Writer) error {
	data, err := encMode.Marshal(e.manifest.sorted())
	if err != nil {
		return fmt.Errorf("cbor.Marshal: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("w.Write: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll: %w", err)
	}
	var entries []ManifestEntry
	if err := decMode.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("cbor.Unmarshal: %w", err)
	}
	return entries, nil
}
