// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bpowers/rpak/patch"
)

var (
	ErrDuplicateGUID    = errors.New("duplicate asset GUID")
	ErrUnknownContainer = errors.New("asset container is not registered")
)

// Registry is the table of loaded containers, assets and type bindings.
// Lookups are safe for concurrent use; loads are expected to be serialized
// by the caller.
type Registry struct {
	mu         sync.RWMutex
	assets     []*Asset
	byGUID     map[GUID]*Asset
	containers []Container
	owned      map[Container]struct{}
	bindings   map[Tag]*Binding

	manifest *patch.Manifest
	loaded   map[uint64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byGUID:   make(map[GUID]*Asset),
		owned:    make(map[Container]struct{}),
		bindings: make(map[Tag]*Binding),
		manifest: patch.NewManifest(),
		loaded:   make(map[uint64]struct{}),
	}
}

// Register installs b as the binding for its type, replacing any existing
// binding for the same tag.
func (r *Registry) Register(b Binding) error {
	if b.Handler == nil {
		return fmt.Errorf("asset: binding %s has no handler", b.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.Type] = &b
	return nil
}

// Binding returns the binding registered for t.
func (r *Registry) Binding(t Tag) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[t]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownKind, t)
	}
	return b, nil
}

// Bindings returns every registered binding, ordered by tag.
func (r *Registry) Bindings() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type.Uint32() < out[j].Type.Uint32() })
	return out
}

// AddContainer takes ownership of c.
func (r *Registry) AddContainer(c Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owned[c]; ok {
		return
	}
	r.owned[c] = struct{}{}
	r.containers = append(r.containers, c)
}

// Add registers a. Its container must already have been added, and its GUID
// must not be in use.
func (r *Registry) Add(a *Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owned[a.Container]; !ok {
		return fmt.Errorf("asset %s: %w", a.GUID, ErrUnknownContainer)
	}
	if prev, ok := r.byGUID[a.GUID]; ok {
		return fmt.Errorf("asset %s %q from %s already loaded from %s: %w",
			a.GUID, a.Name, a.Container.FileName(), prev.Container.FileName(), ErrDuplicateGUID)
	}
	r.byGUID[a.GUID] = a
	r.assets = append(r.assets, a)
	return nil
}

// Get returns the asset with the given GUID, or nil.
func (r *Registry) Get(g GUID) *Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byGUID[g]
}

// GetTyped is Get restricted to assets of type t.
func (r *Registry) GetTyped(g GUID, t Tag) *Asset {
	a := r.Get(g)
	if a == nil || a.Type != t {
		return nil
	}
	return a
}

// ByName looks an asset up by its name.
func (r *Registry) ByName(name string) *Asset {
	return r.Get(GUIDFromName(name))
}

// Assets returns the assets in insertion order.
func (r *Registry) Assets() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Asset(nil), r.assets...)
}

// AssetsFrom returns the assets owned by c, in insertion order.
func (r *Registry) AssetsFrom(c Container) []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Asset
	for _, a := range r.assets {
		if a.Container == c {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) Containers() []Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Container(nil), r.containers...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

// Preview runs the preview callback of a's binding.
func (r *Registry) Preview(a *Asset) (any, error) {
	b, err := r.Binding(a.Type)
	if err != nil {
		return nil, err
	}
	return b.Handler.Preview(a)
}

// Manifest is the patch manifest of the current load session.
func (r *Registry) Manifest() *patch.Manifest {
	return r.manifest
}

// ResetPatches forgets the patch manifest before a new patch master is
// read.
func (r *Registry) ResetPatches() {
	r.manifest.Reset()
}

// MarkLoaded records a container CRC, reporting false when a container with
// the same non-zero CRC was loaded before. A zero CRC is never deduplicated.
func (r *Registry) MarkLoaded(crc uint64) bool {
	if crc == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[crc]; ok {
		return false
	}
	r.loaded[crc] = struct{}{}
	return true
}

// Clear drops every asset, then closes and drops every container, then
// forgets the patch manifest and loaded CRCs. Bindings are kept.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.assets)
	r.assets = r.assets[:0]
	clear(r.byGUID)

	var errs []error
	for _, c := range r.containers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.FileName(), err))
		}
	}
	clear(r.containers)
	r.containers = r.containers[:0]
	clear(r.owned)

	r.manifest.Reset()
	clear(r.loaded)
	return errors.Join(errs...)
}
