// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asset

import (
	"fmt"
	"sync/atomic"
)

// Version is the (major, minor) version pair of an asset's header layout.
type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// ContainerKind identifies the file format a container was loaded from.
type ContainerKind uint8

const (
	ContainerPak ContainerKind = iota
	ContainerBPK
	ContainerLoose
	ContainerAudio
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerPak:
		return "rpak"
	case ContainerBPK:
		return "bpk"
	case ContainerLoose:
		return "loose"
	case ContainerAudio:
		return "audio"
	}
	return fmt.Sprintf("ContainerKind(%d)", uint8(k))
}

// Container owns the bytes backing the assets it produced.
type Container interface {
	Kind() ContainerKind
	FileName() string
	Close() error
}

// DependencyLister is implemented by containers that record which assets
// each of their assets references.
type DependencyLister interface {
	Dependencies(a *Asset) ([]GUID, error)
}

// Asset is one object from a container. The registry owns every Asset;
// Header and any container memory reachable from it are valid until the
// registry is cleared.
type Asset struct {
	GUID    GUID
	Name    string
	Path    string
	Version Version
	Type    Tag

	// Header is the raw, relocated header bytes.
	Header []byte

	Container Container
	// Index is the asset's position within its container.
	Index int

	// Extra is owned by the type binding's load callback.
	Extra any

	exported atomic.Bool
}

// Dependencies returns the GUIDs a declares, or nil when its container has
// no dependency data.
func (a *Asset) Dependencies() ([]GUID, error) {
	dl, ok := a.Container.(DependencyLister)
	if !ok {
		return nil, nil
	}
	return dl.Dependencies(a)
}

func (a *Asset) Exported() bool { return a.exported.Load() }

// MarkExported sets the exported flag, reporting whether this call was the
// one that set it.
func (a *Asset) MarkExported() bool {
	return a.exported.CompareAndSwap(false, true)
}

func (a *Asset) ResetExported() { a.exported.Store(false) }

// DisplayName is the name shown in listings, falling back to the GUID.
func (a *Asset) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.GUID.String()
}
