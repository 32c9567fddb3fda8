// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package patch

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MasterName is the file name of the patch master container.
const MasterName = "patch_master.rpak"

const pakExt = ".rpak"

// Manifest maps a base pak stem to the highest patch revision available
// for it.
type Manifest struct {
	revisions map[string]int
}

func NewManifest() *Manifest {
	return &Manifest{revisions: make(map[string]int)}
}

// Set records rev for the pak named by stem. Only the highest revision seen
// for a stem is kept. Stems may be given with or without the .rpak
// extension.
func (m *Manifest) Set(stem string, rev int) {
	stem = normalizeStem(stem)
	if m.revisions == nil {
		m.revisions = make(map[string]int)
	}
	if old, ok := m.revisions[stem]; ok && old >= rev {
		return
	}
	m.revisions[stem] = rev
}

// Revision returns the highest known revision for stem.
func (m *Manifest) Revision(stem string) (int, bool) {
	if m == nil {
		return 0, false
	}
	rev, ok := m.revisions[normalizeStem(stem)]
	return rev, ok
}

func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.revisions)
}

// Reset forgets every entry.
func (m *Manifest) Reset() {
	clear(m.revisions)
}

// Entry is one manifest line, for listing.
type Entry struct {
	Stem     string
	Revision int
}

// Entries returns the manifest sorted by stem.
func (m *Manifest) Entries() []Entry {
	if m == nil {
		return nil
	}
	entries := make([]Entry, 0, len(m.revisions))
	for stem, rev := range m.revisions {
		entries = append(entries, Entry{Stem: stem, Revision: rev})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Stem < entries[j].Stem })
	return entries
}

// Resolve maps a requested pak path to the file that should actually be
// opened: when the manifest has an entry for the path's stem, the path is
// rewritten to "stem(NN).rpak" in the same directory. Otherwise the path
// is returned unchanged.
func (m *Manifest) Resolve(path string) string {
	stem, _, ok := ParseRevision(filepath.Base(path))
	if !ok {
		return path
	}
	rev, found := m.Revision(stem)
	if !found || rev <= 0 {
		return path
	}
	return filepath.Join(filepath.Dir(path), RevisionName(stem, rev))
}

// RevisionName formats the file name of revision rev of stem. Revision 0 is
// the unpatched base pak.
func RevisionName(stem string, rev int) string {
	if rev <= 0 {
		return stem + pakExt
	}
	return fmt.Sprintf("%s(%02d)%s", stem, rev, pakExt)
}

// ParseRevision splits a pak file name like "common(03).rpak" into its stem
// and revision. Unpatched names have revision 0. ok is false when name is
// not an .rpak file.
func ParseRevision(name string) (stem string, rev int, ok bool) {
	if !strings.HasSuffix(strings.ToLower(name), pakExt) {
		return "", 0, false
	}
	base := name[:len(name)-len(pakExt)]
	if strings.HasSuffix(base, ")") {
		if open := strings.LastIndexByte(base, '('); open > 0 {
			if n, err := strconv.Atoi(base[open+1 : len(base)-1]); err == nil && n >= 0 {
				return base[:open], n, true
			}
		}
	}
	return base, 0, true
}

// BasePath returns the path of the revision a patch of revision rev was
// built against.
func BasePath(path string, rev int) string {
	stem, _, ok := ParseRevision(filepath.Base(path))
	if !ok {
		return path
	}
	return filepath.Join(filepath.Dir(path), RevisionName(stem, rev-1))
}

func normalizeStem(stem string) string {
	stem = filepath.Base(filepath.ToSlash(stem))
	if s, _, ok := ParseRevision(stem); ok {
		return s
	}
	return stem
}
