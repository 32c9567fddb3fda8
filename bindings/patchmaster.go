// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bindings

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/pakfile"
	"github.com/bpowers/rpak/patch"
)

// PatchMaster returns the binding for patch lists. Loading one stores its
// entries in Asset.Extra; exporting writes them as "stem revision" lines.
func PatchMaster() asset.Binding {
	return asset.Binding{
		Type:      pakfile.PatchMasterType,
		Name:      "Patch Master",
		Prefix:    "patch",
		Extension: ".txt",
		Handler: asset.BindingFuncs{
			LoadFunc:    loadPatchList,
			PreviewFunc: patchEntries,
			ExportFunc:  exportPatchList,
		},
	}
}

func loadPatchList(_ context.Context, a *asset.Asset) error {
	p, ok := a.Container.(*pakfile.Pak)
	if !ok {
		return fmt.Errorf("patch list in %s: %w", a.Container.Kind(), asset.ErrUnsupported)
	}
	m := patch.NewManifest()
	if err := pakfile.ReadPatchMaster(p, m); err != nil {
		return err
	}
	a.Extra = m.Entries()
	return nil
}

func patchEntries(a *asset.Asset) (any, error) {
	entries, ok := a.Extra.([]patch.Entry)
	if !ok {
		return nil, fmt.Errorf("patch list %s was not loaded", a.DisplayName())
	}
	return entries, nil
}

func exportPatchList(_ context.Context, a *asset.Asset, w asset.ExportWriter, _ int) error {
	v, err := patchEntries(a)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, e := range v.([]patch.Entry) {
		fmt.Fprintf(&buf, "%s %d\n", e.Stem, e.Revision)
	}
	return w.WriteFile(w.PrimaryName(), buf.Bytes())
}
