// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bindings

import (
	"context"
	"fmt"

	"github.com/bpowers/rpak"
	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/bpk"
)

// BPKFile returns the binding for files stored in bpk containers. Exports
// are the decompressed file contents.
func BPKFile() asset.Binding {
	return asset.Binding{
		Type:      bpk.FileType,
		Name:      "BPK File",
		Prefix:    "bpk",
		Extension: ".bin",
		Handler: asset.BindingFuncs{
			PreviewFunc: func(a *asset.Asset) (any, error) {
				c, err := bpkContainer(a)
				if err != nil {
					return nil, err
				}
				return c.File(a.Index), nil
			},
			ExportFunc: func(_ context.Context, a *asset.Asset, w asset.ExportWriter, _ int) error {
				c, err := bpkContainer(a)
				if err != nil {
					return err
				}
				data, err := c.ReadFile(a.Index)
				if err != nil {
					return err
				}
				return w.WriteFile(w.PrimaryName(), data)
			},
		},
	}
}

func bpkContainer(a *asset.Asset) (*bpk.Container, error) {
	c, ok := a.Container.(*bpk.Container)
	if !ok {
		return nil, fmt.Errorf("bpk file in %s: %w", a.Container.Kind(), asset.ErrUnsupported)
	}
	return c, nil
}

// Model returns the binding for loose model files. Exports copy the file
// unchanged.
func Model() asset.Binding {
	return asset.Binding{
		Type:      rpak.ModelType,
		Name:      "Model",
		Prefix:    "mdl",
		Extension: ".mdl",
		Handler: asset.BindingFuncs{
			PreviewFunc: func(a *asset.Asset) (any, error) { return Describe(a) },
			ExportFunc: func(_ context.Context, a *asset.Asset, w asset.ExportWriter, _ int) error {
				return w.WriteFile(w.PrimaryName(), a.Header)
			},
		},
	}
}

// Register installs the patch list, bpk file and model bindings on reg,
// and a raw binding for each tag in raw.
func Register(reg *asset.Registry, raw ...asset.Tag) error {
	bs := []asset.Binding{PatchMaster(), BPKFile(), Model()}
	for _, t := range raw {
		bs = append(bs, Raw(t, "Raw "+t.String(), t.String()))
	}
	for _, b := range bs {
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}
