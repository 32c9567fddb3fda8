// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package asset

import (
	"context"
	"errors"
)

var (
	ErrUnknownKind = errors.New("no binding registered for asset type")
	ErrUnsupported = errors.New("operation not supported for asset type")
)

// ExportWriter places the files produced by one asset's export.
type ExportWriter interface {
	// BaseName is the asset's output file name without extension.
	BaseName() string
	// PrimaryName is BaseName with the binding's Extension appended.
	PrimaryName() string
	// WriteFile writes data to name, relative to the asset's output
	// directory.
	WriteFile(name string, data []byte) error
}

// Handler is the set of operations a type binding supplies.
type Handler interface {
	// Load converts a's raw header into its typed form, stored in a.Extra.
	Load(ctx context.Context, a *Asset) error
	// PostLoad runs after every asset of the load batch has been loaded.
	PostLoad(ctx context.Context, a *Asset) error
	Preview(a *Asset) (any, error)
	Export(ctx context.Context, a *Asset, w ExportWriter, setting int) error
}

// Binding associates an asset type with its handler and export metadata.
type Binding struct {
	Type Tag
	Name string
	// Prefix is the directory exports of this type go under when full
	// paths are off.
	Prefix string
	// Extension names the primary export file, including the leading dot.
	Extension string

	DefaultSetting int
	SettingNames   []string

	Handler Handler
}

// SettingName returns the human readable name of an export setting.
func (b *Binding) SettingName(setting int) string {
	if setting >= 0 && setting < len(b.SettingNames) {
		return b.SettingNames[setting]
	}
	return ""
}

// BindingFuncs adapts optional functions to a Handler. Missing load and
// post-load callbacks are no-ops; missing preview and export callbacks
// report ErrUnsupported.
type BindingFuncs struct {
	LoadFunc     func(ctx context.Context, a *Asset) error
	PostLoadFunc func(ctx context.Context, a *Asset) error
	PreviewFunc  func(a *Asset) (any, error)
	ExportFunc   func(ctx context.Context, a *Asset, w ExportWriter, setting int) error
}

var _ Handler = BindingFuncs{}

func (f BindingFuncs) Load(ctx context.Context, a *Asset) error {
	if f.LoadFunc == nil {
		return nil
	}
	return f.LoadFunc(ctx, a)
}

func (f BindingFuncs) PostLoad(ctx context.Context, a *Asset) error {
	if f.PostLoadFunc == nil {
		return nil
	}
	return f.PostLoadFunc(ctx, a)
}

func (f BindingFuncs) Preview(a *Asset) (any, error) {
	if f.PreviewFunc == nil {
		return nil, ErrUnsupported
	}
	return f.PreviewFunc(a)
}

func (f BindingFuncs) Export(ctx context.Context, a *Asset, w ExportWriter, setting int) error {
	if f.ExportFunc == nil {
		return ErrUnsupported
	}
	return f.ExportFunc(ctx, a, w, setting)
}
