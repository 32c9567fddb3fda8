// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bindings

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/pakfile"
)

// Raw export settings.
const (
	RawHeader = iota
	RawFull
)

// Metadata is the sidecar written next to raw exports.
type Metadata struct {
	GUID         string       `yaml:"guid"`
	Name         string       `yaml:"name,omitempty"`
	Path         string       `yaml:"path,omitempty"`
	Type         string       `yaml:"type"`
	Version      string       `yaml:"version"`
	Container    string       `yaml:"container"`
	HeaderSize   int          `yaml:"header_size"`
	Dependencies []string     `yaml:"dependencies,omitempty"`
	Starpak      *StarpakMeta `yaml:"starpak,omitempty"`
	OptStarpak   *StarpakMeta `yaml:"opt_starpak,omitempty"`
}

type StarpakMeta struct {
	Path   string `yaml:"path"`
	Offset uint64 `yaml:"offset"`
}

// Raw returns a binding that dumps the relocated header of assets of type
// t, plus their CPU data with the RawFull setting.
func Raw(t asset.Tag, name, prefix string) asset.Binding {
	return asset.Binding{
		Type:           t,
		Name:           name,
		Prefix:         prefix,
		Extension:      ".hdr",
		DefaultSetting: RawHeader,
		SettingNames:   []string{"header", "full"},
		Handler:        rawHandler{},
	}
}

type rawHandler struct{}

func (rawHandler) Load(context.Context, *asset.Asset) error { return nil }

func (rawHandler) PostLoad(context.Context, *asset.Asset) error { return nil }

func (rawHandler) Preview(a *asset.Asset) (any, error) {
	return Describe(a)
}

func (rawHandler) Export(_ context.Context, a *asset.Asset, w asset.ExportWriter, setting int) error {
	if err := w.WriteFile(w.PrimaryName(), a.Header); err != nil {
		return err
	}
	if setting == RawFull {
		if p, ok := a.Container.(*pakfile.Pak); ok {
			if h := p.Header(a.Index); !h.CPU.IsNull() {
				ref, err := p.CPU(a.Index)
				if err != nil {
					return fmt.Errorf("cpu data: %w", err)
				}
				cpu, err := ref.Bytes(ref.Remaining())
				if err != nil {
					return fmt.Errorf("cpu data: %w", err)
				}
				if err := w.WriteFile(w.BaseName()+".cpu", cpu); err != nil {
					return err
				}
			}
		}
	}
	return writeMetadata(a, w)
}

func writeMetadata(a *asset.Asset, w asset.ExportWriter) error {
	m, err := Describe(a)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("yaml.Marshal: %w", err)
	}
	return w.WriteFile(w.BaseName()+".meta.yaml", data)
}

// Describe collects the metadata of a, including the streamed data
// locations recorded for pak assets.
func Describe(a *asset.Asset) (*Metadata, error) {
	m := &Metadata{
		GUID:       a.GUID.String(),
		Name:       a.Name,
		Path:       a.Path,
		Type:       a.Type.String(),
		Version:    a.Version.String(),
		Container:  a.Container.FileName(),
		HeaderSize: len(a.Header),
	}
	deps, err := a.Dependencies()
	if err != nil {
		return nil, err
	}
	for _, g := range deps {
		m.Dependencies = append(m.Dependencies, g.String())
	}
	if p, ok := a.Container.(*pakfile.Pak); ok {
		m.Starpak = starpakMeta(p, a.Index, false)
		m.OptStarpak = starpakMeta(p, a.Index, true)
	}
	return m, nil
}

func starpakMeta(p *pakfile.Pak, i int, optional bool) *StarpakMeta {
	ref, ok := p.Starpak(i, optional)
	if !ok {
		return nil
	}
	paths := p.StarpakPaths()
	if optional {
		paths = p.OptStarpakPaths()
	}
	m := &StarpakMeta{Offset: ref.Offset}
	if ref.PathIndex < len(paths) {
		m.Path = paths[ref.PathIndex]
	}
	return m
}
