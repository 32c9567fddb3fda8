// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/bpowers/rpak/asset"
)

// graph is a container whose dependency lists are given up front.
type graph struct {
	deps map[asset.GUID][]asset.GUID
}

func (g *graph) Kind() asset.ContainerKind { return asset.ContainerPak }
func (g *graph) FileName() string          { return "graph.rpak" }
func (g *graph) Close() error              { return nil }

func (g *graph) Dependencies(a *asset.Asset) ([]asset.GUID, error) {
	return g.deps[a.GUID], nil
}

type graphFixture struct {
	reg    *asset.Registry
	assets map[string]*asset.Asset
}

// newGraph registers one asset per name. edges maps an asset name to the
// names it depends on; names missing from names are never loaded.
func newGraph(t *testing.T, names []string, edges map[string][]string) *graphFixture {
	t.Helper()
	g := &graph{deps: make(map[asset.GUID][]asset.GUID)}
	f := &graphFixture{reg: asset.NewRegistry(), assets: make(map[string]*asset.Asset)}
	f.reg.AddContainer(g)
	for i, name := range names {
		typ := txtr
		if i%2 == 1 {
			typ = matl
		}
		a := &asset.Asset{
			GUID:      asset.GUIDFromName(name),
			Name:      name,
			Path:      "assets/" + name + ".rpak",
			Type:      typ,
			Header:    []byte("header of " + name),
			Container: g,
			Index:     i,
		}
		require.NoError(t, f.reg.Add(a))
		f.assets[name] = a
	}
	for from, tos := range edges {
		for _, to := range tos {
			g.deps[asset.GUIDFromName(from)] = append(g.deps[asset.GUIDFromName(from)], asset.GUIDFromName(to))
		}
	}
	return f
}

func names(assets []*asset.Asset) []string {
	var out []string
	for _, a := range assets {
		out = append(out, a.Name)
	}
	return out
}

// recorder is an export callback that writes the header and counts calls.
type recorder struct {
	mu       sync.Mutex
	calls    map[string]int
	settings map[string]int
}

func (r *recorder) binding(t asset.Tag, prefix string) asset.Binding {
	return asset.Binding{
		Type:           t,
		Name:           t.String(),
		Prefix:         prefix,
		Extension:      ".bin",
		DefaultSetting: 1,
		SettingNames:   []string{"none", "default", "override"},
		Handler: asset.BindingFuncs{
			ExportFunc: func(_ context.Context, a *asset.Asset, w asset.ExportWriter, setting int) error {
				r.mu.Lock()
				if r.calls == nil {
					r.calls = make(map[string]int)
					r.settings = make(map[string]int)
				}
				r.calls[a.Name]++
				r.settings[a.Name] = setting
				r.mu.Unlock()
				return w.WriteFile(w.PrimaryName(), a.Header)
			},
		},
	}
}

func TestDependencyOrder(t *testing.T) {
	f := newGraph(t, []string{"a", "b", "c", "d"}, map[string][]string{
		"a": {"b", "c"},
		"b": {"c", "missing"},
		"c": {"a"},
		"d": {"d"},
	})
	e := NewExporter(f.reg, t.TempDir())

	order, err := e.Dependencies(f.assets["a"])
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, names(order))

	order, err = e.Dependencies(f.assets["c"])
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, names(order))

	order, err = e.Dependencies(f.assets["d"])
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, names(order))
}

func TestDependencyOrderWide(t *testing.T) {
	// every asset depends on every other: each still appears exactly once
	var all []string
	for _, c := range "abcdefghij" {
		all = append(all, string(c))
	}
	edges := make(map[string][]string)
	for _, n := range all {
		edges[n] = all
	}
	f := newGraph(t, all, edges)
	e := NewExporter(f.reg, t.TempDir())
	for _, n := range all {
		order, err := e.Dependencies(f.assets[n])
		require.NoError(t, err)
		require.Len(t, order, len(all))
		require.Equal(t, n, order[len(order)-1].Name)
		seen := make(map[string]bool)
		for _, a := range order {
			require.False(t, seen[a.Name])
			seen[a.Name] = true
		}
	}
}

func TestExportLayout(t *testing.T) {
	f := newGraph(t, []string{"rock", "rock_mat"}, nil)
	rec := &recorder{}
	require.NoError(t, f.reg.Register(rec.binding(txtr, "texture")))
	mb := rec.binding(matl, "material")
	mb.Extension = ".mat"
	require.NoError(t, f.reg.Register(mb))

	root := t.TempDir()
	e := NewExporter(f.reg, root)
	require.NoError(t, e.Export(context.Background(), f.assets["rock"]))
	data, err := os.ReadFile(filepath.Join(root, "texture", "rock.bin"))
	require.NoError(t, err)
	require.Equal(t, []byte("header of rock"), data)
	require.True(t, f.assets["rock"].Exported())

	full := t.TempDir()
	e = NewExporter(f.reg, full, WithFullPaths(true), WithExportSetting(matl, 2))
	require.NoError(t, e.Export(context.Background(), f.assets["rock_mat"]))
	_, err = os.Stat(filepath.Join(full, "assets", "rock_mat.mat"))
	require.NoError(t, err)
	require.NoError(t, e.Export(context.Background(), f.assets["rock"]))
	_, err = os.Stat(filepath.Join(full, "assets", "rock.bin"))
	require.NoError(t, err)
	require.Equal(t, 2, rec.settings["rock_mat"])
	require.Equal(t, 1, rec.settings["rock"])
}

func TestExportWithDependencies(t *testing.T) {
	f := newGraph(t, []string{"a", "b", "c", "d"}, map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": {"a", "d"},
	})
	rec := &recorder{}
	require.NoError(t, f.reg.Register(rec.binding(txtr, "texture")))
	require.NoError(t, f.reg.Register(rec.binding(matl, "material")))

	root := t.TempDir()
	e := NewExporter(f.reg, root)
	require.NoError(t, e.ExportWithDependencies(context.Background(), f.assets["a"]))
	require.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, rec.calls)

	// exported dependencies are not written again, the root always is
	require.NoError(t, e.ExportWithDependencies(context.Background(), f.assets["b"]))
	require.Equal(t, map[string]int{"a": 1, "b": 2, "c": 1, "d": 1}, rec.calls)

	for _, p := range []string{"texture/a.bin", "material/b.bin", "texture/c.bin", "material/d.bin"} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
		require.NoError(t, err, p)
	}
}

func TestExportListOnce(t *testing.T) {
	var all []string
	for _, c := range "abcdefghijklmnop" {
		all = append(all, string(c))
	}
	edges := make(map[string][]string)
	for i, n := range all {
		edges[n] = []string{all[(i+1)%len(all)], all[(i+5)%len(all)]}
	}
	f := newGraph(t, all, edges)
	rec := &recorder{}
	require.NoError(t, f.reg.Register(rec.binding(txtr, "texture")))
	require.NoError(t, f.reg.Register(rec.binding(matl, "material")))

	e := NewExporter(f.reg, t.TempDir(), WithExportThreads(4))
	require.NoError(t, e.ExportList(context.Background(), f.reg.Assets(), true))
	require.Len(t, rec.calls, len(all))
	for _, n := range all {
		require.Equal(t, 1, rec.calls[n], n)
	}

	// a new batch exports everything again
	require.NoError(t, e.ExportAll(context.Background()))
	for _, n := range all {
		require.Equal(t, 2, rec.calls[n], n)
	}
	require.Len(t, e.Manifest(), len(all))
}

func TestExportUnbound(t *testing.T) {
	f := newGraph(t, []string{"tex", "mat"}, map[string][]string{"mat": {"tex"}})
	rec := &recorder{}
	require.NoError(t, f.reg.Register(rec.binding(matl, "material")))

	e := NewExporter(f.reg, t.TempDir())
	err := e.Export(context.Background(), f.assets["tex"])
	require.ErrorIs(t, err, asset.ErrUnknownKind)

	require.NoError(t, e.ExportWithDependencies(context.Background(), f.assets["mat"]))
	require.NoError(t, e.ExportAll(context.Background()))
	require.Equal(t, map[string]int{"mat": 2}, rec.calls)
}

func TestExportErrors(t *testing.T) {
	f := newGraph(t, []string{"a", "b"}, nil)
	boom := errors.New("boom")
	require.NoError(t, f.reg.Register(asset.Binding{
		Type: txtr,
		Handler: asset.BindingFuncs{
			ExportFunc: func(_ context.Context, a *asset.Asset, w asset.ExportWriter, _ int) error {
				return w.WriteFile("../../escape.bin", a.Header)
			},
		},
	}))
	require.NoError(t, f.reg.Register(asset.Binding{
		Type: matl,
		Handler: asset.BindingFuncs{
			ExportFunc: func(context.Context, *asset.Asset, asset.ExportWriter, int) error {
				return boom
			},
		},
	}))

	root := t.TempDir()
	e := NewExporter(f.reg, filepath.Join(root, "out"))
	err := e.ExportAll(context.Background())
	require.ErrorIs(t, err, ErrEscapesRoot)
	require.ErrorIs(t, err, boom)
	_, statErr := os.Stat(filepath.Join(root, "escape.bin"))
	require.True(t, os.IsNotExist(statErr))
}

func TestExportManifest(t *testing.T) {
	f := newGraph(t, []string{"a", "b"}, nil)
	rec := &recorder{}
	require.NoError(t, f.reg.Register(rec.binding(txtr, "texture")))
	require.NoError(t, f.reg.Register(rec.binding(matl, "material")))

	e := NewExporter(f.reg, t.TempDir())
	require.NoError(t, e.ExportAll(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, e.WriteManifest(&buf))
	var again bytes.Buffer
	require.NoError(t, e.WriteManifest(&again))
	require.Equal(t, buf.Bytes(), again.Bytes())

	entries, err := ReadManifest(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "material/b.bin", entries[0].Path)
	require.Equal(t, "texture/a.bin", entries[1].Path)

	a := f.assets["a"]
	sum := blake3.Sum256(a.Header)
	require.Equal(t, a.GUID, entries[1].GUID)
	require.Equal(t, "txtr", entries[1].Type)
	require.Equal(t, int64(len(a.Header)), entries[1].Size)
	require.Equal(t, sum[:], entries[1].BLAKE3)
}
