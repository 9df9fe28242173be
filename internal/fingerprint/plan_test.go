// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/resolve"
	"github.com/lfreleng-actions/cratebuild/internal/unitgraph"
)

type fakeManifests map[ident.PackageId]*manifest.NormalizedManifest

func (m fakeManifests) Manifest(id ident.PackageId) (*manifest.NormalizedManifest, bool) {
	mf, ok := m[id]
	return mf, ok
}

type fakeInputs struct{}

func (fakeInputs) RustcVersion() string                                  { return "1.80.0" }
func (fakeInputs) ProfileHash(u unitgraph.Unit) string                   { return "profile" }
func (fakeInputs) FeaturesHash(u unitgraph.Unit) string                  { return "features" }
func (fakeInputs) LocalInputs(u unitgraph.Unit) ([]LocalInput, error)    { return nil, nil }

func pkg(t *testing.T, name, version string) ident.PackageId {
	t.Helper()
	src, err := ident.NewRegistrySource("https://github.com/rust-lang/crates.io-index")
	require.NoError(t, err)
	sv, err := ident.ParseSemVer(version)
	require.NoError(t, err)
	return ident.PackageId{Name: ident.PackageName(name), Version: sv, Source: src}
}

func buildGraph(t *testing.T) (*unitgraph.Graph, ident.PackageId, ident.PackageId) {
	t.Helper()
	root := pkg(t, "app", "0.1.0")
	dep := pkg(t, "left-pad", "1.0.0")
	manifests := fakeManifests{
		root: {
			Lib:          &manifest.Target{Kind: manifest.TargetLib, Name: "app"},
			Dependencies: map[manifest.DepKind][]manifest.Dependency{manifest.DepNormal: {{Name: "left-pad"}}},
		},
		dep: {Lib: &manifest.Target{Kind: manifest.TargetLib, Name: "left-pad"}},
	}
	res := &resolve.Resolution{
		Packages: []ident.PackageId{root, dep},
		Edges:    map[ident.PackageId][]ident.PackageId{root: {dep}},
	}
	g, err := unitgraph.Build(res, manifests, unitgraph.Request{Roots: []ident.PackageId{root}, HostTriple: "host", TargetTriple: "host"})
	require.NoError(t, err)
	return g, root, dep
}

func TestPlanAllUnitsDirtyWhenStoreEmpty(t *testing.T) {
	g, _, _ := buildGraph(t)
	store := NewStore(t.TempDir(), "debug")
	dirty, fps, err := Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	require.Len(t, dirty, len(g.Units))
	for _, idx := range g.Roots() {
		require.True(t, dirty[idx])
	}
	require.Len(t, fps, len(g.Units))
}

func TestPlanFreshAfterCommit(t *testing.T) {
	g, _, _ := buildGraph(t)
	store := NewStore(t.TempDir(), "debug")

	dirty, fps, err := Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	for idx := range g.Units {
		require.True(t, dirty[unitgraph.UnitIdx(idx)])
		require.NoError(t, Commit(store, g.Units[idx], fps[unitgraph.UnitIdx(idx)]))
	}

	dirty, _, err = Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	require.Empty(t, dirty)
}

func TestPlanDependencyDirtyPropagatesToDependent(t *testing.T) {
	g, root, dep := buildGraph(t)
	store := NewStore(t.TempDir(), "debug")

	_, fps, err := Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	for idx := range g.Units {
		require.NoError(t, Commit(store, g.Units[idx], fps[unitgraph.UnitIdx(idx)]))
	}

	var depIdx unitgraph.UnitIdx
	for i, u := range g.Units {
		if u.Pkg == dep {
			depIdx = unitgraph.UnitIdx(i)
		}
	}
	require.NoError(t, store.Invalidate(g.Units[depIdx].ShortHash()))

	dirty, _, err := Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	require.True(t, dirty[depIdx])

	var rootIdx unitgraph.UnitIdx
	for i, u := range g.Units {
		if u.Pkg == root {
			rootIdx = unitgraph.UnitIdx(i)
		}
	}
	require.True(t, dirty[rootIdx], "a dirty dependency must force its dependent dirty too")
}
