// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package unitgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/resolve"
)

func mustPkg(t *testing.T, name, version string) ident.PackageId {
	t.Helper()
	src, err := ident.NewRegistrySource("https://github.com/rust-lang/crates.io-index")
	require.NoError(t, err)
	sv, err := ident.ParseSemVer(version)
	require.NoError(t, err)
	return ident.PackageId{Name: ident.PackageName(name), Version: sv, Source: src}
}

type fakeManifests map[ident.PackageId]*manifest.NormalizedManifest

func (m fakeManifests) Manifest(id ident.PackageId) (*manifest.NormalizedManifest, bool) {
	mf, ok := m[id]
	return mf, ok
}

func TestBuildSimpleLibGraph(t *testing.T) {
	root := mustPkg(t, "app", "0.1.0")
	dep := mustPkg(t, "left-pad", "1.0.0")

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
		Features: map[ident.PackageId][]string{},
	}

	g, err := Build(res, manifests, Request{Roots: []ident.PackageId{root}, HostTriple: "x86_64-unknown-linux-gnu", TargetTriple: "x86_64-unknown-linux-gnu"})
	require.NoError(t, err)
	require.Len(t, g.Units, 2)

	roots := g.Roots()
	require.Len(t, roots, 1)
	require.Equal(t, root, g.Units[roots[0]].Pkg)

	deps := g.DependenciesOf(roots[0])
	require.Len(t, deps, 1)
	require.Equal(t, dep, g.Units[deps[0]].Pkg)
}

func TestBuildScriptProducesCompileAndRunUnits(t *testing.T) {
	root := mustPkg(t, "app", "0.1.0")
	buildRs := "build.rs"

	manifests := fakeManifests{
		root: {
			Lib:         &manifest.Target{Kind: manifest.TargetLib, Name: "app"},
			BuildScript: &buildRs,
		},
	}
	res := &resolve.Resolution{Packages: []ident.PackageId{root}, Edges: map[ident.PackageId][]ident.PackageId{}}

	g, err := Build(res, manifests, Request{Roots: []ident.PackageId{root}, HostTriple: "host", TargetTriple: "target"})
	require.NoError(t, err)

	var run, compile *Unit
	for i := range g.Units {
		u := g.Units[i]
		switch u.Mode {
		case ModeBuildScriptRun:
			run = &g.Units[i]
		case ModeBuildScriptCompile:
			compile = &g.Units[i]
		}
	}
	require.NotNil(t, run)
	require.NotNil(t, compile)
	require.True(t, run.ForHost)
	require.True(t, compile.ForHost)
	require.Equal(t, "host", run.Triple)

	runIdx := UnitIdx(-1)
	for i, u := range g.Units {
		if u.Mode == ModeBuildScriptRun {
			runIdx = UnitIdx(i)
		}
	}
	deps := g.DependenciesOf(runIdx)
	require.Len(t, deps, 1)
	require.Equal(t, ModeBuildScriptCompile, g.Units[deps[0]].Mode)
}

func TestBuildDependencyForHostPropagatesThroughBuildDeps(t *testing.T) {
	root := mustPkg(t, "app", "0.1.0")
	codegen := mustPkg(t, "codegen", "1.0.0")
	shared := mustPkg(t, "shared", "1.0.0")

	manifests := fakeManifests{
		root: {
			Lib:          &manifest.Target{Kind: manifest.TargetLib, Name: "app"},
			Dependencies: map[manifest.DepKind][]manifest.Dependency{manifest.DepBuild: {{Name: "codegen"}}},
		},
		codegen: {
			Lib:          &manifest.Target{Kind: manifest.TargetLib, Name: "codegen"},
			Dependencies: map[manifest.DepKind][]manifest.Dependency{manifest.DepNormal: {{Name: "shared"}}},
		},
		shared: {Lib: &manifest.Target{Kind: manifest.TargetLib, Name: "shared"}},
	}

	res := &resolve.Resolution{
		Packages: []ident.PackageId{root, codegen, shared},
		Edges: map[ident.PackageId][]ident.PackageId{
			root:    {codegen},
			codegen: {shared},
		},
	}

	g, err := Build(res, manifests, Request{Roots: []ident.PackageId{root}, HostTriple: "host", TargetTriple: "target"})
	require.NoError(t, err)

	var codegenUnit, sharedUnit *Unit
	for i := range g.Units {
		switch g.Units[i].Pkg {
		case codegen:
			codegenUnit = &g.Units[i]
		case shared:
			sharedUnit = &g.Units[i]
		}
	}
	require.NotNil(t, codegenUnit)
	require.NotNil(t, sharedUnit)
	require.True(t, codegenUnit.ForHost)
	require.True(t, sharedUnit.ForHost, "a build-dependency's own dependencies compile for the host too")
	require.Equal(t, "host", sharedUnit.Triple)
}

func TestUnitFeatureUnificationCollapsesSameKeyIntoOneUnit(t *testing.T) {
	g := newGraph()
	pkg := mustPkg(t, "left-pad", "1.0.0")
	u1 := Unit{Pkg: pkg, Target: manifest.Target{Kind: manifest.TargetLib, Name: "left-pad"}, Features: []string{"b", "a"}}
	u2 := Unit{Pkg: pkg, Target: manifest.Target{Kind: manifest.TargetLib, Name: "left-pad"}, Features: []string{"a", "b"}}
	idx1 := g.intern(u1)
	idx2 := g.intern(u2)
	require.Equal(t, idx1, idx2, "feature order must not change unit identity")
}
