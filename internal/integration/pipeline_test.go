// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package integration exercises the full manifest -> resolve ->
// unit graph -> fingerprint -> build-script -> job queue pipeline
// together, the way the teacher's own end-to-end tests drove a
// detector -> extractor -> artifact-writer chain in one test rather
// than unit-testing each stage in isolation.
package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/cratebuild/internal/buildscript"
	"github.com/lfreleng-actions/cratebuild/internal/environment"
	"github.com/lfreleng-actions/cratebuild/internal/fingerprint"
	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/jobqueue"
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

func (fakeInputs) RustcVersion() string                               { return "1.80.0" }
func (fakeInputs) ProfileHash(u unitgraph.Unit) string                { return "debug" }
func (fakeInputs) FeaturesHash(u unitgraph.Unit) string               { return strings.Join(u.Features, ",") }
func (fakeInputs) LocalInputs(u unitgraph.Unit) ([]fingerprint.LocalInput, error) {
	return nil, nil
}

func pkg(t *testing.T, name, version string) ident.PackageId {
	t.Helper()
	src, err := ident.NewPathSource("/workspace/" + name)
	require.NoError(t, err)
	sv, err := ident.ParseSemVer(version)
	require.NoError(t, err)
	return ident.PackageId{Name: ident.PackageName(name), Version: sv, Source: src}
}

// TestPipelineBuildsGraphPlansFreshnessAndRunsBuildScript drives a
// two-package workspace (an app depending on a `links`-bearing crate
// with a build script) through unit-graph construction, a first
// (all-dirty) fingerprint plan, execution through the job queue, a
// build-script parse feeding into the build-script unit's environment,
// and a second (all-fresh) fingerprint plan.
func TestPipelineBuildsGraphPlansFreshnessAndRunsBuildScript(t *testing.T) {
	app := pkg(t, "app", "0.1.0")
	sys := pkg(t, "openssl-sys", "3.0.0")
	buildRs := "build.rs"

	manifests := fakeManifests{
		app: {
			Lib:          &manifest.Target{Kind: manifest.TargetLib, Name: "app"},
			Dependencies: map[manifest.DepKind][]manifest.Dependency{manifest.DepNormal: {{Name: "openssl-sys"}}},
		},
		sys: {
			Lib:         &manifest.Target{Kind: manifest.TargetLib, Name: "openssl-sys"},
			Links:       "openssl",
			BuildScript: &buildRs,
		},
	}

	res := &resolve.Resolution{
		Packages: []ident.PackageId{app, sys},
		Edges:    map[ident.PackageId][]ident.PackageId{app: {sys}},
	}

	g, err := unitgraph.Build(res, manifests, unitgraph.Request{
		Roots:        []ident.PackageId{app},
		HostTriple:   "x86_64-unknown-linux-gnu",
		TargetTriple: "x86_64-unknown-linux-gnu",
	})
	require.NoError(t, err)

	store := fingerprint.NewStore(t.TempDir(), "debug")
	dirty, fps, err := fingerprint.Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	require.Len(t, dirty, len(g.Units))

	deps := map[unitgraph.UnitIdx][]unitgraph.UnitIdx{}
	for i := range g.Units {
		idx := unitgraph.UnitIdx(i)
		deps[idx] = g.DependenciesOf(idx)
	}

	runQueue := jobqueue.New(4, false, nil)
	plan := jobqueue.Plan{Jobs: map[unitgraph.UnitIdx]jobqueue.Job{}, Deps: deps}
	for i, u := range g.Units {
		idx := unitgraph.UnitIdx(i)
		u := u
		plan.Jobs[idx] = jobqueue.Job{
			Unit: idx,
			Pkg:  string(u.Pkg.Name),
			Run: func(ctx context.Context, pluginDirs []string) error {
				return nil
			},
		}
	}
	result, err := runQueue.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, len(g.Units))

	for i := range g.Units {
		idx := unitgraph.UnitIdx(i)
		require.NoError(t, fingerprint.Commit(store, g.Units[idx], fps[idx]))
	}

	dirty, _, err = fingerprint.Plan(g, store, fakeInputs{})
	require.NoError(t, err)
	require.Empty(t, dirty, "every unit must be fresh once its fingerprint has been committed")

	// The build-script run unit for openssl-sys publishes metadata that
	// the dependent's build-script environment must see via DEP_*.
	parser := &buildscript.Parser{OutDir: "/target/debug/build/openssl-sys-abc/out"}
	scriptOutput, err := parser.Parse(strings.NewReader(
		"cargo:rustc-link-lib=ssl\n" +
			"cargo:rustc-link-search=/target/debug/build/openssl-sys-abc/out/lib\n" +
			"cargo:metadata=include=/usr/include/openssl\n",
	))
	require.NoError(t, err)
	require.Equal(t, []string{"ssl"}, scriptOutput.LinkLib)

	env := environment.ForBuildScript(environment.BuildScriptRequest{
		Links: "openssl",
		DepMetadata: map[string]map[string]string{
			"openssl": scriptOutput.Metadata,
		},
	})
	require.Equal(t, "/usr/include/openssl", env["DEP_OPENSSL_INCLUDE"])
	require.Equal(t, "openssl", env["CARGO_MANIFEST_LINKS"])
}
