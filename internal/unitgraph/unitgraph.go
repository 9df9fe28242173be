// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package unitgraph builds the compile-unit graph from a completed
// resolution: one Unit per (PackageId, Target, Profile, Mode, Triple,
// FeatureSet) tuple, with edges "A must finish before B starts" (§4.F,
// glossary "Unit"). Per §9's ownership-graph design note, units are
// allocated in one arena and referenced by index rather than pointer,
// since the teacher's domain (the source program) used reference-
// counted pointers and interior mutability that a Go reimplementation
// should not carry over.
package unitgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/resolve"
)

// Mode distinguishes what a unit does: compile a library/binary, run
// a test/bench harness, or compile/run a build script.
type Mode int

const (
	ModeBuild Mode = iota
	ModeTest
	ModeBuildScriptCompile
	ModeBuildScriptRun
)

func (m Mode) String() string {
	switch m {
	case ModeTest:
		return "test"
	case ModeBuildScriptCompile:
		return "build-script-build"
	case ModeBuildScriptRun:
		return "run-custom-build"
	default:
		return "build"
	}
}

// UnitIdx is an arena index identifying one Unit within a Graph.
type UnitIdx int

// Unit is one invocation of the compiler, or one run of a build
// script (glossary "Unit").
type Unit struct {
	Pkg      ident.PackageId
	Target   manifest.Target
	Profile  manifest.Profile
	Mode     Mode
	Triple   string
	ForHost  bool // compiled to run on the host, not the target triple (proc macros, build-script binaries)
	Features []string
}

// key is the tuple identity two Units are compared by when deciding
// whether they are "the same unit" (feature unification collapses
// two callers' requests for the same unit into one compile, §8.4).
func (u Unit) key() string {
	feats := append([]string(nil), u.Features...)
	sort.Strings(feats)
	return fmt.Sprintf("%s|%s:%s|%s|%s|%s|%v|%s",
		u.Pkg, u.Target.Kind, u.Target.Name, u.Profile.Name, u.Mode, u.Triple, u.ForHost, strings.Join(feats, ","))
}

// ShortHash is the stable unit-hash used to key target-directory
// output paths and fingerprint files on disk (§6 "a short unit-hash").
func (u Unit) ShortHash() string {
	sum := sha256.Sum256([]byte(u.key()))
	return hex.EncodeToString(sum[:])[:16]
}

// Graph is the arena of Units plus the "must finish before" edge set.
type Graph struct {
	Units []Unit
	edges map[UnitIdx][]UnitIdx
	index map[string]UnitIdx
}

func newGraph() *Graph {
	return &Graph{edges: map[UnitIdx][]UnitIdx{}, index: map[string]UnitIdx{}}
}

// intern finds or allocates the arena slot for u.
func (g *Graph) intern(u Unit) UnitIdx {
	k := u.key()
	if idx, ok := g.index[k]; ok {
		return idx
	}
	idx := UnitIdx(len(g.Units))
	g.Units = append(g.Units, u)
	g.index[k] = idx
	return idx
}

func (g *Graph) addEdge(from, to UnitIdx) {
	if from == to {
		return
	}
	for _, e := range g.edges[from] {
		if e == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// DependenciesOf returns the units that must finish before u starts,
// in deterministic order.
func (g *Graph) DependenciesOf(u UnitIdx) []UnitIdx {
	deps := append([]UnitIdx(nil), g.edges[u]...)
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

// Roots returns every unit index with no dependents pointing at it
// from outside, i.e. the units the caller asked to build directly.
// The Graph does not store the requested roots separately; this
// derives them from the edge set.
func (g *Graph) Roots() []UnitIdx {
	hasParent := map[UnitIdx]bool{}
	for _, deps := range g.edges {
		for _, d := range deps {
			hasParent[d] = true
		}
	}
	var roots []UnitIdx
	for i := range g.Units {
		if !hasParent[UnitIdx(i)] {
			roots = append(roots, UnitIdx(i))
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// Manifests resolves a package's normalized manifest. The unit graph
// never loads manifests itself; that remains internal/manifest's job.
type Manifests interface {
	Manifest(id ident.PackageId) (*manifest.NormalizedManifest, bool)
}

// Request describes what to build: the workspace members being built
// directly, and the profile/triple/mode selection the (out-of-scope)
// command front end assembled (§1 Non-goals places CLI dispatch
// outside the core).
type Request struct {
	Roots        []ident.PackageId
	Profile      manifest.Profile
	HostTriple   string
	TargetTriple string
	Mode         Mode
	// IncludeTests adds each root's [[test]] targets (and [[bench]] for
	// ModeTest) in addition to its library/bin targets.
	IncludeTests bool
}

// Build constructs the full unit graph for res using manifests, per
// §4.F "compile-unit construction, profile application, feature
// propagation".
func Build(res *resolve.Resolution, manifests Manifests, req Request) (*Graph, error) {
	g := newGraph()
	libMemo := map[string]UnitIdx{}
	runMemo := map[ident.PackageId]UnitIdx{}

	var ensureLib func(id ident.PackageId, forHost bool) (UnitIdx, error)
	ensureLib = func(id ident.PackageId, forHost bool) (UnitIdx, error) {
		triple := req.TargetTriple
		if forHost {
			triple = req.HostTriple
		}
		memoKey := fmt.Sprintf("%s|%v", id, forHost)
		if idx, ok := libMemo[memoKey]; ok {
			return idx, nil
		}
		mf, ok := manifests.Manifest(id)
		if !ok {
			return 0, fmt.Errorf("unit graph: no manifest for %s", id)
		}
		if mf.Lib == nil {
			return 0, fmt.Errorf("unit graph: package %s has no library target to depend on", id)
		}
		u := Unit{Pkg: id, Target: *mf.Lib, Profile: req.Profile, Mode: ModeBuild, Triple: triple, ForHost: forHost, Features: res.Features[id]}
		idx := g.intern(u)
		libMemo[memoKey] = idx

		if mf.BuildScript != nil {
			runIdx, err := ensureBuildScriptRun(g, runMemo, id, mf, req)
			if err != nil {
				return 0, err
			}
			g.addEdge(idx, runIdx)
		}

		for _, dep := range res.Edges[id] {
			depMf, ok := manifests.Manifest(dep)
			if !ok || depMf.Lib == nil {
				continue
			}
			// Build-dependencies, and everything a for-host unit in turn
			// depends on, always compile for the host: a proc-macro or
			// build-script binary's own dependency tree is host code even
			// when the dependent package is being cross-compiled (§4.H
			// "plugin libraries").
			depForHost := forHost || dependencyKind(mf, dep) == manifest.DepBuild
			depIdx, err := ensureLib(dep, depForHost)
			if err != nil {
				return 0, err
			}
			g.addEdge(idx, depIdx)
		}
		return idx, nil
	}

	for _, root := range req.Roots {
		mf, ok := manifests.Manifest(root)
		if !ok {
			return nil, fmt.Errorf("unit graph: no manifest for root %s", root)
		}
		for _, t := range selectRootTargets(mf, req) {
			u := Unit{Pkg: root, Target: t, Profile: req.Profile, Mode: req.Mode, Triple: req.TargetTriple, Features: res.Features[root]}
			idx := g.intern(u)

			if mf.BuildScript != nil {
				runIdx, err := ensureBuildScriptRun(g, runMemo, root, mf, req)
				if err != nil {
					return nil, err
				}
				g.addEdge(idx, runIdx)
			}

			for _, dep := range res.Edges[root] {
				depMf, ok := manifests.Manifest(dep)
				if !ok || depMf.Lib == nil {
					continue
				}
				forHost := dependencyKind(mf, dep) == manifest.DepBuild
				depIdx, err := ensureLib(dep, forHost)
				if err != nil {
					return nil, err
				}
				g.addEdge(idx, depIdx)
			}
		}
	}
	return g, nil
}

// ensureBuildScriptRun interns the compile-then-run pair for pkg's
// build script (§4.H "two fingerprint phases"), memoized so every
// dependent shares the same run unit.
func ensureBuildScriptRun(g *Graph, memo map[ident.PackageId]UnitIdx, pkg ident.PackageId, mf *manifest.NormalizedManifest, req Request) (UnitIdx, error) {
	if idx, ok := memo[pkg]; ok {
		return idx, nil
	}
	path := ""
	if mf.BuildScript != nil {
		path = *mf.BuildScript
	}
	target := manifest.Target{Kind: manifest.TargetBuildScript, Name: "build-script-build", Path: path}
	compile := Unit{Pkg: pkg, Target: target, Profile: req.Profile, Mode: ModeBuildScriptCompile, Triple: req.HostTriple, ForHost: true}
	compileIdx := g.intern(compile)
	run := Unit{Pkg: pkg, Target: target, Profile: req.Profile, Mode: ModeBuildScriptRun, Triple: req.HostTriple, ForHost: true}
	runIdx := g.intern(run)
	g.addEdge(runIdx, compileIdx)
	memo[pkg] = runIdx
	return runIdx, nil
}

// selectRootTargets picks which of a root package's targets become
// units: its library and bins always, plus tests/benches when
// req.IncludeTests is set.
func selectRootTargets(mf *manifest.NormalizedManifest, req Request) []manifest.Target {
	var out []manifest.Target
	if mf.Lib != nil {
		out = append(out, *mf.Lib)
	}
	out = append(out, mf.Bins...)
	if req.IncludeTests {
		out = append(out, mf.Tests...)
		if req.Mode == ModeTest {
			out = append(out, mf.Benches...)
		}
	}
	return out
}

// dependencyKind looks up the DepKind a dependent's manifest declared
// for dep, matched by name since a patched/replaced source may differ
// from what the manifest originally named.
func dependencyKind(mf *manifest.NormalizedManifest, dep ident.PackageId) manifest.DepKind {
	for kind, deps := range mf.Dependencies {
		for _, d := range deps {
			if d.Name == dep.Name {
				return kind
			}
		}
	}
	return manifest.DepNormal
}
