// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// DepKind distinguishes normal/dev/build dependency edges (§3).
type DepKind int

const (
	DepNormal DepKind = iota
	DepDev
	DepBuild
)

func (k DepKind) String() string {
	switch k {
	case DepDev:
		return "dev"
	case DepBuild:
		return "build"
	default:
		return "normal"
	}
}

// ArtifactSpec describes a Dep's `artifact = "bin"`-style request for a
// build artifact of a dependency rather than (or in addition to) its
// library, kept as an opaque passthrough since artifact-dependencies'
// downstream consumption is a unit-graph concern, not a manifest one.
type ArtifactSpec struct {
	Kind   string // "bin", "cdylib", "staticlib", ...
	Target string // optional explicit target triple
	Lib    bool   // also depend on the library
}

// Dependency is the normalized form of a manifest Dep entry (§3). By
// the time normalization finishes every Dependency has a concrete
// SourceId — no inheritance markers, no partial URLs.
type Dependency struct {
	Name            ident.PackageName
	Rename          string // optional_rename; empty means no rename
	Source          ident.SourceId
	Req             ident.VersionReq
	Kind            DepKind
	PlatformPredicate string // raw `cfg(...)` string or target triple, empty means unconditional
	Features        []string
	DefaultFeatures bool
	Optional        bool
	Public          bool
	Artifact        *ArtifactSpec
}

// ImportedName is the name used to refer to the dependency from code
// and from other feature values (`name/feature`): the rename if one
// was given, otherwise the package name, taken verbatim per §9's
// "name aliasing ambiguity" note (no underscore normalization).
func (d Dependency) ImportedName() string {
	if d.Rename != "" {
		return d.Rename
	}
	return string(d.Name)
}

// Target describes one compilation target: the library, a [[bin]], a
// [[example]], a [[test]] or a [[bench]] entry.
type TargetKind int

const (
	TargetLib TargetKind = iota
	TargetBin
	TargetExample
	TargetTest
	TargetBench
	TargetBuildScript
)

func (k TargetKind) String() string {
	switch k {
	case TargetLib:
		return "lib"
	case TargetBin:
		return "bin"
	case TargetExample:
		return "example"
	case TargetTest:
		return "test"
	case TargetBench:
		return "bench"
	case TargetBuildScript:
		return "custom-build"
	default:
		return "unknown"
	}
}

type Target struct {
	Kind      TargetKind
	Name      string
	Path      string
	CrateType []string
}

// Profile is the normalized form of a `[profile.<name>]` table.
type Profile struct {
	Name         string
	OptLevel     string
	Debug        bool
	LTO          bool
	Panic        string
	Incremental  bool
	CodegenUnits int
}

// FeatureValue is one parsed entry in the range of a Summary's feature
// map (§3's feature-map invariant): either a plain feature name, a
// `dep:<name>` forced-optional-dependency marker, or a `<name>/<feat>`
// / `<name>?/<feat>` dependency-feature reference.
type FeatureValue struct {
	Kind        FeatureValueKind
	FeatureName string // plain / dep-feature forms
	DepName     string // dep:/x-slash forms
	DepFeature  string // x/y and x?/y forms
	WeakDep     bool   // x?/y form: only enabled if x is otherwise enabled
}

type FeatureValueKind int

const (
	FeaturePlain FeatureValueKind = iota
	FeatureForceDep
	FeatureDepFeature
)

// NormalizedManifest is the output of normalize(): a member package's
// manifest with all workspace-inheritance markers resolved away (§4.B).
type NormalizedManifest struct {
	Name        ident.PackageName
	Version     ident.SemVer
	Authors     []string
	Description string
	License     string
	Homepage    string
	Repository  string
	Documentation string
	Readme      string
	Keywords    []string
	Categories  []string
	Links       string
	RustVersion string
	DefaultRun  string

	// BuildScript is nil when no build script runs, otherwise the
	// script's path.
	BuildScript *string

	Lib      *Target
	Bins     []Target
	Examples []Target
	Tests    []Target
	Benches  []Target

	Dependencies map[DepKind][]Dependency
	// TargetDependencies holds cfg-gated dependency tables keyed by the
	// raw `[target.<cfg>.*]` predicate string.
	TargetDependencies map[string]map[DepKind][]Dependency

	Features map[string][]FeatureValue
	Profiles map[string]Profile

	Warnings   []string
	UnusedKeys []string
}
