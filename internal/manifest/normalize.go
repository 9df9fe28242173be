// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// Normalize resolves every workspace-inheritance marker in the member
// manifest rooted at memberDir against ws, validates the result and
// returns a NormalizedManifest (§4.B normalize(member, workspace) ->
// NormalizedManifest). This is the generalization of the teacher's
// extractFromCargoToml: that function only ever read a handful of
// version-adjacent fields out of a CargoToml struct; this one resolves
// every inheritable field the manifest format defines and turns the
// dependency tables into concrete Dependency values with resolved
// SourceIds.
func Normalize(memberDir string, ws *Workspace) (*NormalizedManifest, error) {
	data, unused, raw, err := readMemberManifest(memberDir)
	if err != nil {
		return nil, err
	}
	_ = data

	pkg := raw.Package
	if pkg == nil {
		pkg = raw.Project
	}
	if pkg == nil {
		return nil, fmt.Errorf("%s: missing [package] table", memberDir)
	}
	if raw.Package != nil && raw.Project != nil {
		return nil, fmt.Errorf("%s: both [package] and [project] given; use [package]", memberDir)
	}

	var warnings []string
	if raw.Project != nil {
		warnings = append(warnings, "[project] is a deprecated alias for [package]")
	}
	if len(raw.Patch) > 0 {
		warnings = append(warnings, "[patch] has no effect outside a workspace root's [workspace] table")
	}
	if len(raw.Replace) > 0 {
		warnings = append(warnings, "[replace] has no effect outside a workspace root's [workspace] table")
	}

	wsPkg := (*rawPackage)(nil)
	hasWs := false
	if ws != nil && ws.Inheritable != nil {
		wsPkg = ws.Inheritable
		hasWs = true
	}

	name, err := ident.NewPackageName(pkg.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}

	versionStr, err := resolveStringField("version", pkg.Version, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Version }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	if versionStr == "" {
		versionStr = "0.0.0"
	}
	version, err := ident.ParseSemVer(versionStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}

	authors, err := resolveStringSliceField("authors", pkg.Authors, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Authors }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	description, err := resolveStringField("description", pkg.Description, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Description }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	license, err := resolveStringField("license", pkg.License, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.License }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	homepage, err := resolveStringField("homepage", pkg.Homepage, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Homepage }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	repository, err := resolveStringField("repository", pkg.Repository, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Repository }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	documentation, err := resolveStringField("documentation", pkg.Documentation, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Documentation }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	keywords, err := resolveStringSliceField("keywords", pkg.Keywords, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Keywords }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	categories, err := resolveStringSliceField("categories", pkg.Categories, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Categories }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	rustVersion, err := resolveStringField("rust-version", pkg.RustVersion, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.RustVersion }), hasWs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}

	readme, err := resolveReadme(pkg.Readme, wsValueOf(hasWs, wsPkg, func(p *rawPackage) interface{} { return p.Readme }), hasWs, memberDir, name)
	if err != nil {
		return nil, err
	}

	buildScript, err := resolveBuildField(memberDir, pkg.Build)
	if err != nil {
		return nil, err
	}

	deps, _, err := normalizeDeps(raw.Dependencies, nil, ws, DepNormal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	devDeps, devAlias, err := normalizeDeps(raw.DevDeps1, raw.DevDeps2, ws, DepDev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	buildDeps, buildAlias, err := normalizeDeps(raw.BuildDeps1, raw.BuildDeps2, ws, DepBuild)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}
	if devAlias != "" {
		warnings = append(warnings, devAlias)
	}
	if buildAlias != "" {
		warnings = append(warnings, buildAlias)
	}

	targetDeps := map[string]map[DepKind][]Dependency{}
	for predicate, cfg := range raw.Target {
		normal, _, err := normalizeDeps(cfg.Dependencies, nil, ws, DepNormal)
		if err != nil {
			return nil, fmt.Errorf("%s: target %q: %w", memberDir, predicate, err)
		}
		dev, devAl, err := normalizeDeps(cfg.DevDeps, nil, ws, DepDev)
		if err != nil {
			return nil, fmt.Errorf("%s: target %q: %w", memberDir, predicate, err)
		}
		build, _, err := normalizeDeps(cfg.BuildDeps, nil, ws, DepBuild)
		if err != nil {
			return nil, fmt.Errorf("%s: target %q: %w", memberDir, predicate, err)
		}
		if devAl != "" {
			warnings = append(warnings, devAl)
		}
		targetDeps[predicate] = map[DepKind][]Dependency{
			DepNormal: normal,
			DepDev:    dev,
			DepBuild:  build,
		}
	}

	features, err := parseFeatures(raw.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", memberDir, err)
	}

	profiles := map[string]Profile{}
	for name, p := range raw.Profile {
		profiles[name] = normalizeProfile(name, p)
	}

	m := &NormalizedManifest{
		Name:          name,
		Version:       version,
		Authors:       authors,
		Description:   description,
		License:       license,
		Homepage:      homepage,
		Repository:    repository,
		Documentation: documentation,
		Readme:        readme,
		Keywords:      keywords,
		Categories:    categories,
		Links:         pkg.Links,
		RustVersion:   rustVersion,
		DefaultRun:    pkg.DefaultRun,
		BuildScript:   buildScript,
		Lib:           targetFromRaw(raw.Lib, TargetLib, name.String()),
		Dependencies: map[DepKind][]Dependency{
			DepNormal: deps,
			DepDev:    devDeps,
			DepBuild:  buildDeps,
		},
		TargetDependencies: targetDeps,
		Features:           features,
		Profiles:           profiles,
		Warnings:           warnings,
		UnusedKeys:         unused,
	}
	for _, t := range raw.Bin {
		m.Bins = append(m.Bins, *targetFromRaw(&t, TargetBin, t.Name))
	}
	for _, t := range raw.Example {
		m.Examples = append(m.Examples, *targetFromRaw(&t, TargetExample, t.Name))
	}
	for _, t := range raw.Test {
		m.Tests = append(m.Tests, *targetFromRaw(&t, TargetTest, t.Name))
	}
	for _, t := range raw.Bench {
		m.Benches = append(m.Benches, *targetFromRaw(&t, TargetBench, t.Name))
	}
	return m, nil
}

func wsValueOf(hasWs bool, p *rawPackage, get func(*rawPackage) interface{}) interface{} {
	if !hasWs || p == nil {
		return nil
	}
	return get(p)
}

func targetFromRaw(t *rawTarget, kind TargetKind, fallbackName string) *Target {
	if t == nil {
		if kind != TargetLib {
			return &Target{Kind: kind, Name: fallbackName}
		}
		return nil
	}
	name := t.Name
	if name == "" {
		name = fallbackName
	}
	path := t.Path
	if path == "" {
		path = defaultTargetPath(kind, name)
	}
	return &Target{Kind: kind, Name: name, Path: path, CrateType: t.CrateType}
}

func defaultTargetPath(kind TargetKind, name string) string {
	switch kind {
	case TargetLib:
		return filepath.Join("src", "lib.rs")
	case TargetBin:
		if name == "" {
			return filepath.Join("src", "main.rs")
		}
		return filepath.Join("src", "bin", name+".rs")
	case TargetExample:
		return filepath.Join("examples", name+".rs")
	case TargetTest:
		return filepath.Join("tests", name+".rs")
	case TargetBench:
		return filepath.Join("benches", name+".rs")
	default:
		return ""
	}
}

// resolveReadme implements §4.B's readme rule: a bool false suppresses
// the default, true or an absent field selects the conventional
// "README.md" name, and a string is used verbatim.
func resolveReadme(v interface{}, wsValue interface{}, hasWs bool, memberDir string, name ident.PackageName) (string, error) {
	if v == nil {
		return "README.md", nil
	}
	if isMarker, inherit := workspaceMarker(v); isMarker {
		if !inherit {
			return "", fmt.Errorf("field %q: `workspace = false` is not meaningful", "readme")
		}
		if !hasWs {
			return "", fmt.Errorf("field \"readme\" requested inheritance but the workspace does not define it")
		}
		return resolveReadme(wsValue, nil, false, memberDir, name)
	}
	switch t := v.(type) {
	case bool:
		if !t {
			return "", nil
		}
		return "README.md", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("field \"readme\": expected a bool or string")
	}
}

// resolveBuildField implements §4.B's build field: absent means "probe
// for build.rs", false means "no build script", a string names an
// explicit path, and a list means a build script plus extra
// link-search helper sources (kept only as the script path here; the
// helper sources are a unit-graph concern).
func resolveBuildField(memberDir string, v interface{}) (*string, error) {
	if v == nil {
		if _, err := os.Stat(filepath.Join(memberDir, "build.rs")); err == nil {
			s := "build.rs"
			return &s, nil
		}
		return nil, nil
	}
	switch t := v.(type) {
	case bool:
		if !t {
			return nil, nil
		}
		s := "build.rs"
		return &s, nil
	case string:
		return &t, nil
	case []interface{}:
		if len(t) == 0 {
			return nil, nil
		}
		if s, ok := t[0].(string); ok {
			return &s, nil
		}
		return nil, fmt.Errorf("field \"build\": expected a list of strings")
	default:
		return nil, fmt.Errorf("field \"build\": expected a bool, string or list of strings")
	}
}

func normalizeProfile(name string, p rawProfile) Profile {
	prof := Profile{Name: name, Panic: p.Panic, CodegenUnits: 16}
	if s, ok := p.OptLevel.(string); ok {
		prof.OptLevel = s
	} else if f, ok := p.OptLevel.(int64); ok {
		prof.OptLevel = fmt.Sprintf("%d", f)
	}
	if b, ok := p.Debug.(bool); ok {
		prof.Debug = b
	}
	if b, ok := p.LTO.(bool); ok {
		prof.LTO = b
	}
	if b, ok := p.Incremental.(bool); ok {
		prof.Incremental = b
	}
	if n, ok := p.CodegenUnits.(int64); ok {
		prof.CodegenUnits = int(n)
	}
	return prof
}

func readMemberManifest(memberDir string) ([]byte, []string, *rawDocument, error) {
	path := filepath.Join(memberDir, manifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	raw, unused, err := parseRaw(data)
	if err != nil {
		return nil, nil, nil, err
	}
	return data, unused, raw, nil
}

// normalizeDeps picks between a canonical and an alias dependency-table
// spelling (e.g. `dev-dependencies` vs `dev_dependencies`; §4.B's
// preference rule prefers the hyphenated form and warns when only the
// underscored alias is present), resolving each entry against the
// workspace when it carries a `{ workspace = true }` marker.
func normalizeDeps(primary, alias map[string]interface{}, ws *Workspace, kind DepKind) ([]Dependency, string, error) {
	table := primary
	warning := ""
	if len(table) == 0 && len(alias) > 0 {
		table = alias
		if kind == DepDev {
			warning = "`dev-dependencies` is preferred over `dev_dependencies`"
		} else if kind == DepBuild {
			warning = "`build-dependencies` is preferred over `build_dependencies`"
		}
	}
	deps, err := normalizeDependencyTable(table, ws, kind)
	if err != nil {
		return nil, "", err
	}
	return deps, warning, nil
}

func normalizeDependencyTable(table map[string]interface{}, ws *Workspace, kind DepKind) ([]Dependency, error) {
	var out []Dependency
	for name, raw := range table {
		dep, err := normalizeOneDep(name, raw, ws, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}

func normalizeOneDep(name string, raw interface{}, ws *Workspace, kind DepKind) (Dependency, error) {
	pkgName, err := ident.NewPackageName(name)
	if err != nil {
		return Dependency{}, err
	}

	// Shorthand: `name = "1.2.3"` is a version requirement against the
	// default registry.
	if s, ok := raw.(string); ok {
		req, err := ident.ParseVersionReq(s)
		if err != nil {
			return Dependency{}, fmt.Errorf("dependency %q: %w", name, err)
		}
		src, err := defaultRegistrySource(ws)
		if err != nil {
			return Dependency{}, err
		}
		return Dependency{Name: pkgName, Source: src, Req: req, Kind: kind, DefaultFeatures: true}, nil
	}

	table, ok := raw.(map[string]interface{})
	if !ok {
		return Dependency{}, fmt.Errorf("dependency %q: expected a string or table", name)
	}

	if w, _ := table["workspace"].(bool); w {
		if ws == nil || ws.DepSource == nil {
			return Dependency{}, fmt.Errorf("dependency %q requested inheritance but the workspace defines no such dependency", name)
		}
		wsRaw, ok := ws.DepSource[name]
		if !ok {
			return Dependency{}, fmt.Errorf("dependency %q requested inheritance but the workspace defines no such dependency", name)
		}
		dep, err := normalizeOneDep(name, wsRaw, nil, kind)
		if err != nil {
			return Dependency{}, err
		}
		// A member may still override features and optional on top of an
		// inherited source+version (§4.B); default-features always comes
		// from the workspace entry.
		if feats, ok := table["features"].([]interface{}); ok {
			dep.Features = toStringSlice(feats)
		}
		if opt, ok := table["optional"].(bool); ok {
			dep.Optional = opt
		}
		return dep, nil
	}

	dep := Dependency{Name: pkgName, Kind: kind, DefaultFeatures: true}

	if rename, ok := table["package"].(string); ok {
		dep.Rename = name
		dep.Name, err = ident.NewPackageName(rename)
		if err != nil {
			return Dependency{}, err
		}
	}

	if versionStr, ok := table["version"].(string); ok {
		dep.Req, err = ident.ParseVersionReq(versionStr)
		if err != nil {
			return Dependency{}, fmt.Errorf("dependency %q: %w", name, err)
		}
	}

	switch {
	case table["path"] != nil:
		p, _ := table["path"].(string)
		dep.Source, err = ident.NewPathSource(p)
	case table["git"] != nil:
		g, _ := table["git"].(string)
		ref := ""
		if b, ok := table["branch"].(string); ok {
			ref = b
		} else if t, ok := table["tag"].(string); ok {
			ref = t
		} else if r, ok := table["rev"].(string); ok {
			ref = r
		}
		dep.Source, err = ident.NewGitSource(g, ref)
	case table["registry"] != nil:
		r, _ := table["registry"].(string)
		dep.Source, err = ident.NewRegistrySource(r)
	default:
		dep.Source, err = defaultRegistrySource(ws)
	}
	if err != nil {
		return Dependency{}, fmt.Errorf("dependency %q: %w", name, err)
	}

	if feats, ok := table["features"].([]interface{}); ok {
		dep.Features = toStringSlice(feats)
	}
	if df, ok := table["default-features"].(bool); ok {
		dep.DefaultFeatures = df
	} else if df, ok := table["default_features"].(bool); ok {
		dep.DefaultFeatures = df
	}
	if opt, ok := table["optional"].(bool); ok {
		dep.Optional = opt
	}
	if pub, ok := table["public"].(bool); ok {
		dep.Public = pub
	}
	if cfg, ok := table["target"].(string); ok {
		dep.PlatformPredicate = cfg
	}
	if art, ok := table["artifact"].(string); ok {
		dep.Artifact = &ArtifactSpec{Kind: art}
		if t, ok := table["target"].(string); ok {
			dep.Artifact.Target = t
		}
		if lib, ok := table["lib"].(bool); ok {
			dep.Artifact.Lib = lib
		}
	}

	return dep, nil
}

// defaultRegistrySource is the implicit source for a dependency naming
// no explicit path/git/registry: crates.io, unless the caller is
// resolving against a workspace whose own default differs (left as the
// standard registry, since the manifest format has no per-workspace
// default-registry override).
func defaultRegistrySource(_ *Workspace) (ident.SourceId, error) {
	return ident.NewRegistrySource("https://github.com/rust-lang/crates.io-index")
}

func parseFeatures(raw map[string][]string) (map[string][]FeatureValue, error) {
	out := map[string][]FeatureValue{}
	for name, values := range raw {
		parsed := make([]FeatureValue, 0, len(values))
		for _, v := range values {
			fv, err := parseFeatureValue(v)
			if err != nil {
				return nil, fmt.Errorf("feature %q: %w", name, err)
			}
			parsed = append(parsed, fv)
		}
		out[name] = parsed
	}
	return out, nil
}

// ParseFeatureValue parses one entry in the range of a feature map
// (plain name, `dep:x`, `x/y` or `x?/y`) — exported so index-backed
// Source variants can build a Summary's Features map directly from
// registry index JSON without duplicating this grammar.
func ParseFeatureValue(v string) FeatureValue {
	fv, _ := parseFeatureValue(v)
	return fv
}

func parseFeatureValue(v string) (FeatureValue, error) {
	if strings.HasPrefix(v, "dep:") {
		return FeatureValue{Kind: FeatureForceDep, DepName: strings.TrimPrefix(v, "dep:")}, nil
	}
	if idx := strings.Index(v, "/"); idx >= 0 {
		name := v[:idx]
		feat := v[idx+1:]
		weak := strings.HasSuffix(name, "?")
		if weak {
			name = strings.TrimSuffix(name, "?")
		}
		return FeatureValue{Kind: FeatureDepFeature, DepName: name, DepFeature: feat, WeakDep: weak}, nil
	}
	return FeatureValue{Kind: FeaturePlain, FeatureName: v}, nil
}
