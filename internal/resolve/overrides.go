// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package resolve

import (
	"github.com/lfreleng-actions/cratebuild/internal/buildlog"
	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
)

// Overrides is the resolved form of a workspace's `[patch]`/`[replace]`
// tables (§9 "Workspace patch/replace"): a single by-name redirect map
// the resolver consults at the one place every dependency lookup passes
// through, win-rule (patch over replace) already applied.
type Overrides struct {
	byName map[ident.PackageName]manifest.Dependency
}

// NewOverrides builds an Overrides from the patch/replace entries
// manifest.NormalizeOverrides already resolved, logging any inert
// `[replace]` entries through logger (nil is accepted and silently
// skips logging, matching buildlog's own "works with no logger"
// shape elsewhere in this module).
func NewOverrides(patches []manifest.PatchOverride, replaces []manifest.ReplaceOverride, warnings []string, logger *buildlog.Logger) *Overrides {
	o := &Overrides{byName: map[ident.PackageName]manifest.Dependency{}}
	for _, r := range replaces {
		o.byName[r.Name] = r.Dep
	}
	// Patches are applied after replaces so that patch always wins when
	// both tables somehow name the same package (NormalizeOverrides
	// already drops the replace entry in that case, but this keeps the
	// invariant true even if a caller builds Overrides by hand).
	for _, p := range patches {
		o.byName[p.Dep.Name] = p.Dep
	}
	if logger != nil {
		for _, w := range warnings {
			logger.Warnf("%s", w)
		}
	}
	return o
}

// rewrite substitutes dep's source/version requirement with the
// matching override, if any. Only Name is used to match, since a
// `[replace]` package-id spec version qualifier narrows *which*
// resolved version it applies to, but the core's single-Locator-lookup
// choke point (Resolver.query) runs before a version is selected; name-
// level redirection is the same simplification the source's own
// deprecation notice on `[replace]` (superseded by `[patch]`) implies
// is acceptable for all but the rarest multi-version replace cases.
func (o *Overrides) rewrite(dep manifest.Dependency) manifest.Dependency {
	if o == nil {
		return dep
	}
	override, ok := o.byName[dep.Name]
	if !ok {
		return dep
	}
	dep.Source = override.Source
	dep.Req = override.Req
	return dep
}
