// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"fmt"
	"strings"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// PatchOverride is one entry of a `[patch.<registry>]` table: Registry
// is the source being patched (e.g. "crates-io" or a git/sparse URL),
// Dep is the replacement dependency spec (§9 "Workspace patch/replace").
type PatchOverride struct {
	Registry string
	Dep      Dependency
}

// ReplaceOverride is one entry of a `[replace]` table, keyed by a
// package-id spec (`name` or `name:version`).
type ReplaceOverride struct {
	Name ident.PackageName
	Dep  Dependency
}

// NormalizeOverrides resolves ws.Patch/ws.Replace into concrete
// dependency overrides, the way normalizeOneDep resolves an ordinary
// `[dependencies]` entry — a patch/replace table entry has exactly the
// same shape as a dependency spec table, just keyed differently. When a
// name is targeted by both a patch and a replace, patch wins and the
// replace entry is reported back as inert via warnings, matching §9's
// "patch wins over replace, replace becomes inert with a warning."
func NormalizeOverrides(ws *Workspace) ([]PatchOverride, []ReplaceOverride, []string, error) {
	if ws == nil {
		return nil, nil, nil, nil
	}

	var patches []PatchOverride
	patchedNames := map[ident.PackageName]bool{}
	for registry, table := range ws.Patch {
		for name, raw := range table {
			dep, err := normalizeOneDep(name, raw, ws, DepNormal)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("[patch.%s] %q: %w", registry, name, err)
			}
			patches = append(patches, PatchOverride{Registry: registry, Dep: dep})
			patchedNames[dep.Name] = true
		}
	}

	var replaces []ReplaceOverride
	var warnings []string
	for spec, raw := range ws.Replace {
		name := spec
		if idx := strings.IndexByte(spec, ':'); idx >= 0 {
			name = spec[:idx]
		}
		pkgName, err := ident.NewPackageName(name)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("[replace] %q: %w", spec, err)
		}
		dep, err := normalizeOneDep(name, raw, ws, DepNormal)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("[replace] %q: %w", spec, err)
		}
		if patchedNames[pkgName] {
			warnings = append(warnings, fmt.Sprintf(
				"[replace] entry %q is inert: %q is also patched, and patch takes priority over replace", spec, pkgName))
			continue
		}
		replaces = append(replaces, ReplaceOverride{Name: pkgName, Dep: dep})
	}

	return patches, replaces, warnings, nil
}
