// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const manifestFileName = "Cargo.toml"

// Workspace is the discovered set of member manifest directories
// sharing one root (§3 Manifest/Workspace). A workspace is either
// virtual (the root directory's manifest has only a [workspace] table)
// or package-rooted (the root is itself a member).
type Workspace struct {
	RootDir     string
	IsVirtual   bool
	MemberDirs  []string // absolute, sorted, deduplicated
	Raw         *rawDocument
	Inheritable *rawPackage // workspace.package, nil if absent
	DepSource   map[string]interface{} // workspace.dependencies, for member `dep.workspace = true`
	Patch       map[string]map[string]interface{}
	Replace     map[string]interface{}
}

// DiscoverRoot walks upward from startDir looking for a directory whose
// Cargo.toml declares a [workspace] table, the way the teacher's
// internal/detector/detector.go walks a project tree testing file-
// presence rules in priority order; here the "rule" is simply "a
// Cargo.toml exists and parses", and the search direction is upward
// (ancestor directories) rather than the teacher's single-directory
// probe, since a workspace root is frequently several levels above the
// crate the caller started from.
func DiscoverRoot(startDir string) (*Workspace, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving start directory: %w", err)
	}

	dir := abs
	var ownManifest string
	for {
		candidate := filepath.Join(dir, manifestFileName)
		if _, err := os.Stat(candidate); err == nil {
			data, err := os.ReadFile(candidate)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", candidate, err)
			}
			raw, _, err := parseRaw(data)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", candidate, err)
			}
			if raw.Workspace != nil {
				return loadWorkspace(dir, raw)
			}
			if ownManifest == "" {
				ownManifest = dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if ownManifest == "" {
		return nil, fmt.Errorf("no %s found in %s or its ancestors", manifestFileName, startDir)
	}
	// No workspace table anywhere above: the starting package is its
	// own (package-rooted, single-member) workspace.
	data, err := os.ReadFile(filepath.Join(ownManifest, manifestFileName))
	if err != nil {
		return nil, err
	}
	raw, _, err := parseRaw(data)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		RootDir:    ownManifest,
		IsVirtual:  false,
		MemberDirs: []string{ownManifest},
		Raw:        raw,
	}, nil
}

func loadWorkspace(rootDir string, raw *rawDocument) (*Workspace, error) {
	ws := &Workspace{
		RootDir:   rootDir,
		IsVirtual: raw.Package == nil && raw.Project == nil,
		Raw:       raw,
	}
	if ws.IsVirtual {
		if err := ValidateVirtual(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", rootDir, err)
		}
	}
	if raw.Workspace.Package != nil {
		ws.Inheritable = raw.Workspace.Package
	}
	ws.DepSource = raw.Workspace.Dependencies
	ws.Patch = raw.Workspace.Patch
	ws.Replace = raw.Workspace.Replace

	members := map[string]bool{}
	if !ws.IsVirtual {
		members[rootDir] = true
	}

	patterns := raw.Workspace.Members
	if len(patterns) == 0 && !ws.IsVirtual {
		// A package-rooted workspace with no explicit members list
		// contains only the root package.
	}
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(rootDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid workspace member glob %q: %w", pattern, err)
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
			// A literal (non-glob) member path that does not exist is
			// a hard error; a glob with no matches is not.
			return nil, fmt.Errorf("workspace member %q does not exist", pattern)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				if _, err := os.Stat(filepath.Join(m, manifestFileName)); err == nil {
					members[m] = true
				}
			}
		}
	}

	excluded := map[string]bool{}
	for _, pattern := range raw.Workspace.Exclude {
		matches, err := doublestar.FilepathGlob(filepath.Join(rootDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid workspace exclude glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			excluded[m] = true
		}
		// exclude also accepts a bare relative path with no glob chars.
		if !strings.ContainsAny(pattern, "*?[") {
			excluded[filepath.Join(rootDir, pattern)] = true
		}
	}

	var list []string
	for m := range members {
		if !excluded[m] {
			list = append(list, m)
		}
	}
	sort.Strings(list)
	ws.MemberDirs = list
	return ws, nil
}

// RequiresPackage reports which package-level tables are present in a
// candidate virtual manifest (§4.B requires_package). A virtual
// manifest must have none of these; their presence is used by the
// caller to forbid them with a precise error.
func (raw *rawDocument) RequiresPackage() []string {
	var present []string
	if raw.Lib != nil {
		present = append(present, "lib")
	}
	if len(raw.Bin) > 0 {
		present = append(present, "bin")
	}
	if len(raw.Example) > 0 {
		present = append(present, "example")
	}
	if len(raw.Test) > 0 {
		present = append(present, "test")
	}
	if len(raw.Bench) > 0 {
		present = append(present, "bench")
	}
	return present
}
