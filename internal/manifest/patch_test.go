// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"path/filepath"
	"testing"
)

func TestNormalizeOverridesPatchAndReplace(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[workspace]
members = ["crates/a"]

[workspace.patch.crates-io]
foo = { path = "../vendor/foo" }

[workspace.replace]
"bar" = { path = "../vendor/bar" }
`)
	writeManifest(t, filepath.Join(root, "crates", "a"), `
[package]
name = "a"
version = "0.1.0"
`)

	ws, err := DiscoverRoot(filepath.Join(root, "crates", "a"))
	if err != nil {
		t.Fatalf("DiscoverRoot: %v", err)
	}

	patches, replaces, warnings, err := NormalizeOverrides(ws)
	if err != nil {
		t.Fatalf("NormalizeOverrides: %v", err)
	}
	if len(patches) != 1 || string(patches[0].Dep.Name) != "foo" {
		t.Fatalf("expected one patch entry for foo, got %v", patches)
	}
	if len(replaces) != 1 || string(replaces[0].Name) != "bar" {
		t.Fatalf("expected one replace entry for bar, got %v", replaces)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when patch and replace target different packages, got %v", warnings)
	}
}

func TestNormalizeOverridesPatchShadowsReplaceOnSameTarget(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[workspace]
members = ["crates/a"]

[workspace.patch.crates-io]
foo = { path = "../vendor/foo-patched" }

[workspace.replace]
"foo" = { path = "../vendor/foo-replaced" }
`)
	writeManifest(t, filepath.Join(root, "crates", "a"), `
[package]
name = "a"
version = "0.1.0"
`)

	ws, err := DiscoverRoot(filepath.Join(root, "crates", "a"))
	if err != nil {
		t.Fatalf("DiscoverRoot: %v", err)
	}

	patches, replaces, warnings, err := NormalizeOverrides(ws)
	if err != nil {
		t.Fatalf("NormalizeOverrides: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("expected the patch entry to survive, got %v", patches)
	}
	if len(replaces) != 0 {
		t.Fatalf("expected the shadowed replace entry to be dropped, got %v", replaces)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one inert-replace warning, got %v", warnings)
	}
}

func TestNormalizeOverridesNilWorkspace(t *testing.T) {
	patches, replaces, warnings, err := NormalizeOverrides(nil)
	if err != nil {
		t.Fatalf("NormalizeOverrides(nil): %v", err)
	}
	if patches != nil || replaces != nil || warnings != nil {
		t.Fatalf("expected all-nil results for a nil workspace, got %v %v %v", patches, replaces, warnings)
	}
}

func TestNormalizeWarnsOnStrayPatchReplaceOutsideWorkspaceTable(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "solo"
version = "0.1.0"

[patch.crates-io]
foo = { path = "../vendor/foo" }

[replace]
"bar" = { path = "../vendor/bar" }
`)
	mf, err := Normalize(dir, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	found := map[string]bool{}
	for _, w := range mf.Warnings {
		found[w] = true
	}
	if !found["[patch] has no effect outside a workspace root's [workspace] table"] {
		t.Fatalf("expected a stray-[patch] warning, got %v", mf.Warnings)
	}
	if !found["[replace] has no effect outside a workspace root's [workspace] table"] {
		t.Fatalf("expected a stray-[replace] warning, got %v", mf.Warnings)
	}
}
