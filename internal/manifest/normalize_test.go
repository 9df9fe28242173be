// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeSimplePackage(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "widget"
version = "1.2.3"
edition = "2021"

[dependencies]
serde = "1.0"
rand = { version = "0.8", features = ["small_rng"], default-features = false }
local-helper = { path = "../helper" }
`)

	m, err := Normalize(dir, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Name.String() != "widget" {
		t.Fatalf("name = %q", m.Name)
	}
	if m.Version.String() != "1.2.3" {
		t.Fatalf("version = %q", m.Version)
	}
	deps := m.Dependencies[DepNormal]
	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies, got %d", len(deps))
	}
	found := map[string]Dependency{}
	for _, d := range deps {
		found[d.Name.String()] = d
	}
	rnd, ok := found["rand"]
	if !ok {
		t.Fatalf("missing rand dependency")
	}
	if rnd.DefaultFeatures {
		t.Fatalf("rand default-features should be false")
	}
	if len(rnd.Features) != 1 || rnd.Features[0] != "small_rng" {
		t.Fatalf("rand features = %v", rnd.Features)
	}
}

func TestNormalizeWorkspaceInheritance(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[workspace]
members = ["crates/*"]

[workspace.package]
version = "2.0.0"
authors = ["Ada Lovelace"]
edition = "2021"

[workspace.dependencies]
serde = { version = "1.0", features = ["derive"] }
`)
	memberDir := filepath.Join(root, "crates", "core")
	writeManifest(t, memberDir, `
[package]
name = "core"
version = { workspace = true }
authors = { workspace = true }

[dependencies]
serde = { workspace = true }
`)

	ws, err := DiscoverRoot(memberDir)
	if err != nil {
		t.Fatalf("DiscoverRoot: %v", err)
	}
	if ws.IsVirtual != true {
		t.Fatalf("expected a virtual workspace root")
	}

	m, err := Normalize(memberDir, ws)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Version.String() != "2.0.0" {
		t.Fatalf("inherited version = %q", m.Version)
	}
	if len(m.Authors) != 1 || m.Authors[0] != "Ada Lovelace" {
		t.Fatalf("inherited authors = %v", m.Authors)
	}
	deps := m.Dependencies[DepNormal]
	if len(deps) != 1 || deps[0].Name.String() != "serde" {
		t.Fatalf("inherited dependency missing: %v", deps)
	}
	if len(deps[0].Features) != 1 || deps[0].Features[0] != "derive" {
		t.Fatalf("inherited dependency features = %v", deps[0].Features)
	}
}

func TestNormalizeMissingInheritedFieldFails(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[workspace]
members = ["crates/*"]
`)
	memberDir := filepath.Join(root, "crates", "core")
	writeManifest(t, memberDir, `
[package]
name = "core"
version = { workspace = true }
`)

	ws, err := DiscoverRoot(memberDir)
	if err != nil {
		t.Fatalf("DiscoverRoot: %v", err)
	}
	if _, err := Normalize(memberDir, ws); err == nil {
		t.Fatalf("expected an error for a workspace that defines no inheritable version")
	}
}

func TestNormalizeReadmeFalseSuppressesDefault(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "widget"
version = "0.1.0"
readme = false
`)
	m, err := Normalize(dir, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Readme != "" {
		t.Fatalf("readme = %q, want empty", m.Readme)
	}
}

func TestNormalizeDevDependenciesAlias(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "widget"
version = "0.1.0"

[dev_dependencies]
proptest = "1"
`)
	m, err := Normalize(dir, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(m.Warnings) == 0 {
		t.Fatalf("expected a warning about the dev_dependencies alias")
	}
}
