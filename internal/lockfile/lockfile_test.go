// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package lockfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

func mustPkg(t *testing.T, name, version string) ident.PackageId {
	t.Helper()
	n, err := ident.NewPackageName(name)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ident.ParseSemVer(version)
	if err != nil {
		t.Fatal(err)
	}
	src, err := ident.NewRegistrySource("https://github.com/rust-lang/crates.io-index")
	if err != nil {
		t.Fatal(err)
	}
	return ident.PackageId{Name: n, Version: v, Source: src}
}

func TestBuildIsDeterministic(t *testing.T) {
	a := mustPkg(t, "a", "1.0.0")
	b := mustPkg(t, "b", "2.0.0")
	ids := []ident.PackageId{b, a}
	edges := map[ident.PackageId][]ident.PackageId{b: {a}}

	lf1 := Build(ids, edges, nil, nil)
	lf2 := Build([]ident.PackageId{a, b}, edges, nil, nil)

	var buf1, buf2 bytes.Buffer
	if err := lf1.Encode(&buf1); err != nil {
		t.Fatal(err)
	}
	if err := lf2.Encode(&buf2); err != nil {
		t.Fatal(err)
	}
	if buf1.String() != buf2.String() {
		t.Fatalf("encodings differ despite identical input sets:\n%s\n---\n%s", buf1.String(), buf2.String())
	}
	if lf1.Package[0].Name != "a" || lf1.Package[1].Name != "b" {
		t.Fatalf("packages not sorted by name: %+v", lf1.Package)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := mustPkg(t, "a", "1.0.0")
	lf := Build([]ident.PackageId{a}, nil, map[ident.PackageId]string{a: "deadbeef"}, nil)

	path := filepath.Join(t.TempDir(), "Cargo.lock")
	if err := lf.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !lf.Equal(loaded) {
		t.Fatalf("round trip changed content: %+v vs %+v", lf, loaded)
	}
}

func TestDependencyRefDisambiguatesMajor(t *testing.T) {
	a1 := mustPkg(t, "a", "1.0.0")
	a2 := mustPkg(t, "a", "2.0.0")
	all := []ident.PackageId{a1, a2}
	if ref := DependencyRef(all, a1); ref != "a 1.0.0" {
		t.Fatalf("DependencyRef = %q, want disambiguated form", ref)
	}
}
