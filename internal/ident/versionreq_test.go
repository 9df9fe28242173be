// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package ident

import "testing"

func TestVersionReqMatches(t *testing.T) {
	tests := []struct {
		name    string
		req     string
		version string
		want    bool
	}{
		{"caret default", "^1.2.3", "1.2.4", true},
		{"caret rejects next major", "^1.2.3", "2.0.0", false},
		{"caret zero major zero minor", "^0.0.3", "0.0.3", true},
		{"caret zero major zero minor excludes patch bump", "^0.0.3", "0.0.4", false},
		{"caret zero major nonzero minor", "^0.2.3", "0.2.9", true},
		{"caret zero major nonzero minor excludes next minor", "^0.2.3", "0.3.0", false},
		{"tilde", "~1.2", "1.2.9", true},
		{"tilde excludes next minor", "~1.2", "1.3.0", false},
		{"exact", "=1.2.3", "1.2.3", true},
		{"exact rejects other patch", "=1.2.3", "1.2.4", false},
		{"wildcard", "*", "9.9.9", true},
		{"ge", ">=1.0.0", "5.0.0", true},
		{"lt", "<2.0.0", "1.9.9", true},
		{"lt rejects boundary", "<2.0.0", "2.0.0", false},
		{"conjunction", ">=1.0.0, <1.5.0", "1.4.9", true},
		{"conjunction rejects outside", ">=1.0.0, <1.5.0", "1.5.0", false},
		{"bare version behaves as caret", "1.2.3", "1.9.9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseVersionReq(tt.req)
			if err != nil {
				t.Fatalf("ParseVersionReq(%q) error: %v", tt.req, err)
			}
			v, err := ParseSemVer(tt.version)
			if err != nil {
				t.Fatalf("ParseSemVer(%q) error: %v", tt.version, err)
			}
			if got := req.Matches(v); got != tt.want {
				t.Errorf("VersionReq(%q).Matches(%q) = %v, want %v", tt.req, tt.version, got, tt.want)
			}
		})
	}
}

func TestPackageIdSpecParsing(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"bare name", "serde", false},
		{"name and version", "serde@1.0.0", false},
		{"url and name and version", "https://github.com/rust-lang/crates.io-index#serde@1.0.0", false},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePackageIdSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePackageIdSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestPackageNameRejectsMismatch(t *testing.T) {
	n1, err := NewPackageName("foo-bar")
	if err != nil {
		t.Fatal(err)
	}
	n2, err := NewPackageName("foo_bar")
	if err != nil {
		t.Fatal(err)
	}
	if n1 == n2 {
		t.Fatalf("foo-bar and foo_bar must not be unified")
	}
	if n1.FuzzyVariant() != n2 {
		t.Fatalf("fuzzy variant of foo-bar should equal foo_bar")
	}
}

func TestSourceIdEquality(t *testing.T) {
	a, err := NewRegistrySource("https://github.com/rust-lang/crates.io-index.git")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRegistrySource("https://github.com/rust-lang/crates.io-index")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("canonicalization should unify a trailing .git suffix")
	}
}
