// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package ident

import (
	"fmt"
	"strings"
)

// PackageId is the triple (PackageName, SemVer, SourceId), globally
// unique for a resolved package (§3).
type PackageId struct {
	Name    PackageName
	Version SemVer
	Source  SourceId
}

func (id PackageId) String() string {
	return fmt.Sprintf("%s v%s (%s)", id.Name, id.Version, id.Source)
}

// Equal compares all three fields of the triple.
func (id PackageId) Equal(o PackageId) bool {
	return id.Name == o.Name && id.Version.Equal(o.Version) && id.Source.Equal(o.Source)
}

// ActivationKey is the (Name, SourceId, SemverMajor) key the resolver
// uses to decide which packages must share one activated-feature set
// (§4.E feature unification).
type ActivationKey struct {
	Name   PackageName
	Source SourceId
	Major  uint64
}

func (id PackageId) ActivationKey() ActivationKey {
	return ActivationKey{Name: id.Name, Source: id.Source, Major: id.Version.Major()}
}

// PackageIdSpec is a partial pattern matching one or more PackageIds by
// name, optional version, optional source URL (§4.A). Accepted forms:
// "name", "name@version", "url#name@version", "url#version".
type PackageIdSpec struct {
	Name    string // empty means unspecified
	Version string // empty means unspecified; parsed lazily on Match
	URL     string // empty means unspecified
}

// ParsePackageIdSpec parses one of the four accepted textual forms.
func ParsePackageIdSpec(s string) (PackageIdSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PackageIdSpec{}, fmt.Errorf("empty package id spec")
	}

	var spec PackageIdSpec
	rest := s
	if idx := strings.Index(rest, "#"); idx >= 0 {
		spec.URL = rest[:idx]
		rest = rest[idx+1:]
		if spec.URL == "" {
			return PackageIdSpec{}, fmt.Errorf("invalid package id spec %q: empty url before #", s)
		}
	}

	if rest == "" {
		if spec.URL == "" {
			return PackageIdSpec{}, fmt.Errorf("invalid package id spec %q", s)
		}
		return spec, nil
	}

	if idx := strings.Index(rest, "@"); idx >= 0 {
		spec.Name = rest[:idx]
		spec.Version = rest[idx+1:]
		if spec.Version == "" {
			return PackageIdSpec{}, fmt.Errorf("invalid package id spec %q: empty version after @", s)
		}
	} else if looksLikeVersion(rest) && spec.URL != "" {
		// "url#version" form: no name given, only a version.
		spec.Version = rest
	} else {
		spec.Name = rest
	}

	if spec.Name == "" && spec.Version == "" && spec.URL == "" {
		return PackageIdSpec{}, fmt.Errorf("invalid package id spec %q", s)
	}
	return spec, nil
}

func looksLikeVersion(s string) bool {
	if s == "" {
		return false
	}
	_, err := ParseSemVer(s)
	return err == nil
}

// Matches reports whether id satisfies every field the spec specifies.
// An underspecified spec matching more than one candidate must be
// disambiguated by the caller (§4.A); Matches itself never picks among
// ambiguous matches.
func (spec PackageIdSpec) Matches(id PackageId) bool {
	if spec.Name != "" && string(id.Name) != spec.Name {
		return false
	}
	if spec.Version != "" {
		v, err := ParseSemVer(spec.Version)
		if err != nil || !id.Version.Equal(v) {
			return false
		}
	}
	if spec.URL != "" {
		c, err := canonicalizeURL(spec.URL)
		if err != nil || c != id.Source.URL() {
			return false
		}
	}
	return true
}

func (spec PackageIdSpec) String() string {
	var b strings.Builder
	if spec.URL != "" {
		b.WriteString(spec.URL)
		b.WriteByte('#')
	}
	b.WriteString(spec.Name)
	if spec.Version != "" {
		if spec.Name != "" {
			b.WriteByte('@')
		}
		b.WriteString(spec.Version)
	}
	return b.String()
}
