// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package ident

import (
	"fmt"
	"strings"

	mastsemver "github.com/Masterminds/semver/v3"
)

// SemVer is a parsed semantic version. Comparison ignores build
// metadata per §3; Masterminds/semver/v3 does the actual parsing and
// ordering. SemVer itself stores only the canonical
// major.minor.patch[-pre] string (never a *mastsemver.Version
// pointer), so that SemVer — and therefore PackageId, which embeds it
// — stays a plain comparable value usable as a map key; two SemVer
// values parsed from equal input always compare `==`, where two
// pointers to separately-parsed Version structs would not.
type SemVer struct {
	canon    string // "major.minor.patch" or "major.minor.patch-pre"; excludes build metadata
	original string
}

// ParseSemVer parses s, trimming surrounding whitespace first (§9
// "version-trim-whitespace": workspace-inherited version strings like
// " 1.2.3\n" must parse).
func ParseSemVer(s string) (SemVer, error) {
	trimmed := strings.TrimSpace(s)
	v, err := mastsemver.NewVersion(trimmed)
	if err != nil {
		return SemVer{}, fmt.Errorf("invalid semver %q: %w", s, err)
	}
	canon := fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
	if v.Prerelease() != "" {
		canon += "-" + v.Prerelease()
	}
	return SemVer{canon: canon, original: v.Original()}, nil
}

func (s SemVer) parsed() *mastsemver.Version {
	if s.canon == "" {
		return nil
	}
	// canon was built from a successful parse, so it always re-parses.
	v, _ := mastsemver.NewVersion(s.canon)
	return v
}

// String renders the version as originally written (surrounding
// whitespace trimmed, build metadata included), falling back to the
// canonical form when no original text is recorded.
func (s SemVer) String() string {
	if s.original != "" {
		return s.original
	}
	return s.canon
}

// Major returns the semver-major component, used as part of the
// resolver's (Name, SourceId, SemverMajor) activation key.
func (s SemVer) Major() uint64 {
	v := s.parsed()
	if v == nil {
		return 0
	}
	return v.Major()
}

// Compare orders two versions ignoring build metadata; a negative,
// zero or positive result follows the usual Compare convention.
func (s SemVer) Compare(o SemVer) int {
	a, b := s.parsed(), o.parsed()
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(b)
	}
}

// Equal reports whether two versions are identical (including
// pre-release, excluding build metadata).
func (s SemVer) Equal(o SemVer) bool { return s.canon == o.canon }

// IsPrerelease reports whether the version carries a pre-release tag.
func (s SemVer) IsPrerelease() bool { return strings.Contains(s.canon, "-") }

// Less is a convenience for sort.Slice callers.
func Less(a, b SemVer) bool { return a.Compare(b) < 0 }
