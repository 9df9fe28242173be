// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package ident

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mastsemver "github.com/Masterminds/semver/v3"
)

// VersionReq is a sum of comma-separated comparator clauses, all of
// which must hold for a candidate version (§3). Clauses are parsed
// into explicit comparator structs rather than delegated wholesale to
// a generic constraint grammar, the way the teacher's
// internal/pyversions/constraints.go parses a requires-python string
// into a []Constraint and evaluates each one directly; the caret/tilde
// expansion below is the Cargo-specific analogue of that package's
// Poetry-caret normalization.
type VersionReq struct {
	raw      string
	clauses  []reqClause
	wildcard bool // "*" with no clauses at all
}

type reqOp int

const (
	opCaret reqOp = iota
	opTilde
	opExact
	opGE
	opLE
	opGT
	opLT
	opWildcard
)

type reqClause struct {
	op                          reqOp
	hasMajor, hasMinor, hasPatch bool
	major, minor, patch         uint64
	pre                         string
}

var clauseRe = regexp.MustCompile(`^(\^|~|=|>=|<=|>|<)?\s*([0-9]+|\*)(?:\.([0-9]+|\*))?(?:\.([0-9]+|\*))?(?:-([0-9A-Za-z.\-]+))?$`)

// ParseVersionReq parses a VersionReq string such as "^1.2", "~1.2.3",
// ">=1.0, <2.0", "=1.2.3" or "*". Surrounding whitespace in the whole
// string and around each comma-separated clause is trimmed, mirroring
// the §9 version-trim-whitespace rule applied to inherited fields.
func ParseVersionReq(s string) (VersionReq, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VersionReq{}, fmt.Errorf("empty version requirement")
	}
	if s == "*" {
		return VersionReq{raw: s, wildcard: true}, nil
	}

	parts := strings.Split(s, ",")
	clauses := make([]reqClause, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return VersionReq{}, fmt.Errorf("invalid version requirement %q: %w", s, err)
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 0 {
		return VersionReq{}, fmt.Errorf("invalid version requirement %q: no clauses", s)
	}
	return VersionReq{raw: s, clauses: clauses}, nil
}

func parseClause(part string) (reqClause, error) {
	if part == "*" {
		return reqClause{op: opWildcard}, nil
	}
	m := clauseRe.FindStringSubmatch(part)
	if m == nil {
		return reqClause{}, fmt.Errorf("unrecognized clause %q", part)
	}
	var op reqOp
	switch m[1] {
	case "^", "":
		op = opCaret
	case "~":
		op = opTilde
	case "=":
		op = opExact
	case ">=":
		op = opGE
	case "<=":
		op = opLE
	case ">":
		op = opGT
	case "<":
		op = opLT
	}
	c := reqClause{op: op, pre: m[5]}
	if m[2] == "*" {
		return reqClause{op: opWildcard}, nil
	}
	major, _ := strconv.ParseUint(m[2], 10, 64)
	c.major, c.hasMajor = major, true
	if m[3] != "" && m[3] != "*" {
		minor, _ := strconv.ParseUint(m[3], 10, 64)
		c.minor, c.hasMinor = minor, true
	}
	if m[4] != "" && m[4] != "*" {
		patch, _ := strconv.ParseUint(m[4], 10, 64)
		c.patch, c.hasPatch = patch, true
	}
	return c, nil
}

// Matches reports whether v satisfies every clause of the requirement.
func (r VersionReq) Matches(v SemVer) bool {
	if r.wildcard {
		return true
	}
	for _, c := range r.clauses {
		if !clauseMatches(c, v) {
			return false
		}
	}
	return true
}

func clauseMatches(c reqClause, v SemVer) bool {
	if c.op == opWildcard {
		return true
	}
	lowInclusive, upExclusive, hasUpper, exact := clauseBounds(c)
	if exact != nil {
		return v.Equal(*exact)
	}
	if v.Compare(lowInclusive) < 0 {
		return false
	}
	if hasUpper && v.Compare(upExclusive) >= 0 {
		return false
	}
	return true
}

// clauseBounds computes the [lowInclusive, upExclusive) range implied
// by a single clause, following Cargo's documented caret/tilde
// expansion rules (zero-major and zero-minor shrink the allowed range).
func clauseBounds(c reqClause) (low SemVer, up SemVer, hasUp bool, exact *SemVer) {
	mkVer := func(major, minor, patch uint64, pre string) SemVer {
		s := fmt.Sprintf("%d.%d.%d", major, minor, patch)
		if pre != "" {
			s += "-" + pre
		}
		v, _ := ParseSemVer(s)
		return v
	}

	switch c.op {
	case opGE:
		return mkVer(c.major, c.minor, c.patch, c.pre), SemVer{}, false, nil
	case opGT:
		// Treat ">" as ">=" of the next patch for simplicity/determinism
		// on exact triples; for partial versions it behaves as the
		// exclusive lower bound of the next unspecified component.
		if c.hasPatch {
			return mkVer(c.major, c.minor, c.patch+1, ""), SemVer{}, false, nil
		}
		if c.hasMinor {
			return mkVer(c.major, c.minor+1, 0, ""), SemVer{}, false, nil
		}
		return mkVer(c.major+1, 0, 0, ""), SemVer{}, false, nil
	case opLE:
		if c.hasPatch {
			return SemVer{}, mkVer(c.major, c.minor, c.patch+1, ""), true, nil
		}
		if c.hasMinor {
			return SemVer{}, mkVer(c.major, c.minor+1, 0, ""), true, nil
		}
		return SemVer{}, mkVer(c.major+1, 0, 0, ""), true, nil
	case opLT:
		return SemVer{}, mkVer(c.major, c.minor, c.patch, c.pre), true, nil
	case opExact:
		if c.hasPatch {
			v := mkVer(c.major, c.minor, c.patch, c.pre)
			return SemVer{}, SemVer{}, false, &v
		}
		if c.hasMinor {
			return mkVer(c.major, c.minor, 0, ""), mkVer(c.major, c.minor+1, 0, ""), true, nil
		}
		return mkVer(c.major, 0, 0, ""), mkVer(c.major+1, 0, 0, ""), true, nil
	case opTilde:
		low := mkVer(c.major, c.minor, c.patch, c.pre)
		if c.hasMinor {
			return low, mkVer(c.major, c.minor+1, 0, ""), true, nil
		}
		return low, mkVer(c.major+1, 0, 0, ""), true, nil
	default: // opCaret
		low := mkVer(c.major, c.minor, c.patch, c.pre)
		switch {
		case c.major > 0:
			return low, mkVer(c.major+1, 0, 0, ""), true, nil
		case c.hasMinor && c.minor > 0:
			return low, mkVer(0, c.minor+1, 0, ""), true, nil
		case c.hasPatch:
			return low, mkVer(0, 0, c.patch+1, ""), true, nil
		case c.hasMinor: // ^0.0
			return low, mkVer(0, 1, 0, ""), true, nil
		default: // ^0
			if !c.hasMinor {
				return low, mkVer(1, 0, 0, ""), true, nil
			}
			return low, mkVer(0, 1, 0, ""), true, nil
		}
	}
}

func (r VersionReq) String() string { return r.raw }

// AsMastermindsConstraint exposes the underlying grammar for callers
// that specifically need the upstream library's richer constraint
// algebra (e.g. OR-combinations via "||"), which this Cargo-flavored
// parser intentionally does not support since Cargo manifests never
// emit them.
func AsMastermindsConstraint(s string) (*mastsemver.Constraints, error) {
	return mastsemver.NewConstraint(s)
}
