// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package environment assembles the process environment a build
// script receives (§4.I "Environment provided to build scripts").
// Grounded on the teacher's own internal/environment package, which
// collected ambient CI/tool-version facts into a flat map[string]string
// — the same shape this package builds, just keyed by the Cargo-style
// names a build script actually reads instead of CI metadata.
package environment

import (
	"strconv"
	"strings"
)

// BuildScriptRequest carries everything ForBuildScript needs to
// assemble a build script's environment.
type BuildScriptRequest struct {
	OutDir       string
	ManifestDir  string
	ManifestPath string
	NumJobs      int
	Target       string
	Host         string
	OptLevel     string
	Release      bool
	Rustc        string
	Rustdoc      string
	RustcLinker  string
	// Links is the package's own `links` manifest value, empty if unset.
	Links string
	// Features is the set of enabled feature names, unprefixed.
	Features []string
	// Cfgs is the compiler-reported cfg set, each either a bare name
	// ("unix") or "name=value" ("target_os=linux"); callers must
	// already have excluded debug_assertions per §4.I.
	Cfgs []string
	// Rustflags is joined with the unit-separator byte into
	// CARGO_ENCODED_RUSTFLAGS.
	Rustflags []string
	// DepMetadata maps the `links` value of each direct dependency that
	// declares one to the metadata key/value pairs it published via
	// `cargo::metadata=`, for DEP_<LINKS>_<KEY> reverse propagation.
	DepMetadata map[string]map[string]string
}

// ForBuildScript builds the environment variable map a build script
// process is launched with (§4.I).
func ForBuildScript(req BuildScriptRequest) map[string]string {
	env := map[string]string{
		"OUT_DIR":             req.OutDir,
		"CARGO_MANIFEST_DIR":  req.ManifestDir,
		"CARGO_MANIFEST_PATH": req.ManifestPath,
		"NUM_JOBS":            strconv.Itoa(req.NumJobs),
		"TARGET":              req.Target,
		"HOST":                req.Host,
		"OPT_LEVEL":           req.OptLevel,
		"RUSTC":               req.Rustc,
		"RUSTDOC":             req.Rustdoc,
	}
	if req.Release {
		env["PROFILE"] = "release"
		env["DEBUG"] = "false"
	} else {
		env["PROFILE"] = "debug"
		env["DEBUG"] = "true"
	}
	if req.RustcLinker != "" {
		env["RUSTC_LINKER"] = req.RustcLinker
	}
	if req.Links != "" {
		env["CARGO_MANIFEST_LINKS"] = req.Links
	}
	for _, f := range req.Features {
		env["CARGO_FEATURE_"+screamingSnake(f)] = "1"
	}
	for _, c := range req.Cfgs {
		name, value := c, ""
		if idx := strings.IndexByte(c, '='); idx >= 0 {
			name, value = c[:idx], strings.Trim(c[idx+1:], `"`)
		}
		if name == "debug_assertions" {
			continue
		}
		env["CARGO_CFG_"+screamingSnake(name)] = value
	}
	if len(req.Rustflags) > 0 {
		env["CARGO_ENCODED_RUSTFLAGS"] = strings.Join(req.Rustflags, "\x1f")
	}
	for depName, meta := range req.DepMetadata {
		prefix := "DEP_" + screamingSnake(depName) + "_"
		for k, v := range meta {
			env[prefix+screamingSnake(k)] = v
		}
	}
	return env
}

// screamingSnake renders a feature/cfg/package name the way Cargo
// renders them into an env var component: upper-cased, hyphens
// folded to underscores.
func screamingSnake(s string) string {
	s = strings.ToUpper(s)
	return strings.ReplaceAll(s, "-", "_")
}
