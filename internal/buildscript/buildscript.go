// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package buildscript parses the stdout protocol emitted by a user
// build script and turns it into instructions applied to the
// dependent compiler invocation (§4.I). `error=` lines are accumulated
// with github.com/hashicorp/go-multierror, the same pattern the
// resolver uses for conflict causes, rather than failing on the first
// line — §4.I requires every log message to survive to the final
// report even though the unit as a whole still fails.
package buildscript

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// modernSyntaxMinVersion is the minimum supported Rust version a
// package must declare to use `cargo::` directives (§4.I).
const modernSyntaxMinVersion = "1.77.0"

var reservedKeys = map[string]bool{
	"rustc-flags":            true,
	"rustc-link-lib":         true,
	"rustc-link-search":      true,
	"rustc-link-arg":         true,
	"rustc-link-arg-cdylib":  true,
	"rustc-cdylib-link-arg":  true,
	"rustc-link-arg-bins":    true,
	"rustc-link-arg-bin":     true,
	"rustc-link-arg-tests":   true,
	"rustc-link-arg-benches": true,
	"rustc-link-arg-examples": true,
	"rustc-cfg":              true,
	"rustc-check-cfg":        true,
	"rustc-env":              true,
	"warning":                true,
	"error":                  true,
	"rerun-if-changed":       true,
	"rerun-if-env-changed":   true,
	"metadata":               true,
}

// LinkSearchPath is one `rustc-link-search` directive, classified by
// whether it sits under the script's OUT_DIR (§4.I "paths below the
// build-script's OUT_DIR are classified as cargo-artifact and sorted
// before external paths").
type LinkSearchPath struct {
	Path          string
	CargoArtifact bool
}

// LinkArg is one `rustc-link-arg*` directive, scoped to the target
// kind it applies to ("" means every target).
type LinkArg struct {
	Scope string
	Arg   string
}

type LogLevel int

const (
	LogWarning LogLevel = iota
	LogError
)

func (l LogLevel) String() string {
	if l == LogError {
		return "error"
	}
	return "warning"
}

type LogMessage struct {
	Level LogLevel
	Text  string
}

// Output is the parsed result of one build-script run (glossary
// "Build output").
type Output struct {
	RustcFlags        []string
	LinkSearch        []LinkSearchPath
	LinkLib           []string
	LinkArgs          []LinkArg
	Cfg               []string
	CheckCfg          []string
	Env               map[string]string
	Metadata          map[string]string
	RerunIfChanged    []string
	RerunIfEnvChanged []string
	Logs              []LogMessage
}

// SortedLinkSearch returns LinkSearch with cargo-artifact paths first,
// each group preserving its original relative order.
func (o *Output) SortedLinkSearch() []LinkSearchPath {
	out := append([]LinkSearchPath(nil), o.LinkSearch...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CargoArtifact && !out[j].CargoArtifact
	})
	return out
}

// RewriteOutDir replaces every occurrence of oldOutDir with newOutDir
// across o's path/value-bearing fields, used when a cached
// build-script run is replayed against a new OUT_DIR (§4.I).
func (o *Output) RewriteOutDir(oldOutDir, newOutDir string) {
	if oldOutDir == "" || oldOutDir == newOutDir {
		return
	}
	rewrite := func(s string) string { return strings.ReplaceAll(s, oldOutDir, newOutDir) }
	for i := range o.RustcFlags {
		o.RustcFlags[i] = rewrite(o.RustcFlags[i])
	}
	for i := range o.LinkSearch {
		o.LinkSearch[i].Path = rewrite(o.LinkSearch[i].Path)
	}
	for i := range o.LinkLib {
		o.LinkLib[i] = rewrite(o.LinkLib[i])
	}
	for i := range o.LinkArgs {
		o.LinkArgs[i].Arg = rewrite(o.LinkArgs[i].Arg)
	}
	for k, v := range o.Env {
		o.Env[k] = rewrite(v)
	}
	for k, v := range o.Metadata {
		o.Metadata[k] = rewrite(v)
	}
}

// Parser parses one build script run's stdout.
type Parser struct {
	// OutDir is the script's own OUT_DIR, used to classify
	// rustc-link-search paths.
	OutDir string
	// RustVersion is the package's declared minimum supported compiler
	// version; nil means the modern `cargo::` syntax is never accepted.
	RustVersion *ident.SemVer
	// AllowRustcBootstrap downgrades a rustc-env=RUSTC_BOOTSTRAP=1 from
	// an error to a warning, when the ambient environment already
	// permits bootstrap rustc (§4.I).
	AllowRustcBootstrap bool
}

// Parse reads r line by line and applies §4.I's grammar. It returns a
// non-nil error (a *multierror.Error) when any line is malformed or the
// script emitted an `error=` directive; Output is still populated and
// usable for diagnostics even when err != nil.
func (p *Parser) Parse(r io.Reader) (*Output, error) {
	out := &Output{Env: map[string]string{}, Metadata: map[string]string{}}
	var errs *multierror.Error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.applyLine(out, scanner.Text()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("reading build script output: %w", err)
	}

	for _, m := range out.Logs {
		if m.Level == LogError {
			errs = multierror.Append(errs, fmt.Errorf("%s", m.Text))
		}
	}
	return out, errs.ErrorOrNil()
}

func (p *Parser) applyLine(out *Output, text string) error {
	var key, value string
	var modern bool
	switch {
	case strings.HasPrefix(text, "cargo::"):
		modern = true
		rest := strings.TrimPrefix(text, "cargo::")
		idx := strings.IndexByte(rest, '=')
		if idx < 0 {
			return nil
		}
		key, value = rest[:idx], rest[idx+1:]
	case strings.HasPrefix(text, "cargo:"):
		rest := strings.TrimPrefix(text, "cargo:")
		idx := strings.IndexByte(rest, '=')
		if idx < 0 {
			return nil
		}
		key, value = rest[:idx], rest[idx+1:]
	default:
		return nil
	}

	if modern && !reservedKeys[key] {
		return fmt.Errorf("unknown cargo::%s directive", key)
	}
	if modern && !p.modernSyntaxAllowed() {
		return fmt.Errorf("cargo::%s requires rust-version >= %s; use cargo:%s=%s instead", key, modernSyntaxMinVersion, key, value)
	}

	if !reservedKeys[key] {
		// Legacy syntax: any unreserved key is implicit metadata (§4.I).
		out.Metadata[key] = value
		return nil
	}

	switch key {
	case "rustc-flags":
		out.RustcFlags = append(out.RustcFlags, strings.Fields(value)...)
	case "rustc-link-lib":
		out.LinkLib = append(out.LinkLib, value)
	case "rustc-link-search":
		out.LinkSearch = append(out.LinkSearch, LinkSearchPath{Path: value, CargoArtifact: p.underOutDir(value)})
	case "rustc-link-arg":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Arg: value})
	case "rustc-link-arg-cdylib", "rustc-cdylib-link-arg":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "cdylib", Arg: value})
	case "rustc-link-arg-bins":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "bins", Arg: value})
	case "rustc-link-arg-bin":
		name, arg, ok := splitNameValue(value)
		if !ok {
			return fmt.Errorf("rustc-link-arg-bin requires NAME=ARG, got %q", value)
		}
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "bin:" + name, Arg: arg})
	case "rustc-link-arg-tests":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "tests", Arg: value})
	case "rustc-link-arg-benches":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "benches", Arg: value})
	case "rustc-link-arg-examples":
		out.LinkArgs = append(out.LinkArgs, LinkArg{Scope: "examples", Arg: value})
	case "rustc-cfg":
		out.Cfg = append(out.Cfg, value)
	case "rustc-check-cfg":
		out.CheckCfg = append(out.CheckCfg, value)
	case "rustc-env":
		k, v, ok := splitNameValue(value)
		if !ok {
			return fmt.Errorf("rustc-env requires KEY=VALUE, got %q", value)
		}
		if k == "RUSTC_BOOTSTRAP" {
			if !p.AllowRustcBootstrap {
				return fmt.Errorf("setting RUSTC_BOOTSTRAP via rustc-env is not permitted")
			}
			out.Logs = append(out.Logs, LogMessage{Level: LogWarning, Text: "build script sets RUSTC_BOOTSTRAP"})
		} else {
			out.Env[k] = v
		}
	case "warning":
		out.Logs = append(out.Logs, LogMessage{Level: LogWarning, Text: value})
	case "error":
		out.Logs = append(out.Logs, LogMessage{Level: LogError, Text: value})
	case "rerun-if-changed":
		out.RerunIfChanged = append(out.RerunIfChanged, value)
	case "rerun-if-env-changed":
		out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
	case "metadata":
		k, v, ok := splitNameValue(value)
		if !ok {
			return fmt.Errorf("metadata requires K=V, got %q", value)
		}
		out.Metadata[k] = v
	}
	return nil
}

func (p *Parser) modernSyntaxAllowed() bool {
	if p.RustVersion == nil {
		return false
	}
	threshold, err := ident.ParseSemVer(modernSyntaxMinVersion)
	if err != nil {
		return false
	}
	return p.RustVersion.Compare(threshold) >= 0
}

func (p *Parser) underOutDir(path string) bool {
	if p.OutDir == "" {
		return false
	}
	return strings.HasPrefix(filepath.Clean(path), filepath.Clean(p.OutDir))
}

func splitNameValue(s string) (string, string, bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
