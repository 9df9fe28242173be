// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package fingerprint implements the incremental-rebuild freshness
// cache: a per-unit record of everything that could make a unit need
// recompiling, compared byte-for-byte against the last stored record
// to decide fresh vs dirty (§4.G, glossary "Fingerprint"/"Fresh/Dirty").
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// LocalInputKind distinguishes the four local-input varieties named in
// §4.G: a watched source file's mtime, an env var's value, and the two
// rerun-if-* build-script directive forms.
type LocalInputKind int

const (
	InputPath LocalInputKind = iota
	InputEnv
	InputRerunIfChanged
	InputRerunIfEnvChanged
)

func (k LocalInputKind) String() string {
	switch k {
	case InputEnv:
		return "env"
	case InputRerunIfChanged:
		return "rerun-if-changed"
	case InputRerunIfEnvChanged:
		return "rerun-if-env-changed"
	default:
		return "path"
	}
}

// LocalInput is one `(path, mtime)` or `(env-var, value-hash)` entry
// in a unit's fingerprint (§4.G).
type LocalInput struct {
	Kind  string `toml:"kind"`
	Key   string `toml:"key"`
	Value string `toml:"value"`
}

// DepEntry is one `(dep-unit-id, fingerprint-hash)` pair.
type DepEntry struct {
	UnitHash    string `toml:"unit_hash"`
	Fingerprint string `toml:"fingerprint"`
}

// Fingerprint is the per-unit freshness record (§4.G).
type Fingerprint struct {
	RustcVersion    string     `toml:"rustc_version"`
	Target          string     `toml:"target"`
	ProfileHash     string     `toml:"profile_hash"`
	FeaturesHash    string     `toml:"features_hash"`
	DepFingerprints []DepEntry `toml:"dep_fingerprints"`
	LocalInputs     []LocalInput `toml:"local_inputs"`
}

// Hash returns the content hash compared for freshness — a
// canonically sorted encoding so that map/slice build order never
// affects equality (§8 "running the resolver twice... byte-identical",
// the same determinism requirement applied to fingerprints).
func (f *Fingerprint) Hash() string {
	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(canonical(f))
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func canonical(f *Fingerprint) *Fingerprint {
	c := *f
	c.DepFingerprints = append([]DepEntry(nil), f.DepFingerprints...)
	sort.Slice(c.DepFingerprints, func(i, j int) bool { return c.DepFingerprints[i].UnitHash < c.DepFingerprints[j].UnitHash })
	c.LocalInputs = append([]LocalInput(nil), f.LocalInputs...)
	sort.Slice(c.LocalInputs, func(i, j int) bool {
		if c.LocalInputs[i].Kind != c.LocalInputs[j].Kind {
			return c.LocalInputs[i].Kind < c.LocalInputs[j].Kind
		}
		return c.LocalInputs[i].Key < c.LocalInputs[j].Key
	})
	return &c
}

// PathInput builds a LocalInput from a watched file's mtime.
func PathInput(path string) (LocalInput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalInput{}, err
	}
	return LocalInput{Kind: InputPath.String(), Key: path, Value: info.ModTime().UTC().Format(time.RFC3339Nano)}, nil
}

// EnvInput builds a LocalInput from an env var's current value. The
// value is hashed rather than stored verbatim since a rerun-if-env-
// changed variable may carry a credential or other sensitive value
// that should not end up readable in a fingerprint file on disk.
func EnvInput(key string) LocalInput {
	v := os.Getenv(key)
	sum := sha256.Sum256([]byte(v))
	return LocalInput{Kind: InputEnv.String(), Key: key, Value: hex.EncodeToString(sum[:])}
}

// RerunIfChangedInput and RerunIfEnvChangedInput tag a path/env
// LocalInput as originating from an explicit build-script directive
// rather than the package-wide fallback watch (§4.G "absent any such
// directives, the run unit falls back to watching the entire package
// source tree").
func RerunIfChangedInput(path string) (LocalInput, error) {
	li, err := PathInput(path)
	if err != nil {
		return LocalInput{}, err
	}
	li.Kind = InputRerunIfChanged.String()
	return li, nil
}

func RerunIfEnvChangedInput(key string) LocalInput {
	li := EnvInput(key)
	li.Kind = InputRerunIfEnvChanged.String()
	return li
}
