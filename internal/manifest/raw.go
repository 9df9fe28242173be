// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package manifest implements the declarative manifest/workspace model:
// parsing, workspace discovery, inheritance resolution and validation
// (§3, §4.B). The raw TOML schema below is a direct generalization of
// the teacher's internal/extractor/rust/rust.go CargoToml struct, which
// already modeled every field as interface{} so a single Go struct
// could hold either a literal value or a workspace-inheritance marker
// table; this file keeps that technique and extends it to every
// inheritable field the spec names, not just the handful the teacher
// read for version-extraction purposes.
package manifest

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// rawDocument is the direct TOML decode target: a superset of every
// section §4.B and §6 name. Fields that may be inherited from the
// workspace are typed interface{} so they can hold either a literal or
// a `{ workspace = true }` marker table; normalize.go tells them apart.
type rawDocument struct {
	Package      *rawPackage              `toml:"package"`
	Project      *rawPackage              `toml:"project"` // alias, preferred: package
	Workspace    *rawWorkspace            `toml:"workspace"`
	Lib          *rawTarget               `toml:"lib"`
	Bin          []rawTarget              `toml:"bin"`
	Example      []rawTarget              `toml:"example"`
	Test         []rawTarget              `toml:"test"`
	Bench        []rawTarget              `toml:"bench"`
	Dependencies map[string]interface{}   `toml:"dependencies"`
	DevDeps1     map[string]interface{}   `toml:"dev-dependencies"`
	DevDeps2     map[string]interface{}   `toml:"dev_dependencies"`
	BuildDeps1   map[string]interface{}   `toml:"build-dependencies"`
	BuildDeps2   map[string]interface{}   `toml:"build_dependencies"`
	Target       map[string]rawTargetCfg  `toml:"target"`
	Features     map[string][]string      `toml:"features"`
	Profile      map[string]rawProfile    `toml:"profile"`
	Lints        map[string]interface{}   `toml:"lints"`
	Patch        map[string]map[string]interface{} `toml:"patch"`
	Replace      map[string]interface{}   `toml:"replace"`
}

// rawTargetCfg is a `[target.<cfg>.<section>]` table.
type rawTargetCfg struct {
	Dependencies map[string]interface{} `toml:"dependencies"`
	DevDeps      map[string]interface{} `toml:"dev-dependencies"`
	BuildDeps    map[string]interface{} `toml:"build-dependencies"`
}

// rawPackage is the [package] (or legacy [project]) table. Every field
// that §4.B allows a workspace-inherited value for is interface{}.
type rawPackage struct {
	Name          string      `toml:"name"`
	Version       interface{} `toml:"version"`
	Authors       interface{} `toml:"authors"`
	Edition       interface{} `toml:"edition"`
	RustVersion   interface{} `toml:"rust-version"`
	Description   interface{} `toml:"description"`
	Documentation interface{} `toml:"documentation"`
	Homepage      interface{} `toml:"homepage"`
	Repository    interface{} `toml:"repository"`
	License       interface{} `toml:"license"`
	LicenseFile   interface{} `toml:"license-file"`
	Keywords      interface{} `toml:"keywords"`
	Categories    interface{} `toml:"categories"`
	Readme        interface{} `toml:"readme"`
	Publish       interface{} `toml:"publish"`
	Links         string      `toml:"links"`
	Build         interface{} `toml:"build"`
	DefaultRun    string      `toml:"default-run"`
	AutoLib       interface{} `toml:"autolib"`
	AutoBins      interface{} `toml:"autobins"`
	AutoExamples  interface{} `toml:"autoexamples"`
	AutoTests     interface{} `toml:"autotests"`
	AutoBenches   interface{} `toml:"autobenches"`
	Metadata      map[string]interface{} `toml:"metadata"`
}

type rawWorkspace struct {
	Members         []string               `toml:"members"`
	Exclude         []string               `toml:"exclude"`
	Resolver        string                 `toml:"resolver"`
	Package         *rawPackage            `toml:"package"`
	Dependencies    map[string]interface{} `toml:"dependencies"`
	Patch           map[string]map[string]interface{} `toml:"patch"`
	Replace         map[string]interface{} `toml:"replace"`
}

type rawTarget struct {
	Name      string   `toml:"name"`
	Path      string   `toml:"path"`
	CrateType []string `toml:"crate-type"`
}

type rawProfile struct {
	OptLevel     interface{} `toml:"opt-level"`
	Debug        interface{} `toml:"debug"`
	LTO          interface{} `toml:"lto"`
	Panic        string      `toml:"panic"`
	Incremental  interface{} `toml:"incremental"`
	CodegenUnits interface{} `toml:"codegen-units"`
}

// parseRaw decodes manifest TOML text and reports unused/unknown keys
// (§4.B: "a set of unused keys (reported, not fatal)") via the
// toml.MetaData the BurntSushi decoder returns — the same decoder and
// pattern the teacher's extractFromCargoToml uses, just capturing the
// metadata it previously discarded.
func parseRaw(data []byte) (*rawDocument, []string, error) {
	var doc rawDocument
	meta, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest parse error: %w", err)
	}
	var unused []string
	for _, k := range meta.Undecoded() {
		unused = append(unused, k.String())
	}
	return &doc, unused, nil
}
