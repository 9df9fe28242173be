// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import "fmt"

// ValidateVirtual checks the forbidden-field rules for a virtual
// manifest (a manifest with a [workspace] table and no [package]):
// it must declare none of [lib], [[bin]], [[example]], [[test]] or
// [[bench]] (§4.B). Callers invoke this once workspace discovery has
// identified raw as the root of a virtual workspace.
func ValidateVirtual(raw *rawDocument) error {
	if present := raw.RequiresPackage(); len(present) > 0 {
		return fmt.Errorf("virtual manifest must not declare %v: these require a [package] table", present)
	}
	return nil
}

// ValidateEmbedded checks the forbidden-field rules for an embedded
// single-file manifest (a `.rs` source file carrying a TOML frontmatter
// block instead of a standalone Cargo.toml): it may declare no
// [workspace] table and none of [lib], [[bin]], [[example]], [[test]],
// [[bench]], package.build, package.links, package.autolib or any of
// the package.auto* toggles, since none of those are meaningful without
// a crate directory to resolve relative paths against (§4.B).
func ValidateEmbedded(raw *rawDocument) error {
	if raw.Workspace != nil {
		return fmt.Errorf("embedded manifest must not declare [workspace]")
	}
	if present := raw.RequiresPackage(); len(present) > 0 {
		return fmt.Errorf("embedded manifest must not declare %v", present)
	}
	pkg := raw.Package
	if pkg == nil {
		pkg = raw.Project
	}
	if pkg == nil {
		return nil
	}
	if pkg.Build != nil {
		return fmt.Errorf("embedded manifest must not set package.build")
	}
	if pkg.Links != "" {
		return fmt.Errorf("embedded manifest must not set package.links")
	}
	if pkg.AutoLib != nil || pkg.AutoBins != nil || pkg.AutoExamples != nil || pkg.AutoTests != nil || pkg.AutoBenches != nil {
		return fmt.Errorf("embedded manifest must not set package.auto*")
	}
	return nil
}
