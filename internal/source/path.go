// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"fmt"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
)

// PathSource enumerates a single directory as one package and never
// touches the network (§4.C "Path source").
type PathSource struct {
	dir     string
	id      ident.SourceId
	summary *Summary
}

// NewPathSource loads the manifest at dir and builds the single-package
// source it denotes.
func NewPathSource(dir string) (*PathSource, error) {
	sid, err := ident.NewPathSource(dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Normalize(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("loading path dependency at %s: %w", dir, err)
	}
	pkgId := ident.PackageId{Name: m.Name, Version: m.Version, Source: sid}
	var deps []manifest.Dependency
	deps = append(deps, m.Dependencies[manifest.DepNormal]...)
	deps = append(deps, m.Dependencies[manifest.DepBuild]...)
	s := &Summary{
		Id:           pkgId,
		Dependencies: deps,
		Features:     m.Features,
		Links:        m.Links,
		RustVersion:  m.RustVersion,
	}
	return &PathSource{dir: dir, id: sid, summary: s}, nil
}

func (p *PathSource) Query(dep QueryDep, kind QueryKind, sink func(Summary)) (PollResult, error) {
	if p.summary.Id.Name != dep.Name {
		if kind != QueryFuzzy || p.summary.Id.Name.FuzzyVariant() != dep.Name {
			return Ready, nil
		}
	}
	if !dep.Req.Matches(p.summary.Id.Version) {
		return Ready, nil
	}
	sink(*p.summary)
	return Ready, nil
}

func (p *PathSource) Download(id ident.PackageId) (MaybePackage, error) {
	if !id.Equal(p.summary.Id) {
		return MaybePackage{}, fmt.Errorf("path source %s has no package %s", p.dir, id)
	}
	return MaybePackage{Package: &Package{Id: id, Root: p.dir}}, nil
}

func (p *PathSource) FinishDownload(id ident.PackageId, data []byte) (Package, error) {
	return Package{}, fmt.Errorf("path source %s never produces a pending download", p.dir)
}

func (p *PathSource) IsYanked(ident.PackageId) (bool, error) { return false, nil }

func (p *PathSource) InvalidateCache() {}

func (p *PathSource) BlockUntilReady() error { return nil }
