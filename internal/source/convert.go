// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"fmt"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/index"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
)

// summaryFromRecord projects one registry index.Record onto the
// resolver-visible Summary shape (§6 "Registry index file format").
// Shared by every registry-backed variant (local, git-backed, sparse).
func summaryFromRecord(sid ident.SourceId, rec index.Record) (Summary, error) {
	name, err := ident.NewPackageName(rec.Name)
	if err != nil {
		return Summary{}, fmt.Errorf("index record name %q: %w", rec.Name, err)
	}
	v, err := ident.ParseSemVer(rec.Vers)
	if err != nil {
		return Summary{}, fmt.Errorf("index record %s version %q: %w", rec.Name, rec.Vers, err)
	}
	id := ident.PackageId{Name: name, Version: v, Source: sid}

	deps := make([]manifest.Dependency, 0, len(rec.Deps))
	for _, d := range rec.Deps {
		depName, err := ident.NewPackageName(d.Package)
		rename := ""
		if err != nil || d.Package == "" {
			depName, err = ident.NewPackageName(d.Name)
			if err != nil {
				return Summary{}, fmt.Errorf("index record %s dependency %q: %w", rec.Name, d.Name, err)
			}
		} else {
			rename = d.Name
		}
		req, err := ident.ParseVersionReq(d.Req)
		if err != nil {
			return Summary{}, fmt.Errorf("index record %s dependency %s requirement %q: %w", rec.Name, d.Name, d.Req, err)
		}
		depSid := sid
		if d.Registry != "" {
			depSid, err = ident.NewRegistrySource(d.Registry)
			if err != nil {
				return Summary{}, fmt.Errorf("index record %s dependency %s registry %q: %w", rec.Name, d.Name, d.Registry, err)
			}
		}
		kind := manifest.DepNormal
		switch d.Kind {
		case "dev":
			kind = manifest.DepDev
		case "build":
			kind = manifest.DepBuild
		}
		deps = append(deps, manifest.Dependency{
			Name:              depName,
			Rename:            rename,
			Source:            depSid,
			Req:               req,
			Kind:              kind,
			PlatformPredicate: d.Target,
			Features:          d.Features,
			DefaultFeatures:   d.DefaultFeatures,
			Optional:          d.Optional,
		})
	}

	features := make(map[string][]manifest.FeatureValue, len(rec.Features))
	for k, vals := range rec.Features {
		parsed := make([]manifest.FeatureValue, 0, len(vals))
		for _, raw := range vals {
			parsed = append(parsed, manifest.ParseFeatureValue(raw))
		}
		features[k] = parsed
	}

	return Summary{
		Id:           id,
		Dependencies: deps,
		Features:     features,
		Checksum:     rec.Cksum,
		Yanked:       rec.Yanked,
		Links:        rec.Links,
		RustVersion:  rec.RustVersion,
	}, nil
}
