// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package resolve

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/source"
)

// memRegistry is an in-memory source.Source test double holding a
// fixed set of Summary values, standing in for a real registry index
// so resolver tests never touch the network or disk.
type memRegistry struct {
	sid       ident.SourceId
	summaries []source.Summary
}

func (m *memRegistry) Query(dep source.QueryDep, kind source.QueryKind, sink func(source.Summary)) (source.PollResult, error) {
	for _, s := range m.summaries {
		if s.Id.Name != dep.Name {
			continue
		}
		if dep.Req.Matches(s.Id.Version) {
			sink(s)
		}
	}
	return source.Ready, nil
}

func (m *memRegistry) Download(id ident.PackageId) (source.MaybePackage, error) {
	return source.MaybePackage{Package: &source.Package{Id: id, Root: "/mem/" + id.String()}}, nil
}

func (m *memRegistry) FinishDownload(id ident.PackageId, data []byte) (source.Package, error) {
	return source.Package{Id: id}, nil
}

func (m *memRegistry) IsYanked(id ident.PackageId) (bool, error) {
	for _, s := range m.summaries {
		if s.Id.Equal(id) {
			return s.Yanked, nil
		}
	}
	return false, nil
}

func (m *memRegistry) InvalidateCache()       {}
func (m *memRegistry) BlockUntilReady() error { return nil }

type memLocator struct {
	reg *memRegistry
}

func (l *memLocator) Source(ident.SourceId) (source.Source, error) { return l.reg, nil }

func mustSource(t *testing.T) ident.SourceId {
	t.Helper()
	sid, err := ident.NewRegistrySource("https://example.test/index")
	require.NoError(t, err)
	return sid
}

func pkg(t *testing.T, sid ident.SourceId, name, version string) ident.PackageId {
	t.Helper()
	n, err := ident.NewPackageName(name)
	require.NoError(t, err)
	v, err := ident.ParseSemVer(version)
	require.NoError(t, err)
	return ident.PackageId{Name: n, Version: v, Source: sid}
}

func dep(t *testing.T, sid ident.SourceId, name, req string) manifest.Dependency {
	t.Helper()
	n, err := ident.NewPackageName(name)
	require.NoError(t, err)
	r, err := ident.ParseVersionReq(req)
	require.NoError(t, err)
	return manifest.Dependency{Name: n, Source: sid, Req: r, Kind: manifest.DepNormal, DefaultFeatures: true}
}

func TestResolveSimpleSelection(t *testing.T) {
	sid := mustSource(t)
	reg := &memRegistry{sid: sid, summaries: []source.Summary{
		{Id: pkg(t, sid, "a", "0.1.0")},
		{Id: pkg(t, sid, "a", "0.2.0")},
		{Id: pkg(t, sid, "b", "1.0.0"), Dependencies: []manifest.Dependency{dep(t, sid, "a", "^0.1")}},
	}}
	r := NewResolver(&memLocator{reg}, ModeMaximal, nil)
	res, err := r.Resolve([]Root{{Dep: dep(t, sid, "b", "*")}})
	require.NoError(t, err)
	require.Len(t, res.Packages, 2)
	require.Contains(t, res.Packages, pkg(t, sid, "b", "1.0.0"))
	require.Contains(t, res.Packages, pkg(t, sid, "a", "0.1.0"))
}

func TestResolveBacktrackThroughMostConstrained(t *testing.T) {
	sid := mustSource(t)
	var summaries []source.Summary
	summaries = append(summaries,
		source.Summary{Id: pkg(t, sid, "foo", "1.0.0"), Dependencies: []manifest.Dependency{
			dep(t, sid, "bar", "=1.0.0"),
			dep(t, sid, "constrained", "<=1.0.60"),
		}},
		source.Summary{Id: pkg(t, sid, "bar", "1.0.0"), Dependencies: []manifest.Dependency{
			dep(t, sid, "constrained", ">=1.0.60"),
		}},
	)
	for i := 0; i < 100; i++ {
		summaries = append(summaries, source.Summary{Id: pkg(t, sid, "constrained", fmt.Sprintf("1.0.%d", i))})
	}
	reg := &memRegistry{sid: sid, summaries: summaries}
	r := NewResolver(&memLocator{reg}, ModeMaximal, nil)
	res, err := r.Resolve([]Root{{Dep: dep(t, sid, "foo", "1")}})
	require.NoError(t, err)
	require.Contains(t, res.Packages, pkg(t, sid, "constrained", "1.0.60"))
}

func TestResolveLinksConflict(t *testing.T) {
	sid := mustSource(t)
	reg := &memRegistry{sid: sid, summaries: []source.Summary{
		{Id: pkg(t, sid, "a-sys", "0.9.1"), Links: "a"},
		{Id: pkg(t, sid, "a-sys", "0.10.0"), Links: "a"},
		{Id: pkg(t, sid, "sib1", "1.0.0"), Dependencies: []manifest.Dependency{dep(t, sid, "a-sys", "=0.9.1")}},
		{Id: pkg(t, sid, "sib2", "1.0.0"), Dependencies: []manifest.Dependency{dep(t, sid, "a-sys", "=0.10.0")}},
	}}
	r := NewResolver(&memLocator{reg}, ModeMaximal, nil)
	_, err := r.Resolve([]Root{
		{Dep: dep(t, sid, "sib1", "*")},
		{Dep: dep(t, sid, "sib2", "*")},
	})
	require.Error(t, err)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestResolveFeatureUnification(t *testing.T) {
	sid := mustSource(t)
	shared := source.Summary{
		Id: pkg(t, sid, "shared", "1.0.0"),
		Features: map[string][]manifest.FeatureValue{
			"x": nil,
			"y": nil,
		},
	}
	d1 := dep(t, sid, "shared", "^1")
	d1.Features = []string{"x"}
	d2 := dep(t, sid, "shared", "^1")
	d2.Features = []string{"y"}
	reg := &memRegistry{sid: sid, summaries: []source.Summary{
		shared,
		{Id: pkg(t, sid, "caller1", "1.0.0"), Dependencies: []manifest.Dependency{d1}},
		{Id: pkg(t, sid, "caller2", "1.0.0"), Dependencies: []manifest.Dependency{d2}},
	}}
	r := NewResolver(&memLocator{reg}, ModeMaximal, nil)
	res, err := r.Resolve([]Root{
		{Dep: dep(t, sid, "caller1", "*")},
		{Dep: dep(t, sid, "caller2", "*")},
	})
	require.NoError(t, err)
	sharedId := pkg(t, sid, "shared", "1.0.0")
	require.Contains(t, res.Features[sharedId], "x")
	require.Contains(t, res.Features[sharedId], "y")
}

func TestResolveMinimalVersions(t *testing.T) {
	sid := mustSource(t)
	reg := &memRegistry{sid: sid, summaries: []source.Summary{
		{Id: pkg(t, sid, "a", "0.1.0")},
		{Id: pkg(t, sid, "a", "0.2.0")},
	}}
	r := NewResolver(&memLocator{reg}, ModeMinimal, nil)
	res, err := r.Resolve([]Root{{Dep: dep(t, sid, "a", "*")}})
	require.NoError(t, err)
	require.Equal(t, pkg(t, sid, "a", "0.1.0"), res.Packages[0])
}

func TestResolveYankedExcludedUnlessWhitelisted(t *testing.T) {
	sid := mustSource(t)
	yankedId := pkg(t, sid, "a", "0.2.0")
	reg := &memRegistry{sid: sid, summaries: []source.Summary{
		{Id: pkg(t, sid, "a", "0.1.0")},
		{Id: yankedId, Yanked: true},
	}}
	r := NewResolver(&memLocator{reg}, ModeMaximal, nil)
	res, err := r.Resolve([]Root{{Dep: dep(t, sid, "a", "*")}})
	require.NoError(t, err)
	require.Equal(t, pkg(t, sid, "a", "0.1.0"), res.Packages[0])

	r2 := NewResolver(&memLocator{reg}, ModeMaximal, map[ident.PackageId]bool{yankedId: true})
	res2, err := r2.Resolve([]Root{{Dep: dep(t, sid, "a", "*")}})
	require.NoError(t, err)
	require.Equal(t, yankedId, res2.Packages[0])
}
