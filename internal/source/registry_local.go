// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/index"
)

// LocalRegistrySource reads index entries and `.crate` files entirely
// from a local directory, doing no network I/O (§4.C "Local registry").
// Layout: <dir>/index/<relpath> (index.RelativePath shards) and
// <dir>/cache/<name>-<version>.crate.
type LocalRegistrySource struct {
	id     ident.SourceId
	dir    string
	index  *index.Cache
	layout *CacheLayout
}

// NewLocalRegistrySource opens a local registry rooted at dir.
func NewLocalRegistrySource(home, dir string) (*LocalRegistrySource, error) {
	sid, err := ident.NewRegistrySource("file://" + filepath.ToSlash(dir))
	if err != nil {
		return nil, err
	}
	idx, err := index.NewCache(filepath.Join(dir, "index"), 0)
	if err != nil {
		return nil, err
	}
	return &LocalRegistrySource{id: sid, dir: dir, index: idx, layout: NewCacheLayout(home)}, nil
}

func (l *LocalRegistrySource) Query(dep QueryDep, kind QueryKind, sink func(Summary)) (PollResult, error) {
	names := []ident.PackageName{dep.Name}
	if kind == QueryFuzzy {
		names = append(names, dep.Name.FuzzyVariant())
	}
	seen := map[string]bool{}
	for _, name := range names {
		if seen[string(name)] {
			continue
		}
		seen[string(name)] = true
		recs, err := l.index.Records(string(name))
		if err != nil {
			return Ready, fmt.Errorf("reading local registry index for %s: %w", name, err)
		}
		for _, rec := range recs {
			s, err := summaryFromRecord(l.id, rec)
			if err != nil {
				return Ready, err
			}
			if dep.Req.Matches(s.Id.Version) {
				sink(s)
			}
		}
		l.layout.touch(KindIndex, string(name))
	}
	return Ready, nil
}

func (l *LocalRegistrySource) Download(id ident.PackageId) (MaybePackage, error) {
	cratePath := filepath.Join(l.dir, "cache", fmt.Sprintf("%s-%s.crate", id.Name, id.Version))
	data, err := os.ReadFile(cratePath)
	if err != nil {
		return MaybePackage{}, fmt.Errorf("reading local registry crate %s: %w", cratePath, err)
	}
	l.layout.touch(KindCrate, cratePath)
	pkg, err := l.finishDownload(id, data)
	if err != nil {
		return MaybePackage{}, err
	}
	return MaybePackage{Package: &pkg}, nil
}

func (l *LocalRegistrySource) FinishDownload(id ident.PackageId, data []byte) (Package, error) {
	return l.finishDownload(id, data)
}

func (l *LocalRegistrySource) finishDownload(id ident.PackageId, data []byte) (Package, error) {
	got := sha256Hex(data)
	recs, err := l.index.Records(string(id.Name))
	if err != nil {
		return Package{}, err
	}
	for _, rec := range recs {
		if rec.Vers == id.Version.String() && rec.Cksum != "" && rec.Cksum != got {
			return Package{}, fmt.Errorf("checksum mismatch for %s: index says %s, tarball hashes to %s", id, rec.Cksum, got)
		}
	}

	dest := l.layout.UnpackDir(l.id, string(id.Name), id.Version.String())
	prefix := fmt.Sprintf("%s-%s/", id.Name, id.Version)
	if err := Unpack(data, dest, prefix); err != nil {
		return Package{}, fmt.Errorf("unpacking %s: %w", id, err)
	}
	l.layout.touch(KindSrc, dest)
	return Package{Id: id, Root: dest}, nil
}

func (l *LocalRegistrySource) IsYanked(id ident.PackageId) (bool, error) {
	recs, err := l.index.Records(string(id.Name))
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.Vers == id.Version.String() {
			return rec.Yanked, nil
		}
	}
	return false, nil
}

func (l *LocalRegistrySource) InvalidateCache() {}

func (l *LocalRegistrySource) BlockUntilReady() error { return nil }
