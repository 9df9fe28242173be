// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package source implements the uniform Source contract (§4.C) shared
// by path, git, local-registry, git-backed-registry and HTTP-sparse-
// registry variants: query/download/finish_download/is_yanked/
// invalidate_cache/block_until_ready, plus the on-disk cache layout and
// the `.cargo-ok` unpack protocol common to every registry-backed
// variant.
package source

import (
	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
)

// QueryDep is the minimal shape Query needs from a dependency: a name
// and a version requirement. Resolver-side Dependency values already
// carry these plus unrelated fields the source has no use for.
type QueryDep struct {
	Name ident.PackageName
	Req  ident.VersionReq
}

// QueryKind selects exact name matching or the additional hyphen/
// underscore-swapped fuzzy pass (§4.C "Fuzzy mode also tries
// hyphen/underscore-swapped names").
type QueryKind int

const (
	QueryExact QueryKind = iota
	QueryFuzzy
)

// Summary is the resolver-visible projection of one published package
// version (§3 Summary).
type Summary struct {
	Id           ident.PackageId
	Dependencies []manifest.Dependency
	Features     map[string][]manifest.FeatureValue
	Checksum     string
	Yanked       bool
	Links        string
	RustVersion  string
}

// PollResult reports whether Query's sink has received every matching
// Summary (Ready) or whether the caller must drive more I/O and poll
// again (Pending); no async runtime backs this, per §4.C's poll-based
// I/O model.
type PollResult int

const (
	Ready PollResult = iota
	Pending
)

// DownloadToken describes a pending fetch the caller's batch downloader
// must perform before calling FinishDownload.
type DownloadToken struct {
	URL           string
	Descriptor    string
	Authorization string
}

// Package is a fully unpacked, ready-to-build source tree.
type Package struct {
	Id   ident.PackageId
	Root string
}

// MaybePackage is either an already-available Package or a
// DownloadToken the caller must resolve first (§4.C download()).
type MaybePackage struct {
	Package *Package
	Token   *DownloadToken
}

// Source is the contract every source variant implements.
type Source interface {
	// Query produces Summaries matching dep via sink, returning Ready
	// once every match has been delivered or Pending if the caller must
	// drive more I/O (e.g. an HTTP fetch) and call Query again.
	Query(dep QueryDep, kind QueryKind, sink func(Summary)) (PollResult, error)

	// Download returns either a ready Package or a token for the caller's
	// batch downloader to resolve.
	Download(id ident.PackageId) (MaybePackage, error)

	// FinishDownload verifies data's checksum against id's Summary,
	// writes the tarball to the content-addressed cache, unpacks it and
	// returns the resulting Package.
	FinishDownload(id ident.PackageId, data []byte) (Package, error)

	// IsYanked reports whether id has been withdrawn from the index.
	IsYanked(id ident.PackageId) (bool, error)

	// InvalidateCache discards any in-memory Summary/record cache,
	// forcing the next Query to consult the on-disk or remote index
	// again.
	InvalidateCache()

	// BlockUntilReady drives any outstanding I/O to completion; callers
	// use this after a Pending result from Query or Download when they
	// cannot usefully do other work in the meantime.
	BlockUntilReady() error
}
