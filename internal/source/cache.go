// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// CacheLayout is the on-disk root of the shared package cache (§4.C
// "On-disk layout (registry)"): <home>/registry/{index,cache,src}/<hash>.
type CacheLayout struct {
	Home string

	lastUse *DeferredLastUse
}

// NewCacheLayout roots a CacheLayout at home (normally CARGO_HOME).
func NewCacheLayout(home string) *CacheLayout {
	return &CacheLayout{Home: home}
}

// SetLastUse attaches d as the destination for this layout's
// query/unpack last-use touches. A layout with no tracker attached
// silently skips touching, the same optional-dependency shape as
// jobqueue.Queue.SetPluginDir.
func (c *CacheLayout) SetLastUse(d *DeferredLastUse) {
	c.lastUse = d
}

// touch records key as used right now, a no-op if no tracker is
// attached.
func (c *CacheLayout) touch(kind EntryKind, key string) {
	if c.lastUse == nil {
		return
	}
	c.lastUse.Touch(kind, key)
}

// IndexDir returns the per-source index directory.
func (c *CacheLayout) IndexDir(sid ident.SourceId) string {
	return filepath.Join(c.Home, "registry", "index", sid.ShortHash())
}

// CrateDir returns the per-source directory holding frozen `.crate`
// tarballs.
func (c *CacheLayout) CrateDir(sid ident.SourceId) string {
	return filepath.Join(c.Home, "registry", "cache", sid.ShortHash())
}

// SrcDir returns the per-source directory holding unpacked sources.
func (c *CacheLayout) SrcDir(sid ident.SourceId) string {
	return filepath.Join(c.Home, "registry", "src", sid.ShortHash())
}

// CratePath returns the frozen tarball path for one package version.
func (c *CacheLayout) CratePath(sid ident.SourceId, name string, version string) string {
	return filepath.Join(c.CrateDir(sid), fmt.Sprintf("%s-%s.crate", name, version))
}

// UnpackDir returns the unpack destination directory for one package
// version.
func (c *CacheLayout) UnpackDir(sid ident.SourceId, name string, version string) string {
	return filepath.Join(c.SrcDir(sid), fmt.Sprintf("%s-%s", name, version))
}

// LockMode selects which of the two advisory cache-lock modes a
// caller wants (§5 "Shared resources": "advisory file lock with two
// modes: DownloadExclusive ... MutateExclusive ...; downloads block
// mutators and vice versa, reads are compatible with downloads").
// Concurrent downloads are mutually compatible (a shared flock);
// a mutator needs sole occupancy (an exclusive flock).
type LockMode int

const (
	LockDownload LockMode = iota
	LockMutate
)

// CacheLock is the advisory lock guarding c.Home against concurrent
// cargo-like processes.
type CacheLock struct {
	path string
	f    *os.File
}

// NewCacheLock opens (creating if absent) the lock file for c.
func (c *CacheLayout) NewCacheLock() (*CacheLock, error) {
	if err := os.MkdirAll(c.Home, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache home %s: %w", c.Home, err)
	}
	path := filepath.Join(c.Home, ".package-cache.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening cache lock %s: %w", path, err)
	}
	return &CacheLock{path: path, f: f}, nil
}

// Acquire blocks until mode's lock is held, returning a release func.
func (l *CacheLock) Acquire(mode LockMode) (func() error, error) {
	how := unix.LOCK_SH
	if mode == LockMutate {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(l.f.Fd()), how); err != nil {
		return nil, fmt.Errorf("acquiring cache lock %s: %w", l.path, err)
	}
	return func() error {
		return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	}, nil
}

// Close releases the underlying file handle.
func (l *CacheLock) Close() error {
	return l.f.Close()
}
