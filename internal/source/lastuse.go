// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// EntryKind distinguishes the global-cache families a LastUseTracker
// records timestamps for (§1 "the core exposes the last-use tracking
// points; the GC policy itself is a collaborator"; §3 Lifecycles "a
// side-table tracks last-use timestamps for GC collaborators").
type EntryKind string

const (
	KindCrate       EntryKind = "crate"        // a frozen .crate tarball
	KindSrc         EntryKind = "src"          // an unpacked source tree
	KindIndex       EntryKind = "index"        // a per-package index record file
	KindGitDb       EntryKind = "git-db"       // a bare git clone
	KindGitCheckout EntryKind = "git-checkout" // a git worktree checkout
)

// LastUseEntry is one row a GC collaborator reads back to decide what
// is safe to evict.
type LastUseEntry struct {
	Kind    EntryKind
	Key     string
	LastUse time.Time
}

// LastUseTracker is the on-disk side-table of last-use timestamps for
// every content-addressed entry in the shared package cache. Grounded
// on original_source's tests/testsuite/global_cache_tracker.rs, whose
// real counterpart (cargo::core::global_cache_tracker::GlobalCacheTracker)
// persists the same kind of record in a SQLite database under
// $CARGO_HOME/.global-cache; this uses modernc.org/sqlite, the
// pure-Go driver the retrieval pack reaches for repeatedly
// (inovacc-omni, tsukumogami-tsuku and others), matching the rest of
// this module's preference for cgo-free dependencies (go-git over
// shelling out to git, klauspost/compress over cgo zlib bindings).
//
// The table only ever grows or updates rows; deciding which entries
// are old enough to delete, and actually deleting them, is the GC
// collaborator's job, never this package's (§1 Non-goals).
type LastUseTracker struct {
	db *sql.DB
}

// NewLastUseTracker opens (creating if absent) the last-use database
// rooted at home (normally CARGO_HOME).
func NewLastUseTracker(home string) (*LastUseTracker, error) {
	dir := filepath.Join(home, ".global-cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating global cache dir %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "last-use.db"))
	if err != nil {
		return nil, fmt.Errorf("opening last-use database: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS last_use (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		last_use INTEGER NOT NULL,
		PRIMARY KEY (kind, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating last-use schema: %w", err)
	}
	return &LastUseTracker{db: db}, nil
}

// Close releases the underlying database handle.
func (t *LastUseTracker) Close() error {
	return t.db.Close()
}

// Touch records key (e.g. a path returned by
// CacheLayout.CratePath/UnpackDir) as used right now.
func (t *LastUseTracker) Touch(kind EntryKind, key string) error {
	_, err := t.db.Exec(
		`INSERT INTO last_use (kind, key, last_use) VALUES (?, ?, ?)
		 ON CONFLICT (kind, key) DO UPDATE SET last_use = excluded.last_use`,
		string(kind), key, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording last use of %s %s: %w", kind, key, err)
	}
	return nil
}

// Entries returns every tracked entry of kind, oldest first, for a GC
// collaborator to apply its own retention policy against.
func (t *LastUseTracker) Entries(kind EntryKind) ([]LastUseEntry, error) {
	rows, err := t.db.Query(
		`SELECT key, last_use FROM last_use WHERE kind = ? ORDER BY last_use ASC`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", kind, err)
	}
	defer rows.Close()

	var entries []LastUseEntry
	for rows.Next() {
		var key string
		var ts int64
		if err := rows.Scan(&key, &ts); err != nil {
			return nil, fmt.Errorf("scanning %s entry: %w", kind, err)
		}
		entries = append(entries, LastUseEntry{Kind: kind, Key: key, LastUse: time.Unix(ts, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s entries: %w", kind, err)
	}
	return entries, nil
}

// touchKey uniquely identifies one tracked entry within a kind.
type touchKey struct {
	kind EntryKind
	key  string
}

// DeferredLastUse batches Touch calls made during a single cratebuild
// invocation in memory and writes them in one transaction on Flush,
// mirroring the source's own DeferredGlobalLastUse (per
// global_cache_tracker.rs: last-use updates are batched across a run
// and committed once, rather than opening a write transaction for
// every individual query/unpack/checkout).
type DeferredLastUse struct {
	mu      sync.Mutex
	touches map[touchKey]int64
}

// NewDeferredLastUse builds an empty batch.
func NewDeferredLastUse() *DeferredLastUse {
	return &DeferredLastUse{touches: map[touchKey]int64{}}
}

// Touch records kind/key as used right now, deferring the actual
// database write until Flush.
func (d *DeferredLastUse) Touch(kind EntryKind, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touches[touchKey{kind: kind, key: key}] = time.Now().Unix()
}

// Flush commits every batched touch to t in one transaction and clears
// the batch. A nil receiver or an empty batch is a no-op, so callers
// that never configured a tracker don't need to guard every call site.
func (d *DeferredLastUse) Flush(t *LastUseTracker) error {
	if d == nil || t == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.touches) == 0 {
		return nil
	}

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("starting last-use flush transaction: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO last_use (kind, key, last_use) VALUES (?, ?, ?)
		 ON CONFLICT (kind, key) DO UPDATE SET last_use = excluded.last_use`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing last-use flush statement: %w", err)
	}
	defer stmt.Close()

	for k, ts := range d.touches {
		if _, err := stmt.Exec(string(k.kind), k.key, ts); err != nil {
			tx.Rollback()
			return fmt.Errorf("flushing last use of %s %s: %w", k.kind, k.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing last-use flush: %w", err)
	}
	d.touches = map[touchKey]int64{}
	return nil
}
