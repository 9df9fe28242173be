// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLastUseTrackerTouchThenEntries(t *testing.T) {
	tracker, err := NewLastUseTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	require.NoError(t, tracker.Touch(KindSrc, "/cache/src/left-pad-1.0.0"))
	require.NoError(t, tracker.Touch(KindCrate, "/cache/cache/left-pad-1.0.0.crate"))

	srcEntries, err := tracker.Entries(KindSrc)
	require.NoError(t, err)
	require.Len(t, srcEntries, 1)
	require.Equal(t, "/cache/src/left-pad-1.0.0", srcEntries[0].Key)
	require.False(t, srcEntries[0].LastUse.IsZero())

	crateEntries, err := tracker.Entries(KindCrate)
	require.NoError(t, err)
	require.Len(t, crateEntries, 1)

	require.Empty(t, mustEntries(t, tracker, KindGitDb))
}

func TestLastUseTrackerTouchUpdatesExistingRow(t *testing.T) {
	tracker, err := NewLastUseTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	require.NoError(t, tracker.Touch(KindSrc, "/cache/src/foo-1.0.0"))
	require.NoError(t, tracker.Touch(KindSrc, "/cache/src/foo-1.0.0"))

	entries := mustEntries(t, tracker, KindSrc)
	require.Len(t, entries, 1, "touching the same key twice must update the row, not duplicate it")
}

func TestDeferredLastUseFlushWritesBatchedTouches(t *testing.T) {
	tracker, err := NewLastUseTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	deferred := NewDeferredLastUse()
	deferred.Touch(KindSrc, "/cache/src/a-1.0.0")
	deferred.Touch(KindCrate, "/cache/cache/a-1.0.0.crate")
	deferred.Touch(KindSrc, "/cache/src/a-1.0.0") // second touch of the same key collapses to one row

	require.Empty(t, mustEntries(t, tracker, KindSrc), "Flush has not run yet; nothing should be committed")

	require.NoError(t, deferred.Flush(tracker))
	require.Len(t, mustEntries(t, tracker, KindSrc), 1)
	require.Len(t, mustEntries(t, tracker, KindCrate), 1)

	require.NoError(t, deferred.Flush(tracker), "a second Flush with nothing new queued must be a no-op")
}

func TestDeferredLastUseFlushNilTrackerIsNoOp(t *testing.T) {
	deferred := NewDeferredLastUse()
	deferred.Touch(KindSrc, "/cache/src/a-1.0.0")
	require.NoError(t, deferred.Flush(nil))
}

func TestCacheLayoutTouchWithoutTrackerIsNoOp(t *testing.T) {
	layout := NewCacheLayout(t.TempDir())
	layout.touch(KindSrc, "/cache/src/untracked-1.0.0") // must not panic with no tracker attached
}

func mustEntries(t *testing.T, tracker *LastUseTracker, kind EntryKind) []LastUseEntry {
	t.Helper()
	entries, err := tracker.Entries(kind)
	require.NoError(t, err)
	return entries
}
