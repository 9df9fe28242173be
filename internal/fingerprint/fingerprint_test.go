// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsOrderIndependent(t *testing.T) {
	a := &Fingerprint{
		RustcVersion: "1.80.0",
		DepFingerprints: []DepEntry{
			{UnitHash: "bbb", Fingerprint: "2"},
			{UnitHash: "aaa", Fingerprint: "1"},
		},
		LocalInputs: []LocalInput{
			{Kind: "path", Key: "b.rs", Value: "t2"},
			{Kind: "path", Key: "a.rs", Value: "t1"},
		},
	}
	b := &Fingerprint{
		RustcVersion: "1.80.0",
		DepFingerprints: []DepEntry{
			{UnitHash: "aaa", Fingerprint: "1"},
			{UnitHash: "bbb", Fingerprint: "2"},
		},
		LocalInputs: []LocalInput{
			{Kind: "path", Key: "a.rs", Value: "t1"},
			{Kind: "path", Key: "b.rs", Value: "t2"},
		},
	}
	require.Equal(t, a.Hash(), b.Hash())
}

func TestHashChangesWithContent(t *testing.T) {
	a := &Fingerprint{RustcVersion: "1.80.0"}
	b := &Fingerprint{RustcVersion: "1.81.0"}
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestEnvInputHashesRatherThanStoresValue(t *testing.T) {
	t.Setenv("CRATEBUILD_TEST_SECRET", "super-secret-token")
	li := EnvInput("CRATEBUILD_TEST_SECRET")
	require.Equal(t, "env", li.Kind)
	require.Equal(t, "CRATEBUILD_TEST_SECRET", li.Key)
	require.NotContains(t, li.Value, "super-secret-token")
}

func TestStoreCheckMissingIsDirtyNotError(t *testing.T) {
	store := NewStore(t.TempDir(), "debug")
	fresh, err := store.Check("deadbeef", &Fingerprint{RustcVersion: "1.80.0"})
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestStoreCheckCorruptFileIsDirtyNotError(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "debug")
	dir := filepath.Join(root, "debug", ".fingerprint", "deadbeef")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fingerprint.toml"), []byte("not valid toml {{{"), 0o644))

	fresh, err := store.Check("deadbeef", &Fingerprint{RustcVersion: "1.80.0"})
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestStoreWriteThenCheckIsFresh(t *testing.T) {
	store := NewStore(t.TempDir(), "debug")
	fp := &Fingerprint{RustcVersion: "1.80.0", Target: "x86_64-unknown-linux-gnu"}
	require.NoError(t, store.Write("deadbeef", fp))

	fresh, err := store.Check("deadbeef", fp)
	require.NoError(t, err)
	require.True(t, fresh)

	changed := &Fingerprint{RustcVersion: "1.81.0"}
	fresh, err = store.Check("deadbeef", changed)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestStoreInvalidateForcesDirty(t *testing.T) {
	store := NewStore(t.TempDir(), "debug")
	fp := &Fingerprint{RustcVersion: "1.80.0"}
	require.NoError(t, store.Write("deadbeef", fp))
	require.NoError(t, store.Invalidate("deadbeef"))

	fresh, err := store.Check("deadbeef", fp)
	require.NoError(t, err)
	require.False(t, fresh)
}
