// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Store is the on-disk fingerprint cache rooted at
// target/<profile>/.fingerprint/<unit-hash>/ (§6 "On-disk layouts").
type Store struct {
	root string
}

// NewStore opens the fingerprint store for one profile's target
// subdirectory.
func NewStore(targetDir, profile string) *Store {
	return &Store{root: filepath.Join(targetDir, profile, ".fingerprint")}
}

func (s *Store) dir(unitHash string) string {
	return filepath.Join(s.root, unitHash)
}

func (s *Store) path(unitHash string) string {
	return filepath.Join(s.dir(unitHash), "fingerprint.toml")
}

// Check reports whether unitHash's stored fingerprint equals fresh. A
// missing or unparseable stored fingerprint is treated as dirty rather
// than surfaced as an error (§7 FingerprintCorrupt: "recovered: treat
// as dirty").
func (s *Store) Check(unitHash string, fresh *Fingerprint) (bool, error) {
	data, err := os.ReadFile(s.path(unitHash))
	if err != nil {
		return false, nil
	}
	var stored Fingerprint
	if _, err := toml.Decode(string(data), &stored); err != nil {
		return false, nil
	}
	return stored.Hash() == fresh.Hash(), nil
}

// Write persists fp as unitHash's stored fingerprint, called once the
// unit's job has completed successfully.
func (s *Store) Write(unitHash string, fp *Fingerprint) error {
	dir := s.dir(unitHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating fingerprint dir for %s: %w", unitHash, err)
	}
	f, err := os.Create(s.path(unitHash))
	if err != nil {
		return fmt.Errorf("writing fingerprint for %s: %w", unitHash, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(fp); err != nil {
		return fmt.Errorf("encoding fingerprint for %s: %w", unitHash, err)
	}
	return nil
}

// Invalidate drops unitHash's stored fingerprint, forcing the unit
// dirty on the next Check (§4.G "dirty units invalidate their direct
// reverse dependencies' dep-fingerprints automatically").
func (s *Store) Invalidate(unitHash string) error {
	return os.RemoveAll(s.dir(unitHash))
}
