// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package lockfile implements the canonical, byte-stable serialization
// of a completed resolution: an ordered set of resolved PackageIds,
// their selected dependency edges and checksums (§3 Lockfile, §6
// "Lockfile format"); the workspace member list is not recorded. Go
// map iteration order is
// not guaranteed, so every field that must be byte-stable across runs
// is carried as an explicitly sorted slice rather than handed to the
// TOML encoder straight off a map, the way the teacher's
// internal/output/artifact.go builds an ArtifactResult struct by hand
// instead of serializing whatever order a map would give it.
package lockfile

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// CurrentVersion is the lockfile format version this package writes.
const CurrentVersion = 4

// LockedPackage is one `[[package]]` record.
type LockedPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source,omitempty"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// Lockfile is the full on-disk document.
type Lockfile struct {
	Version int               `toml:"version"`
	Package []LockedPackage   `toml:"package"`
	Metadata map[string]string `toml:"metadata,omitempty"`
}

// Build assembles a Lockfile from a resolved package set and its
// dependency edges, in deterministic (name, version, source) order.
// checksums and metadata may be nil.
func Build(ids []ident.PackageId, edges map[ident.PackageId][]ident.PackageId, checksums map[ident.PackageId]string, metadata map[string]string) *Lockfile {
	sorted := make([]ident.PackageId, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		if c := sorted[i].Version.Compare(sorted[j].Version); c != 0 {
			return c < 0
		}
		return sorted[i].Source.URL() < sorted[j].Source.URL()
	})

	lf := &Lockfile{Version: CurrentVersion, Metadata: metadata}
	for _, id := range sorted {
		rec := LockedPackage{
			Name:    id.Name.String(),
			Version: id.Version.String(),
			Source:  sourceField(id.Source),
		}
		if checksums != nil {
			rec.Checksum = checksums[id]
		}
		deps := edges[id]
		sort.Slice(deps, func(i, j int) bool {
			if deps[i].Name != deps[j].Name {
				return deps[i].Name < deps[j].Name
			}
			return deps[i].Version.Compare(deps[j].Version) < 0
		})
		for _, d := range deps {
			rec.Dependencies = append(rec.Dependencies, DependencyRef(sorted, d))
		}
		lf.Package = append(lf.Package, rec)
	}
	return lf
}

// sourceField renders a SourceId for the `source` field, empty for a
// path dependency (path sources are never recorded: they are always
// resolved relative to the workspace and re-discovered on each run).
func sourceField(src ident.SourceId) string {
	// path sources are workspace-local; the lockfile omits them so the
	// file stays portable across checkouts at different absolute paths.
	if src.Kind == ident.SourcePath {
		return ""
	}
	return src.String()
}

// DependencyRef renders dep as it should appear in a dependency's
// `dependencies` list: the bare name when it is unambiguous among the
// full package set, otherwise "name version" to disambiguate multiple
// semver-major lines of the same name (§6 "<full-spec-if-ambiguous>").
func DependencyRef(all []ident.PackageId, dep ident.PackageId) string {
	count := 0
	for _, id := range all {
		if id.Name == dep.Name {
			count++
		}
	}
	if count <= 1 {
		return dep.Name.String()
	}
	return fmt.Sprintf("%s %s", dep.Name, dep.Version)
}

// Encode writes lf in its canonical TOML form. The struct field order
// and the pre-sorted Package slice make two Encode calls over
// equivalent input byte-identical.
func (lf *Lockfile) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(lf)
}

// Save writes the lockfile to path, replacing any existing file.
func (lf *Lockfile) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	defer f.Close()
	if err := lf.Encode(f); err != nil {
		return fmt.Errorf("encoding lockfile %s: %w", path, err)
	}
	return nil
}

// Load parses an on-disk lockfile.
func Load(path string) (*Lockfile, error) {
	var lf Lockfile
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}
	return &lf, nil
}

// Equal reports whether two lockfiles carry the same packages and
// edges, ignoring metadata, used by the resolver to decide whether a
// freshly computed lockfile needs to be rewritten (§3 Lifecycles: "the
// lockfile on disk is updated only when necessary").
func (lf *Lockfile) Equal(o *Lockfile) bool {
	if lf == nil || o == nil {
		return lf == o
	}
	if len(lf.Package) != len(o.Package) {
		return false
	}
	for i := range lf.Package {
		a, b := lf.Package[i], o.Package[i]
		if a.Name != b.Name || a.Version != b.Version || a.Source != b.Source || a.Checksum != b.Checksum {
			return false
		}
		if len(a.Dependencies) != len(b.Dependencies) {
			return false
		}
		for j := range a.Dependencies {
			if a.Dependencies[j] != b.Dependencies[j] {
				return false
			}
		}
	}
	return true
}
