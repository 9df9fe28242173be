// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package fingerprint

import (
	"fmt"

	"github.com/lfreleng-actions/cratebuild/internal/unitgraph"
)

// Inputs supplies the environment-specific facts a Fingerprint needs
// beyond graph structure: which the job queue/unit graph own, not
// this package (§4.G lists rustc version, profile hash, features
// hash and local-inputs as the record's other fields).
type Inputs interface {
	RustcVersion() string
	ProfileHash(u unitgraph.Unit) string
	FeaturesHash(u unitgraph.Unit) string
	LocalInputs(u unitgraph.Unit) ([]LocalInput, error)
}

// Compute builds u's Fingerprint from its already-computed dependency
// fingerprints plus in's environment facts.
func Compute(u unitgraph.Unit, depFingerprints map[string]*Fingerprint, deps []unitgraph.UnitIdx, g *unitgraph.Graph, in Inputs) (*Fingerprint, error) {
	local, err := in.LocalInputs(u)
	if err != nil {
		return nil, fmt.Errorf("collecting local inputs for %s: %w", u.Pkg, err)
	}
	fp := &Fingerprint{
		RustcVersion: in.RustcVersion(),
		Target:       u.Triple,
		ProfileHash:  in.ProfileHash(u),
		FeaturesHash: in.FeaturesHash(u),
		LocalInputs:  local,
	}
	for _, d := range deps {
		du := g.Units[d]
		dh := du.ShortHash()
		if dfp, ok := depFingerprints[dh]; ok {
			fp.DepFingerprints = append(fp.DepFingerprints, DepEntry{UnitHash: dh, Fingerprint: dfp.Hash()})
		}
	}
	return fp, nil
}

// topoOrder returns g's units in dependency-first (postorder) order,
// so Plan can compute every unit's fingerprint only after its
// dependencies' fingerprints are known.
func topoOrder(g *unitgraph.Graph) ([]unitgraph.UnitIdx, error) {
	n := len(g.Units)
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, n)
	order := make([]unitgraph.UnitIdx, 0, n)

	var visit func(u unitgraph.UnitIdx) error
	visit = func(u unitgraph.UnitIdx) error {
		switch state[u] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("unit graph: dependency cycle detected at unit %d", u)
		}
		state[u] = visiting
		for _, d := range g.DependenciesOf(u) {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[u] = done
		order = append(order, u)
		return nil
	}
	for i := 0; i < n; i++ {
		if err := visit(unitgraph.UnitIdx(i)); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Plan walks g bottom-up, computing each unit's fingerprint and
// comparing it against store, and returns the set of dirty units —
// exactly the ones the job queue must execute (§4.G). A dirty
// dependency automatically marks its dependents dirty and invalidates
// their stored fingerprint, without needing to re-derive why.
func Plan(g *unitgraph.Graph, store *Store, in Inputs) (map[unitgraph.UnitIdx]bool, map[unitgraph.UnitIdx]*Fingerprint, error) {
	order, err := topoOrder(g)
	if err != nil {
		return nil, nil, err
	}
	dirty := map[unitgraph.UnitIdx]bool{}
	computedByHash := map[string]*Fingerprint{}
	computedByIdx := map[unitgraph.UnitIdx]*Fingerprint{}

	for _, idx := range order {
		u := g.Units[idx]
		hash := u.ShortHash()
		deps := g.DependenciesOf(idx)

		fp, err := Compute(u, computedByHash, deps, g, in)
		if err != nil {
			return nil, nil, err
		}
		computedByHash[hash] = fp
		computedByIdx[idx] = fp

		depDirty := false
		for _, d := range deps {
			if dirty[d] {
				depDirty = true
				break
			}
		}
		if depDirty {
			dirty[idx] = true
			_ = store.Invalidate(hash)
			continue
		}

		fresh, err := store.Check(hash, fp)
		if err != nil {
			return nil, nil, err
		}
		if !fresh {
			dirty[idx] = true
		}
	}
	return dirty, computedByIdx, nil
}

// Commit writes fp as u's new stored fingerprint, called by the job
// queue immediately after u's job completes successfully (§5
// "predecessors' fingerprints are written before successors start").
func Commit(store *Store, u unitgraph.Unit, fp *Fingerprint) error {
	return store.Write(u.ShortHash(), fp)
}
