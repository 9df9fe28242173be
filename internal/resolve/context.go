// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package resolve implements the backtracking version+feature solver
// (§4.E): candidate ordering, the activation context, conflict-cache
// pruning, backjumping, feature unification, the `links` uniqueness
// rule and the public-dependency visibility rule.
package resolve

import (
	"fmt"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/source"
)

// edge is one resolved dependency: the selected package plus whether
// the dependency that selected it was declared `public = true`.
type edge struct {
	id     ident.PackageId
	public bool
}

// context is the state threaded through the backtracking search (§4.E
// "Context threaded through recursion"). It is treated as
// copy-on-branch: every map is cloned before a frame mutates it, so an
// older context value remains valid after a child frame backtracks.
type context struct {
	activations map[ident.ActivationKey]ident.PackageId
	links       map[string]ident.PackageId
	// publicClosure[p] is the set of package names visible to p through
	// public dependency edges, each mapped to the PackageId currently
	// filling that name (§4.E public-dependency rule).
	publicClosure map[ident.PackageId]map[ident.PackageName]ident.PackageId
	// publicParents[p] lists packages that reached p via a public edge,
	// so that a later edge landing on p can be re-propagated to them
	// (§9 "public-dependency optimization vs correctness").
	publicParents map[ident.PackageId][]ident.PackageId
	features      map[ident.PackageId]map[string]bool
	edges         map[ident.PackageId][]edge
	summaries     map[ident.PackageId]source.Summary
}

func newContext() *context {
	return &context{
		activations:   map[ident.ActivationKey]ident.PackageId{},
		links:         map[string]ident.PackageId{},
		publicClosure: map[ident.PackageId]map[ident.PackageName]ident.PackageId{},
		publicParents: map[ident.PackageId][]ident.PackageId{},
		features:      map[ident.PackageId]map[string]bool{},
		edges:         map[ident.PackageId][]edge{},
		summaries:     map[ident.PackageId]source.Summary{},
	}
}

// clone returns a shallow-per-map copy so the receiver can keep being
// used (e.g. for trying the next candidate) after the result is
// mutated by a deeper frame.
func (c *context) clone() *context {
	n := &context{
		activations:   make(map[ident.ActivationKey]ident.PackageId, len(c.activations)),
		links:         make(map[string]ident.PackageId, len(c.links)),
		publicClosure: make(map[ident.PackageId]map[ident.PackageName]ident.PackageId, len(c.publicClosure)),
		publicParents: make(map[ident.PackageId][]ident.PackageId, len(c.publicParents)),
		features:      make(map[ident.PackageId]map[string]bool, len(c.features)),
		edges:         make(map[ident.PackageId][]edge, len(c.edges)),
		summaries:     make(map[ident.PackageId]source.Summary, len(c.summaries)),
	}
	for k, v := range c.activations {
		n.activations[k] = v
	}
	for k, v := range c.links {
		n.links[k] = v
	}
	for k, v := range c.publicClosure {
		m := make(map[ident.PackageName]ident.PackageId, len(v))
		for n2, id := range v {
			m[n2] = id
		}
		n.publicClosure[k] = m
	}
	for k, v := range c.publicParents {
		cp := make([]ident.PackageId, len(v))
		copy(cp, v)
		n.publicParents[k] = cp
	}
	for k, v := range c.features {
		m := make(map[string]bool, len(v))
		for f, b := range v {
			m[f] = b
		}
		n.features[k] = m
	}
	for k, v := range c.edges {
		cp := make([]edge, len(v))
		copy(cp, v)
		n.edges[k] = cp
	}
	for k, v := range c.summaries {
		n.summaries[k] = v
	}
	return n
}

// activatedSet returns the flat set of every currently-selected
// PackageId, the set the conflict cache tests a cached cause against.
func (c *context) activatedSet() map[ident.PackageId]struct{} {
	set := make(map[ident.PackageId]struct{}, len(c.activations))
	for _, id := range c.activations {
		set[id] = struct{}{}
	}
	return set
}

// causeSubsetOfActivated reports whether every package named in cause
// is currently activated, the pruning test from §4.E "Conflict cache".
func (c *context) causeSubsetOfActivated(cause map[ident.PackageId]struct{}) bool {
	activated := c.activatedSet()
	for id := range cause {
		if _, ok := activated[id]; !ok {
			return false
		}
	}
	return true
}

// activate records pkg as the selection for its activation key and
// stores its Summary. It does not check the key itself; resolve skips
// any candidate whose key is already bound to a different package.
func (c *context) activate(s source.Summary) *context {
	n := c.clone()
	key := s.Id.ActivationKey()
	n.activations[key] = s.Id
	n.summaries[s.Id] = s
	if s.Links != "" {
		n.links[s.Links] = s.Id
	}
	if _, ok := n.features[s.Id]; !ok {
		n.features[s.Id] = map[string]bool{}
	}
	return n
}

// linksConflict reports the PackageId already holding s.Links, if any
// distinct package does (§4.E "`links` uniqueness").
func (c *context) linksConflict(s source.Summary) (ident.PackageId, bool) {
	if s.Links == "" {
		return ident.PackageId{}, false
	}
	existing, ok := c.links[s.Links]
	if ok && !existing.Equal(s.Id) {
		return existing, true
	}
	return ident.PackageId{}, false
}

// enableFeatures applies the feature-unification rules (§4.E) for pkg,
// recursively walking `dep:x`, `x/y` and `x?/y` values. It mutates
// c.features[pkg] in place on the receiver (already a private,
// not-yet-shared clone by the time this is called) and returns an
// error only if pkg or a reached dependency is not activated.
func (c *context) enableFeatures(pkg ident.PackageId, names []string) error {
	s, ok := c.summaries[pkg]
	if !ok {
		return fmt.Errorf("enableFeatures: %s not activated", pkg)
	}
	enabled := c.features[pkg]
	if enabled == nil {
		enabled = map[string]bool{}
		c.features[pkg] = enabled
	}
	var walk func(name string) error
	walk = func(name string) error {
		if enabled[name] {
			return nil
		}
		enabled[name] = true
		values, isFeatureKey := s.Features[name]
		if !isFeatureKey {
			return nil
		}
		for _, v := range values {
			switch v.Kind {
			case manifest.FeaturePlain:
				if err := walk(v.FeatureName); err != nil {
					return err
				}
			case manifest.FeatureForceDep:
				enabled["dep:"+v.DepName] = true
			case manifest.FeatureDepFeature:
				if v.WeakDep {
					optional := false
					for _, d := range s.Dependencies {
						if d.ImportedName() == v.DepName && d.Optional {
							optional = true
						}
					}
					if optional && !enabled[v.DepName] && !enabled["dep:"+v.DepName] {
						continue
					}
				} else {
					enabled[v.DepName] = true
				}
				depId := c.resolvedDepTarget(pkg, v.DepName)
				if depId != (ident.PackageId{}) {
					if err := c.enableFeatures(depId, []string{v.DepFeature}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	for _, name := range names {
		if err := walk(name); err != nil {
			return err
		}
	}
	return nil
}

// resolvedDepTarget finds the PackageId pkg's edge named importedName
// resolved to, used by `x/y` feature values to reach x's own Summary.
func (c *context) resolvedDepTarget(pkg ident.PackageId, importedName string) ident.PackageId {
	for _, e := range c.edges[pkg] {
		if string(e.id.Name) == importedName {
			return e.id
		}
	}
	return ident.PackageId{}
}

// addEdge records that parent depends on child via dep, recomputing
// public-dependency visibility for parent (and, per §9, for every
// ancestor that reached parent itself via a public edge) even when
// parent's own activation was not revisited this frame.
func (c *context) addEdge(parent, child ident.PackageId, dep manifest.Dependency) (conflictName ident.PackageName, conflictA, conflictB ident.PackageId, conflict bool) {
	c.edges[parent] = append(c.edges[parent], edge{id: child, public: dep.Public})
	if !dep.Public {
		return "", ident.PackageId{}, ident.PackageId{}, false
	}
	return c.propagatePublic(parent, child)
}

func (c *context) propagatePublic(parent, child ident.PackageId) (ident.PackageName, ident.PackageId, ident.PackageId, bool) {
	closure := c.publicClosure[parent]
	if closure == nil {
		closure = map[ident.PackageName]ident.PackageId{}
		c.publicClosure[parent] = closure
	}
	toMerge := map[ident.PackageName]ident.PackageId{child.Name: child}
	for n, id := range c.publicClosure[child] {
		toMerge[n] = id
	}
	for n, id := range toMerge {
		if existing, ok := closure[n]; ok && !existing.Equal(id) {
			return n, existing, id, true
		}
		closure[n] = id
	}
	c.publicParents[child] = append(c.publicParents[child], parent)
	for _, grandparent := range c.publicParents[parent] {
		if name, a, b, conflict := c.propagatePublic(grandparent, parent); conflict {
			return name, a, b, conflict
		}
	}
	return "", ident.PackageId{}, ident.PackageId{}, false
}
