// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package resolve

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/source"
)

// Mode selects candidate ordering (§4.E "Candidate ordering").
type Mode int

const (
	// ModeMaximal selects the highest matching SemVer first, the default.
	ModeMaximal Mode = iota
	// ModeMinimal selects the lowest matching SemVer for every dependency.
	ModeMinimal
	// ModeDirectMinimal selects the lowest matching SemVer only for
	// dependencies declared directly by a workspace member.
	ModeDirectMinimal
)

// Locator resolves a SourceId to the Source object that serves it. The
// resolver never constructs sources itself; §1 places source
// construction/configuration outside the core.
type Locator interface {
	Source(sid ident.SourceId) (source.Source, error)
}

// Root is one root requirement: a workspace member's dependency, plus
// whether ModeDirectMinimal should treat it as "direct" (§4.E).
type Root struct {
	Dep    manifest.Dependency
	Direct bool
}

// Resolution is the resolver's successful output: the selected
// packages, their resolved dependency edges, per-package enabled
// features and checksums — everything lockfile.Build needs (§3 Lockfile).
type Resolution struct {
	Packages  []ident.PackageId
	Edges     map[ident.PackageId][]ident.PackageId
	Features  map[ident.PackageId][]string
	Checksums map[ident.PackageId]string
}

// pendingDep is one not-yet-activated dependency task on the search
// stack (§4.E "Activation frame").
type pendingDep struct {
	dep    manifest.Dependency
	parent ident.PackageId
	direct bool
}

// Resolver runs one resolution. It is not safe for concurrent reuse:
// the conflict cache and recursion both assume a single in-flight
// Resolve call, matching §5's "CPU-bound and single-threaded" note.
type Resolver struct {
	locator         Locator
	mode            Mode
	yankedWhitelist map[ident.PackageId]bool
	conflictCache   map[conflictKey][]map[ident.PackageId]struct{}
	overrides       *Overrides
}

// SetOverrides attaches the workspace's resolved `[patch]`/`[replace]`
// table (§9), redirecting every dependency lookup that names an
// overridden package from here on. A Resolver with no overrides set
// behaves exactly as before, the same optional-dependency shape as
// jobqueue.Queue.SetPluginDir.
func (r *Resolver) SetOverrides(o *Overrides) {
	r.overrides = o
}

// NewResolver builds a Resolver querying sources through locator.
// yankedWhitelist carries forward package ids that remain selectable
// even though the index marks them yanked (§4.E "Yanked policy"),
// typically taken from the previous lockfile.
func NewResolver(locator Locator, mode Mode, yankedWhitelist map[ident.PackageId]bool) *Resolver {
	return &Resolver{
		locator:         locator,
		mode:            mode,
		yankedWhitelist: yankedWhitelist,
		conflictCache:   map[conflictKey][]map[ident.PackageId]struct{}{},
	}
}

// Resolve runs the backtracking search over roots and returns the
// completed Resolution, or a *ConflictError naming the minimal
// conflict cause and the shortest path from a root to each package
// the cause names.
func (r *Resolver) Resolve(roots []Root) (*Resolution, error) {
	ctx := newContext()
	queue := make([]pendingDep, 0, len(roots))
	for _, root := range roots {
		queue = append(queue, pendingDep{dep: root.Dep, parent: ident.PackageId{}, direct: root.Direct})
	}
	queue = r.orderByConstraint(ctx, queue)

	final, cerr := r.resolve(ctx, queue)
	if cerr != nil {
		rootIds := make([]ident.PackageId, 0)
		for id := range rootPackages(ctx) {
			rootIds = append(rootIds, id)
		}
		cerr.Paths = bfsPaths(ctx.edges, rootIds, cerr.Cause)
		return nil, cerr
	}
	return buildResolution(final), nil
}

func rootPackages(ctx *context) map[ident.PackageId]struct{} {
	set := map[ident.PackageId]struct{}{}
	for _, e := range ctx.edges[ident.PackageId{}] {
		set[e.id] = struct{}{}
	}
	return set
}

func buildResolution(ctx *context) *Resolution {
	res := &Resolution{
		Edges:     map[ident.PackageId][]ident.PackageId{},
		Features:  map[ident.PackageId][]string{},
		Checksums: map[ident.PackageId]string{},
	}
	ids := make([]ident.PackageId, 0, len(ctx.summaries))
	for id := range ctx.summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	res.Packages = ids
	for _, id := range ids {
		var edgeIds []ident.PackageId
		for _, e := range ctx.edges[id] {
			edgeIds = append(edgeIds, e.id)
		}
		sort.Slice(edgeIds, func(i, j int) bool { return edgeIds[i].String() < edgeIds[j].String() })
		res.Edges[id] = edgeIds

		var feats []string
		for f, on := range ctx.features[id] {
			if on {
				feats = append(feats, f)
			}
		}
		sort.Strings(feats)
		res.Features[id] = feats
		res.Checksums[id] = ctx.summaries[id].Checksum
	}
	return res
}

// resolve is the recursive backtracking step over the remaining queue.
func (r *Resolver) resolve(ctx *context, queue []pendingDep) (*context, *ConflictError) {
	if len(queue) == 0 {
		return ctx, nil
	}
	task := queue[0]
	rest := queue[1:]

	if reused, ok := r.findReusable(ctx, task.dep); ok {
		nctx := ctx.clone()
		if name, a, b, conflict := nctx.addEdge(task.parent, reused, task.dep); conflict {
			return nil, &ConflictError{
				Cause:   setOf(a, b),
				Message: fmt.Sprintf("public dependency conflict on %q between %s and %s", name, a, b),
			}
		}
		if err := applyFeatureSelection(nctx, task.dep, reused); err != nil {
			return nil, &ConflictError{Cause: setOf(reused), Message: err.Error()}
		}
		return r.resolve(nctx, rest)
	}

	key := newConflictKey(task)
	if causes, ok := r.conflictCache[key]; ok {
		for _, cause := range causes {
			if ctx.causeSubsetOfActivated(cause) {
				return nil, &ConflictError{Cause: cause, Message: fmt.Sprintf("%s: known-unsatisfiable given current activations", task.dep.Name)}
			}
		}
	}

	candidates, err := r.candidatesFor(task)
	if err != nil {
		return nil, &ConflictError{Message: err.Error()}
	}
	if len(candidates) == 0 {
		cause := map[ident.PackageId]struct{}{}
		if task.parent != (ident.PackageId{}) {
			cause[task.parent] = struct{}{}
		}
		r.learn(key, cause)
		return nil, &ConflictError{Cause: cause, Message: fmt.Sprintf("no version of %s matches %s", task.dep.Name, task.dep.Req)}
	}

	accumulated := map[ident.PackageId]struct{}{}
	var causes *multierror.Error
	for _, cand := range candidates {
		if existing, ok := ctx.activations[cand.Id.ActivationKey()]; ok && !existing.Equal(cand.Id) {
			accumulated[existing] = struct{}{}
			causes = multierror.Append(causes, fmt.Errorf("%s conflicts with already-activated %s", cand.Id, existing))
			continue
		}
		if existing, conflict := ctx.linksConflict(cand); conflict {
			accumulated[existing] = struct{}{}
			accumulated[cand.Id] = struct{}{}
			causes = multierror.Append(causes, fmt.Errorf("%s conflicts with already-linked %s", cand.Id, existing))
			continue
		}
		nctx := ctx.activate(cand)
		if name, a, b, conflict := nctx.addEdge(task.parent, cand.Id, task.dep); conflict {
			accumulated[a] = struct{}{}
			accumulated[b] = struct{}{}
			causes = multierror.Append(causes, fmt.Errorf("public dependency conflict on %q between %s and %s", name, a, b))
			continue
		}
		if err := applyFeatureSelection(nctx, task.dep, cand.Id); err != nil {
			return nil, &ConflictError{Message: err.Error()}
		}

		subDeps, err := r.subDependencies(nctx, cand)
		if err != nil {
			return nil, &ConflictError{Message: err.Error()}
		}
		subDeps = r.orderByConstraint(nctx, subDeps)
		newQueue := append(append([]pendingDep{}, subDeps...), rest...)

		resultCtx, cerr := r.resolve(nctx, newQueue)
		if cerr == nil {
			return resultCtx, nil
		}
		if !causeInvolves(cerr.Cause, cand.Id, task.parent) {
			// This candidate was irrelevant to the failure: backjump
			// past the rest of this frame's candidates entirely.
			r.learn(key, cerr.Cause)
			return nil, cerr
		}
		causes = multierror.Append(causes, fmt.Errorf("%s: %s", cand.Id, cerr.Message))
		for id := range cerr.Cause {
			accumulated[id] = struct{}{}
		}
		delete(accumulated, cand.Id)
	}
	r.learn(key, accumulated)
	return nil, &ConflictError{Cause: accumulated, Message: conflictMessage(task.dep.Name, causes)}
}

// conflictMessage builds the final "no candidate satisfies" message,
// appending the per-candidate causes multierror accumulated (§4.E: a
// frame's failure is the product of every candidate it tried, not just
// the last one).
func conflictMessage(name ident.PackageName, causes *multierror.Error) string {
	summary := fmt.Sprintf("no candidate of %s satisfies all constraints", name)
	if causes == nil || len(causes.Errors) == 0 {
		return summary
	}
	causes.ErrorFormat = func(errs []error) string {
		var b []byte
		for _, e := range errs {
			b = append(b, "\n  - "...)
			b = append(b, e.Error()...)
		}
		return string(b)
	}
	return summary + ":" + causes.Error()
}

func (r *Resolver) learn(key conflictKey, cause map[ident.PackageId]struct{}) {
	if len(cause) == 0 {
		return
	}
	r.conflictCache[key] = append(r.conflictCache[key], cause)
}

// findReusable looks for an already-activated package (any semver
// major) whose name+source match dep and whose version satisfies
// dep.Req, implementing the "share one activated package per
// (name, source, compatible version)" half of feature unification.
func (r *Resolver) findReusable(ctx *context, dep manifest.Dependency) (ident.PackageId, bool) {
	var candidates []ident.PackageId
	for _, id := range ctx.activations {
		if id.Name == dep.Name && id.Source.Equal(dep.Source) && dep.Req.Matches(id.Version) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return ident.PackageId{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })
	return candidates[0], true
}

// candidatesFor queries dep's source, filters yanked versions and
// orders the result per r.mode.
func (r *Resolver) candidatesFor(task pendingDep) ([]source.Summary, error) {
	return r.query(task.dep, task.direct)
}

func (r *Resolver) query(dep manifest.Dependency, direct bool) ([]source.Summary, error) {
	dep = r.overrides.rewrite(dep)
	src, err := r.locator.Source(dep.Source)
	if err != nil {
		return nil, fmt.Errorf("locating source for %s: %w", dep.Name, err)
	}
	var results []source.Summary
	sink := func(s source.Summary) { results = append(results, s) }
	qdep := source.QueryDep{Name: dep.Name, Req: dep.Req}
	for {
		status, err := src.Query(qdep, source.QueryExact, sink)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", dep.Name, err)
		}
		if status == source.Ready {
			break
		}
		if err := src.BlockUntilReady(); err != nil {
			return nil, fmt.Errorf("waiting on %s: %w", dep.Name, err)
		}
	}

	filtered := results[:0]
	for _, s := range results {
		if s.Yanked && !r.yankedWhitelist[s.Id] {
			continue
		}
		filtered = append(filtered, s)
	}

	minimalFirst := r.mode == ModeMinimal || (r.mode == ModeDirectMinimal && direct)
	sort.SliceStable(filtered, func(i, j int) bool {
		c := filtered[i].Id.Version.Compare(filtered[j].Id.Version)
		if minimalFirst {
			return c < 0
		}
		return c > 0
	})
	return filtered, nil
}

// subDependencies computes the dependency tasks owed by an activated
// package, honoring optional-dependency activation and skipping dev
// edges (dev-dependencies are a root-only concern: §3 "Dev-dependencies
// are ignored when resolving for non-root packages").
func (r *Resolver) subDependencies(ctx *context, s source.Summary) ([]pendingDep, error) {
	enabled := ctx.features[s.Id]
	var out []pendingDep
	for _, d := range s.Dependencies {
		if d.Kind == manifest.DepDev {
			continue
		}
		if d.Optional {
			if !enabled["dep:"+d.ImportedName()] && !enabled[d.ImportedName()] {
				continue
			}
		}
		out = append(out, pendingDep{dep: d, parent: s.Id})
	}
	return out, nil
}

// orderByConstraint sorts deps by remaining-candidate-count ascending,
// tie-broken by name (§4.E "Dependency iteration order" — the
// most-constrained-first heuristic that makes backjumping effective).
func (r *Resolver) orderByConstraint(ctx *context, deps []pendingDep) []pendingDep {
	type scored struct {
		d     pendingDep
		count int
	}
	scoredDeps := make([]scored, len(deps))
	for i, d := range deps {
		n, _ := r.query(d.dep, d.direct)
		scoredDeps[i] = scored{d: d, count: len(n)}
	}
	sort.SliceStable(scoredDeps, func(i, j int) bool {
		if scoredDeps[i].count != scoredDeps[j].count {
			return scoredDeps[i].count < scoredDeps[j].count
		}
		return scoredDeps[i].d.dep.Name < scoredDeps[j].d.dep.Name
	})
	out := make([]pendingDep, len(scoredDeps))
	for i, s := range scoredDeps {
		out[i] = s.d
	}
	return out
}

// applyFeatureSelection enables pkg's default features (unless the
// dependency opts out) plus any explicitly requested features.
func applyFeatureSelection(ctx *context, dep manifest.Dependency, pkg ident.PackageId) error {
	var names []string
	if dep.DefaultFeatures {
		names = append(names, "default")
	}
	names = append(names, dep.Features...)
	if len(names) == 0 {
		if ctx.features[pkg] == nil {
			ctx.features[pkg] = map[string]bool{}
		}
		return nil
	}
	return ctx.enableFeatures(pkg, names)
}
