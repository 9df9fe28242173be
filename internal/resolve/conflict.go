// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
)

// ConflictError is the resolver's "no solution" result (§4.E "Failure
// mode"): a minimal conflict cause plus, once surfaced at the top
// level, the shortest BFS path from a workspace root to each package
// named in the cause.
type ConflictError struct {
	Cause   map[ident.PackageId]struct{}
	Message string
	Paths   map[ident.PackageId][]ident.PackageId
}

func (e *ConflictError) Error() string {
	if len(e.Paths) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	names := make([]ident.PackageId, 0, len(e.Paths))
	for id := range e.Paths {
		names = append(names, id)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	for _, id := range names {
		b.WriteString(fmt.Sprintf("\n  %s required by:", id))
		for _, hop := range e.Paths[id] {
			b.WriteString("\n    -> " + hop.String())
		}
	}
	return b.String()
}

func setOf(ids ...ident.PackageId) map[ident.PackageId]struct{} {
	s := make(map[ident.PackageId]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// causeInvolves reports whether cause names candidate or parent,
// the test that decides whether a frame's choice of candidate was
// relevant to a deeper failure (true: retry other candidates here;
// false: backjump past this frame entirely per §4.E "Backjumping").
func causeInvolves(cause map[ident.PackageId]struct{}, ids ...ident.PackageId) bool {
	for _, id := range ids {
		if id == (ident.PackageId{}) {
			continue
		}
		if _, ok := cause[id]; ok {
			return true
		}
	}
	return false
}

// conflictKey identifies a dependency position in the conflict cache
// (§4.E "Conflict cache"): which package, version requirement and
// source this task resolves against. Parent context is not part of
// the key.
type conflictKey struct {
	name   ident.PackageName
	req    string
	source string
}

func newConflictKey(d pendingDep) conflictKey {
	return conflictKey{name: d.dep.Name, req: d.dep.Req.String(), source: d.dep.Source.String()}
}

// bfsPaths computes, for each package in targets, the shortest edge
// path from any root task to that package, by breadth-first search
// over the resolved edge set (§4.E "path length is computed by BFS
// over the partially-built graph").
func bfsPaths(edges map[ident.PackageId][]edge, roots []ident.PackageId, targets map[ident.PackageId]struct{}) map[ident.PackageId][]ident.PackageId {
	type qitem struct {
		id   ident.PackageId
		path []ident.PackageId
	}
	visited := map[ident.PackageId]bool{}
	queue := make([]qitem, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, qitem{id: r, path: nil})
	}
	result := map[ident.PackageId][]ident.PackageId{}
	for len(queue) > 0 && len(result) < len(targets) {
		item := queue[0]
		queue = queue[1:]
		if visited[item.id] {
			continue
		}
		visited[item.id] = true
		if _, want := targets[item.id]; want {
			if _, have := result[item.id]; !have {
				result[item.id] = append(append([]ident.PackageId{}, item.path...), item.id)
			}
		}
		for _, e := range edges[item.id] {
			if !visited[e.id] {
				queue = append(queue, qitem{id: e.id, path: append(append([]ident.PackageId{}, item.path...), item.id)})
			}
		}
	}
	return result
}
