// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package jobqueue drives the bounded-concurrency execution of a unit
// graph: a jobserver token semaphore, deterministic (priority, unit-id)
// scheduling among eligible units, fail-fast or keep-going cancellation,
// and line-safe interleaved output (§4.H, §5). Concurrency itself is
// golang.org/x/sync/semaphore, the same jobserver-as-counting-semaphore
// design SPEC_FULL.md §D.5 settles on; per-unit correlation ids for log
// tagging come from github.com/google/uuid; keep-going failure
// aggregation uses github.com/hashicorp/go-multierror, mirroring the
// resolver's conflict-cause accumulation.
package jobqueue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/lfreleng-actions/cratebuild/internal/buildlog"
	"github.com/lfreleng-actions/cratebuild/internal/unitgraph"
)

// Priority orders eligible units for selection; build-script runs are
// scheduled ahead of the normal compilation of their dependents to
// expose parallelism sooner (§4.H "Scheduling").
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityBuildScript
)

// Run is one unit's executable body. pluginDirs lists the dynamic
// library directories contributed by this unit's for-host (plugin)
// dependencies, to be added to LD_LIBRARY_PATH or the platform
// equivalent (§4.H "Plugin libraries").
type Run func(ctx context.Context, pluginDirs []string) error

// Job is one schedulable unit of work.
type Job struct {
	Unit     unitgraph.UnitIdx
	Priority Priority
	Pkg      string
	Version  string
	// Plugins lists dependency unit indices whose output directories
	// feed this job's pluginDirs argument at run time.
	Plugins []unitgraph.UnitIdx
	Run      Run
}

// Plan is the full schedulable graph: one Job per unit plus the
// "must finish before" dependency edges.
type Plan struct {
	Jobs map[unitgraph.UnitIdx]Job
	Deps map[unitgraph.UnitIdx][]unitgraph.UnitIdx
}

// Result is the outcome of running a Plan to completion (or to the
// first fail-fast cancellation).
type Result struct {
	Succeeded map[unitgraph.UnitIdx]bool
	Failed    map[unitgraph.UnitIdx]error
	Skipped   map[unitgraph.UnitIdx]bool
}

// Queue executes a Plan with bounded jobserver concurrency.
type Queue struct {
	jobserver *semaphore.Weighted
	logger    *buildlog.Logger
	keepGoing bool

	mu         sync.Mutex
	pluginDirs map[unitgraph.UnitIdx]string
}

// New builds a Queue with tokens total jobserver tokens, one of which
// is held implicitly by the coordinator itself (§4.H "The queue itself
// owns one token implicitly").
func New(tokens int64, keepGoing bool, logger *buildlog.Logger) *Queue {
	if tokens < 1 {
		tokens = 1
	}
	acquirable := tokens - 1
	if acquirable < 0 {
		acquirable = 0
	}
	return &Queue{
		jobserver:  semaphore.NewWeighted(acquirable),
		logger:     logger,
		keepGoing:  keepGoing,
		pluginDirs: map[unitgraph.UnitIdx]string{},
	}
}

// SetPluginDir records unit u's contributed library directory, read
// back by dependents whose Plugins list includes u.
func (q *Queue) SetPluginDir(u unitgraph.UnitIdx, dir string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pluginDirs[u] = dir
}

type readyItem struct {
	unit     unitgraph.UnitIdx
	priority Priority
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].unit < h[j].unit
}
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Run executes plan to completion, respecting fail-fast or keep-going
// semantics (§4.H "Cancellation"). It returns the per-unit outcome and
// a *multierror.Error aggregating every failure, nil when every job
// succeeded.
func (q *Queue) Run(ctx context.Context, plan Plan) (*Result, error) {
	pending := map[unitgraph.UnitIdx]int{}
	dependents := map[unitgraph.UnitIdx][]unitgraph.UnitIdx{}
	for u := range plan.Jobs {
		pending[u] = len(plan.Deps[u])
	}
	for u, deps := range plan.Deps {
		for _, d := range deps {
			dependents[d] = append(dependents[d], u)
		}
	}

	result := &Result{
		Succeeded: map[unitgraph.UnitIdx]bool{},
		Failed:    map[unitgraph.UnitIdx]error{},
		Skipped:   map[unitgraph.UnitIdx]bool{},
	}

	ready := &readyHeap{}
	heap.Init(ready)
	for u, n := range pending {
		if n == 0 {
			heap.Push(ready, readyItem{unit: u, priority: plan.Jobs[u].Priority})
		}
	}

	type outcome struct {
		unit unitgraph.UnitIdx
		err  error
	}
	done := make(chan outcome, len(plan.Jobs))
	total := len(plan.Jobs)
	decided := 0
	failFast := false
	var errs *multierror.Error

	var wg sync.WaitGroup
	spawn := func(u unitgraph.UnitIdx) {
		job := plan.Jobs[u]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.jobserver.Acquire(ctx, 1); err != nil {
				done <- outcome{unit: u, err: fmt.Errorf("acquiring jobserver token: %w", err)}
				return
			}
			defer q.jobserver.Release(1)

			q.mu.Lock()
			var pluginDirs []string
			for _, p := range job.Plugins {
				if dir, ok := q.pluginDirs[p]; ok {
					pluginDirs = append(pluginDirs, dir)
				}
			}
			q.mu.Unlock()

			id := uuid.NewString()
			if q.logger != nil {
				q.logger.PkgTagf(job.Pkg, job.Version, "job %s starting", id)
			}
			err := job.Run(ctx, pluginDirs)
			if q.logger != nil && err != nil {
				q.logger.PkgTagf(job.Pkg, job.Version, "job %s failed: %v", id, err)
			}
			done <- outcome{unit: u, err: err}
		}()
	}

	// dispatchAll spawns every item currently in ready.
	dispatchAll := func() {
		for ready.Len() > 0 {
			item := heap.Pop(ready).(readyItem)
			spawn(item.unit)
		}
	}

	// skipSubtree marks u's not-yet-decided reverse-dependency subtree
	// as skipped (§4.H "only the failing unit's reverse-dependency
	// subtree is skipped" under --keep-going).
	var skipSubtree func(u unitgraph.UnitIdx)
	skipSubtree = func(u unitgraph.UnitIdx) {
		for _, dep := range dependents[u] {
			if result.Skipped[dep] || result.Succeeded[dep] || result.Failed[dep] != nil {
				continue
			}
			result.Skipped[dep] = true
			decided++
			skipSubtree(dep)
		}
	}

	dispatchAll()

	for decided < total {
		o := <-done
		decided++
		if o.err != nil {
			result.Failed[o.unit] = o.err
			job := plan.Jobs[o.unit]
			errs = multierror.Append(errs, fmt.Errorf("unit %d: %s %s: %w", o.unit, job.Pkg, job.Version, o.err))
			if q.keepGoing {
				skipSubtree(o.unit)
			} else if !failFast {
				failFast = true
				// Every unit that never reached zero pending deps was never
				// spawned and will now never run; mark it decided so the
				// wait loop below still terminates (§4.H "no new jobs are
				// scheduled; running jobs are allowed to complete").
				for u, n := range pending {
					if n > 0 && !result.Succeeded[u] && result.Failed[u] == nil && !result.Skipped[u] {
						result.Skipped[u] = true
						decided++
					}
				}
			}
		} else {
			result.Succeeded[o.unit] = true
		}

		if failFast {
			// §4.H "no new jobs are scheduled; running jobs are allowed to
			// complete and their output is still drained".
			continue
		}

		var newlyReady []readyItem
		for _, dep := range dependents[o.unit] {
			if result.Skipped[dep] {
				continue
			}
			pending[dep]--
			if pending[dep] == 0 {
				newlyReady = append(newlyReady, readyItem{unit: dep, priority: plan.Jobs[dep].Priority})
			}
		}
		for _, item := range newlyReady {
			heap.Push(ready, item)
		}
		dispatchAll()
	}

	wg.Wait()
	return result, errs.ErrorOrNil()
}
