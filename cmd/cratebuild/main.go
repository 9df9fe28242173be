// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Command cratebuild wires manifest discovery, dependency resolution,
// unit-graph construction, freshness planning and job-queue execution
// into one driver. It is deliberately thin: per the core's Non-goals,
// CLI ergonomics, registry configuration and actual compiler dispatch
// belong to an outer layer this command does not attempt to be. What
// it does do is mirror the teacher's cmd/build-metadata/main.go shape:
// parse a handful of flags, call into the internal/ packages in order,
// print a summary and exit with the right status code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lfreleng-actions/cratebuild/internal/buildlog"
	"github.com/lfreleng-actions/cratebuild/internal/fingerprint"
	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/jobqueue"
	"github.com/lfreleng-actions/cratebuild/internal/lockfile"
	"github.com/lfreleng-actions/cratebuild/internal/manifest"
	"github.com/lfreleng-actions/cratebuild/internal/output"
	"github.com/lfreleng-actions/cratebuild/internal/resolve"
	"github.com/lfreleng-actions/cratebuild/internal/source"
	"github.com/lfreleng-actions/cratebuild/internal/unitgraph"
)

func main() {
	dir := flag.String("C", ".", "directory to build, or any member of its workspace")
	release := flag.Bool("release", false, "build the release profile instead of debug")
	jobs := flag.Int64("jobs", int64(runtime.NumCPU()), "maximum number of concurrent jobserver tokens")
	keepGoing := flag.Bool("keep-going", false, "keep building independent units after a failure")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	reportDir := flag.String("report-dir", "", "directory to write a build report under (disabled if empty)")
	flag.Parse()

	level := buildlog.Normal
	if *verbose {
		level = buildlog.Verbose
	}
	logger := buildlog.New(level, os.Stdout, os.Stderr)

	if err := run(*dir, *release, *jobs, *keepGoing, *reportDir, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(dir string, release bool, jobs int64, keepGoing bool, reportDir string, logger *buildlog.Logger) error {
	ctx := context.Background()

	ws, err := manifest.DiscoverRoot(dir)
	if err != nil {
		return fmt.Errorf("discovering workspace: %w", err)
	}
	logger.Infof("workspace root: %s", ws.RootDir)

	members := map[ident.PackageId]*manifest.NormalizedManifest{}
	memberDirs := map[string]string{} // source URL -> member directory, for the path locator
	var memberIds []ident.PackageId
	for _, memberDir := range ws.MemberDirs {
		mf, err := manifest.Normalize(memberDir, ws)
		if err != nil {
			return fmt.Errorf("normalizing manifest at %s: %w", memberDir, err)
		}
		sid, err := ident.NewPathSource(memberDir)
		if err != nil {
			return fmt.Errorf("building source id for %s: %w", memberDir, err)
		}
		id := ident.PackageId{Name: mf.Name, Version: mf.Version, Source: sid}
		members[id] = mf
		memberIds = append(memberIds, id)
		memberDirs[sid.URL()] = memberDir
	}

	loc := &pathLocator{memberDirs: memberDirs}
	var roots []resolve.Root
	for _, id := range memberIds {
		mf := members[id]
		for _, kind := range []manifest.DepKind{manifest.DepNormal, manifest.DepBuild, manifest.DepDev} {
			for _, dep := range mf.Dependencies[kind] {
				if dep.Optional {
					continue
				}
				roots = append(roots, resolve.Root{Dep: dep, Direct: true})
			}
		}
	}

	patches, replaces, warnings, err := manifest.NormalizeOverrides(ws)
	if err != nil {
		return fmt.Errorf("normalizing [patch]/[replace]: %w", err)
	}

	resolver := resolve.NewResolver(loc, resolve.ModeMaximal, nil)
	resolver.SetOverrides(resolve.NewOverrides(patches, replaces, warnings, logger))
	res, err := resolver.Resolve(roots)
	if err != nil {
		return fmt.Errorf("resolving dependencies: %w", err)
	}
	logger.Infof("resolved %d packages", len(res.Packages))

	allManifests := manifests{members: members}
	for _, id := range res.Packages {
		if _, ok := members[id]; ok {
			continue
		}
		memberDir, ok := memberDirs[id.Source.URL()]
		if !ok {
			logger.Warnf("skipping %s: no local source available for %s (registry/git fetch is outside this driver's scope)", id, id.Source)
			continue
		}
		mf, err := manifest.Normalize(memberDir, nil)
		if err != nil {
			return fmt.Errorf("normalizing manifest for %s: %w", id, err)
		}
		allManifests.members[id] = mf
	}

	profile := manifest.Profile{Name: "debug", OptLevel: "0", Debug: true}
	if release {
		profile = manifest.Profile{Name: "release", OptLevel: "3", Debug: false}
	}
	triple := hostTriple()

	g, err := unitgraph.Build(res, allManifests, unitgraph.Request{
		Roots:        memberIds,
		Profile:      profile,
		HostTriple:   triple,
		TargetTriple: triple,
		Mode:         unitgraph.ModeBuild,
	})
	if err != nil {
		return fmt.Errorf("building unit graph: %w", err)
	}
	logger.Infof("unit graph has %d units", len(g.Units))

	targetDir := filepath.Join(ws.RootDir, "target")
	store := fingerprint.NewStore(targetDir, profile.Name)
	dirty, fps, err := fingerprint.Plan(g, store, &rustInputs{rustcVersion: rustcVersion(logger)})
	if err != nil {
		return fmt.Errorf("planning freshness: %w", err)
	}
	logger.Infof("%d of %d units are dirty", len(dirty), len(g.Units))

	deps := map[unitgraph.UnitIdx][]unitgraph.UnitIdx{}
	plan := jobqueue.Plan{Jobs: map[unitgraph.UnitIdx]jobqueue.Job{}, Deps: deps}
	for i, u := range g.Units {
		idx := unitgraph.UnitIdx(i)
		if !dirty[idx] {
			continue
		}
		// Only dirty units get a Job, so only edges between dirty units
		// are handed to the queue.
		for _, d := range g.DependenciesOf(idx) {
			if dirty[d] {
				deps[idx] = append(deps[idx], d)
			}
		}
		u := u
		priority := jobqueue.PriorityNormal
		if u.Mode == unitgraph.ModeBuildScriptRun {
			priority = jobqueue.PriorityBuildScript
		}
		plan.Jobs[idx] = jobqueue.Job{
			Unit:     idx,
			Priority: priority,
			Pkg:      string(u.Pkg.Name),
			Version:  u.Pkg.Version.String(),
			Run: func(ctx context.Context, pluginDirs []string) error {
				if err := compileUnit(ctx, ws.RootDir, targetDir, u, logger); err != nil {
					return err
				}
				if err := fingerprint.Commit(store, u, fps[idx]); err != nil {
					logger.Warnf("committing fingerprint for %s: %v", u.Pkg.Name, err)
				}
				return nil
			},
		}
	}

	queue := jobqueue.New(jobs, keepGoing, logger)
	result, runErr := queue.Run(ctx, plan)

	succeeded := map[string]bool{}
	failed := map[string]string{}
	var skipped []string
	for i := range g.Units {
		idx := unitgraph.UnitIdx(i)
		name := string(g.Units[idx].Pkg.Name)
		switch {
		case result.Succeeded[idx]:
			succeeded[name] = true
		case result.Failed[idx] != nil:
			failed[name] = result.Failed[idx].Error()
		case result.Skipped[idx]:
			skipped = append(skipped, name)
		}
	}

	if reportDir != "" {
		writer := output.NewReportWriter(true, "cratebuild-report", nil, reportDir, false, false)
		report := buildReport(res, g, dirty, succeeded, failed, skipped)
		if _, err := writer.Write(report, profile.Name); err != nil {
			logger.Warnf("writing build report: %v", err)
		}

		lf := lockfile.Build(res.Packages, res.Edges, res.Checksums, nil)
		if err := lf.Save(filepath.Join(ws.RootDir, "Cargo.lock")); err != nil {
			logger.Warnf("writing lockfile: %v", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("build failed: %w", runErr)
	}
	return nil
}

// manifests adapts the map of loaded manifests to unitgraph.Manifests.
type manifests struct {
	members map[ident.PackageId]*manifest.NormalizedManifest
}

func (m manifests) Manifest(id ident.PackageId) (*manifest.NormalizedManifest, bool) {
	mf, ok := m.members[id]
	return mf, ok
}

// pathLocator resolves only path-based sources, the one source kind a
// thin local driver can serve without a configured registry or git
// transport (§1 places that configuration outside the core).
type pathLocator struct {
	memberDirs map[string]string
}

func (l *pathLocator) Source(sid ident.SourceId) (source.Source, error) {
	if sid.Kind != ident.SourcePath {
		return nil, fmt.Errorf("source %s: only path dependencies are resolvable without a configured registry", sid)
	}
	dir, ok := l.memberDirs[sid.URL()]
	if !ok {
		dir = strings.TrimPrefix(sid.URL(), "path+")
	}
	return source.NewPathSource(dir)
}

// rustInputs feeds fingerprint.Plan the ambient facts it needs to hash
// a unit without the unit graph having to know where they come from.
type rustInputs struct {
	rustcVersion string
}

func (r *rustInputs) RustcVersion() string { return r.rustcVersion }

func (r *rustInputs) ProfileHash(u unitgraph.Unit) string {
	return fmt.Sprintf("%s:%s:%v", u.Profile.Name, u.Profile.OptLevel, u.Profile.Debug)
}

func (r *rustInputs) FeaturesHash(u unitgraph.Unit) string {
	return strings.Join(u.Features, ",")
}

func (r *rustInputs) LocalInputs(u unitgraph.Unit) ([]fingerprint.LocalInput, error) {
	if u.Target.Path == "" {
		return nil, nil
	}
	in, err := fingerprint.PathInput(u.Target.Path)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", u.Target.Path, err)
	}
	return []fingerprint.LocalInput{in}, nil
}

// compileUnit is the one point where this driver would hand off to an
// actual rustc invocation; the core's job is producing a correctly
// ordered, correctly skipped set of units to run, not embedding a
// compiler driver, so this only logs the unit and, for a build-script
// run, creates its OUT_DIR.
func compileUnit(ctx context.Context, rootDir, targetDir string, u unitgraph.Unit, logger *buildlog.Logger) error {
	logger.PkgTagf(string(u.Pkg.Name), u.Pkg.Version.String(), "%s %s (%s)", u.Mode, u.Target.Name, u.Triple)
	outDir := filepath.Join(targetDir, u.Profile.Name, "build", fmt.Sprintf("%s-%s", u.Pkg.Name, u.ShortHash()))
	if u.Mode == unitgraph.ModeBuildScriptRun {
		return os.MkdirAll(filepath.Join(outDir, "out"), 0o755)
	}
	return nil
}

func buildReport(res *resolve.Resolution, g *unitgraph.Graph, dirty map[unitgraph.UnitIdx]bool, succeeded map[string]bool, failed map[string]string, skipped []string) *output.BuildReport {
	report := &output.BuildReport{Failed: failed}
	for _, id := range res.Packages {
		report.Resolved = append(report.Resolved, output.PackageSummary{
			Name:    string(id.Name),
			Version: id.Version.String(),
			Source:  id.Source.String(),
		})
	}
	for i, u := range g.Units {
		idx := unitgraph.UnitIdx(i)
		report.Units = append(report.Units, output.UnitSummary{
			Package: string(u.Pkg.Name),
			Version: u.Pkg.Version.String(),
			Target:  u.Target.Name,
			Mode:    u.Mode.String(),
			Triple:  u.Triple,
			Fresh:   !dirty[idx],
		})
	}
	for name := range succeeded {
		report.Succeeded = append(report.Succeeded, name)
	}
	report.Skipped = skipped
	return report
}

// rustcVersion returns the fixed placeholder "unknown"; it does not
// probe any rustc binary. The result only affects fingerprint hashing,
// never correctness of the graph itself.
func rustcVersion(logger *buildlog.Logger) string {
	return "unknown"
}

func hostTriple() string {
	arch := "x86_64"
	switch runtime.GOARCH {
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-unknown-linux-gnu"
	}
}
