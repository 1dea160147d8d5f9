// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve binds project references to compilation-time artifacts.
//
// For every declared edge A -> B the Resolver decides what A's compiler sees:
// B's live compilation (same language), a skeleton image of B's public
// surface (different language), B's on-disk output (metadata substitution),
// or nothing (dangling, build-order-only, cycle-suppressed). Decisions are
// recomputed from each solution snapshot, so they follow B as it changes.
//
// Skeletons are memoized by (project id, public API version). The public API
// version only advances when a project's surface checksum changes, so edits
// confined to method bodies reuse the existing skeleton and leave
// cross-language dependents untouched.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

var tracer = otel.Tracer("aleutian.workspace.resolve")

// SkeletonStore persists skeleton images across processes.
type SkeletonStore interface {
	Get(ctx context.Context, project uuid.UUID, checksum string) (*metadata.Image, bool, error)
	Put(ctx context.Context, project uuid.UUID, img *metadata.Image) error
}

// Options configures a Resolver.
type Options struct {
	// Compiler builds project compilations. Required.
	Compiler syntax.Compiler

	// Cache supplies on-disk metadata. Required.
	Cache *metadata.Cache

	// Store optionally persists skeletons.
	Store SkeletonStore

	Policy Policy

	// LoadMetadataForReferencedProjects enables binding edges that carry a
	// MetadataPath to on-disk outputs.
	LoadMetadataForReferencedProjects bool

	// OnUnresolved is called once per dangling edge.
	OnUnresolved func(Unresolved)

	Logger *slog.Logger
}

// Stats counts resolver activity.
type Stats struct {
	Compilations      int64
	CompilationReuses int64
	SkeletonBuilds    int64
	SkeletonReuses    int64
	SkeletonStoreHits int64
}

// tracker is the latest compilation of one project.
type tracker struct {
	project     *solution.Project
	fingerprint string
	comp        *syntax.Compilation
	api         version.Stamp
}

type apiVersion struct {
	checksum string
	stamp    version.Stamp
}

type skeletonKey struct {
	project solution.ProjectID
	api     version.Stamp
}

type edgeKey struct {
	from, to solution.ProjectID
}

// Resolver computes compilations and reference decisions for solution snapshots.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent requests for the same project of the
// same snapshot share one computation.
type Resolver struct {
	opts   Options
	logger *slog.Logger
	flight singleflight.Group

	mu        sync.Mutex
	trackers  map[solution.ProjectID]*tracker
	apis      map[solution.ProjectID]apiVersion
	skeletons map[skeletonKey]*metadata.Image
	reported  map[edgeKey]struct{}

	compilations      int64
	compilationReuses int64
	skeletonBuilds    int64
	skeletonReuses    int64
	skeletonStoreHits int64
}

// New returns a Resolver.
func New(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		opts:      opts,
		logger:    opts.Logger.With("component", "resolver"),
		trackers:  make(map[solution.ProjectID]*tracker),
		apis:      make(map[solution.ProjectID]apiVersion),
		skeletons: make(map[skeletonKey]*metadata.Image),
		reported:  make(map[edgeKey]struct{}),
	}
}

// Decide classifies one declared reference of project from.
//
// # Description
//
// Resolved edges with ReferenceOutputAssembly bind to the target's
// compilation when both projects share a language and to a skeleton
// otherwise. Edges to absent projects that carry a MetadataPath bind to
// that on-disk output when metadata loading is enabled and the output can
// be read. Every other edge to an absent project is dangling and raises
// OnUnresolved once. The decision depends only on snap and the files on
// disk.
//
// # Outputs
//
//   - Decision: The classification.
//   - error: solution.ErrUnknownReference if from does not declare ref.
func (r *Resolver) Decide(ctx context.Context, snap *solution.Solution, from solution.ProjectID, ref solution.ProjectReference) (Decision, error) {
	d := Decision{From: from, Reference: ref}

	switch snap.DependencyGraph().EdgeState(from, ref) {
	case solution.EdgeUnknown:
		return d, fmt.Errorf("%w: %s -> %s", solution.ErrUnknownReference, from, ref.ProjectID)
	case solution.EdgeCycleSuppressed:
		d.Kind = DecisionCycleSuppressed
	case solution.EdgeDangling:
		d.Kind = DecisionDangling
		r.reportUnresolved(from, ref.ProjectID)
	case solution.EdgeMetadata:
		if r.substitute(ctx, ref) {
			d.Kind = DecisionMetadata
			d.MetadataPath = ref.MetadataPath
		} else {
			d.Kind = DecisionDangling
			r.reportUnresolved(from, ref.ProjectID)
		}
	case solution.EdgeResolved:
		if !ref.ReferenceOutputAssembly {
			d.Kind = DecisionBuildOrderOnly
			break
		}
		src, _ := snap.Project(from)
		dst, _ := snap.Project(ref.ProjectID)
		if strings.EqualFold(src.Language(), dst.Language()) {
			d.Kind = DecisionCompilation
		} else {
			d.Kind = DecisionSkeleton
		}
	}

	recordDecision(ctx, d.Kind)
	r.logger.Debug("reference decided",
		"project_id", from.String(),
		"target_id", ref.ProjectID.String(),
		"decision", d.Kind.String())
	return d, nil
}

// Decisions classifies every declared reference of project id.
func (r *Resolver) Decisions(ctx context.Context, snap *solution.Solution, id solution.ProjectID) ([]Decision, error) {
	p, ok := snap.Project(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", solution.ErrUnknownProject, id)
	}
	refs := p.AllProjectReferences()
	out := make([]Decision, 0, len(refs))
	for _, ref := range refs {
		d, err := r.Decide(ctx, snap, id, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Resolver) substitute(ctx context.Context, ref solution.ProjectReference) bool {
	if !r.opts.LoadMetadataForReferencedProjects {
		return false
	}
	if _, _, err := r.opts.Cache.Revalidate(ctx, ref.MetadataPath); err != nil {
		r.logger.Warn("substituted output unavailable",
			"target_id", ref.ProjectID.String(),
			"path", ref.MetadataPath,
			"error", err)
		return false
	}
	return true
}

func (r *Resolver) reportUnresolved(from, to solution.ProjectID) {
	key := edgeKey{from: from, to: to}
	r.mu.Lock()
	_, seen := r.reported[key]
	r.reported[key] = struct{}{}
	r.mu.Unlock()
	if seen {
		return
	}
	r.logger.Warn("unresolved project reference",
		"project_id", from.String(),
		"target_id", to.String())
	if r.opts.OnUnresolved != nil {
		r.opts.OnUnresolved(Unresolved{From: from, To: to})
	}
}

// Compilation returns the compilation of project id in snap.
//
// # Description
//
// The previous compilation of the project is reused when neither the
// project state nor any bound reference changed. Dependencies are
// compiled concurrently. Cancelling ctx abandons the computation; the
// next request starts a fresh one.
//
// # Outputs
//
//   - *syntax.Compilation: The compilation, possibly with diagnostics.
//   - error: solution.ErrUnknownProject, *UnresolvedError under a strict
//     policy, ErrNoCompiler, document load failures, or ctx.Err().
func (r *Resolver) Compilation(ctx context.Context, snap *solution.Solution, id solution.ProjectID) (*syntax.Compilation, error) {
	t, err := r.compilation(ctx, snap, id)
	if err != nil {
		return nil, err
	}
	return t.comp, nil
}

func (r *Resolver) compilation(ctx context.Context, snap *solution.Solution, id solution.ProjectID) (*tracker, error) {
	p, ok := snap.Project(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", solution.ErrUnknownProject, id)
	}
	key := fmt.Sprintf("compile/%p/%s", snap, id.UUID())
	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		return r.compile(ctx, snap, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*tracker), nil
}

func (r *Resolver) compile(ctx context.Context, snap *solution.Solution, p *solution.Project) (*tracker, error) {
	ctx, span := tracer.Start(ctx, "resolve.Compilation", trace.WithAttributes(
		attribute.String("project.id", p.ID().String()),
		attribute.String("project.language", p.Language()),
	))
	defer span.End()

	refs, fingerprint, err := r.bindReferences(ctx, snap, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	r.mu.Lock()
	if t, ok := r.trackers[p.ID()]; ok && t.project == p && t.fingerprint == fingerprint {
		r.mu.Unlock()
		atomic.AddInt64(&r.compilationReuses, 1)
		span.SetAttributes(attribute.Bool("compile.reused", true))
		return t, nil
	}
	r.mu.Unlock()

	if r.opts.Compiler == nil || !r.opts.Compiler.Supports(p.Language()) {
		return nil, fmt.Errorf("%w %q (project %s)", ErrNoCompiler, p.Language(), p.ID())
	}

	settings, err := syntax.DecodeSettings(p.CompilationOptions().Map(), p.ParseOptions().Map())
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ID(), err)
	}

	docs := p.Documents()
	sources := make([]syntax.SourceFile, 0, len(docs))
	for _, d := range docs {
		content, err := d.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading document %s: %w", d.ID(), err)
		}
		path := d.FilePath()
		if path == "" {
			path = d.Name()
		}
		sources = append(sources, syntax.SourceFile{Path: path, Text: content})
	}

	assembly := p.AssemblyName()
	if assembly == "" {
		assembly = p.Name()
	}

	start := time.Now()
	comp, err := r.opts.Compiler.Compile(ctx, syntax.Input{
		AssemblyName: assembly,
		Language:     p.Language(),
		Sources:      sources,
		Settings:     settings,
		References:   refs,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("compiling project %s: %w", p.ID(), err)
	}
	atomic.AddInt64(&r.compilations, 1)
	recordCompilation(ctx, p.Language())

	r.mu.Lock()
	api, ok := r.apis[p.ID()]
	if !ok || api.checksum != comp.SurfaceChecksum() {
		api = apiVersion{checksum: comp.SurfaceChecksum(), stamp: version.Create()}
		r.apis[p.ID()] = api
	}
	t := &tracker{project: p, fingerprint: fingerprint, comp: comp, api: api.stamp}
	r.trackers[p.ID()] = t
	r.mu.Unlock()

	r.logger.Debug("project compiled",
		"project_id", p.ID().String(),
		"documents", len(sources),
		"references", len(refs),
		"api_version", api.stamp.String(),
		"duration", time.Since(start))
	return t, nil
}

// bindReferences resolves every referenced assembly of p and returns a
// fingerprint identifying them.
func (r *Resolver) bindReferences(ctx context.Context, snap *solution.Solution, p *solution.Project) ([]syntax.ReferencedAssembly, string, error) {
	decisions, err := r.Decisions(ctx, snap, p.ID())
	if err != nil {
		return nil, "", err
	}
	if !r.opts.Policy.SkipUnresolved {
		for _, d := range decisions {
			if d.Kind == DecisionDangling {
				return nil, "", &UnresolvedError{From: p.ID(), To: d.Reference.ProjectID}
			}
		}
	}
	mdRefs := p.MetadataReferences()

	bound := make([]syntax.ReferencedAssembly, len(decisions)+len(mdRefs))
	parts := make([]string, len(bound))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range decisions {
		i, d := i, d
		target := d.Reference.ProjectID
		switch d.Kind {
		case DecisionCompilation:
			g.Go(func() error {
				dep, err := r.compilation(gctx, snap, target)
				if err != nil {
					return err
				}
				bound[i] = dep.comp
				parts[i] = fmt.Sprintf("c:%p", dep.comp)
				return nil
			})
		case DecisionSkeleton:
			g.Go(func() error {
				img, api, err := r.Skeleton(gctx, snap, target)
				if err != nil {
					return err
				}
				bound[i] = syntax.ImageAssembly{Image: img}
				parts[i] = fmt.Sprintf("s:%s:%s", target.UUID(), api)
				return nil
			})
		case DecisionMetadata:
			g.Go(func() error {
				asm, part, err := r.bindMetadata(gctx, d.MetadataPath)
				bound[i], parts[i] = asm, part
				return err
			})
		}
	}
	for j, ref := range mdRefs {
		i, path := len(decisions)+j, ref.Path()
		g.Go(func() error {
			asm, part, err := r.bindMetadata(gctx, path)
			bound[i], parts[i] = asm, part
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	out := bound[:0]
	for _, b := range bound {
		if b != nil {
			out = append(out, b)
		}
	}
	return out, strings.Join(parts, "|"), nil
}

func (r *Resolver) bindMetadata(ctx context.Context, path string) (syntax.ReferencedAssembly, string, error) {
	md, _, err := r.opts.Cache.Revalidate(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("loading metadata reference %s: %w", path, err)
	}
	return syntax.ImageAssembly{Image: md.Image}, fmt.Sprintf("m:%s:%d", md.Path, md.ModTime.UnixNano()), nil
}

// Skeleton returns the public-surface image of project id.
//
// # Description
//
// Images are memoized by (project id, public API version). A memo miss
// consults the SkeletonStore by surface checksum before generating a new
// image, and newly generated images are written back to the store.
//
// # Outputs
//
//   - *metadata.Image: The skeleton. Shared; callers must not modify it.
//   - version.Stamp: The public API version the skeleton reflects.
//   - error: Compilation failure.
func (r *Resolver) Skeleton(ctx context.Context, snap *solution.Solution, id solution.ProjectID) (*metadata.Image, version.Stamp, error) {
	t, err := r.compilation(ctx, snap, id)
	if err != nil {
		return nil, version.Stamp{}, err
	}
	key := skeletonKey{project: id, api: t.api}

	r.mu.Lock()
	img, ok := r.skeletons[key]
	r.mu.Unlock()
	if ok {
		atomic.AddInt64(&r.skeletonReuses, 1)
		return img, t.api, nil
	}

	v, err, _ := r.flight.Do(fmt.Sprintf("skeleton/%s/%s", id.UUID(), t.api), func() (interface{}, error) {
		r.mu.Lock()
		if img, ok := r.skeletons[key]; ok {
			r.mu.Unlock()
			return img, nil
		}
		r.mu.Unlock()

		img := r.loadStoredSkeleton(ctx, id, t.comp.SurfaceChecksum())
		if img == nil {
			img = t.comp.Image(true)
			atomic.AddInt64(&r.skeletonBuilds, 1)
			recordSkeletonBuild(ctx)
			r.logger.Info("skeleton generated",
				"project_id", id.String(),
				"api_version", t.api.String(),
				"symbols", len(img.Symbols))
			if r.opts.Store != nil {
				if err := r.opts.Store.Put(ctx, id.UUID(), img); err != nil {
					r.logger.Warn("skeleton store write failed", "project_id", id.String(), "error", err)
				}
			}
		}

		r.mu.Lock()
		for k := range r.skeletons {
			if k.project == id {
				delete(r.skeletons, k)
			}
		}
		r.skeletons[key] = img
		r.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, version.Stamp{}, err
	}
	return v.(*metadata.Image), t.api, nil
}

func (r *Resolver) loadStoredSkeleton(ctx context.Context, id solution.ProjectID, checksum string) *metadata.Image {
	if r.opts.Store == nil {
		return nil
	}
	img, ok, err := r.opts.Store.Get(ctx, id.UUID(), checksum)
	if err != nil {
		r.logger.Warn("skeleton store read failed", "project_id", id.String(), "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	atomic.AddInt64(&r.skeletonStoreHits, 1)
	return img
}

// PublicAPIVersion returns the public API version of the latest compilation
// of project id.
func (r *Resolver) PublicAPIVersion(id solution.ProjectID) (version.Stamp, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	api, ok := r.apis[id]
	return api.stamp, ok
}

// Emit compiles project id and writes its full image to the output path.
//
// # Outputs
//
//   - string: The written path.
//   - error: ErrNoOutputPath, compilation or write failure.
func (r *Resolver) Emit(ctx context.Context, snap *solution.Solution, id solution.ProjectID) (string, error) {
	p, ok := snap.Project(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", solution.ErrUnknownProject, id)
	}
	path := p.OutputFilePath()
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrNoOutputPath, id)
	}
	comp, err := r.Compilation(ctx, snap, id)
	if err != nil {
		return "", err
	}
	if err := metadata.WriteImage(r.opts.Cache.Fs(), path, comp.Image(false)); err != nil {
		return "", fmt.Errorf("emitting project %s: %w", id, err)
	}
	if _, _, err := r.opts.Cache.Revalidate(ctx, path); err != nil {
		return "", err
	}
	r.logger.Info("project emitted", "project_id", id.String(), "path", path)
	return path, nil
}

// EmitAll emits every project with an output path, dependencies first.
func (r *Resolver) EmitAll(ctx context.Context, snap *solution.Solution) ([]string, error) {
	var paths []string
	for _, id := range snap.DependencyGraph().TopologicalOrder() {
		p, _ := snap.Project(id)
		if p.OutputFilePath() == "" {
			continue
		}
		path, err := r.Emit(ctx, snap, id)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Prune drops state for projects absent from snap.
func (r *Resolver) Prune(snap *solution.Solution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.trackers {
		if !snap.ContainsProject(id) {
			delete(r.trackers, id)
			delete(r.apis, id)
		}
	}
	for k := range r.skeletons {
		if !snap.ContainsProject(k.project) {
			delete(r.skeletons, k)
		}
	}
}

// Stats returns a snapshot of resolver activity.
func (r *Resolver) Stats() Stats {
	return Stats{
		Compilations:      atomic.LoadInt64(&r.compilations),
		CompilationReuses: atomic.LoadInt64(&r.compilationReuses),
		SkeletonBuilds:    atomic.LoadInt64(&r.skeletonBuilds),
		SkeletonReuses:    atomic.LoadInt64(&r.skeletonReuses),
		SkeletonStoreHits: atomic.LoadInt64(&r.skeletonStoreHits),
	}
}
