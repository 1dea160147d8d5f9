// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/loader"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

// OpenSolution replaces the current solution with the one described at path.
//
// # Description
//
// Listed projects are loaded, then every project they reference, breadth
// first. Under the Lenient policy a project that cannot be loaded is omitted
// with exactly one failure diagnostic and edges to it stay dangling. Under
// Strict the first such failure is returned and nothing changes. A project
// whose build failed is kept with no documents. With
// LoadMetadataForReferencedProjects, an unlisted referenced project whose
// on-disk output is at least as new as its sources is not opened; edges to
// it bind to the output instead.
//
// # Outputs
//
//   - *solution.Solution: The published solution.
//   - error: Solution descriptor errors, strict load errors, or ctx.Err().
func (w *Workspace) OpenSolution(ctx context.Context, path string) (*solution.Solution, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	desc, err := w.loader.LoadSolution(ctx, path)
	if err != nil {
		return nil, err
	}

	w.editMu.Lock()
	defer w.editMu.Unlock()

	session := w.newLoadSession(nil, desc.Projects)
	if err := session.run(ctx, desc.Projects); err != nil {
		return nil, err
	}

	next := solution.New(solution.NewSolutionID(), desc.Path)
	for _, info := range session.infos() {
		if next, err = next.AddProject(info); err != nil {
			return nil, err
		}
	}

	cur := w.current.Load()
	published := w.publish(cur, next)
	w.stateMu.Lock()
	w.loadFailed = session.failed
	w.stateMu.Unlock()
	w.events.publish(Event{Kind: EventSolutionAdded, OldSolution: cur, NewSolution: published})
	session.flushDiagnostics()
	w.watchDocuments(published)

	w.logger.Info("solution opened",
		"path", desc.Path,
		"projects", published.ProjectCount(),
		"substituted", len(session.substituted),
		"failed", session.failures)
	return published, nil
}

// OpenProject adds the project at path, and any project it references that
// is not yet open, to the current solution.
//
// # Description
//
// A project already open is left unchanged. A project previously bound
// through its on-disk output is upgraded: the substitution is dropped and
// every edge to it binds to the live project from then on.
//
// # Outputs
//
//   - solution.ProjectID: The project's id.
//   - error: The load failure for path itself, regardless of policy.
func (w *Workspace) OpenProject(ctx context.Context, path string) (solution.ProjectID, error) {
	if w.closed.Load() {
		return solution.ProjectID{}, ErrClosed
	}
	path = absPath(path)

	w.editMu.Lock()
	defer w.editMu.Unlock()

	cur := w.current.Load()
	id := w.idFor(path, "")
	if cur.ContainsProject(id) {
		return id, nil
	}

	session := w.newLoadSession(cur, []string{path})
	session.strictRoots = true
	if err := session.run(ctx, []string{path}); err != nil {
		return solution.ProjectID{}, err
	}

	next := cur
	var err error
	for _, info := range session.infos() {
		if next, err = next.AddProject(info); err != nil {
			return solution.ProjectID{}, err
		}
	}
	if next, err = upgradeSubstitutions(next, session.opened); err != nil {
		return solution.ProjectID{}, err
	}

	published := w.publish(cur, next)
	w.stateMu.Lock()
	for id := range session.opened {
		delete(w.loadFailed, id)
	}
	for id := range session.failed {
		w.loadFailed[id] = true
	}
	w.stateMu.Unlock()
	w.events.publish(changeEvents(cur, published, solution.Changes(cur, published))...)
	session.flushDiagnostics()
	w.watchDocuments(published)
	w.logger.Info("project opened", "path", path, "project_id", id.String())
	return id, nil
}

// CloseSolution replaces the current solution with an empty one.
func (w *Workspace) CloseSolution() {
	if w.closed.Load() {
		return
	}
	w.editMu.Lock()
	defer w.editMu.Unlock()

	w.stateMu.Lock()
	w.loadFailed = make(map[solution.ProjectID]bool)
	watched := w.watched
	w.watched = make(map[string]bool)
	w.stateMu.Unlock()

	if w.gate != nil {
		for path := range watched {
			_ = w.gate.Unwatch(path)
		}
	}

	cur := w.current.Load()
	published := w.publish(cur, solution.New(solution.NewSolutionID(), ""))
	w.events.publish(Event{Kind: EventSolutionCleared, OldSolution: cur, NewSolution: published})
}

// upgradeSubstitutions clears the output path on edges to projects that
// are now open.
func upgradeSubstitutions(s *solution.Solution, opened map[solution.ProjectID]bool) (*solution.Solution, error) {
	for _, p := range s.Projects() {
		refs := p.AllProjectReferences()
		changed := false
		for i, ref := range refs {
			if ref.MetadataPath != "" && opened[ref.ProjectID] {
				refs[i].MetadataPath = ""
				changed = true
			}
		}
		if !changed {
			continue
		}
		var err error
		if s, err = s.WithProjectReferences(p.ID(), refs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (w *Workspace) watchDocuments(s *solution.Solution) {
	if w.gate == nil || !w.opts.Watch {
		return
	}
	for _, p := range s.Projects() {
		for _, d := range p.Documents() {
			if d.FilePath() != "" {
				w.watch(d.FilePath())
			}
		}
	}
}

// idFor returns the stable project id for a descriptor path.
func (w *Workspace) idFor(path, name string) solution.ProjectID {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if id, ok := w.pathIDs[path]; ok {
		return id
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	id := solution.NewProjectID(name)
	w.pathIDs[path] = id
	return id
}

// loadSession walks project descriptors for one open operation. Nothing it
// finds reaches the workspace until the operation publishes.
type loadSession struct {
	w *Workspace

	// present holds projects already open; they are neither reloaded nor
	// substituted.
	present *solution.Solution

	listed      map[string]bool
	strictRoots bool

	descs       []*loader.ProjectDescriptor
	seen        map[string]bool
	opened      map[solution.ProjectID]bool
	substituted map[solution.ProjectID]string
	failed      map[solution.ProjectID]bool
	failures    int
	diagnostics []Diagnostic
}

func (w *Workspace) newLoadSession(present *solution.Solution, listed []string) *loadSession {
	s := &loadSession{
		w:           w,
		present:     present,
		listed:      make(map[string]bool, len(listed)),
		seen:        make(map[string]bool),
		opened:      make(map[solution.ProjectID]bool),
		substituted: make(map[solution.ProjectID]string),
		failed:      make(map[solution.ProjectID]bool),
	}
	for _, p := range listed {
		s.listed[absPath(p)] = true
	}
	return s
}

func (s *loadSession) run(ctx context.Context, roots []string) error {
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, absPath(r))
	}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if s.seen[path] {
			continue
		}
		s.seen[path] = true

		id := s.w.idFor(path, "")
		if s.present != nil && s.present.ContainsProject(id) {
			continue
		}

		desc, err := s.w.loader.LoadProject(ctx, path)
		if err != nil {
			var buildErr *loader.BuildError
			switch {
			case errors.As(err, &buildErr) && desc != nil:
				s.report(Diagnostic{Kind: DiagnosticFailure, Path: path, ProjectID: id, Message: buildErr.Message, Err: err})
			case ctx.Err() != nil:
				return ctx.Err()
			case s.w.opts.Policy == Strict || (s.strictRoots && s.listed[path]):
				return err
			default:
				s.failures++
				s.failed[id] = true
				s.report(Diagnostic{Kind: DiagnosticFailure, Path: path, ProjectID: id, Err: err})
				continue
			}
		}

		if !s.listed[path] && s.w.opts.LoadMetadataForReferencedProjects && s.outputFresh(desc) {
			s.substituted[id] = desc.OutputPath
			s.w.logger.Debug("referenced project bound to output",
				"path", path,
				"output", desc.OutputPath)
			continue
		}

		s.descs = append(s.descs, desc)
		s.opened[id] = true
		for _, ref := range desc.ProjectReferences {
			if !s.seen[ref.Path] {
				queue = append(queue, ref.Path)
			}
		}
	}
	return nil
}

// outputFresh reports whether desc's output exists and is no older than
// any of its sources.
func (s *loadSession) outputFresh(desc *loader.ProjectDescriptor) bool {
	if desc.OutputPath == "" {
		return false
	}
	fs := s.w.texts.Fs()
	out, err := fs.Stat(desc.OutputPath)
	if err != nil || out.IsDir() {
		return false
	}
	for _, src := range desc.Sources {
		info, err := fs.Stat(src.Path)
		if err != nil {
			continue
		}
		if info.ModTime().After(out.ModTime()) {
			return false
		}
	}
	return true
}

// report holds d until the session's result is published.
func (s *loadSession) report(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

// flushDiagnostics records the held diagnostics. Caller has published.
func (s *loadSession) flushDiagnostics() {
	for _, d := range s.diagnostics {
		s.w.report(d)
	}
	s.diagnostics = nil
}

func (s *loadSession) infos() []solution.ProjectInfo {
	out := make([]solution.ProjectInfo, 0, len(s.descs))
	for _, desc := range s.descs {
		out = append(out, s.projectInfo(desc))
	}
	return out
}

func (s *loadSession) projectInfo(desc *loader.ProjectDescriptor) solution.ProjectInfo {
	w := s.w
	id := w.idFor(desc.Path, desc.Name)
	enc, ok := text.Explicit(desc.CodePage, desc.Encoding)
	if !ok && (desc.CodePage != 0 || desc.Encoding != "") {
		s.report(Diagnostic{
			Kind:      DiagnosticWarning,
			Path:      desc.Path,
			ProjectID: id,
			Message:   fmt.Sprintf("unsupported encoding (code page %d, name %q); using UTF-8", desc.CodePage, desc.Encoding),
		})
	}

	info := solution.ProjectInfo{
		ID:                 id,
		Name:               desc.Name,
		AssemblyName:       desc.AssemblyName,
		Language:           desc.Language,
		FilePath:           desc.Path,
		OutputFilePath:     desc.OutputPath,
		CompilationOptions: solution.NewOptions(desc.CompilationOptions),
		ParseOptions:       solution.NewOptions(desc.ParseOptions),
	}
	for _, src := range desc.Sources {
		info.Documents = append(info.Documents, solution.DocumentInfo{
			ID:       solution.NewDocumentID(id, filepath.Base(src.Path)),
			Name:     filepath.Base(src.Path),
			Folders:  src.Folders,
			FilePath: src.Path,
			Loader:   w.texts.FileLoader(src.Path, enc),
		})
	}
	for _, p := range desc.AdditionalFiles {
		info.AdditionalDocuments = append(info.AdditionalDocuments, solution.DocumentInfo{
			ID:       solution.NewDocumentID(id, filepath.Base(p)),
			Name:     filepath.Base(p),
			FilePath: p,
			Loader:   w.texts.FileLoader(p, enc),
		})
	}
	for _, m := range desc.MetadataReferences {
		info.MetadataReferences = append(info.MetadataReferences,
			w.cache.GetOrCreate(m.Path, metadata.NewAliasSet(m.Aliases...), m.Global))
	}
	for _, ref := range desc.ProjectReferences {
		target := w.idFor(ref.Path, "")
		info.ProjectReferences = append(info.ProjectReferences, solution.ProjectReference{
			ProjectID:               target,
			Aliases:                 metadata.NewAliasSet(ref.Aliases...),
			ReferenceOutputAssembly: ref.IncludesOutput(),
			MetadataPath:            s.substituted[target],
		})
	}
	for _, a := range desc.AnalyzerReferences {
		info.AnalyzerReferences = append(info.AnalyzerReferences, solution.AnalyzerReference{FullPath: a})
	}
	return info
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
