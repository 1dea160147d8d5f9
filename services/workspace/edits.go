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
	"fmt"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/lock"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

// ChangeDocumentText replaces the text of a document in the current solution.
func (w *Workspace) ChangeDocumentText(ctx context.Context, id solution.DocumentID, newText string) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.WithDocumentText(id, newText)
	})
}

// AddDocument adds a document to its project in the current solution.
func (w *Workspace) AddDocument(ctx context.Context, info solution.DocumentInfo) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.AddDocument(info)
	})
}

// RemoveDocument removes a document from the current solution.
func (w *Workspace) RemoveDocument(ctx context.Context, id solution.DocumentID) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.RemoveDocument(id)
	})
}

// AddProject adds a project to the current solution.
func (w *Workspace) AddProject(ctx context.Context, info solution.ProjectInfo) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.AddProject(info)
	})
}

// RemoveProject removes a project from the current solution. References to
// it from other projects become dangling.
func (w *Workspace) RemoveProject(ctx context.Context, id solution.ProjectID) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.RemoveProject(id)
	})
}

// AddProjectReference adds a project-to-project reference.
func (w *Workspace) AddProjectReference(ctx context.Context, from solution.ProjectID, ref solution.ProjectReference) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.AddProjectReference(from, ref)
	})
}

// RemoveProjectReference removes a project-to-project reference.
func (w *Workspace) RemoveProjectReference(ctx context.Context, from solution.ProjectID, ref solution.ProjectReference) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.RemoveProjectReference(from, ref)
	})
}

// AddMetadataReference references a compiled image at path, sharing the
// reference object with every other project that uses the same path and
// aliases.
func (w *Workspace) AddMetadataReference(ctx context.Context, id solution.ProjectID, path string, aliases ...string) error {
	ref := w.cache.GetOrCreate(path, metadata.NewAliasSet(aliases...), false)
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.AddMetadataReference(id, ref)
	})
}

// RemoveMetadataReference removes a metadata reference.
func (w *Workspace) RemoveMetadataReference(ctx context.Context, id solution.ProjectID, ref *metadata.Reference) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.RemoveMetadataReference(id, ref)
	})
}

// AddAnalyzerReference adds an analyzer reference.
func (w *Workspace) AddAnalyzerReference(ctx context.Context, id solution.ProjectID, ref solution.AnalyzerReference) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.AddAnalyzerReference(id, ref)
	})
}

// RemoveAnalyzerReference removes an analyzer reference.
func (w *Workspace) RemoveAnalyzerReference(ctx context.Context, id solution.ProjectID, ref solution.AnalyzerReference) error {
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		return s.RemoveAnalyzerReference(id, ref)
	})
}

// Emit writes the compiled image of project id to its output path.
func (w *Workspace) Emit(ctx context.Context, id solution.ProjectID) (string, error) {
	if w.closed.Load() {
		return "", ErrClosed
	}
	return w.resolver.Emit(ctx, w.CurrentSolution(), id)
}

// EmitAll writes every project with an output path, dependencies first.
func (w *Workspace) EmitAll(ctx context.Context) ([]string, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	return w.resolver.EmitAll(ctx, w.CurrentSolution())
}

// persist writes changed and added document texts through the write gate.
// Caller holds editMu.
func (w *Workspace) persist(ctx context.Context, c solution.SolutionChanges) error {
	for _, pc := range c.ProjectChanges {
		ids := append(append([]solution.DocumentID(nil), pc.ChangedDocuments...), pc.AddedDocuments...)
		for _, id := range ids {
			doc, ok := pc.New.Document(id)
			if !ok || doc.FilePath() == "" {
				continue
			}
			if old, ok := pc.Old.Document(id); ok && old.Loader() == doc.Loader() {
				continue
			}
			tv, err := doc.TextAndVersion(ctx)
			if err != nil {
				return err
			}
			data, err := text.Encode(tv.Text, tv.Encoding)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", doc.FilePath(), err)
			}
			if err := w.gate.WriteFile(ctx, doc.FilePath(), data, 0o644); err != nil {
				return fmt.Errorf("persisting %s: %w", doc.FilePath(), err)
			}
		}
	}
	return nil
}

// watch starts observing path for external edits.
func (w *Workspace) watch(path string) {
	if w.gate == nil || !w.opts.Watch {
		return
	}
	w.stateMu.Lock()
	if w.watched[path] {
		w.stateMu.Unlock()
		return
	}
	w.watched[path] = true
	w.stateMu.Unlock()

	if err := w.gate.Watch(path, w.onExternalChange); err != nil {
		w.logger.Warn("cannot watch document", "path", path, "error", err)
	}
}

// onExternalChange reloads every document backed by the changed file.
func (w *Workspace) onExternalChange(ev lock.ExternalChangeEvent) {
	if ev.EventType != lock.ChangeWrite && ev.EventType != lock.ChangeCreate {
		return
	}
	if w.closed.Load() {
		return
	}
	w.editMu.Lock()
	defer w.editMu.Unlock()

	cur := w.current.Load()
	ids := cur.DocumentIDsWithFilePath(ev.Path)
	if len(ids) == 0 {
		return
	}
	next := cur
	for _, id := range ids {
		doc, _ := next.Document(id)
		var explicit text.Encoding
		if fl, ok := doc.Loader().(*text.FileLoader); ok {
			explicit = fl.Explicit()
		}
		updated, err := next.WithDocumentTextLoader(id, w.texts.FileLoader(ev.Path, explicit))
		if err != nil {
			w.logger.Warn("cannot reload document", "path", ev.Path, "error", err)
			return
		}
		next = updated
	}
	published := w.publish(cur, next)
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, Event{
			Kind:        EventDocumentChanged,
			OldSolution: cur,
			NewSolution: published,
			ProjectID:   id.ProjectID(),
			DocumentID:  id,
		})
	}
	w.events.publish(events...)
	w.logger.Info("document changed on disk", "path", ev.Path, "documents", len(ids))
}

// onUnresolved records a diagnostic for a dangling edge the first time a
// compilation meets it, unless loading already reported the target.
func (w *Workspace) onUnresolved(u resolve.Unresolved) {
	w.stateMu.Lock()
	reported := w.loadFailed[u.To]
	w.stateMu.Unlock()
	if reported {
		return
	}
	w.report(Diagnostic{
		Kind:      DiagnosticWarning,
		Message:   fmt.Sprintf("reference from %s to %s cannot be resolved", u.From, u.To),
		ProjectID: u.From,
	})
}
