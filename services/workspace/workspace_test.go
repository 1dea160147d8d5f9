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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/loader"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const appSource = `package app

func A() int {
	return 1
}
`

const libSource = `package lib

func Helper() string {
	return "help"
}
`

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func newWorkspace(t *testing.T, fs afero.Fs, mutate func(*Options)) *Workspace {
	t.Helper()
	opts := Options{Text: text.Options{Fs: fs, RetryDelay: time.Millisecond}}
	if mutate != nil {
		mutate(&opts)
	}
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func projectByName(t *testing.T, s *solution.Solution, name string) *solution.Project {
	t.Helper()
	p, ok := s.ProjectByName(name)
	require.True(t, ok, "project %s not loaded", name)
	return p
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// danglingFixture lists app, which references a project file that does not exist.
func danglingFixture(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/all.sln.yaml": "projects:\n  - app/app.goproj\n",
		"/ws/app/app.goproj": `sources:
  - app.go
project_references:
  - path: ../missing/missing.goproj
`,
		"/ws/app/app.go": appSource,
	})
	return fs
}

func TestOpenSolution_LenientMissingProject(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, danglingFixture(t), nil)

	sol, err := w.OpenSolution(ctx, "/ws/all.sln.yaml")
	require.NoError(t, err)
	require.Equal(t, 1, sol.ProjectCount())

	app := projectByName(t, sol, "app")
	assert.Empty(t, sol.DependencyGraph().ProjectReferences(app.ID()))
	assert.Len(t, app.AllProjectReferences(), 1)

	diags := w.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticFailure, diags[0].Kind)
	assert.Equal(t, "/ws/missing/missing.goproj", diags[0].Path)
	assert.ErrorIs(t, diags[0].Err, loader.ErrProjectNotFound)

	_, err = w.Compilation(ctx, app.ID())
	require.NoError(t, err)
	assert.Len(t, w.Diagnostics(), 1, "dangling edge to a failed load is reported once")
}

func TestOpenSolution_LenientDiagnosticPerFailure(t *testing.T) {
	fs := danglingFixture(t)
	writeFiles(t, fs, map[string]string{
		"/ws/all.sln.yaml": "projects:\n  - app/app.goproj\n  - ghost/ghost.goproj\n  - notes/notes.txtproj\n",
	})
	w := newWorkspace(t, fs, nil)

	sol, err := w.OpenSolution(context.Background(), "/ws/all.sln.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, sol.ProjectCount())
	assert.Len(t, w.Diagnostics(), 3)
}

func TestOpenSolution_StrictMissingProject(t *testing.T) {
	w := newWorkspace(t, danglingFixture(t), func(o *Options) { o.Policy = Strict })
	before := w.CurrentSolution()

	_, err := w.OpenSolution(context.Background(), "/ws/all.sln.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrProjectNotFound)
	assert.Contains(t, err.Error(), "/ws/missing/missing.goproj")
	assert.Same(t, before, w.CurrentSolution())
	assert.Empty(t, w.Diagnostics())
}

func TestOpenSolution_StrictFailureKeepsWorkspaceState(t *testing.T) {
	ctx := context.Background()
	fs := substitutionFixture(t)
	writeFiles(t, fs, map[string]string{
		"/ws/bad.sln.yaml":         "projects: [app/app.goproj, broken/broken.goproj, ghost/ghost.goproj]\n",
		"/ws/broken/broken.goproj": "sources: [broken.go]\nbuild_error: restore failed\n",
		"/ws/broken/broken.go":     libSource,
	})
	w := newWorkspace(t, fs, func(o *Options) {
		o.Policy = Strict
		o.LoadMetadataForReferencedProjects = true
	})

	sol, err := w.OpenSolution(ctx, "/ws/all.sln.yaml")
	require.NoError(t, err)
	app := projectByName(t, sol, "app")

	_, err = w.OpenSolution(ctx, "/ws/bad.sln.yaml")
	require.ErrorIs(t, err, loader.ErrProjectNotFound)
	assert.Same(t, sol, w.CurrentSolution())
	assert.Empty(t, w.Diagnostics(), "a failed strict open records nothing")

	decisions, err := w.Resolver().Decisions(ctx, sol, app.ID())
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, resolve.DecisionMetadata, decisions[0].Kind)

	comp, err := w.Compilation(ctx, app.ID())
	require.NoError(t, err)
	_, from, ok := comp.LookupSymbol("Helper")
	require.True(t, ok)
	assert.Equal(t, "lib", from)
	assert.Empty(t, w.Diagnostics())
}

func TestOpenSolution_BuildErrorKeepsEmptyProject(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/all.sln.yaml": "projects: [lib.goproj]\n",
		"/ws/lib.goproj":   "sources: [lib.go]\nbuild_error: restore failed\n",
		"/ws/lib.go":       libSource,
	})
	for _, policy := range []LoadPolicy{Lenient, Strict} {
		t.Run(policy.String(), func(t *testing.T) {
			w := newWorkspace(t, fs, func(o *Options) { o.Policy = policy })
			sol, err := w.OpenSolution(context.Background(), "/ws/all.sln.yaml")
			require.NoError(t, err)

			lib := projectByName(t, sol, "lib")
			assert.Zero(t, lib.DocumentCount())
			diags := w.Diagnostics()
			require.Len(t, diags, 1)
			assert.Equal(t, "restore failed", diags[0].Message)
		})
	}
}

func TestOpenSolution_Cycle(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/all.sln.yaml": "projects: [a.goproj, b.goproj]\n",
		"/ws/a.goproj":     "sources: [a.go]\nproject_references: [{path: b.goproj}]\n",
		"/ws/b.goproj":     "sources: [b.go]\nproject_references: [{path: a.goproj}]\n",
		"/ws/a.go":         "package a\n\nfunc A() {}\n",
		"/ws/b.go":         "package b\n\nfunc B() {}\n",
	})
	w := newWorkspace(t, fs, nil)

	sol, err := w.OpenSolution(ctx, "/ws/all.sln.yaml")
	require.NoError(t, err)
	require.Equal(t, 2, sol.ProjectCount())

	a := projectByName(t, sol, "a")
	b := projectByName(t, sol, "b")
	graph := sol.DependencyGraph()
	resolved := len(graph.ProjectReferences(a.ID())) + len(graph.ProjectReferences(b.ID()))
	assert.Equal(t, 1, resolved)
	assert.Len(t, a.AllProjectReferences(), 1)
	assert.Len(t, b.AllProjectReferences(), 1)

	_, err = w.Compilation(ctx, a.ID())
	require.NoError(t, err)
	_, err = w.Compilation(ctx, b.ID())
	require.NoError(t, err)
	assert.Empty(t, w.Diagnostics())
}

func simpleFixture(t *testing.T, fs afero.Fs, dir string) string {
	t.Helper()
	writeFiles(t, fs, map[string]string{
		filepath.Join(dir, "all.sln.yaml"): "projects: [app.goproj]\n",
		filepath.Join(dir, "app.goproj"):   "sources: [app.go]\n",
		filepath.Join(dir, "app.go"):       appSource,
	})
	return filepath.Join(dir, "all.sln.yaml")
}

func TestChangeDocumentText_VersionsAndEvents(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	w := newWorkspace(t, fs, nil)
	sol, err := w.OpenSolution(ctx, simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)

	events, cancel := w.SubscribeChannel(8)
	defer cancel()

	app := projectByName(t, sol, "app")
	docID := app.DocumentIDs()[0]
	oldDoc, _ := sol.Document(docID)

	require.NoError(t, w.ChangeDocumentText(ctx, docID, "package app\n\nfunc A() int { return 2 }\n"))
	next := w.CurrentSolution()

	assert.True(t, next.Version().Equal(sol.Version()))
	nextApp := projectByName(t, next, "app")
	assert.True(t, nextApp.Version().Equal(app.Version()))
	newDoc, _ := next.Document(docID)
	assert.True(t, newDoc.Version().IsNewerThan(oldDoc.Version()))
	assert.True(t, nextApp.LatestDocumentVersion().IsNewerThan(app.LatestDocumentVersion()))

	ev := nextEvent(t, events)
	assert.Equal(t, EventDocumentChanged, ev.Kind)
	assert.Equal(t, docID, ev.DocumentID)
	assert.Same(t, sol, ev.OldSolution)
	assert.Same(t, next, ev.NewSolution)
	assert.True(t, ev.Version().IsNewerThan(Event{NewSolution: sol}.Version()))

	got, err := newDoc.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, got, "return 2")
}

func TestEvents_OrderFollowsPublication(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	w := newWorkspace(t, fs, nil)
	sol, err := w.OpenSolution(ctx, simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)
	docID := projectByName(t, sol, "app").DocumentIDs()[0]

	events, cancel := w.SubscribeChannel(0)
	defer cancel()

	go func() {
		for i := 0; i < 5; i++ {
			_ = w.ChangeDocumentText(ctx, docID, "package app\n")
		}
	}()

	var prev Event
	for i := 0; i < 5; i++ {
		ev := nextEvent(t, events)
		if i > 0 {
			assert.Same(t, prev.NewSolution, ev.OldSolution)
			assert.True(t, ev.Version().IsNewerThan(prev.Version()))
		}
		prev = ev
	}
}

func TestTryApplyChanges_Rejections(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	path := simpleFixture(t, fs, "/ws")

	t.Run("unsupported change leaves state untouched", func(t *testing.T) {
		w := newWorkspace(t, fs, func(o *Options) { o.SupportedChanges = ChangeDocumentText })
		sol, err := w.OpenSolution(ctx, path)
		require.NoError(t, err)
		app := projectByName(t, sol, "app")

		err = w.AddDocument(ctx, solution.DocumentInfo{
			ID:   solution.NewDocumentID(app.ID(), "extra.go"),
			Name: "extra.go",
		})
		var unsupported *UnsupportedChangeError
		require.ErrorAs(t, err, &unsupported)
		assert.True(t, unsupported.Kind.Has(ChangeAddDocument))
		assert.ErrorIs(t, err, ErrUnsupportedChange)
		assert.Same(t, sol, w.CurrentSolution())
	})

	t.Run("additional document add is unsupported by default", func(t *testing.T) {
		w := newWorkspace(t, fs, nil)
		sol, err := w.OpenSolution(ctx, path)
		require.NoError(t, err)
		app := projectByName(t, sol, "app")

		next, err := sol.AddAdditionalDocument(solution.DocumentInfo{
			ID:   solution.NewDocumentID(app.ID(), "notes.txt"),
			Name: "notes.txt",
		})
		require.NoError(t, err)
		assert.ErrorIs(t, w.TryApplyChanges(ctx, next), ErrUnsupportedChange)
		assert.Same(t, sol, w.CurrentSolution())
	})

	t.Run("stale snapshot", func(t *testing.T) {
		w := newWorkspace(t, fs, nil)
		sol, err := w.OpenSolution(ctx, path)
		require.NoError(t, err)
		docID := projectByName(t, sol, "app").DocumentIDs()[0]

		require.NoError(t, w.ChangeDocumentText(ctx, docID, "package app\n"))
		stale, err := sol.WithDocumentText(docID, "package stale\n")
		require.NoError(t, err)
		assert.ErrorIs(t, w.TryApplyChanges(ctx, stale), ErrConcurrentChange)
	})

	t.Run("foreign solution", func(t *testing.T) {
		w := newWorkspace(t, fs, nil)
		foreign := solution.New(solution.NewSolutionID(), "")
		assert.ErrorIs(t, w.TryApplyChanges(ctx, foreign), ErrSolutionMismatch)
	})

	t.Run("unknown document is an argument error", func(t *testing.T) {
		w := newWorkspace(t, fs, nil)
		_, err := w.OpenSolution(ctx, path)
		require.NoError(t, err)
		ghost := solution.NewDocumentID(solution.NewProjectID("ghost"), "ghost.go")
		assert.ErrorIs(t, w.ChangeDocumentText(ctx, ghost, "x"), solution.ErrUnknownDocument)
	})
}

func TestPublish_PanicsWhenCurrentMoved(t *testing.T) {
	w := newWorkspace(t, afero.NewMemMapFs(), nil)
	before := w.CurrentSolution()
	stale := solution.New(solution.NewSolutionID(), "")

	w.editMu.Lock()
	defer w.editMu.Unlock()
	assert.Panics(t, func() { w.publish(stale, stale) })
	assert.Same(t, before, w.CurrentSolution())

	published := w.publish(before, stale)
	assert.Same(t, published, w.CurrentSolution())
}

func TestTrySetCurrentSolution(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWorkspace(t, fs, nil)
	sol, err := w.OpenSolution(context.Background(), simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)

	docID := projectByName(t, sol, "app").DocumentIDs()[0]
	next, err := sol.WithDocumentText(docID, "package app\n")
	require.NoError(t, err)

	assert.True(t, w.TrySetCurrentSolution(sol, next))
	assert.False(t, w.TrySetCurrentSolution(sol, next))
	assert.Equal(t, sol.ID(), w.CurrentSolution().ID())
}

func TestPersist_WritesThroughGate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := afero.NewOsFs()
	w := newWorkspace(t, fs, func(o *Options) { o.Persist = true })

	sol, err := w.OpenSolution(ctx, simpleFixture(t, fs, dir))
	require.NoError(t, err)
	docID := projectByName(t, sol, "app").DocumentIDs()[0]

	const updated = "package app\n\nfunc B() {}\n"
	require.NoError(t, w.ChangeDocumentText(ctx, docID, updated))

	data, err := os.ReadFile(filepath.Join(dir, "app.go"))
	require.NoError(t, err)
	assert.Equal(t, updated, string(data))
}

func TestPersist_KeepsDescriptorEncoding(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := afero.NewOsFs()
	writeFiles(t, fs, map[string]string{
		filepath.Join(dir, "all.sln.yaml"): "projects: [latin.goproj]\n",
		filepath.Join(dir, "latin.goproj"): "sources: [latin.go]\nencoding: ISO-8859-1\n",
		filepath.Join(dir, "latin.go"):     "package latin\n\n// caf\xe9\n",
	})
	w := newWorkspace(t, fs, func(o *Options) { o.Persist = true })

	sol, err := w.OpenSolution(ctx, filepath.Join(dir, "all.sln.yaml"))
	require.NoError(t, err)
	docID := projectByName(t, sol, "latin").DocumentIDs()[0]

	// The original text is never read before the edit.
	require.NoError(t, w.ChangeDocumentText(ctx, docID, "package latin\n\n// café crème\n"))

	data, err := os.ReadFile(filepath.Join(dir, "latin.go"))
	require.NoError(t, err)
	assert.Equal(t, []byte("package latin\n\n// caf\xe9 cr\xe8me\n"), data)

	doc, ok := w.CurrentSolution().Document(docID)
	require.True(t, ok)
	tv, err := doc.TextAndVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "package latin\n\n// café crème\n", tv.Text)
	assert.Equal(t, "ISO-8859-1", tv.Encoding.Name)
}

func TestWatch_ExternalEditReloadsDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := afero.NewOsFs()
	w := newWorkspace(t, fs, func(o *Options) { o.Watch = true })

	sol, err := w.OpenSolution(ctx, simpleFixture(t, fs, dir))
	require.NoError(t, err)
	docID := projectByName(t, sol, "app").DocumentIDs()[0]

	events, cancel := w.SubscribeChannel(8)
	defer cancel()

	const external = "package app\n\nfunc Edited() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.go"), []byte(external), 0o644))

	ev := nextEvent(t, events)
	assert.Equal(t, EventDocumentChanged, ev.Kind)
	assert.Equal(t, docID, ev.DocumentID)

	require.Eventually(t, func() bool {
		doc, ok := w.CurrentSolution().Document(docID)
		if !ok {
			return false
		}
		got, err := doc.Text(ctx)
		return err == nil && got == external
	}, 5*time.Second, 10*time.Millisecond)
}

// substitutionFixture lists app only; app references lib, whose output
// image is newer than its source.
func substitutionFixture(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/all.sln.yaml":   "projects: [app/app.goproj]\n",
		"/ws/app/app.goproj": "sources: [app.go]\nproject_references: [{path: ../lib/lib.goproj}]\n",
		"/ws/app/app.go":     appSource,
		"/ws/lib/lib.goproj": "sources: [lib.go]\noutput_path: out/lib.img\n",
		"/ws/lib/lib.go":     libSource,
	})
	require.NoError(t, metadata.WriteImage(fs, "/ws/lib/out/lib.img", &metadata.Image{
		Format:       metadata.ImageFormat,
		AssemblyName: "lib",
		Language:     "go",
		Symbols:      []metadata.Symbol{{Name: "Helper", Kind: "function", Signature: "func Helper() string"}},
	}))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, fs.Chtimes("/ws/lib/lib.go", old, old))
	return fs
}

func TestMetadataSubstitution_UpgradedOnOpen(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, substitutionFixture(t), func(o *Options) { o.LoadMetadataForReferencedProjects = true })

	sol, err := w.OpenSolution(ctx, "/ws/all.sln.yaml")
	require.NoError(t, err)
	require.Equal(t, 1, sol.ProjectCount())

	app := projectByName(t, sol, "app")
	refs := app.AllProjectReferences()
	require.Len(t, refs, 1)
	assert.Equal(t, "/ws/lib/out/lib.img", refs[0].MetadataPath)

	graph := sol.DependencyGraph()
	assert.Equal(t, solution.EdgeMetadata, graph.EdgeState(app.ID(), refs[0]))
	assert.Len(t, graph.ProjectReferences(app.ID()), 1, "an edge bound to on-disk output is resolved")
	assert.Empty(t, graph.DanglingReferences(app.ID()))

	decisions, err := w.Resolver().Decisions(ctx, sol, app.ID())
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, resolve.DecisionMetadata, decisions[0].Kind)
	assert.Equal(t, "/ws/lib/out/lib.img", decisions[0].MetadataPath)
	assert.Empty(t, w.Diagnostics())

	comp, err := w.Compilation(ctx, app.ID())
	require.NoError(t, err)
	_, from, ok := comp.LookupSymbol("Helper")
	require.True(t, ok)
	assert.Equal(t, "lib", from)

	libID, err := w.OpenProject(ctx, "/ws/lib/lib.goproj")
	require.NoError(t, err)
	assert.Equal(t, refs[0].ProjectID, libID)

	upgraded := w.CurrentSolution()
	require.Equal(t, 2, upgraded.ProjectCount())
	upRefs := projectByName(t, upgraded, "app").AllProjectReferences()
	require.Len(t, upRefs, 1)
	assert.Empty(t, upRefs[0].MetadataPath)
	assert.Equal(t, solution.EdgeResolved, upgraded.DependencyGraph().EdgeState(app.ID(), upRefs[0]))

	decisions, err = w.Resolver().Decisions(ctx, upgraded, app.ID())
	require.NoError(t, err)
	assert.Equal(t, resolve.DecisionCompilation, decisions[0].Kind)

	again, err := w.OpenProject(ctx, "/ws/lib/lib.goproj")
	require.NoError(t, err)
	assert.Equal(t, libID, again)
	assert.Same(t, upgraded, w.CurrentSolution(), "opening an open project changes nothing")
}

func TestMetadataSubstitution_StaleOutputOpensProject(t *testing.T) {
	fs := substitutionFixture(t)
	future := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes("/ws/lib/lib.go", future, future))
	w := newWorkspace(t, fs, func(o *Options) { o.LoadMetadataForReferencedProjects = true })

	sol, err := w.OpenSolution(context.Background(), "/ws/all.sln.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, sol.ProjectCount())
}

func TestApplyPatch(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	w := newWorkspace(t, fs, nil)
	sol, err := w.OpenSolution(ctx, simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)
	docID := projectByName(t, sol, "app").DocumentIDs()[0]

	text := func() string {
		doc, ok := w.CurrentSolution().Document(docID)
		require.True(t, ok)
		s, err := doc.Text(ctx)
		require.NoError(t, err)
		return s
	}

	t.Run("applies with headers", func(t *testing.T) {
		patch := "--- a/app.go\n+++ b/app.go\n@@ -3,3 +3,3 @@\n func A() int {\n-\treturn 1\n+\treturn 2\n }\n"
		require.NoError(t, w.ApplyPatch(ctx, docID, patch))
		assert.Equal(t, "package app\n\nfunc A() int {\n\treturn 2\n}\n", text())
	})

	t.Run("applies bare hunk", func(t *testing.T) {
		patch := "@@ -1,1 +1,1 @@\n-package app\n+package core\n"
		require.NoError(t, w.ApplyPatch(ctx, docID, patch))
		assert.Equal(t, "package core\n\nfunc A() int {\n\treturn 2\n}\n", text())
	})

	t.Run("conflict leaves text unchanged", func(t *testing.T) {
		before := text()
		patch := "@@ -4,1 +4,1 @@\n-\treturn 5\n+\treturn 6\n"
		err := w.ApplyPatch(ctx, docID, patch)
		assert.ErrorIs(t, err, ErrPatchConflict)
		assert.Equal(t, before, text())
	})
}

func TestCloseSolution(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWorkspace(t, fs, nil)
	sol, err := w.OpenSolution(context.Background(), simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)

	events, cancel := w.SubscribeChannel(1)
	defer cancel()
	w.CloseSolution()

	ev := nextEvent(t, events)
	assert.Equal(t, EventSolutionCleared, ev.Kind)
	assert.Same(t, sol, ev.OldSolution)
	assert.Zero(t, w.CurrentSolution().ProjectCount())
}

func TestClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := New(Options{Text: text.Options{Fs: fs}})
	require.NoError(t, err)
	_, err = w.OpenSolution(context.Background(), simpleFixture(t, fs, "/ws"))
	require.NoError(t, err)

	events, _ := w.SubscribeChannel(0)
	var calls int
	w.Subscribe(func(Event) { calls++ })

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-events
	assert.False(t, ok)
	assert.Zero(t, calls)

	_, err = w.OpenSolution(context.Background(), "/ws/all.sln.yaml")
	assert.True(t, errors.Is(err, ErrClosed))
}
