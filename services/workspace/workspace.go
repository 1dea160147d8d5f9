// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace holds the mutable root of the solution model.
//
// A Workspace owns one current solution snapshot. Every accepted edit
// builds a new immutable snapshot and publishes it with a compare-and-swap;
// readers holding older snapshots never observe the change. Change events
// are delivered in order, after the new snapshot is current.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/loader"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/lock"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

// maxApplyAttempts bounds Apply's retries when another edit wins the race.
const maxApplyAttempts = 4

// Workspace is the mutable holder of the current solution.
//
// # Thread Safety
//
// Safe for concurrent use. Edits are serialized; queries read the current
// snapshot without locking.
type Workspace struct {
	opts     Options
	logger   *slog.Logger
	clock    clock.Clock
	texts    *text.LoaderFactory
	loader   loader.ProjectLoader
	cache    *metadata.Cache
	resolver *resolve.Resolver
	gate     *lock.WriteGate
	events   *dispatcher

	current     atomic.Pointer[solution.Solution]
	publication atomic.Uint64
	editMu      sync.Mutex

	stateMu    sync.Mutex
	pathIDs    map[string]solution.ProjectID
	loadFailed map[solution.ProjectID]bool
	watched    map[string]bool

	diagMu      sync.Mutex
	diagnostics []Diagnostic

	closed atomic.Bool
}

// New creates a workspace holding an empty solution.
//
// # Outputs
//
//   - *Workspace: Ready to use. Call Close when done.
//   - error: Non-nil if the write gate cannot be created.
func New(opts Options) (*Workspace, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SupportedChanges == 0 {
		opts.SupportedChanges = DefaultSupportedChanges
	}

	w := &Workspace{
		logger:     opts.Logger.With("component", "workspace"),
		pathIDs:    make(map[string]solution.ProjectID),
		loadFailed: make(map[solution.ProjectID]bool),
		watched:    make(map[string]bool),
	}

	textOpts := opts.Text
	userFailure := textOpts.OnFailure
	textOpts.OnFailure = func(f text.LoadFailure) {
		w.report(Diagnostic{Kind: DiagnosticFailure, Path: f.Path, Err: &f})
		if userFailure != nil {
			userFailure(f)
		}
	}
	if textOpts.Logger == nil {
		textOpts.Logger = opts.Logger
	}
	w.texts = text.NewLoaderFactory(textOpts)
	w.clock = w.texts.Options().Clock

	if opts.Cache == nil {
		opts.Cache = metadata.NewCache(metadata.WithFs(w.texts.Fs()), metadata.WithLogger(opts.Logger))
	}
	if opts.Loader == nil {
		opts.Loader = loader.NewDescriptorLoader(w.texts.Fs(), loader.WithLogger(opts.Logger))
	}
	if opts.Compiler == nil {
		opts.Compiler = syntax.NewTreeSitterCompiler(opts.Logger)
	}
	w.opts = opts
	w.cache = opts.Cache
	w.loader = opts.Loader

	if opts.Persist || opts.Watch {
		gate, err := lock.NewWriteGate(lock.GateConfig{Locker: textOpts.Locker, Watch: opts.Watch}, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating write gate: %w", err)
		}
		w.gate = gate
	}

	w.resolver = resolve.New(resolve.Options{
		Compiler:                          opts.Compiler,
		Cache:                             opts.Cache,
		Store:                             opts.SkeletonStore,
		Policy:                            resolve.Policy{SkipUnresolved: opts.Policy == Lenient},
		LoadMetadataForReferencedProjects: opts.LoadMetadataForReferencedProjects,
		OnUnresolved:                      w.onUnresolved,
		Logger:                            opts.Logger,
	})

	w.events = newDispatcher(func(r interface{}) {
		w.logger.Error("event subscriber panicked", "panic", r)
	})
	w.current.Store(solution.New(solution.NewSolutionID(), ""))
	return w, nil
}

// CurrentSolution returns the current snapshot.
func (w *Workspace) CurrentSolution() *solution.Solution {
	return w.current.Load()
}

// Resolver returns the workspace's reference resolver.
func (w *Workspace) Resolver() *resolve.Resolver { return w.resolver }

// Cache returns the workspace's metadata reference cache.
func (w *Workspace) Cache() *metadata.Cache { return w.cache }

// Options returns the effective options.
func (w *Workspace) Options() Options { return w.opts }

// Compilation returns the compilation of project id in the current solution.
func (w *Workspace) Compilation(ctx context.Context, id solution.ProjectID) (*syntax.Compilation, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	return w.resolver.Compilation(ctx, w.CurrentSolution(), id)
}

// TrySetCurrentSolution replaces old with next if old is still current.
//
// # Description
//
// This is the raw compare-and-swap. No change validation or persistence
// happens, but subscribers are notified with a solution-changed event.
//
// # Outputs
//
//   - bool: False if old is no longer current.
func (w *Workspace) TrySetCurrentSolution(old, next *solution.Solution) bool {
	if w.closed.Load() {
		return false
	}
	w.editMu.Lock()
	defer w.editMu.Unlock()
	if w.current.Load() != old {
		return false
	}
	published := w.publish(old, next)
	w.events.publish(Event{Kind: EventSolutionChanged, OldSolution: old, NewSolution: published})
	return true
}

// publish stamps next with a new publication number and swaps it in for
// old. Caller holds editMu, so old is always current; anything else is a
// writer that bypassed the lock.
func (w *Workspace) publish(old, next *solution.Solution) *solution.Solution {
	published := next.WithWorkspaceVersion(w.publication.Add(1))
	if !w.current.CompareAndSwap(old, published) {
		panic("workspace: current solution replaced without holding editMu")
	}
	w.resolver.Prune(published)
	recordPublish()
	return published
}

// TryApplyChanges makes next the current solution.
//
// # Description
//
// next must be derived from the current solution. Every difference between
// the two is classified and checked against Options.SupportedChanges before
// anything happens. With Options.Persist, changed document texts are
// written to disk through the write gate before the swap. Events follow the
// swap.
//
// # Outputs
//
//   - error: ErrSolutionMismatch for a foreign solution, ErrConcurrentChange
//     when next was forked from a superseded snapshot, *UnsupportedChangeError,
//     a persistence failure, or ErrClosed. On error nothing changed.
func (w *Workspace) TryApplyChanges(ctx context.Context, next *solution.Solution) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.editMu.Lock()
	defer w.editMu.Unlock()

	cur := w.current.Load()
	if next.ID() != cur.ID() {
		return ErrSolutionMismatch
	}
	if next.WorkspaceVersion() != cur.WorkspaceVersion() {
		return ErrConcurrentChange
	}
	if next == cur {
		return nil
	}

	changes := solution.Changes(cur, next)
	if changes.IsEmpty() && next.FilePath() == cur.FilePath() {
		return nil
	}
	kinds := classify(changes)
	if unsupported := kinds &^ w.opts.SupportedChanges; unsupported != 0 {
		recordRejected()
		return &UnsupportedChangeError{Kind: unsupported}
	}

	if w.opts.Persist {
		if err := w.persist(ctx, changes); err != nil {
			return err
		}
	}

	published := w.publish(cur, next)
	w.events.publish(changeEvents(cur, published, changes)...)
	w.logger.Info("changes applied",
		"changes", kinds.String(),
		"workspace_version", published.WorkspaceVersion())
	return nil
}

// Apply runs fn against the current solution and applies the result,
// retrying when another edit lands first.
func (w *Workspace) Apply(ctx context.Context, fn func(*solution.Solution) (*solution.Solution, error)) error {
	for attempt := 1; ; attempt++ {
		next, err := fn(w.CurrentSolution())
		if err != nil {
			return err
		}
		err = w.TryApplyChanges(ctx, next)
		if errors.Is(err, ErrConcurrentChange) && attempt < maxApplyAttempts {
			continue
		}
		return err
	}
}

// classify maps solution differences onto change kinds.
func classify(c solution.SolutionChanges) ChangeKind {
	var k ChangeKind
	if len(c.AddedProjects) > 0 {
		k |= ChangeAddProject
	}
	if len(c.RemovedProjects) > 0 {
		k |= ChangeRemoveProject
	}
	for _, pc := range c.ProjectChanges {
		if len(pc.AddedDocuments) > 0 {
			k |= ChangeAddDocument
		}
		if len(pc.RemovedDocuments) > 0 {
			k |= ChangeRemoveDocument
		}
		if len(pc.AddedAdditionalDocuments) > 0 {
			k |= ChangeAddAdditionalDocument
		}
		if len(pc.RemovedAdditionalDocuments) > 0 {
			k |= ChangeRemoveAdditionalDocument
		}
		if len(pc.AddedProjectReferences) > 0 || len(pc.RemovedProjectReferences) > 0 {
			k |= ChangeProjectReferences
		}
		if len(pc.AddedMetadataReferences) > 0 || len(pc.RemovedMetadataReferences) > 0 {
			k |= ChangeMetadataReferences
		}
		if len(pc.AddedAnalyzerReferences) > 0 || len(pc.RemovedAnalyzerReferences) > 0 {
			k |= ChangeAnalyzerReferences
		}
		if pc.CompilationOptionsChanged {
			k |= ChangeCompilationOptions
		}
		if pc.ParseOptionsChanged {
			k |= ChangeParseOptions
		}
		if pc.AttributesChanged {
			k |= ChangeProjectAttributes
		}
		for _, id := range pc.ChangedDocuments {
			k |= documentChangeKind(pc.Old, pc.New, id)
		}
		if len(pc.ChangedAdditionalDocuments) > 0 {
			k |= ChangeAdditionalDocumentText
		}
	}
	return k
}

func documentChangeKind(oldP, newP *solution.Project, id solution.DocumentID) ChangeKind {
	od, _ := oldP.Document(id)
	nd, _ := newP.Document(id)
	if od.Name() != nd.Name() || od.FilePath() != nd.FilePath() || !equalStrings(od.Folders(), nd.Folders()) {
		return ChangeDocumentInfo
	}
	return ChangeDocumentText
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// changeEvents describes a transition, most specific kind first.
func changeEvents(old, next *solution.Solution, c solution.SolutionChanges) []Event {
	var out []Event
	ev := func(kind EventKind, p solution.ProjectID, d solution.DocumentID) {
		out = append(out, Event{Kind: kind, OldSolution: old, NewSolution: next, ProjectID: p, DocumentID: d})
	}
	for _, id := range c.AddedProjects {
		ev(EventProjectAdded, id, solution.DocumentID{})
	}
	for _, id := range c.RemovedProjects {
		ev(EventProjectRemoved, id, solution.DocumentID{})
	}
	for _, pc := range c.ProjectChanges {
		if !pc.OnlyDocumentTextChanged() {
			ev(EventProjectChanged, pc.ID, solution.DocumentID{})
			continue
		}
		for _, id := range pc.ChangedDocuments {
			ev(EventDocumentChanged, pc.ID, id)
		}
		for _, id := range pc.ChangedAdditionalDocuments {
			ev(EventAdditionalDocumentChanged, pc.ID, id)
		}
	}
	if len(out) == 0 {
		ev(EventSolutionChanged, solution.ProjectID{}, solution.DocumentID{})
	}
	return out
}

// Subscribe registers fn for every event published after the call.
//
// fn runs on the workspace's event goroutine and must not block for long.
// The returned function unsubscribes.
func (w *Workspace) Subscribe(fn func(Event)) (unsubscribe func()) {
	return w.events.subscribe(fn, nil)
}

// SubscribeChannel returns a channel receiving every event published after
// the call. Delivery waits for the reader. The channel is closed when the
// subscription is cancelled or the workspace is closed.
func (w *Workspace) SubscribeChannel(buffer int) (<-chan Event, func()) {
	sink := newChannelSink(buffer)
	cancel := w.events.subscribe(sink.send, sink.shutdown)
	return sink.ch, cancel
}

// Close stops event delivery and file watching. Queued events still reach
// Subscribe callbacks; channels from SubscribeChannel are closed. Safe to
// call more than once.
func (w *Workspace) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if w.gate != nil {
		err = w.gate.Close()
	}
	w.events.close()
	w.logger.Info("workspace closed")
	return err
}
