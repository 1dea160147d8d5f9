// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WriteGate serializes file writes per path and reports external edits.
//
// # Description
//
// Every write through the gate holds a per-path mutex for its duration and
// an exclusive advisory lock on the file, so concurrent writers inside the
// process queue up and readers probing with TryRLock see the write in
// progress. When watching is enabled, parent directories of watched files
// are registered with fsnotify; a change whose content differs from the
// gate's own last write is delivered to the registered callbacks.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type WriteGate struct {
	locker FileLocker
	logger *slog.Logger

	mu      sync.Mutex
	paths   map[string]*pathEntry
	written map[string][sha256.Size]byte
	closed  bool

	watcher   *fsnotify.Watcher
	watchMu   sync.Mutex
	dirs      map[string]int
	callbacks map[string][]func(ExternalChangeEvent)
	loopDone  chan struct{}
}

type pathEntry struct {
	mu   sync.Mutex
	refs int
}

// NewWriteGate creates a write gate.
//
// # Inputs
//
//   - config: Gate configuration.
//   - logger: Logger; nil uses slog.Default().
//
// # Outputs
//
//   - *WriteGate: Ready-to-use gate. Call Close when done.
//   - error: Non-nil if the file watcher cannot be created.
func NewWriteGate(config GateConfig, logger *slog.Logger) (*WriteGate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	locker := config.Locker
	if locker == nil {
		locker = NewFileLocker()
	}

	g := &WriteGate{
		locker:    locker,
		logger:    logger.With("component", "write_gate"),
		paths:     make(map[string]*pathEntry),
		written:   make(map[string][sha256.Size]byte),
		dirs:      make(map[string]int),
		callbacks: make(map[string][]func(ExternalChangeEvent)),
	}

	if config.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating file watcher: %w", err)
		}
		g.watcher = watcher
		g.loopDone = make(chan struct{})
		go g.watchLoop()
	}

	return g, nil
}

// WriteFile replaces the file's contents while holding the path's write slot.
//
// # Description
//
// Opens (creating if needed) the file, takes an exclusive advisory lock,
// truncates and writes data, then syncs. Writes to the same path are
// serialized; writes to different paths proceed concurrently.
//
// # Inputs
//
//   - ctx: Cancellation is checked before the write starts.
//   - path: File path.
//   - data: New contents.
//   - perm: Permission bits used when the file is created.
//
// # Outputs
//
//   - error: FileLockError wrapping ErrFileLocked when another holder owns the
//     lock, ErrGateClosed after Close, or the underlying I/O error.
func (g *WriteGate) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	entry, err := g.acquire(absPath)
	if err != nil {
		return err
	}
	defer g.release(absPath, entry)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", absPath, err)
	}

	f, err := os.OpenFile(absPath, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		return fmt.Errorf("opening %s: %w", absPath, err)
	}
	defer f.Close()

	if err := g.locker.Lock(f); err != nil {
		if errors.Is(err, ErrFileLocked) {
			return &FileLockError{Path: absPath, Op: "write", Err: ErrFileLocked}
		}
		return fmt.Errorf("locking %s: %w", absPath, err)
	}
	defer func() {
		if err := g.locker.Unlock(f); err != nil {
			g.logger.Warn("failed to unlock file", "path", absPath, "error", err)
		}
	}()

	g.mu.Lock()
	g.written[absPath] = sha256.Sum256(data)
	g.mu.Unlock()

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", absPath, err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing %s: %w", absPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", absPath, err)
	}

	g.logger.Debug("wrote file", "path", absPath, "bytes", len(data))
	return nil
}

// Remove deletes the file while holding the path's write slot.
func (g *WriteGate) Remove(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	entry, err := g.acquire(absPath)
	if err != nil {
		return err
	}
	defer g.release(absPath, entry)

	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.written, absPath)
	g.mu.Unlock()

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", absPath, err)
	}
	return nil
}

// Watch registers a callback for external changes to path.
//
// # Description
//
// Watches the parent directory so editors that save via rename are seen.
// A no-op (returning nil) when the gate was created without Watch.
func (g *WriteGate) Watch(path string, callback func(ExternalChangeEvent)) error {
	if g.watcher == nil {
		return nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	g.watchMu.Lock()
	defer g.watchMu.Unlock()

	dir := filepath.Dir(absPath)
	if g.dirs[dir] == 0 {
		if err := g.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	if len(g.callbacks[absPath]) == 0 {
		g.dirs[dir]++
	}
	g.callbacks[absPath] = append(g.callbacks[absPath], callback)
	return nil
}

// Unwatch removes all callbacks for path.
func (g *WriteGate) Unwatch(path string) error {
	if g.watcher == nil {
		return nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	g.watchMu.Lock()
	defer g.watchMu.Unlock()

	if _, ok := g.callbacks[absPath]; !ok {
		return ErrNotWatched
	}
	delete(g.callbacks, absPath)

	dir := filepath.Dir(absPath)
	g.dirs[dir]--
	if g.dirs[dir] <= 0 {
		delete(g.dirs, dir)
		if err := g.watcher.Remove(dir); err != nil {
			g.logger.Debug("directory was not being watched", "dir", dir)
		}
	}
	return nil
}

// Close stops the watcher and rejects further writes.
//
// In-flight writes complete. Close waits for the watch loop to exit.
func (g *WriteGate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	if g.watcher == nil {
		return nil
	}
	err := g.watcher.Close()
	<-g.loopDone
	return err
}

// =============================================================================
// Internal helpers
// =============================================================================

func (g *WriteGate) acquire(absPath string) (*pathEntry, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrGateClosed
	}
	entry, ok := g.paths[absPath]
	if !ok {
		entry = &pathEntry{}
		g.paths[absPath] = entry
	}
	entry.refs++
	g.mu.Unlock()

	entry.mu.Lock()
	return entry, nil
}

func (g *WriteGate) release(absPath string, entry *pathEntry) {
	entry.mu.Unlock()

	g.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(g.paths, absPath)
	}
	g.mu.Unlock()
}

func (g *WriteGate) watchLoop() {
	defer close(g.loopDone)
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			g.handleWatchEvent(event)

		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			g.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (g *WriteGate) handleWatchEvent(event fsnotify.Event) {
	var changeType ChangeType
	switch {
	case event.Op&fsnotify.Write != 0:
		changeType = ChangeWrite
	case event.Op&fsnotify.Create != 0:
		changeType = ChangeCreate
	case event.Op&fsnotify.Remove != 0:
		changeType = ChangeDelete
	case event.Op&fsnotify.Rename != 0:
		changeType = ChangeRename
	default:
		return
	}

	absPath, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	g.watchMu.Lock()
	callbacks := append([]func(ExternalChangeEvent){}, g.callbacks[absPath]...)
	g.watchMu.Unlock()
	if len(callbacks) == 0 {
		return
	}

	if changeType == ChangeWrite || changeType == ChangeCreate {
		if g.isOwnWrite(absPath) {
			return
		}
	}

	g.logger.Info("external modification detected", "path", absPath, "event", changeType.String())

	changeEvent := ExternalChangeEvent{Path: absPath, EventType: changeType}
	for _, cb := range callbacks {
		g.invoke(cb, changeEvent)
	}
}

// isOwnWrite reports whether a gate write to the path is in progress or the
// file currently holds the bytes the gate last wrote.
func (g *WriteGate) isOwnWrite(absPath string) bool {
	g.mu.Lock()
	_, busy := g.paths[absPath]
	sum, ok := g.written[absPath]
	g.mu.Unlock()
	if busy {
		return true
	}
	if !ok {
		return false
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return false
	}
	current := sha256.Sum256(data)
	return bytes.Equal(current[:], sum[:])
}

func (g *WriteGate) invoke(cb func(ExternalChangeEvent), event ExternalChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("external change callback panicked", "path", event.Path, "panic", r)
		}
	}()
	cb(event)
}
