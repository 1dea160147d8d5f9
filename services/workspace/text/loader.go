// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package text loads source text with its encoding and version.
//
// File-backed loaders tolerate transient exclusive locks held by other writers
// by retrying after a fixed delay, up to a bounded number of retries. When the
// budget runs out exactly one failure notification is raised.
package text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/lock"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// TextAndVersion is the result of a text load.
//
// Failure is set when the load did not produce real content and the loader's
// policy returned empty text instead of an error.
type TextAndVersion struct {
	Text     string
	Encoding Encoding
	Version  version.Stamp
	FilePath string
	Failure  error
}

// Loader produces text for a document.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Loader interface {
	// Load reads the text. May block on I/O.
	Load(ctx context.Context) (TextAndVersion, error)

	// FilePath returns the backing path, or "" for in-memory text.
	FilePath() string
}

// =============================================================================
// StaticLoader
// =============================================================================

// StaticLoader returns fixed in-memory text.
type StaticLoader struct {
	tv TextAndVersion
}

// NewStaticLoader wraps text. The version is created at construction.
func NewStaticLoader(s string, enc Encoding, filePath string) *StaticLoader {
	if enc.IsZero() {
		enc = UTF8
	}
	return &StaticLoader{tv: TextAndVersion{
		Text:     s,
		Encoding: enc,
		Version:  version.Create(),
		FilePath: filePath,
	}}
}

// StaticLoaderFrom wraps an existing TextAndVersion, keeping its version.
func StaticLoaderFrom(tv TextAndVersion) *StaticLoader {
	return &StaticLoader{tv: tv}
}

// Load returns the wrapped text.
func (s *StaticLoader) Load(ctx context.Context) (TextAndVersion, error) {
	if err := ctx.Err(); err != nil {
		return TextAndVersion{}, err
	}
	return s.tv, nil
}

// FilePath returns the path the text claims to come from.
func (s *StaticLoader) FilePath() string {
	return s.tv.FilePath
}

// =============================================================================
// FileLoader
// =============================================================================

// FailurePolicy selects what a FileLoader returns once loading has failed.
type FailurePolicy int

const (
	// ReturnEmpty yields empty text with Failure set and a nil error.
	ReturnEmpty FailurePolicy = iota

	// ReturnError yields a *LoadFailure error.
	ReturnError
)

func (p FailurePolicy) String() string {
	switch p {
	case ReturnEmpty:
		return "empty"
	case ReturnError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "empty" or "error".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "empty":
		return ReturnEmpty, nil
	case "error":
		return ReturnError, nil
	default:
		return ReturnEmpty, fmt.Errorf("unknown failure policy %q", s)
	}
}

const (
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxRetries = 5
)

// Options configures file loaders created by a LoaderFactory.
type Options struct {
	// RetryDelay is the fixed wait between attempts on a locked file.
	RetryDelay time.Duration

	// MaxRetries bounds retries after the first attempt. Zero disables retrying.
	MaxRetries int

	FailurePolicy FailurePolicy

	// Fs is the filesystem to read from. Nil uses the OS filesystem.
	Fs afero.Fs

	// Locker probes for exclusive writers. Nil uses the platform locker.
	// Probing only happens when Fs returns *os.File handles.
	Locker lock.FileLocker

	Clock clock.Clock

	// OnFailure is invoked once per failed Load.
	OnFailure func(LoadFailure)

	Logger *slog.Logger
}

// DefaultOptions returns options with the default retry budget.
func DefaultOptions() Options {
	return Options{
		RetryDelay:    DefaultRetryDelay,
		MaxRetries:    DefaultMaxRetries,
		FailurePolicy: ReturnEmpty,
	}
}

// LoaderFactory creates FileLoaders sharing one set of options.
type LoaderFactory struct {
	opts Options
}

// NewLoaderFactory applies defaults to opts and returns a factory.
func NewLoaderFactory(opts Options) *LoaderFactory {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewFileLocker()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LoaderFactory{opts: opts}
}

// Options returns the effective options.
func (f *LoaderFactory) Options() Options {
	return f.opts
}

// Fs returns the filesystem loaders read from.
func (f *LoaderFactory) Fs() afero.Fs {
	return f.opts.Fs
}

// FileLoader returns a loader for path. A zero explicit encoding means the
// encoding is inferred.
func (f *LoaderFactory) FileLoader(path string, explicit Encoding) *FileLoader {
	return &FileLoader{
		path:     path,
		explicit: explicit,
		opts:     f.opts,
		logger:   f.opts.Logger.With("component", "text_loader"),
	}
}

// FileLoader reads text from a file.
//
// # Thread Safety
//
// Safe for concurrent use. Each Load is independent; nothing is cached.
type FileLoader struct {
	path     string
	explicit Encoding
	opts     Options
	logger   *slog.Logger
}

// Explicit returns the caller-selected encoding, or the zero Encoding
// when the loader detects it.
func (l *FileLoader) Explicit() Encoding {
	return l.explicit
}

// FilePath returns the file path.
func (l *FileLoader) FilePath() string {
	return l.path
}

// Load reads and decodes the file.
//
// # Description
//
// Each attempt probes for an exclusive writer with a shared advisory lock and
// reads the file. An attempt that fails with lock.ErrFileLocked is retried
// after RetryDelay while retries remain. Any other error, an exhausted budget,
// or undecodable content ends the load with a single OnFailure call, and the
// result follows FailurePolicy. Context cancellation returns ctx.Err()
// without a failure notification.
//
// # Outputs
//
//   - TextAndVersion: Text, encoding, and a version stamped at the file's
//     modification time.
//   - error: *LoadFailure under ReturnError, or the context error.
func (l *FileLoader) Load(ctx context.Context) (TextAndVersion, error) {
	attempt := 0
	for {
		attempt++
		tv, err := l.readOnce(ctx)
		if err == nil {
			recordLoad(ctx, attempt)
			return tv, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TextAndVersion{}, ctxErr
		}

		if errors.Is(err, lock.ErrFileLocked) && attempt <= l.opts.MaxRetries {
			l.logger.Warn("file locked, retrying",
				"path", l.path,
				"attempt", attempt,
				"delay", l.opts.RetryDelay)
			recordRetry(ctx)
			select {
			case <-ctx.Done():
				return TextAndVersion{}, ctx.Err()
			case <-l.opts.Clock.After(l.opts.RetryDelay):
			}
			continue
		}

		return l.fail(ctx, &LoadFailure{Path: l.path, Attempts: attempt, Err: err})
	}
}

func (l *FileLoader) fail(ctx context.Context, failure *LoadFailure) (TextAndVersion, error) {
	l.logger.Error("text load failed",
		"path", l.path,
		"attempts", failure.Attempts,
		"error", failure.Err)
	recordFailure(ctx)
	if l.opts.OnFailure != nil {
		l.opts.OnFailure(*failure)
	}

	if l.opts.FailurePolicy == ReturnError {
		return TextAndVersion{FilePath: l.path, Failure: failure}, failure
	}
	return TextAndVersion{
		Text:     "",
		Encoding: UTF8,
		Version:  version.Create(),
		FilePath: l.path,
		Failure:  failure,
	}, nil
}

func (l *FileLoader) readOnce(ctx context.Context) (TextAndVersion, error) {
	if err := ctx.Err(); err != nil {
		return TextAndVersion{}, err
	}

	f, err := l.opts.Fs.Open(l.path)
	if err != nil {
		return TextAndVersion{}, err
	}
	defer f.Close()

	if osFile, ok := f.(*os.File); ok {
		if err := l.opts.Locker.TryRLock(osFile); err != nil {
			if errors.Is(err, lock.ErrFileLocked) {
				return TextAndVersion{}, err
			}
			l.logger.Debug("lock probe unavailable", "path", l.path, "error", err)
		} else {
			defer func() { _ = l.opts.Locker.Unlock(osFile) }()
		}
	}

	info, err := f.Stat()
	if err != nil {
		return TextAndVersion{}, fmt.Errorf("stat %s: %w", l.path, err)
	}
	if info.IsDir() {
		return TextAndVersion{}, fmt.Errorf("%s is a directory", l.path)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return TextAndVersion{}, fmt.Errorf("reading %s: %w", l.path, err)
	}

	s, enc, err := Decode(data, l.explicit)
	if err != nil {
		return TextAndVersion{}, fmt.Errorf("%s: %w", filepath.Base(l.path), err)
	}

	return TextAndVersion{
		Text:     s,
		Encoding: enc,
		Version:  version.CreateAt(info.ModTime()),
		FilePath: l.path,
	}, nil
}
