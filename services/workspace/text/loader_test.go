// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/lock"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// lockedFs reports the file as exclusively locked for the first n opens.
type lockedFs struct {
	afero.Fs
	remaining atomic.Int32
	opens     atomic.Int32
}

func newLockedFs(t *testing.T, path, content string, lockedOpens int) *lockedFs {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, path, []byte(content), 0o644))
	fs := &lockedFs{Fs: mem}
	fs.remaining.Store(int32(lockedOpens))
	return fs
}

func (l *lockedFs) Open(name string) (afero.File, error) {
	l.opens.Add(1)
	if l.remaining.Add(-1) >= 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: lock.ErrFileLocked}
	}
	return l.Fs.Open(name)
}

type failureRecorder struct {
	mu       sync.Mutex
	failures []LoadFailure
}

func (r *failureRecorder) record(f LoadFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *failureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func TestStaticLoader(t *testing.T) {
	before := version.Create()
	l := NewStaticLoader("x := 1", Encoding{}, "a.go")

	tv, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x := 1", tv.Text)
	assert.Equal(t, "UTF-8", tv.Encoding.Name)
	assert.Equal(t, "a.go", l.FilePath())
	assert.True(t, tv.Version.IsNewerThan(before))

	again, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Version.Equal(tv.Version))
}

func TestFileLoader_TransientLock(t *testing.T) {
	const path = "/src/a.go"

	t.Run("lock clears within budget", func(t *testing.T) {
		fs := newLockedFs(t, path, "package a\n", 2)
		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay: time.Millisecond,
			MaxRetries: 3,
			Fs:         fs,
			OnFailure:  rec.record,
		})

		tv, err := factory.FileLoader(path, Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "package a\n", tv.Text)
		assert.Nil(t, tv.Failure)
		assert.Zero(t, rec.count())
		assert.Equal(t, int32(3), fs.opens.Load())
	})

	t.Run("budget exhausted returns empty with one failure", func(t *testing.T) {
		fs := newLockedFs(t, path, "package a\n", 100)
		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay:    time.Millisecond,
			MaxRetries:    3,
			FailurePolicy: ReturnEmpty,
			Fs:            fs,
			OnFailure:     rec.record,
		})

		tv, err := factory.FileLoader(path, Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, tv.Text)
		require.Error(t, tv.Failure)
		assert.ErrorIs(t, tv.Failure, lock.ErrFileLocked)
		require.Equal(t, 1, rec.count())
		assert.Equal(t, 4, rec.failures[0].Attempts)
		assert.Equal(t, int32(4), fs.opens.Load())
	})

	t.Run("budget exhausted returns error under error policy", func(t *testing.T) {
		fs := newLockedFs(t, path, "package a\n", 100)
		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay:    time.Millisecond,
			MaxRetries:    1,
			FailurePolicy: ReturnError,
			Fs:            fs,
			OnFailure:     rec.record,
		})

		_, err := factory.FileLoader(path, Encoding{}).Load(context.Background())
		var failure *LoadFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, path, failure.Path)
		assert.Equal(t, 2, failure.Attempts)
		assert.Equal(t, 1, rec.count())
	})

	t.Run("cancellation during retry raises no failure", func(t *testing.T) {
		fs := newLockedFs(t, path, "package a\n", 100)
		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay: time.Hour,
			MaxRetries: 5,
			Fs:         fs,
			OnFailure:  rec.record,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := factory.FileLoader(path, Encoding{}).Load(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, rec.count())
	})
}

func TestFileLoader_RealFlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	holder, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer holder.Close()
	locker := lock.NewFileLocker()

	t.Run("released lock is tolerated", func(t *testing.T) {
		require.NoError(t, locker.Lock(holder))
		time.AfterFunc(30*time.Millisecond, func() { _ = locker.Unlock(holder) })

		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay: 10 * time.Millisecond,
			MaxRetries: 50,
			OnFailure:  rec.record,
		})
		tv, err := factory.FileLoader(path, Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "package a\n", tv.Text)
		assert.Zero(t, rec.count())
	})

	t.Run("held lock fails once", func(t *testing.T) {
		require.NoError(t, locker.Lock(holder))
		defer locker.Unlock(holder)

		rec := &failureRecorder{}
		factory := NewLoaderFactory(Options{
			RetryDelay: time.Millisecond,
			MaxRetries: 2,
			OnFailure:  rec.record,
		})
		tv, err := factory.FileLoader(path, Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, tv.Text)
		assert.Equal(t, 1, rec.count())
	})
}

func TestFileLoader_Content(t *testing.T) {
	fs := afero.NewMemMapFs()
	modTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, afero.WriteFile(fs, "/p/latin.txt", []byte{'n', 'a', 0xEF, 'v', 'e'}, 0o644))
	require.NoError(t, fs.Chtimes("/p/latin.txt", modTime, modTime))
	require.NoError(t, afero.WriteFile(fs, "/p/utf8.txt", []byte("naïve"), 0o644))

	rec := &failureRecorder{}
	factory := NewLoaderFactory(Options{Fs: fs, MaxRetries: 0, OnFailure: rec.record})

	t.Run("explicit encoding", func(t *testing.T) {
		enc, ok := Explicit(28591, "")
		require.True(t, ok)
		tv, err := factory.FileLoader("/p/latin.txt", enc).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "naïve", tv.Text)
		assert.True(t, tv.Version.Time().Equal(modTime))
	})

	t.Run("inferred utf-8", func(t *testing.T) {
		tv, err := factory.FileLoader("/p/utf8.txt", Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "naïve", tv.Text)
		assert.Equal(t, "/p/utf8.txt", tv.FilePath)
	})

	t.Run("strict utf-8 failure is reported", func(t *testing.T) {
		before := rec.count()
		tv, err := factory.FileLoader("/p/latin.txt", Encoding{}).Load(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, tv.Failure, ErrInvalidEncoding)
		assert.Equal(t, before+1, rec.count())
	})

	t.Run("missing file is not retried", func(t *testing.T) {
		before := rec.count()
		tv, err := factory.FileLoader("/p/missing.txt", Encoding{}).Load(context.Background())
		require.NoError(t, err)
		require.Error(t, tv.Failure)
		assert.ErrorIs(t, tv.Failure, os.ErrNotExist)
		assert.Equal(t, before+1, rec.count())
	})
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("error")
	require.NoError(t, err)
	assert.Equal(t, ReturnError, p)

	p, err = ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReturnEmpty, p)

	_, err = ParseFailurePolicy("explode")
	assert.Error(t, err)
}
