// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

func skeleton(name, checksum string) *metadata.Image {
	return &metadata.Image{
		Format:       metadata.ImageFormat,
		AssemblyName: name,
		Language:     "go",
		Skeleton:     true,
		Checksum:     checksum,
		Symbols:      []metadata.Symbol{{Name: "Add", Kind: "function", Signature: "func Add(a, b int) int"}},
	}
}

func TestOpen(t *testing.T) {
	t.Run("persistent requires path", func(t *testing.T) {
		_, err := Open(Config{})
		assert.Error(t, err)
	})

	t.Run("persistent survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		project := uuid.New()

		db, err := Open(DefaultConfig(dir))
		require.NoError(t, err)
		require.NoError(t, NewSkeletonStore(db).Put(ctx, project, skeleton("calc", "abc")))
		require.NoError(t, db.Close())
		require.NoError(t, db.Close())

		db2, err := Open(DefaultConfig(dir))
		require.NoError(t, err)
		defer db2.Close()

		img, ok, err := NewSkeletonStore(db2).Get(ctx, project, "abc")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "calc", img.AssemblyName)
	})
}

func TestSkeletonStore(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, db.InMemory())

	ctx := context.Background()
	store := NewSkeletonStore(db)
	a, b := uuid.New(), uuid.New()

	_, ok, err := store.Get(ctx, a, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, a, skeleton("a", "v1")))
	require.NoError(t, store.Put(ctx, b, skeleton("b", "v1")))

	img, ok, err := store.Get(ctx, a, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", img.AssemblyName)
	assert.True(t, img.Skeleton)

	t.Run("newer surface replaces older", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, a, skeleton("a", "v2")))

		_, ok, err := store.Get(ctx, a, "v1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Get(ctx, a, "v2")
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("full images are rejected", func(t *testing.T) {
		full := skeleton("a", "v3")
		full.Skeleton = false
		assert.Error(t, store.Put(ctx, a, full))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := store.Get(cctx, a, "v2")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
