// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, files map[string]*Image) (*Cache, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, img := range files {
		require.NoError(t, WriteImage(fs, path, img))
	}
	return NewCache(WithFs(fs)), fs
}

func TestAliasSet(t *testing.T) {
	t.Run("order and duplicates do not matter", func(t *testing.T) {
		a := NewAliasSet("B", "A")
		b := NewAliasSet("A", "B", "A", " ")
		assert.True(t, a == b)
		assert.Equal(t, []string{"A", "B"}, a.Aliases())
		assert.Equal(t, 2, a.Len())
	})

	t.Run("empty sets equal the zero value", func(t *testing.T) {
		assert.True(t, NewAliasSet() == AliasSet{})
		assert.True(t, NewAliasSet("", "  ") == AliasSet{})
		assert.True(t, AliasSet{}.IsEmpty())
		assert.Nil(t, AliasSet{}.Aliases())
	})

	t.Run("different sets differ", func(t *testing.T) {
		assert.False(t, NewAliasSet("A") == NewAliasSet("A", "B"))
		assert.True(t, NewAliasSet("A").With("B") == NewAliasSet("B", "A"))
		assert.True(t, NewAliasSet("A", "B").Contains("B"))
		assert.False(t, NewAliasSet("A").Contains("B"))
	})
}

func TestCache_GetOrCreate(t *testing.T) {
	cache, _ := newTestCache(t, map[string]*Image{
		"/lib/util.img": {AssemblyName: "util"},
	})

	t.Run("equal keys share one instance", func(t *testing.T) {
		a := cache.GetOrCreate("/lib/util.img", NewAliasSet("X", "Y"), false)
		b := cache.GetOrCreate("/lib/../lib/util.img", NewAliasSet("Y", "X"), false)
		assert.Same(t, a, b)
	})

	t.Run("alias set changes identity", func(t *testing.T) {
		a := cache.GetOrCreate("/lib/util.img", NewAliasSet("X"), false)
		b := cache.GetOrCreate("/lib/util.img", NewAliasSet("Z"), false)
		c := cache.GetOrCreate("/lib/util.img", NewAliasSet("X"), true)
		assert.NotSame(t, a, b)
		assert.NotSame(t, a, c)
		assert.Same(t, b, a.WithAliases(NewAliasSet("Z")))
	})

	t.Run("alias-distinct references share metadata", func(t *testing.T) {
		ctx := context.Background()
		a := cache.GetOrCreate("/lib/util.img", NewAliasSet("X"), false)
		b := cache.GetOrCreate("/lib/util.img", AliasSet{}, true)

		ma, err := a.Metadata(ctx)
		require.NoError(t, err)
		mb, err := b.Metadata(ctx)
		require.NoError(t, err)
		assert.Same(t, ma, mb)
		assert.Equal(t, "util", ma.Image.AssemblyName)
		assert.Equal(t, int64(1), cache.Stats().MetadataLoads)
	})
}

func TestCache_ConcurrentFirstAccess(t *testing.T) {
	var loads atomic.Int32
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteImage(fs, "/lib/a.img", &Image{AssemblyName: "a"}))

	slowLoad := func(ctx context.Context, fs afero.Fs, path string) (*Metadata, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return LoadImage(ctx, fs, path)
	}
	cache := NewCache(WithFs(fs), WithLoadFunc(slowLoad))

	const workers = 16
	refs := make([]*Reference, workers)
	mds := make([]*Metadata, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			aliases := AliasSet{}
			if i%2 == 0 {
				aliases = NewAliasSet("even")
			}
			refs[i] = cache.GetOrCreate("/lib/a.img", aliases, false)
			md, err := refs[i].Metadata(context.Background())
			if err == nil {
				mds[i] = md
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for i := 2; i < workers; i++ {
		assert.Same(t, refs[i%2], refs[i])
		assert.Same(t, mds[0], mds[i])
	}
	stats := cache.Stats()
	assert.Equal(t, 2, stats.References)
	assert.Equal(t, 1, stats.Paths)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(workers-2), stats.Hits)
}

func TestCache_MetadataErrors(t *testing.T) {
	cache, fs := newTestCache(t, nil)

	t.Run("missing file", func(t *testing.T) {
		_, err := cache.GetOrCreate("/nope.img", AliasSet{}, false).Metadata(context.Background())
		assert.Error(t, err)
	})

	t.Run("corrupt image", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/bad.img", append([]byte("ALIMG\x01"), 0xC1), 0o644))
		_, err := cache.Metadata(context.Background(), "/bad.img")
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("opaque binary", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/lib/native.dll", []byte{0x4D, 0x5A, 0x90}, 0o644))
		md, err := cache.Metadata(context.Background(), "/lib/native.dll")
		require.NoError(t, err)
		assert.Equal(t, "opaque", md.Image.Format)
		assert.Equal(t, "native", md.Image.AssemblyName)
		assert.Len(t, md.Image.Checksum, 64)
	})
}

func TestCache_Revalidate(t *testing.T) {
	cache, fs := newTestCache(t, map[string]*Image{
		"/lib/a.img": {AssemblyName: "a", Checksum: "one"},
	})
	ctx := context.Background()

	first, reloaded, err := cache.Revalidate(ctx, "/lib/a.img")
	require.NoError(t, err)
	assert.False(t, reloaded)

	require.NoError(t, WriteImage(fs, "/lib/a.img", &Image{AssemblyName: "a", Checksum: "two"}))
	later := first.ModTime.Add(time.Minute)
	require.NoError(t, fs.Chtimes("/lib/a.img", later, later))

	second, reloaded, err := cache.Revalidate(ctx, "/lib/a.img")
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, "two", second.Image.Checksum)

	shared, err := cache.Metadata(ctx, "/lib/a.img")
	require.NoError(t, err)
	assert.Same(t, second, shared)
	assert.Equal(t, int64(1), cache.Stats().Reloads)
}

func TestImageCodec(t *testing.T) {
	img := &Image{
		AssemblyName: "core",
		Language:     "go",
		Skeleton:     true,
		Checksum:     "abc",
		Symbols:      []Symbol{{Name: "Run", Kind: "function", Signature: "func Run(ctx context.Context) error"}},
	}
	data, err := EncodeImage(img)
	require.NoError(t, err)
	assert.True(t, IsImage(data))

	got, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, ImageFormat, got.Format)
	assert.Equal(t, img.Symbols, got.Symbols)
	assert.True(t, got.Skeleton)

	_, err = DecodeImage([]byte("plain"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
