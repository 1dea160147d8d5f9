// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metadata shares binary reference handles across a workspace.
//
// A Reference is identified by (path, alias set, global flag). Equal keys yield
// the same *Reference, and all references to one path share a single parsed
// Metadata value that is loaded at most once.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Metadata is the parsed content of a binary reference.
//
// Immutable after construction.
type Metadata struct {
	Path     string
	Image    *Image
	ModTime  time.Time
	LoadedAt time.Time
}

// LoadFunc parses the binary at path.
type LoadFunc func(ctx context.Context, fs afero.Fs, path string) (*Metadata, error)

// Reference is a shared handle to a binary reference.
//
// # Thread Safety
//
// Immutable; safe for concurrent use.
type Reference struct {
	path    string
	aliases AliasSet
	global  bool
	cache   *Cache
}

// Path returns the absolute, cleaned binary path.
func (r *Reference) Path() string { return r.path }

// Aliases returns the alias set.
func (r *Reference) Aliases() AliasSet { return r.aliases }

// IsGlobal reports whether the reference is visible without an alias opt-in.
func (r *Reference) IsGlobal() bool { return r.global }

// Metadata returns the shared parsed metadata for the reference's path.
func (r *Reference) Metadata(ctx context.Context) (*Metadata, error) {
	return r.cache.Metadata(ctx, r.path)
}

// WithAliases returns the shared reference for the same path with other aliases.
func (r *Reference) WithAliases(aliases AliasSet) *Reference {
	return r.cache.GetOrCreate(r.path, aliases, r.global)
}

func (r *Reference) String() string {
	return fmt.Sprintf("%s%s global=%t", r.path, r.aliases, r.global)
}

type refKey struct {
	path    string
	aliases AliasSet
	global  bool
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Fs     afero.Fs
	Logger *slog.Logger
	Load   LoadFunc
}

// CacheOption is a functional option for configuring Cache.
type CacheOption func(*CacheOptions)

// WithFs sets the filesystem binaries are read from.
func WithFs(fs afero.Fs) CacheOption {
	return func(o *CacheOptions) {
		if fs != nil {
			o.Fs = fs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CacheOption {
	return func(o *CacheOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithLoadFunc replaces the binary parser.
func WithLoadFunc(fn LoadFunc) CacheOption {
	return func(o *CacheOptions) {
		if fn != nil {
			o.Load = fn
		}
	}
}

// CacheStats reports cache activity.
type CacheStats struct {
	References    int
	Paths         int
	Hits          int64
	Misses        int64
	MetadataLoads int64
	Reloads       int64
}

// Cache deduplicates metadata references for one workspace.
//
// # Description
//
// GetOrCreate uses double-checked acquisition: a read-locked lookup serves
// the common case, and only a miss takes the write lock. Metadata loads are
// funnelled through singleflight keyed by path so concurrent first access
// constructs the value once.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	opts   CacheOptions
	logger *slog.Logger

	mu       sync.RWMutex
	refs     map[refKey]*Reference
	metadata map[string]*Metadata
	flight   singleflight.Group

	hits    int64
	misses  int64
	loads   int64
	reloads int64
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	options := CacheOptions{
		Fs:     afero.NewOsFs(),
		Logger: slog.Default(),
		Load:   LoadImage,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Cache{
		opts:     options,
		logger:   options.Logger.With("component", "metadata_cache"),
		refs:     make(map[refKey]*Reference),
		metadata: make(map[string]*Metadata),
	}
}

// GetOrCreate returns the shared reference for (path, aliases, global).
//
// # Inputs
//
//   - path: Binary path. Relative paths are made absolute; the path is cleaned.
//   - aliases: Alias set. Order and duplicates do not matter.
//   - global: Global-alias flag.
//
// # Outputs
//
//   - *Reference: The same pointer for every equal key.
func (c *Cache) GetOrCreate(path string, aliases AliasSet, global bool) *Reference {
	key := refKey{path: normalizePath(path), aliases: aliases, global: global}

	c.mu.RLock()
	ref, ok := c.refs[key]
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		recordCacheHit(context.Background())
		return ref
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.refs[key]; ok {
		atomic.AddInt64(&c.hits, 1)
		recordCacheHit(context.Background())
		return ref
	}

	ref = &Reference{path: key.path, aliases: aliases, global: global, cache: c}
	c.refs[key] = ref
	atomic.AddInt64(&c.misses, 1)
	recordCacheMiss(context.Background())
	c.logger.Debug("created metadata reference",
		"path", key.path,
		"aliases", aliases.String(),
		"global", global)
	return ref
}

// Metadata returns the parsed metadata for path, loading it at most once.
func (c *Cache) Metadata(ctx context.Context, path string) (*Metadata, error) {
	path = normalizePath(path)

	c.mu.RLock()
	md, ok := c.metadata[path]
	c.mu.RUnlock()
	if ok {
		return md, nil
	}

	result, err, _ := c.flight.Do(path, func() (interface{}, error) {
		c.mu.RLock()
		md, ok := c.metadata[path]
		c.mu.RUnlock()
		if ok {
			return md, nil
		}

		md, err := c.load(ctx, path)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.metadata[path] = md
		c.mu.Unlock()
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

// Revalidate reloads metadata for path if the file's modification time no
// longer matches the cached value.
//
// # Outputs
//
//   - *Metadata: Current metadata.
//   - bool: True if a reload happened.
//   - error: Stat or load failure.
func (c *Cache) Revalidate(ctx context.Context, path string) (*Metadata, bool, error) {
	path = normalizePath(path)

	current, err := c.Metadata(ctx, path)
	if err != nil {
		return nil, false, err
	}
	info, err := c.opts.Fs.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.ModTime().Equal(current.ModTime) {
		return current, false, nil
	}

	result, err, _ := c.flight.Do("reload:"+path, func() (interface{}, error) {
		md, err := c.load(ctx, path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.metadata[path] = md
		c.mu.Unlock()
		atomic.AddInt64(&c.reloads, 1)
		return md, nil
	})
	if err != nil {
		return nil, false, err
	}
	c.logger.Info("reloaded stale metadata", "path", path)
	return result.(*Metadata), true, nil
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		References:    len(c.refs),
		Paths:         len(c.metadata),
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		MetadataLoads: atomic.LoadInt64(&c.loads),
		Reloads:       atomic.LoadInt64(&c.reloads),
	}
}

// Fs returns the filesystem the cache reads from.
func (c *Cache) Fs() afero.Fs {
	return c.opts.Fs
}

func (c *Cache) load(ctx context.Context, path string) (*Metadata, error) {
	ctx, span := tracer.Start(ctx, "metadata.Cache.load",
		trace.WithAttributes(attribute.String("metadata.path", path)))
	defer span.End()

	start := time.Now()
	md, err := c.opts.Load(ctx, c.opts.Fs, path)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading metadata %s: %w", path, err)
	}
	atomic.AddInt64(&c.loads, 1)
	recordMetadataLoad(ctx, time.Since(start))
	c.logger.Debug("loaded metadata", "path", path, "duration", time.Since(start))
	return md, nil
}

// LoadImage is the default LoadFunc. Files without the image header load as
// opaque metadata identified by their content hash.
func LoadImage(ctx context.Context, fs afero.Fs, path string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var img *Image
	if IsImage(data) {
		img, err = DecodeImage(data)
		if err != nil {
			return nil, err
		}
	} else {
		img = opaqueImage(path, data)
	}
	return &Metadata{
		Path:     path,
		Image:    img,
		ModTime:  info.ModTime(),
		LoadedAt: time.Now(),
	}, nil
}

func normalizePath(path string) string {
	if path == "" {
		return path
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return filepath.Clean(path)
}
