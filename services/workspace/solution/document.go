// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solution

import (
	"context"
	"errors"
	"sync"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// DocumentInfo describes a document to add to a project.
type DocumentInfo struct {
	ID       DocumentID
	Name     string
	Folders  []string
	FilePath string

	// Loader supplies the text. Nil means empty in-memory text.
	Loader text.Loader

	IsGenerated bool
}

// Document is an immutable snapshot of one source document.
//
// # Description
//
// Text is resolved lazily through the document's loader on first request and
// memoized for the lifetime of this snapshot. Every With operation returns a
// new Document with the same id and a newer version; the receiver is unchanged.
//
// # Thread Safety
//
// Safe for concurrent use.
type Document struct {
	id          DocumentID
	name        string
	folders     []string
	filePath    string
	language    string
	isGenerated bool
	version     version.Stamp
	text        *lazyText
}

func newDocument(info DocumentInfo, language string) *Document {
	loader := info.Loader
	if loader == nil {
		loader = text.NewStaticLoader("", text.Encoding{}, info.FilePath)
	}
	name := info.Name
	if name == "" {
		name = info.ID.DebugName()
	}
	return &Document{
		id:          info.ID,
		name:        name,
		folders:     cloneStrings(info.Folders),
		filePath:    info.FilePath,
		language:    language,
		isGenerated: info.IsGenerated,
		version:     version.Create(),
		text:        &lazyText{loader: loader},
	}
}

func (d *Document) ID() DocumentID { return d.id }

func (d *Document) ProjectID() ProjectID { return d.id.project }

func (d *Document) Name() string { return d.name }

// Folders returns the logical folder segments. The slice must not be modified.
func (d *Document) Folders() []string { return d.folders }

// FilePath returns the backing path, or "" for in-memory documents.
func (d *Document) FilePath() string { return d.filePath }

func (d *Document) Language() string { return d.language }

func (d *Document) IsGenerated() bool { return d.isGenerated }

// Version returns the version of this snapshot of the document.
func (d *Document) Version() version.Stamp { return d.version }

// Loader returns the text loader.
func (d *Document) Loader() text.Loader { return d.text.loader }

// TextAndVersion resolves the document text. May block on I/O.
func (d *Document) TextAndVersion(ctx context.Context) (text.TextAndVersion, error) {
	return d.text.get(ctx)
}

// Text resolves the document text. May block on I/O.
func (d *Document) Text(ctx context.Context) (string, error) {
	tv, err := d.text.get(ctx)
	if err != nil {
		return "", err
	}
	return tv.Text, nil
}

// TryGetText returns the text if it has already been resolved.
func (d *Document) TryGetText() (string, bool) {
	tv, ok := d.text.peek()
	if !ok {
		return "", false
	}
	return tv.Text, true
}

// WithText returns a document holding s in the encoding of the text it
// replaces. When that text was never read, the encoding is resolved from
// the previous loader on first use of the new text.
func (d *Document) WithText(s string) *Document {
	v := version.Create()
	out := d.clone(v)
	replaced := text.TextAndVersion{Text: s, Version: v, FilePath: d.filePath}
	if tv, ok := d.text.peek(); ok {
		replaced.Encoding = tv.Encoding
		if replaced.Encoding.IsZero() {
			replaced.Encoding = text.UTF8
		}
		out.text = &lazyText{loader: text.StaticLoaderFrom(replaced)}
		return out
	}
	out.text = &lazyText{loader: &inheritedText{replaced: replaced, previous: d.text}}
	return out
}

// WithLoader returns a document whose text is resolved by loader.
func (d *Document) WithLoader(loader text.Loader) *Document {
	out := d.clone(version.Create())
	out.text = &lazyText{loader: loader}
	return out
}

func (d *Document) WithName(name string) *Document {
	out := d.clone(version.Create())
	out.name = name
	return out
}

func (d *Document) WithFolders(folders []string) *Document {
	out := d.clone(version.Create())
	out.folders = cloneStrings(folders)
	return out
}

func (d *Document) WithFilePath(path string) *Document {
	out := d.clone(version.Create())
	out.filePath = path
	return out
}

func (d *Document) clone(v version.Stamp) *Document {
	out := *d
	out.version = v
	return &out
}

// lazyText memoizes a loader result. Context errors are not memoized so a
// cancelled caller does not poison later requests. One load runs at a time;
// other callers wait for it or for their own ctx.
type lazyText struct {
	loader text.Loader

	mu      sync.Mutex
	done    bool
	loading chan struct{}
	tv      text.TextAndVersion
	err     error
}

func (l *lazyText) get(ctx context.Context) (text.TextAndVersion, error) {
	for {
		l.mu.Lock()
		if l.done {
			tv, err := l.tv, l.err
			l.mu.Unlock()
			return tv, err
		}
		if wait := l.loading; wait != nil {
			l.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return text.TextAndVersion{}, ctx.Err()
			}
		}
		loading := make(chan struct{})
		l.loading = loading
		l.mu.Unlock()

		tv, err := l.loader.Load(ctx)

		l.mu.Lock()
		l.loading = nil
		cancelled := err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
		if !cancelled {
			l.tv, l.err, l.done = tv, err, true
		}
		l.mu.Unlock()
		close(loading)

		if cancelled {
			return text.TextAndVersion{}, err
		}
		return tv, err
	}
}

func (l *lazyText) peek() (text.TextAndVersion, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done || l.err != nil {
		return text.TextAndVersion{}, false
	}
	return l.tv, true
}

// inheritedText is replacement text whose encoding is taken from the text
// it replaced, read from previous on first load.
type inheritedText struct {
	replaced text.TextAndVersion

	mu       sync.Mutex
	previous *lazyText
}

func (t *inheritedText) Load(ctx context.Context) (text.TextAndVersion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.previous == nil {
		return t.replaced, nil
	}

	enc := text.UTF8
	tv, err := t.previous.get(ctx)
	switch {
	case err == nil && !tv.Encoding.IsZero():
		enc = tv.Encoding
	case ctx.Err() != nil:
		return text.TextAndVersion{}, ctx.Err()
	default:
		if fl, ok := t.previous.loader.(*text.FileLoader); ok && !fl.Explicit().IsZero() {
			enc = fl.Explicit()
		}
	}
	t.replaced.Encoding = enc
	t.previous = nil
	return t.replaced, nil
}

func (t *inheritedText) FilePath() string { return t.replaced.FilePath }

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
