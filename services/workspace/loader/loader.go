// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loader reads evaluated project and solution descriptors.
//
// A descriptor is the flat output of a build evaluation: source files,
// references and compiler switches. Project descriptors are YAML files whose
// extension selects the language (.goproj, .pyproj, ...). Solutions are
// .sln.yaml files listing project descriptor paths.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// SolutionExtension is the suffix of solution descriptors.
const SolutionExtension = ".sln.yaml"

// DefaultExtensions maps project descriptor extensions to languages.
var DefaultExtensions = map[string]string{
	".goproj": "go",
	".pyproj": "python",
	".csproj": "csharp",
	".vbproj": "vb",
	".fsproj": "fsharp",
}

// ProjectLoader produces descriptors from paths.
type ProjectLoader interface {
	// LoadProject reads one project descriptor. A *BuildError is returned
	// together with a descriptor that has no sources.
	LoadProject(ctx context.Context, path string) (*ProjectDescriptor, error)

	// LoadSolution reads a solution descriptor.
	LoadSolution(ctx context.Context, path string) (*SolutionDescriptor, error)

	// IsProjectFile reports whether path names a project descriptor.
	IsProjectFile(path string) bool
}

// Option configures a DescriptorLoader.
type Option func(*DescriptorLoader)

// WithExtensions replaces the extension to language table.
func WithExtensions(ext map[string]string) Option {
	return func(l *DescriptorLoader) {
		l.extensions = make(map[string]string, len(ext))
		for k, v := range ext {
			l.extensions[strings.ToLower(k)] = v
		}
	}
}

// WithSupportedLanguages sets the languages the host can compile. Project
// types for other languages fail with ErrUnsupportedProjectType.
func WithSupportedLanguages(languages ...string) Option {
	return func(l *DescriptorLoader) {
		l.supported = make(map[string]bool, len(languages))
		for _, lang := range languages {
			l.supported[strings.ToLower(lang)] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *DescriptorLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// DescriptorLoader implements ProjectLoader over an afero filesystem.
//
// # Thread Safety
//
// Safe for concurrent use.
type DescriptorLoader struct {
	fs         afero.Fs
	extensions map[string]string
	supported  map[string]bool
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewDescriptorLoader returns a loader reading from fs. Go and Python are
// supported unless WithSupportedLanguages says otherwise.
func NewDescriptorLoader(fs afero.Fs, opts ...Option) *DescriptorLoader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &DescriptorLoader{
		fs:       fs,
		validate: validator.New(),
		logger:   slog.Default(),
	}
	WithExtensions(DefaultExtensions)(l)
	WithSupportedLanguages("go", "python")(l)
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// Fs returns the loader's filesystem.
func (l *DescriptorLoader) Fs() afero.Fs { return l.fs }

// IsProjectFile reports whether path has a known project extension.
func (l *DescriptorLoader) IsProjectFile(path string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LanguageOf returns the language of a project descriptor path.
//
// # Outputs
//
//   - string: The language.
//   - error: ErrUnrecognizedExtension or ErrUnsupportedProjectType.
func (l *DescriptorLoader) LanguageOf(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := l.extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedExtension, ext)
	}
	if !l.supported[lang] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProjectType, lang)
	}
	return lang, nil
}

// LoadProject reads, validates and normalizes a project descriptor.
//
// # Description
//
// Relative paths are made absolute against the descriptor directory. A
// missing name defaults to the file name without extension. A Go project
// without an assembly name takes the module path of the nearest go.mod in
// its directory. A descriptor carrying build_error is returned without
// sources alongside a *BuildError.
//
// # Outputs
//
//   - *ProjectDescriptor: The descriptor, also returned with *BuildError.
//   - error: *LoadError (ErrProjectNotFound, ErrUnrecognizedExtension,
//     ErrUnsupportedProjectType, ErrInvalidDescriptor), *BuildError, or ctx.Err().
func (l *DescriptorLoader) LoadProject(ctx context.Context, path string) (*ProjectDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = absPath(path)

	lang, err := l.LanguageOf(path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedProjectType) {
			return nil, loadErr(path, ErrUnsupportedProjectType, err)
		}
		return nil, loadErr(path, ErrUnrecognizedExtension, err)
	}

	var desc ProjectDescriptor
	if err := l.readYAML(path, &desc); err != nil {
		return nil, err
	}
	desc.Path = path
	desc.Language = lang
	l.normalize(&desc)

	if desc.BuildError != "" {
		l.logger.Warn("project evaluation failed", "path", path, "error", desc.BuildError)
		desc.Sources = nil
		desc.AdditionalFiles = nil
		return &desc, &BuildError{Path: path, Message: desc.BuildError}
	}

	l.logger.Debug("project descriptor loaded",
		"path", path,
		"language", lang,
		"sources", len(desc.Sources),
		"project_references", len(desc.ProjectReferences))
	return &desc, nil
}

// LoadSolution reads a solution descriptor and resolves its project paths.
func (l *DescriptorLoader) LoadSolution(ctx context.Context, path string) (*SolutionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = absPath(path)
	if !strings.HasSuffix(strings.ToLower(path), SolutionExtension) {
		return nil, loadErr(path, ErrUnrecognizedExtension, fmt.Errorf("solutions must end in %s", SolutionExtension))
	}

	var desc SolutionDescriptor
	if err := l.readYAML(path, &desc); err != nil {
		return nil, err
	}
	desc.Path = path
	if desc.Name == "" {
		desc.Name = strings.TrimSuffix(filepath.Base(path), SolutionExtension)
	}
	dir := filepath.Dir(path)
	for i, p := range desc.Projects {
		desc.Projects[i] = resolveAgainst(dir, p)
	}
	return &desc, nil
}

func (l *DescriptorLoader) readYAML(path string, out interface{}) error {
	data, err := afero.ReadFile(l.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return loadErr(path, ErrProjectNotFound, nil)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return loadErr(path, ErrInvalidDescriptor, err)
	}
	if err := l.validate.Struct(out); err != nil {
		return loadErr(path, ErrInvalidDescriptor, err)
	}
	return nil
}

func (l *DescriptorLoader) normalize(desc *ProjectDescriptor) {
	dir := filepath.Dir(desc.Path)
	if desc.Name == "" {
		desc.Name = strings.TrimSuffix(filepath.Base(desc.Path), filepath.Ext(desc.Path))
	}
	if desc.OutputPath != "" {
		desc.OutputPath = resolveAgainst(dir, desc.OutputPath)
	}
	for i := range desc.Sources {
		desc.Sources[i].Path = resolveAgainst(dir, desc.Sources[i].Path)
	}
	for i, p := range desc.AdditionalFiles {
		desc.AdditionalFiles[i] = resolveAgainst(dir, p)
	}
	for i := range desc.MetadataReferences {
		desc.MetadataReferences[i].Path = resolveAgainst(dir, desc.MetadataReferences[i].Path)
	}
	for i := range desc.ProjectReferences {
		desc.ProjectReferences[i].Path = resolveAgainst(dir, desc.ProjectReferences[i].Path)
	}
	for i, p := range desc.AnalyzerReferences {
		desc.AnalyzerReferences[i] = resolveAgainst(dir, p)
	}
	if desc.AssemblyName == "" && desc.Language == "go" {
		desc.AssemblyName = l.goModulePath(dir)
	}
	if desc.AssemblyName == "" {
		desc.AssemblyName = desc.Name
	}
}

// goModulePath returns the module path from dir/go.mod, or "" if absent or malformed.
func (l *DescriptorLoader) goModulePath(dir string) string {
	data, err := afero.ReadFile(l.fs, filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	mod := modfile.ModulePath(data)
	if mod == "" {
		l.logger.Warn("go.mod has no module directive", "path", filepath.Join(dir, "go.mod"))
	}
	return mod
}

// SupportedLanguages returns the host's compilable languages, sorted.
func (l *DescriptorLoader) SupportedLanguages() []string {
	out := make([]string, 0, len(l.supported))
	for lang := range l.supported {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func resolveAgainst(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
