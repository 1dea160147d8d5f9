// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package syntax turns project sources into compilations.
//
// A Compilation lists the declarations of a project, its syntax diagnostics,
// and its public surface: the signatures of exported declarations without
// bodies. The surface checksum only changes when the surface does, so edits
// confined to function bodies or private declarations keep it stable.
package syntax

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

var tracer = otel.Tracer("aleutian.workspace.syntax")

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a compiler message.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", d.Path, d.Line, d.Severity, d.Message)
}

// ReferencedAssembly is something a compilation can bind against: another
// live compilation, a skeleton image, or an on-disk binary.
type ReferencedAssembly interface {
	AssemblyName() string
	PublicSymbols() []metadata.Symbol
}

// ImageAssembly adapts a metadata image to ReferencedAssembly.
type ImageAssembly struct {
	Image *metadata.Image
}

func (a ImageAssembly) AssemblyName() string { return a.Image.AssemblyName }

func (a ImageAssembly) PublicSymbols() []metadata.Symbol { return a.Image.Symbols }

// SourceFile is one input document.
type SourceFile struct {
	Path string
	Text string
}

// Input is everything a compiler needs for one project.
type Input struct {
	AssemblyName string
	Language     string
	Sources      []SourceFile
	Settings     Settings
	References   []ReferencedAssembly
}

// Compilation is the semantic output of a project.
//
// Immutable after Compile returns.
type Compilation struct {
	assemblyName string
	language     string
	settings     Settings
	symbols      []metadata.Symbol
	surface      []metadata.Symbol
	checksum     string
	diagnostics  []Diagnostic
	references   []ReferencedAssembly
}

func (c *Compilation) AssemblyName() string { return c.assemblyName }

func (c *Compilation) Language() string { return c.language }

func (c *Compilation) Settings() Settings { return c.settings }

// Symbols returns every declaration, exported or not.
func (c *Compilation) Symbols() []metadata.Symbol { return c.symbols }

// PublicSymbols returns the exported surface in stable order.
func (c *Compilation) PublicSymbols() []metadata.Symbol { return c.surface }

// SurfaceChecksum identifies the public surface.
func (c *Compilation) SurfaceChecksum() string { return c.checksum }

func (c *Compilation) Diagnostics() []Diagnostic { return c.diagnostics }

func (c *Compilation) References() []ReferencedAssembly { return c.references }

// HasErrors reports whether any diagnostic is an error.
func (c *Compilation) HasErrors() bool {
	for _, d := range c.diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// LookupSymbol finds a public symbol by name in the compilation or its references.
func (c *Compilation) LookupSymbol(name string) (metadata.Symbol, string, bool) {
	for _, s := range c.symbols {
		if s.Name == name {
			return s, c.assemblyName, true
		}
	}
	for _, ref := range c.references {
		for _, s := range ref.PublicSymbols() {
			if s.Name == name {
				return s, ref.AssemblyName(), true
			}
		}
	}
	return metadata.Symbol{}, "", false
}

// Image returns the compilation's binary image. A skeleton image carries the
// public surface only.
func (c *Compilation) Image(skeleton bool) *metadata.Image {
	symbols := c.surface
	if !skeleton {
		symbols = c.symbols
	}
	refs := make([]string, 0, len(c.references))
	for _, r := range c.references {
		refs = append(refs, r.AssemblyName())
	}
	return &metadata.Image{
		Format:       metadata.ImageFormat,
		AssemblyName: c.assemblyName,
		Language:     c.language,
		Skeleton:     skeleton,
		Checksum:     c.checksum,
		Symbols:      append([]metadata.Symbol(nil), symbols...),
		References:   refs,
	}
}

// Compiler produces compilations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Compiler interface {
	// Compile builds a compilation. Honors ctx cancellation.
	Compile(ctx context.Context, in Input) (*Compilation, error)

	// Supports reports whether the compiler handles language.
	Supports(language string) bool
}

// fileResult is what a language frontend extracts from one file.
type fileResult struct {
	pkg         string
	symbols     []declared
	diagnostics []Diagnostic
}

type declared struct {
	symbol   metadata.Symbol
	exported bool
}

type frontend func(ctx context.Context, src SourceFile) (fileResult, error)

// TreeSitterCompiler compiles Go and Python sources with tree-sitter grammars.
type TreeSitterCompiler struct {
	logger    *slog.Logger
	frontends map[string]frontend
}

// NewTreeSitterCompiler returns a compiler for "go" and "python".
func NewTreeSitterCompiler(logger *slog.Logger) *TreeSitterCompiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeSitterCompiler{
		logger: logger.With("component", "compiler"),
		frontends: map[string]frontend{
			"go":     parseGo,
			"python": parsePython,
		},
	}
}

// Supports reports whether language has a frontend.
func (c *TreeSitterCompiler) Supports(language string) bool {
	_, ok := c.frontends[strings.ToLower(language)]
	return ok
}

// Compile parses every source and assembles the compilation.
//
// # Description
//
// Sources are parsed independently with a fresh tree-sitter parser each.
// Syntax errors become error diagnostics rather than failures. Go projects
// built as "exe" must declare func main in package main. Files of one Go
// project that disagree on the package name produce a warning, promoted to
// an error under WarningsAsErrors.
//
// # Outputs
//
//   - *Compilation: The result, possibly with diagnostics.
//   - error: ErrUnsupportedLanguage, or ctx.Err() on cancellation.
func (c *TreeSitterCompiler) Compile(ctx context.Context, in Input) (*Compilation, error) {
	language := strings.ToLower(in.Language)
	parse, ok := c.frontends[language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, in.Language)
	}

	ctx, span := tracer.Start(ctx, "syntax.Compile", trace.WithAttributes(
		attribute.String("compile.assembly", in.AssemblyName),
		attribute.String("compile.language", language),
		attribute.Int("compile.sources", len(in.Sources)),
	))
	defer span.End()
	start := time.Now()

	comp := &Compilation{
		assemblyName: in.AssemblyName,
		language:     language,
		settings:     in.Settings,
		references:   append([]ReferencedAssembly(nil), in.References...),
	}

	packages := map[string]string{}
	hasMain := false
	for _, src := range in.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := parse(ctx, src)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("parsing %s: %w", src.Path, err)
		}
		comp.diagnostics = append(comp.diagnostics, res.diagnostics...)
		if res.pkg != "" {
			packages[res.pkg] = src.Path
		}
		for _, d := range res.symbols {
			comp.symbols = append(comp.symbols, d.symbol)
			if d.exported {
				comp.surface = append(comp.surface, d.symbol)
			}
			if res.pkg == "main" && d.symbol.Kind == "function" && d.symbol.Name == "main" {
				hasMain = true
			}
		}
	}

	if language == "go" {
		if len(packages) > 1 {
			names := make([]string, 0, len(packages))
			for name := range packages {
				names = append(names, name)
			}
			sort.Strings(names)
			comp.diagnostics = append(comp.diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Message:  "sources declare multiple packages: " + strings.Join(names, ", "),
			})
		}
		if in.Settings.OutputKind == OutputExecutable && !hasMain {
			comp.diagnostics = append(comp.diagnostics, Diagnostic{
				Severity: SeverityError,
				Message:  "executable output requires func main in package main",
			})
		}
	}

	if in.Settings.WarningsAsErrors {
		for i := range comp.diagnostics {
			comp.diagnostics[i].Severity = SeverityError
		}
	}

	sort.SliceStable(comp.surface, func(i, j int) bool {
		if comp.surface[i].Name != comp.surface[j].Name {
			return comp.surface[i].Name < comp.surface[j].Name
		}
		return comp.surface[i].Signature < comp.surface[j].Signature
	})
	comp.checksum = surfaceChecksum(comp.surface)

	span.SetAttributes(
		attribute.Int("compile.symbols", len(comp.symbols)),
		attribute.Int("compile.diagnostics", len(comp.diagnostics)),
	)
	recordCompile(ctx, language, time.Since(start), comp.HasErrors())
	c.logger.Debug("compiled",
		"assembly", in.AssemblyName,
		"language", language,
		"symbols", len(comp.symbols),
		"diagnostics", len(comp.diagnostics),
		"duration", time.Since(start))
	return comp, nil
}

func surfaceChecksum(surface []metadata.Symbol) string {
	h := sha256.New()
	for _, s := range surface {
		fmt.Fprintf(h, "%s\x00%s\x00%s\n", s.Kind, s.Name, s.Signature)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalize collapses whitespace runs so formatting edits do not change signatures.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
