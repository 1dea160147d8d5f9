// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	SolutionID string `json:"solution_id"`
	Solution   string `json:"solution,omitempty"`
	Projects   int    `json:"projects"`
}

// ReferenceSummary describes one declared project reference.
type ReferenceSummary struct {
	ProjectID     string   `json:"project_id"`
	Aliases       []string `json:"aliases,omitempty"`
	OutputVisible bool     `json:"output_visible"`

	// SubstitutedOutput is the on-disk output standing in for a target
	// that was not opened.
	SubstitutedOutput string `json:"substituted_output,omitempty"`

	// Decision is filled on the project detail route only.
	Decision     string `json:"decision,omitempty"`
	MetadataPath string `json:"metadata_path,omitempty"`
}

// ProjectSummary is one entry of GET /projects.
type ProjectSummary struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	AssemblyName  string             `json:"assembly_name"`
	Language      string             `json:"language"`
	FilePath      string             `json:"file_path,omitempty"`
	OutputPath    string             `json:"output_path,omitempty"`
	Version       string             `json:"version"`
	DocumentCount int                `json:"document_count"`
	References    []ReferenceSummary `json:"references"`
}

// DocumentSummary lists a document without its text.
type DocumentSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	FilePath   string   `json:"file_path,omitempty"`
	Folders    []string `json:"folders,omitempty"`
	Version    string   `json:"version"`
	Additional bool     `json:"additional,omitempty"`
}

// ProjectDetail is returned by GET /projects/:id.
type ProjectDetail struct {
	ProjectSummary
	Documents          []DocumentSummary `json:"documents"`
	MetadataReferences []string          `json:"metadata_references,omitempty"`
	Dependencies       []string          `json:"dependencies"`
	Dependents         []string          `json:"dependents"`
}

// DocumentResponse is returned by the document routes.
type DocumentResponse struct {
	DocumentSummary
	ProjectID string `json:"project_id"`
	Language  string `json:"language"`
	Text      string `json:"text"`

	// LoadError is set when the text loader gave up on the backing file.
	LoadError string `json:"load_error,omitempty"`
}

// UpdateTextRequest is the body of PUT /documents/:id/text.
type UpdateTextRequest struct {
	Text *string `json:"text" binding:"required"`
}

// PatchRequest is the body of POST /documents/:id/patch.
type PatchRequest struct {
	Diff string `json:"diff" binding:"required"`
}

// DiagnosticResponse is one entry of GET /diagnostics.
type DiagnosticResponse struct {
	workspace.Diagnostic
	ProjectID string `json:"project_id,omitempty"`
}

// SymbolResponse is one public symbol.
type SymbolResponse struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Signature string `json:"signature,omitempty"`
}

// CompilationResponse is returned by GET /projects/:id/compilation.
type CompilationResponse struct {
	ProjectID       string              `json:"project_id"`
	AssemblyName    string              `json:"assembly_name"`
	Language        string              `json:"language"`
	SurfaceChecksum string              `json:"surface_checksum"`
	HasErrors       bool                `json:"has_errors"`
	PublicSymbols   []SymbolResponse    `json:"public_symbols"`
	References      []string            `json:"references"`
	Diagnostics     []syntax.Diagnostic `json:"diagnostics"`
}

func referenceSummaries(refs []solution.ProjectReference) []ReferenceSummary {
	out := make([]ReferenceSummary, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ReferenceSummary{
			ProjectID:         ref.ProjectID.UUID().String(),
			Aliases:           ref.Aliases.Aliases(),
			OutputVisible:     ref.ReferenceOutputAssembly,
			SubstitutedOutput: ref.MetadataPath,
		})
	}
	return out
}

func projectSummary(p *solution.Project) ProjectSummary {
	return ProjectSummary{
		ID:            p.ID().UUID().String(),
		Name:          p.Name(),
		AssemblyName:  p.AssemblyName(),
		Language:      p.Language(),
		FilePath:      p.FilePath(),
		OutputPath:    p.OutputFilePath(),
		Version:       p.LatestVersion().String(),
		DocumentCount: p.DocumentCount(),
		References:    referenceSummaries(p.AllProjectReferences()),
	}
}

func documentSummary(d *solution.Document, additional bool) DocumentSummary {
	return DocumentSummary{
		ID:         d.ID().UUID().String(),
		Name:       d.Name(),
		FilePath:   d.FilePath(),
		Folders:    d.Folders(),
		Version:    d.Version().String(),
		Additional: additional,
	}
}

func projectDetail(ctx context.Context, r *resolve.Resolver, snap *solution.Solution, p *solution.Project) (ProjectDetail, error) {
	detail := ProjectDetail{
		ProjectSummary: projectSummary(p),
		Documents:      make([]DocumentSummary, 0, p.DocumentCount()),
		Dependencies:   idStrings(snap.DependencyGraph().DirectDependencies(p.ID())),
		Dependents:     idStrings(snap.DependencyGraph().Dependents(p.ID())),
	}
	for _, d := range p.Documents() {
		detail.Documents = append(detail.Documents, documentSummary(d, false))
	}
	for _, d := range p.AdditionalDocuments() {
		detail.Documents = append(detail.Documents, documentSummary(d, true))
	}
	for _, ref := range p.MetadataReferences() {
		detail.MetadataReferences = append(detail.MetadataReferences, ref.Path())
	}

	decisions, err := r.Decisions(ctx, snap, p.ID())
	if err != nil {
		return detail, err
	}
	for i, d := range decisions {
		if i >= len(detail.References) {
			break
		}
		detail.References[i].Decision = d.Kind.String()
		detail.References[i].MetadataPath = d.MetadataPath
	}
	return detail, nil
}

func compilationResponse(id solution.ProjectID, c *syntax.Compilation) CompilationResponse {
	resp := CompilationResponse{
		ProjectID:       id.UUID().String(),
		AssemblyName:    c.AssemblyName(),
		Language:        c.Language(),
		SurfaceChecksum: c.SurfaceChecksum(),
		HasErrors:       c.HasErrors(),
		PublicSymbols:   make([]SymbolResponse, 0, len(c.PublicSymbols())),
		References:      make([]string, 0, len(c.References())),
		Diagnostics:     c.Diagnostics(),
	}
	for _, s := range c.PublicSymbols() {
		resp.PublicSymbols = append(resp.PublicSymbols, SymbolResponse{Name: s.Name, Kind: s.Kind, Signature: s.Signature})
	}
	for _, ref := range c.References() {
		resp.References = append(resp.References, ref.AssemblyName())
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []syntax.Diagnostic{}
	}
	return resp
}

func idStrings(ids []solution.ProjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.UUID().String())
	}
	return out
}
