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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
)

// ServiceVersion is reported by the health route.
const ServiceVersion = "0.1.0"

const requestIDHeader = "X-Request-ID"

// Handlers serves the workspace over HTTP.
type Handlers struct {
	ws     *workspace.Workspace
	logger *slog.Logger
}

// NewHandlers creates handlers for ws. A nil logger uses slog.Default().
func NewHandlers(ws *workspace.Workspace, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{ws: ws, logger: logger}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader(requestIDHeader); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header(requestIDHeader, id)
	return id
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func writeError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// errorStatus maps workspace errors onto HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, solution.ErrUnknownProject), errors.Is(err, solution.ErrUnknownDocument):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, workspace.ErrUnsupportedChange):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_CHANGE"
	case errors.Is(err, workspace.ErrPatchConflict):
		return http.StatusConflict, "PATCH_CONFLICT"
	case errors.Is(err, workspace.ErrConcurrentChange):
		return http.StatusConflict, "CONCURRENT_CHANGE"
	case errors.Is(err, resolve.ErrUnresolvedReference):
		return http.StatusUnprocessableEntity, "UNRESOLVED_REFERENCE"
	case errors.Is(err, resolve.ErrNoCompiler), errors.Is(err, syntax.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_LANGUAGE"
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusServiceUnavailable, "WORKSPACE_CLOSED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handlers) project(c *gin.Context) (*solution.Solution, *solution.Project, bool) {
	snap := h.ws.CurrentSolution()
	p, ok := snap.FindProject(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "PROJECT_NOT_FOUND", solution.ErrUnknownProject)
		return nil, nil, false
	}
	return snap, p, true
}

func (h *Handlers) document(c *gin.Context) (*solution.Document, bool) {
	d, ok := h.ws.CurrentSolution().FindDocument(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", solution.ErrUnknownDocument)
		return nil, false
	}
	return d, true
}

// HandleHealth handles GET /v1/workspace/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	snap := h.ws.CurrentSolution()
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    ServiceVersion,
		SolutionID: snap.ID().String(),
		Solution:   snap.FilePath(),
		Projects:   snap.ProjectCount(),
	})
}

// HandleListProjects handles GET /v1/workspace/projects.
//
// Projects are listed in solution order.
func (h *Handlers) HandleListProjects(c *gin.Context) {
	projects := h.ws.CurrentSolution().Projects()
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectSummary(p))
	}
	c.JSON(http.StatusOK, out)
}

// HandleGetProject handles GET /v1/workspace/projects/:id.
//
// Description:
//
//	Returns the project with its documents, direct dependencies and
//	dependents, and the resolution decision for every declared reference.
//
// Response:
//
//	200 OK: ProjectDetail
//	404 Not Found: Unknown project id
func (h *Handlers) HandleGetProject(c *gin.Context) {
	snap, p, ok := h.project(c)
	if !ok {
		return
	}
	detail, err := projectDetail(c.Request.Context(), h.ws.Resolver(), snap, p)
	if err != nil {
		status, code := errorStatus(err)
		h.requestLogger(c, "HandleGetProject").Error("project decisions failed", "project_id", p.ID(), "error", err)
		writeError(c, status, code, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleGetCompilation handles GET /v1/workspace/projects/:id/compilation.
//
// Description:
//
//	Builds or reuses the project's compilation against the current solution.
//
// Response:
//
//	200 OK: CompilationResponse
//	404 Not Found: Unknown project id
//	422 Unprocessable Entity: Unresolved reference under the strict policy,
//	    or a language with no compiler
func (h *Handlers) HandleGetCompilation(c *gin.Context) {
	_, p, ok := h.project(c)
	if !ok {
		return
	}
	logger := h.requestLogger(c, "HandleGetCompilation")

	comp, err := h.ws.Compilation(c.Request.Context(), p.ID())
	if err != nil {
		status, code := errorStatus(err)
		logger.Warn("compilation failed", "project_id", p.ID(), "error", err)
		writeError(c, status, code, err)
		return
	}
	c.JSON(http.StatusOK, compilationResponse(p.ID(), comp))
}

// HandleGetDocument handles GET /v1/workspace/documents/:id.
func (h *Handlers) HandleGetDocument(c *gin.Context) {
	d, ok := h.document(c)
	if !ok {
		return
	}
	h.writeDocument(c, d)
}

func (h *Handlers) writeDocument(c *gin.Context, d *solution.Document) {
	tv, err := d.TextAndVersion(c.Request.Context())
	if err != nil {
		status, code := errorStatus(err)
		h.requestLogger(c, "writeDocument").Warn("document text failed", "document_id", d.ID(), "error", err)
		writeError(c, status, code, err)
		return
	}
	resp := DocumentResponse{
		DocumentSummary: documentSummary(d, false),
		ProjectID:       d.ProjectID().UUID().String(),
		Language:        d.Language(),
		Text:            tv.Text,
	}
	if tv.Failure != nil {
		resp.LoadError = tv.Failure.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUpdateText handles PUT /v1/workspace/documents/:id/text.
//
// Description:
//
//	Replaces the document text and publishes a new solution. The document
//	gets a new version; the project's public API version only moves when
//	the compilation's public surface changes.
//
// Request Body:
//
//	UpdateTextRequest
//
// Response:
//
//	200 OK: DocumentResponse for the new document state
//	400 Bad Request: Missing text
//	404 Not Found: Unknown document id
//	422 Unprocessable Entity: Text edits are not supported by this workspace
func (h *Handlers) HandleUpdateText(c *gin.Context) {
	logger := h.requestLogger(c, "HandleUpdateText")

	var req UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	d, ok := h.document(c)
	if !ok {
		return
	}
	if err := h.ws.ChangeDocumentText(c.Request.Context(), d.ID(), *req.Text); err != nil {
		status, code := errorStatus(err)
		logger.Warn("text change rejected", "document_id", d.ID(), "error", err)
		writeError(c, status, code, err)
		return
	}
	h.writeUpdated(c, d.ID())
}

// HandlePatch handles POST /v1/workspace/documents/:id/patch.
//
// Description:
//
//	Applies a unified diff to the document text. Every context and removed
//	line must match the current text.
//
// Request Body:
//
//	PatchRequest
//
// Response:
//
//	200 OK: DocumentResponse for the new document state
//	400 Bad Request: Missing diff
//	404 Not Found: Unknown document id
//	409 Conflict: The diff does not apply
func (h *Handlers) HandlePatch(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePatch")

	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	d, ok := h.document(c)
	if !ok {
		return
	}
	if err := h.ws.ApplyPatch(c.Request.Context(), d.ID(), req.Diff); err != nil {
		status, code := errorStatus(err)
		logger.Warn("patch rejected", "document_id", d.ID(), "error", err)
		writeError(c, status, code, err)
		return
	}
	h.writeUpdated(c, d.ID())
}

func (h *Handlers) writeUpdated(c *gin.Context, id solution.DocumentID) {
	d, ok := h.ws.CurrentSolution().Document(id)
	if !ok {
		writeError(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", solution.ErrUnknownDocument)
		return
	}
	h.writeDocument(c, d)
}

// HandleDiagnostics handles GET /v1/workspace/diagnostics.
func (h *Handlers) HandleDiagnostics(c *gin.Context) {
	diags := h.ws.Diagnostics()
	out := make([]DiagnosticResponse, 0, len(diags))
	for _, d := range diags {
		resp := DiagnosticResponse{Diagnostic: d}
		if !d.ProjectID.IsZero() {
			resp.ProjectID = d.ProjectID.UUID().String()
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}
