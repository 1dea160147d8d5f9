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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const appSource = "package app\n\nfunc A() int {\n\treturn 1\n}\n"

type fixture struct {
	router *gin.Engine
	ws     *workspace.Workspace
	sol    *solution.Solution
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/ws/all.sln.yaml":   "projects:\n  - app/app.goproj\n  - lib/lib.goproj\n",
		"/ws/app/app.goproj": "sources: [app.go]\nproject_references:\n  - path: ../lib/lib.goproj\n",
		"/ws/app/app.go":     appSource,
		"/ws/lib/lib.goproj": "sources: [lib.go]\n",
		"/ws/lib/lib.go":     "package lib\n\nfunc Helper() string {\n\treturn \"help\"\n}\n",
	}
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	ws, err := workspace.New(workspace.Options{Text: text.Options{Fs: fs, RetryDelay: time.Millisecond}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	sol, err := ws.OpenSolution(context.Background(), "/ws/all.sln.yaml")
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandlers(ws, nil))
	return fixture{router: router, ws: ws, sol: sol}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f fixture) project(t *testing.T, name string) *solution.Project {
	t.Helper()
	p, ok := f.sol.ProjectByName(name)
	require.True(t, ok)
	return p
}

func (f fixture) appDocument(t *testing.T) *solution.Document {
	t.Helper()
	docs := f.project(t, "app").Documents()
	require.Len(t, docs, 1)
	return docs[0]
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/workspace/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, 2, resp.Projects)
	assert.Equal(t, "/ws/all.sln.yaml", resp.Solution)
}

func TestHandleListProjects(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/workspace/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)

	projects := decode[[]ProjectSummary](t, w)
	require.Len(t, projects, 2)

	byName := map[string]ProjectSummary{}
	for _, p := range projects {
		byName[p.Name] = p
	}
	require.Contains(t, byName, "app")
	require.Contains(t, byName, "lib")
	assert.Equal(t, "go", byName["app"].Language)
	assert.Equal(t, 1, byName["app"].DocumentCount)
	require.Len(t, byName["app"].References, 1)
	assert.Equal(t, byName["lib"].ID, byName["app"].References[0].ProjectID)
	assert.True(t, byName["app"].References[0].OutputVisible)
}

func TestHandleGetProject(t *testing.T) {
	f := newFixture(t)
	app := f.project(t, "app")
	lib := f.project(t, "lib")

	t.Run("detail with decisions", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/v1/workspace/projects/"+app.ID().UUID().String(), nil)
		require.Equal(t, http.StatusOK, w.Code)

		detail := decode[ProjectDetail](t, w)
		assert.Equal(t, "app", detail.Name)
		require.Len(t, detail.Documents, 1)
		assert.Equal(t, "/ws/app/app.go", detail.Documents[0].FilePath)
		require.Len(t, detail.References, 1)
		assert.Equal(t, "compilation", detail.References[0].Decision)
		assert.Equal(t, []string{lib.ID().UUID().String()}, detail.Dependencies)
		assert.Empty(t, detail.Dependents)
	})

	t.Run("unknown project", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/v1/workspace/projects/not-a-project", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "PROJECT_NOT_FOUND", decode[ErrorResponse](t, w).Code)
	})
}

func TestHandleGetCompilation(t *testing.T) {
	f := newFixture(t)
	app := f.project(t, "app")

	w := f.do(t, http.MethodGet, "/v1/workspace/projects/"+app.ID().UUID().String()+"/compilation", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[CompilationResponse](t, w)
	assert.Equal(t, "go", resp.Language)
	assert.NotEmpty(t, resp.SurfaceChecksum)
	assert.False(t, resp.HasErrors)

	var names []string
	for _, s := range resp.PublicSymbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "A")
	assert.Len(t, resp.References, 1)
}

func TestHandleDocuments(t *testing.T) {
	f := newFixture(t)
	doc := f.appDocument(t)
	path := "/v1/workspace/documents/" + doc.ID().UUID().String()

	t.Run("get", func(t *testing.T) {
		w := f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[DocumentResponse](t, w)
		assert.Equal(t, appSource, resp.Text)
		assert.Equal(t, f.project(t, "app").ID().UUID().String(), resp.ProjectID)
		assert.Empty(t, resp.LoadError)
	})

	t.Run("put text publishes a new version", func(t *testing.T) {
		before := f.ws.CurrentSolution()
		newText := "package app\n\nfunc A() int {\n\treturn 2\n}\n"

		w := f.do(t, http.MethodPut, path+"/text", map[string]string{"text": newText})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[DocumentResponse](t, w)
		assert.Equal(t, newText, resp.Text)
		assert.NotEqual(t, doc.Version().String(), resp.Version)
		assert.NotSame(t, before, f.ws.CurrentSolution())
	})

	t.Run("put empty text is allowed", func(t *testing.T) {
		w := f.do(t, http.MethodPut, path+"/text", map[string]string{"text": ""})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "", decode[DocumentResponse](t, w).Text)
	})

	t.Run("put without text", func(t *testing.T) {
		w := f.do(t, http.MethodPut, path+"/text", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/v1/workspace/documents/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlePatch(t *testing.T) {
	f := newFixture(t)
	doc := f.appDocument(t)
	path := "/v1/workspace/documents/" + doc.ID().UUID().String() + "/patch"

	t.Run("applies", func(t *testing.T) {
		diff := "@@ -3,3 +3,3 @@\n func A() int {\n-\treturn 1\n+\treturn 3\n }\n"
		w := f.do(t, http.MethodPost, path, PatchRequest{Diff: diff})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "package app\n\nfunc A() int {\n\treturn 3\n}\n", decode[DocumentResponse](t, w).Text)
	})

	t.Run("conflict", func(t *testing.T) {
		diff := "@@ -1,1 +1,1 @@\n-package nope\n+package yes\n"
		w := f.do(t, http.MethodPost, path, PatchRequest{Diff: diff})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "PATCH_CONFLICT", decode[ErrorResponse](t, w).Code)
	})
}

func TestHandleDiagnostics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/workspace/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]DiagnosticResponse](t, w))
}

func TestNewRouter(t *testing.T) {
	f := newFixture(t)

	router, err := NewRouter(f.ws, "workspace-test", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/workspace/health", nil)
	req.Header.Set(requestIDHeader, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{solution.ErrUnknownDocument, http.StatusNotFound},
		{&workspace.UnsupportedChangeError{Kind: workspace.ChangeAddProject}, http.StatusUnprocessableEntity},
		{workspace.ErrPatchConflict, http.StatusConflict},
		{workspace.ErrClosed, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
