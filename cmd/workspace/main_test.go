// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWorkspace/pkg/logging"
	"github.com/AleutianAI/AleutianWorkspace/pkg/ux"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/config"
)

// writeSolution lays out app -> lib under a temp dir and returns the
// solution path.
func writeSolution(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"all.sln.yaml":   "projects:\n  - app/app.goproj\n  - lib/lib.goproj\n",
		"app/app.goproj": "sources: [app.go]\noutput_path: out/app.img\nproject_references:\n  - path: ../lib/lib.goproj\n",
		"app/app.go":     "package app\n\nfunc A() int {\n\treturn 1\n}\n",
		"lib/lib.goproj": "sources: [lib.go]\noutput_path: out/lib.img\n",
		"lib/lib.go":     "package lib\n\nfunc Helper() string {\n\treturn \"help\"\n}\n",
	}
	for k, v := range extra {
		files[k] = v
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return filepath.Join(dir, "all.sln.yaml")
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WORKSPACE_METRIC_EXPORTER", "none")
	t.Setenv("WORKSPACE_TRACE_EXPORTER", "none")
	t.Setenv("WORKSPACE_LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestLoad(t *testing.T) {
	quietEnv(t)
	sln := writeSolution(t, nil)

	code, out, errOut := runCLI(t, "load", "--plain", sln)
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "Solution "+sln+": 2 project(s)")
	assert.Contains(t, out, "PROJECT")
	assert.Contains(t, out, "lib:compilation")
	assert.Contains(t, out, "OK: no diagnostics")
}

func TestLoad_SingleProject(t *testing.T) {
	quietEnv(t)
	sln := writeSolution(t, nil)
	lib := filepath.Join(filepath.Dir(sln), "lib", "lib.goproj")

	code, out, errOut := runCLI(t, "load", "--plain", "--project", lib)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 project(s)")
}

func TestLoad_DanglingReference(t *testing.T) {
	quietEnv(t)
	sln := writeSolution(t, map[string]string{
		"app/app.goproj": "sources: [app.go]\nproject_references:\n  - path: ../missing/missing.goproj\n",
		"all.sln.yaml":   "projects:\n  - app/app.goproj\n",
	})

	t.Run("lenient reports a diagnostic", func(t *testing.T) {
		code, out, errOut := runCLI(t, "load", "--plain", sln)
		require.Equal(t, 0, code, errOut)
		assert.Contains(t, out, "ERROR")
		assert.Contains(t, out, "missing.goproj")
	})

	t.Run("strict fails", func(t *testing.T) {
		code, _, errOut := runCLI(t, "load", "--plain", "--strict", sln)
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "Error:")
	})
}

func TestBuild_EmitsImages(t *testing.T) {
	quietEnv(t)
	sln := writeSolution(t, nil)
	root := filepath.Dir(sln)

	code, out, errOut := runCLI(t, "build", "--plain", sln)
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "0 error(s), 0 warning(s)")
	assert.FileExists(t, filepath.Join(root, "lib", "out", "lib.img"))
	assert.FileExists(t, filepath.Join(root, "app", "out", "app.img"))

	libAt := strings.Index(out, "emitted "+filepath.Join(root, "lib", "out", "lib.img"))
	appAt := strings.Index(out, "emitted "+filepath.Join(root, "app", "out", "app.img"))
	require.True(t, libAt >= 0 && appAt >= 0, out)
	assert.Less(t, libAt, appAt, "dependencies are emitted first")
}

func TestBuild_NoEmitWithSkeletonStore(t *testing.T) {
	quietEnv(t)
	t.Setenv("WORKSPACE_SKELETON_STORE_ENABLED", "true")
	t.Setenv("WORKSPACE_SKELETON_STORE_IN_MEMORY", "true")
	sln := writeSolution(t, nil)

	code, _, errOut := runCLI(t, "build", "--plain", "--no-emit", sln)
	require.Equal(t, 0, code, errOut)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(sln), "lib", "out", "lib.img"))
}

func TestRun_Errors(t *testing.T) {
	quietEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing argument", args: []string{"load"}},
		{name: "missing solution", args: []string{"load", "/does/not/exist.sln.yaml"}},
		{name: "bad log level", args: []string{"load", "--log-level", "loud", "x"}},
		{name: "missing config", args: []string{"load", "--config", "/does/not/exist.yaml", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, "Error:")
		})
	}
}

// syncBuffer is a bytes.Buffer safe for one writer goroutine and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	quietEnv(t)
	sln := writeSolution(t, nil)

	cfg, err := config.LoadFs(nil, "", nil)
	require.NoError(t, err)
	cfg.Telemetry.MetricExporter = "none"

	out := &syncBuffer{}
	a := &app{
		cfg:     cfg,
		logger:  logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard}),
		printer: ux.NewPrinter(out, ux.ModePlain),
	}
	t.Cleanup(func() { _ = a.close(context.Background()) })

	ws, err := a.openWorkspace()
	require.NoError(t, err)
	_, err = ws.OpenSolution(context.Background(), sln)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ws, "127.0.0.1:0") }()

	var addr string
	require.Eventually(t, func() bool {
		line := out.String()
		if i := strings.Index(line, "http://"); i >= 0 {
			addr = strings.TrimSpace(line[i:])
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("%s/v1/workspace/health", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
