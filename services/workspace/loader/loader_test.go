// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestLoadProject(t *testing.T) {
	ctx := context.Background()
	fs := writeFiles(t, map[string]string{
		"/repo/calc/go.mod": "module example.com/calc\n\ngo 1.22\n",
		"/repo/calc/calc.goproj": `
output_path: out/calc.img
sources:
  - calc.go
  - path: internal/util.go
    folders: [internal]
additional_files: [README.md]
metadata_references:
  - path: /libs/std.img
    aliases: [std]
    global: true
project_references:
  - path: ../shared/shared.pyproj
    reference_output: false
compilation_options:
  output_kind: library
code_page: 65001
`,
	})
	l := NewDescriptorLoader(fs)

	desc, err := l.LoadProject(ctx, "/repo/calc/calc.goproj")
	require.NoError(t, err)

	assert.Equal(t, "/repo/calc/calc.goproj", desc.Path)
	assert.Equal(t, "go", desc.Language)
	assert.Equal(t, "calc", desc.Name)
	assert.Equal(t, "example.com/calc", desc.AssemblyName)
	assert.Equal(t, "/repo/calc/out/calc.img", desc.OutputPath)
	require.Len(t, desc.Sources, 2)
	assert.Equal(t, "/repo/calc/calc.go", desc.Sources[0].Path)
	assert.Equal(t, SourceSpec{Path: "/repo/calc/internal/util.go", Folders: []string{"internal"}}, desc.Sources[1])
	assert.Equal(t, []string{"/repo/calc/README.md"}, desc.AdditionalFiles)
	assert.Equal(t, "/libs/std.img", desc.MetadataReferences[0].Path)
	assert.True(t, desc.MetadataReferences[0].Global)
	require.Len(t, desc.ProjectReferences, 1)
	assert.Equal(t, "/repo/shared/shared.pyproj", desc.ProjectReferences[0].Path)
	assert.False(t, desc.ProjectReferences[0].IncludesOutput())
	assert.Equal(t, "library", desc.CompilationOptions["output_kind"])
	assert.Equal(t, 65001, desc.CodePage)
}

func TestLoadProject_Defaults(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/repo/tool/tool.pyproj": "sources: [main.py]\nproject_references:\n  - path: ../calc/calc.goproj\n",
	})
	desc, err := NewDescriptorLoader(fs).LoadProject(context.Background(), "/repo/tool/tool.pyproj")
	require.NoError(t, err)
	assert.Equal(t, "python", desc.Language)
	assert.Equal(t, "tool", desc.AssemblyName)
	assert.True(t, desc.ProjectReferences[0].IncludesOutput())
}

func TestLoadProject_Errors(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/repo/a.goproj":        "sources: [a.go]\nbogus_field: 1\n",
		"/repo/b.goproj":        "sources:\n  - path: \"\"\n",
		"/repo/c.csproj":        "sources: [c.cs]\n",
		"/repo/notes.txt":       "hello",
		"/repo/d.goproj":        "build_error: \"restore failed: network down\"\nsources: [d.go]\n",
		"/repo/negative.goproj": "code_page: -1\n",
	})
	l := NewDescriptorLoader(fs)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		kind error
	}{
		{"missing", "/repo/missing.goproj", ErrProjectNotFound},
		{"unknown field", "/repo/a.goproj", ErrInvalidDescriptor},
		{"empty source path", "/repo/b.goproj", ErrInvalidDescriptor},
		{"negative code page", "/repo/negative.goproj", ErrInvalidDescriptor},
		{"unsupported type", "/repo/c.csproj", ErrUnsupportedProjectType},
		{"unrecognized extension", "/repo/notes.txt", ErrUnrecognizedExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadProject(ctx, tt.path)
			require.ErrorIs(t, err, tt.kind)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.path, le.Path)
			assert.Contains(t, err.Error(), tt.path)
		})
	}

	t.Run("build error keeps project without sources", func(t *testing.T) {
		desc, err := l.LoadProject(ctx, "/repo/d.goproj")
		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Contains(t, be.Message, "network down")
		require.NotNil(t, desc)
		assert.Empty(t, desc.Sources)
		assert.Equal(t, "d", desc.Name)
	})

	t.Run("host support is configurable", func(t *testing.T) {
		csharp := NewDescriptorLoader(fs, WithSupportedLanguages("go", "csharp"))
		_, err := csharp.LoadProject(ctx, "/repo/c.csproj")
		assert.NoError(t, err)
		assert.Equal(t, []string{"csharp", "go"}, csharp.SupportedLanguages())
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := l.LoadProject(cctx, "/repo/d.goproj")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadSolution(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/repo/app.sln.yaml": "projects:\n  - calc/calc.goproj\n  - /abs/tool.pyproj\n",
		"/repo/bad.yaml":     "projects: []\n",
	})
	l := NewDescriptorLoader(fs)

	sol, err := l.LoadSolution(context.Background(), "/repo/app.sln.yaml")
	require.NoError(t, err)
	assert.Equal(t, "app", sol.Name)
	assert.Equal(t, []string{"/repo/calc/calc.goproj", "/abs/tool.pyproj"}, sol.Projects)

	_, err = l.LoadSolution(context.Background(), "/repo/bad.yaml")
	assert.ErrorIs(t, err, ErrUnrecognizedExtension)

	_, err = l.LoadSolution(context.Background(), "/repo/none.sln.yaml")
	assert.ErrorIs(t, err, ErrProjectNotFound)

	assert.True(t, l.IsProjectFile("/x/y.GOPROJ"))
	assert.False(t, l.IsProjectFile("/x/y.sln.yaml"))
}
