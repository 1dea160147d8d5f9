// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := DecodeSettings(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, OutputLibrary, s.OutputKind)
		assert.Empty(t, s.Defines)
		assert.False(t, s.WarningsAsErrors)
	})

	t.Run("compilation options override parse options", func(t *testing.T) {
		s, err := DecodeSettings(
			map[string]string{"language_version": "1.22", "output_kind": "EXE"},
			map[string]string{"language_version": "1.18", "defines": "DEBUG, TRACE,,", "warnings_as_errors": "true"},
		)
		require.NoError(t, err)
		assert.Equal(t, "1.22", s.LanguageVersion)
		assert.Equal(t, OutputExecutable, s.OutputKind)
		assert.Equal(t, []string{"DEBUG", "TRACE"}, s.Defines)
		assert.True(t, s.WarningsAsErrors)
	})

	tests := []struct {
		name string
		opts map[string]string
	}{
		{"unknown output kind", map[string]string{"output_kind": "plugin"}},
		{"bad language version", map[string]string{"language_version": "latest"}},
		{"bad bool", map[string]string{"warnings_as_errors": "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSettings(tt.opts, nil)
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestSettings_SupportsLanguageVersion(t *testing.T) {
	assert.True(t, Settings{}.SupportsLanguageVersion("1.21"))
	assert.True(t, Settings{LanguageVersion: "1.22"}.SupportsLanguageVersion("1.21"))
	assert.True(t, Settings{LanguageVersion: "1.22"}.SupportsLanguageVersion("1.22"))
	assert.False(t, Settings{LanguageVersion: "1.20"}.SupportsLanguageVersion("1.21"))
}
