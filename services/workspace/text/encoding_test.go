// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	windows1252, err := LookupCodePage(1252)
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     []byte
		explicit Encoding
		wantText string
		wantEnc  string
		wantBOM  bool
		wantErr  error
	}{
		{
			name:     "plain ascii infers utf-8",
			data:     []byte("package main\n"),
			wantText: "package main\n",
			wantEnc:  "UTF-8",
		},
		{
			name:     "utf-8 bom is stripped",
			data:     append([]byte{0xEF, 0xBB, 0xBF}, "héllo"...),
			wantText: "héllo",
			wantEnc:  "UTF-8",
			wantBOM:  true,
		},
		{
			name:     "utf-16le bom",
			data:     []byte{0xFF, 0xFE, 'h', 0, 'i', 0},
			wantText: "hi",
			wantEnc:  "UTF-16LE",
			wantBOM:  true,
		},
		{
			name:     "utf-16be bom",
			data:     []byte{0xFE, 0xFF, 0, 'h', 0, 'i'},
			wantText: "hi",
			wantEnc:  "UTF-16BE",
			wantBOM:  true,
		},
		{
			name:     "explicit code page decodes latin bytes",
			data:     []byte{'c', 'a', 'f', 0xE9},
			explicit: windows1252,
			wantText: "café",
			wantEnc:  "windows-1252",
		},
		{
			name:     "bom overrides explicit code page",
			data:     append([]byte{0xEF, 0xBB, 0xBF}, "café"...),
			explicit: windows1252,
			wantText: "café",
			wantEnc:  "UTF-8",
			wantBOM:  true,
		},
		{
			name:    "invalid utf-8 without explicit encoding fails",
			data:    []byte{'c', 'a', 'f', 0xE9},
			wantErr: ErrInvalidEncoding,
		},
		{
			name:     "explicit utf-8 is still strict",
			data:     []byte{0xC3, 0x28},
			explicit: UTF8,
			wantErr:  ErrInvalidEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := Decode(tt.data, tt.explicit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got)
			assert.Equal(t, tt.wantEnc, enc.Name)
			assert.Equal(t, tt.wantBOM, enc.BOM)
		})
	}
}

func TestExplicit(t *testing.T) {
	t.Run("valid code page", func(t *testing.T) {
		enc, ok := Explicit(65001, "")
		require.True(t, ok)
		assert.Equal(t, "UTF-8", enc.Name)
	})

	t.Run("unregistered code page falls back to name", func(t *testing.T) {
		enc, ok := Explicit(99999, "ISO-8859-1")
		require.True(t, ok)
		assert.Equal(t, "ISO-8859-1", enc.Name)
	})

	t.Run("nothing valid", func(t *testing.T) {
		enc, ok := Explicit(99999, "not-a-charset")
		assert.False(t, ok)
		assert.True(t, enc.IsZero())
	})

	t.Run("unknown name error", func(t *testing.T) {
		_, err := LookupName("not-a-charset")
		assert.ErrorIs(t, err, ErrUnknownEncoding)
		_, err = LookupCodePage(-1)
		assert.ErrorIs(t, err, ErrUnknownEncoding)
	})
}

func TestEncode(t *testing.T) {
	t.Run("utf-16le with bom round trips", func(t *testing.T) {
		data := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
		s, enc, err := Decode(data, Encoding{})
		require.NoError(t, err)

		out, err := Encode(s, enc)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("code page round trips", func(t *testing.T) {
		enc, err := LookupCodePage(1252)
		require.NoError(t, err)

		out, err := Encode("café", enc)
		require.NoError(t, err)
		assert.Equal(t, []byte{'c', 'a', 'f', 0xE9}, out)
	})

	t.Run("zero encoding writes utf-8", func(t *testing.T) {
		out, err := Encode("é", Encoding{})
		require.NoError(t, err)
		assert.Equal(t, []byte("é"), out)
	})
}
