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
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/mod/semver"
)

// Output kinds.
const (
	OutputLibrary    = "library"
	OutputExecutable = "exe"
)

// Settings are the typed compiler and parser switches of a project.
type Settings struct {
	// LanguageVersion is a dotted version such as "1.22" or "3.12".
	LanguageVersion string `mapstructure:"language_version"`

	// OutputKind is "library" (default) or "exe".
	OutputKind string `mapstructure:"output_kind"`

	// Defines are preprocessor-style symbols, comma separated in raw options.
	Defines []string `mapstructure:"defines"`

	WarningsAsErrors bool `mapstructure:"warnings_as_errors"`
}

// DecodeSettings merges compilation and parse options into Settings.
//
// # Description
//
// Parse options are applied first and compilation options override them.
// Values are decoded weakly, so "true" becomes a bool and "A,B" becomes a
// slice. Unknown keys are ignored.
//
// # Outputs
//
//   - Settings: Decoded settings with defaults applied.
//   - error: ErrInvalidSettings when a value cannot be decoded, the output
//     kind is unknown, or the language version is not a dotted version.
func DecodeSettings(compilation, parse map[string]string) (Settings, error) {
	raw := make(map[string]interface{}, len(compilation)+len(parse))
	for k, v := range parse {
		raw[k] = v
	}
	for k, v := range compilation {
		raw[k] = v
	}

	var s Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           &s,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("creating settings decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	s.OutputKind = strings.ToLower(strings.TrimSpace(s.OutputKind))
	switch s.OutputKind {
	case "":
		s.OutputKind = OutputLibrary
	case OutputLibrary, OutputExecutable:
	default:
		return Settings{}, fmt.Errorf("%w: output_kind %q", ErrInvalidSettings, s.OutputKind)
	}

	if s.LanguageVersion != "" && !semver.IsValid("v"+strings.TrimPrefix(s.LanguageVersion, "v")) {
		return Settings{}, fmt.Errorf("%w: language_version %q", ErrInvalidSettings, s.LanguageVersion)
	}

	defines := s.Defines[:0]
	for _, d := range s.Defines {
		if d = strings.TrimSpace(d); d != "" {
			defines = append(defines, d)
		}
	}
	s.Defines = defines
	return s, nil
}

// SupportsLanguageVersion reports whether the settings allow features of version v.
func (s Settings) SupportsLanguageVersion(v string) bool {
	if s.LanguageVersion == "" {
		return true
	}
	return semver.Compare("v"+strings.TrimPrefix(s.LanguageVersion, "v"), "v"+strings.TrimPrefix(v, "v")) >= 0
}
