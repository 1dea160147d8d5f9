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
	"errors"
	"fmt"
)

var (
	// ErrProjectNotFound indicates a project or solution path that does not exist.
	ErrProjectNotFound = errors.New("project file not found")

	// ErrUnrecognizedExtension indicates a file extension with no associated language.
	ErrUnrecognizedExtension = errors.New("file extension not associated with a language")

	// ErrUnsupportedProjectType indicates a known project type the host cannot compile.
	ErrUnsupportedProjectType = errors.New("project type not supported by this host")

	// ErrInvalidDescriptor indicates a descriptor that cannot be parsed or fails validation.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// LoadError is a load-time failure for one path.
//
// Kind is one of the package sentinels and is matched by errors.Is.
type LoadError struct {
	Path string
	Kind error
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// BuildError carries the message of a failed project evaluation. The
// descriptor returned alongside it has no sources.
type BuildError struct {
	Path    string
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for %s: %s", e.Path, e.Message)
}

func loadErr(path string, kind, err error) error {
	return &LoadError{Path: path, Kind: kind, Err: err}
}
