// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solution

import (
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

// ProjectReference is a declared edge from one project to another.
type ProjectReference struct {
	ProjectID ProjectID
	Aliases   metadata.AliasSet

	EmbedInterop bool

	// ReferenceOutputAssembly is false for build-ordering-only edges, whose
	// target's output is not visible to the referencing compilation.
	ReferenceOutputAssembly bool

	// MetadataPath is the target's on-disk output, set when the target was
	// not opened as a project and its output stands in for it. An edge whose
	// target is in the solution ignores it.
	MetadataPath string
}

// NewProjectReference returns a reference to id that sees its output.
func NewProjectReference(id ProjectID, aliases ...string) ProjectReference {
	return ProjectReference{
		ProjectID:               id,
		Aliases:                 metadata.NewAliasSet(aliases...),
		ReferenceOutputAssembly: true,
	}
}

// AnalyzerReference points at an analyzer binary.
type AnalyzerReference struct {
	FullPath string
}

func containsProjectRef(refs []ProjectReference, ref ProjectReference) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func sameProjectRefs(a, b []ProjectReference) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func removeAt[T any](in []T, i int) []T {
	out := make([]T, 0, len(in)-1)
	out = append(out, in[:i]...)
	return append(out, in[i+1:]...)
}

func appendCopy[T any](in []T, v ...T) []T {
	out := make([]T, 0, len(in)+len(v))
	out = append(out, in...)
	return append(out, v...)
}
