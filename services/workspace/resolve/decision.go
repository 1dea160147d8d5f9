// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"fmt"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
)

// DecisionKind is what a referencing compilation sees for one project reference.
type DecisionKind int

const (
	// DecisionCompilation binds directly to the target's in-memory compilation.
	DecisionCompilation DecisionKind = iota

	// DecisionSkeleton binds to a public-surface image of a target written in
	// another language.
	DecisionSkeleton

	// DecisionMetadata binds to the target's on-disk output.
	DecisionMetadata

	// DecisionDangling means the target cannot be found.
	DecisionDangling

	// DecisionBuildOrderOnly orders the build without exposing the target's output.
	DecisionBuildOrderOnly

	// DecisionCycleSuppressed means the edge would close a reference cycle.
	DecisionCycleSuppressed
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionCompilation:
		return "compilation"
	case DecisionSkeleton:
		return "skeleton"
	case DecisionMetadata:
		return "metadata"
	case DecisionDangling:
		return "dangling"
	case DecisionBuildOrderOnly:
		return "build_order_only"
	case DecisionCycleSuppressed:
		return "cycle_suppressed"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Binds reports whether the decision contributes a referenced assembly.
func (k DecisionKind) Binds() bool {
	return k == DecisionCompilation || k == DecisionSkeleton || k == DecisionMetadata
}

// Decision is the outcome for one declared edge.
type Decision struct {
	Kind      DecisionKind
	From      solution.ProjectID
	Reference solution.ProjectReference

	// MetadataPath is the on-disk output bound by a DecisionMetadata.
	MetadataPath string
}

func (d Decision) String() string {
	s := fmt.Sprintf("%s -> %s: %s", d.From, d.Reference.ProjectID, d.Kind)
	if d.MetadataPath != "" {
		s += " (" + d.MetadataPath + ")"
	}
	return s
}

// Policy controls how dangling edges affect compilation.
type Policy struct {
	// SkipUnresolved compiles without dangling targets instead of failing.
	SkipUnresolved bool
}

// Unresolved is raised once per dangling edge.
type Unresolved struct {
	From solution.ProjectID
	To   solution.ProjectID
}
