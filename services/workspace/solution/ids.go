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
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ProjectID is the stable identity of a project across solution snapshots.
// Ids are only minted by NewProjectID, so a uuid never carries two debug
// names and == agrees with uuid identity.
type ProjectID struct {
	id        uuid.UUID
	debugName string
}

// NewProjectID allocates a fresh id. debugName is only used for display.
func NewProjectID(debugName string) ProjectID {
	return ProjectID{id: uuid.New(), debugName: debugName}
}

// UUID returns the underlying uuid.
func (p ProjectID) UUID() uuid.UUID { return p.id }

// DebugName returns the display name supplied at creation.
func (p ProjectID) DebugName() string { return p.debugName }

// IsZero reports whether p is the zero id.
func (p ProjectID) IsZero() bool { return p.id == uuid.Nil }

func (p ProjectID) String() string {
	if p.debugName == "" {
		return p.id.String()
	}
	return fmt.Sprintf("%s (%s)", p.debugName, p.id)
}

// DocumentID is the stable identity of a document within its project.
type DocumentID struct {
	project   ProjectID
	id        uuid.UUID
	debugName string
}

// NewDocumentID allocates a fresh id for a document of project.
func NewDocumentID(project ProjectID, debugName string) DocumentID {
	return DocumentID{project: project, id: uuid.New(), debugName: debugName}
}

// ProjectID returns the owning project's id.
func (d DocumentID) ProjectID() ProjectID { return d.project }

// UUID returns the underlying uuid.
func (d DocumentID) UUID() uuid.UUID { return d.id }

// DebugName returns the display name supplied at creation.
func (d DocumentID) DebugName() string { return d.debugName }

// IsZero reports whether d is the zero id.
func (d DocumentID) IsZero() bool { return d.id == uuid.Nil }

func (d DocumentID) String() string {
	if d.debugName == "" {
		return d.id.String()
	}
	return fmt.Sprintf("%s (%s)", d.debugName, d.id)
}

// SolutionID identifies a solution within a workspace.
type SolutionID struct {
	id uuid.UUID
}

// NewSolutionID allocates a fresh id.
func NewSolutionID() SolutionID {
	return SolutionID{id: uuid.New()}
}

func (s SolutionID) String() string { return s.id.String() }

// projectIDComparer orders project ids by uuid bytes for persistent maps.
type projectIDComparer struct{}

func (projectIDComparer) Compare(a, b ProjectID) int {
	return bytes.Compare(a.id[:], b.id[:])
}

// documentIDComparer orders document ids by uuid bytes for persistent maps.
type documentIDComparer struct{}

func (documentIDComparer) Compare(a, b DocumentID) int {
	return bytes.Compare(a.id[:], b.id[:])
}
