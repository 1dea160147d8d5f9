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

// SolutionChanges lists the differences between two snapshots of one solution.
type SolutionChanges struct {
	Old *Solution
	New *Solution

	AddedProjects   []ProjectID
	RemovedProjects []ProjectID
	ProjectChanges  []ProjectChanges
}

// IsEmpty reports whether nothing changed.
func (c SolutionChanges) IsEmpty() bool {
	return len(c.AddedProjects) == 0 && len(c.RemovedProjects) == 0 && len(c.ProjectChanges) == 0
}

// ProjectChanges lists the differences between two snapshots of one project.
type ProjectChanges struct {
	ID  ProjectID
	Old *Project
	New *Project

	AddedDocuments   []DocumentID
	RemovedDocuments []DocumentID
	// ChangedDocuments holds documents present in both snapshots whose
	// Document value differs.
	ChangedDocuments []DocumentID

	AddedAdditionalDocuments   []DocumentID
	RemovedAdditionalDocuments []DocumentID
	ChangedAdditionalDocuments []DocumentID

	AddedProjectReferences    []ProjectReference
	RemovedProjectReferences  []ProjectReference
	AddedMetadataReferences   []*metadata.Reference
	RemovedMetadataReferences []*metadata.Reference
	AddedAnalyzerReferences   []AnalyzerReference
	RemovedAnalyzerReferences []AnalyzerReference

	CompilationOptionsChanged bool
	ParseOptionsChanged       bool

	// AttributesChanged covers name, assembly name, file and output paths.
	AttributesChanged bool
}

// OnlyDocumentTextChanged reports whether the only differences are in
// existing documents.
func (c ProjectChanges) OnlyDocumentTextChanged() bool {
	return len(c.AddedDocuments) == 0 && len(c.RemovedDocuments) == 0 &&
		len(c.AddedAdditionalDocuments) == 0 && len(c.RemovedAdditionalDocuments) == 0 &&
		len(c.AddedProjectReferences) == 0 && len(c.RemovedProjectReferences) == 0 &&
		len(c.AddedMetadataReferences) == 0 && len(c.RemovedMetadataReferences) == 0 &&
		len(c.AddedAnalyzerReferences) == 0 && len(c.RemovedAnalyzerReferences) == 0 &&
		!c.CompilationOptionsChanged && !c.ParseOptionsChanged && !c.AttributesChanged
}

// Changes compares two snapshots. Unchanged projects and documents are
// detected by identity, which structural sharing makes exact.
func Changes(oldSol, newSol *Solution) SolutionChanges {
	out := SolutionChanges{Old: oldSol, New: newSol}
	if oldSol == newSol {
		return out
	}

	for _, id := range newSol.order {
		if !oldSol.ContainsProject(id) {
			out.AddedProjects = append(out.AddedProjects, id)
		}
	}
	for _, id := range oldSol.order {
		np, ok := newSol.Project(id)
		if !ok {
			out.RemovedProjects = append(out.RemovedProjects, id)
			continue
		}
		op, _ := oldSol.Project(id)
		if op == np {
			continue
		}
		out.ProjectChanges = append(out.ProjectChanges, projectChanges(op, np))
	}
	return out
}

func projectChanges(op, np *Project) ProjectChanges {
	c := ProjectChanges{ID: np.id, Old: op, New: np}

	c.AddedDocuments, c.RemovedDocuments, c.ChangedDocuments = diffDocs(op.documents, np.documents)
	c.AddedAdditionalDocuments, c.RemovedAdditionalDocuments, c.ChangedAdditionalDocuments = diffDocs(op.additional, np.additional)

	c.AddedProjectReferences, c.RemovedProjectReferences = diffSlices(op.projectRefs, np.projectRefs)
	c.AddedMetadataReferences, c.RemovedMetadataReferences = diffSlices(op.metadataRefs, np.metadataRefs)
	c.AddedAnalyzerReferences, c.RemovedAnalyzerReferences = diffSlices(op.analyzerRefs, np.analyzerRefs)

	c.CompilationOptionsChanged = op.compilationOptions != np.compilationOptions
	c.ParseOptionsChanged = op.parseOptions != np.parseOptions
	c.AttributesChanged = op.name != np.name || op.assemblyName != np.assemblyName ||
		op.filePath != np.filePath || op.outputFilePath != np.outputFilePath
	return c
}

func diffDocs(oldSet, newSet docSet) (added, removed, changed []DocumentID) {
	if oldSet.byID == newSet.byID {
		return nil, nil, nil
	}
	for _, id := range newSet.order {
		nd, _ := newSet.get(id)
		od, ok := oldSet.get(id)
		switch {
		case !ok:
			added = append(added, id)
		case od != nd:
			changed = append(changed, id)
		}
	}
	for _, id := range oldSet.order {
		if _, ok := newSet.get(id); !ok {
			removed = append(removed, id)
		}
	}
	return added, removed, changed
}

func diffSlices[T comparable](oldItems, newItems []T) (added, removed []T) {
	has := func(items []T, v T) bool {
		for _, x := range items {
			if x == v {
				return true
			}
		}
		return false
	}
	for _, v := range newItems {
		if !has(oldItems, v) {
			added = append(added, v)
		}
	}
	for _, v := range oldItems {
		if !has(newItems, v) {
			removed = append(removed, v)
		}
	}
	return added, removed
}
