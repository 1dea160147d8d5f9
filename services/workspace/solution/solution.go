// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solution models a versioned, immutable project graph.
//
// Document, Project and Solution are persistent snapshots. Every transition
// returns a new snapshot that shares all untouched structure with its source,
// and previously obtained snapshots never change.
//
// Version rules:
//
//   - A document text edit advances the document's version and the owning
//     project's LatestDocumentVersion only.
//   - A project attribute edit advances the project's Version.
//   - Adding or removing a project, or a project-to-project edge, advances
//     the solution's Version.
package solution

import (
	"path/filepath"
	"sync"

	"github.com/benbjohnson/immutable"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// Solution is an immutable snapshot of the project graph.
//
// # Thread Safety
//
// Safe for concurrent use.
type Solution struct {
	id       SolutionID
	filePath string

	projects *immutable.SortedMap[ProjectID, *Project]
	order    []ProjectID

	version              version.Stamp
	latestProjectVersion version.Stamp

	// workspaceVersion identifies the workspace publication this snapshot
	// was forked from.
	workspaceVersion uint64

	graph *graphCell
}

type graphCell struct {
	once  sync.Once
	graph *DependencyGraph
}

// New returns an empty solution.
func New(id SolutionID, filePath string) *Solution {
	v := version.Create()
	return &Solution{
		id:                   id,
		filePath:             filePath,
		projects:             immutable.NewSortedMap[ProjectID, *Project](projectIDComparer{}),
		version:              v,
		latestProjectVersion: v,
		graph:                &graphCell{},
	}
}

// =============================================================================
// Queries
// =============================================================================

func (s *Solution) ID() SolutionID { return s.id }

func (s *Solution) FilePath() string { return s.filePath }

// Version advances only on graph-shape changes.
func (s *Solution) Version() version.Stamp { return s.version }

// LatestProjectVersion is the newest project or document version in the solution.
func (s *Solution) LatestProjectVersion() version.Stamp { return s.latestProjectVersion }

func (s *Solution) ProjectIDs() []ProjectID { return appendCopy(nil, s.order...) }

// Projects returns the projects in insertion order.
func (s *Solution) Projects() []*Project {
	out := make([]*Project, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.projects.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Solution) ProjectCount() int { return s.projects.Len() }

func (s *Solution) Project(id ProjectID) (*Project, bool) { return s.projects.Get(id) }

func (s *Solution) ContainsProject(id ProjectID) bool {
	_, ok := s.projects.Get(id)
	return ok
}

// ProjectByName returns the first project with the given name.
func (s *Solution) ProjectByName(name string) (*Project, bool) {
	for _, p := range s.Projects() {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// ProjectByFilePath returns the project loaded from path.
func (s *Solution) ProjectByFilePath(path string) (*Project, bool) {
	if path == "" {
		return nil, false
	}
	path = filepath.Clean(path)
	for _, p := range s.Projects() {
		if p.filePath != "" && filepath.Clean(p.filePath) == path {
			return p, true
		}
	}
	return nil, false
}

// FindProject looks a project up by the string form of its uuid.
func (s *Solution) FindProject(uuid string) (*Project, bool) {
	for _, p := range s.Projects() {
		if p.id.id.String() == uuid {
			return p, true
		}
	}
	return nil, false
}

func (s *Solution) Document(id DocumentID) (*Document, bool) {
	p, ok := s.projects.Get(id.ProjectID())
	if !ok {
		return nil, false
	}
	return p.Document(id)
}

func (s *Solution) AdditionalDocument(id DocumentID) (*Document, bool) {
	p, ok := s.projects.Get(id.ProjectID())
	if !ok {
		return nil, false
	}
	return p.AdditionalDocument(id)
}

func (s *Solution) ContainsDocument(id DocumentID) bool {
	_, ok := s.Document(id)
	return ok
}

// FindDocument looks a source document up by the string form of its uuid.
func (s *Solution) FindDocument(uuid string) (*Document, bool) {
	for _, p := range s.Projects() {
		for _, d := range p.Documents() {
			if d.id.id.String() == uuid {
				return d, true
			}
		}
	}
	return nil, false
}

// DocumentIDsWithFilePath returns every source or additional document backed by path.
func (s *Solution) DocumentIDsWithFilePath(path string) []DocumentID {
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)
	var out []DocumentID
	for _, p := range s.Projects() {
		for _, d := range append(p.Documents(), p.AdditionalDocuments()...) {
			if d.filePath != "" && filepath.Clean(d.filePath) == path {
				out = append(out, d.id)
			}
		}
	}
	return out
}

// DependencyGraph returns the resolved reference graph, computed on first use.
func (s *Solution) DependencyGraph() *DependencyGraph {
	s.graph.once.Do(func() {
		s.graph.graph = buildGraph(s)
	})
	return s.graph.graph
}

// ProjectReferences returns the resolved subset of id's declared references.
func (s *Solution) ProjectReferences(id ProjectID) []ProjectReference {
	return s.DependencyGraph().ProjectReferences(id)
}

// =============================================================================
// Graph-shape transitions
// =============================================================================

// WorkspaceVersion returns the workspace publication this snapshot derives from.
func (s *Solution) WorkspaceVersion() uint64 { return s.workspaceVersion }

// WithWorkspaceVersion stamps the snapshot with a workspace publication
// number. Projects and the dependency graph are shared with s.
func (s *Solution) WithWorkspaceVersion(v uint64) *Solution {
	if s.workspaceVersion == v {
		return s
	}
	out := *s
	out.workspaceVersion = v
	return &out
}

func (s *Solution) WithFilePath(path string) *Solution {
	out := *s
	out.filePath = path
	return &out
}

// AddProject adds a project built from info.
//
// # Outputs
//
//   - *Solution: The new snapshot with a newer Version.
//   - error: ArgumentError wrapping ErrDuplicateProject, or any NewProject error.
func (s *Solution) AddProject(info ProjectInfo) (*Solution, error) {
	p, err := NewProject(info)
	if err != nil {
		return nil, err
	}
	return s.AddProjectState(p)
}

// AddProjectState adds an already built project snapshot.
func (s *Solution) AddProjectState(p *Project) (*Solution, error) {
	if s.ContainsProject(p.id) {
		return nil, argErr("add project", p.id, ErrDuplicateProject)
	}
	v := version.Create()
	return &Solution{
		id:                   s.id,
		filePath:             s.filePath,
		projects:             s.projects.Set(p.id, p),
		order:                appendCopy(s.order, p.id),
		version:              v,
		latestProjectVersion: version.Max(s.latestProjectVersion, v, p.LatestVersion()),
		workspaceVersion:     s.workspaceVersion,
		graph:                &graphCell{},
	}, nil
}

// RemoveProject removes a project. References to it from other projects
// remain declared and become dangling.
func (s *Solution) RemoveProject(id ProjectID) (*Solution, error) {
	for i, existing := range s.order {
		if existing != id {
			continue
		}
		v := version.Create()
		return &Solution{
			id:                   s.id,
			filePath:             s.filePath,
			projects:             s.projects.Delete(id),
			order:                removeAt(s.order, i),
			version:              v,
			latestProjectVersion: v,
			workspaceVersion:     s.workspaceVersion,
			graph:                &graphCell{},
		}, nil
	}
	return nil, argErr("remove project", id, ErrUnknownProject)
}

// WithProjectState replaces an existing project with another snapshot of it.
func (s *Solution) WithProjectState(p *Project) (*Solution, error) {
	old, ok := s.projects.Get(p.id)
	if !ok {
		return nil, argErr("with project", p.id, ErrUnknownProject)
	}
	if old == p {
		return s, nil
	}
	return s.replaceProject(old, p), nil
}

func (s *Solution) replaceProject(old, p *Project) *Solution {
	out := *s
	out.projects = s.projects.Set(p.id, p)
	out.latestProjectVersion = version.Max(s.latestProjectVersion, p.Version(), p.LatestDocumentVersion())

	switch {
	case !sameProjectRefs(old.projectRefs, p.projectRefs):
		out.version = version.Create()
		out.latestProjectVersion = version.Newer(out.latestProjectVersion, out.version)
		out.graph = &graphCell{}
	case old.name != p.name || old.filePath != p.filePath:
		// Ordering keys changed; edges did not.
		out.graph = &graphCell{}
	}
	return &out
}

func (s *Solution) updateProject(op string, id ProjectID, fn func(*Project) (*Project, error)) (*Solution, error) {
	p, ok := s.projects.Get(id)
	if !ok {
		return nil, argErr(op, id, ErrUnknownProject)
	}
	np, err := fn(p)
	if err != nil {
		return nil, err
	}
	if np == p {
		return s, nil
	}
	return s.replaceProject(p, np), nil
}

// AddProjectReference adds an edge from one project to another present project.
func (s *Solution) AddProjectReference(from ProjectID, ref ProjectReference) (*Solution, error) {
	if !s.ContainsProject(ref.ProjectID) {
		return nil, argErr("add project reference", ref.ProjectID, ErrUnknownProject)
	}
	return s.updateProject("add project reference", from, func(p *Project) (*Project, error) {
		return p.AddProjectReference(ref)
	})
}

func (s *Solution) RemoveProjectReference(from ProjectID, ref ProjectReference) (*Solution, error) {
	return s.updateProject("remove project reference", from, func(p *Project) (*Project, error) {
		return p.RemoveProjectReference(ref)
	})
}

// WithProjectReferences replaces all declared references of a project.
func (s *Solution) WithProjectReferences(id ProjectID, refs []ProjectReference) (*Solution, error) {
	return s.updateProject("with project references", id, func(p *Project) (*Project, error) {
		return p.WithProjectReferences(refs)
	})
}

// =============================================================================
// Project attribute transitions
// =============================================================================

func (s *Solution) WithProjectName(id ProjectID, name string) (*Solution, error) {
	return s.updateProject("with project name", id, func(p *Project) (*Project, error) {
		return p.WithName(name), nil
	})
}

func (s *Solution) WithProjectAssemblyName(id ProjectID, name string) (*Solution, error) {
	return s.updateProject("with project assembly name", id, func(p *Project) (*Project, error) {
		return p.WithAssemblyName(name), nil
	})
}

func (s *Solution) WithProjectFilePath(id ProjectID, path string) (*Solution, error) {
	return s.updateProject("with project file path", id, func(p *Project) (*Project, error) {
		return p.WithFilePath(path), nil
	})
}

func (s *Solution) WithProjectOutputFilePath(id ProjectID, path string) (*Solution, error) {
	return s.updateProject("with project output file path", id, func(p *Project) (*Project, error) {
		return p.WithOutputFilePath(path), nil
	})
}

func (s *Solution) WithProjectCompilationOptions(id ProjectID, opts Options) (*Solution, error) {
	return s.updateProject("with compilation options", id, func(p *Project) (*Project, error) {
		return p.WithCompilationOptions(opts), nil
	})
}

func (s *Solution) WithProjectParseOptions(id ProjectID, opts Options) (*Solution, error) {
	return s.updateProject("with parse options", id, func(p *Project) (*Project, error) {
		return p.WithParseOptions(opts), nil
	})
}

func (s *Solution) AddMetadataReference(id ProjectID, ref *metadata.Reference) (*Solution, error) {
	return s.updateProject("add metadata reference", id, func(p *Project) (*Project, error) {
		return p.AddMetadataReference(ref)
	})
}

func (s *Solution) RemoveMetadataReference(id ProjectID, ref *metadata.Reference) (*Solution, error) {
	return s.updateProject("remove metadata reference", id, func(p *Project) (*Project, error) {
		return p.RemoveMetadataReference(ref)
	})
}

func (s *Solution) WithProjectMetadataReferences(id ProjectID, refs []*metadata.Reference) (*Solution, error) {
	return s.updateProject("with metadata references", id, func(p *Project) (*Project, error) {
		return p.WithMetadataReferences(refs), nil
	})
}

func (s *Solution) AddAnalyzerReference(id ProjectID, ref AnalyzerReference) (*Solution, error) {
	return s.updateProject("add analyzer reference", id, func(p *Project) (*Project, error) {
		return p.AddAnalyzerReference(ref)
	})
}

func (s *Solution) RemoveAnalyzerReference(id ProjectID, ref AnalyzerReference) (*Solution, error) {
	return s.updateProject("remove analyzer reference", id, func(p *Project) (*Project, error) {
		return p.RemoveAnalyzerReference(ref)
	})
}

// =============================================================================
// Document transitions
// =============================================================================

// AddDocument adds a source document to the project named by info.ID.
func (s *Solution) AddDocument(info DocumentInfo) (*Solution, error) {
	return s.updateProject("add document", info.ID.ProjectID(), func(p *Project) (*Project, error) {
		return p.AddDocuments(info)
	})
}

// AddDocuments adds source documents, possibly to several projects.
func (s *Solution) AddDocuments(infos ...DocumentInfo) (*Solution, error) {
	out := s
	for _, group := range groupByProject(infos, func(i DocumentInfo) ProjectID { return i.ID.ProjectID() }) {
		var err error
		out, err = out.updateProject("add document", group.id, func(p *Project) (*Project, error) {
			return p.AddDocuments(group.items...)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Solution) AddAdditionalDocument(info DocumentInfo) (*Solution, error) {
	return s.updateProject("add additional document", info.ID.ProjectID(), func(p *Project) (*Project, error) {
		return p.AddAdditionalDocuments(info)
	})
}

func (s *Solution) RemoveDocument(id DocumentID) (*Solution, error) {
	return s.RemoveDocuments(id)
}

// RemoveDocuments removes source documents, possibly from several projects.
func (s *Solution) RemoveDocuments(ids ...DocumentID) (*Solution, error) {
	out := s
	for _, group := range groupByProject(ids, DocumentID.ProjectID) {
		var err error
		out, err = out.updateProject("remove document", group.id, func(p *Project) (*Project, error) {
			return p.RemoveDocuments(group.items...)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Solution) RemoveAdditionalDocument(id DocumentID) (*Solution, error) {
	return s.updateProject("remove additional document", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.RemoveAdditionalDocuments(id)
	})
}

// WithDocumentText replaces a document's text. Solution and project versions
// are unchanged.
func (s *Solution) WithDocumentText(id DocumentID, newText string) (*Solution, error) {
	return s.updateProject("with document text", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithDocumentText(id, newText)
	})
}

func (s *Solution) WithDocumentTextLoader(id DocumentID, loader text.Loader) (*Solution, error) {
	return s.updateProject("with document loader", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithDocumentLoader(id, loader)
	})
}

func (s *Solution) WithAdditionalDocumentText(id DocumentID, newText string) (*Solution, error) {
	return s.updateProject("with additional document text", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithAdditionalDocumentText(id, newText)
	})
}

func (s *Solution) WithDocumentName(id DocumentID, name string) (*Solution, error) {
	return s.updateProject("with document name", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithDocumentName(id, name)
	})
}

func (s *Solution) WithDocumentFolders(id DocumentID, folders []string) (*Solution, error) {
	return s.updateProject("with document folders", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithDocumentFolders(id, folders)
	})
}

func (s *Solution) WithDocumentFilePath(id DocumentID, path string) (*Solution, error) {
	return s.updateProject("with document file path", id.ProjectID(), func(p *Project) (*Project, error) {
		return p.WithDocumentFilePath(id, path)
	})
}

type projectGroup[T any] struct {
	id    ProjectID
	items []T
}

func groupByProject[T any](items []T, key func(T) ProjectID) []projectGroup[T] {
	var groups []projectGroup[T]
	index := make(map[ProjectID]int)
	for _, item := range items {
		id := key(item)
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, projectGroup[T]{id: id})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups
}
