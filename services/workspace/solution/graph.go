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
	"sort"
	"strings"
)

// EdgeState classifies a declared project reference within a solution.
type EdgeState int

const (
	// EdgeResolved edges are usable for compilation.
	EdgeResolved EdgeState = iota

	// EdgeDangling edges target a project absent from the solution.
	EdgeDangling

	// EdgeCycleSuppressed edges would close a reference cycle.
	EdgeCycleSuppressed

	// EdgeMetadata edges target a project absent from the solution whose
	// on-disk output stands in for it.
	EdgeMetadata

	// EdgeUnknown means the reference is not declared by the project.
	EdgeUnknown
)

func (e EdgeState) String() string {
	switch e {
	case EdgeResolved:
		return "resolved"
	case EdgeDangling:
		return "dangling"
	case EdgeCycleSuppressed:
		return "cycle_suppressed"
	case EdgeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// DependencyGraph is the resolved view of a solution's project references.
//
// # Description
//
// Every declared edge lands in exactly one of four buckets. Edges whose
// target is absent bind to the target's output when they carry a
// MetadataPath and are dangling otherwise. The remaining edges are accepted one at a
// time in a fixed order (source projects ordered by name, then file path,
// then id; each source's edges ordered the same way by target) and an edge
// is suppressed when its target already reaches its source through accepted
// edges. The accepted set is therefore acyclic, and in a two-project cycle
// the project that sorts first keeps its outgoing edge.
//
// # Thread Safety
//
// Immutable; safe for concurrent use.
type DependencyGraph struct {
	resolved    map[ProjectID][]ProjectReference
	substituted map[ProjectID][]ProjectReference
	dangling    map[ProjectID][]ProjectReference
	suppressed  map[ProjectID][]ProjectReference
	dependents  map[ProjectID][]ProjectID
	order       []ProjectID
}

func projectLess(a, b *Project) bool {
	if a.name != b.name {
		return a.name < b.name
	}
	if a.filePath != b.filePath {
		return a.filePath < b.filePath
	}
	return strings.Compare(a.id.id.String(), b.id.id.String()) < 0
}

func buildGraph(s *Solution) *DependencyGraph {
	g := &DependencyGraph{
		resolved:    make(map[ProjectID][]ProjectReference),
		substituted: make(map[ProjectID][]ProjectReference),
		dangling:    make(map[ProjectID][]ProjectReference),
		suppressed:  make(map[ProjectID][]ProjectReference),
		dependents:  make(map[ProjectID][]ProjectID),
	}

	projects := s.Projects()
	sort.SliceStable(projects, func(i, j int) bool { return projectLess(projects[i], projects[j]) })

	adjacency := make(map[ProjectID][]ProjectID, len(projects))
	for _, p := range projects {
		refs := p.AllProjectReferences()
		sort.SliceStable(refs, func(i, j int) bool {
			ti, iok := s.Project(refs[i].ProjectID)
			tj, jok := s.Project(refs[j].ProjectID)
			switch {
			case iok && jok:
				return projectLess(ti, tj)
			case iok != jok:
				return iok
			default:
				return refs[i].ProjectID.id.String() < refs[j].ProjectID.id.String()
			}
		})

		for _, ref := range refs {
			if !s.ContainsProject(ref.ProjectID) {
				if ref.MetadataPath != "" {
					g.substituted[p.id] = append(g.substituted[p.id], ref)
				} else {
					g.dangling[p.id] = append(g.dangling[p.id], ref)
				}
				continue
			}
			if reaches(adjacency, ref.ProjectID, p.id) {
				g.suppressed[p.id] = append(g.suppressed[p.id], ref)
				continue
			}
			g.resolved[p.id] = append(g.resolved[p.id], ref)
			adjacency[p.id] = append(adjacency[p.id], ref.ProjectID)
			if !containsID(g.dependents[ref.ProjectID], p.id) {
				g.dependents[ref.ProjectID] = append(g.dependents[ref.ProjectID], p.id)
			}
		}
	}

	g.order = topoSort(projects, adjacency)
	return g
}

func reaches(adjacency map[ProjectID][]ProjectID, from, to ProjectID) bool {
	if from == to {
		return true
	}
	seen := map[ProjectID]bool{from: true}
	stack := []ProjectID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[n] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// topoSort orders projects dependencies-first, breaking ties by the sorted
// input order.
func topoSort(sorted []*Project, adjacency map[ProjectID][]ProjectID) []ProjectID {
	remaining := make(map[ProjectID]int, len(sorted))
	for _, p := range sorted {
		remaining[p.id] = len(uniqueIDs(adjacency[p.id]))
	}

	order := make([]ProjectID, 0, len(sorted))
	placed := make(map[ProjectID]bool, len(sorted))
	for len(order) < len(sorted) {
		progressed := false
		for _, p := range sorted {
			if placed[p.id] || remaining[p.id] > 0 {
				continue
			}
			placed[p.id] = true
			order = append(order, p.id)
			progressed = true
			for _, q := range sorted {
				if !placed[q.id] && containsID(adjacency[q.id], p.id) {
					remaining[q.id]--
				}
			}
			break
		}
		if !progressed {
			break
		}
	}
	return order
}

func uniqueIDs(ids []ProjectID) []ProjectID {
	var out []ProjectID
	for _, id := range ids {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []ProjectID, id ProjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ProjectReferences returns the resolved references of id: edges to
// projects in the solution followed by edges bound to on-disk outputs.
func (g *DependencyGraph) ProjectReferences(id ProjectID) []ProjectReference {
	return appendCopy(appendCopy(nil, g.resolved[id]...), g.substituted[id]...)
}

// SubstitutedReferences returns references of id bound to the on-disk
// output of a project that is not open.
func (g *DependencyGraph) SubstitutedReferences(id ProjectID) []ProjectReference {
	return appendCopy(nil, g.substituted[id]...)
}

// DanglingReferences returns references of id whose target is absent.
func (g *DependencyGraph) DanglingReferences(id ProjectID) []ProjectReference {
	return appendCopy(nil, g.dangling[id]...)
}

// SuppressedReferences returns references of id dropped to break a cycle.
func (g *DependencyGraph) SuppressedReferences(id ProjectID) []ProjectReference {
	return appendCopy(nil, g.suppressed[id]...)
}

// EdgeState classifies ref as declared by from.
func (g *DependencyGraph) EdgeState(from ProjectID, ref ProjectReference) EdgeState {
	switch {
	case containsProjectRef(g.resolved[from], ref):
		return EdgeResolved
	case containsProjectRef(g.substituted[from], ref):
		return EdgeMetadata
	case containsProjectRef(g.dangling[from], ref):
		return EdgeDangling
	case containsProjectRef(g.suppressed[from], ref):
		return EdgeCycleSuppressed
	default:
		return EdgeUnknown
	}
}

// TopologicalOrder lists all projects with dependencies before dependents.
func (g *DependencyGraph) TopologicalOrder() []ProjectID {
	return appendCopy(nil, g.order...)
}

// DirectDependencies returns the distinct projects in the solution that id's
// resolved references target.
func (g *DependencyGraph) DirectDependencies(id ProjectID) []ProjectID {
	var out []ProjectID
	for _, ref := range g.resolved[id] {
		if !containsID(out, ref.ProjectID) {
			out = append(out, ref.ProjectID)
		}
	}
	return out
}

// TransitiveDependencies returns every project id reaches through resolved edges.
func (g *DependencyGraph) TransitiveDependencies(id ProjectID) []ProjectID {
	return g.walk(id, g.DirectDependencies)
}

// Dependents returns the projects that directly reference id.
func (g *DependencyGraph) Dependents(id ProjectID) []ProjectID {
	return appendCopy(nil, g.dependents[id]...)
}

// TransitiveDependents returns every project that reaches id through resolved edges.
func (g *DependencyGraph) TransitiveDependents(id ProjectID) []ProjectID {
	return g.walk(id, g.Dependents)
}

func (g *DependencyGraph) walk(start ProjectID, next func(ProjectID) []ProjectID) []ProjectID {
	seen := map[ProjectID]bool{start: true}
	var out []ProjectID
	queue := next(start)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		queue = append(queue, next(n)...)
	}
	return out
}
