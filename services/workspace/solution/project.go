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
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// ProjectInfo describes a project to add to a solution.
type ProjectInfo struct {
	ID             ProjectID
	Name           string
	AssemblyName   string
	Language       string
	FilePath       string
	OutputFilePath string

	CompilationOptions Options
	ParseOptions       Options

	Documents           []DocumentInfo
	AdditionalDocuments []DocumentInfo

	ProjectReferences  []ProjectReference
	MetadataReferences []*metadata.Reference
	AnalyzerReferences []AnalyzerReference
}

// Project is an immutable snapshot of one project.
//
// # Description
//
// Documents are held in persistent maps, so a transition that touches one
// document shares every other *Document with the source snapshot. Version
// is bumped by every attribute change. A pure text edit leaves Version alone
// and advances LatestDocumentVersion instead.
//
// # Thread Safety
//
// Safe for concurrent use.
type Project struct {
	id             ProjectID
	name           string
	assemblyName   string
	language       string
	filePath       string
	outputFilePath string

	compilationOptions Options
	parseOptions       Options

	documents  docSet
	additional docSet

	projectRefs  []ProjectReference
	metadataRefs []*metadata.Reference
	analyzerRefs []AnalyzerReference

	version               version.Stamp
	latestDocumentVersion version.Stamp
}

// NewProject builds a project snapshot from info.
//
// # Outputs
//
//   - *Project: The new project.
//   - error: ArgumentError when the id is zero, a document id belongs to
//     another project, a document id repeats, or a reference targets the
//     project itself.
func NewProject(info ProjectInfo) (*Project, error) {
	const op = "new project"
	if info.ID.IsZero() {
		return nil, argErr(op, info.ID, ErrZeroID)
	}

	name := info.Name
	if name == "" {
		name = info.ID.DebugName()
	}
	assembly := info.AssemblyName
	if assembly == "" {
		assembly = name
	}

	p := &Project{
		id:                 info.ID,
		name:               name,
		assemblyName:       assembly,
		language:           info.Language,
		filePath:           info.FilePath,
		outputFilePath:     info.OutputFilePath,
		compilationOptions: info.CompilationOptions,
		parseOptions:       info.ParseOptions,
		documents:          newDocSet(),
		additional:         newDocSet(),
		analyzerRefs:       appendCopy(nil, info.AnalyzerReferences...),
	}

	var latest version.Stamp
	for _, infos := range []struct {
		set  *docSet
		docs []DocumentInfo
	}{{&p.documents, info.Documents}, {&p.additional, info.AdditionalDocuments}} {
		for _, di := range infos.docs {
			if err := p.checkNewDocument(op, di.ID); err != nil {
				return nil, err
			}
			d := newDocument(di, info.Language)
			*infos.set = infos.set.add(d)
			latest = version.Newer(latest, d.Version())
		}
	}

	for _, ref := range info.ProjectReferences {
		if ref.ProjectID == info.ID {
			return nil, argErr(op, ref.ProjectID, ErrSelfReference)
		}
		if !containsProjectRef(p.projectRefs, ref) {
			p.projectRefs = append(p.projectRefs, ref)
		}
	}
	for _, ref := range info.MetadataReferences {
		if !containsMetadataRef(p.metadataRefs, ref) {
			p.metadataRefs = append(p.metadataRefs, ref)
		}
	}

	p.version = version.Create()
	p.latestDocumentVersion = latest
	return p, nil
}

// =============================================================================
// Queries
// =============================================================================

func (p *Project) ID() ProjectID { return p.id }

func (p *Project) Name() string { return p.name }

func (p *Project) AssemblyName() string { return p.assemblyName }

func (p *Project) Language() string { return p.language }

func (p *Project) FilePath() string { return p.filePath }

func (p *Project) OutputFilePath() string { return p.outputFilePath }

func (p *Project) CompilationOptions() Options { return p.compilationOptions }

func (p *Project) ParseOptions() Options { return p.parseOptions }

// Version returns the project's attribute version.
func (p *Project) Version() version.Stamp { return p.version }

// LatestDocumentVersion returns the newest document version in the project.
func (p *Project) LatestDocumentVersion() version.Stamp { return p.latestDocumentVersion }

// LatestVersion returns the newer of Version and LatestDocumentVersion.
func (p *Project) LatestVersion() version.Stamp {
	return version.Newer(p.version, p.latestDocumentVersion)
}

func (p *Project) DocumentIDs() []DocumentID { return p.documents.ids() }

// Documents returns the documents in display order.
func (p *Project) Documents() []*Document { return p.documents.list() }

func (p *Project) DocumentCount() int { return p.documents.len() }

func (p *Project) Document(id DocumentID) (*Document, bool) { return p.documents.get(id) }

func (p *Project) ContainsDocument(id DocumentID) bool {
	_, ok := p.documents.get(id)
	return ok
}

func (p *Project) AdditionalDocumentIDs() []DocumentID { return p.additional.ids() }

func (p *Project) AdditionalDocuments() []*Document { return p.additional.list() }

func (p *Project) AdditionalDocument(id DocumentID) (*Document, bool) { return p.additional.get(id) }

func (p *Project) ContainsAdditionalDocument(id DocumentID) bool {
	_, ok := p.additional.get(id)
	return ok
}

// AllProjectReferences returns every declared project reference, including
// ones whose target is absent from the solution. Use
// Solution.ProjectReferences for the resolved subset.
func (p *Project) AllProjectReferences() []ProjectReference {
	return appendCopy(nil, p.projectRefs...)
}

func (p *Project) MetadataReferences() []*metadata.Reference {
	return appendCopy(nil, p.metadataRefs...)
}

func (p *Project) AnalyzerReferences() []AnalyzerReference {
	return appendCopy(nil, p.analyzerRefs...)
}

// =============================================================================
// Attribute transitions
// =============================================================================

func (p *Project) bump() *Project {
	out := *p
	out.version = version.Create()
	return &out
}

func (p *Project) WithName(name string) *Project {
	if name == p.name {
		return p
	}
	out := p.bump()
	out.name = name
	return out
}

func (p *Project) WithAssemblyName(name string) *Project {
	if name == p.assemblyName {
		return p
	}
	out := p.bump()
	out.assemblyName = name
	return out
}

func (p *Project) WithFilePath(path string) *Project {
	if path == p.filePath {
		return p
	}
	out := p.bump()
	out.filePath = path
	return out
}

func (p *Project) WithOutputFilePath(path string) *Project {
	if path == p.outputFilePath {
		return p
	}
	out := p.bump()
	out.outputFilePath = path
	return out
}

func (p *Project) WithCompilationOptions(opts Options) *Project {
	if opts == p.compilationOptions {
		return p
	}
	out := p.bump()
	out.compilationOptions = opts
	return out
}

func (p *Project) WithParseOptions(opts Options) *Project {
	if opts == p.parseOptions {
		return p
	}
	out := p.bump()
	out.parseOptions = opts
	return out
}

// =============================================================================
// Document transitions
// =============================================================================

// WithDocumentText replaces a document's text.
//
// # Description
//
// Only the document version and LatestDocumentVersion advance. Every other
// document is shared with the receiver.
//
// # Outputs
//
//   - *Project: The new snapshot.
//   - error: ArgumentError wrapping ErrUnknownDocument.
func (p *Project) WithDocumentText(id DocumentID, s string) (*Project, error) {
	return p.withText("with document text", &p.documents, id, func(d *Document) *Document {
		return d.WithText(s)
	})
}

// WithDocumentLoader replaces a document's text source. Versioned like a text edit.
func (p *Project) WithDocumentLoader(id DocumentID, loader text.Loader) (*Project, error) {
	return p.withText("with document loader", &p.documents, id, func(d *Document) *Document {
		return d.WithLoader(loader)
	})
}

// WithAdditionalDocumentText replaces an additional document's text.
func (p *Project) WithAdditionalDocumentText(id DocumentID, s string) (*Project, error) {
	return p.withText("with additional document text", &p.additional, id, func(d *Document) *Document {
		return d.WithText(s)
	})
}

func (p *Project) WithDocumentName(id DocumentID, name string) (*Project, error) {
	return p.withDocumentAttr("with document name", id, func(d *Document) *Document {
		return d.WithName(name)
	})
}

func (p *Project) WithDocumentFolders(id DocumentID, folders []string) (*Project, error) {
	return p.withDocumentAttr("with document folders", id, func(d *Document) *Document {
		return d.WithFolders(folders)
	})
}

func (p *Project) WithDocumentFilePath(id DocumentID, path string) (*Project, error) {
	return p.withDocumentAttr("with document file path", id, func(d *Document) *Document {
		return d.WithFilePath(path)
	})
}

func (p *Project) withText(op string, set *docSet, id DocumentID, fn func(*Document) *Document) (*Project, error) {
	d, ok := set.get(id)
	if !ok {
		return nil, argErr(op, id, ErrUnknownDocument)
	}
	nd := fn(d)

	out := *p
	if set == &p.documents {
		out.documents = p.documents.replace(nd)
	} else {
		out.additional = p.additional.replace(nd)
	}
	out.latestDocumentVersion = nd.Version()
	return &out, nil
}

func (p *Project) withDocumentAttr(op string, id DocumentID, fn func(*Document) *Document) (*Project, error) {
	d, ok := p.documents.get(id)
	if !ok {
		return nil, argErr(op, id, ErrUnknownDocument)
	}
	nd := fn(d)

	out := p.bump()
	out.documents = p.documents.replace(nd)
	out.latestDocumentVersion = nd.Version()
	return out, nil
}

// AddDocuments adds source documents.
//
// # Outputs
//
//   - error: ArgumentError wrapping ErrWrongProject or ErrDuplicateDocument.
func (p *Project) AddDocuments(infos ...DocumentInfo) (*Project, error) {
	return p.addDocs("add document", false, infos)
}

// AddAdditionalDocuments adds non-source documents.
func (p *Project) AddAdditionalDocuments(infos ...DocumentInfo) (*Project, error) {
	return p.addDocs("add additional document", true, infos)
}

func (p *Project) addDocs(op string, additional bool, infos []DocumentInfo) (*Project, error) {
	out := p.bump()
	seen := make(map[DocumentID]struct{}, len(infos))
	for _, info := range infos {
		if err := p.checkNewDocument(op, info.ID); err != nil {
			return nil, err
		}
		if _, dup := seen[info.ID]; dup {
			return nil, argErr(op, info.ID, ErrDuplicateDocument)
		}
		seen[info.ID] = struct{}{}

		d := newDocument(info, p.language)
		if additional {
			out.additional = out.additional.add(d)
		} else {
			out.documents = out.documents.add(d)
		}
		out.latestDocumentVersion = d.Version()
	}
	return out, nil
}

func (p *Project) checkNewDocument(op string, id DocumentID) error {
	if id.IsZero() {
		return argErr(op, id, ErrZeroID)
	}
	if id.ProjectID() != p.id {
		return argErr(op, id, ErrWrongProject)
	}
	if p.ContainsDocument(id) || p.ContainsAdditionalDocument(id) {
		return argErr(op, id, ErrDuplicateDocument)
	}
	return nil
}

// RemoveDocuments removes source documents. All ids must exist.
func (p *Project) RemoveDocuments(ids ...DocumentID) (*Project, error) {
	out := p.bump()
	for _, id := range ids {
		if _, ok := out.documents.get(id); !ok {
			return nil, argErr("remove document", id, ErrUnknownDocument)
		}
		out.documents = out.documents.remove(id)
	}
	return out, nil
}

// RemoveAdditionalDocuments removes additional documents. All ids must exist.
func (p *Project) RemoveAdditionalDocuments(ids ...DocumentID) (*Project, error) {
	out := p.bump()
	for _, id := range ids {
		if _, ok := out.additional.get(id); !ok {
			return nil, argErr("remove additional document", id, ErrUnknownDocument)
		}
		out.additional = out.additional.remove(id)
	}
	return out, nil
}

// =============================================================================
// Reference transitions
// =============================================================================

func (p *Project) AddProjectReference(ref ProjectReference) (*Project, error) {
	const op = "add project reference"
	if ref.ProjectID == p.id {
		return nil, argErr(op, ref.ProjectID, ErrSelfReference)
	}
	if containsProjectRef(p.projectRefs, ref) {
		return nil, argErr(op, ref.ProjectID, ErrDuplicateReference)
	}
	out := p.bump()
	out.projectRefs = appendCopy(p.projectRefs, ref)
	return out, nil
}

func (p *Project) RemoveProjectReference(ref ProjectReference) (*Project, error) {
	for i, r := range p.projectRefs {
		if r == ref {
			out := p.bump()
			out.projectRefs = removeAt(p.projectRefs, i)
			return out, nil
		}
	}
	return nil, argErr("remove project reference", ref.ProjectID, ErrUnknownReference)
}

// WithProjectReferences replaces all project references. Duplicates collapse.
func (p *Project) WithProjectReferences(refs []ProjectReference) (*Project, error) {
	var deduped []ProjectReference
	for _, ref := range refs {
		if ref.ProjectID == p.id {
			return nil, argErr("with project references", ref.ProjectID, ErrSelfReference)
		}
		if !containsProjectRef(deduped, ref) {
			deduped = append(deduped, ref)
		}
	}
	if sameProjectRefs(deduped, p.projectRefs) {
		return p, nil
	}
	out := p.bump()
	out.projectRefs = deduped
	return out, nil
}

func (p *Project) AddMetadataReference(ref *metadata.Reference) (*Project, error) {
	if containsMetadataRef(p.metadataRefs, ref) {
		return nil, &ArgumentError{Op: "add metadata reference", ID: ref.String(), Err: ErrDuplicateReference}
	}
	out := p.bump()
	out.metadataRefs = appendCopy(p.metadataRefs, ref)
	return out, nil
}

func (p *Project) RemoveMetadataReference(ref *metadata.Reference) (*Project, error) {
	for i, r := range p.metadataRefs {
		if r == ref {
			out := p.bump()
			out.metadataRefs = removeAt(p.metadataRefs, i)
			return out, nil
		}
	}
	return nil, &ArgumentError{Op: "remove metadata reference", ID: ref.String(), Err: ErrUnknownReference}
}

// WithMetadataReferences replaces all metadata references. Duplicates collapse.
func (p *Project) WithMetadataReferences(refs []*metadata.Reference) *Project {
	var deduped []*metadata.Reference
	for _, ref := range refs {
		if !containsMetadataRef(deduped, ref) {
			deduped = append(deduped, ref)
		}
	}
	out := p.bump()
	out.metadataRefs = deduped
	return out
}

func (p *Project) AddAnalyzerReference(ref AnalyzerReference) (*Project, error) {
	for _, r := range p.analyzerRefs {
		if r == ref {
			return nil, &ArgumentError{Op: "add analyzer reference", ID: ref.FullPath, Err: ErrDuplicateReference}
		}
	}
	out := p.bump()
	out.analyzerRefs = appendCopy(p.analyzerRefs, ref)
	return out, nil
}

func (p *Project) RemoveAnalyzerReference(ref AnalyzerReference) (*Project, error) {
	for i, r := range p.analyzerRefs {
		if r == ref {
			out := p.bump()
			out.analyzerRefs = removeAt(p.analyzerRefs, i)
			return out, nil
		}
	}
	return nil, &ArgumentError{Op: "remove analyzer reference", ID: ref.FullPath, Err: ErrUnknownReference}
}

func containsMetadataRef(refs []*metadata.Reference, ref *metadata.Reference) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
