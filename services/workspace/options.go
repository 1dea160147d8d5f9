// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/loader"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/resolve"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/syntax"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/text"
)

// LoadPolicy decides whether load-time failures abort a load.
type LoadPolicy int

const (
	// Lenient records a diagnostic and omits the failing project or edge.
	Lenient LoadPolicy = iota

	// Strict returns the first load-time failure.
	Strict
)

func (p LoadPolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// ChangeKind is a bit set of edit shapes.
type ChangeKind uint32

const (
	ChangeDocumentText ChangeKind = 1 << iota
	ChangeAddDocument
	ChangeRemoveDocument
	ChangeDocumentInfo
	ChangeAdditionalDocumentText
	ChangeAddAdditionalDocument
	ChangeRemoveAdditionalDocument
	ChangeAddProject
	ChangeRemoveProject
	ChangeProjectReferences
	ChangeMetadataReferences
	ChangeAnalyzerReferences
	ChangeCompilationOptions
	ChangeParseOptions
	ChangeProjectAttributes
)

// AllChanges enables every edit shape.
const AllChanges = ChangeDocumentText | ChangeAddDocument | ChangeRemoveDocument |
	ChangeDocumentInfo | ChangeAdditionalDocumentText | ChangeAddAdditionalDocument |
	ChangeRemoveAdditionalDocument | ChangeAddProject | ChangeRemoveProject |
	ChangeProjectReferences | ChangeMetadataReferences | ChangeAnalyzerReferences |
	ChangeCompilationOptions | ChangeParseOptions | ChangeProjectAttributes

// DefaultSupportedChanges excludes adding and removing additional documents,
// which descriptor dumps cannot express.
const DefaultSupportedChanges = AllChanges &^ (ChangeAddAdditionalDocument | ChangeRemoveAdditionalDocument)

var changeNames = []string{
	"document_text",
	"add_document",
	"remove_document",
	"document_info",
	"additional_document_text",
	"add_additional_document",
	"remove_additional_document",
	"add_project",
	"remove_project",
	"project_references",
	"metadata_references",
	"analyzer_references",
	"compilation_options",
	"parse_options",
	"project_attributes",
}

// Has reports whether every bit of other is set in k.
func (k ChangeKind) Has(other ChangeKind) bool {
	return k&other == other
}

func (k ChangeKind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	for i, name := range changeNames {
		if k&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Options configures a Workspace.
type Options struct {
	Policy LoadPolicy

	// LoadMetadataForReferencedProjects substitutes projects that are only
	// reachable through references with their on-disk output when it exists.
	LoadMetadataForReferencedProjects bool

	// SupportedChanges limits TryApplyChanges. Zero means DefaultSupportedChanges.
	SupportedChanges ChangeKind

	// Persist writes accepted document text changes back to disk.
	Persist bool

	// Watch reloads documents changed on disk by other processes.
	Watch bool

	// Text configures file text loading.
	Text text.Options

	// Loader reads descriptors. Nil uses a DescriptorLoader over Text.Fs.
	Loader loader.ProjectLoader

	// Compiler builds compilations. Nil uses the tree-sitter compiler.
	Compiler syntax.Compiler

	// Cache shares metadata references. Nil creates one over Text.Fs.
	Cache *metadata.Cache

	// SkeletonStore optionally persists skeleton images.
	SkeletonStore resolve.SkeletonStore

	Logger *slog.Logger
}
