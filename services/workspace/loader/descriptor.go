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
	"fmt"

	"gopkg.in/yaml.v3"
)

// SourceSpec is one source file, optionally remapped into logical folders.
//
// In YAML a source is either a bare path or a mapping with path and folders.
type SourceSpec struct {
	Path    string   `yaml:"path" validate:"required"`
	Folders []string `yaml:"folders,omitempty"`
}

// UnmarshalYAML accepts a scalar path or a full mapping.
func (s *SourceSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Path = node.Value
		return nil
	}
	type plain SourceSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = SourceSpec(p)
	return nil
}

// MetadataReferenceSpec is an external binary reference.
type MetadataReferenceSpec struct {
	Path    string   `yaml:"path" validate:"required"`
	Aliases []string `yaml:"aliases,omitempty" validate:"dive,required"`
	Global  bool     `yaml:"global,omitempty"`
}

// ProjectReferenceSpec references another project file.
type ProjectReferenceSpec struct {
	Path    string   `yaml:"path" validate:"required"`
	Aliases []string `yaml:"aliases,omitempty" validate:"dive,required"`

	// ReferenceOutput defaults to true. False keeps the edge for build
	// ordering only.
	ReferenceOutput *bool `yaml:"reference_output,omitempty"`
}

// IncludesOutput reports whether the referencing project sees the target's output.
func (r ProjectReferenceSpec) IncludesOutput() bool {
	return r.ReferenceOutput == nil || *r.ReferenceOutput
}

// ProjectDescriptor is the evaluated, flat description of one project.
//
// Relative paths in the file are resolved against the descriptor's
// directory during loading.
type ProjectDescriptor struct {
	// Path is the absolute descriptor path. Not read from YAML.
	Path string `yaml:"-"`

	// Language is inferred from the descriptor extension.
	Language string `yaml:"-"`

	Name         string `yaml:"name,omitempty"`
	AssemblyName string `yaml:"assembly_name,omitempty"`
	OutputPath   string `yaml:"output_path,omitempty"`

	Sources            []SourceSpec            `yaml:"sources,omitempty" validate:"dive"`
	AdditionalFiles    []string                `yaml:"additional_files,omitempty" validate:"dive,required"`
	MetadataReferences []MetadataReferenceSpec `yaml:"metadata_references,omitempty" validate:"dive"`
	ProjectReferences  []ProjectReferenceSpec  `yaml:"project_references,omitempty" validate:"dive"`
	AnalyzerReferences []string                `yaml:"analyzer_references,omitempty" validate:"dive,required"`

	CompilationOptions map[string]string `yaml:"compilation_options,omitempty"`
	ParseOptions       map[string]string `yaml:"parse_options,omitempty"`

	// CodePage and Encoding name the source encoding. Either may be empty.
	CodePage int    `yaml:"code_page,omitempty" validate:"gte=0"`
	Encoding string `yaml:"encoding,omitempty"`

	// BuildError is set when evaluating the project failed.
	BuildError string `yaml:"build_error,omitempty"`
}

// SolutionDescriptor lists the project files of a solution.
type SolutionDescriptor struct {
	Path     string   `yaml:"-"`
	Name     string   `yaml:"name,omitempty"`
	Projects []string `yaml:"projects" validate:"dive,required"`
}
