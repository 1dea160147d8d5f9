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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
)

var (
	// ErrUnresolvedReference indicates a project reference that cannot be bound
	// while the policy forbids skipping it.
	ErrUnresolvedReference = errors.New("unresolved project reference")

	// ErrNoCompiler indicates the resolver has no compiler for a project's language.
	ErrNoCompiler = errors.New("no compiler for language")

	// ErrNoOutputPath indicates Emit was asked for a project without an output path.
	ErrNoOutputPath = errors.New("project has no output file path")
)

// UnresolvedError reports a dangling edge that blocked a compilation.
type UnresolvedError struct {
	From solution.ProjectID
	To   solution.ProjectID
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.From, e.To, ErrUnresolvedReference)
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedReference
}
