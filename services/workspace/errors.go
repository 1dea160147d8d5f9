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
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedChange indicates an edit the workspace cannot persist.
	ErrUnsupportedChange = errors.New("change not supported by this workspace")

	// ErrClosed indicates the workspace has been closed.
	ErrClosed = errors.New("workspace is closed")

	// ErrSolutionMismatch indicates a solution that does not derive from the
	// workspace's current solution.
	ErrSolutionMismatch = errors.New("solution does not belong to this workspace")

	// ErrConcurrentChange indicates the current solution moved while a change
	// was being applied.
	ErrConcurrentChange = errors.New("current solution changed concurrently")

	// ErrPatchConflict indicates a patch whose context does not match the document.
	ErrPatchConflict = errors.New("patch does not apply")
)

// UnsupportedChangeError names the rejected change kind.
type UnsupportedChangeError struct {
	Kind ChangeKind
}

func (e *UnsupportedChangeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnsupportedChange, e.Kind)
}

func (e *UnsupportedChangeError) Unwrap() error {
	return ErrUnsupportedChange
}
