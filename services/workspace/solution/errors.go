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
	"errors"
	"fmt"
)

var (
	ErrUnknownProject     = errors.New("project is not part of the solution")
	ErrUnknownDocument    = errors.New("document is not part of the project")
	ErrDuplicateProject   = errors.New("project is already part of the solution")
	ErrDuplicateDocument  = errors.New("document is already part of the project")
	ErrUnknownReference   = errors.New("reference is not part of the project")
	ErrDuplicateReference = errors.New("reference is already part of the project")
	ErrSelfReference      = errors.New("project cannot reference itself")
	ErrWrongProject       = errors.New("id belongs to a different project")
	ErrZeroID             = errors.New("id is not initialized")
)

// ArgumentError reports an invalid argument to a state transition.
//
// Returned by every With/Add/Remove operation given an unknown or conflicting
// id. The receiver is never modified.
type ArgumentError struct {
	Op  string
	ID  string
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func argErr(op string, id fmt.Stringer, err error) error {
	return &ArgumentError{Op: op, ID: id.String(), Err: err}
}
