// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding indicates the bytes are not valid in the selected encoding.
	ErrInvalidEncoding = errors.New("text is not valid in the selected encoding")

	// ErrUnknownEncoding indicates a code page or name with no supported encoding.
	ErrUnknownEncoding = errors.New("unknown or unsupported encoding")
)

// LoadFailure describes a text load that did not produce content.
//
// Attempts counts every read attempt including the first.
type LoadFailure struct {
	Path     string
	Attempts int
	Err      error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("loading text from %s failed after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}
