// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrFileLocked indicates the file is locked by another holder.
	ErrFileLocked = errors.New("file is locked")

	// ErrGateClosed indicates the write gate has been closed.
	ErrGateClosed = errors.New("write gate closed")

	// ErrNotWatched indicates Unwatch was called for a path with no watch.
	ErrNotWatched = errors.New("path is not watched")
)

// FileLockError carries the path that could not be locked.
type FileLockError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileLockError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileLockError) Unwrap() error {
	return e.Err
}
