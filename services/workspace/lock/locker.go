// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides advisory file locking, per-path write serialization,
// and external change notification for workspace-backed files.
package lock

import (
	"os"
)

// FileLocker abstracts platform-specific advisory file locking.
//
// # Description
//
// Provides a unified interface for file locking across Unix and Windows.
// Unix uses flock(2) via golang.org/x/sys/unix, Windows uses LockFileEx.
// All operations are non-blocking.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
type FileLocker interface {
	// Lock acquires an exclusive lock on the file.
	//
	// # Outputs
	//
	//   - error: nil on success, ErrFileLocked if another holder has any lock.
	Lock(f *os.File) error

	// TryRLock acquires a shared lock on the file.
	//
	// # Description
	//
	// Shared locks coexist with other shared locks but not with an
	// exclusive lock. Readers use this to probe for an in-progress write.
	//
	// # Outputs
	//
	//   - error: nil on success, ErrFileLocked if an exclusive lock is held.
	TryRLock(f *os.File) error

	// Unlock releases any lock held through f. Safe to call when not locked.
	Unlock(f *os.File) error
}

// NewFileLocker returns the platform FileLocker.
func NewFileLocker() FileLocker {
	return newPlatformLocker()
}
