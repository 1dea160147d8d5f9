// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// UnixFileLocker implements FileLocker using flock(2).
//
// # Description
//
// Locks are advisory, attached to the open file description, and released on
// close or process exit. Two descriptors opened separately on the same path
// conflict even inside one process.
//
// # Thread Safety
//
// Safe for concurrent use on different files.
type UnixFileLocker struct{}

// Lock acquires an exclusive lock using LOCK_EX|LOCK_NB.
func (l *UnixFileLocker) Lock(f *os.File) error {
	return flock(f, unix.LOCK_EX|unix.LOCK_NB)
}

// TryRLock acquires a shared lock using LOCK_SH|LOCK_NB.
func (l *UnixFileLocker) TryRLock(f *os.File) error {
	return flock(f, unix.LOCK_SH|unix.LOCK_NB)
}

// Unlock releases the lock using LOCK_UN.
func (l *UnixFileLocker) Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EWOULDBLOCK):
			return ErrFileLocked
		default:
			return err
		}
	}
}

func newPlatformLocker() FileLocker {
	return &UnixFileLocker{}
}
