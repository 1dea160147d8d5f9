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

// ChangeType classifies an external modification of a watched file.
type ChangeType int

const (
	ChangeWrite ChangeType = iota
	ChangeCreate
	ChangeDelete
	ChangeRename
)

func (c ChangeType) String() string {
	switch c {
	case ChangeWrite:
		return "write"
	case ChangeCreate:
		return "create"
	case ChangeDelete:
		return "delete"
	case ChangeRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ExternalChangeEvent reports a change to a watched file not made through the gate.
type ExternalChangeEvent struct {
	Path      string
	EventType ChangeType
}

// GateConfig configures a WriteGate.
type GateConfig struct {
	// Locker overrides the platform locker. Nil uses NewFileLocker().
	Locker FileLocker

	// Watch enables fsnotify-based external change detection.
	Watch bool
}
