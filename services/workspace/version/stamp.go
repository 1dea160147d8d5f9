// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version provides totally ordered version stamps for workspace entities.
//
// A Stamp identifies a point-in-time state of a document, project or solution.
// Stamps are ordered by creation, not by wall clock: every stamp created later in
// the process is newer than every stamp created before it, even when the clock
// goes backwards or two stamps share a timestamp.
//
// # Thread Safety
//
// Create and CreateAt are safe for concurrent use. Stamp is an immutable value.
package version

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Stamp is an opaque, totally ordered version token.
//
// The zero Stamp is older than every created stamp and is used for entities
// that have never been versioned.
type Stamp struct {
	utc    time.Time
	global uint64
}

var (
	counter atomic.Uint64

	clockMu sync.RWMutex
	clk     clock.Clock = clock.New()
)

// SetClock replaces the clock used for stamp timestamps and returns a function
// restoring the previous one. Intended for tests.
func SetClock(c clock.Clock) (restore func()) {
	clockMu.Lock()
	prev := clk
	clk = c
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		clk = prev
		clockMu.Unlock()
	}
}

func now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clk.Now()
}

// Create returns a stamp newer than every stamp previously created in the process.
func Create() Stamp {
	return CreateAt(now())
}

// CreateAt returns a new stamp carrying the given timestamp.
//
// # Description
//
// Used when the version is derived from an external source such as a file
// modification time. Ordering still follows creation sequence; the timestamp
// is only consulted by Time() for freshness comparisons against disk artifacts.
//
// # Inputs
//
//   - t: Timestamp to record. Stored in UTC.
//
// # Outputs
//
//   - Stamp: A stamp newer than all previously created stamps.
func CreateAt(t time.Time) Stamp {
	return Stamp{
		utc:    t.UTC(),
		global: counter.Add(1),
	}
}

// IsNewerThan reports whether s was created after other.
func (s Stamp) IsNewerThan(other Stamp) bool {
	return s.global > other.global
}

// Equal reports whether both stamps denote the same creation event.
func (s Stamp) Equal(other Stamp) bool {
	return s.global == other.global
}

// IsZero reports whether s is the zero stamp.
func (s Stamp) IsZero() bool {
	return s.global == 0
}

// Time returns the UTC timestamp recorded when the stamp was created.
func (s Stamp) Time() time.Time {
	return s.utc
}

// Newer returns whichever of a and b is newer.
func Newer(a, b Stamp) Stamp {
	if b.IsNewerThan(a) {
		return b
	}
	return a
}

// Max returns the newest of the given stamps, or the zero stamp if none.
func Max(stamps ...Stamp) Stamp {
	var out Stamp
	for _, s := range stamps {
		out = Newer(out, s)
	}
	return out
}

// String implements fmt.Stringer.
func (s Stamp) String() string {
	if s.IsZero() {
		return "v0"
	}
	return fmt.Sprintf("v%d@%s", s.global, s.utc.Format(time.RFC3339Nano))
}
