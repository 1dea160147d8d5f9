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
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
)

// DiagnosticKind is the severity of a workspace diagnostic.
type DiagnosticKind int

const (
	// DiagnosticFailure means something was omitted from the workspace.
	DiagnosticFailure DiagnosticKind = iota

	// DiagnosticWarning means the workspace is complete but degraded.
	DiagnosticWarning
)

func (k DiagnosticKind) String() string {
	if k == DiagnosticWarning {
		return "warning"
	}
	return "failure"
}

// MarshalText implements encoding.TextMarshaler.
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic records a load-time or background problem.
type Diagnostic struct {
	Kind      DiagnosticKind     `json:"kind"`
	Message   string             `json:"message"`
	Path      string             `json:"path,omitempty"`
	ProjectID solution.ProjectID `json:"-"`
	Time      time.Time          `json:"time"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Path, d.Message)
}

// Diagnostics returns every diagnostic recorded so far, oldest first.
func (w *Workspace) Diagnostics() []Diagnostic {
	w.diagMu.Lock()
	defer w.diagMu.Unlock()
	return append([]Diagnostic(nil), w.diagnostics...)
}

// ClearDiagnostics drops recorded diagnostics.
func (w *Workspace) ClearDiagnostics() {
	w.diagMu.Lock()
	w.diagnostics = nil
	w.diagMu.Unlock()
}

func (w *Workspace) report(d Diagnostic) {
	if d.Time.IsZero() {
		d.Time = w.clock.Now()
	}
	if d.Message == "" && d.Err != nil {
		d.Message = d.Err.Error()
	}
	w.diagMu.Lock()
	w.diagnostics = append(w.diagnostics, d)
	w.diagMu.Unlock()

	w.logger.Warn("workspace diagnostic",
		"kind", d.Kind.String(),
		"path", d.Path,
		"message", d.Message)
	recordDiagnostic(d.Kind)

	cur := w.current.Load()
	w.events.publish(Event{Kind: EventDiagnostic, OldSolution: cur, NewSolution: cur, ProjectID: d.ProjectID, Diagnostic: &d})
}
