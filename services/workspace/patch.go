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
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
)

// ApplyPatch applies a single-file unified diff to a document's text.
//
// # Description
//
// The diff may carry "---"/"+++" headers or start directly at the first
// hunk. Header file names are ignored; the diff always targets id. Every
// context and removed line must match the current text.
//
// # Outputs
//
//   - error: ErrPatchConflict if the diff does not apply, a parse error, an
//     unknown document, or any TryApplyChanges error.
func (w *Workspace) ApplyPatch(ctx context.Context, id solution.DocumentID, unified string) error {
	hunks, err := parseHunks([]byte(unified))
	if err != nil {
		return err
	}
	return w.Apply(ctx, func(s *solution.Solution) (*solution.Solution, error) {
		doc, ok := s.Document(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", solution.ErrUnknownDocument, id)
		}
		original, err := doc.Text(ctx)
		if err != nil {
			return nil, err
		}
		patched, err := applyHunks(original, hunks)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Name(), err)
		}
		return s.WithDocumentText(id, patched)
	})
}

func parseHunks(data []byte) ([]*diff.Hunk, error) {
	if bytes.HasPrefix(data, []byte("@@")) {
		hunks, err := diff.ParseHunks(data)
		if err != nil {
			return nil, fmt.Errorf("parsing patch: %w", err)
		}
		return hunks, nil
	}
	fd, err := diff.ParseFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parsing patch: %w", err)
	}
	return fd.Hunks, nil
}

// applyHunks replays hunks in order against original.
func applyHunks(original string, hunks []*diff.Hunk) (string, error) {
	origLines := strings.Split(original, "\n")
	out := make([]string, 0, len(origLines))

	idx := 0
	for _, hunk := range hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Pure insertion hunks name the line after which text goes.
			start = int(hunk.OrigStartLine)
		}
		if start < idx || start > len(origLines) {
			return "", fmt.Errorf("%w: hunk at line %d out of order", ErrPatchConflict, hunk.OrigStartLine)
		}
		out = append(out, origLines[idx:start]...)
		idx = start

		body := strings.TrimSuffix(string(hunk.Body), "\n")
		if body == "" {
			continue
		}
		for _, line := range strings.Split(body, "\n") {
			var op byte = ' '
			if line != "" {
				op, line = line[0], line[1:]
			}
			switch op {
			case '+':
				out = append(out, line)
			case '-', ' ':
				if idx >= len(origLines) || origLines[idx] != line {
					return "", fmt.Errorf("%w: line %d does not match", ErrPatchConflict, idx+1)
				}
				if op == ' ' {
					out = append(out, line)
				}
				idx++
			case '\\':
				// "\ No newline at end of file"
			default:
				return "", fmt.Errorf("%w: malformed hunk line %q", ErrPatchConflict, line)
			}
		}
	}
	out = append(out, origLines[idx:]...)
	return strings.Join(out, "\n"), nil
}
