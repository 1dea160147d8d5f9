// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one table row. Status colors the row and adds a leading icon
// column in rich mode.
type Row struct {
	Status Status
	Cells  []string
}

// Table prints rows under headers with columns padded to the widest cell.
//
// # Description
//
// Widths are measured with lipgloss.Width so multi-byte cells align. In
// plain mode a status label column is added when any row has a status, so
// scripts can grep for "ERROR". Missing cells render empty; extra cells are
// dropped.
//
// # Inputs
//
//   - headers: Column titles. Determines the column count.
//   - rows: Table body in display order.
func (p *Printer) Table(headers []string, rows []Row) {
	if len(headers) == 0 {
		return
	}
	withStatus := false
	for _, r := range rows {
		if r.Status != StatusNone {
			withStatus = true
			break
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := range headers {
			if i < len(r.Cells) {
				widths[i] = max(widths[i], lipgloss.Width(r.Cells[i]))
			}
		}
	}

	statusWidth := 0
	if withStatus {
		statusWidth = 1
		if p.mode == ModePlain {
			statusWidth = len("STATUS")
			for _, r := range rows {
				statusWidth = max(statusWidth, len(r.Status.label()))
			}
		}
	}

	header := make([]string, len(headers))
	for i, h := range headers {
		header[i] = pad(h, widths[i])
	}
	line := strings.Join(header, "  ")
	if withStatus {
		lead := strings.Repeat(" ", statusWidth)
		if p.mode == ModePlain {
			lead = pad("STATUS", statusWidth)
		}
		line = lead + "  " + line
	}
	line = strings.TrimRight(line, " ")
	if p.mode == ModeRich {
		line = Styles.Header.Render(line)
	}
	fmt.Fprintln(p.out, line)

	for _, r := range rows {
		cells := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(r.Cells) {
				cell = r.Cells[i]
			}
			cells[i] = pad(cell, widths[i])
		}
		body := strings.Join(cells, "  ")
		if withStatus {
			lead := r.Status.Icon()
			if p.mode == ModePlain {
				lead = r.Status.label()
			}
			body = pad(lead, statusWidth) + "  " + body
		}
		body = strings.TrimRight(body, " ")
		if p.mode == ModeRich && r.Status != StatusNone {
			body = r.Status.style().Render(body)
		}
		fmt.Fprintln(p.out, body)
	}
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
