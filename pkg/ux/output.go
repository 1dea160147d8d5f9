// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output with the Aleutian palette.
//
// A Printer writes either styled output for terminals or plain, stable
// text for pipes and scripts. DetectMode picks one from the destination.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Status classifies a line or table row.
type Status int

const (
	StatusNone Status = iota
	StatusOK
	StatusWarning
	StatusError
)

// Icon returns the status glyph, or "" for StatusNone.
func (s Status) Icon() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "⚠"
	case StatusError:
		return "✗"
	default:
		return ""
	}
}

func (s Status) label() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARN"
	case StatusError:
		return "ERROR"
	default:
		return ""
	}
}

func (s Status) style() lipgloss.Style {
	switch s {
	case StatusOK:
		return Styles.Success
	case StatusWarning:
		return Styles.Warning
	case StatusError:
		return Styles.Error
	default:
		return lipgloss.NewStyle()
	}
}

// Mode selects between styled and plain output.
type Mode int

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = iota

	// ModePlain prints stable text for scripts: "LABEL: message" lines and
	// tab-free, space-aligned tables without color.
	ModePlain
)

// DetectMode returns ModeRich when f is a terminal and NO_COLOR is unset.
func DetectMode(f *os.File) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// Printer writes CLI output in one Mode.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	out  io.Writer
	mode Mode
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{out: out, mode: mode}
}

// Stdout returns a Printer for os.Stdout in the detected mode.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, DetectMode(os.Stdout))
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Title prints a heading. Plain mode prints it unstyled.
func (p *Printer) Title(text string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Status prints one message prefixed by the status icon or label.
func (p *Printer) Status(s Status, text string) {
	if p.mode == ModePlain {
		if label := s.label(); label != "" {
			fmt.Fprintf(p.out, "%s: %s\n", label, text)
			return
		}
		fmt.Fprintln(p.out, text)
		return
	}
	if icon := s.Icon(); icon != "" {
		fmt.Fprintf(p.out, "%s %s\n", s.style().Render(icon), s.style().Render(text))
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

func (p *Printer) Success(text string) { p.Status(StatusOK, text) }

func (p *Printer) Warning(text string) { p.Status(StatusWarning, text) }

func (p *Printer) Error(text string) { p.Status(StatusError, text) }

func (p *Printer) Info(text string) { p.Status(StatusNone, text) }

// Box prints text in a rounded box. Plain mode prints the text as is.
func (p *Printer) Box(text string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(text))
}
