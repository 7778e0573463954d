// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the devstack CLI.
//
// Output respects a plain mode for non-TTY and machine consumption:
// call SetPlain(true) (the CLI does this when stdout is not a
// terminal) and every helper degrades to unstyled prefixed lines.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Devstack color palette - deep ocean teals shared across Aleutian tools
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status glyphs
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its semantic color.
func (i Icon) Render() string {
	if plainMode() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// StatusIcon maps a safety operation status string to a glyph.
func StatusIcon(status string) Icon {
	switch status {
	case "SUCCEEDED", "ROLLED_BACK":
		return IconSuccess
	case "ROLLBACK_PARTIAL":
		return IconWarning
	case "FAILED":
		return IconError
	default:
		return IconPending
	}
}

// ===== Output State =====

var (
	mu     sync.Mutex
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	plain  bool
)

// SetPlain toggles plain (unstyled, prefixed) output. The CLI enables
// it when stdout is not a terminal.
func SetPlain(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	plain = enabled
}

// SetOutput redirects output streams, primarily for tests.
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = stdout
	errOut = stderr
}

func plainMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return plain
}

func stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// ===== Print Helpers =====

// Title prints a styled section title.
func Title(text string) {
	if plainMode() {
		fmt.Fprintf(stdout(), "== %s ==\n", text)
		return
	}
	fmt.Fprintln(stdout(), Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if plainMode() {
		fmt.Fprintf(stdout(), "OK: %s\n", text)
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if plainMode() {
		fmt.Fprintf(stderr(), "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if plainMode() {
		fmt.Fprintf(stderr(), "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message.
func Info(text string) {
	if plainMode() {
		fmt.Fprintln(stdout(), text)
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text, suppressed in plain mode.
func Muted(text string) {
	if plainMode() {
		return
	}
	fmt.Fprintln(stdout(), Styles.Muted.Render(text))
}

// Step prints a wizard step line with its status glyph and optional detail.
func Step(name string, icon Icon, detail string) {
	if plainMode() {
		fmt.Fprintf(stdout(), "%s\t%s\t%s\n", icon, name, detail)
		return
	}
	if detail != "" {
		fmt.Fprintf(stdout(), "%s %s %s\n", icon.Render(), name, Styles.Muted.Render("("+detail+")"))
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", icon.Render(), name)
}

// Box prints titled content in a rounded box.
func Box(title, content string) {
	if plainMode() {
		fmt.Fprintf(stdout(), "%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	fmt.Fprintln(stdout(), boxStyle.Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints titled content in a warning-colored box. Used for
// rollback-partial reports that need manual attention.
func WarningBox(title, content string) {
	if plainMode() {
		fmt.Fprintf(stderr(), "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(60)
	fmt.Fprintln(stdout(), boxStyle.Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// Summary prints setup result counts.
func Summary(succeeded, failed, skipped int) {
	if plainMode() {
		fmt.Fprintf(stdout(), "SUMMARY: succeeded=%d failed=%d skipped=%d\n", succeeded, failed, skipped)
		return
	}
	fmt.Fprintf(stdout(), "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", succeeded)), Styles.Muted.Render("succeeded"),
		Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
		Styles.Warning.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
	)
}
