// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the hubctl CLI.
package ux

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// LymphHub palette - lymphatic greens plus semantic accents
var (
	ColorGreenBright = lipgloss.Color("#4ADE80")
	ColorWarning     = lipgloss.Color("#FACC15")
	ColorError       = lipgloss.Color("#F87171")
	ColorSlate       = lipgloss.Color("#475569")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorGreenBright)
	successStyle = lipgloss.NewStyle().Foreground(ColorGreenBright)
	warningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorSlate)
)

// Icon is a themed status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon colored for its meaning. Icons without a
// semantic color pass through unstyled.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return successStyle.Render(string(i))
	case IconWarning:
		return warningStyle.Render(string(i))
	case IconError:
		return errorStyle.Render(string(i))
	case IconPending:
		return mutedStyle.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a bold heading line.
func Title(text string) {
	fmt.Println(titleStyle.Render(text))
}

// Success prints a success line with icon.
func Success(text string) {
	fmt.Printf("%s %s\n", IconSuccess.Render(), successStyle.Render(text))
}

// Warning prints a warning line with icon.
func Warning(text string) {
	fmt.Printf("%s %s\n", IconWarning.Render(), warningStyle.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	fmt.Printf("%s %s\n", IconArrow.Render(), text)
}

// Muted prints de-emphasized text.
func Muted(text string) {
	fmt.Println(mutedStyle.Render(text))
}

// ServiceStatus prints one service line for status summaries.
//
// Example output:
//
//	✓ traefik      healthy (200)
//	⚠ authelia     degraded: auth required (401)
//	✗ headscale    unreachable: connection refused
func ServiceStatus(name string, icon Icon, detail string) {
	fmt.Printf("%s %-14s %s\n", icon.Render(), name, detail)
}
