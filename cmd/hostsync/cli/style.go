// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette colors command output. ANSI 256-color codes, matching the
// rest of the operator tooling.
type Palette struct {
	Add     lipgloss.Style
	Keep    lipgloss.Style
	Remove  lipgloss.Style
	Protect lipgloss.Style
	Faint   lipgloss.Style
}

// NewPalette returns a palette for w. Color is detected from w and the
// environment (NO_COLOR, TERM), so output to a pipe or file is plain.
func NewPalette(w io.Writer) Palette {
	return newPalette(lipgloss.NewRenderer(w))
}

// NewPaletteWithProfile forces a color profile regardless of w.
func NewPaletteWithProfile(w io.Writer, profile termenv.Profile) Palette {
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return newPalette(renderer)
}

func newPalette(renderer *lipgloss.Renderer) Palette {
	return Palette{
		Add:     renderer.NewStyle().Foreground(lipgloss.Color("42")),
		Keep:    renderer.NewStyle().Foreground(lipgloss.Color("250")),
		Remove:  renderer.NewStyle().Foreground(lipgloss.Color("203")),
		Protect: renderer.NewStyle().Foreground(lipgloss.Color("214")),
		Faint:   renderer.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
