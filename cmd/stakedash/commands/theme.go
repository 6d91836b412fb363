package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/stakedash/stakedash/internal/tx"
)

// Palette
var (
	ColorAccent  = lipgloss.Color("#14b8a6") // teal
	ColorSuccess = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#eab308")
	ColorError   = lipgloss.Color("#ef4444")
	ColorInfo    = lipgloss.Color("#3b82f6")
	ColorMuted   = lipgloss.Color("#6b7280")
	ColorDim     = lipgloss.Color("#4b5563")
	ColorWhite   = lipgloss.Color("#f9fafb")
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isInteractive reports whether both stdin and stdout are terminals, so a
// form can be shown.
func isInteractive() bool {
	return isTTY() && term.IsTerminal(int(os.Stdin.Fd()))
}

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	StyleSubheader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleInfo = lipgloss.NewStyle().
			Foreground(ColorInfo)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(16)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorWhite)
)

// Box styles
var (
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1).
			Width(24)

	StyleCardAccent = StyleCard.
			BorderForeground(ColorAccent)
)

var (
	StyleTableHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Padding(0, 1)

	StyleTableRow = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Padding(0, 1)

	StyleTableRowAlt = lipgloss.NewStyle().
				Foreground(ColorMuted).
				Padding(0, 1)
)

func badge(bg lipgloss.Color, text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#000000")).
		Background(bg).
		Padding(0, 1).
		Bold(true).
		Render(text)
}

// StatusBadge colors a connection or phase status.
func StatusBadge(status string) string {
	if !isTTY() {
		return "[" + status + "]"
	}
	switch status {
	case "connected", "confirmed", "ok":
		return badge(ColorSuccess, status)
	case "disconnected", "failed", "error":
		return badge(ColorError, status)
	case "submitting", "awaiting_confirmation", "loading":
		return badge(ColorWarning, status)
	default:
		return badge(ColorMuted, status)
	}
}

// PhaseBadge renders a tracker phase.
func PhaseBadge(p tx.Phase) string {
	return StatusBadge(p.String())
}

// Logo returns the styled brand text
func Logo() string {
	if !isTTY() {
		return "stakedash"
	}
	return StyleAccent.Render("stakedash")
}
