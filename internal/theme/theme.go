// Package theme provides the Lip Gloss color palette and reusable styles
// for the embedview terminal host. It is a leaf package with no internal
// imports.
package theme

import "github.com/charmbracelet/lipgloss"

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// Page colors.
var (
	ColorLink    = lipgloss.Color("#3b82f6")
	ColorLoading = lipgloss.Color("#7c3aed")
	ColorAnimate = lipgloss.Color("#06b6d4")
)

// Scroll state colors.
var (
	ColorIdle     = lipgloss.Color("#4b5563")
	ColorDragging = lipgloss.Color("#d97706")
	ColorFlinging = lipgloss.Color("#2563eb")
)

// ScrollColor returns the color for a scroll state name.
func ScrollColor(state string) lipgloss.Color {
	switch state {
	case "dragging":
		return ColorDragging
	case "flinging":
		return ColorFlinging
	default:
		return ColorIdle
	}
}

// NavColor dims a navigation affordance that is unavailable.
func NavColor(available bool) lipgloss.Color {
	if available {
		return ColorBright
	}
	return ColorDimmed
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(ColorBorder)
	StyleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	StyleDimmed = lipgloss.NewStyle().Foreground(ColorDimmed)
	StyleURL    = lipgloss.NewStyle().Foreground(ColorLink)
	StyleError  = lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
)

// LoadGlyph returns the indicator shown next to the page title.
func LoadGlyph(loading, animating bool) string {
	switch {
	case loading:
		return lipgloss.NewStyle().Foreground(ColorLoading).Render("◌")
	case animating:
		return lipgloss.NewStyle().Foreground(ColorAnimate).Render("●")
	default:
		return lipgloss.NewStyle().Foreground(ColorHealthy).Render("○")
	}
}
