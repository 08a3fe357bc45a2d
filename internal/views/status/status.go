// Package status renders the page status bar: load state, title, history
// affordances and engine counters.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/embedview/embedview/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Ready        bool
	Loading      bool
	Animating    bool
	Title        string
	CanGoBack    bool
	CanGoForward bool
	Scroll       string
	Executed     uint64
	Dropped      uint64
	Width        int
}

// New creates a status bar model.
func New() Model {
	return Model{Scroll: "idle"}
}

// SetCounters updates the engine command counters.
func (m *Model) SetCounters(executed, dropped uint64) {
	m.Executed = executed
	m.Dropped = dropped
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var state string
	if m.Ready {
		state = theme.LoadGlyph(m.Loading, m.Animating)
	} else {
		state = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ No surface")
	}

	title := m.Title
	if title == "" {
		title = "Untitled"
	}
	// Border and padding take four columns, the rest of the bar about 40.
	if limit := width - 44; limit > 8 && len([]rune(title)) > limit {
		title = string([]rune(title)[:limit-1]) + "…"
	}

	nav := lipgloss.NewStyle().Foreground(theme.NavColor(m.CanGoBack)).Render("◀") +
		lipgloss.NewStyle().Foreground(theme.NavColor(m.CanGoForward)).Render("▶")

	scroll := lipgloss.NewStyle().Foreground(theme.ScrollColor(m.Scroll)).Render(m.Scroll)

	counters := fmt.Sprintf("%d cmds", m.Executed)
	if m.Dropped > 0 {
		counters += lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(fmt.Sprintf("  %d dropped", m.Dropped))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := state + " " + theme.StyleHeader.Render(title) + sep + nav + sep + scroll + sep + counters

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
