package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/embedview/embedview/internal/scroll"
)

// wheelLines is how many text lines one wheel notch moves.
const wheelLines = 3

// Cells is the pixel size of one terminal cell. The engine surface is the
// content area measured in these units.
type Cells struct {
	Width  int
	Height int
}

func (c Cells) normalized() Cells {
	if c.Width <= 0 {
		c.Width = 8
	}
	if c.Height <= 0 {
		c.Height = 16
	}
	return c
}

// Surface returns the pixel size of a content area of cols x rows cells.
func (c Cells) Surface(cols, rows int) (width, height int) {
	c = c.normalized()
	return max(cols, 1) * c.Width, max(rows, 1) * c.Height
}

// Point maps a cell to the pixel at its centre, clamped to the area.
func (c Cells) Point(col, row, cols, rows int) (x, y float64) {
	c = c.normalized()
	col = min(max(col, 0), max(cols-1, 0))
	row = min(max(row, 0), max(rows-1, 0))
	return float64(col*c.Width + c.Width/2), float64(row*c.Height + c.Height/2)
}

// contentArea is where the page is drawn on screen.
type contentArea struct {
	top  int
	cols int
	rows int
}

func (a contentArea) contains(col, row int) bool {
	return col >= 0 && col < a.cols && row >= a.top && row < a.top+a.rows
}

// touchFor converts a mouse event into a touch event. Presses outside the
// content area are ignored; once pressed, motion and release are clamped
// to it so the gesture always completes.
func touchFor(msg tea.MouseMsg, area contentArea, cells Cells, pressed bool, now time.Time) (scroll.TouchEvent, bool) {
	var action scroll.Action
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if !area.contains(msg.X, msg.Y) {
			return scroll.TouchEvent{}, false
		}
		action = scroll.ActionDown
	case msg.Action == tea.MouseActionMotion && pressed:
		action = scroll.ActionMove
	case msg.Action == tea.MouseActionRelease && pressed:
		action = scroll.ActionUp
	default:
		return scroll.TouchEvent{}, false
	}
	x, y := cells.Point(msg.X, msg.Y-area.top, area.cols, area.rows)
	return scroll.TouchEvent{Action: action, X: x, Y: y, Time: now}, true
}

// wheelDelta returns the finger-direction delta for a wheel notch.
func wheelDelta(b tea.MouseButton, cells Cells) (dx, dy float64, ok bool) {
	cells = cells.normalized()
	lineX := float64(wheelLines * cells.Width)
	lineY := float64(wheelLines * cells.Height)
	switch b {
	case tea.MouseButtonWheelUp:
		return 0, lineY, true
	case tea.MouseButtonWheelDown:
		return 0, -lineY, true
	case tea.MouseButtonWheelLeft:
		return lineX, 0, true
	case tea.MouseButtonWheelRight:
		return -lineX, 0, true
	}
	return 0, 0, false
}
