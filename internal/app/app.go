// Package app is the terminal host: a Bubble Tea program that owns the
// engine surface, turns keys and mouse input into bridge operations and
// renders what the engine presents.
package app

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/embedview/embedview/internal/bridge"
	"github.com/embedview/embedview/internal/channel"
	"github.com/embedview/embedview/internal/scroll"
	"github.com/embedview/embedview/internal/theme"
	"github.com/embedview/embedview/internal/views/debug"
	"github.com/embedview/embedview/internal/views/status"
)

// Rows taken by the status bar (with its border), the URL line and the help
// line.
const (
	statusRows = 3
	chromeRows = statusRows + 2
)

// Surface is the bridge surface the host drives. *view.View implements it.
type Surface interface {
	SetClient(c bridge.Client)
	OnSurfaceReady(width, height int)
	OnSurfaceResized(width, height int) bool
	Ready() bool
	LoadURI(uri string) bool
	Reload() bool
	Stop() bool
	GoBack() bool
	GoForward() bool
	OnTouch(ev scroll.TouchEvent)
	Wheel(dx, dy float64, x, y int)
	ScrollState() scroll.State
	Stats() channel.Stats
}

// Options tunes the host.
type Options struct {
	Cells Cells
	// GlamourStyle names a glamour standard style; "dark" when empty.
	GlamourStyle string
	Now          func() time.Time
}

// Model is the root Bubble Tea model.
type Model struct {
	surface Surface
	page    *Page

	keys      KeyMap
	help      help.Model
	urlBar    textinput.Model
	content   viewport.Model
	statusBar status.Model
	renderer  *glamour.TermRenderer
	style     string
	cells     Cells
	now       func() time.Time

	width  int
	height int
	area   contentArea

	editing     bool
	showDebug   bool
	pressed     bool
	renderedSeq uint64
}

// New creates the root model and registers its page as the surface client.
func New(surface Surface, opts Options) Model {
	page := NewPage()
	surface.SetClient(page)

	ti := textinput.New()
	ti.Prompt = "› "
	ti.Placeholder = "https://"

	style := opts.GlamourStyle
	if style == "" {
		style = "dark"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return Model{
		surface:   surface,
		page:      page,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		urlBar:    ti,
		content:   viewport.New(0, 0),
		statusBar: status.New(),
		style:     style,
		cells:     opts.Cells.normalized(),
		now:       now,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case dispatchMsg:
		msg.fn()
		m.syncPage()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil
	}

	if m.editing {
		var cmd tea.Cmd
		m.urlBar, cmd = m.urlBar.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	rows := max(height-chromeRows, 1)
	m.area = contentArea{top: statusRows + 1, cols: width, rows: rows}

	m.statusBar.Width = width
	m.urlBar.Width = max(width-4, 10)
	m.help.Width = width
	m.content.Width = width
	m.content.Height = rows

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err != nil {
		m.page.Log.Addf(debug.KindError, "markdown renderer: %v", err)
		r = nil
	}
	m.renderer = r
	m.renderFrame()

	w, h := m.cells.Surface(width, rows)
	if !m.surface.Ready() {
		m.surface.OnSurfaceReady(w, h)
		m.page.Log.Addf(debug.KindEngine, "surface ready %dx%d", w, h)
	} else {
		m.surface.OnSurfaceResized(w, h)
	}
	m.syncPage()
}

// syncPage copies the page mirror into the widgets.
func (m *Model) syncPage() {
	p := m.page
	m.statusBar.Ready = m.surface.Ready()
	m.statusBar.Loading = p.Loading
	m.statusBar.Animating = p.Animating
	m.statusBar.Title = p.Title
	m.statusBar.CanGoBack = p.CanGoBack
	m.statusBar.CanGoForward = p.CanGoForward
	m.statusBar.Scroll = m.surface.ScrollState().String()
	stats := m.surface.Stats()
	m.statusBar.SetCounters(stats.Executed, stats.Dropped)

	if !m.editing {
		m.urlBar.SetValue(p.URL)
	}
	if p.FrameSeq != m.renderedSeq {
		m.renderFrame()
	}
}

// renderFrame renders the last presented frame and positions the viewport
// at the engine's scroll offset.
func (m *Model) renderFrame() {
	f := m.page.Frame
	m.renderedSeq = m.page.FrameSeq

	out := f.Markdown
	if m.renderer != nil && f.Markdown != "" {
		rendered, err := m.renderer.Render(f.Markdown)
		if err != nil {
			m.page.Log.Addf(debug.KindError, "render: %v", err)
		} else {
			out = rendered
		}
	}
	m.content.SetContent(out)

	if f.ContentHeight > 0 {
		frac := min(max(f.ScrollY/f.ContentHeight, 0), 1)
		m.content.SetYOffset(int(frac * float64(m.content.TotalLineCount())))
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch {
		case key.Matches(msg, m.keys.Submit):
			m.editing = false
			m.urlBar.Blur()
			if uri := normalizeURL(m.urlBar.Value()); uri != "" {
				m.surface.LoadURI(uri)
				m.page.Log.Addf(debug.KindNav, "load %s", uri)
			}
			return m, nil
		case key.Matches(msg, m.keys.Escape):
			m.editing = false
			m.urlBar.Blur()
			m.urlBar.SetValue(m.page.URL)
			return m, nil
		}
		var cmd tea.Cmd
		m.urlBar, cmd = m.urlBar.Update(msg)
		return m, cmd
	}

	if m.showDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.showDebug = false
		case key.Matches(msg, m.keys.Up):
			m.page.Log.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.page.Log.ScrollDown(1)
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	line := float64(m.cells.Height)
	screen := float64(max(m.area.rows-1, 1) * m.cells.Height)

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Open):
		m.editing = true
		m.urlBar.SetValue("")
		return m, m.urlBar.Focus()
	case key.Matches(msg, m.keys.Reload):
		m.navigate("reload", m.surface.Reload())
	case key.Matches(msg, m.keys.Stop):
		m.navigate("stop", m.surface.Stop())
	case key.Matches(msg, m.keys.Back):
		m.navigate("back", m.surface.GoBack())
	case key.Matches(msg, m.keys.Forward):
		m.navigate("forward", m.surface.GoForward())
	case key.Matches(msg, m.keys.Debug):
		m.showDebug = true
	case key.Matches(msg, m.keys.Up):
		m.wheel(0, line)
	case key.Matches(msg, m.keys.Down):
		m.wheel(0, -line)
	case key.Matches(msg, m.keys.PageUp):
		m.wheel(0, screen)
	case key.Matches(msg, m.keys.PageDown):
		m.wheel(0, -screen)
	}
	return m, nil
}

func (m *Model) navigate(what string, accepted bool) {
	if !accepted {
		m.page.Log.Addf(debug.KindError, "%s: no engine", what)
		return
	}
	m.page.Log.Add(debug.KindNav, what)
}

// wheel scrolls by a finger delta at the centre of the content area.
func (m *Model) wheel(dx, dy float64) {
	x, y := m.cells.Point(m.area.cols/2, m.area.rows/2, m.area.cols, m.area.rows)
	m.surface.Wheel(dx, dy, int(x), int(y))
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	if tea.MouseEvent(msg).IsWheel() {
		if !m.area.contains(msg.X, msg.Y) {
			return
		}
		if dx, dy, ok := wheelDelta(msg.Button, m.cells); ok {
			x, y := m.cells.Point(msg.X, msg.Y-m.area.top, m.area.cols, m.area.rows)
			m.surface.Wheel(dx, dy, int(x), int(y))
		}
		return
	}

	ev, ok := touchFor(msg, m.area, m.cells, m.pressed, m.now())
	if !ok {
		return
	}
	switch ev.Action {
	case scroll.ActionDown:
		m.pressed = true
	case scroll.ActionUp:
		m.pressed = false
	}
	m.surface.OnTouch(ev)
	m.statusBar.Scroll = m.surface.ScrollState().String()
}

// View renders the full host.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var url string
	if m.editing {
		url = m.urlBar.View()
	} else {
		url = theme.StyleDimmed.Render("› ") + theme.StyleURL.Render(m.page.URL)
	}

	body := m.content.View()
	if m.showDebug {
		body = m.page.Log.View(m.width, m.area.rows)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		url,
		body,
		m.help.View(m.keys),
	)
}

// normalizeURL adds https:// to bare host names.
func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "about:") || strings.HasPrefix(s, "data:") {
		return s
	}
	return "https://" + s
}
