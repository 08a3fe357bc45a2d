// Package engine defines the contracts between the embedding host and an
// embedded browsing engine: the engine handle itself, the callbacks the host
// injects at init time, and the commands that drive the engine.
//
// Nothing in this package is safe to call on an Engine from more than one
// goroutine. Callers go through internal/channel, which owns the handle.
package engine

import (
	"context"
	"errors"
)

// ErrNotInitialized is reported when a command arrives before init ran.
var ErrNotInitialized = errors.New("engine: not initialized")

// DefaultURI is loaded when the host did not ask for anything else.
const DefaultURI = "about:blank"

// Waker is called by the engine, from any goroutine, to ask the host for a
// pump. Implementations must not block.
type Waker interface {
	Wakeup()
}

// FileReader resolves an engine resource name to its bytes. It is called
// synchronously on the engine goroutine and must not submit commands and
// wait for them. A missing resource is reported as (nil, false).
type FileReader interface {
	ReadFile(name string) ([]byte, bool)
}

// Host receives engine state changes. Engines only call Host methods from
// inside PerformUpdates, i.e. on the engine goroutine.
type Host interface {
	OnLoadStarted()
	OnLoadEnded()
	OnTitleChanged(title string)
	OnURLChanged(url string)
	OnHistoryChanged(canGoBack, canGoForward bool)
	OnAnimatingChanged(animating bool)
	Present(f Frame)
}

// Frame is what an engine presents after it composited new content. Engines
// that paint to a real surface leave Markdown empty; text hosts render it.
type Frame struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Markdown       string  `json:"markdown,omitempty"`
	ScrollX        float64 `json:"scrollX"`
	ScrollY        float64 `json:"scrollY"`
	ContentWidth   float64 `json:"contentWidth"`
	ContentHeight  float64 `json:"contentHeight"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// InitParams is everything the one-time init command carries.
type InitParams struct {
	URL    string
	Width  int
	Height int

	Waker Waker
	Files FileReader
	Host  Host
}

// Engine is the exclusive handle on one embedded engine instance.
type Engine interface {
	// PerformUpdates processes queued engine work and delivers pending
	// Host callbacks.
	PerformUpdates() error
	LoadURI(uri string) error
	Reload() error
	Stop() error
	GoBack() error
	GoForward() error
	Resize(width, height int) error
	// Scroll queues a scroll delta at (x, y). Engines apply queued scrolls
	// on the next PerformUpdates.
	Scroll(dx, dy float64, x, y int, phase Phase) error
	Click(x, y int) error
	Close() error
}

// Launcher creates an Engine. It is invoked on the engine goroutine.
type Launcher interface {
	Launch(ctx context.Context, p InitParams) (Engine, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, p InitParams) (Engine, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, p InitParams) (Engine, error) {
	return f(ctx, p)
}
