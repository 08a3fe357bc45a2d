package app

import (
	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/views/debug"
)

// Page is the UI-side mirror of engine state. It implements bridge.Client,
// bridge.FrameClient and bridge.AnimationObserver, and is only touched from
// Update.
type Page struct {
	Title        string
	URL          string
	Loading      bool
	Animating    bool
	CanGoBack    bool
	CanGoForward bool

	Frame    engine.Frame
	FrameSeq uint64

	Log debug.Model
}

func NewPage() *Page {
	return &Page{Log: debug.New()}
}

func (p *Page) OnLoadStarted() {
	p.Loading = true
	p.Log.Add(debug.KindLoad, "started")
}

func (p *Page) OnLoadEnded() {
	p.Loading = false
	p.Log.Add(debug.KindLoad, "ended")
}

func (p *Page) OnTitleChanged(title string) {
	p.Title = title
	p.Log.Addf(debug.KindNav, "title %q", title)
}

func (p *Page) OnURLChanged(url string) {
	p.URL = url
	p.Log.Add(debug.KindNav, url)
}

func (p *Page) OnHistoryChanged(canGoBack, canGoForward bool) {
	p.CanGoBack, p.CanGoForward = canGoBack, canGoForward
}

func (p *Page) OnAnimatingChanged(animating bool) {
	p.Animating = animating
}

func (p *Page) OnFrame(f engine.Frame) {
	p.Frame = f
	p.FrameSeq++
}
