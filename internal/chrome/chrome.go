// Package chrome is an engine.Engine backed by a Chrome instance driven over
// the DevTools protocol. DevTools notifications are queued as they arrive and
// reported to the host during PerformUpdates, which is also where queued
// scrolls are dispatched and frames are projected to markdown.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/config"
	"github.com/embedview/embedview/internal/engine"
)

const defaultLaunchTimeout = 30 * time.Second

// ErrNoPage is returned by an engine whose page has been closed.
var ErrNoPage = errors.New("chrome: no page")

const metricsJS = `() => ({
	x: window.scrollX,
	y: window.scrollY,
	w: document.documentElement ? document.documentElement.scrollWidth : 0,
	h: document.documentElement ? document.documentElement.scrollHeight : 0,
	vh: window.innerHeight,
})`

// Launcher starts Chrome engines. It implements engine.Launcher.
type Launcher struct {
	cfg    config.ChromeConfig
	logger *zap.Logger
	width  int
	height int
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger handed to launched engines.
func WithLogger(l *zap.Logger) Option {
	return func(c *Launcher) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaultSize sets the viewport used when init carries no surface size.
func WithDefaultSize(width, height int) Option {
	return func(c *Launcher) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

func NewLauncher(cfg config.ChromeConfig, opts ...Option) *Launcher {
	l := &Launcher{cfg: cfg, logger: zap.NewNop(), width: 1280, height: 800}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts or attaches to a browser, opens a page sized to the
// surface and navigates to the initial URL.
func (l *Launcher) Launch(ctx context.Context, p engine.InitParams) (engine.Engine, error) {
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = l.width, l.height
	}
	prefs, err := loadPrefs(p.Files)
	if err != nil {
		l.logger.Warn("chrome: ignoring preferences", zap.Error(err))
	}

	browser, lnch, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if l.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		closeBrowser(browser, lnch)
		return nil, fmt.Errorf("chrome: create page: %w", err)
	}

	host := p.Host
	if host == nil {
		host = nopHost{}
	}
	e := &Engine{
		browser:   browser,
		page:      page,
		lnch:      lnch,
		params:    p,
		host:      host,
		logger:    l.logger,
		projector: NewProjector(),
		state:     pageState{suffix: l.cfg.TitleSuffix},
		scale:     l.cfg.DeviceScaleFactor,
	}
	if e.scale <= 0 {
		e.scale = prefs.DeviceScaleFactor
	}
	if e.scale <= 0 {
		e.scale = 1
	}
	if lnch != nil {
		e.mem = newMemoryWatch(lnch.PID(), l.cfg.MemoryLimitMB, l.logger)
	}

	if err := e.configure(prefs); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.listen()

	uri := p.URL
	if uri == "" {
		uri = prefs.Homepage
	}
	if uri == "" {
		uri = engine.DefaultURI
	}
	if err := e.LoadURI(uri); err != nil {
		l.logger.Warn("chrome: initial load failed", zap.String("url", uri), zap.Error(err))
	}

	l.logger.Info("chrome: engine started",
		zap.Bool("attached", lnch == nil),
		zap.Bool("stealth", l.cfg.Stealth),
		zap.Int("width", p.Width),
		zap.Int("height", p.Height))
	return e, nil
}

type launched struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	err     error
}

// connect launches or attaches within the launch timeout. A browser that
// comes up after the deadline is closed in the background.
func (l *Launcher) connect(ctx context.Context) (*rod.Browser, *launcher.Launcher, error) {
	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := make(chan launched, 1)
	go func() {
		b, lc, err := l.dial()
		res <- launched{browser: b, lnch: lc, err: err}
	}()

	select {
	case r := <-res:
		return r.browser, r.lnch, r.err
	case <-ctx.Done():
		go func() {
			if r := <-res; r.err == nil {
				closeBrowser(r.browser, r.lnch)
			}
		}()
		return nil, nil, fmt.Errorf("chrome: launch: %w", ctx.Err())
	}
}

func (l *Launcher) dial() (*rod.Browser, *launcher.Launcher, error) {
	u := l.cfg.ControlURL
	var lc *launcher.Launcher
	if u == "" {
		lc = launcher.New().
			Headless(l.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if l.cfg.Bin != "" {
			lc = lc.Bin(l.cfg.Bin)
		}
		var err error
		u, err = lc.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("chrome: launch browser: %w", err)
		}
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		if lc != nil {
			lc.Kill()
		}
		return nil, nil, fmt.Errorf("chrome: connect %s: %w", u, err)
	}
	return b, lc, nil
}

// closeBrowser shuts a launched browser down. An attached browser is left
// running.
func closeBrowser(b *rod.Browser, lc *launcher.Launcher) {
	if lc == nil {
		return
	}
	_ = b.Close()
	lc.Cleanup()
}

// Engine drives one Chrome page. Apart from the event listener, every
// method runs on the engine goroutine.
type Engine struct {
	browser   *rod.Browser
	page      *rod.Page
	lnch      *launcher.Launcher
	params    engine.InitParams
	host      engine.Host
	logger    *zap.Logger
	projector *Projector
	mem       *memoryWatch
	scale     float64

	stopEvents context.CancelFunc

	mu     sync.Mutex
	events []event

	state    pageState
	scrolls  scrollQueue
	markdown string
	resized  bool
	closed   bool
}

func (e *Engine) configure(prefs Prefs) error {
	if err := e.setViewport(e.params.Width, e.params.Height); err != nil {
		return err
	}
	if !prefs.ScriptsEnabled() {
		if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(e.page); err != nil {
			return fmt.Errorf("chrome: disable scripts: %w", err)
		}
	}
	if prefs.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: prefs.UserAgent}).Call(e.page); err != nil {
			return fmt.Errorf("chrome: user agent: %w", err)
		}
	}
	if css, ok := engine.ReadResource(e.params.Files, engine.ResourceUserAgentCSS); ok && len(css) > 0 {
		if _, err := e.page.EvalOnNewDocument(styleScript(string(css))); err != nil {
			return fmt.Errorf("chrome: user agent css: %w", err)
		}
	}
	return nil
}

// listen subscribes to page lifecycle events until Close.
func (e *Engine) listen() {
	ctx, cancel := context.WithCancel(context.Background())
	e.stopEvents = cancel
	frameID := e.page.FrameID
	targetID := e.page.TargetID

	wait := e.page.Context(ctx).EachEvent(
		func(ev *proto.PageFrameStartedLoading) {
			if ev, ok := mainFrame(ev.FrameID, frameID, eventLoadStarted); ok {
				e.push(ev)
			}
		},
		func(ev *proto.PageFrameStoppedLoading) {
			if ev, ok := mainFrame(ev.FrameID, frameID, eventLoadEnded); ok {
				e.push(ev)
			}
		},
		func(ev *proto.PageLoadEventFired) {
			e.push(event{kind: eventLoadEnded})
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame != nil && ev.Frame.ParentID == "" {
				e.push(event{kind: eventNavigated, url: ev.Frame.URL})
			}
		},
		func(ev *proto.PageNavigatedWithinDocument) {
			if ev.FrameID == frameID {
				e.push(event{kind: eventNavigated, url: ev.URL})
			}
		},
	)
	go wait()

	// Title changes made by page script only surface as target updates.
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(e.browser); err != nil {
		e.logger.Debug("chrome: target discovery unavailable", zap.Error(err))
		return
	}
	waitTargets := e.browser.Context(ctx).EachEvent(
		func(ev *proto.TargetTargetInfoChanged) {
			if ev.TargetInfo != nil && ev.TargetInfo.TargetID == targetID {
				e.push(event{kind: eventInfoChanged})
			}
		},
	)
	go waitTargets()
}

// mainFrame turns a frame-scoped lifecycle notification into a page event
// when it concerns the main frame.
func mainFrame(id, main proto.PageFrameID, kind eventKind) (event, bool) {
	if id != main {
		return event{}, false
	}
	return event{kind: kind}, true
}

// push queues ev and asks the host for a pump.
func (e *Engine) push(ev event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	if e.params.Waker != nil {
		e.params.Waker.Wakeup()
	}
}

func (e *Engine) takeEvents() []event {
	e.mu.Lock()
	defer e.mu.Unlock()
	evs := e.events
	e.events = nil
	return evs
}

// PerformUpdates reports queued page events, dispatches queued scrolls and
// presents a frame when anything visible changed.
func (e *Engine) PerformUpdates() error {
	if e.closed {
		return ErrNoPage
	}

	events := e.takeEvents()
	refresh := false
	for _, ev := range events {
		if e.state.apply(ev, e.host) {
			refresh = true
		}
	}
	if e.state.syncDue(time.Now(), len(events) > 0) {
		if err := e.syncState(); err != nil {
			e.logger.Debug("chrome: state sync failed", zap.Error(err))
		}
	}

	// Scroll deltas follow the finger, wheel deltas follow the document.
	scrolled := false
	for _, w := range e.scrolls.drain() {
		err := proto.InputDispatchMouseEvent{
			Type:   proto.InputDispatchMouseEventTypeMouseWheel,
			X:      float64(w.X),
			Y:      float64(w.Y),
			DeltaX: -w.DX,
			DeltaY: -w.DY,
		}.Call(e.page)
		if err != nil {
			return fmt.Errorf("chrome: scroll: %w", err)
		}
		scrolled = true
	}

	if refresh || scrolled || e.resized {
		e.resized = false
		if err := e.present(refresh); err != nil {
			e.logger.Debug("chrome: present failed", zap.Error(err))
		}
	}

	e.mem.check(time.Now())
	return nil
}

func (e *Engine) syncState() error {
	info, err := e.page.Info()
	if err != nil {
		return fmt.Errorf("chrome: page info: %w", err)
	}
	hist, err := proto.PageGetNavigationHistory{}.Call(e.page)
	if err != nil {
		return fmt.Errorf("chrome: history: %w", err)
	}
	e.state.sync(snapshot{
		Title:        info.Title,
		URL:          info.URL,
		HistoryIndex: hist.CurrentIndex,
		HistoryLen:   len(hist.Entries),
	}, e.host)
	return nil
}

// present hands the host a frame. The markdown projection is only rebuilt
// when the document may have changed.
func (e *Engine) present(refresh bool) error {
	if refresh || e.markdown == "" {
		doc, err := e.page.HTML()
		if err != nil {
			return fmt.Errorf("chrome: read html: %w", err)
		}
		md, err := e.projector.Markdown(doc, e.state.url)
		if err != nil {
			return err
		}
		e.markdown = md
	}

	f := engine.Frame{
		URL:      e.state.url,
		Title:    e.state.title,
		Markdown: e.markdown,
	}
	res, err := e.page.Eval(metricsJS)
	if err != nil {
		e.logger.Debug("chrome: scroll metrics unavailable", zap.Error(err))
	} else {
		f.ScrollX = res.Value.Get("x").Num()
		f.ScrollY = res.Value.Get("y").Num()
		f.ContentWidth = res.Value.Get("w").Num()
		f.ContentHeight = res.Value.Get("h").Num()
		f.ViewportHeight = res.Value.Get("vh").Num()
	}
	e.host.Present(f)
	return nil
}

// LoadURI navigates the page. A network failure is shown with the
// packaged error page instead of being returned.
func (e *Engine) LoadURI(uri string) error {
	if e.closed {
		return ErrNoPage
	}
	err := e.page.Navigate(uri)
	if err == nil {
		return nil
	}
	doc, ok := errorPage(e.params.Files, err.Error())
	if !ok {
		return fmt.Errorf("chrome: navigate %s: %w", uri, err)
	}
	e.logger.Warn("chrome: navigation failed", zap.String("url", uri), zap.Error(err))
	if err := e.page.SetDocumentContent(doc); err != nil {
		return fmt.Errorf("chrome: show error page: %w", err)
	}
	return nil
}

func (e *Engine) Reload() error {
	if e.closed {
		return ErrNoPage
	}
	if err := e.page.Reload(); err != nil {
		return fmt.Errorf("chrome: reload: %w", err)
	}
	return nil
}

func (e *Engine) Stop() error {
	if e.closed {
		return ErrNoPage
	}
	if err := e.page.StopLoading(); err != nil {
		return fmt.Errorf("chrome: stop: %w", err)
	}
	return nil
}

func (e *Engine) GoBack() error {
	if e.closed {
		return ErrNoPage
	}
	if err := e.page.NavigateBack(); err != nil {
		return fmt.Errorf("chrome: back: %w", err)
	}
	return nil
}

func (e *Engine) GoForward() error {
	if e.closed {
		return ErrNoPage
	}
	if err := e.page.NavigateForward(); err != nil {
		return fmt.Errorf("chrome: forward: %w", err)
	}
	return nil
}

func (e *Engine) Resize(width, height int) error {
	if e.closed {
		return ErrNoPage
	}
	if err := e.setViewport(width, height); err != nil {
		return err
	}
	e.params.Width, e.params.Height = width, height
	e.resized = true
	return nil
}

func (e *Engine) setViewport(width, height int) error {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: e.scale,
	}.Call(e.page)
	if err != nil {
		return fmt.Errorf("chrome: viewport %dx%d: %w", width, height, err)
	}
	return nil
}

// Scroll queues a wheel delta for the next PerformUpdates.
func (e *Engine) Scroll(dx, dy float64, x, y int, phase engine.Phase) error {
	if e.closed {
		return ErrNoPage
	}
	e.scrolls.push(dx, dy, x, y, phase)
	return nil
}

func (e *Engine) Click(x, y int) error {
	if e.closed {
		return ErrNoPage
	}
	for _, t := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		err := proto.InputDispatchMouseEvent{
			Type:       t,
			X:          float64(x),
			Y:          float64(y),
			Button:     proto.InputMouseButtonLeft,
			ClickCount: 1,
		}.Call(e.page)
		if err != nil {
			return fmt.Errorf("chrome: click: %w", err)
		}
	}
	return nil
}

// Close stops the event listener, closes the page and, when the browser was
// launched by this engine, the browser.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.stopEvents != nil {
		e.stopEvents()
	}
	err := e.page.Close()
	closeBrowser(e.browser, e.lnch)
	e.logger.Info("chrome: engine closed")
	if err != nil {
		return fmt.Errorf("chrome: close page: %w", err)
	}
	return nil
}

type nopHost struct{}

func (nopHost) OnLoadStarted()              {}
func (nopHost) OnLoadEnded()                {}
func (nopHost) OnTitleChanged(string)       {}
func (nopHost) OnURLChanged(string)         {}
func (nopHost) OnHistoryChanged(bool, bool) {}
func (nopHost) OnAnimatingChanged(bool)     {}
func (nopHost) Present(engine.Frame)        {}
