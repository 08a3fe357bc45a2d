// Package view ties one rendering surface to one engine instance. It follows
// the surface lifecycle: the engine is created when the surface becomes
// ready and torn down when it is destroyed, and every navigation or input
// call in between is forwarded through the command channel.
package view

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/bridge"
	"github.com/embedview/embedview/internal/channel"
	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/frame"
	"github.com/embedview/embedview/internal/scroll"
)

// View is the host-side face of an embedded engine.
type View struct {
	launcher engine.Launcher
	clock    frame.Clock
	files    engine.FileReader
	scroll   scroll.Config
	logger   *zap.Logger
	notifier *bridge.Notifier

	mu       sync.Mutex
	uri      string
	width    int
	height   int
	ch       *channel.Channel
	relay    *bridge.Relay
	scroller *scroll.Controller

	animating  bool
	animTicket *frame.Ticket
	animGen    uint64
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger shared by the view and everything it creates.
func WithLogger(l *zap.Logger) Option {
	return func(v *View) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithFiles sets the resource reader handed to the engine.
func WithFiles(f engine.FileReader) Option {
	return func(v *View) { v.files = f }
}

// WithInitialURL sets the URI loaded when the engine starts.
func WithInitialURL(uri string) Option {
	return func(v *View) {
		if uri != "" {
			v.uri = uri
		}
	}
}

// WithScrollConfig sets the gesture constants.
func WithScrollConfig(cfg scroll.Config) Option {
	return func(v *View) { v.scroll = cfg }
}

// New creates a view with no surface. Notifications are delivered through
// dispatch; fling and animation frames run on clock.
func New(launcher engine.Launcher, dispatch bridge.Dispatcher, clock frame.Clock, opts ...Option) *View {
	v := &View{
		launcher: launcher,
		clock:    clock,
		scroll:   scroll.DefaultConfig(),
		logger:   zap.NewNop(),
		uri:      engine.DefaultURI,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.notifier = bridge.NewNotifier(dispatch, v.logger.Named("notifier"))
	v.notifier.SetAnimationHook(v.setAnimating)
	return v
}

// SetClient registers the UI observer. Pass nil to unregister.
func (v *View) SetClient(c bridge.Client) {
	v.notifier.SetClient(c)
}

// OnSurfaceReady creates the engine for a surface of the given size. It is
// ignored while an engine is already live.
func (v *View) OnSurfaceReady(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ch != nil {
		v.logger.Debug("view: surface already live")
		return
	}

	v.width, v.height = width, height
	v.ch = channel.New(v.launcher, channel.WithLogger(v.logger.Named("channel")))
	v.relay = bridge.NewRelay(v.ch, v.logger.Named("relay"))
	v.scroller = scroll.New(v.ch, v.clock, v.scroll, scroll.WithLogger(v.logger.Named("scroll")))
	v.ch.Init(engine.InitParams{
		URL:    v.uri,
		Width:  width,
		Height: height,
		Waker:  v.relay,
		Files:  v.files,
		Host:   v.notifier,
	})
	v.logger.Info("view: surface ready",
		zap.String("url", v.uri),
		zap.Int("width", width),
		zap.Int("height", height))
}

// OnSurfaceResized forwards the new surface size.
func (v *View) OnSurfaceResized(width, height int) bool {
	v.mu.Lock()
	v.width, v.height = width, height
	v.mu.Unlock()
	return v.submit(engine.Resize(width, height))
}

// OnSurfaceDestroyed tears the engine down. Queued commands are discarded.
// A later OnSurfaceReady starts a fresh engine.
func (v *View) OnSurfaceDestroyed() {
	v.mu.Lock()
	ch, scroller := v.ch, v.scroller
	v.ch, v.relay, v.scroller = nil, nil, nil
	v.stopAnimationLocked()
	v.mu.Unlock()

	if ch == nil {
		return
	}
	// The engine goroutine may be inside the animation hook waiting for mu,
	// so the channel is closed without holding it.
	scroller.Close()
	ch.Close()
	v.logger.Info("view: surface destroyed")
}

// Close is OnSurfaceDestroyed.
func (v *View) Close() {
	v.OnSurfaceDestroyed()
}

// Ready reports whether an engine is live.
func (v *View) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ch != nil
}

// Size returns the last known surface size.
func (v *View) Size() (width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// Stats returns the live channel counters, or zero without a surface.
func (v *View) Stats() channel.Stats {
	v.mu.Lock()
	ch := v.ch
	v.mu.Unlock()
	if ch == nil {
		return channel.Stats{}
	}
	return ch.Stats()
}

func (v *View) Reload() bool    { return v.submit(engine.Reload()) }
func (v *View) Stop() bool      { return v.submit(engine.Stop()) }
func (v *View) GoBack() bool    { return v.submit(engine.GoBack()) }
func (v *View) GoForward() bool { return v.submit(engine.GoForward()) }

// LoadURI navigates. Before the surface is ready it replaces the URI the
// engine will start with.
func (v *View) LoadURI(uri string) bool {
	v.mu.Lock()
	ch := v.ch
	if ch == nil {
		v.uri = uri
		v.mu.Unlock()
		v.logger.Debug("view: initial uri set", zap.String("url", uri))
		return true
	}
	v.mu.Unlock()
	return ch.Submit(engine.Navigate(uri))
}

// OnTouch feeds a touch event to the scroll controller.
func (v *View) OnTouch(ev scroll.TouchEvent) {
	v.mu.Lock()
	s := v.scroller
	v.mu.Unlock()
	if s == nil {
		v.logger.Debug("view: touch without surface", zap.Stringer("event", ev))
		return
	}
	s.OnTouch(ev)
}

// Wheel sends a discrete scroll gesture at (x, y).
func (v *View) Wheel(dx, dy float64, x, y int) {
	v.mu.Lock()
	s := v.scroller
	v.mu.Unlock()
	if s != nil {
		s.Wheel(dx, dy, x, y)
	}
}

// ScrollState reports the gesture state, Idle without a surface.
func (v *View) ScrollState() scroll.State {
	v.mu.Lock()
	s := v.scroller
	v.mu.Unlock()
	if s == nil {
		return scroll.Idle
	}
	return s.State()
}

func (v *View) submit(cmd engine.Command) bool {
	v.mu.Lock()
	ch := v.ch
	v.mu.Unlock()
	if ch == nil {
		v.logger.Debug("view: no surface", zap.Stringer("command", cmd))
		return false
	}
	return ch.Submit(cmd)
}

// setAnimating runs on the engine goroutine. While the engine animates, a
// pump is submitted every frame.
func (v *View) setAnimating(animating bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if animating == v.animating || v.ch == nil {
		return
	}
	v.animating = animating
	if !animating {
		v.stopAnimationLocked()
		return
	}
	v.animGen++
	v.animTicket = v.clock.Post(v.animationFrame(v.animGen))
}

func (v *View) stopAnimationLocked() {
	v.animating = false
	v.animTicket.Cancel()
	v.animTicket = nil
	v.animGen++
}

func (v *View) animationFrame(gen uint64) frame.Callback {
	return func(time.Time) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if gen != v.animGen || !v.animating || v.ch == nil {
			return
		}
		v.ch.Pump()
		v.animTicket = v.clock.Post(v.animationFrame(gen))
	}
}
