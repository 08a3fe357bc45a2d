package bridge

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/engine"
)

// Client is the UI-facing observer of engine state.
type Client interface {
	OnLoadStarted()
	OnLoadEnded()
	OnTitleChanged(title string)
	OnURLChanged(url string)
	OnHistoryChanged(canGoBack, canGoForward bool)
}

// FrameClient is implemented by clients that display presented frames.
type FrameClient interface {
	OnFrame(f engine.Frame)
}

// AnimationObserver is implemented by clients that track engine animation.
type AnimationObserver interface {
	OnAnimatingChanged(animating bool)
}

// Dispatcher runs functions on the UI context, in order. *loop.Loop
// implements it.
type Dispatcher interface {
	Post(fn func()) error
}

// NotificationKind identifies a Notification.
type NotificationKind int

const (
	LoadStarted NotificationKind = iota
	LoadEnded
	TitleChanged
	URLChanged
	HistoryChanged
	AnimatingChanged
	FramePresented
)

func (k NotificationKind) String() string {
	switch k {
	case LoadStarted:
		return "load-started"
	case LoadEnded:
		return "load-ended"
	case TitleChanged:
		return "title"
	case URLChanged:
		return "url"
	case HistoryChanged:
		return "history"
	case AnimatingChanged:
		return "animating"
	case FramePresented:
		return "frame"
	default:
		return "unknown"
	}
}

// Notification is an immutable snapshot of one engine state change.
type Notification struct {
	Kind         NotificationKind
	Title        string
	URL          string
	CanGoBack    bool
	CanGoForward bool
	Animating    bool
	Frame        engine.Frame
}

// Deliver invokes the matching client method.
func (n Notification) Deliver(c Client) {
	switch n.Kind {
	case LoadStarted:
		c.OnLoadStarted()
	case LoadEnded:
		c.OnLoadEnded()
	case TitleChanged:
		c.OnTitleChanged(n.Title)
	case URLChanged:
		c.OnURLChanged(n.URL)
	case HistoryChanged:
		c.OnHistoryChanged(n.CanGoBack, n.CanGoForward)
	case AnimatingChanged:
		if o, ok := c.(AnimationObserver); ok {
			o.OnAnimatingChanged(n.Animating)
		}
	case FramePresented:
		if fc, ok := c.(FrameClient); ok {
			fc.OnFrame(n.Frame)
		}
	}
}

// Notifier implements engine.Host. Every callback is turned into a
// Notification and redispatched onto the UI context before the client sees
// it. With no client registered the notification is dropped for good.
type Notifier struct {
	dispatch Dispatcher
	logger   *zap.Logger

	mu     sync.RWMutex
	client Client

	// animHook runs on the engine goroutine, not the UI context.
	animHook func(bool)

	dropped atomic.Uint64
}

// NewNotifier creates a notifier that delivers through d.
func NewNotifier(d Dispatcher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{dispatch: d, logger: logger}
}

// SetClient registers c. Passing nil unregisters. Notifications emitted
// before registration are not replayed.
func (n *Notifier) SetClient(c Client) {
	n.mu.Lock()
	n.client = c
	n.mu.Unlock()
}

// SetAnimationHook registers fn to be told about animation state changes
// synchronously, independent of the client.
func (n *Notifier) SetAnimationHook(fn func(animating bool)) {
	n.mu.Lock()
	n.animHook = fn
	n.mu.Unlock()
}

// Dropped is the number of notifications discarded so far.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *Notifier) emit(note Notification) {
	n.mu.RLock()
	c := n.client
	n.mu.RUnlock()

	if c == nil {
		n.dropped.Add(1)
		return
	}
	if err := n.dispatch.Post(func() { note.Deliver(c) }); err != nil {
		n.dropped.Add(1)
		n.logger.Debug("notifier: dispatch failed", zap.Stringer("kind", note.Kind), zap.Error(err))
	}
}

func (n *Notifier) OnLoadStarted() { n.emit(Notification{Kind: LoadStarted}) }
func (n *Notifier) OnLoadEnded()   { n.emit(Notification{Kind: LoadEnded}) }

func (n *Notifier) OnTitleChanged(title string) {
	n.emit(Notification{Kind: TitleChanged, Title: title})
}

func (n *Notifier) OnURLChanged(url string) {
	n.emit(Notification{Kind: URLChanged, URL: url})
}

func (n *Notifier) OnHistoryChanged(canGoBack, canGoForward bool) {
	n.emit(Notification{Kind: HistoryChanged, CanGoBack: canGoBack, CanGoForward: canGoForward})
}

func (n *Notifier) OnAnimatingChanged(animating bool) {
	n.mu.RLock()
	hook := n.animHook
	n.mu.RUnlock()
	if hook != nil {
		hook(animating)
	}
	n.emit(Notification{Kind: AnimatingChanged, Animating: animating})
}

func (n *Notifier) Present(f engine.Frame) {
	n.emit(Notification{Kind: FramePresented, Frame: f})
}
