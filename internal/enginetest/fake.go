// Package enginetest provides a recording engine for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embedview/embedview/internal/engine"
)

// Engine records every call as an engine.Command. Host callbacks queued with
// Emit are delivered on the next PerformUpdates, the way real engines do.
type Engine struct {
	mu       sync.Mutex
	calls    []engine.Command
	params   engine.InitParams
	events   []func(engine.Host)
	closed   bool
	overlaps int
	afterUse int

	inFlight atomic.Int32
	notify   chan struct{}

	// Delay, when set, is slept inside every call to widen race windows.
	Delay time.Duration
	// LaunchErr makes Launch fail.
	LaunchErr error
}

// New creates a fake engine.
func New() *Engine {
	return &Engine{notify: make(chan struct{}, 1)}
}

// Launcher returns a launcher that hands out e and remembers the params.
func (e *Engine) Launcher() engine.Launcher {
	return engine.LauncherFunc(func(ctx context.Context, p engine.InitParams) (engine.Engine, error) {
		if e.LaunchErr != nil {
			return nil, e.LaunchErr
		}
		e.mu.Lock()
		e.params = p
		e.mu.Unlock()
		return e, nil
	})
}

// Params returns the init params seen by Launch.
func (e *Engine) Params() engine.InitParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Emit queues a host callback and wakes the host, from any goroutine.
func (e *Engine) Emit(fn func(h engine.Host)) {
	e.mu.Lock()
	e.events = append(e.events, fn)
	waker := e.params.Waker
	e.mu.Unlock()
	if waker != nil {
		waker.Wakeup()
	}
}

// Calls returns a copy of the recorded commands.
func (e *Engine) Calls() []engine.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.Command, len(e.calls))
	copy(out, e.calls)
	return out
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Overlaps is the number of calls that ran concurrently with another call.
func (e *Engine) Overlaps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlaps
}

// UsedAfterClose is the number of calls made after Close.
func (e *Engine) UsedAfterClose() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.afterUse
}

// WaitCalls blocks until at least n calls were recorded or the timeout hits.
func (e *Engine) WaitCalls(n int, timeout time.Duration) []engine.Command {
	deadline := time.After(timeout)
	for {
		calls := e.Calls()
		if len(calls) >= n {
			return calls
		}
		select {
		case <-e.notify:
		case <-deadline:
			return calls
		}
	}
}

func (e *Engine) record(c engine.Command) {
	if e.inFlight.Add(1) > 1 {
		e.mu.Lock()
		e.overlaps++
		e.mu.Unlock()
	}
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	e.mu.Lock()
	if e.closed {
		e.afterUse++
	}
	e.calls = append(e.calls, c)
	e.mu.Unlock()
	e.inFlight.Add(-1)

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Engine) PerformUpdates() error {
	e.record(engine.Pump())
	e.mu.Lock()
	events := e.events
	e.events = nil
	host := e.params.Host
	e.mu.Unlock()
	if host != nil {
		for _, fn := range events {
			fn(host)
		}
	}
	return nil
}

func (e *Engine) LoadURI(uri string) error {
	e.record(engine.Navigate(uri))
	return nil
}

func (e *Engine) Reload() error {
	e.record(engine.Reload())
	return nil
}

func (e *Engine) Stop() error {
	e.record(engine.Stop())
	return nil
}

func (e *Engine) GoBack() error {
	e.record(engine.GoBack())
	return nil
}

func (e *Engine) GoForward() error {
	e.record(engine.GoForward())
	return nil
}

func (e *Engine) Resize(width, height int) error {
	e.record(engine.Resize(width, height))
	return nil
}

func (e *Engine) Scroll(dx, dy float64, x, y int, phase engine.Phase) error {
	e.record(engine.Scroll(dx, dy, x, y, phase))
	return nil
}

func (e *Engine) Click(x, y int) error {
	e.record(engine.Click(x, y))
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Recorder is a command sink that records what was submitted instead of
// running it. Drop makes every Submit report a dropped command.
type Recorder struct {
	mu   sync.Mutex
	cmds []engine.Command
	Drop bool
}

// Submit records cmd.
func (r *Recorder) Submit(cmd engine.Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Drop {
		return false
	}
	r.cmds = append(r.cmds, cmd)
	return true
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []engine.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}
