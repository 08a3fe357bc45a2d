// Package frame provides the frame clock that drives per-frame work such as
// fling animation and animation pumps. Callbacks are one-shot: work that
// wants the next frame posts itself again.
package frame

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/harmonica"
	"go.uber.org/zap"
)

// Callback receives the frame time.
type Callback func(now time.Time)

// Clock schedules callbacks for the next frame.
type Clock interface {
	Post(fn Callback) *Ticket
}

// Ticket is the cancel handle of one posted callback. Cancel is idempotent
// and safe on a nil ticket.
type Ticket struct {
	cancelled atomic.Bool
}

// Cancel prevents the callback from running if it has not started yet.
func (t *Ticket) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel was called.
func (t *Ticket) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

type entry struct {
	fn     Callback
	ticket *Ticket
}

// queue is the callback list shared by both clocks.
type queue struct {
	mu      sync.Mutex
	entries []entry
}

func (q *queue) push(fn Callback) *Ticket {
	t := &Ticket{}
	q.mu.Lock()
	q.entries = append(q.entries, entry{fn: fn, ticket: t})
	q.mu.Unlock()
	return t
}

// take removes every queued entry. Callbacks posted while the batch runs
// land in the next frame.
func (q *queue) take() []entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func run(batch []entry, now time.Time) int {
	n := 0
	for _, e := range batch {
		if e.ticket.Cancelled() {
			continue
		}
		e.fn(now)
		n++
	}
	return n
}

// TickerClock fires callbacks from a time.Ticker at a fixed frame rate. The
// ticker only runs while callbacks are queued.
type TickerClock struct {
	interval time.Duration
	logger   *zap.Logger

	q      queue
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	frames atomic.Uint64
}

// Option configures a TickerClock.
type Option func(*TickerClock)

// WithLogger sets the clock logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *TickerClock) {
		if l != nil {
			c.logger = l
		}
	}
}

// Interval returns the frame period for fps frames per second.
func Interval(fps int) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(harmonica.FPS(fps) * float64(time.Second))
}

// NewTickerClock starts a clock ticking at fps.
func NewTickerClock(fps int, opts ...Option) *TickerClock {
	c := &TickerClock{
		interval: Interval(fps),
		logger:   zap.NewNop(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.loop()
	return c
}

// Post queues fn for the next frame. After Close the returned ticket is
// already cancelled and fn never runs.
func (c *TickerClock) Post(fn Callback) *Ticket {
	if c.closed.Load() {
		t := &Ticket{}
		t.Cancel()
		return t
	}
	t := c.q.push(fn)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return t
}

// Frames is the number of frames that ran at least one callback.
func (c *TickerClock) Frames() uint64 {
	return c.frames.Load()
}

// Close stops the clock. Queued callbacks are discarded.
func (c *TickerClock) Close() {
	if c.closed.Swap(true) {
		<-c.done
		return
	}
	close(c.stop)
	<-c.done
	for _, e := range c.q.take() {
		e.ticket.Cancel()
	}
}

func (c *TickerClock) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}

		ticker := time.NewTicker(c.interval)
		for c.q.len() > 0 {
			select {
			case <-c.stop:
				ticker.Stop()
				return
			case now := <-ticker.C:
				if run(c.q.take(), now) > 0 {
					c.frames.Add(1)
				}
			}
		}
		ticker.Stop()
		c.logger.Debug("frame: clock idle", zap.Uint64("frames", c.frames.Load()))
	}
}

// ManualClock fires callbacks only when Tick is called. Tests use it to
// step physics deterministically.
type ManualClock struct {
	q queue
}

// NewManualClock returns an idle manual clock.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Post implements Clock.
func (c *ManualClock) Post(fn Callback) *Ticket {
	return c.q.push(fn)
}

// Tick runs the callbacks queued before the call and returns how many ran.
func (c *ManualClock) Tick(now time.Time) int {
	return run(c.q.take(), now)
}

// Pending is the number of queued callbacks, cancelled ones included.
func (c *ManualClock) Pending() int {
	return c.q.len()
}
