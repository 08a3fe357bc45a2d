// Package scroll turns raw touch input into engine scroll commands: direct
// drag deltas while the finger is down, then an inertial fling driven by the
// frame clock after a fast release.
package scroll

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/frame"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Dragging
	Flinging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Flinging:
		return "flinging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Submitter accepts engine commands without blocking. *channel.Channel
// implements it.
type Submitter interface {
	Submit(cmd engine.Command) bool
}

// Config holds the physics and gesture constants.
type Config struct {
	FPS int
	// MinFlingVelocity and MaxFlingVelocity are in pixels per second.
	MinFlingVelocity float64
	MaxFlingVelocity float64
	// Deceleration is in pixels per second squared.
	Deceleration float64
	TapTimeout   time.Duration
	Bounds       Bounds
}

// DefaultConfig returns the stock gesture constants.
func DefaultConfig() Config {
	return Config{
		FPS:              60,
		MinFlingVelocity: 50,
		MaxFlingVelocity: 8000,
		Deceleration:     4000,
		TapTimeout:       300 * time.Millisecond,
		Bounds:           Bounds{MinX: 0, MaxX: 80000, MinY: 0, MaxY: 80000},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.MinFlingVelocity <= 0 {
		c.MinFlingVelocity = d.MinFlingVelocity
	}
	if c.MaxFlingVelocity <= 0 {
		c.MaxFlingVelocity = d.MaxFlingVelocity
	}
	if c.Deceleration <= 0 {
		c.Deceleration = d.Deceleration
	}
	if c.TapTimeout <= 0 {
		c.TapTimeout = d.TapTimeout
	}
	if c.Bounds == (Bounds{}) {
		c.Bounds = d.Bounds
	}
	return c
}

type session struct {
	startX, startY float64
	lastX, lastY   float64
	downAt         time.Time
	updated        bool
}

// Controller is the scroll/fling state machine for one surface. Touch
// events and frame ticks may arrive on different goroutines.
type Controller struct {
	cfg    Config
	sink   Submitter
	clock  frame.Clock
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	sess    session
	tracker VelocityTracker
	fling   *Fling
	ticket  *frame.Ticket
	gen     uint64
	closed  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an idle controller that submits to sink and animates flings
// on clock.
func New(sink Submitter, clock frame.Clock, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg.withDefaults(),
		sink:   sink,
		clock:  clock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnTouch feeds one touch event into the state machine.
func (c *Controller) OnTouch(ev TouchEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch ev.Action {
	case ActionDown:
		c.down(ev)
	case ActionMove:
		if c.state != Dragging {
			return
		}
		c.tracker.Add(ev.X, ev.Y, ev.Time)
		c.moveTo(ev.X, ev.Y)
	case ActionUp, ActionCancel:
		if c.state != Dragging {
			return
		}
		c.release(ev)
	}
}

func (c *Controller) down(ev TouchEvent) {
	// A new gesture closes whatever was running.
	switch c.state {
	case Flinging:
		c.stopFling()
		c.send(0, 0, engine.PhaseEnd)
		c.logger.Debug("scroll: fling interrupted")
	case Dragging:
		c.send(0, 0, engine.PhaseEnd)
	}

	c.sess = session{
		startX: ev.X, startY: ev.Y,
		lastX: ev.X, lastY: ev.Y,
		downAt: ev.Time,
	}
	c.tracker.Reset()
	c.tracker.Add(ev.X, ev.Y, ev.Time)
	c.state = Dragging
	c.send(0, 0, engine.PhaseBegin)
}

func (c *Controller) moveTo(x, y float64) {
	dx := x - c.sess.lastX
	dy := y - c.sess.lastY
	if dx != 0 || dy != 0 {
		c.sess.lastX, c.sess.lastY = x, y
		c.sess.updated = true
		c.send(dx, dy, engine.PhaseUpdate)
	}
}

func (c *Controller) release(ev TouchEvent) {
	if ev.Action == ActionUp {
		c.tracker.Add(ev.X, ev.Y, ev.Time)
		c.moveTo(ev.X, ev.Y)

		vx, vy := c.tracker.Velocity(c.cfg.MaxFlingVelocity)
		if math.Hypot(vx, vy) > c.cfg.MinFlingVelocity {
			c.startFling(vx, vy)
			return
		}
	}

	c.state = Idle
	c.send(0, 0, engine.PhaseEnd)

	if ev.Action == ActionUp && !c.sess.updated && ev.Time.Sub(c.sess.downAt) <= c.cfg.TapTimeout {
		c.sink.Submit(engine.Click(round(ev.X), round(ev.Y)))
	}
}

func (c *Controller) startFling(vx, vy float64) {
	c.fling = NewFling(c.cfg.FPS, vx, vy, c.cfg.Deceleration, c.cfg.Bounds)
	c.state = Flinging
	c.gen++
	c.ticket = c.clock.Post(c.tick(c.gen))
	c.logger.Debug("scroll: fling",
		zap.Float64("vx", vx),
		zap.Float64("vy", vy))
}

func (c *Controller) tick(gen uint64) frame.Callback {
	return func(time.Time) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.gen || c.state != Flinging {
			return
		}
		if c.fling.Settled() {
			dx, dy := c.fling.Displacement()
			c.logger.Debug("scroll: fling settled",
				zap.Int("frames", c.fling.Steps()),
				zap.Float64("dx", dx),
				zap.Float64("dy", dy))
			c.fling = nil
			c.ticket = nil
			c.state = Idle
			c.send(0, 0, engine.PhaseEnd)
			return
		}
		if dx, dy := c.fling.Step(); dx != 0 || dy != 0 {
			c.send(dx, dy, engine.PhaseUpdate)
		}
		c.ticket = c.clock.Post(c.tick(gen))
	}
}

// stopFling force-settles the fling and invalidates its frame callbacks.
func (c *Controller) stopFling() {
	if c.fling != nil {
		c.fling.Finish()
		c.fling = nil
	}
	c.ticket.Cancel()
	c.ticket = nil
	c.gen++
	c.state = Idle
}

// Wheel sends a complete discrete scroll gesture. It is ignored while a
// finger is down; a running fling is stopped first.
func (c *Controller) Wheel(dx, dy float64, x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == Dragging {
		return
	}
	if c.state == Flinging {
		c.stopFling()
		c.send(0, 0, engine.PhaseEnd)
	}
	c.sess.lastX, c.sess.lastY = float64(x), float64(y)
	c.send(0, 0, engine.PhaseBegin)
	if dx != 0 || dy != 0 {
		c.send(dx, dy, engine.PhaseUpdate)
	}
	c.send(0, 0, engine.PhaseEnd)
}

// Close cancels pending frame work. Later events are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopFling()
	c.closed = true
}

// send submits a scroll at the last touch point followed by a pump. Called
// with mu held so that touch and frame submissions keep their order.
func (c *Controller) send(dx, dy float64, phase engine.Phase) {
	x, y := round(c.sess.lastX), round(c.sess.lastY)
	if c.sink.Submit(engine.Scroll(dx, dy, x, y, phase)) {
		c.sink.Submit(engine.Pump())
	}
}
