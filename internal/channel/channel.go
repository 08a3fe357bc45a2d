// Package channel serialises every call into the engine onto a single
// goroutine. The Channel is the only owner of the engine handle: it creates
// it during init, runs commands against it one at a time, and closes it on
// teardown.
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/loop"
)

// Stats reports channel counters.
type Stats struct {
	Executed uint64
	Dropped  uint64
	Pending  int
}

// Channel is the command pipe into one engine instance.
type Channel struct {
	launcher engine.Launcher
	logger   *zap.Logger
	loop     *loop.Loop

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	initialized bool

	dropped atomic.Uint64

	// eng is only read or written on the loop goroutine.
	eng engine.Engine
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// New starts the engine goroutine. No engine exists until Init runs.
func New(launcher engine.Launcher, opts ...Option) *Channel {
	c := &Channel{
		launcher: launcher,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.loop = loop.New(
		loop.WithName("engine"),
		loop.WithLogger(c.logger),
		loop.WithLockedThread(),
	)
	return c
}

// Init queues the one-time engine creation. Only commands submitted after
// Init are accepted, so init always executes first. A second call returns
// false.
func (c *Channel) Init(p engine.InitParams) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		c.logger.Warn("channel: init already submitted")
		return false
	}
	if p.URL == "" {
		p.URL = engine.DefaultURI
	}
	err := c.loop.Post(func() {
		e, err := c.launcher.Launch(c.ctx, p)
		if err != nil {
			c.logger.Error("channel: engine launch failed", zap.String("url", p.URL), zap.Error(err))
			return
		}
		c.eng = e
		c.logger.Info("channel: engine initialized",
			zap.String("url", p.URL),
			zap.Int("width", p.Width),
			zap.Int("height", p.Height))
	})
	if err != nil {
		c.logger.Debug("channel: init dropped", zap.Error(err))
		return false
	}
	c.initialized = true
	return true
}

// Submit queues cmd for the engine goroutine and returns at once. It reports
// false when the command was dropped because init has not been submitted or
// the channel is closed; dropping is never an error for the caller.
func (c *Channel) Submit(cmd engine.Command) bool {
	return c.Run(cmd.String(), cmd.Apply)
}

// Run queues an arbitrary engine task. It follows the same ordering and
// dropping rules as Submit.
func (c *Channel) Run(name string, fn func(engine.Engine) error) bool {
	c.mu.Lock()
	ready := c.initialized
	c.mu.Unlock()
	if !ready {
		c.dropped.Add(1)
		c.logger.Debug("channel: dropped before init", zap.String("command", name))
		return false
	}

	err := c.loop.Post(func() {
		if c.eng == nil {
			c.logger.Warn("channel: no engine", zap.String("command", name), zap.Error(engine.ErrNotInitialized))
			return
		}
		if err := fn(c.eng); err != nil {
			c.logger.Warn("channel: command failed", zap.String("command", name), zap.Error(err))
		}
	})
	if err != nil {
		c.logger.Debug("channel: dropped after teardown", zap.String("command", name))
		return false
	}
	return true
}

// Pump queues a "perform updates" command.
func (c *Channel) Pump() bool {
	return c.Submit(engine.Pump())
}

// Close tears the engine down. Queued commands are discarded without
// running; the engine is closed on its own goroutine once the in-flight
// command returns. Close is idempotent and must not be called from an
// engine task.
func (c *Channel) Close() {
	c.cancel()
	n := c.loop.Close(func() {
		if c.eng == nil {
			return
		}
		if err := c.eng.Close(); err != nil {
			c.logger.Warn("channel: engine close failed", zap.Error(err))
		}
		c.eng = nil
		c.logger.Info("channel: engine closed")
	})
	if n > 0 {
		c.logger.Debug("channel: discarded queued commands", zap.Int("count", n))
	}
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.loop.Closed()
}

// Stats returns executed, dropped and pending counts.
func (c *Channel) Stats() Stats {
	s := c.loop.Stats()
	return Stats{
		Executed: s.Executed,
		Dropped:  s.Dropped + c.dropped.Load(),
		Pending:  s.Pending,
	}
}
