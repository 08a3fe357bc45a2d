// Package bridge holds the callbacks the host hands to the engine at init:
// the wakeup relay, the event notifier and the file provider.
package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/engine"
)

// Runner queues a task on the engine goroutine. *channel.Channel implements
// it.
type Runner interface {
	Run(name string, fn func(engine.Engine) error) bool
}

// Relay turns engine wakeups into pump commands. Any number of concurrent
// wakeups collapse into a single queued pump; a wakeup that arrives while a
// pump is running queues the next one.
type Relay struct {
	runner  Runner
	logger  *zap.Logger
	pending atomic.Bool

	wakeups atomic.Uint64
	pumps   atomic.Uint64
}

// NewRelay creates a relay that pumps through r.
func NewRelay(r Runner, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{runner: r, logger: logger}
}

// Wakeup implements engine.Waker. It never blocks.
func (r *Relay) Wakeup() {
	r.wakeups.Add(1)
	if !r.pending.CompareAndSwap(false, true) {
		return
	}
	if !r.runner.Run("pump", r.pump) {
		// Channel is gone; clear so a later channel could be woken again.
		r.pending.Store(false)
		r.logger.Debug("relay: wakeup dropped")
	}
}

func (r *Relay) pump(e engine.Engine) error {
	// Clear before pumping: wakeups raised by the pump itself must queue
	// another one.
	r.pending.Store(false)
	r.pumps.Add(1)
	return e.PerformUpdates()
}

// Pending reports whether a pump is queued but has not started.
func (r *Relay) Pending() bool {
	return r.pending.Load()
}

// Counts returns how many wakeups were received and pumps executed.
func (r *Relay) Counts() (wakeups, pumps uint64) {
	return r.wakeups.Load(), r.pumps.Load()
}
