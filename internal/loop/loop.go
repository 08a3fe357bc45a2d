// Package loop provides a single-goroutine FIFO executor. It is the
// building block for both the engine goroutine (everything that touches the
// engine runs on one Loop) and the UI-facing dispatcher that notifications
// are redispatched onto.
package loop

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned by Post once the loop has been closed.
var ErrClosed = errors.New("loop: closed")

// Stats is a point-in-time view of the loop counters.
type Stats struct {
	Executed uint64
	Dropped  uint64
	Pending  int
}

// Loop runs posted functions one at a time, in the order they were posted,
// on a dedicated goroutine.
type Loop struct {
	name       string
	lockThread bool
	logger     *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	final  func()

	executed atomic.Uint64
	dropped  atomic.Uint64

	done chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithName labels the loop in log output.
func WithName(name string) Option {
	return func(lp *Loop) { lp.name = name }
}

// WithLockedThread pins the loop goroutine to one OS thread for its whole
// lifetime. Engines holding thread-local graphics state need this.
func WithLockedThread() Option {
	return func(lp *Loop) { lp.lockThread = true }
}

// New creates a Loop and starts its goroutine.
func New(opts ...Option) *Loop {
	l := &Loop{
		name:   "loop",
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)
	started := make(chan struct{})
	go l.run(started)
	<-started
	return l
}

// Post enqueues fn and returns immediately. It never blocks on the loop.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.dropped.Add(1)
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// Close stops accepting work, discards everything still queued and waits for
// the in-flight function (if any) to return. final, when non-nil, runs on the
// loop goroutine as its last act. Close returns the number of discarded
// functions. It is idempotent; later calls only wait.
//
// Close must not be called from a function running on the loop.
func (l *Loop) Close(final func()) int {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return 0
	}
	l.closed = true
	n := len(l.queue)
	for i := range l.queue {
		l.queue[i] = nil
	}
	l.queue = nil
	l.final = final
	l.dropped.Add(uint64(n))
	l.cond.Signal()
	l.mu.Unlock()

	<-l.done
	return n
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Executed: l.executed.Load(),
		Dropped:  l.dropped.Load(),
		Pending:  pending,
	}
}

func (l *Loop) run(started chan<- struct{}) {
	if l.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(l.done)
	close(started)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			final := l.final
			l.final = nil
			l.mu.Unlock()
			if final != nil {
				l.exec(final)
			}
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
		l.executed.Add(1)
	}
}

// exec runs fn, turning a panic into a log line so one bad task cannot take
// the host process down.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked",
				zap.String("loop", l.name),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	fn()
}
