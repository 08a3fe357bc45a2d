package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/loop"
)

// dispatchMsg carries a bridge notification into Update, which is the UI
// context.
type dispatchMsg struct {
	fn func()
}

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Dispatcher implements bridge.Dispatcher on top of the Bubble Tea program.
// Posted functions are forwarded in order from a dedicated goroutine, so
// the engine goroutine never waits for the program to accept a message.
type Dispatcher struct {
	loop   *loop.Loop
	logger *zap.Logger

	mu     sync.Mutex
	sender Sender
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		loop:   loop.New(loop.WithName("ui"), loop.WithLogger(logger)),
		logger: logger,
	}
}

// Attach routes posted functions to s. Functions posted before Attach are
// dropped.
func (d *Dispatcher) Attach(s Sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
}

func (d *Dispatcher) Post(fn func()) error {
	if d.loop.Closed() {
		return loop.ErrClosed
	}
	d.mu.Lock()
	s := d.sender
	d.mu.Unlock()
	if s == nil {
		d.logger.Debug("app: no program attached, notification dropped")
		return nil
	}
	return d.loop.Post(func() {
		s.Send(dispatchMsg{fn: fn})
	})
}

// Close stops forwarding. Pending functions are discarded.
func (d *Dispatcher) Close() {
	if n := d.loop.Close(nil); n > 0 {
		d.logger.Debug("app: discarded pending notifications", zap.Int("count", n))
	}
}
