package channel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/enginetest"
)

func newTestChannel(t *testing.T) (*Channel, *enginetest.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	fake := enginetest.New()
	c := New(fake.Launcher(), WithLogger(zap.New(core)))
	t.Cleanup(c.Close)
	return c, fake, logs
}

func TestSubmitBeforeInitIsDropped(t *testing.T) {
	c, fake, logs := newTestChannel(t)

	if c.Submit(engine.Reload()) {
		t.Fatal("Submit before Init reported accepted")
	}
	if got := logs.FilterMessage("channel: dropped before init").Len(); got != 1 {
		t.Errorf("dropped-before-init logs = %d, want 1", got)
	}

	c.Init(engine.InitParams{Width: 10, Height: 20})
	c.Submit(engine.Stop())
	calls := fake.WaitCalls(1, time.Second)
	if len(calls) != 1 || calls[0].Kind != engine.KindStop {
		t.Errorf("calls = %v, want [stop]", calls)
	}
}

func TestInitRunsFirstAndOnlyOnce(t *testing.T) {
	c, fake, _ := newTestChannel(t)

	if !c.Init(engine.InitParams{Width: 640, Height: 480}) {
		t.Fatal("first Init rejected")
	}
	if c.Init(engine.InitParams{}) {
		t.Error("second Init accepted")
	}
	c.Submit(engine.Pump())
	fake.WaitCalls(1, time.Second)

	p := fake.Params()
	if p.URL != engine.DefaultURI {
		t.Errorf("URL = %q, want %q", p.URL, engine.DefaultURI)
	}
	if p.Width != 640 || p.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", p.Width, p.Height)
	}
}

func TestPerSourceOrderIsPreserved(t *testing.T) {
	c, fake, _ := newTestChannel(t)
	c.Init(engine.InitParams{})

	const (
		sources = 8
		perSrc  = 200
	)
	var wg sync.WaitGroup
	for src := 0; src < sources; src++ {
		wg.Add(1)
		go func(src int) {
			defer wg.Done()
			for i := 0; i < perSrc; i++ {
				// X carries the source, Y the sequence number.
				c.Submit(engine.Click(src, i))
			}
		}(src)
	}
	wg.Wait()

	calls := fake.WaitCalls(sources*perSrc, 5*time.Second)
	if len(calls) != sources*perSrc {
		t.Fatalf("got %d calls, want %d", len(calls), sources*perSrc)
	}
	next := make([]int, sources)
	for _, cmd := range calls {
		if cmd.Y != next[cmd.X] {
			t.Fatalf("source %d: got seq %d, want %d", cmd.X, cmd.Y, next[cmd.X])
		}
		next[cmd.X]++
	}
	if n := fake.Overlaps(); n != 0 {
		t.Errorf("engine saw %d overlapping calls", n)
	}
}

func TestSubmitAfterCloseIsNoop(t *testing.T) {
	c, fake, logs := newTestChannel(t)
	c.Init(engine.InitParams{})
	c.Submit(engine.Reload())
	fake.WaitCalls(1, time.Second)

	c.Close()
	if !fake.Closed() {
		t.Fatal("engine not closed on teardown")
	}

	if c.Submit(engine.Reload()) {
		t.Error("Submit after Close reported accepted")
	}
	c.Close()

	if n := fake.UsedAfterClose(); n != 0 {
		t.Errorf("engine used %d times after close", n)
	}
	if got := len(fake.Calls()); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
	if logs.FilterMessage("channel: dropped after teardown").Len() != 1 {
		t.Error("expected a dropped-after-teardown log entry")
	}
}

func TestCloseDiscardsQueuedCommands(t *testing.T) {
	c, fake, _ := newTestChannel(t)
	fake.Delay = 20 * time.Millisecond
	c.Init(engine.InitParams{})

	for i := 0; i < 50; i++ {
		c.Submit(engine.Click(i, i))
	}
	c.Close()

	if n := fake.UsedAfterClose(); n != 0 {
		t.Errorf("engine used %d times after close", n)
	}
	if got := len(fake.Calls()); got >= 50 {
		t.Errorf("all %d queued commands ran; expected teardown to discard some", got)
	}
	if s := c.Stats(); s.Pending != 0 {
		t.Errorf("Pending = %d after Close", s.Pending)
	}
}

func TestLaunchFailureDegrades(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fake := enginetest.New()
	fake.LaunchErr = errors.New("no display")
	c := New(fake.Launcher(), WithLogger(zap.New(core)))
	defer c.Close()

	c.Init(engine.InitParams{})
	done := make(chan struct{})
	c.Submit(engine.Reload())
	c.Run("marker", func(engine.Engine) error { close(done); return nil })

	deadline := time.After(time.Second)
	for logs.FilterMessage("channel: no engine").Len() < 2 {
		select {
		case <-deadline:
			t.Fatalf("no-engine logs = %d, want 2", logs.FilterMessage("channel: no engine").Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	select {
	case <-done:
		t.Error("task ran without an engine")
	default:
	}
	if logs.FilterMessage("channel: engine launch failed").Len() != 1 {
		t.Error("expected launch failure to be logged")
	}
}

func TestCommandErrorIsLogged(t *testing.T) {
	c, _, logs := newTestChannel(t)
	c.Init(engine.InitParams{})

	done := make(chan struct{})
	c.Run("failing", func(engine.Engine) error {
		defer close(done)
		return errors.New("navigation refused")
	})
	<-done
	c.Close()

	entries := logs.FilterMessage("channel: command failed").All()
	if len(entries) != 1 {
		t.Fatalf("command-failed logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["command"]; got != "failing" {
		t.Errorf("command field = %v, want failing", got)
	}
}
