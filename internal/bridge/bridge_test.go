package bridge

import (
	"errors"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/embedview/embedview/internal/channel"
	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/enginetest"
	"github.com/embedview/embedview/internal/loop"
)

// manualRunner holds queued tasks until the test runs them.
type manualRunner struct {
	mu    sync.Mutex
	tasks []func(engine.Engine) error
	drop  bool
}

func (m *manualRunner) Run(name string, fn func(engine.Engine) error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drop {
		return false
	}
	m.tasks = append(m.tasks, fn)
	return true
}

func (m *manualRunner) queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *manualRunner) runAll(e engine.Engine) {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	for _, fn := range tasks {
		_ = fn(e)
	}
}

func TestRelayCoalescesConcurrentWakeups(t *testing.T) {
	r := &manualRunner{}
	relay := NewRelay(r, nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				relay.Wakeup()
			}
		}()
	}
	wg.Wait()

	if got := r.queued(); got != 1 {
		t.Fatalf("queued pumps = %d, want 1", got)
	}
	if !relay.Pending() {
		t.Fatal("relay should report a pending pump")
	}

	fake := enginetest.New()
	r.runAll(fake)

	wakeups, pumps := relay.Counts()
	if wakeups != 640 || pumps != 1 {
		t.Errorf("wakeups=%d pumps=%d, want 640 and 1", wakeups, pumps)
	}
	if relay.Pending() {
		t.Error("pending flag not cleared by pump")
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0].Kind != engine.KindPump {
		t.Errorf("engine calls = %v, want one pump", calls)
	}

	relay.Wakeup()
	if got := r.queued(); got != 1 {
		t.Errorf("wakeup after pump queued %d, want 1", got)
	}
}

// wakingEngine raises a wakeup from inside its own pump, like an engine
// that finished one batch and has more work ready.
type wakingEngine struct {
	*enginetest.Engine
	relay *Relay
	once  sync.Once
}

func (w *wakingEngine) PerformUpdates() error {
	err := w.Engine.PerformUpdates()
	w.once.Do(w.relay.Wakeup)
	return err
}

func TestRelayWakeupDuringPumpQueuesAnother(t *testing.T) {
	r := &manualRunner{}
	relay := NewRelay(r, nil)
	e := &wakingEngine{Engine: enginetest.New(), relay: relay}

	relay.Wakeup()
	r.runAll(e)

	if got := r.queued(); got != 1 {
		t.Fatalf("wakeup raised during pump queued %d pumps, want 1", got)
	}
	r.runAll(e)
	if _, pumps := relay.Counts(); pumps != 2 {
		t.Errorf("pumps = %d, want 2", pumps)
	}
}

func TestRelayDroppedWakeupClearsPending(t *testing.T) {
	r := &manualRunner{drop: true}
	relay := NewRelay(r, nil)
	relay.Wakeup()
	if relay.Pending() {
		t.Error("pending left set after dropped submit")
	}
}

func TestRelayPumpAlwaysRunsThroughChannel(t *testing.T) {
	fake := enginetest.New()
	ch := channel.New(fake.Launcher())
	defer ch.Close()
	relay := NewRelay(ch, nil)
	ch.Init(engine.InitParams{Waker: relay})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Wakeup()
		}()
	}
	wg.Wait()

	calls := fake.WaitCalls(1, time.Second)
	if len(calls) == 0 {
		t.Fatal("no pump ran")
	}
	deadline := time.Now().Add(time.Second)
	for relay.Pending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if relay.Pending() {
		t.Error("a pump is still pending")
	}
	if _, pumps := relay.Counts(); pumps == 0 || pumps > 16 {
		t.Errorf("pumps = %d, want between 1 and 16", pumps)
	}
}

type recordingClient struct {
	mu     sync.Mutex
	events []string
	frames []engine.Frame
}

func (c *recordingClient) add(s string) {
	c.mu.Lock()
	c.events = append(c.events, s)
	c.mu.Unlock()
}

func (c *recordingClient) OnLoadStarted()              { c.add("started") }
func (c *recordingClient) OnLoadEnded()                { c.add("ended") }
func (c *recordingClient) OnTitleChanged(title string) { c.add("title:" + title) }
func (c *recordingClient) OnURLChanged(url string)     { c.add("url:" + url) }
func (c *recordingClient) OnHistoryChanged(back, fwd bool) {
	if back && !fwd {
		c.add("history:back")
		return
	}
	c.add("history:other")
}
func (c *recordingClient) OnFrame(f engine.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *recordingClient) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func drain(t *testing.T, ui *loop.Loop) {
	t.Helper()
	done := make(chan struct{})
	if err := ui.Post(func() { close(done) }); err != nil {
		t.Fatalf("post: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ui loop stalled")
	}
}

func TestNotifierPreservesEmissionOrder(t *testing.T) {
	ui := loop.New()
	defer ui.Close(nil)
	n := NewNotifier(ui, nil)
	c := &recordingClient{}
	n.SetClient(c)

	for i := 0; i < 50; i++ {
		n.OnLoadStarted()
		n.OnLoadEnded()
	}
	n.OnTitleChanged("Example")
	n.OnURLChanged("https://example.org")
	n.OnHistoryChanged(true, false)
	drain(t, ui)

	got := c.snapshot()
	if len(got) != 103 {
		t.Fatalf("got %d events, want 103", len(got))
	}
	for i := 0; i < 100; i += 2 {
		if got[i] != "started" || got[i+1] != "ended" {
			t.Fatalf("events[%d:%d] = %v, want [started ended]", i, i+2, got[i:i+2])
		}
	}
	tail := got[100:]
	want := []string{"title:Example", "url:https://example.org", "history:back"}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("tail[%d] = %q, want %q", i, tail[i], want[i])
		}
	}
}

func TestNotifierDropsWithoutClientAndDoesNotReplay(t *testing.T) {
	ui := loop.New()
	defer ui.Close(nil)
	n := NewNotifier(ui, nil)

	n.OnLoadStarted()
	n.OnTitleChanged("missed")
	if n.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", n.Dropped())
	}

	c := &recordingClient{}
	n.SetClient(c)
	n.OnLoadEnded()
	drain(t, ui)

	got := c.snapshot()
	if len(got) != 1 || got[0] != "ended" {
		t.Errorf("events = %v, want [ended]", got)
	}
}

func TestNotifierDeliversOnDispatcher(t *testing.T) {
	ui := loop.New()
	defer ui.Close(nil)
	n := NewNotifier(ui, nil)

	onUI := make(chan bool, 1)
	var marker sync.Mutex
	marker.Lock()
	// Block the UI loop: delivery must wait for it.
	_ = ui.Post(func() { marker.Lock(); marker.Unlock() })

	n.SetClient(&funcClient{onTitle: func(string) { onUI <- true }})
	n.OnTitleChanged("x")

	select {
	case <-onUI:
		t.Fatal("client invoked while the UI context was busy")
	case <-time.After(20 * time.Millisecond):
	}
	marker.Unlock()
	select {
	case <-onUI:
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestNotifierOptionalInterfaces(t *testing.T) {
	ui := loop.New()
	defer ui.Close(nil)
	n := NewNotifier(ui, nil)
	c := &recordingClient{}
	n.SetClient(c)

	var hooked []bool
	n.SetAnimationHook(func(a bool) { hooked = append(hooked, a) })
	n.OnAnimatingChanged(true)
	n.Present(engine.Frame{Title: "t", Markdown: "# t"})
	drain(t, ui)

	if len(hooked) != 1 || !hooked[0] {
		t.Errorf("animation hook calls = %v, want [true]", hooked)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) != 1 || c.frames[0].Markdown != "# t" {
		t.Errorf("frames = %v", c.frames)
	}
}

func TestNotifierAfterDispatcherClosed(t *testing.T) {
	ui := loop.New()
	n := NewNotifier(ui, nil)
	n.SetClient(&recordingClient{})
	ui.Close(nil)

	n.OnLoadStarted()
	if n.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", n.Dropped())
	}
}

type funcClient struct {
	onTitle func(string)
}

func (f *funcClient) OnLoadStarted()              {}
func (f *funcClient) OnLoadEnded()                {}
func (f *funcClient) OnTitleChanged(title string) { f.onTitle(title) }
func (f *funcClient) OnURLChanged(string)         {}
func (f *funcClient) OnHistoryChanged(bool, bool) {}

func TestFileProvider(t *testing.T) {
	user := FSStore{FS: fstest.MapFS{
		"prefs.json": {Data: []byte(`{"user": true}`)},
	}}
	defaults := FSStore{FS: fstest.MapFS{
		"prefs.json":     {Data: []byte(`{"user": false}`)},
		"user-agent.css": {Data: []byte("body{}")},
	}}
	p := NewFileProvider(LayeredStore{user, defaults}, nil)

	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"prefs.json", `{"user": true}`, true},
		{"user-agent.css", "body{}", true},
		{"missing.txt", "", false},
		{"../../etc/passwd", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := p.ReadFile(tt.name)
			if ok != tt.wantOK || string(b) != tt.want {
				t.Errorf("ReadFile(%q) = %q, %v; want %q, %v", tt.name, b, ok, tt.want, tt.wantOK)
			}
		})
	}
}

type failingStore struct{}

func (failingStore) Read(string) ([]byte, error) { return nil, errors.New("disk on fire") }

func TestFileProviderDegradesOnReadError(t *testing.T) {
	p := NewFileProvider(failingStore{}, nil)
	if b, ok := p.ReadFile("prefs.json"); ok || b != nil {
		t.Errorf("ReadFile = %q, %v; want nil, false", b, ok)
	}

	var nilProvider *FileProvider
	if _, ok := nilProvider.ReadFile("x"); ok {
		t.Error("nil provider reported a hit")
	}
}

func TestLayeredStorePrefersRealError(t *testing.T) {
	empty := FSStore{FS: fstest.MapFS{}}
	_, err := LayeredStore{empty, failingStore{}}.Read("x")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want the read failure", err)
	}
	_, err = LayeredStore{}.Read("x")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("empty store err = %v, want ErrNotExist", err)
	}
}
