package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/enginetest"
)

type countingWaker struct{ n atomic.Int32 }

func (w *countingWaker) Wakeup() { w.n.Add(1) }

type mapFiles map[string]string

func (m mapFiles) ReadFile(name string) ([]byte, bool) {
	s, ok := m[name]
	if !ok {
		return nil, false
	}
	return []byte(s), true
}

type recordingHost struct {
	mu     sync.Mutex
	events []string
	frames []engine.Frame
}

func (h *recordingHost) add(s string) {
	h.mu.Lock()
	h.events = append(h.events, s)
	h.mu.Unlock()
}

func (h *recordingHost) OnLoadStarted()              { h.add("started") }
func (h *recordingHost) OnLoadEnded()                { h.add("ended") }
func (h *recordingHost) OnTitleChanged(title string) { h.add("title:" + title) }
func (h *recordingHost) OnURLChanged(url string)     { h.add("url:" + url) }
func (h *recordingHost) OnHistoryChanged(b, f bool) {
	if b {
		h.add("history:back")
	} else {
		h.add("history:none")
	}
}
func (h *recordingHost) OnAnimatingChanged(a bool) {}
func (h *recordingHost) Present(f engine.Frame) {
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()
}

func (h *recordingHost) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func startServer(t *testing.T, fake *enginetest.Engine, opts ...ServerOption) (*Server, string) {
	t.Helper()
	s := NewServer(fake.Launcher(), opts...)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRemoteCommandsReachEngine(t *testing.T) {
	fake := enginetest.New()
	srv, url := startServer(t, fake)

	l := &Launcher{URL: url}
	e, err := l.Launch(context.Background(), engine.InitParams{URL: "https://example.org", Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer e.Close()

	if err := e.Resize(320, 200); err != nil {
		t.Fatal(err)
	}
	if err := e.Scroll(0, 12.5, 3, 4, engine.PhaseUpdate); err != nil {
		t.Fatal(err)
	}
	if err := e.Click(3, 4); err != nil {
		t.Fatal(err)
	}

	calls := fake.WaitCalls(3, 2*time.Second)
	if len(calls) != 3 {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0] != engine.Resize(320, 200) || calls[1] != engine.Scroll(0, 12.5, 3, 4, engine.PhaseUpdate) || calls[2] != engine.Click(3, 4) {
		t.Errorf("calls = %v", calls)
	}
	p := fake.Params()
	if p.URL != "https://example.org" || p.Width != 640 || p.Height != 480 {
		t.Errorf("init params = %+v", p)
	}
	if srv.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", srv.SessionCount())
	}
}

func TestRemoteEventsAreDeliveredOnPump(t *testing.T) {
	fake := enginetest.New()
	_, url := startServer(t, fake)

	waker := &countingWaker{}
	host := &recordingHost{}
	l := &Launcher{URL: url}
	e, err := l.Launch(context.Background(), engine.InitParams{Waker: waker, Host: host})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer e.Close()
	waitFor(t, "remote init", func() bool { return fake.Params().Host != nil })

	fake.Emit(func(h engine.Host) {
		h.OnLoadStarted()
		h.OnTitleChanged("Example")
		h.OnHistoryChanged(true, false)
		h.Present(engine.Frame{Markdown: "# Example"})
	})
	waitFor(t, "wakeup", func() bool { return waker.n.Load() > 0 })

	// Events only arrive once the engine side has pumped, and are handed to
	// the host on the following pump.
	deadline := time.Now().Add(2 * time.Second)
	for len(host.snapshot()) < 3 && time.Now().Before(deadline) {
		if err := e.PerformUpdates(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := host.snapshot()
	want := []string{"started", "title:Example", "history:back"}
	if len(got) != len(want) {
		t.Fatalf("host events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.frames) != 1 || host.frames[0].Markdown != "# Example" {
		t.Errorf("frames = %v", host.frames)
	}
}

func TestRemoteFileReadsCrossTheWire(t *testing.T) {
	fake := enginetest.New()
	_, url := startServer(t, fake, WithFileTimeout(time.Second))

	files := mapFiles{"prefs.json": `{"js.enabled": true}`}
	l := &Launcher{URL: url}
	e, err := l.Launch(context.Background(), engine.InitParams{Files: files})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer e.Close()
	waitFor(t, "remote init", func() bool { return fake.Params().Files != nil })

	remoteFiles := fake.Params().Files
	b, ok := remoteFiles.ReadFile("prefs.json")
	if !ok || string(b) != `{"js.enabled": true}` {
		t.Errorf("ReadFile(prefs.json) = %q, %v", b, ok)
	}
	if _, ok := remoteFiles.ReadFile("missing.css"); ok {
		t.Error("missing file reported found")
	}
}

func TestRemoteCloseTearsDownEngine(t *testing.T) {
	fake := enginetest.New()
	srv, url := startServer(t, fake)

	l := &Launcher{URL: url}
	e, err := l.Launch(context.Background(), engine.InitParams{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := e.Reload(); err != nil {
		t.Fatal(err)
	}
	fake.WaitCalls(1, time.Second)

	_ = e.Close()
	waitFor(t, "engine close", fake.Closed)
	waitFor(t, "session removal", func() bool { return srv.SessionCount() == 0 })

	if err := e.Reload(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Reload after Close = %v, want ErrNotConnected", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestRemoteAuth(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", "s3cret", false},
		{"wrong token", "guess", true},
		{"no token", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := enginetest.New()
			_, url := startServer(t, fake, WithAuthToken("s3cret"))
			l := &Launcher{URL: url, Token: tt.token}
			e, err := l.Launch(context.Background(), engine.InitParams{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Launch err = %v, wantErr %v", err, tt.wantErr)
			}
			if e != nil {
				e.Close()
			}
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "example.org", true},
		{"same host", nil, "http://example.org", "example.org", true},
		{"localhost", nil, "http://localhost:3000", "example.org", true},
		{"loopback v6", nil, "http://[::1]:3000", "example.org", true},
		{"foreign", nil, "http://evil.test", "example.org", false},
		{"allowed exact", []string{"https://app.test"}, "https://app.test", "example.org", true},
		{"allowed host", []string{"https://app.test"}, "http://app.test", "example.org", true},
		{"not allowed", []string{"https://app.test"}, "http://localhost", "example.org", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(nil, WithAllowedOrigins(tt.allowed))
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(nil)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sessions":0`) {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventApply(t *testing.T) {
	h := &recordingHost{}
	for _, ev := range []Event{
		{Kind: EventLoadStarted},
		{Kind: EventURL, URL: "https://example.org"},
		{Kind: EventFrame},
		{Kind: "bogus"},
		{Kind: EventLoadEnded},
	} {
		ev.Apply(h)
	}
	got := h.snapshot()
	want := []string{"started", "url:https://example.org", "ended"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if len(h.frames) != 0 {
		t.Error("frame event without a frame was applied")
	}
}
