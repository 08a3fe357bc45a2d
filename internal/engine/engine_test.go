package engine

import (
	"errors"
	"testing"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) rec(s string) error { r.calls = append(r.calls, s); return r.err }

func (r *recorder) PerformUpdates() error    { return r.rec("pump") }
func (r *recorder) LoadURI(uri string) error { return r.rec("load " + uri) }
func (r *recorder) Reload() error            { return r.rec("reload") }
func (r *recorder) Stop() error              { return r.rec("stop") }
func (r *recorder) GoBack() error            { return r.rec("back") }
func (r *recorder) GoForward() error         { return r.rec("forward") }
func (r *recorder) Resize(w, h int) error    { return r.rec("resize") }
func (r *recorder) Scroll(dx, dy float64, x, y int, p Phase) error {
	return r.rec("scroll " + p.String())
}
func (r *recorder) Click(x, y int) error { return r.rec("click") }
func (r *recorder) Close() error         { return r.rec("close") }

func TestCommandApply(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Reload(), "reload"},
		{Stop(), "stop"},
		{GoBack(), "back"},
		{GoForward(), "forward"},
		{Pump(), "pump"},
		{Navigate("https://example.org"), "load https://example.org"},
		{Resize(10, 20), "resize"},
		{Scroll(1, 2, 0, 0, PhaseUpdate), "scroll update"},
		{Click(3, 4), "click"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			r := &recorder{}
			if err := tt.cmd.Apply(r); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if len(r.calls) != 1 || r.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", r.calls, tt.want)
			}
		})
	}
}

func TestCommandApplyPropagatesEngineError(t *testing.T) {
	boom := errors.New("boom")
	r := &recorder{err: boom}
	if err := Reload().Apply(r); !errors.Is(err, boom) {
		t.Errorf("Apply = %v, want %v", err, boom)
	}
}

func TestCommandApplyUnknownKind(t *testing.T) {
	if err := (Command{Kind: "warp"}).Apply(&recorder{}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseBegin.String() != "begin" || PhaseUpdate.String() != "update" || PhaseEnd.String() != "end" {
		t.Error("unexpected phase names")
	}
	if Phase(7).String() != "phase(7)" {
		t.Errorf("Phase(7) = %q", Phase(7).String())
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		title, url, suffix string
		want               string
	}{
		{"Example", "https://example.org", "", "Example"},
		{"", "https://example.org", "", "https://example.org"},
		{"", "", "", "Untitled"},
		{"Example", "", "embedview", "Example - embedview"},
	}
	for _, tt := range tests {
		if got := DisplayTitle(tt.title, tt.url, tt.suffix); got != tt.want {
			t.Errorf("DisplayTitle(%q, %q, %q) = %q, want %q", tt.title, tt.url, tt.suffix, got, tt.want)
		}
	}
}

func TestHistoryFlags(t *testing.T) {
	tests := []struct {
		current, n    int
		back, forward bool
	}{
		{0, 0, false, false},
		{0, 1, false, false},
		{0, 3, false, true},
		{1, 3, true, true},
		{2, 3, true, false},
	}
	for _, tt := range tests {
		back, fwd := HistoryFlags(tt.current, tt.n)
		if back != tt.back || fwd != tt.forward {
			t.Errorf("HistoryFlags(%d, %d) = %v, %v; want %v, %v", tt.current, tt.n, back, fwd, tt.back, tt.forward)
		}
	}
}

type mapFiles map[string][]byte

func (m mapFiles) ReadFile(name string) ([]byte, bool) {
	b, ok := m[name]
	return b, ok
}

func TestReadResource(t *testing.T) {
	files := mapFiles{"prefs.json": []byte("{}")}
	if b, ok := ReadResource(files, ResourcePreferences); !ok || string(b) != "{}" {
		t.Errorf("ReadResource(prefs) = %q, %v", b, ok)
	}
	if _, ok := ReadResource(files, ResourceUserAgentCSS); ok {
		t.Error("missing resource reported as found")
	}
	if _, ok := ReadResource(nil, ResourcePreferences); ok {
		t.Error("nil reader reported a resource")
	}
}
