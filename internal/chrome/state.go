package chrome

import (
	"time"

	"github.com/embedview/embedview/internal/engine"
)

// statePoll bounds how stale title and history may get while the host keeps
// pumping without page events.
const statePoll = time.Second

type eventKind int

const (
	eventLoadStarted eventKind = iota
	eventLoadEnded
	eventNavigated
	eventInfoChanged
)

// event is a DevTools notification captured off the engine goroutine and
// replayed on the next pump.
type event struct {
	kind eventKind
	url  string
}

// snapshot is what the page reports about itself when polled during a pump.
type snapshot struct {
	Title        string
	URL          string
	HistoryIndex int
	HistoryLen   int
}

// pageState tracks what the host has been told so that only changes are
// reported.
type pageState struct {
	suffix string

	loading      bool
	title        string
	url          string
	canGoBack    bool
	canGoForward bool
	reported     bool
	lastSync     time.Time
}

// syncDue reports whether the page should be polled now: always when events
// arrived, otherwise at most once per statePoll.
func (s *pageState) syncDue(now time.Time, pending bool) bool {
	if !pending && !s.lastSync.IsZero() && now.Sub(s.lastSync) < statePoll {
		return false
	}
	s.lastSync = now
	return true
}

// apply reports ev to h. It returns true when the page content may have
// changed and a new frame is due.
func (s *pageState) apply(ev event, h engine.Host) bool {
	switch ev.kind {
	case eventLoadStarted:
		if s.loading {
			return false
		}
		s.loading = true
		h.OnLoadStarted()
		h.OnAnimatingChanged(true)
		return false
	case eventLoadEnded:
		if !s.loading {
			return true
		}
		s.loading = false
		h.OnLoadEnded()
		h.OnAnimatingChanged(false)
		return true
	case eventNavigated:
		return true
	}
	return false
}

// sync reports title, history and URL changes between the last snapshot and
// snap. History is reported before the URL it moved to.
func (s *pageState) sync(snap snapshot, h engine.Host) {
	back, fwd := engine.HistoryFlags(snap.HistoryIndex, snap.HistoryLen)
	first := !s.reported
	s.reported = true

	if first || back != s.canGoBack || fwd != s.canGoForward || snap.URL != s.url {
		s.canGoBack, s.canGoForward = back, fwd
		h.OnHistoryChanged(back, fwd)
	}
	if first || snap.URL != s.url {
		s.url = snap.URL
		h.OnURLChanged(snap.URL)
	}
	title := engine.DisplayTitle(snap.Title, snap.URL, s.suffix)
	if first || title != s.title {
		s.title = title
		h.OnTitleChanged(title)
	}
}

// wheel is one mouse wheel event to dispatch.
type wheel struct {
	X, Y   int
	DX, DY float64
}

// scrollQueue collects scroll deltas between pumps. Consecutive deltas of
// one gesture at the same position are merged. Events without a delta are
// not dispatched.
type scrollQueue struct {
	pending []wheel
	split   bool
}

func (q *scrollQueue) push(dx, dy float64, x, y int, phase engine.Phase) {
	if phase == engine.PhaseBegin {
		q.split = true
	}
	if dx == 0 && dy == 0 {
		return
	}
	if n := len(q.pending); n > 0 && !q.split {
		last := &q.pending[n-1]
		if last.X == x && last.Y == y {
			last.DX += dx
			last.DY += dy
			return
		}
	}
	q.pending = append(q.pending, wheel{X: x, Y: y, DX: dx, DY: dy})
	q.split = false
}

func (q *scrollQueue) drain() []wheel {
	out := q.pending
	q.pending = nil
	q.split = false
	return out
}
