// Package remote runs an engine in another process. The host side is an
// engine.Engine that forwards commands over a websocket; the engine side is
// a Server that owns a command channel per connection and sends wakeups,
// host notifications and file requests back.
package remote

import (
	"encoding/json"
	"fmt"

	"github.com/embedview/embedview/internal/engine"
)

type MessageType string

const (
	// host -> engine
	MsgInit    MessageType = "init"
	MsgCommand MessageType = "command"
	MsgFile    MessageType = "file"
	MsgClose   MessageType = "close"

	// engine -> host
	MsgWakeup   MessageType = "wakeup"
	MsgEvent    MessageType = "event"
	MsgReadFile MessageType = "read_file"
	MsgError    MessageType = "error"
)

type Message struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(t MessageType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, fmt.Errorf("remote: marshal %s: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

type InitPayload struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type FileRequest struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type FileResponse struct {
	ID    uint64 `json:"id"`
	Found bool   `json:"found"`
	Data  []byte `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type EventKind string

const (
	EventLoadStarted EventKind = "load_started"
	EventLoadEnded   EventKind = "load_ended"
	EventTitle       EventKind = "title"
	EventURL         EventKind = "url"
	EventHistory     EventKind = "history"
	EventAnimating   EventKind = "animating"
	EventFrame       EventKind = "frame"
)

// Event is one engine.Host callback in wire form.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Title        string        `json:"title,omitempty"`
	URL          string        `json:"url,omitempty"`
	CanGoBack    bool          `json:"canGoBack,omitempty"`
	CanGoForward bool          `json:"canGoForward,omitempty"`
	Animating    bool          `json:"animating,omitempty"`
	Frame        *engine.Frame `json:"frame,omitempty"`
}

// Apply replays e on h.
func (e Event) Apply(h engine.Host) {
	switch e.Kind {
	case EventLoadStarted:
		h.OnLoadStarted()
	case EventLoadEnded:
		h.OnLoadEnded()
	case EventTitle:
		h.OnTitleChanged(e.Title)
	case EventURL:
		h.OnURLChanged(e.URL)
	case EventHistory:
		h.OnHistoryChanged(e.CanGoBack, e.CanGoForward)
	case EventAnimating:
		h.OnAnimatingChanged(e.Animating)
	case EventFrame:
		if e.Frame != nil {
			h.Present(*e.Frame)
		}
	}
}
