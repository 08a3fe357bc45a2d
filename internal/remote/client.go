package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/engine"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ErrNotConnected is returned by engine calls once the connection is gone.
var ErrNotConnected = errors.New("remote: not connected")

// Launcher dials an engine server. It implements engine.Launcher.
type Launcher struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Launch connects, sends init and starts the read and ping loops.
func (l *Launcher) Launch(ctx context.Context, p engine.InitParams) (engine.Engine, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if l.Token != "" {
		header.Set("Authorization", "Bearer "+l.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, l.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("remote: dial %s: %s: %w", l.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("remote: dial %s: %w", l.URL, err)
	}

	e := &Engine{
		conn:   conn,
		params: p,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := e.write(MsgInit, InitPayload{URL: p.URL, Width: p.Width, Height: p.Height}); err != nil {
		conn.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithCancel(context.Background())
	e.stopPing = cancel
	go e.pingLoop(pingCtx)
	go e.readLoop()

	logger.Info("remote: connected", zap.String("url", l.URL))
	return e, nil
}

// Engine is the host-side proxy of a remote engine. Host callbacks received
// from the server are queued and delivered on the next PerformUpdates.
type Engine struct {
	conn     *websocket.Conn
	params   engine.InitParams
	logger   *zap.Logger
	stopPing context.CancelFunc

	writeMu sync.Mutex // serialises all conn writes

	mu     sync.Mutex
	events []Event
	seq    uint64
	lost   error
	closed bool

	done chan struct{}
}

func (e *Engine) PerformUpdates() error {
	if err := e.command(engine.Pump()); err != nil {
		return err
	}
	e.mu.Lock()
	events := e.events
	e.events = nil
	e.mu.Unlock()

	if e.params.Host == nil {
		return nil
	}
	for _, ev := range events {
		ev.Apply(e.params.Host)
	}
	return nil
}

func (e *Engine) LoadURI(uri string) error       { return e.command(engine.Navigate(uri)) }
func (e *Engine) Reload() error                  { return e.command(engine.Reload()) }
func (e *Engine) Stop() error                    { return e.command(engine.Stop()) }
func (e *Engine) GoBack() error                  { return e.command(engine.GoBack()) }
func (e *Engine) GoForward() error               { return e.command(engine.GoForward()) }
func (e *Engine) Resize(width, height int) error { return e.command(engine.Resize(width, height)) }
func (e *Engine) Click(x, y int) error           { return e.command(engine.Click(x, y)) }

func (e *Engine) Scroll(dx, dy float64, x, y int, phase engine.Phase) error {
	return e.command(engine.Scroll(dx, dy, x, y, phase))
}

// Close tells the server to tear the engine down and waits for the read
// loop to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stopPing()
	_ = e.write(MsgClose, nil)

	e.writeMu.Lock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = e.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	e.writeMu.Unlock()

	err := e.conn.Close()
	<-e.done
	return err
}

// Seq returns the last sequence number seen from the server.
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

func (e *Engine) command(cmd engine.Command) error {
	e.mu.Lock()
	lost, closed := e.lost, e.closed
	e.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	if lost != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, lost)
	}
	return e.write(MsgCommand, cmd)
}

func (e *Engine) write(t MessageType, payload any) error {
	msg, err := newMessage(t, payload)
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := e.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("remote: write %s: %w", t, err)
	}
	return nil
}

func (e *Engine) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.writeMu.Lock()
			_ = e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := e.conn.WriteMessage(websocket.PingMessage, nil)
			e.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (e *Engine) readLoop() {
	defer close(e.done)

	e.conn.SetPongHandler(func(string) error {
		return e.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = e.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			e.lost = err
			closed := e.closed
			e.mu.Unlock()
			if !closed {
				e.logger.Warn("remote: connection lost", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Debug("remote: bad message", zap.Error(err))
			continue
		}
		// Any message counts as liveness.
		_ = e.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		e.mu.Lock()
		if msg.Seq != 0 {
			e.seq = msg.Seq
		}
		e.mu.Unlock()

		e.dispatch(msg)
	}
}

func (e *Engine) dispatch(msg Message) {
	switch msg.Type {
	case MsgWakeup:
		e.wakeup()
	case MsgEvent:
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			e.logger.Debug("remote: bad event", zap.Error(err))
			return
		}
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
		e.wakeup()
	case MsgReadFile:
		var req FileRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			e.logger.Debug("remote: bad file request", zap.Error(err))
			return
		}
		// Served from the read goroutine: the engine goroutine on the other
		// side is blocked until the answer arrives.
		resp := FileResponse{ID: req.ID}
		if e.params.Files != nil {
			resp.Data, resp.Found = e.params.Files.ReadFile(req.Name)
		}
		if err := e.write(MsgFile, resp); err != nil {
			e.logger.Warn("remote: file response failed", zap.String("name", req.Name), zap.Error(err))
		}
	case MsgError:
		var p ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		e.logger.Warn("remote: server error", zap.String("message", p.Message))
	}
}

func (e *Engine) wakeup() {
	if e.params.Waker != nil {
		e.params.Waker.Wakeup()
	}
}
