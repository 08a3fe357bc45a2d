package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/channel"
	"github.com/embedview/embedview/internal/engine"
)

const (
	sendBuffer       = 256
	defaultFileWait  = 5 * time.Second
	shutdownDeadline = 5 * time.Second
)

// Server hosts engines for remote hosts, one engine per websocket
// connection.
type Server struct {
	launcher       engine.Launcher
	logger         *zap.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	fileWait       time.Duration

	mu       sync.Mutex
	sessions map[*session]bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuthToken requires clients to present token.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.authToken = token }
}

// WithAllowedOrigins restricts browser origins allowed to connect.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed == "" {
				continue
			}
			s.allowedOrigins[trimmed] = true
			if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
				s.allowedHosts[parsed.Host] = true
			}
		}
	}
}

// WithFileTimeout bounds how long the engine waits for a file from the host.
func WithFileTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.fileWait = d
		}
	}
}

func NewServer(launcher engine.Launcher, opts ...ServerOption) *Server {
	s := &Server{
		launcher:       launcher,
		logger:         zap.NewNop(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		fileWait:       defaultFileWait,
		sessions:       make(map[*session]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
}

// SessionCount is the number of live engine sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close tears down every live session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"sessions": s.SessionCount()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("remote: upgrade failed", zap.Error(err))
		return
	}

	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Info("remote: host connected")
	sess := newSession(conn, s.launcher, s.fileWait, logger)

	s.mu.Lock()
	s.sessions[sess] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			sess.close()
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
			logger.Info("remote: host disconnected")
		}()
		sess.readLoop()
	}()
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	if r.Header.Get("X-Embedview-Token") == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ListenAndServe serves handler on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("remote: listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// session is one connected host and the engine it drives. It implements
// the engine callbacks by forwarding them to the host.
type session struct {
	conn     *websocket.Conn
	ch       *channel.Channel
	logger   *zap.Logger
	fileWait time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	seq       atomic.Uint64

	wakePending atomic.Bool

	filesMu sync.Mutex
	nextID  uint64
	waiting map[uint64]chan FileResponse
}

func newSession(conn *websocket.Conn, launcher engine.Launcher, fileWait time.Duration, logger *zap.Logger) *session {
	sess := &session{
		conn:     conn,
		ch:       channel.New(launcher, channel.WithLogger(logger)),
		logger:   logger,
		fileWait: fileWait,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		waiting:  make(map[uint64]chan FileResponse),
	}
	go sess.writePump()
	return sess
}

func (s *session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("remote: write failed", zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.emit(MsgError, ErrorPayload{Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case MsgInit:
			var p InitPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.emit(MsgError, ErrorPayload{Message: "malformed init"})
				continue
			}
			if !s.ch.Init(engine.InitParams{
				URL:    p.URL,
				Width:  p.Width,
				Height: p.Height,
				Waker:  s,
				Files:  s,
				Host:   s,
			}) {
				s.emit(MsgError, ErrorPayload{Message: "init rejected"})
			}
		case MsgCommand:
			var cmd engine.Command
			if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
				s.emit(MsgError, ErrorPayload{Message: "malformed command"})
				continue
			}
			if cmd.Kind == engine.KindPump {
				s.wakePending.Store(false)
			}
			s.ch.Submit(cmd)
		case MsgFile:
			var resp FileResponse
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				continue
			}
			s.filesMu.Lock()
			w, ok := s.waiting[resp.ID]
			delete(s.waiting, resp.ID)
			s.filesMu.Unlock()
			if ok {
				w <- resp
			}
		case MsgClose:
			return
		default:
			s.logger.Debug("remote: unknown message", zap.String("type", string(msg.Type)))
		}
	}
}

// close tears the engine down and then the connection. Safe to call more
// than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.ch.Close()
		_ = s.conn.Close()
	})
}

// emit queues a message for the host. A host that cannot keep up is
// disconnected.
func (s *session) emit(t MessageType, payload any) {
	msg, err := newMessage(t, payload)
	if err != nil {
		s.logger.Warn("remote: encode failed", zap.Error(err))
		return
	}
	msg.Seq = s.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("remote: encode failed", zap.Error(err))
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn("remote: host too slow, disconnecting")
		_ = s.conn.Close()
	}
}

// Wakeup implements engine.Waker. Wakeups collapse until the host's next
// pump arrives.
func (s *session) Wakeup() {
	if s.wakePending.CompareAndSwap(false, true) {
		s.emit(MsgWakeup, nil)
	}
}

// ReadFile implements engine.FileReader by asking the host and waiting.
func (s *session) ReadFile(name string) ([]byte, bool) {
	w := make(chan FileResponse, 1)
	s.filesMu.Lock()
	s.nextID++
	id := s.nextID
	s.waiting[id] = w
	s.filesMu.Unlock()

	defer func() {
		s.filesMu.Lock()
		delete(s.waiting, id)
		s.filesMu.Unlock()
	}()

	s.emit(MsgReadFile, FileRequest{ID: id, Name: name})
	timer := time.NewTimer(s.fileWait)
	defer timer.Stop()
	select {
	case resp := <-w:
		return resp.Data, resp.Found
	case <-timer.C:
		s.logger.Warn("remote: file request timed out", zap.String("name", name))
	case <-s.done:
	}
	return nil, false
}

func (s *session) OnLoadStarted()              { s.event(Event{Kind: EventLoadStarted}) }
func (s *session) OnLoadEnded()                { s.event(Event{Kind: EventLoadEnded}) }
func (s *session) OnTitleChanged(title string) { s.event(Event{Kind: EventTitle, Title: title}) }
func (s *session) OnURLChanged(u string)       { s.event(Event{Kind: EventURL, URL: u}) }

func (s *session) OnHistoryChanged(canGoBack, canGoForward bool) {
	s.event(Event{Kind: EventHistory, CanGoBack: canGoBack, CanGoForward: canGoForward})
}

func (s *session) OnAnimatingChanged(animating bool) {
	s.event(Event{Kind: EventAnimating, Animating: animating})
}

func (s *session) Present(f engine.Frame) {
	s.event(Event{Kind: EventFrame, Frame: &f})
}

func (s *session) event(ev Event) {
	s.emit(MsgEvent, ev)
}
