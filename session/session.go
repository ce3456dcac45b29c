package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Status is the connection state of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	// StatusError is terminal: reconnect attempts are exhausted and only a
	// manual Connect leaves it.
	StatusError Status = "error"
)

// ErrNotConnected reports a Send on a session that is not connected.
// Frames are never queued for later delivery.
var ErrNotConnected = errors.New("session not connected")

// Conn is the wire connection a session runs on. *websocket.Conn satisfies
// it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Dialer opens one wire connection.
type Dialer func(ctx context.Context) (Conn, error)

// WebSocketDialer returns a Dialer for the given ws:// or wss:// URL.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Handler consumes one dispatched envelope.
type Handler func(Envelope)

// Options configures a session.
type Options struct {
	Dialer               Dialer
	ConnectTimeout       time.Duration // default 10s
	HeartbeatInterval    time.Duration // default 30s
	HeartbeatTimeout     time.Duration // default 2x interval
	Backoff              BackoffPolicy
	MaxReconnectAttempts int // default 5
	HistorySize          int // default 100
	Logger               *slog.Logger
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 2 * o.HeartbeatInterval
	}
	if o.Backoff.Base <= 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.HistorySize == 0 {
		o.HistorySize = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Session is one logical client connection to the chat endpoint. It owns a
// single wire connection at a time, keeps it alive with heartbeats, and
// reconnects with bounded backoff when the connection drops. Envelope
// handlers live as long as the session unless it is permanently
// disconnected.
type Session struct {
	id      string
	opts    Options
	logger  *slog.Logger
	history *History

	mu        sync.Mutex
	status    Status
	conn      Conn
	handlers  map[EnvelopeType]Handler
	attempts  int
	permanent bool
	gen       int

	writeMu sync.Mutex
}

// New creates a disconnected session.
func New(opts Options) (*Session, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("a dialer is required")
	}
	opts.withDefaults()

	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		logger:   opts.Logger.With("session", id[:8]),
		history:  NewHistory(opts.HistorySize),
		status:   StatusDisconnected,
		handlers: make(map[EnvelopeType]Handler),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns the received-envelope history.
func (s *Session) History() *History { return s.history }

// On registers the handler for one envelope type, replacing any previous
// one. Dispatch is keyed by type; a frame without a handler is dropped.
func (s *Session) On(t EnvelopeType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
}

// Connect establishes the wire connection. It resets the reconnect attempt
// budget, so it also recovers a session in the terminal error state.
// Connecting an already-connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	s.permanent = false
	s.attempts = 0
	s.status = StatusConnecting
	s.mu.Unlock()

	if err := s.dial(ctx); err != nil {
		s.mu.Lock()
		s.status = StatusDisconnected
		s.mu.Unlock()
		return err
	}
	return nil
}

// Send marshals v as JSON and writes it as one text frame. It fails with
// ErrNotConnected unless the session is connected; frames are never queued.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == StatusConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendQuery submits one query frame.
func (s *Session) SendQuery(q QueryEnvelope) error {
	return s.Send(q)
}

// Disconnect closes the wire connection. A permanent disconnect clears the
// registered handlers and suppresses any reconnect; a non-permanent one
// keeps the handlers so a later Connect resumes dispatch.
func (s *Session) Disconnect(permanent bool) {
	s.mu.Lock()
	if permanent {
		s.permanent = true
		s.handlers = make(map[EnvelopeType]Handler)
	}
	conn := s.conn
	s.conn = nil
	s.status = StatusDisconnected
	s.gen++ // orphans the running read loop so it will not reconnect
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.opts.Dialer(dctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// Disconnect may have raced the dial; a session that is no longer
	// connecting must not come back up
	if s.permanent || s.status != StatusConnecting {
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session no longer connecting")
	}
	s.conn = conn
	s.status = StatusConnected
	s.attempts = 0
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.extendDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.extendDeadline(conn)
		return nil
	})

	done := make(chan struct{})
	go s.readLoop(conn, gen, done)
	go s.heartbeat(conn, done)
	return nil
}

func (s *Session) extendDeadline(conn Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.HeartbeatTimeout))
}

func (s *Session) readLoop(conn Conn, gen int, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			s.handleConnectionLoss(gen, err)
			return
		}

		// any traffic proves liveness
		s.extendDeadline(conn)

		if string(data) == "pong" {
			continue
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			s.logger.Warn("dropping unrecognized frame", "error", err)
			continue
		}

		s.history.Add(env)
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env Envelope) {
	s.mu.Lock()
	h := s.handlers[env.Type]
	s.mu.Unlock()
	if h != nil {
		h(env)
	}
}

func (s *Session) heartbeat(conn Conn, done chan struct{}) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				// read loop notices the closed connection and reconnects
				conn.Close()
				return
			}
		}
	}
}

// handleConnectionLoss reacts to a dropped wire connection. It is a no-op
// when the loss belongs to a superseded connection or the session was
// disconnected on purpose.
func (s *Session) handleConnectionLoss(gen int, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.permanent || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.status = StatusConnecting
	s.mu.Unlock()

	s.logger.Warn("connection lost, reconnecting", "error", cause)
	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	for {
		s.mu.Lock()
		if s.permanent || s.status != StatusConnecting {
			s.mu.Unlock()
			return
		}
		if s.attempts >= s.opts.MaxReconnectAttempts {
			s.status = StatusError
			s.mu.Unlock()
			s.logger.Error("reconnect attempts exhausted",
				"attempts", s.opts.MaxReconnectAttempts)
			return
		}
		attempt := s.attempts
		s.attempts++
		s.mu.Unlock()

		time.Sleep(s.opts.Backoff.Delay(attempt))

		if err := s.dial(context.Background()); err != nil {
			s.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		return
	}
}
