// Package ws wraps websocket connections in session records that carry
// per-connection identity and liveness state, keeping protocol bookkeeping
// off the transport object itself.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by Send on a session whose connection is closed.
var ErrClosed = errors.New("session closed")

const writeWait = 10 * time.Second

// Side is a participant's assigned paddle, "left" or "right".
type Side string

const (
	SideUnset Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Conn is the subset of *websocket.Conn a Session needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Session is one bidirectional connection together with the identity the
// protocol has established for it so far.
//
// The identity fields (PlayerID, Name, Side, Confirmed) are owned by the
// connection's read loop; services reading them must do so from a message
// handler or under their own locks. Liveness and close state are guarded
// internally because the heartbeat monitor touches them from its own
// goroutine.
type Session struct {
	// PlayerID is the external player identifier, 0 until a join names one.
	PlayerID int64
	// Name is the player's display name, empty until joined.
	Name string
	// Side is the assigned paddle for match sessions.
	Side Side
	// Confirmed records a matchmaking readiness confirmation.
	Confirmed bool
	// Token is the opaque credential from the upgrade request, passed
	// through to external collaborators and never verified here.
	Token string

	id     string
	conn   Conn
	logger *zap.Logger

	mu     sync.Mutex
	alive  bool
	closed bool
}

// NewSession wraps conn in a Session with liveness set and a pong handler
// installed.
//
// Precondition: conn and logger must be non-nil.
func NewSession(conn Conn, logger *zap.Logger) *Session {
	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		logger: logger,
		alive:  true,
	}
	conn.SetPongHandler(func(string) error {
		s.MarkAlive()
		return nil
	})
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Logger returns a logger scoped to this session.
func (s *Session) Logger() *zap.Logger {
	return s.logger.With(zap.String("session_id", s.id))
}

// Send marshals v as JSON and writes it to the connection. Sends to a
// closed session fail with ErrClosed; broadcasts treat that as a skip.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// SendError sends an error-typed message on the same channel. Failures are
// logged and otherwise ignored; an error report must never escalate.
func (s *Session) SendError(message string) {
	if err := s.Send(errorMessage{Type: "error", Message: message}); err != nil && !errors.Is(err, ErrClosed) {
		s.Logger().Warn("sending error message", zap.Error(err))
	}
}

// Ping sends a websocket ping control frame.
func (s *Session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ReadMessage blocks for the next inbound frame and returns its payload.
func (s *Session) ReadMessage() ([]byte, error) {
	_, payload, err := s.conn.ReadMessage()
	return payload, err
}

// MarkAlive records that the peer acknowledged liveness.
func (s *Session) MarkAlive() {
	s.mu.Lock()
	s.alive = true
	s.mu.Unlock()
}

// ClearAlive clears the liveness flag ahead of a probe.
func (s *Session) ClearAlive() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
}

// Alive reports whether the peer has acknowledged liveness since the last
// ClearAlive.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Closed reports whether Close or Terminate has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close performs a clean close. Safe to call more than once; the underlying
// close error is returned on the first call only.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

// ClosePolicy sends a close frame with the given code and reason, then
// closes the connection.
func (s *Session) ClosePolicy(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	frame := websocket.FormatCloseMessage(code, reason)
	// Best effort; the peer may already be gone.
	_ = s.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
	s.mu.Unlock()
	return s.conn.Close()
}

// Terminate force-closes the connection without a close handshake. The
// read loop observes the close error and runs the usual teardown path.
func (s *Session) Terminate() {
	s.Logger().Info("terminating session")
	if err := s.Close(); err != nil {
		s.Logger().Debug("terminating session close", zap.Error(err))
	}
}
