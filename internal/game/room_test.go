package game

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openpong/server/internal/config"
	"github.com/openpong/server/internal/ws"
)

// fakeConn is an in-memory ws.Conn that records outbound messages.
type fakeConn struct {
	mu      sync.Mutex
	writes  []map[string]any
	closed  bool
	inbound chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, decoded)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *fakeConn) SetPongHandler(func(string) error)         {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, payload, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		if tp, ok := w["type"].(string); ok {
			types = append(types, tp)
		}
	}
	return types
}

func (c *fakeConn) lastOfType(tp string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.writes) - 1; i >= 0; i-- {
		if c.writes[i]["type"] == tp {
			return c.writes[i], true
		}
	}
	return nil, false
}

func (c *fakeConn) countOfType(tp string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if w["type"] == tp {
			n++
		}
	}
	return n
}

// newTestRegistry builds a registry with a deterministic opening serve and a
// countdown long enough that the tick loop never starts on its own.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := config.Default().Game
	cfg.CountdownDelay = time.Hour
	reg := NewRegistry(cfg, zaptest.NewLogger(t))
	reg.serveRight = func() bool { return true }
	return reg
}

func joinedPair(t *testing.T, reg *Registry, gameID string) (*ws.Session, *ws.Session, *fakeConn, *fakeConn) {
	t.Helper()
	c1, c2 := newFakeConn(), newFakeConn()
	s1 := ws.NewSession(c1, zaptest.NewLogger(t))
	s2 := ws.NewSession(c2, zaptest.NewLogger(t))
	reg.Join(gameID, s1, "alice", 5)
	reg.Join(gameID, s2, "bob", 0)
	return s1, s2, c1, c2
}

func TestJoinAssignsSidesAndStartsCountdown(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2, c1, c2 := joinedPair(t, reg, "g1")

	assert.Equal(t, ws.SideLeft, s1.Side)
	assert.Equal(t, ws.SideRight, s2.Side)

	msg, ok := c1.lastOfType("assignSide")
	require.True(t, ok)
	assert.Equal(t, "left", msg["side"])
	msg, ok = c2.lastOfType("assignSide")
	require.True(t, ok)
	assert.Equal(t, "right", msg["side"])

	// Both participants see the zero score with names, then the countdown.
	for _, c := range []*fakeConn{c1, c2} {
		score, ok := c.lastOfType("scoreUpdate")
		require.True(t, ok)
		assert.Equal(t, "alice", score["leftPlayerName"])
		assert.Equal(t, "bob", score["rightPlayerName"])
		assert.EqualValues(t, 0, score["leftScore"])
		assert.EqualValues(t, 0, score["rightScore"])
		assert.Equal(t, 1, c.countOfType("startCountdown"))
	}

	assert.Equal(t, 1, reg.Len())
}

func TestJoinThirdParticipantRefused(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2, _, _ := joinedPair(t, reg, "g1")

	c3 := newFakeConn()
	s3 := ws.NewSession(c3, zaptest.NewLogger(t))
	reg.Join("g1", s3, "mallory", 0)

	msg, ok := c3.lastOfType("error")
	require.True(t, ok)
	assert.Equal(t, "Room full", msg["message"])
	assert.True(t, s3.Closed())

	// The seated participants are unaffected.
	assert.False(t, s1.Closed())
	assert.False(t, s2.Closed())
	assert.Equal(t, 1, reg.Len())
}

func TestJoinMaxScoreDefaultsAndCreatorWins(t *testing.T) {
	reg := newTestRegistry(t)

	s1 := ws.NewSession(newFakeConn(), zaptest.NewLogger(t))
	reg.Join("g1", s1, "alice", 7)
	r, ok := reg.lookup("g1")
	require.True(t, ok)
	assert.Equal(t, 7, r.st.maxScore)

	// The second join's value is ignored; the creator set the target.
	s2 := ws.NewSession(newFakeConn(), zaptest.NewLogger(t))
	reg.Join("g1", s2, "bob", 99)
	assert.Equal(t, 7, r.st.maxScore)

	s3 := ws.NewSession(newFakeConn(), zaptest.NewLogger(t))
	reg.Join("g2", s3, "carol", 0)
	r2, ok := reg.lookup("g2")
	require.True(t, ok)
	assert.Equal(t, reg.cfg.DefaultMaxScore, r2.st.maxScore)
}

func TestMoveSetsIntentFlags(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2, _, _ := joinedPair(t, reg, "g1")
	r, ok := reg.lookup("g1")
	require.True(t, ok)

	reg.Move("g1", s1, "start", "ArrowUp")
	reg.Move("g1", s2, "start", "ArrowDown")
	assert.True(t, r.st.leftUp)
	assert.True(t, r.st.rightDown)

	reg.Move("g1", s1, "end", "ArrowUp")
	assert.False(t, r.st.leftUp)
	assert.True(t, r.st.rightDown)

	// Unknown directions and actions leave the flags untouched.
	reg.Move("g1", s2, "start", "ArrowLeft")
	reg.Move("g1", s2, "hold", "ArrowDown")
	assert.True(t, r.st.rightDown)

	// Unknown rooms are a no-op.
	reg.Move("missing", s1, "start", "ArrowUp")
}

func TestTickBroadcastsUpdates(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, c1, c2 := joinedPair(t, reg, "g1")
	r, ok := reg.lookup("g1")
	require.True(t, ok)

	require.True(t, r.tick())

	for _, c := range []*fakeConn{c1, c2} {
		msg, ok := c.lastOfType("update")
		require.True(t, ok)
		ball := msg["ball"].(map[string]any)
		assert.InDelta(t, 407, ball["x"].(float64), 1e-9)
		assert.InDelta(t, 205, ball["y"].(float64), 1e-9)
		paddles := msg["paddles"].(map[string]any)
		assert.InDelta(t, 160, paddles["leftY"].(float64), 1e-9)
	}
}

func TestTickScoreUpdateOnPoint(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, c1, _ := joinedPair(t, reg, "g1")
	r, ok := reg.lookup("g1")
	require.True(t, ok)

	r.mu.Lock()
	r.st.ballX = 797
	r.st.ballY = 300
	r.st.ballVX = 7
	r.st.rightY = 0
	r.mu.Unlock()

	require.True(t, r.tick())

	msg, ok := c1.lastOfType("scoreUpdate")
	require.True(t, ok)
	assert.EqualValues(t, 1, msg["leftScore"])
	assert.EqualValues(t, 0, msg["rightScore"])
	assert.Equal(t, "Score update: 1 - 0", msg["message"])
	assert.Equal(t, 1, reg.Len())
}

func TestTickEndsMatchAtTarget(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, c1, c2 := joinedPair(t, reg, "g1")
	r, ok := reg.lookup("g1")
	require.True(t, ok)

	r.mu.Lock()
	r.st.leftScore = 3
	r.st.rightScore = 1
	r.st.ballX = 797
	r.st.ballY = 300
	r.st.ballVX = 7
	r.st.rightY = 0
	r.mu.Unlock()

	assert.False(t, r.tick())

	for _, c := range []*fakeConn{c1, c2} {
		msg, ok := c.lastOfType("end")
		require.True(t, ok)
		assert.Equal(t, "alice wins!", msg["message"])
		assert.EqualValues(t, 4, msg["leftScore"])
		assert.EqualValues(t, 1, msg["rightScore"])
	}

	// The room is gone and later ticks are inert.
	assert.Equal(t, 0, reg.Len())
	updates := c1.countOfType("update")
	assert.False(t, r.tick())
	assert.Equal(t, updates, c1.countOfType("update"))
}

func TestForfeitNotifiesOpponentAndClosesBoth(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2, c1, c2 := joinedPair(t, reg, "g1")

	reg.Forfeit("g1", s1, "alice has left the game")

	msg, ok := c2.lastOfType("end")
	require.True(t, ok)
	assert.Equal(t, "alice has left the game", msg["message"])

	// The sender gets no end echo.
	_, ok = c1.lastOfType("end")
	assert.False(t, ok)

	assert.True(t, s1.Closed())
	assert.True(t, s2.Closed())
	assert.Equal(t, 0, reg.Len())

	// Forfeiting an unknown room is a no-op.
	reg.Forfeit("missing", s1, "bye")
}

func TestDisconnectNotifiesOpponentAndKeepsRoom(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2, _, c2 := joinedPair(t, reg, "g1")

	reg.Disconnect("g1", s1)

	msg, ok := c2.lastOfType("opponentLeft")
	require.True(t, ok)
	assert.Equal(t, "Your opponent has left the game", msg["message"])

	// One occupant remains; the room stays.
	assert.Equal(t, 1, reg.Len())

	reg.Disconnect("g1", s2)
	assert.Equal(t, 0, reg.Len())
}

func TestDisconnectUnknownSessionIgnored(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, _, _ = joinedPair(t, reg, "g1")

	stranger := ws.NewSession(newFakeConn(), zaptest.NewLogger(t))
	reg.Disconnect("g1", stranger)
	assert.Equal(t, 1, reg.Len())
}

func TestCountdownStartsTickLoop(t *testing.T) {
	cfg := config.Default().Game
	cfg.CountdownDelay = 10 * time.Millisecond
	reg := NewRegistry(cfg, zaptest.NewLogger(t))
	reg.serveRight = func() bool { return true }
	defer reg.StopAll()

	_, _, c1, c2 := joinedPair(t, reg, "g1")

	require.Eventually(t, func() bool {
		return c1.countOfType("update") > 1 && c2.countOfType("update") > 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopAllHaltsRooms(t *testing.T) {
	cfg := config.Default().Game
	cfg.CountdownDelay = 10 * time.Millisecond
	reg := NewRegistry(cfg, zaptest.NewLogger(t))
	reg.serveRight = func() bool { return true }

	_, _, c1, _ := joinedPair(t, reg, "g1")

	require.Eventually(t, func() bool {
		return c1.countOfType("update") > 0
	}, 2*time.Second, 10*time.Millisecond)

	reg.StopAll()
	assert.Equal(t, 0, reg.Len())

	n := c1.countOfType("update")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, c1.countOfType("update"))
}
