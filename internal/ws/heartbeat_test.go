package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSweepPingsLiveSessions(t *testing.T) {
	m := NewMonitor(time.Minute, zaptest.NewLogger(t))
	conn := newFakeConn()
	s := NewSession(conn, zaptest.NewLogger(t))
	m.Track(s)

	m.Sweep()

	assert.Equal(t, 1, conn.pings())
	assert.False(t, s.Alive(), "sweep must clear liveness ahead of the probe")
	assert.False(t, s.Closed())
}

func TestSweepReapsUnresponsiveSessions(t *testing.T) {
	m := NewMonitor(time.Minute, zaptest.NewLogger(t))
	conn := newFakeConn()
	s := NewSession(conn, zaptest.NewLogger(t))
	m.Track(s)

	// First sweep clears the flag; no pong arrives before the second.
	m.Sweep()
	m.Sweep()

	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Len())
}

func TestSweepSparesRespondingSessions(t *testing.T) {
	m := NewMonitor(time.Minute, zaptest.NewLogger(t))
	conn := newFakeConn()
	s := NewSession(conn, zaptest.NewLogger(t))
	m.Track(s)

	m.Sweep()
	require.NoError(t, conn.pongHandler(""))
	m.Sweep()

	assert.False(t, s.Closed())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, conn.pings())
}

func TestForget(t *testing.T) {
	m := NewMonitor(time.Minute, zaptest.NewLogger(t))
	s := NewSession(newFakeConn(), zaptest.NewLogger(t))
	m.Track(s)
	require.Equal(t, 1, m.Len())
	m.Forget(s)
	assert.Equal(t, 0, m.Len())
}

func TestMonitorStartStop(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, zaptest.NewLogger(t))
	conn := newFakeConn()
	s := NewSession(conn, zaptest.NewLogger(t))
	m.Track(s)

	m.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for conn.pings() == 0 {
		select {
		case <-deadline:
			t.Fatal("monitor never pinged")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	m.Stop()
}

func TestMonitorStopWithoutStart(t *testing.T) {
	m := NewMonitor(time.Minute, zaptest.NewLogger(t))
	m.Stop()
	m.Stop()
}
