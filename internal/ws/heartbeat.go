package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor reclaims half-open connections. On each sweep a session that has
// not acknowledged the previous probe is terminated; every other session
// has its liveness flag cleared and a ping sent. Pong receipt restores the
// flag via the handler installed by NewSession.
type Monitor struct {
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor returns a Monitor sweeping every interval.
//
// Precondition: interval > 0; logger must be non-nil.
func NewMonitor(interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		panic("ws.NewMonitor: interval must be > 0")
	}
	return &Monitor{
		interval: interval,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Track registers a session for liveness sweeps.
func (m *Monitor) Track(s *Session) {
	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
}

// Forget removes a session. Called from connection teardown.
func (m *Monitor) Forget(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep runs one liveness pass over all tracked sessions.
func (m *Monitor) Sweep() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if !s.Alive() {
			m.logger.Info("reaping dead connection", zap.String("session_id", s.ID()))
			s.Terminate()
			m.Forget(s)
			continue
		}
		s.ClearAlive()
		if err := s.Ping(); err != nil {
			m.logger.Debug("ping failed", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
}

// Start launches the sweep loop. It runs until ctx is cancelled or Stop is
// called. Start must be called at most once.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit. Idempotent, and safe
// to call on a monitor that was never started.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}
