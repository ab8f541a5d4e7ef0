// Package matchmaking pairs waiting players, negotiates match length, and
// hands confirmed pairs off to the external match-record service.
package matchmaking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openpong/server/internal/ws"
)

// validMatchLengths are the accepted best-of values.
var validMatchLengths = map[int]bool{3: true, 5: true, 7: true, 9: true, 11: true}

// candidate is one occupied pool slot.
type candidate struct {
	id         int64
	username   string
	difficulty string
	session    *ws.Session
}

// Pool is the process-wide two-slot matchmaking staging area. The first
// occupant (the host) chooses the match length; once both occupants confirm,
// the pool creates the match record and hands both off to their game room.
//
// Invariant: at most two occupied slots; confirmations only from occupants.
type Pool struct {
	bridge MatchCreator
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	slot1     *candidate
	slot2     *candidate
	maxGames  int
	confirmed map[int64]struct{}
	// launching guards the window during the bridge call so a duplicate
	// confirm cannot trigger a second match record.
	launching bool
}

// NewPool creates an empty Pool backed by the given match creator.
//
// Precondition: bridge and logger must be non-nil.
func NewPool(bridge MatchCreator, logger *zap.Logger) *Pool {
	return &Pool{
		bridge:    bridge,
		logger:    logger,
		now:       time.Now,
		confirmed: make(map[int64]struct{}),
	}
}

// Join places the session in the first free slot. The host is prompted to
// choose a match length; a second occupant is told to wait for (or given)
// that choice. A third join is rejected and its connection closed.
func (p *Pool) Join(s *ws.Session, id int64, username, difficulty string) {
	if id <= 0 || username == "" {
		s.SendError("Invalid player data")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.slot1 == nil:
		s.PlayerID = id
		s.Name = username
		p.slot1 = &candidate{id: id, username: username, difficulty: difficulty, session: s}
		p.send(s, typeOnlyMessage{Type: "chooseMaxGames"})
		p.logger.Info("player joined matchmaking",
			zap.Int64("player_id", id), zap.String("slot", "host"))
	case p.slot2 == nil:
		s.PlayerID = id
		s.Name = username
		p.slot2 = &candidate{id: id, username: username, difficulty: difficulty, session: s}
		if p.maxGames != 0 {
			p.sendReadyLocked()
		} else {
			p.send(s, typeOnlyMessage{Type: "waitingForGameSelection"})
		}
		p.logger.Info("player joined matchmaking",
			zap.Int64("player_id", id), zap.String("slot", "guest"))
	default:
		s.SendError("pool full")
		if err := s.Close(); err != nil {
			p.logger.Debug("closing rejected connection", zap.Error(err))
		}
		p.logger.Info("rejected join on full pool", zap.Int64("player_id", id))
	}
}

// SelectMaxGames records the host's match-length choice. Only the host may
// choose, and only odd values in {3,5,7,9,11} are accepted.
func (p *Pool) SelectMaxGames(s *ws.Session, maxGames int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slot1 == nil || p.slot1.session != s {
		s.SendError("Only first player can select max games")
		return
	}
	if !validMatchLengths[maxGames] {
		s.SendError("Invalid max games number")
		return
	}

	p.maxGames = maxGames
	p.logger.Info("match length chosen", zap.Int("max_games", maxGames))

	if p.slot2 != nil {
		p.sendReadyLocked()
	} else {
		p.send(s, typeOnlyMessage{Type: "waitingForOpponent"})
	}
}

// ConfirmReady records a readiness confirmation. When both occupants have
// confirmed, the match record is created and both receive a start message.
//
// The bridge call runs without the pool lock held, so another connection's
// join or disconnect can interleave; slot state is re-validated afterwards
// before any mutation.
func (p *Pool) ConfirmReady(ctx context.Context, s *ws.Session) {
	p.mu.Lock()

	if p.slot1 == nil || p.slot2 == nil || p.maxGames == 0 {
		p.mu.Unlock()
		s.SendError("not ready")
		return
	}
	if p.slot1.session != s && p.slot2.session != s {
		p.mu.Unlock()
		s.SendError("not ready")
		return
	}

	s.Confirmed = true
	p.confirmed[s.PlayerID] = struct{}{}
	if len(p.confirmed) < 2 || p.launching {
		p.mu.Unlock()
		return
	}

	p.launching = true
	host, guest, maxGames := p.slot1, p.slot2, p.maxGames
	p.mu.Unlock()

	gameID, err := p.bridge.CreateMatch(ctx, CreateMatchRequest{
		Player1ID: host.id,
		Player2ID: guest.id,
		MaxGames:  maxGames,
		StartedAt: p.now(),
		Token:     host.session.Token,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.launching = false

	if err != nil {
		p.logger.Error("match creation failed", zap.Error(err))
		// Confirmations are cleared so the pair can retry; slots and
		// length are kept.
		p.confirmed = make(map[int64]struct{})
		p.send(host.session, errorEnvelope("match creation failed"))
		p.send(guest.session, errorEnvelope("match creation failed"))
		return
	}

	// The pairing may have broken while the bridge call was in flight.
	if p.slot1 != host || p.slot2 != guest || p.maxGames != maxGames {
		p.logger.Warn("pairing changed during match creation",
			zap.Int64("game_id", gameID))
		p.send(host.session, errorEnvelope("match creation failed"))
		p.send(guest.session, errorEnvelope("match creation failed"))
		return
	}

	p.send(host.session, startMessage{
		Type:       "start",
		Opponent:   guest.username,
		OpponentID: guest.id,
		GameID:     gameID,
		MaxGames:   maxGames,
	})
	p.send(guest.session, startMessage{
		Type:       "start",
		Opponent:   host.username,
		OpponentID: host.id,
		GameID:     gameID,
		MaxGames:   maxGames,
	})

	p.logger.Info("match started",
		zap.Int64("game_id", gameID),
		zap.Int64("player1_id", host.id),
		zap.Int64("player2_id", guest.id),
		zap.Int("max_games", maxGames),
	)

	p.resetLocked()
}

// Disconnect clears the slot held by s, if any. A broken pairing invalidates
// any in-progress negotiation, so match length and confirmations reset too.
func (p *Pool) Disconnect(s *ws.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.slot1 != nil && p.slot1.session == s:
		p.slot1 = nil
	case p.slot2 != nil && p.slot2.session == s:
		p.slot2 = nil
	default:
		return
	}

	p.maxGames = 0
	p.confirmed = make(map[int64]struct{})
	p.logger.Info("player left matchmaking", zap.Int64("player_id", s.PlayerID))
}

// Occupancy returns the number of occupied slots.
func (p *Pool) Occupancy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	if p.slot1 != nil {
		n++
	}
	if p.slot2 != nil {
		n++
	}
	return n
}

// MaxGames returns the chosen match length, 0 if unset.
func (p *Pool) MaxGames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxGames
}

func (p *Pool) sendReadyLocked() {
	p.send(p.slot1.session, readyMessage{
		Type:     "ready",
		Opponent: p.slot2.username,
		MaxGames: p.maxGames,
	})
	p.send(p.slot2.session, readyMessage{
		Type:     "ready",
		Opponent: p.slot1.username,
		MaxGames: p.maxGames,
	})
}

func (p *Pool) resetLocked() {
	p.slot1 = nil
	p.slot2 = nil
	p.maxGames = 0
	p.confirmed = make(map[int64]struct{})
}

func (p *Pool) send(s *ws.Session, v any) {
	if err := s.Send(v); err != nil {
		p.logger.Debug("matchmaking send skipped", zap.Error(err))
	}
}

type errMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorEnvelope(message string) errMessage {
	return errMessage{Type: "error", Message: message}
}
