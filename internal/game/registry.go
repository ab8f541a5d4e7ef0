package game

import (
	"errors"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/openpong/server/internal/config"
	"github.com/openpong/server/internal/ws"
)

// Registry maps game IDs to live rooms. Rooms are created on first join and
// removed when they end or empty out.
//
// Lock ordering: the registry lock is never held across a room method. Room
// teardown calls back into remove, which takes the registry lock, so holding
// it the other way would deadlock.
type Registry struct {
	cfg    config.GameConfig
	logger *zap.Logger

	// serveRight picks the opening serve direction. Swappable in tests.
	serveRight func() bool

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(cfg config.GameConfig, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:        cfg,
		logger:     logger,
		serveRight: func() bool { return rand.Intn(2) == 0 },
		rooms:      make(map[string]*Room),
	}
}

// Join routes a connection into the room for gameID, creating it if needed.
// The creator takes the left side and sets the room's point target; a zero
// or negative maxScore falls back to the configured default. A third
// participant is refused and its connection closed.
func (g *Registry) Join(gameID string, s *ws.Session, playerName string, maxScore int) {
	for {
		g.mu.Lock()
		r, ok := g.rooms[gameID]
		if !ok {
			if maxScore <= 0 {
				maxScore = g.cfg.DefaultMaxScore
			}
			r = newRoom(gameID, g.cfg, g.logger, g.remove, maxScore, g.serveRight())
			g.rooms[gameID] = r
			g.mu.Unlock()
			r.joinLeft(s, playerName)
			return
		}
		g.mu.Unlock()

		err := r.joinRight(s, playerName)
		switch {
		case err == nil:
			return
		case errors.Is(err, errRoomClosed):
			// Raced a room that ended between lookup and join. Its
			// teardown removes it from the map; retry with a fresh one.
			continue
		default:
			s.SendError("Room full")
			_ = s.Close()
			return
		}
	}
}

// Move forwards a paddle intent change. Unknown game IDs are ignored.
func (g *Registry) Move(gameID string, s *ws.Session, action, direction string) {
	if r, ok := g.lookup(gameID); ok {
		r.move(s, action, direction)
	}
}

// Forfeit ends the identified match on behalf of s. Unknown game IDs are
// ignored.
func (g *Registry) Forfeit(gameID string, s *ws.Session, message string) {
	if r, ok := g.lookup(gameID); ok {
		r.forfeit(s, message)
	}
}

// Disconnect releases s's seat in the identified room, if any.
func (g *Registry) Disconnect(gameID string, s *ws.Session) {
	if r, ok := g.lookup(gameID); ok {
		r.disconnect(s)
	}
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// StopAll cancels every room's periodic work. Used during shutdown.
func (g *Registry) StopAll() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.shutdown()
	}
}

func (g *Registry) lookup(gameID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[gameID]
	return r, ok
}

// remove drops r from the map. The pointer check keeps a finished room from
// evicting a newer room that reused its ID.
func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[r.id]; ok && cur == r {
		delete(g.rooms, r.id)
	}
}
