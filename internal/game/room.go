package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openpong/server/internal/config"
	"github.com/openpong/server/internal/ws"
)

var (
	errRoomFull   = errors.New("room full")
	errRoomClosed = errors.New("room closed")
)

// Room is the server-owned state and simulation for one in-progress match
// between exactly two connections. All fields are guarded by mu; the tick
// goroutine and every connection callback contend on it, which restores the
// atomicity a single-threaded event loop would give for free.
type Room struct {
	id     string
	cfg    config.GameConfig
	logger *zap.Logger
	// onDone removes the room from its registry. Called exactly once,
	// never while holding mu.
	onDone func(*Room)

	mu          sync.Mutex
	left        *ws.Session
	right       *ws.Session
	leftName    string
	rightName   string
	st          state
	countdown   *time.Timer
	stop        chan struct{}
	loopRunning bool
	done        bool
}

func newRoom(id string, cfg config.GameConfig, logger *zap.Logger, onDone func(*Room), maxScore int, serveRight bool) *Room {
	return &Room{
		id:     id,
		cfg:    cfg,
		logger: logger.With(zap.String("game_id", id)),
		onDone: onDone,
		st:     newState(cfg, maxScore, serveRight),
	}
}

// joinLeft seats the room's creator on the left paddle.
func (r *Room) joinLeft(s *ws.Session, playerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.left = s
	r.leftName = playerName
	s.Side = ws.SideLeft
	r.send(s, assignSideMessage{Type: "assignSide", Side: "left"})
	r.logger.Info("player joined room",
		zap.String("player", playerName), zap.String("side", "left"))
}

// joinRight seats the second participant and arms the countdown. Once both
// sides are present clients get the zero score and a countdown signal; the
// tick loop starts after the configured delay so the countdown can render.
func (r *Room) joinRight(s *ws.Session, playerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return errRoomClosed
	}
	if r.right != nil {
		return errRoomFull
	}

	r.right = s
	r.rightName = playerName
	s.Side = ws.SideRight
	r.send(s, assignSideMessage{Type: "assignSide", Side: "right"})

	r.broadcast(scoreUpdateMessage{
		Type:            "scoreUpdate",
		LeftScore:       r.st.leftScore,
		RightScore:      r.st.rightScore,
		LeftPlayerName:  r.leftName,
		RightPlayerName: r.rightName,
	})
	r.broadcast(typeOnlyMessage{Type: "startCountdown"})
	r.countdown = time.AfterFunc(r.cfg.CountdownDelay, r.startLoop)

	r.logger.Info("player joined room",
		zap.String("player", playerName), zap.String("side", "right"))
	return nil
}

func (r *Room) startLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.countdown = nil
	if r.done || r.loopRunning {
		return
	}
	r.stop = make(chan struct{})
	r.loopRunning = true
	go r.run(r.stop)
	r.logger.Info("simulation started",
		zap.Int("max_score", r.st.maxScore), zap.Int("tick_rate", r.cfg.TickRate))
}

func (r *Room) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.tick() {
				return
			}
		}
	}
}

// tick advances the simulation one step and broadcasts the results. It
// returns false once the match is decided, which ends the loop.
func (r *Room) tick() bool {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return false
	}

	switch r.st.step() {
	case stepGameOver:
		winner := r.rightName
		if r.st.leftWins() {
			winner = r.leftName
		}
		r.broadcast(endMessage{
			Type:            "end",
			Message:         fmt.Sprintf("%s wins!", winner),
			LeftScore:       r.st.leftScore,
			RightScore:      r.st.rightScore,
			LeftPlayerName:  r.leftName,
			RightPlayerName: r.rightName,
		})
		r.done = true
		r.loopRunning = false
		r.logger.Info("match decided",
			zap.String("winner", winner),
			zap.Int("left_score", r.st.leftScore),
			zap.Int("right_score", r.st.rightScore),
		)
		r.mu.Unlock()
		r.onDone(r)
		return false
	case stepScore:
		r.broadcast(scoreUpdateMessage{
			Type:            "scoreUpdate",
			LeftScore:       r.st.leftScore,
			RightScore:      r.st.rightScore,
			LeftPlayerName:  r.leftName,
			RightPlayerName: r.rightName,
			Message:         fmt.Sprintf("Score update: %d - %d", r.st.leftScore, r.st.rightScore),
		})
	}

	r.broadcast(updateMessage{
		Type:       "update",
		Ball:       ballSnapshot{X: r.st.ballX, Y: r.st.ballY},
		Paddles:    paddleSnapshot{LeftY: r.st.leftY, RightY: r.st.rightY},
		LeftScore:  r.st.leftScore,
		RightScore: r.st.rightScore,
	})
	r.mu.Unlock()
	return true
}

// move updates the sender's paddle movement-intent flags. Unknown actions
// or directions leave the flags untouched.
func (r *Room) move(s *ws.Session, action, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	isStart := action == "start"
	if action != "start" && action != "end" {
		return
	}

	switch s {
	case r.left:
		switch direction {
		case "ArrowUp":
			r.st.leftUp = isStart
		case "ArrowDown":
			r.st.leftDown = isStart
		}
	case r.right:
		switch direction {
		case "ArrowUp":
			r.st.rightUp = isStart
		case "ArrowDown":
			r.st.rightDown = isStart
		}
	}
}

// forfeit ends the match explicitly: the opponent gets the sender's parting
// message, both sockets close, and the room is torn down.
func (r *Room) forfeit(s *ws.Session, message string) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}

	opponent := r.right
	if s == r.right {
		opponent = r.left
	}
	if opponent != nil {
		r.send(opponent, forfeitMessage{Type: "end", Message: message})
	}

	r.done = true
	r.stopLocked()
	left, right := r.left, r.right
	r.mu.Unlock()

	if left != nil {
		_ = left.Close()
	}
	if right != nil {
		_ = right.Close()
	}
	r.logger.Info("match forfeited")
	r.onDone(r)
}

// disconnect clears whichever side matched the closed connection. The last
// occupant leaving tears the room down; a room with one remaining occupant
// stays alive with no eviction timer.
func (r *Room) disconnect(s *ws.Session) {
	r.mu.Lock()

	var opponent *ws.Session
	switch s {
	case r.left:
		r.left = nil
		opponent = r.right
	case r.right:
		r.right = nil
		opponent = r.left
	default:
		r.mu.Unlock()
		return
	}

	if opponent != nil {
		r.send(opponent, opponentLeftMessage{
			Type:    "opponentLeft",
			Message: "Your opponent has left the game",
		})
		r.mu.Unlock()
		return
	}

	// Both sides gone.
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.stopLocked()
	r.mu.Unlock()

	r.logger.Info("room abandoned")
	r.onDone(r)
}

// shutdown cancels the room's periodic work during process shutdown.
func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.stopLocked()
}

// stopLocked cancels the countdown timer and the tick loop.
// Precondition: r.mu held.
func (r *Room) stopLocked() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	if r.loopRunning {
		close(r.stop)
		r.loopRunning = false
	}
}

// broadcast sends v to both participants. Best effort: a send to a closed
// or absent side is skipped, never queued.
// Precondition: r.mu held.
func (r *Room) broadcast(v any) {
	r.send(r.left, v)
	r.send(r.right, v)
}

func (r *Room) send(s *ws.Session, v any) {
	if s == nil {
		return
	}
	if err := s.Send(v); err != nil && !errors.Is(err, ws.ErrClosed) {
		r.logger.Debug("broadcast send failed", zap.Error(err))
	}
}
