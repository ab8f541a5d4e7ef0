// Package game owns the room registry and the server-authoritative paddle
// simulation: fixed-tick physics, scoring, and state broadcast to both
// participants of a match.
package game

import (
	"github.com/openpong/server/internal/config"
)

// stepEvent classifies the outcome of one simulation step.
type stepEvent int

const (
	// stepNone: ball still in play, nothing scored.
	stepNone stepEvent = iota
	// stepScore: a point was scored and the ball re-served.
	stepScore
	// stepGameOver: the final point was scored; the match is decided.
	stepGameOver
)

// state is the full simulation state of one match. It is a plain value with
// deterministic transitions so physics can be tested without a clock or a
// socket; Room owns locking and time.
type state struct {
	cfg config.GameConfig

	ballX, ballY float64
	ballVX       float64
	ballVY       float64

	leftY  float64
	rightY float64

	leftUp, leftDown   bool
	rightUp, rightDown bool

	leftScore  int
	rightScore int
	maxScore   int
}

// newState builds the serve position: paddles centered, ball at board
// center moving toward the right (or left) at base serve speed.
func newState(cfg config.GameConfig, maxScore int, serveRight bool) state {
	s := state{
		cfg:      cfg,
		maxScore: maxScore,
	}
	s.leftY = cfg.BoardHeight/2 - cfg.PaddleHeight/2
	s.rightY = s.leftY
	s.resetBall(serveRight)
	return s
}

// resetBall re-centers the ball at base serve speed in the given horizontal
// direction. Rally speed accumulated from paddle hits is discarded.
func (s *state) resetBall(serveRight bool) {
	s.ballX = s.cfg.BoardWidth / 2
	s.ballY = s.cfg.BoardHeight / 2
	s.ballVX = s.cfg.ServeSpeedX
	if !serveRight {
		s.ballVX = -s.cfg.ServeSpeedX
	}
	s.ballVY = s.cfg.ServeSpeedY
}

// step advances the simulation by one tick: ball integration, wall bounce,
// paddle collision, scoring, then paddle movement.
func (s *state) step() stepEvent {
	s.ballX += s.ballVX
	s.ballY += s.ballVY

	s.bounceWalls()
	s.collidePaddles()
	ev := s.checkScoring()
	if ev == stepGameOver {
		return ev
	}
	s.movePaddles()
	return ev
}

func (s *state) bounceWalls() {
	top := s.cfg.WallMargin
	bottom := s.cfg.BoardHeight - s.cfg.WallMargin
	if s.ballY <= top && s.ballVY < 0 {
		s.ballVY = -s.ballVY
	} else if s.ballY >= bottom && s.ballVY > 0 {
		s.ballVY = -s.ballVY
	}
	s.ballY = clamp(s.ballY, 0, s.cfg.BoardHeight)
}

// collidePaddles reflects the ball off a paddle at most once per step and
// clamps it to the paddle's collision plane so the same overlap cannot
// re-trigger on the next tick.
func (s *state) collidePaddles() {
	leftPlane := s.cfg.PaddleInset
	rightPlane := s.cfg.BoardWidth - s.cfg.PaddleInset

	if s.ballVX < 0 && s.ballX <= leftPlane &&
		s.ballY >= s.leftY && s.ballY <= s.leftY+s.cfg.PaddleHeight {
		s.ballVX = -s.ballVX
		s.ballX = leftPlane
		s.rallySpeedup()
		return
	}
	if s.ballVX > 0 && s.ballX >= rightPlane &&
		s.ballY >= s.rightY && s.ballY <= s.rightY+s.cfg.PaddleHeight {
		s.ballVX = -s.ballVX
		s.ballX = rightPlane
		s.rallySpeedup()
	}
}

// rallySpeedup bumps ball speed after a paddle hit, capped at
// MaxSpeedFactor times the serve speed.
func (s *state) rallySpeedup() {
	f := s.cfg.RallySpeedup
	capX := s.cfg.MaxSpeedFactor * s.cfg.ServeSpeedX
	capY := s.cfg.MaxSpeedFactor * s.cfg.ServeSpeedY
	if abs(s.ballVX)*f > capX || abs(s.ballVY)*f > capY {
		return
	}
	s.ballVX *= f
	s.ballVY *= f
}

// checkScoring detects the ball leaving the board horizontally. The side
// whose paddle the ball passed concedes; the opponent scores.
func (s *state) checkScoring() stepEvent {
	if s.ballX >= 0 && s.ballX <= s.cfg.BoardWidth {
		return stepNone
	}

	concededLeft := s.ballX < 0
	if concededLeft {
		s.rightScore++
	} else {
		s.leftScore++
	}

	if s.leftScore+s.rightScore >= s.maxScore {
		return stepGameOver
	}

	// Re-serve toward the side that just conceded.
	s.resetBall(!concededLeft)
	return stepScore
}

func (s *state) movePaddles() {
	maxY := s.cfg.BoardHeight - s.cfg.PaddleHeight
	if s.leftUp {
		s.leftY = clamp(s.leftY-s.cfg.PaddleSpeed, 0, maxY)
	}
	if s.leftDown {
		s.leftY = clamp(s.leftY+s.cfg.PaddleSpeed, 0, maxY)
	}
	if s.rightUp {
		s.rightY = clamp(s.rightY-s.cfg.PaddleSpeed, 0, maxY)
	}
	if s.rightDown {
		s.rightY = clamp(s.rightY+s.cfg.PaddleSpeed, 0, maxY)
	}
}

// leftWins reports the winner by higher score once the match is decided.
func (s *state) leftWins() bool {
	return s.leftScore > s.rightScore
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
