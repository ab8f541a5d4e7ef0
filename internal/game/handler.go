package game

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openpong/server/internal/ws"
)

// Handler upgrades /game/{gameId} requests and dispatches the match
// channel's message types to the Registry.
type Handler struct {
	registry *Registry
	monitor  *ws.Monitor
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a game websocket handler.
//
// Precondition: registry, monitor, and logger must be non-nil.
func NewHandler(registry *Registry, monitor *ws.Monitor, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		monitor:  monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     ws.CheckOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the peer
// goes away. Teardown always releases the session's room seat.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("game upgrade failed", zap.Error(err))
		return
	}

	sess := ws.NewSession(conn, h.logger)
	logger := sess.Logger().With(
		zap.String("channel", "game"),
		zap.String("game_id", gameID),
	)

	h.monitor.Track(sess)
	logger.Info("game connection established", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.monitor.Forget(sess)
		h.registry.Disconnect(gameID, sess)
		if err := sess.Close(); err != nil {
			logger.Debug("session close", zap.Error(err))
		}
		logger.Info("game connection closed")
	}()

	for {
		payload, err := sess.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("game read error", zap.Error(err))
			}
			return
		}
		h.dispatch(gameID, sess, payload)
	}
}

func (h *Handler) dispatch(gameID string, sess *ws.Session, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		sess.SendError("Invalid message format")
		return
	}

	switch msg.Type {
	case "join":
		h.registry.Join(gameID, sess, msg.PlayerName, msg.MaxScore)
	case "move":
		h.registry.Move(gameID, sess, msg.Action, msg.Direction)
	case "end":
		h.registry.Forfeit(gameID, sess, msg.Message)
	default:
		sess.SendError("Unknown message type")
	}
}
