package matchmaking

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openpong/server/internal/ws"
)

// closePolicyViolation is the close code sent when the upgrade request
// carries no token.
const closePolicyViolation = 4001

// Handler upgrades /matchmaking requests and dispatches the channel's
// message types to the Pool.
type Handler struct {
	pool     *Pool
	monitor  *ws.Monitor
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a matchmaking websocket handler.
//
// Precondition: pool, monitor, and logger must be non-nil.
func NewHandler(pool *Pool, monitor *ws.Monitor, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		pool:    pool,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     ws.CheckOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the peer
// goes away. Teardown always releases the session's pool slot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("matchmaking upgrade failed", zap.Error(err))
		return
	}

	sess := ws.NewSession(conn, h.logger)
	logger := sess.Logger().With(zap.String("channel", "matchmaking"))

	token := r.URL.Query().Get("token")
	if token == "" {
		logger.Info("closing connection without token")
		if err := sess.ClosePolicy(closePolicyViolation, "Invalid or missing token"); err != nil {
			logger.Debug("policy close", zap.Error(err))
		}
		return
	}
	sess.Token = token

	h.monitor.Track(sess)
	logger.Info("matchmaking connection established", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.monitor.Forget(sess)
		h.pool.Disconnect(sess)
		if err := sess.Close(); err != nil {
			logger.Debug("session close", zap.Error(err))
		}
		logger.Info("matchmaking connection closed")
	}()

	for {
		payload, err := sess.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("matchmaking read error", zap.Error(err))
			}
			return
		}
		h.dispatch(r, sess, payload)
	}
}

func (h *Handler) dispatch(r *http.Request, sess *ws.Session, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		sess.SendError("Invalid message format")
		return
	}

	switch msg.Type {
	case "join":
		h.pool.Join(sess, msg.ID, msg.Username, msg.Difficulty)
	case "selectMaxGames":
		h.pool.SelectMaxGames(sess, msg.MaxGames)
	case "confirmReady":
		h.pool.ConfirmReady(r.Context(), sess)
	default:
		sess.SendError("Unknown message type")
	}
}
