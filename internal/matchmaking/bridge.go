package matchmaking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openpong/server/internal/config"
)

// CreateMatchRequest carries everything the external match-record service
// needs to persist a new match.
type CreateMatchRequest struct {
	Player1ID int64
	Player2ID int64
	MaxGames  int
	StartedAt time.Time
	// Token is the host's bearer credential, forwarded opaquely.
	Token string
}

// MatchCreator persists a match record externally and returns its generated
// identifier. Retries and idempotency are the collaborator's responsibility.
type MatchCreator interface {
	CreateMatch(ctx context.Context, req CreateMatchRequest) (int64, error)
}

// HTTPBridge is the production MatchCreator, POSTing to the game-record
// service's /games endpoint.
type HTTPBridge struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPBridge creates an HTTPBridge from configuration.
//
// Precondition: cfg must have passed config validation; logger must be non-nil.
func NewHTTPBridge(cfg config.BridgeConfig, logger *zap.Logger) *HTTPBridge {
	return &HTTPBridge{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type createMatchBody struct {
	Player1ID   int64  `json:"player1_id"`
	Player2ID   int64  `json:"player2_id"`
	MaxGames    int    `json:"max_games"`
	TimeStarted string `json:"time_started"`
}

type createMatchResponse struct {
	GameID *int64 `json:"game_id"`
}

// CreateMatch issues the create call and decodes the generated identifier.
//
// Postcondition: Returns a positive game id, or an error on non-2xx status,
// unparsable body, or missing identifier.
func (b *HTTPBridge) CreateMatch(ctx context.Context, req CreateMatchRequest) (int64, error) {
	body, err := json.Marshal(createMatchBody{
		Player1ID:   req.Player1ID,
		Player2ID:   req.Player2ID,
		MaxGames:    req.MaxGames,
		TimeStarted: req.StartedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, fmt.Errorf("encoding create match request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/games", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building create match request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("calling match service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("match service returned status %d", resp.StatusCode)
	}

	var decoded createMatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decoding match service response: %w", err)
	}
	if decoded.GameID == nil || *decoded.GameID <= 0 {
		return 0, fmt.Errorf("match service response missing game_id")
	}

	b.logger.Debug("match record created", zap.Int64("game_id", *decoded.GameID))
	return *decoded.GameID, nil
}
