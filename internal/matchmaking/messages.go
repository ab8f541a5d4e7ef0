package matchmaking

// clientMessage is the inbound envelope for the matchmaking channel. Fields
// beyond Type are populated per message type; unknown fields are ignored.
type clientMessage struct {
	Type       string `json:"type"`
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Difficulty string `json:"difficulty"`
	MaxGames   int    `json:"maxGames"`
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

type readyMessage struct {
	Type     string `json:"type"`
	Opponent string `json:"opponent"`
	MaxGames int    `json:"maxGames"`
}

type startMessage struct {
	Type       string `json:"type"`
	Opponent   string `json:"opponent"`
	OpponentID int64  `json:"opponent_id"`
	GameID     int64  `json:"game_id"`
	MaxGames   int    `json:"maxGames"`
}
