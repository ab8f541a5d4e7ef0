package game

// clientMessage is the inbound envelope for the match channel.
type clientMessage struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
	MaxScore   int    `json:"maxScore"`
	Action     string `json:"action"`
	Direction  string `json:"direction"`
	Message    string `json:"message"`
}

type assignSideMessage struct {
	Type string `json:"type"`
	Side string `json:"side"`
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

type scoreUpdateMessage struct {
	Type            string `json:"type"`
	LeftScore       int    `json:"leftScore"`
	RightScore      int    `json:"rightScore"`
	LeftPlayerName  string `json:"leftPlayerName"`
	RightPlayerName string `json:"rightPlayerName"`
	Message         string `json:"message,omitempty"`
}

type ballSnapshot struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type paddleSnapshot struct {
	LeftY  float64 `json:"leftY"`
	RightY float64 `json:"rightY"`
}

type updateMessage struct {
	Type       string         `json:"type"`
	Ball       ballSnapshot   `json:"ball"`
	Paddles    paddleSnapshot `json:"paddles"`
	LeftScore  int            `json:"leftScore"`
	RightScore int            `json:"rightScore"`
}

type endMessage struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	LeftScore       int    `json:"leftScore"`
	RightScore      int    `json:"rightScore"`
	LeftPlayerName  string `json:"leftPlayerName"`
	RightPlayerName string `json:"rightPlayerName"`
}

// forfeitMessage is the minimal end notice relayed to the opponent when a
// participant ends the match explicitly.
type forfeitMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type opponentLeftMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
