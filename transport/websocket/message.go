package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Message is the envelope for both directions. Replies carry Action, pushes carry Topic.
type Message struct {
	Action  string          `json:"action,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ResponsePayload struct {
	Player string       `json:"player,omitempty"`
	Game   *entity.Game `json:"game,omitempty"`
	Node   *entity.Node `json:"node,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type playRequest struct {
	Player string `json:"player"`
}

type gameRequest struct {
	GameID string `json:"gameId"`
	Player string `json:"player"`
}

type moveRequest struct {
	GameID string `json:"gameId"`
	Square *int   `json:"square"`
}
