package service

import "github.com/rocketscienceinc/tictactoe-cluster/internal/entity"

// GameList is the pending list one node broadcasts on TopicGames.
type GameList struct {
	Node  string         `json:"node" cbor:"node"`
	Games []*entity.Game `json:"games" cbor:"games"`
}

type ChallengeNotice struct {
	Type       string       `json:"type"`
	GameID     string       `json:"gameId"`
	Challenger string       `json:"challenger,omitempty"`
	Result     *bool        `json:"result,omitempty"`
	Game       *entity.Game `json:"game,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type AbandonedNotice struct {
	GameID string `json:"gameId"`
	Player string `json:"player"`
}

// MigrateNotice tells a client to reconnect to another node.
type MigrateNotice struct {
	URL    string `json:"url"`
	Node   string `json:"node"`
	GameID string `json:"gameId,omitempty"`
}

type ErrorNotice struct {
	GameID string `json:"gameId,omitempty"`
	Error  string `json:"error"`
}

// NewGameRequest creates a game on a peer on behalf of a player connected elsewhere.
type NewGameRequest struct {
	Player string `cbor:"player"`
}

// MoveRequest submits a move on a peer on behalf of a player connected elsewhere.
type MoveRequest struct {
	Player string `cbor:"player"`
	GameID string `cbor:"game_id"`
	Square int    `cbor:"square"`
}

type AdoptReply struct {
	GameID string `cbor:"game_id"`
}

// DropRequest withdraws an adopted game whose players left before the hand-off
// completed.
type DropRequest struct {
	GameID string `cbor:"game_id"`
}
