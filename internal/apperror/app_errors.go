package apperror

import "errors"

var (
	ErrInvalidMove          = errors.New("invalid move")
	ErrNoSuchGame           = errors.New("no such game")
	ErrChallengeRejected    = errors.New("challenge rejected")
	ErrInvalidChallenge     = errors.New("invalid challenge")
	ErrMigrationUnavailable = errors.New("no peer available for migration")
	ErrPeerCallFailed       = errors.New("peer call failed")
	ErrGameMigrating        = errors.New("game is being handed off to another node")
	ErrMalformedInput       = errors.New("malformed input")
	ErrNotPlaying           = errors.New("connection has not joined with a player identity")
)
