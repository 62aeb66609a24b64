package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
)

const (
	ChallengeTypeRequest  = "request"
	ChallengeTypeResponse = "response"
)

// ChallengeMessage is either a ChallengeRequest or a ChallengeResponse.
type ChallengeMessage interface {
	ChallengedGameID() string
}

// ChallengeRequest is sent by a player who wants to join a pending game.
type ChallengeRequest struct {
	GameID string
}

func (that ChallengeRequest) ChallengedGameID() string { return that.GameID }

// ChallengeResponse is the owner's answer to a ChallengeRequest.
type ChallengeResponse struct {
	GameID   string
	Accepted bool
}

func (that ChallengeResponse) ChallengedGameID() string { return that.GameID }

type challengeWire struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
	Result *bool  `json:"result,omitempty"`
}

// ParseChallenge decodes the tagged wire form. Anything that is not a well formed
// request or response is rejected.
func ParseChallenge(raw json.RawMessage) (ChallengeMessage, error) {
	var wire challengeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedInput, err)
	}

	gameID := strings.TrimSpace(wire.GameID)
	if gameID == "" {
		return nil, fmt.Errorf("%w: gameId is required", apperror.ErrMalformedInput)
	}

	switch wire.Type {
	case ChallengeTypeRequest:
		return ChallengeRequest{GameID: gameID}, nil
	case ChallengeTypeResponse:
		if wire.Result == nil {
			return nil, fmt.Errorf("%w: response without result", apperror.ErrMalformedInput)
		}
		return ChallengeResponse{GameID: gameID, Accepted: *wire.Result}, nil
	default:
		return nil, fmt.Errorf("%w: unknown challenge type %q", apperror.ErrMalformedInput, wire.Type)
	}
}
