package usecase

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/service"
)

// PeerNewGame creates a game for a player whose node is migrating towards this one.
// The player has no connection here yet; notifications find them once they join.
func (that *GameManager) PeerNewGame(ctx context.Context, request service.NewGameRequest) (*entity.Game, error) {
	player, err := entity.SanitizePlayer(request.Player)
	if err != nil {
		return nil, fmt.Errorf("failed to create game for peer: %w", err)
	}

	return that.lobby.NewGame(ctx, player, nil), nil
}

func (that *GameManager) PeerMove(ctx context.Context, request service.MoveRequest) (*entity.Game, error) {
	player, err := entity.SanitizePlayer(request.Player)
	if err != nil {
		return nil, fmt.Errorf("failed to move for peer: %w", err)
	}

	return that.gameplay.SubmitMove(ctx, player, request.GameID, request.Square)
}

func (that *GameManager) PeerAdoptGame(_ context.Context, game *entity.Game) (service.AdoptReply, error) {
	if err := that.migration.Adopt(game); err != nil {
		return service.AdoptReply{}, err
	}

	return service.AdoptReply{GameID: game.ID}, nil
}

func (that *GameManager) PeerDropGame(_ context.Context, request service.DropRequest) (service.AdoptReply, error) {
	that.migration.Drop(request.GameID)

	return service.AdoptReply{GameID: request.GameID}, nil
}
