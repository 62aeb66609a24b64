package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

// GamePlayService validates moves on live games, relays them to the other
// participant and announces results.
type GamePlayService struct {
	logger    *slog.Logger
	games     *registry.Games
	notifier  *notifier
	publisher Publisher
}

func NewGamePlayService(logger *slog.Logger, connections *registry.Connections, games *registry.Games, publisher Publisher) *GamePlayService {
	return &GamePlayService{
		logger:    logger.With("component", "gameplay"),
		games:     games,
		notifier:  &notifier{logger: logger, connections: connections},
		publisher: publisher,
	}
}

// SubmitMove plays square for player in game gameID and returns the resulting
// snapshot. Rejected moves leave the game untouched and are not relayed.
func (that *GamePlayService) SubmitMove(ctx context.Context, player, gameID string, square int) (*entity.Game, error) {
	log := that.logger.With("method", "SubmitMove")

	entry, ok := that.games.Live(gameID)
	if !ok {
		return nil, fmt.Errorf("failed to move: %w: %s is not live", apperror.ErrNoSuchGame, gameID)
	}

	var (
		move     entity.Move
		complete bool
		snapshot *entity.Game
	)

	err := entry.Update(func(game *entity.Game) error {
		switch {
		case !game.IsParticipant(player):
			return fmt.Errorf("%w: %s does not play in %s", apperror.ErrInvalidMove, player, game.ID)
		case game.Complete:
			return fmt.Errorf("%w: game %s is over", apperror.ErrInvalidMove, game.ID)
		case game.NextMover() != player:
			return fmt.Errorf("%w: not %s's turn", apperror.ErrInvalidMove, player)
		}

		if !game.ApplyMove(square) {
			return fmt.Errorf("%w: square %d", apperror.ErrInvalidMove, square)
		}

		move = game.Moves[len(game.Moves)-1]
		complete = game.IsComplete()
		snapshot = game.Snapshot()

		return nil
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrGameMigrating) {
			log.Debug("move rejected", "game", gameID, "player", player, "square", square, "error", err)
		}

		return nil, fmt.Errorf("failed to move: %w", err)
	}

	ownerConn, peerConn := entry.Conns()
	other, otherConn := snapshot.OtherPlayer(player), peerConn
	if player != snapshot.Owner {
		otherConn = ownerConn
	}

	that.notifier.deliver(other, otherConn, TopicMove, move)

	if err = that.publisher.Publish(ctx, TopicMoves, move); err != nil {
		log.Error("failed to publish move", "move", move.String(), "error", err)
	}

	if !complete {
		return snapshot, nil
	}

	that.notifier.deliver(snapshot.Owner, ownerConn, TopicResult, snapshot)
	that.notifier.deliver(snapshot.Opponent, peerConn, TopicResult, snapshot)

	if err = that.publisher.Publish(ctx, TopicResults, snapshot); err != nil {
		log.Error("failed to publish result", "game", snapshot.ID, "error", err)
	}

	if _, err = that.games.Take(gameID, registry.PhaseLive, func(candidate *registry.Entry) bool {
		return candidate == entry
	}); err != nil {
		log.Debug("finished game already retired", "game", gameID)
	}

	log.Info("game finished", "game", snapshot.ID, "winner", snapshot.Winner, "moves", len(snapshot.Moves))

	return snapshot, nil
}
