package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/service"
)

// Reply receives the game an action produced. It may run on another goroutine when
// the action was forwarded to a peer.
type Reply = func(game *entity.Game, err error)

// GameUseCase is what client transports drive.
type GameUseCase interface {
	Play(ctx context.Context, identity string, conn registry.Conn) (string, error)
	Disconnect(player string, conn registry.Conn)

	NewGame(ctx context.Context, player string, conn registry.Conn, reply Reply)
	GetGame(ctx context.Context, id string) (*entity.Game, error)
	FindGame(ctx context.Context, player string, conn registry.Conn) (*entity.Game, error)

	Challenge(ctx context.Context, player string, conn registry.Conn, raw json.RawMessage) error
	Move(ctx context.Context, player string, conn registry.Conn, gameID string, square int, reply Reply)

	BeginMigration(ctx context.Context) (entity.Node, error)
	EndMigration(ctx context.Context)
}

// GameManager routes client actions to local handling or, while this node is
// migrating, to the migration target.
type GameManager struct {
	logger *slog.Logger

	lobby      *service.LobbyService
	challenges *service.ChallengeService
	gameplay   *service.GamePlayService
	migration  *service.MigrationService
}

func NewGameManager(
	logger *slog.Logger,
	lobby *service.LobbyService,
	challenges *service.ChallengeService,
	gameplay *service.GamePlayService,
	migration *service.MigrationService,
) *GameManager {
	return &GameManager{
		logger: logger.With("component", "game_manager"),

		lobby:      lobby,
		challenges: challenges,
		gameplay:   gameplay,
		migration:  migration,
	}
}

func (that *GameManager) Play(ctx context.Context, identity string, conn registry.Conn) (string, error) {
	return that.lobby.Play(ctx, identity, conn)
}

// Disconnect reports that conn closed. Cleanup runs only if it is still player's
// current connection.
func (that *GameManager) Disconnect(player string, conn registry.Conn) {
	that.lobby.Leave(player, conn)
}

func (that *GameManager) NewGame(ctx context.Context, player string, conn registry.Conn, reply Reply) {
	if that.migrating() {
		err := that.migration.ForwardNewGame(player, conn, reply)
		if err == nil {
			return
		}

		// migration ended between the check and the call
		that.logger.Debug("forward skipped", "method", "NewGame", "error", err)
	}

	reply(that.lobby.NewGame(ctx, player, conn), nil)
}

func (that *GameManager) GetGame(_ context.Context, id string) (*entity.Game, error) {
	return that.lobby.GetGame(id)
}

func (that *GameManager) FindGame(ctx context.Context, player string, conn registry.Conn) (*entity.Game, error) {
	return that.lobby.FindGame(ctx, player, conn)
}

func (that *GameManager) Challenge(ctx context.Context, player string, conn registry.Conn, raw json.RawMessage) error {
	message, err := entity.ParseChallenge(raw)
	if err != nil {
		return fmt.Errorf("failed to parse challenge: %w", err)
	}

	return that.challenges.Handle(ctx, player, conn, message)
}

func (that *GameManager) Move(ctx context.Context, player string, conn registry.Conn, gameID string, square int, reply Reply) {
	game, err := that.gameplay.SubmitMove(ctx, player, gameID, square)

	if !that.migrating() {
		reply(game, err)
		return
	}

	if errors.Is(err, apperror.ErrNoSuchGame) {
		if fwdErr := that.migration.ForwardMove(player, conn, gameID, square, reply); fwdErr == nil {
			return
		}
	}

	reply(game, err)

	if err == nil && !game.Complete {
		that.migration.HandOffGame(gameID)
	}
}

func (that *GameManager) BeginMigration(ctx context.Context) (entity.Node, error) {
	target, err := that.migration.Begin(ctx)
	if err != nil {
		return entity.Node{}, fmt.Errorf("failed to begin migration: %w", err)
	}

	return target, nil
}

func (that *GameManager) EndMigration(context.Context) {
	that.migration.End()
}

func (that *GameManager) migrating() bool {
	_, ok := that.migration.Target()
	return ok
}
