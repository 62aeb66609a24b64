package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

// ChallengeService runs the pending -> challenged -> live handshake.
type ChallengeService struct {
	logger   *slog.Logger
	games    *registry.Games
	notifier *notifier
	lobby    *LobbyService
}

func NewChallengeService(logger *slog.Logger, connections *registry.Connections, games *registry.Games, lobby *LobbyService) *ChallengeService {
	return &ChallengeService{
		logger:   logger.With("component", "challenge"),
		games:    games,
		notifier: &notifier{logger: logger, connections: connections},
		lobby:    lobby,
	}
}

// Handle dispatches a parsed challenge message sent by player over conn.
func (that *ChallengeService) Handle(ctx context.Context, player string, conn registry.Conn, message entity.ChallengeMessage) error {
	switch message := message.(type) {
	case entity.ChallengeRequest:
		return that.request(ctx, player, conn, message)
	case entity.ChallengeResponse:
		return that.respond(ctx, player, message)
	default:
		return fmt.Errorf("%w: unknown challenge message %T", apperror.ErrMalformedInput, message)
	}
}

func (that *ChallengeService) request(ctx context.Context, player string, conn registry.Conn, request entity.ChallengeRequest) error {
	log := that.logger.With("method", "request")

	if entry, _, ok := that.games.Lookup(request.GameID); ok && entry.Owner() == player {
		return fmt.Errorf("%w: %s cannot challenge own game %s", apperror.ErrInvalidChallenge, player, request.GameID)
	}

	entry, err := that.games.Transition(request.GameID, registry.PhasePending, registry.PhaseChallenged,
		func(entry *registry.Entry) bool { return entry.Owner() != player },
		func(entry *registry.Entry) { entry.Attach(player, conn) },
	)
	if err != nil {
		return fmt.Errorf("failed to challenge: %w", err)
	}

	log.Debug("game challenged", "game", entry.ID(), "challenger", player)

	ownerConn, _ := entry.Conns()
	that.notifier.deliver(entry.Owner(), ownerConn, TopicChallenge, ChallengeNotice{
		Type:       "request",
		GameID:     entry.ID(),
		Challenger: player,
	})

	that.lobby.BroadcastGameList(ctx)

	return nil
}

func (that *ChallengeService) respond(ctx context.Context, player string, response entity.ChallengeResponse) error {
	if response.Accepted {
		return that.accept(player, response.GameID)
	}

	return that.reject(ctx, player, response.GameID)
}

func (that *ChallengeService) accept(player, gameID string) error {
	entry, err := that.games.Transition(gameID, registry.PhaseChallenged, registry.PhaseLive,
		func(entry *registry.Entry) bool { return entry.Owner() == player },
		func(entry *registry.Entry) { entry.BindOpponent() },
	)
	if err != nil {
		return fmt.Errorf("failed to accept challenge: %w", err)
	}

	game := entry.Snapshot()
	accepted := true
	notice := ChallengeNotice{Type: "response", GameID: game.ID, Result: &accepted, Game: game}

	ownerConn, peerConn := entry.Conns()
	that.notifier.deliver(game.Owner, ownerConn, TopicChallenge, notice)
	that.notifier.deliver(game.Opponent, peerConn, TopicChallenge, notice)

	that.logger.Info("game started", "method", "accept", "game", game.ID, "owner", game.Owner, "opponent", game.Opponent)

	return nil
}

func (that *ChallengeService) reject(ctx context.Context, player, gameID string) error {
	var (
		challenger     string
		challengerConn registry.Conn
	)

	entry, err := that.games.Transition(gameID, registry.PhaseChallenged, registry.PhasePending,
		func(entry *registry.Entry) bool { return entry.Owner() == player },
		func(entry *registry.Entry) {
			challenger = entry.Challenger()
			_, challengerConn = entry.Conns()
			entry.Detach()
		},
	)
	if err != nil {
		return fmt.Errorf("failed to reject challenge: %w", err)
	}

	rejected := false
	that.notifier.deliver(challenger, challengerConn, TopicChallenge, ChallengeNotice{
		Type:   "response",
		GameID: entry.ID(),
		Result: &rejected,
		Error:  apperror.ErrChallengeRejected.Error(),
	})

	that.logger.Debug("challenge rejected", "method", "reject", "game", entry.ID(), "challenger", challenger)

	that.lobby.BroadcastGameList(ctx)

	return nil
}
