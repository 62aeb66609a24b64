package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

const cleanupTimeout = 5 * time.Second

// LobbyService handles joining, game creation and lookup, and the pending-list
// broadcast.
type LobbyService struct {
	logger *slog.Logger
	node   string

	connections *registry.Connections
	games       *registry.Games
	notifier    *notifier

	publisher Publisher
	directory Directory
}

func NewLobbyService(logger *slog.Logger, node string, connections *registry.Connections, games *registry.Games, publisher Publisher, directory Directory) *LobbyService {
	lobby := &LobbyService{
		logger: logger.With("component", "lobby"),
		node:   node,

		connections: connections,
		games:       games,
		notifier:    &notifier{logger: logger, connections: connections},

		publisher: publisher,
		directory: directory,
	}

	connections.OnDisconnect(lobby.Disconnected)

	return lobby
}

// Play binds identity to conn on this node and advertises the binding cluster-wide.
func (that *LobbyService) Play(ctx context.Context, identity string, conn registry.Conn) (string, error) {
	log := that.logger.With("method", "Play")

	player, err := that.connections.Register(identity, conn)
	if err != nil {
		return "", fmt.Errorf("failed to play: %w", err)
	}

	if err = that.directory.BindPlayer(ctx, player); err != nil {
		log.Warn("failed to publish player presence", "player", player, "error", err)
	}

	log.Debug("player joined", "player", player, "conn", conn.ID())

	that.BroadcastGameList(ctx)

	return player, nil
}

// NewGame creates a pending game owned by player.
func (that *LobbyService) NewGame(ctx context.Context, player string, conn registry.Conn) *entity.Game {
	game := that.games.CreatePending(player, conn)

	that.logger.Debug("game created", "method", "NewGame", "game", game.ID, "owner", player)

	that.BroadcastGameList(ctx)

	return game
}

func (that *LobbyService) GetGame(id string) (*entity.Game, error) {
	game, _, err := that.games.Game(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// FindGame returns the game player is involved in on this node. When the player is
// bound to another node, conn is redirected there.
func (that *LobbyService) FindGame(ctx context.Context, player string, conn registry.Conn) (*entity.Game, error) {
	log := that.logger.With("method", "FindGame")

	game, _, err := that.games.Find(player)
	if err == nil {
		// a returning player refreshes its view of the lobby
		that.BroadcastGameList(ctx)
		return game, nil
	}

	node, lookupErr := that.directory.ResolveGloballyConnected(ctx, player)
	if lookupErr != nil || node == "" || node == that.node {
		return nil, fmt.Errorf("failed to find game: %w", err)
	}

	target, lookupErr := that.directory.Node(ctx, node)
	if lookupErr != nil {
		log.Warn("player bound to unknown node", "player", player, "node", node, "error", lookupErr)
		return nil, fmt.Errorf("failed to find game: %w", err)
	}

	if conn != nil {
		redirect(log, target, player, "", conn)
	}

	return nil, fmt.Errorf("failed to find game: %w: player %s is on node %s", apperror.ErrNoSuchGame, player, node)
}

// BroadcastGameList publishes the pending games of this node.
func (that *LobbyService) BroadcastGameList(ctx context.Context) {
	list := GameList{Node: that.node, Games: that.games.Pending()}

	if err := that.publisher.Publish(ctx, TopicGames, list); err != nil {
		that.logger.Error("failed to broadcast game list", "method", "BroadcastGameList", "error", err)
	}
}

// Leave unbinds player if conn is still its connection, which triggers Disconnected.
func (that *LobbyService) Leave(player string, conn registry.Conn) {
	if !that.connections.Disconnect(player, conn) {
		that.logger.Debug("stale connection closed", "method", "Leave", "player", player, "conn", conn.ID())
	}
}

// Disconnected drops every game player owns, challenges or plays in and tells the
// remaining participant.
func (that *LobbyService) Disconnected(player string) {
	log := that.logger.With("method", "Disconnected")

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	removed := that.games.RemoveEverywhere(func(entry *registry.Entry) bool {
		return entry.Involves(player)
	})

	for _, entry := range removed {
		ownerConn, peerConn := entry.Conns()
		notice := AbandonedNotice{GameID: entry.ID(), Player: player}

		if entry.Owner() == player {
			that.notifier.deliver(entry.Challenger(), peerConn, TopicAbandoned, notice)
			continue
		}

		that.notifier.deliver(entry.Owner(), ownerConn, TopicAbandoned, notice)
	}

	if err := that.directory.UnbindPlayer(ctx, player); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("failed to clear player presence", "player", player, "error", err)
	}

	log.Info("player disconnected", "player", player, "games_removed", len(removed))

	if len(removed) > 0 {
		that.BroadcastGameList(ctx)
	}
}

func redirect(log *slog.Logger, target entity.Node, player, gameID string, conn registry.Conn) {
	url, err := target.RedirectURL(player)
	if err != nil {
		log.Error("failed to build redirect", "node", target.ID, "error", err)
		return
	}

	conn.Deliver(TopicMigrate, MigrateNotice{URL: url, Node: target.ID, GameID: gameID})
}
