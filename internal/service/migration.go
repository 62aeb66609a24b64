package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

// MigrationService moves this node's traffic and live games onto a peer.
type MigrationService struct {
	logger      *slog.Logger
	node        string
	callTimeout time.Duration

	games     *registry.Games
	notifier  *notifier
	directory Directory
	peers     PeerCaller

	mu     sync.RWMutex
	target *entity.Node
}

func NewMigrationService(logger *slog.Logger, node string, callTimeout time.Duration, connections *registry.Connections, games *registry.Games, directory Directory, peers PeerCaller) *MigrationService {
	return &MigrationService{
		logger:      logger.With("component", "migration"),
		node:        node,
		callTimeout: callTimeout,

		games:     games,
		notifier:  &notifier{logger: logger, connections: connections},
		directory: directory,
		peers:     peers,
	}
}

// Target returns the elected peer while a migration is in progress.
func (that *MigrationService) Target() (entity.Node, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	if that.target == nil {
		return entity.Node{}, false
	}

	return *that.target, true
}

// Begin elects the first known peer by id as target and starts handing off every
// live game in the background.
func (that *MigrationService) Begin(ctx context.Context) (entity.Node, error) {
	log := that.logger.With("method", "Begin")

	nodes, err := that.directory.KnownPeers(ctx)
	if err != nil {
		return entity.Node{}, fmt.Errorf("%w: %w", apperror.ErrMigrationUnavailable, err)
	}

	nodes = slices.DeleteFunc(nodes, func(node entity.Node) bool { return node.ID == that.node })
	if len(nodes) == 0 {
		return entity.Node{}, apperror.ErrMigrationUnavailable
	}

	slices.SortFunc(nodes, func(a, b entity.Node) int { return cmp.Compare(a.ID, b.ID) })
	target := nodes[0]

	that.mu.Lock()
	that.target = &target
	that.mu.Unlock()

	log.Info("migration started", "target", target.ID, "live_games", that.games.Counts()[registry.PhaseLive])

	that.HandOffAll()

	return target, nil
}

// End stops forwarding; the node serves locally again.
func (that *MigrationService) End() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.target != nil {
		that.logger.Info("migration ended", "method", "End", "target", that.target.ID)
	}

	that.target = nil
}

func (that *MigrationService) HandOffAll() {
	for _, entry := range that.games.LiveEntries() {
		that.HandOff(entry)
	}
}

// HandOffGame hands off gameID if it is live here.
func (that *MigrationService) HandOffGame(gameID string) {
	if entry, ok := that.games.Live(gameID); ok {
		that.HandOff(entry)
	}
}

// HandOff ships a live game to the target. On success the game leaves this node and
// both players are redirected; on failure it stays exactly as it was. The returned
// channel yields the outcome.
func (that *MigrationService) HandOff(entry *registry.Entry) <-chan error {
	log := that.logger.With("method", "HandOff")
	outcome := make(chan error, 1)

	target, ok := that.Target()
	if !ok {
		outcome <- apperror.ErrMigrationUnavailable
		return outcome
	}

	snapshot, ok := entry.BeginHandOff()
	if !ok {
		outcome <- nil
		return outcome
	}

	ctx, cancel := context.WithTimeout(context.Background(), that.callTimeout)

	var reply AdoptReply
	result := that.peers.Call(ctx, target.ID, EndpointAdoptGame, snapshot, &reply)

	go func() {
		defer cancel()

		if err := <-result; err != nil {
			entry.AbortHandOff()
			log.Error("failed to hand off game", "game", snapshot.ID, "target", target.ID, "error", err)
			outcome <- fmt.Errorf("failed to hand off %s: %w", snapshot.ID, err)
			return
		}

		if _, err := that.games.Take(snapshot.ID, registry.PhaseLive, func(candidate *registry.Entry) bool {
			return candidate == entry
		}); err != nil {
			// a player left while the game was in flight; the target must not keep it
			log.Warn("handed off game was removed meanwhile, withdrawing it", "game", snapshot.ID, "target", target.ID)
			outcome <- that.withdraw(target, snapshot.ID)
			return
		}

		ownerConn, peerConn := entry.Conns()
		that.redirect(target, snapshot.Owner, ownerConn, snapshot.ID)
		that.redirect(target, snapshot.Opponent, peerConn, snapshot.ID)

		log.Info("game handed off", "game", snapshot.ID, "target", target.ID, "moves", len(snapshot.Moves))

		outcome <- nil
	}()

	return outcome
}

func (that *MigrationService) withdraw(target entity.Node, gameID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), that.callTimeout)
	defer cancel()

	var reply AdoptReply
	if err := <-that.peers.Call(ctx, target.ID, EndpointDropGame, DropRequest{GameID: gameID}, &reply); err != nil {
		that.logger.Error("failed to withdraw game", "method", "withdraw", "game", gameID, "target", target.ID, "error", err)
		return fmt.Errorf("failed to withdraw %s: %w", gameID, err)
	}

	return fmt.Errorf("failed to hand off %s: %w: removed during hand-off", gameID, apperror.ErrNoSuchGame)
}

// ForwardNewGame creates the game on the target on behalf of player. done receives
// the peer's game; conn is then redirected to the target.
func (that *MigrationService) ForwardNewGame(player string, conn registry.Conn, done func(*entity.Game, error)) error {
	return that.forward(player, conn, EndpointNewGame, NewGameRequest{Player: player}, done)
}

// ForwardMove submits a move on the target for a game this node does not hold.
func (that *MigrationService) ForwardMove(player string, conn registry.Conn, gameID string, square int, done func(*entity.Game, error)) error {
	return that.forward(player, conn, EndpointMove, MoveRequest{Player: player, GameID: gameID, Square: square}, done)
}

func (that *MigrationService) forward(player string, conn registry.Conn, endpoint string, payload any, done func(*entity.Game, error)) error {
	log := that.logger.With("method", "forward")

	target, ok := that.Target()
	if !ok {
		return apperror.ErrMigrationUnavailable
	}

	ctx, cancel := context.WithTimeout(context.Background(), that.callTimeout)

	var game entity.Game
	result := that.peers.Call(ctx, target.ID, endpoint, payload, &game)

	go func() {
		defer cancel()

		if err := <-result; err != nil {
			log.Warn("forwarded call failed", "endpoint", endpoint, "target", target.ID, "player", player, "error", err)
			done(nil, fmt.Errorf("failed to forward %s: %w", endpoint, err))
			return
		}

		done(&game, nil)

		if conn != nil {
			redirect(log, target, player, game.ID, conn)
		}
	}()

	return nil
}

// Adopt accepts a live game handed off by a peer. Adopting the same game twice
// leaves a single copy.
func (that *MigrationService) Adopt(game *entity.Game) error {
	if err := game.Validate(); err != nil {
		return fmt.Errorf("failed to adopt game: %w", err)
	}

	if game.Opponent == "" {
		return fmt.Errorf("failed to adopt game: %w: %s has no opponent", apperror.ErrMalformedInput, game.ID)
	}

	that.games.Adopt(game)

	that.logger.Info("game adopted", "method", "Adopt", "game", game.ID, "moves", len(game.Moves))

	return nil
}

// Drop removes an adopted game again. A game that is already gone is not an error.
func (that *MigrationService) Drop(gameID string) {
	if _, err := that.games.Take(gameID, registry.PhaseLive, nil); err != nil {
		that.logger.Debug("nothing to drop", "method", "Drop", "game", gameID)
		return
	}

	that.logger.Info("adopted game dropped", "method", "Drop", "game", gameID)
}

func (that *MigrationService) redirect(target entity.Node, player string, fallback registry.Conn, gameID string) {
	url, err := target.RedirectURL(player)
	if err != nil {
		that.logger.Error("failed to build redirect", "node", target.ID, "error", err)
		return
	}

	that.notifier.deliver(player, fallback, TopicMigrate, MigrateNotice{URL: url, Node: target.ID, GameID: gameID})
}
