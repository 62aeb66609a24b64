package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrPlayerNotFound = errors.New("player not bound to any node")
)

const nodesKey = "nodes"

// unbindScript deletes a player binding only if it still points at the calling node.
var unbindScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func nodeKey(id string) string { return "node:" + id }

func playerKey(player string) string { return "player:" + player }

// PresenceRepository is the cluster directory: which nodes are alive and which node
// each player is connected to. Node records expire unless refreshed by Heartbeat.
type PresenceRepository struct {
	logger *slog.Logger
	client *redis.Client
	self   entity.Node
	ttl    time.Duration
}

func NewPresenceRepository(logger *slog.Logger, client *redis.Client, self entity.Node, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{
		logger: logger.With("component", "presence"),
		client: client,
		self:   self,
		ttl:    ttl,
	}
}

// Register announces this node for one ttl.
func (that *PresenceRepository) Register(ctx context.Context) error {
	nodeJSON, err := json.Marshal(that.self)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, nodeKey(that.self.ID), nodeJSON, that.ttl)
		pipe.SAdd(ctx, nodesKey, that.self.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	return nil
}

func (that *PresenceRepository) Deregister(ctx context.Context) error {
	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, nodeKey(that.self.ID))
		pipe.SRem(ctx, nodesKey, that.self.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to deregister node: %w", err)
	}

	return nil
}

// Heartbeat keeps the node record alive until ctx is done, then removes it.
func (that *PresenceRepository) Heartbeat(ctx context.Context) error {
	log := that.logger.With("method", "Heartbeat")

	if err := that.Register(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(that.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			if err := that.Deregister(shutdownCtx); err != nil {
				log.Warn("failed to deregister node", "error", err)
			}

			return nil
		case <-ticker.C:
			if err := that.Register(ctx); err != nil {
				log.Error("failed to refresh node", "error", err)
			}
		}
	}
}

// KnownPeers lists the live nodes other than this one, ordered by id.
func (that *PresenceRepository) KnownPeers(ctx context.Context) ([]entity.Node, error) {
	ids, err := that.client.SMembers(ctx, nodesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	ids = slices.DeleteFunc(ids, func(id string) bool { return id == that.self.ID })
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = nodeKey(id)
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	var (
		nodes []entity.Node
		stale []any
	)

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var node entity.Node
		if err = json.Unmarshal([]byte(raw), &node); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node %s: %w", ids[i], err)
		}

		nodes = append(nodes, node)
	}

	if len(stale) > 0 {
		if err = that.client.SRem(ctx, nodesKey, stale...).Err(); err != nil {
			that.logger.Warn("failed to prune expired nodes", "method", "KnownPeers", "error", err)
		}
	}

	slices.SortFunc(nodes, func(a, b entity.Node) int { return cmp.Compare(a.ID, b.ID) })

	return nodes, nil
}

func (that *PresenceRepository) Node(ctx context.Context, id string) (entity.Node, error) {
	response, err := that.client.Get(ctx, nodeKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return entity.Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	if err != nil {
		return entity.Node{}, fmt.Errorf("failed to get node: %w", err)
	}

	var node entity.Node
	if err = json.Unmarshal([]byte(response), &node); err != nil {
		return entity.Node{}, fmt.Errorf("failed to unmarshal node: %w", err)
	}

	return node, nil
}

// BindPlayer records that player is connected to this node.
func (that *PresenceRepository) BindPlayer(ctx context.Context, player string) error {
	if err := that.client.Set(ctx, playerKey(player), that.self.ID, 0).Err(); err != nil {
		return fmt.Errorf("failed to bind player: %w", err)
	}

	return nil
}

// UnbindPlayer clears the binding unless the player has since bound elsewhere.
func (that *PresenceRepository) UnbindPlayer(ctx context.Context, player string) error {
	if err := unbindScript.Run(ctx, that.client, []string{playerKey(player)}, that.self.ID).Err(); err != nil {
		return fmt.Errorf("failed to unbind player: %w", err)
	}

	return nil
}

// ResolveGloballyConnected returns the id of the live node player is connected to.
func (that *PresenceRepository) ResolveGloballyConnected(ctx context.Context, player string) (string, error) {
	node, err := that.client.Get(ctx, playerKey(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrPlayerNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to resolve player: %w", err)
	}

	alive, err := that.client.Exists(ctx, nodeKey(node)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check node: %w", err)
	}

	if alive == 0 {
		return "", fmt.Errorf("%w: node %s is gone", ErrPlayerNotFound, node)
	}

	return node, nil
}
