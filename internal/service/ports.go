package service

import (
	"context"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Cluster-wide broadcast topics.
const (
	TopicGames   = "/games"
	TopicMoves   = "/games/move"
	TopicResults = "/games/result"
)

// Point to point topics, delivered to a single player's connection.
const (
	TopicChallenge = "/service/games/challenge"
	TopicMove      = "/service/games/move"
	TopicResult    = "/service/games/result"
	TopicMigrate   = "/service/games/migrate"
	TopicAbandoned = "/service/games/abandoned"
	TopicError     = "/service/games/error"
)

// Peer endpoints served by every node.
const (
	EndpointNewGame   = "/games/new"
	EndpointMove      = "/games/move"
	EndpointAdoptGame = "/games/migrate/game"
	EndpointDropGame  = "/games/migrate/drop"
)

// Publisher fans a payload out to every subscriber of topic in the cluster.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Directory is the cluster membership view.
type Directory interface {
	KnownPeers(ctx context.Context) ([]entity.Node, error)
	Node(ctx context.Context, id string) (entity.Node, error)
	BindPlayer(ctx context.Context, player string) error
	UnbindPlayer(ctx context.Context, player string) error
	ResolveGloballyConnected(ctx context.Context, player string) (string, error)
}

// PeerCaller invokes an endpoint on another node without blocking. The returned
// channel yields exactly one value once the call completes; on nil the reply has
// been decoded into reply.
type PeerCaller interface {
	Call(ctx context.Context, node, endpoint string, payload, reply any) <-chan error
}
