package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Resolver maps a node id to its peer address.
type Resolver interface {
	Node(ctx context.Context, id string) (entity.Node, error)
}

// Client calls endpoints on other nodes. Connections are opened lazily and kept
// per peer address.
type Client struct {
	logger   *slog.Logger
	resolver Resolver

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewClient(logger *slog.Logger, resolver Resolver) *Client {
	return &Client{
		logger:   logger.With("component", "peer_client"),
		resolver: resolver,
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// Call runs the call on its own goroutine. The channel yields exactly once; on nil
// the response has been decoded into reply.
func (that *Client) Call(ctx context.Context, node, endpoint string, payload, reply any) <-chan error {
	result := make(chan error, 1)

	go func() {
		result <- that.call(ctx, node, endpoint, payload, reply)
	}()

	return result
}

func (that *Client) call(ctx context.Context, node, endpoint string, payload, reply any) error {
	target, err := that.resolver.Node(ctx, node)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", apperror.ErrPeerCallFailed, node, err)
	}

	conn, err := that.conn(target.PeerAddr)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrPeerCallFailed, err)
	}

	body, err := marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrPeerCallFailed, err)
	}

	out := new(envelope)
	if err = conn.Invoke(ctx, callMethod, &envelope{Endpoint: endpoint, Payload: body}, out); err != nil {
		that.logger.Debug("peer call failed", "method", "call", "node", node, "endpoint", endpoint, "error", err)
		return fromStatus(err)
	}

	if reply == nil {
		return nil
	}

	if err = unmarshal(out.Payload, reply); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrPeerCallFailed, err)
	}

	return nil
}

func (that *Client) conn(addr string) (*grpc.ClientConn, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if conn, ok := that.conns[addr]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	that.conns[addr] = conn

	return conn, nil
}

func (that *Client) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	var firstErr error
	for addr, conn := range that.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
		delete(that.conns, addr)
	}

	return firstErr
}
