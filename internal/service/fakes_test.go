package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type delivery struct {
	topic   string
	payload any
}

type recordingConn struct {
	id string

	mu         sync.Mutex
	deliveries []delivery
}

func newConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (that *recordingConn) ID() string { return that.id }

func (that *recordingConn) Deliver(topic string, payload any) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.deliveries = append(that.deliveries, delivery{topic: topic, payload: payload})
}

func (that *recordingConn) received(topic string) []any {
	that.mu.Lock()
	defer that.mu.Unlock()

	var payloads []any
	for _, item := range that.deliveries {
		if item.topic == topic {
			payloads = append(payloads, item.payload)
		}
	}

	return payloads
}

// waitFor blocks until conn got something on topic and returns the first payload.
func (that *recordingConn) waitFor(t *testing.T, topic string) any {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(that.received(topic)) > 0
	}, time.Second, 5*time.Millisecond, "nothing delivered on %s to %s", topic, that.id)

	return that.received(topic)[0]
}

type mockPublisher struct {
	mock.Mock
}

func newMockPublisher() *mockPublisher {
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return publisher
}

func (that *mockPublisher) Publish(ctx context.Context, topic string, payload any) error {
	args := that.Called(ctx, topic, payload)
	return args.Error(0)
}

type mockDirectory struct {
	mock.Mock
}

func (that *mockDirectory) KnownPeers(ctx context.Context) ([]entity.Node, error) {
	args := that.Called(ctx)
	nodes, _ := args.Get(0).([]entity.Node)

	return nodes, args.Error(1)
}

func (that *mockDirectory) Node(ctx context.Context, id string) (entity.Node, error) {
	args := that.Called(ctx, id)
	return args.Get(0).(entity.Node), args.Error(1)
}

func (that *mockDirectory) BindPlayer(ctx context.Context, player string) error {
	args := that.Called(ctx, player)
	return args.Error(0)
}

func (that *mockDirectory) UnbindPlayer(ctx context.Context, player string) error {
	args := that.Called(ctx, player)
	return args.Error(0)
}

func (that *mockDirectory) ResolveGloballyConnected(ctx context.Context, player string) (string, error) {
	args := that.Called(ctx, player)
	return args.String(0), args.Error(1)
}

type peerCall struct {
	node     string
	endpoint string
	payload  any
}

// stubPeers completes every call asynchronously with whatever handler returns.
type stubPeers struct {
	handler func(endpoint string, payload, reply any) error

	mu    sync.Mutex
	calls []peerCall
}

func (that *stubPeers) Call(_ context.Context, node, endpoint string, payload, reply any) <-chan error {
	that.mu.Lock()
	that.calls = append(that.calls, peerCall{node: node, endpoint: endpoint, payload: payload})
	that.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		result <- that.handler(endpoint, payload, reply)
	}()

	return result
}

func (that *stubPeers) recorded() []peerCall {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]peerCall(nil), that.calls...)
}

// startGame puts a live game between owner and opponent straight into games.
func startGame(t *testing.T, games *registry.Games, owner string, ownerConn registry.Conn, opponent string, opponentConn registry.Conn) string {
	t.Helper()

	game := games.CreatePending(owner, ownerConn)
	_, err := games.Transition(game.ID, registry.PhasePending, registry.PhaseLive, nil, func(entry *registry.Entry) {
		entry.Attach(opponent, opponentConn)
		entry.BindOpponent()
	})
	require.NoError(t, err)

	return game.ID
}

func register(t *testing.T, connections *registry.Connections, player string) *recordingConn {
	t.Helper()

	conn := newConn(player + "-conn")
	_, err := connections.Register(player, conn)
	require.NoError(t, err)

	return conn
}
