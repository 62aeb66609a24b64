package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/testing/suite"
)

var (
	nodeA = entity.Node{ID: "node-a", PeerAddr: "10.0.0.1:9090", PublicURL: "http://node-a.local:8080/"}
	nodeB = entity.Node{ID: "node-b", PeerAddr: "10.0.0.2:9090", PublicURL: "http://node-b.local:8080/"}
	nodeC = entity.Node{ID: "node-c", PeerAddr: "10.0.0.3:9090", PublicURL: "http://node-c.local:8080/"}
)

func TestPresenceRepository_KnownPeers(t *testing.T) {
	t.Run("Lists live peers sorted, without itself", func(t *testing.T) {
		ctx, st := suite.New(t)

		// Given: three registered nodes
		presence := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)
		for _, node := range []entity.Node{nodeC, nodeA, nodeB} {
			require.NoError(t, NewPresenceRepository(st.Logger, st.NewClient(), node, time.Minute).Register(ctx))
		}

		// When: node-a asks for its peers
		peers, err := presence.KnownPeers(ctx)

		// Then: the others come back ordered by id
		require.NoError(t, err)
		assert.Equal(t, []entity.Node{nodeB, nodeC}, peers)
	})

	t.Run("Expired nodes are dropped", func(t *testing.T) {
		ctx, st := suite.New(t)

		presence := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)
		require.NoError(t, NewPresenceRepository(st.Logger, st.Storage, nodeB, time.Second).Register(ctx))

		require.Eventually(t, func() bool {
			peers, err := presence.KnownPeers(ctx)
			return err == nil && len(peers) == 0
		}, 5*time.Second, 100*time.Millisecond)

		members, err := st.Storage.SMembers(ctx, nodesKey).Result()
		require.NoError(t, err)
		assert.NotContains(t, members, nodeB.ID)
	})

	t.Run("Deregistered nodes are gone", func(t *testing.T) {
		ctx, st := suite.New(t)

		presence := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)
		peer := NewPresenceRepository(st.Logger, st.Storage, nodeB, time.Minute)
		require.NoError(t, peer.Register(ctx))
		require.NoError(t, peer.Deregister(ctx))

		peers, err := presence.KnownPeers(ctx)

		require.NoError(t, err)
		assert.Empty(t, peers)
	})
}

func TestPresenceRepository_Node(t *testing.T) {
	ctx, st := suite.New(t)
	presence := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)
	require.NoError(t, presence.Register(ctx))

	node, err := presence.Node(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, nodeA, node)

	_, err = presence.Node(ctx, "node-z")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestPresenceRepository_Players(t *testing.T) {
	t.Run("Binding resolves to the live node", func(t *testing.T) {
		ctx, st := suite.New(t)

		// Given: alice connected to node-b
		onB := NewPresenceRepository(st.Logger, st.Storage, nodeB, time.Minute)
		require.NoError(t, onB.Register(ctx))
		require.NoError(t, onB.BindPlayer(ctx, "alice"))

		// When: node-a looks her up
		node, err := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute).ResolveGloballyConnected(ctx, "alice")

		// Then: node-b is reported
		require.NoError(t, err)
		assert.Equal(t, "node-b", node)
	})

	t.Run("Stale unbind does not clear a newer binding", func(t *testing.T) {
		ctx, st := suite.New(t)

		// Given: alice moved from node-a to node-b
		onA := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)
		onB := NewPresenceRepository(st.Logger, st.Storage, nodeB, time.Minute)
		require.NoError(t, onB.Register(ctx))
		require.NoError(t, onA.BindPlayer(ctx, "alice"))
		require.NoError(t, onB.BindPlayer(ctx, "alice"))

		// When: node-a notices her old connection closing
		require.NoError(t, onA.UnbindPlayer(ctx, "alice"))

		// Then: she is still on node-b
		node, err := onA.ResolveGloballyConnected(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "node-b", node)

		// And: node-b's own unbind clears it
		require.NoError(t, onB.UnbindPlayer(ctx, "alice"))
		_, err = onA.ResolveGloballyConnected(ctx, "alice")
		require.ErrorIs(t, err, ErrPlayerNotFound)
	})

	t.Run("Binding to a dead node is not reported", func(t *testing.T) {
		ctx, st := suite.New(t)

		onB := NewPresenceRepository(st.Logger, st.Storage, nodeB, time.Minute)
		require.NoError(t, onB.BindPlayer(ctx, "carol"))

		_, err := onB.ResolveGloballyConnected(ctx, "carol")

		require.ErrorIs(t, err, ErrPlayerNotFound)
	})
}

func TestPresenceRepository_Heartbeat(t *testing.T) {
	ctx, st := suite.New(t)

	// Given: node-b heartbeating with a short ttl
	presence := NewPresenceRepository(st.Logger, st.Storage, nodeB, 900*time.Millisecond)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- presence.Heartbeat(heartbeatCtx) }()

	observer := NewPresenceRepository(st.Logger, st.Storage, nodeA, time.Minute)

	// When: more than one ttl passes
	time.Sleep(2 * time.Second)

	// Then: it is still listed
	peers, err := observer.KnownPeers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.Node{nodeB}, peers)

	// And: stopping the heartbeat removes it
	cancel()
	require.NoError(t, <-done)

	peers, err = observer.KnownPeers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)
}
