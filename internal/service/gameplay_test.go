package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

type gameplayFixture struct {
	gameplay  *GamePlayService
	games     *registry.Games
	publisher *mockPublisher
	aliceConn *recordingConn
	bobConn   *recordingConn
	gameID    string
}

func newGameplayFixture(t *testing.T) *gameplayFixture {
	t.Helper()

	connections := registry.NewConnections()
	games := registry.NewGames("node-a")
	publisher := newMockPublisher()

	aliceConn := register(t, connections, "alice")
	bobConn := register(t, connections, "bob")

	return &gameplayFixture{
		gameplay:  NewGamePlayService(testLogger, connections, games, publisher),
		games:     games,
		publisher: publisher,
		aliceConn: aliceConn,
		bobConn:   bobConn,
		gameID:    startGame(t, games, "alice", aliceConn, "bob", bobConn),
	}
}

func (that *gameplayFixture) play(t *testing.T, squares ...int) *entity.Game {
	t.Helper()

	var game *entity.Game
	for i, square := range squares {
		player := "alice"
		if i%2 == 1 {
			player = "bob"
		}

		var err error
		game, err = that.gameplay.SubmitMove(context.Background(), player, that.gameID, square)
		require.NoError(t, err)
	}

	return game
}

func TestGamePlayService_SubmitMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Move is relayed to the other participant only", func(t *testing.T) {
		// Given: a fresh live game
		fixture := newGameplayFixture(t)

		// When: alice opens in the centre
		game, err := fixture.gameplay.SubmitMove(ctx, "alice", fixture.gameID, 4)

		// Then: bob gets the move and it is published cluster-wide
		require.NoError(t, err)
		move := entity.Move{GameID: fixture.gameID, Square: 4, Sequence: 0}
		assert.Equal(t, []entity.Move{move}, game.Moves)
		assert.Equal(t, move, fixture.bobConn.waitFor(t, TopicMove))
		assert.Empty(t, fixture.aliceConn.received(TopicMove))
		fixture.publisher.AssertCalled(t, "Publish", mock.Anything, TopicMoves, move)
	})

	t.Run("Out of turn is invalid", func(t *testing.T) {
		fixture := newGameplayFixture(t)

		_, err := fixture.gameplay.SubmitMove(ctx, "bob", fixture.gameID, 0)

		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		assert.Empty(t, fixture.aliceConn.received(TopicMove))
	})

	t.Run("Occupied square is invalid and leaves the game unchanged", func(t *testing.T) {
		// Given: alice holds square 4
		fixture := newGameplayFixture(t)
		fixture.play(t, 4)

		// When: bob tries the same square
		_, err := fixture.gameplay.SubmitMove(ctx, "bob", fixture.gameID, 4)

		// Then: the move is refused and nothing is relayed
		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		entry, ok := fixture.games.Live(fixture.gameID)
		require.True(t, ok)
		assert.Len(t, entry.Snapshot().Moves, 1)
		assert.Empty(t, fixture.aliceConn.received(TopicMove))
	})

	t.Run("Outsider cannot move", func(t *testing.T) {
		fixture := newGameplayFixture(t)

		_, err := fixture.gameplay.SubmitMove(ctx, "mallory", fixture.gameID, 0)

		require.ErrorIs(t, err, apperror.ErrInvalidMove)
	})

	t.Run("Unknown game", func(t *testing.T) {
		fixture := newGameplayFixture(t)

		_, err := fixture.gameplay.SubmitMove(ctx, "alice", "node-a_99", 0)

		require.ErrorIs(t, err, apperror.ErrNoSuchGame)
	})

	t.Run("Winning move announces the result and retires the game", func(t *testing.T) {
		// Given: alice is one move away from the top row
		fixture := newGameplayFixture(t)
		fixture.play(t, 0, 3, 1, 4)

		// When: she completes it
		game, err := fixture.gameplay.SubmitMove(ctx, "alice", fixture.gameID, 2)

		// Then: both players get the result and the game leaves the registry
		require.NoError(t, err)
		assert.True(t, game.Complete)
		assert.Equal(t, "alice", game.Winner)

		for _, conn := range []*recordingConn{fixture.aliceConn, fixture.bobConn} {
			result := conn.waitFor(t, TopicResult).(*entity.Game)
			assert.Equal(t, "alice", result.Winner)
		}

		fixture.publisher.AssertCalled(t, "Publish", mock.Anything, TopicResults, game)
		_, _, ok := fixture.games.Lookup(fixture.gameID)
		assert.False(t, ok)

		_, err = fixture.gameplay.SubmitMove(ctx, "bob", fixture.gameID, 8)
		require.ErrorIs(t, err, apperror.ErrNoSuchGame)
	})

	t.Run("Draw completes without a winner", func(t *testing.T) {
		fixture := newGameplayFixture(t)

		game := fixture.play(t, 0, 1, 2, 4, 3, 5, 7, 6, 8)

		assert.True(t, game.Complete)
		assert.Empty(t, game.Winner)
		assert.Len(t, game.Moves, entity.BoardSize)
	})

	t.Run("Racing moves for the same turn admit exactly one", func(t *testing.T) {
		// Given: a fresh game
		fixture := newGameplayFixture(t)

		// When: alice fires at every square concurrently
		var (
			accepted atomic.Int32
			wg       sync.WaitGroup
		)
		for square := 0; square < entity.BoardSize; square++ {
			wg.Add(1)
			go func(square int) {
				defer wg.Done()

				if _, err := fixture.gameplay.SubmitMove(ctx, "alice", fixture.gameID, square); err == nil {
					accepted.Add(1)
				}
			}(square)
		}
		wg.Wait()

		// Then: only one of them landed
		assert.Equal(t, int32(1), accepted.Load())
		entry, ok := fixture.games.Live(fixture.gameID)
		require.True(t, ok)
		assert.Len(t, entry.Snapshot().Moves, 1)
	})
}
