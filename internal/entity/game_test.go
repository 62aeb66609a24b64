package entity

import (
	"testing"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playMoves(t *testing.T, game *Game, squares ...int) {
	t.Helper()

	for _, square := range squares {
		require.True(t, game.ApplyMove(square), "square %d should be accepted", square)
	}
}

func TestGame_ApplyMove(t *testing.T) {
	t.Run("Successful move gets the next sequence", func(t *testing.T) {
		// Given: a new game
		game := NewGame("node1_1", "alice")

		// When: two moves are applied
		playMoves(t, game, 4, 0)

		// Then: moves are recorded in insertion order
		expectedMoves := []Move{
			{GameID: "node1_1", Square: 4, Sequence: 0},
			{GameID: "node1_1", Square: 0, Sequence: 1},
		}
		require.Equal(t, expectedMoves, game.Moves)
	})

	t.Run("Occupied square is rejected and leaves moves unchanged", func(t *testing.T) {
		// Given: a game where square 4 is taken
		game := NewGame("node1_1", "alice")
		playMoves(t, game, 4)
		before := game.Snapshot()

		// When: the same square is played again
		accepted := game.ApplyMove(4)

		// Then: the move is rejected and nothing changes
		assert.False(t, accepted)
		assert.Equal(t, before, game)
	})

	t.Run("Square outside the board is rejected", func(t *testing.T) {
		game := NewGame("node1_1", "alice")

		assert.False(t, game.ApplyMove(-1))
		assert.False(t, game.ApplyMove(9))
		assert.Empty(t, game.Moves)
	})

	t.Run("Terminal game accepts no further moves", func(t *testing.T) {
		// Given: a game the owner has already won
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 0, 3, 1, 4, 2)

		// When: the opponent tries to keep playing
		accepted := game.ApplyMove(5)

		// Then: the move is rejected
		assert.False(t, accepted)
		assert.Len(t, game.Moves, 5)
	})
}

func TestGame_IsComplete(t *testing.T) {
	t.Run("Owner sweeps the top row", func(t *testing.T) {
		// Given: moves at squares 0,3,1,4,2
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 0, 3, 1, 4, 2)

		// When: evaluating the board
		complete := game.IsComplete()

		// Then: the owner wins
		assert.True(t, complete)
		assert.True(t, game.Complete)
		assert.Equal(t, "alice", game.Winner)
	})

	t.Run("Opponent sweeps the middle row", func(t *testing.T) {
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 0, 3, 1, 4, 8, 5)

		assert.True(t, game.IsComplete())
		assert.Equal(t, "bob", game.Winner)
	})

	t.Run("Three moves without a line are not terminal", func(t *testing.T) {
		// Given: moves at squares 4,0,6
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 4, 0, 6)

		// When: evaluating the board
		complete := game.IsComplete()

		// Then: the game continues, owner holds 4 and 6, opponent holds 0
		assert.False(t, complete)
		assert.Empty(t, game.Winner)
		board := game.Board()
		assert.Equal(t, "alice", board[4])
		assert.Equal(t, "alice", board[6])
		assert.Equal(t, "bob", board[0])
	})

	t.Run("Full board without a line is a draw", func(t *testing.T) {
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 0, 1, 2, 4, 3, 5, 7, 6, 8)

		assert.True(t, game.IsComplete())
		assert.Empty(t, game.Winner)
	})
}

func permutations(squares []int, visit func([]int)) {
	var generate func(k int)
	generate = func(k int) {
		if k == 1 {
			visit(squares)
			return
		}

		generate(k - 1)
		for i := 0; i < k-1; i++ {
			if k%2 == 0 {
				squares[i], squares[k-1] = squares[k-1], squares[i]
			} else {
				squares[0], squares[k-1] = squares[k-1], squares[0]
			}
			generate(k - 1)
		}
	}

	generate(len(squares))
}

func sweeps(squares map[int]bool) bool {
	for _, combo := range WinCombos {
		if squares[combo[0]] && squares[combo[1]] && squares[combo[2]] {
			return true
		}
	}
	return false
}

func TestGame_EveryMoveSequenceTerminates(t *testing.T) {
	permutations([]int{0, 1, 2, 3, 4, 5, 6, 7, 8}, func(order []int) {
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"

		owner := map[int]bool{}
		opponent := map[int]bool{}

		for i, square := range order {
			require.True(t, game.ApplyMove(square))
			if i%2 == 0 {
				owner[square] = true
			} else {
				opponent[square] = true
			}

			if game.IsComplete() {
				break
			}
		}

		require.True(t, game.IsComplete(), "sequence %v", order)

		switch {
		case sweeps(owner):
			require.Equal(t, "alice", game.Winner, "sequence %v", order)
			require.False(t, sweeps(opponent))
		case sweeps(opponent):
			require.Equal(t, "bob", game.Winner, "sequence %v", order)
		default:
			require.Empty(t, game.Winner, "sequence %v", order)
			require.Len(t, game.Moves, BoardSize)
		}

		for square := 0; square < BoardSize; square++ {
			require.False(t, game.ApplyMove(square))
		}
	})
}

func TestGame_NextMoverAndOtherPlayer(t *testing.T) {
	game := NewGame("node1_1", "alice")
	game.Opponent = "bob"

	assert.Equal(t, "alice", game.NextMover())
	playMoves(t, game, 4)
	assert.Equal(t, "bob", game.NextMover())

	assert.Equal(t, "bob", game.OtherPlayer("alice"))
	assert.Equal(t, "alice", game.OtherPlayer("bob"))
	assert.True(t, game.IsParticipant("bob"))
	assert.False(t, game.IsParticipant("carol"))
	assert.False(t, game.IsParticipant(""))
}

func TestGame_Snapshot(t *testing.T) {
	// Given: a game with one move
	game := NewGame("node1_1", "alice")
	game.Opponent = "bob"
	playMoves(t, game, 4)

	// When: the original keeps changing after a snapshot
	snapshot := game.Snapshot()
	playMoves(t, game, 0)

	// Then: the snapshot is unaffected
	assert.Len(t, snapshot.Moves, 1)
	assert.Len(t, game.Moves, 2)
}

func TestGame_Validate(t *testing.T) {
	t.Run("Valid game", func(t *testing.T) {
		game := NewGame("node1_1", "alice")
		game.Opponent = "bob"
		playMoves(t, game, 4, 0, 6)

		require.NoError(t, game.Validate())
	})

	t.Run("Sequence gap", func(t *testing.T) {
		game := &Game{ID: "node1_1", Owner: "alice", Opponent: "bob", Moves: []Move{
			{GameID: "node1_1", Square: 4, Sequence: 0},
			{GameID: "node1_1", Square: 0, Sequence: 2},
		}}

		assert.ErrorIs(t, game.Validate(), apperror.ErrMalformedInput)
	})

	t.Run("Duplicate square", func(t *testing.T) {
		game := &Game{ID: "node1_1", Owner: "alice", Opponent: "bob", Moves: []Move{
			{GameID: "node1_1", Square: 4, Sequence: 0},
			{GameID: "node1_1", Square: 4, Sequence: 1},
		}}

		assert.ErrorIs(t, game.Validate(), apperror.ErrMalformedInput)
	})

	t.Run("Missing owner", func(t *testing.T) {
		game := &Game{ID: "node1_1"}

		assert.ErrorIs(t, game.Validate(), apperror.ErrMalformedInput)
	})
}

func TestMove_String(t *testing.T) {
	assert.Equal(t, "#node1_1[4=X]", Move{GameID: "node1_1", Square: 4, Sequence: 0}.String())
	assert.Equal(t, "#node1_1[0=O]", Move{GameID: "node1_1", Square: 0, Sequence: 1}.String())
}
