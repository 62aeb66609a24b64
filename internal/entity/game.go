package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
)

const (
	BoardSize = 9

	MarkOwner    = "X"
	MarkOpponent = "O"

	noParity = -1
)

// WinCombos lists the winning triples in evaluation order: rows, columns, diagonals.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Move is a single placement. Sequence is the 0-based insertion order; its parity names the mover.
type Move struct {
	GameID   string `json:"gameId"`
	Square   int    `json:"square"`
	Sequence int    `json:"sequence"`
}

func (that Move) String() string {
	mark := MarkOwner
	if that.Sequence%2 == 1 {
		mark = MarkOpponent
	}

	return fmt.Sprintf("#%s[%d=%s]", that.GameID, that.Square, mark)
}

// Game is the board engine. It is not safe for concurrent use; the registry entry
// holding it serializes access.
type Game struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Opponent string `json:"opponent,omitempty"`
	Winner   string `json:"winner,omitempty"`
	Moves    []Move `json:"moves"`
	Complete bool   `json:"complete"`
}

func NewGame(id, owner string) *Game {
	return &Game{
		ID:    id,
		Owner: owner,
		Moves: []Move{},
	}
}

// ApplyMove appends a move for square unless the square is off the board,
// already occupied, or the game is terminal.
func (that *Game) ApplyMove(square int) bool {
	if square < 0 || square >= BoardSize {
		return false
	}

	if that.terminal() {
		return false
	}

	for _, move := range that.Moves {
		if move.Square == square {
			return false
		}
	}

	that.Moves = append(that.Moves, Move{
		GameID:   that.ID,
		Square:   square,
		Sequence: len(that.Moves),
	})

	return true
}

// IsComplete evaluates the board, records the winner if any and reports whether
// the game is terminal.
func (that *Game) IsComplete() bool {
	if parity, won := that.result(); won {
		that.Winner = that.playerFor(parity)
		that.Complete = true
		return true
	}

	if len(that.Moves) == BoardSize {
		that.Winner = ""
		that.Complete = true
		return true
	}

	return false
}

func (that *Game) terminal() bool {
	if that.Complete || len(that.Moves) >= BoardSize {
		return true
	}

	_, won := that.result()
	return won
}

func (that *Game) result() (int, bool) {
	board := that.parities()

	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != noParity && a == b && b == c {
			return a, true
		}
	}

	return noParity, false
}

func (that *Game) parities() [BoardSize]int {
	var board [BoardSize]int
	for i := range board {
		board[i] = noParity
	}

	for _, move := range that.Moves {
		board[move.Square] = move.Sequence % 2
	}

	return board
}

func (that *Game) playerFor(parity int) string {
	if parity == 0 {
		return that.Owner
	}
	return that.Opponent
}

// Board renders the square -> mover identity view of the moves.
func (that *Game) Board() [BoardSize]string {
	var board [BoardSize]string
	for _, move := range that.Moves {
		board[move.Square] = that.playerFor(move.Sequence % 2)
	}

	return board
}

// NextMover is the identity expected to place the next move.
func (that *Game) NextMover() string {
	return that.playerFor(len(that.Moves) % 2)
}

func (that *Game) IsParticipant(player string) bool {
	return player != "" && (player == that.Owner || player == that.Opponent)
}

// OtherPlayer returns the participant that is not player.
func (that *Game) OtherPlayer(player string) string {
	if player == that.Owner {
		return that.Opponent
	}
	return that.Owner
}

// Snapshot returns a deep copy that can leave the owning goroutine.
func (that *Game) Snapshot() *Game {
	snapshot := *that
	snapshot.Moves = make([]Move, len(that.Moves))
	copy(snapshot.Moves, that.Moves)

	return &snapshot
}

// Validate checks a game received from outside (a peer hand-off) against the board invariants.
func (that *Game) Validate() error {
	if that.ID == "" || that.Owner == "" {
		return fmt.Errorf("%w: game id and owner are required", apperror.ErrMalformedInput)
	}

	if len(that.Moves) > BoardSize {
		return fmt.Errorf("%w: %d moves", apperror.ErrMalformedInput, len(that.Moves))
	}

	seen := make(map[int]bool, len(that.Moves))
	for i, move := range that.Moves {
		if move.Sequence != i {
			return fmt.Errorf("%w: move %d has sequence %d", apperror.ErrMalformedInput, i, move.Sequence)
		}

		if move.Square < 0 || move.Square >= BoardSize || seen[move.Square] {
			return fmt.Errorf("%w: square %d", apperror.ErrMalformedInput, move.Square)
		}

		seen[move.Square] = true
	}

	if len(that.Moves) > 0 && that.Opponent == "" {
		return fmt.Errorf("%w: moves without an opponent", apperror.ErrMalformedInput)
	}

	return nil
}

func (that *Game) String() string {
	moves := make([]string, 0, len(that.Moves))
	for _, move := range that.Moves {
		moves = append(moves, move.String())
	}

	return fmt.Sprintf("Game[<#%s>%s|%s=>%s][%s]", that.ID, that.Owner, that.Opponent, that.Winner, strings.Join(moves, ","))
}
