package registry

import (
	"sync"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Conn is a connection handle owned by the transport. The registries only borrow it.
type Conn interface {
	ID() string
	Deliver(topic string, payload any)
}

type Phase int

const (
	PhasePending Phase = iota
	PhaseChallenged
	PhaseLive
)

func (that Phase) String() string {
	switch that {
	case PhasePending:
		return "pending"
	case PhaseChallenged:
		return "challenged"
	case PhaseLive:
		return "live"
	default:
		return "unknown"
	}
}

// Entry pairs a game with the connections of its participants. The bucket it sits
// in is its phase: pending (owner only), challenged (owner + challenger) or live
// (owner + opponent).
type Entry struct {
	id    string
	owner string

	mu         sync.Mutex
	game       *entity.Game
	ownerConn  Conn
	peerConn   Conn
	challenger string
	handingOff bool
}

func newEntry(game *entity.Game, ownerConn Conn) *Entry {
	return &Entry{
		id:        game.ID,
		owner:     game.Owner,
		game:      game,
		ownerConn: ownerConn,
	}
}

func (that *Entry) ID() string { return that.id }

func (that *Entry) Owner() string { return that.owner }

func (that *Entry) Challenger() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.challenger
}

// Opponent is the bound opponent of a live game, empty before acceptance.
func (that *Entry) Opponent() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Opponent
}

// Conns returns the owner's connection and the challenger's or opponent's connection.
// Either may be nil for games created on behalf of a player connected elsewhere.
func (that *Entry) Conns() (Conn, Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.ownerConn, that.peerConn
}

// Involves reports whether player owns, challenges or plays in the game.
func (that *Entry) Involves(player string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return player == that.owner || player == that.challenger || player == that.game.Opponent
}

func (that *Entry) Snapshot() *entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Snapshot()
}

// Attach records the challenger of a pending game.
func (that *Entry) Attach(challenger string, conn Conn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.challenger = challenger
	that.peerConn = conn
}

// Detach forgets the challenger after a rejected challenge.
func (that *Entry) Detach() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.challenger = ""
	that.peerConn = nil
}

// BindOpponent turns the challenger into the game's opponent.
func (that *Entry) BindOpponent() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.game.Opponent = that.challenger
}

// Update runs fn with exclusive access to the game. Games being handed off to a
// peer are frozen.
func (that *Entry) Update(fn func(game *entity.Game) error) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.handingOff {
		return apperror.ErrGameMigrating
	}

	return fn(that.game)
}

// BeginHandOff freezes the game and returns the snapshot to ship. It returns false
// if a hand-off is already in flight.
func (that *Entry) BeginHandOff() (*entity.Game, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.handingOff {
		return nil, false
	}

	that.handingOff = true

	return that.game.Snapshot(), true
}

// AbortHandOff unfreezes the game after a failed hand-off.
func (that *Entry) AbortHandOff() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.handingOff = false
}
