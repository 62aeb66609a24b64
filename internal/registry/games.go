package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Games holds every game this node is responsible for in three disjoint buckets.
// A game id is in at most one bucket at any instant.
//
// Operations that place entries hold moving shared; RemoveEverywhere holds it
// exclusively, so cleanup never runs while an entry sits between buckets. Lock
// order is moving, then bucket, then entry.
type Games struct {
	node    string
	counter atomic.Uint64
	moving  sync.RWMutex

	pending    *bucket
	challenged *bucket
	live       *bucket
}

func NewGames(node string) *Games {
	return &Games{
		node:       node,
		pending:    newBucket(),
		challenged: newBucket(),
		live:       newBucket(),
	}
}

func (that *Games) bucket(phase Phase) *bucket {
	switch phase {
	case PhasePending:
		return that.pending
	case PhaseChallenged:
		return that.challenged
	default:
		return that.live
	}
}

func (that *Games) nextID() string {
	return entity.GameID{Node: that.node, Seq: that.counter.Add(1)}.String()
}

// CreatePending mints a fresh id and stores a pending game for owner.
func (that *Games) CreatePending(owner string, ownerConn Conn) *entity.Game {
	game := entity.NewGame(that.nextID(), owner)
	entry := newEntry(game, ownerConn)

	that.moving.RLock()
	defer that.moving.RUnlock()

	that.pending.put(entry)

	return entry.Snapshot()
}

// Adopt stores a game handed over by a peer as live. Adopting the same id again
// overwrites the previous copy.
func (that *Games) Adopt(game *entity.Game) *Entry {
	entry := newEntry(game.Snapshot(), nil)
	entry.challenger = game.Opponent

	that.moving.RLock()
	defer that.moving.RUnlock()

	that.pending.take(game.ID, nil)
	that.challenged.take(game.ID, nil)
	that.live.put(entry)

	return entry
}

// Lookup searches pending, then challenged, then live.
func (that *Games) Lookup(id string) (*Entry, Phase, bool) {
	for _, phase := range []Phase{PhasePending, PhaseChallenged, PhaseLive} {
		if entry, ok := that.bucket(phase).get(id); ok {
			return entry, phase, true
		}
	}

	return nil, 0, false
}

// Game returns a snapshot of the game with the given id.
func (that *Games) Game(id string) (*entity.Game, Phase, error) {
	entry, phase, ok := that.Lookup(id)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", apperror.ErrNoSuchGame, id)
	}

	return entry.Snapshot(), phase, nil
}

// Find returns the first game player is involved in, searching pending, then
// challenged, then live.
func (that *Games) Find(player string) (*entity.Game, Phase, error) {
	for _, phase := range []Phase{PhasePending, PhaseChallenged, PhaseLive} {
		for _, entry := range that.bucket(phase).values() {
			if entry.Involves(player) {
				return entry.Snapshot(), phase, nil
			}
		}
	}

	return nil, 0, fmt.Errorf("%w: for player %s", apperror.ErrNoSuchGame, player)
}

// Live returns the live entry for id.
func (that *Games) Live(id string) (*Entry, bool) {
	return that.live.get(id)
}

// Transition moves id from one bucket to another. The removal from the source is a
// single check-and-remove guarded by claim; losing the race or failing the claim
// yields ErrNoSuchGame and the caller must not retry. transform runs while the
// entry is in no bucket and must not call back into Games.
func (that *Games) Transition(id string, from, to Phase, claim func(*Entry) bool, transform func(*Entry)) (*Entry, error) {
	that.moving.RLock()
	defer that.moving.RUnlock()

	entry, ok := that.bucket(from).take(id, claim)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not %s", apperror.ErrNoSuchGame, id, from)
	}

	if transform != nil {
		transform(entry)
	}

	that.bucket(to).put(entry)

	return entry, nil
}

// Take removes id from the bucket for phase without reinserting it anywhere.
func (that *Games) Take(id string, from Phase, claim func(*Entry) bool) (*Entry, error) {
	entry, ok := that.bucket(from).take(id, claim)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not %s", apperror.ErrNoSuchGame, id, from)
	}

	return entry, nil
}

// RemoveEverywhere drops every entry matching predicate. It waits for transitions
// in progress, and none start until it returns.
func (that *Games) RemoveEverywhere(predicate func(*Entry) bool) []*Entry {
	that.moving.Lock()
	defer that.moving.Unlock()

	var removed []*Entry
	for _, phase := range []Phase{PhasePending, PhaseChallenged, PhaseLive} {
		removed = append(removed, that.bucket(phase).removeIf(predicate)...)
	}

	return removed
}

// Pending lists the games waiting for a challenger, ordered by id.
func (that *Games) Pending() []*entity.Game {
	entries := that.pending.values()

	games := make([]*entity.Game, 0, len(entries))
	for _, entry := range entries {
		games = append(games, entry.Snapshot())
	}

	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	return games
}

// LiveEntries lists the live entries in no particular order.
func (that *Games) LiveEntries() []*Entry {
	return that.live.values()
}

// Counts reports the number of games per phase.
func (that *Games) Counts() map[Phase]int {
	return map[Phase]int{
		PhasePending:    that.pending.len(),
		PhaseChallenged: that.challenged.len(),
		PhaseLive:       that.live.len(),
	}
}
