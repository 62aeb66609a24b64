package registry

import (
	"fmt"
	"sync"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

// Connections binds sanitized player identities to local connection handles.
type Connections struct {
	mu      sync.RWMutex
	players map[string]Conn
	hooks   []func(player string)
}

func NewConnections() *Connections {
	return &Connections{
		players: make(map[string]Conn),
	}
}

// Register sanitizes identity and binds it to conn, replacing any earlier binding.
func (that *Connections) Register(identity string, conn Conn) (string, error) {
	player, err := entity.SanitizePlayer(identity)
	if err != nil {
		return "", fmt.Errorf("failed to register player: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.players[player] = conn

	return player, nil
}

func (that *Connections) Resolve(player string) (Conn, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	conn, ok := that.players[player]
	return conn, ok
}

// OnDisconnect subscribes hook to every effective disconnect.
func (that *Connections) OnDisconnect(hook func(player string)) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.hooks = append(that.hooks, hook)
}

// Disconnect removes the binding of player if it still points at conn and runs
// the disconnect hooks. A stale conn (the player already reconnected) is ignored.
func (that *Connections) Disconnect(player string, conn Conn) bool {
	that.mu.Lock()

	current, ok := that.players[player]
	if !ok || current.ID() != conn.ID() {
		that.mu.Unlock()
		return false
	}

	delete(that.players, player)
	hooks := make([]func(string), len(that.hooks))
	copy(hooks, that.hooks)

	that.mu.Unlock()

	for _, hook := range hooks {
		hook(player)
	}

	return true
}

func (that *Connections) Count() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.players)
}
