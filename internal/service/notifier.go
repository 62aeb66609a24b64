package service

import (
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

type notifier struct {
	logger      *slog.Logger
	connections *registry.Connections
}

// deliver sends payload to player's current connection, falling back to the handle
// stored with the game. Players without either are skipped.
func (that *notifier) deliver(player string, fallback registry.Conn, topic string, payload any) bool {
	if player == "" {
		return false
	}

	if conn, ok := that.connections.Resolve(player); ok {
		conn.Deliver(topic, payload)
		return true
	}

	if fallback != nil {
		fallback.Deliver(topic, payload)
		return true
	}

	that.logger.Debug("no connection for player", "player", player, "topic", topic)

	return false
}
