package websocket

import (
	"encoding/json"
	"sync"
)

// hub tracks the clients of this node that receive cluster-wide broadcasts.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func newHub() *hub {
	return &hub{clients: make(map[string]*Client)}
}

func (that *hub) add(client *Client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.clients[client.ID()] = client
}

func (that *hub) remove(client *Client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.clients, client.ID())
}

// broadcast sends to every client that has played.
func (that *hub) broadcast(topic string, payload json.RawMessage) int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	sent := 0
	for _, client := range that.clients {
		if client.Player() == "" {
			continue
		}

		client.write(Message{Topic: topic, Payload: payload})
		sent++
	}

	return sent
}
