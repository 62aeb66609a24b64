package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one WebSocket session. It is the registry.Conn handed to the game layer.
type Client struct {
	id      string
	logger  *slog.Logger
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu      sync.Mutex
	player  string
	joining bool
	closed  bool
	send    chan []byte
}

func newClient(logger *slog.Logger, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	id := uuid.NewString()

	return &Client{
		id:      id,
		logger:  logger.With("conn", id),
		conn:    conn,
		limiter: limiter,
		send:    make(chan []byte, sendBuffer),
	}
}

func (that *Client) ID() string {
	return that.id
}

// Deliver pushes a topic message. Messages to a closed or saturated client are dropped.
func (that *Client) Deliver(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal push", "method", "Deliver", "topic", topic, "error", err)
		return
	}

	that.write(Message{Topic: topic, Payload: body})
}

func (that *Client) Player() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.player
}

// reserve claims the session for a single play attempt. It fails once the client
// plays or while another attempt is running.
func (that *Client) reserve() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.player != "" || that.joining {
		return false
	}

	that.joining = true

	return true
}

func (that *Client) release() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.joining = false
}

func (that *Client) setPlayer(player string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.player = player
	that.joining = false
}

func (that *Client) sendMessage(action string, payload ResponsePayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal response", "method", "sendMessage", "action", action, "error", err)
		return
	}

	that.write(Message{Action: action, Payload: body})
}

func (that *Client) sendErrorResponse(action string, err error) {
	that.sendMessage(action, ResponsePayload{Error: err.Error()})
}

func (that *Client) write(message Message) {
	frame, err := json.Marshal(message)
	if err != nil {
		that.logger.Error("failed to marshal message", "method", "write", "error", err)
		return
	}

	that.enqueue(frame)
}

func (that *Client) enqueue(frame []byte) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	select {
	case that.send <- frame:
	default:
		that.logger.Warn("send buffer full, message dropped", "method", "enqueue")
	}
}

func (that *Client) isClosed() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.closed
}

func (that *Client) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// writePump owns all writes to the socket.
func (that *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				that.logger.Debug("write failed", "method", "writePump", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump hands every inbound frame to dispatch until the socket fails.
func (that *Client) readPump(dispatch func(frame []byte)) {
	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				that.logger.Warn("connection closed unexpectedly", "method", "readPump", "error", err)
			}
			return
		}

		dispatch(frame)
	}
}
