package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

var ErrRateLimited = errors.New("rate limit exceeded")

const shutdownTimeout = 5 * time.Second

type uGame interface {
	Play(ctx context.Context, identity string, conn registry.Conn) (string, error)
	Disconnect(player string, conn registry.Conn)

	NewGame(ctx context.Context, player string, conn registry.Conn, reply func(*entity.Game, error))
	GetGame(ctx context.Context, id string) (*entity.Game, error)
	FindGame(ctx context.Context, player string, conn registry.Conn) (*entity.Game, error)

	Challenge(ctx context.Context, player string, conn registry.Conn, raw json.RawMessage) error
	Move(ctx context.Context, player string, conn registry.Conn, gameID string, square int, reply func(*entity.Game, error))

	BeginMigration(ctx context.Context) (entity.Node, error)
	EndMigration(ctx context.Context)
}

type Server struct {
	logger   *slog.Logger
	uGame    uGame
	upgrader websocket.Upgrader
	hub      *hub

	limit rate.Limit
	burst int

	handlers map[string]func(ctx context.Context, client *Client, message *Message) error
}

// New builds the client-facing server. limit and burst bound inbound messages per connection.
func New(logger *slog.Logger, uGame uGame, limit float64, burst int) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		uGame:  uGame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		hub: newHub(),

		limit: rate.Limit(limit),
		burst: burst,

		handlers: make(map[string]func(context.Context, *Client, *Message) error),
	}

	server.handlers["play"] = server.handlePlay
	server.handlers["game:new"] = server.handleNewGame
	server.handlers["game:get"] = server.handleGetGame
	server.handlers["game:find"] = server.handleFindGame
	server.handlers["game:challenge"] = server.handleChallenge
	server.handlers["game:move"] = server.handleMove
	server.handlers["game:migrate"] = server.handleMigrate
	server.handlers["game:migrate:end"] = server.handleMigrateEnd

	return server
}

// Handler serves the WebSocket endpoint at /ws. Requests run until ctx is done.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down", "method", "Start", "error", err)
		}
	}()

	that.logger.Info("websocket server listening", "port", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Broadcast fans a cluster-wide topic out to the local clients.
func (that *Server) Broadcast(topic string, payload json.RawMessage) {
	sent := that.hub.broadcast(topic, payload)
	that.logger.Debug("broadcast delivered", "method", "Broadcast", "topic", topic, "clients", sent)
}

// upgradeToWebSocket - upgrades the connection and serves it until it closes.
// A player query parameter plays immediately, which is how redirected clients resume.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(that.logger, conn, rate.NewLimiter(that.limit, that.burst))
	that.hub.add(client)

	log.Info("WebSocket connection established", "conn", client.ID())

	go client.writePump()

	if player := req.URL.Query().Get("player"); player != "" {
		payload, _ := json.Marshal(playRequest{Player: player})
		that.dispatch(ctx, client, &Message{Action: "play", Payload: payload})
	}

	client.readPump(func(frame []byte) {
		that.handleFrame(ctx, client, frame)
	})

	that.hub.remove(client)
	client.close()

	if player := client.Player(); player != "" {
		that.uGame.Disconnect(player, client)
	}

	log.Info("WebSocket connection closed", "conn", client.ID())
}

// handleFrame decodes a frame and runs its action on its own goroutine.
func (that *Server) handleFrame(ctx context.Context, client *Client, frame []byte) {
	var message Message
	if err := json.Unmarshal(frame, &message); err != nil {
		client.sendErrorResponse("", fmt.Errorf("%w: %w", apperror.ErrMalformedInput, err))
		return
	}

	if !client.limiter.Allow() {
		client.sendErrorResponse(message.Action, ErrRateLimited)
		return
	}

	go that.dispatch(ctx, client, &message)
}

func (that *Server) dispatch(ctx context.Context, client *Client, message *Message) {
	log := that.logger.With("method", "dispatch", "action", message.Action, "conn", client.ID())

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("handler panicked", "panic", recovered)
			client.sendErrorResponse(message.Action, errors.New("internal error"))
		}
	}()

	handler, ok := that.handlers[message.Action]
	if !ok {
		client.sendErrorResponse(message.Action, fmt.Errorf("%w: unknown action %q", apperror.ErrMalformedInput, message.Action))
		return
	}

	if err := handler(ctx, client, message); err != nil {
		log.Debug("action failed", "error", err)
		client.sendErrorResponse(message.Action, err)
	}
}
