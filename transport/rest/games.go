package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
)

type uGame interface {
	GetGame(ctx context.Context, id string) (*entity.Game, error)
	FindGame(ctx context.Context, player string, conn registry.Conn) (*entity.Game, error)
}

type GameHandler interface {
	GetGame(w http.ResponseWriter, r *http.Request)
	FindGame(w http.ResponseWriter, r *http.Request)
}

type gameHandler struct {
	logger *slog.Logger
	uGame  uGame
}

func NewGameHandler(logger *slog.Logger, uGame uGame) GameHandler {
	return &gameHandler{
		logger: logger.With("component", "rest"),
		uGame:  uGame,
	}
}

func (that *gameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.uGame.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, "GetGame", err)
		return
	}

	that.writeJSON(w, game)
}

func (that *gameHandler) FindGame(w http.ResponseWriter, r *http.Request) {
	player, err := entity.SanitizePlayer(r.URL.Query().Get("player"))
	if err != nil {
		that.writeError(w, "FindGame", err)
		return
	}

	game, err := that.uGame.FindGame(r.Context(), player, nil)
	if err != nil {
		that.writeError(w, "FindGame", err)
		return
	}

	that.writeJSON(w, game)
}

func (that *gameHandler) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "method", "writeJSON", "error", err)
	}
}

func (that *gameHandler) writeError(w http.ResponseWriter, method string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrNoSuchGame):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrMalformedInput):
		status = http.StatusBadRequest
	default:
		that.logger.Error("request failed", "method", method, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
