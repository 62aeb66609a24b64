package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
)

func decode(message *Message, into any) error {
	if len(message.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", apperror.ErrMalformedInput)
	}

	if err := json.Unmarshal(message.Payload, into); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedInput, err)
	}

	return nil
}

func requirePlayer(client *Client) (string, error) {
	player := client.Player()
	if player == "" {
		return "", apperror.ErrNotPlaying
	}

	return player, nil
}

// replyWith answers the action once the game layer is done, possibly from a peer call.
func replyWith(client *Client, action string) func(*entity.Game, error) {
	return func(game *entity.Game, err error) {
		if err != nil {
			client.sendErrorResponse(action, err)
			return
		}

		client.sendMessage(action, ResponsePayload{Player: client.Player(), Game: game})
	}
}

func (that *Server) handlePlay(ctx context.Context, client *Client, msg *Message) error {
	var request playRequest
	if err := decode(msg, &request); err != nil {
		return err
	}

	if !client.reserve() {
		return fmt.Errorf("%w: connection is already playing", apperror.ErrMalformedInput)
	}

	player, err := that.uGame.Play(ctx, request.Player, client)
	if err != nil {
		client.release()
		return err
	}

	client.setPlayer(player)

	// the socket may have closed while Play ran
	if client.isClosed() {
		that.uGame.Disconnect(player, client)
		return nil
	}

	client.sendMessage(msg.Action, ResponsePayload{Player: player})

	that.logger.Info("player connected", "method", "handlePlay", "player", player, "conn", client.ID())

	return nil
}

func (that *Server) handleNewGame(ctx context.Context, client *Client, msg *Message) error {
	player, err := requirePlayer(client)
	if err != nil {
		return err
	}

	that.uGame.NewGame(ctx, player, client, replyWith(client, msg.Action))

	return nil
}

func (that *Server) handleGetGame(ctx context.Context, client *Client, msg *Message) error {
	var request gameRequest
	if err := decode(msg, &request); err != nil {
		return err
	}

	game, err := that.uGame.GetGame(ctx, request.GameID)
	if err != nil {
		return err
	}

	client.sendMessage(msg.Action, ResponsePayload{Game: game})

	return nil
}

func (that *Server) handleFindGame(ctx context.Context, client *Client, msg *Message) error {
	player, err := requirePlayer(client)
	if err != nil {
		return err
	}

	var request gameRequest
	if len(msg.Payload) > 0 {
		if err = decode(msg, &request); err != nil {
			return err
		}
	}

	if request.Player != "" {
		if player, err = entity.SanitizePlayer(request.Player); err != nil {
			return err
		}
	}

	game, err := that.uGame.FindGame(ctx, player, client)
	if err != nil {
		return err
	}

	client.sendMessage(msg.Action, ResponsePayload{Player: player, Game: game})

	return nil
}

func (that *Server) handleChallenge(ctx context.Context, client *Client, msg *Message) error {
	player, err := requirePlayer(client)
	if err != nil {
		return err
	}

	return that.uGame.Challenge(ctx, player, client, msg.Payload)
}

func (that *Server) handleMove(ctx context.Context, client *Client, msg *Message) error {
	player, err := requirePlayer(client)
	if err != nil {
		return err
	}

	var request moveRequest
	if err = decode(msg, &request); err != nil {
		return err
	}

	if request.GameID == "" || request.Square == nil {
		return fmt.Errorf("%w: gameId and square are required", apperror.ErrMalformedInput)
	}

	that.uGame.Move(ctx, player, client, request.GameID, *request.Square, replyWith(client, msg.Action))

	return nil
}

func (that *Server) handleMigrate(ctx context.Context, client *Client, msg *Message) error {
	target, err := that.uGame.BeginMigration(ctx)
	if err != nil {
		return err
	}

	that.logger.Info("migration started", "method", "handleMigrate", "target", target.ID)

	client.sendMessage(msg.Action, ResponsePayload{Node: &target})

	return nil
}

func (that *Server) handleMigrateEnd(ctx context.Context, client *Client, msg *Message) error {
	that.uGame.EndMigration(ctx)

	client.sendMessage(msg.Action, ResponsePayload{})

	return nil
}
