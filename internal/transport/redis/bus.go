package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "tictactoe:"

// Handler receives a broadcast published by any node, including this one.
type Handler func(topic string, payload json.RawMessage)

// Bus carries the cluster-wide topics over Redis Pub/Sub.
type Bus struct {
	logger *slog.Logger
	client *redis.Client
}

func NewBus(logger *slog.Logger, client *redis.Client) *Bus {
	return &Bus{
		logger: logger.With("component", "bus"),
		client: client,
	}
}

func (that *Bus) Publish(ctx context.Context, topic string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	if err = that.client.Publish(ctx, channelPrefix+topic, payloadJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}

	return nil
}

// Run feeds every broadcast to handler until ctx is done.
func (that *Bus) Run(ctx context.Context, handler Handler) error {
	log := that.logger.With("method", "Run")

	sub := that.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("failed to subscribe to broadcasts: %w", err)
	}

	log.Info("subscribed to broadcasts")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}

			handler(strings.TrimPrefix(message.Channel, channelPrefix), json.RawMessage(message.Payload))
		}
	}
}
