package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisHub publishes messages on a per-user channel so every API instance
// (and the event consumer) can reach a user regardless of which instance
// holds the websocket. Run delivers the channel traffic to local sessions.
type RedisHub struct {
	client *redis.Client
	prefix string
	local  *Registry
	logger *slog.Logger
}

func NewRedisHub(client *redis.Client, prefix string, local *Registry, logger *slog.Logger) *RedisHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisHub{client: client, prefix: prefix, local: local, logger: logger}
}

func (h *RedisHub) Channel(userID string) string { return h.prefix + userID }

func (h *RedisHub) Publish(ctx context.Context, userID string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, h.Channel(userID), b).Err()
}

// Run subscribes to every user channel until ctx is done.
func (h *RedisHub) Run(ctx context.Context) error {
	sub := h.client.PSubscribe(ctx, h.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	h.logger.Info("realtime hub subscribed", "pattern", h.prefix+"*")
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			h.handle(m.Channel, m.Payload)
		}
	}
}

func (h *RedisHub) handle(channel, payload string) {
	if h.local == nil || !strings.HasPrefix(channel, h.prefix) {
		return
	}
	userID := strings.TrimPrefix(channel, h.prefix)
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		h.logger.Warn("invalid realtime message", "channel", channel, "error", err)
		return
	}
	if err := h.local.Deliver(userID, msg); err != nil && !errors.Is(err, ErrNoSession) {
		h.logger.Warn("realtime delivery failed", "user_id", userID, "error", err)
	}
}
