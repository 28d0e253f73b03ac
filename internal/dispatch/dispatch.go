package dispatch

import (
	"context"
	"encoding/json"
	"errors"
)

// Realtime message kinds.
const (
	KindNotification = "notification"
	KindRideEvent    = "ride_event"
)

// Message is the envelope written to a user's websocket sessions.
type Message struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func NewMessage(kind string, payload any) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Payload: b}, nil
}

// Hub delivers a message to every session of a user, wherever it is connected.
type Hub interface {
	Publish(ctx context.Context, userID string, msg Message) error
}

// LocalHub delivers straight to the sessions of this process.
type LocalHub struct {
	Registry *Registry
}

func (h *LocalHub) Publish(ctx context.Context, userID string, msg Message) error {
	err := h.Registry.Deliver(userID, msg)
	if errors.Is(err, ErrNoSession) {
		// offline users read their notifications on the next list call
		return nil
	}
	return err
}
