package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes ride events keyed by ride id, so every change to one
// ride lands on the same partition in order.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev RideEvent) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func Encode(ev RideEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.RideID), Value: b, Time: ev.At}, nil
}

// Decode parses a message value and rejects unknown event types.
func Decode(value []byte) (RideEvent, error) {
	var ev RideEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return RideEvent{}, err
	}
	if !ev.Type.Valid() {
		return RideEvent{}, &UnknownTypeError{Type: ev.Type}
	}
	return ev, nil
}

type UnknownTypeError struct{ Type Type }

func (e *UnknownTypeError) Error() string { return "unknown ride event type " + string(e.Type) }
