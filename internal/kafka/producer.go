package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"notification-dispatch/internal/models"
)

// MessageWriter is the part of *kafka.Writer used by the event writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventWriter publishes lifecycle events keyed by notification id.
type EventWriter struct {
	writer MessageWriter
}

func NewEventWriter(brokers []string, topic string) *EventWriter {
	return NewEventWriterWith(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

func NewEventWriterWith(w MessageWriter) *EventWriter {
	return &EventWriter{writer: w}
}

func (w *EventWriter) Publish(ctx context.Context, ev models.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	err = w.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.NotificationID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write event %s: %w", ev.Type, err)
	}
	return nil
}

func (w *EventWriter) Close() error {
	return w.writer.Close()
}
