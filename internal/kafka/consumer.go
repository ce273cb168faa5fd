package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

// Enqueuer accepts decoded send requests.
type Enqueuer interface {
	Enqueue(req models.SendRequest) bool
}

// MessageReader is the part of *kafka.Reader used by the consumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads send requests from a topic and hands them to the queue.
type Consumer struct {
	reader MessageReader
	queue  Enqueuer
	logger *logging.Logger
}

func NewConsumer(brokers []string, topic, groupID string, queue Enqueuer, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, queue, logger)
}

func NewConsumerWithReader(reader MessageReader, queue Enqueuer, logger *logging.Logger) *Consumer {
	return &Consumer{reader: reader, queue: queue, logger: logger}
}

// Start reads messages until ctx is done.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			c.handle(msg)
		}
	}()
}

func (c *Consumer) handle(msg kafka.Message) {
	req, err := Decode(msg.Value)
	if err != nil {
		c.logger.Errorf("Skipping message at offset %d: %v", msg.Offset, err)
		return
	}
	if !c.queue.Enqueue(req) {
		c.logger.Warnf("Dropped message at offset %d: queue full", msg.Offset)
		return
	}
	c.logger.Debugf("Processed Kafka message at offset %d", msg.Offset)
}

// Decode parses the JSON wire form of a send request.
func Decode(value []byte) (models.SendRequest, error) {
	var payload models.SendPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return models.SendRequest{}, fmt.Errorf("unmarshal message failed: %w", err)
	}
	if !payload.Channel.Valid() {
		return models.SendRequest{}, errs.Validation("unknown channel %q", payload.Channel)
	}
	if len(payload.Recipients) == 0 && payload.Recipient == "" {
		return models.SendRequest{}, errs.Validation("at least one recipient is required")
	}
	return payload.ToRequest()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
