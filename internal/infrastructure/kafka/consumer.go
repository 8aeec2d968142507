package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/account-ledger/internal/models"
	"github.com/segmentio/kafka-go"
)

var ErrInvalidEvent = errors.New("invalid ledger event")

// EventHandler processes one decoded event. Returning an error stops Consume
// before the message is committed, so the group resumes from it next time.
type EventHandler func(ctx context.Context, event models.LedgerEvent) error

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topics []string, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			GroupTopics: topics,
			MinBytes:    10e3,
			MaxBytes:    10e6,
		}),
	}
}

// Consume blocks until ctx is cancelled or a handler fails. Malformed
// messages are logged and committed so they do not block the partition.
func (c *Consumer) Consume(ctx context.Context, handle EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to read Kafka message", "error", err)
			return err
		}

		if err := handleMessage(ctx, msg, handle); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handleMessage returns nil when msg may be committed.
func handleMessage(ctx context.Context, msg kafka.Message, handle EventHandler) error {
	event, err := DecodeEvent(msg.Value)
	if err != nil {
		slog.Error("skipping malformed event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if err := handle(ctx, event); err != nil {
		slog.Error("failed to handle event", "topic", msg.Topic, "offset", msg.Offset, "user_id", event.UserID, "error", err)
		return fmt.Errorf("handle %s offset %d: %w", msg.Topic, msg.Offset, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent parses a ledger event payload and checks its required fields.
func DecodeEvent(data []byte) (models.LedgerEvent, error) {
	var event models.LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.LedgerEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if !event.Type.Valid() {
		return models.LedgerEvent{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.Type)
	}
	if event.UserID == "" {
		return models.LedgerEvent{}, fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}
	return event, nil
}
