package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEmitter publishes audit events to a Kafka topic. Events are written
// synchronously with a short timeout; a write failure is returned to the
// caller for logging but never blocks the request outcome.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaEmitter creates an emitter publishing to the given brokers and
// topic. Returns nil (and no error) when brokers is empty so callers can fall
// back to the logger emitter.
func NewKafkaEmitter(brokers, topic, clientID string, logger zerolog.Logger) (*KafkaEmitter, error) {
	if strings.TrimSpace(brokers) == "" {
		return nil, nil
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka emitter: topic must be set")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 2 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			ClientID: clientID,
		},
	}
	return &KafkaEmitter{
		writer: writer,
		logger: logger.With().Str("component", "audit-kafka").Logger(),
	}, nil
}

// Emit publishes the event keyed by org ID so per-org ordering is preserved.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka emitter: marshal event: %w", err)
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrgID.String()),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka emitter: write: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
