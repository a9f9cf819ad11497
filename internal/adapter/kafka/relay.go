package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/config"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Relay carries order events between instances through a Kafka topic.
// Messages are keyed by order id so per-order ordering holds within a partition.
type Relay struct {
	writer     messageWriter
	reader     messageReader
	logger     logger.Logger
	retryDelay time.Duration
}

var _ interfaces.EventRelay = (*Relay)(nil)

// NewRelay builds a relay for cfg. Each instance reads with its own consumer
// group so every instance receives every event.
func NewRelay(cfg config.KafkaConfig, instance string, logger logger.Logger) *Relay {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     "orderflow-" + instance,
		StartOffset: kafkago.LastOffset,
	})
	return newRelay(writer, reader, logger)
}

func newRelay(writer messageWriter, reader messageReader, logger logger.Logger) *Relay {
	return &Relay{
		writer:     writer,
		reader:     reader,
		logger:     logger,
		retryDelay: time.Second,
	}
}

func (r *Relay) PublishEvent(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (r *Relay) ConsumeEvents(ctx context.Context, handler interfaces.EventHandler) error {
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			r.logger.Error("kafka_read_failed", "Error reading message", "", nil, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			r.logger.Error("message_parse_failed", "Failed to parse relayed event", "", map[string]interface{}{
				"offset": msg.Offset,
			}, err)
			continue
		}
		if err := handler(ctx, event); err != nil {
			r.logger.Error("relay_handler_failed", "Failed to handle relayed event", "", map[string]interface{}{
				"order_id": event.OrderID,
			}, err)
		}
	}
}

func (r *Relay) Close() error {
	return errors.Join(r.writer.Close(), r.reader.Close())
}
