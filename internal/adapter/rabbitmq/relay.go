package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "order_events"
	reconnectDelay = 5 * time.Second
)

// Relay carries order events between instances over a topic exchange.
// Every consumer gets its own exclusive queue, so each instance sees every event.
type Relay struct {
	conn           Connection
	logger         logger.Logger
	prefetch       int
	reconnectDelay time.Duration
}

var _ interfaces.EventRelay = (*Relay)(nil)

func NewRelay(conn Connection, prefetch int, logger logger.Logger) *Relay {
	return &Relay{
		conn:           conn,
		logger:         logger,
		prefetch:       prefetch,
		reconnectDelay: reconnectDelay,
	}
}

func RoutingKey(kind domain.EventKind) string {
	return "order." + string(kind)
}

func (r *Relay) PublishEvent(ctx context.Context, event domain.Event) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.PublishWithContext(ctx, EventsExchange, RoutingKey(event.Kind), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.OrderID,
		Timestamp:   event.Timestamp,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// ConsumeEvents blocks until ctx is done, re-establishing the subscription
// whenever the channel drops.
func (r *Relay) ConsumeEvents(ctx context.Context, handler interfaces.EventHandler) error {
	for {
		err := r.consume(ctx, handler)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		r.logger.Error("relay_disconnected", "Event consumer disconnected, reconnecting", "", map[string]interface{}{
			"retry_in": r.reconnectDelay.String(),
		}, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.reconnectDelay):
		}
	}
}

func (r *Relay) consume(ctx context.Context, handler interfaces.EventHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "order.#", EventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}

			var event domain.Event
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				r.logger.Error("message_parse_failed", "Failed to parse relayed event", "", map[string]interface{}{
					"routing_key": msg.RoutingKey,
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
}

func (r *Relay) Close() error {
	return r.conn.Close()
}
