package interfaces

import (
	"context"

	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// EventPublisher hands domain events to the distribution layer.
// Publishing is fire-and-forget: implementations never fail the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event, topics []domain.Topic)
}

// EventRelay carries events between service instances through a broker.
type EventRelay interface {
	PublishEvent(ctx context.Context, event domain.Event) error
	ConsumeEvents(ctx context.Context, handler EventHandler) error
	Close() error
}

type EventHandler func(ctx context.Context, event domain.Event) error

// SnapshotCache stores serialized list responses between polls.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Generation returns the current invalidation generation.
	Generation(ctx context.Context) (int64, error)
	// Invalidate bumps the generation so every cached snapshot is skipped.
	Invalidate(ctx context.Context) error
}
