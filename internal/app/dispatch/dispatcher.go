package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/hub"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
)

// Hook runs for every event, local or relayed, before it is fanned out.
type Hook func(ctx context.Context, event domain.Event)

// Dispatcher publishes events to the local hub and relays them to other
// instances. Neither path can fail the caller.
type Dispatcher struct {
	hub     *hub.Hub
	relay   interfaces.EventRelay
	origin  string
	timeout time.Duration
	logger  logger.Logger

	mu    sync.RWMutex
	hooks []Hook

	inflight sync.WaitGroup
}

var _ interfaces.EventPublisher = (*Dispatcher)(nil)

// New builds a dispatcher. relay may be nil for a single instance.
func New(h *hub.Hub, relay interfaces.EventRelay, origin string, timeout time.Duration, logger logger.Logger) *Dispatcher {
	return &Dispatcher{
		hub:     h,
		relay:   relay,
		origin:  origin,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dispatcher) Use(hook Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

func (d *Dispatcher) Publish(ctx context.Context, event domain.Event, topics []domain.Topic) {
	event.Topics = topics
	if event.Origin == "" {
		event.Origin = d.origin
	}

	d.deliver(ctx, event)

	if d.relay == nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		relayCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.relay.PublishEvent(relayCtx, event); err != nil {
			d.logger.Error("relay_publish_failed", "Failed to relay order event", "", map[string]interface{}{
				"order_id": event.OrderID,
				"kind":     event.Kind,
			}, err)
		}
	}()
}

// HandleRemote delivers an event received from the relay. Events this
// instance produced itself were already delivered locally and are skipped.
func (d *Dispatcher) HandleRemote(ctx context.Context, event domain.Event) error {
	if event.Origin == d.origin {
		return nil
	}
	d.deliver(ctx, event)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.Event) {
	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, event)
	}

	n := d.hub.Publish(event, event.Topics)
	d.logger.Debug("event_published", "Order event fanned out", "", map[string]interface{}{
		"order_id":   event.OrderID,
		"kind":       event.Kind,
		"status":     event.Status,
		"origin":     event.Origin,
		"recipients": n,
	})
}

// Wait blocks until pending relay publishes finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
