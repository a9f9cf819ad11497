// Package hub is the in-process topic fan-out for order events.
//
// Each connection owns a bounded queue. Publishing never waits on a
// connection: when a queue is full the event is dropped for that connection
// only, and the viewer's polling loop picks the change up later.
package hub

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
)

var ErrUnknownConnection = errors.New("unknown connection")

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	topics      map[domain.Topic]map[string]*Subscriber
	queueSize   int
	logger      logger.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

// Subscriber is one registered connection.
type Subscriber struct {
	id     string
	events chan domain.Event
	topics map[domain.Topic]struct{}

	dropped atomic.Int64
}

type Stats struct {
	Connections int   `json:"connections"`
	Topics      int   `json:"topics"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

func New(queueSize int, logger logger.Logger) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		topics:      make(map[domain.Topic]map[string]*Subscriber),
		queueSize:   queueSize,
		logger:      logger,
	}
}

// Register creates the outbound queue for connID. Registering an id that is
// already present returns the existing subscriber.
func (h *Hub) Register(connID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subscribers[connID]; ok {
		return s
	}
	s := &Subscriber{
		id:     connID,
		events: make(chan domain.Event, h.queueSize),
		topics: make(map[domain.Topic]struct{}),
	}
	h.subscribers[connID] = s
	return s
}

// Subscribe adds connID to topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(connID string, topic domain.Topic) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subscribers[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, ok := s.topics[topic]; ok {
		return nil
	}
	s.topics[topic] = struct{}{}

	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*Subscriber)
		h.topics[topic] = members
	}
	members[connID] = s
	return nil
}

// Unsubscribe removes connID from topic. Unknown pairs are ignored.
func (h *Hub) Unsubscribe(connID string, topic domain.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subscribers[connID]
	if !ok {
		return
	}
	delete(s.topics, topic)
	h.detach(connID, topic)
}

// Remove drops every subscription of connID and closes its queue.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subscribers[connID]
	if !ok {
		return
	}
	for topic := range s.topics {
		h.detach(connID, topic)
	}
	delete(h.subscribers, connID)
	close(s.events)
}

func (h *Hub) detach(connID string, topic domain.Topic) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Publish enqueues event once for every connection subscribed to at least one
// of topics and returns how many connections accepted it.
func (h *Hub) Publish(event domain.Event, topics []domain.Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, s := range h.topics[topic] {
			targets[id] = s
		}
	}

	delivered := 0
	for _, s := range targets {
		select {
		case s.events <- event:
			delivered++
		default:
			s.dropped.Add(1)
			h.dropped.Add(1)
			h.logger.Debug("push_dropped", "Subscriber queue full, event dropped", s.id, map[string]interface{}{
				"order_id": event.OrderID,
				"kind":     event.Kind,
			})
		}
	}
	h.delivered.Add(int64(delivered))
	return delivered
}

// Topics lists the topics connID is subscribed to, sorted.
func (h *Hub) Topics(connID string) []domain.Topic {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.subscribers[connID]
	if !ok {
		return nil
	}
	out := make([]domain.Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		Connections: len(h.subscribers),
		Topics:      len(h.topics),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

// Events is closed when the connection is removed from the hub.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.events
}

func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}
