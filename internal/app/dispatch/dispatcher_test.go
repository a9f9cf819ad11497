package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/hub"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRelay struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingRelay) PublishEvent(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingRelay) ConsumeEvents(ctx context.Context, handler interfaces.EventHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *recordingRelay) Close() error { return nil }

func (r *recordingRelay) published() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func TestDispatcher_PublishesLocallyAndRelays(t *testing.T) {
	h := hub.New(4, logger.NewNop())
	sub := h.Register("c-1")
	require.NoError(t, h.Subscribe("c-1", domain.TopicKitchen))

	relay := &recordingRelay{}
	d := New(h, relay, "node-a", time.Second, logger.NewNop())

	var hooked []domain.EventKind
	d.Use(func(ctx context.Context, e domain.Event) { hooked = append(hooked, e.Kind) })

	event := domain.Event{OrderID: "o-1", Kind: domain.EventStatusChanged, Status: domain.StatusReady, Timestamp: time.Now()}
	d.Publish(context.Background(), event, []domain.Topic{domain.TopicKitchen})
	d.Wait()

	got := <-sub.Events()
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, "node-a", got.Origin)
	assert.Equal(t, []domain.EventKind{domain.EventStatusChanged}, hooked)

	relayed := relay.published()
	require.Len(t, relayed, 1)
	assert.Equal(t, []domain.Topic{domain.TopicKitchen}, relayed[0].Topics)
}

func TestDispatcher_RelayFailureIsSwallowed(t *testing.T) {
	h := hub.New(4, logger.NewNop())
	relay := &recordingRelay{err: errors.New("broker unreachable")}
	d := New(h, relay, "node-a", time.Second, logger.NewNop())

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), domain.Event{OrderID: "o-1", Kind: domain.EventCreated}, []domain.Topic{domain.TopicKitchen})
		d.Wait()
	})
}

func TestDispatcher_HandleRemoteSkipsOwnEvents(t *testing.T) {
	h := hub.New(4, logger.NewNop())
	sub := h.Register("c-1")
	require.NoError(t, h.Subscribe("c-1", "table:2"))
	d := New(h, nil, "node-a", time.Second, logger.NewNop())

	own := domain.Event{OrderID: "o-1", Kind: domain.EventStatusChanged, Origin: "node-a", Topics: []domain.Topic{"table:2"}}
	remote := domain.Event{OrderID: "o-2", Kind: domain.EventStatusChanged, Origin: "node-b", Topics: []domain.Topic{"table:2"}}

	require.NoError(t, d.HandleRemote(context.Background(), own))
	require.NoError(t, d.HandleRemote(context.Background(), remote))

	got := <-sub.Events()
	assert.Equal(t, "o-2", got.OrderID)
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}
