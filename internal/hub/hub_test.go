package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusEvent(orderID string) domain.Event {
	return domain.Event{OrderID: orderID, Kind: domain.EventStatusChanged, Status: domain.StatusReady, Timestamp: time.Now()}
}

func drain(s *Subscriber) []domain.Event {
	var out []domain.Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestHub_PublishDeliversOncePerConnection(t *testing.T) {
	h := New(8, logger.NewNop())
	waiter := h.Register("waiter")
	table := h.Register("table")
	other := h.Register("other")

	require.NoError(t, h.Subscribe("waiter", "staff:w-1"))
	require.NoError(t, h.Subscribe("waiter", domain.TopicAllStaff))
	require.NoError(t, h.Subscribe("table", "table:4"))
	require.NoError(t, h.Subscribe("other", "table:5"))

	order := &domain.Order{ID: "o-1", Location: domain.LocationRef{TableID: "4"}}
	staff := "w-1"
	order.AssignedStaff = &staff

	n := h.Publish(statusEvent("o-1"), domain.TopicsFor(order))

	assert.Equal(t, 2, n)
	assert.Len(t, drain(waiter), 1, "subscribed to two matching topics but must receive once")
	assert.Len(t, drain(table), 1)
	assert.Empty(t, drain(other))
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	h := New(8, logger.NewNop())
	s := h.Register("c-1")

	require.NoError(t, h.Subscribe("c-1", domain.TopicKitchen))
	require.NoError(t, h.Subscribe("c-1", domain.TopicKitchen))

	h.Publish(statusEvent("o-1"), []domain.Topic{domain.TopicKitchen})
	assert.Len(t, drain(s), 1)
	assert.Equal(t, []domain.Topic{domain.TopicKitchen}, h.Topics("c-1"))

	h.Unsubscribe("c-1", domain.TopicKitchen)
	h.Unsubscribe("c-1", domain.TopicKitchen)
	assert.Equal(t, 0, h.Publish(statusEvent("o-1"), []domain.Topic{domain.TopicKitchen}))
	assert.Equal(t, 0, h.Stats().Topics)
}

func TestHub_SubscribeUnknownConnection(t *testing.T) {
	h := New(8, logger.NewNop())

	assert.ErrorIs(t, h.Subscribe("ghost", domain.TopicKitchen), ErrUnknownConnection)
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := New(1, logger.NewNop())
	slow := h.Register("slow")
	fast := h.Register("fast")
	require.NoError(t, h.Subscribe("slow", domain.TopicKitchen))
	require.NoError(t, h.Subscribe("fast", domain.TopicKitchen))

	received := make(chan domain.Event, 10)
	go func() {
		for e := range fast.Events() {
			received <- e
		}
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(statusEvent(fmt.Sprintf("o-%d", i)), []domain.Topic{domain.TopicKitchen})
			// give the fast reader a chance to empty its single-slot queue
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, drain(slow), 1)
	assert.Equal(t, int64(4), slow.Dropped())
	assert.Eventually(t, func() bool { return len(received) == 5 }, time.Second, 5*time.Millisecond)
}

func TestHub_RemoveDropsSubscriptions(t *testing.T) {
	h := New(8, logger.NewNop())
	s := h.Register("c-1")
	require.NoError(t, h.Subscribe("c-1", "table:1"))
	require.NoError(t, h.Subscribe("c-1", domain.TopicKitchen))

	h.Remove("c-1")
	h.Remove("c-1")

	_, open := <-s.Events()
	assert.False(t, open)
	assert.Nil(t, h.Topics("c-1"))
	assert.Equal(t, Stats{}, h.Stats())
	assert.Equal(t, 0, h.Publish(statusEvent("o-1"), []domain.Topic{"table:1"}))

	// a reconnect registers a fresh queue and must join again
	again := h.Register("c-1")
	assert.NotSame(t, s, again)
	assert.Empty(t, h.Topics("c-1"))
}

func TestHub_ConcurrentPublishAndChurn(t *testing.T) {
	h := New(4, logger.NewNop())
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c-%d", i)
			for j := 0; j < 50; j++ {
				s := h.Register(id)
				_ = h.Subscribe(id, domain.TopicAllStaff)
				drain(s)
				h.Remove(id)
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				h.Publish(statusEvent("o-1"), []domain.Topic{domain.TopicAllStaff})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.Stats().Connections)
}
