package amqp

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationHandler(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.NewNop(), &out)
	at := time.Date(2026, 2, 2, 20, 15, 30, 0, time.UTC)

	require.NoError(t, h.HandleNotification(context.Background(), domain.Event{
		OrderID: "o-1", Kind: domain.EventCreated, Timestamp: at,
		Order: &domain.Order{ID: "o-1", Location: domain.LocationRef{TableID: "4"}},
	}))
	require.NoError(t, h.HandleNotification(context.Background(), domain.Event{
		OrderID: "o-1", Kind: domain.EventStatusChanged, Status: domain.StatusReady, Timestamp: at,
	}))
	require.NoError(t, h.HandleNotification(context.Background(), domain.Event{
		OrderID: "o-1", Kind: domain.EventDeleted, Timestamp: at,
	}))

	assert.Equal(t, "[20:15:30.000] New order o-1 at table:4\n"+
		"[20:15:30.000] Order o-1 is now READY\n"+
		"[20:15:30.000] Order o-1 was deleted\n", out.String())
}

func TestNotificationHandler_FiltersKinds(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.NewNop(), &out, domain.EventDeleted)

	require.NoError(t, h.HandleNotification(context.Background(), domain.Event{OrderID: "o-1", Kind: domain.EventStatusChanged}))
	assert.Empty(t, out.String())
}
