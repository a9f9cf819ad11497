package amqp

import (
	"context"
	"fmt"
	"io"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// NotificationHandler prints relayed order events for the notification-subscriber mode.
type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
	kinds  map[domain.EventKind]bool
}

// NewNotificationHandler writes to out. An empty kinds list prints every event.
func NewNotificationHandler(logger logger.Logger, out io.Writer, kinds ...domain.EventKind) *NotificationHandler {
	h := &NotificationHandler{logger: logger, out: out}
	if len(kinds) > 0 {
		h.kinds = make(map[domain.EventKind]bool, len(kinds))
		for _, k := range kinds {
			h.kinds[k] = true
		}
	}
	return h
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, event domain.Event) error {
	if h.kinds != nil && !h.kinds[event.Kind] {
		return nil
	}

	h.logger.Debug("notification_received", fmt.Sprintf("Received %s event for order %s", event.Kind, event.OrderID),
		event.OrderID, map[string]interface{}{
			"order_id": event.OrderID,
			"kind":     event.Kind,
			"status":   event.Status,
			"origin":   event.Origin,
		})

	ts := event.Timestamp.Format("15:04:05.000")
	var err error
	switch event.Kind {
	case domain.EventCreated:
		where := ""
		if event.Order != nil {
			where = " at " + string(domain.LocationTopicFor(event.Order.Location))
		}
		_, err = fmt.Fprintf(h.out, "[%s] New order %s%s\n", ts, event.OrderID, where)
	case domain.EventStatusChanged:
		_, err = fmt.Fprintf(h.out, "[%s] Order %s is now %s\n", ts, event.OrderID, event.Status)
	case domain.EventDeleted:
		_, err = fmt.Fprintf(h.out, "[%s] Order %s was deleted\n", ts, event.OrderID)
	default:
		h.logger.Debug("notification_skipped", "Unknown event kind", event.OrderID, map[string]interface{}{"kind": event.Kind})
	}
	return err
}
