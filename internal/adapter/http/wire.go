package http

import (
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// Server to client frame types.
const (
	FrameNewOrder     = "new-order"
	FrameStatusUpdate = "order-status-update"
	FrameOrderDeleted = "order-deleted"
	FrameSubscribed   = "subscribed"
	FrameError        = "error"
)

// Client to server message types.
const (
	MessageJoinStaff        = "join-staff"
	MessageJoinTable        = "join-table"
	MessageJoinLocation     = "join-location"
	MessageJoinServicePoint = "join-service-point"
	MessageLeave            = "leave"
)

// PushFrame is a message on the push channel from server to client.
type PushFrame struct {
	Type      string        `json:"type"`
	OrderID   string        `json:"orderId,omitempty"`
	Status    domain.Status `json:"status,omitempty"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Order     *domain.Order `json:"order,omitempty"`
	Topics    []string      `json:"topics,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// ClientMessage is a subscription request from client to server.
type ClientMessage struct {
	Type           string `json:"type"`
	StaffID        string `json:"staffId,omitempty"`
	TableID        string `json:"tableId,omitempty"`
	LocationID     string `json:"locationId,omitempty"`
	ServicePointID string `json:"servicePointId,omitempty"`
}

// Topic returns the topic a join or leave message refers to.
func (m ClientMessage) Topic() domain.Topic {
	switch {
	case m.StaffID != "":
		return domain.StaffTopic(m.StaffID)
	case m.TableID != "":
		return domain.TableTopic(m.TableID)
	case m.LocationID != "":
		return domain.LocationTopic(m.LocationID)
	case m.ServicePointID != "":
		return domain.ServicePointTopic(m.ServicePointID)
	}
	return ""
}

// FrameFor converts an order event into its wire frame.
func FrameFor(event domain.Event) (PushFrame, bool) {
	ts := event.Timestamp
	switch event.Kind {
	case domain.EventCreated:
		return PushFrame{Type: FrameNewOrder, OrderID: event.OrderID, Order: event.Order, Timestamp: &ts}, true
	case domain.EventStatusChanged:
		return PushFrame{Type: FrameStatusUpdate, OrderID: event.OrderID, Status: event.Status, Timestamp: &ts}, true
	case domain.EventDeleted:
		return PushFrame{Type: FrameOrderDeleted, OrderID: event.OrderID, Timestamp: &ts}, true
	}
	return PushFrame{}, false
}
