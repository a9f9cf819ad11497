package domain

import (
	"strings"
	"time"
)

type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status-changed"
	EventDeleted       EventKind = "deleted"
)

// Event is a transient notification about an order. The store stays the
// source of truth; events only tell viewers something changed.
type Event struct {
	OrderID   string    `json:"orderId"`
	Kind      EventKind `json:"kind"`
	Status    Status    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Order is populated for created events only.
	Order *Order `json:"order,omitempty"`
	// Topics the event was published to; carried so relays can re-publish.
	Topics []Topic `json:"topics,omitempty"`
	// Origin is the instance that produced the event.
	Origin string `json:"origin,omitempty"`
}

func CreatedEvent(o *Order) Event {
	return Event{
		OrderID:   o.ID,
		Kind:      EventCreated,
		Status:    o.Status,
		Timestamp: o.UpdatedAt,
		Order:     o.Clone(),
	}
}

func StatusChangedEvent(o *Order) Event {
	return Event{
		OrderID:   o.ID,
		Kind:      EventStatusChanged,
		Status:    o.Status,
		Timestamp: o.UpdatedAt,
	}
}

func DeletedEvent(o *Order, at time.Time) Event {
	return Event{
		OrderID:   o.ID,
		Kind:      EventDeleted,
		Timestamp: NextTimestamp(o.UpdatedAt, at),
	}
}

// Topic is a named fan-out channel.
type Topic string

const (
	TopicKitchen  Topic = "role-broadcast:kitchen"
	TopicAllStaff Topic = "role-broadcast:all-staff"
)

func StaffTopic(staffID string) Topic {
	return Topic("staff:" + staffID)
}

func TableTopic(tableID string) Topic {
	return Topic("table:" + tableID)
}

func ServicePointTopic(servicePointID string) Topic {
	return Topic("service-point:" + servicePointID)
}

func LocationTopic(locationID string) Topic {
	return Topic("location:" + locationID)
}

// LocationTopicFor returns the topic of whichever location reference is set.
func LocationTopicFor(l LocationRef) Topic {
	switch l.Kind() {
	case LocationTable:
		return TableTopic(l.TableID)
	case LocationServicePoint:
		return ServicePointTopic(l.ServicePointID)
	case LocationSite:
		return LocationTopic(l.LocationID)
	}
	return ""
}

// TopicsFor derives every topic an event about o is published to.
func TopicsFor(o *Order) []Topic {
	topics := make([]Topic, 0, 4)
	if o.AssignedStaff != nil && *o.AssignedStaff != "" {
		topics = append(topics, StaffTopic(*o.AssignedStaff))
	}
	if t := LocationTopicFor(o.Location); t != "" {
		topics = append(topics, t)
	}
	return append(topics, TopicKitchen, TopicAllStaff)
}

// BroadcastTopics are joined by every staff connection on connect.
func BroadcastTopics() []Topic {
	return []Topic{TopicKitchen, TopicAllStaff}
}

// ZoneMap resolves the zone an order's location belongs to.
// Keys are location topics such as "service-point:bar-1".
type ZoneMap map[string]string

func (z ZoneMap) ZoneOf(l LocationRef) string {
	if len(z) == 0 {
		return ""
	}
	return z[strings.TrimSpace(string(LocationTopicFor(l)))]
}
