package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	items := []OrderItem{{ProductRef: "mojito", Quantity: 2}}

	tests := []struct {
		name     string
		location LocationRef
		items    []OrderItem
		total    decimal.Decimal
		wantErr  bool
	}{
		{name: "table_order", location: LocationRef{TableID: "7"}, items: items, total: decimal.RequireFromString("12.50")},
		{name: "no_location", location: LocationRef{}, items: items, total: decimal.Zero, wantErr: true},
		{name: "two_locations", location: LocationRef{TableID: "7", LocationID: "patio"}, items: items, total: decimal.Zero, wantErr: true},
		{name: "negative_total", location: LocationRef{TableID: "7"}, items: items, total: decimal.NewFromInt(-1), wantErr: true},
		{name: "no_items", location: LocationRef{ServicePointID: "bar-1"}, total: decimal.Zero, wantErr: true},
		{name: "zero_quantity", location: LocationRef{ServicePointID: "bar-1"}, items: []OrderItem{{ProductRef: "beer"}}, total: decimal.Zero, wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			order, err := NewOrder(testCase.location, testCase.items, testCase.total, nil, now)
			if testCase.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, order.ID)
			assert.Equal(t, StatusPending, order.Status)
			assert.Equal(t, now.Truncate(time.Microsecond), order.CreatedAt)
			assert.Equal(t, order.CreatedAt, order.UpdatedAt)
		})
	}
}

func TestOrder_WithStatusAdvancesTimestamp(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{ID: "o-1", Status: StatusReady, UpdatedAt: created}

	later := order.WithStatus(StatusDelivered, created.Add(time.Second))
	assert.Equal(t, created.Add(time.Second), later.UpdatedAt)
	assert.Equal(t, StatusReady, order.Status, "original must not change")

	// a clock that has not moved still yields a strictly newer token
	same := order.WithStatus(StatusDelivered, created)
	assert.True(t, same.UpdatedAt.After(created))
}

func TestTopicsFor(t *testing.T) {
	staff := "w-9"
	order := &Order{ID: "o-1", Location: LocationRef{ServicePointID: "bar-1"}, AssignedStaff: &staff}

	assert.Equal(t, []Topic{
		"staff:w-9",
		"service-point:bar-1",
		TopicKitchen,
		TopicAllStaff,
	}, TopicsFor(order))

	order.AssignedStaff = nil
	order.Location = LocationRef{TableID: "4"}
	assert.Equal(t, []Topic{"table:4", TopicKitchen, TopicAllStaff}, TopicsFor(order))
}

func TestZoneMap(t *testing.T) {
	zones := ZoneMap{"service-point:bar-1": "bar"}

	assert.Equal(t, "bar", zones.ZoneOf(LocationRef{ServicePointID: "bar-1"}))
	assert.Equal(t, "", zones.ZoneOf(LocationRef{TableID: "1"}))
	assert.Equal(t, "", ZoneMap(nil).ZoneOf(LocationRef{TableID: "1"}))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(NewTransitionError(CodeConflict, "x")))
	assert.Equal(t, CodeNotFound, CodeOf(ErrNotFound))
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}
