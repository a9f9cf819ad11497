package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LocationKind names where an order was placed.
type LocationKind string

const (
	LocationTable        LocationKind = "table"
	LocationServicePoint LocationKind = "service-point"
	LocationSite         LocationKind = "location"
)

// LocationRef identifies exactly one of a table, a service point or a location.
type LocationRef struct {
	TableID        string `json:"tableId,omitempty"`
	ServicePointID string `json:"servicePointId,omitempty"`
	LocationID     string `json:"locationId,omitempty"`
}

func (l LocationRef) Kind() LocationKind {
	switch {
	case l.TableID != "":
		return LocationTable
	case l.ServicePointID != "":
		return LocationServicePoint
	case l.LocationID != "":
		return LocationSite
	}
	return ""
}

// Ref returns the id of whichever reference is set.
func (l LocationRef) Ref() string {
	switch l.Kind() {
	case LocationTable:
		return l.TableID
	case LocationServicePoint:
		return l.ServicePointID
	case LocationSite:
		return l.LocationID
	}
	return ""
}

func (l LocationRef) Validate() error {
	set := 0
	for _, v := range []string{l.TableID, l.ServicePointID, l.LocationID} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of tableId, servicePointId, locationId is required", ErrInvalidOrder)
	}
	return nil
}

// Order represents a restaurant order entity
type Order struct {
	ID            string          `json:"id"`
	Location      LocationRef     `json:"location"`
	Status        Status          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItem     `json:"items"`
	AssignedStaff *string         `json:"assignedStaff,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderItem represents an item in an order
type OrderItem struct {
	ProductRef string  `json:"productRef"`
	Quantity   int     `json:"quantity"`
	Notes      *string `json:"notes,omitempty"`
}

// NewOrder creates a pending order with business rules applied
func NewOrder(location LocationRef, items []OrderItem, total decimal.Decimal, assignedStaff *string, now time.Time) (*Order, error) {
	ts := Timestamp(now)
	order := &Order{
		ID:            uuid.NewString(),
		Location:      location,
		Status:        StatusPending,
		Total:         total,
		Items:         items,
		AssignedStaff: assignedStaff,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate applies business validation rules
func (o *Order) Validate() error {
	if err := o.Location.Validate(); err != nil {
		return err
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("%w: total must not be negative", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", ErrInvalidOrder)
	}
	for i, item := range o.Items {
		if strings.TrimSpace(item.ProductRef) == "" {
			return fmt.Errorf("%w: items[%d].productRef is required", ErrInvalidOrder, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrInvalidOrder, i)
		}
	}
	return nil
}

func (o *Order) IsAssignedTo(staffID string) bool {
	return staffID != "" && o.AssignedStaff != nil && *o.AssignedStaff == staffID
}

// Clone returns a deep copy so callers can mutate it freely.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.AssignedStaff != nil {
		staff := *o.AssignedStaff
		c.AssignedStaff = &staff
	}
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

// WithStatus returns the successor state of the order for a status mutation.
// UpdatedAt strictly increases so it remains usable as a compare-and-swap token.
func (o *Order) WithStatus(next Status, now time.Time) *Order {
	c := o.Clone()
	c.Status = next
	c.UpdatedAt = NextTimestamp(o.UpdatedAt, now)
	return c
}

// Timestamp normalises t to the precision the store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NextTimestamp returns now, or prev+1µs when the clock has not moved past prev.
func NextTimestamp(prev, now time.Time) time.Time {
	ts := Timestamp(now)
	if !ts.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return ts
}
