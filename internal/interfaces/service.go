package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/shopspring/decimal"
)

// TransitionService validates and applies status changes.
type TransitionService interface {
	ApplyTransition(ctx context.Context, orderID string, requested domain.Status, actor domain.StaffIdentity) (*domain.Order, error)
	AllowedNext(ctx context.Context, orderID string, actor domain.StaffIdentity) ([]domain.Status, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand, actor domain.StaffIdentity) (*domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string, actor domain.StaffIdentity) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) (*OrderSnapshot, error)
}

type TrackingService interface {
	GetOrderHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}

// CreateOrderCommand carries a validated create request.
type CreateOrderCommand struct {
	Location      domain.LocationRef
	Items         []domain.OrderItem
	Total         decimal.Decimal
	AssignedStaff *string
}

// OrderSnapshot is a full list read. AsOf is taken before the read, so any
// change newer than AsOf may be missing from Orders.
type OrderSnapshot struct {
	Orders []*domain.Order `json:"orders"`
	AsOf   time.Time       `json:"as_of"`
}
