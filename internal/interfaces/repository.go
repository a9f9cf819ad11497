package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// OrderFilter narrows a list query. Zero values match everything.
type OrderFilter struct {
	Status        domain.Status
	AssignedStaff string
}

// StatusChange is a compare-and-swap request against a stored order.
type StatusChange struct {
	OrderID           string
	ExpectedUpdatedAt time.Time
	Status            domain.Status
	UpdatedAt         time.Time
	// ClaimBy assigns the order when it has no assigned staff yet.
	ClaimBy   string
	ChangedBy string
}

// OrderRepository is implemented by adapter/postgres and adapter/memory.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order, createdBy string) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	// CompareAndSwapStatus applies change only if the stored updated_at equals
	// change.ExpectedUpdatedAt. It returns domain.ErrStaleWrite on a miss and
	// domain.ErrNotFound when the order does not exist.
	CompareAndSwapStatus(ctx context.Context, change StatusChange) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
	GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}
