package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
)

// orderRepository keeps orders in process memory. Every order has its own
// entry lock so compare-and-swap writes to different orders never contend.
type orderRepository struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	order   *domain.Order
	history []*domain.StatusLog
}

func NewOrderRepository() interfaces.OrderRepository {
	return &orderRepository{
		entries: make(map[string]*entry),
	}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, createdBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.entries[order.ID] = &entry{
		order: order.Clone(),
		history: []*domain.StatusLog{{
			ID:        1,
			OrderID:   order.ID,
			Status:    order.Status,
			ChangedBy: createdBy,
			ChangedAt: order.CreatedAt,
		}},
	}
	return nil
}

func (r *orderRepository) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.order == nil {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return e.order.Clone(), nil
}

func (r *orderRepository) List(ctx context.Context, filter interfaces.OrderFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	orders := make([]*domain.Order, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		o := e.order.Clone()
		e.mu.Unlock()

		if o == nil {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.AssignedStaff != "" && !o.IsAssignedTo(filter.AssignedStaff) {
			continue
		}
		orders = append(orders, o)
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepository) CompareAndSwapStatus(ctx context.Context, change interfaces.StatusChange) (*domain.Order, error) {
	e, ok := r.lookup(change.OrderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", change.OrderID, domain.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.order == nil {
		return nil, fmt.Errorf("order %s: %w", change.OrderID, domain.ErrNotFound)
	}
	if !e.order.UpdatedAt.Equal(change.ExpectedUpdatedAt) {
		return nil, fmt.Errorf("order %s: %w", change.OrderID, domain.ErrStaleWrite)
	}

	next := e.order.Clone()
	next.Status = change.Status
	next.UpdatedAt = change.UpdatedAt
	if next.AssignedStaff == nil && change.ClaimBy != "" {
		claim := change.ClaimBy
		next.AssignedStaff = &claim
	}
	e.order = next
	e.history = append(e.history, &domain.StatusLog{
		ID:        len(e.history) + 1,
		OrderID:   next.ID,
		Status:    next.Status,
		ChangedBy: change.ChangedBy,
		ChangedAt: next.UpdatedAt,
	})

	return next.Clone(), nil
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}

	// writers holding the entry see a nil order and report not found
	e.mu.Lock()
	e.order = nil
	e.mu.Unlock()
	return nil
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	e, ok := r.lookup(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	logs := make([]*domain.StatusLog, len(e.history))
	for i, l := range e.history {
		c := *l
		logs[i] = &c
	}
	return logs, nil
}
