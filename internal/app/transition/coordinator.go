// Package transition applies status mutations to stored orders.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
)

type Coordinator struct {
	repo      interfaces.OrderRepository
	publisher interfaces.EventPublisher
	policy    *domain.Policy
	zones     domain.ZoneMap
	logger    logger.Logger
	now       func() time.Time
}

var _ interfaces.TransitionService = (*Coordinator)(nil)

func NewCoordinator(
	repo interfaces.OrderRepository,
	publisher interfaces.EventPublisher,
	policy *domain.Policy,
	zones domain.ZoneMap,
	logger logger.Logger,
) *Coordinator {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &Coordinator{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
		zones:     zones,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyTransition moves an order to requested on behalf of actor.
//
// The write is a compare-and-swap on updatedAt. When it misses, the order is
// re-read once: a status that moved means another actor won and the caller
// gets CONFLICT. An unchanged status is re-validated and written once more.
func (c *Coordinator) ApplyTransition(ctx context.Context, orderID string, requested domain.Status, actor domain.StaffIdentity) (*domain.Order, error) {
	if !requested.Valid() {
		return nil, domain.NewTransitionError(domain.CodeInvalidTransition,
			fmt.Sprintf("unknown status %q", requested))
	}

	order, err := c.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := c.policy.Authorize(order.Status, requested, actor, c.zones.ZoneOf(order.Location)); err != nil {
			return nil, err
		}

		next := order.WithStatus(requested, c.now())
		updated, err := c.repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{
			OrderID:           order.ID,
			ExpectedUpdatedAt: order.UpdatedAt,
			Status:            requested,
			UpdatedAt:         next.UpdatedAt,
			ClaimBy:           claimant(actor),
			ChangedBy:         actor.ID,
		})
		if err == nil {
			c.logger.Info("order_status_changed", "Order status changed", "", map[string]interface{}{
				"order_id":   updated.ID,
				"old_status": order.Status,
				"new_status": updated.Status,
				"changed_by": actor.ID,
				"role":       actor.Role,
			})
			c.publisher.Publish(ctx, domain.StatusChangedEvent(updated), domain.TopicsFor(updated))
			return updated, nil
		}

		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, notFound(orderID)
		case !errors.Is(err, domain.ErrStaleWrite):
			return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
		}

		fresh, err := c.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != order.Status {
			return nil, conflict(orderID, fresh.Status)
		}
		order = fresh
	}

	c.logger.Debug("order_status_conflict", "Compare-and-swap missed twice", "", map[string]interface{}{
		"order_id": orderID,
		"target":   requested,
	})
	return nil, conflict(orderID, order.Status)
}

// AllowedNext lists the statuses actor may move the order to right now,
// zone restrictions included.
func (c *Coordinator) AllowedNext(ctx context.Context, orderID string, actor domain.StaffIdentity) ([]domain.Status, error) {
	order, err := c.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	zone := c.zones.ZoneOf(order.Location)
	allowed := make([]domain.Status, 0, 2)
	for _, candidate := range c.policy.AllowedNext(order.Status, actor.Role).Slice() {
		if c.policy.Authorize(order.Status, candidate, actor, zone) == nil {
			allowed = append(allowed, candidate)
		}
	}
	return allowed, nil
}

func (c *Coordinator) load(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := c.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound(orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return order, nil
}

// claimant is the staff id a winning write assigns to an unassigned order.
func claimant(actor domain.StaffIdentity) string {
	if actor.IsAdmin() {
		return ""
	}
	return actor.ID
}

func notFound(orderID string) error {
	return domain.NewTransitionError(domain.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
}

func conflict(orderID string, current domain.Status) error {
	return domain.NewTransitionError(domain.CodeConflict,
		fmt.Sprintf("order %s was changed by someone else and is now %s", orderID, current))
}
