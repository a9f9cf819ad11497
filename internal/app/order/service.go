package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo      interfaces.OrderRepository
	publisher interfaces.EventPublisher
	cache     interfaces.SnapshotCache
	logger    logger.Logger
	now       func() time.Time
	group     singleflight.Group
}

var _ interfaces.OrderService = (*Service)(nil)

// NewService builds the order service. cache may be nil.
func NewService(repo interfaces.OrderRepository, publisher interfaces.EventPublisher, cache interfaces.SnapshotCache, logger logger.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) CreateOrder(ctx context.Context, cmd interfaces.CreateOrderCommand, actor domain.StaffIdentity) (*domain.Order, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.NewTransitionError(domain.CodeForbidden, "only staff may create orders")
	}

	order, err := domain.NewOrder(cmd.Location, cmd.Items, cmd.Total, cmd.AssignedStaff, s.now())
	if err != nil {
		s.logger.Error("validation_failed", "Order validation failed", "", nil, err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.repo.Create(ctx, order, actor.ID); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to create order", "", nil, err)
		return nil, err
	}
	s.logger.Info("order_created", "Order created", "", map[string]interface{}{
		"order_id": order.ID,
		"location": order.Location.Ref(),
		"by":       actor.ID,
	})

	s.publisher.Publish(ctx, domain.CreatedEvent(order), domain.TopicsFor(order))
	return order, nil
}

func (s *Service) DeleteOrder(ctx context.Context, orderID string, actor domain.StaffIdentity) error {
	if !actor.IsAdmin() {
		return domain.NewTransitionError(domain.CodeForbidden, "only admins may delete orders")
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, orderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound(orderID)
		}
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	s.logger.Info("order_deleted", "Order deleted", "", map[string]interface{}{"order_id": orderID, "by": actor.ID})

	s.publisher.Publish(ctx, domain.DeletedEvent(order, s.now()), domain.TopicsFor(order))
	return nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound(orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return order, nil
}

// ListOrders returns a snapshot of the store. Snapshots are served from the
// cache until the next order event bumps its generation; concurrent misses for
// the same query share one store read.
func (s *Service) ListOrders(ctx context.Context, filter interfaces.OrderFilter) (*interfaces.OrderSnapshot, error) {
	if s.cache == nil {
		return s.readSnapshot(ctx, filter)
	}

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Error("cache_unavailable", "Snapshot cache generation lookup failed", "", nil, err)
		return s.readSnapshot(ctx, filter)
	}
	key := snapshotKey(gen, filter)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Error("cache_unavailable", "Snapshot cache read failed", "", map[string]interface{}{"key": key}, err)
	} else if ok {
		var snapshot interfaces.OrderSnapshot
		if err := json.Unmarshal(data, &snapshot); err == nil {
			return &snapshot, nil
		}
		s.logger.Debug("cache_corrupt", "Ignoring undecodable snapshot", "", map[string]interface{}{"key": key})
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		snapshot, err := s.readSnapshot(ctx, filter)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(snapshot)
		if err == nil {
			err = s.cache.Set(ctx, key, data)
		}
		if err != nil {
			s.logger.Error("cache_write_failed", "Failed to cache snapshot", "", map[string]interface{}{"key": key}, err)
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*interfaces.OrderSnapshot), nil
}

// InvalidateSnapshots drops cached snapshots. It runs for every order event.
func (s *Service) InvalidateSnapshots(ctx context.Context, event domain.Event) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error("cache_invalidate_failed", "Failed to invalidate snapshots", "", map[string]interface{}{
			"order_id": event.OrderID,
			"kind":     event.Kind,
		}, err)
	}
}

func (s *Service) readSnapshot(ctx context.Context, filter interfaces.OrderFilter) (*interfaces.OrderSnapshot, error) {
	asOf := domain.Timestamp(s.now())
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return &interfaces.OrderSnapshot{Orders: orders, AsOf: asOf}, nil
}

func snapshotKey(gen int64, filter interfaces.OrderFilter) string {
	return fmt.Sprintf("orders:%d:%s:%s", gen, filter.Status, filter.AssignedStaff)
}

func notFound(orderID string) error {
	return domain.NewTransitionError(domain.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
}
