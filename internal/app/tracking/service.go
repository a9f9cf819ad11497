package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
)

type Service struct {
	orderRepo interfaces.OrderRepository
	logger    logger.Logger
}

var _ interfaces.TrackingService = (*Service)(nil)

func NewService(orderRepo interfaces.OrderRepository, logger logger.Logger) *Service {
	return &Service{
		orderRepo: orderRepo,
		logger:    logger,
	}
}

// GetOrderHistory returns every status an order went through, oldest first.
func (s *Service) GetOrderHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	history, err := s.orderRepo.GetStatusHistory(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewTransitionError(domain.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		s.logger.Error("history_failed", "Failed to load status history", "", map[string]interface{}{"order_id": orderID}, err)
		return nil, err
	}
	return history, nil
}
