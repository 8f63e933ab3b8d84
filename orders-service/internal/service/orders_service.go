package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/amasampo/orders-service/internal/domain"
	"github.com/fjod/amasampo/orders-service/internal/repository"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/order"
	"go.uber.org/zap"
)

type OrdersService struct {
	repo repository.OrderRepository
	log  *zap.Logger
}

func NewOrdersService(repo repository.OrderRepository, log *zap.Logger) *OrdersService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersService{repo: repo, log: log}
}

// RecordPlaced stores an order received from checkout. A redelivered event
// is not an error; created reports whether this call stored it.
func (s *OrdersService) RecordPlaced(ctx context.Context, rec order.Record) (bool, error) {
	if rec.ID == "" || rec.UserID == "" {
		return false, errors.New("order record missing id or user_id")
	}

	err := s.repo.CreateOrder(ctx, domain.FromRecord(rec))
	if errors.Is(err, repository.ErrDuplicateOrder) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create order %s: %w", rec.ID, err)
	}
	return true, nil
}

func (s *OrdersService) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, err := s.repo.ListOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder hides orders of other users behind ErrOrderNotFound.
func (s *OrdersService) GetOrder(ctx context.Context, userID, id string) (*domain.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

// CancelOrder lets a buyer cancel their own order until it is delivered.
func (s *OrdersService) CancelOrder(ctx context.Context, userID, id string) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, id, order.StatusCancelled)
}

// UpdateStatus moves an order along its lifecycle. It is not scoped to a
// user; fulfilment staff drive it.
func (s *OrdersService) UpdateStatus(ctx context.Context, id string, to order.Status) (*domain.Order, error) {
	o, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.log).Info("order status changed",
		zap.String("order_id", id),
		zap.String("status", to.String()))
	return o, nil
}
