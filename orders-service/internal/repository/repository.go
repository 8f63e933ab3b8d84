package repository

import (
	"context"
	"errors"

	"github.com/fjod/amasampo/orders-service/internal/domain"
	"github.com/fjod/amasampo/pkg/order"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	// CreateOrder returns ErrDuplicateOrder when the order id is taken,
	// which happens when an order event is redelivered.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	// UpdateStatus applies the transition under a row lock.
	UpdateStatus(ctx context.Context, id string, to order.Status) (*domain.Order, error)
	RunMigrations(*Credentials) error
	Close() error
}
