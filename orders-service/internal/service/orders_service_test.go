package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/amasampo/orders-service/internal/domain"
	"github.com/fjod/amasampo/orders-service/internal/repository"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mu        sync.RWMutex
	orders    map[string]*domain.Order
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: make(map[string]*domain.Order)}
}

func (m *mockRepository) CreateOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.orders[o.ID]; ok {
		return repository.ErrDuplicateOrder
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockRepository) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id string, to order.Status) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := o.Transition(to, time.Now()); err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) RunMigrations(*repository.Credentials) error { return nil }
func (m *mockRepository) Close() error                                { return nil }

func record(id, userID string) order.Record {
	return order.Record{ID: id, UserID: userID, Status: order.StatusPending, CreatedAt: time.Now()}
}

func TestRecordPlaced(t *testing.T) {
	repo := newMockRepository()
	s := NewOrdersService(repo, nil)

	created, err := s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	require.NoError(t, err)
	assert.True(t, created)

	// Redelivery is absorbed
	created, err = s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, repo.orders, 1)
}

func TestRecordPlaced_Errors(t *testing.T) {
	repo := newMockRepository()
	s := NewOrdersService(repo, nil)

	_, err := s.RecordPlaced(context.Background(), record("", "user-1"))
	assert.Error(t, err)

	repo.createErr = errors.New("database connection error")
	_, err = s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	assert.ErrorContains(t, err, "database connection error")
}

func TestGetOrder_ScopedToOwner(t *testing.T) {
	repo := newMockRepository()
	s := NewOrdersService(repo, nil)
	_, err := s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	require.NoError(t, err)

	o, err := s.GetOrder(context.Background(), "user-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)

	_, err = s.GetOrder(context.Background(), "user-2", "order-1")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)

	list, err := s.ListOrders(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCancelOrder(t *testing.T) {
	repo := newMockRepository()
	s := NewOrdersService(repo, nil)
	_, err := s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	require.NoError(t, err)

	_, err = s.CancelOrder(context.Background(), "user-2", "order-1")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)

	o, err := s.CancelOrder(context.Background(), "user-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)

	_, err = s.CancelOrder(context.Background(), "user-1", "order-1")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	repo := newMockRepository()
	s := NewOrdersService(repo, nil)
	_, err := s.RecordPlaced(context.Background(), record("order-1", "user-1"))
	require.NoError(t, err)

	path := []order.Status{
		order.StatusConfirmed,
		order.StatusPreparing,
		order.StatusReady,
		order.StatusOutForDelivery,
		order.StatusDelivered,
	}
	for _, st := range path {
		o, err := s.UpdateStatus(context.Background(), "order-1", st)
		require.NoError(t, err, st)
		assert.Equal(t, st, o.Status)
	}

	_, err = s.UpdateStatus(context.Background(), "order-1", order.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}
