package service

import (
	"context"
	"errors"
	"fmt"

	r "github.com/fjod/amasampo/checkout-service/internal/repository"
	"github.com/fjod/amasampo/pkg/apiclient"
	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/fjod/amasampo/pkg/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCartChanged means the items the buyer confirmed no longer match the cart
// held by the server.
var ErrCartChanged = errors.New("cart changed since it was reviewed")

// CartSource reads the authoritative cart. *apiclient.Client satisfies it.
type CartSource interface {
	GetCart(ctx context.Context, sess apiclient.Session) (*apiclient.CartResponse, error)
}

type PlaceOrderRequest struct {
	UserID         string
	IdempotencyKey string
	// Items is what the buyer reviewed. Empty skips the comparison.
	Items                []apiclient.OrderItem
	DeliveryAddress      *order.DeliveryAddress
	PaymentMethodID      string
	DeliveryInstructions string
}

type CheckoutService struct {
	repo    r.RepoInterface
	carts   CartSource
	builder *order.Builder
	log     *zap.Logger
}

func NewCheckoutService(repo r.RepoInterface, carts CartSource, rules pricing.Rules, log *zap.Logger) *CheckoutService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutService{
		repo:    repo,
		carts:   carts,
		builder: order.NewBuilder(rules),
		log:     log,
	}
}

// PlaceOrder freezes the user's cart into an order. The second return value
// is false when the idempotency key was already used and the existing order
// is returned instead.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Snapshot, bool, error) {
	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", req.UserID))

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetCheckoutByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			log.Info("checkout replayed", zap.String("order_id", existing.ID()))
			return existing, false, nil
		}
		if !errors.Is(err, r.ErrCheckoutNotFound) {
			return nil, false, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	var pm *order.PaymentMethod
	if req.PaymentMethodID != "" {
		found, err := s.repo.GetPaymentMethod(ctx, req.UserID, req.PaymentMethodID)
		if err != nil {
			return nil, false, fmt.Errorf("get payment method: %w", err)
		}
		pm = found
	}

	resp, err := s.carts.GetCart(ctx, apiclient.Session{UserID: req.UserID})
	if err != nil {
		return nil, false, fmt.Errorf("fetch cart: %w", err)
	}
	c, err := resp.Cart()
	if err != nil {
		return nil, false, fmt.Errorf("restore cart: %w", err)
	}

	if len(req.Items) > 0 && !sameItems(req.Items, c) {
		return nil, false, ErrCartChanged
	}

	snap, err := s.builder.Build(req.UserID, c, req.DeliveryAddress, pm, req.DeliveryInstructions)
	if err != nil {
		return nil, false, err
	}

	err = s.repo.CreateCheckout(ctx, snap, req.IdempotencyKey)
	if errors.Is(err, r.ErrDuplicateCheckout) {
		// A concurrent request with the same key won
		existing, errGet := s.repo.GetCheckoutByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if errGet != nil {
			return nil, false, fmt.Errorf("load concurrent checkout: %w", errGet)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create checkout: %w", err)
	}

	log.Info("order placed",
		zap.String("order_id", snap.ID()),
		zap.Int64("cart_version", snap.CartVersion()),
		zap.String("total", snap.Summary().Total.StringFixed(2)))
	return snap, true, nil
}

func (s *CheckoutService) ListPaymentMethods(ctx context.Context, userID string) ([]order.PaymentMethod, error) {
	methods, err := s.repo.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}

// AddPaymentMethod stores a new method under a generated id. The first
// method a user adds becomes the default.
func (s *CheckoutService) AddPaymentMethod(ctx context.Context, userID string, pm order.PaymentMethod) (*order.PaymentMethod, error) {
	pm.ID = uuid.New().String()
	if err := pm.Validate(); err != nil {
		return nil, err
	}

	if !pm.IsDefault {
		existing, err := s.repo.ListPaymentMethods(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list payment methods: %w", err)
		}
		pm.IsDefault = len(existing) == 0
	}

	if err := s.repo.CreatePaymentMethod(ctx, userID, pm); err != nil {
		return nil, fmt.Errorf("create payment method: %w", err)
	}
	return &pm, nil
}

// sameItems reports whether the reviewed items match the cart line for line.
func sameItems(reviewed []apiclient.OrderItem, c *cart.Cart) bool {
	items := c.Items()
	if len(reviewed) != len(items) {
		return false
	}
	want := make(map[int64]int, len(items))
	for _, it := range items {
		want[it.ProductID] = it.Quantity
	}
	for _, it := range reviewed {
		q, ok := want[it.ProductID]
		if !ok || q != it.Quantity {
			return false
		}
		delete(want, it.ProductID)
	}
	return true
}
