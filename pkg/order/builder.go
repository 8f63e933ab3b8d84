// Package order freezes carts into immutable order snapshots and defines the
// order status lifecycle.
package order

import (
	"time"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/pricing"
	"github.com/google/uuid"
)

type Builder struct {
	Rules pricing.Rules
	Now   func() time.Time
	NewID func() string
}

func NewBuilder(rules pricing.Rules) *Builder {
	return &Builder{
		Rules: rules,
		Now:   time.Now,
		NewID: func() string { return uuid.New().String() },
	}
}

// Build freezes the cart with the chosen address and payment method. The
// cart is left untouched; clearing it after submission is up to the caller.
func (b *Builder) Build(userID string, c *cart.Cart, addr *DeliveryAddress, pm *PaymentMethod, instructions string) (*Snapshot, error) {
	if addr == nil {
		return nil, ErrMissingAddress
	}
	if pm == nil {
		return nil, ErrMissingPaymentMethod
	}
	if c == nil || c.TotalItems() == 0 {
		return nil, ErrEmptyCart
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}

	summary, err := pricing.Compute(c, b.Rules)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := func() string { return uuid.New().String() }
	if b.NewID != nil {
		newID = b.NewID
	}

	return &Snapshot{
		id:           newID(),
		userID:       userID,
		items:        c.Items(),
		address:      *addr,
		payment:      *pm,
		instructions: instructions,
		summary:      summary,
		status:       StatusPending,
		cartVersion:  c.Version(),
		createdAt:    now().UTC(),
	}, nil
}
