package repository

import (
	"context"
	"errors"

	"github.com/fjod/amasampo/pkg/cart"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	// ErrVersionConflict means the cart changed since it was loaded.
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	// SaveCart stores c only if the stored version still equals expectedVersion.
	SaveCart(ctx context.Context, userID string, c *cart.Cart, expectedVersion int64) error
	DeleteCart(ctx context.Context, userID string) error
}
