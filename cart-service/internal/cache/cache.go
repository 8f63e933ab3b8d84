package cache

import (
	"context"
	"errors"

	"github.com/fjod/amasampo/pkg/cart"
)

type CartCache interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Set(ctx context.Context, userID string, c *cart.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
