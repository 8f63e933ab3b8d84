package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/amasampo/cart-service/internal/cache"
	"github.com/fjod/amasampo/cart-service/internal/catalog"
	"github.com/fjod/amasampo/cart-service/internal/repository"
	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxSaveAttempts bounds load/mutate/save retries on version conflicts.
const maxSaveAttempts = 3

// ErrConcurrentUpdate is returned when every save attempt lost the race.
var ErrConcurrentUpdate = fmt.Errorf("cart is being updated elsewhere: %w", repository.ErrVersionConflict)

// Result is a cart after a read or mutation, with any stock notices it produced.
type Result struct {
	Cart    *cart.Cart
	Notices []cart.LimitExceededError
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Catalog
	log     *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, products catalog.Catalog, log *zap.Logger) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: products,
		log:     log,
	}
}

// GetCart returns the cart reconciled against current stock. Concurrent
// reads for the same user share one load; the returned cart must not be
// mutated by the caller.
func (s *CartService) GetCart(ctx context.Context, userID string) (*Result, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		log := logger.FromContext(ctx, s.log)

		c, err := s.cache.Get(ctx, userID)
		fromCache := err == nil
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err)) // continue with the repository
		}

		if !fromCache {
			c, err = s.load(ctx, userID)
			if err != nil {
				return nil, err
			}
		}

		base := c.Version()
		notices, err := s.reconcile(ctx, c)
		if err != nil {
			return nil, err
		}

		switch {
		case c.Version() != base:
			if errSave := s.repo.SaveCart(ctx, userID, c, base); errSave != nil {
				// Someone else wrote first; the next read reconciles their version.
				log.Info("reconciled cart not saved", zap.String("user_id", userID), zap.Error(errSave))
				break
			}
			s.invalidateCache(ctx, userID)
		case !fromCache && base > 0:
			s.fillCache(userID, c)
		}

		return &Result{Cart: c, Notices: notices}, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*Result), nil
}

// AddItem adds quantity of the product, merging with any existing line.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*Result, error) {
	if productID <= 0 {
		return nil, &cart.ValidationError{Field: "product_id", Reason: "must be greater than 0"}
	}
	if quantity < 1 {
		return nil, &cart.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lookup product %d: %w", productID, err)
	}

	return s.mutate(ctx, userID, func(c *cart.Cart) ([]cart.Outcome, error) {
		out, err := c.Add(p.LineItem(), quantity)
		if err != nil {
			return nil, err
		}
		return []cart.Outcome{out}, nil
	})
}

// UpdateQuantity sets the quantity of a product already in the cart, after
// refreshing its stock from the catalog. Zero removes the item.
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*Result, error) {
	available := 0
	p, err := s.catalog.GetProduct(ctx, productID)
	switch {
	case err == nil:
		available = p.Stock
	case errors.Is(err, catalog.ErrProductNotFound):
		// Delisted products count as sold out.
	default:
		return nil, fmt.Errorf("lookup product %d: %w", productID, err)
	}

	return s.mutate(ctx, userID, func(c *cart.Cart) ([]cart.Outcome, error) {
		if out, changed := c.SetAvailable(productID, available); changed && out.Removed {
			if quantity > 0 {
				out.Notice = &cart.LimitExceededError{ProductID: productID, Requested: quantity, Available: 0}
			}
			return []cart.Outcome{out}, nil
		}
		out, err := c.Update(productID, quantity)
		if err != nil {
			return nil, err
		}
		return []cart.Outcome{out}, nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) (*Result, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) ([]cart.Outcome, error) {
		c.Remove(productID)
		return nil, nil
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID string) (*Result, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) ([]cart.Outcome, error) {
		c.Clear()
		return nil, nil
	})
}

// ClearAfterOrder empties the cart once an order built from it is placed.
// If the cart changed after the order was built, only the ordered products
// are removed so later additions survive.
func (s *CartService) ClearAfterOrder(ctx context.Context, userID string, cartVersion int64, ordered []int64) (*Result, error) {
	return s.mutate(ctx, userID, func(c *cart.Cart) ([]cart.Outcome, error) {
		if c.Version() == cartVersion {
			c.Clear()
			return nil, nil
		}
		for _, id := range ordered {
			c.Remove(id)
		}
		return nil, nil
	})
}

// mutate runs fn on the stored cart and saves it if the version moved. A
// conflicting save reloads and runs fn again.
func (s *CartService) mutate(ctx context.Context, userID string, fn func(c *cart.Cart) ([]cart.Outcome, error)) (*Result, error) {
	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", userID))

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		c, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		base := c.Version()
		outcomes, err := fn(c)
		if err != nil {
			return nil, err
		}
		if c.Version() == base {
			return &Result{Cart: c, Notices: notices(outcomes)}, nil
		}

		err = s.repo.SaveCart(ctx, userID, c, base)
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Debug("cart version conflict, retrying", zap.Int("attempt", attempt), zap.Int64("version", base))
			continue
		}
		if err != nil {
			log.Error("repo save cart failed", zap.Error(err))
			return nil, err
		}

		s.invalidateCache(ctx, userID)
		return &Result{Cart: c, Notices: notices(outcomes)}, nil
	}

	log.Warn("cart save gave up after conflicts", zap.Int("attempts", maxSaveAttempts))
	return nil, ErrConcurrentUpdate
}

// load reads the stored cart; a user without one gets an empty cart at version 0.
func (s *CartService) load(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CartService) reconcile(ctx context.Context, c *cart.Cart) ([]cart.LimitExceededError, error) {
	if c.Len() == 0 {
		return nil, nil
	}
	items := c.Items()
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return notices(c.Reconcile(catalog.StockLevels(products))), nil
}

func (s *CartService) fillCache(userID string, c *cart.Cart) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, userID, c); err != nil {
			s.log.Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

func (s *CartService) invalidateCache(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		logger.FromContext(ctx, s.log).Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func notices(outcomes []cart.Outcome) []cart.LimitExceededError {
	var out []cart.LimitExceededError
	for _, o := range outcomes {
		if o.Notice != nil {
			out = append(out, *o.Notice)
		}
	}
	return out
}
