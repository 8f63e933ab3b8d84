package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/pricing"
)

// CartResponse is the body of every cart endpoint.
type CartResponse struct {
	Items        []cart.LineItem           `json:"cart_items"`
	Summary      pricing.Summary           `json:"summary"`
	Version      int64                     `json:"version"`
	SellerGroups []cart.SellerGroup        `json:"seller_groups,omitempty"`
	Notices      []cart.LimitExceededError `json:"notices,omitempty"`
}

// Cart rebuilds the aggregate from the response.
func (r *CartResponse) Cart() (*cart.Cart, error) {
	return cart.Restore(cart.State{Items: r.Items, Version: r.Version})
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (c *Client) GetCart(ctx context.Context, sess Session) (*CartResponse, error) {
	var out CartResponse
	if err := c.do(ctx, sess, http.MethodGet, "/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddItem(ctx context.Context, sess Session, productID int64, quantity int) (*CartResponse, error) {
	return c.mutateItem(productID, func() (*CartResponse, error) {
		var out CartResponse
		err := c.do(ctx, sess, http.MethodPost, "/cart/items", addItemRequest{ProductID: productID, Quantity: quantity}, &out)
		return &out, err
	})
}

// UpdateItem sets the quantity of a product. Zero or less removes it.
func (c *Client) UpdateItem(ctx context.Context, sess Session, productID int64, quantity int) (*CartResponse, error) {
	return c.mutateItem(productID, func() (*CartResponse, error) {
		var out CartResponse
		err := c.do(ctx, sess, http.MethodPut, fmt.Sprintf("/cart/item/%d", productID), updateItemRequest{Quantity: quantity}, &out)
		return &out, err
	})
}

func (c *Client) RemoveItem(ctx context.Context, sess Session, productID int64) (*CartResponse, error) {
	return c.mutateItem(productID, func() (*CartResponse, error) {
		var out CartResponse
		err := c.do(ctx, sess, http.MethodDelete, fmt.Sprintf("/cart/item/%d", productID), nil, &out)
		return &out, err
	})
}

func (c *Client) ClearCart(ctx context.Context, sess Session) (*CartResponse, error) {
	var out CartResponse
	if err := c.do(ctx, sess, http.MethodDelete, "/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Updating reports whether a request for productID is in flight.
func (c *Client) Updating(productID int64) bool {
	return c.inflight.busy(productID)
}

func (c *Client) mutateItem(productID int64, fn func() (*CartResponse, error)) (*CartResponse, error) {
	if !c.inflight.acquire(productID) {
		return nil, ErrItemBusy
	}
	defer c.inflight.release(productID)

	out, err := fn()
	if err != nil {
		return nil, err
	}
	return out, nil
}
