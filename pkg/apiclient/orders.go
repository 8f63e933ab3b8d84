package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/amasampo/pkg/order"
)

type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items                []OrderItem            `json:"items,omitempty"`
	DeliveryAddress      *order.DeliveryAddress `json:"delivery_address"`
	PaymentMethodID      string                 `json:"payment_method_id"`
	DeliveryInstructions string                 `json:"delivery_instructions,omitempty"`
	// IdempotencyKey makes a re-submitted checkout return the first order.
	IdempotencyKey string `json:"-"`
}

type addPaymentMethodRequest struct {
	Type       order.PaymentType `json:"type"`
	Brand      string            `json:"brand,omitempty"`
	Last4      string            `json:"last4,omitempty"`
	HolderName string            `json:"holder_name,omitempty"`
	IsDefault  bool              `json:"is_default"`
}

// OrderView is an order as seen after checkout, with its current status.
type OrderView struct {
	order.Record
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Client) PlaceOrder(ctx context.Context, sess Session, req PlaceOrderRequest) (*order.Snapshot, error) {
	var rec order.Record
	var headers []string
	if req.IdempotencyKey != "" {
		headers = append(headers, "Idempotency-Key", req.IdempotencyKey)
	}
	if err := c.do(ctx, sess, http.MethodPost, "/orders", req, &rec, headers...); err != nil {
		return nil, err
	}
	return order.FromRecord(rec), nil
}

func (c *Client) ListOrders(ctx context.Context, sess Session) ([]OrderView, error) {
	var out struct {
		Orders []OrderView `json:"orders"`
	}
	if err := c.do(ctx, sess, http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, sess Session, id string) (*OrderView, error) {
	var out OrderView
	if err := c.do(ctx, sess, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPaymentMethods(ctx context.Context, sess Session) ([]order.PaymentMethod, error) {
	var out struct {
		PaymentMethods []order.PaymentMethod `json:"payment_methods"`
	}
	if err := c.do(ctx, sess, http.MethodGet, "/payment-methods", nil, &out); err != nil {
		return nil, err
	}
	return out.PaymentMethods, nil
}

// AddPaymentMethod stores a method; the server assigns its id.
func (c *Client) AddPaymentMethod(ctx context.Context, sess Session, pm order.PaymentMethod) (*order.PaymentMethod, error) {
	req := addPaymentMethodRequest{
		Type:       pm.Type,
		Brand:      pm.Brand,
		Last4:      pm.Last4,
		HolderName: pm.HolderName,
		IsDefault:  pm.IsDefault,
	}
	var out order.PaymentMethod
	if err := c.do(ctx, sess, http.MethodPost, "/payment-methods", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelOrder(ctx context.Context, sess Session, id string) (*OrderView, error) {
	var out OrderView
	if err := c.do(ctx, sess, http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
