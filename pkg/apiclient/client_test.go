package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/circuitbreaker"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleCart(version int64) CartResponse {
	return CartResponse{
		Items: []cart.LineItem{
			{ProductID: 1, Name: "Tomatoes", UnitPrice: decimal.RequireFromString("2.99"), Quantity: 3, AvailableQuantity: 50},
		},
		Version: version,
	}
}

func newTestClient(t *testing.T, r http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
}

func TestGetCart_SendsSession(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "7", r.Header.Get("X-User-ID"))
		writeJSON(w, http.StatusOK, sampleCart(4))
	})
	c := newTestClient(t, r)

	resp, err := c.GetCart(context.Background(), Session{UserID: "7", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Version)
	require.Len(t, resp.Items, 1)

	agg, err := resp.Cart()
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalItems())
}

func TestUpdateItem_DecodesAPIError(t *testing.T) {
	r := chi.NewRouter()
	r.Put("/cart/item/{product_id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product is not in the cart", "code": "invalid_argument"})
	})
	c := newTestClient(t, r)

	_, err := c.UpdateItem(context.Background(), Session{UserID: "1"}, 9, 2)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.True(t, IsCode(err, "invalid_argument"))
	assert.False(t, c.Updating(9))
}

func TestUpdateItem_SerializedPerProduct(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	r := chi.NewRouter()
	r.Put("/cart/item/{product_id}", func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		if chi.URLParam(r, "product_id") == "1" {
			<-release
		}
		writeJSON(w, http.StatusOK, sampleCart(2))
	})
	c := newTestClient(t, r)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.UpdateItem(context.Background(), Session{UserID: "1"}, 1, 4)
		assert.NoError(t, err)
	}()
	<-entered

	assert.True(t, c.Updating(1))
	_, err := c.UpdateItem(context.Background(), Session{UserID: "1"}, 1, 5)
	assert.ErrorIs(t, err, ErrItemBusy)

	// another product is not blocked
	_, err = c.UpdateItem(context.Background(), Session{UserID: "1"}, 2, 1)
	assert.NoError(t, err)

	close(release)
	wg.Wait()
	assert.False(t, c.Updating(1))
}

func TestCancelledContext_IsNetworkError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c := newTestClient(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetCart(ctx, Session{UserID: "1"})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestBreakerOpens_OnServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	bs := circuitbreaker.DefaultSettings("test")
	bs.ConsecutiveFailures = 2
	c := New(Config{BaseURL: srv.URL, Breaker: bs})

	for i := 0; i < 2; i++ {
		_, err := c.GetCart(context.Background(), Session{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}

	_, err := c.GetCart(context.Background(), Session{})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPlaceOrder(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var req PlaceOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pm-1", req.PaymentMethodID)

		writeJSON(w, http.StatusCreated, order.Record{ID: "o-1", Status: order.StatusPending, Items: sampleCart(1).Items})
	})
	c := newTestClient(t, r)

	snap, err := c.PlaceOrder(context.Background(), Session{UserID: "1"}, PlaceOrderRequest{
		DeliveryAddress: &order.DeliveryAddress{Street: "1 Main", City: "Lusaka"},
		PaymentMethodID: "pm-1",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", snap.ID())
	assert.Equal(t, order.StatusPending, snap.Status())
	assert.Len(t, snap.Items(), 1)
}

func TestAddPaymentMethod_OmitsClientID(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/payment-methods", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "id")
		assert.Equal(t, "card", body["type"])

		writeJSON(w, http.StatusCreated, order.PaymentMethod{ID: "pm-9", Type: order.PaymentCard, IsDefault: true})
	})
	c := newTestClient(t, r)

	pm, err := c.AddPaymentMethod(context.Background(), Session{UserID: "1"},
		order.PaymentMethod{ID: "ignored", Type: order.PaymentCard, Last4: "4242"})
	require.NoError(t, err)
	assert.Equal(t, "pm-9", pm.ID)
	assert.True(t, pm.IsDefault)
}

func TestCancelOrder(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "o-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found", "code": "order_not_found"})
			return
		}
		writeJSON(w, http.StatusOK, OrderView{Record: order.Record{ID: "o-1", Status: order.StatusCancelled}})
	})
	c := newTestClient(t, r)

	view, err := c.CancelOrder(context.Background(), Session{UserID: "1"}, "o-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, view.Status)

	_, err = c.CancelOrder(context.Background(), Session{UserID: "1"}, "o-2")
	assert.True(t, IsCode(err, "order_not_found"))
}

func TestCartStore_DiscardsStaleResponses(t *testing.T) {
	var s CartStore
	fresh := sampleCart(5)
	stale := sampleCart(3)

	assert.True(t, s.Apply(&fresh))
	assert.False(t, s.Apply(&stale))
	assert.Equal(t, int64(5), s.Current().Version)

	newer := sampleCart(6)
	assert.True(t, s.Apply(&newer))

	s.Reset()
	assert.Nil(t, s.Current())
	assert.False(t, s.Apply(nil))
}
