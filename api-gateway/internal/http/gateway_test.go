package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Upstream  string `json:"upstream"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
	Body      string `json:"body"`
	Idem      string `json:"idem"`
}

// echoUpstream answers every request with what it received.
func echoUpstream(t *testing.T, name string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		httpapi.RespondJSON(w, http.StatusOK, seenRequest{
			Upstream:  name,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			UserID:    r.Header.Get(httpapi.UserIDHeader),
			RequestID: r.Header.Get(middleware.RequestIDHeader),
			Body:      body.String(),
			Idem:      r.Header.Get("Idempotency-Key"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupGateway(t *testing.T, up Upstreams) http.Handler {
	t.Helper()
	g, err := NewGateway(up, nil, nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(MaxBodySize(64))
	r.Use(TokenAuth(map[string]string{"tok-1": "user-1"}))
	g.Routes(r)
	return r
}

func echoGateway(t *testing.T) http.Handler {
	return setupGateway(t, Upstreams{
		Cart:     echoUpstream(t, "cart").URL,
		Checkout: echoUpstream(t, "checkout").URL,
		Orders:   echoUpstream(t, "orders").URL,
	})
}

func send(gw http.Handler, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)
	return w
}

func decodeSeen(t *testing.T, w *httptest.ResponseRecorder) seenRequest {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var seen seenRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seen))
	return seen
}

func TestGateway_Routing(t *testing.T) {
	gw := echoGateway(t)

	tests := []struct {
		method, path     string
		wantUpstream     string
		wantUpstreamPath string
	}{
		{http.MethodGet, "/api/v1/cart", "cart", "/cart"},
		{http.MethodPost, "/api/v1/cart/items", "cart", "/cart/items"},
		{http.MethodPut, "/api/v1/cart/item/7", "cart", "/cart/item/7"},
		{http.MethodDelete, "/api/v1/cart/item/7", "cart", "/cart/item/7"},
		{http.MethodDelete, "/api/v1/cart", "cart", "/cart"},
		{http.MethodGet, "/api/v1/products", "cart", "/products"},
		{http.MethodGet, "/api/v1/products/3", "cart", "/products/3"},
		{http.MethodPost, "/api/v1/orders", "checkout", "/orders"},
		{http.MethodGet, "/api/v1/payment-methods", "checkout", "/payment-methods"},
		{http.MethodPost, "/api/v1/payment-methods", "checkout", "/payment-methods"},
		{http.MethodGet, "/api/v1/orders", "orders", "/orders"},
		{http.MethodGet, "/api/v1/orders/abc", "orders", "/orders/abc"},
		{http.MethodPost, "/api/v1/orders/abc/cancel", "orders", "/orders/abc/cancel"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			seen := decodeSeen(t, send(gw, tt.method, tt.path, "tok-1", ""))
			assert.Equal(t, tt.wantUpstream, seen.Upstream)
			assert.Equal(t, tt.wantUpstreamPath, seen.Path)
			assert.Equal(t, tt.method, seen.Method)
			assert.Equal(t, "user-1", seen.UserID)
		})
	}
}

func TestGateway_ForwardsBodyQueryAndHeaders(t *testing.T) {
	gw := echoGateway(t)

	w := send(gw, http.MethodPost, "/api/v1/orders?dry=1", "tok-1", `{"payment_method_id":"pm-1"}`,
		"Idempotency-Key", "key-1")

	seen := decodeSeen(t, w)
	assert.Equal(t, `{"payment_method_id":"pm-1"}`, seen.Body)
	assert.Equal(t, "dry=1", seen.Query)
	assert.Equal(t, "key-1", seen.Idem)
	assert.NotEmpty(t, seen.RequestID)
	assert.Equal(t, seen.RequestID, w.Header().Get(middleware.RequestIDHeader))
}

func TestGateway_InternalEndpointsNotExposed(t *testing.T) {
	gw := echoGateway(t)

	w := send(gw, http.MethodPut, "/api/v1/orders/abc/status", "tok-1", `{"status":"delivered"}`)
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, w.Code)

	w = send(gw, http.MethodPut, "/api/v1/products/3/stock", "tok-1", `{"stock":0}`)
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, w.Code)
}

func TestTokenAuth(t *testing.T) {
	gw := echoGateway(t)

	w := send(gw, http.MethodGet, "/api/v1/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(gw, http.MethodGet, "/api/v1/cart", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A spoofed identity header is replaced by the token's user
	seen := decodeSeen(t, send(gw, http.MethodGet, "/api/v1/cart", "tok-1", "", httpapi.UserIDHeader, "admin"))
	assert.Equal(t, "user-1", seen.UserID)
}

func TestGateway_UpstreamDown(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	gw := setupGateway(t, Upstreams{Cart: downURL, Checkout: downURL, Orders: downURL})
	w := send(gw, http.MethodGet, "/api/v1/cart", "tok-1", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "upstream_unavailable", resp.Code)
}

func TestGateway_UpstreamErrorPassesThrough(t *testing.T) {
	conflict := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpapi.RespondError(w, http.StatusConflict, "cart_changed", "cart changed")
	}))
	defer conflict.Close()

	gw := setupGateway(t, Upstreams{Cart: conflict.URL, Checkout: conflict.URL, Orders: conflict.URL})
	w := send(gw, http.MethodPost, "/api/v1/orders", "tok-1", `{}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cart_changed", resp.Code)
}

func TestMaxBodySize(t *testing.T) {
	gw := echoGateway(t)
	w := send(gw, http.MethodPost, "/api/v1/cart/items", "tok-1", strings.Repeat("x", 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestParseTokens(t *testing.T) {
	tokens, err := ParseTokens("tok-1:user-1, tok-2:user-2,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tok-1": "user-1", "tok-2": "user-2"}, tokens)

	_, err = ParseTokens("tok-1")
	assert.Error(t, err)

	_, err = ParseTokens("tok-1:")
	assert.Error(t, err)
}

func TestNewGateway_InvalidURL(t *testing.T) {
	_, err := NewGateway(Upstreams{Cart: "not a url", Checkout: "http://x", Orders: "http://y"}, nil, nil)
	assert.Error(t, err)
}
