package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// APIPrefix is stripped before a request is forwarded.
const APIPrefix = "/api/v1"

type Upstreams struct {
	Cart     string
	Checkout string
	Orders   string
}

type Gateway struct {
	cart     http.Handler
	checkout http.Handler
	orders   http.Handler
}

func NewGateway(up Upstreams, transport http.RoundTripper, log *zap.Logger) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = otelhttp.NewTransport(transport)

	cart, err := newProxy("cart-service", up.Cart, transport, log)
	if err != nil {
		return nil, err
	}
	checkout, err := newProxy("checkout-service", up.Checkout, transport, log)
	if err != nil {
		return nil, err
	}
	orders, err := newProxy("orders-service", up.Orders, transport, log)
	if err != nil {
		return nil, err
	}
	return &Gateway{cart: cart, checkout: checkout, orders: orders}, nil
}

// Routes mounts the public API. Fulfilment and stock endpoints of the
// services are not routed.
func (g *Gateway) Routes(r chi.Router) {
	r.Route(APIPrefix, func(r chi.Router) {
		r.Handle("/cart", g.cart)
		r.Handle("/cart/*", g.cart)

		r.Get("/products", g.cart.ServeHTTP)
		r.Get("/products/{id}", g.cart.ServeHTTP)

		r.Post("/orders", g.checkout.ServeHTTP)
		r.Get("/payment-methods", g.checkout.ServeHTTP)
		r.Post("/payment-methods", g.checkout.ServeHTTP)

		r.Get("/orders", g.orders.ServeHTTP)
		r.Get("/orders/{id}", g.orders.ServeHTTP)
		r.Post("/orders/{id}/cancel", g.orders.ServeHTTP)
	})
}

func newProxy(name, rawURL string, transport http.RoundTripper, log *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, rawURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, APIPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpapi.RespondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}
			logger.FromContext(r.Context(), log).Warn("upstream request failed",
				zap.String("upstream", name), zap.Error(err))
			if errors.Is(err, context.DeadlineExceeded) {
				httpapi.RespondError(w, http.StatusGatewayTimeout, "timeout", "upstream timed out")
				return
			}
			httpapi.RespondError(w, http.StatusBadGateway, "upstream_unavailable", name+" unavailable")
		},
	}, nil
}
