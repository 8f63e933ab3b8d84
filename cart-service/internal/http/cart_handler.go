package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/amasampo/cart-service/internal/catalog"
	"github.com/fjod/amasampo/cart-service/internal/service"
	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/pricing"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CartService is what the handlers need from service.CartService.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*service.Result, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*service.Result, error)
	UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*service.Result, error)
	RemoveItem(ctx context.Context, userID string, productID int64) (*service.Result, error)
	ClearCart(ctx context.Context, userID string) (*service.Result, error)
}

type CartHandler struct {
	carts   CartService
	rules   pricing.Rules
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts CartService, rules pricing.Rules, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		carts:   carts,
		rules:   rules,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

// CartResponseDTO is the body of every cart endpoint. The summary is
// computed per response and never stored.
type CartResponseDTO struct {
	Items        []cart.LineItem           `json:"cart_items"`
	Summary      pricing.Summary           `json:"summary"`
	Version      int64                     `json:"version"`
	SellerGroups []cart.SellerGroup        `json:"seller_groups,omitempty"`
	Notices      []cart.LimitExceededError `json:"notices,omitempty"`
}

// Routes mounts the cart endpoints. Callers must be identified by the
// X-User-ID header.
func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/item/{product_id}", h.UpdateQuantity)
		r.Delete("/item/{product_id}", h.RemoveItem)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.carts.GetCart(ctx, httpapi.UserID(r.Context()))
	h.respond(w, r, res, err)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.carts.AddItem(ctx, httpapi.UserID(r.Context()), req.ProductID, req.Quantity)
	h.respond(w, r, res, err)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := httpapi.Int64Param(r, "product_id")
	if !ok {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil || req.Quantity == nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"quantity\": n}")
		return
	}

	res, err := h.carts.UpdateQuantity(ctx, httpapi.UserID(r.Context()), productID, *req.Quantity)
	h.respond(w, r, res, err)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := httpapi.Int64Param(r, "product_id")
	if !ok {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	res, err := h.carts.RemoveItem(ctx, httpapi.UserID(r.Context()), productID)
	h.respond(w, r, res, err)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.carts.ClearCart(ctx, httpapi.UserID(r.Context()))
	h.respond(w, r, res, err)
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, res *service.Result, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	summary, err := pricing.Compute(res.Cart, h.rules)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httpapi.RespondJSON(w, http.StatusOK, CartResponseDTO{
		Items:        res.Cart.Items(),
		Summary:      summary,
		Version:      res.Cart.Version(),
		SellerGroups: res.Cart.GroupBySeller(),
		Notices:      res.Notices,
	})
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if httpapi.RespondValidation(w, err) {
		return
	}

	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		httpapi.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, service.ErrConcurrentUpdate):
		httpapi.RespondError(w, http.StatusConflict, "concurrent_update", "cart was updated concurrently, try again")
	case errors.Is(err, context.DeadlineExceeded):
		httpapi.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(r.Context(), h.log).Error("cart request failed", zap.Error(err))
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
