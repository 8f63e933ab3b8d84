package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/amasampo/orders-service/internal/domain"
	"github.com/fjod/amasampo/orders-service/internal/repository"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrdersService is what the handlers need from service.OrdersService.
type OrdersService interface {
	ListOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, id string) (*domain.Order, error)
	CancelOrder(ctx context.Context, userID, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrdersService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrdersService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

type OrdersResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

// Routes mounts the buyer endpoints, scoped to the X-User-ID caller, and the
// fulfilment status endpoint, which the gateway does not expose.
func (h *OrdersHandler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httpapi.RequireUser)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})
		r.Put("/{id}/status", h.UpdateStatus)
	})
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, httpapi.UserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpapi.RespondJSON(w, http.StatusOK, OrdersResponseDTO{Orders: orders})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.orders.GetOrder(ctx, httpapi.UserID(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, o, err)
}

func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.orders.CancelOrder(ctx, httpapi.UserID(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, o, err)
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), to)
	h.respond(w, r, o, err)
}

func (h *OrdersHandler) respond(w http.ResponseWriter, r *http.Request, o *domain.Order, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpapi.RespondJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		httpapi.RespondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, domain.ErrIllegalTransition):
		httpapi.RespondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpapi.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(r.Context(), h.log).Error("orders request failed", zap.Error(err))
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
