package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/amasampo/checkout-service/internal/repository"
	"github.com/fjod/amasampo/checkout-service/internal/service"
	"github.com/fjod/amasampo/pkg/apiclient"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// CheckoutService is what the handlers need from service.CheckoutService.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*order.Snapshot, bool, error)
	ListPaymentMethods(ctx context.Context, userID string) ([]order.PaymentMethod, error)
	AddPaymentMethod(ctx context.Context, userID string, pm order.PaymentMethod) (*order.PaymentMethod, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
	log      *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{checkout: checkout, timeout: timeout, log: log}
}

type PlaceOrderRequestDTO struct {
	Items                []apiclient.OrderItem  `json:"items,omitempty"`
	DeliveryAddress      *order.DeliveryAddress `json:"delivery_address"`
	PaymentMethodID      string                 `json:"payment_method_id"`
	DeliveryInstructions string                 `json:"delivery_instructions,omitempty"`
}

type AddPaymentMethodRequestDTO struct {
	Type       order.PaymentType `json:"type"`
	Brand      string            `json:"brand,omitempty"`
	Last4      string            `json:"last4,omitempty"`
	HolderName string            `json:"holder_name,omitempty"`
	IsDefault  bool              `json:"is_default"`
}

type PaymentMethodsResponseDTO struct {
	PaymentMethods []order.PaymentMethod `json:"payment_methods"`
}

func (h *CheckoutHandler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/payment-methods", h.ListPaymentMethods)
		r.Post("/payment-methods", h.AddPaymentMethod)
	})
}

// PlaceOrder answers 201 for a new order and 200 when the Idempotency-Key
// header replays an earlier one.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	snap, created, err := h.checkout.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID:               httpapi.UserID(r.Context()),
		IdempotencyKey:       strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
		Items:                req.Items,
		DeliveryAddress:      req.DeliveryAddress,
		PaymentMethodID:      req.PaymentMethodID,
		DeliveryInstructions: req.DeliveryInstructions,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httpapi.RespondJSON(w, status, snap.Record())
}

func (h *CheckoutHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	methods, err := h.checkout.ListPaymentMethods(ctx, httpapi.UserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpapi.RespondJSON(w, http.StatusOK, PaymentMethodsResponseDTO{PaymentMethods: methods})
}

func (h *CheckoutHandler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddPaymentMethodRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	pm, err := h.checkout.AddPaymentMethod(ctx, httpapi.UserID(r.Context()), order.PaymentMethod{
		Type:       req.Type,
		Brand:      req.Brand,
		Last4:      req.Last4,
		HolderName: req.HolderName,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpapi.RespondJSON(w, http.StatusCreated, pm)
}

func (h *CheckoutHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if httpapi.RespondValidation(w, err) {
		return
	}

	var netErr *apiclient.NetworkError
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		httpapi.RespondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, order.ErrMissingAddress):
		httpapi.RespondError(w, http.StatusUnprocessableEntity, "missing_address", err.Error())
	case errors.Is(err, order.ErrMissingPaymentMethod):
		httpapi.RespondError(w, http.StatusUnprocessableEntity, "missing_payment_method", err.Error())
	case errors.Is(err, repository.ErrPaymentMethodNotFound):
		httpapi.RespondError(w, http.StatusNotFound, "payment_method_not_found", "payment method not found")
	case errors.Is(err, service.ErrCartChanged):
		httpapi.RespondError(w, http.StatusConflict, "cart_changed", "cart changed, review it and try again")
	case errors.Is(err, context.DeadlineExceeded):
		httpapi.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.As(err, &netErr), errors.As(err, &apiErr):
		logger.FromContext(r.Context(), h.log).Warn("cart service call failed", zap.Error(err))
		httpapi.RespondError(w, http.StatusBadGateway, "cart_unavailable", "cart service unavailable")
	default:
		logger.FromContext(r.Context(), h.log).Error("checkout request failed", zap.Error(err))
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
