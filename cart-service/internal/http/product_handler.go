package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/amasampo/cart-service/internal/catalog"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ProductStore is the catalog as seen by the product endpoints.
type ProductStore interface {
	GetAllProducts(ctx context.Context) ([]*catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	SetStock(ctx context.Context, id int64, stock int) error
}

type ProductHandler struct {
	products ProductStore
	timeout  time.Duration
}

func NewProductHandler(products ProductStore, timeout time.Duration) *ProductHandler {
	return &ProductHandler{products: products, timeout: timeout}
}

type ProductDTO struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	SellerID   int64           `json:"seller_id"`
	SellerName string          `json:"seller_name"`
	ImageURL   string          `json:"image_url,omitempty"`
}

type SetStockRequestDTO struct {
	Stock *int `json:"stock"`
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.With(httpapi.RequireUser).Put("/{id}/stock", h.SetStock)
	})
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.GetAllProducts(ctx)
	if err != nil {
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list products")
		return
	}

	out := make([]ProductDTO, len(products))
	for i, p := range products {
		out[i] = toProductDTO(p)
	}
	httpapi.RespondJSON(w, http.StatusOK, map[string]interface{}{"products": out})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := httpapi.Int64Param(r, "id")
	if !ok {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_product_id", "id must be a positive integer")
		return
	}

	p, err := h.products.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		httpapi.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	if err != nil {
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get product")
		return
	}
	httpapi.RespondJSON(w, http.StatusOK, toProductDTO(p))
}

// SetStock replaces the stock level of a product. Carts pick up the new
// level on their next read.
func (h *ProductHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := httpapi.Int64Param(r, "id")
	if !ok {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_product_id", "id must be a positive integer")
		return
	}

	var req SetStockRequestDTO
	if err := httpapi.DecodeJSON(r, &req); err != nil || req.Stock == nil || *req.Stock < 0 {
		httpapi.RespondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"stock\": n} with n >= 0")
		return
	}

	err := h.products.SetStock(ctx, id, *req.Stock)
	if errors.Is(err, catalog.ErrProductNotFound) {
		httpapi.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	if err != nil {
		httpapi.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set stock")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toProductDTO(p *catalog.Product) ProductDTO {
	return ProductDTO{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		SellerID:   p.SellerID,
		SellerName: p.SellerName,
		ImageURL:   p.ImageURL,
	}
}
