package catalog

import (
	"context"
	"errors"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Product is what the cart needs to know about a listing: price, stock and seller.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	Stock      int
	SellerID   int64
	SellerName string
	ImageURL   string
}

// LineItem turns the product into a cart line item with no quantity yet.
func (p Product) LineItem() cart.LineItem {
	return cart.LineItem{
		ProductID:         p.ID,
		Name:              p.Name,
		UnitPrice:         p.Price,
		AvailableQuantity: p.Stock,
		SellerID:          p.SellerID,
		SellerName:        p.SellerName,
		ImageURL:          p.ImageURL,
	}
}

// Catalog looks up products for the cart service.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	// GetProducts returns the products found; missing ids are absent from the map.
	GetProducts(ctx context.Context, ids []int64) (map[int64]*Product, error)
}

// StockLevels extracts the stock of each product, for cart reconciliation.
func StockLevels(products map[int64]*Product) map[int64]int {
	stock := make(map[int64]int, len(products))
	for id, p := range products {
		stock[id] = p.Stock
	}
	return stock
}
