package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID         int64           `json:"product_id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	SellerID          int64           `json:"seller_id"`
	SellerName        string          `json:"seller_name"`
	ImageURL          string          `json:"image_url,omitempty"`
	AddedAt           time.Time       `json:"added_at"`
}

// LineTotal is unit price times quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) validate() error {
	if i.ProductID <= 0 {
		return invalid("product_id", "must be greater than 0")
	}
	if i.UnitPrice.IsNegative() {
		return invalid("unit_price", "must not be negative")
	}
	if i.AvailableQuantity < 0 {
		return invalid("available_quantity", "must not be negative")
	}
	return nil
}

// SellerGroup is a display group of line items sold by one seller.
type SellerGroup struct {
	SellerID   int64           `json:"seller_id"`
	SellerName string          `json:"seller_name"`
	Items      []LineItem      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}
