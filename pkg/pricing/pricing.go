// Package pricing derives the price summary of a cart from server-side fee rules.
package pricing

import (
	"fmt"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/shopspring/decimal"
)

// Rules are the platform fee settings. They are configuration, not constants.
type Rules struct {
	DeliveryFee decimal.Decimal `yaml:"delivery_fee" json:"delivery_fee"`
	// DeliveryPerSeller charges DeliveryFee once per distinct seller in the cart.
	DeliveryPerSeller bool            `yaml:"delivery_per_seller" json:"delivery_per_seller"`
	ServiceFeeRate    decimal.Decimal `yaml:"service_fee_rate" json:"service_fee_rate"`
	TaxRate           decimal.Decimal `yaml:"tax_rate" json:"tax_rate"`
	Currency          string          `yaml:"currency" json:"currency"`
}

func DefaultRules() Rules {
	return Rules{
		DeliveryFee:    decimal.RequireFromString("2.50"),
		ServiceFeeRate: decimal.RequireFromString("0.03"),
		TaxRate:        decimal.Zero,
		Currency:       "USD",
	}
}

func (r Rules) Validate() error {
	if r.DeliveryFee.IsNegative() {
		return &cart.ValidationError{Field: "delivery_fee", Reason: "must not be negative"}
	}
	if r.ServiceFeeRate.IsNegative() {
		return &cart.ValidationError{Field: "service_fee_rate", Reason: "must not be negative"}
	}
	if r.TaxRate.IsNegative() {
		return &cart.ValidationError{Field: "tax_rate", Reason: "must not be negative"}
	}
	return nil
}

type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	ServiceFee  decimal.Decimal `json:"service_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	Currency    string          `json:"currency"`
}

// Compute prices the cart. Fees are rounded to cents individually and the
// total is rounded once, after summing.
func Compute(c *cart.Cart, rules Rules) (Summary, error) {
	if err := rules.Validate(); err != nil {
		return Summary{}, err
	}
	if c == nil {
		c = cart.New()
	}

	subtotal := c.Subtotal()
	if subtotal.IsNegative() {
		return Summary{}, &cart.ValidationError{Field: "subtotal", Reason: fmt.Sprintf("negative subtotal %s", subtotal)}
	}

	delivery := decimal.Zero
	if c.Len() > 0 {
		delivery = rules.DeliveryFee
		if rules.DeliveryPerSeller {
			delivery = delivery.Mul(decimal.NewFromInt(int64(len(c.GroupBySeller()))))
		}
	}

	service := round2(subtotal.Mul(rules.ServiceFeeRate))
	tax := round2(subtotal.Mul(rules.TaxRate))
	total := round2(subtotal.Add(delivery).Add(service).Add(tax))

	currency := rules.Currency
	if currency == "" {
		currency = "USD"
	}

	return Summary{
		Subtotal:    subtotal,
		DeliveryFee: delivery,
		ServiceFee:  service,
		Tax:         tax,
		Total:       total,
		ItemCount:   c.TotalItems(),
		Currency:    currency,
	}, nil
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
