package order

import "errors"

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrMissingAddress       = errors.New("delivery address is required")
	ErrMissingPaymentMethod = errors.New("payment method is required")
)
