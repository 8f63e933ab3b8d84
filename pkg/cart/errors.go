package cart

import "fmt"

// ValidationError reports a structurally invalid call, such as a line item
// without a product reference. The cart clamps bad quantities instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LimitExceededError is a non-fatal notice: the requested quantity was
// clamped down to the available stock.
type LimitExceededError struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("only %d of product %d available, requested %d", e.Available, e.ProductID, e.Requested)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
