package cart

// ClampResult is the outcome of bounding a quantity against stock.
type ClampResult struct {
	Quantity int
	Removed  bool // quantity is 0, the line item must be deleted
	Limited  bool // requested was above the available stock
}

// Clamp bounds requested into [0, available]. Negative stock counts as none.
func Clamp(requested, available int) ClampResult {
	if available < 0 {
		available = 0
	}
	if requested <= 0 {
		return ClampResult{Removed: true}
	}
	if requested > available {
		return ClampResult{Quantity: available, Removed: available == 0, Limited: true}
	}
	return ClampResult{Quantity: requested}
}
