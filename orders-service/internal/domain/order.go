package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/amasampo/pkg/order"
)

var ErrIllegalTransition = errors.New("illegal order status transition")

// Order is a placed order with its current fulfilment status. The frozen
// snapshot never changes; only Status and UpdatedAt do.
type Order struct {
	order.Record
	UpdatedAt time.Time `json:"updated_at"`
}

// FromRecord starts tracking an order received from checkout.
func FromRecord(rec order.Record) *Order {
	if rec.Status == "" {
		rec.Status = order.StatusPending
	}
	return &Order{Record: rec, UpdatedAt: rec.CreatedAt}
}

// Transition moves the order to status to, or fails with ErrIllegalTransition.
func (o *Order) Transition(to order.Status, now time.Time) error {
	if !order.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}
