package order

import "fmt"

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// next is the forward path of an order. Cancellation is handled separately.
var next = map[Status]Status{
	StatusPending:        StatusConfirmed,
	StatusConfirmed:      StatusPreparing,
	StatusPreparing:      StatusReady,
	StatusReady:          StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether an order may move from one status to another.
// Unknown statuses never transition.
func CanTransition(from, to Status) bool {
	if _, err := ParseStatus(string(from)); err != nil || from.IsTerminal() {
		return false
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return next[from] == to
}
