package order

import (
	"encoding/json"
	"time"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/fjod/amasampo/pkg/pricing"
)

// Snapshot is the frozen state of a cart at checkout. It shares no memory
// with the cart it was built from and has no mutating methods.
type Snapshot struct {
	id           string
	userID       string
	items        []cart.LineItem
	address      DeliveryAddress
	payment      PaymentMethod
	instructions string
	summary      pricing.Summary
	status       Status
	cartVersion  int64
	createdAt    time.Time
}

// Record is the serializable form of a Snapshot.
type Record struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	Items                []cart.LineItem `json:"items"`
	DeliveryAddress      DeliveryAddress `json:"delivery_address"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	DeliveryInstructions string          `json:"delivery_instructions"`
	Summary              pricing.Summary `json:"summary"`
	Status               Status          `json:"status"`
	CartVersion          int64           `json:"cart_version"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (s *Snapshot) ID() string { return s.id }
func (s *Snapshot) UserID() string { return s.userID }
func (s *Snapshot) DeliveryAddress() DeliveryAddress { return s.address }
func (s *Snapshot) PaymentMethod() PaymentMethod { return s.payment }
func (s *Snapshot) DeliveryInstructions() string { return s.instructions }
func (s *Snapshot) Summary() pricing.Summary { return s.summary }
func (s *Snapshot) Status() Status { return s.status }
func (s *Snapshot) CartVersion() int64 { return s.cartVersion }
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Items returns a copy of the frozen line items.
func (s *Snapshot) Items() []cart.LineItem {
	return append([]cart.LineItem(nil), s.items...)
}

func (s *Snapshot) Record() Record {
	return Record{
		ID:                   s.id,
		UserID:               s.userID,
		Items:                s.Items(),
		DeliveryAddress:      s.address,
		PaymentMethod:        s.payment,
		DeliveryInstructions: s.instructions,
		Summary:              s.summary,
		Status:               s.status,
		CartVersion:          s.cartVersion,
		CreatedAt:            s.createdAt,
	}
}

// FromRecord rebuilds a snapshot read back from storage or the wire.
func FromRecord(r Record) *Snapshot {
	return &Snapshot{
		id:           r.ID,
		userID:       r.UserID,
		items:        append([]cart.LineItem(nil), r.Items...),
		address:      r.DeliveryAddress,
		payment:      r.PaymentMethod,
		instructions: r.DeliveryInstructions,
		summary:      r.Summary,
		status:       r.Status,
		cartVersion:  r.CartVersion,
		createdAt:    r.CreatedAt,
	}
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}
