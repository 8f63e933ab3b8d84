package order

import "github.com/fjod/amasampo/pkg/cart"

type DeliveryAddress struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label,omitempty"`
	Recipient  string `json:"recipient"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func (a DeliveryAddress) Validate() error {
	if a.Street == "" {
		return &cart.ValidationError{Field: "delivery_address.street", Reason: "is required"}
	}
	if a.City == "" {
		return &cart.ValidationError{Field: "delivery_address.city", Reason: "is required"}
	}
	return nil
}

type PaymentType string

const (
	PaymentCard           PaymentType = "card"
	PaymentMobileMoney    PaymentType = "mobile_money"
	PaymentCashOnDelivery PaymentType = "cash_on_delivery"
)

type PaymentMethod struct {
	ID         string      `json:"id"`
	Type       PaymentType `json:"type"`
	Brand      string      `json:"brand,omitempty"`
	Last4      string      `json:"last4,omitempty"`
	HolderName string      `json:"holder_name,omitempty"`
	IsDefault  bool        `json:"is_default"`
}

func (p PaymentMethod) Validate() error {
	if p.ID == "" {
		return &cart.ValidationError{Field: "payment_method.id", Reason: "is required"}
	}
	switch p.Type {
	case PaymentCard, PaymentMobileMoney, PaymentCashOnDelivery:
		return nil
	}
	return &cart.ValidationError{Field: "payment_method.type", Reason: "unsupported payment type"}
}
