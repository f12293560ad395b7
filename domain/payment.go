package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one attempt to settle an order through a provider.
type Payment struct {
	ID               int64
	OrderID          int64
	Provider         Provider
	Amount           decimal.Decimal
	Currency         string
	TransactionID    string
	Status           PaymentStatus
	ProviderResponse json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PaymentAttempt is the outcome of intent creation recorded against a
// payment and its order in one write.
type PaymentAttempt struct {
	TransactionID    string
	Status           PaymentStatus
	OrderStatus      OrderStatus
	ProviderResponse json.RawMessage
}

// Settlement is an authoritative provider outcome for a payment.
type Settlement struct {
	Status           PaymentStatus
	ProviderResponse json.RawMessage
}

// PaymentResult is what every payment step reports back to the caller.
type PaymentResult struct {
	Success       bool     `json:"success"`
	Provider      Provider `json:"provider,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	ClientSecret  string   `json:"client_secret,omitempty"`
	CheckoutToken string   `json:"checkout_token,omitempty"`
	Status        string   `json:"status,omitempty"`
	Description   string   `json:"description,omitempty"`
	RefundID      string   `json:"refund_id,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (r *PaymentResult) JSON() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
