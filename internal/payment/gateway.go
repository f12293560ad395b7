// Package payment holds the provider adapters the checkout orchestrator
// dispatches to and the registry they are looked up from.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrProvider matches every *ProviderError.
	ErrProvider           = errors.New("payment provider error")
	ErrPhoneRequired      = errors.New("phone number required for mobile money payment")
	ErrRefundNotSupported = errors.New("refunds not yet implemented for mobile money")
)

// Gateway is the contract every provider adapter implements.
type Gateway interface {
	Provider() domain.Provider
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error)
	ConfirmPayment(ctx context.Context, transactionID string) (*ConfirmResult, error)
	// RefundPayment refunds the whole payment when amount is nil.
	RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error)
}

// WebhookVerifier is implemented by gateways whose callbacks carry a signature.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) error
}

type IntentRequest struct {
	OrderID  int64
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

type IntentResult struct {
	TransactionID string
	ClientSecret  string
	CheckoutToken string
	Status        string
	Description   string
}

// ConfirmResult is a provider's view of a transaction. Pending means the
// provider has not decided yet; otherwise Success is authoritative.
type ConfirmResult struct {
	Success   bool
	Pending   bool
	Status    string
	PaymentID string
}

type RefundResult struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
}

// ProviderError carries the provider's own message back to the caller.
type ProviderError struct {
	Provider domain.Provider
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func newProviderError(provider domain.Provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Message: err.Error(), Err: err}
}

// toMinorUnits converts a major-unit amount to cents, rounding half to even.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).RoundBank(0).IntPart()
}

func fromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	return nil
}
