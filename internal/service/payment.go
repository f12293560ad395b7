package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	stepProcess = "process"
	stepConfirm = "confirm"
	stepRefund  = "refund"
)

// ProcessPayment starts a payment attempt for the order. Provider failures
// are reported in the returned result, not as an error: the attempt is
// recorded as FAILED and the order moves to PAYMENT_FAILED so it can be
// paid again.
func (s *CheckoutService) ProcessPayment(ctx context.Context, orderID int64, providerName string, methodData map[string]any) (*domain.PaymentResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	if !order.Status.IsPayable() {
		return nil, domain.ErrOrderNotPayable
	}

	// The attempt is persisted before the provider is called so that every
	// attempt is auditable.
	p := &domain.Payment{
		OrderID:  order.ID,
		Provider: provider,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	log := logger.FromContext(ctx).With("order_number", order.OrderNumber, "provider", provider.String(), "payment_id", p.ID)

	intent, intentErr := gw.CreatePaymentIntent(ctx, payment.IntentRequest{
		OrderID:  order.ID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Metadata: paymentMetadata(order, methodData),
	})

	if intentErr != nil {
		result := &domain.PaymentResult{Success: false, Provider: provider, Error: intentErr.Error()}
		if _, err := s.store.RecordPaymentAttempt(ctx, p.ID, domain.PaymentAttempt{
			Status:           domain.PaymentStatusFailed,
			OrderStatus:      domain.OrderStatusPaymentFailed,
			ProviderResponse: result.JSON(),
		}); err != nil {
			return nil, fmt.Errorf("record failed payment: %w", err)
		}
		log.Warn("payment intent failed", "error", intentErr)
		s.observer.ObservePayment(provider.String(), stepProcess, "failed")
		return result, nil
	}

	result := &domain.PaymentResult{
		Success:       true,
		Provider:      provider,
		TransactionID: intent.TransactionID,
		ClientSecret:  intent.ClientSecret,
		CheckoutToken: intent.CheckoutToken,
		Status:        intent.Status,
		Description:   intent.Description,
	}
	if _, err := s.store.RecordPaymentAttempt(ctx, p.ID, domain.PaymentAttempt{
		TransactionID:    intent.TransactionID,
		Status:           domain.PaymentStatusProcessing,
		OrderStatus:      domain.OrderStatusProcessing,
		ProviderResponse: result.JSON(),
	}); err != nil {
		return nil, fmt.Errorf("record payment attempt: %w", err)
	}

	log.Info("payment intent created", "transaction_id", intent.TransactionID)
	s.observer.ObservePayment(provider.String(), stepProcess, "success")
	return result, nil
}

// ConfirmPayment asks the payment's provider for an authoritative outcome and
// settles payment and order together. A pending answer changes nothing.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, orderID int64, transactionID string) (*domain.PaymentResult, error) {
	p, err := s.store.GetPayment(ctx, orderID, transactionID)
	if err != nil {
		return nil, err
	}

	gw, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	confirmation, err := gw.ConfirmPayment(ctx, transactionID)
	if err != nil {
		s.observer.ObservePayment(p.Provider.String(), stepConfirm, "error")
		return nil, err
	}

	result := &domain.PaymentResult{
		Provider:      p.Provider,
		TransactionID: transactionID,
		Status:        confirmation.Status,
	}
	if confirmation.Pending {
		result.Description = "awaiting provider confirmation"
		s.observer.ObservePayment(p.Provider.String(), stepConfirm, "pending")
		return result, nil
	}

	settled := domain.PaymentStatusFailed
	if confirmation.Success {
		settled = domain.PaymentStatusCompleted
		result.Success = true
	} else {
		result.Error = "payment was not completed"
	}

	if _, err := s.settle(ctx, p, settled, result.JSON()); err != nil {
		return nil, err
	}
	s.observer.ObservePayment(p.Provider.String(), stepConfirm, strings.ToLower(settled.String()))
	return result, nil
}

// settle applies an authoritative status to a payment and its order.
func (s *CheckoutService) settle(ctx context.Context, p *domain.Payment, status domain.PaymentStatus, response json.RawMessage) (bool, error) {
	updated, changed, err := s.store.SettlePayment(ctx, p.ID, domain.Settlement{Status: status, ProviderResponse: response})
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}

	log := logger.FromContext(ctx).With("payment_id", p.ID, "order_id", p.OrderID, "transaction_id", p.TransactionID)
	if changed {
		log.Info("payment settled", "status", updated.Status.String())
	} else {
		log.Info("payment settlement skipped", "status", updated.Status.String(), "requested", status.String())
	}
	return changed, nil
}

// RefundPayment refunds the order's completed payment. Without an amount, or
// with the full amount, payment and order become REFUNDED; a partial refund
// leaves both statuses as they are.
func (s *CheckoutService) RefundPayment(ctx context.Context, orderID int64, amount *decimal.Decimal) (*domain.PaymentResult, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	p, err := s.store.GetLatestPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentStatusCompleted {
		return nil, ErrPaymentNotRefundable
	}
	if amount != nil && (!amount.IsPositive() || amount.GreaterThan(p.Amount)) {
		return nil, ErrInvalidRefundAmount
	}

	gw, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	refund, err := gw.RefundPayment(ctx, p.TransactionID, amount)
	if err != nil {
		s.observer.ObservePayment(p.Provider.String(), stepRefund, "error")
		return nil, err
	}

	result := &domain.PaymentResult{
		Success:       true,
		Provider:      p.Provider,
		TransactionID: p.TransactionID,
		RefundID:      refund.RefundID,
		Status:        refund.Status,
	}

	full := amount == nil || amount.Equal(p.Amount)
	if full {
		if _, err := s.settle(ctx, p, domain.PaymentStatusRefunded, result.JSON()); err != nil {
			return nil, err
		}
		s.observer.ObservePayment(p.Provider.String(), stepRefund, "full")
	} else {
		logger.FromContext(ctx).Info("partial refund issued",
			"payment_id", p.ID, "refund_id", refund.RefundID, "amount", amount.String())
		s.observer.ObservePayment(p.Provider.String(), stepRefund, "partial")
	}
	return result, nil
}

// paymentMetadata always carries order_number and user_email; caller
// supplied method data cannot override them.
func paymentMetadata(order *domain.Order, methodData map[string]any) map[string]string {
	md := make(map[string]string, len(methodData)+2)
	for k, v := range methodData {
		if s, ok := stringify(v); ok {
			md[k] = s
		}
	}
	md["order_number"] = order.OrderNumber
	md["user_email"] = order.Email
	return md
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}
