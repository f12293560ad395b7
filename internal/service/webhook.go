package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/journal"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/pkg/logger"
)

const (
	cardEventSucceeded       = "payment_intent.succeeded"
	mobileMoneyStatusSuccess = "Success"
)

type cardEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

type mobileMoneyEvent struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// HandleWebhook reconciles a provider callback with the stored payment.
// Card events are re-confirmed with the provider; mobile money callbacks are
// authoritative and settle directly. Deliveries that are well formed but
// match nothing are acknowledged without error.
func (s *CheckoutService) HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) error {
	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		s.record(ctx, providerName, payload, journal.OutcomeRejected, err)
		return err
	}

	var outcome string
	switch provider {
	case domain.ProviderCard:
		outcome, err = s.handleCardWebhook(ctx, payload, signature)
	case domain.ProviderMobileMoney:
		outcome, err = s.handleMobileMoneyWebhook(ctx, payload)
	default:
		outcome, err = journal.OutcomeRejected, domain.ErrUnsupportedProvider
	}

	s.record(ctx, provider.String(), payload, outcome, err)
	s.observer.ObserveWebhook(provider.String(), outcome)
	return err
}

func (s *CheckoutService) handleCardWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	gw, err := s.gateways.Get(domain.ProviderCard)
	if err != nil {
		return journal.OutcomeRejected, err
	}
	if verifier, ok := gw.(payment.WebhookVerifier); ok {
		if err := verifier.VerifyWebhook(payload, signature); err != nil {
			return journal.OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
	}

	var event cardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return journal.OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event.Type == "" {
		return journal.OutcomeRejected, fmt.Errorf("%w: missing event type", ErrMalformedWebhook)
	}
	if event.Type != cardEventSucceeded {
		return journal.OutcomeIgnored, nil
	}

	intentID := event.Data.Object.ID
	orderID, err := strconv.ParseInt(event.Data.Object.Metadata["order_id"], 10, 64)
	if intentID == "" || err != nil {
		return journal.OutcomeRejected, fmt.Errorf("%w: missing intent or order id", ErrMalformedWebhook)
	}

	before, err := s.store.GetPayment(ctx, orderID, intentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.FromContext(ctx).Info("card webhook for unknown payment", "order_id", orderID, "transaction_id", intentID)
		return journal.OutcomeIgnored, nil
	}
	if err != nil {
		return journal.OutcomeFailed, err
	}

	if _, err := s.ConfirmPayment(ctx, orderID, intentID); err != nil {
		return journal.OutcomeFailed, err
	}
	after, err := s.store.GetPayment(ctx, orderID, intentID)
	if err != nil {
		return journal.OutcomeFailed, err
	}
	if after.Status == before.Status {
		return journal.OutcomeIgnored, nil
	}
	return journal.OutcomeApplied, nil
}

func (s *CheckoutService) handleMobileMoneyWebhook(ctx context.Context, payload []byte) (string, error) {
	var event mobileMoneyEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return journal.OutcomeRejected, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event.TransactionID == "" {
		return journal.OutcomeRejected, fmt.Errorf("%w: missing transactionId", ErrMalformedWebhook)
	}

	p, err := s.store.GetPaymentByTransaction(ctx, domain.ProviderMobileMoney, event.TransactionID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.FromContext(ctx).Info("mobile money webhook for unknown transaction", "transaction_id", event.TransactionID)
		return journal.OutcomeIgnored, nil
	}
	if err != nil {
		return journal.OutcomeFailed, err
	}

	status := domain.PaymentStatusFailed
	if event.Status == mobileMoneyStatusSuccess {
		status = domain.PaymentStatusCompleted
	}

	changed, err := s.settle(ctx, p, status, json.RawMessage(payload))
	if err != nil {
		return journal.OutcomeFailed, err
	}
	if !changed {
		return journal.OutcomeIgnored, nil
	}
	return journal.OutcomeApplied, nil
}

func (s *CheckoutService) record(ctx context.Context, provider string, payload []byte, outcome string, cause error) {
	entry := journal.Entry{
		Provider:   provider,
		Payload:    string(payload),
		Outcome:    outcome,
		ReceivedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.journal.Record(rctx, entry); err != nil {
		logger.FromContext(ctx).Warn("webhook journal write failed", "provider", provider, "error", err)
	}
}
