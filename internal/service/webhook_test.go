package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/journal"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mobileMoneyPayload(txID, status string) []byte {
	return []byte(fmt.Sprintf(`{"transactionId":%q,"status":%q,"phoneNumber":"+254700000000"}`, txID, status))
}

func cardPayload(eventType, intentID string, orderID int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","type":%q,"data":{"object":{"id":%q,"metadata":{"order_id":"%d"}}}}`,
		eventType, intentID, orderID))
}

func TestHandleWebhook_MobileMoneySuccess(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "mobile_money", map[string]any{"phone_number": "+254700000000"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_1", "Success"), ""))

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, orderStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, paymentStatus)
	assert.Equal(t, []string{journal.OutcomeApplied}, f.journal.outcomes())
}

func TestHandleWebhook_MobileMoneyFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "mobile_money", map[string]any{"phone_number": "+254700000000"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleWebhook(ctx, "africas_talking", mobileMoneyPayload("ATPid_1", "Failed"), ""))

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusFailed, orderStatus)
	assert.Equal(t, domain.PaymentStatusFailed, paymentStatus)
}

func TestHandleWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "mobile_money", map[string]any{"phone_number": "+254700000000"})
	require.NoError(t, err)

	payload := mobileMoneyPayload("ATPid_1", "Success")
	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", payload, ""))
	eventsAfterFirst := len(f.store.Events())
	p, err := f.store.GetPayment(ctx, order.ID, "ATPid_1")
	require.NoError(t, err)
	firstUpdate := p.UpdatedAt

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", payload, ""))
	// a late failure must not undo the completion
	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_1", "Failed"), ""))

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, orderStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, paymentStatus)
	assert.Len(t, f.store.Events(), eventsAfterFirst)

	p, err = f.store.GetPayment(ctx, order.ID, "ATPid_1")
	require.NoError(t, err)
	assert.Equal(t, firstUpdate, p.UpdatedAt)
	assert.Equal(t, []string{journal.OutcomeApplied, journal.OutcomeIgnored, journal.OutcomeIgnored}, f.journal.outcomes())
}

func TestHandleWebhook_ConcurrentDeliveries(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "card", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.HandleWebhook(ctx, "card", cardPayload("payment_intent.succeeded", "pi_1", order.ID), "valid"))
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.ConfirmPayment(ctx, order.ID, "pi_1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, orderStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, paymentStatus)

	completed := 0
	for _, e := range f.store.Events() {
		if e.EventType == "payment.completed" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestHandleWebhook_UnknownTransactionIsNoop(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_missing", "Success"), ""))
	require.NoError(t, f.svc.HandleWebhook(ctx, "card", cardPayload("payment_intent.succeeded", "pi_missing", 77), "valid"))
	assert.Equal(t, []string{journal.OutcomeIgnored, journal.OutcomeIgnored}, f.journal.outcomes())
	assert.Zero(t, f.card.confirmCalls)
}

func TestHandleWebhook_CardSucceeded(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "card", nil)
	require.NoError(t, err)

	// other event types are acknowledged without effect
	require.NoError(t, f.svc.HandleWebhook(ctx, "card", cardPayload("charge.refunded", "pi_1", order.ID), "valid"))
	orderStatus, _ := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusProcessing, orderStatus)

	require.NoError(t, f.svc.HandleWebhook(ctx, "stripe", cardPayload("payment_intent.succeeded", "pi_1", order.ID), "valid"))
	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, orderStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, paymentStatus)
	assert.Equal(t, 1, f.card.confirmCalls)
	assert.Equal(t, []string{journal.OutcomeIgnored, journal.OutcomeApplied}, f.journal.outcomes())
}

func TestHandleWebhook_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		payload   string
		signature string
	}{
		{"mobile money not json", "mobile_money", `{"transactionId":`, ""},
		{"mobile money without transaction", "mobile_money", `{"status":"Success"}`, ""},
		{"card bad signature", "card", `{"type":"payment_intent.succeeded"}`, "forged"},
		{"card not json", "card", `<xml/>`, "valid"},
		{"card without type", "card", `{"data":{}}`, "valid"},
		{"card without order id", "card", `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`, "valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			err := f.svc.HandleWebhook(context.Background(), tt.provider, []byte(tt.payload), tt.signature)
			assert.ErrorIs(t, err, ErrMalformedWebhook)
			assert.Equal(t, []string{journal.OutcomeRejected}, f.journal.outcomes())
		})
	}
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	f := newCheckoutFixture(t)

	err := f.svc.HandleWebhook(context.Background(), "paypal", []byte(`{}`), "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

func TestHandleWebhook_JournalFailureIsNotFatal(t *testing.T) {
	f := newCheckoutFixture(t)
	f.journal.err = errors.New("mongo down")

	assert.NoError(t, f.svc.HandleWebhook(context.Background(), "mobile_money", mobileMoneyPayload("ATPid_x", "Success"), ""))
}

func TestHandleWebhook_CardProviderErrorIsReturned(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	_, err := f.svc.ProcessPayment(ctx, order.ID, "card", nil)
	require.NoError(t, err)

	f.card.confirmErr = &payment.ProviderError{Provider: domain.ProviderCard, Message: "unavailable", Err: errors.New("unavailable")}
	err = f.svc.HandleWebhook(ctx, "card", cardPayload("payment_intent.succeeded", "pi_1", order.ID), "valid")
	assert.ErrorIs(t, err, payment.ErrProvider)
	assert.NotErrorIs(t, err, ErrMalformedWebhook)
	assert.Equal(t, []string{journal.OutcomeFailed}, f.journal.outcomes())
}

// retryAfterFailure fails the first mobile money attempt by webhook and
// starts a second attempt, leaving the order PROCESSING on ATPid_2.
func retryAfterFailure(t *testing.T, f *checkoutFixture) *domain.Order {
	t.Helper()
	ctx := context.Background()
	order := f.orderFor(t, "s1", addProduct(t, f.store, "Ball", price("150"), 5), 1)
	phone := map[string]any{"phone_number": "+254700000000"}

	_, err := f.svc.ProcessPayment(ctx, order.ID, "mobile_money", phone)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_1", "Failed"), ""))

	f.mobile.intent = &payment.IntentResult{TransactionID: "ATPid_2", CheckoutToken: "ATPid_2", Status: "PendingConfirmation"}
	_, err = f.svc.ProcessPayment(ctx, order.ID, "mobile_money", phone)
	require.NoError(t, err)

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	require.Equal(t, domain.OrderStatusProcessing, orderStatus)
	require.Equal(t, domain.PaymentStatusProcessing, paymentStatus)
	return order
}

func TestHandleWebhook_ReplayForSupersededAttemptKeepsOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := retryAfterFailure(t, f)
	events := len(f.store.Events())

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_1", "Failed"), ""))

	orderStatus, paymentStatus := f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusProcessing, orderStatus)
	assert.Equal(t, domain.PaymentStatusProcessing, paymentStatus)
	assert.Len(t, f.store.Events(), events)

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_2", "Success"), ""))
	orderStatus, paymentStatus = f.statuses(t, order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, orderStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, paymentStatus)
}

func TestHandleWebhook_LateSuccessOfEarlierAttemptCompletesOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := retryAfterFailure(t, f)

	require.NoError(t, f.svc.HandleWebhook(ctx, "mobile_money", mobileMoneyPayload("ATPid_1", "Success"), ""))

	got, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
	first, err := f.store.GetPayment(ctx, order.ID, "ATPid_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, first.Status)
}
