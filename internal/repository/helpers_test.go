package repository

import (
	"context"
	"testing"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestProduct(t *testing.T, store Store, name, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Stock: stock, Currency: "USD"}
	if price != "" {
		p.Price = money(price)
	}
	require.NoError(t, store.UpsertProduct(context.Background(), p))
	return p
}

func fillCart(t *testing.T, store Store, sessionID string, quantities map[int64]int) *domain.Cart {
	t.Helper()
	ctx := context.Background()
	cart, err := store.GetOrCreateCart(ctx, sessionID)
	require.NoError(t, err)
	for productID, qty := range quantities {
		require.NoError(t, store.SetItemQuantity(ctx, cart.ID, productID, qty))
	}
	return cart
}

var testCustomer = domain.CustomerData{
	Email:           "runner@example.com",
	Name:            "Amina Otieno",
	Phone:           "+254700000000",
	ShippingAddress: "12 Moi Avenue, Nairobi",
}

func startAttempt(t *testing.T, store Store, order *domain.Order, txID string) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p := &domain.Payment{
		OrderID:  order.ID,
		Provider: domain.ProviderMobileMoney,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}
	require.NoError(t, store.CreatePayment(ctx, p))
	_, err := store.RecordPaymentAttempt(ctx, p.ID, domain.PaymentAttempt{
		TransactionID: txID,
		Status:        domain.PaymentStatusProcessing,
		OrderStatus:   domain.OrderStatusProcessing,
	})
	require.NoError(t, err)
	return p
}

// checkSupersededAttempt settles a first attempt as failed, opens a second
// one and replays the failure: only the open attempt may drive the order.
func checkSupersededAttempt(t *testing.T, store Store, productID int64) {
	t.Helper()
	ctx := context.Background()
	cart := fillCart(t, store, "retry", map[int64]int{productID: 1})
	order, err := store.CreateOrderFromCart(ctx, cart.ID, testCustomer, "")
	require.NoError(t, err)

	first := startAttempt(t, store, order, "ATPid_1")
	_, changed, err := store.SettlePayment(ctx, first.ID, domain.Settlement{Status: domain.PaymentStatusFailed})
	require.NoError(t, err)
	require.True(t, changed)

	second := startAttempt(t, store, order, "ATPid_2")
	fetched, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, fetched.Status)

	_, changed, err = store.SettlePayment(ctx, first.ID, domain.Settlement{Status: domain.PaymentStatusFailed})
	require.NoError(t, err)
	assert.False(t, changed)

	fetched, err = store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, fetched.Status)

	_, changed, err = store.SettlePayment(ctx, second.ID, domain.Settlement{Status: domain.PaymentStatusFailed})
	require.NoError(t, err)
	assert.True(t, changed)

	fetched, err = store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, fetched.Status)
}
