package service

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/journal"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/shopspring/decimal"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, sessionID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[sessionID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCache) Set(_ context.Context, sessionID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[sessionID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, sessionID)
	return m.err
}

type mockGateway struct {
	mu       sync.Mutex
	provider domain.Provider

	intent    *payment.IntentResult
	intentErr error
	requests  []payment.IntentRequest

	confirm       *payment.ConfirmResult
	confirmErr    error
	confirmCalls  int
	refund        *payment.RefundResult
	refundErr     error
	refundAmounts []*decimal.Decimal

	verifyErr error
}

func (g *mockGateway) Provider() domain.Provider {
	return g.provider
}

func (g *mockGateway) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (*payment.IntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return g.intent, nil
}

func (g *mockGateway) ConfirmPayment(_ context.Context, transactionID string) (*payment.ConfirmResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	res := *g.confirm
	res.PaymentID = transactionID
	return &res, nil
}

func (g *mockGateway) RefundPayment(_ context.Context, _ string, amount *decimal.Decimal) (*payment.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundAmounts = append(g.refundAmounts, amount)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refund, nil
}

// mockVerifyingGateway adds webhook signature checks to mockGateway.
type mockVerifyingGateway struct {
	*mockGateway
}

func (g mockVerifyingGateway) VerifyWebhook(_ []byte, signature string) error {
	if signature == "valid" {
		return nil
	}
	return payment.ErrInvalidSignature
}

type mockJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (j *mockJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return j.err
}

func (j *mockJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type mockObserver struct {
	mu       sync.Mutex
	payments []string
}

func (o *mockObserver) ObservePayment(provider, step, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payments = append(o.payments, provider+"/"+step+"/"+outcome)
}

func (o *mockObserver) ObserveWebhook(string, string) {}
