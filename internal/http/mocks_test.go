package http

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartServiceMock struct {
	snapshot *domain.CartSnapshot
	err      error

	sessionID string
	productID int64
	quantity  int
	cleared   bool
}

func (m *CartServiceMock) Snapshot(_ context.Context, sessionID string) (*domain.CartSnapshot, error) {
	m.sessionID = sessionID
	return m.snapshot, m.err
}

func (m *CartServiceMock) Add(_ context.Context, sessionID string, productID int64, quantity int) error {
	m.sessionID, m.productID, m.quantity = sessionID, productID, quantity
	return m.err
}

func (m *CartServiceMock) UpdateQuantity(_ context.Context, sessionID string, productID int64, quantity int) error {
	m.sessionID, m.productID, m.quantity = sessionID, productID, quantity
	return m.err
}

func (m *CartServiceMock) Remove(_ context.Context, sessionID string, productID int64) error {
	m.sessionID, m.productID = sessionID, productID
	return m.err
}

func (m *CartServiceMock) Clear(_ context.Context, sessionID string) error {
	m.sessionID = sessionID
	m.cleared = true
	return m.err
}

type CheckoutServiceMock struct {
	result *service.CheckoutResult
	req    service.CheckoutRequest

	payment  *domain.PaymentResult
	order    *domain.Order
	err      error
	orderErr error

	orderID       int64
	transactionID string
	provider      string
	refundAmount  *decimal.Decimal

	webhookErr       error
	webhookProvider  string
	webhookPayload   []byte
	webhookSignature string
}

func (m *CheckoutServiceMock) Checkout(_ context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	m.req = req
	return m.result, m.err
}

func (m *CheckoutServiceMock) ProcessPayment(_ context.Context, orderID int64, providerName string, _ map[string]any) (*domain.PaymentResult, error) {
	m.orderID, m.provider = orderID, providerName
	return m.payment, m.err
}

func (m *CheckoutServiceMock) ConfirmPayment(_ context.Context, orderID int64, transactionID string) (*domain.PaymentResult, error) {
	m.orderID, m.transactionID = orderID, transactionID
	return m.payment, m.err
}

func (m *CheckoutServiceMock) RefundPayment(_ context.Context, orderID int64, amount *decimal.Decimal) (*domain.PaymentResult, error) {
	m.orderID, m.refundAmount = orderID, amount
	return m.payment, m.err
}

func (m *CheckoutServiceMock) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	m.orderID = orderID
	return m.order, m.orderErr
}

func (m *CheckoutServiceMock) GetOrderByNumber(_ context.Context, _ string) (*domain.Order, error) {
	return m.order, m.orderErr
}

func (m *CheckoutServiceMock) HandleWebhook(_ context.Context, providerName string, payload []byte, signature string) error {
	m.webhookProvider, m.webhookPayload, m.webhookSignature = providerName, payload, signature
	return m.webhookErr
}

// withURLParams attaches chi route parameters to a request built with
// httptest.NewRequest, for calling handlers without a router.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withSession(r *http.Request, sessionID string) *http.Request {
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	return r
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}
