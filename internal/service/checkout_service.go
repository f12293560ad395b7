package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/journal"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
)

// CheckoutStore is the slice of storage the orchestrator writes through.
type CheckoutStore interface {
	repository.CartRepository
	repository.OrderRepository
	repository.PaymentRepository
}

// Gateways resolves a provider to its configured adapter.
type Gateways interface {
	Get(provider domain.Provider) (payment.Gateway, error)
}

type cartInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

// Observer receives payment and webhook outcomes, e.g. for metrics.
type Observer interface {
	ObservePayment(provider, step, outcome string)
	ObserveWebhook(provider, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObservePayment(string, string, string) {}
func (nopObserver) ObserveWebhook(string, string)         {}

type CheckoutService struct {
	store    CheckoutStore
	gateways Gateways
	carts    cartInvalidator
	journal  journal.Journal
	observer Observer
}

func NewCheckoutService(store CheckoutStore, gateways Gateways, carts cartInvalidator, j journal.Journal, observer Observer) *CheckoutService {
	if j == nil {
		j = journal.Nop{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &CheckoutService{
		store:    store,
		gateways: gateways,
		carts:    carts,
		journal:  j,
		observer: observer,
	}
}

type CheckoutRequest struct {
	SessionID      string
	Customer       domain.CustomerData
	Provider       string
	MethodData     map[string]any
	IdempotencyKey string
}

type CheckoutResult struct {
	Order   *domain.Order
	Payment *domain.PaymentResult
	// Replayed is set when the idempotency key matched an earlier checkout.
	Replayed bool
}

// Checkout turns the session's cart into an order and starts its payment.
// The provider is resolved first so an unusable provider never leaves an
// unpaid order behind.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.IdempotencyKey != "" {
		res, err := s.replay(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	if _, err := s.gateways.Get(provider); err != nil {
		return nil, err
	}

	cart, err := s.store.GetCartBySession(ctx, req.SessionID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	order, err := s.CreateOrderFromCart(ctx, cart.ID, req.Customer, req.IdempotencyKey)
	if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		return s.replay(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if s.carts != nil {
		s.carts.Invalidate(ctx, req.SessionID)
	}

	result, err := s.ProcessPayment(ctx, order.ID, provider.String(), req.MethodData)
	if err != nil {
		return nil, err
	}
	if fresh, err := s.store.GetOrder(ctx, order.ID); err == nil {
		order = fresh
	}
	return &CheckoutResult{Order: order, Payment: result}, nil
}

// replay answers a repeated checkout with the order the same session created
// the first time. Keys are scoped to the session, so another session's key
// never resolves here.
// An order whose payment never started gets its payment started now.
func (s *CheckoutService) replay(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	order, err := s.store.GetOrderByIdempotencyKey(ctx, req.SessionID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	result, err := s.LatestPaymentResult(ctx, order.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		result, err = s.ProcessPayment(ctx, order.ID, req.Provider, req.MethodData)
	}
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("checkout replayed", "order_number", order.OrderNumber)
	return &CheckoutResult{Order: order, Payment: result, Replayed: true}, nil
}

// CreateOrderFromCart snapshots the cart into an order. Stock, order rows and
// the emptied cart are committed together or not at all.
func (s *CheckoutService) CreateOrderFromCart(ctx context.Context, cartID int64, customer domain.CustomerData, idempotencyKey string) (*domain.Order, error) {
	order, err := s.store.CreateOrderFromCart(ctx, cartID, customer, idempotencyKey)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("order created",
		"order_number", order.OrderNumber,
		"total", order.TotalAmount.String(),
		"currency", order.Currency,
	)
	return order, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *CheckoutService) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.store.GetOrderByNumber(ctx, orderNumber)
}

// LatestPaymentResult rebuilds the result of the order's most recent payment
// step from what was recorded. ErrPaymentNotFound if none was started.
func (s *CheckoutService) LatestPaymentResult(ctx context.Context, orderID int64) (*domain.PaymentResult, error) {
	p, err := s.store.GetLatestPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var result domain.PaymentResult
	if len(p.ProviderResponse) > 0 && json.Unmarshal(p.ProviderResponse, &result) == nil {
		result.Provider = p.Provider
		if result.TransactionID == "" {
			result.TransactionID = p.TransactionID
		}
		return &result, nil
	}
	return &domain.PaymentResult{
		Success:       p.Status != domain.PaymentStatusFailed,
		Provider:      p.Provider,
		TransactionID: p.TransactionID,
		Status:        p.Status.String(),
	}, nil
}
