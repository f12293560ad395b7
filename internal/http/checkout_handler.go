package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type checkoutService interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	ProcessPayment(ctx context.Context, orderID int64, providerName string, methodData map[string]any) (*domain.PaymentResult, error)
	ConfirmPayment(ctx context.Context, orderID int64, transactionID string) (*domain.PaymentResult, error)
	RefundPayment(ctx context.Context, orderID int64, amount *decimal.Decimal) (*domain.PaymentResult, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout checkoutService
	sessions sessions
}

func NewCheckoutHandler(checkout checkoutService, s sessions) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, sessions: s}
}

type CheckoutRequestDTO struct {
	Email             string         `json:"email" validate:"required,email"`
	Name              string         `json:"name" validate:"required"`
	Phone             string         `json:"phone"`
	ShippingAddress   string         `json:"shipping_address" validate:"required"`
	Currency          string         `json:"currency" validate:"omitempty,len=3"`
	PaymentProvider   string         `json:"payment_provider" validate:"required"`
	PaymentMethodData map[string]any `json:"payment_method_data"`
}

type PayRequestDTO struct {
	PaymentProvider   string         `json:"payment_provider" validate:"required"`
	PaymentMethodData map[string]any `json:"payment_method_data"`
}

type RefundRequestDTO struct {
	Amount *decimal.Decimal `json:"amount"`
}

// CheckoutResponseDTO carries the provider fields of the payment result
// (client_secret, checkout_token, transaction_id, ...) at the top level.
// Success and Error shadow the embedded ones.
type CheckoutResponseDTO struct {
	Success     bool            `json:"success"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	OrderStatus string          `json:"order_status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Replayed    bool            `json:"replayed,omitempty"`
	Error       string          `json:"error,omitempty"`
	*domain.PaymentResult
}

type OrderItemDTO struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type OrderStatusResponseDTO struct {
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []OrderItemDTO  `json:"items"`
}

// POST /checkout/process
func (h *CheckoutHandler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CheckoutRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := h.sessions.existing(r)
	if sessionID == "" {
		handleServiceError(ctx, w, domain.ErrEmptyCart)
		return
	}

	res, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		SessionID: sessionID,
		Customer: domain.CustomerData{
			Email:           req.Email,
			Name:            req.Name,
			Phone:           req.Phone,
			ShippingAddress: req.ShippingAddress,
			Currency:        strings.ToUpper(req.Currency),
		},
		Provider:       req.PaymentProvider,
		MethodData:     req.PaymentMethodData,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	if res.Payment.Success {
		h.sessions.issue(w)
	}
	respondJSON(ctx, w, http.StatusOK, checkoutResponse(res.Order, res.Payment, res.Replayed))
}

// POST /checkout/pay/{order_id}
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := positiveIDParam(w, r, "order_id")
	if !ok {
		return
	}

	var req PayRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.checkout.ProcessPayment(ctx, orderID, req.PaymentProvider, req.PaymentMethodData)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	order, err := h.checkout.GetOrder(ctx, orderID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, checkoutResponse(order, result, false))
}

// POST /checkout/confirm/{order_id}?transaction_id=
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := positiveIDParam(w, r, "order_id")
	if !ok {
		return
	}
	transactionID := strings.TrimSpace(r.URL.Query().Get("transaction_id"))
	if transactionID == "" {
		respondError(ctx, w, http.StatusBadRequest, "missing_transaction_id", "transaction_id is required")
		return
	}

	result, err := h.checkout.ConfirmPayment(ctx, orderID, transactionID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// POST /checkout/refund/{order_id}
// An empty body refunds the full amount.
func (h *CheckoutHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := positiveIDParam(w, r, "order_id")
	if !ok {
		return
	}

	var req RefundRequestDTO
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.checkout.RefundPayment(ctx, orderID, req.Amount)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// GET /checkout/order/{order_number}
func (h *CheckoutHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.checkout.GetOrderByNumber(ctx, chi.URLParam(r, "order_number"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	respondJSON(ctx, w, http.StatusOK, OrderStatusResponseDTO{
		OrderNumber: order.OrderNumber,
		Status:      order.Status.String(),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CreatedAt:   order.CreatedAt,
		Items:       items,
	})
}

func checkoutResponse(order *domain.Order, result *domain.PaymentResult, replayed bool) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		Success:     result.Success,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderStatus: order.Status.String(),
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Replayed:    replayed,

		PaymentResult: result,
	}
	if !result.Success {
		resp.Error = result.Error
		if resp.Error == "" {
			resp.Error = "Payment processing failed"
		}
	}
	return resp
}
