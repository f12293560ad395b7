package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/logger"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(ctx).Warn("failed to encode response", "error", err)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	respondJSON(ctx, w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: a ProviderError wrapping ErrRefundNotSupported is a client
// error, not a provider outage.
var errorMappings = []errorMapping{
	{domain.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{domain.ErrProductNotFound, http.StatusBadRequest, "product_not_found"},
	{domain.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{domain.ErrMissingPrice, http.StatusBadRequest, "missing_price"},
	{domain.ErrCartNotFound, http.StatusBadRequest, "cart_not_found"},
	{domain.ErrItemNotFound, http.StatusBadRequest, "item_not_found"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrUnsupportedProvider, http.StatusBadRequest, "unsupported_provider"},
	{domain.ErrOrderNotPayable, http.StatusBadRequest, "order_not_payable"},
	{service.ErrPaymentNotRefundable, http.StatusBadRequest, "payment_not_refundable"},
	{service.ErrInvalidRefundAmount, http.StatusBadRequest, "invalid_refund_amount"},
	{service.ErrMalformedWebhook, http.StatusBadRequest, "malformed_webhook"},
	{payment.ErrPhoneRequired, http.StatusBadRequest, "phone_required"},
	{payment.ErrRefundNotSupported, http.StatusBadRequest, "refund_not_supported"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{payment.ErrProvider, http.StatusBadGateway, "provider_error"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleServiceError writes the response for an error returned by the
// cart or checkout services.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(ctx, w, m.status, m.code, err.Error())
			return
		}
	}
	logger.FromContext(ctx).Error("request failed", "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "internal_error", "internal server error")
}
