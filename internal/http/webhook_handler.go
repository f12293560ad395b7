package http

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const cardSignatureHeader = "Stripe-Signature"

type webhookService interface {
	HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) error
}

type WebhookHandler struct {
	webhooks webhookService
}

func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// POST /checkout/webhook/{provider}
// Well-formed deliveries are acknowledged with 200 even when they change
// nothing; providers retry on anything else.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}

	provider := chi.URLParam(r, "provider")
	if err := h.webhooks.HandleWebhook(ctx, provider, payload, r.Header.Get(cardSignatureHeader)); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, MessageResponse{Success: true})
}
