package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
)

const (
	DefaultMobileMoneyBaseURL = "https://payments.sandbox.africastalking.com"
	checkoutPath              = "/mobile/checkout/request"
	statusPendingConfirmation = "PendingConfirmation"
	// StatusPendingWebhook is reported by ConfirmPayment; only the provider
	// callback settles a mobile money payment.
	StatusPendingWebhook = "pending_webhook"
)

// errRejected marks provider answers that are not a sign of an unhealthy
// provider.
var errRejected = errors.New("rejected by provider")

type MobileMoneyConfig struct {
	Username    string
	APIKey      string
	ProductName string
	BaseURL     string
	HTTPClient  *http.Client
}

// MobileMoneyGateway triggers an Africa's Talking mobile checkout prompt on
// the customer's phone.
type MobileMoneyGateway struct {
	cfg     MobileMoneyConfig
	client  *http.Client
	breaker *circuitbreaker.Breaker[*checkoutResponse]
}

var _ Gateway = (*MobileMoneyGateway)(nil)

func NewMobileMoneyGateway(cfg MobileMoneyConfig) *MobileMoneyGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMobileMoneyBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	bc := circuitbreaker.DefaultConfig("africastalking.checkout")
	bc.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errRejected)
	}
	return &MobileMoneyGateway{
		cfg:     cfg,
		client:  httpClient,
		breaker: circuitbreaker.New[*checkoutResponse](bc),
	}
}

type checkoutRequest struct {
	Username     string            `json:"username"`
	ProductName  string            `json:"productName"`
	PhoneNumber  string            `json:"phoneNumber"`
	CurrencyCode string            `json:"currencyCode"`
	Amount       json.Number       `json:"amount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type checkoutResponse struct {
	Status        string `json:"status"`
	Description   string `json:"description"`
	TransactionID string `json:"transactionId"`
	CheckoutToken string `json:"checkoutToken"`
	ErrorMessage  string `json:"errorMessage"`
}

func (g *MobileMoneyGateway) Provider() domain.Provider {
	return domain.ProviderMobileMoney
}

func (g *MobileMoneyGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	phone := phoneFrom(req.Metadata)
	if phone == "" {
		return nil, &ProviderError{Provider: domain.ProviderMobileMoney, Op: "create_intent", Message: ErrPhoneRequired.Error(), Err: ErrPhoneRequired}
	}
	if err := requirePositive(req.Amount); err != nil {
		return nil, newProviderError(domain.ProviderMobileMoney, "create_intent", err)
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		if k == "phone_number" || k == "phone" {
			continue
		}
		metadata[k] = v
	}
	metadata["order_id"] = fmt.Sprintf("%d", req.OrderID)

	body := checkoutRequest{
		Username:     g.cfg.Username,
		ProductName:  g.cfg.ProductName,
		PhoneNumber:  phone,
		CurrencyCode: strings.ToUpper(req.Currency),
		Amount:       json.Number(req.Amount.StringFixed(2)),
		Metadata:     metadata,
	}

	resp, err := g.breaker.Execute(ctx, func(ctx context.Context) (*checkoutResponse, error) {
		return g.postCheckout(ctx, body)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, &ProviderError{Provider: domain.ProviderMobileMoney, Op: "create_intent", Message: "mobile money provider temporarily unavailable", Err: err}
		}
		return nil, newProviderError(domain.ProviderMobileMoney, "create_intent", err)
	}

	if resp.Status != statusPendingConfirmation {
		msg := resp.Description
		if msg == "" {
			msg = resp.ErrorMessage
		}
		if msg == "" {
			msg = fmt.Sprintf("unexpected checkout status %q", resp.Status)
		}
		return nil, &ProviderError{Provider: domain.ProviderMobileMoney, Op: "create_intent", Message: msg, Err: errRejected}
	}

	token := resp.CheckoutToken
	if token == "" {
		token = resp.TransactionID
	}
	return &IntentResult{
		TransactionID: resp.TransactionID,
		CheckoutToken: token,
		Status:        resp.Status,
		Description:   resp.Description,
	}, nil
}

func (g *MobileMoneyGateway) postCheckout(ctx context.Context, body checkoutRequest) (*checkoutResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+checkoutPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apiKey", g.cfg.APIKey)

	res, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("checkout request failed with status %d", res.StatusCode)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", errRejected, strings.TrimSpace(string(raw)))
	}

	var out checkoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	return &out, nil
}

// ConfirmPayment never calls out: settlement arrives by webhook.
func (g *MobileMoneyGateway) ConfirmPayment(_ context.Context, transactionID string) (*ConfirmResult, error) {
	return &ConfirmResult{Pending: true, Status: StatusPendingWebhook, PaymentID: transactionID}, nil
}

func (g *MobileMoneyGateway) RefundPayment(context.Context, string, *decimal.Decimal) (*RefundResult, error) {
	return nil, &ProviderError{Provider: domain.ProviderMobileMoney, Op: "refund", Message: "Refunds not yet implemented for mobile money", Err: ErrRefundNotSupported}
}

func phoneFrom(metadata map[string]string) string {
	for _, k := range []string{"phone_number", "phone"} {
		if v := strings.TrimSpace(metadata[k]); v != "" {
			return v
		}
	}
	return ""
}
