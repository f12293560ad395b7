package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// CardGateway is the card intent flow backed by Stripe.
type CardGateway struct {
	intents       intentAPI
	refunds       refundAPI
	webhookSecret string
	intentCB      *circuitbreaker.Breaker[*stripe.PaymentIntent]
	refundCB      *circuitbreaker.Breaker[*stripe.Refund]
}

var _ Gateway = (*CardGateway)(nil)

type CardConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIBase overrides https://api.stripe.com, e.g. for stripe-mock.
	APIBase    string
	HTTPClient *http.Client
}

func NewCardGateway(cfg CardConfig) *CardGateway {
	var backends *stripe.Backends
	if cfg.APIBase != "" || cfg.HTTPClient != nil {
		backendCfg := &stripe.BackendConfig{HTTPClient: cfg.HTTPClient}
		if cfg.APIBase != "" {
			backendCfg.URL = stripe.String(cfg.APIBase)
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackend(stripe.ConnectBackend),
			Uploads: stripe.GetBackend(stripe.UploadsBackend),
		}
	}
	sc := client.New(cfg.SecretKey, backends)
	return newCardGateway(sc.PaymentIntents, sc.Refunds, cfg.WebhookSecret)
}

func newCardGateway(intents intentAPI, refunds refundAPI, webhookSecret string) *CardGateway {
	return &CardGateway{
		intents:       intents,
		refunds:       refunds,
		webhookSecret: webhookSecret,
		intentCB:      circuitbreaker.New[*stripe.PaymentIntent](stripeBreakerConfig("stripe.payment_intents")),
		refundCB:      circuitbreaker.New[*stripe.Refund](stripeBreakerConfig("stripe.refunds")),
	}
}

// stripeBreakerConfig keeps client-side rejections (declines, bad params)
// from tripping the breaker.
func stripeBreakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.IsSuccessful = func(err error) bool {
		var se *stripe.Error
		if errors.As(err, &se) {
			return se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500
		}
		return err == nil
	}
	return cfg
}

func (g *CardGateway) Provider() domain.Provider {
	return domain.ProviderCard
}

func (g *CardGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	if err := requirePositive(req.Amount); err != nil {
		return nil, newProviderError(domain.ProviderCard, "create_intent", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))

	pi, err := g.intentCB.Execute(ctx, func(context.Context) (*stripe.PaymentIntent, error) {
		return g.intents.New(params)
	})
	if err != nil {
		return nil, g.wrap("create_intent", err)
	}

	return &IntentResult{
		TransactionID: pi.ID,
		ClientSecret:  pi.ClientSecret,
		Status:        string(pi.Status),
	}, nil
}

func (g *CardGateway) ConfirmPayment(ctx context.Context, transactionID string) (*ConfirmResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intentCB.Execute(ctx, func(context.Context) (*stripe.PaymentIntent, error) {
		return g.intents.Get(transactionID, params)
	})
	if err != nil {
		return nil, g.wrap("confirm", err)
	}

	res := &ConfirmResult{Status: string(pi.Status), PaymentID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Success = true
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
	default:
		res.Pending = true
	}
	return res, nil
}

func (g *CardGateway) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(transactionID)}
	params.Context = ctx
	if amount != nil {
		if err := requirePositive(*amount); err != nil {
			return nil, newProviderError(domain.ProviderCard, "refund", err)
		}
		params.Amount = stripe.Int64(toMinorUnits(*amount))
	}

	rf, err := g.refundCB.Execute(ctx, func(context.Context) (*stripe.Refund, error) {
		return g.refunds.New(params)
	})
	if err != nil {
		return nil, g.wrap("refund", err)
	}

	return &RefundResult{
		RefundID: rf.ID,
		Status:   string(rf.Status),
		Amount:   fromMinorUnits(rf.Amount),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header. Without a configured
// secret every payload is accepted.
func (g *CardGateway) VerifyWebhook(payload []byte, signature string) error {
	if g.webhookSecret == "" {
		return nil
	}
	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func (g *CardGateway) wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newProviderError(domain.ProviderCard, op, err)
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return &ProviderError{Provider: domain.ProviderCard, Op: op, Message: "card provider temporarily unavailable", Err: err}
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return &ProviderError{Provider: domain.ProviderCard, Op: op, Message: se.Msg, Err: err}
	}
	return newProviderError(domain.ProviderCard, op, err)
}
