package payment

import (
	"net/http"
	"sort"

	"github.com/fjod/go_cart/storefront/domain"
)

// Registry maps providers to their configured gateway. It is built once at
// startup and read-only afterwards.
type Registry struct {
	gateways map[domain.Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[domain.Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		if g == nil {
			continue
		}
		r.gateways[g.Provider()] = g
	}
	return r
}

type Config struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string
	ATUsername          string
	ATAPIKey            string
	ATProductName       string
	ATBaseURL           string
	HTTPClient          *http.Client
}

// RegistryFromConfig registers only the providers whose credentials are set.
func RegistryFromConfig(cfg Config) *Registry {
	var gateways []Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, NewCardGateway(CardConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			APIBase:       cfg.StripeAPIBase,
			HTTPClient:    cfg.HTTPClient,
		}))
	}
	if cfg.ATUsername != "" && cfg.ATAPIKey != "" {
		gateways = append(gateways, NewMobileMoneyGateway(MobileMoneyConfig{
			Username:    cfg.ATUsername,
			APIKey:      cfg.ATAPIKey,
			ProductName: cfg.ATProductName,
			BaseURL:     cfg.ATBaseURL,
			HTTPClient:  cfg.HTTPClient,
		}))
	}
	return NewRegistry(gateways...)
}

func (r *Registry) Get(provider domain.Provider) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return g, nil
}

// Lookup resolves a caller supplied provider name, aliases included.
func (r *Registry) Lookup(name string) (Gateway, error) {
	provider, err := domain.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	return r.Get(provider)
}

func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
