package domain

import "strings"

// Provider identifies a payment network adapter.
type Provider string

const (
	ProviderCard        Provider = "card"
	ProviderMobileMoney Provider = "mobile_money"
)

var providerAliases = map[string]Provider{
	"card":            ProviderCard,
	"stripe":          ProviderCard,
	"mobile_money":    ProviderMobileMoney,
	"africas_talking": ProviderMobileMoney,
}

// ParseProvider maps a caller supplied name onto the closed provider set.
func ParseProvider(name string) (Provider, error) {
	p, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", ErrUnsupportedProvider
	}
	return p, nil
}

func (p Provider) String() string {
	return string(p)
}
