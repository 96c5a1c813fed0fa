package oracle

import (
	"context"
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceProvider fetches USD prices for currency symbols. Symbols the provider
// does not know are simply absent from the result.
type PriceProvider interface {
	FetchUsdPrices(ctx context.Context, symbols []domain.Currency) (map[domain.Currency]decimal.Decimal, error)
}

// RateProvider fetches the full USD to fiat rate table keyed by upper-case ISO code.
type RateProvider interface {
	FetchUsdToFiatRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// HTTPDoer is the subset of *http.Client used by the HTTP providers.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
