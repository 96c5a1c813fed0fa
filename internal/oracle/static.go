package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrStaticUnavailable is returned by a Static provider switched to failing mode.
var ErrStaticUnavailable = errors.New("static provider unavailable")

// Static serves fixed prices and rates. It backs local runs and tests.
type Static struct {
	mu     sync.RWMutex
	prices map[domain.Currency]decimal.Decimal
	rates  map[string]decimal.Decimal
	fail   bool
	calls  int
}

func NewStatic(prices map[domain.Currency]decimal.Decimal, rates map[string]decimal.Decimal) *Static {
	s := &Static{
		prices: map[domain.Currency]decimal.Decimal{},
		rates:  map[string]decimal.Decimal{},
	}
	for k, v := range prices {
		s.prices[k] = v
	}
	for k, v := range rates {
		s.rates[strings.ToUpper(k)] = v
	}
	return s
}

// DefaultStatic is a plausible fixed market used when no upstream is configured.
func DefaultStatic() *Static {
	return NewStatic(map[domain.Currency]decimal.Decimal{
		"BTC":   decimal.NewFromInt(60000),
		"ETH":   decimal.NewFromInt(3000),
		"USDT":  decimal.NewFromInt(1),
		"USDC":  decimal.NewFromInt(1),
		"BNB":   decimal.NewFromInt(550),
		"SOL":   decimal.NewFromInt(150),
		"ADA":   decimal.RequireFromString("0.45"),
		"XRP":   decimal.RequireFromString("0.52"),
		"DOT":   decimal.NewFromInt(7),
		"LTC":   decimal.NewFromInt(80),
		"DOGE":  decimal.RequireFromString("0.12"),
		"MATIC": decimal.RequireFromString("0.70"),
		"AVAX":  decimal.NewFromInt(35),
	}, map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.79"),
		"NGN": decimal.NewFromInt(1500),
		"JPY": decimal.NewFromInt(150),
	})
}

func (s *Static) SetPrice(c domain.Currency, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[c] = price
}

func (s *Static) SetRate(code string, r decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(code)] = r
}

// SetFailing makes every subsequent fetch return ErrStaticUnavailable.
func (s *Static) SetFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Calls reports how many fetches reached the provider.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) FetchUsdPrices(_ context.Context, symbols []domain.Currency) (map[domain.Currency]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, ErrStaticUnavailable
	}
	out := make(map[domain.Currency]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

func (s *Static) FetchUsdToFiatRates(context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, ErrStaticUnavailable
	}
	out := make(map[string]decimal.Decimal, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out, nil
}
