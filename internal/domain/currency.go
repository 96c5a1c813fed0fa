package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Currency is an upper-case currency or token symbol such as BTC or USDT.
type Currency string

const (
	USD  Currency = "USD"
	USDT Currency = "USDT"
	USDC Currency = "USDC"
)

// DefaultCurrencies is the registry used when no explicit list is configured.
var DefaultCurrencies = []Currency{
	"BTC", "ETH", "USDT", "USDC", "BNB", "SOL", "ADA", "XRP", "DOT", "LTC", "DOGE", "MATIC", "AVAX",
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

func (c Currency) String() string {
	return string(c)
}

// IsUSDPegged reports whether the code is USD itself or a USD stablecoin.
func (c Currency) IsUSDPegged() bool {
	switch c {
	case USD, USDT, USDC:
		return true
	}
	return false
}

// Registry is the closed set of currencies the ledger accepts.
type Registry struct {
	codes map[Currency]struct{}
}

// NewRegistry builds a registry from the given codes. Empty input yields DefaultCurrencies.
func NewRegistry(codes ...Currency) *Registry {
	if len(codes) == 0 {
		codes = DefaultCurrencies
	}
	r := &Registry{codes: make(map[Currency]struct{}, len(codes))}
	for _, code := range codes {
		code = NormalizeCurrency(string(code))
		if code == "" {
			continue
		}
		r.codes[code] = struct{}{}
	}
	return r
}

// Parse normalizes code and checks that it is registered.
func (r *Registry) Parse(code string) (Currency, error) {
	c := NormalizeCurrency(code)
	if c == "" {
		return "", fmt.Errorf("empty currency: %w", ErrUnsupportedCurrency)
	}
	if _, ok := r.codes[c]; !ok {
		return "", fmt.Errorf("%s: %w", c, ErrUnsupportedCurrency)
	}
	return c, nil
}

// Contains reports whether c is registered.
func (r *Registry) Contains(c Currency) bool {
	_, ok := r.codes[c]
	return ok
}

// Codes returns the registered codes in lexical order.
func (r *Registry) Codes() []Currency {
	out := make([]Currency, 0, len(r.codes))
	for code := range r.codes {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
