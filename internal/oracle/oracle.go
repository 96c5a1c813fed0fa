package oracle

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/observability"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPriceTTL = 30 * time.Second
	DefaultRateTTL  = 60 * time.Second
	DefaultTimeout  = 5 * time.Second

	DefaultFailureBackoff    = 2 * time.Second
	DefaultFailureBackoffMax = time.Minute
)

type priceEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// retryWindow holds off upstream calls after a failure, growing the pause
// with each consecutive failure until a fetch succeeds.
type retryWindow struct {
	policy *backoff.ExponentialBackOff
	until  time.Time
}

func newRetryWindow(initial, ceiling time.Duration) *retryWindow {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = ceiling
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return &retryWindow{policy: policy}
}

func (w *retryWindow) blocked(now time.Time) bool {
	return now.Before(w.until)
}

func (w *retryWindow) fail(now time.Time) {
	w.until = now.Add(w.policy.NextBackOff())
}

func (w *retryWindow) succeed() {
	w.policy.Reset()
	w.until = time.Time{}
}

// Oracle caches USD prices and USD to fiat rates in front of the upstream
// providers. Upstream failures never reach callers: they get the last good
// value, or zero when nothing was ever fetched.
type Oracle struct {
	prices   PriceProvider
	rates    RateProvider
	clock    domain.Clock
	priceTTL time.Duration
	rateTTL  time.Duration
	timeout  time.Duration

	failureBackoff    time.Duration
	failureBackoffMax time.Duration

	mu          sync.RWMutex
	priceCache  map[domain.Currency]priceEntry
	rateCache   map[string]decimal.Decimal
	rateFetched time.Time
	priceRetry  *retryWindow
	rateRetry   *retryWindow

	group singleflight.Group
}

// Option configures an Oracle.
type Option func(*Oracle)

func WithClock(c domain.Clock) Option {
	return func(o *Oracle) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithPriceTTL(ttl time.Duration) Option {
	return func(o *Oracle) {
		if ttl > 0 {
			o.priceTTL = ttl
		}
	}
}

func WithRateTTL(ttl time.Duration) Option {
	return func(o *Oracle) {
		if ttl > 0 {
			o.rateTTL = ttl
		}
	}
}

// WithTimeout bounds every upstream call.
func WithTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithFailureBackoff sets how long reads are served from cache after a failed
// upstream call. The pause grows per consecutive failure up to ceiling.
func WithFailureBackoff(initial, ceiling time.Duration) Option {
	return func(o *Oracle) {
		if initial > 0 {
			o.failureBackoff = initial
		}
		if ceiling >= o.failureBackoff {
			o.failureBackoffMax = ceiling
		}
	}
}

func New(prices PriceProvider, rates RateProvider, opts ...Option) *Oracle {
	o := &Oracle{
		prices:     prices,
		rates:      rates,
		clock:      domain.SystemClock{},
		priceTTL:   DefaultPriceTTL,
		rateTTL:    DefaultRateTTL,
		timeout:    DefaultTimeout,
		priceCache: map[domain.Currency]priceEntry{},

		failureBackoff:    DefaultFailureBackoff,
		failureBackoffMax: DefaultFailureBackoffMax,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.failureBackoffMax < o.failureBackoff {
		o.failureBackoffMax = o.failureBackoff
	}
	o.priceRetry = newRetryWindow(o.failureBackoff, o.failureBackoffMax)
	o.rateRetry = newRetryWindow(o.failureBackoff, o.failureBackoffMax)
	return o
}

// GetUsdPrices returns a USD price for every requested symbol. Unpriced symbols map to zero.
func (o *Oracle) GetUsdPrices(ctx context.Context, symbols []domain.Currency) map[domain.Currency]decimal.Decimal {
	out := make(map[domain.Currency]decimal.Decimal, len(symbols))
	now := o.clock.Now()

	var stale []domain.Currency
	o.mu.RLock()
	for _, sym := range symbols {
		sym = domain.NormalizeCurrency(string(sym))
		if sym == domain.USD {
			out[sym] = decimal.NewFromInt(1)
			continue
		}
		entry, ok := o.priceCache[sym]
		if ok && now.Sub(entry.fetchedAt) < o.priceTTL {
			out[sym] = entry.price
			continue
		}
		stale = append(stale, sym)
	}
	blocked := o.priceRetry.blocked(now)
	o.mu.RUnlock()

	if len(stale) == 0 {
		return out
	}

	if !blocked {
		o.refreshPrices(ctx, stale)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, sym := range stale {
		if entry, ok := o.priceCache[sym]; ok {
			out[sym] = entry.price
		} else {
			out[sym] = decimal.Zero
		}
	}
	return out
}

// GetUsdPrice is a single-symbol convenience over GetUsdPrices.
func (o *Oracle) GetUsdPrice(ctx context.Context, symbol domain.Currency) decimal.Decimal {
	symbol = domain.NormalizeCurrency(string(symbol))
	return o.GetUsdPrices(ctx, []domain.Currency{symbol})[symbol]
}

func (o *Oracle) refreshPrices(ctx context.Context, symbols []domain.Currency) {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = string(s)
	}

	_, _, _ = o.group.Do("prices:"+strings.Join(keys, ","), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()

		fetched, err := o.prices.FetchUsdPrices(fetchCtx, symbols)
		if err != nil {
			observability.IncrementOracleFallback("prices")
			zap.L().Warn("price provider failed, serving cached prices", zap.Error(err), zap.Strings("symbols", keys))
			o.mu.Lock()
			o.priceRetry.fail(o.clock.Now())
			o.mu.Unlock()
			return nil, err
		}

		at := o.clock.Now()
		o.mu.Lock()
		defer o.mu.Unlock()
		o.priceRetry.succeed()
		for _, sym := range symbols {
			price, ok := fetched[sym]
			if !ok || price.IsNegative() {
				price = decimal.Zero
			}
			o.priceCache[sym] = priceEntry{price: price, fetchedAt: at}
		}
		return nil, nil
	})
}

// GetFiatRate returns how many units of fiat one USD buys. USD and USD
// stablecoins are 1 without a network call; unknown codes are zero.
func (o *Oracle) GetFiatRate(ctx context.Context, code string) decimal.Decimal {
	c := domain.NormalizeCurrency(code)
	if c == "" || c.IsUSDPegged() {
		return decimal.NewFromInt(1)
	}

	now := o.clock.Now()
	o.mu.RLock()
	fresh := o.rateCache != nil && now.Sub(o.rateFetched) < o.rateTTL
	blocked := o.rateRetry.blocked(now)
	rate, ok := o.rateCache[string(c)]
	o.mu.RUnlock()
	if fresh || blocked {
		if ok {
			return rate
		}
		return decimal.Zero
	}

	o.refreshRates(ctx)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if rate, ok := o.rateCache[string(c)]; ok {
		return rate
	}
	return decimal.Zero
}

func (o *Oracle) refreshRates(ctx context.Context) {
	_, _, _ = o.group.Do("rates", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()

		rates, err := o.rates.FetchUsdToFiatRates(fetchCtx)
		if err != nil {
			observability.IncrementOracleFallback("rates")
			zap.L().Warn("rate provider failed, serving cached rates", zap.Error(err))
			o.mu.Lock()
			o.rateRetry.fail(o.clock.Now())
			o.mu.Unlock()
			return nil, err
		}

		table := make(map[string]decimal.Decimal, len(rates))
		for k, v := range rates {
			if v.IsPositive() {
				table[strings.ToUpper(k)] = v
			}
		}
		o.mu.Lock()
		o.rateCache = table
		o.rateFetched = o.clock.Now()
		o.rateRetry.succeed()
		o.mu.Unlock()
		return nil, nil
	})
}

// ConvertUSDToFiat converts a USD amount into fiat. Fails with ErrPriceUnavailable when no rate is known.
func (o *Oracle) ConvertUSDToFiat(ctx context.Context, amountUSD decimal.Decimal, fiat string) (decimal.Decimal, decimal.Decimal, error) {
	rate := o.GetFiatRate(ctx, fiat)
	if !rate.IsPositive() {
		return decimal.Zero, decimal.Zero, unavailable(fiat)
	}
	return amountUSD.Mul(rate), rate, nil
}

// ConvertFiatToUSD converts a fiat amount into USD. Fails with ErrPriceUnavailable when no rate is known.
func (o *Oracle) ConvertFiatToUSD(ctx context.Context, amount decimal.Decimal, fiat string) (decimal.Decimal, decimal.Decimal, error) {
	rate := o.GetFiatRate(ctx, fiat)
	if !rate.IsPositive() {
		return decimal.Zero, decimal.Zero, unavailable(fiat)
	}
	return amount.DivRound(rate, 16), rate, nil
}
