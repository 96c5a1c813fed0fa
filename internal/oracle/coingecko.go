package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	coinListRefresh         = 24 * time.Hour
)

// DefaultCoinIDs maps ledger symbols to CoinGecko coin ids. These win over
// anything learned from the coin list, since several coins share a symbol.
var DefaultCoinIDs = map[domain.Currency]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"ADA":   "cardano",
	"SOL":   "solana",
	"XRP":   "ripple",
	"DOT":   "polkadot",
	"LTC":   "litecoin",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
}

// CoinGecko fetches USD prices from the CoinGecko simple price endpoint.
type CoinGecko struct {
	client  HTTPDoer
	baseURL string
	limiter *rate.Limiter
	clock   domain.Clock

	mu         sync.RWMutex
	ids        map[domain.Currency]string
	listLoaded time.Time
}

// NewCoinGecko builds a provider. A nil limiter means no client-side throttling.
func NewCoinGecko(client HTTPDoer, baseURL string, limiter *rate.Limiter) *CoinGecko {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultCoinGeckoBaseURL
	}
	ids := make(map[domain.Currency]string, len(DefaultCoinIDs))
	for k, v := range DefaultCoinIDs {
		ids[k] = v
	}
	return &CoinGecko{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		clock:   domain.SystemClock{},
		ids:     ids,
	}
}

func (c *CoinGecko) FetchUsdPrices(ctx context.Context, symbols []domain.Currency) (map[domain.Currency]decimal.Decimal, error) {
	c.maybeRefreshCoinList(ctx, symbols)

	byID := make(map[string][]domain.Currency, len(symbols))
	ids := make([]string, 0, len(symbols))
	c.mu.RLock()
	for _, sym := range symbols {
		id, ok := c.ids[sym]
		if !ok {
			continue
		}
		if _, seen := byID[id]; !seen {
			ids = append(ids, id)
		}
		byID[id] = append(byID[id], sym)
	}
	c.mu.RUnlock()

	out := make(map[domain.Currency]decimal.Decimal, len(symbols))
	if len(ids) == 0 {
		return out, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	var payload map[string]map[string]json.Number
	if err := c.get(ctx, "/simple/price?"+params.Encode(), &payload); err != nil {
		return nil, err
	}

	for id, quote := range payload {
		raw, ok := quote["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("coingecko: parse price for %s: %w", id, err)
		}
		for _, sym := range byID[id] {
			out[sym] = price
		}
	}
	return out, nil
}

// maybeRefreshCoinList pulls /coins/list at most once a day, and only when a
// requested symbol has no known id.
func (c *CoinGecko) maybeRefreshCoinList(ctx context.Context, symbols []domain.Currency) {
	c.mu.RLock()
	missing := false
	for _, sym := range symbols {
		if _, ok := c.ids[sym]; !ok {
			missing = true
			break
		}
	}
	due := c.listLoaded.IsZero() || c.clock.Now().Sub(c.listLoaded) >= coinListRefresh
	c.mu.RUnlock()
	if !missing || !due {
		return
	}

	var coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	err := c.get(ctx, "/coins/list", &coins)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listLoaded = c.clock.Now()
	if err != nil {
		zap.L().Warn("coingecko coin list refresh failed", zap.Error(err))
		return
	}
	for _, coin := range coins {
		sym := domain.NormalizeCurrency(coin.Symbol)
		if sym == "" || coin.ID == "" {
			continue
		}
		if _, pinned := DefaultCoinIDs[sym]; pinned {
			continue
		}
		if _, exists := c.ids[sym]; !exists {
			c.ids[sym] = coin.ID
		}
	}
}

func (c *CoinGecko) get(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("coingecko: rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("coingecko: decode: %w", err)
	}
	return nil
}
