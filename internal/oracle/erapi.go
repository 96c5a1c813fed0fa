package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultExchangeRateBaseURL = "https://open.er-api.com"

// ExchangeRateAPI reads the USD rate table from open.er-api.com.
type ExchangeRateAPI struct {
	client  HTTPDoer
	baseURL string
}

func NewExchangeRateAPI(client HTTPDoer, baseURL string) *ExchangeRateAPI {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultExchangeRateBaseURL
	}
	return &ExchangeRateAPI{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (e *ExchangeRateAPI) FetchUsdToFiatRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v6/latest/USD", nil)
	if err != nil {
		return nil, fmt.Errorf("fx: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fx: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Result string                 `json:"result"`
		Rates  map[string]json.Number `json:"rates"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("fx: decode: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("fx: upstream result %q", payload.Result)
	}

	out := make(map[string]decimal.Decimal, len(payload.Rates))
	for code, raw := range payload.Rates {
		v, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		out[strings.ToUpper(code)] = v
	}
	return out, nil
}
