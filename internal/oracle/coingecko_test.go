package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGeckoFetchUsdPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "bitcoin,tether", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64123.5},"tether":{"usd":1.0001}}`))
	}))
	defer server.Close()

	cg := NewCoinGecko(server.Client(), server.URL, nil)
	prices, err := cg.FetchUsdPrices(context.Background(), []domain.Currency{"BTC", "USDT"})
	require.NoError(t, err)
	assert.True(t, prices["BTC"].Equal(decimal.RequireFromString("64123.5")))
	assert.True(t, prices["USDT"].Equal(decimal.RequireFromString("1.0001")))
}

func TestCoinGeckoErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	cg := NewCoinGecko(server.Client(), server.URL, nil)
	_, err := cg.FetchUsdPrices(context.Background(), []domain.Currency{"BTC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestCoinGeckoLearnsUnknownSymbolsFromCoinList(t *testing.T) {
	var listCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/list":
			listCalls.Add(1)
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"id": "fake-bitcoin", "symbol": "btc"},
				{"id": "chainlink", "symbol": "link"},
			})
		case "/simple/price":
			assert.Equal(t, "bitcoin,chainlink", r.URL.Query().Get("ids"))
			_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000},"chainlink":{"usd":14.2}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cg := NewCoinGecko(server.Client(), server.URL, nil)
	prices, err := cg.FetchUsdPrices(context.Background(), []domain.Currency{"BTC", "LINK"})
	require.NoError(t, err)
	assert.True(t, prices["LINK"].Equal(decimal.RequireFromString("14.2")))
	assert.True(t, prices["BTC"].Equal(decimal.NewFromInt(60000)))

	_, err = cg.FetchUsdPrices(context.Background(), []domain.Currency{"BTC", "LINK"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), listCalls.Load())
}

func TestExchangeRateAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v6/latest/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.92,"ngn":1480.5}}`))
	}))
	defer server.Close()

	fx := NewExchangeRateAPI(server.Client(), server.URL)
	rates, err := fx.FetchUsdToFiatRates(context.Background())
	require.NoError(t, err)
	assert.True(t, rates["EUR"].Equal(decimal.RequireFromString("0.92")))
	assert.True(t, rates["NGN"].Equal(decimal.RequireFromString("1480.5")))
}

func TestExchangeRateAPIUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
	}))
	defer server.Close()

	_, err := NewExchangeRateAPI(server.Client(), server.URL).FetchUsdToFiatRates(context.Background())
	assert.Error(t, err)
}
