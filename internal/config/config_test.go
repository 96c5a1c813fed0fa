package config

import (
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, 5*time.Minute, cfg.PayoutInterval)
	assert.Equal(t, 30*time.Second, cfg.PriceTTL)
	assert.Equal(t, time.Minute, cfg.FiatRateTTL)
	assert.Equal(t, 2*time.Second, cfg.OracleBackoff)
	assert.Equal(t, domain.USDT, cfg.SettlementCurrency)
	assert.Equal(t, domain.DefaultCurrencies, cfg.SupportedCurrencies)
	assert.False(t, cfg.WithdrawalStrictRequests)
	assert.Equal(t, NotifyLog, cfg.NotifyDriver)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("LEDGER_PAYOUT_INTERVAL", "1m")
	t.Setenv("SUPPORTED_CURRENCIES", "btc, usdt")
	t.Setenv("ADMIN_WALLET_BTC", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq")
	t.Setenv("WITHDRAWAL_STRICT_REQUESTS", "true")
	t.Setenv("NOTIFY_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ORACLE_BACKOFF", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, time.Minute, cfg.PayoutInterval)
	assert.Equal(t, []domain.Currency{"BTC", "USDT"}, cfg.SupportedCurrencies)
	assert.Equal(t, map[domain.Currency]string{"BTC": "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"}, cfg.AdminWallets)
	assert.True(t, cfg.WithdrawalStrictRequests)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.OracleBackoff)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET is required"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 32 characters"},
		{"bad duration", map[string]string{"PRICE_TTL": "soon"}, "invalid PRICE_TTL"},
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "mongo"}, "unknown STORAGE_DRIVER"},
		{"redis notify without redis", map[string]string{"NOTIFY_DRIVER": "redis"}, "REDIS_URL is required"},
		{"settlement not supported", map[string]string{"SUPPORTED_CURRENCIES": "BTC"}, "SETTLEMENT_CURRENCY USDT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
