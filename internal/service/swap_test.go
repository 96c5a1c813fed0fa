package service

import (
	"context"
	"testing"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "BTC", "1")

	quote, err := env.swaps.Preview(ctx, "BTC", "ETH", dec("0.5"))
	require.NoError(t, err)
	requireDecimal(t, "10", quote.ToAmount)
	requireDecimal(t, "20", quote.Rate)
	requireDecimal(t, "1", env.balance(t, account, "BTC"))

	result, err := env.swaps.Swap(ctx, account, "btc", "eth", dec("0.5"))
	require.NoError(t, err)
	requireDecimal(t, "0.5", env.balance(t, account, "BTC"))
	requireDecimal(t, "10", env.balance(t, account, "ETH"))

	txn := result.Transaction
	assert.Equal(t, domain.TxKindSwap, txn.Kind)
	assert.Equal(t, domain.TxStatusCompleted, txn.Status)
	assert.Equal(t, domain.Currency("BTC"), txn.Currency)
	requireDecimal(t, "-0.5", txn.Amount)
	assert.Equal(t, "ETH", txn.Metadata[domain.MetaToCurrency])
	assert.Equal(t, "10", txn.Metadata[domain.MetaToAmount])
	assert.Regexp(t, `^SWAP-`, txn.Reference)

	account2, err := env.store.Queries().GetAccount(ctx, account)
	require.NoError(t, err)
	requireDecimal(t, "60000", account2.TotalUSD)

	env.requireNoDrift(t)
}

func TestSwapIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "BTC", "1")

	_, err := env.swaps.Swap(ctx, account, "BTC", "SOL", dec("0.5"))
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
	requireDecimal(t, "1", env.balance(t, account, "BTC"))

	_, err = env.swaps.Swap(ctx, account, "BTC", "ETH", dec("2"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	requireDecimal(t, "1", env.balance(t, account, "BTC"))
	requireDecimal(t, "0", env.balance(t, account, "ETH"))

	env.requireNoDrift(t)
}

func TestSwapValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)

	tests := []struct {
		name     string
		from, to string
		amount   decimal.Decimal
		want     error
	}{
		{"same currency", "BTC", "btc", dec("1"), domain.ErrSameCurrency},
		{"unknown currency", "BTC", "XYZ", dec("1"), domain.ErrUnsupportedCurrency},
		{"zero amount", "BTC", "ETH", decimal.Zero, domain.ErrInvalidAmount},
		{"dust", "USDT", "BTC", dec("0.00000001"), domain.ErrInvalidAmount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.swaps.Swap(ctx, account, tc.from, tc.to, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
