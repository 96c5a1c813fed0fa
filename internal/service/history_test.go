package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	other := env.openAccount(t)

	env.fund(t, account, "BTC", "1")
	env.fund(t, account, "USDT", "10")
	env.fund(t, other, "ETH", "2")
	_, err := env.swaps.Swap(ctx, account, "BTC", "ETH", dec("0.1"))
	require.NoError(t, err)

	page, err := env.history.List(ctx, models.TransactionFilter{AccountID: &account}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int32(50), page.Limit)
	for _, e := range page.Entries {
		assert.Equal(t, account, e.AccountID)
		assert.Nil(t, e.DisplayAmount)
	}

	page, err = env.history.List(ctx, models.TransactionFilter{Kind: domain.TxKindDeposit, Limit: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Entries, 2)

	page, err = env.history.List(ctx, models.TransactionFilter{AccountID: &account, Kind: domain.TxKindDeposit, Currency: "BTC"}, "eur")
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.NotNil(t, page.Entries[0].DisplayAmount)
	requireDecimal(t, "30000", *page.Entries[0].DisplayAmount)
	assert.Equal(t, "EUR", page.Entries[0].DisplayCurrency)
}

func TestHistoryRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name   string
		filter models.TransactionFilter
	}{
		{"unknown kind", models.TransactionFilter{Kind: "refund"}},
		{"unknown status", models.TransactionFilter{Status: "settled"}},
		{"inverted range", models.TransactionFilter{From: &now, To: &earlier}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.history.List(ctx, tc.filter, "")
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, -3)
	assert.Equal(t, int32(50), limit)
	assert.Equal(t, int32(0), offset)

	limit, _ = normalizePage(1000, 0)
	assert.Equal(t, int32(200), limit)
}
