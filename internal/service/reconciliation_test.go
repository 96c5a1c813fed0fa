package service

import (
	"context"
	"testing"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationBalanced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "BTC", "1")

	_, err := env.swaps.Swap(ctx, account, "BTC", "ETH", dec("0.25"))
	require.NoError(t, err)

	drifts, err := env.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestReconciliationReportsUnrecordedCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clean := env.openAccount(t)
	env.fund(t, clean, "USDT", "100")
	drifted := env.openAccount(t)
	env.fund(t, drifted, "ETH", "2")

	// a raw ledger credit with no transaction behind it
	_, err := env.ledger.Credit(ctx, drifted, "ETH", dec("0.5"))
	require.NoError(t, err)

	drifts, err := env.reconcile.Run(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, drifted, drifts[0].AccountID)
	assert.Equal(t, domain.Currency("ETH"), drifts[0].Currency)
	assert.True(t, drifts[0].Balance.Equal(dec("2.5")), drifts[0].Balance.String())
	assert.True(t, drifts[0].Expected.Equal(dec("2")), drifts[0].Expected.String())
}
