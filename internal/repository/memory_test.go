package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryAccount(t *testing.T, s *MemoryStore) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.Queries().CreateAccount(context.Background(), CreateAccountParams{ID: id, WorkingCurrency: "USD"})
	require.NoError(t, err)
	return id
}

func TestMemoryStore_RunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(q Querier) error {
		rows, err := q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "USDT", Amount: decimal.NewFromInt(50)})
		require.NoError(t, err)
		require.Equal(t, int64(1), rows)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Queries().GetBalance(ctx, id, "USDT")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStore_RunInTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)

	require.NoError(t, s.RunInTx(ctx, func(q Querier) error {
		_, err := q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "USDT", Amount: decimal.NewFromInt(50)})
		return err
	}))

	b, err := s.Queries().GetBalance(ctx, id, "USDT")
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, int64(1), b.Version)
}

func TestMemoryStore_UpdateBalanceChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)
	q := s.Queries()

	_, err := q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "BTC", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	rows, err := q.UpdateBalance(ctx, UpdateBalanceParams{AccountID: id, Currency: "BTC", Amount: decimal.NewFromInt(2), Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.UpdateBalance(ctx, UpdateBalanceParams{AccountID: id, Currency: "BTC", Amount: decimal.NewFromInt(3), Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	_, err = q.UpdateBalance(ctx, UpdateBalanceParams{AccountID: id, Currency: "BTC", Amount: decimal.NewFromInt(-1), Version: 2})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23514", pgErr.Code)
}

func TestMemoryStore_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)
	q := s.Queries()

	tx := models.Transaction{ID: uuid.New(), AccountID: id, Kind: domain.TxKindDeposit, Amount: decimal.NewFromInt(1), Currency: "BTC", Status: domain.TxStatusPending, Reference: "DP-1"}
	_, err := q.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	tx.ID = uuid.New()
	_, err = q.CreateTransaction(ctx, tx)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)
}

func TestMemoryStore_TransitionInvestmentOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)
	q := s.Queries()

	plan, err := q.CreatePlan(ctx, models.InvestmentPlan{ID: uuid.New(), Name: "Starter", MinAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(100), Multiplier: decimal.NewFromInt(2), DurationDays: 7, IsActive: true})
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inv, err := q.CreateInvestment(ctx, models.Investment{
		ID: uuid.New(), AccountID: id, PlanID: plan.ID, Currency: "USDT",
		Amount: decimal.NewFromInt(20), Multiplier: decimal.NewFromInt(2), DurationDays: 7, PayoutAmount: decimal.NewFromInt(40),
		StartAt: start, EndAt: start.AddDate(0, 0, 7), Status: domain.InvestmentStatusActive,
	})
	require.NoError(t, err)

	due, err := q.ListDueInvestments(ctx, start.AddDate(0, 0, 6), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = q.ListDueInvestments(ctx, start.AddDate(0, 0, 7), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	arg := TransitionInvestmentParams{ID: inv.ID, From: domain.InvestmentStatusActive, To: domain.InvestmentStatusCompleted, At: start.AddDate(0, 0, 7)}
	rows, err := q.TransitionInvestment(ctx, arg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.TransitionInvestment(ctx, arg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestMemoryStore_LedgerDrift(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)
	q := s.Queries()

	_, err := q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "USDT", Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	_, err = q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "BTC", Amount: decimal.RequireFromString("0.001")})
	require.NoError(t, err)

	_, err = q.CreateTransaction(ctx, models.Transaction{ID: uuid.New(), AccountID: id, Kind: domain.TxKindDeposit, Amount: decimal.NewFromInt(100), Currency: "USDT", Status: domain.TxStatusCompleted, Reference: "DP-1"})
	require.NoError(t, err)
	_, err = q.CreateTransaction(ctx, models.Transaction{
		ID: uuid.New(), AccountID: id, Kind: domain.TxKindSwap, Amount: decimal.NewFromInt(-40), Currency: "USDT", Status: domain.TxStatusCompleted, Reference: "SWAP-1",
		Metadata: models.Metadata{domain.MetaToCurrency: "BTC", domain.MetaToAmount: "0.001"},
	})
	require.NoError(t, err)

	drift, err := q.GetLedgerDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	_, err = q.CreateTransaction(ctx, models.Transaction{ID: uuid.New(), AccountID: id, Kind: domain.TxKindPayout, Amount: decimal.NewFromInt(5), Currency: "USDT", Status: domain.TxStatusCompleted, Reference: "PAYOUT-1"})
	require.NoError(t, err)

	drift, err = q.GetLedgerDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, domain.Currency("USDT"), drift[0].Currency)
	assert.True(t, drift[0].Expected.Equal(decimal.NewFromInt(65)))
}

func TestMemoryStore_DeleteAccountCascadesBalances(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := newMemoryAccount(t, s)
	q := s.Queries()

	_, err := q.InsertBalance(ctx, InsertBalanceParams{AccountID: id, Currency: "USDT", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	rows, err := q.DeleteAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	balances, err := q.ListBalances(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, balances)
}
