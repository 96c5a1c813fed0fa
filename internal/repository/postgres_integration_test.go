package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/db"
	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/ayo6706/custodial-ledger/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postgresStore(t *testing.T) *repository.Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	release := dblock.Acquire()
	t.Cleanup(release)

	require.NoError(t, db.RunMigrations(url))
	pool, err := db.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return repository.NewStore(pool)
}

func TestPostgresBalanceVersioning(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()
	q := store.Queries()

	account, err := q.CreateAccount(ctx, repository.CreateAccountParams{ID: uuid.New(), WorkingCurrency: "USD"})
	require.NoError(t, err)

	rows, err := q.InsertBalance(ctx, repository.InsertBalanceParams{AccountID: account.ID, Currency: "USDT", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	rows, err = q.InsertBalance(ctx, repository.InsertBalanceParams{AccountID: account.ID, Currency: "USDT", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	b, err := q.GetBalance(ctx, account.ID, "USDT")
	require.NoError(t, err)

	rows, err = q.UpdateBalance(ctx, repository.UpdateBalanceParams{AccountID: account.ID, Currency: "USDT", Amount: decimal.NewFromInt(7), Version: b.Version})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.UpdateBalance(ctx, repository.UpdateBalanceParams{AccountID: account.ID, Currency: "USDT", Amount: decimal.NewFromInt(5), Version: b.Version})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestPostgresInvestmentClaimIsExclusive(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()
	q := store.Queries()

	account, err := q.CreateAccount(ctx, repository.CreateAccountParams{ID: uuid.New(), WorkingCurrency: "USD"})
	require.NoError(t, err)
	plan, err := q.CreatePlan(ctx, models.InvestmentPlan{
		ID: uuid.New(), Name: "Integration", MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(10),
		Multiplier: decimal.NewFromInt(2), DurationDays: 1, IsActive: true,
	})
	require.NoError(t, err)

	start := time.Now().Add(-48 * time.Hour).UTC()
	inv, err := q.CreateInvestment(ctx, models.Investment{
		ID: uuid.New(), AccountID: account.ID, PlanID: plan.ID, PlanName: plan.Name, Currency: domain.USDT,
		Amount: decimal.NewFromInt(5), Multiplier: plan.Multiplier, DurationDays: 1, PayoutAmount: decimal.NewFromInt(10),
		StartAt: start, EndAt: start.Add(24 * time.Hour), Status: domain.InvestmentStatusActive,
	})
	require.NoError(t, err)

	due, err := q.ListDueInvestments(ctx, time.Now(), 1000)
	require.NoError(t, err)
	found := false
	for _, d := range due {
		found = found || d.ID == inv.ID
	}
	assert.True(t, found)

	claim := repository.TransitionInvestmentParams{ID: inv.ID, From: domain.InvestmentStatusActive, To: domain.InvestmentStatusCompleted, At: time.Now()}
	rows, err := q.TransitionInvestment(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = q.TransitionInvestment(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestPostgresTransactionTimestamps(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()
	q := store.Queries()

	account, err := q.CreateAccount(ctx, repository.CreateAccountParams{ID: uuid.New(), WorkingCurrency: "USD"})
	require.NoError(t, err)

	before := time.Now().Add(-time.Minute)
	first, err := q.CreateTransaction(ctx, models.Transaction{
		ID: uuid.New(), AccountID: account.ID, Kind: domain.TxKindDeposit, Amount: decimal.NewFromInt(5),
		Currency: domain.USDT, Status: domain.TxStatusPending, Reference: "DP-" + uuid.NewString(),
	})
	require.NoError(t, err)
	second, err := q.CreateTransaction(ctx, models.Transaction{
		ID: uuid.New(), AccountID: account.ID, Kind: domain.TxKindDeposit, Amount: decimal.NewFromInt(6),
		Currency: domain.USDT, Status: domain.TxStatusPending, Reference: "DP-" + uuid.NewString(),
	})
	require.NoError(t, err)

	assert.True(t, first.CreatedAt.After(before), "created_at %s", first.CreatedAt)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))

	from := before
	listed, err := q.ListTransactions(ctx, models.TransactionFilter{AccountID: &account.ID, From: &from, Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
}
