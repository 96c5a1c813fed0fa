package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvestmentOpenAndPayout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "USDT", "500")
	plan := env.createPlan(t, "100", "1000", "2", 7)

	inv, err := env.investments.Open(ctx, account, plan.ID, dec("200"))
	require.NoError(t, err)
	requireDecimal(t, "300", env.balance(t, account, "USDT"))
	requireDecimal(t, "400", inv.PayoutAmount)
	assert.Equal(t, domain.InvestmentStatusActive, inv.Status)
	assert.Equal(t, env.clock.Now().Add(7*24*time.Hour), inv.EndAt)

	result, err := env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutRunResult{}, result)
	requireDecimal(t, "300", env.balance(t, account, "USDT"))

	env.clock.Advance(7*24*time.Hour + time.Minute)
	result, err = env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutRunResult{Due: 1, Paid: 1}, result)
	requireDecimal(t, "700", env.balance(t, account, "USDT"))

	settled, err := env.investments.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestmentStatusCompleted, settled.Status)
	require.NotNil(t, settled.SettledAt)

	payouts, err := env.history.List(ctx, models.TransactionFilter{AccountID: &account, Kind: domain.TxKindPayout}, "")
	require.NoError(t, err)
	require.Len(t, payouts.Entries, 1)
	requireDecimal(t, "400", payouts.Entries[0].Amount)
	assert.Equal(t, inv.ID.String(), payouts.Entries[0].Metadata[domain.MetaInvestmentID])

	stats, err := env.store.Queries().GetAccount(ctx, account)
	require.NoError(t, err)
	requireDecimal(t, "200", stats.TotalEarned)
	assert.Equal(t, int64(1), stats.Trades)

	result, err = env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)
	requireDecimal(t, "700", env.balance(t, account, "USDT"))

	assert.Contains(t, env.notifier.kinds(), notify.KindPayout)
	env.requireNoDrift(t)
}

func TestInvestmentOpenValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "USDT", "150")
	plan := env.createPlan(t, "100", "1000", "2", 7)

	_, err := env.investments.Open(ctx, account, plan.ID, dec("50"))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	_, err = env.investments.Open(ctx, account, plan.ID, dec("1001"))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	_, err = env.investments.Open(ctx, account, plan.ID, dec("200"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = env.investments.Open(ctx, account, plan.ID, dec("-5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = env.investments.Open(ctx, account, uuid.New(), dec("100"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.plans.SetActive(ctx, plan.ID, false, nil)
	require.NoError(t, err)
	_, err = env.investments.Open(ctx, account, plan.ID, dec("100"))
	assert.ErrorIs(t, err, domain.ErrPlanInactive)

	requireDecimal(t, "150", env.balance(t, account, "USDT"))
}

func TestInvestmentConvertsWorkingCurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "USDT", "500")
	plan := env.createPlan(t, "100", "1000", "1.5", 30)

	_, err := env.accounts.SetWorkingCurrency(ctx, account, "eur")
	require.NoError(t, err)

	// 1 USD = 0.5 EUR, so 100 EUR is 200 USD.
	inv, err := env.investments.Open(ctx, account, plan.ID, dec("100"))
	require.NoError(t, err)
	requireDecimal(t, "200", inv.Amount)
	requireDecimal(t, "300", inv.PayoutAmount)
	requireDecimal(t, "300", env.balance(t, account, "USDT"))

	_, err = env.investments.Open(ctx, account, plan.ID, dec("40"))
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	_, err = env.accounts.SetWorkingCurrency(ctx, account, "GBP")
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
}

func TestPlanEditsDoNotTouchOpenInvestments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "USDT", "500")
	plan := env.createPlan(t, "100", "1000", "2", 7)

	inv, err := env.investments.Open(ctx, account, plan.ID, dec("200"))
	require.NoError(t, err)

	_, err = env.plans.Update(ctx, plan.ID, PlanInput{
		Name:         "Boosted",
		MinAmount:    dec("10"),
		MaxAmount:    dec("10000"),
		Multiplier:   dec("5"),
		DurationDays: 1,
		IsActive:     true,
	}, nil)
	require.NoError(t, err)

	stored, err := env.investments.Get(ctx, inv.ID)
	require.NoError(t, err)
	requireDecimal(t, "400", stored.PayoutAmount)
	assert.Equal(t, inv.EndAt, stored.EndAt)

	env.clock.Advance(2 * 24 * time.Hour)
	result, err := env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Paid)

	env.clock.Advance(5 * 24 * time.Hour)
	_, err = env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	requireDecimal(t, "700", env.balance(t, account, "USDT"))
}

func TestConcurrentPayoutRunsPayOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plan := env.createPlan(t, "10", "1000", "3", 1)

	accounts := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		account := env.openAccount(t)
		env.fund(t, account, "USDT", "100")
		_, err := env.investments.Open(ctx, account, plan.ID, dec("50"))
		require.NoError(t, err)
		accounts = append(accounts, account)
	}
	env.clock.Advance(48 * time.Hour)

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	runners := []*PayoutService{
		env.payouts,
		NewPayoutService(env.store, env.ledger, nil, env.clock, WithPayoutPool(pool)),
		NewPayoutService(env.store, NewLedger(env.store, env.oracle, nil), nil, env.clock, WithPayoutPool(pool), WithPayoutBatchSize(2)),
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total PayoutRunResult
	)
	for _, runner := range runners {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(r *PayoutService) {
				defer wg.Done()
				res, err := r.ProcessDue(ctx)
				assert.NoError(t, err)
				mu.Lock()
				total.Paid += res.Paid
				total.Failed += res.Failed
				mu.Unlock()
			}(runner)
		}
	}
	wg.Wait()

	assert.Equal(t, 5, total.Paid)
	assert.Equal(t, 0, total.Failed)
	for _, account := range accounts {
		requireDecimal(t, "200", env.balance(t, account, "USDT"))
	}
	env.requireNoDrift(t)
}

func TestCancelInvestmentRefundsPrincipal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	env.fund(t, account, "USDT", "500")
	plan := env.createPlan(t, "100", "1000", "2", 7)
	admin := uuid.New()

	inv, err := env.investments.Open(ctx, account, plan.ID, dec("200"))
	require.NoError(t, err)

	cancelled, err := env.investments.Cancel(ctx, inv.ID, &admin)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestmentStatusCancelled, cancelled.Status)
	requireDecimal(t, "500", env.balance(t, account, "USDT"))

	_, err = env.investments.Cancel(ctx, inv.ID, &admin)
	assert.ErrorIs(t, err, domain.ErrNotActive)

	env.clock.Advance(30 * 24 * time.Hour)
	result, err := env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Paid)
	requireDecimal(t, "500", env.balance(t, account, "USDT"))

	list, err := env.investments.ListForAccount(ctx, account, domain.InvestmentStatusCancelled, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.investments.ListAll(ctx, models.InvestmentFilter{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	env.requireNoDrift(t)
}

// statsFailingStore fails the account-stats update for one account while failing is set.
type statsFailingStore struct {
	QueryStore
	account uuid.UUID
	failing atomic.Bool
}

type statsFailingQuerier struct {
	repository.Querier
	store *statsFailingStore
}

func (s *statsFailingStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.QueryStore.RunInTx(ctx, func(q repository.Querier) error {
		return fn(statsFailingQuerier{Querier: q, store: s})
	})
}

func (q statsFailingQuerier) UpdateAccountStats(ctx context.Context, arg repository.UpdateAccountStatsParams) (int64, error) {
	if arg.ID == q.store.account && q.store.failing.Load() {
		return 0, errors.New("stats table unavailable")
	}
	return q.Querier.UpdateAccountStats(ctx, arg)
}

func TestPayoutFailureDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plan := env.createPlan(t, "10", "1000", "2", 1)

	healthy := env.openAccount(t)
	broken := env.openAccount(t)
	for _, account := range []uuid.UUID{healthy, broken} {
		env.fund(t, account, "USDT", "100")
	}
	healthyInv, err := env.investments.Open(ctx, healthy, plan.ID, dec("50"))
	require.NoError(t, err)
	brokenInv, err := env.investments.Open(ctx, broken, plan.ID, dec("50"))
	require.NoError(t, err)
	env.clock.Advance(48 * time.Hour)

	store := &statsFailingStore{QueryStore: env.store, account: broken}
	store.failing.Store(true)
	payouts := NewPayoutService(store, NewLedger(store, env.oracle, nil), nil, env.clock)

	result, err := payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutRunResult{Due: 2, Paid: 1, Failed: 1}, result)

	got, err := env.investments.Get(ctx, healthyInv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestmentStatusCompleted, got.Status)
	requireDecimal(t, "150", env.balance(t, healthy, "USDT"))

	got, err = env.investments.Get(ctx, brokenInv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestmentStatusActive, got.Status)
	assert.Nil(t, got.SettledAt)
	requireDecimal(t, "50", env.balance(t, broken, "USDT"))
	history, err := env.history.List(ctx, models.TransactionFilter{AccountID: &broken, Kind: domain.TxKindPayout}, "")
	require.NoError(t, err)
	assert.Empty(t, history.Entries)
	env.requireNoDrift(t)

	store.failing.Store(false)
	result, err = payouts.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, PayoutRunResult{Due: 1, Paid: 1}, result)
	requireDecimal(t, "150", env.balance(t, broken, "USDT"))
	env.requireNoDrift(t)
}
