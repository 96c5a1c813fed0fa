package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCreditAndDebit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)

	b, err := env.ledger.Credit(ctx, account, "btc", dec("1.5"))
	require.NoError(t, err)
	requireDecimal(t, "1.5", b.Amount)

	b, err = env.ledger.Debit(ctx, account, "BTC", dec("0.25"))
	require.NoError(t, err)
	requireDecimal(t, "1.25", b.Amount)

	_, err = env.ledger.Debit(ctx, account, "BTC", dec("2"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	requireDecimal(t, "1.25", env.balance(t, account, "BTC"))

	_, err = env.ledger.Debit(ctx, account, "ETH", dec("0.1"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)

	tests := []struct {
		name     string
		currency string
		amount   decimal.Decimal
		want     error
	}{
		{"zero", "BTC", decimal.Zero, domain.ErrInvalidAmount},
		{"negative", "BTC", dec("-1"), domain.ErrInvalidAmount},
		{"below precision", "BTC", dec("0.000000001"), domain.ErrInvalidAmount},
		{"unknown currency", "XYZ", dec("1"), domain.ErrUnsupportedCurrency},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.ledger.Credit(ctx, account, tc.currency, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := env.ledger.Credit(ctx, uuid.New(), "BTC", dec("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerRunningBalanceMatchesHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)

	ops := []struct {
		credit bool
		amount string
	}{
		{true, "10"}, {false, "3"}, {false, "8"}, {true, "0.00000001"}, {false, "7.00000001"}, {false, "0.1"}, {true, "2.5"},
	}
	expected := decimal.Zero
	for _, op := range ops {
		amount := dec(op.amount)
		if op.credit {
			_, err := env.ledger.Credit(ctx, account, "ETH", amount)
			require.NoError(t, err)
			expected = expected.Add(amount)
			continue
		}
		_, err := env.ledger.Debit(ctx, account, "ETH", amount)
		if expected.LessThan(amount) {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			continue
		}
		require.NoError(t, err)
		expected = expected.Sub(amount)
	}
	requireDecimal(t, expected.String(), env.balance(t, account, "ETH"))
	assert.False(t, expected.IsNegative())
}

func TestLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	_, err := env.ledger.Credit(ctx, account, "USDT", dec("50"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Debit(ctx, account, "USDT", dec("1"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	requireDecimal(t, "0", env.balance(t, account, "USDT"))
}

func TestLedgerRunRollsBackOnError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	_, err := env.ledger.Credit(ctx, account, "BTC", dec("1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = env.ledger.Run(ctx, account, func(tx *LedgerTx) error {
		if _, err := tx.Debit(ctx, "BTC", dec("1")); err != nil {
			return err
		}
		if _, err := tx.Credit(ctx, "ETH", dec("20")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	requireDecimal(t, "1", env.balance(t, account, "BTC"))
	requireDecimal(t, "0", env.balance(t, account, "ETH"))
}

// staleStore bumps a balance version behind the ledger's back on the first
// attempts so the optimistic check fails.
type staleStore struct {
	*repository.MemoryStore
	conflicts int
}

func (s *staleStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.MemoryStore.RunInTx(ctx, func(q repository.Querier) error {
		if s.conflicts > 0 {
			s.conflicts--
			return fn(&bumpingQuerier{Querier: q})
		}
		return fn(q)
	})
}

type bumpingQuerier struct {
	repository.Querier
}

func (q *bumpingQuerier) GetBalance(ctx context.Context, accountID uuid.UUID, currency domain.Currency) (models.Balance, error) {
	b, err := q.Querier.GetBalance(ctx, accountID, currency)
	if err == nil {
		b.Version--
	}
	return b, err
}

func TestLedgerRetriesStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)
	_, err := env.ledger.Credit(ctx, account, "BTC", dec("1"))
	require.NoError(t, err)

	store := &staleStore{MemoryStore: env.store, conflicts: 2}
	ledger := NewLedger(store, env.oracle, domain.NewRegistry())
	_, err = ledger.Credit(ctx, account, "BTC", dec("1"))
	require.NoError(t, err)
	requireDecimal(t, "2", env.balance(t, account, "BTC"))

	store.conflicts = 10
	_, err = ledger.Credit(ctx, account, "BTC", dec("1"))
	require.ErrorIs(t, err, domain.ErrConcurrentModification)
	requireDecimal(t, "2", env.balance(t, account, "BTC"))
}

func TestRecomputeAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.openAccount(t)

	_, err := env.ledger.Credit(ctx, account, "BTC", dec("0.5"))
	require.NoError(t, err)
	_, err = env.ledger.Credit(ctx, account, "USDT", dec("100"))
	require.NoError(t, err)
	_, err = env.ledger.Credit(ctx, account, "DOGE", dec("1000"))
	require.NoError(t, err)

	total, err := env.ledger.RecomputeAggregate(ctx, account)
	require.NoError(t, err)
	requireDecimal(t, "30100", total)

	stored, err := env.store.Queries().GetAccount(ctx, account)
	require.NoError(t, err)
	requireDecimal(t, "30100", stored.TotalUSD)

	env.prices.SetFailing(true)
	env.clock.Advance(time.Hour)
	total, err = env.ledger.RecomputeAggregate(ctx, account)
	require.NoError(t, err)
	requireDecimal(t, "30100", total)
}
