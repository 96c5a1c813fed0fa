package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/observability"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultLedgerRetries = 3

// Ledger owns every balance mutation. Work on one account is serialized by an
// in-process lock, a row lock on the account, and a version check on each
// balance row; a stale version is retried with backoff.
type Ledger struct {
	store    QueryStore
	oracle   PriceOracle
	registry *domain.Registry
	locks    *keyedMutex
	retries  uint64
}

type LedgerOption func(*Ledger)

// WithLedgerRetries sets how many times a stale-version conflict is retried.
func WithLedgerRetries(n uint64) LedgerOption {
	return func(l *Ledger) {
		l.retries = n
	}
}

func NewLedger(store QueryStore, oracle PriceOracle, registry *domain.Registry, opts ...LedgerOption) *Ledger {
	if registry == nil {
		registry = domain.NewRegistry()
	}
	l := &Ledger{
		store:    store,
		oracle:   oracle,
		registry: registry,
		locks:    newKeyedMutex(),
		retries:  defaultLedgerRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry exposes the accepted currency set.
func (l *Ledger) Registry() *domain.Registry {
	return l.registry
}

// LedgerTx is one account's view inside Ledger.Run. Everything done through it
// commits or rolls back together.
type LedgerTx struct {
	q       repository.Querier
	Account models.Account
}

func (t *LedgerTx) Queries() repository.Querier {
	return t.q
}

// Credit adds amount to the account's balance in currency, creating the row if needed.
func (t *LedgerTx) Credit(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (models.Balance, error) {
	amount = domain.RoundAmount(amount)
	if err := domain.RequirePositive(amount); err != nil {
		return models.Balance{}, err
	}
	return t.apply(ctx, currency, amount)
}

// Debit removes amount, failing with ErrInsufficientFunds before anything is written.
func (t *LedgerTx) Debit(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (models.Balance, error) {
	amount = domain.RoundAmount(amount)
	if err := domain.RequirePositive(amount); err != nil {
		return models.Balance{}, err
	}
	return t.apply(ctx, currency, amount.Neg())
}

// Balance reads the current amount, zero when the currency was never held.
func (t *LedgerTx) Balance(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	return balanceOf(ctx, t.q, t.Account.ID, currency)
}

func (t *LedgerTx) apply(ctx context.Context, currency domain.Currency, delta decimal.Decimal) (models.Balance, error) {
	current, err := t.q.GetBalance(ctx, t.Account.ID, currency)
	if errors.Is(err, pgx.ErrNoRows) {
		if delta.IsNegative() {
			return models.Balance{}, fmt.Errorf("no %s balance to debit %s: %w", currency, delta.Neg(), domain.ErrInsufficientFunds)
		}
		rows, err := t.q.InsertBalance(ctx, repository.InsertBalanceParams{
			AccountID: t.Account.ID,
			Currency:  currency,
			Amount:    delta,
		})
		if err != nil {
			return models.Balance{}, fmt.Errorf("insert %s balance: %w", currency, err)
		}
		if rows == 0 {
			return models.Balance{}, fmt.Errorf("insert %s balance: %w", currency, domain.ErrConcurrentModification)
		}
		return models.Balance{AccountID: t.Account.ID, Currency: currency, Amount: delta, Version: 1}, nil
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get %s balance: %w", currency, err)
	}

	next := current.Amount.Add(delta)
	if next.IsNegative() {
		return models.Balance{}, fmt.Errorf("%s balance %s is below %s: %w", currency, current.Amount, delta.Neg(), domain.ErrInsufficientFunds)
	}

	rows, err := t.q.UpdateBalance(ctx, repository.UpdateBalanceParams{
		AccountID: t.Account.ID,
		Currency:  currency,
		Amount:    next,
		Version:   current.Version,
	})
	if err != nil {
		return models.Balance{}, fmt.Errorf("update %s balance: %w", currency, err)
	}
	if rows == 0 {
		return models.Balance{}, fmt.Errorf("update %s balance: %w", currency, domain.ErrConcurrentModification)
	}

	current.Amount = next
	current.Version++
	return current, nil
}

func balanceOf(ctx context.Context, q repository.Querier, accountID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	b, err := q.GetBalance(ctx, accountID, currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get %s balance: %w", currency, err)
	}
	return b.Amount, nil
}

// Run executes fn for one account inside a single storage transaction while
// holding that account's exclusion. fn may be invoked more than once, so it
// must not have effects outside the transaction.
func (l *Ledger) Run(ctx context.Context, accountID uuid.UUID, fn func(tx *LedgerTx) error) error {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	operation := func() error {
		err := l.store.RunInTx(ctx, func(q repository.Querier) error {
			account, err := q.LockAccount(ctx, accountID)
			if err != nil {
				return notFound(err, "account")
			}
			return fn(&LedgerTx{q: q, Account: account})
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConcurrentModification) {
			observability.IncrementConcurrencyRetry()
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, l.retries), ctx))
}

// Credit increases one balance as a standalone operation.
func (l *Ledger) Credit(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (models.Balance, error) {
	c, err := l.registry.Parse(currency)
	if err != nil {
		return models.Balance{}, err
	}
	var out models.Balance
	err = l.Run(ctx, accountID, func(tx *LedgerTx) error {
		b, err := tx.Credit(ctx, c, amount)
		out = b
		return err
	})
	if err != nil {
		return models.Balance{}, err
	}
	l.refreshAggregate(ctx, accountID)
	return out, nil
}

// Debit decreases one balance as a standalone operation.
func (l *Ledger) Debit(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (models.Balance, error) {
	c, err := l.registry.Parse(currency)
	if err != nil {
		return models.Balance{}, err
	}
	var out models.Balance
	err = l.Run(ctx, accountID, func(tx *LedgerTx) error {
		b, err := tx.Debit(ctx, c, amount)
		out = b
		return err
	})
	if err != nil {
		return models.Balance{}, err
	}
	l.refreshAggregate(ctx, accountID)
	return out, nil
}

// Balances lists every currency the account has ever held.
func (l *Ledger) Balances(ctx context.Context, accountID uuid.UUID) ([]models.Balance, error) {
	q := l.store.Queries()
	if _, err := q.GetAccount(ctx, accountID); err != nil {
		return nil, notFound(err, "account")
	}
	balances, err := q.ListBalances(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return balances, nil
}

// RecomputeAggregate values every balance at current USD prices and stores the
// sum as the account's cached total. Unpriced currencies count as zero.
func (l *Ledger) RecomputeAggregate(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	balances, err := l.Balances(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	symbols := make([]domain.Currency, 0, len(balances))
	for _, b := range balances {
		symbols = append(symbols, b.Currency)
	}
	prices := l.oracle.GetUsdPrices(ctx, symbols)

	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Amount.Mul(prices[b.Currency]))
	}
	total = domain.RoundUSD(total)

	rows, err := l.store.Queries().UpdateAccountTotalUSD(ctx, accountID, total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("store aggregate: %w", err)
	}
	if rows == 0 {
		return decimal.Zero, fmt.Errorf("store aggregate: %w", domain.ErrNotFound)
	}
	return total, nil
}

func (l *Ledger) refreshAggregate(ctx context.Context, accountID uuid.UUID) {
	if _, err := l.RecomputeAggregate(ctx, accountID); err != nil {
		zap.L().Warn("failed to recompute account aggregate", zap.String("account_id", accountID.String()), zap.Error(err))
	}
}
