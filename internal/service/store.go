package service

import (
	"context"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/shopspring/decimal"
)

// QueryStore defines the minimal data access contract required by services.
// Both the Postgres store and the in-memory store satisfy it.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// PriceOracle is the read side of the oracle the services depend on.
type PriceOracle interface {
	GetUsdPrices(ctx context.Context, symbols []domain.Currency) map[domain.Currency]decimal.Decimal
	GetFiatRate(ctx context.Context, code string) decimal.Decimal
}

// Clock is re-exported so callers can wire domain.SystemClock or a manual clock.
type Clock = domain.Clock
