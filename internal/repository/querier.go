package repository

import (
	"context"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the data access surface used by services. Lookups of missing rows
// return pgx.ErrNoRows; conditional writes report the affected row count.
type Querier interface {
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	LockAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	UpdateAccountWorkingCurrency(ctx context.Context, id uuid.UUID, currency string) (int64, error)
	UpdateAccountTotalUSD(ctx context.Context, id uuid.UUID, total decimal.Decimal) (int64, error)
	UpdateAccountStats(ctx context.Context, arg UpdateAccountStatsParams) (int64, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) (int64, error)
	CountAccountObligations(ctx context.Context, id uuid.UUID) (models.AccountObligations, error)

	UpsertWalletAddress(ctx context.Context, arg models.WalletAddress) error
	ListWalletAddresses(ctx context.Context, accountID uuid.UUID) ([]models.WalletAddress, error)

	ListBalances(ctx context.Context, accountID uuid.UUID) ([]models.Balance, error)
	GetBalance(ctx context.Context, accountID uuid.UUID, currency domain.Currency) (models.Balance, error)
	InsertBalance(ctx context.Context, arg InsertBalanceParams) (int64, error)
	UpdateBalance(ctx context.Context, arg UpdateBalanceParams) (int64, error)

	CreateTransaction(ctx context.Context, arg models.Transaction) (models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	CountTransactions(ctx context.Context, filter models.TransactionFilter) (int64, error)

	CreatePlan(ctx context.Context, arg models.InvestmentPlan) (models.InvestmentPlan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (models.InvestmentPlan, error)
	UpdatePlan(ctx context.Context, arg models.InvestmentPlan) (int64, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.InvestmentPlan, error)
	CountPlanInvestments(ctx context.Context, planID uuid.UUID) (int64, error)
	DeletePlan(ctx context.Context, id uuid.UUID) (int64, error)

	CreateInvestment(ctx context.Context, arg models.Investment) (models.Investment, error)
	GetInvestment(ctx context.Context, id uuid.UUID) (models.Investment, error)
	ListDueInvestments(ctx context.Context, now time.Time, limit int32) ([]models.Investment, error)
	TransitionInvestment(ctx context.Context, arg TransitionInvestmentParams) (int64, error)
	ListInvestments(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error)

	GetLedgerDrift(ctx context.Context) ([]models.LedgerDrift, error)

	GetIdempotencyKey(ctx context.Context, key string) (models.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (models.IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (models.IdempotencyKey, error)
}

type CreateAccountParams struct {
	ID              uuid.UUID
	WorkingCurrency string
}

type UpdateAccountStatsParams struct {
	ID          uuid.UUID
	EarnedDelta decimal.Decimal
	TradesDelta int64
}

type InsertBalanceParams struct {
	AccountID uuid.UUID
	Currency  domain.Currency
	Amount    decimal.Decimal
}

// UpdateBalanceParams carries the version read alongside the balance; the update
// only applies while that version is still current.
type UpdateBalanceParams struct {
	AccountID uuid.UUID
	Currency  domain.Currency
	Amount    decimal.Decimal
	Version   int64
}

type UpdateTransactionStatusParams struct {
	ID   uuid.UUID
	From string
	To   string
}

type TransitionInvestmentParams struct {
	ID   uuid.UUID
	From string
	To   string
	At   time.Time
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}
