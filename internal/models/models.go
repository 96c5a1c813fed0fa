package models

import (
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata is the free-form bag attached to a transaction.
type Metadata map[string]string

type Account struct {
	ID              uuid.UUID       `json:"id"`
	WorkingCurrency string          `json:"working_currency"`
	TotalUSD        decimal.Decimal `json:"total_usd"`
	TotalEarned     decimal.Decimal `json:"total_earned"`
	Trades          int64           `json:"trades"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Balance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  domain.Currency `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Version   int64           `json:"-"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type WalletAddress struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  domain.Currency `json:"currency"`
	Address   string          `json:"address"`
}

type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"` // negative = debit
	Currency  domain.Currency `json:"currency"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Metadata  Metadata        `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type InvestmentPlan struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	MinAmount    decimal.Decimal `json:"min_amount"` // USD
	MaxAmount    decimal.Decimal `json:"max_amount"` // USD
	Multiplier   decimal.Decimal `json:"multiplier"`
	DurationDays int32           `json:"duration_days"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Investment keeps a snapshot of the plan terms it was opened under.
type Investment struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	PlanID       uuid.UUID       `json:"plan_id"`
	PlanName     string          `json:"plan_name"`
	Currency     domain.Currency `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	DurationDays int32           `json:"duration_days"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	StartAt      time.Time       `json:"start_at"`
	EndAt        time.Time       `json:"end_at"`
	Status       string          `json:"status"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AuditEntry struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  *string    `json:"prev_state,omitempty"`
	NextState  *string    `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
}

// AccountObligations counts the records that block account deletion.
type AccountObligations struct {
	PendingTransactions int64 `json:"pending_transactions"`
	ActiveInvestments   int64 `json:"active_investments"`
}

// LedgerDrift is a balance that disagrees with its completed transaction history.
type LedgerDrift struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  domain.Currency `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Expected  decimal.Decimal `json:"expected"`
}

type TransactionFilter struct {
	AccountID *uuid.UUID
	Kind      string
	Status    string
	Currency  domain.Currency
	From      *time.Time
	To        *time.Time
	Limit     int32
	Offset    int32
}

type InvestmentFilter struct {
	AccountID *uuid.UUID
	Status    string
	Limit     int32
	Offset    int32
}
