// Package notify delivers user-facing ledger events to an external sink
// without ever blocking or failing the operation that produced them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindSwap       Kind = "swap"
	KindInvestment Kind = "investment"
	KindPayout     Kind = "payout"
	KindSystem     Kind = "system"
)

type Event struct {
	AccountID uuid.UUID         `json:"account_id"`
	Kind      Kind              `json:"kind"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sink delivers a single event.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// Notifier is what the ledger core depends on. Implementations must not block
// the caller and have nowhere to report failure.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
