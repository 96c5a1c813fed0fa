package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/observability"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPayoutBatchSize int32 = 500

var errAlreadyClaimed = errors.New("investment already claimed")

// Submitter runs a task asynchronously. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// PayoutRunResult summarizes one ProcessDue pass.
type PayoutRunResult struct {
	Due     int `json:"due"`
	Paid    int `json:"paid"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PayoutService matures due investments. Each investment is claimed by a
// conditional active -> completed update in the same storage transaction as
// the credit, so a claim that matches no row means someone else paid it.
type PayoutService struct {
	store     QueryStore
	ledger    *Ledger
	audit     *AuditService
	notifier  notify.Notifier
	clock     Clock
	pool      Submitter
	batchSize int32
}

type PayoutOption func(*PayoutService)

// WithPayoutPool settles investments concurrently on pool.
func WithPayoutPool(pool Submitter) PayoutOption {
	return func(s *PayoutService) {
		s.pool = pool
	}
}

func WithPayoutBatchSize(n int32) PayoutOption {
	return func(s *PayoutService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewPayoutService(store QueryStore, ledger *Ledger, notifier notify.Notifier, clock Clock, opts ...PayoutOption) *PayoutService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	s := &PayoutService{
		store:     store,
		ledger:    ledger,
		audit:     NewAuditService(),
		notifier:  notifier,
		clock:     clock,
		batchSize: defaultPayoutBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessDue pays every active investment whose end time has passed. A failure
// on one investment is logged and counted; it stays due for the next pass.
func (s *PayoutService) ProcessDue(ctx context.Context) (PayoutRunResult, error) {
	now := s.clock.Now()
	due, err := s.store.Queries().ListDueInvestments(ctx, now, s.batchSize)
	if err != nil {
		return PayoutRunResult{}, fmt.Errorf("list due investments: %w", err)
	}

	result := PayoutRunResult{Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	record := func(inv models.Investment, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			result.Paid++
		case errors.Is(err, errAlreadyClaimed):
			result.Skipped++
		default:
			result.Failed++
			zap.L().Error("investment payout failed",
				zap.Error(err),
				zap.String("investment_id", inv.ID.String()),
				zap.String("account_id", inv.AccountID.String()),
			)
		}
	}

	var wg sync.WaitGroup
	for _, inv := range due {
		if err := ctx.Err(); err != nil {
			break
		}
		inv := inv
		if s.pool == nil {
			record(inv, s.settle(ctx, inv, now))
			continue
		}
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			record(inv, s.settle(ctx, inv, now))
		}); err != nil {
			wg.Done()
			record(inv, fmt.Errorf("submit payout task: %w", err))
		}
	}
	wg.Wait()

	observability.AddPayoutResults(result.Paid, result.Skipped, result.Failed)
	if result.Paid > 0 || result.Failed > 0 {
		zap.L().Info("payout run finished",
			zap.Int("due", result.Due),
			zap.Int("paid", result.Paid),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, ctx.Err()
}

func (s *PayoutService) settle(ctx context.Context, inv models.Investment, now time.Time) error {
	var payout models.Transaction
	err := s.ledger.Run(ctx, inv.AccountID, func(tx *LedgerTx) error {
		rows, err := tx.Queries().TransitionInvestment(ctx, repository.TransitionInvestmentParams{
			ID:   inv.ID,
			From: domain.InvestmentStatusActive,
			To:   domain.InvestmentStatusCompleted,
			At:   now,
		})
		if err != nil {
			return fmt.Errorf("claim investment: %w", err)
		}
		if rows == 0 {
			return errAlreadyClaimed
		}

		if _, err := tx.Credit(ctx, inv.Currency, inv.PayoutAmount); err != nil {
			return err
		}

		rows, err = tx.Queries().UpdateAccountStats(ctx, repository.UpdateAccountStatsParams{
			ID:          inv.AccountID,
			EarnedDelta: inv.PayoutAmount.Sub(inv.Amount),
		})
		if err != nil {
			return fmt.Errorf("update account stats: %w", err)
		}
		if err := requireExactlyOne(rows, "update account stats"); err != nil {
			return err
		}

		created, err := recordCompleted(ctx, tx.Queries(), s.audit, models.Transaction{
			ID:        uuid.New(),
			AccountID: inv.AccountID,
			Kind:      domain.TxKindPayout,
			Amount:    inv.PayoutAmount,
			Currency:  inv.Currency,
			Reference: newReference(domain.RefPrefixPayout),
			Metadata: models.Metadata{
				domain.MetaInvestmentID: inv.ID.String(),
				domain.MetaPlanID:       inv.PlanID.String(),
				domain.MetaPlanName:     inv.PlanName,
			},
		}, nil)
		if err != nil {
			return err
		}
		payout = created
		return s.audit.Write(ctx, tx.Queries(), auditEntityInvestment, inv.ID, nil, "matured", domain.InvestmentStatusActive, domain.InvestmentStatusCompleted, map[string]string{
			"payout_transaction_id": created.ID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.ledger.refreshAggregate(ctx, inv.AccountID)
	s.notifier.Notify(ctx, notify.Event{
		AccountID: inv.AccountID,
		Kind:      notify.KindPayout,
		Message:   fmt.Sprintf("Your %s investment matured: %s %s credited.", inv.PlanName, inv.PayoutAmount, inv.Currency),
		Metadata:  map[string]string{"investment_id": inv.ID.String(), "transaction_id": payout.ID.String()},
	})
	return nil
}
