package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvestmentService opens and cancels investment contracts. Maturity is
// handled by PayoutService.
type InvestmentService struct {
	store      QueryStore
	ledger     *Ledger
	oracle     PriceOracle
	audit      *AuditService
	notifier   notify.Notifier
	clock      Clock
	settlement domain.Currency
}

func NewInvestmentService(store QueryStore, ledger *Ledger, oracle PriceOracle, notifier notify.Notifier, clock Clock, settlement domain.Currency) *InvestmentService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &InvestmentService{
		store:      store,
		ledger:     ledger,
		oracle:     oracle,
		audit:      NewAuditService(),
		notifier:   notifier,
		clock:      clock,
		settlement: settlement,
	}
}

// Open debits the USD value of amount from the settlement currency and records
// an active investment holding a snapshot of the plan terms. amount is in the
// account's working currency.
func (s *InvestmentService) Open(ctx context.Context, accountID, planID uuid.UUID, amount decimal.Decimal) (models.Investment, error) {
	amount = domain.RoundAmount(amount)
	if err := domain.RequirePositive(amount); err != nil {
		return models.Investment{}, err
	}

	q := s.store.Queries()
	plan, err := q.GetPlan(ctx, planID)
	if err != nil {
		return models.Investment{}, notFound(err, "plan")
	}
	if !plan.IsActive {
		return models.Investment{}, fmt.Errorf("plan %s: %w", plan.Name, domain.ErrPlanInactive)
	}
	account, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return models.Investment{}, notFound(err, "account")
	}

	amountUSD, err := s.toUSD(ctx, amount, account.WorkingCurrency)
	if err != nil {
		return models.Investment{}, err
	}
	if amountUSD.LessThan(plan.MinAmount) || amountUSD.GreaterThan(plan.MaxAmount) {
		return models.Investment{}, fmt.Errorf("%s USD outside [%s, %s]: %w", amountUSD, plan.MinAmount, plan.MaxAmount, domain.ErrAmountOutOfRange)
	}

	start := s.clock.Now()
	inv := models.Investment{
		ID:           uuid.New(),
		AccountID:    accountID,
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		Currency:     s.settlement,
		Amount:       amountUSD,
		Multiplier:   plan.Multiplier,
		DurationDays: plan.DurationDays,
		PayoutAmount: domain.RoundAmount(amountUSD.Mul(plan.Multiplier)),
		StartAt:      start,
		EndAt:        start.Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		Status:       domain.InvestmentStatusActive,
	}

	meta := models.Metadata{
		domain.MetaPlanID:       plan.ID.String(),
		domain.MetaPlanName:     plan.Name,
		domain.MetaInvestmentID: inv.ID.String(),
	}
	if !amount.Equal(amountUSD) {
		meta[domain.MetaInputAmount] = amount.String()
		meta[domain.MetaInputFiat] = account.WorkingCurrency
	}

	var opened models.Investment
	err = s.ledger.Run(ctx, accountID, func(tx *LedgerTx) error {
		if _, err := tx.Debit(ctx, s.settlement, amountUSD); err != nil {
			return err
		}
		created, err := tx.Queries().CreateInvestment(ctx, inv)
		if err != nil {
			return fmt.Errorf("create investment: %w", err)
		}
		rows, err := tx.Queries().UpdateAccountStats(ctx, repository.UpdateAccountStatsParams{
			ID:          accountID,
			EarnedDelta: decimal.Zero,
			TradesDelta: 1,
		})
		if err != nil {
			return fmt.Errorf("update account stats: %w", err)
		}
		if err := requireExactlyOne(rows, "update account stats"); err != nil {
			return err
		}
		if _, err := recordCompleted(ctx, tx.Queries(), s.audit, models.Transaction{
			ID:        uuid.New(),
			AccountID: accountID,
			Kind:      domain.TxKindInvestment,
			Amount:    amountUSD.Neg(),
			Currency:  s.settlement,
			Reference: newReference(domain.RefPrefixInvestment),
			Metadata:  meta,
		}, &accountID); err != nil {
			return err
		}
		opened = created
		return s.audit.Write(ctx, tx.Queries(), auditEntityInvestment, created.ID, &accountID, "opened", "", created.Status, map[string]string{
			"payout_amount": created.PayoutAmount.String(),
			"end_at":        created.EndAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return models.Investment{}, err
	}

	s.ledger.refreshAggregate(ctx, accountID)
	s.notifier.Notify(ctx, notify.Event{
		AccountID: accountID,
		Kind:      notify.KindInvestment,
		Message:   fmt.Sprintf("Investment of %s %s in %s opened; %s %s due %s.", opened.Amount, opened.Currency, opened.PlanName, opened.PayoutAmount, opened.Currency, opened.EndAt.Format(time.RFC1123)),
		Metadata:  map[string]string{"investment_id": opened.ID.String()},
	})
	return opened, nil
}

// Cancel ends an active investment early and refunds its principal.
func (s *InvestmentService) Cancel(ctx context.Context, investmentID uuid.UUID, actorID *uuid.UUID) (models.Investment, error) {
	inv, err := s.store.Queries().GetInvestment(ctx, investmentID)
	if err != nil {
		return models.Investment{}, notFound(err, "investment")
	}

	at := s.clock.Now()
	err = s.ledger.Run(ctx, inv.AccountID, func(tx *LedgerTx) error {
		rows, err := tx.Queries().TransitionInvestment(ctx, repository.TransitionInvestmentParams{
			ID:   inv.ID,
			From: domain.InvestmentStatusActive,
			To:   domain.InvestmentStatusCancelled,
			At:   at,
		})
		if err != nil {
			return fmt.Errorf("cancel investment: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("investment %s: %w", inv.ID, domain.ErrNotActive)
		}
		if _, err := tx.Credit(ctx, inv.Currency, inv.Amount); err != nil {
			return err
		}
		if _, err := recordCompleted(ctx, tx.Queries(), s.audit, models.Transaction{
			ID:        uuid.New(),
			AccountID: inv.AccountID,
			Kind:      domain.TxKindPayout,
			Amount:    inv.Amount,
			Currency:  inv.Currency,
			Reference: newReference(domain.RefPrefixPayout),
			Metadata: models.Metadata{
				domain.MetaInvestmentID: inv.ID.String(),
				domain.MetaPlanID:       inv.PlanID.String(),
				domain.MetaReason:       "cancelled",
			},
		}, actorID); err != nil {
			return err
		}
		return s.audit.Write(ctx, tx.Queries(), auditEntityInvestment, inv.ID, actorID, "cancelled", domain.InvestmentStatusActive, domain.InvestmentStatusCancelled, nil)
	})
	if err != nil {
		return models.Investment{}, err
	}

	inv.Status = domain.InvestmentStatusCancelled
	inv.SettledAt = &at
	s.ledger.refreshAggregate(ctx, inv.AccountID)
	s.notifier.Notify(ctx, notify.Event{
		AccountID: inv.AccountID,
		Kind:      notify.KindInvestment,
		Message:   fmt.Sprintf("Investment in %s was cancelled; %s %s returned.", inv.PlanName, inv.Amount, inv.Currency),
		Metadata:  map[string]string{"investment_id": inv.ID.String()},
	})
	return inv, nil
}

func (s *InvestmentService) Get(ctx context.Context, investmentID uuid.UUID) (models.Investment, error) {
	inv, err := s.store.Queries().GetInvestment(ctx, investmentID)
	if err != nil {
		return models.Investment{}, notFound(err, "investment")
	}
	return inv, nil
}

func (s *InvestmentService) ListForAccount(ctx context.Context, accountID uuid.UUID, status string, limit, offset int32) ([]models.Investment, error) {
	return s.ListAll(ctx, models.InvestmentFilter{AccountID: &accountID, Status: status, Limit: limit, Offset: offset})
}

// ListAll is the admin view across accounts.
func (s *InvestmentService) ListAll(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error) {
	switch filter.Status {
	case "", domain.InvestmentStatusActive, domain.InvestmentStatusCompleted, domain.InvestmentStatusCancelled:
	default:
		return nil, fmt.Errorf("unknown investment status %q: %w", filter.Status, domain.ErrInvalidArgument)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	out, err := s.store.Queries().ListInvestments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return out, nil
}

// toUSD converts an amount in the working currency to USD.
func (s *InvestmentService) toUSD(ctx context.Context, amount decimal.Decimal, working string) (decimal.Decimal, error) {
	code := domain.NormalizeCurrency(working)
	if code == "" || code.IsUSDPegged() {
		return amount, nil
	}
	rate := s.oracle.GetFiatRate(ctx, string(code))
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", code, domain.ErrPriceUnavailable)
	}
	return domain.RoundAmount(amount.DivRound(rate, rateScale)), nil
}
