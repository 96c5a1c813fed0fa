package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const rateScale = 16

// SwapQuote prices a conversion at current oracle prices.
type SwapQuote struct {
	From       domain.Currency `json:"from"`
	To         domain.Currency `json:"to"`
	FromAmount decimal.Decimal `json:"from_amount"`
	ToAmount   decimal.Decimal `json:"to_amount"`
	FromPrice  decimal.Decimal `json:"from_usd_price"`
	ToPrice    decimal.Decimal `json:"to_usd_price"`
	Rate       decimal.Decimal `json:"rate"`
}

type SwapResult struct {
	Transaction models.Transaction `json:"transaction"`
	Quote       SwapQuote          `json:"quote"`
}

// SwapService converts between two currencies of one account atomically.
type SwapService struct {
	ledger   *Ledger
	oracle   PriceOracle
	audit    *AuditService
	notifier notify.Notifier
}

func NewSwapService(ledger *Ledger, oracle PriceOracle, notifier notify.Notifier) *SwapService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &SwapService{
		ledger:   ledger,
		oracle:   oracle,
		audit:    NewAuditService(),
		notifier: notifier,
	}
}

// Preview computes what a swap would yield without touching any balance.
func (s *SwapService) Preview(ctx context.Context, from, to string, amount decimal.Decimal) (SwapQuote, error) {
	registry := s.ledger.Registry()
	fromCur, err := registry.Parse(from)
	if err != nil {
		return SwapQuote{}, err
	}
	toCur, err := registry.Parse(to)
	if err != nil {
		return SwapQuote{}, err
	}
	if fromCur == toCur {
		return SwapQuote{}, fmt.Errorf("%s to %s: %w", fromCur, toCur, domain.ErrSameCurrency)
	}
	amount = domain.RoundAmount(amount)
	if err := domain.RequirePositive(amount); err != nil {
		return SwapQuote{}, err
	}

	prices := s.oracle.GetUsdPrices(ctx, []domain.Currency{fromCur, toCur})
	fromPrice, toPrice := prices[fromCur], prices[toCur]
	if !fromPrice.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%s: %w", fromCur, domain.ErrPriceUnavailable)
	}
	if !toPrice.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%s: %w", toCur, domain.ErrPriceUnavailable)
	}

	toAmount := domain.RoundAmount(amount.Mul(fromPrice).Div(toPrice))
	if !toAmount.IsPositive() {
		return SwapQuote{}, fmt.Errorf("swap of %s %s yields nothing: %w", amount, fromCur, domain.ErrInvalidAmount)
	}

	return SwapQuote{
		From:       fromCur,
		To:         toCur,
		FromAmount: amount,
		ToAmount:   toAmount,
		FromPrice:  fromPrice,
		ToPrice:    toPrice,
		Rate:       fromPrice.DivRound(toPrice, rateScale),
	}, nil
}

// Swap debits from, credits to and records one completed swap transaction.
// Either all three happen or none do.
func (s *SwapService) Swap(ctx context.Context, accountID uuid.UUID, from, to string, amount decimal.Decimal) (SwapResult, error) {
	quote, err := s.Preview(ctx, from, to, amount)
	if err != nil {
		return SwapResult{}, err
	}

	var recorded models.Transaction
	err = s.ledger.Run(ctx, accountID, func(tx *LedgerTx) error {
		if _, err := tx.Debit(ctx, quote.From, quote.FromAmount); err != nil {
			return err
		}
		if _, err := tx.Credit(ctx, quote.To, quote.ToAmount); err != nil {
			return err
		}
		created, err := recordCompleted(ctx, tx.Queries(), s.audit, models.Transaction{
			ID:        uuid.New(),
			AccountID: accountID,
			Kind:      domain.TxKindSwap,
			Amount:    quote.FromAmount.Neg(),
			Currency:  quote.From,
			Reference: newReference(domain.RefPrefixSwap),
			Metadata: models.Metadata{
				domain.MetaToCurrency: string(quote.To),
				domain.MetaToAmount:   quote.ToAmount.String(),
				domain.MetaRate:       quote.Rate.String(),
			},
		}, &accountID)
		recorded = created
		return err
	})
	if err != nil {
		return SwapResult{}, err
	}

	s.ledger.refreshAggregate(ctx, accountID)
	s.notifier.Notify(ctx, notify.Event{
		AccountID: accountID,
		Kind:      notify.KindSwap,
		Message:   fmt.Sprintf("Swapped %s %s for %s %s.", quote.FromAmount, quote.From, quote.ToAmount, quote.To),
		Metadata:  map[string]string{"transaction_id": recorded.ID.String(), "reference": recorded.Reference},
	})
	return SwapResult{Transaction: recorded, Quote: quote}, nil
}
