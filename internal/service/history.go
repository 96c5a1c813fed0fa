package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize int32 = 50
	maxPageSize     int32 = 200
)

func normalizePage(limit, offset int32) (int32, int32) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// HistoryEntry is a transaction with an optional amount converted for display.
type HistoryEntry struct {
	models.Transaction
	DisplayAmount   *decimal.Decimal `json:"display_amount,omitempty"`
	DisplayCurrency string           `json:"display_currency,omitempty"`
}

type HistoryPage struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int64          `json:"total"`
	Limit   int32          `json:"limit"`
	Offset  int32          `json:"offset"`
}

// HistoryService lists transactions for users and administrators.
type HistoryService struct {
	store  QueryStore
	oracle PriceOracle
}

func NewHistoryService(store QueryStore, oracle PriceOracle) *HistoryService {
	return &HistoryService{store: store, oracle: oracle}
}

// List applies filter and, when displayFiat is set, values each amount in that fiat.
func (s *HistoryService) List(ctx context.Context, filter models.TransactionFilter, displayFiat string) (HistoryPage, error) {
	if filter.Kind != "" && !domain.IsTransactionKind(filter.Kind) {
		return HistoryPage{}, fmt.Errorf("unknown kind %q: %w", filter.Kind, domain.ErrInvalidArgument)
	}
	if filter.Status != "" && !domain.IsTransactionStatus(filter.Status) {
		return HistoryPage{}, fmt.Errorf("unknown status %q: %w", filter.Status, domain.ErrInvalidArgument)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return HistoryPage{}, fmt.Errorf("range ends before it starts: %w", domain.ErrInvalidArgument)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	q := s.store.Queries()
	rows, err := q.ListTransactions(ctx, filter)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("list transactions: %w", err)
	}
	total, err := q.CountTransactions(ctx, filter)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("count transactions: %w", err)
	}

	page := HistoryPage{
		Entries: make([]HistoryEntry, 0, len(rows)),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	for _, r := range rows {
		page.Entries = append(page.Entries, HistoryEntry{Transaction: r})
	}

	fiat := strings.ToUpper(strings.TrimSpace(displayFiat))
	if fiat == "" || len(rows) == 0 {
		return page, nil
	}

	seen := map[domain.Currency]struct{}{}
	var symbols []domain.Currency
	for _, r := range rows {
		if _, ok := seen[r.Currency]; !ok {
			seen[r.Currency] = struct{}{}
			symbols = append(symbols, r.Currency)
		}
	}
	prices := s.oracle.GetUsdPrices(ctx, symbols)
	rate := s.oracle.GetFiatRate(ctx, fiat)
	if !rate.IsPositive() {
		return page, nil
	}

	for i := range page.Entries {
		price := prices[page.Entries[i].Currency]
		if !price.IsPositive() {
			continue
		}
		v := domain.RoundUSD(page.Entries[i].Amount.Mul(price).Mul(rate))
		page.Entries[i].DisplayAmount = &v
		page.Entries[i].DisplayCurrency = fiat
	}
	return page, nil
}
