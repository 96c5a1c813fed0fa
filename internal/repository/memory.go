package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Querier used for local runs (STORAGE_DRIVER=memory)
// and service tests. Transactions are serialized and applied copy-on-write, so a
// failed RunInTx leaves no trace. Errors mirror the Postgres implementation:
// missing rows are pgx.ErrNoRows and constraint failures are *pgconn.PgError.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type balanceKey struct {
	account  uuid.UUID
	currency domain.Currency
}

type memState struct {
	accounts     map[uuid.UUID]models.Account
	balances     map[balanceKey]models.Balance
	wallets      map[balanceKey]models.WalletAddress
	transactions map[uuid.UUID]models.Transaction
	references   map[string]uuid.UUID
	plans        map[uuid.UUID]models.InvestmentPlan
	investments  map[uuid.UUID]models.Investment
	audit        []models.AuditEntry
	idempotency  map[string]models.IdempotencyKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		accounts:     map[uuid.UUID]models.Account{},
		balances:     map[balanceKey]models.Balance{},
		wallets:      map[balanceKey]models.WalletAddress{},
		transactions: map[uuid.UUID]models.Transaction{},
		references:   map[string]uuid.UUID{},
		plans:        map[uuid.UUID]models.InvestmentPlan{},
		investments:  map[uuid.UUID]models.Investment{},
		idempotency:  map[string]models.IdempotencyKey{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:     make(map[uuid.UUID]models.Account, len(s.accounts)),
		balances:     make(map[balanceKey]models.Balance, len(s.balances)),
		wallets:      make(map[balanceKey]models.WalletAddress, len(s.wallets)),
		transactions: make(map[uuid.UUID]models.Transaction, len(s.transactions)),
		references:   make(map[string]uuid.UUID, len(s.references)),
		plans:        make(map[uuid.UUID]models.InvestmentPlan, len(s.plans)),
		investments:  make(map[uuid.UUID]models.Investment, len(s.investments)),
		audit:        append([]models.AuditEntry(nil), s.audit...),
		idempotency:  make(map[string]models.IdempotencyKey, len(s.idempotency)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.references {
		c.references[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.investments {
		c.investments[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Queries returns a query set where every call is its own atomic unit.
func (s *MemoryStore) Queries() Querier {
	return &memQueries{store: s}
}

// RunInTx runs fn against a private copy of the state and publishes it only when fn succeeds.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(&memQueries{tx: draft}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

type memQueries struct {
	store *MemoryStore
	tx    *memState
}

var _ Querier = (*memQueries)(nil)

func (q *memQueries) with(fn func(st *memState) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return fn(q.store.state)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", ConstraintName: constraint, Message: "violates foreign key constraint"}
}

func now() time.Time {
	return time.Now().UTC()
}

func copyMetadata(m models.Metadata) models.Metadata {
	out := make(models.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func window[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func (q *memQueries) CreateAccount(_ context.Context, arg CreateAccountParams) (models.Account, error) {
	var out models.Account
	err := q.with(func(st *memState) error {
		if _, ok := st.accounts[arg.ID]; ok {
			return uniqueViolation("accounts_pkey")
		}
		ts := now()
		out = models.Account{
			ID:              arg.ID,
			WorkingCurrency: arg.WorkingCurrency,
			TotalUSD:        decimal.Zero,
			TotalEarned:     decimal.Zero,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		st.accounts[arg.ID] = out
		return nil
	})
	return out, err
}

func (q *memQueries) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	var out models.Account
	err := q.with(func(st *memState) error {
		a, ok := st.accounts[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = a
		return nil
	})
	return out, err
}

// LockAccount is a plain read: transactions are already serialized.
func (q *memQueries) LockAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return q.GetAccount(ctx, id)
}

func (q *memQueries) updateAccount(id uuid.UUID, fn func(a *models.Account)) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		a, ok := st.accounts[id]
		if !ok {
			return nil
		}
		fn(&a)
		a.UpdatedAt = now()
		st.accounts[id] = a
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) UpdateAccountWorkingCurrency(_ context.Context, id uuid.UUID, currency string) (int64, error) {
	return q.updateAccount(id, func(a *models.Account) { a.WorkingCurrency = currency })
}

func (q *memQueries) UpdateAccountTotalUSD(_ context.Context, id uuid.UUID, total decimal.Decimal) (int64, error) {
	return q.updateAccount(id, func(a *models.Account) { a.TotalUSD = total })
}

func (q *memQueries) UpdateAccountStats(_ context.Context, arg UpdateAccountStatsParams) (int64, error) {
	return q.updateAccount(arg.ID, func(a *models.Account) {
		a.TotalEarned = a.TotalEarned.Add(arg.EarnedDelta)
		a.Trades += arg.TradesDelta
	})
}

func (q *memQueries) DeleteAccount(_ context.Context, id uuid.UUID) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		if _, ok := st.accounts[id]; !ok {
			return nil
		}
		delete(st.accounts, id)
		for k := range st.balances {
			if k.account == id {
				delete(st.balances, k)
			}
		}
		for k := range st.wallets {
			if k.account == id {
				delete(st.wallets, k)
			}
		}
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) CountAccountObligations(_ context.Context, id uuid.UUID) (models.AccountObligations, error) {
	var out models.AccountObligations
	err := q.with(func(st *memState) error {
		for _, t := range st.transactions {
			if t.AccountID == id && t.Status == domain.TxStatusPending {
				out.PendingTransactions++
			}
		}
		for _, inv := range st.investments {
			if inv.AccountID == id && inv.Status == domain.InvestmentStatusActive {
				out.ActiveInvestments++
			}
		}
		return nil
	})
	return out, err
}

func (q *memQueries) UpsertWalletAddress(_ context.Context, arg models.WalletAddress) error {
	return q.with(func(st *memState) error {
		if _, ok := st.accounts[arg.AccountID]; !ok {
			return fmt.Errorf("upsert wallet address: %w", foreignKeyViolation("wallet_addresses_account_id_fkey"))
		}
		st.wallets[balanceKey{arg.AccountID, arg.Currency}] = arg
		return nil
	})
}

func (q *memQueries) ListWalletAddresses(_ context.Context, accountID uuid.UUID) ([]models.WalletAddress, error) {
	var out []models.WalletAddress
	err := q.with(func(st *memState) error {
		for k, w := range st.wallets {
			if k.account == accountID {
				out = append(out, w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, err
}

func (q *memQueries) ListBalances(_ context.Context, accountID uuid.UUID) ([]models.Balance, error) {
	var out []models.Balance
	err := q.with(func(st *memState) error {
		for k, b := range st.balances {
			if k.account == accountID {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, err
}

func (q *memQueries) GetBalance(_ context.Context, accountID uuid.UUID, currency domain.Currency) (models.Balance, error) {
	var out models.Balance
	err := q.with(func(st *memState) error {
		b, ok := st.balances[balanceKey{accountID, currency}]
		if !ok {
			return pgx.ErrNoRows
		}
		out = b
		return nil
	})
	return out, err
}

func (q *memQueries) InsertBalance(_ context.Context, arg InsertBalanceParams) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		if _, ok := st.accounts[arg.AccountID]; !ok {
			return foreignKeyViolation("account_balances_account_id_fkey")
		}
		key := balanceKey{arg.AccountID, arg.Currency}
		if _, ok := st.balances[key]; ok {
			return nil
		}
		st.balances[key] = models.Balance{
			AccountID: arg.AccountID,
			Currency:  arg.Currency,
			Amount:    arg.Amount,
			Version:   1,
			UpdatedAt: now(),
		}
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) UpdateBalance(_ context.Context, arg UpdateBalanceParams) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		key := balanceKey{arg.AccountID, arg.Currency}
		b, ok := st.balances[key]
		if !ok || b.Version != arg.Version {
			return nil
		}
		if arg.Amount.IsNegative() {
			return &pgconn.PgError{Code: "23514", ConstraintName: "account_balances_amount_check", Message: "violates check constraint"}
		}
		b.Amount = arg.Amount
		b.Version++
		b.UpdatedAt = now()
		st.balances[key] = b
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) CreateTransaction(_ context.Context, arg models.Transaction) (models.Transaction, error) {
	var out models.Transaction
	err := q.with(func(st *memState) error {
		if _, ok := st.transactions[arg.ID]; ok {
			return uniqueViolation("transactions_pkey")
		}
		if _, ok := st.references[arg.Reference]; ok {
			return uniqueViolation("transactions_reference_key")
		}
		t := arg
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		t.UpdatedAt = t.CreatedAt
		t.Metadata = copyMetadata(arg.Metadata)
		st.transactions[t.ID] = t
		st.references[t.Reference] = t.ID
		out = t
		out.Metadata = copyMetadata(t.Metadata)
		return nil
	})
	return out, err
}

func (q *memQueries) GetTransaction(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	var out models.Transaction
	err := q.with(func(st *memState) error {
		t, ok := st.transactions[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = t
		out.Metadata = copyMetadata(t.Metadata)
		return nil
	})
	return out, err
}

func (q *memQueries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return q.GetTransaction(ctx, id)
}

func (q *memQueries) UpdateTransactionStatus(_ context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		t, ok := st.transactions[arg.ID]
		if !ok || t.Status != arg.From {
			return nil
		}
		t.Status = arg.To
		t.UpdatedAt = now()
		st.transactions[arg.ID] = t
		rows = 1
		return nil
	})
	return rows, err
}

func matchTransaction(t models.Transaction, f models.TransactionFilter) bool {
	switch {
	case f.AccountID != nil && t.AccountID != *f.AccountID:
		return false
	case f.Kind != "" && t.Kind != f.Kind:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.Currency != "" && t.Currency != f.Currency:
		return false
	case f.From != nil && t.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !t.CreatedAt.Before(*f.To):
		return false
	}
	return true
}

func (q *memQueries) filterTransactions(f models.TransactionFilter) ([]models.Transaction, error) {
	var out []models.Transaction
	err := q.with(func(st *memState) error {
		for _, t := range st.transactions {
			if matchTransaction(t, f) {
				t.Metadata = copyMetadata(t.Metadata)
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (q *memQueries) ListTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	all, err := q.filterTransactions(filter)
	if err != nil {
		return nil, err
	}
	return window(all, filter.Limit, filter.Offset), nil
}

func (q *memQueries) CountTransactions(_ context.Context, filter models.TransactionFilter) (int64, error) {
	all, err := q.filterTransactions(filter)
	return int64(len(all)), err
}

func (q *memQueries) CreatePlan(_ context.Context, arg models.InvestmentPlan) (models.InvestmentPlan, error) {
	var out models.InvestmentPlan
	err := q.with(func(st *memState) error {
		if _, ok := st.plans[arg.ID]; ok {
			return uniqueViolation("investment_plans_pkey")
		}
		p := arg
		p.CreatedAt = now()
		p.UpdatedAt = p.CreatedAt
		st.plans[p.ID] = p
		out = p
		return nil
	})
	return out, err
}

func (q *memQueries) GetPlan(_ context.Context, id uuid.UUID) (models.InvestmentPlan, error) {
	var out models.InvestmentPlan
	err := q.with(func(st *memState) error {
		p, ok := st.plans[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = p
		return nil
	})
	return out, err
}

func (q *memQueries) UpdatePlan(_ context.Context, arg models.InvestmentPlan) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		p, ok := st.plans[arg.ID]
		if !ok {
			return nil
		}
		created := p.CreatedAt
		p = arg
		p.CreatedAt = created
		p.UpdatedAt = now()
		st.plans[arg.ID] = p
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) ListPlans(_ context.Context, activeOnly bool) ([]models.InvestmentPlan, error) {
	var out []models.InvestmentPlan
	err := q.with(func(st *memState) error {
		for _, p := range st.plans {
			if activeOnly && !p.IsActive {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MinAmount.Equal(out[j].MinAmount) {
			return out[i].MinAmount.LessThan(out[j].MinAmount)
		}
		return out[i].Name < out[j].Name
	})
	return out, err
}

func (q *memQueries) CountPlanInvestments(_ context.Context, planID uuid.UUID) (int64, error) {
	var n int64
	err := q.with(func(st *memState) error {
		for _, inv := range st.investments {
			if inv.PlanID == planID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (q *memQueries) DeletePlan(_ context.Context, id uuid.UUID) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		if _, ok := st.plans[id]; !ok {
			return nil
		}
		for _, inv := range st.investments {
			if inv.PlanID == id {
				return foreignKeyViolation("investments_plan_id_fkey")
			}
		}
		delete(st.plans, id)
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) CreateInvestment(_ context.Context, arg models.Investment) (models.Investment, error) {
	var out models.Investment
	err := q.with(func(st *memState) error {
		if _, ok := st.investments[arg.ID]; ok {
			return uniqueViolation("investments_pkey")
		}
		if _, ok := st.plans[arg.PlanID]; !ok {
			return foreignKeyViolation("investments_plan_id_fkey")
		}
		inv := arg
		inv.CreatedAt = arg.StartAt
		st.investments[inv.ID] = inv
		out = inv
		return nil
	})
	return out, err
}

func (q *memQueries) GetInvestment(_ context.Context, id uuid.UUID) (models.Investment, error) {
	var out models.Investment
	err := q.with(func(st *memState) error {
		inv, ok := st.investments[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = inv
		return nil
	})
	return out, err
}

func (q *memQueries) ListDueInvestments(_ context.Context, at time.Time, limit int32) ([]models.Investment, error) {
	var out []models.Investment
	err := q.with(func(st *memState) error {
		for _, inv := range st.investments {
			if inv.Status == domain.InvestmentStatusActive && !inv.EndAt.After(at) {
				out = append(out, inv)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndAt.Equal(out[j].EndAt) {
			return out[i].EndAt.Before(out[j].EndAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return window(out, limit, 0), err
}

func (q *memQueries) TransitionInvestment(_ context.Context, arg TransitionInvestmentParams) (int64, error) {
	var rows int64
	err := q.with(func(st *memState) error {
		inv, ok := st.investments[arg.ID]
		if !ok || inv.Status != arg.From {
			return nil
		}
		at := arg.At
		inv.Status = arg.To
		inv.SettledAt = &at
		st.investments[arg.ID] = inv
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) ListInvestments(_ context.Context, filter models.InvestmentFilter) ([]models.Investment, error) {
	var out []models.Investment
	err := q.with(func(st *memState) error {
		for _, inv := range st.investments {
			if filter.AccountID != nil && inv.AccountID != *filter.AccountID {
				continue
			}
			if filter.Status != "" && inv.Status != filter.Status {
				continue
			}
			out = append(out, inv)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return window(out, filter.Limit, filter.Offset), err
}

func (q *memQueries) InsertAuditLog(_ context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.with(func(st *memState) error {
		id = int64(len(st.audit)) + 1
		st.audit = append(st.audit, models.AuditEntry{
			ID:         id,
			EntityType: arg.EntityType,
			EntityID:   arg.EntityID,
			ActorID:    arg.ActorID,
			Action:     arg.Action,
			PrevState:  arg.PrevState,
			NextState:  arg.NextState,
			Metadata:   arg.Metadata,
			CreatedAt:  now(),
		})
		return nil
	})
	return id, err
}

func (q *memQueries) ListAuditLog(_ context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	err := q.with(func(st *memState) error {
		for _, e := range st.audit {
			if e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (q *memQueries) GetLedgerDrift(_ context.Context) ([]models.LedgerDrift, error) {
	var out []models.LedgerDrift
	err := q.with(func(st *memState) error {
		expected := map[balanceKey]decimal.Decimal{}
		for _, t := range st.transactions {
			if t.Status != domain.TxStatusCompleted {
				continue
			}
			key := balanceKey{t.AccountID, t.Currency}
			expected[key] = expected[key].Add(t.Amount)
			if t.Kind == domain.TxKindSwap {
				toAmount, err := decimal.NewFromString(t.Metadata[domain.MetaToAmount])
				if err != nil {
					return fmt.Errorf("swap %s to_amount: %w", t.ID, err)
				}
				key := balanceKey{t.AccountID, domain.Currency(t.Metadata[domain.MetaToCurrency])}
				expected[key] = expected[key].Add(toAmount)
			}
		}
		seen := map[balanceKey]struct{}{}
		for key, b := range st.balances {
			seen[key] = struct{}{}
			if want := expected[key]; !b.Amount.Equal(want) {
				out = append(out, models.LedgerDrift{AccountID: key.account, Currency: key.currency, Balance: b.Amount, Expected: want})
			}
		}
		for key, want := range expected {
			if _, ok := seen[key]; ok || want.IsZero() {
				continue
			}
			if _, ok := st.accounts[key.account]; !ok {
				continue
			}
			out = append(out, models.LedgerDrift{AccountID: key.account, Currency: key.currency, Balance: decimal.Zero, Expected: want})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID.String() < out[j].AccountID.String()
		}
		return out[i].Currency < out[j].Currency
	})
	return out, err
}

func (q *memQueries) GetIdempotencyKey(_ context.Context, key string) (models.IdempotencyKey, error) {
	var out models.IdempotencyKey
	err := q.with(func(st *memState) error {
		k, ok := st.idempotency[key]
		if !ok {
			return pgx.ErrNoRows
		}
		out = k
		return nil
	})
	return out, err
}

func (q *memQueries) ReserveIdempotencyKey(_ context.Context, arg ReserveIdempotencyKeyParams) (models.IdempotencyKey, error) {
	var out models.IdempotencyKey
	err := q.with(func(st *memState) error {
		if _, ok := st.idempotency[arg.IdempotencyKey]; ok {
			return pgx.ErrNoRows
		}
		out = models.IdempotencyKey{
			IdempotencyKey: arg.IdempotencyKey,
			RequestHash:    arg.RequestHash,
			Method:         arg.Method,
			Path:           arg.Path,
			ContentType:    "application/json",
			InProgress:     true,
			CreatedAt:      now(),
		}
		st.idempotency[arg.IdempotencyKey] = out
		return nil
	})
	return out, err
}

func (q *memQueries) FinalizeIdempotencyKey(_ context.Context, arg FinalizeIdempotencyKeyParams) (models.IdempotencyKey, error) {
	var out models.IdempotencyKey
	err := q.with(func(st *memState) error {
		k, ok := st.idempotency[arg.IdempotencyKey]
		if !ok || k.RequestHash != arg.RequestHash {
			return pgx.ErrNoRows
		}
		k.ResponseStatus = arg.ResponseStatus
		k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
		k.ContentType = arg.ContentType
		k.InProgress = false
		st.idempotency[arg.IdempotencyKey] = k
		out = k
		return nil
	})
	return out, err
}
