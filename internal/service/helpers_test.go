package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/oracle"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/ayo6706/custodial-ledger/internal/testutil/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type testEnv struct {
	store    *repository.MemoryStore
	prices   *oracle.Static
	oracle   *oracle.Oracle
	clock    *clock.Manual
	notifier *recordingNotifier

	ledger      *Ledger
	accounts    *AccountService
	funding     *FundingService
	swaps       *SwapService
	plans       *PlanService
	investments *InvestmentService
	payouts     *PayoutService
	history     *HistoryService
	reconcile   *ReconciliationService
}

var testAdminWallets = AdminWallets{
	"BTC":  "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
	"ETH":  "0x52908400098527886E0F7030069857D2E4169EE7",
	"USDT": "0x8617E340B3D01FA5F11F306F4090FD50E238070D",
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	prices := oracle.NewStatic(
		map[domain.Currency]decimal.Decimal{
			"BTC":  decimal.NewFromInt(60000),
			"ETH":  decimal.NewFromInt(3000),
			"USDT": decimal.NewFromInt(1),
			"USDC": decimal.NewFromInt(1),
		},
		map[string]decimal.Decimal{
			"EUR": decimal.RequireFromString("0.5"),
			"NGN": decimal.NewFromInt(1500),
		},
	)
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	orc := oracle.New(prices, prices, oracle.WithClock(clk))
	notifier := &recordingNotifier{}
	ledger := NewLedger(store, orc, domain.NewRegistry())

	return &testEnv{
		store:       store,
		prices:      prices,
		oracle:      orc,
		clock:       clk,
		notifier:    notifier,
		ledger:      ledger,
		accounts:    NewAccountService(store, ledger, orc, testAdminWallets),
		funding:     NewFundingService(store, ledger, notifier, testAdminWallets, domain.USDT),
		swaps:       NewSwapService(ledger, orc, notifier),
		plans:       NewPlanService(store, orc),
		investments: NewInvestmentService(store, ledger, orc, notifier, clk, domain.USDT),
		payouts:     NewPayoutService(store, ledger, notifier, clk),
		history:     NewHistoryService(store, orc),
		reconcile:   NewReconciliationService(store),
	}
}

func (e *testEnv) openAccount(t *testing.T) uuid.UUID {
	t.Helper()
	account, err := e.accounts.Open(context.Background(), uuid.New(), "USD")
	require.NoError(t, err)
	return account.ID
}

// fund credits through an approved deposit so the transaction history matches the balance.
func (e *testEnv) fund(t *testing.T, accountID uuid.UUID, currency, amount string) {
	t.Helper()
	ctx := context.Background()
	txn, err := e.funding.RequestDeposit(ctx, accountID, currency, dec(amount))
	require.NoError(t, err)
	_, err = e.funding.ApproveDeposit(ctx, txn.ID, nil)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, accountID uuid.UUID, currency domain.Currency) decimal.Decimal {
	t.Helper()
	b, err := balanceOf(context.Background(), e.store.Queries(), accountID, currency)
	require.NoError(t, err)
	return b
}

func (e *testEnv) createPlan(t *testing.T, lo, hi, multiplier string, days int32) models.InvestmentPlan {
	t.Helper()
	plan, err := e.plans.Create(context.Background(), PlanInput{
		Name:         "Plan " + multiplier + "x",
		MinAmount:    dec(lo),
		MaxAmount:    dec(hi),
		Multiplier:   dec(multiplier),
		DurationDays: days,
		IsActive:     true,
	}, nil)
	require.NoError(t, err)
	return plan
}

func (e *testEnv) requireNoDrift(t *testing.T) {
	t.Helper()
	drifts, err := e.reconcile.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
