package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/ayo6706/custodial-ledger/internal/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// AccountView is an account with its balances and registered payout addresses.
type AccountView struct {
	models.Account
	Balances []models.Balance       `json:"balances"`
	Wallets  []models.WalletAddress `json:"wallets"`
}

// Holding is one currency position valued in USD and in the working currency.
type Holding struct {
	Currency  domain.Currency `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	USDPrice  decimal.Decimal `json:"usd_price"`
	USDValue  decimal.Decimal `json:"usd_value"`
	FiatValue decimal.Decimal `json:"fiat_value"`
}

type Portfolio struct {
	AccountID uuid.UUID       `json:"account_id"`
	Fiat      string          `json:"fiat"`
	FiatRate  decimal.Decimal `json:"fiat_rate"`
	Holdings  []Holding       `json:"holdings"`
	TotalUSD  decimal.Decimal `json:"total_usd"`
	TotalFiat decimal.Decimal `json:"total_fiat"`
}

type AccountService struct {
	store   QueryStore
	ledger  *Ledger
	oracle  PriceOracle
	audit   *AuditService
	wallets AdminWallets
}

func NewAccountService(store QueryStore, ledger *Ledger, oracle PriceOracle, wallets AdminWallets) *AccountService {
	return &AccountService{
		store:   store,
		ledger:  ledger,
		oracle:  oracle,
		audit:   NewAuditService(),
		wallets: wallets,
	}
}

// Open creates an account. An empty working currency means USD.
func (s *AccountService) Open(ctx context.Context, id uuid.UUID, workingCurrency string) (models.Account, error) {
	code, err := s.workingCurrency(ctx, workingCurrency)
	if err != nil {
		return models.Account{}, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	var created models.Account
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		account, err := qtx.CreateAccount(ctx, repository.CreateAccountParams{ID: id, WorkingCurrency: code})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("account %s: %w", id, domain.ErrAccountExists)
			}
			return fmt.Errorf("create account: %w", err)
		}
		created = account
		return s.audit.Write(ctx, qtx, auditEntityAccount, id, nil, "opened", "", "open", map[string]string{"working_currency": code})
	})
	return created, err
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (AccountView, error) {
	q := s.store.Queries()
	account, err := q.GetAccount(ctx, id)
	if err != nil {
		return AccountView{}, notFound(err, "account")
	}
	balances, err := q.ListBalances(ctx, id)
	if err != nil {
		return AccountView{}, fmt.Errorf("list balances: %w", err)
	}
	wallets, err := q.ListWalletAddresses(ctx, id)
	if err != nil {
		return AccountView{}, fmt.Errorf("list wallet addresses: %w", err)
	}
	if balances == nil {
		balances = []models.Balance{}
	}
	if wallets == nil {
		wallets = []models.WalletAddress{}
	}
	return AccountView{Account: account, Balances: balances, Wallets: wallets}, nil
}

// SetWorkingCurrency changes the currency amounts are entered and displayed in.
func (s *AccountService) SetWorkingCurrency(ctx context.Context, id uuid.UUID, workingCurrency string) (models.Account, error) {
	code, err := s.workingCurrency(ctx, workingCurrency)
	if err != nil {
		return models.Account{}, err
	}
	q := s.store.Queries()
	rows, err := q.UpdateAccountWorkingCurrency(ctx, id, code)
	if err != nil {
		return models.Account{}, fmt.Errorf("update working currency: %w", err)
	}
	if rows == 0 {
		return models.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	account, err := q.GetAccount(ctx, id)
	if err != nil {
		return models.Account{}, notFound(err, "account")
	}
	return account, nil
}

// RegisterWalletAddress stores the payout address withdrawals in currency are sent to.
func (s *AccountService) RegisterWalletAddress(ctx context.Context, id uuid.UUID, currency, address string) (models.WalletAddress, error) {
	c, err := s.ledger.Registry().Parse(currency)
	if err != nil {
		return models.WalletAddress{}, err
	}
	if err := wallet.Validate(c, address); err != nil {
		return models.WalletAddress{}, err
	}

	w := models.WalletAddress{AccountID: id, Currency: c, Address: address}
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := qtx.GetAccount(ctx, id); err != nil {
			return notFound(err, "account")
		}
		if err := qtx.UpsertWalletAddress(ctx, w); err != nil {
			return fmt.Errorf("upsert wallet address: %w", err)
		}
		return s.audit.Write(ctx, qtx, auditEntityAccount, id, &id, "wallet_registered", "", "", map[string]string{
			"currency": string(c),
			"address":  address,
		})
	})
	if err != nil {
		return models.WalletAddress{}, err
	}
	return w, nil
}

// Portfolio values every holding at current prices. The USD total also
// refreshes the account's cached aggregate.
func (s *AccountService) Portfolio(ctx context.Context, id uuid.UUID) (Portfolio, error) {
	account, err := s.store.Queries().GetAccount(ctx, id)
	if err != nil {
		return Portfolio{}, notFound(err, "account")
	}
	total, err := s.ledger.RecomputeAggregate(ctx, id)
	if err != nil {
		return Portfolio{}, err
	}
	balances, err := s.ledger.Balances(ctx, id)
	if err != nil {
		return Portfolio{}, err
	}

	symbols := make([]domain.Currency, 0, len(balances))
	for _, b := range balances {
		symbols = append(symbols, b.Currency)
	}
	prices := s.oracle.GetUsdPrices(ctx, symbols)
	rate := s.oracle.GetFiatRate(ctx, account.WorkingCurrency)

	p := Portfolio{
		AccountID: id,
		Fiat:      account.WorkingCurrency,
		FiatRate:  rate,
		Holdings:  make([]Holding, 0, len(balances)),
		TotalUSD:  total,
		TotalFiat: domain.RoundUSD(total.Mul(rate)),
	}
	for _, b := range balances {
		price := prices[b.Currency]
		usd := domain.RoundUSD(b.Amount.Mul(price))
		p.Holdings = append(p.Holdings, Holding{
			Currency:  b.Currency,
			Amount:    b.Amount,
			USDPrice:  price,
			USDValue:  usd,
			FiatValue: domain.RoundUSD(usd.Mul(rate)),
		})
	}
	return p, nil
}

// DepositAddress is the admin address users send deposits in currency to.
func (s *AccountService) DepositAddress(_ context.Context, currency string) (string, error) {
	c, err := s.ledger.Registry().Parse(currency)
	if err != nil {
		return "", err
	}
	return s.wallets.Address(c)
}

// Delete removes an account that has no active investments and no pending
// transactions. Its transaction and investment history is kept.
func (s *AccountService) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	return s.ledger.Run(ctx, id, func(tx *LedgerTx) error {
		q := tx.Queries()
		obligations, err := q.CountAccountObligations(ctx, id)
		if err != nil {
			return fmt.Errorf("count obligations: %w", err)
		}
		if obligations.PendingTransactions > 0 || obligations.ActiveInvestments > 0 {
			return fmt.Errorf("%d pending transactions, %d active investments: %w",
				obligations.PendingTransactions, obligations.ActiveInvestments, domain.ErrAccountHasObligations)
		}
		rows, err := q.DeleteAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if err := requireExactlyOne(rows, "delete account"); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, auditEntityAccount, id, actorID, "deleted", "open", "deleted", nil)
	})
}

// AuditTrail returns the audit history of an account.
func (s *AccountService) AuditTrail(ctx context.Context, id uuid.UUID) ([]AuditRecord, error) {
	return s.audit.History(ctx, s.store.Queries(), auditEntityAccount, id)
}

func (s *AccountService) workingCurrency(ctx context.Context, raw string) (string, error) {
	code := domain.NormalizeCurrency(raw)
	if code == "" {
		return string(domain.USD), nil
	}
	if code.IsUSDPegged() {
		return string(code), nil
	}
	if !s.oracle.GetFiatRate(ctx, string(code)).IsPositive() {
		return "", fmt.Errorf("working currency %s: %w", code, domain.ErrUnsupportedCurrency)
	}
	return string(code), nil
}
