package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminWallets maps a currency to the administrator's receiving address.
type AdminWallets map[domain.Currency]string

// Address returns the receiving address, or ErrUnsupportedCurrency when none is configured.
func (w AdminWallets) Address(c domain.Currency) (string, error) {
	addr, ok := w[c]
	if !ok || addr == "" {
		return "", fmt.Errorf("no receiving address for %s: %w", c, domain.ErrUnsupportedCurrency)
	}
	return addr, nil
}

// FundingService runs the deposit and withdrawal approval workflow. Requests
// never touch balances; approval applies the ledger effect and the status flip
// in one storage transaction.
type FundingService struct {
	store          QueryStore
	ledger         *Ledger
	audit          *AuditService
	notifier       notify.Notifier
	wallets        AdminWallets
	settlement     domain.Currency
	strictRequests bool
}

type FundingOption func(*FundingService)

// WithStrictWithdrawalRequests rejects withdrawal requests above the current
// balance instead of only flagging them.
func WithStrictWithdrawalRequests(strict bool) FundingOption {
	return func(s *FundingService) {
		s.strictRequests = strict
	}
}

func NewFundingService(store QueryStore, ledger *Ledger, notifier notify.Notifier, wallets AdminWallets, settlement domain.Currency, opts ...FundingOption) *FundingService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &FundingService{
		store:      store,
		ledger:     ledger,
		audit:      NewAuditService(),
		notifier:   notifier,
		wallets:    wallets,
		settlement: settlement,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestDeposit records a pending deposit against the admin receiving address.
func (s *FundingService) RequestDeposit(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (models.Transaction, error) {
	c, amount, err := s.parse(currency, amount)
	if err != nil {
		return models.Transaction{}, err
	}
	address, err := s.wallets.Address(c)
	if err != nil {
		return models.Transaction{}, err
	}

	txn := models.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.TxKindDeposit,
		Amount:    amount,
		Currency:  c,
		Status:    domain.TxStatusPending,
		Reference: newReference(domain.RefPrefixDeposit),
		Metadata:  models.Metadata{domain.MetaToAddress: address},
	}
	created, err := s.createPending(ctx, txn)
	if err != nil {
		return models.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		AccountID: accountID,
		Kind:      notify.KindDeposit,
		Message:   fmt.Sprintf("Deposit of %s %s requested. Send funds to %s.", amount, c, address),
		Metadata:  map[string]string{"transaction_id": created.ID.String(), "reference": created.Reference},
	})
	return created, nil
}

// RequestWithdrawal records a pending withdrawal. The balance check here is a
// courtesy: a short balance is flagged in metadata (or rejected in strict
// mode), nothing is held, and approval checks again.
func (s *FundingService) RequestWithdrawal(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (models.Transaction, error) {
	if currency == "" {
		currency = string(s.settlement)
	}
	c, amount, err := s.parse(currency, amount)
	if err != nil {
		return models.Transaction{}, err
	}

	q := s.store.Queries()
	if _, err := q.GetAccount(ctx, accountID); err != nil {
		return models.Transaction{}, notFound(err, "account")
	}

	address, err := s.payoutAddress(ctx, q, accountID, c)
	if err != nil {
		return models.Transaction{}, err
	}

	meta := models.Metadata{domain.MetaToAddress: address}
	balance, err := balanceOf(ctx, q, accountID, c)
	if err != nil {
		return models.Transaction{}, err
	}
	if balance.LessThan(amount) {
		if s.strictRequests {
			return models.Transaction{}, fmt.Errorf("%s balance %s is below %s: %w", c, balance, amount, domain.ErrInsufficientFunds)
		}
		meta[domain.MetaBalanceAtRequest] = balance.String()
		zap.L().Info("withdrawal requested above current balance",
			zap.String("account_id", accountID.String()),
			zap.String("currency", string(c)),
			zap.String("balance", balance.String()),
			zap.String("amount", amount.String()),
		)
	}

	txn := models.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.TxKindWithdrawal,
		Amount:    amount.Neg(),
		Currency:  c,
		Status:    domain.TxStatusPending,
		Reference: newReference(domain.RefPrefixWithdrawal),
		Metadata:  meta,
	}
	created, err := s.createPending(ctx, txn)
	if err != nil {
		return models.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		AccountID: accountID,
		Kind:      notify.KindWithdrawal,
		Message:   fmt.Sprintf("Withdrawal of %s %s to %s is awaiting approval.", amount, c, address),
		Metadata:  map[string]string{"transaction_id": created.ID.String(), "reference": created.Reference},
	})
	return created, nil
}

// ApproveDeposit credits the account and completes the deposit.
func (s *FundingService) ApproveDeposit(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	return s.approve(ctx, transactionID, domain.TxKindDeposit, actorID, func(ctx context.Context, tx *LedgerTx, txn models.Transaction) error {
		_, err := tx.Credit(ctx, txn.Currency, txn.Amount)
		return err
	})
}

// ApproveWithdrawal re-checks the balance, debits it and completes the
// withdrawal. On ErrInsufficientFunds the record stays pending.
func (s *FundingService) ApproveWithdrawal(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	return s.approve(ctx, transactionID, domain.TxKindWithdrawal, actorID, func(ctx context.Context, tx *LedgerTx, txn models.Transaction) error {
		_, err := tx.Debit(ctx, txn.Currency, txn.Amount.Abs())
		return err
	})
}

func (s *FundingService) RejectDeposit(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	return s.reject(ctx, transactionID, domain.TxKindDeposit, actorID)
}

func (s *FundingService) RejectWithdrawal(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	return s.reject(ctx, transactionID, domain.TxKindWithdrawal, actorID)
}

// Get returns a single transaction of any kind.
func (s *FundingService) Get(ctx context.Context, transactionID uuid.UUID) (models.Transaction, error) {
	txn, err := s.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction")
	}
	return txn, nil
}

type ledgerEffect func(ctx context.Context, tx *LedgerTx, txn models.Transaction) error

func (s *FundingService) approve(ctx context.Context, transactionID uuid.UUID, kind string, actorID *uuid.UUID, effect ledgerEffect) (models.Transaction, error) {
	// The account id is needed before the account lock can be taken.
	peek, err := s.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction")
	}
	if peek.Kind != kind {
		return models.Transaction{}, fmt.Errorf("transaction %s is a %s, not a %s: %w", transactionID, peek.Kind, kind, domain.ErrWrongKind)
	}

	var approved models.Transaction
	err = s.ledger.Run(ctx, peek.AccountID, func(tx *LedgerTx) error {
		txn, err := loadPending(ctx, tx.Queries(), transactionID, kind)
		if err != nil {
			return err
		}
		if err := effect(ctx, tx, txn); err != nil {
			return err
		}
		if err := transitionTransactionState(ctx, tx.Queries(), s.audit, txn, domain.TxStatusCompleted, actorID, "approved"); err != nil {
			return err
		}
		txn.Status = domain.TxStatusCompleted
		approved = txn
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			zap.L().Info("approval rejected by balance check",
				zap.String("transaction_id", transactionID.String()),
				zap.String("kind", kind),
			)
		}
		return models.Transaction{}, err
	}

	s.ledger.refreshAggregate(ctx, approved.AccountID)
	s.notifier.Notify(ctx, notify.Event{
		AccountID: approved.AccountID,
		Kind:      notifyKindFor(kind),
		Message:   fmt.Sprintf("Your %s of %s %s was approved.", kind, approved.Amount.Abs(), approved.Currency),
		Metadata:  map[string]string{"transaction_id": approved.ID.String(), "reference": approved.Reference},
	})
	return approved, nil
}

func (s *FundingService) reject(ctx context.Context, transactionID uuid.UUID, kind string, actorID *uuid.UUID) (models.Transaction, error) {
	var rejected models.Transaction
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		txn, err := loadPending(ctx, qtx, transactionID, kind)
		if err != nil {
			return err
		}
		if err := transitionTransactionState(ctx, qtx, s.audit, txn, domain.TxStatusFailed, actorID, "rejected"); err != nil {
			return err
		}
		txn.Status = domain.TxStatusFailed
		rejected = txn
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		AccountID: rejected.AccountID,
		Kind:      notifyKindFor(kind),
		Message:   fmt.Sprintf("Your %s of %s %s was declined.", kind, rejected.Amount.Abs(), rejected.Currency),
		Metadata:  map[string]string{"transaction_id": rejected.ID.String(), "reference": rejected.Reference},
	})
	return rejected, nil
}

func (s *FundingService) createPending(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	var created models.Transaction
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := qtx.GetAccount(ctx, txn.AccountID); err != nil {
			return notFound(err, "account")
		}
		row, err := qtx.CreateTransaction(ctx, txn)
		if err != nil {
			return fmt.Errorf("create %s transaction: %w", txn.Kind, err)
		}
		created = row
		return s.audit.Write(ctx, qtx, auditEntityTransaction, row.ID, &txn.AccountID, "requested", "", row.Status, row.Metadata)
	})
	return created, err
}

func (s *FundingService) payoutAddress(ctx context.Context, q repository.Querier, accountID uuid.UUID, c domain.Currency) (string, error) {
	wallets, err := q.ListWalletAddresses(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("list wallet addresses: %w", err)
	}
	for _, w := range wallets {
		if w.Currency == c && w.Address != "" {
			return w.Address, nil
		}
	}
	return "", fmt.Errorf("%s: %w", c, domain.ErrMissingWalletAddress)
}

func (s *FundingService) parse(currency string, amount decimal.Decimal) (domain.Currency, decimal.Decimal, error) {
	c, err := s.ledger.Registry().Parse(currency)
	if err != nil {
		return "", decimal.Zero, err
	}
	amount = domain.RoundAmount(amount)
	if err := domain.RequirePositive(amount); err != nil {
		return "", decimal.Zero, err
	}
	return c, amount, nil
}

func notifyKindFor(kind string) notify.Kind {
	switch kind {
	case domain.TxKindDeposit:
		return notify.KindDeposit
	case domain.TxKindWithdrawal:
		return notify.KindWithdrawal
	case domain.TxKindSwap:
		return notify.KindSwap
	case domain.TxKindInvestment:
		return notify.KindInvestment
	case domain.TxKindPayout:
		return notify.KindPayout
	}
	return notify.KindSystem
}
