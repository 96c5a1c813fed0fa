package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusFailed:    {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// loadPending row-locks a transaction and checks it is a pending record of the expected kind.
func loadPending(ctx context.Context, qtx repository.Querier, transactionID uuid.UUID, kind string) (models.Transaction, error) {
	txn, err := qtx.GetTransactionForUpdate(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction")
	}
	if txn.Kind != kind {
		return models.Transaction{}, fmt.Errorf("transaction %s is a %s, not a %s: %w", transactionID, txn.Kind, kind, domain.ErrWrongKind)
	}
	if txn.Status != domain.TxStatusPending {
		return models.Transaction{}, fmt.Errorf("transaction %s is %s: %w", transactionID, txn.Status, domain.ErrNotPending)
	}
	return txn, nil
}

func transitionTransactionState(ctx context.Context, qtx repository.Querier, audit *AuditService, txn models.Transaction, nextState string, actorID *uuid.UUID, action string) error {
	if !canTransition(txn.Status, nextState) {
		return fmt.Errorf("transaction %s cannot move %s -> %s: %w", txn.ID, txn.Status, nextState, domain.ErrNotPending)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:   txn.ID,
		From: txn.Status,
		To:   nextState,
	})
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s changed concurrently: %w", txn.ID, domain.ErrNotPending)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	return audit.Write(ctx, qtx, auditEntityTransaction, txn.ID, actorID, action, txn.Status, nextState, map[string]string{
		"kind":     txn.Kind,
		"amount":   txn.Amount.String(),
		"currency": string(txn.Currency),
	})
}

// recordCompleted inserts a transaction that is born completed, with its audit row.
func recordCompleted(ctx context.Context, qtx repository.Querier, audit *AuditService, txn models.Transaction, actorID *uuid.UUID) (models.Transaction, error) {
	txn.Status = domain.TxStatusCompleted
	created, err := qtx.CreateTransaction(ctx, txn)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create %s transaction: %w", txn.Kind, err)
	}
	if err := audit.Write(ctx, qtx, auditEntityTransaction, created.ID, actorID, "created", "", created.Status, created.Metadata); err != nil {
		return models.Transaction{}, err
	}
	return created, nil
}
