package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies that every balance equals the sum of its
// completed transaction effects.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run reports every drifting balance. Drift is logged and counted, never repaired.
func (s *ReconciliationService) Run(ctx context.Context) ([]models.LedgerDrift, error) {
	drifts, err := s.store.Queries().GetLedgerDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("run ledger drift query: %w", err)
	}

	if len(drifts) == 0 {
		zap.L().Info("Ledger Balanced")
		return nil, nil
	}

	for _, d := range drifts {
		observability.IncrementLedgerDrift(string(d.Currency))
		zap.L().Error("CRITICAL: ledger drift detected",
			zap.String("account_id", d.AccountID.String()),
			zap.String("currency", string(d.Currency)),
			zap.String("balance", d.Balance.String()),
			zap.String("expected", d.Expected.String()),
		)
	}
	return drifts, nil
}
