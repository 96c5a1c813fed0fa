package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
)

const (
	auditEntityTransaction = "transaction"
	auditEntityInvestment  = "investment"
	auditEntityPlan        = "investment_plan"
	auditEntityAccount     = "account"
)

// AuditRecord is an audit entry with its metadata decoded.
type AuditRecord struct {
	models.AuditEntry
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditService writes immutable audit trail entries.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single immutable audit record inside the caller's transaction.
func (s *AuditService) Write(ctx context.Context, qtx repository.Querier, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata map[string]string) error {
	var raw []byte
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		raw = encoded
	}

	if _, err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   raw,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// History lists the audit trail for one entity, oldest first.
func (s *AuditService) History(ctx context.Context, q repository.Querier, entityType string, entityID uuid.UUID) ([]AuditRecord, error) {
	rows, err := q.ListAuditLog(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	out := make([]AuditRecord, 0, len(rows))
	for _, r := range rows {
		rec := AuditRecord{AuditEntry: r}
		if len(r.Metadata) > 0 {
			_ = json.Unmarshal(r.Metadata, &rec.Metadata)
		}
		out = append(out, rec)
	}
	return out, nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
