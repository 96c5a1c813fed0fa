package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// PlanInput carries the editable fields of an investment plan. Bounds are in USD.
type PlanInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	DurationDays int32           `json:"duration_days"`
	IsActive     bool            `json:"is_active"`
}

func (in PlanInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("name is required: %w", domain.ErrInvalidPlan)
	case !in.MinAmount.IsPositive():
		return fmt.Errorf("min_amount must be positive: %w", domain.ErrInvalidPlan)
	case in.MaxAmount.LessThan(in.MinAmount):
		return fmt.Errorf("max_amount below min_amount: %w", domain.ErrInvalidPlan)
	case !in.Multiplier.IsPositive():
		return fmt.Errorf("multiplier must be positive: %w", domain.ErrInvalidPlan)
	case in.DurationDays <= 0:
		return fmt.Errorf("duration_days must be positive: %w", domain.ErrInvalidPlan)
	}
	return nil
}

// PlanView is a plan with its bounds shown in a fiat currency.
type PlanView struct {
	models.InvestmentPlan
	Fiat          string          `json:"fiat"`
	FiatRate      decimal.Decimal `json:"fiat_rate"`
	MinAmountFiat decimal.Decimal `json:"min_amount_fiat"`
	MaxAmountFiat decimal.Decimal `json:"max_amount_fiat"`
}

// PlanService is the admin registry of investment plans. Open investments
// carry their own copy of the terms, so edits here never reach them.
type PlanService struct {
	store  QueryStore
	oracle PriceOracle
	audit  *AuditService
}

func NewPlanService(store QueryStore, oracle PriceOracle) *PlanService {
	return &PlanService{store: store, oracle: oracle, audit: NewAuditService()}
}

func (s *PlanService) Create(ctx context.Context, in PlanInput, actorID *uuid.UUID) (models.InvestmentPlan, error) {
	if err := in.validate(); err != nil {
		return models.InvestmentPlan{}, err
	}
	var created models.InvestmentPlan
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		plan, err := qtx.CreatePlan(ctx, models.InvestmentPlan{
			ID:           uuid.New(),
			Name:         strings.TrimSpace(in.Name),
			Description:  in.Description,
			MinAmount:    in.MinAmount,
			MaxAmount:    in.MaxAmount,
			Multiplier:   in.Multiplier,
			DurationDays: in.DurationDays,
			IsActive:     in.IsActive,
		})
		if err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		created = plan
		return s.audit.Write(ctx, qtx, auditEntityPlan, plan.ID, actorID, "created", "", activeState(plan.IsActive), planAuditMeta(plan))
	})
	return created, err
}

func (s *PlanService) Update(ctx context.Context, id uuid.UUID, in PlanInput, actorID *uuid.UUID) (models.InvestmentPlan, error) {
	if err := in.validate(); err != nil {
		return models.InvestmentPlan{}, err
	}
	return s.modify(ctx, id, actorID, "updated", func(p *models.InvestmentPlan) {
		p.Name = strings.TrimSpace(in.Name)
		p.Description = in.Description
		p.MinAmount = in.MinAmount
		p.MaxAmount = in.MaxAmount
		p.Multiplier = in.Multiplier
		p.DurationDays = in.DurationDays
		p.IsActive = in.IsActive
	})
}

// SetActive toggles whether new investments may be opened under the plan.
func (s *PlanService) SetActive(ctx context.Context, id uuid.UUID, active bool, actorID *uuid.UUID) (models.InvestmentPlan, error) {
	action := "deactivated"
	if active {
		action = "activated"
	}
	return s.modify(ctx, id, actorID, action, func(p *models.InvestmentPlan) {
		p.IsActive = active
	})
}

// Delete removes a plan nothing was ever invested in. Plans with investments,
// settled or not, can only be deactivated.
func (s *PlanService) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		plan, err := qtx.GetPlan(ctx, id)
		if err != nil {
			return notFound(err, "plan")
		}
		n, err := qtx.CountPlanInvestments(ctx, id)
		if err != nil {
			return fmt.Errorf("count plan investments: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("plan %s has %d investments: %w", id, n, domain.ErrPlanInUse)
		}

		rows, err := qtx.DeletePlan(ctx, id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("plan %s: %w", id, domain.ErrPlanInUse)
			}
			return fmt.Errorf("delete plan: %w", err)
		}
		if err := requireExactlyOne(rows, "delete plan"); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, auditEntityPlan, plan.ID, actorID, "deleted", activeState(plan.IsActive), "deleted", planAuditMeta(plan))
	})
}

func (s *PlanService) modify(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, action string, mutate func(p *models.InvestmentPlan)) (models.InvestmentPlan, error) {
	var updated models.InvestmentPlan
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		plan, err := qtx.GetPlan(ctx, id)
		if err != nil {
			return notFound(err, "plan")
		}
		prev := activeState(plan.IsActive)
		mutate(&plan)

		rows, err := qtx.UpdatePlan(ctx, plan)
		if err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		if err := requireExactlyOne(rows, "update plan"); err != nil {
			return err
		}
		updated = plan
		return s.audit.Write(ctx, qtx, auditEntityPlan, plan.ID, actorID, action, prev, activeState(plan.IsActive), planAuditMeta(plan))
	})
	return updated, err
}

func (s *PlanService) Get(ctx context.Context, id uuid.UUID) (models.InvestmentPlan, error) {
	plan, err := s.store.Queries().GetPlan(ctx, id)
	if err != nil {
		return models.InvestmentPlan{}, notFound(err, "plan")
	}
	return plan, nil
}

func (s *PlanService) List(ctx context.Context, activeOnly bool) ([]models.InvestmentPlan, error) {
	plans, err := s.store.Queries().ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListForDisplay returns active plans with bounds converted into fiat.
func (s *PlanService) ListForDisplay(ctx context.Context, fiat string) ([]PlanView, error) {
	plans, err := s.List(ctx, true)
	if err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(fiat))
	if code == "" {
		code = string(domain.USD)
	}
	rate := s.oracle.GetFiatRate(ctx, code)
	if !rate.IsPositive() {
		return nil, fmt.Errorf("%s: %w", code, domain.ErrPriceUnavailable)
	}

	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, PlanView{
			InvestmentPlan: p,
			Fiat:           code,
			FiatRate:       rate,
			MinAmountFiat:  domain.RoundUSD(p.MinAmount.Mul(rate)),
			MaxAmountFiat:  domain.RoundUSD(p.MaxAmount.Mul(rate)),
		})
	}
	return out, nil
}

func activeState(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func planAuditMeta(p models.InvestmentPlan) map[string]string {
	return map[string]string{
		"name":          p.Name,
		"min_amount":    p.MinAmount.String(),
		"max_amount":    p.MaxAmount.String(),
		"multiplier":    p.Multiplier.String(),
		"duration_days": fmt.Sprint(p.DurationDays),
	}
}
