package repository

import (
	"context"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const planColumns = `id, name, description, min_amount, max_amount, multiplier, duration_days, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (models.InvestmentPlan, error) {
	var p models.InvestmentPlan
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.MinAmount, &p.MaxAmount, &p.Multiplier, &p.DurationDays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const createPlan = `
INSERT INTO investment_plans (id, name, description, min_amount, max_amount, multiplier, duration_days, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + planColumns

func (q *Queries) CreatePlan(ctx context.Context, arg models.InvestmentPlan) (models.InvestmentPlan, error) {
	return scanPlan(q.db.QueryRow(ctx, createPlan,
		arg.ID, arg.Name, arg.Description, arg.MinAmount, arg.MaxAmount, arg.Multiplier, arg.DurationDays, arg.IsActive))
}

const getPlan = `SELECT ` + planColumns + ` FROM investment_plans WHERE id = $1`

func (q *Queries) GetPlan(ctx context.Context, id uuid.UUID) (models.InvestmentPlan, error) {
	return scanPlan(q.db.QueryRow(ctx, getPlan, id))
}

const updatePlan = `
UPDATE investment_plans
SET name = $2, description = $3, min_amount = $4, max_amount = $5, multiplier = $6,
    duration_days = $7, is_active = $8, updated_at = NOW()
WHERE id = $1`

func (q *Queries) UpdatePlan(ctx context.Context, arg models.InvestmentPlan) (int64, error) {
	tag, err := q.db.Exec(ctx, updatePlan,
		arg.ID, arg.Name, arg.Description, arg.MinAmount, arg.MaxAmount, arg.Multiplier, arg.DurationDays, arg.IsActive)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listPlans = `
SELECT ` + planColumns + `
FROM investment_plans
WHERE is_active OR NOT $1
ORDER BY min_amount, name`

func (q *Queries) ListPlans(ctx context.Context, activeOnly bool) ([]models.InvestmentPlan, error) {
	rows, err := q.db.Query(ctx, listPlans, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InvestmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const countPlanInvestments = `SELECT COUNT(*) FROM investments WHERE plan_id = $1`

func (q *Queries) CountPlanInvestments(ctx context.Context, planID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPlanInvestments, planID).Scan(&n)
	return n, err
}

const deletePlan = `DELETE FROM investment_plans WHERE id = $1`

func (q *Queries) DeletePlan(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deletePlan, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
