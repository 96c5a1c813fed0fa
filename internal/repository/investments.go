package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const investmentColumns = `id, account_id, plan_id, plan_name, currency, amount, multiplier, duration_days, payout_amount, start_at, end_at, status, settled_at, created_at`

func scanInvestment(row pgx.Row) (models.Investment, error) {
	var (
		inv      models.Investment
		currency string
	)
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.PlanID, &inv.PlanName, &currency, &inv.Amount, &inv.Multiplier,
		&inv.DurationDays, &inv.PayoutAmount, &inv.StartAt, &inv.EndAt, &inv.Status, &inv.SettledAt, &inv.CreatedAt)
	if err != nil {
		return models.Investment{}, err
	}
	inv.Currency = domain.Currency(currency)
	return inv, nil
}

func collectInvestments(rows pgx.Rows) ([]models.Investment, error) {
	defer rows.Close()
	var out []models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const createInvestment = `
INSERT INTO investments (id, account_id, plan_id, plan_name, currency, amount, multiplier, duration_days, payout_amount, start_at, end_at, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $10)
RETURNING ` + investmentColumns

func (q *Queries) CreateInvestment(ctx context.Context, arg models.Investment) (models.Investment, error) {
	return scanInvestment(q.db.QueryRow(ctx, createInvestment,
		arg.ID,
		arg.AccountID,
		arg.PlanID,
		arg.PlanName,
		string(arg.Currency),
		arg.Amount,
		arg.Multiplier,
		arg.DurationDays,
		arg.PayoutAmount,
		arg.StartAt,
		arg.EndAt,
		arg.Status,
	))
}

const getInvestment = `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1`

func (q *Queries) GetInvestment(ctx context.Context, id uuid.UUID) (models.Investment, error) {
	return scanInvestment(q.db.QueryRow(ctx, getInvestment, id))
}

const listDueInvestments = `
SELECT ` + investmentColumns + `
FROM investments
WHERE status = 'active' AND end_at <= $1
ORDER BY end_at, id
LIMIT $2`

func (q *Queries) ListDueInvestments(ctx context.Context, now time.Time, limit int32) ([]models.Investment, error) {
	rows, err := q.db.Query(ctx, listDueInvestments, now, limit)
	if err != nil {
		return nil, err
	}
	return collectInvestments(rows)
}

const transitionInvestment = `
UPDATE investments
SET status = $3, settled_at = $4
WHERE id = $1 AND status = $2`

// TransitionInvestment is the claim step: only the caller that observes one
// affected row owns the transition.
func (q *Queries) TransitionInvestment(ctx context.Context, arg TransitionInvestmentParams) (int64, error) {
	tag, err := q.db.Exec(ctx, transitionInvestment, arg.ID, arg.From, arg.To, arg.At)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListInvestments(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql := `SELECT ` + investmentColumns + ` FROM investments` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectInvestments(rows)
}
