package repository

import (
	"context"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const balanceColumns = `account_id, currency, amount, version, updated_at`

func scanBalance(row pgx.Row) (models.Balance, error) {
	var b models.Balance
	var currency string
	if err := row.Scan(&b.AccountID, &currency, &b.Amount, &b.Version, &b.UpdatedAt); err != nil {
		return models.Balance{}, err
	}
	b.Currency = domain.Currency(currency)
	return b, nil
}

const listBalances = `
SELECT ` + balanceColumns + `
FROM account_balances
WHERE account_id = $1
ORDER BY currency`

func (q *Queries) ListBalances(ctx context.Context, accountID uuid.UUID) ([]models.Balance, error) {
	rows, err := q.db.Query(ctx, listBalances, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const getBalance = `
SELECT ` + balanceColumns + `
FROM account_balances
WHERE account_id = $1 AND currency = $2`

func (q *Queries) GetBalance(ctx context.Context, accountID uuid.UUID, currency domain.Currency) (models.Balance, error) {
	return scanBalance(q.db.QueryRow(ctx, getBalance, accountID, string(currency)))
}

const insertBalance = `
INSERT INTO account_balances (account_id, currency, amount)
VALUES ($1, $2, $3)
ON CONFLICT (account_id, currency) DO NOTHING`

// InsertBalance creates the first balance row for a currency. Zero rows affected
// means another writer created it first.
func (q *Queries) InsertBalance(ctx context.Context, arg InsertBalanceParams) (int64, error) {
	tag, err := q.db.Exec(ctx, insertBalance, arg.AccountID, string(arg.Currency), arg.Amount)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateBalance = `
UPDATE account_balances
SET amount = $3, version = version + 1, updated_at = NOW()
WHERE account_id = $1 AND currency = $2 AND version = $4`

func (q *Queries) UpdateBalance(ctx context.Context, arg UpdateBalanceParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateBalance, arg.AccountID, string(arg.Currency), arg.Amount, arg.Version)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
