package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, working_currency, total_usd, total_earned, trades, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.WorkingCurrency, &a.TotalUSD, &a.TotalEarned, &a.Trades, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

const createAccount = `
INSERT INTO accounts (id, working_currency)
VALUES ($1, $2)
RETURNING ` + accountColumns

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, createAccount, arg.ID, arg.WorkingCurrency))
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccount, id))
}

const lockAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

// LockAccount reads the account row and holds its row lock until the surrounding transaction ends.
func (q *Queries) LockAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, lockAccount, id))
}

const updateAccountWorkingCurrency = `
UPDATE accounts SET working_currency = $2, updated_at = NOW()
WHERE id = $1`

func (q *Queries) UpdateAccountWorkingCurrency(ctx context.Context, id uuid.UUID, currency string) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAccountWorkingCurrency, id, currency)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateAccountTotalUSD = `
UPDATE accounts SET total_usd = $2, updated_at = NOW()
WHERE id = $1`

func (q *Queries) UpdateAccountTotalUSD(ctx context.Context, id uuid.UUID, total decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAccountTotalUSD, id, total)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateAccountStats = `
UPDATE accounts
SET total_earned = total_earned + $2, trades = trades + $3, updated_at = NOW()
WHERE id = $1`

func (q *Queries) UpdateAccountStats(ctx context.Context, arg UpdateAccountStatsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAccountStats, arg.ID, arg.EarnedDelta, arg.TradesDelta)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteAccount = `DELETE FROM accounts WHERE id = $1`

func (q *Queries) DeleteAccount(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteAccount, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countAccountObligations = `
SELECT
    (SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND status = 'pending'),
    (SELECT COUNT(*) FROM investments WHERE account_id = $1 AND status = 'active')`

func (q *Queries) CountAccountObligations(ctx context.Context, id uuid.UUID) (models.AccountObligations, error) {
	var o models.AccountObligations
	err := q.db.QueryRow(ctx, countAccountObligations, id).Scan(&o.PendingTransactions, &o.ActiveInvestments)
	return o, err
}

const upsertWalletAddress = `
INSERT INTO wallet_addresses (account_id, currency, address)
VALUES ($1, $2, $3)
ON CONFLICT (account_id, currency) DO UPDATE SET address = EXCLUDED.address, updated_at = NOW()`

func (q *Queries) UpsertWalletAddress(ctx context.Context, arg models.WalletAddress) error {
	if _, err := q.db.Exec(ctx, upsertWalletAddress, arg.AccountID, string(arg.Currency), arg.Address); err != nil {
		return fmt.Errorf("upsert wallet address: %w", err)
	}
	return nil
}

const listWalletAddresses = `
SELECT account_id, currency, address
FROM wallet_addresses
WHERE account_id = $1
ORDER BY currency`

func (q *Queries) ListWalletAddresses(ctx context.Context, accountID uuid.UUID) ([]models.WalletAddress, error) {
	rows, err := q.db.Query(ctx, listWalletAddresses, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WalletAddress
	for rows.Next() {
		var w models.WalletAddress
		var currency string
		if err := rows.Scan(&w.AccountID, &currency, &w.Address); err != nil {
			return nil, err
		}
		w.Currency = domain.Currency(currency)
		out = append(out, w)
	}
	return out, rows.Err()
}
