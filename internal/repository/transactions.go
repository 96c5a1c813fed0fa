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

const transactionColumns = `id, account_id, kind, amount, currency, status, reference, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		t        models.Transaction
		currency string
		meta     []byte
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &currency, &t.Status, &t.Reference, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Transaction{}, err
	}
	t.Currency = domain.Currency(currency)
	m, err := decodeMetadata(meta)
	if err != nil {
		return models.Transaction{}, err
	}
	t.Metadata = m
	return t, nil
}

const createTransaction = `
INSERT INTO transactions (id, account_id, kind, amount, currency, status, reference, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, clock_timestamp()), COALESCE($9::timestamptz, clock_timestamp()))
RETURNING ` + transactionColumns

// CreateTransaction inserts a transaction. A zero CreatedAt leaves the
// timestamp to the database clock, read per statement so rows written in
// one database transaction still order by insertion.
func (q *Queries) CreateTransaction(ctx context.Context, arg models.Transaction) (models.Transaction, error) {
	meta, err := encodeMetadata(arg.Metadata)
	if err != nil {
		return models.Transaction{}, err
	}
	return scanTransaction(q.db.QueryRow(ctx, createTransaction,
		arg.ID,
		arg.AccountID,
		arg.Kind,
		arg.Amount,
		string(arg.Currency),
		arg.Status,
		arg.Reference,
		meta,
		optionalTime(arg.CreatedAt),
	))
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransaction, id))
}

const getTransactionForUpdate = getTransaction + ` FOR UPDATE`

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionForUpdate, id))
}

const updateTransactionStatus = `
UPDATE transactions
SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`

// UpdateTransactionStatus moves a transaction from one status to another and
// reports zero rows when the current status is no longer From.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTransactionStatus, arg.ID, arg.From, arg.To)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func transactionFilterClause(f models.TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != nil {
		add("account_id = $%d", *f.AccountID)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Currency != "" {
		add("currency = $%d", string(f.Currency))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q *Queries) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	where, args := transactionFilterClause(filter)
	args = append(args, filter.Limit, filter.Offset)
	sql := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) CountTransactions(ctx context.Context, filter models.TransactionFilter) (int64, error) {
	where, args := transactionFilterClause(filter)
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&n)
	return n, err
}
