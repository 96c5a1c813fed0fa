package repository

import (
	"context"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
)

// Completed transaction effects per (account, currency). Swaps contribute their
// debit leg through amount and their credit leg through metadata. Deleted
// accounts keep their history but are not reconciled.
const getLedgerDrift = `
WITH effects AS (
    SELECT account_id, currency, amount
    FROM transactions
    WHERE status = 'completed'
    UNION ALL
    SELECT account_id, metadata->>'to_currency', (metadata->>'to_amount')::numeric
    FROM transactions
    WHERE status = 'completed' AND kind = 'swap'
),
expected AS (
    SELECT account_id, currency, SUM(amount) AS amount
    FROM effects
    WHERE account_id IN (SELECT id FROM accounts)
    GROUP BY account_id, currency
)
SELECT COALESCE(b.account_id, e.account_id), COALESCE(b.currency, e.currency),
       COALESCE(b.amount, 0), COALESCE(e.amount, 0)
FROM account_balances b
FULL OUTER JOIN expected e ON e.account_id = b.account_id AND e.currency = b.currency
WHERE COALESCE(b.amount, 0) <> COALESCE(e.amount, 0)
ORDER BY 1, 2`

func (q *Queries) GetLedgerDrift(ctx context.Context) ([]models.LedgerDrift, error) {
	rows, err := q.db.Query(ctx, getLedgerDrift)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerDrift
	for rows.Next() {
		var (
			d        models.LedgerDrift
			currency string
		)
		if err := rows.Scan(&d.AccountID, &currency, &d.Balance, &d.Expected); err != nil {
			return nil, err
		}
		d.Currency = domain.Currency(currency)
		out = append(out, d)
	}
	return out, rows.Err()
}
