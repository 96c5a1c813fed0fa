package service

import (
	"errors"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// newReference builds a sortable, unique transaction reference such as WD-01HV....
func newReference(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

// notFound maps a missing row to domain.ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
