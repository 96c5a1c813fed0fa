package repository

import (
	"encoding/json"
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/jackc/pgx/v5"
)

// Queries implements Querier over a pgx connection, pool or transaction.
type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func encodeMetadata(m models.Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

func decodeMetadata(raw []byte) (models.Metadata, error) {
	if len(raw) == 0 {
		return models.Metadata{}, nil
	}
	m := models.Metadata{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
