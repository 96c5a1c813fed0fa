package oracle

import (
	"fmt"

	"github.com/ayo6706/custodial-ledger/internal/domain"
)

func unavailable(code string) error {
	return fmt.Errorf("no usd rate for %s: %w", code, domain.ErrPriceUnavailable)
}
