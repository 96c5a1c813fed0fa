package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept on ledger amounts.
const AmountScale int32 = 8

// ParseAmount parses a decimal string and requires it to be strictly positive.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount: %w", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, ErrInvalidAmount)
	}
	if err := RequirePositive(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// RequirePositive fails with ErrInvalidAmount unless d > 0.
func RequirePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("amount %s must be greater than zero: %w", d.String(), ErrInvalidAmount)
	}
	return nil
}

// RoundAmount truncates d to AmountScale fractional digits.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountScale)
}

// RoundUSD rounds a USD valuation to cents.
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
