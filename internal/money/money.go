package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every balance and amount.
const Scale = 2

// MaxBalance is the largest value a numeric(15,2) column holds.
var MaxBalance = decimal.RequireFromString("9999999999999.99")

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Parse reads a decimal amount such as "10", "10.5" or "10.50".
// Signs are accepted here; positivity is the ledger's concern.
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !HasValidScale(value) {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

// HasValidScale reports whether value is representable with Scale fractional digits.
func HasValidScale(value decimal.Decimal) bool {
	return value.Equal(value.Truncate(Scale))
}

func Format(value decimal.Decimal) string {
	return value.StringFixed(Scale)
}

func IsPositive(value decimal.Decimal) bool {
	return value.GreaterThan(decimal.Zero)
}

// WithinLimit reports whether value fits a stored balance.
func WithinLimit(value decimal.Decimal) bool {
	return value.Abs().LessThanOrEqual(MaxBalance)
}
