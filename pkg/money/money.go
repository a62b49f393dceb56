// Package money converts between stored minor-unit amounts and the decimal
// strings clients send and receive.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more decimal places than the currency allows")
	ErrOutOfRange    = errors.New("amount out of range")
)

type Currency struct {
	Code     string
	Exponent int32
}

// Parse turns "12.50" into 1250 for a currency with exponent 2.
func (c Currency) Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return c.FromDecimal(d)
}

func (c Currency) FromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Shift(c.Exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if !minor.BigInt().IsInt64() {
		return 0, ErrOutOfRange
	}
	return minor.IntPart(), nil
}

func (c Currency) ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.Exponent)
}

// Format renders minor units with exactly Exponent fraction digits.
func (c Currency) Format(minor int64) string {
	return c.ToDecimal(minor).StringFixed(c.Exponent)
}
