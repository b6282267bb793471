package models

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// ErrInvalidPrice is returned by ParsePrice for non-positive, over-precise
// or unrepresentable amounts.
var ErrInvalidPrice = errors.New("invalid price")

// PriceToCents converts a major-unit amount to minor units, rounding half away from zero.
func PriceToCents(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}

// CentsToPrice converts minor units back to the major-unit amount.
func CentsToPrice(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParsePrice parses a submitted price such as "19.99".
// Amounts must be positive, carry at most two decimal places and fit in
// int64 cents.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrap(ErrInvalidPrice, err.Error())
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "%s is not positive", s)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "%s has more than two decimals", s)
	}
	if d.Mul(hundred).GreaterThan(maxCents) {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "%s is too large", s)
	}
	return d, nil
}
