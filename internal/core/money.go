// Package core provides the domain types shared by the insight engine.
//
// This file contains the Money type and helpers for parsing monetary
// amounts from strings. All arithmetic is exact decimal arithmetic.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for stored amounts.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Money is a non-negative fixed-point amount.
type Money struct {
	Amount decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money {
	return Money{Amount: decimal.Zero}
}

// NewMoney creates Money from a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{Amount: d}
}

// MoneyFromInt creates Money from a whole number of units.
func MoneyFromInt(units int64) Money {
	return Money{Amount: decimal.NewFromInt(units)}
}

// MustMoney parses s and panics on failure. Intended for tests and constants.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney converts a decimal string to Money with half-up rounding to two places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs are rejected,
// zero is accepted since budgets and goals may legitimately be empty.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,34")  -> 12.34
//	ParseMoney("12.345") -> 12.35 (rounds up)
//	ParseMoney("12.344") -> 12.34
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d.Round(MoneyScale)}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount)}
}

// Sub returns m - other. The result may be negative.
func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount.Sub(other.Amount)}
}

// Cmp compares m and other, see decimal.Decimal.Cmp.
func (m Money) Cmp(other Money) int {
	return m.Amount.Cmp(other.Amount)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// String renders the amount with two fractional digits.
func (m Money) String() string {
	return m.Amount.StringFixed(MoneyScale)
}

// Validate checks that the amount is not negative.
func (m Money) Validate() error {
	if m.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Percent returns part/whole as a percentage. The ratio is rounded half-up to
// four places before scaling, so the result carries at most two decimals.
// A zero whole yields zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.DivRound(whole, 4).Mul(hundred)
}

// FormatPercent renders a percentage half-up to two decimal places, without the sign.
func FormatPercent(p decimal.Decimal) string {
	return p.StringFixed(2)
}
