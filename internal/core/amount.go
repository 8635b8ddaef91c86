// Package core holds the domain model shared by the record store, the
// reconciliation client and the export worker: record kinds, monetary
// amounts and the error taxonomy.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed decimal monetary value. It serializes as a plain JSON
// number, which is what the record store wire format uses.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal as an Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// AmountFromFloat builds an Amount from a float64. Intended for tests and
// chart plumbing; parsed user input should go through ParseAmount.
func AmountFromFloat(f float64) Amount {
	return Amount{Decimal: decimal.NewFromFloat(f)}
}

// ParseAmount parses user-submitted amount text into an Amount.
// Input is trimmed first; empty or non-numeric text yields a
// ValidationError. Any finite decimal is accepted, negatives included.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, &ValidationError{Field: "amount", Reason: "empty"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &ValidationError{Field: "amount", Reason: "not a number"}
	}
	return Amount{Decimal: d}, nil
}

// MarshalJSON emits the amount as an unquoted number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts both bare numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Float64 returns the amount as a float64 for chart rendering. Calculations
// stay on the decimal representation.
func (a Amount) Float64() float64 {
	f, _ := a.Decimal.Float64()
	return f
}

// Equal reports whether two amounts have the same numeric value.
func (a Amount) Equal(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}

// GoalProgress derives a goal's completion percentage from the amount saved
// so far against the target, clamped to [0, 100]. A non-positive target
// reads as already met once anything is saved.
func GoalProgress(savings, target Amount) float64 {
	if target.Decimal.Sign() <= 0 {
		if savings.Decimal.Sign() > 0 {
			return 100
		}
		return 0
	}
	p := savings.Decimal.Div(target.Decimal).InexactFloat64() * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
