// Package core provides the balance-carry-forward ledger domain: the fixed
// participant group, monetary rounding, expected-share computation and the
// monthly record builder.
//
// All monetary values are decimals rounded to 2 places at every computation
// point. The rounding rule is half away from zero.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Ledger files store amounts as plain JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

var ErrInvalidAmount = errors.New("invalid amount")

// Round2 rounds a monetary value to 2 decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount converts a decimal string to a monetary value.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds to 2 places. Negative values are rejected; zero is allowed because
// a participant may have paid nothing in a given month.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return Round2(d), nil
}

// Balances maps each participant to a signed monetary value. Positive means
// the participant still owes, negative means credit, zero means settled.
type Balances map[ParticipantID]decimal.Decimal

// ZeroBalances returns a settled balance table covering every participant in
// the weight table.
func ZeroBalances(weights map[ParticipantID]int64) Balances {
	b := make(Balances, len(weights))
	for id := range weights {
		b[id] = decimal.Zero
	}
	return b
}

// Get returns the balance for id, treating a missing entry as zero.
func (b Balances) Get(id ParticipantID) decimal.Decimal {
	if v, ok := b[id]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for id, v := range b {
		out[id] = v
	}
	return out
}

// Equal reports whether both tables hold the same numeric values for the
// same participants.
func (b Balances) Equal(o Balances) bool {
	if len(b) != len(o) {
		return false
	}
	for id, v := range b {
		ov, ok := o[id]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
