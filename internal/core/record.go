package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeBill       = errors.New("negative bill amount")
	ErrZeroWeightUnits    = errors.New("total weight units is zero")
	ErrInvalidMonthLabel  = errors.New("invalid month label")
	ErrBillNotPositive    = errors.New("bill amount must be positive")
	ErrMonthRequired      = errors.New("month not selected")
	ErrUnknownParticipant = errors.New("unknown participant")
)

// MonthlyRecord is the unit of ledger history, keyed by its month label.
// Records are replaced wholesale on re-save, never edited field by field.
type MonthlyRecord struct {
	Month               string          `json:"month"`
	TotalBill           decimal.Decimal `json:"totalBill"`
	Expected            Balances        `json:"expected"`
	Paid                Balances        `json:"paid"`
	BalanceCarryForward Balances        `json:"balanceCarryForward"`
}

// Clone returns an independent copy of the record.
func (r MonthlyRecord) Clone() MonthlyRecord {
	out := r
	out.Expected = r.Expected.Clone()
	out.Paid = r.Paid.Clone()
	out.BalanceCarryForward = r.BalanceCarryForward.Clone()
	return out
}

// Date parses the record's month label into its calendar position.
func (r MonthlyRecord) Date() (time.Time, error) {
	return ParseMonthLabel(r.Month)
}

var monthIndex = map[string]time.Month{
	"January":   time.January,
	"February":  time.February,
	"March":     time.March,
	"April":     time.April,
	"May":       time.May,
	"June":      time.June,
	"July":      time.July,
	"August":    time.August,
	"September": time.September,
	"October":   time.October,
	"November":  time.November,
	"December":  time.December,
}

// MonthLabel joins a month name and year into the canonical "Month YYYY"
// label, validating both parts.
func MonthLabel(month string, year int) (string, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return "", ErrMonthRequired
	}
	if _, ok := monthIndex[month]; !ok {
		return "", fmt.Errorf("%w: unknown month %q", ErrInvalidMonthLabel, month)
	}
	if year <= 0 {
		return "", fmt.Errorf("%w: year %d", ErrInvalidMonthLabel, year)
	}
	return fmt.Sprintf("%s %d", month, year), nil
}

// ParseMonthLabel parses a "Month YYYY" label into the first day of that
// month. This is the only ordering the ledger recognizes; insertion order is
// never meaningful.
func ParseMonthLabel(label string) (time.Time, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, ErrMonthRequired
	}
	parts := strings.Fields(label)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonthLabel, label)
	}
	m, ok := monthIndex[parts[0]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrInvalidMonthLabel, parts[0])
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year <= 0 {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrInvalidMonthLabel, parts[1])
	}
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC), nil
}

// ComputeExpectedShares splits a total bill across the weight table.
//
// Each participant's expected contribution is
// round2(totalBill / totalWeightUnits * weight), where totalWeightUnits is
// always derived from the table itself.
func ComputeExpectedShares(totalBill decimal.Decimal, weights map[ParticipantID]int64) (Balances, error) {
	if totalBill.IsNegative() {
		return nil, ErrNegativeBill
	}
	units := TotalWeightUnits(weights)
	if units == 0 {
		return nil, ErrZeroWeightUnits
	}
	perUnit := totalBill.Div(decimal.NewFromInt(units))
	expected := make(Balances, len(weights))
	for id, w := range weights {
		expected[id] = Round2(perUnit.Mul(decimal.NewFromInt(w)))
	}
	return expected, nil
}

// BuildRecord finalizes a month from user input and the balances carried in
// from the chronologically last saved month.
//
// For every participant p:
//
//	totalDue[p] = round2(expected[p] + priorBalances[p])
//	carry[p]    = round2(totalDue[p] - paid[p])
//
// A record is only valid with a syntactically valid month label and a
// strictly positive bill; both are rejected before anything is computed.
func BuildRecord(monthLabel string, totalBill decimal.Decimal, paid, priorBalances Balances, weights map[ParticipantID]int64) (MonthlyRecord, error) {
	if _, err := ParseMonthLabel(monthLabel); err != nil {
		return MonthlyRecord{}, err
	}
	if totalBill.Sign() <= 0 {
		return MonthlyRecord{}, ErrBillNotPositive
	}
	for id := range paid {
		if _, ok := weights[id]; !ok {
			return MonthlyRecord{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
		}
	}

	expected, err := ComputeExpectedShares(totalBill, weights)
	if err != nil {
		return MonthlyRecord{}, err
	}

	normPaid := make(Balances, len(weights))
	carry := make(Balances, len(weights))
	for id := range weights {
		p := Round2(paid.Get(id))
		normPaid[id] = p
		totalDue := Round2(expected[id].Add(priorBalances.Get(id)))
		carry[id] = Round2(totalDue.Sub(p))
	}

	return MonthlyRecord{
		Month:               strings.TrimSpace(monthLabel),
		TotalBill:           Round2(totalBill),
		Expected:            expected,
		Paid:                normPaid,
		BalanceCarryForward: carry,
	}, nil
}
