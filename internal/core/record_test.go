package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseMonthLabel(t *testing.T) {
	cases := []struct {
		in   string
		year int
		mon  time.Month
		ok   bool
	}{
		{"January 2024", 2024, time.January, true},
		{"December 1999", 1999, time.December, true},
		{" March 2025 ", 2025, time.March, true},
		{"Jan 2024", 0, 0, false},
		{"January", 0, 0, false},
		{"January 0", 0, 0, false},
		{"January -3", 0, 0, false},
		{"January 2024 extra", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMonthLabel(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q unexpected error: %v", tc.in, err)
			}
			if got.Year() != tc.year || got.Month() != tc.mon {
				t.Fatalf("%q parsed as %v", tc.in, got)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMonthLabel(t *testing.T) {
	label, err := MonthLabel("February", 2024)
	if err != nil || label != "February 2024" {
		t.Fatalf("expected 'February 2024', got %q (err=%v)", label, err)
	}
	if _, err := MonthLabel("", 2024); !errors.Is(err, ErrMonthRequired) {
		t.Fatalf("expected ErrMonthRequired, got %v", err)
	}
	if _, err := MonthLabel("Febtober", 2024); !errors.Is(err, ErrInvalidMonthLabel) {
		t.Fatalf("expected ErrInvalidMonthLabel, got %v", err)
	}
	if _, err := MonthLabel("February", 0); !errors.Is(err, ErrInvalidMonthLabel) {
		t.Fatalf("expected ErrInvalidMonthLabel for year 0, got %v", err)
	}
}

func TestComputeExpectedShares(t *testing.T) {
	weights := DefaultWeights()

	expected, err := ComputeExpectedShares(dec("1200"), weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Balances{NI: dec("400"), AM: dec("400"), AD: dec("200"), SB: dec("200")}
	if !expected.Equal(want) {
		t.Fatalf("expected %v, got %v", want, expected)
	}

	if _, err := ComputeExpectedShares(dec("-1"), weights); !errors.Is(err, ErrNegativeBill) {
		t.Fatalf("expected ErrNegativeBill, got %v", err)
	}
	if _, err := ComputeExpectedShares(dec("100"), map[ParticipantID]int64{}); !errors.Is(err, ErrZeroWeightUnits) {
		t.Fatalf("expected ErrZeroWeightUnits, got %v", err)
	}
}

// The shares of any non-negative bill must sum back to the rounded bill
// within half a cent per participant.
func TestExpectedSharesSumProperty(t *testing.T) {
	weights := DefaultWeights()
	tolerance := dec("0.005").Mul(decimal.NewFromInt(int64(len(weights))))

	for _, bill := range []string{"0", "0.01", "1", "100", "599.99", "1234.56", "2000.01", "33333.33"} {
		expected, err := ComputeExpectedShares(dec(bill), weights)
		if err != nil {
			t.Fatalf("bill %s: %v", bill, err)
		}
		sum := decimal.Zero
		for _, v := range expected {
			sum = sum.Add(v)
		}
		diff := sum.Sub(Round2(dec(bill))).Abs()
		if diff.GreaterThan(tolerance) {
			t.Fatalf("bill %s: shares sum %s drifts %s from bill", bill, sum, diff)
		}
	}
}

func TestBuildRecordFirstMonth(t *testing.T) {
	weights := DefaultWeights()
	paid := Balances{NI: dec("400"), AM: dec("400"), AD: dec("200"), SB: dec("200")}

	rec, err := BuildRecord("January 2024", dec("1200"), paid, ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Month != "January 2024" {
		t.Fatalf("month label mangled: %q", rec.Month)
	}
	wantExpected := Balances{NI: dec("400"), AM: dec("400"), AD: dec("200"), SB: dec("200")}
	if !rec.Expected.Equal(wantExpected) {
		t.Fatalf("expected shares %v, got %v", wantExpected, rec.Expected)
	}
	if !rec.BalanceCarryForward.Equal(ZeroBalances(weights)) {
		t.Fatalf("fully paid month should settle everyone, got %v", rec.BalanceCarryForward)
	}
}

func TestBuildRecordCarriesPriorBalance(t *testing.T) {
	weights := DefaultWeights()
	prior := Balances{NI: dec("0"), AM: dec("0"), AD: dec("0"), SB: dec("100")}
	paid := Balances{NI: dec("200"), AM: dec("200"), AD: dec("100"), SB: dec("0")}

	rec, err := BuildRecord("February 2024", dec("600"), paid, prior, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantExpected := Balances{NI: dec("200"), AM: dec("200"), AD: dec("100"), SB: dec("100")}
	if !rec.Expected.Equal(wantExpected) {
		t.Fatalf("expected shares %v, got %v", wantExpected, rec.Expected)
	}
	wantCarry := Balances{NI: dec("0"), AM: dec("0"), AD: dec("0"), SB: dec("200")}
	if !rec.BalanceCarryForward.Equal(wantCarry) {
		t.Fatalf("expected carry %v, got %v", wantCarry, rec.BalanceCarryForward)
	}
}

func TestBuildRecordOverpaymentBecomesCredit(t *testing.T) {
	weights := DefaultWeights()
	paid := Balances{NI: dec("500"), AM: dec("400"), AD: dec("200"), SB: dec("200")}

	rec, err := BuildRecord("March 2024", dec("1200"), paid, ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.BalanceCarryForward.Get(NI).Equal(dec("-100")) {
		t.Fatalf("expected -100 credit for NI, got %s", rec.BalanceCarryForward.Get(NI))
	}
}

func TestBuildRecordMissingPaidEntriesDefaultToZero(t *testing.T) {
	weights := DefaultWeights()
	rec, err := BuildRecord("April 2024", dec("600"), Balances{NI: dec("200")}, ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Paid.Get(SB).IsZero() {
		t.Fatalf("missing paid entry should normalize to zero")
	}
	if !rec.BalanceCarryForward.Get(SB).Equal(dec("100")) {
		t.Fatalf("SB should owe their full 100 share, got %s", rec.BalanceCarryForward.Get(SB))
	}
}

func TestBuildRecordRejections(t *testing.T) {
	weights := DefaultWeights()
	zero := ZeroBalances(weights)

	cases := []struct {
		name  string
		label string
		bill  string
		paid  Balances
		want  error
	}{
		{"empty month", "", "100", nil, ErrMonthRequired},
		{"bad month", "Smarch 2024", "100", nil, ErrInvalidMonthLabel},
		{"zero bill", "January 2024", "0", nil, ErrBillNotPositive},
		{"negative bill", "January 2024", "-5", nil, ErrBillNotPositive},
		{"unknown participant", "January 2024", "100", Balances{"XX": dec("1")}, ErrUnknownParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildRecord(tc.label, dec(tc.bill), tc.paid, zero, weights)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// Re-running the builder with identical inputs must yield an identical
// record.
func TestBuildRecordDeterministic(t *testing.T) {
	weights := DefaultWeights()
	paid := Balances{NI: dec("123.45"), AM: dec("100"), AD: dec("50.55"), SB: dec("0")}
	prior := Balances{NI: dec("-10"), AM: dec("20"), AD: dec("0"), SB: dec("33.33")}

	a, err := BuildRecord("May 2025", dec("777.77"), paid, prior, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := BuildRecord("May 2025", dec("777.77"), paid, prior, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Expected.Equal(b.Expected) || !a.Paid.Equal(b.Paid) || !a.BalanceCarryForward.Equal(b.BalanceCarryForward) {
		t.Fatalf("identical inputs produced different records")
	}
}
