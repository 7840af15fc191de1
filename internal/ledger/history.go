// Package ledger holds the authoritative monthly record set and the
// undo/redo state machine wrapping every mutation of it.
package ledger

import (
	"sort"
	"time"

	"billsplit/internal/core"
)

// History is an immutable snapshot of the full record set. Mutating
// operations return a new History, which is what makes undo/redo a matter
// of keeping old values around.
type History struct {
	records []core.MonthlyRecord
}

// NewHistory builds a snapshot from records, copying them.
func NewHistory(records []core.MonthlyRecord) History {
	out := make([]core.MonthlyRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return History{records: out}
}

// Len returns the number of records in the snapshot.
func (h History) Len() int { return len(h.records) }

// Records returns a copy of the record set in storage order.
func (h History) Records() []core.MonthlyRecord {
	out := make([]core.MonthlyRecord, len(h.records))
	for i, r := range h.records {
		out[i] = r.Clone()
	}
	return out
}

// Contains reports whether a record with the given month label exists.
func (h History) Contains(monthLabel string) bool {
	for _, r := range h.records {
		if r.Month == monthLabel {
			return true
		}
	}
	return false
}

// Upsert replaces the record sharing rec's month label, or appends rec if
// that label is new. Month labels act as the primary key.
func (h History) Upsert(rec core.MonthlyRecord) History {
	out := h.Records()
	for i, r := range out {
		if r.Month == rec.Month {
			out[i] = rec.Clone()
			return History{records: out}
		}
	}
	return History{records: append(out, rec.Clone())}
}

// Remove deletes the record with the given month label. Removing an absent
// label is a no-op, not an error.
func (h History) Remove(monthLabel string) History {
	out := make([]core.MonthlyRecord, 0, len(h.records))
	for _, r := range h.records {
		if r.Month == monthLabel {
			continue
		}
		out = append(out, r.Clone())
	}
	return History{records: out}
}

// SortedByDate returns the record set ordered by the calendar date parsed
// from each month label. The set is resorted on every call; the underlying
// order is never assumed meaningful.
func (h History) SortedByDate() []core.MonthlyRecord {
	out := h.Records()
	sort.SliceStable(out, func(i, j int) bool {
		return monthDate(out[i]).Before(monthDate(out[j]))
	})
	return out
}

// LatestBalances returns the carry-forward balances of the chronologically
// last record, or a settled table when the history is empty. These are the
// prior balances for the next save.
func (h History) LatestBalances(weights map[core.ParticipantID]int64) core.Balances {
	sorted := h.SortedByDate()
	if len(sorted) == 0 {
		return core.ZeroBalances(weights)
	}
	return sorted[len(sorted)-1].BalanceCarryForward.Clone()
}

func monthDate(r core.MonthlyRecord) time.Time {
	d, err := r.Date()
	if err != nil {
		return time.Time{}
	}
	return d
}
