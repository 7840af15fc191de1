package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"billsplit/internal/core"
	"billsplit/internal/mirror"
)

func sampleRecords(t *testing.T) []core.MonthlyRecord {
	t.Helper()
	weights := core.DefaultWeights()
	rec, err := core.BuildRecord("January 2024", decimal.NewFromInt(1200), nil, core.ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	return []core.MonthlyRecord{rec}
}

func TestFindReturnsNilWhenAbsent(t *testing.T) {
	s := New()
	file, err := s.FindLedgerFile(context.Background())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if file != nil {
		t.Fatalf("expected nil for missing ledger, got %+v", file)
	}
}

func TestCreateThenUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.CreateLedgerFile(ctx, sampleRecords(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateLedgerFile(ctx, id, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := len(s.Records()); got != 0 {
		t.Fatalf("update should overwrite contents, got %d records", got)
	}

	if err := s.UpdateLedgerFile(ctx, "mem:999", nil); !errors.Is(err, mirror.ErrSync) {
		t.Fatalf("unknown file id should fail with ErrSync, got %v", err)
	}
}

func TestFailureInjection(t *testing.T) {
	s := New()
	s.FailWith = mirror.ErrAuth

	if _, err := s.FindLedgerFile(context.Background()); !errors.Is(err, mirror.ErrAuth) {
		t.Fatalf("expected injected ErrAuth, got %v", err)
	}
}
