package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"billsplit/internal/core"
	"billsplit/internal/mirror/memory"
	"billsplit/internal/storage"
	"billsplit/internal/worker"
)

func newService(t *testing.T) *LedgerService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc, err := NewLedgerService(context.Background(), repo, nil, nil, nil)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func newMirroredService(t *testing.T) (*LedgerService, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	store := memory.New()
	svc, err := NewLedgerService(context.Background(), repo, nil, store, worker.NewPusher(store))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, store
}

func TestSaveMonthCarriesForward(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	paidJan := core.Balances{
		core.NI: decimal.NewFromInt(400),
		core.AM: decimal.NewFromInt(400),
		core.AD: decimal.NewFromInt(200),
		core.SB: decimal.NewFromInt(100),
	}
	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), paidJan); err != nil {
		t.Fatalf("save January: %v", err)
	}

	if got := svc.LatestBalances().Get(core.SB); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("SB balance after January = %s, want 100", got)
	}

	// February's expected share for SB is 100; with the 100 carried over,
	// paying nothing doubles the debt.
	feb, err := svc.SaveMonth(ctx, "February", 2024, decimal.NewFromInt(600), nil)
	if err != nil {
		t.Fatalf("save February: %v", err)
	}
	if !feb.BalanceCarryForward.Get(core.SB).Equal(decimal.NewFromInt(200)) {
		t.Fatalf("SB carry for February = %s, want 200", feb.BalanceCarryForward.Get(core.SB))
	}
}

func TestSaveMonthValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.SaveMonth(ctx, "", 2024, decimal.NewFromInt(100), nil); !errors.Is(err, core.ErrMonthRequired) {
		t.Fatalf("empty month: got %v", err)
	}
	if _, err := svc.SaveMonth(ctx, "Smarch", 2024, decimal.NewFromInt(100), nil); !errors.Is(err, core.ErrInvalidMonthLabel) {
		t.Fatalf("bogus month: got %v", err)
	}
	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.Zero, nil); !errors.Is(err, core.ErrBillNotPositive) {
		t.Fatalf("zero bill: got %v", err)
	}
}

func TestDeleteAbsentMonthIsFullNoop(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	rev := svc.Revision()

	if err := svc.DeleteMonth(ctx, "August 2031"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if svc.Revision() != rev {
		t.Fatalf("deleting an absent month must not change state")
	}
	if svc.CanRedo() {
		t.Fatalf("no-op delete must not touch the undo stacks")
	}
}

func TestUndoRedoPersist(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := svc.Undo(ctx)
	if err != nil || !ok {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	if len(svc.Records()) != 0 {
		t.Fatalf("undo should restore the empty ledger")
	}

	ok, err = svc.Redo(ctx)
	if err != nil || !ok {
		t.Fatalf("redo: ok=%v err=%v", ok, err)
	}
	if len(svc.Records()) != 1 {
		t.Fatalf("redo should restore January")
	}

	// Exhausted stacks report false without error.
	if ok, err := svc.Redo(ctx); ok || err != nil {
		t.Fatalf("redo on empty future: ok=%v err=%v", ok, err)
	}
}

func TestConnectMirrorAdoptsRemote(t *testing.T) {
	svc, store := newMirroredService(t)
	ctx := context.Background()

	weights := core.DefaultWeights()
	remote, err := core.BuildRecord("July 2025", decimal.NewFromInt(900), nil, core.ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("build remote record: %v", err)
	}
	store.Seed([]core.MonthlyRecord{remote})

	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveMonth(ctx, "February", 2024, decimal.NewFromInt(600), nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	adopted, err := svc.ConnectMirror(ctx, true)
	if err != nil || !adopted {
		t.Fatalf("connect: adopted=%v err=%v", adopted, err)
	}
	records := svc.Records()
	if len(records) != 1 || records[0].Month != "July 2025" {
		t.Fatalf("remote ledger not adopted, got %+v", records)
	}

	// Adoption bypasses the undo stacks: undo lands on the state from
	// before the last local mutation, not on the replaced snapshot.
	if ok, err := svc.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo after adoption: ok=%v err=%v", ok, err)
	}
	if records := svc.Records(); len(records) != 1 || records[0].Month != "January 2024" {
		t.Fatalf("undo should land on the pre-February state, got %+v", records)
	}
}

func TestConnectMirrorKeepLocal(t *testing.T) {
	svc, store := newMirroredService(t)
	ctx := context.Background()

	weights := core.DefaultWeights()
	remote, err := core.BuildRecord("July 2025", decimal.NewFromInt(900), nil, core.ZeroBalances(weights), weights)
	if err != nil {
		t.Fatalf("build remote record: %v", err)
	}
	store.Seed([]core.MonthlyRecord{remote})

	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	adopted, err := svc.ConnectMirror(ctx, false)
	if err != nil || adopted {
		t.Fatalf("connect: adopted=%v err=%v", adopted, err)
	}
	if records := svc.Records(); len(records) != 1 || records[0].Month != "January 2024" {
		t.Fatalf("local ledger should be kept, got %+v", records)
	}

	// The remote file is overwritten with the local state on the next push.
	if err := svc.SyncNow(ctx); err != nil {
		t.Fatalf("sync now: %v", err)
	}
	remoteRecords := store.Records()
	if len(remoteRecords) != 1 || remoteRecords[0].Month != "January 2024" {
		t.Fatalf("remote not overwritten with local state, got %+v", remoteRecords)
	}
}

func TestConnectMirrorPublishesWhenRemoteAbsent(t *testing.T) {
	svc, store := newMirroredService(t)
	ctx := context.Background()

	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	adopted, err := svc.ConnectMirror(ctx, true)
	if err != nil || adopted {
		t.Fatalf("connect: adopted=%v err=%v", adopted, err)
	}

	if err := svc.SyncNow(ctx); err != nil {
		t.Fatalf("sync now: %v", err)
	}
	remote := store.Records()
	if len(remote) != 1 || remote[0].Month != "January 2024" {
		t.Fatalf("local ledger not published, got %+v", remote)
	}
}

func TestSyncNowWithoutMirror(t *testing.T) {
	svc := newService(t)
	if err := svc.SyncNow(context.Background()); !errors.Is(err, ErrMirrorUnavailable) {
		t.Fatalf("expected ErrMirrorUnavailable, got %v", err)
	}
}

func TestLedgerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc, err := NewLedgerService(ctx, repo, nil, nil, nil)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if _, err := svc.SaveMonth(ctx, "January", 2024, decimal.NewFromInt(1200), nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	repo2, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("reopen repository: %v", err)
	}
	svc2, err := NewLedgerService(ctx, repo2, nil, nil, nil)
	if err != nil {
		t.Fatalf("recreate service: %v", err)
	}
	defer svc2.Close()

	if records := svc2.Records(); len(records) != 1 || records[0].Month != "January 2024" {
		t.Fatalf("ledger lost across restart, got %+v", records)
	}
	// Undo stacks are in-memory only and start empty after a restart.
	if svc2.CanUndo() {
		t.Fatalf("undo stack should not survive a restart")
	}
}
