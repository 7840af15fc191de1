package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"billsplit/internal/amqp"
	"billsplit/internal/core"
	"billsplit/internal/ledger"
	"billsplit/internal/mirror"
	"billsplit/internal/storage"
	"billsplit/internal/worker"
)

// ErrMirrorUnavailable is returned by sync operations when no remote mirror
// has been configured.
var ErrMirrorUnavailable = errors.New("mirror not configured")

// LedgerService orchestrates ledger mutations across the in-memory timeline,
// SQLite, the remote mirror and AMQP. A single mutex serializes mutations so
// every push and persisted snapshot reflects one committed state.
type LedgerService struct {
	mu       sync.Mutex
	timeline *ledger.Timeline
	weights  map[core.ParticipantID]int64

	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	mirror     mirror.Store
	pusher     *worker.Pusher
}

// NewLedgerService loads the persisted ledger and wires the optional
// collaborators. amqpClient, mirrorStore and pusher may be nil; the service
// then runs local-only.
func NewLedgerService(ctx context.Context, repo *storage.SQLiteRepository, amqpClient *amqp.Client, mirrorStore mirror.Store, pusher *worker.Pusher) (*LedgerService, error) {
	records, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	slog.InfoContext(ctx, "Ledger loaded", "records", len(records))

	return &LedgerService{
		timeline:   ledger.NewTimeline(ledger.NewHistory(records)),
		weights:    core.DefaultWeights(),
		storage:    repo,
		amqpClient: amqpClient,
		mirror:     mirrorStore,
		pusher:     pusher,
	}, nil
}

// SaveMonth builds a record for the given month and upserts it. The prior
// balances fed into the record are the carry-forward of the chronologically
// latest record at the time of the save, so months entered out of order
// still settle against the most recent state.
func (s *LedgerService) SaveMonth(ctx context.Context, month string, year int, totalBill decimal.Decimal, paid core.Balances) (core.MonthlyRecord, error) {
	label, err := core.MonthLabel(month, year)
	if err != nil {
		return core.MonthlyRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.timeline.Current().LatestBalances(s.weights)
	rec, err := core.BuildRecord(label, totalBill, paid, prior, s.weights)
	if err != nil {
		return core.MonthlyRecord{}, err
	}

	next := s.timeline.Current().Upsert(rec)
	if err := s.storage.ReplaceAll(ctx, next.Records()); err != nil {
		return core.MonthlyRecord{}, fmt.Errorf("persist ledger: %w", err)
	}
	s.timeline.Apply(func(ledger.History) ledger.History { return next })

	s.afterMutateLocked(ctx, "save", label)
	return rec, nil
}

// DeleteMonth removes the record for the given label. Deleting an absent
// month is a complete no-op: nothing is persisted, pushed or recorded on
// the undo stack.
func (s *LedgerService) DeleteMonth(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.timeline.Current()
	if !cur.Contains(label) {
		slog.InfoContext(ctx, "Delete for absent month ignored", "month", label)
		return nil
	}

	next := cur.Remove(label)
	if err := s.storage.ReplaceAll(ctx, next.Records()); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	s.timeline.Apply(func(ledger.History) ledger.History { return next })

	s.afterMutateLocked(ctx, "delete", label)
	return nil
}

// Undo steps the ledger back one mutation. Returns false when there is
// nothing to undo.
func (s *LedgerService) Undo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.timeline.Undo()
	if !ok {
		return false, nil
	}
	if err := s.storage.ReplaceAll(ctx, h.Records()); err != nil {
		s.timeline.Redo()
		return false, fmt.Errorf("persist ledger: %w", err)
	}

	s.afterMutateLocked(ctx, "undo", "")
	return true, nil
}

// Redo re-applies the most recently undone mutation. Returns false when
// there is nothing to redo.
func (s *LedgerService) Redo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.timeline.Redo()
	if !ok {
		return false, nil
	}
	if err := s.storage.ReplaceAll(ctx, h.Records()); err != nil {
		s.timeline.Undo()
		return false, fmt.Errorf("persist ledger: %w", err)
	}

	s.afterMutateLocked(ctx, "redo", "")
	return true, nil
}

// ConnectMirror establishes the link with the remote ledger. When a remote
// copy exists and adopt is true its contents replace the local ledger (the
// remote is the shared source of truth across devices); with adopt false,
// or no remote copy at all, the local ledger is pushed up instead. Reports
// whether a remote ledger was adopted.
func (s *LedgerService) ConnectMirror(ctx context.Context, adopt bool) (bool, error) {
	if s.mirror == nil || s.pusher == nil {
		return false, ErrMirrorUnavailable
	}

	file, err := s.mirror.FindLedgerFile(ctx)
	if err != nil {
		return false, fmt.Errorf("connect mirror: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if file == nil {
		slog.InfoContext(ctx, "No remote ledger found, publishing local state")
		s.pusher.Enqueue(s.timeline.Current().SortedByDate())
		return false, nil
	}

	s.pusher.SetFileID(file.ID)

	if !adopt {
		slog.InfoContext(ctx, "Keeping local ledger, overwriting remote",
			"file_id", file.ID)
		s.pusher.Enqueue(s.timeline.Current().SortedByDate())
		return false, nil
	}

	adoptedHistory := ledger.NewHistory(file.Records)
	if err := s.storage.ReplaceAll(ctx, adoptedHistory.Records()); err != nil {
		return false, fmt.Errorf("persist adopted ledger: %w", err)
	}
	// Reset bypasses the undo stacks: the replaced local snapshot is not
	// recorded, only the states from before earlier mutations remain.
	s.timeline.Reset(adoptedHistory)

	slog.InfoContext(ctx, "Adopted remote ledger",
		"file_id", file.ID,
		"records", len(file.Records))
	return true, nil
}

// SyncNow pushes the current snapshot synchronously and reports the result,
// unlike the background pusher which only logs failures.
func (s *LedgerService) SyncNow(ctx context.Context) error {
	if s.pusher == nil {
		return ErrMirrorUnavailable
	}

	s.mu.Lock()
	records := s.timeline.Current().SortedByDate()
	s.mu.Unlock()

	s.pusher.Enqueue(records)
	return s.pusher.Flush(ctx)
}

// Records returns the ledger in chronological order.
func (s *LedgerService) Records() []core.MonthlyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Current().SortedByDate()
}

// LatestBalances returns the carry-forward of the chronologically latest
// month, or all-zero balances for an empty ledger.
func (s *LedgerService) LatestBalances() core.Balances {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Current().LatestBalances(s.weights)
}

// Revision identifies the current ledger state; it changes on every
// mutation, undo, redo and adoption.
func (s *LedgerService) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Revision()
}

func (s *LedgerService) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.CanUndo()
}

func (s *LedgerService) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.CanRedo()
}

// afterMutateLocked fans the committed state out to the mirror queue and
// AMQP. Both are best-effort: the local commit already succeeded.
func (s *LedgerService) afterMutateLocked(ctx context.Context, op, month string) {
	if s.pusher != nil {
		s.pusher.Enqueue(s.timeline.Current().SortedByDate())
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.PublishLedgerUpdate(ctx, op, month, s.timeline.Revision()); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ledger update",
				"op", op, "month", month, "error", err)
			// Don't fail the request - the ledger is saved locally
		}
	}
}

// Close closes storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
