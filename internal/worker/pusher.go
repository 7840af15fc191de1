package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"billsplit/internal/core"
	"billsplit/internal/mirror"
)

// Pusher mirrors ledger snapshots to the remote store, one push at a time.
// Enqueue never blocks: a snapshot queued while a push is in flight replaces
// any snapshot still waiting, so the remote always converges on the latest
// committed state and intermediate states may be skipped.
type Pusher struct {
	store mirror.Store

	mu      sync.Mutex
	pending []core.MonthlyRecord
	hasWork bool
	fileID  string

	wake chan struct{}
}

func NewPusher(store mirror.Store) *Pusher {
	return &Pusher{
		store: store,
		wake:  make(chan struct{}, 1),
	}
}

// SetFileID installs a known remote file ID, e.g. after adopting a remote
// ledger, so the first push updates instead of re-searching.
func (p *Pusher) SetFileID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileID = id
}

// Enqueue schedules a snapshot for upload, superseding any queued one.
func (p *Pusher) Enqueue(records []core.MonthlyRecord) {
	p.mu.Lock()
	p.pending = records
	p.hasWork = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run pushes queued snapshots until the context is cancelled. Push failures
// are logged and the snapshot stays queued for the next wake-up; local state
// is already committed, so nothing is lost.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for {
			records, ok := p.take()
			if !ok {
				break
			}
			if err := p.push(ctx, records); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.requeue(records)
				slog.ErrorContext(ctx, "Ledger push failed, will retry on next change",
					"error", err,
					"auth", errors.Is(err, mirror.ErrAuth))
				break
			}
		}
	}
}

// Flush pushes the queued snapshot synchronously. Used by the manual sync
// endpoint, where the caller wants the error instead of a log line.
func (p *Pusher) Flush(ctx context.Context) error {
	records, ok := p.take()
	if !ok {
		return nil
	}
	if err := p.push(ctx, records); err != nil {
		p.requeue(records)
		return err
	}
	return nil
}

func (p *Pusher) take() ([]core.MonthlyRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasWork {
		return nil, false
	}
	records := p.pending
	p.pending = nil
	p.hasWork = false
	return records, true
}

// requeue restores a failed snapshot unless a newer one arrived meanwhile.
func (p *Pusher) requeue(records []core.MonthlyRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasWork {
		p.pending = records
		p.hasWork = true
	}
}

func (p *Pusher) push(ctx context.Context, records []core.MonthlyRecord) error {
	p.mu.Lock()
	fileID := p.fileID
	p.mu.Unlock()

	if fileID == "" {
		file, err := p.store.FindLedgerFile(ctx)
		if err != nil {
			return err
		}
		if file == nil {
			id, err := p.store.CreateLedgerFile(ctx, records)
			if err != nil {
				return err
			}
			p.SetFileID(id)
			slog.InfoContext(ctx, "Created remote ledger", "file_id", id, "records", len(records))
			return nil
		}
		fileID = file.ID
		p.SetFileID(fileID)
	}

	if err := p.store.UpdateLedgerFile(ctx, fileID, records); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Pushed ledger snapshot", "file_id", fileID, "records", len(records))
	return nil
}
