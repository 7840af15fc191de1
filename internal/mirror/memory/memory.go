// Package memory is an in-memory mirror.Store for tests and for running the
// server without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"billsplit/internal/core"
	"billsplit/internal/mirror"
)

type Store struct {
	mu      sync.Mutex
	fileID  string
	records []core.MonthlyRecord
	updates int

	// FailWith, when set, is returned by every call. Lets tests exercise
	// the error paths of callers.
	FailWith error
}

var _ mirror.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Seed installs a remote ledger as if a previous device had created it.
func (s *Store) Seed(records []core.MonthlyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileID = "mem:1"
	s.records = cloneRecords(records)
}

// Updates reports how many times the remote ledger has been overwritten.
func (s *Store) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Records returns a copy of the current remote contents.
func (s *Store) Records() []core.MonthlyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

// FindLedgerFile implements mirror.Store.
func (s *Store) FindLedgerFile(_ context.Context) (*mirror.LedgerFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	if s.fileID == "" {
		return nil, nil
	}
	return &mirror.LedgerFile{ID: s.fileID, Records: cloneRecords(s.records)}, nil
}

// CreateLedgerFile implements mirror.Store.
func (s *Store) CreateLedgerFile(_ context.Context, records []core.MonthlyRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	if s.fileID != "" {
		return "", fmt.Errorf("%w: ledger file already exists", mirror.ErrSync)
	}
	s.fileID = "mem:1"
	s.records = cloneRecords(records)
	return s.fileID, nil
}

// UpdateLedgerFile implements mirror.Store.
func (s *Store) UpdateLedgerFile(_ context.Context, fileID string, records []core.MonthlyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if fileID != s.fileID {
		return fmt.Errorf("%w: unknown file %s", mirror.ErrSync, fileID)
	}
	s.records = cloneRecords(records)
	s.updates++
	return nil
}

func cloneRecords(in []core.MonthlyRecord) []core.MonthlyRecord {
	out := make([]core.MonthlyRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
