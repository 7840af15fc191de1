package mirror

import (
	"context"
	"errors"

	"billsplit/internal/core"
)

// Sentinel errors for outbound sync. Adapters wrap the underlying cause with
// one of these so callers can classify failures without knowing the backend.
var (
	// ErrAuth means the backend rejected our credentials; re-running the
	// OAuth bootstrap is the fix, retrying is not.
	ErrAuth = errors.New("mirror authentication failed")

	// ErrSync covers transient backend failures; a later push can succeed.
	ErrSync = errors.New("mirror sync failed")
)

// LedgerFile is a remote copy of the record store.
type LedgerFile struct {
	ID      string
	Records []core.MonthlyRecord
}

// Store is the port for remote ledger mirrors.
type Store interface {
	// FindLedgerFile locates the remote ledger and returns its contents.
	// Returns (nil, nil) when no remote ledger exists yet.
	FindLedgerFile(ctx context.Context) (*LedgerFile, error)

	// CreateLedgerFile creates the remote ledger with the given records and
	// returns its file ID.
	CreateLedgerFile(ctx context.Context, records []core.MonthlyRecord) (fileID string, err error)

	// UpdateLedgerFile overwrites the remote ledger identified by fileID.
	UpdateLedgerFile(ctx context.Context, fileID string, records []core.MonthlyRecord) error
}
