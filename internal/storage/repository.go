package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"billsplit/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists the monthly record store. Every mutation writes
// the whole store in a single transaction: the table always mirrors the
// latest snapshot, so undo and redo persist for free.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReplaceAll overwrites the stored snapshot with the given records.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, records []core.MonthlyRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM monthly_records`); err != nil {
		return fmt.Errorf("clear monthly records: %w", err)
	}

	const insert = `
		INSERT INTO monthly_records (month, total_bill, expected, paid, balance_carry_forward)
		VALUES (?, ?, ?, ?, ?)`

	for _, rec := range records {
		expected, err := json.Marshal(rec.Expected)
		if err != nil {
			return fmt.Errorf("encode expected shares for %s: %w", rec.Month, err)
		}
		paid, err := json.Marshal(rec.Paid)
		if err != nil {
			return fmt.Errorf("encode payments for %s: %w", rec.Month, err)
		}
		carry, err := json.Marshal(rec.BalanceCarryForward)
		if err != nil {
			return fmt.Errorf("encode balances for %s: %w", rec.Month, err)
		}

		if _, err := tx.ExecContext(ctx, insert,
			rec.Month, rec.TotalBill.String(), string(expected), string(paid), string(carry)); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.Month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Ledger snapshot persisted", "records", len(records))
	return nil
}

// LoadAll returns every stored record, in storage order. Callers sort by
// month date themselves.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.MonthlyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT month, total_bill, expected, paid, balance_carry_forward
		FROM monthly_records`)
	if err != nil {
		return nil, fmt.Errorf("query monthly records: %w", err)
	}
	defer rows.Close()

	var records []core.MonthlyRecord
	for rows.Next() {
		var (
			rec                   core.MonthlyRecord
			bill                  string
			expected, paid, carry []byte
		)
		if err := rows.Scan(&rec.Month, &bill, &expected, &paid, &carry); err != nil {
			return nil, fmt.Errorf("scan monthly record: %w", err)
		}

		rec.TotalBill, err = decimal.NewFromString(bill)
		if err != nil {
			return nil, fmt.Errorf("decode total bill for %s: %w", rec.Month, err)
		}
		if err := json.Unmarshal(expected, &rec.Expected); err != nil {
			return nil, fmt.Errorf("decode expected shares for %s: %w", rec.Month, err)
		}
		if err := json.Unmarshal(paid, &rec.Paid); err != nil {
			return nil, fmt.Errorf("decode payments for %s: %w", rec.Month, err)
		}
		if err := json.Unmarshal(carry, &rec.BalanceCarryForward); err != nil {
			return nil, fmt.Errorf("decode balances for %s: %w", rec.Month, err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly records: %w", err)
	}

	return records, nil
}
