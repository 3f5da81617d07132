package util

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS account_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	checks INTEGER NOT NULL,
	records INTEGER NOT NULL,
	object_key TEXT,
	status TEXT NOT NULL,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_account_runs_account ON account_runs(account_id);`

// Ledger keeps a local record of processed accounts in SQLite.
type Ledger struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(ctx context.Context, path string, log *zap.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	if _, err := db.ExecContext(ctx, ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init ledger schema: %w", err)
	}
	return &Ledger{db: db, log: log.Named("ledger")}, nil
}

// Record appends one account run.
func (l *Ledger) Record(ctx context.Context, run models.AccountRun) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO account_runs(run_id, account_id, checks, records, object_key, status, error, started_at, finished_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		run.RunID, run.AccountID, run.Checks, run.Records, run.ObjectKey, run.Status, run.Error,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run for %s: %w", run.AccountID, err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.AccountRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, account_id, checks, records, COALESCE(object_key, ''), status, COALESCE(error, ''), started_at, finished_at
		 FROM account_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AccountRun
	for rows.Next() {
		var r models.AccountRun
		var started, finished int64
		if err := rows.Scan(&r.RunID, &r.AccountID, &r.Checks, &r.Records, &r.ObjectKey, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
