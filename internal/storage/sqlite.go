// Package storage opens the local SQLite database that backs the dispatch
// journal.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE dispatch_log (
  id           TEXT PRIMARY KEY,
  caller       TEXT NOT NULL,
  control_code INTEGER NOT NULL,
  command      TEXT NOT NULL,
  result       INTEGER NOT NULL,
  errno        TEXT NOT NULL,
  relay_error  TEXT,
  started_at   INTEGER NOT NULL,
  duration_ns  INTEGER NOT NULL
);
CREATE INDEX dispatch_log_started_at_idx ON dispatch_log(started_at);
CREATE INDEX dispatch_log_command_idx ON dispatch_log(command, started_at);`,
}

// ErrNewerSchema means the database was written by a newer kpmd.
var ErrNewerSchema = errors.New("journal schema is newer than this binary")

// OpenSQLite opens the journal at path, creating the file and its parent
// directory when missing, and brings the schema up to date.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := checkJournalLocation(path, probeFilesystem); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// dsn sets the busy timeout and WAL mode on every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Migrate applies pending migrations inside one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	var have int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if have > len(migrations) {
		return fmt.Errorf("%w (database v%d, binary v%d)", ErrNewerSchema, have, len(migrations))
	}
	if have == len(migrations) {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := have; i < len(migrations); i++ {
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
