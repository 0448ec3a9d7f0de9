// Package journal persists dispatch records to the dispatch_log table.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/kpmd/internal/kpm"
)

// DefaultLimit bounds Recent when no limit is given.
const DefaultLimit = 50

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Query filters Recent.
type Query struct {
	Limit   int
	Command string // empty for all commands
	Caller  string // empty for all callers
}

func (s *Store) Append(ctx context.Context, r kpm.Record) error {
	if r.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	var relay any
	if r.RelayError != "" {
		relay = r.RelayError
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(id, caller, control_code, command, result, errno, relay_error, started_at, duration_ns)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.Caller, int64(r.ControlCode), r.Command, r.Result, r.Errno, relay, r.StartedAt.UnixNano(), int64(r.Duration))
	if err != nil {
		return fmt.Errorf("append dispatch %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, q Query) ([]kpm.Record, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	var (
		where []string
		args  []any
	)
	if q.Command != "" {
		where = append(where, "command = ?")
		args = append(args, q.Command)
	}
	if q.Caller != "" {
		where = append(where, "caller = ?")
		args = append(args, q.Caller)
	}
	stmt := `SELECT id, caller, control_code, command, result, errno, relay_error, started_at, duration_ns FROM dispatch_log`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY started_at DESC, rowid DESC LIMIT ?;"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatch log: %w", err)
	}
	defer rows.Close()

	var out []kpm.Record
	for rows.Next() {
		var (
			r        kpm.Record
			code     int64
			relay    sql.NullString
			started  int64
			duration int64
		)
		if err := rows.Scan(&r.ID, &r.Caller, &code, &r.Command, &r.Result, &r.Errno, &relay, &started, &duration); err != nil {
			return nil, fmt.Errorf("scan dispatch log: %w", err)
		}
		r.ControlCode = uint64(code)
		r.RelayError = relay.String
		r.StartedAt = time.Unix(0, started).UTC()
		r.Duration = time.Duration(duration)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes records that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_log WHERE started_at < ?;`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune dispatch log: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_log;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dispatch log: %w", err)
	}
	return n, nil
}
