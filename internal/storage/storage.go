// Package storage provides the SQLite-backed run ledger and the edge
// notification history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/polyedge/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath, keeping at most maxRuns
// ledger entries. An empty dbPath defaults to $TMPDIR/polyedge/ledger.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polyedge", "ledger.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if maxRuns < 1 {
		maxRuns = 10000
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			stage        TEXT NOT NULL,
			source       TEXT NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT,
			inputs       TEXT NOT NULL DEFAULT '[]',
			output       TEXT,
			files_read   INTEGER NOT NULL DEFAULT 0,
			processed    INTEGER NOT NULL DEFAULT 0,
			skipped      INTEGER NOT NULL DEFAULT 0,
			written      INTEGER NOT NULL DEFAULT 0,
			skip_reasons TEXT NOT NULL DEFAULT '{}',
			counters     TEXT NOT NULL DEFAULT '{}',
			started_at   INTEGER NOT NULL,
			duration_ns  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_stage_started ON runs(stage, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			key        TEXT PRIMARY KEY,
			phase      TEXT NOT NULL,
			conviction REAL NOT NULL,
			sent_at    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun inserts run, assigning an ID when it has none, and trims the
// ledger to the newest maxRuns entries.
func (s *Storage) RecordRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	inputs, err := json.Marshal(nonNilStrings(run.Inputs))
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	reasons, err := json.Marshal(nonNilCounts(run.SkipReasons))
	if err != nil {
		return fmt.Errorf("failed to marshal skip reasons: %w", err)
	}
	counters, err := json.Marshal(nonNilCounts(run.Counters))
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, stage, source, status, error, inputs, output, files_read, processed,
			 skipped, written, skip_reasons, counters, started_at, duration_ns)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Stage, string(run.Source), string(run.Status), run.Error,
		string(inputs), run.Output, run.FilesRead, run.Processed,
		run.Skipped, run.Written, string(reasons), string(counters),
		run.StartedAt.UnixNano(), int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns); err != nil {
		return fmt.Errorf("failed to enforce run cap: %w", err)
	}

	return tx.Commit()
}

// GetRun returns one ledger entry.
func (s *Storage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. An empty stage lists every
// stage.
func (s *Storage) ListRuns(ctx context.Context, stage string, limit int) ([]*models.Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE (? = '' OR stage = ?)
		ORDER BY started_at DESC LIMIT ?`, stage, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkNotified records that the given edges were sent at n.SentAt, replacing
// any earlier record for the same key.
func (s *Storage) MarkNotified(ctx context.Context, ns []models.Notification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, n := range ns {
		if n.Key == "" {
			return fmt.Errorf("notification key must not be empty")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO notifications (key, phase, conviction, sent_at)
			VALUES (?,?,?,?)`,
			n.Key, string(n.Phase), n.Conviction, n.SentAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to record notification: %w", err)
		}
	}
	return tx.Commit()
}

// NotifiedSince returns the keys among keys that were notified at or after
// since.
func (s *Storage) NotifiedSince(ctx context.Context, keys []string, since time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, k := range keys {
		var sentAt int64
		err := s.db.QueryRowContext(ctx, `SELECT sent_at FROM notifications WHERE key = ?`, k).Scan(&sentAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query notification: %w", err)
		}
		if sentAt >= since.UnixNano() {
			out[k] = true
		}
	}
	return out, nil
}

// PruneNotifications drops notification records older than before.
func (s *Storage) PruneNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE sent_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return res.RowsAffected()
}

const runCols = `id, stage, source, status, error, inputs, output, files_read, processed,
	skipped, written, skip_reasons, counters, started_at, duration_ns`

func scanRun(scan func(...any) error) (*models.Run, error) {
	var r models.Run
	var source, status string
	var errText, output sql.NullString
	var inputs, reasons, counters string
	var startedAtNano, durationNano int64
	err := scan(
		&r.ID, &r.Stage, &source, &status, &errText, &inputs, &output,
		&r.FilesRead, &r.Processed, &r.Skipped, &r.Written,
		&reasons, &counters, &startedAtNano, &durationNano,
	)
	if err != nil {
		return nil, err
	}
	r.Source = models.Source(source)
	r.Status = models.RunStatus(status)
	r.Error = errText.String
	r.Output = output.String
	if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &r.SkipReasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skip reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(counters), &r.Counters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
	}
	r.StartedAt = time.Unix(0, startedAtNano)
	r.Duration = time.Duration(durationNano)
	return &r, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilCounts(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}
