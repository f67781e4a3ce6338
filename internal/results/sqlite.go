package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

// SQLite keeps every result in a local history table.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bundle_results (
			attempt_id TEXT PRIMARY KEY,
			trigger_tx_hash TEXT NOT NULL,
			companion_tx_hash TEXT,
			target_block INTEGER NOT NULL,
			min_timestamp INTEGER,
			max_timestamp INTEGER,
			success BOOLEAN NOT NULL,
			bundle_status TEXT NOT NULL,
			error TEXT,
			record TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	return nil
}

func (s *SQLite) Save(ctx context.Context, r bundlecore.Result) error {
	rec, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bundle_results (attempt_id, trigger_tx_hash, companion_tx_hash, target_block, min_timestamp, max_timestamp, success, bundle_status, error, record, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET
			success = excluded.success,
			bundle_status = excluded.bundle_status,
			error = excluded.error,
			record = excluded.record,
			recorded_at = excluded.recorded_at
	`, r.AttemptID, r.TriggerTxHash, r.CompanionTx.Hash, r.TargetBlock, r.MinTimestamp, r.MaxTimestamp,
		r.Success, string(r.BundleStatus), r.Error, string(rec), r.Timestamp)
	return err
}

// List returns the most recent results first.
func (s *SQLite) List(ctx context.Context, limit int) ([]bundlecore.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM bundle_results ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bundlecore.Result
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r bundlecore.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Status returns the stored status of an attempt.
func (s *SQLite) Status(ctx context.Context, attemptID string) (bundlecore.OutcomeStatus, bool, error) {
	var st string
	err := s.db.QueryRowContext(ctx, `SELECT bundle_status FROM bundle_results WHERE attempt_id = ?`, attemptID).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return bundlecore.OutcomeStatus(st), true, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
