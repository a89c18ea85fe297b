package journal

import (
	"context"
	"fmt"
	"time"
)

// RecordRun inserts a run summary and returns its row ID.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (seed, tasks, finished, cancelled, errors, anomalies, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Seed, run.Tasks, run.Finished, run.Cancelled, run.Errors,
		run.Anomalies, run.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run ID: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, seed, tasks, finished, cancelled, errors, anomalies, duration_ms, recorded_at
		FROM runs ORDER BY recorded_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.Seed, &r.Tasks, &r.Finished, &r.Cancelled,
			&r.Errors, &r.Anomalies, &durationMS, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
