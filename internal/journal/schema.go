package journal

import "context"

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed INTEGER NOT NULL,
		tasks INTEGER NOT NULL,
		finished INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		anomalies INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
