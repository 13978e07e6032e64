package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from user_version i to i+1.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS runs (
		run_id           TEXT PRIMARY KEY,
		port             TEXT NOT NULL DEFAULT '',
		started_at       INTEGER NOT NULL,
		finished_at      INTEGER NOT NULL DEFAULT 0,
		spectra          INTEGER NOT NULL,
		frequency_points INTEGER NOT NULL,
		expected         INTEGER NOT NULL,
		received         INTEGER NOT NULL,
		timed_out        INTEGER NOT NULL DEFAULT 0,
		stop_status      INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS results (
		run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		frequency_id INTEGER NOT NULL,
		real_part    REAL NOT NULL,
		imag_part    REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`,
	`
	ALTER TABLE runs ADD COLUMN setup_json TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs(started_at);
	`,
	// NaN results are stored as NULL.
	`
	CREATE TABLE results_v3 (
		run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		frequency_id INTEGER NOT NULL,
		real_part    REAL,
		imag_part    REAL,
		PRIMARY KEY (run_id, seq)
	);
	INSERT INTO results_v3(run_id, seq, frequency_id, real_part, imag_part)
		SELECT run_id, seq, frequency_id, real_part, imag_part FROM results;
	DROP TABLE results;
	ALTER TABLE results_v3 RENAME TO results;
	`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v+1, err)
		}
	}

	return nil
}
