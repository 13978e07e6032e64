package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

//goland:noinspection SqlWithoutWhere
var clearDatabaseStatements = []string{
	`DELETE FROM results;`,
	`DELETE FROM runs;`,
}

// ClearDatabase removes every stored run.
func ClearDatabase(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear database tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range clearDatabaseStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear database tables: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear database tx: %w", err)
	}

	return nil
}

// DeleteRunsBefore removes runs started before cutoff and returns how many were removed.
// Results are deleted explicitly since foreign_keys is per connection.
func DeleteRunsBefore(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete runs tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ts := timeToUnixMillis(cutoff)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM results WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)
	`, ts); err != nil {
		return 0, fmt.Errorf("delete old results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete runs tx: %w", err)
	}

	return n, nil
}
