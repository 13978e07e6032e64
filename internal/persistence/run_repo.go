package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/skobkin/isxgo/internal/protocol"
)

var ErrRunNotFound = errors.New("measurement run not found")

// Run is one stored measurement run without its results.
type Run struct {
	ID              string
	Port            string
	StartedAt       time.Time
	FinishedAt      time.Time
	Spectra         int
	FrequencyPoints int
	Expected        int
	Received        int
	TimedOut        bool
	StopStatus      protocol.StatusCode
	// SetupJSON is the sweep configuration the run was started with.
	SetupJSON string
}

// RunRepo stores measurement runs in SQLite.
type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save writes the run and its results in one transaction, replacing any
// earlier copy of the same run.
func (r *RunRepo) Save(ctx context.Context, run Run, results []protocol.MeasurementResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs(
			run_id, port, started_at, finished_at, spectra, frequency_points,
			expected, received, timed_out, stop_status, setup_json
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Port,
		timeToUnixMillis(run.StartedAt),
		timeToUnixMillis(run.FinishedAt),
		run.Spectra,
		run.FrequencyPoints,
		run.Expected,
		run.Received,
		boolToInt(run.TimedOut),
		int(run.StopStatus),
		run.SetupJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results(run_id, seq, frequency_id, real_part, imag_part)
		VALUES(?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, res := range results {
		if _, err := stmt.ExecContext(ctx, run.ID, i, int(res.FrequencyID), nullableFloat(res.Real), nullableFloat(res.Imaginary)); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run tx: %w", err)
	}

	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, port, started_at, finished_at, spectra, frequency_points,
			expected, received, timed_out, stop_status, setup_json
		FROM runs
		WHERE run_id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return run, err
}

// List returns the most recent runs first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, port, started_at, finished_at, spectra, frequency_points,
			expected, received, timed_out, stop_status, setup_json
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return out, nil
}

// Results returns the results of a run in arrival order.
func (r *RunRepo) Results(ctx context.Context, id string) ([]protocol.MeasurementResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT frequency_id, real_part, imag_part
		FROM results
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.MeasurementResult
	for rows.Next() {
		var (
			freqID int
			re, im sql.NullFloat64
		)
		if err := rows.Scan(&freqID, &re, &im); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, protocol.MeasurementResult{
			FrequencyID: uint16(freqID), // #nosec G115 -- stored from a uint16.
			Real:        floatOrNaN(re),
			Imaginary:   floatOrNaN(im),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  int64
		finishedAt int64
		timedOut   int
		stopStatus int
	)
	err := row.Scan(
		&run.ID,
		&run.Port,
		&startedAt,
		&finishedAt,
		&run.Spectra,
		&run.FrequencyPoints,
		&run.Expected,
		&run.Received,
		&timedOut,
		&stopStatus,
		&run.SetupJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt = unixMillisToTime(startedAt)
	run.FinishedAt = unixMillisToTime(finishedAt)
	run.TimedOut = timedOut != 0
	run.StopStatus = protocol.StatusCode(stopStatus) // #nosec G115 -- stored from a byte.

	return run, nil
}

// nullableFloat maps NaN to NULL. Infinities are stored as REAL as is.
func nullableFloat(v float32) sql.NullFloat64 {
	if math.IsNaN(float64(v)) {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: float64(v), Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float32 {
	if !v.Valid {
		return float32(math.NaN())
	}

	return float32(v.Float64)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}

	return 0
}
