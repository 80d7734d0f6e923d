package optimization

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultHistoryLimit caps history listings when no limit is given.
const DefaultHistoryLimit = 50

// MaxHistoryLimit is the largest number of runs a single listing returns.
const MaxHistoryLimit = 500

// RunRepository stores optimization runs in the runs database.
// Weight and symbol vectors are stored as msgpack blobs.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repository", "optimization_runs").Logger(),
	}
}

// Save inserts a run.
func (r *RunRepository) Save(run *Run) error {
	weights, err := msgpack.Marshal(run.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	var symbols []byte
	if len(run.Symbols) > 0 {
		if symbols, err = msgpack.Marshal(run.Symbols); err != nil {
			return fmt.Errorf("failed to encode symbols: %w", err)
		}
	}

	_, err = r.db.Exec(`
		INSERT INTO optimization_runs (
			id, solver, status, fallback, asset_count, period_count, symbols, weights,
			expected_excess_return, volatility, sharpe, iterations, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Solver, run.Status, run.Fallback, run.AssetCount, run.PeriodCount, symbols, weights,
		run.Metrics.ExpectedExcessReturn, run.Metrics.Volatility, run.Metrics.Sharpe,
		run.Iterations, run.Duration.Milliseconds(), run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Msg("Saved optimization run")
	return nil
}

const selectRun = `
	SELECT id, solver, status, fallback, asset_count, period_count, symbols, weights,
		expected_excess_return, volatility, sharpe, iterations, duration_ms, created_at
	FROM optimization_runs`

// GetLatest returns the most recent run, or nil when there is none.
func (r *RunRepository) GetLatest() (*Run, error) {
	row := r.db.QueryRow(selectRun + ` ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// GetByID returns the run with the given id, or nil when it does not exist.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	rows, err := r.db.Query(selectRun+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run        Run
		symbols    []byte
		weights    []byte
		durationMs int64
		createdAt  int64
	)
	err := s.Scan(
		&run.ID, &run.Solver, &run.Status, &run.Fallback, &run.AssetCount, &run.PeriodCount,
		&symbols, &weights,
		&run.Metrics.ExpectedExcessReturn, &run.Metrics.Volatility, &run.Metrics.Sharpe,
		&run.Iterations, &durationMs, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(weights, &run.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights of run %s: %w", run.ID, err)
	}
	if len(symbols) > 0 {
		if err := msgpack.Unmarshal(symbols, &run.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode symbols of run %s: %w", run.ID, err)
		}
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &run, nil
}
