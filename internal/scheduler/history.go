package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sharpe/internal/utils"
	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned when a job name is not registered
var ErrJobNotFound = errors.New("job not found")

// Job execution statuses stored in the history
const (
	JobCompletedStatus = "completed"
	JobFailedStatus    = "failed"
)

// JobRecord is one job execution
type JobRecord struct {
	ID        int64         `json:"id"`
	JobName   string        `json:"job_name"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`
}

// HistoryRepository stores job executions in the cache database
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a job history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repository", "job_history").Logger(),
	}
}

// Record inserts a job execution
func (r *HistoryRepository) Record(rec JobRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := r.db.Exec(`
		INSERT INTO job_history (job_name, status, error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.JobName, rec.Status, errText, rec.Duration.Milliseconds(), rec.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", rec.JobName, err)
	}
	return nil
}

// Last returns the most recent execution of a job, or nil if it never ran
func (r *HistoryRepository) Last(jobName string) (*JobRecord, error) {
	records, err := r.Recent(jobName, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Recent returns up to limit executions of a job, newest first
func (r *HistoryRepository) Recent(jobName string, limit int) ([]JobRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, job_name, status, error, duration_ms, started_at
		FROM job_history
		WHERE job_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var (
			rec        JobRecord
			errText    sql.NullString
			durationMs int64
			startedAt  int64
		)
		if err := rows.Scan(&rec.ID, &rec.JobName, &rec.Status, &errText, &durationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job history: %w", err)
		}
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes executions older than the cutoff and returns how many were removed
func (r *HistoryRepository) Prune(olderThan time.Time) (int64, error) {
	done := utils.MeasureDBQuery("prune_job_history", r.log)

	result, err := r.db.Exec(`DELETE FROM job_history WHERE started_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune job history: %w", err)
	}
	n, _ := result.RowsAffected()
	done(n)
	return n, nil
}
