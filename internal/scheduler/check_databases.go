package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sharpe/internal/database"
	"github.com/aristath/sharpe/internal/utils"
	"github.com/rs/zerolog"
)

// historyRetention is how long job executions are kept
const historyRetention = 30 * 24 * time.Hour

// CheckDatabasesJob verifies database integrity, checkpoints the WAL and
// prunes old job history
type CheckDatabasesJob struct {
	databases []*database.DB
	history   *HistoryRepository
	log       zerolog.Logger
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob. history may be nil.
func NewCheckDatabasesJob(databases []*database.DB, history *HistoryRepository, log zerolog.Logger) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		databases: databases,
		history:   history,
		log:       log.With().Str("job", "check_databases").Logger(),
	}
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run executes the database checks
func (j *CheckDatabasesJob) Run() error {
	defer utils.OperationTimer("check_databases", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		// Corruption cannot be repaired automatically
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed health check: %w", db.Name(), err)
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, walFrames, checkpointed int
		err := db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &walFrames, &checkpointed)
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to checkpoint WAL")
			continue
		}
		if busy != 0 {
			j.log.Warn().Str("database", db.Name()).Msg("WAL checkpoint blocked by active readers")
		}

		j.log.Debug().
			Str("database", db.Name()).
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("Database OK")
	}

	if j.history != nil {
		if _, err := j.history.Prune(time.Now().Add(-historyRetention)); err != nil {
			return err
		}
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("Database checks passed")
	return nil
}
