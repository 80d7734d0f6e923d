// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/sharpe/internal/config"
	"github.com/aristath/sharpe/internal/scheduler"
	"github.com/rs/zerolog"
)

// CheckDatabasesSchedule runs the database checks daily at 03:00
const CheckDatabasesSchedule = "0 0 3 * * *"

// RegisterJobs registers all jobs with the scheduler
// Returns JobInstances for manual triggering via API
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container scheduler cannot be nil")
	}

	instances := &JobInstances{}

	// Database maintenance
	instances.CheckDatabases = scheduler.NewCheckDatabasesJob(container.Databases(), container.JobHistory, log)
	if err := container.Scheduler.AddJob(CheckDatabasesSchedule, instances.CheckDatabases); err != nil {
		return nil, fmt.Errorf("failed to register check_databases job: %w", err)
	}

	// Scheduled optimization of a returns file
	if cfg.Schedule.Enabled() {
		instances.OptimizeFile = scheduler.NewOptimizeFileJob(
			cfg.Schedule.ReturnsFile,
			cfg.Optimizer.Solver,
			container.OptimizerService,
			log,
		)
		if err := container.Scheduler.AddJob(cfg.Schedule.Cron, instances.OptimizeFile); err != nil {
			return nil, fmt.Errorf("failed to register optimize_file job: %w", err)
		}
		log.Info().
			Str("file", cfg.Schedule.ReturnsFile).
			Str("schedule", cfg.Schedule.Cron).
			Msg("Scheduled optimization enabled")
	}

	log.Info().Int("jobs", len(container.Scheduler.Jobs())).Msg("Jobs registered")

	return instances, nil
}
