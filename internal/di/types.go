/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"errors"

	"github.com/aristath/sharpe/internal/database"
	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/messaging"
	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/aristath/sharpe/internal/reliability"
	"github.com/aristath/sharpe/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	RunsDB  *database.DB // Optimization runs
	CacheDB *database.DB // Ephemeral operational data (job history)

	// Events and client messaging
	EventBus     *events.Bus
	EventManager *events.Manager
	Messaging    *messaging.Handler // SSE packet queue for the optimizer session

	// Repositories
	RunRepo    *optimization.RunRepository
	JobHistory *scheduler.HistoryRepository

	// Services
	ReturnsCalculator *optimization.ReturnsCalculator
	OptimizerService  *optimization.OptimizerService
	Archiver          *reliability.S3Archiver // Run archive (optional)
	Scheduler         *scheduler.Scheduler
}

// JobInstances holds the registered jobs
type JobInstances struct {
	CheckDatabases *scheduler.CheckDatabasesJob
	OptimizeFile   *scheduler.OptimizeFileJob // Nil unless a returns file is configured
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.RunsDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops background work and closes the databases
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Messaging != nil {
		c.Messaging.Stop()
	}

	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
