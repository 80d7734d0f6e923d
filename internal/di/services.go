// Package di provides dependency injection for services.
package di

import (
	"context"
	"fmt"

	"github.com/aristath/sharpe/internal/config"
	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/messaging"
	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/aristath/sharpe/internal/reliability"
	"github.com/aristath/sharpe/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates the repositories and services and wires them together
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Client messaging
	container.Messaging = messaging.NewHandler(messaging.DefaultQueueCapacity, log)

	// Repositories
	container.RunRepo = optimization.NewRunRepository(container.RunsDB.Conn(), log)
	container.JobHistory = scheduler.NewHistoryRepository(container.CacheDB.Conn(), log)

	// Optimizer
	model, err := optimization.ParseReturnsModel(cfg.Optimizer.ReturnsModel)
	if err != nil {
		return err
	}
	container.ReturnsCalculator = optimization.NewReturnsCalculator(model, cfg.Optimizer.EMAPeriod, log)

	bounds := cfg.Optimizer.Bounds()
	solvers := []optimization.Solver{
		optimization.NewNonlinearSharpeSolver(bounds, cfg.Optimizer.RiskFreeRate, log),
		optimization.NewQuadraticSharpeSolver(bounds, cfg.Optimizer.RiskFreeRate, log),
	}

	service, err := optimization.NewOptimizerService(
		solvers,
		cfg.Optimizer.Solver,
		cfg.Optimizer.RiskFreeRate,
		container.ReturnsCalculator,
		container.RunRepo,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create optimizer service: %w", err)
	}
	service.SetNotifier(container.Messaging)
	service.SetEventManager(container.EventManager)
	container.OptimizerService = service

	// Run archive (optional)
	if cfg.Archive.Enabled() {
		archiver, err := reliability.NewS3Archiver(context.Background(), reliability.ArchiveConfig{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create run archiver: %w", err)
		}
		container.Archiver = archiver
		service.SetArchiver(archiver)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Run archive enabled")
	}

	// Scheduler
	container.Scheduler = scheduler.New(log)
	container.Scheduler.SetHistory(container.JobHistory)
	container.Scheduler.SetEventManager(container.EventManager)

	return nil
}
