package optimization

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const archiveTimeout = 30 * time.Second

// OptimizerService runs optimizations and records their results.
// The repository, notifier, archiver and event emitter are optional.
type OptimizerService struct {
	solvers       map[string]Solver
	defaultSolver string
	riskFreeRate  float64
	returnsCalc   *ReturnsCalculator
	repo          RunRepositoryInterface
	notifier      Notifier
	archiver      Archiver
	events        EventEmitter
	log           zerolog.Logger

	// mu is held from solve through save, so stored history is in
	// CreatedAt order.
	mu sync.Mutex
}

// NewOptimizerService creates an optimizer service. defaultSolver must name
// one of solvers.
func NewOptimizerService(
	solvers []Solver,
	defaultSolver string,
	riskFreeRate float64,
	returnsCalc *ReturnsCalculator,
	repo RunRepositoryInterface,
	log zerolog.Logger,
) (*OptimizerService, error) {
	byName := make(map[string]Solver, len(solvers))
	for _, s := range solvers {
		byName[s.Name()] = s
	}
	if _, ok := byName[defaultSolver]; !ok {
		return nil, fmt.Errorf("default solver %q is not registered", defaultSolver)
	}
	return &OptimizerService{
		solvers:       byName,
		defaultSolver: defaultSolver,
		riskFreeRate:  riskFreeRate,
		returnsCalc:   returnsCalc,
		repo:          repo,
		log:           log.With().Str("component", "optimizer_service").Logger(),
	}, nil
}

// SetNotifier sets the client notifier.
func (s *OptimizerService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetArchiver sets the run archiver.
func (s *OptimizerService) SetArchiver(a Archiver) {
	s.archiver = a
}

// SetEventManager sets the event emitter.
func (s *OptimizerService) SetEventManager(e EventEmitter) {
	s.events = e
}

// DefaultSolver returns the solver used when a request names none.
func (s *OptimizerService) DefaultSolver() string {
	return s.defaultSolver
}

// Solvers returns the registered solver names, sorted.
func (s *OptimizerService) Solvers() []string {
	names := make([]string, 0, len(s.solvers))
	for name := range s.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run validates the request, solves it and records the result. Errors are
// returned only for invalid input or storage failures; numerical failures
// produce a run with uniform weights and Fallback set.
func (s *OptimizerService) Run(ctx context.Context, req Request) (*Run, error) {
	solverName := req.Solver
	if solverName == "" {
		solverName = s.defaultSolver
	}

	run, err := s.solveAndSave(solverName, req)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("solver", run.Solver).
		Str("status", run.Status).
		Bool("fallback", run.Fallback).
		Int("assets", run.AssetCount).
		Float64("sharpe", run.Metrics.Sharpe).
		Dur("duration", run.Duration).
		Msg("Optimization completed")

	s.emit(events.OptimizationCompleted, &events.OptimizationCompletedData{
		RunID:    run.ID,
		Solver:   run.Solver,
		Status:   run.Status,
		Fallback: run.Fallback,
		Weights:  run.Weights,
		Sharpe:   run.Metrics.Sharpe,
		Duration: run.Duration.Seconds(),
	})

	if s.notifier != nil {
		s.notifier.Send(&messaging.WeightsPacket{
			RunID:     run.ID,
			Solver:    run.Solver,
			Symbols:   run.Symbols,
			Weights:   run.Weights,
			Sharpe:    run.Metrics.Sharpe,
			Fallback:  run.Fallback,
			Timestamp: run.CreatedAt,
		})
	}

	if s.archiver != nil {
		actx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(actx, run); err != nil {
			// The run is already stored locally; a failed upload is not fatal.
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to archive optimization run")
		}
	}

	return run, nil
}

func (s *OptimizerService) solveAndSave(solverName string, req Request) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.solve(solverName, req)
	if err != nil {
		s.log.Warn().Err(err).Str("solver", solverName).Msg("Optimization rejected")
		s.emit(events.OptimizationFailed, &events.OptimizationFailedData{Solver: solverName, Error: err.Error()})
		return nil, err
	}

	if s.repo != nil {
		if err := s.repo.Save(run); err != nil {
			return nil, fmt.Errorf("failed to save optimization run: %w", err)
		}
	}
	return run, nil
}

func (s *OptimizerService) solve(solverName string, req Request) (*Run, error) {
	solver, ok := s.solvers[solverName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown solver %q", ErrInvalidInput, solverName)
	}
	if err := ValidateReturns(req.HistoricalReturns); err != nil {
		return nil, err
	}
	assets := len(req.HistoricalReturns[0])
	if req.Symbols != nil && len(req.Symbols) != assets {
		return nil, fmt.Errorf("%w: %d symbols for %d assets", ErrInvalidInput, len(req.Symbols), assets)
	}

	expected := req.ExpectedReturns
	if expected == nil && s.returnsCalc != nil {
		expected = s.returnsCalc.ExpectedReturns(req.HistoricalReturns)
	}

	problem, err := NewProblem(req.HistoricalReturns, expected, s.riskFreeRate)
	if err != nil {
		return nil, err
	}

	s.emit(events.OptimizationStarted, &events.OptimizationStartedData{
		Solver:  solverName,
		Assets:  assets,
		Periods: len(req.HistoricalReturns),
		Symbols: req.Symbols,
	})

	start := time.Now()
	solution := solver.Solve(problem)
	return &Run{
		ID:          uuid.NewString(),
		Solver:      solverName,
		Status:      solution.Status.String(),
		Fallback:    solution.Fallback,
		AssetCount:  assets,
		PeriodCount: len(req.HistoricalReturns),
		Symbols:     req.Symbols,
		Weights:     solution.Weights,
		Metrics:     problem.Metrics(solution.Weights),
		Iterations:  solution.Iterations,
		Duration:    time.Since(start),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *OptimizerService) emit(eventType events.EventType, data events.EventData) {
	if s.events != nil {
		s.events.EmitTyped(eventType, "optimization", data)
	}
}

// Latest returns the most recent run, or nil when none is stored.
func (s *OptimizerService) Latest() (*Run, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetLatest()
}

// History returns up to limit runs, newest first.
func (s *OptimizerService) History(limit int) ([]Run, error) {
	if s.repo == nil {
		return []Run{}, nil
	}
	return s.repo.List(limit)
}

// Get returns the run with the given id, or nil when it does not exist.
func (s *OptimizerService) Get(id string) (*Run, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetByID(id)
}
