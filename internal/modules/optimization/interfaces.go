package optimization

import (
	"context"

	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/messaging"
	"gonum.org/v1/gonum/optimize"
)

// Solver names accepted by the service and the configuration.
const (
	SolverNonlinear = "nonlinear"
	SolverQuadratic = "quadratic"
)

// PortfolioOptimizer computes allocation weights from a T×N matrix of
// historical returns and optional expected returns (nil means sample means).
// Numerical failures never surface as errors; they yield fallback weights.
type PortfolioOptimizer interface {
	Optimize(historicalReturns [][]float64, expectedReturns []float64) ([]float64, error)
}

// Solver is a PortfolioOptimizer that can also solve a prepared Problem.
type Solver interface {
	PortfolioOptimizer
	Name() string
	Solve(p *Problem) Solution
}

// Solution is the outcome of a single solve.
type Solution struct {
	Weights    []float64
	Status     optimize.Status
	Iterations int
	// Fallback is set when Weights are the uniform portfolio because the
	// solver failed or produced an unusable vector.
	Fallback bool
}

// RunRepositoryInterface persists optimization runs.
type RunRepositoryInterface interface {
	Save(run *Run) error
	GetLatest() (*Run, error)
	GetByID(id string) (*Run, error)
	List(limit int) ([]Run, error)
}

// Notifier pushes packets to connected clients.
type Notifier interface {
	Send(packet messaging.Packet)
}

// Archiver stores a copy of completed runs outside the local database.
type Archiver interface {
	Archive(ctx context.Context, run *Run) error
}

// EventEmitter publishes domain events.
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}
