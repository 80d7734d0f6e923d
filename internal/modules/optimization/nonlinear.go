package optimization

import (
	"github.com/aristath/sharpe/internal/modules/optimization/activeset"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// DefaultDiffStep is the finite-difference step of the numerical gradient.
const DefaultDiffStep = 1e-6

// NonlinearSharpeSolver maximizes wᵀμ_e / sqrt(wᵀΣw) directly, subject to
// Σw = 1 and per-asset bounds, starting from the uniform portfolio.
type NonlinearSharpeSolver struct {
	bounds       Bounds
	riskFreeRate float64
	diffStep     float64
	log          zerolog.Logger
}

// NewNonlinearSharpeSolver creates a nonlinear solver.
func NewNonlinearSharpeSolver(bounds Bounds, riskFreeRate float64, log zerolog.Logger) *NonlinearSharpeSolver {
	return &NonlinearSharpeSolver{
		bounds:       bounds,
		riskFreeRate: riskFreeRate,
		diffStep:     DefaultDiffStep,
		log:          log.With().Str("component", "nonlinear_sharpe_solver").Logger(),
	}
}

// Name returns the solver name.
func (s *NonlinearSharpeSolver) Name() string {
	return SolverNonlinear
}

// Optimize estimates the problem from historical returns and solves it.
func (s *NonlinearSharpeSolver) Optimize(historicalReturns [][]float64, expectedReturns []float64) ([]float64, error) {
	p, err := NewProblem(historicalReturns, expectedReturns, s.riskFreeRate)
	if err != nil {
		return nil, err
	}
	return s.Solve(p).Weights, nil
}

// Solve maximizes the Sharpe ratio of p. Any failure, or a result containing
// NaN or Inf, yields the uniform portfolio.
func (s *NonlinearSharpeSolver) Solve(p *Problem) Solution {
	n := p.Size()
	constraints := ConstraintSet{BudgetConstraint(n)}
	lower, upper := s.bounds.Vectors(n)

	result, err := activeset.Minimize(
		activeset.Problem{Func: p.NegativeSharpe},
		UniformWeights(n),
		&activeset.Settings{
			Lower:       lower,
			Upper:       upper,
			Constraints: constraints.Matrix(),
			Types:       constraints.Types(),
			DiffStep:    s.diffStep,
		},
	)
	if err != nil {
		s.log.Warn().Err(err).Int("assets", n).Msg("Sharpe maximization failed, using uniform weights")
		return Solution{Weights: UniformWeights(n), Status: optimize.Failure, Fallback: true}
	}
	if !acceptFinite(result.X, n) {
		s.log.Warn().Str("status", result.Status.String()).Int("assets", n).
			Msg("Sharpe maximization returned non-finite weights, using uniform weights")
		return Solution{Weights: UniformWeights(n), Status: result.Status, Iterations: result.MajorIterations, Fallback: true}
	}

	s.log.Debug().
		Str("status", result.Status.String()).
		Int("iterations", result.MajorIterations).
		Int("func_evaluations", result.FuncEvaluations).
		Float64("sharpe", -result.F).
		Msg("Sharpe maximization finished")

	return Solution{Weights: result.X, Status: result.Status, Iterations: result.MajorIterations}
}
