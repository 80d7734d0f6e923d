package optimization

import (
	"github.com/aristath/sharpe/internal/modules/optimization/activeset"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// QuadraticSharpeSolver finds the maximum Sharpe portfolio as the variance
// minimizer of yᵀΣy subject to μ_eᵀy = 1 and Σy = 1 with per-asset bounds.
//
// Both equalities are imposed on the same vector, so the problem is only
// feasible when the normalization and budget hyperplanes meet inside the
// bounds. Otherwise the solver falls back to the uniform portfolio.
type QuadraticSharpeSolver struct {
	bounds       Bounds
	riskFreeRate float64
	log          zerolog.Logger
}

// NewQuadraticSharpeSolver creates a quadratic solver.
func NewQuadraticSharpeSolver(bounds Bounds, riskFreeRate float64, log zerolog.Logger) *QuadraticSharpeSolver {
	return &QuadraticSharpeSolver{
		bounds:       bounds,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "quadratic_sharpe_solver").Logger(),
	}
}

// Name returns the solver name.
func (s *QuadraticSharpeSolver) Name() string {
	return SolverQuadratic
}

// Optimize estimates the problem from historical returns and solves it.
func (s *QuadraticSharpeSolver) Optimize(historicalReturns [][]float64, expectedReturns []float64) ([]float64, error) {
	p, err := NewProblem(historicalReturns, expectedReturns, s.riskFreeRate)
	if err != nil {
		return nil, err
	}
	return s.Solve(p).Weights, nil
}

// Solve minimizes the portfolio variance of p under the normalization and
// budget constraints. The result is accepted only when it is finite and sums
// to one within budgetTolerance.
func (s *QuadraticSharpeSolver) Solve(p *Problem) Solution {
	n := p.Size()
	constraints := ConstraintSet{
		ReturnNormalizationConstraint(p.excess),
		BudgetConstraint(n),
	}
	lower, upper := s.bounds.Vectors(n)

	result, err := activeset.MinimizeQuadratic(
		p.covariance,
		nil,
		UniformWeights(n),
		&activeset.Settings{
			Lower:       lower,
			Upper:       upper,
			Constraints: constraints.Matrix(),
			Types:       constraints.Types(),
			AutoScale:   true,
		},
	)
	if err != nil {
		s.log.Warn().Err(err).Int("assets", n).Msg("Variance minimization failed, using uniform weights")
		return Solution{Weights: UniformWeights(n), Status: optimize.Failure, Fallback: true}
	}
	if !acceptBudget(result.X, n) {
		s.log.Warn().Str("status", result.Status.String()).Int("assets", n).
			Msg("Variance minimization returned unusable weights, using uniform weights")
		return Solution{Weights: UniformWeights(n), Status: result.Status, Iterations: result.MajorIterations, Fallback: true}
	}

	s.log.Debug().
		Str("status", result.Status.String()).
		Int("iterations", result.MajorIterations).
		Float64("variance", 2*result.F).
		Msg("Variance minimization finished")

	return Solution{Weights: result.X, Status: result.Status, Iterations: result.MajorIterations}
}
