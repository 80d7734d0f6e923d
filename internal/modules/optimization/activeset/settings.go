// Package activeset minimizes smooth functions subject to box bounds and dense
// linear equality/inequality constraints with a working-set method.
//
// Constraints use the dense representation shared with the portfolio solvers:
// every row of Settings.Constraints is [a_1 ... a_n, b] and Settings.Types holds
// the relation of each row (LessOrEqual, Equal or GreaterOrEqual):
//
//	a·x <= b  (-1)
//	a·x  = b  ( 0)
//	a·x >= b  ( 1)
//
// Zero tolerances in Settings select automatic defaults.
package activeset

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Relation codes of the dense constraint representation.
const (
	LessOrEqual    = -1
	Equal          = 0
	GreaterOrEqual = 1
)

const (
	defaultDiffStep          = 1e-6
	defaultGradientThreshold = 1e-8
	defaultQuadraticGradient = 1e-10
	defaultFunctionThreshold = 1e-15
	defaultStepThreshold     = 1e-14
	minIterations            = 1000
	iterationsPerVariable    = 200
	stallLimit               = 10

	// feasibilityTolerance is the largest constraint violation accepted for a start point.
	feasibilityTolerance = 1e-9
	// activeTolerance is the distance under which a bound or inequality counts as active.
	activeTolerance = 1e-10
	// multiplierTolerance guards constraint release against gradient noise.
	multiplierTolerance = 1e-9
)

var (
	// ErrInfeasible is returned when no point satisfies the bounds and constraints.
	ErrInfeasible = errors.New("activeset: constraints are infeasible")
	// ErrDimension is returned when settings do not match the problem size.
	ErrDimension = errors.New("activeset: dimension mismatch")
	// ErrNotFinite is returned when problem data contains NaN or Inf.
	ErrNotFinite = errors.New("activeset: non-finite problem data")
)

// Problem is a smooth objective. Grad may be nil, in which case the gradient is
// approximated with central finite differences.
type Problem struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// Settings configures a minimization.
type Settings struct {
	// Lower and Upper are per-variable bounds. Nil means unbounded.
	Lower, Upper []float64

	// Constraints is an m×(n+1) matrix of linear constraints and Types holds
	// one relation code per row. A nil matrix means no linear constraints.
	Constraints *mat.Dense
	Types       []int

	// DiffStep is the finite-difference step used when Problem.Grad is nil.
	DiffStep float64

	// GradientThreshold stops the method once the infinity norm of the
	// projected gradient falls below it and no constraint can be released.
	GradientThreshold float64
	// FunctionThreshold stops the method after repeated iterations whose
	// relative decrease is below it.
	FunctionThreshold float64
	// StepThreshold stops the method after repeated steps shorter than it.
	StepThreshold float64
	// MaxIterations bounds the number of major iterations.
	MaxIterations int

	// AutoScale rescales variables by the inverse square root of the quadratic
	// term's diagonal before solving. Used by MinimizeQuadratic only.
	AutoScale bool
}

// Result is the outcome of a minimization.
type Result struct {
	X      []float64
	F      float64
	Status optimize.Status
	optimize.Stats
}

func (s *Settings) gradientThreshold(quadratic bool) float64 {
	if s.GradientThreshold > 0 {
		return s.GradientThreshold
	}
	if quadratic {
		return defaultQuadraticGradient
	}
	return defaultGradientThreshold
}

func (s *Settings) functionThreshold() float64 {
	if s.FunctionThreshold > 0 {
		return s.FunctionThreshold
	}
	return defaultFunctionThreshold
}

func (s *Settings) stepThreshold() float64 {
	if s.StepThreshold > 0 {
		return s.StepThreshold
	}
	return defaultStepThreshold
}

func (s *Settings) maxIterations(n int) int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return max(minIterations, iterationsPerVariable*n)
}

func (s *Settings) diffStep() float64 {
	if s.DiffStep > 0 {
		return s.DiffStep
	}
	return defaultDiffStep
}
