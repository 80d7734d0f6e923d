// Package optimization provides maximum Sharpe ratio portfolio optimization.
package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/sharpe/internal/modules/optimization/activeset"
	"gonum.org/v1/gonum/mat"
)

// Relation is the comparison of a linear constraint.
type Relation int

const (
	Equal Relation = iota
	GreaterOrEqual
	LessOrEqual
)

// Code returns the relation code of the dense constraint representation:
// 0 for equality, 1 for greater-or-equal and -1 for less-or-equal.
func (r Relation) Code() int {
	switch r {
	case Equal:
		return activeset.Equal
	case GreaterOrEqual:
		return activeset.GreaterOrEqual
	case LessOrEqual:
		return activeset.LessOrEqual
	}
	panic(fmt.Sprintf("optimization: unknown relation %d", int(r)))
}

func (r Relation) String() string {
	switch r {
	case Equal:
		return "="
	case GreaterOrEqual:
		return ">="
	case LessOrEqual:
		return "<="
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// Constraint is the linear constraint Coefficients·w (Relation) Value.
type Constraint struct {
	Coefficients []float64
	Relation     Relation
	Value        float64
}

// Satisfied reports whether w satisfies the constraint within tol.
func (c Constraint) Satisfied(w []float64, tol float64) bool {
	var lhs float64
	for i, a := range c.Coefficients {
		lhs += a * w[i]
	}
	switch c.Relation {
	case GreaterOrEqual:
		return lhs >= c.Value-tol
	case LessOrEqual:
		return lhs <= c.Value+tol
	default:
		return math.Abs(lhs-c.Value) <= tol
	}
}

// ConstraintSet is an ordered list of linear constraints over the same weights.
type ConstraintSet []Constraint

// Matrix returns the m×(n+1) dense form: row i is [coefficients..., value].
// It returns nil for an empty set.
func (cs ConstraintSet) Matrix() *mat.Dense {
	if len(cs) == 0 {
		return nil
	}
	n := len(cs[0].Coefficients)
	m := mat.NewDense(len(cs), n+1, nil)
	for i, c := range cs {
		if len(c.Coefficients) != n {
			panic(fmt.Sprintf("optimization: constraint %d has %d coefficients, want %d", i, len(c.Coefficients), n))
		}
		m.SetRow(i, append(append(make([]float64, 0, n+1), c.Coefficients...), c.Value))
	}
	return m
}

// Types returns the relation code of every constraint, in order.
func (cs ConstraintSet) Types() []int {
	types := make([]int, len(cs))
	for i, c := range cs {
		types[i] = c.Relation.Code()
	}
	return types
}

// BudgetConstraint returns Σ w_i = 1 over n assets.
func BudgetConstraint(n int) Constraint {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return Constraint{Coefficients: ones, Relation: Equal, Value: 1}
}

// ReturnNormalizationConstraint returns Σ excess_i·y_i = 1, which pins the
// scale of the variance-minimization formulation.
func ReturnNormalizationConstraint(excessReturns []float64) Constraint {
	coefficients := make([]float64, len(excessReturns))
	copy(coefficients, excessReturns)
	return Constraint{Coefficients: coefficients, Relation: Equal, Value: 1}
}

// Bounds are the per-asset weight limits applied to every asset.
type Bounds struct {
	Lower float64
	Upper float64
}

// DefaultBounds allows shorting and leverage up to 100% per asset.
func DefaultBounds() Bounds {
	return Bounds{Lower: -1, Upper: 1}
}

// Validate checks that the bounds form a non-empty interval.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
		return fmt.Errorf("%w: bounds must not be NaN", ErrInvalidInput)
	}
	if b.Lower > b.Upper {
		return fmt.Errorf("%w: lower bound %g exceeds upper bound %g", ErrInvalidInput, b.Lower, b.Upper)
	}
	return nil
}

// Contains reports whether v lies inside the bounds.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Vectors expands the bounds to per-asset lower and upper vectors.
func (b Bounds) Vectors(n int) ([]float64, []float64) {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = b.Lower
		upper[i] = b.Upper
	}
	return lower, upper
}
