package optimization

import "math"

// budgetTolerance is the largest |Σw - 1| accepted from the quadratic solver.
const budgetTolerance = 1e-9

// UniformWeights returns the equal-weight portfolio 1/n.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// acceptFinite reports whether w is a usable weight vector for n assets.
func acceptFinite(w []float64, n int) bool {
	return len(w) == n && isFinite(w)
}

// acceptBudget additionally requires the weights to sum to one.
func acceptBudget(w []float64, n int) bool {
	if !acceptFinite(w, n) {
		return false
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	return math.Abs(sum-1) <= budgetTolerance
}
