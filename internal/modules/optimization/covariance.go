package optimization

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EstimateMoments returns the sample covariance matrix (normalized by T-1) and
// the per-asset mean of a T×N matrix of periodic returns.
//
// Assets whose returns never change get exactly zero covariance with every
// other asset, so degenerate series do not leave rounding residue behind.
func EstimateMoments(returns mat.Matrix) (*mat.SymDense, []float64) {
	t, n := returns.Dims()

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, returns, nil)

	means := make([]float64, n)
	col := make([]float64, t)
	for j := 0; j < n; j++ {
		mat.Col(col, j, returns)
		means[j] = stat.Mean(col, nil)
		if floats.Max(col) == floats.Min(col) {
			for k := 0; k < n; k++ {
				cov.SetSym(j, k, 0)
			}
		}
	}
	return cov, means
}

// CovarianceFromRows estimates the covariance matrix of row-major returns.
// Rows must have equal length; see ValidateReturns.
func CovarianceFromRows(historicalReturns [][]float64) *mat.SymDense {
	cov, _ := EstimateMoments(returnsMatrix(historicalReturns))
	return cov
}

func returnsMatrix(historicalReturns [][]float64) *mat.Dense {
	t := len(historicalReturns)
	n := len(historicalReturns[0])
	m := mat.NewDense(t, n, nil)
	for i, row := range historicalReturns {
		m.SetRow(i, row)
	}
	return m
}
