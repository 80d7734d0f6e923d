package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Four-period deviation patterns with zero mean and pairwise zero covariance.
var (
	patternA = []float64{1, -1, 1, -1}
	patternB = []float64{1, 1, -1, -1}
	patternC = []float64{1, -1, -1, 1}
)

// seriesWithMoments builds four periods of returns whose sample means and
// (T-1)-normalized variances equal means and variances, with zero covariance.
func seriesWithMoments(means, variances []float64) [][]float64 {
	patterns := [][]float64{patternA, patternB, patternC}
	rows := make([][]float64, 4)
	for t := range rows {
		rows[t] = make([]float64, len(means))
		for j := range means {
			// Sample variance of ±c over four periods is 4c²/3.
			c := math.Sqrt(variances[j] * 3 / 4)
			rows[t][j] = means[j] + c*patterns[j][t]
		}
	}
	return rows
}

// scenarioA has means [0.01, 0.02], variances [0.04, 0.09] and no correlation.
func scenarioA() [][]float64 {
	return seriesWithMoments([]float64{0.01, 0.02}, []float64{0.04, 0.09})
}

// tangencyWeights returns Σ⁻¹μ normalized to sum to one for diagonal Σ.
func tangencyWeights(means, variances []float64) []float64 {
	w := make([]float64, len(means))
	var sum float64
	for i := range means {
		w[i] = means[i] / variances[i]
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func assertValidWeights(t *testing.T, w []float64, n int, b Bounds) {
	t.Helper()
	if !assert.Len(t, w, n) {
		return
	}
	var sum float64
	for i, v := range w {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "weight %d is not finite", i)
		assert.GreaterOrEqual(t, v, b.Lower-1e-12, "weight %d below lower bound", i)
		assert.LessOrEqual(t, v, b.Upper+1e-12, "weight %d above upper bound", i)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func sharpeOf(p *Problem, w []float64) float64 {
	return -p.NegativeSharpe(w)
}
