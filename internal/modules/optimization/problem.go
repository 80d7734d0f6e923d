package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidInput marks malformed optimizer input: empty or ragged return
// series, fewer than two periods, non-finite values or mismatched lengths.
var ErrInvalidInput = errors.New("invalid optimizer input")

// sentinelObjective replaces the negated Sharpe ratio wherever it is undefined.
const sentinelObjective = 1e300

// Problem is the immutable input of a Sharpe maximization: the covariance of
// asset returns and the expected returns in excess of the risk-free rate.
type Problem struct {
	covariance   *mat.SymDense
	excess       []float64
	riskFreeRate float64
}

// ValidateReturns checks that historicalReturns is a rectangular T×N matrix of
// finite values with T >= 2 and N >= 1.
func ValidateReturns(historicalReturns [][]float64) error {
	if len(historicalReturns) < 2 {
		return fmt.Errorf("%w: need at least 2 periods of returns, got %d", ErrInvalidInput, len(historicalReturns))
	}
	n := len(historicalReturns[0])
	if n == 0 {
		return fmt.Errorf("%w: no assets in return series", ErrInvalidInput)
	}
	for t, row := range historicalReturns {
		if len(row) != n {
			return fmt.Errorf("%w: period %d has %d returns, want %d", ErrInvalidInput, t, len(row), n)
		}
		if !isFinite(row) {
			return fmt.Errorf("%w: period %d contains a non-finite return", ErrInvalidInput, t)
		}
	}
	return nil
}

// NewProblem estimates the covariance from historicalReturns (T periods × N
// assets) and subtracts riskFreeRate from the expected returns. When
// expectedReturns is nil the sample mean of every asset is used instead.
func NewProblem(historicalReturns [][]float64, expectedReturns []float64, riskFreeRate float64) (*Problem, error) {
	if err := ValidateReturns(historicalReturns); err != nil {
		return nil, err
	}
	cov, means := EstimateMoments(returnsMatrix(historicalReturns))
	if expectedReturns == nil {
		expectedReturns = means
	}
	return NewProblemFromMoments(cov, expectedReturns, riskFreeRate)
}

// NewProblemFromMoments builds a problem from a covariance matrix and
// expected returns that have already been estimated.
func NewProblemFromMoments(covariance mat.Symmetric, expectedReturns []float64, riskFreeRate float64) (*Problem, error) {
	n := covariance.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty covariance matrix", ErrInvalidInput)
	}
	if len(expectedReturns) != n {
		return nil, fmt.Errorf("%w: %d expected returns for %d assets", ErrInvalidInput, len(expectedReturns), n)
	}
	if !isFinite(expectedReturns) {
		return nil, fmt.Errorf("%w: expected returns must be finite", ErrInvalidInput)
	}
	if math.IsNaN(riskFreeRate) || math.IsInf(riskFreeRate, 0) {
		return nil, fmt.Errorf("%w: risk-free rate must be finite", ErrInvalidInput)
	}

	cov := mat.NewSymDense(n, nil)
	cov.CopySym(covariance)
	excess := make([]float64, n)
	for i, r := range expectedReturns {
		excess[i] = r - riskFreeRate
	}

	return &Problem{covariance: cov, excess: excess, riskFreeRate: riskFreeRate}, nil
}

// Size returns the number of assets.
func (p *Problem) Size() int {
	return len(p.excess)
}

// Covariance returns the covariance matrix. Callers must not modify it.
func (p *Problem) Covariance() *mat.SymDense {
	return p.covariance
}

// ExcessReturns returns a copy of the expected excess returns.
func (p *Problem) ExcessReturns() []float64 {
	out := make([]float64, len(p.excess))
	copy(out, p.excess)
	return out
}

// RiskFreeRate returns the rate subtracted from the expected returns.
func (p *Problem) RiskFreeRate() float64 {
	return p.riskFreeRate
}

// Variance returns wᵀΣw.
func (p *Problem) Variance(w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, p.covariance, v)
}

// ExcessReturn returns μ_eᵀw.
func (p *Problem) ExcessReturn(w []float64) float64 {
	return floats.Dot(p.excess, w)
}

// NegativeSharpe is the objective of the nonlinear formulation. It returns
// sentinelObjective when the portfolio variance is not positive or the ratio
// is not finite.
func (p *Problem) NegativeSharpe(w []float64) float64 {
	variance := p.Variance(w)
	if !(variance > 0) || math.IsInf(variance, 0) {
		return sentinelObjective
	}
	sharpe := p.ExcessReturn(w) / math.Sqrt(variance)
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		return sentinelObjective
	}
	return -sharpe
}

// Metrics summarizes a portfolio.
type Metrics struct {
	ExpectedExcessReturn float64 `json:"expected_excess_return"`
	Volatility           float64 `json:"volatility"`
	Sharpe               float64 `json:"sharpe"`
}

// Metrics returns the excess return, volatility and Sharpe ratio of w.
// The Sharpe ratio is zero when the volatility is zero.
func (p *Problem) Metrics(w []float64) Metrics {
	m := Metrics{ExpectedExcessReturn: p.ExcessReturn(w)}
	if variance := p.Variance(w); variance > 0 {
		m.Volatility = math.Sqrt(variance)
		m.Sharpe = m.ExpectedExcessReturn / m.Volatility
	}
	if !isFinite([]float64{m.ExpectedExcessReturn, m.Volatility, m.Sharpe}) {
		return Metrics{}
	}
	return m
}

func isFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
