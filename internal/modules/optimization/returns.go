package optimization

import (
	"fmt"
	"math"
	"strings"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// ReturnsModel selects how expected returns are derived when a request does
// not supply them.
type ReturnsModel string

const (
	// ReturnsModelMean uses the sample mean of every asset.
	ReturnsModelMean ReturnsModel = "mean"
	// ReturnsModelEMA weights recent periods more through an exponential moving average.
	ReturnsModelEMA ReturnsModel = "ema"
)

// DefaultEMAPeriod is the EMA length used when none is configured.
const DefaultEMAPeriod = 20

// ParseReturnsModel parses a returns model name.
func ParseReturnsModel(s string) (ReturnsModel, error) {
	switch m := ReturnsModel(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ReturnsModelMean:
		return ReturnsModelMean, nil
	case ReturnsModelEMA:
		return m, nil
	}
	return "", fmt.Errorf("unknown returns model %q", s)
}

// ReturnsCalculator derives expected returns from historical returns.
type ReturnsCalculator struct {
	model  ReturnsModel
	period int
	log    zerolog.Logger
}

// NewReturnsCalculator creates a returns calculator.
func NewReturnsCalculator(model ReturnsModel, period int, log zerolog.Logger) *ReturnsCalculator {
	if period < 2 {
		period = DefaultEMAPeriod
	}
	return &ReturnsCalculator{
		model:  model,
		period: period,
		log:    log.With().Str("component", "returns").Logger(),
	}
}

// Model returns the configured model.
func (rc *ReturnsCalculator) Model() ReturnsModel {
	return rc.model
}

// ExpectedReturns returns per-asset expected returns for a validated T×N
// matrix. For the mean model it returns nil so that the problem uses the
// sample means it already computes.
func (rc *ReturnsCalculator) ExpectedReturns(historicalReturns [][]float64) []float64 {
	if rc.model != ReturnsModelEMA || len(historicalReturns) == 0 {
		return nil
	}

	n := len(historicalReturns[0])
	expected := make([]float64, n)
	column := make([]float64, len(historicalReturns))
	for j := 0; j < n; j++ {
		for t, row := range historicalReturns {
			column[t] = row[j]
		}
		expected[j] = rc.emaLast(column)
	}
	return expected
}

// emaLast returns the last EMA value of the series. Series shorter than the
// period, or an EMA that is not finite, fall back to the plain mean.
func (rc *ReturnsCalculator) emaLast(values []float64) float64 {
	if len(values) < rc.period {
		return stat.Mean(values, nil)
	}
	ema := talib.Ema(values, rc.period)
	if len(ema) == 0 {
		return stat.Mean(values, nil)
	}
	last := ema[len(ema)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		rc.log.Debug().Int("period", rc.period).Msg("EMA not finite, using mean")
		return stat.Mean(values, nil)
	}
	return last
}
