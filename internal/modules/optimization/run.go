package optimization

import "time"

// Request is an optimization request.
type Request struct {
	// Solver selects the formulation; empty uses the service default.
	Solver string `json:"solver,omitempty"`
	// Symbols optionally names the assets, one per column.
	Symbols []string `json:"symbols,omitempty"`
	// HistoricalReturns is a T×N matrix: one row per period, one column per asset.
	HistoricalReturns [][]float64 `json:"historical_returns"`
	// ExpectedReturns optionally overrides the configured returns model.
	ExpectedReturns []float64 `json:"expected_returns,omitempty"`
}

// Run is a completed optimization.
type Run struct {
	ID          string        `json:"id"`
	Solver      string        `json:"solver"`
	Status      string        `json:"status"`
	Fallback    bool          `json:"fallback"`
	AssetCount  int           `json:"asset_count"`
	PeriodCount int           `json:"period_count"`
	Symbols     []string      `json:"symbols,omitempty"`
	Weights     []float64     `json:"weights"`
	Metrics     Metrics       `json:"metrics"`
	Iterations  int           `json:"iterations"`
	Duration    time.Duration `json:"duration_ns"`
	CreatedAt   time.Time     `json:"created_at"`
}

// WeightBySymbol maps symbols to weights. It returns nil when the run has no symbols.
func (r *Run) WeightBySymbol() map[string]float64 {
	if len(r.Symbols) != len(r.Weights) || len(r.Symbols) == 0 {
		return nil
	}
	out := make(map[string]float64, len(r.Symbols))
	for i, s := range r.Symbols {
		out[s] = r.Weights[i]
	}
	return out
}
