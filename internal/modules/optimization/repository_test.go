package optimization

import (
	"testing"
	"time"

	"github.com/aristath/sharpe/internal/database"
	testingpkg "github.com/aristath/sharpe/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunsDB(t *testing.T) *database.DB {
	return testingpkg.NewTestDB(t, "runs")
}

func sampleRun(id string, createdAt time.Time) *Run {
	return &Run{
		ID:          id,
		Solver:      SolverNonlinear,
		Status:      "GradientThreshold",
		AssetCount:  2,
		PeriodCount: 4,
		Symbols:     []string{"AAA", "BBB"},
		Weights:     []float64{0.5294117647058824, 0.47058823529411764},
		Metrics:     Metrics{ExpectedExcessReturn: 0.0147, Volatility: 0.1765, Sharpe: 0.0833},
		Iterations:  7,
		Duration:    12 * time.Millisecond,
		CreatedAt:   createdAt,
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t).Conn(), zerolog.Nop())
	created := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	run := sampleRun("run-1", created)
	require.NoError(t, repo.Save(run))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run, got)
	assert.Equal(t, map[string]float64{"AAA": run.Weights[0], "BBB": run.Weights[1]}, got.WeightBySymbol())

	missing, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRunRepository_WithoutSymbols(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t).Conn(), zerolog.Nop())

	run := sampleRun("anon", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	run.Symbols = nil
	run.Fallback = true
	require.NoError(t, repo.Save(run))

	got, err := repo.GetByID("anon")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Symbols)
	assert.True(t, got.Fallback)
	assert.Nil(t, got.WeightBySymbol())
}

func TestRunRepository_LatestAndList(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t).Conn(), zerolog.Nop())

	latest, err := repo.GetLatest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	runs, err := repo.List(10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	latest, err = repo.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.ID)

	runs, err = repo.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = repo.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunRepository_DuplicateID(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t).Conn(), zerolog.Nop())
	run := sampleRun("dup", time.Now().UTC())

	require.NoError(t, repo.Save(run))
	assert.Error(t, repo.Save(run))
}

func TestRunRepository_ListClampsHugeLimit(t *testing.T) {
	repo := NewRunRepository(setupRunsDB(t).Conn(), zerolog.Nop())
	require.NoError(t, repo.Save(sampleRun("only", time.Now().UTC())))

	for _, limit := range []int{1 << 39, 1 << 62} {
		runs, err := repo.List(limit)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	}
}
