package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv("SHARPE_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.DirExists(t, dir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "nonlinear", cfg.Optimizer.Solver)
	assert.Equal(t, -1.0, cfg.Optimizer.LowerBound)
	assert.Equal(t, 1.0, cfg.Optimizer.UpperBound)
	assert.Equal(t, 0.0, cfg.Optimizer.RiskFreeRate)
	assert.Equal(t, "mean", cfg.Optimizer.ReturnsModel)
	assert.Equal(t, 20, cfg.Optimizer.EMAPeriod)
	assert.False(t, cfg.Schedule.Enabled())
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.Cron)
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SHARPE_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("OPTIMIZER_SOLVER", "quadratic")
	t.Setenv("OPTIMIZER_LOWER_BOUND", "0")
	t.Setenv("OPTIMIZER_UPPER_BOUND", "0.4")
	t.Setenv("OPTIMIZER_RISK_FREE_RATE", "0.0001")
	t.Setenv("OPTIMIZER_RETURNS_MODEL", "ema")
	t.Setenv("OPTIMIZER_EMA_PERIOD", "10")
	t.Setenv("SCHEDULE_RETURNS_FILE", "/tmp/returns.csv")
	t.Setenv("ARCHIVE_BUCKET", "runs")
	t.Setenv("ARCHIVE_ACCESS_KEY_ID", "key")
	t.Setenv("ARCHIVE_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "quadratic", cfg.Optimizer.Solver)
	assert.Equal(t, 0.0, cfg.Optimizer.Bounds().Lower)
	assert.Equal(t, 0.4, cfg.Optimizer.Bounds().Upper)
	assert.Equal(t, 0.0001, cfg.Optimizer.RiskFreeRate)
	assert.Equal(t, 10, cfg.Optimizer.EMAPeriod)
	assert.True(t, cfg.Schedule.Enabled())
	assert.True(t, cfg.Archive.Enabled())
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("SHARPE_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "not-a-port")
	t.Setenv("OPTIMIZER_UPPER_BOUND", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 1.0, cfg.Optimizer.UpperBound)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Optimizer: OptimizerConfig{
			Solver:       "nonlinear",
			LowerBound:   -1,
			UpperBound:   1,
			ReturnsModel: "mean",
			EMAPeriod:    20,
		}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"inverted bounds", func(c *Config) { c.Optimizer.LowerBound = 2 }},
		{"unknown solver", func(c *Config) { c.Optimizer.Solver = "genetic" }},
		{"unknown returns model", func(c *Config) { c.Optimizer.ReturnsModel = "capm" }},
		{"short ema period", func(c *Config) { c.Optimizer.EMAPeriod = 1 }},
		{"half archive credentials", func(c *Config) {
			c.Archive.Bucket = "runs"
			c.Archive.AccessKeyID = "key"
		}},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
