// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the databases (always absolute)
	LogLevel  string
	Port      int
	DevMode   bool
	Optimizer OptimizerConfig
	Schedule  ScheduleConfig
	Archive   ArchiveConfig
}

// OptimizerConfig holds solver defaults
type OptimizerConfig struct {
	Solver       string
	LowerBound   float64
	UpperBound   float64
	RiskFreeRate float64
	ReturnsModel string
	EMAPeriod    int
}

// Bounds returns the configured per-asset weight bounds
func (c OptimizerConfig) Bounds() optimization.Bounds {
	return optimization.Bounds{Lower: c.LowerBound, Upper: c.UpperBound}
}

// ScheduleConfig holds the scheduled optimization job settings.
// The job is disabled when ReturnsFile is empty.
type ScheduleConfig struct {
	ReturnsFile string
	Cron        string // Six-field cron expression, seconds first
}

// Enabled reports whether the scheduled job should be registered
func (c ScheduleConfig) Enabled() bool {
	return c.ReturnsFile != ""
}

// ArchiveConfig holds the S3-compatible run archive settings.
// Archiving is disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string
	Prefix          string
	Endpoint        string // Optional custom endpoint (R2, MinIO)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether runs should be archived
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SHARPE_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Optimizer: OptimizerConfig{
			Solver:       getEnv("OPTIMIZER_SOLVER", optimization.SolverNonlinear),
			LowerBound:   getEnvAsFloat("OPTIMIZER_LOWER_BOUND", -1),
			UpperBound:   getEnvAsFloat("OPTIMIZER_UPPER_BOUND", 1),
			RiskFreeRate: getEnvAsFloat("OPTIMIZER_RISK_FREE_RATE", 0),
			ReturnsModel: getEnv("OPTIMIZER_RETURNS_MODEL", string(optimization.ReturnsModelMean)),
			EMAPeriod:    getEnvAsInt("OPTIMIZER_EMA_PERIOD", optimization.DefaultEMAPeriod),
		},
		Schedule: ScheduleConfig{
			ReturnsFile: getEnv("SCHEDULE_RETURNS_FILE", ""),
			Cron:        getEnv("SCHEDULE_CRON", "0 0 * * * *"), // Hourly
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Prefix:          getEnv("ARCHIVE_PREFIX", "runs"),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the optimizer settings
func (c *Config) Validate() error {
	if err := c.Optimizer.Bounds().Validate(); err != nil {
		return err
	}
	switch c.Optimizer.Solver {
	case optimization.SolverNonlinear, optimization.SolverQuadratic:
	default:
		return fmt.Errorf("unknown solver %q", c.Optimizer.Solver)
	}
	if _, err := optimization.ParseReturnsModel(c.Optimizer.ReturnsModel); err != nil {
		return err
	}
	if c.Optimizer.EMAPeriod < 2 {
		return fmt.Errorf("EMA period must be at least 2, got %d", c.Optimizer.EMAPeriod)
	}
	if c.Archive.Enabled() && (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		return fmt.Errorf("archive access key id and secret must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
