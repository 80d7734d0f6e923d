package scheduler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// optimizeTimeout bounds a single scheduled optimization
const optimizeTimeout = 5 * time.Minute

// OptimizerServiceInterface defines the contract for optimizer service operations
type OptimizerServiceInterface interface {
	Run(ctx context.Context, req optimization.Request) (*optimization.Run, error)
}

// OptimizeFileJob optimizes the returns stored in a CSV file
type OptimizeFileJob struct {
	path    string
	solver  string
	service OptimizerServiceInterface
	log     zerolog.Logger
}

// NewOptimizeFileJob creates a job that reads path on every run. An empty
// solver uses the service default.
func NewOptimizeFileJob(path, solver string, service OptimizerServiceInterface, log zerolog.Logger) *OptimizeFileJob {
	return &OptimizeFileJob{
		path:    path,
		solver:  solver,
		service: service,
		log:     log.With().Str("job", "optimize_file").Logger(),
	}
}

// Name returns the job name
func (j *OptimizeFileJob) Name() string {
	return "optimize_file"
}

// Run reads the returns file and runs an optimization
func (j *OptimizeFileJob) Run() error {
	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open returns file: %w", err)
	}
	defer f.Close()

	symbols, returns, err := ReadReturnsCSV(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", j.path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), optimizeTimeout)
	defer cancel()

	run, err := j.service.Run(ctx, optimization.Request{
		Solver:            j.solver,
		Symbols:           symbols,
		HistoricalReturns: returns,
	})
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	j.log.Info().
		Str("run_id", run.ID).
		Int("assets", len(symbols)).
		Int("periods", len(returns)).
		Bool("fallback", run.Fallback).
		Msg("Scheduled optimization completed")
	return nil
}

// ReadReturnsCSV parses periodic returns. The header row names the assets;
// a leading "date" or "time" column is ignored. Every following row holds
// one period. Lines starting with # are comments.
func ReadReturnsCSV(r io.Reader) ([]string, [][]float64, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("returns file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	skip := 0
	if first := strings.ToLower(strings.TrimSpace(header[0])); first == "date" || first == "time" {
		skip = 1
	}
	symbols := make([]string, 0, len(header)-skip)
	for _, s := range header[skip:] {
		symbols = append(symbols, strings.TrimSpace(s))
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("header names no assets")
	}

	var returns [][]float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := make([]float64, len(symbols))
		for i, field := range record[skip:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d, column %s: %w", line, symbols[i], err)
			}
			row[i] = v
		}
		returns = append(returns, row)
	}

	return symbols, returns, nil
}
