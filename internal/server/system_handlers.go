package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sharpe/internal/database"
	"github.com/aristath/sharpe/internal/scheduler"
)

// JobScheduler is the part of the scheduler exposed over HTTP
type JobScheduler interface {
	Jobs() []scheduler.JobStatus
	RunNow(name string) error
}

// SystemHandlers handles system monitoring and job endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   []*database.DB
	scheduler   JobScheduler
}

// NewSystemHandlers creates a new system handlers instance. jobs may be nil.
func NewSystemHandlers(log zerolog.Logger, databases []*database.DB, jobs JobScheduler) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   jobs,
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	Databases     map[string]string `json:"databases"`
	JobCount      int               `json:"job_count"`
}

// DBInfo represents database information
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	PageSize  int64   `json:"page_size"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// JobInfo represents a scheduled job
type JobInfo struct {
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	NextRun    string `json:"next_run,omitempty"`
	LastRun    string `json:"last_run,omitempty"`
	LastStatus string `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// JobsStatusResponse represents the scheduler status
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
// The error reports the first failing database; the snapshot is still valid.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) (SystemStatusResponse, error) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     make(map[string]string, len(h.databases)),
	}

	var firstErr error
	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			response.Databases[db.Name()] = err.Error()
			response.Status = "degraded"
			if firstErr == nil {
				firstErr = fmt.Errorf("database %s: %w", db.Name(), err)
			}
			continue
		}
		response.Databases[db.Name()] = "ok"
	}

	if h.scheduler != nil {
		response.JobCount = len(h.scheduler.Jobs())
	}

	return response, firstErr
}

// HandleSystemStatus returns system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   make([]DBInfo, 0, len(h.databases)),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		response.TotalSizeMB += sizeMB
		response.Databases = append(response.Databases, DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
			PageSize:  stats.PageSize,
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus returns scheduler job status
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	jobs := []JobInfo{}
	if h.scheduler != nil {
		for _, status := range h.scheduler.Jobs() {
			info := JobInfo{
				Name:     status.Name,
				Schedule: status.Schedule,
			}
			if !status.Next.IsZero() {
				info.NextRun = status.Next.Format(time.RFC3339)
			}
			if status.LastRun != nil {
				info.LastRun = status.LastRun.StartedAt.Format(time.RFC3339)
				info.LastStatus = status.LastRun.Status
				info.LastError = status.LastRun.Error
			}
			jobs = append(jobs, info)
		}
	}

	h.writeJSON(w, http.StatusOK, JobsStatusResponse{TotalJobs: len(jobs), Jobs: jobs})
}

// HandleRunJob triggers a registered job in the background
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if h.scheduler == nil || !h.hasJob(name) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("job %q not registered", name),
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")
	go func() {
		if err := h.scheduler.RunNow(name); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("job %s triggered", name),
	})
}

func (h *SystemHandlers) hasJob(name string) bool {
	for _, status := range h.scheduler.Jobs() {
		if status.Name == name {
			return true
		}
	}
	return false
}

// checkDatabases pings every database and returns the first failure
func (h *SystemHandlers) checkDatabases(ctx context.Context) error {
	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			return fmt.Errorf("database %s: %w", db.Name(), err)
		}
	}
	return nil
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the call fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
