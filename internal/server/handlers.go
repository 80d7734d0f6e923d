package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.systemHandlers.getSystemStats()

	status := "healthy"
	if err := s.systemHandlers.checkDatabases(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Health check found a failing database")
		status = "degraded"
	}

	response := map[string]interface{}{
		"status":  status,
		"version": Version,
		"service": "sharpe",
		"system": map[string]float64{
			"cpu_percent":    cpuPercent,
			"memory_percent": memPercent,
		},
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
