// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxRequestBytes bounds the size of an optimization request body.
const maxRequestBytes = 8 << 20

// Handler handles optimization HTTP requests
type Handler struct {
	service *optimization.OptimizerService
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service *optimization.OptimizerService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleGetStatus handles GET /api/optimizer
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := h.service.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest optimization run")
		http.Error(w, "Failed to get latest optimization run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"default_solver": h.service.DefaultSolver(),
		"solvers":        h.service.Solvers(),
		"last_run":       latest,
	}))
}

// HandleRun handles POST /api/optimizer/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req optimization.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := h.service.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, optimization.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Optimization run failed")
		http.Error(w, "Optimization run failed", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"run": run,
	}
	if bySymbol := run.WeightBySymbol(); bySymbol != nil {
		data["weights_by_symbol"] = bySymbol
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleGetHistory handles GET /api/optimizer/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := optimization.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, optimization.MaxHistoryLimit)
		}
	}

	runs, err := h.service.History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get optimization history")
		http.Error(w, "Failed to get optimization history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}))
}

// HandleGetRun handles GET /api/optimizer/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.service.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get optimization run")
		http.Error(w, "Failed to get optimization run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run": run,
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
