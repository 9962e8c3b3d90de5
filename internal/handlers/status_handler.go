package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
)

// StatusHandler serves health, version, and job statistics.
type StatusHandler struct {
	jobs      interfaces.JobStorage
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(jobs interfaces.JobStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		jobs:      jobs,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// HealthHandler handles GET /health.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"version": common.Version,
	})
}

// VersionHandler handles GET /api/version.
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
	})
}

// StatsHandler handles GET /api/jobs/stats?user_id=, returning the user's
// job counts by status.
func (h *StatusHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	stats, err := h.jobs.GetJobStats(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
