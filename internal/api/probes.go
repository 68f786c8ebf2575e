package api

import (
	"context"
	"net/http"
	"time"

	"itemsvc/internal/metrics"
)

type healthResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	Uptime      float64   `json:"uptime"`
	Timestamp   time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type metricsResponse struct {
	Service   string           `json:"service"`
	Metrics   metrics.Snapshot `json:"metrics"`
	Timestamp time.Time        `json:"timestamp"`
}

// handleHealth processes GET /health. It never touches the store: a
// response means the process is alive.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordHealthCheck()

	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Service:     h.opts.Service,
		Version:     h.opts.Version,
		Environment: h.opts.Environment,
		Uptime:      time.Since(h.metrics.StartTime()).Seconds(),
		Timestamp:   time.Now().UTC(),
	})
}

// handleReady processes GET /ready with a live round trip to the store.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordHealthCheck()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ReadyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("readiness check failed")
		msg := err.Error()
		if h.opts.Production {
			msg = "store unreachable"
		}
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{
			Status:    "not ready",
			Database:  "disconnected",
			Error:     msg,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	writeJSON(w, http.StatusOK, readyResponse{
		Status:    "ready",
		Database:  "connected",
		Timestamp: time.Now().UTC(),
	})
}

// handleMetrics processes GET /metrics.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Service:   h.opts.Service,
		Metrics:   h.metrics.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
}
