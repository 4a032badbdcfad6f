package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// HealthHandler serves the health-check endpoint with per-source freshness.
type HealthHandler struct {
	rec       *reconcile.Reconciler
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler backed by the reconciler's status.
func NewHealthHandler(rec *reconcile.Reconciler, startedAt time.Time, logger *slog.Logger) *HealthHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &HealthHandler{rec: rec, startedAt: startedAt, logger: logger}
}

// HealthCheck responds with overall liveness plus the health of each upstream
// source, so operators can tell a dead backend apart from a dead feed.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.rec.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"stale_drops":    h.rec.StaleDrops(),
		"sources": map[string]any{
			"world":  sourceJSON(st.World),
			"battle": sourceJSON(st.Battle),
			"chain":  sourceJSON(st.Chain),
			"feed":   sourceJSON(st.Feed),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func sourceJSON(s reconcile.SourceStatus) map[string]any {
	out := map[string]any{
		"loading": s.Loading,
		"error":   s.Err,
	}
	if s.LastErr != "" {
		out["last_error"] = s.LastErr
	}
	if !s.AsOf.IsZero() {
		out["as_of"] = s.AsOf.UTC().Format(time.RFC3339Nano)
	}
	return out
}
