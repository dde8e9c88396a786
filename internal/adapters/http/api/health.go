package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/scoreboard/pkg/metrics"
)

const readyTimeout = 2 * time.Second

// ReadyChecker reports whether the backing store answers.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler serves liveness metrics and readiness.
type HealthHandler struct {
	ready   ReadyChecker
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadyChecker) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz by serving the Prometheus registry.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// HandleReady handles GET /readyz: 200 when the store answers a ping.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := h.ready.Ready(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
