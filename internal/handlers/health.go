package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/metrics"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/store"
)

// HealthHandler serves GET /healthz, GET /readyz and GET /metrics.
type HealthHandler struct {
	Repo        store.Repository
	ObjectStore objectstore.ObjectStore
	Metrics     *metrics.Registry
	Config      *common.Config
	Logger      arbor.ILogger
}

func NewHealthHandler(repo store.Repository, objStore objectstore.ObjectStore, m *metrics.Registry, cfg *common.Config, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{Repo: repo, ObjectStore: objStore, Metrics: m, Config: cfg, Logger: logger}
}

// Healthz always reports ok: process liveness, not dependency health.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": common.GetFullVersion()})
}

// Readyz runs the configured dependency checks ("db", "s3"); any failure is
// a 503, per §4.9.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	failures := map[string]string{}
	for _, check := range h.Config.Readiness.Checks {
		switch check {
		case "db":
			if err := h.Repo.Ping(ctx); err != nil {
				failures["db"] = err.Error()
			}
		case "s3":
			if err := h.ObjectStore.Ping(ctx); err != nil {
				failures["s3"] = err.Error()
			}
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Metrics serves Prometheus text exposition format.
func (h *HealthHandler) Metrics() http.Handler {
	return promhttp.HandlerFor(h.Metrics.Gatherer, promhttp.HandlerOpts{})
}
