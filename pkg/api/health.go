package api

import (
	"net/http"

	"github.com/cuemby/rebalancer/pkg/metrics"
)

// registerHealth mounts the probe and metrics endpoints. Health and
// readiness come from the component registry in pkg/metrics.
func registerHealth(mux *http.ServeMux) {
	mux.Handle("GET /health", metrics.HealthHandler())
	mux.Handle("GET /ready", metrics.ReadyHandler())
	mux.Handle("GET /live", metrics.LivenessHandler())
	mux.Handle("GET /metrics", metrics.Handler())
}
