// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/autonomyv2/autonomyd/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full Control API router: the canonical middleware
// stack, the Autonomy V2 surface under /api/autonomy/v2, the supplemental
// /api/health endpoint, generic liveness/readiness probes, and /metrics.
func (c *Container) NewRouter() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        []string{"*"},
		EnableSecurityHeaders: true,
		CSP:                   "default-src 'none'",
		EnableMetrics:         true,
		EnableLogging:         true,
		EnableRateLimit:       true,
		RateLimitEnabled:      true,
		RateLimitGlobalRPS:    100,
		RateLimitBurst:        200,
	})

	r.Get("/healthz", c.Health.ServeHealth)
	r.Get("/readyz", c.Health.ServeReady)
	r.Get("/api/health", c.ServeHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/autonomy/v2", func(v2 chi.Router) {
		v2.Post("/runs", c.CreateRun)
		v2.Get("/runs", c.ListRuns)
		v2.Get("/runs/{run_id}", c.GetRun)
		v2.Get("/runs/{run_id}/events", c.ListRunEvents)
		v2.Get("/worker/status", c.WorkerStatus)
		v2.With(adminRateLimit).Post("/worker/tick_once", c.requireAdmin(c.TickOnce))
		v2.With(adminRateLimit).Post("/kill_switch/lane", c.requireAdmin(c.SetLane))
	})

	return r
}

// adminRateLimit tightens the global rate limit for admin-gated mutation
// routes specifically, independent of the read-path limit above.
func adminRateLimit(next http.Handler) http.Handler {
	return middleware.APIRateLimit(true, 30, 10, nil)(next)
}
