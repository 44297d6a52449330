package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the HTTP surface. Ingestion is unauthenticated (trackers
// hold no user session); the snapshot, stream, and history endpoints require
// a valid bearer session.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(serverErrorLoggerMiddleware)
	r.Use(corsMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(newIPRateLimiter(300, time.Minute).middleware)
	r.Use(middleware.Heartbeat("/healthz"))

	s := server{
		engine:         d.Engine,
		sessions:       d.Sessions,
		history:        d.History,
		maxReportBytes: d.MaxReportBytes,
	}
	if s.maxReportBytes <= 0 {
		s.maxReportBytes = 64 * 1024
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/positions", s.handleIngestPosition)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionAuthMiddleware)
			r.Get("/positions", s.handleListPositions)
			r.Get("/stream", s.handleStreamSSE)
			r.Get("/history/{deviceID}", s.handleDeviceHistory)
		})
	})

	return r
}
