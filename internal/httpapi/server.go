// Package httpapi exposes the engine's runtime state as read-only JSON
// (C7): root summary, trace/error/processor listings, health, a stub
// dashboard, and an additive Prometheus /metrics endpoint. Grounded on
// the teacher's internal/app.initHTTPServer/registerHandlers (gorilla/mux
// router, metricsMiddleware wrapping every route) with the enterprise
// security/tracing middleware layers dropped — this domain has no
// authenticated surface (spec.md Non-goals: "no auth, no write
// endpoints").
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tagflow/tagflow/internal/config"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// responseTimeSeconds mirrors the teacher's metrics.ResponseTimeSeconds
// histogram, scoped to this package since the HTTP surface is the only
// caller.
var responseTimeSeconds = newResponseTimeHistogram()

// Server wires the metrics Store into an HTTP mux.Router.
type Server struct {
	store  *metrics.Store
	graph  *config.Graph
	logger *logrus.Logger
	router *mux.Router
}

// New builds a Server ready to be handed to an http.Server as its
// Handler.
func New(store *metrics.Store, graph *config.Graph, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{store: store, graph: graph, logger: logger, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the configured router, suitable as an http.Server.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Handle("/", s.withMetrics(http.HandlerFunc(s.handleRoot))).Methods(http.MethodGet)
	s.router.Handle("/stats", s.withMetrics(http.HandlerFunc(s.handleStats))).Methods(http.MethodGet)
	s.router.Handle("/trace", s.withMetrics(http.HandlerFunc(s.handleTrace))).Methods(http.MethodGet)
	s.router.Handle("/errors", s.withMetrics(http.HandlerFunc(s.handleErrors))).Methods(http.MethodGet)
	s.router.Handle("/processors", s.withMetrics(http.HandlerFunc(s.handleProcessors))).Methods(http.MethodGet)
	s.router.Handle("/health", s.withMetrics(http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)
	s.router.Handle("/dashboard", s.withMetrics(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
}

// withMetrics records response latency for every route, matching the
// teacher's metricsMiddleware.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		responseTimeSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}
