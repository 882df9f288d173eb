package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func newResponseTimeHistogram() *prometheus.HistogramVec {
	return promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tagflow_http_response_time_seconds",
			Help:    "HTTP response time in seconds by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
}

// handleRoot returns a one-line summary of the running graph.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "tagflow",
		"start_tag":  string(s.graph.Start),
		"node_count": len(s.graph.Nodes),
	})
}

// handleStats returns per-stage ProcessorMetrics, memory, and file-queue
// state (current file and recently processed files). Directory file
// counts are not included.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stages": s.store.Stats(),
		"memory": s.store.GetMemory(),
		"files":  s.store.FileStats(20),
	})
}

// clampLimit parses the "limit" query param, defaulting to def and
// clamping to [1, max] per spec.md §4.7's documented ceilings.
func clampLimit(q string, def, max int) int {
	limit := def
	if q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	return limit
}

// handleTrace returns recent per-line traces, optionally filtered by
// ?limit=, ?search=, ?processor=, ?tag= (spec.md §4.7's wire contract
// for GET /trace?limit&search&processor&tag).
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := clampLimit(q.Get("limit"), 100, 1000)
	traces := s.store.GetTraces(metrics.TraceQuery{
		Limit:  limit,
		Search: q.Get("search"),
		Stage:  q.Get("processor"),
		Tag:    q.Get("tag"),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"traces": traces})
}

// handleErrors returns recent recorded errors, optionally limited by
// ?limit= (1 <= limit <= 500, per spec.md §4.7).
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(r.URL.Query().Get("limit"), 50, 500)
	writeJSON(w, http.StatusOK, map[string]interface{}{"errors": s.store.GetErrors(limit)})
}

// handleProcessors returns per-stage status (active/idle) derived from
// last-seen timestamps.
func (s *Server) handleProcessors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"processors": s.store.Processors()})
}

// handleHealth returns a liveness payload — this process is healthy if
// it can answer at all, per spec.md §4.3's "no dependency checks, this
// is liveness not readiness" — plus the memory snapshot and the
// file-queue state (current file and recently processed files). Queue
// directory sizes are not reported.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"memory": s.store.GetMemory(),
		"files":  s.store.FileStats(20),
	})
}

// handleDashboard serves a minimal static status page. Production
// deployments are expected to front this with their own asset bundle;
// this handler exists so /dashboard never 404s on a bare install.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!doctype html><html><head><title>tagflow</title></head>` +
		`<body><h1>tagflow</h1><p>See <a href="/stats">/stats</a>, ` +
		`<a href="/trace">/trace</a>, <a href="/errors">/errors</a>, ` +
		`<a href="/processors">/processors</a>, <a href="/metrics">/metrics</a>.</p>` +
		`</body></html>`))
}
