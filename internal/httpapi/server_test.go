package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tagflow/tagflow/internal/config"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/tagflow/tagflow/internal/registry"
	_ "github.com/tagflow/tagflow/internal/stages"
)

func testServer(t *testing.T, store *metrics.Store) *Server {
	t.Helper()
	graph, _, err := config.Build(&config.Document{
		Start: "start",
		Nodes: []config.NodeConfig{{Tag: "start", Type: "builtin.Identity"}},
	}, registry.Default)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return New(store, graph, nil)
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthReturnsOK(t *testing.T) {
	s := testServer(t, metrics.New())
	rec := doGet(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestStatsReflectsRecordedMetrics(t *testing.T) {
	store := metrics.New()
	store.RecordStageMetrics("start", 0, true)
	s := testServer(t, store)

	rec := doGet(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Stages map[string]metrics.ProcessorMetrics `json:"stages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if body.Stages["start"].Count != 1 {
		t.Errorf("expected start stage count 1, got %+v", body.Stages["start"])
	}
}

func TestErrorsEndpointReturnsRecordedErrors(t *testing.T) {
	store := metrics.New()
	store.RecordError("start", "boom", "", "bad line")
	s := testServer(t, store)

	rec := doGet(t, s, "/errors")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Errors []metrics.ErrorEntry `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(body.Errors) != 1 || body.Errors[0].Message != "boom" {
		t.Fatalf("expected recorded error to be returned, got %+v", body.Errors)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := testServer(t, metrics.New())
	rec := doGet(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header from the promhttp handler")
	}
}

func TestDashboardServesHTML(t *testing.T) {
	s := testServer(t, metrics.New())
	rec := doGet(t, s, "/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("expected HTML content type, got %q", ct)
	}
}
