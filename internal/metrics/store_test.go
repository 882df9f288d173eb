package metrics

import (
	"testing"
	"time"
)

func TestRecordStageMetricsAccumulates(t *testing.T) {
	s := New()
	s.RecordStageMetrics("tagger", 10*time.Millisecond, true)
	s.RecordStageMetrics("tagger", 30*time.Millisecond, false)

	stats := s.Stats()
	m, ok := stats["tagger"]
	if !ok {
		t.Fatal("expected stage metrics for tagger")
	}
	if m.Count != 2 {
		t.Errorf("expected count 2, got %d", m.Count)
	}
	if m.Errors != 1 {
		t.Errorf("expected errors 1, got %d", m.Errors)
	}
	if m.Avg <= 0 {
		t.Errorf("expected positive average, got %v", m.Avg)
	}
}

func TestTraceLifecycleDisabledByDefault(t *testing.T) {
	s := New()
	if s.TraceEnabled() {
		t.Fatal("expected tracing disabled by default")
	}
	if id := s.StartTrace("line"); id != "" {
		t.Fatalf("expected empty trace id when disabled, got %q", id)
	}
}

func TestTraceLifecycleWhenEnabled(t *testing.T) {
	s := New(WithTraceEnabled(true))
	id := s.StartTrace("hello")
	if id == "" {
		t.Fatal("expected non-empty trace id when enabled")
	}
	s.AddTraceStep(id, "tagger", "hello", "HELLO", []string{"end"}, 5*time.Millisecond)
	s.CompleteTrace(id, "HELLO")

	traces := s.GetTraces(TraceQuery{Limit: 10})
	if len(traces) != 1 {
		t.Fatalf("expected 1 completed trace, got %d", len(traces))
	}
	entry := traces[0]
	if entry.Original != "hello" || entry.Final != "HELLO" {
		t.Errorf("unexpected trace contents: %+v", entry)
	}
	if len(entry.Steps) != 1 || entry.Steps[0].Stage != "tagger" {
		t.Errorf("expected one tagger step, got %+v", entry.Steps)
	}
}

func TestTraceRingDropsOldestOnOverflow(t *testing.T) {
	s := New(WithTraceEnabled(true), WithMaxTraces(2))
	for i := 0; i < 3; i++ {
		id := s.StartTrace("line")
		s.CompleteTrace(id, "line")
	}
	traces := s.GetTraces(TraceQuery{})
	if len(traces) != 2 {
		t.Fatalf("expected ring capped at 2, got %d", len(traces))
	}
	if traces[0].TraceID != "line_2" {
		t.Errorf("expected oldest entry (line_1) to have been dropped, got %q as oldest remaining", traces[0].TraceID)
	}
}

func TestErrorRingDropsOldestOnOverflow(t *testing.T) {
	s := New(WithMaxErrors(2))
	s.RecordError("a", "first", "", "")
	s.RecordError("b", "second", "", "")
	s.RecordError("c", "third", "", "")

	errs := s.GetErrors(10)
	if len(errs) != 2 {
		t.Fatalf("expected ring capped at 2, got %d", len(errs))
	}
	if errs[0].Message != "second" || errs[1].Message != "third" {
		t.Errorf("expected oldest error dropped, got %+v", errs)
	}
}

func TestGetTracesFiltersBySearchStageAndTag(t *testing.T) {
	s := New(WithTraceEnabled(true))
	id := s.StartTrace("order 42 placed")
	s.AddTraceStep(id, "tagger", "order 42 placed", "order 42 placed", []string{"info"}, 0)
	s.CompleteTrace(id, "order 42 placed")

	if got := s.GetTraces(TraceQuery{Search: "nomatch"}); len(got) != 0 {
		t.Errorf("expected no matches for unrelated search, got %d", len(got))
	}
	if got := s.GetTraces(TraceQuery{Search: "order"}); len(got) != 1 {
		t.Errorf("expected 1 match for substring search, got %d", len(got))
	}
	if got := s.GetTraces(TraceQuery{Stage: "tagger"}); len(got) != 1 {
		t.Errorf("expected 1 match for stage filter, got %d", len(got))
	}
	if got := s.GetTraces(TraceQuery{Tag: "info"}); len(got) != 1 {
		t.Errorf("expected 1 match for tag filter, got %d", len(got))
	}
	if got := s.GetTraces(TraceQuery{Tag: "missing"}); len(got) != 0 {
		t.Errorf("expected no match for absent tag, got %d", len(got))
	}
}

func TestRecordProcessedFileClearsCurrentFile(t *testing.T) {
	s := New()
	s.SetCurrentFile("batch-1.log")
	s.RecordProcessedFile("batch-1.log")

	stats := s.FileStats(10)
	if stats.CurrentFile != "" {
		t.Errorf("expected current file cleared, got %q", stats.CurrentFile)
	}
	if len(stats.LastProcessed) != 1 || stats.LastProcessed[0].Name != "batch-1.log" {
		t.Errorf("expected batch-1.log in recent files, got %+v", stats.LastProcessed)
	}
}

func TestProcessorsReportsActiveAndIdle(t *testing.T) {
	s := New()
	s.RecordStageMetrics("fresh", time.Millisecond, true)

	statuses := s.Processors()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 processor status, got %d", len(statuses))
	}
	if statuses[0].Status != "active" {
		t.Errorf("expected recently-recorded stage to be active, got %q", statuses[0].Status)
	}
}
