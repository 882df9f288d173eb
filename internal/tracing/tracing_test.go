package tracing

import (
	"context"
	"testing"
)

func TestDiscardStartHopProducesNonNilSpan(t *testing.T) {
	m, err := Discard()
	if err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}
	_, span := m.StartHop(context.Background(), "tagger", "line_1", 0)
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
	span.End()

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
