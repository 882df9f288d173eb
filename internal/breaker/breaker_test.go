package breaker

import (
	"testing"
	"time"
)

func TestAllowsUntilMaxFailures(t *testing.T) {
	b := New(Config{MaxFailures: 3, BaseDelay: time.Hour})
	if !b.Allow("file.log") {
		t.Fatal("expected a never-seen name to be allowed")
	}
	b.RecordFailure("file.log")
	b.RecordFailure("file.log")
	if !b.Allow("file.log") {
		t.Fatal("expected name to still be allowed below MaxFailures")
	}
	b.RecordFailure("file.log")
	if b.Allow("file.log") {
		t.Fatal("expected name to back off once MaxFailures is reached")
	}
	if b.State("file.log") != StateOpen {
		t.Errorf("expected open state, got %q", b.State("file.log"))
	}
}

func TestRecordSuccessClearsState(t *testing.T) {
	b := New(Config{MaxFailures: 1, BaseDelay: time.Hour})
	b.RecordFailure("file.log")
	if b.Allow("file.log") {
		t.Fatal("expected name backing off after crossing MaxFailures")
	}
	b.RecordSuccess("file.log")
	if !b.Allow("file.log") {
		t.Fatal("expected name allowed again after RecordSuccess")
	}
	if b.State("file.log") != StateClosed {
		t.Errorf("expected closed state after success, got %q", b.State("file.log"))
	}
}

func TestBackoffWidensWithRepeatedFailures(t *testing.T) {
	b := New(Config{MaxFailures: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	b.RecordFailure("file.log")
	first := b.entries["file.log"].nextRetry
	b.RecordFailure("file.log")
	second := b.entries["file.log"].nextRetry
	if !second.After(first) {
		t.Fatalf("expected backoff to widen: first=%v second=%v", first, second)
	}
}
