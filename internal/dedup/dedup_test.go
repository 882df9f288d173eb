package dedup

import "testing"

func TestSeenReportsRepeatsOnly(t *testing.T) {
	c := New(10)
	d := Digest([]byte("hello"))
	if c.Seen(d) {
		t.Fatal("expected first sighting to report not-seen")
	}
	if !c.Seen(d) {
		t.Fatal("expected second sighting to report seen")
	}
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	a := Digest([]byte("a"))
	b := Digest([]byte("b"))
	cc := Digest([]byte("c"))

	c.Seen(a)
	c.Seen(b)
	c.Seen(cc) // evicts a, the least recently used

	if !c.Seen(b) {
		t.Error("expected b to still be cached")
	}
	if c.Seen(a) {
		t.Error("expected a to have been evicted and reported as not-seen")
	}
	if c.Len() > 2 {
		t.Errorf("expected capacity respected, got len %d", c.Len())
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	a := Digest([]byte("same content"))
	b := Digest([]byte("same content"))
	if a != b {
		t.Error("expected identical content to produce identical digests")
	}
}
