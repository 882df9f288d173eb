// Package breaker adapts the teacher's generic circuit-breaker pattern
// (pkg/circuit_breaker) into a per-filename retry backoff for the
// file-queue daemon: a name that keeps failing should back off instead of
// hot-looping claim-process-retry against a file that will keep failing
// the same way (spec.md §4.6's "sleep briefly between files... to avoid
// tight loops when all files fail fast").
package breaker

import (
	"sync"
	"time"
)

const (
	// StateClosed allows immediate retry.
	StateClosed = "closed"
	// StateOpen means the name is backing off; retries are deferred.
	StateOpen = "open"
)

// Config controls how quickly a name backs off and recovers.
type Config struct {
	MaxFailures  int           // consecutive failures before backing off
	BaseDelay    time.Duration // initial backoff once opened
	MaxDelay     time.Duration // backoff ceiling, bounds the 30x growth
	ResetAfter   time.Duration // time since last failure after which the name resets to closed
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * c.BaseDelay
	}
	if c.ResetAfter <= 0 {
		c.ResetAfter = 5 * time.Minute
	}
	return c
}

type entry struct {
	failures   int
	lastFail   time.Time
	nextRetry  time.Time
}

// PerName tracks one breaker per filename.
type PerName struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
}

// New constructs a PerName breaker registry.
func New(config Config) *PerName {
	return &PerName{config: config.withDefaults(), entries: make(map[string]*entry)}
}

// Allow reports whether name may be retried now.
func (p *PerName) Allow(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	if !ok {
		return true
	}
	if !e.lastFail.IsZero() && time.Since(e.lastFail) > p.config.ResetAfter {
		delete(p.entries, name)
		return true
	}
	return !time.Now().Before(e.nextRetry)
}

// RecordFailure registers a failed attempt for name and widens its
// backoff window once it crosses MaxFailures consecutive failures.
func (p *PerName) RecordFailure(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	if !ok {
		e = &entry{}
		p.entries[name] = e
	}
	e.failures++
	e.lastFail = time.Now()
	if e.failures < p.config.MaxFailures {
		return
	}
	backoffSteps := e.failures - p.config.MaxFailures + 1
	delay := p.config.BaseDelay * time.Duration(backoffSteps)
	if delay > p.config.MaxDelay {
		delay = p.config.MaxDelay
	}
	e.nextRetry = time.Now().Add(delay)
}

// RecordSuccess clears the breaker state for name.
func (p *PerName) RecordSuccess(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, name)
}

// State returns StateOpen if name is currently backing off.
func (p *PerName) State(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	if !ok || !time.Now().Before(e.nextRetry) {
		return StateClosed
	}
	return StateOpen
}
