// Package metrics implements the thread-safe observability store (C3):
// per-stage counters, bounded trace/error rings, and file-queue tracking,
// exposed through read-only projections for the HTTP surface (C7).
//
// Ported from the original MetricsStore singleton (original_source
// abstraction-level-8/metrics.py) into an explicit object threaded into
// the engine and daemon at construction (spec.md §9's "re-architect the
// global singleton" design note). Counters are additionally mirrored into
// Prometheus vectors the way the teacher's internal/metrics/metrics.go
// exposes promauto counters alongside its own stats, and memory snapshots
// use gopsutil (teacher's pkg/leakdetection / nova_abordagem pattern)
// instead of a hand-rolled /proc reader.
package metrics

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	stageInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagflow_stage_invocations_total",
		Help: "Total number of stage invocations by stage tag and outcome.",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tagflow_stage_duration_seconds",
		Help:    "Stage processing duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagflow_errors_total",
		Help: "Total number of recorded errors by stage tag.",
	}, []string{"stage"})

	filesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagflow_files_processed_total",
		Help: "Total number of files moved into processed/ by the file-queue daemon.",
	})
)

// TraceStep is one stage hop recorded for a line being traced.
type TraceStep struct {
	Stage          string    `json:"processor"`
	Input          string    `json:"input_content"`
	Output         string    `json:"output_content"`
	OutputTags     []string  `json:"output_tags"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      float64   `json:"timestamp"`
}

// TraceEntry is the finalized record of one line's traversal.
type TraceEntry struct {
	TraceID        string      `json:"line_id"`
	Original       string      `json:"original_content"`
	Final          string      `json:"final_content"`
	Steps          []TraceStep `json:"steps"`
	Path           []string    `json:"path"`
	AllTags        []string    `json:"all_tags"`
	StartTimestamp float64     `json:"start_timestamp"`
	EndTimestamp   float64     `json:"end_timestamp"`
	TotalTime      float64     `json:"total_time"`
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Stage     string  `json:"processor"`
	Message   string  `json:"message"`
	Backtrace string  `json:"stack_trace"`
	Timestamp float64 `json:"timestamp"`
	Line      string  `json:"line_content,omitempty"`
}

// ProcessorMetrics is the per-stage counter set.
type ProcessorMetrics struct {
	Count    int64   `json:"count"`
	Total    float64 `json:"total_time"`
	Errors   int64   `json:"errors"`
	Avg      float64 `json:"avg_time"`
	LastSeen float64 `json:"last_seen"`
}

type inFlightTrace struct {
	original  string
	steps     []TraceStep
	path      []string
	allTags   map[string]struct{}
	startTime time.Time
}

type processedFile struct {
	Name      string
	Timestamp float64
}

// Store is the thread-safe observability registry. Every mutation holds
// a single exclusive mutex (spec.md §5 concurrency discipline); read
// projections copy state under lock and return the copy so handlers never
// hold the lock across I/O.
type Store struct {
	mu sync.Mutex

	traceEnabled bool
	maxTraces    int
	maxErrors    int

	stageMetrics map[string]*ProcessorMetrics
	traces       []TraceEntry // ring, oldest first
	errors       []ErrorEntry // ring, oldest first

	active    map[string]*inFlightTrace
	traceSeq  uint64

	currentFile    string
	lastProcessed  []processedFile // ring, newest last

	proc       *process.Process
	startedAt  time.Time
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMaxTraces overrides the trace ring capacity (default 1000).
func WithMaxTraces(n int) Option { return func(s *Store) { s.maxTraces = n } }

// WithMaxErrors overrides the error ring capacity (default 100).
func WithMaxErrors(n int) Option { return func(s *Store) { s.maxErrors = n } }

// WithTraceEnabled sets the initial tracing state; tracing is disabled
// if it is never called.
func WithTraceEnabled(enabled bool) Option { return func(s *Store) { s.traceEnabled = enabled } }

// New constructs a Store ready for use.
func New(opts ...Option) *Store {
	s := &Store{
		maxTraces:    1000,
		maxErrors:    100,
		stageMetrics: make(map[string]*ProcessorMetrics),
		active:       make(map[string]*inFlightTrace),
		startedAt:    time.Now(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTraceEnabled toggles tracing at runtime. The CLI sets the initial
// state through WithTraceEnabled instead.
func (s *Store) SetTraceEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceEnabled = enabled
}

// TraceEnabled reports the current tracing state.
func (s *Store) TraceEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceEnabled
}

// StartTrace begins tracing a line and returns its trace id, or "" when
// tracing is disabled (spec.md §4.3).
func (s *Store) StartTrace(line string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.traceEnabled {
		return ""
	}
	s.traceSeq++
	id := "line_" + strconv.FormatUint(s.traceSeq, 10)
	s.active[id] = &inFlightTrace{
		original:  line,
		allTags:   make(map[string]struct{}),
		startTime: time.Now(),
	}
	return id
}

// AddTraceStep appends one stage hop to an in-flight trace; a no-op when
// tracing is disabled or traceID is empty (spec.md §4.3).
func (s *Store) AddTraceStep(traceID, stage, input, output string, outputTags []string, elapsed time.Duration) {
	if traceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.traceEnabled {
		return
	}
	t, ok := s.active[traceID]
	if !ok {
		return
	}
	t.steps = append(t.steps, TraceStep{
		Stage:          stage,
		Input:          input,
		Output:         output,
		OutputTags:     outputTags,
		ProcessingTime: elapsed.Seconds(),
		Timestamp:      nowSeconds(),
	})
	t.path = append(t.path, stage)
	for _, tag := range outputTags {
		t.allTags[tag] = struct{}{}
	}
}

// CompleteTrace finalizes a trace and pushes it into the bounded ring,
// dropping the oldest entry on overflow (spec.md §4.3, §8 invariant).
func (s *Store) CompleteTrace(traceID, final string) {
	if traceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.traceEnabled {
		return
	}
	t, ok := s.active[traceID]
	if !ok {
		return
	}
	delete(s.active, traceID)

	tags := make([]string, 0, len(t.allTags))
	for tag := range t.allTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	entry := TraceEntry{
		TraceID:        traceID,
		Original:       t.original,
		Final:          final,
		Steps:          t.steps,
		Path:           t.path,
		AllTags:        tags,
		StartTimestamp: float64(t.startTime.UnixNano()) / 1e9,
		EndTimestamp:   nowSeconds(),
		TotalTime:      time.Since(t.startTime).Seconds(),
	}
	s.traces = appendRing(s.traces, entry, s.maxTraces)
}

// RecordStageMetrics updates a stage's invocation counters (spec.md
// §4.3/§4.4 step 6). Counters are monotonic non-decreasing (§3 invariant).
func (s *Store) RecordStageMetrics(stage string, elapsed time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.stageMetrics[stage]
	if !ok {
		m = &ProcessorMetrics{}
		s.stageMetrics[stage] = m
	}
	m.Count++
	m.Total += elapsed.Seconds()
	m.Avg = m.Total / float64(m.Count)
	m.LastSeen = nowSeconds()
	if !success {
		m.Errors++
	}

	outcome := "success"
	if !success {
		outcome = "error"
	}
	stageInvocations.WithLabelValues(stage, outcome).Inc()
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordError appends an error to the bounded ring and increments the
// stage's error counter (spec.md §4.3, §7).
func (s *Store) RecordError(stage, message, backtrace, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.stageMetrics[stage]
	if !ok {
		m = &ProcessorMetrics{}
		s.stageMetrics[stage] = m
	}
	m.Errors++

	s.errors = appendRing(s.errors, ErrorEntry{
		Stage:     stage,
		Message:   message,
		Backtrace: backtrace,
		Timestamp: nowSeconds(),
		Line:      line,
	}, s.maxErrors)

	errorsTotal.WithLabelValues(stage).Inc()
}

// SetCurrentFile records the filename currently under the daemon's care,
// or clears it when passed "".
func (s *Store) SetCurrentFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentFile = name
}

// RecordProcessedFile appends a successfully completed filename to the
// recent-files ring and clears current_file if it still matches.
func (s *Store) RecordProcessedFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProcessed = append(s.lastProcessed, processedFile{Name: name, Timestamp: nowSeconds()})
	const maxRecent = 200
	if len(s.lastProcessed) > maxRecent {
		s.lastProcessed = s.lastProcessed[len(s.lastProcessed)-maxRecent:]
	}
	if s.currentFile == name {
		s.currentFile = ""
	}
	filesProcessed.Inc()
}

// Stats is the /stats projection of per-stage counters.
func (s *Store) Stats() map[string]ProcessorMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ProcessorMetrics, len(s.stageMetrics))
	for k, v := range s.stageMetrics {
		out[k] = *v
	}
	return out
}

// TraceQuery filters GetTraces results (spec.md §4.3/§4.7).
type TraceQuery struct {
	Limit  int
	Search string
	Stage  string
	Tag    string
}

// GetTraces returns the most recent traces matching the query, newest
// last (to match insertion order of the ring).
func (s *Store) GetTraces(q TraceQuery) []TraceEntry {
	s.mu.Lock()
	all := make([]TraceEntry, len(s.traces))
	copy(all, s.traces)
	s.mu.Unlock()

	filtered := all[:0:0]
	searchLower := strings.ToLower(q.Search)
	for _, t := range all {
		if q.Search != "" && !traceMatchesSearch(t, searchLower) {
			continue
		}
		if q.Stage != "" && !containsString(t.Path, q.Stage) {
			continue
		}
		if q.Tag != "" && !containsString(t.AllTags, q.Tag) {
			continue
		}
		filtered = append(filtered, t)
	}

	limit := q.Limit
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	return filtered[len(filtered)-limit:]
}

func traceMatchesSearch(t TraceEntry, searchLower string) bool {
	if strings.Contains(strings.ToLower(t.Original), searchLower) ||
		strings.Contains(strings.ToLower(t.Final), searchLower) {
		return true
	}
	for _, step := range t.Steps {
		if strings.Contains(strings.ToLower(step.Input), searchLower) ||
			strings.Contains(strings.ToLower(step.Output), searchLower) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// GetErrors returns the most recent errors, newest last.
func (s *Store) GetErrors(limit int) []ErrorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.errors) {
		limit = len(s.errors)
	}
	out := make([]ErrorEntry, limit)
	copy(out, s.errors[len(s.errors)-limit:])
	return out
}

// Memory is a point-in-time process memory snapshot (plus uptime) backed
// by gopsutil, the way the original psutil-based
// MetricsStore.get_memory_stats worked. No CPU figures are collected.
type Memory struct {
	CurrentMB   float64 `json:"current_memory_mb"`
	PercentUsed float32 `json:"memory_percent"`
	UptimeSec   float64 `json:"uptime_seconds"`
}

// GetMemory returns the current memory snapshot. If the process handle
// could not be obtained at startup, only UptimeSec is filled in.
func (s *Store) GetMemory() Memory {
	snap := Memory{UptimeSec: time.Since(s.startedAt).Seconds()}
	if s.proc == nil {
		return snap
	}
	if info, err := s.proc.MemoryInfo(); err == nil && info != nil {
		snap.CurrentMB = float64(info.RSS) / 1024 / 1024
	}
	if pct, err := s.proc.MemoryPercent(); err == nil {
		snap.PercentUsed = pct
	}
	return snap
}

// FileQueueStats is the /stats file-queue projection.
type FileQueueStats struct {
	CurrentFile   string           `json:"current_file"`
	LastProcessed []processedFile  `json:"last_processed"`
}

// FileStats returns the last n processed files, newest first.
func (s *Store) FileStats(n int) FileQueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.lastProcessed) {
		n = len(s.lastProcessed)
	}
	recent := s.lastProcessed[len(s.lastProcessed)-n:]
	reversed := make([]processedFile, len(recent))
	for i, f := range recent {
		reversed[len(recent)-1-i] = f
	}
	return FileQueueStats{CurrentFile: s.currentFile, LastProcessed: reversed}
}

// Processors lists every known stage with an active/idle status, active
// meaning last-seen within 60 seconds (spec.md §4.7).
type ProcessorStatus struct {
	Name     string  `json:"name"`
	Count    int64   `json:"count"`
	Errors   int64   `json:"errors"`
	AvgTime  float64 `json:"avg_time"`
	LastSeen float64 `json:"last_seen"`
	Status   string  `json:"status"`
}

func (s *Store) Processors() []ProcessorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowSeconds()
	out := make([]ProcessorStatus, 0, len(s.stageMetrics))
	for name, m := range s.stageMetrics {
		status := "idle"
		if m.LastSeen > 0 && now-m.LastSeen < 60 {
			status = "active"
		}
		out = append(out, ProcessorStatus{
			Name: name, Count: m.Count, Errors: m.Errors,
			AvgTime: m.Avg, LastSeen: m.LastSeen, Status: status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func appendRing[T any](ring []T, entry T, max int) []T {
	ring = append(ring, entry)
	if max > 0 && len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
