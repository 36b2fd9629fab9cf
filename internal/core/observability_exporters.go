package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

type opMetrics struct {
	totalMS float64
	counts  map[string]int64
}

// ExpvarMetricsRecorder publishes aggregate timing and result counters via
// expvar for deployments that want process-local metrics. Totals are kept in
// milliseconds per operation alongside success/error counters.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*opMetrics
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name. An empty name gets a generated unique one, so
// tests can create recorders freely without expvar.Publish panicking.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("records_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]*opMetrics),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	m, ok := r.ops[operation]
	if !ok {
		m = &opMetrics{counts: make(map[string]int64, 2)}
		r.ops[operation] = m
	}
	m.totalMS += float64(duration) / float64(time.Millisecond)
	m.counts[status]++
	r.mu.Unlock()
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.ops))
	results := make(map[string]map[string]int64, len(r.ops))
	for op, m := range r.ops {
		durations[op] = m.totalMS
		counts := make(map[string]int64, len(m.counts))
		for status, n := range m.counts {
			counts[status] = n
		}
		results[op] = counts
	}

	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}

// JSONTraceEntry is one serialized span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer encodes spans as JSON lines to a writer and retains them
// for inspection via Entries.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing spans to w. A nil writer retains
// spans without emitting them.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		started:   time.Now().UTC(),
	}
}

func (t *JSONTraceTracer) record(entry JSONTraceEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
	t.mu.Unlock()
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	s.tracer.record(JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	})
}
