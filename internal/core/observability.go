package core

import (
	"context"
	"time"
)

// Logger is the minimal structured logging surface the service depends on.
// The signature matches *slog.Logger so the standard logger satisfies it
// without an adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome of a service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span, recording the operation error if any.
type TraceSpan interface {
	End(err error)
}

// CombineMetricsRecorders fans a single observation out to every recorder.
// Nil recorders are skipped.
func CombineMetricsRecorders(recorders ...MetricsRecorder) MetricsRecorder {
	kept := make([]MetricsRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return multiMetrics(kept)
}

type multiMetrics []MetricsRecorder

func (m multiMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
