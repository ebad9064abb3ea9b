package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/arllen133/tablestore"
	meterName  = "github.com/arllen133/tablestore"
)

// Metrics holds the OpenTelemetry metric instruments
type Metrics struct {
	StatementCount    metric.Int64Counter
	StatementDuration metric.Float64Histogram
	StatementErrors   metric.Int64Counter
	// LockWait measures how long a statement queued behind the session lock.
	LockWait metric.Float64Histogram
}

// ObservabilityConfig holds logging, tracing, and metrics configuration
type ObservabilityConfig struct {
	Logger             *slog.Logger
	Tracer             trace.Tracer
	Meter              metric.Meter
	Metrics            *Metrics
	SlowQueryThreshold time.Duration
	LogQueries         bool // log statement text (debug mode)
}

func defaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.obs.Logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer for the session
func WithTracer(tracer trace.Tracer) SessionOption {
	return func(s *Session) {
		s.obs.Tracer = tracer
	}
}

// WithDefaultTracer uses the global OpenTelemetry tracer
func WithDefaultTracer() SessionOption {
	return WithTracer(otel.Tracer(tracerName))
}

// WithMeter sets the OpenTelemetry meter for metrics
func WithMeter(meter metric.Meter) SessionOption {
	return func(s *Session) {
		s.obs.Meter = meter
		s.obs.Metrics = initMetrics(meter)
	}
}

// WithDefaultMeter uses the global OpenTelemetry meter
func WithDefaultMeter() SessionOption {
	return WithMeter(otel.Meter(meterName))
}

// WithSlowQueryThreshold sets the duration above which a statement is logged as slow
func WithSlowQueryThreshold(d time.Duration) SessionOption {
	return func(s *Session) {
		s.obs.SlowQueryThreshold = d
	}
}

// WithQueryLogging enables logging of every statement with its text
func WithQueryLogging(enabled bool) SessionOption {
	return func(s *Session) {
		s.obs.LogQueries = enabled
	}
}

func initMetrics(meter metric.Meter) *Metrics {
	count, _ := meter.Int64Counter("tablestore.statement.count",
		metric.WithDescription("Total number of statements executed"),
		metric.WithUnit("{statement}"),
	)
	duration, _ := meter.Float64Histogram("tablestore.statement.duration",
		metric.WithDescription("Statement execution duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	errs, _ := meter.Int64Counter("tablestore.statement.errors",
		metric.WithDescription("Total number of failed statements"),
		metric.WithUnit("{error}"),
	)
	wait, _ := meter.Float64Histogram("tablestore.session.lock_wait",
		metric.WithDescription("Time spent waiting for the shared connection in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 1, 5, 10, 50, 100, 500, 1000),
	)
	return &Metrics{
		StatementCount:    count,
		StatementDuration: duration,
		StatementErrors:   errs,
		LockWait:          wait,
	}
}

// spanWrapper tolerates a nil span so call sites need no tracing checks.
type spanWrapper struct {
	span trace.Span
}

func (w spanWrapper) End() {
	if w.span != nil {
		w.span.End()
	}
}

func (w spanWrapper) fail(err error) {
	if w.span != nil {
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}
}

func (s *Session) startSpan(ctx context.Context, op string) (context.Context, spanWrapper) {
	if s.obs.Tracer == nil {
		return ctx, spanWrapper{}
	}
	ctx, span := s.obs.Tracer.Start(ctx, "tablestore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.dialect.Name()),
			attribute.String("db.operation", op),
		),
	)
	return ctx, spanWrapper{span}
}

func (s *Session) attrs(op string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("db.system", s.dialect.Name()),
	)
}

func (s *Session) recordLockWait(ctx context.Context, op string, wait time.Duration) {
	if s.obs.Metrics == nil {
		return
	}
	s.obs.Metrics.LockWait.Record(ctx, float64(wait.Microseconds())/1000, s.attrs(op))
}

func (s *Session) recordMetrics(ctx context.Context, op string, duration time.Duration, err error) {
	if s.obs.Metrics == nil {
		return
	}
	attrs := s.attrs(op)
	s.obs.Metrics.StatementCount.Add(ctx, 1, attrs)
	s.obs.Metrics.StatementDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if failed(err) {
		s.obs.Metrics.StatementErrors.Add(ctx, 1, attrs)
	}
}

func (s *Session) logQuery(ctx context.Context, op, query string, duration time.Duration, err error) {
	if s.obs.Logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("operation", op),
		slog.Duration("duration", duration),
	}
	if s.obs.LogQueries {
		attrs = append(attrs, slog.String("query", query))
	}

	switch {
	case failed(err):
		s.obs.Logger.LogAttrs(ctx, slog.LevelError, "statement failed", append(attrs, slog.String("error", err.Error()))...)
	case duration > s.obs.SlowQueryThreshold:
		s.obs.Logger.LogAttrs(ctx, slog.LevelWarn, "slow statement", attrs...)
	case s.obs.LogQueries:
		s.obs.Logger.LogAttrs(ctx, slog.LevelDebug, "statement executed", attrs...)
	}
}

// failed reports whether err is a real failure; an empty single-row lookup is not.
func failed(err error) bool {
	return err != nil && !errors.Is(err, sql.ErrNoRows)
}
