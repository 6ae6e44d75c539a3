package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// otelInstruments holds the OpenTelemetry metric instruments for the store.
// These are created once during Open and reused for all operations.
type otelInstruments struct {
	// durationHistogram records operation duration in milliseconds
	durationHistogram metric.Float64Histogram

	// opCounter increments for each operation performed
	opCounter metric.Int64Counter

	// searchResults records how many entries each search returned
	searchResults metric.Int64Histogram
}

// newOTelInstruments creates and initializes all metric instruments.
// A nil meter disables metrics entirely.
func newOTelInstruments(meter metric.Meter) (*otelInstruments, error) {
	if meter == nil {
		return nil, nil
	}

	inst := &otelInstruments{}
	var err error

	// Create duration histogram
	inst.durationHistogram, err = meter.Float64Histogram(
		"recall.op.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	// Create operation counter
	inst.opCounter, err = meter.Int64Counter(
		"recall.op.count",
		metric.WithDescription("Number of store operations performed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operation counter: %w", err)
	}

	// Create search result histogram
	inst.searchResults, err = meter.Int64Histogram(
		"recall.search.results",
		metric.WithDescription("Number of entries returned per search"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search result histogram: %w", err)
	}

	return inst, nil
}

// startOp opens a span for one store operation. The returned span is nil
// when no tracer is configured; endOp tolerates that.
func (m *Memory) startOp(ctx context.Context, op, scope string) (context.Context, trace.Span, time.Time) {
	start := time.Now()
	if m.tracer == nil {
		return ctx, nil, start
	}

	ctx, span := m.tracer.Start(ctx, op)
	if scope != "" {
		span.SetAttributes(attribute.String("recall.scope", scope))
	}
	return ctx, span, start
}

// endOp closes the operation's span, records its metrics, and logs backend
// faults. It is safe to call with a nil span and with no instruments
// configured.
func (m *Memory) endOp(ctx context.Context, op string, span trace.Span, start time.Time, err error) {
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	if err != nil && m.logger != nil && isFault(err) {
		m.logger.Error("operation failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}

	if m.instruments == nil {
		return
	}

	opts := metric.WithAttributes(
		attribute.String("recall.op", op),
		attribute.Bool("recall.ok", err == nil),
	)
	if m.instruments.durationHistogram != nil {
		m.instruments.durationHistogram.Record(ctx, float64(time.Since(start).Milliseconds()), opts)
	}
	if m.instruments.opCounter != nil {
		m.instruments.opCounter.Add(ctx, 1, opts)
	}
}

// isFault separates backend and internal failures from expected-flow errors.
// Misses and rejected input are part of normal operation and stay off the
// error log; spans still record them.
func isFault(err error) bool {
	var opErr *Error
	if !errors.As(err, &opErr) {
		return true
	}
	switch opErr.Kind {
	case KindNotFound, KindValidation:
		return false
	}
	return true
}

// recordSearchResults notes how many entries a search produced.
func (m *Memory) recordSearchResults(ctx context.Context, n int) {
	if m.instruments == nil || m.instruments.searchResults == nil {
		return
	}
	m.instruments.searchResults.Record(ctx, int64(n))
}
