package recall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMemory_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mem, err := Open(context.Background(),
		WithSnapshotPath(filepath.Join(t.TempDir(), "recall.json")),
		WithFlushInterval(time.Hour),
		WithLogger(quietLogger()),
		WithTracer(tracerProvider.Tracer("test")),
		WithMeter(meterProvider.Meter("test")),
	)
	require.NoError(t, err)
	defer mem.Close()

	ctx := context.Background()
	require.NoError(t, mem.Store(ctx, "session-1", "goal", "observe me"))
	_, err = mem.Search(ctx, "observe")
	require.NoError(t, err)
	_, err = mem.Retrieve(ctx, "session-1", "missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, span := range spans {
		byName[span.Name()] = span
	}

	storeSpan, ok := byName["recall.store"]
	require.True(t, ok)
	assert.Equal(t, codes.Ok, storeSpan.Status().Code)

	var scopeAttr string
	for _, attr := range storeSpan.Attributes() {
		if string(attr.Key) == "recall.scope" {
			scopeAttr = attr.Value.AsString()
		}
	}
	assert.Equal(t, "session-1", scopeAttr)

	retrieveSpan, ok := byName["recall.retrieve"]
	require.True(t, ok)
	assert.Equal(t, codes.Error, retrieveSpan.Status().Code)

	_, ok = byName["recall.search"]
	require.True(t, ok)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	metricNames := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metricNames[m.Name] = m
		}
	}

	assert.Contains(t, metricNames, "recall.op.duration")
	assert.Contains(t, metricNames, "recall.search.results")

	opCount, ok := metricNames["recall.op.count"]
	require.True(t, ok)
	sum, ok := opCount.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
}

func TestTelemetry_NilSafe(t *testing.T) {
	// A bare Memory has no tracer or instruments; the hooks must tolerate
	// that rather than panic.
	m := &Memory{}

	ctx, span, start := m.startOp(context.Background(), "recall.test", "s")
	assert.Nil(t, span)
	m.endOp(ctx, "test", span, start, nil)
	m.recordSearchResults(ctx, 3)

	inst, err := newOTelInstruments(nil)
	require.NoError(t, err)
	assert.Nil(t, inst)
}
