package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.Empty(t, tel.Problems())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.MeterProvider())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := enabled()
	cfg.SampleRate = 2
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_InjectedExporters(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	ctx := context.Background()

	tel, err := New(ctx, enabled(), WithSpanExporter(exp), WithMetricReader(reader))
	require.NoError(t, err)
	assert.True(t, tel.Enabled())

	_, span := tel.Tracer("test").Start(ctx, "embed")
	span.End()

	counter, err := tel.Meter("test").Int64Counter("embeds")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	require.NoError(t, tel.ForceFlush(ctx))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "embed", spans[0].Name)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "embeds", rm.ScopeMetrics[0].Metrics[0].Name)

	assert.Contains(t, rm.Resource.Attributes(), attribute.String("service.name", "embedpool"))

	require.NoError(t, tel.Shutdown(ctx))
	// Repeated shutdown returns the first result.
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNew_MetricsOff(t *testing.T) {
	cfg := enabled()
	cfg.MetricInterval = 0

	tel, err := New(context.Background(), cfg, WithSpanExporter(tracetest.NewInMemoryExporter()))
	require.NoError(t, err)
	assert.Nil(t, tel.mp)
	assert.NotNil(t, tel.tp)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.Problems())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	cfg := enabled()
	cfg.SampleRate = 0
	assert.Contains(t, cfg.sampler().Description(), "ParentBased")
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	_, span := rec.Tracer("test").Start(ctx, "rerank")
	span.SetAttributes(attribute.Int("documents", 4))
	span.End()

	s, ok := rec.Span("rerank")
	require.True(t, ok)
	v, ok := SpanAttr(s, "documents")
	require.True(t, ok)
	assert.Equal(t, int64(4), v.AsInt64())

	_, ok = rec.Span("missing")
	assert.False(t, ok)

	h, err := rec.Meter("test").Float64Histogram("latency")
	require.NoError(t, err)
	h.Record(ctx, 0.5)

	got, err := rec.Metrics(ctx)
	require.NoError(t, err)
	require.Contains(t, got, "latency")
	hist := got["latency"].Data.(metricdata.Histogram[float64])
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
