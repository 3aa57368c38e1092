package embeddings

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/embedpool/pkg/embeddings"

// Metrics records backend calls: latency, inputs per call and failures.
type Metrics struct {
	duration metric.Float64Histogram
	inputs   metric.Int64Histogram
	failures metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(embeddingsInstrumentationName)
	m := &Metrics{}
	var errs [3]error

	m.duration, errs[0] = meter.Float64Histogram("embedpool.backend.duration",
		metric.WithDescription("Backend call latency by model and operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	m.inputs, errs[1] = meter.Int64Histogram("embedpool.backend.inputs",
		metric.WithDescription("Texts, images or documents per backend call."),
		metric.WithUnit("{input}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32, 64, 128, 256, 512))
	m.failures, errs[2] = meter.Int64Counter("embedpool.backend.failures",
		metric.WithDescription("Failed backend calls by model, operation and error type."),
		metric.WithUnit("{call}"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	globalMetricsOnce sync.Once
	globalMetrics     *Metrics
)

// defaultMetrics uses the global meter provider, resolved on first use so
// a provider installed at startup is picked up. Backends record nothing if
// the instruments cannot be created.
func defaultMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return globalMetrics
}

// Record records one call. inputs of zero skips the inputs histogram.
func (m *Metrics) Record(ctx context.Context, model, op string, d time.Duration, inputs int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("model", model),
		attribute.String("operation", op),
	))
	m.duration.Record(ctx, d.Seconds(), attrs)
	if inputs > 0 {
		m.inputs.Record(ctx, int64(inputs), attrs)
	}
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("operation", op),
			attribute.String("error.type", errorType(err)),
		))
	}
}

// errorType buckets err for the failures counter.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrEmbeddingFailed):
		return "backend"
	}
	return "other"
}
