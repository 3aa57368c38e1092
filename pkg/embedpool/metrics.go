package embedpool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const poolInstrumentationName = "github.com/fyrsmithlabs/embedpool/pkg/embedpool"

// poolMetrics records slot lifecycle events and observes pool status.
type poolMetrics struct {
	logger       *zap.Logger
	base         []attribute.KeyValue
	creates      metric.Int64Counter
	recycles     metric.Int64Counter
	acquireWait  metric.Float64Histogram
	registration metric.Registration
}

func newPoolMetrics(meter metric.Meter, logger *zap.Logger, kind Kind, model string) *poolMetrics {
	m := &poolMetrics{
		logger: logger,
		base: []attribute.KeyValue{
			attribute.String("kind", kind.String()),
			attribute.String("model", model),
		},
	}

	var err error
	m.creates, err = meter.Int64Counter(
		"embedpool.pool.creates_total",
		metric.WithDescription("Model instances constructed, labeled by outcome (ok, error, timeout)"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		logger.Warn("failed to create creates counter", zap.Error(err))
	}

	m.recycles, err = meter.Int64Counter(
		"embedpool.pool.recycles_total",
		metric.WithDescription("Recycle checks of reused instances, labeled by outcome (ok, error, timeout)"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		logger.Warn("failed to create recycles counter", zap.Error(err))
	}

	m.acquireWait, err = meter.Float64Histogram(
		"embedpool.pool.acquire_duration_seconds",
		metric.WithDescription("Time spent in Get, including waiting for a slot and constructing an instance"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	)
	if err != nil {
		logger.Warn("failed to create acquire histogram", zap.Error(err))
	}
	return m
}

// observe registers gauges reporting status on every collection.
func (m *poolMetrics) observe(meter metric.Meter, status func() Status) {
	size, err := meter.Int64ObservableGauge("embedpool.pool.size",
		metric.WithDescription("Instances currently held by the pool"),
		metric.WithUnit("{instance}"))
	if err != nil {
		m.logger.Warn("failed to create size gauge", zap.Error(err))
		return
	}
	idle, err := meter.Int64ObservableGauge("embedpool.pool.idle",
		metric.WithDescription("Instances available for Get"),
		metric.WithUnit("{instance}"))
	if err != nil {
		m.logger.Warn("failed to create idle gauge", zap.Error(err))
		return
	}
	inUse, err := meter.Int64ObservableGauge("embedpool.pool.in_use",
		metric.WithDescription("Instances checked out by callers"),
		metric.WithUnit("{instance}"))
	if err != nil {
		m.logger.Warn("failed to create in-use gauge", zap.Error(err))
		return
	}

	attrs := metric.WithAttributes(m.base...)
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := status()
		o.ObserveInt64(size, int64(s.Size), attrs)
		o.ObserveInt64(idle, int64(s.Idle), attrs)
		o.ObserveInt64(inUse, int64(s.InUse), attrs)
		return nil
	}, size, idle, inUse)
	if err != nil {
		m.logger.Warn("failed to register pool gauges", zap.Error(err))
	}
}

func (m *poolMetrics) withOutcome(outcome string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(m.base)+1)
	attrs = append(attrs, m.base...)
	return metric.WithAttributes(append(attrs, attribute.String("outcome", outcome))...)
}

func (m *poolMetrics) recordCreate(ctx context.Context, outcome string) {
	if m.creates != nil {
		m.creates.Add(ctx, 1, m.withOutcome(outcome))
	}
}

func (m *poolMetrics) recordRecycle(ctx context.Context, outcome string) {
	if m.recycles != nil {
		m.recycles.Add(ctx, 1, m.withOutcome(outcome))
	}
}

func (m *poolMetrics) recordAcquire(ctx context.Context, d time.Duration) {
	if m.acquireWait != nil {
		m.acquireWait.Record(ctx, d.Seconds(), metric.WithAttributes(m.base...))
	}
}

func (m *poolMetrics) close() {
	if m.registration != nil {
		if err := m.registration.Unregister(); err != nil {
			m.logger.Debug("unregistering pool gauges", zap.Error(err))
		}
	}
}
