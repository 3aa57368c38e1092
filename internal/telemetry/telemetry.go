package telemetry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures New.
type Option func(*options)

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
	logger       *zap.Logger
}

// WithSpanExporter replaces the OTLP trace exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricReader replaces the periodic OTLP metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// WithLogger sets where export problems are reported.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Telemetry owns the SDK tracer and meter providers.
type Telemetry struct {
	cfg    *Config
	logger *zap.Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	mu       sync.Mutex
	problems []string

	shutdownOnce sync.Once
	shutdownErr  error
}

// New installs the tracer and meter providers as the otel globals. An
// exporter that cannot be built leaves its signal on the no-op global and
// is reported by Problems; New itself only fails on invalid config.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	t := &Telemetry{cfg: cfg, logger: o.logger}
	if !cfg.Enabled {
		return t, nil
	}

	res := cfg.resource()

	exp := o.spanExporter
	if exp == nil {
		var err error
		if exp, err = cfg.spanExporter(ctx); err != nil {
			t.problem("trace exporter: %v", err)
		}
	}
	if exp != nil {
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(cfg.sampler()),
		)
		otel.SetTracerProvider(t.tp)
	}

	reader := o.metricReader
	if reader == nil && cfg.MetricInterval > 0 {
		mexp, err := cfg.metricExporter(ctx)
		if err != nil {
			t.problem("metric exporter: %v", err)
		} else {
			reader = sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(cfg.MetricInterval))
		}
	}
	if reader != nil {
		t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		otel.SetMeterProvider(t.mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) problem(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.problems = append(t.problems, msg)
	t.mu.Unlock()
	t.logger.Warn("telemetry degraded", zap.String("reason", msg))
}

// Problems lists exporters that could not be started.
func (t *Telemetry) Problems() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.problems)
}

// Enabled reports whether telemetry was requested and at least one signal
// is being exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg.Enabled && (t.tp != nil || t.mp != nil)
}

// TracerProvider returns the SDK provider, or the global one when traces
// are not exported.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t == nil || t.tp == nil {
		return otel.GetTracerProvider()
	}
	return t.tp
}

// Tracer is shorthand for TracerProvider().Tracer.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.TracerProvider().Tracer(name, opts...)
}

// MeterProvider returns the SDK provider, or the global one when metrics
// are not exported.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t == nil || t.mp == nil {
		return otel.GetMeterProvider()
	}
	return t.mp
}

// Meter is shorthand for MeterProvider().Meter.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.MeterProvider().Meter(name, opts...)
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.ForceFlush(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops both providers. Without a deadline on ctx the
// configured shutdown timeout applies. Later calls return the first
// result.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
			defer cancel()
		}
		var errs []error
		if t.tp != nil {
			if err := t.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider: %w", err))
			}
		}
		if t.mp != nil {
			if err := t.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter provider: %w", err))
			}
		}
		t.shutdownErr = errors.Join(errs...)
	})
	return t.shutdownErr
}
