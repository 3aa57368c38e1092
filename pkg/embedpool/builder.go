package embedpool

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PoolBuilder collects pool settings. Setters return the builder for
// chaining; Build validates and constructs the pool.
type PoolBuilder struct {
	manager       Manager
	config        PoolConfig
	runtime       Runtime
	logger        *zap.Logger
	meterProvider metric.MeterProvider
}

// NewBuilder returns a builder for manager with DefaultPoolConfig.
func NewBuilder(manager Manager) *PoolBuilder {
	return &PoolBuilder{
		manager: manager,
		config:  DefaultPoolConfig(),
	}
}

// Config replaces all pool settings.
func (b *PoolBuilder) Config(cfg PoolConfig) *PoolBuilder {
	b.config = cfg
	return b
}

// MaxSize sets the maximum number of instances.
func (b *PoolBuilder) MaxSize(n int) *PoolBuilder {
	b.config.MaxSize = n
	return b
}

// WaitTimeout bounds how long Get waits for a free slot.
func (b *PoolBuilder) WaitTimeout(d time.Duration) *PoolBuilder {
	b.config.Timeouts.Wait = d
	return b
}

// CreateTimeout bounds constructing an instance.
func (b *PoolBuilder) CreateTimeout(d time.Duration) *PoolBuilder {
	b.config.Timeouts.Create = d
	return b
}

// RecycleTimeout bounds recycling a reused instance.
func (b *PoolBuilder) RecycleTimeout(d time.Duration) *PoolBuilder {
	b.config.Timeouts.Recycle = d
	return b
}

// Runtime sets the runtime that enforces timeouts.
func (b *PoolBuilder) Runtime(rt Runtime) *PoolBuilder {
	b.runtime = rt
	return b
}

// Logger sets the pool logger. Defaults to a no-op logger.
func (b *PoolBuilder) Logger(l *zap.Logger) *PoolBuilder {
	b.logger = l
	return b
}

// MeterProvider sets where pool metrics are reported. Defaults to the
// global provider.
func (b *PoolBuilder) MeterProvider(mp metric.MeterProvider) *PoolBuilder {
	b.meterProvider = mp
	return b
}

// Settings returns the pool settings Build will use.
func (b *PoolBuilder) Settings() PoolConfig {
	return b.config
}

// RuntimeValue returns the runtime Build will use, or nil.
func (b *PoolBuilder) RuntimeValue() Runtime {
	return b.runtime
}

// Build validates the settings and returns an empty pool. Instances are
// created lazily by Get, or ahead of time by Warm.
func (b *PoolBuilder) Build() (*Pool, error) {
	if b.manager == nil {
		return nil, &BuildError{Err: ErrNoManager}
	}
	if b.config.MaxSize < 1 {
		return nil, &BuildError{Err: ErrInvalidMaxSize}
	}
	if b.config.Timeouts.enabled() && b.runtime == nil {
		return nil, &BuildError{Err: ErrNoRuntimeSpecified}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mp := b.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return newPool(b.manager, b.config, b.runtime, logger, mp.Meter(poolInstrumentationName))
}
