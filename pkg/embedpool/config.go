package embedpool

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Config describes a pool: which model each slot holds and how the pool is
// sized. A nil Pool uses DefaultPoolConfig.
type Config struct {
	Model ModelKind
	Pool  *PoolConfig
}

// FromModel returns a Config for model with default pool settings.
func FromModel(model ModelKind) Config {
	return Config{Model: model}
}

// PoolConfig returns the pool settings, applying defaults when unset.
func (c Config) PoolConfig() PoolConfig {
	if c.Pool == nil {
		return DefaultPoolConfig()
	}
	return *c.Pool
}

// Option customizes the builder produced by Config.
type Option func(*PoolBuilder)

// WithLogger sets the pool logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *PoolBuilder) { b.Logger(l) }
}

// WithMeterProvider sets where pool metrics are reported.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *PoolBuilder) { b.MeterProvider(mp) }
}

// Builder resolves the model and returns a builder preloaded with the pool
// settings. An unknown model fails here with a *ConfigError, before any
// instance is created.
func (c Config) Builder(opts ...Option) (*PoolBuilder, error) {
	model := c.Model
	if model == nil {
		model = DefaultModel()
	}
	if err := model.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	b := NewBuilder(NewManager(model)).Config(c.PoolConfig())
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// CreatePool builds a pool from c. A non-nil rt overrides the builder's
// runtime. Errors are *ConfigError or *BuildError.
func (c Config) CreatePool(rt Runtime, opts ...Option) (*Pool, error) {
	b, err := c.Builder(opts...)
	if err != nil {
		return nil, err
	}
	if rt != nil {
		b.Runtime(rt)
	}
	return b.Build()
}
