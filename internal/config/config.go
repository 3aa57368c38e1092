// Package config loads embedpool configuration from a YAML or TOML file and
// EMBEDPOOL_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// Config holds the complete embedpool configuration.
type Config struct {
	Model         ModelConfig         `koanf:"model"`
	Pool          PoolConfig          `koanf:"pool"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ModelConfig selects the model every pool slot holds.
type ModelConfig struct {
	// Kind is text, image, sparse or rerank.
	Kind string `koanf:"kind"`

	// Name is the registry model name. Empty selects the kind's default.
	Name string `koanf:"name"`

	CacheDir             string   `koanf:"cache_dir"`
	ExecutionProviders   []string `koanf:"execution_providers"`
	MaxLength            int      `koanf:"max_length"`
	// ShowDownloadProgress defaults to true when unset.
	ShowDownloadProgress *bool `koanf:"show_download_progress"`

	// Endpoint, APIKey and the rate settings configure an optional TEI server
	// for the sparse and rerank kinds. Empty runs the model in process.
	Endpoint       string   `koanf:"endpoint"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RateLimit      float64  `koanf:"rate_limit"`
	Burst          int      `koanf:"burst"`

	// ONNXFile loads an image model from disk instead of the registry.
	ONNXFile   string `koanf:"onnx_file"`
	Dim        int    `koanf:"dim"`
	ImageSize  int    `koanf:"image_size"`
	InputName  string `koanf:"input_name"`
	OutputName string `koanf:"output_name"`
}

// PoolConfig holds pool sizing and timeouts.
type PoolConfig struct {
	MaxSize        int      `koanf:"max_size"`
	WaitTimeout    Duration `koanf:"wait_timeout"`
	CreateTimeout  Duration `koanf:"create_timeout"`
	RecycleTimeout Duration `koanf:"recycle_timeout"`

	// Warm is how many instances to create at startup.
	Warm int `koanf:"warm"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
}

// LoggingConfig holds the logging settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Model.Kind == "" {
		cfg.Model.Kind = embedpool.KindText.String()
	}
	if cfg.Model.CacheDir == "" {
		cfg.Model.CacheDir = embeddings.DefaultCacheDir()
	}
	if cfg.Model.MaxLength == 0 {
		cfg.Model.MaxLength = embeddings.DefaultMaxLength
	}

	if cfg.Pool.MaxSize == 0 {
		cfg.Pool.MaxSize = embedpool.DefaultMaxSize()
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "16M"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "embedpool"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := embedpool.ParseKind(c.Model.Kind); err != nil {
		return err
	}
	if c.Model.MaxLength < 0 {
		return fmt.Errorf("model.max_length must be >= 0, got %d", c.Model.MaxLength)
	}
	if c.Model.RateLimit < 0 {
		return fmt.Errorf("model.rate_limit must be >= 0, got %f", c.Model.RateLimit)
	}
	if c.Model.ONNXFile != "" && c.Model.Dim <= 0 {
		return errors.New("model.dim is required with model.onnx_file")
	}

	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("invalid pool max size: %d (must be >= 1)", c.Pool.MaxSize)
	}
	if c.Pool.Warm < 0 || c.Pool.Warm > c.Pool.MaxSize {
		return fmt.Errorf("pool.warm must be between 0 and max_size (%d), got %d", c.Pool.MaxSize, c.Pool.Warm)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("observability.protocol must be 'grpc' or 'http', got %q", c.Observability.Protocol)
	}
	return nil
}

// ModelKind builds the model selector described by m.
func (m ModelConfig) ModelKind() (embedpool.ModelKind, error) {
	kind, err := embedpool.ParseKind(m.Kind)
	if err != nil {
		return nil, err
	}

	progress := m.ShowDownloadProgress == nil || *m.ShowDownloadProgress
	remote := embeddings.RemoteOptions{
		Endpoint:  m.Endpoint,
		APIKey:    m.APIKey.Value(),
		Timeout:   m.RequestTimeout.Duration(),
		RateLimit: m.RateLimit,
		Burst:     m.Burst,
	}

	switch kind {
	case embedpool.KindText:
		k := embedpool.Text(embeddings.EmbeddingModel(m.Name))
		k.Options.CacheDir = m.CacheDir
		k.Options.ExecutionProviders = m.ExecutionProviders
		k.Options.MaxLength = m.MaxLength
		k.Options.ShowDownloadProgress = progress
		return k, nil
	case embedpool.KindImage:
		k := embedpool.Image(embeddings.ImageEmbeddingModel(m.Name))
		k.Options.CacheDir = m.CacheDir
		k.Options.ExecutionProviders = m.ExecutionProviders
		k.Options.ShowDownloadProgress = progress
		if m.ONNXFile != "" {
			ud, err := m.userDefinedImage()
			if err != nil {
				return nil, err
			}
			k.Options.UserDefined = ud
		}
		return k, nil
	case embedpool.KindSparse:
		k := embedpool.Sparse(embeddings.SparseModel(m.Name))
		k.Options.CacheDir = m.CacheDir
		k.Options.ExecutionProviders = m.ExecutionProviders
		k.Options.MaxLength = m.MaxLength
		k.Options.ShowDownloadProgress = progress
		k.Options.Remote = remote
		return k, nil
	default:
		k := embedpool.Rerank(embeddings.RerankerModel(m.Name))
		k.Options.CacheDir = m.CacheDir
		k.Options.ExecutionProviders = m.ExecutionProviders
		k.Options.MaxLength = m.MaxLength
		k.Options.ShowDownloadProgress = progress
		k.Options.Remote = remote
		return k, nil
	}
}

// userDefinedImage reads ONNXFile. Preprocessing follows CLIP unless the
// named registry model says otherwise.
func (m ModelConfig) userDefinedImage() (*embeddings.UserDefinedImageModel, error) {
	data, err := os.ReadFile(m.ONNXFile)
	if err != nil {
		return nil, fmt.Errorf("reading onnx file: %w", err)
	}
	size := m.ImageSize
	if size == 0 {
		size = 224
	}
	return &embeddings.UserDefinedImageModel{
		ONNX:       data,
		Dim:        m.Dim,
		InputName:  m.InputName,
		OutputName: m.OutputName,
		ImageSize:  size,
		Mean:       [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:        [3]float32{0.26862954, 0.26130258, 0.27577711},
	}, nil
}

// PoolSettings converts p to pool settings.
func (p PoolConfig) PoolSettings() embedpool.PoolConfig {
	return embedpool.PoolConfig{
		MaxSize: p.MaxSize,
		Timeouts: embedpool.Timeouts{
			Wait:    p.WaitTimeout.Duration(),
			Create:  p.CreateTimeout.Duration(),
			Recycle: p.RecycleTimeout.Duration(),
		},
	}
}

// EmbedPool returns the pool configuration described by c.
func (c *Config) EmbedPool() (embedpool.Config, error) {
	model, err := c.Model.ModelKind()
	if err != nil {
		return embedpool.Config{}, err
	}
	pool := c.Pool.PoolSettings()
	return embedpool.Config{Model: model, Pool: &pool}, nil
}

// Addr returns host:port for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(s.Host), s.Port)
}
