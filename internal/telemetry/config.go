package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/embedpool/internal/config"
)

// Config selects where traces and metrics are exported.
type Config struct {
	Enabled bool

	// Endpoint is the collector address as host:port. An http:// or https://
	// prefix is tolerated.
	Endpoint string

	// Protocol is grpc or http.
	Protocol      string
	Insecure      bool
	TLSSkipVerify bool

	ServiceName    string
	ServiceVersion string

	// SampleRate is the fraction of root spans recorded. Child spans follow
	// their parent's decision.
	SampleRate float64

	// MetricInterval is the OTLP push period. Zero disables metric export.
	MetricInterval time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a disabled configuration pointing at a local
// collector.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		Insecure:        true,
		ServiceName:     "embedpool",
		ServiceVersion:  "dev",
		SampleRate:      1,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromConfig applies the observability section of the application config.
func FromConfig(oc config.ObservabilityConfig, version string) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = oc.EnableTelemetry
	cfg.Insecure = oc.Insecure
	if oc.ServiceName != "" {
		cfg.ServiceName = oc.ServiceName
	}
	if oc.Endpoint != "" {
		cfg.Endpoint = oc.Endpoint
	}
	if oc.Protocol != "" {
		cfg.Protocol = oc.Protocol
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate checks an enabled configuration. A disabled one is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required")
	case c.ServiceName == "":
		return errors.New("service name is required")
	case c.Protocol != "grpc" && !c.isHTTP():
		return fmt.Errorf("protocol must be grpc or http, got %q", c.Protocol)
	case c.Insecure && !isLoopback(c.Endpoint):
		return fmt.Errorf("insecure export is only allowed to a loopback endpoint, got %q", c.Endpoint)
	case c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("sample rate must be within [0, 1], got %g", c.SampleRate)
	case c.MetricInterval < 0:
		return errors.New("metric interval cannot be negative")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

func (c *Config) isHTTP() bool {
	return c.Protocol == "http" || c.Protocol == "http/protobuf"
}

// stripScheme leaves host:port, which is what the OTLP exporters expect.
func stripScheme(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}

func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
