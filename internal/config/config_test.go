package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "text", cfg.Model.Kind)
	assert.Equal(t, embeddings.DefaultMaxLength, cfg.Model.MaxLength)
	assert.Empty(t, cfg.Model.Endpoint)
	assert.Nil(t, cfg.Model.ShowDownloadProgress)
	assert.Equal(t, embedpool.DefaultMaxSize(), cfg.Pool.MaxSize)
	assert.Equal(t, "127.0.0.1:9191", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "embedpool", cfg.Observability.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"unknown kind", func(c *Config) { c.Model.Kind = "audio" }, "unknown model kind"},
		{"negative max length", func(c *Config) { c.Model.MaxLength = -1 }, "max_length"},
		{"negative rate limit", func(c *Config) { c.Model.RateLimit = -1 }, "rate_limit"},
		{"onnx without dim", func(c *Config) { c.Model.ONNXFile = "m.onnx" }, "model.dim"},
		{"zero pool size", func(c *Config) { c.Pool.MaxSize = 0 }, "pool max size"},
		{"warm above max", func(c *Config) { c.Pool.MaxSize = 2; c.Pool.Warm = 3 }, "pool.warm"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad protocol", func(c *Config) { c.Observability.Protocol = "udp" }, "protocol"},
		{"telemetry without name", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, "service name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestModelConfig_ModelKind(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		m := Default().Model
		m.Name = "BAAI/bge-base-en-v1.5"
		m.ExecutionProviders = []string{"cpu"}

		mk, err := m.ModelKind()
		require.NoError(t, err)
		text, ok := mk.(embedpool.TextKind)
		require.True(t, ok)
		assert.Equal(t, embeddings.EmbeddingModel("BAAI/bge-base-en-v1.5"), text.Options.Model)
		assert.Equal(t, []string{"cpu"}, text.Options.ExecutionProviders)
		assert.NoError(t, mk.Validate())
	})

	t.Run("sparse carries remote settings", func(t *testing.T) {
		m := Default().Model
		m.Kind = "sparse"
		m.Endpoint = "http://tei:8080"
		m.APIKey = Secret("tok")
		m.RequestTimeout = Duration(3 * time.Second)
		m.RateLimit = 10
		m.Burst = 2

		mk, err := m.ModelKind()
		require.NoError(t, err)
		sparse, ok := mk.(embedpool.SparseKind)
		require.True(t, ok)
		assert.Equal(t, embeddings.RemoteOptions{
			Endpoint:  "http://tei:8080",
			APIKey:    "tok",
			Timeout:   3 * time.Second,
			RateLimit: 10,
			Burst:     2,
		}, sparse.Options.Remote)
	})

	t.Run("local sparse carries model settings", func(t *testing.T) {
		m := Default().Model
		m.Kind = "sparse"
		m.CacheDir = "/var/cache/models"
		m.ExecutionProviders = []string{"cuda"}

		mk, err := m.ModelKind()
		require.NoError(t, err)
		sparse, ok := mk.(embedpool.SparseKind)
		require.True(t, ok)
		assert.Empty(t, sparse.Options.Remote.Endpoint)
		assert.Equal(t, "/var/cache/models", sparse.Options.CacheDir)
		assert.Equal(t, []string{"cuda"}, sparse.Options.ExecutionProviders)
		assert.True(t, sparse.Options.ShowDownloadProgress)
		assert.NoError(t, mk.Validate())
	})

	t.Run("download progress can be disabled", func(t *testing.T) {
		off := false
		m := Default().Model
		m.Kind = "rerank"
		m.ShowDownloadProgress = &off

		mk, err := m.ModelKind()
		require.NoError(t, err)
		rerank, ok := mk.(embedpool.RerankKind)
		require.True(t, ok)
		assert.False(t, rerank.Options.ShowDownloadProgress)
		assert.Equal(t, m.CacheDir, rerank.Options.CacheDir)
	})

	t.Run("rerank", func(t *testing.T) {
		m := Default().Model
		m.Kind = "reranker"
		m.Name = "lexical"

		mk, err := m.ModelKind()
		require.NoError(t, err)
		assert.Equal(t, embedpool.KindRerank, mk.Kind())
		assert.Equal(t, "lexical", mk.Model())
	})

	t.Run("user defined image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.onnx")
		require.NoError(t, os.WriteFile(path, []byte("onnx"), 0600))

		m := Default().Model
		m.Kind = "image"
		m.ONNXFile = path
		m.Dim = 8

		mk, err := m.ModelKind()
		require.NoError(t, err)
		img, ok := mk.(embedpool.ImageKind)
		require.True(t, ok)
		require.NotNil(t, img.Options.UserDefined)
		assert.Equal(t, []byte("onnx"), img.Options.UserDefined.ONNX)
		assert.Equal(t, 8, img.Options.UserDefined.Dim)
		assert.Equal(t, 224, img.Options.UserDefined.ImageSize)
		assert.Equal(t, "user-defined", mk.Model())
	})

	t.Run("missing onnx file", func(t *testing.T) {
		m := Default().Model
		m.Kind = "image"
		m.ONNXFile = filepath.Join(t.TempDir(), "absent.onnx")
		m.Dim = 8

		_, err := m.ModelKind()
		assert.Error(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		m := Default().Model
		m.Kind = "audio"
		_, err := m.ModelKind()
		assert.Error(t, err)
	})
}

func TestConfig_EmbedPool(t *testing.T) {
	cfg := Default()
	cfg.Model.Kind = "rerank"
	cfg.Model.Name = "lexical"
	cfg.Pool.MaxSize = 2
	cfg.Pool.WaitTimeout = Duration(time.Second)
	cfg.Pool.RecycleTimeout = Duration(2 * time.Second)

	pc, err := cfg.EmbedPool()
	require.NoError(t, err)
	require.NotNil(t, pc.Pool)
	assert.Equal(t, embedpool.KindRerank, pc.Model.Kind())
	assert.Equal(t, embedpool.PoolConfig{
		MaxSize:  2,
		Timeouts: embedpool.Timeouts{Wait: time.Second, Recycle: 2 * time.Second},
	}, *pc.Pool)
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))
	assert.False(t, Secret("").IsSet())
	assert.Empty(t, Secret("").String())

	y, err := s.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", y)
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", s, s, s), "hunter2")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

func TestTOMLParser(t *testing.T) {
	p := TOML()
	m, err := p.Unmarshal([]byte("[pool]\nmax_size = 3\n"))
	require.NoError(t, err)
	pool, ok := m["pool"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, pool["max_size"])

	out, err := p.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), "max_size = 3")
}
