package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/embedpool/internal/telemetry"
	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

func rerankModel() embedpool.ModelKind {
	return embedpool.Rerank(embeddings.LexicalReranker)
}

func newTestPool(t *testing.T, model embedpool.ModelKind, pc *embedpool.PoolConfig) *embedpool.Pool {
	t.Helper()
	pool, err := embedpool.Config{Model: model, Pool: pc}.CreatePool(embedpool.StdRuntime{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func setupTestServer(t *testing.T, model embedpool.ModelKind, pool *embedpool.Pool, logger *zap.Logger, opts ...Option) *Server {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	s, err := NewServer(pool, model, logger, &Config{Host: "127.0.0.1", Port: 9191, Version: "test"}, mp, opts...)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// newFakeTEI serves /info and /embed_sparse, giving input i the single
// entry {index: i, value: len(input)}.
func newFakeTEI(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			_ = json.NewEncoder(w).Encode(map[string]any{"model_id": "prithivida/Splade_PP_en_v1"})
		case "/embed_sparse":
			var req struct {
				Inputs []string `json:"inputs"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			out := make([][]map[string]any, len(req.Inputs))
			for i, in := range req.Inputs {
				out[i] = []map[string]any{{"index": i, "value": float64(len(in))}}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestNewServer(t *testing.T) {
	model := rerankModel()
	pool := newTestPool(t, model, nil)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(pool, model, zap.NewNop(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", s.config.Host)
		assert.Equal(t, 9191, s.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(pool, model, nil, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when pool is nil", func(t *testing.T) {
		_, err := NewServer(nil, model, zap.NewNop(), nil, nil)
		assert.ErrorContains(t, err, "pool cannot be nil")
	})

	t.Run("returns error when model is nil", func(t *testing.T) {
		_, err := NewServer(pool, nil, zap.NewNop(), nil, nil)
		assert.ErrorContains(t, err, "model cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, nil), nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHandleStatus(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, &embedpool.PoolConfig{MaxSize: 3}), nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rerank", resp.Kind)
	assert.Equal(t, "lexical", resp.Model)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 3, resp.Pool.MaxSize)
}

func TestHandleRerank(t *testing.T) {
	model := rerankModel()
	pool := newTestPool(t, model, &embedpool.PoolConfig{MaxSize: 2})
	s := setupTestServer(t, model, pool, nil)

	t.Run("ranks documents", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{
			Query:           "go pools",
			Documents:       []string{"rust traits", "go object pools", "pools of water"},
			ReturnDocuments: true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp RerankResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "lexical", resp.Model)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, 1, resp.Results[0].Index)
		assert.Equal(t, "go object pools", resp.Results[0].Document)
	})

	t.Run("top k", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{
			Query:     "go",
			Documents: []string{"a", "go", "b"},
			TopK:      1,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp RerankResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Empty(t, resp.Results[0].Document)
	})

	t.Run("missing query", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Documents: []string{"a"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "query")
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rerank", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("instances are returned to the pool", func(t *testing.T) {
		st := pool.Status()
		assert.Equal(t, 0, st.InUse)
		assert.LessOrEqual(t, st.Size, 2)
	})
}

func TestHandleSparse(t *testing.T) {
	k := embedpool.Sparse(embeddings.SPLADEPPV1)
	k.Options.Remote.Endpoint = newFakeTEI(t)
	s := setupTestServer(t, k, newTestPool(t, k, &embedpool.PoolConfig{MaxSize: 1}), nil)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/embed/sparse", SparseRequest{Inputs: []string{"ab", "abcd"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SparseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(embeddings.SPLADEPPV1), resp.Model)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []int{1}, resp.Embeddings[1].Indices)
	assert.Equal(t, []float32{4}, resp.Embeddings[1].Values)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/embed/sparse", SparseRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKindMismatch(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, nil), nil)

	tests := []struct {
		path string
		body any
	}{
		{"/api/v1/embed", EmbedRequest{Inputs: []string{"x"}}},
		{"/api/v1/embed/sparse", SparseRequest{Inputs: []string{"x"}}},
		{"/api/v1/embed/image", ImageRequest{Images: [][]byte{{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusConflict, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, "pool serves rerank models")
		})
	}
}

func TestTooManyInputs(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, nil), nil)

	docs := make([]string, maxInputs+1)
	for i := range docs {
		docs[i] = "d"
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Query: "q", Documents: docs})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWaitTimeoutIsUnavailable(t *testing.T) {
	model := rerankModel()
	pool := newTestPool(t, model, &embedpool.PoolConfig{
		MaxSize:  1,
		Timeouts: embedpool.Timeouts{Wait: 20 * time.Millisecond},
	})
	s := setupTestServer(t, model, pool, nil)

	held, err := pool.Get(context.Background())
	require.NoError(t, err)
	defer held.Release()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Query: "q", Documents: []string{"d"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "timeout while waiting for wait")
}

func TestClosedPoolIsUnavailable(t *testing.T) {
	model := rerankModel()
	pool := newTestPool(t, model, nil)
	s := setupTestServer(t, model, pool, nil)
	pool.Close()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Query: "q", Documents: []string{"d"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPanickingCallFreesInstance(t *testing.T) {
	model := rerankModel()
	pool := newTestPool(t, model, &embedpool.PoolConfig{MaxSize: 1})
	s := setupTestServer(t, model, pool, nil)

	c := s.echo.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/rerank", nil), httptest.NewRecorder())
	assert.Panics(t, func() {
		_ = s.with(c, embedpool.KindRerank, func(context.Context, *embedpool.Embedding) error {
			panic("backend bug")
		})
	})

	assert.Eventually(t, func() bool { return pool.Status().InUse == 0 }, time.Second, time.Millisecond)

	// The single slot is usable again.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Query: "q", Documents: []string{"q"}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, &embedpool.PoolConfig{MaxSize: 2}), nil)

	doJSON(t, s, http.MethodPost, "/api/v1/rerank", RerankRequest{Query: "q", Documents: []string{"q"}})

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `embedpool_pool_max_size{kind="rerank",model="lexical"} 2`)
	assert.Contains(t, body, `embedpool_pool_acquires_total{kind="rerank",model="lexical"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRequestLoggingAndTracing(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tel := telemetry.NewRecorder()

	model := rerankModel()
	pool := newTestPool(t, model, nil)
	s, err := NewServer(pool, model, zap.New(core), nil, tel.MeterProvider(), WithTracer(tel.Tracer("test")))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "req_abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req_abc", rec.Header().Get(echo.HeaderXRequestID))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req_abc", fields["request.id"])
	assert.Equal(t, "rerank", fields["model.kind"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Contains(t, fields, "trace_id")

	span, ok := tel.Span("GET /health")
	require.True(t, ok)
	route, _ := telemetry.SpanAttr(span, "http.route")
	assert.Equal(t, "/health", route.AsString())
	assert.Equal(t, fields["trace_id"], span.SpanContext().TraceID().String())

	got, err := tel.Metrics(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, "embedpool.http.requests")
}

func TestInvalidRequestIDIsReplaced(t *testing.T) {
	model := rerankModel()
	s := setupTestServer(t, model, newTestPool(t, model, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "bad id!")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	id := rec.Header().Get(echo.HeaderXRequestID)
	assert.NotEqual(t, "bad id!", id)
	assert.Len(t, id, 36)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"wait timeout", &embedpool.TimeoutError{Op: embedpool.TimeoutWait}, http.StatusServiceUnavailable},
		{"closed", embedpool.ErrPoolClosed, http.StatusServiceUnavailable},
		{"canceled", context.Canceled, 499},
		{"empty input", embeddings.ErrEmptyInput, http.StatusBadRequest},
		{"no onnx", embeddings.ErrONNXNotAvailable, http.StatusNotImplemented},
		{"backend", embeddings.ErrEmbeddingFailed, http.StatusBadGateway},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var he *echo.HTTPError
			require.ErrorAs(t, toHTTPError(tt.err), &he)
			assert.Equal(t, tt.code, he.Code)
		})
	}
}
