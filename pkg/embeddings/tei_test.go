package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTEI is an in-memory Text Embeddings Inference server.
type fakeTEI struct {
	info      teiInfo
	authToken string
	requests  atomic.Int32
}

func newFakeTEI(t *testing.T, info teiInfo) (*fakeTEI, *httptest.Server) {
	t.Helper()
	f := &fakeTEI{info: info}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTEI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if f.authToken != "" && r.Header.Get("Authorization") != "Bearer "+f.authToken {
		writeJSON(w, http.StatusUnauthorized, teiError{Error: "unauthorized", ErrorType: "auth"})
		return
	}

	switch r.URL.Path {
	case "/info":
		writeJSON(w, http.StatusOK, f.info)
	case "/embed_sparse":
		var req teiSparseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, teiError{Error: err.Error(), ErrorType: "validation"})
			return
		}
		out := make([][]teiSparseValue, len(req.Inputs))
		for i, text := range req.Inputs {
			// Descending indices exercise client-side sorting.
			for j, word := range strings.Fields(text) {
				out[i] = append([]teiSparseValue{{Index: 100 - j, Value: float32(len(word))}}, out[i]...)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case "/rerank":
		var req teiRerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, teiError{Error: err.Error(), ErrorType: "validation"})
			return
		}
		scores, _ := lexicalScorer{}.score(r.Context(), req.Query, req.Texts)
		out := make([]teiRank, len(scores))
		for i := range scores {
			// Reverse order so the client must honor Index.
			j := len(scores) - 1 - i
			out[i] = teiRank{Index: j, Score: scores[j]}
		}
		writeJSON(w, http.StatusOK, out)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewTEIClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts RemoteOptions
	}{
		{"empty endpoint", RemoteOptions{}},
		{"no scheme", RemoteOptions{Endpoint: "localhost:8080"}},
		{"negative rate", RemoteOptions{Endpoint: "http://localhost:8080", RateLimit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTEIClient(tt.opts)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewTEIClient_TrimsTrailingSlash(t *testing.T) {
	c, err := newTEIClient(RemoteOptions{Endpoint: "http://localhost:8080/", RateLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestTEIClient_Info(t *testing.T) {
	_, srv := newFakeTEI(t, teiInfo{ModelID: "prithivida/Splade_PP_en_v1", MaxClientBatchSize: 8})

	c, err := newTEIClient(RemoteOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	info, err := c.info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prithivida/Splade_PP_en_v1", info.ModelID)
	assert.Equal(t, 8, info.MaxClientBatchSize)
}

func TestTEIClient_ErrorBody(t *testing.T) {
	f, srv := newFakeTEI(t, teiInfo{})
	f.authToken = "secret"

	c, err := newTEIClient(RemoteOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = c.info(context.Background())
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "unauthorized")

	c, err = newTEIClient(RemoteOptions{Endpoint: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	_, err = c.info(context.Background())
	assert.NoError(t, err)
}

func TestTEIClient_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := newTEIClient(RemoteOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = c.info(context.Background())
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestTEIClient_CanceledContext(t *testing.T) {
	_, srv := newFakeTEI(t, teiInfo{})
	c, err := newTEIClient(RemoteOptions{Endpoint: srv.URL, RateLimit: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.info(ctx)
	assert.Error(t, err)
}

func TestServesModel(t *testing.T) {
	tests := []struct {
		name     string
		serverID string
		ids      []string
		want     bool
	}{
		{"exact", "BAAI/bge-reranker-base", []string{"BAAI/bge-reranker-base"}, true},
		{"case", "baai/BGE-reranker-base", []string{"BAAI/bge-reranker-base"}, true},
		{"local path", "/data/BAAI/bge-reranker-base/", []string{"BAAI/bge-reranker-base"}, true},
		{"alias", "rozgo/bge-reranker-v2-m3", []string{"BAAI/bge-reranker-v2-m3", "rozgo/bge-reranker-v2-m3"}, true},
		{"other model", "BAAI/bge-reranker-large", []string{"BAAI/bge-reranker-base"}, false},
		{"partial name", "xBAAI/bge-reranker-base", []string{"BAAI/bge-reranker-base"}, false},
		{"empty", "", []string{"BAAI/bge-reranker-base"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, servesModel(tt.serverID, tt.ids...))
		})
	}
}
