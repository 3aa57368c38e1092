package embedpool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
)

// fakeManager builds lexical rerankers, which need no model files.
type fakeManager struct {
	creates  atomic.Int32
	recycles atomic.Int32

	createErr   error
	createDelay time.Duration
	recycleErr  func(n int32) error
	lastMetrics atomic.Value
}

func (m *fakeManager) Create(ctx context.Context) (*Embedding, error) {
	m.creates.Add(1)
	if m.createDelay > 0 {
		select {
		case <-time.After(m.createDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	return NewEmbedding(ctx, Rerank(embeddings.LexicalReranker))
}

func (m *fakeManager) Recycle(_ context.Context, _ *Embedding, metrics Metrics) error {
	n := m.recycles.Add(1)
	m.lastMetrics.Store(metrics)
	if m.recycleErr != nil {
		return m.recycleErr(n)
	}
	return nil
}

// countingRuntime records every timeout it applies.
type countingRuntime struct {
	calls atomic.Int32
}

func (r *countingRuntime) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	r.calls.Add(1)
	return context.WithTimeout(ctx, d)
}

var errBoom = errors.New("boom")

// newFakeTEI serves just enough of the TEI API for a sparse backend.
func newFakeTEI(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model_id":              "prithivida/Splade_PP_en_v1",
				"max_client_batch_size": 4,
			})
		case "/embed_sparse":
			var req struct {
				Inputs []string `json:"inputs"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			out := make([][]map[string]any, len(req.Inputs))
			for i := range out {
				out[i] = []map[string]any{{"index": i, "value": 1.0}}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func sparseKind(t *testing.T) SparseKind {
	t.Helper()
	k := Sparse(embeddings.SPLADEPPV1)
	k.Options.Remote.Endpoint = newFakeTEI(t)
	return k
}
