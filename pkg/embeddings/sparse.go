package embeddings

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"
)

// defaultClientBatchSize matches TEI's default max_client_batch_size.
const defaultClientBatchSize = 32

// SparseEmbedding is a sparse vector: parallel index/value slices sorted by
// index.
type SparseEmbedding struct {
	Indices []int     `json:"indices"`
	Values  []float32 `json:"values"`
}

// SparseTextEmbedding generates sparse embeddings with a local SPLADE model
// or through a TEI server.
type SparseTextEmbedding struct {
	model    SparseModel
	info     ModelInfo
	backend  sparseBackend
	serverID string
	metrics  *Metrics
	closed   atomic.Bool
}

// sparseBackend turns a batch of texts into sparse vectors.
type sparseBackend interface {
	embed(ctx context.Context, texts []string) ([]SparseEmbedding, error)
	close() error
}

// NewSparseTextEmbedding resolves the model and loads it. With
// opts.Remote.Endpoint set it instead queries the TEI server, which must serve
// the same model.
func NewSparseTextEmbedding(ctx context.Context, opts SparseInitOptions) (*SparseTextEmbedding, error) {
	model, info, err := LookupSparseModel(string(opts.Model))
	if err != nil {
		return nil, err
	}
	entry, err := sparseEntry(model, opts.Remote)
	if err != nil {
		return nil, err
	}

	s := &SparseTextEmbedding{model: model, info: info, metrics: defaultMetrics()}
	if opts.Remote.Endpoint != "" {
		tei, err := newTEISparse(ctx, entry, opts)
		if err != nil {
			return nil, fmt.Errorf("initializing sparse backend: %w", err)
		}
		s.backend, s.serverID = tei, tei.serverID
		return s, nil
	}

	s.backend, err = newSpladeBackend(ctx, *entry.Source, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing sparse backend: %w", err)
	}
	return s, nil
}

// Embed returns one sparse embedding per input text.
func (s *SparseTextEmbedding) Embed(ctx context.Context, texts []string) (out []SparseEmbedding, err error) {
	start := time.Now()
	defer func() {
		s.metrics.Record(ctx, string(s.model), "sparse_embed", time.Since(start), len(texts), err)
	}()

	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return s.backend.embed(ctx, texts)
}

// Model returns the registry model name.
func (s *SparseTextEmbedding) Model() SparseModel {
	return s.model
}

// ServerModelID returns the model id reported by the TEI server, or "" for a
// local model.
func (s *SparseTextEmbedding) ServerModelID() string {
	return s.serverID
}

// VocabSize returns the sparse vector dimensionality.
func (s *SparseTextEmbedding) VocabSize() int {
	return s.info.Dim
}

// Close releases the backend. Safe to call more than once.
func (s *SparseTextEmbedding) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.backend.close()
}

// teiSparse calls POST /embed_sparse.
type teiSparse struct {
	client    *teiClient
	batchSize int
	truncate  bool
	serverID  string
}

func newTEISparse(ctx context.Context, entry tokenModelInfo, opts SparseInitOptions) (*teiSparse, error) {
	client, err := newTEIClient(opts.Remote)
	if err != nil {
		return nil, err
	}
	info, err := client.info(ctx)
	if err != nil {
		return nil, err
	}
	if !servesModel(info.ModelID, entry.serverIDs()...) {
		return nil, fmt.Errorf("%w: server serves %q, not %q", ErrInvalidConfig, info.ModelID, entry.Model)
	}

	batchSize := info.MaxClientBatchSize
	if batchSize <= 0 {
		batchSize = defaultClientBatchSize
	}
	return &teiSparse{
		client:    client,
		batchSize: batchSize,
		truncate:  opts.MaxLength > 0,
		serverID:  info.ModelID,
	}, nil
}

func (t *teiSparse) embed(ctx context.Context, texts []string) ([]SparseEmbedding, error) {
	out := make([]SparseEmbedding, 0, len(texts))
	for batch := range chunk(texts, t.batchSize) {
		var resp [][]teiSparseValue
		req := teiSparseRequest{Inputs: batch, Truncate: t.truncate}
		if err := t.client.post(ctx, "/embed_sparse", req, &resp); err != nil {
			return nil, err
		}
		if len(resp) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d sparse vectors, got %d", ErrEmbeddingFailed, len(batch), len(resp))
		}
		for _, values := range resp {
			out = append(out, toSparse(values))
		}
	}
	return out, nil
}

func (t *teiSparse) close() error {
	return nil
}

// spladePool reduces SPLADE logits of shape [rows, seqLen, vocab] to one
// sparse vector per row: the max over unmasked tokens of log(1+relu(x)).
// Indices come out ascending.
func spladePool(logits []float32, mask []int64, rows, seqLen, vocab int) ([]SparseEmbedding, error) {
	if len(logits) != rows*seqLen*vocab || len(mask) != rows*seqLen {
		return nil, fmt.Errorf("%w: splade output size %d does not match [%d %d %d]", ErrEmbeddingFailed, len(logits), rows, seqLen, vocab)
	}

	out := make([]SparseEmbedding, rows)
	weights := make([]float32, vocab)
	for r := range rows {
		clear(weights)
		for t := range seqLen {
			if mask[r*seqLen+t] == 0 {
				continue
			}
			row := logits[(r*seqLen+t)*vocab : (r*seqLen+t+1)*vocab]
			for v, x := range row {
				if x <= 0 {
					continue
				}
				if w := float32(math.Log1p(float64(x))); w > weights[v] {
					weights[v] = w
				}
			}
		}
		se := SparseEmbedding{Indices: []int{}, Values: []float32{}}
		for v, w := range weights {
			if w > 0 {
				se.Indices = append(se.Indices, v)
				se.Values = append(se.Values, w)
			}
		}
		out[r] = se
	}
	return out, nil
}

func toSparse(values []teiSparseValue) SparseEmbedding {
	se := SparseEmbedding{
		Indices: make([]int, len(values)),
		Values:  make([]float32, len(values)),
	}
	sortSparse(values)
	for i, v := range values {
		se.Indices[i] = v.Index
		se.Values[i] = v.Value
	}
	return se
}

func sortSparse(values []teiSparseValue) {
	slices.SortFunc(values, func(a, b teiSparseValue) int {
		return cmp.Compare(a.Index, b.Index)
	})
}

// chunk yields consecutive slices of at most size elements.
func chunk[T any](items []T, size int) func(yield func([]T) bool) {
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end]) {
				return
			}
		}
	}
}
