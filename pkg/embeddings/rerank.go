package embeddings

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"
)

// RerankResult is one scored document, ordered by descending Score.
type RerankResult struct {
	// Index is the position of the document in the input slice.
	Index int `json:"index"`

	Score float32 `json:"score"`

	// Document is set only when the caller asked for documents back.
	Document string `json:"document,omitempty"`
}

// scorer assigns one relevance score per document.
type scorer interface {
	score(ctx context.Context, query string, docs []string) ([]float32, error)
	close() error
}

// TextRerank scores documents against a query with a local cross-encoder, a
// cross-encoder served by TEI, or the in-process lexical scorer.
type TextRerank struct {
	model   RerankerModel
	scorer  scorer
	metrics *Metrics
	closed  atomic.Bool
}

// NewTextRerank resolves the model and loads its cross-encoder. With
// opts.Remote.Endpoint set it instead queries the TEI server, which must serve
// the same model as a reranker.
func NewTextRerank(ctx context.Context, opts RerankInitOptions) (*TextRerank, error) {
	model, _, err := LookupRerankerModel(string(opts.Model))
	if err != nil {
		return nil, err
	}
	entry, err := rerankerEntry(model, opts.Remote)
	if err != nil {
		return nil, err
	}

	r := &TextRerank{model: model, metrics: defaultMetrics()}
	switch {
	case model == LexicalReranker:
		r.scorer = lexicalScorer{}
	case opts.Remote.Endpoint != "":
		r.scorer, err = newTEIScorer(ctx, entry, opts)
	default:
		r.scorer, err = newCrossEncoder(ctx, *entry.Source, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing rerank backend: %w", err)
	}
	return r, nil
}

// Rerank scores documents against query and returns them best first.
// topK <= 0 returns every document.
func (r *TextRerank) Rerank(ctx context.Context, query string, documents []string, topK int, returnDocuments bool) (out []RerankResult, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Record(ctx, string(r.model), "rerank", time.Since(start), len(documents), err)
	}()

	if r.closed.Load() {
		return nil, ErrClosed
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	scores, err := r.scorer.score(ctx, query, documents)
	if err != nil {
		return nil, err
	}

	out = make([]RerankResult, len(documents))
	for i, s := range scores {
		out[i] = RerankResult{Index: i, Score: s}
		if returnDocuments {
			out[i].Document = documents[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// Model returns the registry model name.
func (r *TextRerank) Model() RerankerModel {
	return r.model
}

// Close releases the backend. Safe to call more than once.
func (r *TextRerank) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.scorer.close()
}

// teiScorer calls POST /rerank.
type teiScorer struct {
	client    *teiClient
	batchSize int
	truncate  bool
}

type teiRerankRequest struct {
	Query      string   `json:"query"`
	Texts      []string `json:"texts"`
	Truncate   bool     `json:"truncate"`
	RawScores  bool     `json:"raw_scores"`
	ReturnText bool     `json:"return_text"`
}

type teiRank struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

func newTEIScorer(ctx context.Context, entry tokenModelInfo, opts RerankInitOptions) (*teiScorer, error) {
	client, err := newTEIClient(opts.Remote)
	if err != nil {
		return nil, err
	}

	info, err := client.info(ctx)
	if err != nil {
		return nil, err
	}
	if len(info.ModelType) > 0 {
		if _, ok := info.ModelType["reranker"]; !ok {
			return nil, fmt.Errorf("%w: server model %q is not a reranker", ErrInvalidConfig, info.ModelID)
		}
	}
	if !servesModel(info.ModelID, entry.serverIDs()...) {
		return nil, fmt.Errorf("%w: server serves %q, not %q", ErrInvalidConfig, info.ModelID, entry.Model)
	}

	batchSize := info.MaxClientBatchSize
	if batchSize <= 0 {
		batchSize = defaultClientBatchSize
	}
	return &teiScorer{
		client:    client,
		batchSize: batchSize,
		truncate:  opts.MaxLength > 0,
	}, nil
}

func (s *teiScorer) score(ctx context.Context, query string, docs []string) ([]float32, error) {
	scores := make([]float32, len(docs))
	offset := 0
	for batch := range chunk(docs, s.batchSize) {
		req := teiRerankRequest{
			Query:    query,
			Texts:    batch,
			Truncate: s.truncate,
		}
		var ranks []teiRank
		if err := s.client.post(ctx, "/rerank", req, &ranks); err != nil {
			return nil, err
		}
		if len(ranks) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d scores, got %d", ErrEmbeddingFailed, len(batch), len(ranks))
		}
		for _, rk := range ranks {
			if rk.Index < 0 || rk.Index >= len(batch) {
				return nil, fmt.Errorf("%w: rank index %d out of range", ErrEmbeddingFailed, rk.Index)
			}
			scores[offset+rk.Index] = rk.Score
		}
		offset += len(batch)
	}
	return scores, nil
}

func (s *teiScorer) close() error {
	return nil
}

// sigmoidScores maps cross-encoder logits of shape [rows] or [rows, k] to
// (0, 1) using the first logit of each row, as TEI does without raw_scores.
func sigmoidScores(logits []float32, shape []int64) ([]float32, error) {
	if len(shape) == 0 || shape[0] <= 0 {
		return nil, fmt.Errorf("%w: reranker output has shape %v", ErrEmbeddingFailed, shape)
	}
	rows := int(shape[0])
	stride := 1
	for _, d := range shape[1:] {
		stride *= int(d)
	}
	if stride == 0 || len(logits) != rows*stride {
		return nil, fmt.Errorf("%w: reranker output size %d does not match %v", ErrEmbeddingFailed, len(logits), shape)
	}

	scores := make([]float32, rows)
	for i := range scores {
		scores[i] = float32(1 / (1 + math.Exp(-float64(logits[i*stride]))))
	}
	return scores, nil
}
