//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
)

// defaultBatchSize is the FastEmbed batch size for document embedding.
const defaultBatchSize = 256

// TextEmbedding generates dense text embeddings using a local ONNX model
// loaded by FastEmbed.
type TextEmbedding struct {
	model     *fastembed.FlagEmbedding
	modelName EmbeddingModel
	dimension int
	metrics   *Metrics
	mu        sync.RWMutex
}

// NewTextEmbedding loads the model, downloading it into opts.CacheDir on
// first use.
func NewTextEmbedding(ctx context.Context, opts TextInitOptions) (*TextEmbedding, error) {
	model, info, err := LookupTextModel(string(opts.Model))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	maxLength := opts.MaxLength
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}

	if err := exportONNXPath(); err != nil {
		return nil, err
	}

	showProgress := opts.ShowDownloadProgress
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(model),
		ExecutionProviders:   opts.ExecutionProviders,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing FastEmbed: %w", err)
	}

	return &TextEmbedding{
		model:     flagEmbed,
		modelName: model,
		dimension: info.Dim,
		metrics:   defaultMetrics(),
	}, nil
}

// Embed generates embeddings for texts without query/passage prefixes.
func (t *TextEmbedding) Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return t.embedBatch(ctx, "embed", texts, batchSize, func(m *fastembed.FlagEmbedding, bs int) ([][]float32, error) {
		return m.Embed(texts, bs)
	})
}

// PassageEmbed generates document embeddings. Uses the "passage: " prefix
// recommended for BGE models.
func (t *TextEmbedding) PassageEmbed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return t.embedBatch(ctx, "passage_embed", texts, batchSize, func(m *fastembed.FlagEmbedding, bs int) ([][]float32, error) {
		return m.PassageEmbed(texts, bs)
	})
}

// QueryEmbed generates a query embedding. Uses the "query: " prefix.
func (t *TextEmbedding) QueryEmbed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		t.metrics.Record(ctx, string(t.modelName), "query_embed", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.model == nil {
		return nil, ErrClosed
	}

	vec, err = t.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

func (t *TextEmbedding) embedBatch(
	ctx context.Context,
	op string,
	texts []string,
	batchSize int,
	fn func(*fastembed.FlagEmbedding, int) ([][]float32, error),
) (out [][]float32, err error) {
	start := time.Now()
	defer func() {
		t.metrics.Record(ctx, string(t.modelName), op, time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.model == nil {
		return nil, ErrClosed
	}

	out, err = fn(t.model, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return out, nil
}

// Model returns the FastEmbed model name.
func (t *TextEmbedding) Model() EmbeddingModel {
	return t.modelName
}

// Dimension returns the embedding dimension for the loaded model.
func (t *TextEmbedding) Dimension() int {
	return t.dimension
}

// Close releases the ONNX session. Safe to call more than once.
func (t *TextEmbedding) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Destroy()
	t.model = nil
	return err
}
