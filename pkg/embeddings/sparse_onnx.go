//go:build cgo

package embeddings

import (
	"context"
	"fmt"

	"github.com/sugarme/tokenizer"
)

// defaultLocalBatchSize bounds how many sequences go through one session run
// of a local sparse or rerank model.
const defaultLocalBatchSize = 32

// spladeBackend runs a SPLADE masked-language-model export in process.
type spladeBackend struct {
	tokenizer *tokenizer.Tokenizer
	session   *tokenSession
}

func newSpladeBackend(ctx context.Context, src onnxSource, opts SparseInitOptions) (*spladeBackend, error) {
	modelPath, tokDir, err := ensureTokenModel(ctx, opts.CacheDir, src, opts.ShowDownloadProgress)
	if err != nil {
		return nil, err
	}
	tk, err := loadTokenizer(tokDir, opts.MaxLength)
	if err != nil {
		return nil, err
	}
	session, err := newTokenSession(modelPath, opts.ExecutionProviders)
	if err != nil {
		return nil, err
	}
	return &spladeBackend{tokenizer: tk, session: session}, nil
}

func (b *spladeBackend) embed(ctx context.Context, texts []string) ([]SparseEmbedding, error) {
	out := make([]SparseEmbedding, 0, len(texts))
	for batch := range chunk(texts, defaultLocalBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens, err := encodeTexts(b.tokenizer, batch)
		if err != nil {
			return nil, err
		}
		logits, shape, err := b.session.run(tokens)
		if err != nil {
			return nil, err
		}
		if len(shape) != 3 {
			return nil, fmt.Errorf("%w: splade output has shape %v, want [batch seq vocab]", ErrEmbeddingFailed, shape)
		}
		vecs, err := spladePool(logits, tokens.mask, tokens.rows, tokens.seqLen, int(shape[2]))
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (b *spladeBackend) close() error {
	return b.session.close()
}
